package service

import (
	"context"
	"testing"
	"time"

	"storage-dashboard/caching"
	"storage-dashboard/goutils/datamodel"
	"storage-dashboard/goutils/settings"
)

type fetcherFunc func(ctx context.Context) (*datamodel.Snapshot, error)

func (f fetcherFunc) FetchSnapshot(ctx context.Context) (*datamodel.Snapshot, error) {
	return f(ctx)
}

type auditorFunc func(ctx context.Context, fileID, blockID string) (bool, error)

func (f auditorFunc) AuditBlock(ctx context.Context, fileID, blockID string) (bool, error) {
	return f(ctx, fileID, blockID)
}

var testNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func testSettings(t *testing.T) *settings.SettingsObj {
	t.Helper()

	return &settings.SettingsObj{
		InstanceId:     "dash-test",
		LocalCachePath: t.TempDir(),
		RetryCount:     1,
		Reconciler: &settings.Reconciler{
			PollInterval:     "@every 5s",
			AuditConcurrency: 2,
			AuditOverlayTTL:  60,
			ChartDays:        7,
		},
	}
}

// staticFetcher serves the snapshots in order and repeats the last one.
func staticFetcher(snapshots ...*datamodel.Snapshot) fetcherFunc {
	calls := 0

	return func(ctx context.Context) (*datamodel.Snapshot, error) {
		idx := calls
		if idx >= len(snapshots) {
			idx = len(snapshots) - 1
		}

		calls++

		return snapshots[idx], nil
	}
}

func passingAuditor() auditorFunc {
	return func(ctx context.Context, fileID, blockID string) (bool, error) {
		return true, nil
	}
}

func newTestReconciler(t *testing.T, deps Deps) *Reconciler {
	t.Helper()

	if deps.Overlay == nil {
		deps.Overlay = caching.NewInMemoryCache(time.Minute)
	}

	if deps.Auditor == nil {
		deps.Auditor = passingAuditor()
	}

	r := NewReconciler(testSettings(t), deps)
	r.now = func() time.Time { return testNow }

	return r
}

func sampleSnapshot() *datamodel.Snapshot {
	return &datamodel.Snapshot{
		Renters: []datamodel.Renter{
			{ID: "r1", Alias: "alice", Balance: 50},
			{ID: "r2", Alias: "bob", Balance: 10},
		},
		Providers: []datamodel.Provider{
			{ID: "p1", SpaceAvail: 1000, Balance: 5, StorageRate: 2},
			{ID: "p2", SpaceAvail: 2000, Balance: 7, StorageRate: 3},
		},
		Contracts: []datamodel.Contract{
			{RenterID: "r1", ProviderID: "p1", StorageSpace: 100, StartDate: testNow.AddDate(0, 0, -1)},
			{RenterID: "r1", ProviderID: "p1", StorageSpace: 200, StartDate: testNow.AddDate(0, 0, -2)},
			{RenterID: "r2", ProviderID: "p2", StorageSpace: 300, StartDate: testNow},
		},
		Files: []datamodel.File{
			{
				ID:      "f1",
				Name:    "report.txt",
				OwnerID: "r1",
				Versions: []datamodel.Version{
					{
						Num:        1,
						Size:       40,
						UploadSize: 45,
						UploadTime: testNow.AddDate(0, 0, -1),
						Blocks: []datamodel.Block{
							{ID: "b1", Location: datamodel.BlockLocation{ProviderID: "p1"}, AuditPassed: true},
							{ID: "b2", Location: datamodel.BlockLocation{ProviderID: "p1"}, AuditPassed: true},
							{ID: "b3", Location: datamodel.BlockLocation{ProviderID: "p2"}, AuditPassed: true},
						},
					},
				},
			},
			{
				ID:      "f2",
				Name:    "notes.md",
				OwnerID: "r2",
				Versions: []datamodel.Version{
					{
						Num:        1,
						Size:       8,
						UploadSize: 9,
						UploadTime: testNow,
						Blocks: []datamodel.Block{
							{ID: "b4", Location: datamodel.BlockLocation{ProviderID: "p2"}, AuditPassed: false},
						},
					},
				},
			},
		},
	}
}

func findFileEntry(detail *NodeDetail, name string) *FileEntry {
	if detail == nil {
		return nil
	}

	for i := range detail.Files {
		if detail.Files[i].Name == name {
			return &detail.Files[i]
		}
	}

	return nil
}

func findBlockEntry(file *FileEntry, blockID string) *BlockEntry {
	if file == nil {
		return nil
	}

	for i := range file.Blocks {
		if file.Blocks[i].ID == blockID {
			return &file.Blocks[i]
		}
	}

	return nil
}
