package service

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"storage-dashboard/caching"
	"storage-dashboard/goutils/datamodel"
	"storage-dashboard/goutils/mock"
)

func TestReconciler_FetchFailureKeepsState(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantErr error
	}{
		{name: "metaserver down", err: ErrSnapshotUnavailable, wantErr: ErrSnapshotUnavailable},
		{name: "malformed payload", err: ErrMalformedSnapshot, wantErr: ErrMalformedSnapshot},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			fetcher := fetcherFunc(func(ctx context.Context) (*datamodel.Snapshot, error) {
				calls++
				if calls == 1 {
					return sampleSnapshot(), nil
				}

				return nil, tt.err
			})

			r := newTestReconciler(t, Deps{Fetcher: fetcher})

			assert.NoError(t, r.Fetch(context.Background()))
			before := r.Summary()

			r.now = func() time.Time { return testNow.Add(time.Minute) }

			err := r.Fetch(context.Background())
			assert.ErrorIs(t, err, tt.wantErr)

			after := r.Summary()
			assert.Equal(t, before, after)
			assert.Equal(t, 2, after.Renters)
			assert.Equal(t, 2, after.Providers)
			assert.Equal(t, 2, after.Files)
			assert.Equal(t, testNow, after.LastRefreshed)
		})
	}
}

func TestReconciler_FetchBeforeFirstSnapshot(t *testing.T) {
	r := newTestReconciler(t, Deps{Fetcher: fetcherFunc(func(ctx context.Context) (*datamodel.Snapshot, error) {
		return nil, ErrSnapshotUnavailable
	})})

	assert.Error(t, r.Fetch(context.Background()))

	snapshot, refreshedAt := r.Snapshot()
	assert.Nil(t, snapshot)
	assert.True(t, refreshedAt.IsZero())
	assert.Nil(t, r.Detail())
}

func TestReconciler_ExpandedFileSurvivesNewVersion(t *testing.T) {
	next := sampleSnapshot()
	// freshly deserialized file, new id and an extra version, same name
	next.Files[0].ID = "f1-reuploaded"
	next.Files[0].Versions = append(next.Files[0].Versions, datamodel.Version{
		Num:    2,
		Size:   99,
		Blocks: []datamodel.Block{{ID: "b7", Location: datamodel.BlockLocation{ProviderID: "p1"}}},
	})

	r := newTestReconciler(t, Deps{Fetcher: staticFetcher(sampleSnapshot(), next)})
	ctx := context.Background()

	assert.NoError(t, r.Fetch(ctx))

	_, err := r.SelectNode(ctx, "r1")
	assert.NoError(t, err)
	assert.True(t, r.ToggleFile(ctx, "report.txt"))

	assert.NoError(t, r.Fetch(ctx))

	file := findFileEntry(r.Detail(), "report.txt")
	assert.NotNil(t, file)
	assert.True(t, file.Expanded)
	assert.Equal(t, 2, file.Versions)
	assert.Equal(t, "b7", file.Blocks[0].ID)

	assert.False(t, r.ToggleFile(ctx, "report.txt"))
	assert.False(t, findFileEntry(r.Detail(), "report.txt").Expanded)
}

func TestReconciler_SelectionClearedWhenNodeLeaves(t *testing.T) {
	next := sampleSnapshot()
	next.Renters = next.Renters[:1]

	r := newTestReconciler(t, Deps{Fetcher: staticFetcher(sampleSnapshot(), next)})
	ctx := context.Background()

	assert.NoError(t, r.Fetch(ctx))

	detail, err := r.SelectNode(ctx, "r2")
	assert.NoError(t, err)
	assert.Equal(t, "r2", detail.NodeID)

	assert.NoError(t, r.Fetch(ctx))

	assert.Nil(t, r.Detail())
	assert.Empty(t, r.Summary().SelectedNode)

	nodes, _ := r.Graph()
	for _, node := range nodes {
		assert.False(t, node.Selected, node.ID)
	}
}

func TestReconciler_SelectedDetailFollowsSnapshot(t *testing.T) {
	next := sampleSnapshot()
	next.Contracts = append(next.Contracts, datamodel.Contract{RenterID: "r1", ProviderID: "p2", StorageSpace: 700})

	r := newTestReconciler(t, Deps{Fetcher: staticFetcher(sampleSnapshot(), next)})
	ctx := context.Background()

	assert.NoError(t, r.Fetch(ctx))

	detail, err := r.SelectNode(ctx, "r1")
	assert.NoError(t, err)
	assert.Equal(t, int64(300), detail.Renter.StorageReserved)

	assert.NoError(t, r.Fetch(ctx))
	assert.Equal(t, int64(1000), r.Detail().Renter.StorageReserved)

	nodes, edges := r.Graph()
	assert.Len(t, nodes, 4)
	assert.Len(t, edges, 3)
}

func TestReconciler_SelectUnknownNode(t *testing.T) {
	r := newTestReconciler(t, Deps{Fetcher: staticFetcher(sampleSnapshot())})
	ctx := context.Background()

	assert.NoError(t, r.Fetch(ctx))

	_, err := r.SelectNode(ctx, "nobody")
	assert.ErrorIs(t, err, ErrNodeNotFound)

	r.ClearSelection(ctx)
	assert.Nil(t, r.Detail())
}

func TestReconciler_PersistsSnapshot(t *testing.T) {
	var (
		stored     *datamodel.Snapshot
		storedAt   time.Time
		writtenMu  sync.Mutex
		written    = map[string][]byte{}
		selections []string
		expanded   = map[string]bool{}
	)

	redisMock := mock.RedisMock{
		StoreSnapshotMock: func(ctx context.Context, snapshot *datamodel.Snapshot, refreshedAt time.Time) error {
			stored = snapshot
			storedAt = refreshedAt

			return nil
		},
		SetSelectedNodeMock: func(ctx context.Context, nodeID string) error {
			selections = append(selections, nodeID)

			return nil
		},
		SetFileExpandedMock: func(ctx context.Context, fileName string, isExpanded bool) error {
			expanded[fileName] = isExpanded

			return nil
		},
	}

	diskMock := mock.DiskMock{
		WriteMock: func(path string, data []byte) error {
			writtenMu.Lock()
			defer writtenMu.Unlock()

			written[path] = data

			return nil
		},
	}

	r := newTestReconciler(t, Deps{
		Fetcher:   staticFetcher(sampleSnapshot()),
		DbCache:   redisMock,
		DiskCache: diskMock,
	})
	r.settingsObj.Reconciler.ArchiveSnapshots = true
	r.settingsObj.Reconciler.PersistUIState = true

	ctx := context.Background()

	assert.NoError(t, r.Fetch(ctx))
	assert.NotNil(t, stored)
	assert.Equal(t, testNow, storedAt)

	archivePath := filepath.Join(caching.SnapshotsDir(r.settingsObj.LocalCachePath), "1773489600000.json")
	assert.Contains(t, written, archivePath)
	assert.Contains(t, written, filepath.Join(r.settingsObj.LocalCachePath, lastSnapshotFile))

	archived := new(archivedSnapshot)
	assert.NoError(t, json.Unmarshal(written[archivePath], archived))
	assert.Len(t, archived.Snapshot.Renters, 2)
	assert.True(t, archived.RefreshedAt.Equal(testNow))

	_, err := r.SelectNode(ctx, "p1")
	assert.NoError(t, err)
	r.ClearSelection(ctx)
	r.ToggleFile(ctx, "report.txt")

	assert.Equal(t, []string{"p1", ""}, selections)
	assert.Equal(t, map[string]bool{"report.txt": true}, expanded)
}

func TestReconciler_WarmFromRedis(t *testing.T) {
	redisMock := mock.RedisMock{
		GetLastSnapshotMock: func(ctx context.Context) (*datamodel.Snapshot, time.Time, error) {
			return sampleSnapshot(), testNow.Add(-time.Hour), nil
		},
		GetExpandedFilesMock: func(ctx context.Context) ([]string, error) {
			return []string{"report.txt"}, nil
		},
		GetSelectedNodeMock: func(ctx context.Context) (string, error) {
			return "r1", nil
		},
	}

	r := newTestReconciler(t, Deps{Fetcher: staticFetcher(sampleSnapshot()), DbCache: redisMock})
	r.settingsObj.Reconciler.PersistUIState = true

	r.Warm(context.Background())

	summary := r.Summary()
	assert.Equal(t, 2, summary.Renters)
	assert.Equal(t, testNow.Add(-time.Hour), summary.LastRefreshed)
	assert.Equal(t, "r1", summary.SelectedNode)

	file := findFileEntry(r.Detail(), "report.txt")
	assert.NotNil(t, file)
	assert.True(t, file.Expanded)
}

func TestReconciler_WarmFallsBackToDisk(t *testing.T) {
	archived, err := json.Marshal(&archivedSnapshot{RefreshedAt: testNow, Snapshot: sampleSnapshot()})
	assert.NoError(t, err)

	redisMock := mock.RedisMock{
		GetLastSnapshotMock: func(ctx context.Context) (*datamodel.Snapshot, time.Time, error) {
			return nil, time.Time{}, caching.ErrNotFound
		},
	}

	var readPath string

	diskMock := mock.DiskMock{
		ReadMock: func(path string) ([]byte, error) {
			readPath = path

			return archived, nil
		},
	}

	r := newTestReconciler(t, Deps{Fetcher: staticFetcher(sampleSnapshot()), DbCache: redisMock, DiskCache: diskMock})

	r.Warm(context.Background())

	assert.Equal(t, filepath.Join(r.settingsObj.LocalCachePath, lastSnapshotFile), readPath)
	assert.Equal(t, 2, r.Summary().Providers)
	assert.True(t, r.Summary().LastRefreshed.Equal(testNow))
}

func TestReconciler_WarmRejectsInvalidSnapshot(t *testing.T) {
	invalid := sampleSnapshot()
	invalid.Renters = append(invalid.Renters, datamodel.Renter{Alias: "no-id"})

	invalidArchive, err := json.Marshal(&archivedSnapshot{RefreshedAt: testNow, Snapshot: invalid})
	assert.NoError(t, err)

	validArchive, err := json.Marshal(&archivedSnapshot{RefreshedAt: testNow, Snapshot: sampleSnapshot()})
	assert.NoError(t, err)

	tests := []struct {
		name         string
		archive      []byte
		wantRenters  int
		wantRestored bool
	}{
		{name: "falls back to a valid archive", archive: validArchive, wantRenters: 2, wantRestored: true},
		{name: "invalid everywhere", archive: invalidArchive, wantRenters: 0, wantRestored: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			redisMock := mock.RedisMock{
				GetLastSnapshotMock: func(ctx context.Context) (*datamodel.Snapshot, time.Time, error) {
					return invalid, testNow.Add(-time.Hour), nil
				},
				GetExpandedFilesMock: func(ctx context.Context) ([]string, error) {
					return nil, nil
				},
				GetSelectedNodeMock: func(ctx context.Context) (string, error) {
					return "", nil
				},
			}

			diskMock := mock.DiskMock{
				ReadMock: func(path string) ([]byte, error) {
					return tt.archive, nil
				},
			}

			r := newTestReconciler(t, Deps{Fetcher: staticFetcher(sampleSnapshot()), DbCache: redisMock, DiskCache: diskMock})
			r.Warm(context.Background())

			snapshot, _ := r.Snapshot()
			assert.Equal(t, tt.wantRestored, snapshot != nil)
			assert.Equal(t, tt.wantRenters, r.Summary().Renters)
		})
	}
}

func TestReconciler_WarmNeverOverwritesPoll(t *testing.T) {
	cached := sampleSnapshot()
	cached.Renters = append(cached.Renters, datamodel.Renter{ID: "r3"})

	redisMock := mock.RedisMock{
		GetLastSnapshotMock: func(ctx context.Context) (*datamodel.Snapshot, time.Time, error) {
			return cached, testNow.Add(-time.Hour), nil
		},
		StoreSnapshotMock: func(ctx context.Context, snapshot *datamodel.Snapshot, refreshedAt time.Time) error {
			return nil
		},
	}

	r := newTestReconciler(t, Deps{Fetcher: staticFetcher(sampleSnapshot()), DbCache: redisMock})

	assert.NoError(t, r.Fetch(context.Background()))
	r.Warm(context.Background())

	assert.Equal(t, 2, r.Summary().Renters)
	assert.Equal(t, testNow, r.Summary().LastRefreshed)
}

func TestReconciler_StalePollIsDropped(t *testing.T) {
	older := sampleSnapshot()
	newer := sampleSnapshot()
	newer.Renters = newer.Renters[:1]

	var calls int32

	started := make(chan struct{})
	release := make(chan struct{})

	fetcher := fetcherFunc(func(ctx context.Context) (*datamodel.Snapshot, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			close(started)
			<-release

			return older, nil
		}

		return newer, nil
	})

	r := newTestReconciler(t, Deps{Fetcher: fetcher})

	done := make(chan error)

	go func() {
		done <- r.Fetch(context.Background())
	}()

	<-started

	assert.NoError(t, r.Fetch(context.Background()))
	close(release)
	assert.NoError(t, <-done)

	assert.Equal(t, 1, r.Summary().Renters)
}

func TestReconciler_ReportsOutageOnce(t *testing.T) {
	var reports []datamodel.IssueType

	reporter := mock.ReportingServiceMock{
		ReportMock: func(issueType datamodel.IssueType, fileID string, extra map[string]interface{}) {
			reports = append(reports, issueType)
		},
	}

	r := newTestReconciler(t, Deps{
		Fetcher: fetcherFunc(func(ctx context.Context) (*datamodel.Snapshot, error) {
			return nil, errors.New("connection refused")
		}),
		Reporter: reporter,
	})
	r.settingsObj.RetryCount = 2

	for i := 0; i < 4; i++ {
		assert.Error(t, r.Fetch(context.Background()))
	}

	assert.Equal(t, []datamodel.IssueType{datamodel.SnapshotUnavailable}, reports)
}

func TestReconciler_StartAndStop(t *testing.T) {
	var calls int32

	fetcher := fetcherFunc(func(ctx context.Context) (*datamodel.Snapshot, error) {
		atomic.AddInt32(&calls, 1)

		return sampleSnapshot(), nil
	})

	r := newTestReconciler(t, Deps{Fetcher: fetcher})
	r.settingsObj.Reconciler.PollInterval = "@every 1s"

	assert.NoError(t, r.Start(context.Background()))
	defer r.Stop()

	// first poll runs before Start returns
	assert.GreaterOrEqual(t, atomic.LoadInt32(&calls), int32(1))
	assert.Equal(t, 2, r.Summary().Renters)

	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&calls) >= 2
	}, 3*time.Second, 50*time.Millisecond)
}

func TestReconciler_StartRejectsBadSchedule(t *testing.T) {
	r := newTestReconciler(t, Deps{Fetcher: staticFetcher(sampleSnapshot())})
	r.settingsObj.Reconciler.PollInterval = "every now and then"

	assert.Error(t, r.Start(context.Background()))
	r.Stop()
}
