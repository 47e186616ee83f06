package service

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	log "github.com/sirupsen/logrus"

	"storage-dashboard/caching"
	"storage-dashboard/goutils/datamodel"
)

const lastSnapshotFile = "last_snapshot.json"

type archivedSnapshot struct {
	RefreshedAt time.Time           `json:"refreshedAt"`
	Snapshot    *datamodel.Snapshot `json:"snapshot"`
}

// persist writes a freshly applied snapshot through to redis and the local archive.
// Failures are logged only, the in-memory state is already updated.
func (r *Reconciler) persist(ctx context.Context, snapshot *datamodel.Snapshot, refreshedAt time.Time) {
	if r.deps.DbCache != nil {
		err := r.deps.DbCache.StoreSnapshot(ctx, snapshot, refreshedAt)
		if err != nil {
			log.WithError(err).Warn("failed to store snapshot in redis")
		}
	}

	if r.deps.DiskCache == nil || !r.settingsObj.Reconciler.ArchiveSnapshots {
		return
	}

	data, err := json.Marshal(&archivedSnapshot{RefreshedAt: refreshedAt, Snapshot: snapshot})
	if err != nil {
		log.WithError(err).Error("failed to marshal snapshot for archive")

		return
	}

	archivePath := filepath.Join(caching.SnapshotsDir(r.settingsObj.LocalCachePath), fmt.Sprintf("%d.json", refreshedAt.UnixMilli()))

	for _, path := range []string{archivePath, filepath.Join(r.settingsObj.LocalCachePath, lastSnapshotFile)} {
		err = r.deps.DiskCache.Write(path, data)
		if err != nil {
			log.WithError(err).WithField("path", path).Warn("failed to archive snapshot")
		}
	}
}

func (r *Reconciler) readArchivedSnapshot() (*datamodel.Snapshot, time.Time) {
	if r.deps.DiskCache == nil {
		return nil, time.Time{}
	}

	path := filepath.Join(r.settingsObj.LocalCachePath, lastSnapshotFile)

	data, err := r.deps.DiskCache.Read(path)
	if err != nil {
		log.WithError(err).WithField("path", path).Debug("no archived snapshot on disk")

		return nil, time.Time{}
	}

	archived := new(archivedSnapshot)

	err = json.Unmarshal(data, archived)
	if err == nil && archived.Snapshot != nil {
		err = r.validate.Struct(archived.Snapshot)
	}

	if err != nil || archived.Snapshot == nil {
		log.WithError(err).WithField("path", path).Warn("archived snapshot is corrupt, ignoring it")

		return nil, time.Time{}
	}

	return archived.Snapshot, archived.RefreshedAt
}

func (r *Reconciler) loadUIState(ctx context.Context) ([]string, string) {
	expandedFiles, err := r.deps.DbCache.GetExpandedFiles(ctx)
	if err != nil {
		log.WithError(err).Warn("failed to restore expanded files")
	}

	selected, err := r.deps.DbCache.GetSelectedNode(ctx)
	if err != nil {
		log.WithError(err).Warn("failed to restore selected node")
	}

	return expandedFiles, selected
}
