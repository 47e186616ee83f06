package mock

import (
	"context"
	"time"

	"storage-dashboard/goutils/datamodel"
)

type RedisMock struct {
	GetLastSnapshotMock      func(ctx context.Context) (*datamodel.Snapshot, time.Time, error)
	StoreSnapshotMock        func(ctx context.Context, snapshot *datamodel.Snapshot, refreshedAt time.Time) error
	GetExpandedFilesMock     func(ctx context.Context) ([]string, error)
	SetFileExpandedMock      func(ctx context.Context, fileName string, expanded bool) error
	GetSelectedNodeMock      func(ctx context.Context) (string, error)
	SetSelectedNodeMock      func(ctx context.Context, nodeID string) error
	StoreFileAuditStatusMock func(ctx context.Context, fileID string, status datamodel.AuditStatus) error
}

func (m RedisMock) GetLastSnapshot(ctx context.Context) (*datamodel.Snapshot, time.Time, error) {
	return m.GetLastSnapshotMock(ctx)
}

func (m RedisMock) StoreSnapshot(ctx context.Context, snapshot *datamodel.Snapshot, refreshedAt time.Time) error {
	return m.StoreSnapshotMock(ctx, snapshot, refreshedAt)
}

func (m RedisMock) GetExpandedFiles(ctx context.Context) ([]string, error) {
	return m.GetExpandedFilesMock(ctx)
}

func (m RedisMock) SetFileExpanded(ctx context.Context, fileName string, expanded bool) error {
	return m.SetFileExpandedMock(ctx, fileName, expanded)
}

func (m RedisMock) GetSelectedNode(ctx context.Context) (string, error) {
	return m.GetSelectedNodeMock(ctx)
}

func (m RedisMock) SetSelectedNode(ctx context.Context, nodeID string) error {
	return m.SetSelectedNodeMock(ctx, nodeID)
}

func (m RedisMock) StoreFileAuditStatus(ctx context.Context, fileID string, status datamodel.AuditStatus) error {
	return m.StoreFileAuditStatusMock(ctx, fileID, status)
}
