package caching

import (
	"context"
	"errors"
	"time"

	"storage-dashboard/goutils/datamodel"
)

// DbCache is responsible for persisting reconciler state in db stores like redis, memcache etc.
// for disk caching use DiskCache interface
type DbCache interface {
	GetLastSnapshot(ctx context.Context) (*datamodel.Snapshot, time.Time, error)
	StoreSnapshot(ctx context.Context, snapshot *datamodel.Snapshot, refreshedAt time.Time) error
	GetExpandedFiles(ctx context.Context) ([]string, error)
	SetFileExpanded(ctx context.Context, fileName string, expanded bool) error
	GetSelectedNode(ctx context.Context) (string, error)
	SetSelectedNode(ctx context.Context, nodeID string) error
	StoreFileAuditStatus(ctx context.Context, fileID string, status datamodel.AuditStatus) error
}

// DiskCache is responsible for data caching in local disk
type DiskCache interface {
	Read(filepath string) ([]byte, error)
	Write(filepath string, data []byte) error
}

type MemCache interface {
	Get(key string) (interface{}, bool)
	Set(key string, value interface{}) error
	Delete(key string)
}

var (
	ErrNotFound        = errors.New("not found in cache")
	ErrGettingSnapshot = errors.New("error getting last snapshot")
	ErrCorruptSnapshot = errors.New("cached snapshot could not be decoded")
)
