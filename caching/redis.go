package caching

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	log "github.com/sirupsen/logrus"
	"github.com/swagftw/gi"

	"storage-dashboard/goutils/datamodel"
	"storage-dashboard/goutils/redisutils"
)

type RedisCache struct {
	redisClient *redis.Client
	instanceID  string
}

var _ DbCache = (*RedisCache)(nil)

func NewRedisCache(client *redis.Client, instanceID string) *RedisCache {
	cache := &RedisCache{redisClient: client, instanceID: instanceID}

	err := gi.Inject(cache)
	if err != nil {
		log.WithError(err).Fatal("failed to inject redis cache")
	}

	return cache
}

func (r *RedisCache) key(format string) string {
	return fmt.Sprintf(format, r.instanceID)
}

// GetLastSnapshot returns the last snapshot stored by StoreSnapshot and the time it was refreshed at.
func (r *RedisCache) GetLastSnapshot(ctx context.Context) (*datamodel.Snapshot, time.Time, error) {
	key := r.key(redisutils.REDIS_KEY_LAST_SNAPSHOT)

	val, err := r.redisClient.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			log.WithField("key", key).Debug("no snapshot stored in redis yet")

			return nil, time.Time{}, ErrNotFound
		}

		log.WithError(err).Error("failed to get last snapshot from redis")

		return nil, time.Time{}, ErrGettingSnapshot
	}

	snapshot := new(datamodel.Snapshot)

	err = json.Unmarshal([]byte(val), snapshot)
	if err != nil {
		log.WithError(err).Error("failed to unmarshal snapshot stored in redis")

		return nil, time.Time{}, ErrCorruptSnapshot
	}

	refreshedAt := time.Time{}

	millis, err := r.redisClient.Get(ctx, r.key(redisutils.REDIS_KEY_LAST_REFRESHED)).Int64()
	if err == nil {
		refreshedAt = time.UnixMilli(millis)
	} else if err != redis.Nil {
		log.WithError(err).Warn("failed to get last refreshed time from redis")
	}

	return snapshot, refreshedAt, nil
}

func (r *RedisCache) StoreSnapshot(ctx context.Context, snapshot *datamodel.Snapshot, refreshedAt time.Time) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		log.WithError(err).Error("failed to marshal snapshot")

		return err
	}

	err = r.redisClient.Set(ctx, r.key(redisutils.REDIS_KEY_LAST_SNAPSHOT), data, 0).Err()
	if err != nil {
		log.WithError(err).Error("failed to store snapshot in redis")

		return err
	}

	err = r.redisClient.Set(ctx, r.key(redisutils.REDIS_KEY_LAST_REFRESHED), strconv.FormatInt(refreshedAt.UnixMilli(), 10), 0).Err()
	if err != nil {
		log.WithError(err).Error("failed to store last refreshed time in redis")

		return err
	}

	return nil
}

// GetExpandedFiles returns the names of files whose block lists are expanded.
func (r *RedisCache) GetExpandedFiles(ctx context.Context) ([]string, error) {
	key := r.key(redisutils.REDIS_KEY_EXPANDED_FILES)

	val, err := r.redisClient.SMembers(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return []string{}, nil
		}

		log.WithError(err).WithField("key", key).Error("failed to get expanded files from redis")

		return nil, err
	}

	return val, nil
}

func (r *RedisCache) SetFileExpanded(ctx context.Context, fileName string, expanded bool) error {
	key := r.key(redisutils.REDIS_KEY_EXPANDED_FILES)

	var err error
	if expanded {
		err = r.redisClient.SAdd(ctx, key, fileName).Err()
	} else {
		err = r.redisClient.SRem(ctx, key, fileName).Err()
	}

	if err != nil {
		log.WithError(err).WithField("file", fileName).Error("failed to update expanded files in redis")
	}

	return err
}

// GetSelectedNode returns an empty id when nothing is selected.
func (r *RedisCache) GetSelectedNode(ctx context.Context) (string, error) {
	val, err := r.redisClient.Get(ctx, r.key(redisutils.REDIS_KEY_SELECTED_NODE)).Result()
	if err != nil {
		if err == redis.Nil {
			return "", nil
		}

		return "", err
	}

	return val, nil
}

// SetSelectedNode stores the selection, an empty id clears it.
func (r *RedisCache) SetSelectedNode(ctx context.Context, nodeID string) error {
	key := r.key(redisutils.REDIS_KEY_SELECTED_NODE)

	if nodeID == "" {
		return r.redisClient.Del(ctx, key).Err()
	}

	return r.redisClient.Set(ctx, key, nodeID, 0).Err()
}

func (r *RedisCache) StoreFileAuditStatus(ctx context.Context, fileID string, status datamodel.AuditStatus) error {
	err := r.redisClient.HSet(ctx, r.key(redisutils.REDIS_KEY_FILE_AUDIT_STATUS), fileID, string(status)).Err()
	if err != nil {
		log.WithError(err).WithField("fileID", fileID).Error("failed to store file audit status in redis")
	}

	return err
}
