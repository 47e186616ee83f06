package taskmgr

import (
	"context"
	"errors"
)

type Topic string

const (
	TopicAuditCompleted Topic = "audit-completed"
)

// TaskMgr publishes dashboard events for other services of the storage network.
type TaskMgr interface {
	Publish(ctx context.Context, topic Topic, body []byte) error
	Shutdown(ctx context.Context) error
}

var (
	ErrPublisherInitFailed = errors.New("failed to initialize publisher")
	ErrPublishFailed       = errors.New("failed to publish message")
	ErrUnknownTopic        = errors.New("unknown topic")
)
