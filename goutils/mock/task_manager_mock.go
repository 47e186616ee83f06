package mock

import (
	"context"

	"storage-dashboard/goutils/taskmgr"
)

type TaskManagerMock struct {
	PublishMock  func(ctx context.Context, topic taskmgr.Topic, body []byte) error
	ShutdownMock func(ctx context.Context) error
}

func (m TaskManagerMock) Publish(ctx context.Context, topic taskmgr.Topic, body []byte) error {
	return m.PublishMock(ctx, topic, body)
}

func (m TaskManagerMock) Shutdown(ctx context.Context) error {
	return m.ShutdownMock(ctx)
}
