package api

import (
	"context"
	"io"
	"time"

	"github.com/hibiken/asynq"
)

// TaskEnqueuer 是 asynq.Client 的投递能力。
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// CVStore 是 CV 接口用到的对象存储能力，由 *storage.Client 实现。
type CVStore interface {
	UploadFile(ctx context.Context, objectKey string, reader io.Reader, size int64, contentType string) (string, error)
	StatObject(ctx context.Context, objectKey string) (bool, error)
	GeneratePresignedURL(ctx context.Context, objectKey string, ttl time.Duration, filename string) (string, error)
	DeleteObject(ctx context.Context, objectKey string) error
}
