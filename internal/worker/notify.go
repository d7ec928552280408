package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"prepkitty/internal/tasks"
)

// 通知类型。
const NotifyTypeCVRender = "cv_render"

// 通知状态。
const (
	StatusCompleted = "completed"
	StatusError     = "error"
)

// NotifyMessage 通过 Redis Pub/Sub 转发给 WebSocket 客户端。
// 字段名与前端解析保持一致。
type NotifyMessage struct {
	Type          string `json:"type"`
	Status        string `json:"status"`
	ObjectKey     string `json:"object_key,omitempty"`
	CorrelationID string `json:"correlation_id"`
	ErrorCode     int    `json:"error_code"`
	ErrorMessage  string `json:"error_message"`
}

// Publisher 是 redis.Client 中用到的发布能力。
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

func publishNotify(ctx context.Context, pub Publisher, userID uint, msg NotifyMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal notification payload: %w", err)
	}
	channel := tasks.NotifyChannel(userID)
	if err := pub.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("publish redis notification to %q: %w", channel, err)
	}
	return nil
}

// isFinalAttempt 判断当前是否为最后一次重试，非 asynq 上下文返回 false。
func isFinalAttempt(ctx context.Context) bool {
	retryCount, ok1 := asynq.GetRetryCount(ctx)
	maxRetry, ok2 := asynq.GetMaxRetry(ctx)
	if !ok1 || !ok2 {
		return false
	}
	return retryCount >= maxRetry
}
