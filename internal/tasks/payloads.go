// Package tasks 定义 API 与 worker 之间共享的 asynq 任务。
package tasks

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

// 任务类型常量，确保队列生产者与消费者一致。
const (
	TypeVerificationEmail = "mail:verification"
	TypeCVRender          = "cv:render"
)

// 队列名称。
const (
	QueueCritical = "critical"
	QueueDefault  = "default"
)

// MaxRetry 是所有任务的重试上限。
const MaxRetry = 5

// VerificationEmailPayload 描述一封验证邮件。
type VerificationEmailPayload struct {
	Email         string `json:"email"`
	Name          string `json:"name"`
	Token         string `json:"token"`
	CorrelationID string `json:"correlation_id"`
}

// CVRenderPayload 描述一次 CV 渲染请求。
type CVRenderPayload struct {
	UserID        uint   `json:"user_id"`
	CorrelationID string `json:"correlation_id"`
}

// NewVerificationEmailTask 构造验证邮件任务。
func NewVerificationEmailTask(p VerificationEmailPayload) (*asynq.Task, error) {
	if p.Email == "" || p.Token == "" {
		return nil, fmt.Errorf("verification email payload requires email and token")
	}
	payload, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeVerificationEmail, payload,
		asynq.Queue(QueueCritical),
		asynq.MaxRetry(MaxRetry),
		asynq.Timeout(30*time.Second),
	), nil
}

// NewCVRenderTask 构造 CV 渲染任务。同一用户在渲染完成前重复提交会被 Unique 去重。
func NewCVRenderTask(userID uint, correlationID string) (*asynq.Task, error) {
	payload, err := json.Marshal(CVRenderPayload{
		UserID:        userID,
		CorrelationID: correlationID,
	})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeCVRender, payload,
		asynq.Queue(QueueDefault),
		asynq.MaxRetry(MaxRetry),
		asynq.Timeout(2*time.Minute),
		asynq.Unique(2*time.Minute),
	), nil
}

// NotifyChannel 返回用户通知所用的 Redis Pub/Sub 频道。
func NotifyChannel(userID uint) string {
	return fmt.Sprintf("user_notify:%d", userID)
}
