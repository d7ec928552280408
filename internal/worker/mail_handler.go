package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"prepkitty/internal/mail"
	"prepkitty/internal/tasks"
)

// VerificationEmailHandler 消费 mail:verification 任务。
type VerificationEmailHandler struct {
	sender mail.Sender
	logger *slog.Logger
}

// NewVerificationEmailHandler 创建邮件任务处理器。
func NewVerificationEmailHandler(sender mail.Sender, logger *slog.Logger) *VerificationEmailHandler {
	return &VerificationEmailHandler{sender: sender, logger: logger}
}

// ProcessTask 实现 asynq.Handler。发送失败时返回错误交给 asynq 重试。
func (h *VerificationEmailHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload tasks.VerificationEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
	}

	log := h.logger.With(slog.String("correlation_id", payload.CorrelationID))
	if err := h.sender.SendVerification(ctx, payload.Email, payload.Name, payload.Token); err != nil {
		log.Error("send verification email failed", slog.Any("error", err))
		return err
	}
	log.Info("verification email sent")
	return nil
}
