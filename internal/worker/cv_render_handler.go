package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/hibiken/asynq"
	"gorm.io/gorm"

	"prepkitty/internal/cvrender"
	"prepkitty/internal/database"
	"prepkitty/internal/errcode"
	"prepkitty/internal/storage"
	"prepkitty/internal/tasks"
)

// ObjectStore 是渲染任务使用的对象存储能力。
type ObjectStore interface {
	UploadFile(ctx context.Context, objectKey string, reader io.Reader, size int64, contentType string) (string, error)
	DeleteObject(ctx context.Context, objectKey string) error
}

// CVRenderHandler 消费 cv:render 任务：渲染 PDF、上传、回写对象键并通知用户。
type CVRenderHandler struct {
	db        *gorm.DB
	store     ObjectStore
	renderer  cvrender.PDFRenderer
	publisher Publisher
	logger    *slog.Logger
}

// NewCVRenderHandler 创建任务处理器。
func NewCVRenderHandler(db *gorm.DB, store ObjectStore, renderer cvrender.PDFRenderer, publisher Publisher, logger *slog.Logger) *CVRenderHandler {
	return &CVRenderHandler{
		db:        db,
		store:     store,
		renderer:  renderer,
		publisher: publisher,
		logger:    logger,
	}
}

// ProcessTask 实现 asynq.Handler。
func (h *CVRenderHandler) ProcessTask(ctx context.Context, t *asynq.Task) (retErr error) {
	var payload tasks.CVRenderPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		h.logger.Error("unmarshal cv render payload failed", slog.Any("error", err))
		return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
	}

	log := h.logger.With(
		slog.String("correlation_id", payload.CorrelationID),
		slog.Uint64("user_id", uint64(payload.UserID)),
	)
	log.Info("starting cv render task")

	fail := func(code int, err error) error {
		h.notify(ctx, log, payload, NotifyMessage{
			Status:       StatusError,
			ErrorCode:    code,
			ErrorMessage: errcode.Message(code),
		})
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	defer func() {
		if retErr == nil || errors.Is(retErr, asynq.SkipRetry) || !isFinalAttempt(ctx) {
			return
		}
		h.notify(ctx, log, payload, NotifyMessage{
			Status:       StatusError,
			ErrorCode:    errcode.SystemError,
			ErrorMessage: strings.TrimSpace(retErr.Error()),
		})
	}()

	var user database.User
	err := h.db.WithContext(ctx).Preload("PracticeProfile").First(&user, payload.UserID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		log.Warn("user not found, skipping task")
		return nil
	}
	if err != nil {
		log.Error("query user failed", slog.Any("error", err))
		return err
	}
	if user.PracticeProfile == nil {
		log.Warn("practice profile missing")
		return fail(errcode.ProfileMissing, errors.New("practice profile missing"))
	}
	profile := *user.PracticeProfile

	data, err := cvrender.FromProfile(user, profile)
	if err != nil {
		log.Warn("invalid employment history", slog.Any("error", err))
		return fail(errcode.InvalidProfile, err)
	}
	html, err := cvrender.RenderHTML(data)
	if err != nil {
		return err
	}

	pdfBytes, err := h.renderer.RenderPDF(ctx, html)
	if err != nil {
		log.Error("render cv pdf failed", slog.Any("error", err))
		return err
	}

	objectKey := storage.GeneratedCVKey(user.ID)
	if _, err := h.store.UploadFile(ctx, objectKey, bytes.NewReader(pdfBytes), int64(len(pdfBytes)), storage.ContentTypePDF); err != nil {
		log.Error("upload cv pdf failed", slog.Any("error", err))
		return err
	}

	if err := h.db.WithContext(ctx).Model(&database.PracticeProfile{}).
		Where("id = ?", profile.ID).
		Update("cv_object_key", objectKey).Error; err != nil {
		log.Error("update practice profile failed", slog.Any("error", err))
		return err
	}

	if previous := profile.CVObjectKey; previous != "" && previous != objectKey {
		if err := h.store.DeleteObject(ctx, previous); err != nil {
			log.Warn("delete previous cv failed", slog.String("object_key", previous), slog.Any("error", err))
		}
	}

	if err := publishNotify(ctx, h.publisher, user.ID, NotifyMessage{
		Type:          NotifyTypeCVRender,
		Status:        StatusCompleted,
		ObjectKey:     objectKey,
		CorrelationID: payload.CorrelationID,
		ErrorCode:     errcode.OK,
	}); err != nil {
		log.Warn("publish completion notification failed", slog.Any("error", err))
	}

	log.Info("cv render task completed", slog.String("object_key", objectKey), slog.Int("bytes", len(pdfBytes)))
	return nil
}

func (h *CVRenderHandler) notify(ctx context.Context, log *slog.Logger, payload tasks.CVRenderPayload, msg NotifyMessage) {
	msg.Type = NotifyTypeCVRender
	msg.CorrelationID = payload.CorrelationID
	if err := publishNotify(ctx, h.publisher, payload.UserID, msg); err != nil {
		log.Error("publish cv error notification failed", slog.Any("error", err))
	}
}
