package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"prepkitty/internal/api/middleware"
	"prepkitty/internal/cvparse"
	"prepkitty/internal/database"
	"prepkitty/internal/storage"
	"prepkitty/internal/tasks"
)

const (
	cvFormField         = "cv"
	cvDownloadFilename  = "cv.pdf"
	cvDownloadURLTTL    = 15 * time.Minute
	multipartOverhead   = 1 << 20
	defaultMaxCVUploads = 5 << 20
)

var pdfMagic = []byte("%PDF-")

// CVHandler 负责 CV 的编辑、上传解析、生成与下载。
type CVHandler struct {
	db             *gorm.DB
	store          CVStore
	queue          TaskEnqueuer
	scanner        VirusScanner
	logger         *slog.Logger
	maxUploadBytes int64
}

// NewCVHandler 构造 CVHandler。
func NewCVHandler(db *gorm.DB, store CVStore, queue TaskEnqueuer, scanner VirusScanner, logger *slog.Logger, maxUploadBytes int64) *CVHandler {
	if scanner == nil {
		scanner = noopScanner{}
	}
	if maxUploadBytes <= 0 {
		maxUploadBytes = defaultMaxCVUploads
	}
	return &CVHandler{
		db:             db,
		store:          store,
		queue:          queue,
		scanner:        scanner,
		logger:         logger,
		maxUploadBytes: maxUploadBytes,
	}
}

// EnsureProfile 确保当前用户拥有练习档案，并返回用户信息。
func (h *CVHandler) EnsureProfile(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	db := h.db.WithContext(c.Request.Context())
	logger := loggerFor(c, h.logger)

	var profile database.PracticeProfile
	if err := firstOrCreateProfile(db, userID, &profile); err != nil {
		logger.Error("ensure profile failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	user, err := loadUser(db, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "User not found")
			return
		}
		logger.Error("load user failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	c.JSON(http.StatusOK, newUserResponse(user))
}

type cvContent struct {
	Name                string                     `json:"name"`
	JobTitle            string                     `json:"jobTitle"`
	JobDescription      string                     `json:"jobDescription"`
	ProfessionalSummary string                     `json:"professionalSummary"`
	EmploymentHistory   []database.EmploymentEntry `json:"employmentHistory"`
	Projects            json.RawMessage            `json:"projects"`
	Skills              string                     `json:"skills"`
	AdditionalDetails   string                     `json:"additionalDetails"`
}

type updateCVRequest struct {
	Content *cvContent `json:"content"`
}

// UpdateCV 在同一事务内更新姓名与档案。路径中的 id 必须是当前用户。
func (h *CVHandler) UpdateCV(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	targetID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		BadRequest(c, "invalid user id")
		return
	}
	if uint(targetID) != userID {
		Forbidden(c, "Forbidden")
		return
	}

	var req updateCVRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Content == nil {
		BadRequest(c, "content is required")
		return
	}
	content := req.Content

	employment, err := encodeEmployment(content.EmploymentHistory)
	if err != nil {
		BadRequest(c, "invalid employment history")
		return
	}
	projects := datatypes.JSON("[]")
	if trimmed := bytes.TrimSpace(content.Projects); len(trimmed) > 0 && string(trimmed) != "null" {
		if trimmed[0] != '[' {
			BadRequest(c, "projects must be an array")
			return
		}
		projects = datatypes.JSON(trimmed)
	}

	db := h.db.WithContext(c.Request.Context())
	logger := loggerFor(c, h.logger).With(slog.Uint64("user_id", uint64(userID)))

	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&database.User{}).Where("id = ?", userID).
			Update("name", strings.TrimSpace(content.Name)).Error; err != nil {
			return err
		}
		var profile database.PracticeProfile
		if err := firstOrCreateProfile(tx, userID, &profile); err != nil {
			return err
		}
		return tx.Model(&profile).Updates(map[string]any{
			"job_title":            strings.TrimSpace(content.JobTitle),
			"job_description":      content.JobDescription,
			"professional_summary": content.ProfessionalSummary,
			"employment_history":   employment,
			"projects":             projects,
			"skills":               content.Skills,
			"additional_details":   content.AdditionalDetails,
		}).Error
	})
	if err != nil {
		logger.Error("update cv failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	user, err := loadUser(db, userID)
	if err != nil {
		logger.Error("reload user failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	logger.Info("cv updated")
	c.JSON(http.StatusOK, newUserResponse(user))
}

// UploadCV 接收 PDF，扫描病毒后提取文本并返回解析结果。原文件保存到对象存储。
func (h *CVHandler) UploadCV(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	ctx := c.Request.Context()
	logger := loggerFor(c, h.logger).With(slog.Uint64("user_id", uint64(userID)))

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes+multipartOverhead)
	file, err := c.FormFile(cvFormField)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			Error(c, http.StatusRequestEntityTooLarge, "file too large")
			return
		}
		BadRequest(c, "No file uploaded. Please upload a CV.")
		return
	}
	if file.Size > h.maxUploadBytes {
		Error(c, http.StatusRequestEntityTooLarge, "file too large")
		return
	}

	reader, err := file.Open()
	if err != nil {
		Internal(c, "failed to open file")
		return
	}
	data, err := io.ReadAll(io.LimitReader(reader, h.maxUploadBytes+1))
	reader.Close()
	if err != nil {
		Internal(c, "failed to read file")
		return
	}
	if int64(len(data)) > h.maxUploadBytes {
		Error(c, http.StatusRequestEntityTooLarge, "file too large")
		return
	}
	if !bytes.HasPrefix(data, pdfMagic) {
		BadRequest(c, "Unsupported file type. Only PDFs are allowed.")
		return
	}

	if err := h.scanner.Scan(ctx, bytes.NewReader(data)); err != nil {
		if errors.Is(err, ErrMaliciousFile) {
			logger.Warn("cv upload rejected by virus scan")
			BadRequest(c, "malicious file detected")
			return
		}
		logger.Error("scan file", slog.Any("error", err))
		Internal(c, "failed to scan file")
		return
	}

	text, err := cvparse.ExtractText(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		logger.Info("cv text extraction failed", slog.Any("error", err))
		Error(c, http.StatusUnprocessableEntity, "Error parsing the CV")
		return
	}
	extracted := cvparse.Parse(text)

	objectKey := storage.UploadedCVKey(userID)
	if _, err := h.store.UploadFile(ctx, objectKey, bytes.NewReader(data), int64(len(data)), storage.ContentTypePDF); err != nil {
		logger.Error("upload file", slog.Any("error", err))
		Internal(c, "failed to upload file")
		return
	}

	var previous string
	err = h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var profile database.PracticeProfile
		if err := firstOrCreateProfile(tx, userID, &profile); err != nil {
			return err
		}
		previous = profile.UploadedCVKey
		return tx.Model(&profile).Update("uploaded_cv_key", objectKey).Error
	})
	if err != nil {
		logger.Error("save uploaded cv key failed", slog.Any("error", err))
		_ = h.store.DeleteObject(ctx, objectKey)
		Internal(c, "internal error")
		return
	}
	if previous != "" && previous != objectKey {
		if err := h.store.DeleteObject(ctx, previous); err != nil {
			logger.Warn("delete previous uploaded cv failed", slog.String("object_key", previous), slog.Any("error", err))
		}
	}

	logger.Info("cv uploaded", slog.String("object_key", objectKey), slog.Int("experiences", len(extracted.Experiences)))
	c.JSON(http.StatusOK, extracted)
}

// GenerateCV 投递 PDF 渲染任务，结果通过 WebSocket 通知。
func (h *CVHandler) GenerateCV(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	ctx := c.Request.Context()
	logger := loggerFor(c, h.logger).With(slog.Uint64("user_id", uint64(userID)))

	var count int64
	if err := h.db.WithContext(ctx).Model(&database.PracticeProfile{}).Where("user_id = ?", userID).Count(&count).Error; err != nil {
		logger.Error("lookup profile failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	if count == 0 {
		NotFound(c, "Practice profile not found.")
		return
	}

	task, err := tasks.NewCVRenderTask(userID, middleware.GetCorrelationID(c))
	if err != nil {
		logger.Error("build cv render task failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	info, err := h.queue.EnqueueContext(ctx, task)
	if err != nil {
		if errors.Is(err, asynq.ErrDuplicateTask) {
			Conflict(c, "cv generation already in progress")
			return
		}
		logger.Error("enqueue cv render failed", slog.Any("error", err))
		Internal(c, "failed to enqueue task")
		return
	}

	logger.Info("cv render enqueued", slog.String("task_id", info.ID))
	c.JSON(http.StatusAccepted, gin.H{"task_id": info.ID})
}

// DownloadLink 返回已生成 PDF 的临时下载地址。
func (h *CVHandler) DownloadLink(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	ctx := c.Request.Context()
	logger := loggerFor(c, h.logger).With(slog.Uint64("user_id", uint64(userID)))

	var profile database.PracticeProfile
	if err := h.db.WithContext(ctx).Where("user_id = ?", userID).First(&profile).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "Practice profile not found.")
			return
		}
		logger.Error("lookup profile failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	if profile.CVObjectKey == "" {
		Conflict(c, "cv has not been generated yet")
		return
	}
	if !storage.OwnsKey(userID, profile.CVObjectKey) {
		logger.Error("profile references foreign object key", slog.String("object_key", profile.CVObjectKey))
		Forbidden(c, "access denied")
		return
	}

	exists, err := h.store.StatObject(ctx, profile.CVObjectKey)
	if err != nil {
		logger.Error("stat generated cv failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	if !exists {
		logger.Warn("generated cv missing from storage", slog.String("object_key", profile.CVObjectKey))
		if err := h.db.WithContext(ctx).Model(&profile).Update("cv_object_key", "").Error; err != nil {
			logger.Error("clear stale cv key failed", slog.Any("error", err))
		}
		Conflict(c, "cv has not been generated yet")
		return
	}

	signedURL, err := h.store.GeneratePresignedURL(ctx, profile.CVObjectKey, cvDownloadURLTTL, cvDownloadFilename)
	if err != nil {
		logger.Error("generate presigned url", slog.Any("error", err))
		Internal(c, "failed to generate url")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"url":        signedURL,
		"expires_in": int(cvDownloadURLTTL.Seconds()),
	})
}
