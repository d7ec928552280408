package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"prepkitty/internal/database"
	"prepkitty/internal/errcode"
	"prepkitty/internal/practice"
)

const defaultDifficulty = "standard"

// PracticeHandler 处理练习成绩、模型直通接口与服务端会话。
type PracticeHandler struct {
	db       *gorm.DB
	gen      practice.Generator
	engine   *practice.Engine
	sessions SessionStore
	logger   *slog.Logger
}

// NewPracticeHandler 构造 PracticeHandler。gen 为空时模型相关接口返回 503。
func NewPracticeHandler(db *gorm.DB, gen practice.Generator, sessions SessionStore, logger *slog.Logger, totalQuestions int) *PracticeHandler {
	return &PracticeHandler{
		db:       db,
		gen:      gen,
		engine:   practice.NewEngine(gen, totalQuestions),
		sessions: sessions,
		logger:   logger,
	}
}

type saveResultRequest struct {
	Mode           string `json:"mode"`
	Difficulty     string `json:"difficulty"`
	Score          *int   `json:"score"`
	TotalQuestions *int   `json:"totalQuestions"`
	JobTitle       string `json:"jobTitle"`
	JobDescription string `json:"jobDescription"`
}

// SaveResult 保存一次客户端完成的练习。
func (h *PracticeHandler) SaveResult(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	var req saveResultRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request body")
		return
	}
	if isBlank(req.Mode) || isBlank(req.Difficulty) || req.Score == nil || req.TotalQuestions == nil {
		BadRequest(c, "Missing required fields")
		return
	}
	if *req.TotalQuestions <= 0 || *req.Score < 0 || *req.Score > *req.TotalQuestions {
		BadRequest(c, "score must be between 0 and totalQuestions")
		return
	}

	result := database.PracticeResult{
		UserID:         userID,
		Mode:           strings.TrimSpace(req.Mode),
		Difficulty:     strings.TrimSpace(req.Difficulty),
		Score:          *req.Score,
		TotalQuestions: *req.TotalQuestions,
		JobTitle:       req.JobTitle,
		JobDescription: req.JobDescription,
	}
	if err := h.db.WithContext(c.Request.Context()).Create(&result).Error; err != nil {
		loggerFor(c, h.logger).Error("save practice result failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"practiceResult": newResultResponse(result)})
}

// Generate 拼装提示词并直接返回模型输出。
func (h *PracticeHandler) Generate(c *gin.Context) {
	var req practice.PromptInput
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request body")
		return
	}
	if isBlank(req.JobTitle) || req.Mode == "" {
		BadRequest(c, "Job title and mode are required.")
		return
	}

	prompt, err := practice.BuildPrompt(req)
	if err != nil {
		if errors.Is(err, practice.ErrInvalidMode) {
			BadRequest(c, "Invalid mode specified.")
			return
		}
		BadRequest(c, err.Error())
		return
	}
	if h.gen == nil {
		Error(c, http.StatusServiceUnavailable, "text generation is not configured")
		return
	}

	text, err := h.gen.Generate(c.Request.Context(), prompt)
	if err != nil {
		loggerFor(c, h.logger).Error("generate content failed", slog.String("mode", string(req.Mode)), slog.Any("error", err))
		Internal(c, "Failed to generate content.")
		return
	}
	c.JSON(http.StatusOK, gin.H{"response": text})
}

type startSessionRequest struct {
	Mode       practice.Mode `json:"mode" binding:"required"`
	Difficulty string        `json:"difficulty"`
}

// StartSession 基于当前用户的档案开启服务端练习会话。
func (h *PracticeHandler) StartSession(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	var req startSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "mode is required")
		return
	}

	ctx := c.Request.Context()
	logger := loggerFor(c, h.logger).With(slog.Uint64("user_id", uint64(userID)))

	var profile database.PracticeProfile
	if err := h.db.WithContext(ctx).Where("user_id = ?", userID).First(&profile).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "practice profile not found", "code": errcode.ProfileMissing})
			return
		}
		logger.Error("lookup profile failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	session, err := h.engine.Start(ctx, req.Mode, practiceProfile(profile))
	if err != nil {
		h.writeEngineError(c, logger, err)
		return
	}
	session.UserID = userID
	session.Difficulty = strings.TrimSpace(req.Difficulty)
	if session.Difficulty == "" {
		session.Difficulty = defaultDifficulty
	}

	if err := h.sessions.Save(ctx, session); err != nil {
		logger.Error("save session failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	logger.Info("practice session started", slog.String("session_id", session.ID), slog.String("mode", string(session.Mode)))
	c.JSON(http.StatusCreated, session)
}

// GetSession 返回会话快照，仅会话所有者可见。
func (h *PracticeHandler) GetSession(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	session, ok := h.loadOwnedSession(c, userID)
	if !ok {
		return
	}
	if session.Completed && !session.ResultSaved {
		h.retryPendingResult(c, session)
	}
	c.JSON(http.StatusOK, session)
}

// retryPendingResult 在持有会话锁时补写上次未能入库的成绩；锁被占用时留给持锁请求处理。
func (h *PracticeHandler) retryPendingResult(c *gin.Context, session *practice.Session) {
	ctx := c.Request.Context()
	logger := loggerFor(c, h.logger).With(slog.String("session_id", session.ID))

	token, locked, err := h.sessions.Lock(ctx, session.ID)
	if err != nil || !locked {
		return
	}
	defer h.unlock(ctx, session.ID, token, logger)

	fresh, err := h.sessions.Load(ctx, session.ID)
	if err != nil {
		return
	}
	if h.settleResult(ctx, fresh, logger) {
		*session = *fresh
	}
}

// settleResult 为已完成的会话写入一次成绩并回存会话，返回是否本次写入成功。
func (h *PracticeHandler) settleResult(ctx context.Context, s *practice.Session, logger *slog.Logger) bool {
	if !s.Completed || s.ResultSaved {
		return false
	}
	if err := h.saveSessionResult(ctx, s); err != nil {
		logger.Error("save session result failed", slog.Any("error", err))
		return false
	}
	s.ResultSaved = true
	if err := h.sessions.Save(ctx, s); err != nil {
		logger.Error("save session failed", slog.Any("error", err))
	}
	logger.Info("practice session completed", slog.Int("score", s.Score), slog.Int("total", s.TotalQuestions))
	return true
}

func (h *PracticeHandler) unlock(ctx context.Context, id, token string, logger *slog.Logger) {
	if err := h.sessions.Unlock(context.WithoutCancel(ctx), id, token); err != nil {
		logger.Warn("unlock session failed", slog.Any("error", err))
	}
}

type answerRequest struct {
	Answer string `json:"answer"`
}

// AnswerSession 提交回答并推进会话；会话结束时写入一次成绩。
func (h *PracticeHandler) AnswerSession(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	var req answerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request body")
		return
	}

	ctx := c.Request.Context()
	id := c.Param("id")
	logger := loggerFor(c, h.logger).With(
		slog.Uint64("user_id", uint64(userID)),
		slog.String("session_id", id),
	)

	token, locked, err := h.sessions.Lock(ctx, id)
	if err != nil {
		logger.Error("lock session failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	if !locked {
		Conflict(c, "session is busy")
		return
	}
	defer h.unlock(ctx, id, token, logger)

	session, ok := h.loadOwnedSession(c, userID)
	if !ok {
		return
	}
	if session.Completed {
		h.settleResult(ctx, session, logger)
		h.writeEngineError(c, logger, practice.ErrSessionCompleted)
		return
	}

	stepCtx, cancel := context.WithTimeout(ctx, sessionStepTimeout)
	next, err := h.engine.Respond(stepCtx, session, req.Answer)
	cancel()
	if err != nil {
		h.writeEngineError(c, logger, err)
		return
	}

	// 成绩写入失败时仍保存已完成的会话，ResultSaved 保持 false，后续 GET 或作答会补写。
	if err := h.sessions.Save(ctx, next); err != nil {
		logger.Error("save session failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	h.settleResult(ctx, next, logger)
	c.JSON(http.StatusOK, next)
}

func (h *PracticeHandler) loadOwnedSession(c *gin.Context, userID uint) (*practice.Session, bool) {
	session, err := h.sessions.Load(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			NotFound(c, "session not found")
			return nil, false
		}
		loggerFor(c, h.logger).Error("load session failed", slog.Any("error", err))
		Internal(c, "internal error")
		return nil, false
	}
	if session.UserID != userID {
		NotFound(c, "session not found")
		return nil, false
	}
	return session, true
}

func (h *PracticeHandler) saveSessionResult(ctx context.Context, s *practice.Session) error {
	return h.db.WithContext(ctx).Create(&database.PracticeResult{
		UserID:         s.UserID,
		Mode:           string(s.Mode),
		Difficulty:     s.Difficulty,
		Score:          s.Score,
		TotalQuestions: s.TotalQuestions,
		JobTitle:       s.Profile.JobTitle,
		JobDescription: s.Profile.JobDescription,
	}).Error
}

func (h *PracticeHandler) writeEngineError(c *gin.Context, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, practice.ErrInvalidMode),
		errors.Is(err, practice.ErrEmptyAnswer),
		errors.Is(err, practice.ErrInvalidOption),
		errors.Is(err, practice.ErrNoActiveQuestion),
		errors.Is(err, practice.ErrJobTitleRequired):
		BadRequest(c, err.Error())
	case errors.Is(err, practice.ErrSessionCompleted):
		Conflict(c, err.Error())
	case errors.Is(err, practice.ErrGeneratorMissing):
		Error(c, http.StatusServiceUnavailable, "text generation is not configured")
	case errors.Is(err, practice.ErrUnparsableQuiz):
		logger.Warn("model reply could not be parsed", slog.Any("error", err))
		Error(c, http.StatusBadGateway, "model returned an unexpected format, please retry")
	default:
		logger.Error("practice step failed", slog.Any("error", err))
		Internal(c, "Failed to generate content.")
	}
}

// practiceProfile 将数据库档案转换为提示词上下文，工作经历压平为单行文本。
func practiceProfile(p database.PracticeProfile) practice.Profile {
	return practice.Profile{
		JobTitle:          p.JobTitle,
		JobDescription:    p.JobDescription,
		Skills:            p.Skills,
		EmploymentHistory: formatEmployment(p.EmploymentHistory),
		AdditionalDetails: p.AdditionalDetails,
	}
}

func formatEmployment(raw []byte) string {
	if len(raw) == 0 {
		return ""
	}
	var rows []database.EmploymentEntry
	if err := json.Unmarshal(raw, &rows); err != nil {
		return ""
	}
	parts := make([]string, 0, len(rows))
	for _, row := range rows {
		if isBlank(row.Role) {
			continue
		}
		period := strings.TrimSpace(row.StartDate)
		if end := strings.TrimSpace(row.EndDate); end != "" {
			period = fmt.Sprintf("%s - %s", period, end)
		}
		if period != "" {
			parts = append(parts, fmt.Sprintf("%s (%s)", row.Role, period))
		} else {
			parts = append(parts, row.Role)
		}
	}
	return strings.Join(parts, "; ")
}
