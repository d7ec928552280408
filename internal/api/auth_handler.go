package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"prepkitty/internal/api/middleware"
	"prepkitty/internal/auth"
	"prepkitty/internal/database"
	"prepkitty/internal/tasks"
)

// VerificationTokenTTL 是邮箱验证链接的有效期。
const VerificationTokenTTL = 24 * time.Hour

// AuthOptions 是登录保护与 Cookie 相关的参数。
type AuthOptions struct {
	LoginRateLimitPerHour int
	LoginLockThreshold    int
	LoginLockTTL          time.Duration
	CookieDomain          string
	FrontendBaseURL       string
}

// AuthHandler 处理注册、邮箱验证、登录、刷新、改密与退出。
type AuthHandler struct {
	db          *gorm.DB
	authService *auth.AuthService
	redis       redis.UniversalClient
	queue       TaskEnqueuer
	logger      *slog.Logger
	opts        AuthOptions
	now         func() time.Time
}

// NewAuthHandler 构造认证处理器。
func NewAuthHandler(db *gorm.DB, authService *auth.AuthService, redisClient redis.UniversalClient, queue TaskEnqueuer, logger *slog.Logger, opts AuthOptions) *AuthHandler {
	if opts.LoginRateLimitPerHour <= 0 {
		opts.LoginRateLimitPerHour = 10
	}
	if opts.LoginLockThreshold <= 0 {
		opts.LoginLockThreshold = 5
	}
	if opts.LoginLockTTL <= 0 {
		opts.LoginLockTTL = 15 * time.Minute
	}
	opts.FrontendBaseURL = strings.TrimRight(strings.TrimSpace(opts.FrontendBaseURL), "/")
	return &AuthHandler{
		db:          db,
		authService: authService,
		redis:       redisClient,
		queue:       queue,
		logger:      logger,
		opts:        opts,
		now:         time.Now,
	}
}

type signupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

// Signup 创建未验证的账号并投递验证邮件。
func (h *AuthHandler) Signup(c *gin.Context) {
	var req signupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request body")
		return
	}
	email := normalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		BadRequest(c, "Email and password are required")
		return
	}
	if len(req.Password) < 8 || len(req.Password) > 72 {
		BadRequest(c, "password must be between 8 and 72 characters")
		return
	}

	ctx := c.Request.Context()
	logger := loggerFor(c, h.logger)

	var existing database.User
	if err := h.db.WithContext(ctx).Where("email = ?", email).First(&existing).Error; err == nil {
		logger.Info("signup conflict: user already exists")
		Conflict(c, "User already exists")
		return
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		logger.Error("signup lookup failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	hashed, err := h.authService.HashPassword(req.Password)
	if err != nil {
		logger.Error("hash password failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	token, err := auth.NewVerificationToken()
	if err != nil {
		logger.Error("generate verification token failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	user := database.User{
		Email:        email,
		Name:         strings.TrimSpace(req.Name),
		PasswordHash: hashed,
	}
	err = h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&user).Error; err != nil {
			return err
		}
		return tx.Create(&database.VerificationToken{
			Identifier: email,
			Token:      token,
			ExpiresAt:  h.now().Add(VerificationTokenTTL),
		}).Error
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		Conflict(c, "User already exists")
		return
	}
	if err != nil {
		logger.Error("create user failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	logger = logger.With(slog.Uint64("user_id", uint64(user.ID)))
	if err := h.enqueueVerification(c, user, token); err != nil {
		// 账号已创建，用户可以通过 resend 接口重新获取邮件。
		logger.Error("enqueue verification email failed", slog.Any("error", err))
	}

	logger.Info("user signed up")
	c.JSON(http.StatusCreated, gin.H{"message": "Signup successful. Please check your email for verification."})
}

type resendRequest struct {
	Email string `json:"email" binding:"required"`
}

// ResendVerification 为未验证的账号重新签发令牌。无论邮箱是否存在都返回 202。
func (h *AuthHandler) ResendVerification(c *gin.Context) {
	var req resendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "email is required")
		return
	}
	email := normalizeEmail(req.Email)
	ctx := c.Request.Context()
	logger := loggerFor(c, h.logger)
	accepted := gin.H{"message": "If the account exists and is not verified, a new email has been sent."}

	count, err := incrWithTTL(ctx, h.redis, resendRateKeyPrefix+email, time.Hour)
	if err == nil && count > 3 {
		TooManyRequests(c, "rate limit exceeded")
		return
	}

	var user database.User
	if err := h.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			logger.Error("resend lookup failed", slog.Any("error", err))
		}
		c.JSON(http.StatusAccepted, accepted)
		return
	}
	if user.EmailVerifiedAt != nil {
		c.JSON(http.StatusAccepted, accepted)
		return
	}

	token, err := auth.NewVerificationToken()
	if err != nil {
		logger.Error("generate verification token failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	err = h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("identifier = ?", email).Delete(&database.VerificationToken{}).Error; err != nil {
			return err
		}
		return tx.Create(&database.VerificationToken{
			Identifier: email,
			Token:      token,
			ExpiresAt:  h.now().Add(VerificationTokenTTL),
		}).Error
	})
	if err != nil {
		logger.Error("rotate verification token failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	if err := h.enqueueVerification(c, user, token); err != nil {
		logger.Error("enqueue verification email failed", slog.Any("error", err))
		Internal(c, "failed to send verification email")
		return
	}
	c.JSON(http.StatusAccepted, accepted)
}

func (h *AuthHandler) enqueueVerification(c *gin.Context, user database.User, token string) error {
	task, err := tasks.NewVerificationEmailTask(tasks.VerificationEmailPayload{
		Email:         user.Email,
		Name:          user.Name,
		Token:         token,
		CorrelationID: middleware.GetCorrelationID(c),
	})
	if err != nil {
		return err
	}
	_, err = h.queue.EnqueueContext(c.Request.Context(), task)
	return err
}

// VerifyEmail 消费验证令牌并跳转回前端登录页。
func (h *AuthHandler) VerifyEmail(c *gin.Context) {
	token := strings.TrimSpace(c.Query("token"))
	if token == "" {
		BadRequest(c, "Invalid token")
		return
	}

	ctx := c.Request.Context()
	logger := loggerFor(c, h.logger)

	var vt database.VerificationToken
	if err := h.db.WithContext(ctx).Where("token = ?", token).First(&vt).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			BadRequest(c, "Invalid or expired token")
			return
		}
		logger.Error("verification token lookup failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	if vt.ExpiresAt.Before(h.now()) {
		BadRequest(c, "Invalid or expired token")
		return
	}

	var user database.User
	if err := h.db.WithContext(ctx).Where("email = ?", vt.Identifier).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "User not found")
			return
		}
		logger.Error("verification user lookup failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	if user.EmailVerifiedAt != nil {
		c.Redirect(http.StatusFound, h.opts.FrontendBaseURL+"/login?message="+url.QueryEscape("Email already verified"))
		return
	}

	err := h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&user).Update("email_verified_at", h.now()).Error; err != nil {
			return err
		}
		return tx.Delete(&vt).Error
	})
	if err != nil {
		logger.Error("mark email verified failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	logger.Info("email verified", slog.Uint64("user_id", uint64(user.ID)))
	c.Redirect(http.StatusFound, fmt.Sprintf("%s/login?email=%s&verified=true", h.opts.FrontendBaseURL, url.QueryEscape(vt.Identifier)))
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type tokenResponse struct {
	AccessToken         string `json:"access_token"`
	TokenType           string `json:"token_type"`
	ExpiresIn           int    `json:"expires_in"`
	MustChangePassword  bool   `json:"must_change_password"`
	OnboardingCompleted bool   `json:"onboarding_completed"`
}

// Login 校验口令并返回 Token。
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "email and password are required")
		return
	}
	email := normalizeEmail(req.Email)

	ctx := c.Request.Context()
	logger := loggerFor(c, h.logger)

	count, err := incrWithTTL(ctx, h.redis, loginRateKey(c.ClientIP(), email, h.now()), time.Hour)
	if err != nil {
		count = 0
	}
	if count > int64(h.opts.LoginRateLimitPerHour) {
		TooManyRequests(c, "rate limit exceeded")
		return
	}

	if ttl, _ := h.redis.TTL(ctx, loginLockKeyPrefix+email).Result(); ttl > 0 {
		TooManyRequests(c, "account temporarily locked")
		return
	}

	var user database.User
	if err := h.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			logger.Info("login failed: user not found")
			_ = h.incrementLoginFail(ctx, email)
			Unauthorized(c)
			return
		}
		logger.Error("login query failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	if !h.authService.CheckPasswordHash(req.Password, user.PasswordHash) {
		logger.Info("login failed: password mismatch", slog.Uint64("user_id", uint64(user.ID)))
		_ = h.incrementLoginFail(ctx, email)
		Unauthorized(c)
		return
	}

	if user.EmailVerifiedAt == nil {
		logger.Info("login rejected: email not verified", slog.Uint64("user_id", uint64(user.ID)))
		Forbidden(c, "email not verified")
		return
	}

	_ = h.redis.Del(ctx, loginFailKeyPrefix+email).Err()
	h.issueTokens(c, user, logger)
}

// Refresh 轮换刷新令牌：先原子地作废旧 jti，再签发新的一对。
func (h *AuthHandler) Refresh(c *gin.Context) {
	ctx := c.Request.Context()
	logger := loggerFor(c, h.logger)

	claims, ok := h.claimRefreshToken(c, logger)
	if !ok {
		return
	}
	var user database.User
	if err := h.db.WithContext(ctx).First(&user, claims.UserID).Error; err != nil {
		logger.Info("refresh for unknown user", slog.Uint64("user_id", uint64(claims.UserID)))
		Unauthorized(c)
		return
	}
	h.issueTokens(c, user, logger)
}

// Logout 作废当前刷新令牌并清除 Cookie。
func (h *AuthHandler) Logout(c *gin.Context) {
	raw := h.extractRefreshToken(c)
	if raw == "" {
		BadRequest(c, "refresh token missing")
		return
	}
	logger := loggerFor(c, h.logger)
	claims, err := h.validateRefreshToken(raw)
	if err != nil {
		logger.Info("logout with invalid refresh token", slog.Any("error", err))
		Unauthorized(c)
		return
	}
	if err := h.revokeRefreshToken(c.Request.Context(), claims); err != nil {
		logger.Error("revoke refresh token", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	h.writeRefreshCookie(c, "", -1)
	c.Status(http.StatusOK)
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required,min=8,max=72"`
	ConfirmPassword string `json:"confirm_password" binding:"required"`
}

func (r changePasswordRequest) problem() string {
	switch {
	case r.NewPassword != r.ConfirmPassword:
		return "password confirmation does not match"
	case r.NewPassword == r.CurrentPassword:
		return "new password must be different from current password"
	default:
		return ""
	}
}

// ChangePassword 校验旧密码后更新哈希，清除 must_change_password 并重新签发令牌。
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "new password must be between 8 and 72 characters")
		return
	}
	if msg := req.problem(); msg != "" {
		BadRequest(c, msg)
		return
	}
	userID, ok := currentUserID(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	ctx := c.Request.Context()
	logger := loggerFor(c, h.logger).With(slog.Uint64("user_id", uint64(userID)))

	var user database.User
	if err := h.db.WithContext(ctx).First(&user, userID).Error; err != nil ||
		!h.authService.CheckPasswordHash(req.CurrentPassword, user.PasswordHash) {
		logger.Info("change password rejected")
		Unauthorized(c)
		return
	}

	hash, err := h.authService.HashPassword(req.NewPassword)
	if err != nil {
		logger.Error("hash new password", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	user.PasswordHash = hash
	user.MustChangePassword = false
	if err := h.db.WithContext(ctx).Model(&user).Select("PasswordHash", "MustChangePassword").Updates(&user).Error; err != nil {
		logger.Error("store new password", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	// 只作废 Cookie 中的刷新令牌；其他设备的令牌会在过期后失效。
	if raw, err := c.Cookie(refreshTokenCookieName); err == nil && raw != "" {
		if claims, err := h.validateRefreshToken(raw); err == nil {
			if err := h.revokeRefreshToken(ctx, claims); err != nil {
				logger.Warn("revoke refresh token after password change", slog.Any("error", err))
			}
		}
	}

	logger.Info("password changed")
	h.issueTokens(c, user, logger)
}

func (h *AuthHandler) incrementLoginFail(ctx context.Context, email string) error {
	failures, err := incrWithTTL(ctx, h.redis, loginFailKeyPrefix+email, h.opts.LoginLockTTL)
	if err != nil {
		return err
	}
	if failures < int64(h.opts.LoginLockThreshold) {
		return nil
	}
	return h.redis.Set(ctx, loginLockKeyPrefix+email, failures, h.opts.LoginLockTTL).Err()
}
