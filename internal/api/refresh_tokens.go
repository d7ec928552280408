package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"prepkitty/internal/auth"
	"prepkitty/internal/database"
)

const refreshTokenCookieName = "refresh_token"

var (
	errRefreshRevoked        = errors.New("refresh token revoked")
	errBlacklistLookupFailed = errors.New("refresh blacklist unavailable")
)

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// extractRefreshToken 先读 HttpOnly Cookie，再读 JSON body。
func (h *AuthHandler) extractRefreshToken(c *gin.Context) string {
	if raw, err := c.Cookie(refreshTokenCookieName); err == nil && raw != "" {
		return raw
	}
	var body refreshRequest
	if c.ShouldBindJSON(&body) == nil {
		return body.RefreshToken
	}
	return ""
}

func (h *AuthHandler) validateRefreshToken(raw string) (*auth.TokenClaims, error) {
	claims, err := h.authService.ValidateToken(raw)
	switch {
	case err != nil:
		return nil, err
	case claims.TokenType != auth.TokenTypeRefresh:
		return nil, fmt.Errorf("want refresh token, got %q", claims.TokenType)
	case claims.ID == "":
		return nil, errors.New("refresh token has no jti")
	}
	return claims, nil
}

// claimRefreshToken 取出并校验请求中的刷新令牌，并以 SETNX 原子地把 jti 写入黑名单。
// 同一令牌的并发刷新只有一个能成功；失败时已写好响应。
func (h *AuthHandler) claimRefreshToken(c *gin.Context, logger *slog.Logger) (*auth.TokenClaims, bool) {
	raw := h.extractRefreshToken(c)
	if raw == "" {
		Unauthorized(c)
		return nil, false
	}
	claims, err := h.validateRefreshToken(raw)
	if err == nil {
		err = h.claimJTI(c.Request.Context(), claims)
	}
	switch {
	case err == nil:
		return claims, true
	case errors.Is(err, errRefreshRevoked):
		logger.Info("revoked refresh token presented", slog.String("jti", claims.ID))
		Unauthorized(c)
	case errors.Is(err, errBlacklistLookupFailed):
		logger.Error("refresh blacklist unavailable", slog.Any("error", err))
		Internal(c, "internal error")
	default:
		logger.Info("refresh token rejected", slog.Any("error", err))
		Unauthorized(c)
	}
	return nil, false
}

func (h *AuthHandler) claimJTI(ctx context.Context, claims *auth.TokenClaims) error {
	claimed, err := h.redis.SetNX(ctx, refreshTokenBlacklistKeyPrefix+claims.ID, "rotated", h.blacklistTTL(claims)).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", errBlacklistLookupFailed, err)
	}
	if !claimed {
		return errRefreshRevoked
	}
	return nil
}

func (h *AuthHandler) blacklistTTL(claims *auth.TokenClaims) time.Duration {
	ttl := h.authService.RefreshTokenTTL()
	if claims.ExpiresAt != nil {
		ttl = time.Until(claims.ExpiresAt.Time)
	}
	return max(ttl, time.Second)
}

// revokeRefreshToken 把 jti 写入黑名单，保留到令牌自然过期。
func (h *AuthHandler) revokeRefreshToken(ctx context.Context, claims *auth.TokenClaims) error {
	return h.redis.Set(ctx, refreshTokenBlacklistKeyPrefix+claims.ID, "revoked", h.blacklistTTL(claims)).Err()
}

func (h *AuthHandler) issueTokens(c *gin.Context, user database.User, logger *slog.Logger) {
	pair, err := h.authService.GenerateTokenPair(auth.Subject{
		UserID:              user.ID,
		OnboardingCompleted: user.OnboardingCompleted,
		MustChangePassword:  user.MustChangePassword,
	})
	if err != nil {
		logger.Error("sign token pair", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	h.writeRefreshCookie(c, pair.RefreshToken, h.authService.RefreshTokenTTL())
	c.JSON(http.StatusOK, tokenResponse{
		AccessToken:         pair.AccessToken,
		TokenType:           "Bearer",
		ExpiresIn:           int(h.authService.AccessTokenTTL().Seconds()),
		MustChangePassword:  user.MustChangePassword,
		OnboardingCompleted: user.OnboardingCompleted,
	})
}

// writeRefreshCookie 在 ttl < 0 时删除 Cookie。
func (h *AuthHandler) writeRefreshCookie(c *gin.Context, value string, ttl time.Duration) {
	cookie := &http.Cookie{
		Name:     refreshTokenCookieName,
		Value:    value,
		Path:     "/",
		Domain:   strings.TrimSpace(h.opts.CookieDomain),
		Secure:   isHTTPSRequest(c),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	if ttl < 0 {
		cookie.MaxAge = -1
	} else {
		cookie.MaxAge = int(ttl.Seconds())
		cookie.Expires = h.now().Add(ttl)
	}
	http.SetCookie(c.Writer, cookie)
}

func isHTTPSRequest(c *gin.Context) bool {
	if c.Request == nil {
		return false
	}
	return c.Request.TLS != nil || strings.EqualFold(c.Request.Header.Get("X-Forwarded-Proto"), "https")
}
