package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"prepkitty/internal/auth"
)

// 上下文键。
const (
	ContextUserID              = "userID"
	ContextMustChangePassword  = "mustChangePassword"
	ContextOnboardingCompleted = "onboardingCompleted"
)

// TokenValidator 校验 JWT 并返回声明，由 *auth.AuthService 实现。
type TokenValidator interface {
	ValidateToken(token string) (*auth.TokenClaims, error)
}

func abortUnauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
}

// BearerToken 从 Authorization 头中取出令牌。
func BearerToken(header string) (string, bool) {
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	return parts[1], true
}

// AuthMiddleware 校验访问令牌并将用户声明注入上下文。
func AuthMiddleware(validator TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		rawToken, ok := BearerToken(c.GetHeader("Authorization"))
		if !ok {
			abortUnauthorized(c)
			return
		}

		claims, err := validator.ValidateToken(rawToken)
		if err != nil || claims.TokenType != auth.TokenTypeAccess {
			abortUnauthorized(c)
			return
		}

		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextMustChangePassword, claims.MustChangePassword)
		c.Set(ContextOnboardingCompleted, claims.OnboardingCompleted)
		c.Next()
	}
}
