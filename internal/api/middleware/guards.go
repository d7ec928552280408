package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"prepkitty/internal/errcode"
)

const InternalSecretHeader = "X-Internal-Secret"

// RequirePasswordChangeCompletedMiddleware 拦截带 must_change_password 声明的 access token。
// admin create-user 创建的账号在 /auth/change-password 之前只能走 auth 路由。
func RequirePasswordChangeCompletedMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetBool(ContextMustChangePassword) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": errcode.Message(errcode.PasswordChange),
				"code":  errcode.PasswordChange,
			})
			return
		}
		c.Next()
	}
}

// InternalSecretMiddleware 保护 /metrics 等内部端点，secret 为空时不校验。
func InternalSecretMiddleware(secret string) gin.HandlerFunc {
	want := []byte(strings.TrimSpace(secret))
	if len(want) == 0 {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		got := []byte(strings.TrimSpace(c.GetHeader(InternalSecretHeader)))
		if subtle.ConstantTimeCompare(got, want) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}
