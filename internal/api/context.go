package api

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"prepkitty/internal/api/middleware"
)

// currentUserID 读取 AuthMiddleware 写入的用户 ID，0 视为未登录。
func currentUserID(c *gin.Context) (uint, bool) {
	raw, ok := c.Get(middleware.ContextUserID)
	if !ok {
		return 0, false
	}
	id, ok := raw.(uint)
	return id, ok && id != 0
}

// loggerFor 优先使用带 correlation_id 的请求 logger。
func loggerFor(c *gin.Context, fallback *slog.Logger) *slog.Logger {
	if l, ok := middleware.RequestLogger(c); ok {
		return l
	}
	if fallback == nil {
		return slog.Default()
	}
	return fallback
}
