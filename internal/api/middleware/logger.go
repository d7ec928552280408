package middleware

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
)

const ContextLogger = "slogLogger"

// SlogLoggerMiddleware 为每个请求派生带 correlation_id 的 logger，结束时输出一行访问日志。
func SlogLoggerMiddleware(base *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		reqLogger := base.With(
			slog.String("correlation_id", GetCorrelationID(c)),
			slog.String("method", c.Request.Method),
			slog.String("route", route),
		)
		c.Set(ContextLogger, reqLogger)

		began := time.Now()
		c.Next()

		status := c.Writer.Status()
		attrs := []slog.Attr{
			slog.Int("status", status),
			slog.Duration("latency", time.Since(began)),
			slog.String("client_ip", c.ClientIP()),
		}
		if id, ok := c.Get(ContextUserID); ok {
			attrs = append(attrs, slog.Any("user_id", id))
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, slog.String("errors", c.Errors.String()))
		}
		reqLogger.LogAttrs(c.Request.Context(), levelForStatus(status), "request", attrs...)
	}
}

func levelForStatus(status int) slog.Level {
	switch {
	case status >= 500:
		return slog.LevelError
	case status >= 400:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

// RequestLogger 取出 SlogLoggerMiddleware 注入的 logger。
func RequestLogger(c *gin.Context) (*slog.Logger, bool) {
	raw, ok := c.Get(ContextLogger)
	if !ok {
		return nil, false
	}
	l, ok := raw.(*slog.Logger)
	return l, ok && l != nil
}
