package middleware

import (
	"regexp"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	ContextCorrelationID = "correlationID"
	CorrelationIDHeader  = "X-Correlation-ID"
)

// 调用方传入的 ID 会写进任务载荷和 ws 通知，只接受短的安全字符。
var correlationIDPattern = regexp.MustCompile(`^[A-Za-z0-9._-]{1,64}$`)

// CorrelationIDMiddleware 沿用合法的 X-Correlation-ID，否则生成新的 UUID。
func CorrelationIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(CorrelationIDHeader)
		if !correlationIDPattern.MatchString(id) {
			id = uuid.NewString()
		}

		c.Set(ContextCorrelationID, id)
		c.Header(CorrelationIDHeader, id)
		c.Next()
	}
}

func GetCorrelationID(c *gin.Context) string {
	id, _ := c.Get(ContextCorrelationID)
	s, _ := id.(string)
	return s
}
