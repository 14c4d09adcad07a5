package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func RequestLogger(logger *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)

		fields := []interface{}{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"ip", c.ClientIP(),
			"status", c.Writer.Status(),
			"latency", latency,
		}
		if len(c.Errors) > 0 {
			logger.Errorw("HTTP Request Error", append(fields, "error", c.Errors.String())...)
			return
		}
		logger.Infow("HTTP Request", fields...)
	}
}
