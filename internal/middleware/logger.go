package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Logger returns a zap request logging middleware. Paths in quiet are logged at debug.
func Logger(logger *zap.Logger, quiet ...string) gin.HandlerFunc {
	skip := make(map[string]struct{}, len(quiet))
	for _, p := range quiet {
		skip[p] = struct{}{}
	}
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		fields := []zap.Field{
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("client_ip", c.ClientIP()),
		}
		if uid, ok := c.Get(ContextUserID); ok {
			if id, ok := uid.(int64); ok {
				fields = append(fields, zap.Int64("user_id", id))
			}
		}
		if _, ok := skip[path]; ok {
			logger.Debug("request", fields...)
			return
		}
		logger.Info("request", fields...)
	}
}
