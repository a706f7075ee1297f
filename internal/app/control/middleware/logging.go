/**
 * 日志中间件
 * @description: HTTP请求日志，记录方法/路径/状态码/耗时，慢请求告警
 */
package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"raider/internal/pkg/logger"
)

// LoggingConfig 请求日志配置
type LoggingConfig struct {
	// 跳过日志的路径 (健康检查等高频探活)
	SkipPaths []string `json:"skip_paths"`

	// 慢请求阈值，0 不告警
	SlowRequestThreshold time.Duration `json:"slow_request_threshold"`
}

// Logging 请求日志中间件
func Logging(config *LoggingConfig) gin.HandlerFunc {
	if config == nil {
		config = &LoggingConfig{SlowRequestThreshold: 3 * time.Second}
	}
	skip := make(map[string]struct{}, len(config.SkipPaths))
	for _, p := range config.SkipPaths {
		skip[p] = struct{}{}
	}

	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if _, ok := skip[path]; ok {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()
		elapsed := time.Since(start)

		fields := logrus.Fields{
			"method":  c.Request.Method,
			"path":    path,
			"status":  c.Writer.Status(),
			"latency": elapsed.String(),
			"client":  c.ClientIP(),
		}
		if len(c.Errors) > 0 {
			fields["errors"] = c.Errors.String()
		}

		entry := logger.WithFields(fields)
		switch {
		case c.Writer.Status() >= 500:
			entry.Error("request failed")
		case config.SlowRequestThreshold > 0 && elapsed > config.SlowRequestThreshold:
			entry.Warn("slow request")
		default:
			entry.Info("request")
		}
	}
}
