/**
 * CORS中间件
 * @description: 控制面跨域处理。控制面通常只被本机或内网前端调用，
 *               默认放开所有源。
 */
package middleware

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// CORSConfig CORS配置
type CORSConfig struct {
	// 允许的源，AllowAllOrigins 为 true 时忽略
	AllowOrigins []string `json:"allow_origins"`

	// 允许的方法
	AllowMethods []string `json:"allow_methods"`

	// 允许的头部
	AllowHeaders []string `json:"allow_headers"`

	// 预检请求缓存时间
	MaxAge time.Duration `json:"max_age"`

	// 是否允许所有源
	AllowAllOrigins bool `json:"allow_all_origins"`
}

// DefaultCORSConfig 默认配置
func DefaultCORSConfig() *CORSConfig {
	return &CORSConfig{
		AllowMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodDelete,
			http.MethodOptions,
		},
		AllowHeaders: []string{
			"Origin",
			"Content-Length",
			"Content-Type",
			"X-Request-ID",
		},
		MaxAge:          12 * time.Hour,
		AllowAllOrigins: true,
	}
}

// CORS 跨域中间件
func CORS(config *CORSConfig) gin.HandlerFunc {
	if config == nil {
		config = DefaultCORSConfig()
	}
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")

		if config.AllowAllOrigins {
			c.Header("Access-Control-Allow-Origin", "*")
		} else if originAllowed(config.AllowOrigins, origin) {
			c.Header("Access-Control-Allow-Origin", origin)
		}
		c.Header("Access-Control-Allow-Methods", strings.Join(config.AllowMethods, ", "))
		c.Header("Access-Control-Allow-Headers", strings.Join(config.AllowHeaders, ", "))

		// 预检请求直接应答
		if c.Request.Method == http.MethodOptions {
			if config.MaxAge > 0 {
				c.Header("Access-Control-Max-Age", fmt.Sprintf("%.0f", config.MaxAge.Seconds()))
			}
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func originAllowed(allowed []string, origin string) bool {
	if origin == "" {
		return false
	}
	for _, a := range allowed {
		if a == "*" || a == origin {
			return true
		}
		// *.domain.com 通配
		if strings.HasPrefix(a, "*.") && strings.HasSuffix(origin, a[2:]) {
			return true
		}
	}
	return false
}
