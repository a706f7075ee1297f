package protocol

import (
	"context"
	"fmt"
	"strings"
	"time"

	"raider/internal/core/scanner/brute"

	"github.com/redis/go-redis/v9"
)

// RedisCracker 实现 Redis 协议爆破
// 字典首条为空密码，命中即为未授权访问 (来宾级)
type RedisCracker struct{}

func NewRedisCracker() *RedisCracker {
	return &RedisCracker{}
}

func (c *RedisCracker) Name() string {
	return "redis"
}

func (c *RedisCracker) Mode() brute.AuthMode {
	return brute.AuthModeOnlyPass
}

// Check 验证 Redis 凭据
func (c *RedisCracker) Check(ctx context.Context, host string, port int, auth brute.Auth) (bool, error) {
	opts := &redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: auth.Password, // 空串时 go-redis 不发 AUTH
		Username: auth.Username, // 空则兼容旧版单口令
		DB:       0,

		DialTimeout:  3 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		MaxRetries:   0,
	}

	client := redis.NewClient(opts)
	defer client.Close()

	// PING 同时验证连接和认证
	if err := client.Ping(ctx).Err(); err != nil {
		return false, c.handleError(err)
	}
	return true, nil
}

// handleError 将底层错误转换为标准错误
func (c *RedisCracker) handleError(err error) error {
	msg := strings.ToLower(err.Error())

	// ERR invalid password / WRONGPASS / NOAUTH
	if strings.Contains(msg, "invalid password") ||
		strings.Contains(msg, "wrongpass") ||
		strings.Contains(msg, "noauth") ||
		strings.Contains(msg, "authentication required") {
		return nil
	}

	if strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "no route to host") ||
		strings.Contains(msg, "network is unreachable") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "connection pool") ||
		strings.Contains(msg, "context deadline exceeded") ||
		strings.Contains(msg, "eof") {
		return brute.ErrConnectionFailed
	}

	// 非 Redis 服务: "reading length: expected '$', got 'H'" (HTTP)
	return brute.ErrProtocolError
}
