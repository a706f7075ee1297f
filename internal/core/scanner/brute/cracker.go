package brute

import (
	"context"
	"errors"
)

// AuthMode 定义爆破模式
type AuthMode int

const (
	AuthModeUserPass AuthMode = iota // 需要用户名和密码 (SSH, MySQL)
	AuthModeOnlyPass                 // 仅需要密码 (Redis)
	AuthModeNone                     // 无需认证/默认凭据探测
)

// Auth 认证凭据 (数据传输对象)
type Auth struct {
	Username string
	Password string
}

// Guest 是否为来宾/匿名类凭据
// FTP anonymous、SMB guest、Redis 无口令命中都算来宾级访问
func (a Auth) Guest() bool {
	switch a.Username {
	case "guest", "anonymous":
		return true
	}
	return a.Username == "" && a.Password == ""
}

// Cracker 协议适配器接口
type Cracker interface {
	// Name 返回协议名称 (e.g. "ssh", "mysql")
	Name() string

	// Mode 返回该协议的爆破模式
	Mode() AuthMode

	// Check 验证单个凭据
	// context: 用于控制单次尝试超时 (通常 3-5秒)
	// 返回:
	// - bool: true 表示认证成功
	// - error: 见下方错误定义; 认证失败返回 (false, nil)
	Check(ctx context.Context, host string, port int, auth Auth) (bool, error)
}

var (
	// ErrAuthFailed 认证失败 (账号密码错误) -> 继续尝试下一个
	ErrAuthFailed = errors.New("auth failed")

	// ErrConnectionFailed 连接失败 (超时/拒绝/重置) -> 计入连续失败，过阈值放弃
	ErrConnectionFailed = errors.New("connection failed")

	// ErrProtocolError 协议交互错误 (非预期响应) -> 视为该端口不是目标协议
	ErrProtocolError = errors.New("protocol error")
)
