package protocol

import (
	"context"
	"fmt"
	"strings"
	"time"

	"raider/internal/core/scanner/brute"

	"github.com/jlaffaye/ftp"
)

// FTPCracker FTP 协议爆破器
// 字典之外总是先试 anonymous 登录 (来宾级访问)
type FTPCracker struct{}

func NewFTPCracker() *FTPCracker {
	return &FTPCracker{}
}

func (c *FTPCracker) Name() string {
	return "ftp"
}

func (c *FTPCracker) Mode() brute.AuthMode {
	return brute.AuthModeUserPass
}

func (c *FTPCracker) Check(ctx context.Context, host string, port int, auth brute.Auth) (bool, error) {
	addr := fmt.Sprintf("%s:%d", host, port)

	// jlaffaye/ftp 不支持 ctx，DialTimeout 受 ctx 剩余时间约束
	dialTimeout := 5 * time.Second
	if deadline, ok := ctx.Deadline(); ok {
		dialTimeout = time.Until(deadline)
		if dialTimeout <= 0 {
			return false, brute.ErrConnectionFailed
		}
	}

	conn, err := ftp.DialTimeout(addr, dialTimeout)
	if err != nil {
		return false, brute.ErrConnectionFailed
	}
	defer conn.Quit()

	user, pass := auth.Username, auth.Password
	if user == "" {
		// 空用户按匿名登录处理
		user, pass = "anonymous", "anonymous@"
	}

	if err := conn.Login(user, pass); err != nil {
		return c.handleError(err)
	}
	conn.Logout()
	return true, nil
}

// handleError 解析 FTP 应答码
func (c *FTPCracker) handleError(err error) (bool, error) {
	msg := err.Error()

	// 530 Login incorrect / Not logged in
	if strings.HasPrefix(msg, "530") {
		return false, nil
	}

	// 421 Service not available / Too many connections
	if strings.HasPrefix(msg, "421") {
		return false, brute.ErrConnectionFailed
	}

	if strings.Contains(msg, "EOF") || strings.Contains(msg, "timeout") {
		return false, brute.ErrConnectionFailed
	}

	return false, brute.ErrProtocolError
}
