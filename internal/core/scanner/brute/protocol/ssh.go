package protocol

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"raider/internal/core/scanner/brute"

	"golang.org/x/crypto/ssh"
)

// SSHCracker 实现 SSH 协议爆破
type SSHCracker struct{}

// NewSSHCracker 创建 SSH 爆破器
func NewSSHCracker() *SSHCracker {
	return &SSHCracker{}
}

func (c *SSHCracker) Name() string {
	return "ssh"
}

func (c *SSHCracker) Mode() brute.AuthMode {
	return brute.AuthModeUserPass
}

// Check 验证 SSH 凭据
// 先自己建 TCP 连接 (受 ctx 控制)，再在其上做 SSH 握手
func (c *SSHCracker) Check(ctx context.Context, host string, port int, auth brute.Auth) (bool, error) {
	config := &ssh.ClientConfig{
		User: auth.Username,
		Auth: []ssh.AuthMethod{
			ssh.Password(auth.Password),
		},
		// 未知主机必须忽略 HostKey 检查
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         3 * time.Second,
	}

	addr := fmt.Sprintf("%s:%d", host, port)

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return false, c.handleError(err)
	}
	defer conn.Close()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(5 * time.Second)
	}
	conn.SetDeadline(deadline)

	cConn, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		return false, c.handleError(err)
	}
	defer cConn.Close()

	// 认证已通过; chans/reqs 必须消费掉，否则 goroutine 泄露
	go ssh.DiscardRequests(reqs)
	go func() {
		for newChannel := range chans {
			newChannel.Reject(ssh.Prohibited, "no channels")
		}
	}()

	return true, nil
}

// handleError 将底层错误转换为标准错误
func (c *SSHCracker) handleError(err error) error {
	msg := err.Error()

	if strings.Contains(msg, "unable to authenticate") {
		return nil // 认证失败不是系统错误
	}

	if strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "no route to host") ||
		strings.Contains(msg, "network is unreachable") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "handshake failed") {
		return brute.ErrConnectionFailed
	}

	// 版本不匹配等
	return brute.ErrProtocolError
}
