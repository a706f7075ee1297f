package protocol

import (
	"context"
	"strings"

	"raider/internal/core/scanner/brute"

	"github.com/stacktitan/smb/smb"
)

// SMBCracker SMB 协议爆破器
type SMBCracker struct{}

func NewSMBCracker() *SMBCracker {
	return &SMBCracker{}
}

func (c *SMBCracker) Name() string {
	return "smb"
}

func (c *SMBCracker) Mode() brute.AuthMode {
	return brute.AuthModeUserPass
}

func (c *SMBCracker) Check(ctx context.Context, host string, port int, auth brute.Auth) (bool, error) {
	options := smb.Options{
		Host:        host,
		Port:        port,
		User:        auth.Username,
		Password:    auth.Password,
		Domain:      "",
		Workstation: "",
	}

	type result struct {
		success bool
		err     error
	}
	resultChan := make(chan result, 1)

	// stacktitan/smb 的 NewSession 同步阻塞且不吃 ctx，放协程里配合 select 控超时
	go func() {
		session, err := smb.NewSession(options, false)
		if err != nil {
			resultChan <- result{false, err}
			return
		}
		defer session.Close()
		resultChan <- result{session.IsAuthenticated, nil}
	}()

	select {
	case <-ctx.Done():
		// 协程可能泄露 (库不支持取消)，短连接爆破场景可接受
		return false, brute.ErrConnectionFailed
	case res := <-resultChan:
		if res.success {
			return true, nil
		}
		return c.handleError(res.err)
	}
}

// handleError 解析 SMB/NTLM 错误
func (c *SMBCracker) handleError(err error) (bool, error) {
	if err == nil {
		return false, nil // IsAuthenticated == false
	}

	errMsg := err.Error()

	if strings.Contains(errMsg, "STATUS_LOGON_FAILURE") ||
		strings.Contains(errMsg, "STATUS_WRONG_PASSWORD") ||
		strings.Contains(errMsg, "login failed") {
		return false, nil
	}

	if strings.Contains(errMsg, "connection refused") ||
		strings.Contains(errMsg, "i/o timeout") ||
		strings.Contains(errMsg, "EOF") {
		return false, brute.ErrConnectionFailed
	}

	// 兜底按连接失败，避免误报
	return false, brute.ErrConnectionFailed
}
