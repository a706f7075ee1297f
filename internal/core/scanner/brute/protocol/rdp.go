package protocol

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"raider/internal/core/scanner/brute"
)

// RDPCracker RDP 协议爆破器
// RDP 的 CredSSP/NLA 握手不自己实现，外呼 xfreerdp 的 +auth-only
// 模式做凭据验证，按退出码和 stderr 判定结果
type RDPCracker struct {
	binPath string
}

func NewRDPCracker() *RDPCracker {
	return &RDPCracker{binPath: "xfreerdp"}
}

func (c *RDPCracker) Name() string {
	return "rdp"
}

func (c *RDPCracker) Mode() brute.AuthMode {
	return brute.AuthModeUserPass
}

func (c *RDPCracker) Check(ctx context.Context, host string, port int, auth brute.Auth) (bool, error) {
	if _, err := exec.LookPath(c.binPath); err != nil {
		return false, fmt.Errorf("%w: xfreerdp not installed", brute.ErrProtocolError)
	}

	// +auth-only: 只做认证握手不开会话; /cert:ignore 跳过证书校验
	args := []string{
		fmt.Sprintf("/v:%s:%d", host, port),
		fmt.Sprintf("/u:%s", auth.Username),
		fmt.Sprintf("/p:%s", auth.Password),
		"/cert:ignore",
		"+auth-only",
		"/sec:nla",
	}

	cmd := exec.CommandContext(ctx, c.binPath, args...)
	output, err := cmd.CombinedOutput()
	if err == nil {
		return true, nil
	}
	if ctx.Err() != nil {
		return false, brute.ErrConnectionFailed
	}
	return c.handleOutput(string(output))
}

// handleOutput 按 xfreerdp 输出判定失败类别
func (c *RDPCracker) handleOutput(out string) (bool, error) {
	lower := strings.ToLower(out)

	// 认证失败: NLA 拒绝 / 登录失败
	if strings.Contains(lower, "logon_failure") ||
		strings.Contains(lower, "authentication failure") ||
		strings.Contains(lower, "connect_logon_failure") ||
		strings.Contains(lower, "credssp") && strings.Contains(lower, "fail") {
		return false, nil
	}

	if strings.Contains(lower, "connection refused") ||
		strings.Contains(lower, "unable to connect") ||
		strings.Contains(lower, "timeout") ||
		strings.Contains(lower, "connect_failed") {
		return false, brute.ErrConnectionFailed
	}

	return false, brute.ErrProtocolError
}
