package vuln

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"time"

	"raider/internal/pkg/logger"
)

// Runner 执行一个脚本批次，返回原始输出与是否成功
// 批次超时返回 ("", false)，调用方丢弃该批保留其余
type Runner interface {
	Run(ctx context.Context, ip string, port int, batch ScriptBatch, batchTimeout time.Duration, hostname string) (string, bool)
}

// NmapRunner 外呼 nmap 的批次执行器
type NmapRunner struct {
	binPath      string
	aggressivity string // 时序模板，如 "-T2"
}

// NewNmapRunner 创建执行器
// aggressivity 为空默认 -T2 (低端设备友好)
func NewNmapRunner(aggressivity string) *NmapRunner {
	if aggressivity == "" {
		aggressivity = "-T2"
	}
	return &NmapRunner{binPath: "nmap", aggressivity: aggressivity}
}

func (r *NmapRunner) Run(ctx context.Context, ip string, port int, batch ScriptBatch, batchTimeout time.Duration, hostname string) (string, bool) {
	runCtx, cancel := context.WithTimeout(ctx, batchTimeout)
	defer cancel()

	args := []string{
		r.aggressivity,
		"--script", batch.Scripts,
		"--script-timeout", fmt.Sprintf("%ds", batch.ScriptTimeout),
	}
	// 虚拟主机行: Host 头覆写，让 http 脚本打到正确的站点
	if hostname != "" {
		args = append(args, "--script-args", fmt.Sprintf("http.host=%s", hostname))
	}
	args = append(args, "-p", fmt.Sprint(port), ip)

	var stdout bytes.Buffer
	cmd := exec.CommandContext(runCtx, r.binPath, args...)
	cmd.Stdout = &stdout

	if err := cmd.Run(); err != nil {
		if runCtx.Err() == context.DeadlineExceeded {
			return "", false
		}
		logger.Errorf("nmap batch %q failed on %s:%d: %v", batch.Name, ip, port, err)
		return "", false
	}
	return stdout.String(), true
}
