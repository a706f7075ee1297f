package alive

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"time"

	probing "github.com/prometheus-community/pro-bing"
)

// IcmpProber ICMP 存活探测器
// 优先走 pro-bing 的 UDP ping (无需特权)，失败再回落系统 ping 命令
type IcmpProber struct{}

func NewIcmpProber() *IcmpProber {
	return &IcmpProber{}
}

func (p *IcmpProber) Probe(ctx context.Context, ip string, timeout time.Duration) (*ProbeResult, error) {
	if res := p.probeLib(ctx, ip, timeout); res.Alive {
		return res, nil
	}
	return p.probeExec(ctx, ip, timeout)
}

// probeLib pro-bing 实现
func (p *IcmpProber) probeLib(ctx context.Context, ip string, timeout time.Duration) *ProbeResult {
	pinger, err := probing.NewPinger(ip)
	if err != nil {
		return &ProbeResult{}
	}
	// 非特权 UDP ping; 内核需开 net.ipv4.ping_group_range
	pinger.SetPrivileged(false)
	pinger.Count = 1
	pinger.Timeout = timeout

	if err := pinger.RunWithContext(ctx); err != nil {
		return &ProbeResult{}
	}
	stats := pinger.Statistics()
	if stats.PacketsRecv == 0 {
		return &ProbeResult{}
	}
	return &ProbeResult{Alive: true, Latency: stats.AvgRtt}
}

// probeExec 系统 ping 命令兜底
func (p *IcmpProber) probeExec(ctx context.Context, ip string, timeout time.Duration) (*ProbeResult, error) {
	timeoutSec := int(timeout.Seconds())
	if timeoutSec < 1 {
		timeoutSec = 1
	}

	var stdout bytes.Buffer
	cmd := exec.CommandContext(ctx, "ping", "-c", "1", "-W", fmt.Sprint(timeoutSec), ip)
	cmd.Stdout = &stdout
	if err := cmd.Run(); err != nil {
		return &ProbeResult{}, nil
	}

	latency, ttl := parsePingOutput(stdout.String())
	return &ProbeResult{Alive: true, Latency: latency, TTL: ttl}, nil
}

var (
	rePingTime = regexp.MustCompile(`time=([\d.]+) ms`)
	rePingTTL  = regexp.MustCompile(`ttl=(\d+)`)
)

// parsePingOutput 解析 "64 bytes from 1.1.1.1: icmp_seq=1 ttl=56 time=13.5 ms"
func parsePingOutput(output string) (time.Duration, int) {
	var latency time.Duration
	var ttl int

	if matches := rePingTime.FindStringSubmatch(output); len(matches) > 1 {
		if ms, err := strconv.ParseFloat(matches[1], 64); err == nil {
			latency = time.Duration(ms * float64(time.Millisecond))
		}
	}
	if matches := rePingTTL.FindStringSubmatch(output); len(matches) > 1 {
		if t, err := strconv.Atoi(matches[1]); err == nil {
			ttl = t
		}
	}
	return latency, ttl
}
