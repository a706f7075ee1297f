//go:build windows || darwin

package alive

import (
	"context"
	"time"
)

// 非 Linux 平台没有 arping/proc 依赖，ARP 探测直接放弃，
// 组合探测器会用 ICMP/TCP 兜底

type ArpProber struct{}

func NewArpProber() *ArpProber {
	return &ArpProber{}
}

func (p *ArpProber) Probe(ctx context.Context, ip string, timeout time.Duration) (*ProbeResult, error) {
	return &ProbeResult{}, nil
}

// LookupMAC 非 Linux 平台不支持，返回空串
func LookupMAC(ip string) string {
	return ""
}
