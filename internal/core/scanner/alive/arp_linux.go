//go:build !windows && !darwin

package alive

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// Linux 下的 ARP 实现
// 策略:
// 1. 调用系统 arping 命令 (最准确，但可能不存在)
// 2. arping 不存在或失败时返回 false，上层组合探测器用 ICMP 兜底
// MAC 地址从 /proc/net/arp 读取，不自己发 ARP 包

type ArpProber struct{}

func NewArpProber() *ArpProber {
	return &ArpProber{}
}

func (p *ArpProber) Probe(ctx context.Context, ip string, timeout time.Duration) (*ProbeResult, error) {
	arpingPath, err := exec.LookPath("arping")
	if err != nil {
		return &ProbeResult{}, nil
	}

	timeoutSec := int(timeout.Seconds())
	if timeoutSec < 1 {
		timeoutSec = 1
	}

	// -f: quit on first reply
	cmd := exec.CommandContext(ctx, arpingPath, "-f", "-c", "1", "-w", fmt.Sprint(timeoutSec), ip)
	start := time.Now()
	if err := cmd.Run(); err != nil {
		return &ProbeResult{}, nil
	}
	// 延迟含进程启动开销，只做粗略参考
	return &ProbeResult{Alive: true, Latency: time.Since(start)}, nil
}

// LookupMAC 从内核 ARP 表取 ip 对应的 MAC
// 只有最近有过二层交互的主机才会有表项，查不到返回空串
func LookupMAC(ip string) string {
	f, err := os.Open("/proc/net/arp")
	if err != nil {
		return ""
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Scan() // 表头
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		// IP address / HW type / Flags / HW address / Mask / Device
		if len(fields) >= 4 && fields[0] == ip {
			mac := strings.ToLower(fields[3])
			if mac != "00:00:00:00:00:00" {
				return mac
			}
		}
	}
	return ""
}
