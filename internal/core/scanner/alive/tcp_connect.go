package alive

import (
	"context"
	"fmt"
	"net"
	"time"
)

// TcpConnectProber 基于 TCP Full Connect 的探测器
// ICMP 被防火墙挡掉时的补充手段
type TcpConnectProber struct {
	Ports []int
}

func NewTcpConnectProber(ports []int) *TcpConnectProber {
	return &TcpConnectProber{Ports: ports}
}

func (p *TcpConnectProber) Probe(ctx context.Context, ip string, timeout time.Duration) (*ProbeResult, error) {
	if len(p.Ports) == 0 {
		return &ProbeResult{}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resultChan := make(chan time.Duration, len(p.Ports))
	var d net.Dialer
	for _, port := range p.Ports {
		go func(port int) {
			start := time.Now()
			conn, err := d.DialContext(ctx, "tcp", fmt.Sprintf("%s:%d", ip, port))
			if err == nil {
				conn.Close()
				resultChan <- time.Since(start)
			} else {
				resultChan <- 0
			}
		}(port)
	}

	// 只要有一个端口通就算活
	for i := 0; i < len(p.Ports); i++ {
		select {
		case latency := <-resultChan:
			if latency > 0 {
				return &ProbeResult{Alive: true, Latency: latency}, nil
			}
		case <-ctx.Done():
			return &ProbeResult{}, ctx.Err()
		}
	}
	return &ProbeResult{}, nil
}
