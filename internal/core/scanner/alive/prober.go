package alive

import (
	"context"
	"time"
)

// ProbeResult 探测结果
type ProbeResult struct {
	Alive   bool
	Latency time.Duration
	TTL     int
}

// Prober 定义存活探测器接口
type Prober interface {
	// Probe 执行单主机探测
	Probe(ctx context.Context, ip string, timeout time.Duration) (*ProbeResult, error)
}

// MultiProber 组合探测器: 并发执行，任一成功即存活
type MultiProber struct {
	probers []Prober
}

func NewMultiProber(probers ...Prober) *MultiProber {
	return &MultiProber{probers: probers}
}

func (m *MultiProber) Probe(ctx context.Context, ip string, timeout time.Duration) (*ProbeResult, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resultChan := make(chan *ProbeResult, len(m.probers))
	for _, p := range m.probers {
		go func(prober Prober) {
			res, err := prober.Probe(ctx, ip, timeout)
			if err != nil || res == nil {
				resultChan <- &ProbeResult{}
				return
			}
			resultChan <- res
		}(p)
	}

	for i := 0; i < len(m.probers); i++ {
		select {
		case res := <-resultChan:
			if res.Alive {
				return res, nil
			}
		case <-ctx.Done():
			return &ProbeResult{}, ctx.Err()
		}
	}
	return &ProbeResult{}, nil
}
