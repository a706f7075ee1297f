package alive

import (
	"context"
	"fmt"
	"net"
	"sort"
	"sync"
	"time"
)

// PortScanner TCP Connect 端口扫描器
type PortScanner struct {
	Timeout     time.Duration
	Concurrency int
}

func NewPortScanner(timeout time.Duration, concurrency int) *PortScanner {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	if concurrency < 1 {
		concurrency = 64
	}
	return &PortScanner{Timeout: timeout, Concurrency: concurrency}
}

// Scan 扫描单主机的端口清单，返回开放端口 (升序)
func (s *PortScanner) Scan(ctx context.Context, ip string, ports []int) []int {
	var (
		mu   sync.Mutex
		open []int
		wg   sync.WaitGroup
	)
	sem := make(chan struct{}, s.Concurrency)
	var d net.Dialer

	for _, port := range ports {
		select {
		case <-ctx.Done():
			wg.Wait()
			sort.Ints(open)
			return open
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(port int) {
			defer wg.Done()
			defer func() { <-sem }()

			dialCtx, cancel := context.WithTimeout(ctx, s.Timeout)
			defer cancel()
			conn, err := d.DialContext(dialCtx, "tcp", fmt.Sprintf("%s:%d", ip, port))
			if err != nil {
				return
			}
			conn.Close()
			mu.Lock()
			open = append(open, port)
			mu.Unlock()
		}(port)
	}

	wg.Wait()
	sort.Ints(open)
	return open
}
