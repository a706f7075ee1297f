/**
 * 网络发现扫描器
 * @description: 网段展开 -> 存活探测 -> MAC/主机名补全 -> 端口扫描。
 *               产出只进 netkb 不直接触发攻击，调度由编排器负责。
 */
package alive

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"raider/internal/config"
	"raider/internal/core/model"
	"raider/internal/pkg/logger"
)

// NetScanner 网络发现扫描器
type NetScanner struct {
	cfg    *config.NetworkConfig
	prober Prober
	ports  *PortScanner
}

// NewNetScanner 创建发现扫描器
// 探测器组合: ARP (同网段最准) + ICMP + TCP Connect 兜底
func NewNetScanner(cfg *config.NetworkConfig) *NetScanner {
	return &NetScanner{
		cfg: cfg,
		prober: NewMultiProber(
			NewArpProber(),
			NewIcmpProber(),
			NewTcpConnectProber(cfg.PortList),
		),
		ports: NewPortScanner(cfg.ScanTimeout, cfg.ScanRate),
	}
}

// DiscoveredTarget 发现结果: 主机 + 开放端口
type DiscoveredTarget struct {
	Host  model.DiscoveredHost
	Ports []int
}

// Sweep 全网段发现
// 网段优先取配置，未配置时从本机接口推断
func (s *NetScanner) Sweep(ctx context.Context) ([]DiscoveredTarget, error) {
	subnet := s.cfg.Subnet
	if subnet == "" {
		local, err := localSubnet()
		if err != nil {
			return nil, fmt.Errorf("no subnet configured and local detection failed: %w", err)
		}
		subnet = local
		logger.Infof("network scan using detected subnet %s", subnet)
	}

	ips, err := enumerateSubnet(subnet)
	if err != nil {
		return nil, err
	}

	timeout := s.cfg.ScanTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	rate := s.cfg.ScanRate
	if rate < 1 {
		rate = 64
	}

	var (
		mu    sync.Mutex
		alive []string
		wg    sync.WaitGroup
	)
	sem := make(chan struct{}, rate)
	for _, ip := range ips {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case sem <- struct{}{}:
		}
		wg.Add(1)
		go func(ip string) {
			defer wg.Done()
			defer func() { <-sem }()
			res, err := s.prober.Probe(ctx, ip, timeout)
			if err == nil && res.Alive {
				mu.Lock()
				alive = append(alive, ip)
				mu.Unlock()
			}
		}(ip)
	}
	wg.Wait()

	logger.Infof("network scan: %d/%d hosts alive on %s", len(alive), len(ips), subnet)

	// 存活主机补全 MAC/主机名并扫端口
	out := make([]DiscoveredTarget, 0, len(alive))
	for _, ip := range alive {
		select {
		case <-ctx.Done():
			return out, ctx.Err()
		default:
		}
		host := model.DiscoveredHost{
			IP:       ip,
			MAC:      LookupMAC(ip),
			Hostname: reverseLookup(ip),
		}
		openPorts := s.ports.Scan(ctx, ip, s.cfg.PortList)
		out = append(out, DiscoveredTarget{Host: host, Ports: openPorts})
	}
	return out, nil
}

// ProbeOne 单主机发现 (手工添加目标时用)
func (s *NetScanner) ProbeOne(ctx context.Context, ip string) (*DiscoveredTarget, bool) {
	timeout := s.cfg.ScanTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	res, err := s.prober.Probe(ctx, ip, timeout)
	if err != nil || !res.Alive {
		return nil, false
	}
	host := model.DiscoveredHost{
		IP:       ip,
		MAC:      LookupMAC(ip),
		Hostname: reverseLookup(ip),
	}
	openPorts := s.ports.Scan(ctx, ip, s.cfg.PortList)
	return &DiscoveredTarget{Host: host, Ports: openPorts}, true
}

// enumerateSubnet 展开 CIDR，剔除网络地址与广播地址
func enumerateSubnet(subnet string) ([]string, error) {
	_, ipNet, err := net.ParseCIDR(subnet)
	if err != nil {
		return nil, fmt.Errorf("invalid subnet %q: %w", subnet, err)
	}

	var ips []string
	for ip := ipNet.IP.Mask(ipNet.Mask); ipNet.Contains(ip); incIP(ip) {
		ips = append(ips, ip.String())
	}
	if len(ips) > 2 {
		return ips[1 : len(ips)-1], nil
	}
	return ips, nil
}

func incIP(ip net.IP) {
	for j := len(ip) - 1; j >= 0; j-- {
		ip[j]++
		if ip[j] > 0 {
			break
		}
	}
}

// localSubnet 从第一个非回环 IPv4 接口地址推断网段
func localSubnet() (string, error) {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "", err
	}
	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok || ipNet.IP.IsLoopback() || ipNet.IP.To4() == nil {
			continue
		}
		return ipNet.String(), nil
	}
	return "", fmt.Errorf("no usable IPv4 interface found")
}

// reverseLookup 反向解析主机名，去掉尾部的点
func reverseLookup(ip string) string {
	names, err := net.LookupAddr(ip)
	if err != nil || len(names) == 0 {
		return ""
	}
	return strings.TrimSuffix(names[0], ".")
}

// ResolveHostname 正向解析主机名到 IPv4
// 手工添加目标时用; 解析失败返回错误由控制面上报，不终止进程
func ResolveHostname(hostname string) (string, error) {
	addrs, err := net.LookupHost(hostname)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %q: %w", hostname, err)
	}
	for _, a := range addrs {
		if ip := net.ParseIP(a); ip != nil && ip.To4() != nil {
			return ip.String(), nil
		}
	}
	return "", fmt.Errorf("no IPv4 address for %q", hostname)
}
