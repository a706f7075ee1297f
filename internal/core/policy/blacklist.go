package policy

import (
	"net"
	"strings"

	"raider/internal/config"
)

// Blacklist 目标排除规则
// 黑名单与网关排除在重试评估之前生效，命中即无条件排除
type Blacklist struct {
	macs           map[string]struct{}
	ips            map[string]struct{}
	excludeGateway bool
	gatewayIP      string
	subnet         *net.IPNet
}

// NewBlacklist 由网络配置构造排除规则
// gatewayIP 为探测到的网关地址，探测失败传空
func NewBlacklist(c *config.NetworkConfig, gatewayIP string) *Blacklist {
	b := &Blacklist{
		macs: make(map[string]struct{}),
		ips:  make(map[string]struct{}),
	}
	if c == nil {
		return b
	}
	for _, m := range c.BlacklistMACs {
		b.macs[normalizeMAC(m)] = struct{}{}
	}
	for _, ip := range c.BlacklistIPs {
		b.ips[strings.TrimSpace(ip)] = struct{}{}
	}
	b.excludeGateway = c.ExcludeGateway
	b.gatewayIP = gatewayIP
	if c.Subnet != "" {
		if _, ipNet, err := net.ParseCIDR(c.Subnet); err == nil {
			b.subnet = ipNet
		}
	}
	return b
}

// Blocked 目标是否被排除
func (b *Blacklist) Blocked(ip, mac string) bool {
	if _, ok := b.ips[ip]; ok {
		return true
	}
	if mac != "" {
		if _, ok := b.macs[normalizeMAC(mac)]; ok {
			return true
		}
	}
	if b.excludeGateway && b.gatewayIP != "" && ip == b.gatewayIP {
		return true
	}
	return false
}

// InScope IP 是否在目标网段内 (未配置网段时全部放行)
func (b *Blacklist) InScope(ip string) bool {
	if b.subnet == nil {
		return true
	}
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	return b.subnet.Contains(parsed)
}

func normalizeMAC(mac string) string {
	return strings.ToLower(strings.TrimSpace(mac))
}
