package model

import (
	"fmt"
	"sort"
)

// ManualMAC 手工录入目标的 MAC 占位值
const ManualMAC = "manual"

// Target 侦察目标
// 身份 = (IP, Hostname)。同一 IP 可挂多个 Hostname (虚拟主机)，
// 每个 (IP, Hostname) 组合在 netkb 中是独立行，但端口集按 IP 共享。
type Target struct {
	IP       string `json:"ip"`
	Hostname string `json:"hostname,omitempty"`
	MAC      string `json:"mac"`
	Alive    bool   `json:"alive"`

	// Outcomes 动作结果映射: actionID -> 编码后的结果单元格
	Outcomes map[string]string `json:"outcomes"`
}

// NewTarget 创建目标行
func NewTarget(ip, hostname, mac string) *Target {
	return &Target{
		IP:       ip,
		Hostname: hostname,
		MAC:      mac,
		Outcomes: make(map[string]string),
	}
}

// Key 行主键
func (t *Target) Key() string {
	return TargetKey(t.IP, t.Hostname)
}

// TargetKey 计算 (ip, hostname) 行主键
func TargetKey(ip, hostname string) string {
	if hostname == "" {
		return ip
	}
	return fmt.Sprintf("%s|%s", ip, hostname)
}

// Outcome 解析指定动作的结果
func (t *Target) Outcome(actionID string) Outcome {
	return ParseOutcome(t.Outcomes[actionID])
}

// Clone 深拷贝 (用于对外快照，避免调用方改到内部状态)
func (t *Target) Clone() *Target {
	cp := *t
	cp.Outcomes = make(map[string]string, len(t.Outcomes))
	for k, v := range t.Outcomes {
		cp.Outcomes[k] = v
	}
	return &cp
}

// DiscoveredHost 网络发现产出
type DiscoveredHost struct {
	IP       string
	MAC      string
	Hostname string
}

// PortSet 有序端口集合，只增不减 (显式清理除外)
type PortSet struct {
	ports map[int]struct{}
}

func NewPortSet(ports ...int) *PortSet {
	s := &PortSet{ports: make(map[int]struct{})}
	s.Add(ports...)
	return s
}

func (s *PortSet) Add(ports ...int) {
	for _, p := range ports {
		if p > 0 {
			s.ports[p] = struct{}{}
		}
	}
}

func (s *PortSet) Has(port int) bool {
	_, ok := s.ports[port]
	return ok
}

func (s *PortSet) Len() int {
	return len(s.ports)
}

// List 升序端口列表
func (s *PortSet) List() []int {
	out := make([]int, 0, len(s.ports))
	for p := range s.ports {
		out = append(out, p)
	}
	sort.Ints(out)
	return out
}
