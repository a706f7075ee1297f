package model

import "strings"

// VulnState 漏洞确认状态 (来自 NSE 输出的 State 字段)
type VulnState string

const (
	StateVulnerable       VulnState = "VULNERABLE"
	StateLikelyVulnerable VulnState = "LIKELY VULNERABLE"
)

// VulnFinding 单条漏洞发现
type VulnFinding struct {
	IP             string    `json:"ip"`
	Hostname       string    `json:"hostname,omitempty"`
	Port           string    `json:"port"` // "445/tcp" 或 "host"
	Service        string    `json:"service,omitempty"`
	Script         string    `json:"script"` // NSE 脚本名
	Title          string    `json:"title"`
	State          VulnState `json:"state"`
	Risk           string    `json:"risk,omitempty"`
	CVEs           []string  `json:"cves,omitempty"`
	Description    string    `json:"description,omitempty"`
	DisclosureDate string    `json:"disclosure_date,omitempty"`
	References     []string  `json:"references,omitempty"`
}

// Label 展示用短标签: 有 CVE 用 CVE 列表，否则用脚本名
func (f VulnFinding) Label() string {
	if len(f.CVEs) > 0 {
		return strings.Join(f.CVEs, "; ")
	}
	return f.Script
}

// VulnSummary 单目标漏洞汇总 (轻量列表用)
type VulnSummary struct {
	IP       string `json:"ip"`
	Hostname string `json:"hostname,omitempty"`
	MAC      string `json:"mac"`
	Ports    string `json:"ports"` // 扫描过的端口，逗号分隔
	Count    int    `json:"count"`
	Labels   string `json:"labels"` // 拼接后的发现标签
}
