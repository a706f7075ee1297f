/**
 * 漏洞扫描器
 * @description: 驱动 nmap NSE 对单目标逐端口探测。HTTP 端口分批执行，
 *               批次超时丢弃该批保留其余；全部端口失败才算任务失败。
 */
package vuln

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"raider/internal/config"
	"raider/internal/core/model"
	"raider/internal/pkg/logger"
)

// Report 单目标扫描报告
type Report struct {
	Findings       []model.VulnFinding
	Labels         []string // 排序去重后的短标签
	PortsScanned   []int
	PortsSucceeded int
}

// Scanner 漏洞扫描器
type Scanner struct {
	runner       Runner
	store        *Store
	httpPorts    map[int]struct{}
	batchTimeout time.Duration
}

// NewScanner 创建扫描器
func NewScanner(runner Runner, store *Store, cfg *config.VulnConfig) *Scanner {
	httpPorts := DefaultHTTPPorts
	batchTimeout := 120 * time.Second
	if cfg != nil {
		if len(cfg.HTTPPorts) > 0 {
			httpPorts = cfg.HTTPPorts
		}
		if cfg.ScanTimeout > 0 {
			batchTimeout = cfg.ScanTimeout
		}
	}

	set := make(map[int]struct{}, len(httpPorts))
	for _, p := range httpPorts {
		set[p] = struct{}{}
	}
	return &Scanner{
		runner:       runner,
		store:        store,
		httpPorts:    set,
		batchTimeout: batchTimeout,
	}
}

// Scan 对目标的全部开放端口做漏洞探测
// 返回 success (至少一个端口完成) 或 failed (全部超时/失败)
func (s *Scanner) Scan(ctx context.Context, target *model.Target, ports []int) (model.OutcomeKind, *Report, error) {
	report := &Report{PortsScanned: ports}
	var combined strings.Builder
	labelSet := make(map[string]struct{})

	logger.Infof("vuln scanning %s on %d ports", target.IP, len(ports))

	for _, port := range ports {
		select {
		case <-ctx.Done():
			return model.OutcomeFailed, report, ctx.Err()
		default:
		}

		var output string
		var ok bool
		if _, isHTTP := s.httpPorts[port]; isHTTP {
			output, ok = s.scanHTTPPort(ctx, target, port)
		} else {
			output, ok = s.scanRegularPort(ctx, target.IP, port)
		}
		if !ok {
			continue
		}

		report.PortsSucceeded++
		combined.WriteString(output)

		for _, label := range ParseLabels(output) {
			labelSet[label] = struct{}{}
		}
		findings := ParseFindings(output)
		for i := range findings {
			findings[i].IP = target.IP
			findings[i].Hostname = target.Hostname
		}
		report.Findings = append(report.Findings, findings...)
	}

	if report.PortsSucceeded == 0 {
		logger.Warnf("vuln scan: all ports timed out or failed for %s", target.IP)
		return model.OutcomeFailed, report, fmt.Errorf("all %d ports failed for %s", len(ports), target.IP)
	}

	report.Labels = sortedLabels(labelSet)
	if err := s.persist(target, report, combined.String()); err != nil {
		// 结果落盘失败不推翻扫描本身
		logger.Errorf("vuln result persist failed for %s: %v", target.IP, err)
	}
	return model.OutcomeSuccess, report, nil
}

// scanHTTPPort 分批扫描 HTTP 端口
// 虚拟主机行把 hostname 作为 Host 头传给 http 脚本
func (s *Scanner) scanHTTPPort(ctx context.Context, target *model.Target, port int) (string, bool) {
	var combined strings.Builder
	succeeded := 0

	for _, batch := range HTTPVulnBatches {
		select {
		case <-ctx.Done():
			return combined.String(), succeeded > 0
		default:
		}
		logger.Infof("vuln scanning %s:%d - %s", target.IP, port, batch.Name)

		output, ok := s.runner.Run(ctx, target.IP, port, batch, s.batchTimeout, target.Hostname)
		if !ok {
			logger.Warnf("batch %q timeout on %s:%d after %v", batch.Name, target.IP, port, s.batchTimeout)
			continue
		}
		combined.WriteString(output)
		succeeded++
	}
	return combined.String(), succeeded > 0
}

// scanRegularPort 非 HTTP 端口一次跑全集
func (s *Scanner) scanRegularPort(ctx context.Context, ip string, port int) (string, bool) {
	output, ok := s.runner.Run(ctx, ip, port, RegularBatch, s.batchTimeout, "")
	if !ok {
		logger.Warnf("vuln scan timeout on %s:%d, moving to next port", ip, port)
	}
	return output, ok
}

func (s *Scanner) persist(target *model.Target, report *Report, raw string) error {
	if s.store == nil {
		return nil
	}
	ports := make([]string, 0, len(report.PortsScanned))
	for _, p := range report.PortsScanned {
		ports = append(ports, strconv.Itoa(p))
	}
	labels := strings.Join(report.Labels, "; ")
	if labels != "" {
		logger.Infof("vulnerabilities on %s: %s", target.IP, labels)
	} else {
		logger.Infof("no vulnerabilities found on %s", target.IP)
	}

	if err := s.store.UpdateSummary(target.IP, target.Hostname, target.MAC, strings.Join(ports, ","), labels); err != nil {
		return err
	}
	if err := s.store.SaveDetails(target.MAC, target.IP, report.Findings); err != nil {
		return err
	}
	return s.store.SaveRaw(target.MAC, target.IP, raw)
}

func sortedLabels(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for l := range set {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}
