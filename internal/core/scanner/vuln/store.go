package vuln

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"raider/internal/core/model"
)

var summaryHeader = []string{"IP", "Hostname", "MAC Address", "Port", "Vulnerabilities"}

// Store 漏洞结果持久化
// summary.csv 按 (IP, MAC) 去重保留最后一次；详情与原始输出按 (mac, ip) 落文件
type Store struct {
	mu  sync.Mutex
	dir string
}

// NewStore 创建存储，准备 vulns 目录
func NewStore(dataDir string) (*Store, error) {
	dir := filepath.Join(dataDir, "vulns")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create vulns dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) summaryPath() string {
	return filepath.Join(s.dir, "summary.csv")
}

// UpdateSummary 追加一行汇总并按 (IP, MAC) 去重，保留最后一次结果
func (s *Store) UpdateSummary(ip, hostname, mac, ports, labels string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.readSummaryRows()
	if err != nil {
		return err
	}
	rows = append(rows, []string{ip, hostname, mac, ports, labels})

	// 去重: 同 (IP, MAC) 保留最后出现的行
	seen := make(map[string]int)
	var deduped [][]string
	for _, row := range rows {
		key := row[0] + "|" + row[2]
		if idx, ok := seen[key]; ok {
			deduped[idx] = row
			continue
		}
		seen[key] = len(deduped)
		deduped = append(deduped, row)
	}

	f, err := os.Create(s.summaryPath())
	if err != nil {
		return fmt.Errorf("failed to write vuln summary: %w", err)
	}
	defer f.Close()

	writer := csv.NewWriter(f)
	if err := writer.Write(summaryHeader); err != nil {
		return err
	}
	for _, row := range deduped {
		if err := writer.Write(row); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// Summaries 读取全部汇总
func (s *Store) Summaries() ([]model.VulnSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.readSummaryRows()
	if err != nil {
		return nil, err
	}
	out := make([]model.VulnSummary, 0, len(rows))
	for _, row := range rows {
		sum := model.VulnSummary{IP: row[0], Hostname: row[1], MAC: row[2], Ports: row[3], Labels: row[4]}
		if sum.Labels != "" {
			sum.Count = len(strings.Split(sum.Labels, "; "))
		}
		out = append(out, sum)
	}
	return out, nil
}

// SaveDetails 保存结构化详情 JSON
func (s *Store) SaveDetails(mac, ip string, findings []model.VulnFinding) error {
	data, err := json.MarshalIndent(findings, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.detailsPath(mac, ip), data, 0o644)
}

// Details 读取某 IP 的详情 (mac 未知时按文件名后缀匹配)
func (s *Store) Details(ip string) ([]model.VulnFinding, error) {
	matches, err := filepath.Glob(filepath.Join(s.dir, fmt.Sprintf("*_%s_details.json", sanitize(ip))))
	if err != nil || len(matches) == 0 {
		return nil, fmt.Errorf("no vulnerability details for %s", ip)
	}

	var findings []model.VulnFinding
	data, err := os.ReadFile(matches[0])
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, &findings); err != nil {
		return nil, fmt.Errorf("corrupt details file for %s: %w", ip, err)
	}
	return findings, nil
}

// SaveRaw 保存原始 nmap 输出
func (s *Store) SaveRaw(mac, ip, output string) error {
	return os.WriteFile(s.rawPath(mac, ip), []byte(output), 0o644)
}

// Clear 删除全部漏洞结果
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.RemoveAll(s.dir); err != nil {
		return err
	}
	return os.MkdirAll(s.dir, 0o755)
}

func (s *Store) detailsPath(mac, ip string) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s_%s_details.json", sanitize(mac), sanitize(ip)))
}

func (s *Store) rawPath(mac, ip string) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s_%s_scan.txt", sanitize(mac), sanitize(ip)))
}

func (s *Store) readSummaryRows() ([][]string, error) {
	f, err := os.Open(s.summaryPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	var rows [][]string
	first := true
	for {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if first {
			first = false
			continue // 表头
		}
		for len(rec) < len(summaryHeader) {
			rec = append(rec, "")
		}
		rows = append(rows, rec)
	}
	return rows, nil
}

// sanitize MAC 里的冒号换成连字符，文件名跨平台安全
func sanitize(s string) string {
	return strings.ReplaceAll(s, ":", "-")
}
