package netkb

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"raider/internal/core/model"
)

// CSV 固定列，之后是动作结果列
var baseColumns = []string{"MAC", "IP", "Hostname", "Alive", "Ports"}

// Store netkb 的 CSV 持久化层
// 写入走临时文件 + rename，避免崩溃留下半截文件
type Store struct {
	path       string   // netkb.csv 路径
	archiveDir string   // 归档目录
	columns    []string // 动作结果列 (固定顺序)
}

// NewStore 创建存储并准备目录
func NewStore(dataDir string, outcomeColumns []string) (*Store, error) {
	archiveDir := filepath.Join(dataDir, "archives")
	if err := os.MkdirAll(archiveDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create archive dir: %w", err)
	}
	return &Store{
		path:       filepath.Join(dataDir, "netkb.csv"),
		archiveDir: archiveDir,
		columns:    outcomeColumns,
	}, nil
}

// Path 当前 CSV 文件路径
func (s *Store) Path() string {
	return s.path
}

// Load 读取 CSV，文件不存在视为空库
// 列按表头解析，磁盘上多出的结果列原样保留进 Outcomes
func (s *Store) Load() ([]*model.Target, map[string]*model.PortSet, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, make(map[string]*model.PortSet), nil
		}
		return nil, nil, fmt.Errorf("failed to open netkb file: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, make(map[string]*model.PortSet), nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read netkb header: %w", err)
	}

	idx := make(map[string]int, len(header))
	for i, col := range header {
		idx[col] = i
	}
	for _, col := range baseColumns {
		if _, ok := idx[col]; !ok {
			return nil, nil, fmt.Errorf("netkb header missing column %q", col)
		}
	}

	var rows []*model.Target
	ports := make(map[string]*model.PortSet)
	for {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read netkb row: %w", err)
		}
		field := func(col string) string {
			i, ok := idx[col]
			if !ok || i >= len(rec) {
				return ""
			}
			return rec[i]
		}

		ip := field("IP")
		if ip == "" {
			continue
		}
		row := model.NewTarget(ip, field("Hostname"), field("MAC"))
		row.Alive = field("Alive") == "1"

		set, ok := ports[ip]
		if !ok {
			set = model.NewPortSet()
			ports[ip] = set
		}
		set.Add(parsePorts(field("Ports"))...)

		for i, col := range header {
			if isBaseColumn(col) || i >= len(rec) || rec[i] == "" {
				continue
			}
			row.Outcomes[col] = rec[i]
		}
		rows = append(rows, row)
	}
	return rows, ports, nil
}

// Save 整表覆写
func (s *Store) Save(rows []*model.Target, ports map[string]*model.PortSet) error {
	// 磁盘上可能存在内存目录之外的历史结果列，保持它们不丢
	columns := s.mergedColumns(rows)

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".netkb-*.csv")
	if err != nil {
		return fmt.Errorf("failed to create temp netkb file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	writer := csv.NewWriter(tmp)
	header := append(append([]string{}, baseColumns...), columns...)
	if err := writer.Write(header); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write netkb header: %w", err)
	}

	for _, row := range rows {
		alive := "0"
		if row.Alive {
			alive = "1"
		}
		portField := ""
		if set, ok := ports[row.IP]; ok {
			portField = formatPorts(set.List())
		}
		rec := []string{row.MAC, row.IP, row.Hostname, alive, portField}
		for _, col := range columns {
			rec = append(rec, row.Outcomes[col])
		}
		if err := writer.Write(rec); err != nil {
			tmp.Close()
			return fmt.Errorf("failed to write netkb row: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to flush netkb csv: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp netkb file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("failed to replace netkb file: %w", err)
	}
	return nil
}

// Archive 把当前 CSV 复制到归档目录，文件名带时间戳
func (s *Store) Archive() (string, error) {
	src, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("failed to open netkb for archive: %w", err)
	}
	defer src.Close()

	name := fmt.Sprintf("netkb_%s.csv", time.Now().Format(model.OutcomeTimeLayout))
	dstPath := filepath.Join(s.archiveDir, name)
	dst, err := os.Create(dstPath)
	if err != nil {
		return "", fmt.Errorf("failed to create archive file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return "", fmt.Errorf("failed to copy netkb archive: %w", err)
	}
	return dstPath, nil
}

// mergedColumns 内存目录列 + 行里出现的未知列
func (s *Store) mergedColumns(rows []*model.Target) []string {
	columns := append([]string{}, s.columns...)
	known := make(map[string]struct{}, len(columns))
	for _, col := range columns {
		known[col] = struct{}{}
	}
	for _, row := range rows {
		for col := range row.Outcomes {
			if _, ok := known[col]; !ok {
				known[col] = struct{}{}
				columns = append(columns, col)
			}
		}
	}
	return columns
}

func isBaseColumn(col string) bool {
	for _, c := range baseColumns {
		if c == col {
			return true
		}
	}
	return false
}

// parsePorts 解析分号分隔的端口字段
func parsePorts(s string) []int {
	if s == "" {
		return nil
	}
	var out []int
	for _, part := range strings.Split(s, ";") {
		p, err := strconv.Atoi(strings.TrimSpace(part))
		if err == nil && p > 0 {
			out = append(out, p)
		}
	}
	return out
}

// formatPorts 端口列表转分号分隔字段
func formatPorts(ports []int) string {
	parts := make([]string, 0, len(ports))
	for _, p := range ports {
		parts = append(parts, strconv.Itoa(p))
	}
	return strings.Join(parts, ";")
}
