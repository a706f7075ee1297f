/**
 * 凭据日志
 * @description: 每协议一个追加式 CSV (creds/<protocol>.csv)。
 *               写失败只记日志，命中结果仍在 netkb 里，不致命。
 */
package loot

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"raider/internal/core/model"
)

var credHeader = []string{"IP", "MAC", "Username", "Password", "FoundAt"}

// CredStore 凭据存储
type CredStore struct {
	mu  sync.Mutex
	dir string
}

// NewCredStore 创建存储，准备 creds 目录
func NewCredStore(dataDir string) (*CredStore, error) {
	dir := filepath.Join(dataDir, "creds")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create creds dir: %w", err)
	}
	return &CredStore{dir: dir}, nil
}

func (s *CredStore) path(protocol string) string {
	return filepath.Join(s.dir, protocol+".csv")
}

// Append 追加一条凭据
// 文件不存在先写表头; 同一进程内的并发追加由互斥锁线性化
func (s *CredStore) Append(cred model.CredentialRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.path(cred.Protocol)
	_, statErr := os.Stat(path)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open credential log: %w", err)
	}
	defer f.Close()

	writer := csv.NewWriter(f)
	if os.IsNotExist(statErr) {
		if err := writer.Write(credHeader); err != nil {
			return err
		}
	}
	if err := writer.Write([]string{
		cred.IP, cred.MAC, cred.Username, cred.Password,
		cred.FoundAt.Format(model.OutcomeTimeLayout),
	}); err != nil {
		return err
	}
	writer.Flush()
	return writer.Error()
}

// List 读取某协议的全部凭据
func (s *CredStore) List(protocol string) ([]model.CredentialRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path(protocol))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	var out []model.CredentialRecord
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
			continue
		}
		if len(rec) < 4 {
			continue
		}
		cred := model.CredentialRecord{
			Protocol: protocol,
			IP:       rec[0],
			MAC:      rec[1],
			Username: rec[2],
			Password: rec[3],
		}
		if len(rec) > 4 {
			if t, err := time.Parse(model.OutcomeTimeLayout, rec[4]); err == nil {
				cred.FoundAt = t
			}
		}
		out = append(out, cred)
	}
	return out, nil
}

// FindForTarget 查某 (ip, protocol) 的已知凭据 (窃取阶段用)
func (s *CredStore) FindForTarget(protocol, ip string) ([]model.CredentialRecord, error) {
	all, err := s.List(protocol)
	if err != nil {
		return nil, err
	}
	var out []model.CredentialRecord
	for _, cred := range all {
		if cred.IP == ip {
			out = append(out, cred)
		}
	}
	return out, nil
}

// Clear 删除全部凭据日志
func (s *CredStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.RemoveAll(s.dir); err != nil {
		return err
	}
	return os.MkdirAll(s.dir, 0o755)
}
