package loot

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// FileStore 战利品文件存储
// 目录布局: loot/<protocol>/<mac>/<ip>/<远端路径压平后的文件名>
type FileStore struct {
	dir string
}

// NewFileStore 创建存储，准备 loot 目录
func NewFileStore(dataDir string) (*FileStore, error) {
	dir := filepath.Join(dataDir, "loot")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create loot dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// TargetDir 某 (协议, mac, ip) 的战利品目录，按需创建
func (s *FileStore) TargetDir(protocol, mac, ip string) (string, error) {
	dir := filepath.Join(s.dir, protocol, flatten(mac), ip)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create loot target dir: %w", err)
	}
	return dir, nil
}

// Save 保存一个远端文件
// remotePath 压平成文件名 (斜杠换下划线)，避免在本地重建远端目录树
func (s *FileStore) Save(protocol, mac, ip, remotePath string, r io.Reader) (string, error) {
	dir, err := s.TargetDir(protocol, mac, ip)
	if err != nil {
		return "", err
	}

	local := filepath.Join(dir, flatten(remotePath))
	f, err := os.Create(local)
	if err != nil {
		return "", fmt.Errorf("failed to create loot file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		os.Remove(local)
		return "", fmt.Errorf("failed to write loot file: %w", err)
	}
	return local, nil
}

// Count 某目标已抓取的文件数 (单主机上限控制用)
func (s *FileStore) Count(protocol, mac, ip string) int {
	entries, err := os.ReadDir(filepath.Join(s.dir, protocol, flatten(mac), ip))
	if err != nil {
		return 0
	}
	return len(entries)
}

// Clear 删除全部战利品
func (s *FileStore) Clear() error {
	if err := os.RemoveAll(s.dir); err != nil {
		return err
	}
	return os.MkdirAll(s.dir, 0o755)
}

// flatten 路径分隔符和冒号换成安全字符
func flatten(p string) string {
	p = strings.TrimPrefix(p, "/")
	p = strings.ReplaceAll(p, "/", "_")
	p = strings.ReplaceAll(p, "\\", "_")
	p = strings.ReplaceAll(p, ":", "-")
	return p
}
