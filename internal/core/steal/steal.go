/**
 * 文件/数据窃取
 * @description: 爆破成功后的子动作。用已命中的凭据登录目标，
 *               按扩展名过滤抓取文件到 loot 目录。
 */
package steal

import (
	"context"
	"path/filepath"
	"strings"
	"sync"

	"raider/internal/config"
	"raider/internal/core/model"
)

// Stealer 协议窃取器接口
type Stealer interface {
	// Protocol 协议名，与爆破动作的协议对应
	Protocol() string

	// Steal 用一条凭据抓取目标文件，返回抓到的文件数
	Steal(ctx context.Context, target *model.Target, port int, cred model.CredentialRecord) (int, error)
}

// Limits 抓取限制 (来自配置)
type Limits struct {
	Extensions      []string // 目标扩展名 (带点，如 ".txt")
	MaxFileSize     int64    // 单文件字节上限，0 不限
	MaxFilesPerHost int      // 单主机文件数上限，0 不限
}

// LimitsFromConfig 从配置构建限制
func LimitsFromConfig(c *config.StealConfig) Limits {
	if c == nil {
		return Limits{}
	}
	return Limits{
		Extensions:      c.Extensions,
		MaxFileSize:     c.MaxFileSize,
		MaxFilesPerHost: c.MaxFilesPerHost,
	}
}

// WantFile 文件名是否在目标扩展名里
// 未配置扩展名时全收
func (l Limits) WantFile(name string) bool {
	if len(l.Extensions) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(name))
	for _, want := range l.Extensions {
		if ext == strings.ToLower(want) {
			return true
		}
	}
	return false
}

// SizeOK 文件大小是否在上限内
func (l Limits) SizeOK(size int64) bool {
	return l.MaxFileSize <= 0 || size <= l.MaxFileSize
}

// Registry 窃取器注册表
type Registry struct {
	mu       sync.RWMutex
	stealers map[string]Stealer
}

func NewRegistry() *Registry {
	return &Registry{stealers: make(map[string]Stealer)}
}

func (r *Registry) Register(s Stealer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stealers[s.Protocol()] = s
}

func (r *Registry) Get(protocol string) (Stealer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.stealers[protocol]
	return s, ok
}
