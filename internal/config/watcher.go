package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ConfigChangeCallback 配置变更回调
// 返回错误不会中断其他回调，仅记录
type ConfigChangeCallback func(oldConfig, newConfig *Config) error

// ConfigWatcher 配置文件监听器
// 使用 fsnotify 监听配置文件，变更后重新加载并通知回调。
// 调度器据此在运行中切换 manual_mode、重试开关等，无需重启进程。
type ConfigWatcher struct {
	configPath  string
	config      *Config
	loader      *ConfigLoader
	watcher     *fsnotify.Watcher
	callbacks   []ConfigChangeCallback
	mu          sync.RWMutex
	ctx         context.Context
	cancel      context.CancelFunc
	reloadDelay time.Duration
	lastReload  time.Time
}

// NewConfigWatcher 创建配置监听器
func NewConfigWatcher(configPath string, initial *Config) (*ConfigWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &ConfigWatcher{
		configPath:  configPath,
		config:      initial,
		loader:      NewConfigLoader(configPath, "RAIDER"),
		watcher:     watcher,
		callbacks:   make([]ConfigChangeCallback, 0),
		ctx:         ctx,
		cancel:      cancel,
		reloadDelay: 500 * time.Millisecond, // 编辑器保存会触发多次事件，做去抖
	}, nil
}

// OnChange 注册配置变更回调
func (cw *ConfigWatcher) OnChange(cb ConfigChangeCallback) {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	cw.callbacks = append(cw.callbacks, cb)
}

// Current 当前配置
func (cw *ConfigWatcher) Current() *Config {
	cw.mu.RLock()
	defer cw.mu.RUnlock()
	return cw.config
}

// Start 开始监听
func (cw *ConfigWatcher) Start(onError func(error)) error {
	// 监听目录而不是文件本身: 很多编辑器用 rename+create 保存
	dir := filepath.Dir(cw.configPath)
	if err := cw.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch config dir %s: %w", dir, err)
	}

	go cw.loop(onError)
	return nil
}

func (cw *ConfigWatcher) loop(onError func(error)) {
	target := filepath.Clean(cw.configPath)
	for {
		select {
		case <-cw.ctx.Done():
			return
		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if time.Since(cw.lastReload) < cw.reloadDelay {
				continue
			}
			cw.lastReload = time.Now()

			if err := cw.reload(); err != nil && onError != nil {
				onError(err)
			}
		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			if onError != nil {
				onError(err)
			}
		}
	}
}

// reload 重新加载配置并通知回调
func (cw *ConfigWatcher) reload() error {
	newConfig, err := cw.loader.LoadConfig()
	if err != nil {
		// 热加载失败保留旧配置，不影响运行
		return fmt.Errorf("config reload rejected: %w", err)
	}

	cw.mu.Lock()
	oldConfig := cw.config
	cw.config = newConfig
	callbacks := make([]ConfigChangeCallback, len(cw.callbacks))
	copy(callbacks, cw.callbacks)
	cw.mu.Unlock()

	for _, cb := range callbacks {
		if cbErr := cb(oldConfig, newConfig); cbErr != nil {
			err = cbErr
		}
	}
	return err
}

// Stop 停止监听
func (cw *ConfigWatcher) Stop() {
	cw.cancel()
	cw.watcher.Close()
}
