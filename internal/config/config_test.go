package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		DataDir: "/tmp/raider-test",
		Scheduler: &SchedulerConfig{
			ScanInterval:     180 * time.Second,
			AttackOrder:      "per_host",
			MaxFailedRetries: 3,
		},
		Network: &NetworkConfig{Subnet: "192.168.1.0/24"},
		Brute:   &BruteConfig{WorkerThreads: 4, QueueTimeout: 15 * time.Minute},
		Vuln:    &VulnConfig{ScanTimeout: 2 * time.Minute},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"合法配置", func(c *Config) {}, false},
		{"缺数据目录", func(c *Config) { c.DataDir = "" }, true},
		{"缺调度配置", func(c *Config) { c.Scheduler = nil }, true},
		{"扫描间隔为零", func(c *Config) { c.Scheduler.ScanInterval = 0 }, true},
		{"非法攻击顺序", func(c *Config) { c.Scheduler.AttackOrder = "random" }, true},
		{"spread顺序合法", func(c *Config) { c.Scheduler.AttackOrder = "spread" }, false},
		{"per_phase顺序合法", func(c *Config) { c.Scheduler.AttackOrder = "per_phase" }, false},
		{"失败重试上限为零", func(c *Config) { c.Scheduler.MaxFailedRetries = 0 }, true},
		{"工作线程为零", func(c *Config) { c.Brute.WorkerThreads = 0 }, true},
		{"队列超时为零", func(c *Config) { c.Brute.QueueTimeout = 0 }, true},
		{"非法网段", func(c *Config) { c.Network.Subnet = "not-a-cidr" }, true},
		{"空网段合法", func(c *Config) { c.Network.Subnet = "" }, false},
		{"漏扫超时为零", func(c *Config) { c.Vuln.ScanTimeout = 0 }, true},
		{"无漏扫配置合法", func(c *Config) { c.Vuln = nil }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(c)
			err := c.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestTimeWaitFor(t *testing.T) {
	b := &BruteConfig{TimeWait: map[string]string{"smb": "2s", "rdp": "bogus"}}
	if got := b.TimeWaitFor("smb"); got != 2*time.Second {
		t.Errorf("smb wait = %v, want 2s", got)
	}
	if got := b.TimeWaitFor("rdp"); got != 0 {
		t.Errorf("unparseable wait = %v, want 0", got)
	}
	if got := b.TimeWaitFor("ssh"); got != 0 {
		t.Errorf("unconfigured wait = %v, want 0", got)
	}
	var nilCfg *BruteConfig
	if got := nilCfg.TimeWaitFor("smb"); got != 0 {
		t.Errorf("nil config wait = %v, want 0", got)
	}
}

func TestLoaderDefaults(t *testing.T) {
	// 显式指定的配置文件缺失是致命的
	if _, err := NewConfigLoader(filepath.Join(t.TempDir(), "nonexistent-dir", "config.yaml"), "RAIDER_TEST").LoadConfig(); err == nil {
		t.Fatal("explicit missing config file should fail")
	}

	// 无配置文件时纯默认值可用
	cfg, err := NewConfigLoader("", "RAIDER_TEST2").LoadConfig()
	if err != nil {
		t.Fatalf("defaults-only load failed: %v", err)
	}
	if cfg.Scheduler.AttackOrder != "per_host" {
		t.Errorf("default attack order = %q", cfg.Scheduler.AttackOrder)
	}
	if cfg.Brute.WorkerThreads != 4 {
		t.Errorf("default worker threads = %d", cfg.Brute.WorkerThreads)
	}
	if cfg.Server.Port != 8146 {
		t.Errorf("default port = %d", cfg.Server.Port)
	}
}

func TestLoaderReadsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte(`
scheduler:
  scan_interval: 300s
  attack_order: spread
brute:
  worker_threads: 8
data_dir: ` + dir + `
`)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := NewConfigLoader(path, "RAIDER_TEST3").LoadConfig()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Scheduler.ScanInterval != 300*time.Second {
		t.Errorf("scan interval = %v", cfg.Scheduler.ScanInterval)
	}
	if cfg.Scheduler.AttackOrder != "spread" {
		t.Errorf("attack order = %q", cfg.Scheduler.AttackOrder)
	}
	if cfg.Brute.WorkerThreads != 8 {
		t.Errorf("worker threads = %d", cfg.Brute.WorkerThreads)
	}
	// 文件没写的键落回默认值
	if cfg.Brute.QueueTimeout != 15*time.Minute {
		t.Errorf("queue timeout default = %v", cfg.Brute.QueueTimeout)
	}
}
