/**
 * Raider 配置管理
 * @description: 配置结构定义与校验。必填项缺失或非法时启动失败 (ConfigInvalid 为致命错误)。
 */
package config

import (
	"fmt"
	"net"
	"time"
)

// Config Raider 配置
type Config struct {
	// 应用配置
	App *AppConfig `yaml:"app" mapstructure:"app"`

	// 控制面 HTTP 服务配置
	Server *ServerConfig `yaml:"server" mapstructure:"server"`

	// 日志配置
	Log *LogConfig `yaml:"log" mapstructure:"log"`

	// 调度器配置
	Scheduler *SchedulerConfig `yaml:"scheduler" mapstructure:"scheduler"`

	// 网络发现配置
	Network *NetworkConfig `yaml:"network" mapstructure:"network"`

	// 爆破配置
	Brute *BruteConfig `yaml:"brute" mapstructure:"brute"`

	// 窃取配置
	Steal *StealConfig `yaml:"steal" mapstructure:"steal"`

	// 漏洞扫描配置
	Vuln *VulnConfig `yaml:"vuln" mapstructure:"vuln"`

	// 数据目录 (netkb/凭据日志/战利品/漏洞结果)
	DataDir string `yaml:"data_dir" mapstructure:"data_dir"`
}

// AppConfig 应用配置
type AppConfig struct {
	Name    string `yaml:"name" mapstructure:"name"`       // 应用名称
	Version string `yaml:"version" mapstructure:"version"` // 应用版本
	Debug   bool   `yaml:"debug" mapstructure:"debug"`     // 调试模式
}

// ServerConfig 控制面服务配置
type ServerConfig struct {
	Host         string        `yaml:"host" mapstructure:"host"`                   // 监听地址
	Port         int           `yaml:"port" mapstructure:"port"`                   // 监听端口
	Mode         string        `yaml:"mode" mapstructure:"mode"`                   // gin 运行模式 (debug/release/test)
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`   // 读取超时
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"` // 写入超时
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `yaml:"level" mapstructure:"level"`             // 日志级别 (debug/info/warn/error)
	Format     string `yaml:"format" mapstructure:"format"`           // 日志格式 (json/text)
	Output     string `yaml:"output" mapstructure:"output"`           // 日志输出 (stdout/stderr/file)
	FilePath   string `yaml:"file_path" mapstructure:"file_path"`     // 日志文件路径
	MaxSize    int    `yaml:"max_size" mapstructure:"max_size"`       // 最大文件大小 (MB)
	MaxBackups int    `yaml:"max_backups" mapstructure:"max_backups"` // 最大备份数
	MaxAge     int    `yaml:"max_age" mapstructure:"max_age"`         // 最大保留天数
	Compress   bool   `yaml:"compress" mapstructure:"compress"`       // 是否压缩
	Caller     bool   `yaml:"caller" mapstructure:"caller"`           // 是否显示调用者信息
}

// SchedulerConfig 调度器配置
type SchedulerConfig struct {
	ManualMode          bool          `yaml:"manual_mode" mapstructure:"manual_mode"`                       // 启动即手动模式
	ScanInterval        time.Duration `yaml:"scan_interval" mapstructure:"scan_interval"`                   // 空闲后的扫描间隔
	AttackOrder         string        `yaml:"attack_order" mapstructure:"attack_order"`                     // 攻击顺序策略 (per_host/per_phase/spread)
	RetrySuccessActions bool          `yaml:"retry_success_actions" mapstructure:"retry_success_actions"`   // 成功动作是否重试
	SuccessRetryDelay   time.Duration `yaml:"success_retry_delay" mapstructure:"success_retry_delay"`       // 成功重试间隔
	RetryFailedActions  bool          `yaml:"retry_failed_actions" mapstructure:"retry_failed_actions"`     // 失败动作是否重试
	FailedRetryDelay    time.Duration `yaml:"failed_retry_delay" mapstructure:"failed_retry_delay"`         // 失败重试间隔
	MaxFailedRetries    int           `yaml:"max_failed_retries" mapstructure:"max_failed_retries"`         // 最大失败重试次数
	VulnScanEnabled     bool          `yaml:"vuln_scan_enabled" mapstructure:"vuln_scan_enabled"`           // 是否启用漏洞扫描
	VulnScanFirst       bool          `yaml:"vuln_scan_first" mapstructure:"vuln_scan_first"`               // 每主机先跑漏洞扫描
	StealEnabled        bool          `yaml:"steal_enabled" mapstructure:"steal_enabled"`                   // 是否启用窃取阶段
	ClearHostsOnStartup bool          `yaml:"clear_hosts_on_startup" mapstructure:"clear_hosts_on_startup"` // 启动时归档并清空 netkb
}

// NetworkConfig 网络发现配置
type NetworkConfig struct {
	Subnet         string        `yaml:"subnet" mapstructure:"subnet"`                   // 目标网段 CIDR，空则不过滤
	PortList       []int         `yaml:"port_list" mapstructure:"port_list"`             // 端口扫描清单
	BlacklistMACs  []string      `yaml:"blacklist_macs" mapstructure:"blacklist_macs"`   // MAC 黑名单
	BlacklistIPs   []string      `yaml:"blacklist_ips" mapstructure:"blacklist_ips"`     // IP 黑名单
	ExcludeGateway bool          `yaml:"exclude_gateway" mapstructure:"exclude_gateway"` // 自动排除网关
	ScanTimeout    time.Duration `yaml:"scan_timeout" mapstructure:"scan_timeout"`       // 单主机探测超时
	ScanRate       int           `yaml:"scan_rate" mapstructure:"scan_rate"`             // 发现阶段并发数
	Aggressivity   string        `yaml:"aggressivity" mapstructure:"aggressivity"`       // nmap 时序模板 (-T1..-T5)
}

// BruteConfig 爆破配置
type BruteConfig struct {
	WorkerThreads int               `yaml:"worker_threads" mapstructure:"worker_threads"` // 工作池并发上限
	QueueTimeout  time.Duration     `yaml:"queue_timeout" mapstructure:"queue_timeout"`   // 单任务墙钟超时
	UserList      string            `yaml:"user_list" mapstructure:"user_list"`           // 用户名字典文件，空用内置
	PassList      string            `yaml:"pass_list" mapstructure:"pass_list"`           // 密码字典文件，空用内置
	TimeWait      map[string]string `yaml:"time_wait" mapstructure:"time_wait"`           // 协议级尝试间隔 (防锁定)，如 {"smb": "2s"}
}

// TimeWaitFor 解析协议的尝试间隔，未配置返回 0
func (b *BruteConfig) TimeWaitFor(protocol string) time.Duration {
	if b == nil || b.TimeWait == nil {
		return 0
	}
	d, err := time.ParseDuration(b.TimeWait[protocol])
	if err != nil {
		return 0
	}
	return d
}

// StealConfig 窃取配置
type StealConfig struct {
	Extensions      []string `yaml:"extensions" mapstructure:"extensions"`                 // 目标文件扩展名
	MaxFileSize     int64    `yaml:"max_file_size" mapstructure:"max_file_size"`           // 单文件大小上限 (字节)
	MaxFilesPerHost int      `yaml:"max_files_per_host" mapstructure:"max_files_per_host"` // 单主机抓取上限
}

// VulnConfig 漏洞扫描配置
type VulnConfig struct {
	ScanTimeout time.Duration `yaml:"scan_timeout" mapstructure:"scan_timeout"` // 单批次超时
	HTTPPorts   []int         `yaml:"http_ports" mapstructure:"http_ports"`     // 按 HTTP 方式分批扫描的端口
}

// Validate 校验配置
// 只在启动时调用一次；返回错误即拒绝启动
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	if c.Scheduler == nil {
		return fmt.Errorf("scheduler section is required")
	}
	if c.Scheduler.ScanInterval <= 0 {
		return fmt.Errorf("scheduler.scan_interval must be positive, got %v", c.Scheduler.ScanInterval)
	}
	switch c.Scheduler.AttackOrder {
	case "per_host", "per_phase", "spread":
	default:
		return fmt.Errorf("scheduler.attack_order must be one of per_host/per_phase/spread, got %q", c.Scheduler.AttackOrder)
	}
	if c.Scheduler.MaxFailedRetries < 1 {
		return fmt.Errorf("scheduler.max_failed_retries must be >= 1")
	}
	if c.Brute == nil || c.Brute.WorkerThreads < 1 {
		return fmt.Errorf("brute.worker_threads must be >= 1")
	}
	if c.Brute.QueueTimeout <= 0 {
		return fmt.Errorf("brute.queue_timeout must be positive")
	}
	if c.Network != nil && c.Network.Subnet != "" {
		if _, _, err := net.ParseCIDR(c.Network.Subnet); err != nil {
			return fmt.Errorf("network.subnet is not a valid CIDR: %w", err)
		}
	}
	if c.Vuln != nil && c.Vuln.ScanTimeout <= 0 {
		return fmt.Errorf("vuln.scan_timeout must be positive")
	}
	return nil
}
