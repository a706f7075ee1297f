package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// ConfigLoader 配置加载器
type ConfigLoader struct {
	configPath string
	envPrefix  string
	viper      *viper.Viper
}

// NewConfigLoader 创建配置加载器
func NewConfigLoader(configPath, envPrefix string) *ConfigLoader {
	if envPrefix == "" {
		envPrefix = "RAIDER"
	}
	return &ConfigLoader{
		configPath: configPath,
		envPrefix:  envPrefix,
		viper:      viper.New(),
	}
}

// LoadConfig 加载配置
// 顺序: 默认值 -> 配置文件 -> 环境变量。任一阶段的解析错误都视为致命
func (cl *ConfigLoader) LoadConfig() (*Config, error) {
	cl.viper.SetConfigType("yaml")

	// 环境变量绑定 (RAIDER_SCHEDULER_SCAN_INTERVAL 等)
	cl.viper.SetEnvPrefix(cl.envPrefix)
	cl.viper.AutomaticEnv()
	cl.viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	cl.setDefaults()

	if err := cl.loadConfigFile(); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	var config Config
	if err := cl.viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// loadConfigFile 加载配置文件
func (cl *ConfigLoader) loadConfigFile() error {
	if cl.configPath != "" {
		cl.viper.SetConfigFile(cl.configPath)
		if err := cl.viper.ReadInConfig(); err != nil {
			return err
		}
		return nil
	}

	// 默认搜索路径
	if envPath := os.Getenv(cl.envPrefix + "_CONFIG_PATH"); envPath != "" {
		cl.viper.SetConfigFile(envPath)
		return cl.viper.ReadInConfig()
	}

	cl.viper.AddConfigPath("./configs")
	cl.viper.AddConfigPath(".")
	cl.viper.SetConfigName("config")
	if err := cl.viper.ReadInConfig(); err != nil {
		// 配置文件缺失时允许纯默认值运行 (便于 CLI 一次性命令)
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return err
	}
	return nil
}

// setDefaults 设置默认值
func (cl *ConfigLoader) setDefaults() {
	v := cl.viper

	v.SetDefault("app.name", "raider")
	v.SetDefault("app.version", "dev")
	v.SetDefault("app.debug", false)

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8146)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "30s")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.output", "stdout")
	v.SetDefault("log.max_size", 50)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age", 14)
	v.SetDefault("log.compress", true)
	v.SetDefault("log.caller", false)

	v.SetDefault("scheduler.manual_mode", false)
	v.SetDefault("scheduler.scan_interval", "180s")
	v.SetDefault("scheduler.attack_order", "per_host")
	v.SetDefault("scheduler.retry_success_actions", false)
	v.SetDefault("scheduler.success_retry_delay", "1h")
	v.SetDefault("scheduler.retry_failed_actions", true)
	v.SetDefault("scheduler.failed_retry_delay", "10m")
	v.SetDefault("scheduler.max_failed_retries", 3)
	v.SetDefault("scheduler.vuln_scan_enabled", true)
	v.SetDefault("scheduler.vuln_scan_first", false)
	v.SetDefault("scheduler.steal_enabled", true)
	v.SetDefault("scheduler.clear_hosts_on_startup", false)

	v.SetDefault("network.port_list", []int{21, 22, 23, 80, 443, 445, 3306, 3389, 5432, 6379, 8080, 8443})
	v.SetDefault("network.exclude_gateway", true)
	v.SetDefault("network.scan_timeout", "2s")
	v.SetDefault("network.scan_rate", 100)
	v.SetDefault("network.aggressivity", "-T4")

	v.SetDefault("brute.worker_threads", 4)
	v.SetDefault("brute.queue_timeout", "15m")

	v.SetDefault("steal.extensions", []string{".txt", ".pdf", ".doc", ".docx", ".xls", ".xlsx", ".csv", ".db", ".conf", ".key", ".pem"})
	v.SetDefault("steal.max_file_size", int64(5*1024*1024))
	v.SetDefault("steal.max_files_per_host", 50)

	v.SetDefault("vuln.scan_timeout", "120s")
	v.SetDefault("vuln.http_ports", []int{80, 443, 8080, 8443})

	v.SetDefault("data_dir", "./data")
}
