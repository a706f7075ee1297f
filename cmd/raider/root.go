/*
 * @description: Cobra Root Command 定义
 */

package main

import (
	"fmt"
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"raider/internal/app/raider"
	"raider/internal/config"
)

var (
	cfgFile string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "raider",
	Short: "raider 自主网络侦察与攻击编排引擎",
	Long: `raider 在授权网段内持续发现主机、爆破弱口令、扫描漏洞并回收战果。

示例:
  1.守护进程模式(默认)
	raider server
  2.单次网段发现
	raider scan --subnet 192.168.1.0/24
  3.查看版本
	raider version
`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		initCLILogger(cmd)
	},
}

func Execute() {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "\n[FATAL] raider crashed unexpectedly: %v\n", r)
			os.Exit(1)
		}
	}()

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	// 全局 Flag
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "配置文件路径 (默认: ./configs/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "日志级别 (debug, info, warn, error)")

	viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
}

// loadConfig 统一的配置加载入口
// .env 先于配置文件，配置文件先于环境变量覆盖
func loadConfig() (*config.Config, error) {
	env := config.NewEnvManager("RAIDER")
	env.LoadDotEnv(raider.DefaultDotEnvPaths()...)

	return config.NewConfigLoader(cfgFile, "RAIDER").LoadConfig()
}

// initCLILogger 初始化 CLI 模式下的 pterm 输出
// 受 --log-level 控制，默认只提示告警以上
func initCLILogger(cmd *cobra.Command) {
	flag := cmd.Flags().Lookup("log-level")
	level := "warn"
	if flag != nil && flag.Changed {
		level = flag.Value.String()
	}

	switch level {
	case "debug":
		pterm.EnableDebugMessages()
	default:
		pterm.DisableDebugMessages()
	}
}
