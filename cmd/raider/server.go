/*
 * @description: Server 模式子命令 (守护进程)
 */

package main

import (
	"context"
	"log"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"raider/internal/app/raider"
)

var (
	listenAddr string
	manualMode bool
)

// serverCmd represents the server command
var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "启动守护进程模式",
	Long: `以守护进程方式启动 raider: 后台自主循环 + 控制面 HTTP API。

命令行参数优先级高于配置文件。

示例:
  raider server
  raider server --listen 0.0.0.0:8146 --manual`,
	Run: func(cmd *cobra.Command, args []string) {
		if listenAddr != "" {
			host, port, err := splitHostPort(listenAddr)
			if err != nil {
				log.Fatalf("invalid --listen address: %v", err)
			}
			viper.Set("server.host", host)
			viper.Set("server.port", port)
		}
		if cmd.Flags().Changed("manual") {
			viper.Set("scheduler.manual_mode", manualMode)
		}
		runServer()
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)

	serverCmd.Flags().StringVar(&listenAddr, "listen", "", "控制面监听地址 (e.g. 0.0.0.0:8146)")
	serverCmd.Flags().BoolVar(&manualMode, "manual", false, "启动即手动模式，不跑自主循环")
}

func splitHostPort(addr string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, err
	}
	return host, port, nil
}

func runServer() {
	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	app, err := raider.NewApp(cfg, cfgFile)
	if err != nil {
		log.Fatalf("Failed to create raider app: %v", err)
	}

	if err := app.Start(); err != nil {
		log.Fatalf("Failed to start raider app: %v", err)
	}

	// 等待中断信号以优雅地关闭服务器
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down raider...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.Stop(ctx); err != nil {
		log.Println("raider forced to shutdown:", err)
	}

	log.Println("raider exiting")
}
