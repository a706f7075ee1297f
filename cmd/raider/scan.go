/*
 * @description: Scan 模式子命令 (单次发现)
 */

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"raider/internal/core/scanner/alive"
)

var (
	scanSubnet  string
	scanTimeout time.Duration
	scanOutput  string
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "执行单次网段发现 (Standalone)",
	Long: `不启动守护进程，对网段做一次存活探测加端口扫描并打印结果。

示例:
  raider scan --subnet 192.168.1.0/24
  raider scan                       (从本机接口推断网段)
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if scanSubnet != "" {
			cfg.Network.Subnet = scanSubnet
		}

		ctx, cancel := context.WithTimeout(context.Background(), scanTimeout)
		defer cancel()

		spinner, _ := pterm.DefaultSpinner.Start("Scanning network...")
		found, err := alive.NewNetScanner(cfg.Network).Sweep(ctx)
		if err != nil {
			spinner.Fail(err.Error())
			return err
		}
		spinner.Success(fmt.Sprintf("%d hosts alive", len(found)))

		if len(found) == 0 {
			return nil
		}
		return renderScanResult(found)
	},
}

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().StringVarP(&scanSubnet, "subnet", "s", "", "目标网段 CIDR (默认取配置或本机接口)")
	scanCmd.Flags().DurationVar(&scanTimeout, "timeout", 10*time.Minute, "整次扫描超时")
	scanCmd.Flags().StringVarP(&scanOutput, "output", "o", "table", "输出格式 (table/json/yaml)")
}

// scanResultRow 机器可读输出的行结构
type scanResultRow struct {
	IP       string `json:"ip" yaml:"ip"`
	MAC      string `json:"mac" yaml:"mac"`
	Hostname string `json:"hostname,omitempty" yaml:"hostname,omitempty"`
	Ports    []int  `json:"ports,omitempty" yaml:"ports,omitempty"`
}

func renderScanResult(found []alive.DiscoveredTarget) error {
	switch scanOutput {
	case "json", "yaml":
		rows := make([]scanResultRow, 0, len(found))
		for _, d := range found {
			rows = append(rows, scanResultRow{IP: d.Host.IP, MAC: d.Host.MAC, Hostname: d.Host.Hostname, Ports: d.Ports})
		}
		if scanOutput == "json" {
			out, err := json.MarshalIndent(rows, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		}
		out, err := yaml.Marshal(rows)
		if err != nil {
			return err
		}
		fmt.Print(string(out))
		return nil
	case "table":
		rows := pterm.TableData{{"IP", "MAC", "Hostname", "Open Ports"}}
		for _, d := range found {
			rows = append(rows, []string{d.Host.IP, d.Host.MAC, d.Host.Hostname, formatPorts(d.Ports)})
		}
		return pterm.DefaultTable.WithHasHeader().WithData(rows).Render()
	default:
		return fmt.Errorf("unknown output format %q", scanOutput)
	}
}

func formatPorts(ports []int) string {
	if len(ports) == 0 {
		return "-"
	}
	out := make([]string, len(ports))
	for i, p := range ports {
		out[i] = strconv.Itoa(p)
	}
	return strings.Join(out, ",")
}
