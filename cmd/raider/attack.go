/*
 * @description: Attack 模式子命令 (单目标单动作)
 */

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"raider/internal/app/raider"
	"raider/internal/core/model"
	"raider/internal/core/orchestrator"
)

var (
	attackTarget   string
	attackHostname string
	attackAction   string
	attackTimeout  time.Duration
)

// attackCmd represents the attack command
var attackCmd = &cobra.Command{
	Use:   "attack",
	Short: "对单个目标执行一次攻击动作 (Standalone)",
	Long: `不启动守护进程，对指定目标执行一个动作并打印结果。
目标不在注册表里时先做一次探测入库。

示例:
  raider attack --target 192.168.1.10                       (完整攻击序列)
  raider attack --target 192.168.1.10 --action brute_ssh
  raider attack --target 192.168.1.10 --action vuln_scan`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		app, err := raider.NewApp(cfg, "")
		if err != nil {
			return err
		}
		o := app.Orchestrator()

		ctx, cancel := context.WithTimeout(context.Background(), attackTimeout)
		defer cancel()

		key := model.TargetKey(attackTarget, attackHostname)
		if _, ok := o.Registry().Get(key); !ok {
			spinner, _ := pterm.DefaultSpinner.Start("Probing " + attackTarget + "...")
			t := o.AddManualTarget(ctx, attackTarget, attackHostname)
			if t == nil {
				spinner.Fail("Probe failed")
				return fmt.Errorf("could not register target %s", attackTarget)
			}
			if t.Alive {
				spinner.Success(fmt.Sprintf("Target up, %d open ports", o.Registry().Ports(t.IP).Len()))
			} else {
				spinner.Warning("Target not reachable, attacking anyway")
			}
			key = t.Key()
		}

		pterm.Info.Printf("Running %s against %s\n", attackAction, key)
		if err := o.ExecuteManual(ctx, attackAction, key); err != nil {
			pterm.Error.Printf("Attack failed: %v\n", err)
			return err
		}

		t, ok := o.Registry().Get(key)
		if !ok {
			return fmt.Errorf("target %s vanished from registry", key)
		}
		if attackAction == orchestrator.RunAllAction {
			for id, cell := range t.Outcomes {
				if cell != "" {
					pterm.Success.Printf("%-16s %s\n", id, cell)
				}
			}
			return nil
		}
		pterm.Success.Printf("%s: %s\n", attackAction, t.Outcome(attackAction).Encode())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(attackCmd)

	attackCmd.Flags().StringVar(&attackTarget, "target", "", "目标 IP (必填)")
	attackCmd.Flags().StringVar(&attackHostname, "hostname", "", "虚拟主机名 (可选)")
	attackCmd.Flags().StringVar(&attackAction, "action", orchestrator.RunAllAction, "动作 ID (brute_ssh / vuln_scan / steal_ftp / ...)")
	attackCmd.Flags().DurationVar(&attackTimeout, "timeout", 30*time.Minute, "整体超时")
	attackCmd.MarkFlagRequired("target")
}
