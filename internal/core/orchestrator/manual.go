/**
 * 手动执行
 * @description: 控制面触发的单次动作。同一时刻只允许一个在途手动动作，
 *               停止指令通过取消通道下发，动作终态后状态复位。
 */
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"raider/internal/core/catalog"
	"raider/internal/core/model"
	"raider/internal/pkg/logger"
)

// RunAllAction 手动"全量"伪动作 ID: 对单个目标跑完整攻击序列
const RunAllAction = "run_all"

// ExecuteManual 同步执行一个手动动作
// 在途动作未结束时返回错误；扫描类动作 targetKey 留空
func (o *Orchestrator) ExecuteManual(ctx context.Context, actionID, targetKey string) error {
	desc, err := o.state.BeginManual(actionID, targetKey)
	if err != nil {
		return err
	}
	return o.ExecuteReserved(ctx, desc)
}

// ExecuteReserved 执行一个已经通过 BeginManual 占到名额的手动动作
// 调用方先同步占名额再异步执行，排他判定不会有窗口期
func (o *Orchestrator) ExecuteReserved(ctx context.Context, desc *ManualAttack) error {
	defer o.state.EndManual()

	actionID, targetKey := desc.ActionID, desc.TargetKey

	// 停止指令关掉取消通道，在这里转成 context 取消
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if ch := o.state.CancelChan(); ch != nil {
		go func() {
			select {
			case <-ch:
				cancel()
			case <-runCtx.Done():
			}
		}()
	}

	logger.Infof("manual action %s started (target=%q)", desc.ActionID, targetKey)
	err := o.dispatchManual(runCtx, actionID, targetKey)

	if flushErr := o.registry.Flush(); flushErr != nil {
		logger.Errorf("registry flush failed: %v", flushErr)
	}
	if err != nil {
		logger.Warnf("manual action %s finished with error: %v", actionID, err)
	} else {
		logger.Infof("manual action %s finished", actionID)
	}
	return err
}

func (o *Orchestrator) dispatchManual(ctx context.Context, actionID, targetKey string) error {
	if actionID == "network_scan" {
		o.scanPhase(ctx)
		return ctx.Err()
	}

	target, ok := o.registry.Get(targetKey)
	if !ok {
		return fmt.Errorf("unknown target %q", targetKey)
	}

	if actionID == RunAllAction {
		o.runHost(ctx, target, o.eligibleMatrix(time.Now()))
		return ctx.Err()
	}

	action, ok := o.catalog.Get(actionID)
	if !ok {
		return fmt.Errorf("unknown action %q", actionID)
	}

	switch action.Category {
	case catalog.CategoryVuln:
		o.runVuln(ctx, target)
	case catalog.CategoryBrute:
		if !action.Applicable(o.registry.Ports(target.IP)) {
			return fmt.Errorf("target %s has no open port %d for %s", target.IP, action.Port, actionID)
		}
		o.runBrute(ctx, target, action)
	case catalog.CategorySteal:
		if target.Outcome(action.Parent).Kind != model.OutcomeSuccess {
			return fmt.Errorf("steal %s needs a prior %s success on %s", action.Protocol, action.Parent, target.IP)
		}
		o.runSteal(ctx, target, action)
	default:
		return fmt.Errorf("action %q cannot be run manually", actionID)
	}
	return ctx.Err()
}

// StopManual 对在途手动动作升取消标志
func (o *Orchestrator) StopManual() bool {
	return o.state.CancelManual()
}

// AddManualTarget 手动录入目标
// ip 必填；探测失败不报错，目标仍以离线状态入库等下轮扫描
func (o *Orchestrator) AddManualTarget(ctx context.Context, ip, hostname string) *model.Target {
	host := model.DiscoveredHost{IP: ip, Hostname: hostname, MAC: model.ManualMAC}
	var ports []int

	d, reachable := o.scanner.ProbeOne(ctx, ip)
	if reachable {
		if d.Host.MAC != "" {
			host.MAC = d.Host.MAC
		}
		if hostname == "" {
			host.Hostname = d.Host.Hostname
		}
		ports = d.Ports
	} else {
		logger.Warnf("manual target %s not reachable, stored offline", ip)
	}

	t := o.registry.Upsert(host, ports)
	if !reachable {
		o.registry.SetAlive(ip, false)
		t.Alive = false
	}
	if err := o.registry.Flush(); err != nil {
		logger.Errorf("registry flush failed: %v", err)
	}
	return t
}
