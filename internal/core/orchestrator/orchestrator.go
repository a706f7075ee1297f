/**
 * 调度器
 * @description: 自主循环 = 发现 → 逐主机攻击 → 空闲。
 *               手动模式只挂起循环，不打断在途阶段。
 */
package orchestrator

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"raider/internal/config"
	"raider/internal/core/catalog"
	"raider/internal/core/loot"
	"raider/internal/core/model"
	"raider/internal/core/netkb"
	"raider/internal/core/policy"
	"raider/internal/core/scanner/alive"
	"raider/internal/core/scanner/brute"
	"raider/internal/core/scanner/vuln"
	"raider/internal/core/steal"
	"raider/internal/pkg/logger"
)

// 模式轮询间隔 (手动模式下循环挂起时)
const modePollInterval = time.Second

// Discoverer 网段发现
type Discoverer interface {
	Sweep(ctx context.Context) ([]alive.DiscoveredTarget, error)
	ProbeOne(ctx context.Context, ip string) (*alive.DiscoveredTarget, bool)
}

// BruteForcer 协议爆破
type BruteForcer interface {
	Crack(ctx context.Context, target *model.Target, protocol string, port int) brute.TaskResult
}

// VulnScanner 漏洞扫描
type VulnScanner interface {
	Scan(ctx context.Context, target *model.Target, ports []int) (model.OutcomeKind, *vuln.Report, error)
}

// Orchestrator 调度器
type Orchestrator struct {
	// cfgMu 保护 cfg 与 policy，配置热加载时整体替换
	cfgMu  sync.RWMutex
	cfg    *config.Config
	policy policy.RetryPolicy

	state    *RunState
	registry *netkb.Registry
	catalog  *catalog.Catalog
	bl       *policy.Blacklist

	scanner  Discoverer
	engine   BruteForcer
	vuln     VulnScanner
	creds    *loot.CredStore
	stealers *steal.Registry

	// 在途动作登记，手动与自主路径共用，同一 (目标, 动作) 不允许并发
	inflightMu sync.Mutex
	inflight   map[string]struct{}

	cycleActions int32 // 本轮已派发的动作数
	idleCycles   int32 // 连续空转轮次，有成果即清零
}

// New 组装调度器
func New(cfg *config.Config, state *RunState, registry *netkb.Registry, cat *catalog.Catalog,
	bl *policy.Blacklist, scanner Discoverer, engine BruteForcer, vulnScanner VulnScanner,
	creds *loot.CredStore, stealers *steal.Registry) *Orchestrator {
	return &Orchestrator{
		cfg:      cfg,
		state:    state,
		registry: registry,
		catalog:  cat,
		policy:   policy.FromConfig(cfg.Scheduler),
		bl:       bl,
		scanner:  scanner,
		engine:   engine,
		vuln:     vulnScanner,
		creds:    creds,
		stealers: stealers,
		inflight: make(map[string]struct{}),
	}
}

// State 运行状态
func (o *Orchestrator) State() *RunState {
	return o.state
}

// Registry 目标注册表
func (o *Orchestrator) Registry() *netkb.Registry {
	return o.registry
}

// Catalog 动作目录
func (o *Orchestrator) Catalog() *catalog.Catalog {
	return o.catalog
}

// IdleCycles 连续空转轮次数
func (o *Orchestrator) IdleCycles() int {
	return int(atomic.LoadInt32(&o.idleCycles))
}

// sched 当前调度参数
func (o *Orchestrator) sched() *config.SchedulerConfig {
	o.cfgMu.RLock()
	defer o.cfgMu.RUnlock()
	return o.cfg.Scheduler
}

// retryPolicy 当前重试策略
func (o *Orchestrator) retryPolicy() policy.RetryPolicy {
	o.cfgMu.RLock()
	defer o.cfgMu.RUnlock()
	return o.policy
}

// ApplyConfig 配置热加载: 整体替换调度参数并重建重试策略，
// manual_mode 开关有变化时切换运行模式
func (o *Orchestrator) ApplyConfig(old, next *config.Config) {
	if next == nil || next.Scheduler == nil {
		return
	}
	o.cfgMu.Lock()
	o.cfg = next
	o.policy = policy.FromConfig(next.Scheduler)
	o.cfgMu.Unlock()

	if old == nil || old.Scheduler == nil || old.Scheduler.ManualMode != next.Scheduler.ManualMode {
		mode := ModeAutonomous
		if next.Scheduler.ManualMode {
			mode = ModeManual
		}
		o.state.SetMode(mode)
		logger.Infof("config reload switched run mode to %s", mode)
	}
	logger.Info("scheduler configuration reloaded")
}

// suspended 非自主模式下不再开启新的自主动作
func (o *Orchestrator) suspended() bool {
	return o.state.Mode() != ModeAutonomous
}

// Run 主循环，阻塞到 ctx 取消
func (o *Orchestrator) Run(ctx context.Context) error {
	if o.sched().ClearHostsOnStartup && o.registry.Len() > 0 {
		path, err := o.registry.ArchiveAndClear()
		if err != nil {
			logger.Errorf("startup archive failed: %v", err)
		} else if path != "" {
			logger.Infof("previous registry archived to %s", path)
		}
	}

	logger.Infof("orchestrator started in %s mode", o.state.Mode())
	for {
		select {
		case <-ctx.Done():
			logger.Info("orchestrator stopping")
			return ctx.Err()
		default:
		}

		if o.state.Mode() != ModeAutonomous {
			sleepCtx(ctx, modePollInterval)
			continue
		}

		executed := o.runCycle(ctx)

		if err := o.registry.Flush(); err != nil {
			logger.Errorf("registry flush failed: %v", err)
		}

		interval := o.sched().ScanInterval
		if executed {
			atomic.StoreInt32(&o.idleCycles, 0)
			logger.Debugf("cycle complete, idling %v", interval)
		} else if ctx.Err() == nil {
			o.runIdle(interval)
		}
		sleepCtx(ctx, interval)
	}
}

// runCycle 单轮: 发现 → 攻击 → 落盘，返回本轮是否派发过动作
func (o *Orchestrator) runCycle(ctx context.Context) bool {
	atomic.StoreInt32(&o.cycleActions, 0)
	o.scanPhase(ctx)
	if ctx.Err() == nil {
		o.attackPhase(ctx)
	}
	return atomic.LoadInt32(&o.cycleActions) > 0
}

// runIdle 空转轮次执行目录里的待机动作: 只计数并告知下次扫描时间
func (o *Orchestrator) runIdle(interval time.Duration) {
	n := atomic.AddInt32(&o.idleCycles, 1)
	if a, ok := o.catalog.Get("idle"); ok {
		logger.Infof("%s: no eligible work for %d cycle(s), next scan in %v", a.Name, n, interval)
	}
}

// scanPhase 网段发现，未见到的已知主机标记下线
func (o *Orchestrator) scanPhase(ctx context.Context) {
	found, err := o.scanner.Sweep(ctx)
	if err != nil {
		logger.Errorf("network scan failed: %v", err)
		return
	}

	seen := make(map[string]struct{}, len(found))
	for _, d := range found {
		if o.bl.Blocked(d.Host.IP, d.Host.MAC) || !o.bl.InScope(d.Host.IP) {
			logger.Debugf("skipping excluded host %s", d.Host.IP)
			continue
		}
		o.registry.Upsert(d.Host, d.Ports)
		seen[d.Host.IP] = struct{}{}
	}
	for _, t := range o.registry.Targets() {
		if _, ok := seen[t.IP]; !ok {
			o.registry.SetAlive(t.IP, false)
		}
	}
	logger.Infof("network scan found %d hosts, registry holds %d rows", len(seen), o.registry.Len())

	if err := o.registry.Flush(); err != nil {
		logger.Errorf("registry flush failed: %v", err)
	}
}

// attackPhase 按配置的顺序策略派发动作
func (o *Orchestrator) attackPhase(ctx context.Context) {
	now := time.Now()
	eligible := o.eligibleMatrix(now)

	switch o.sched().AttackOrder {
	case "spread":
		o.attackSpread(ctx, eligible)
	case "per_phase":
		o.attackPerPhase(ctx, eligible)
	default: // per_host
		for _, t := range o.registry.Targets() {
			// 手动模式升起后不再换下一台主机，在途主机跑完即收
			if ctx.Err() != nil || o.suspended() {
				return
			}
			o.runHost(ctx, t, eligible)
		}
	}
}

// eligibleMatrix 每个动作的当前可执行目标集 (actionID -> targetKey)
func (o *Orchestrator) eligibleMatrix(now time.Time) map[string]map[string]struct{} {
	m := make(map[string]map[string]struct{})
	sched := o.sched()
	pol := o.retryPolicy()
	for _, a := range o.catalog.All() {
		if a.Category == catalog.CategoryScan || a.Category == catalog.CategoryIdle {
			continue
		}
		if a.Category == catalog.CategoryVuln && !sched.VulnScanEnabled {
			continue
		}
		if a.Category == catalog.CategorySteal && !sched.StealEnabled {
			continue
		}
		set := make(map[string]struct{})
		for _, t := range o.registry.EligibleTargets(a, pol, o.bl, now) {
			set[t.Key()] = struct{}{}
		}
		m[a.ID] = set
	}
	return m
}

// runHost 单主机: 漏扫 → 爆破 (屏障) → 窃取
// 窃取阶段等本主机所有爆破任务到终态后才开始
func (o *Orchestrator) runHost(ctx context.Context, t *model.Target, eligible map[string]map[string]struct{}) {
	key := t.Key()
	has := func(actionID string) bool {
		_, ok := eligible[actionID][key]
		return ok
	}

	vulnFirst := o.sched().VulnScanFirst
	if vulnFirst && has("vuln_scan") {
		o.runVuln(ctx, t)
	}

	var wg sync.WaitGroup
	for _, a := range o.catalog.ByCategory(catalog.CategoryBrute) {
		if !has(a.ID) {
			continue
		}
		wg.Add(1)
		go func(action catalog.Action) {
			defer wg.Done()
			o.runBrute(ctx, t, action)
		}(a)
	}
	wg.Wait()

	if !vulnFirst && has("vuln_scan") {
		o.runVuln(ctx, t)
	}

	// 爆破结果刚落，窃取资格要按最新状态重算
	now := time.Now()
	for _, a := range o.catalog.ByCategory(catalog.CategorySteal) {
		if ctx.Err() != nil {
			return
		}
		if !o.sched().StealEnabled || !o.eligibleNow(t, a, now) {
			continue
		}
		o.runSteal(ctx, t, a)
	}
}

// attackSpread 动作优先: 同一动作先扫完全部目标再换动作
func (o *Orchestrator) attackSpread(ctx context.Context, eligible map[string]map[string]struct{}) {
	runPhase := func(cat catalog.Category, run func(context.Context, *model.Target, catalog.Action)) {
		for _, a := range o.catalog.ByCategory(cat) {
			for _, t := range o.registry.Targets() {
				if ctx.Err() != nil || o.suspended() {
					return
				}
				if _, ok := eligible[a.ID][t.Key()]; ok {
					run(ctx, t, a)
				}
			}
		}
	}

	vulnFirst := o.sched().VulnScanFirst
	if vulnFirst {
		runPhase(catalog.CategoryVuln, func(ctx context.Context, t *model.Target, _ catalog.Action) { o.runVuln(ctx, t) })
	}
	runPhase(catalog.CategoryBrute, o.runBrute)
	if !vulnFirst {
		runPhase(catalog.CategoryVuln, func(ctx context.Context, t *model.Target, _ catalog.Action) { o.runVuln(ctx, t) })
	}
	o.stealAll(ctx)
}

// attackPerPhase 阶段优先: 全目标爆破并发跑完，再统一进入窃取
func (o *Orchestrator) attackPerPhase(ctx context.Context, eligible map[string]map[string]struct{}) {
	vulnFirst := o.sched().VulnScanFirst
	vulnPhase := func() {
		for _, t := range o.registry.Targets() {
			if ctx.Err() != nil || o.suspended() {
				return
			}
			if _, ok := eligible["vuln_scan"][t.Key()]; ok {
				o.runVuln(ctx, t)
			}
		}
	}

	if vulnFirst {
		vulnPhase()
	}

	var wg sync.WaitGroup
	for _, a := range o.catalog.ByCategory(catalog.CategoryBrute) {
		for _, t := range o.registry.Targets() {
			if ctx.Err() != nil || o.suspended() {
				break
			}
			if _, ok := eligible[a.ID][t.Key()]; !ok {
				continue
			}
			wg.Add(1)
			go func(t *model.Target, action catalog.Action) {
				defer wg.Done()
				o.runBrute(ctx, t, action)
			}(t, a)
		}
	}
	wg.Wait()

	if !vulnFirst {
		vulnPhase()
	}
	o.stealAll(ctx)
}

func (o *Orchestrator) stealAll(ctx context.Context) {
	if !o.sched().StealEnabled {
		return
	}
	now := time.Now()
	pol := o.retryPolicy()
	for _, a := range o.catalog.ByCategory(catalog.CategorySteal) {
		for _, t := range o.registry.EligibleTargets(a, pol, o.bl, now) {
			if ctx.Err() != nil || o.suspended() {
				return
			}
			o.runSteal(ctx, t, a)
		}
	}
}

// eligibleNow 目标此刻是否可执行该动作 (窃取阶段的实时重查)
func (o *Orchestrator) eligibleNow(t *model.Target, a catalog.Action, now time.Time) bool {
	for _, et := range o.registry.EligibleTargets(a, o.retryPolicy(), o.bl, now) {
		if et.Key() == t.Key() {
			return true
		}
	}
	return false
}

// beginAction 登记在途动作，已在途则返回 false
func (o *Orchestrator) beginAction(targetKey, actionID string) bool {
	o.inflightMu.Lock()
	defer o.inflightMu.Unlock()
	k := targetKey + "/" + actionID
	if _, busy := o.inflight[k]; busy {
		return false
	}
	o.inflight[k] = struct{}{}
	return true
}

func (o *Orchestrator) endAction(targetKey, actionID string) {
	o.inflightMu.Lock()
	delete(o.inflight, targetKey+"/"+actionID)
	o.inflightMu.Unlock()
}

// runBrute 单目标单协议爆破，panic 在此兜底记为 failed
func (o *Orchestrator) runBrute(ctx context.Context, t *model.Target, action catalog.Action) {
	if !o.beginAction(t.Key(), action.ID) {
		logger.Debugf("brute %s on %s already in flight, skipped", action.Protocol, t.IP)
		return
	}
	defer o.endAction(t.Key(), action.ID)
	defer o.recoverAction(t, action.ID)
	atomic.AddInt32(&o.cycleActions, 1)

	o.registry.MarkRunning(t.Key(), action.ID)
	logger.Infof("brute %s against %s:%d", action.Protocol, t.IP, action.Port)

	res := o.engine.Crack(ctx, t, action.Protocol, action.Port)
	for _, cred := range res.Creds {
		if err := o.creds.Append(cred); err != nil {
			logger.Errorf("credential log write failed: %v", err)
		}
	}
	if res.Err != nil {
		logger.Warnf("brute %s on %s: %v", action.Protocol, t.IP, res.Err)
	}
	o.registry.RecordOutcome(t.Key(), action.ID, res.Outcome, time.Now())
	logger.Infof("brute %s on %s: %s after %d attempts, %d creds",
		action.Protocol, t.IP, res.Outcome, res.Attempts, len(res.Creds))
}

// runVuln 单目标漏洞扫描
func (o *Orchestrator) runVuln(ctx context.Context, t *model.Target) {
	if !o.beginAction(t.Key(), "vuln_scan") {
		logger.Debugf("vuln scan on %s already in flight, skipped", t.IP)
		return
	}
	defer o.endAction(t.Key(), "vuln_scan")
	defer o.recoverAction(t, "vuln_scan")

	ports := o.registry.Ports(t.IP)
	if ports == nil || ports.Len() == 0 {
		return
	}
	atomic.AddInt32(&o.cycleActions, 1)

	o.registry.MarkRunning(t.Key(), "vuln_scan")
	kind, report, err := o.vuln.Scan(ctx, t, ports.List())
	if err != nil {
		logger.Warnf("vuln scan on %s: %v", t.IP, err)
	} else if report != nil {
		logger.Infof("vuln scan on %s: %d findings over %d/%d ports",
			t.IP, len(report.Findings), report.PortsSucceeded, report.PortsScanned)
	}
	o.registry.RecordOutcome(t.Key(), "vuln_scan", kind, time.Now())
}

// runSteal 用已命中的凭据抓取目标文件
// 任一凭据登录成功即 success，全部失败记 failed
func (o *Orchestrator) runSteal(ctx context.Context, t *model.Target, action catalog.Action) {
	if !o.beginAction(t.Key(), action.ID) {
		logger.Debugf("steal %s on %s already in flight, skipped", action.Protocol, t.IP)
		return
	}
	defer o.endAction(t.Key(), action.ID)
	defer o.recoverAction(t, action.ID)
	atomic.AddInt32(&o.cycleActions, 1)

	stealer, ok := o.stealers.Get(action.Protocol)
	if !ok {
		return
	}
	creds, err := o.creds.FindForTarget(action.Protocol, t.IP)
	if err != nil || len(creds) == 0 {
		logger.Warnf("steal %s on %s: no stored credentials (%v)", action.Protocol, t.IP, err)
		o.registry.RecordOutcome(t.Key(), action.ID, model.OutcomeFailed, time.Now())
		return
	}

	o.registry.MarkRunning(t.Key(), action.ID)
	var total int
	var succeeded bool
	var lastErr error
	for _, cred := range creds {
		if ctx.Err() != nil {
			break
		}
		n, err := stealer.Steal(ctx, t, action.Port, cred)
		total += n
		if err != nil {
			lastErr = err
			continue
		}
		succeeded = true
	}

	kind := model.OutcomeSuccess
	if !succeeded {
		kind = model.OutcomeFailed
		logger.Warnf("steal %s on %s failed: %v", action.Protocol, t.IP, lastErr)
	} else {
		logger.Infof("steal %s on %s: %d files", action.Protocol, t.IP, total)
	}
	o.registry.RecordOutcome(t.Key(), action.ID, kind, time.Now())
}

// recoverAction 动作边界的 panic 兜底，循环不能死
func (o *Orchestrator) recoverAction(t *model.Target, actionID string) {
	if r := recover(); r != nil {
		logger.Errorf("action %s on %s panicked: %v", actionID, t.IP, r)
		o.registry.RecordOutcome(t.Key(), actionID, model.OutcomeFailed, time.Now())
	}
}

// sleepCtx 可中断睡眠
func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
