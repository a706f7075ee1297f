package orchestrator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
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
)

type fakeDiscoverer struct {
	targets []alive.DiscoveredTarget
	sweeps  int32
}

func (f *fakeDiscoverer) Sweep(ctx context.Context) ([]alive.DiscoveredTarget, error) {
	atomic.AddInt32(&f.sweeps, 1)
	return f.targets, nil
}

func (f *fakeDiscoverer) ProbeOne(ctx context.Context, ip string) (*alive.DiscoveredTarget, bool) {
	for _, t := range f.targets {
		if t.Host.IP == ip {
			return &t, true
		}
	}
	return nil, false
}

type fakeBrute struct {
	mu       sync.Mutex
	delay    time.Duration
	results  map[string]brute.TaskResult // protocol -> result
	done     []string                    // "ip/protocol" 完成顺序
	calls    int32
	panicOn  string
	blockCtx bool // 阻塞到 ctx 取消
}

func (f *fakeBrute) Crack(ctx context.Context, target *model.Target, protocol string, port int) brute.TaskResult {
	atomic.AddInt32(&f.calls, 1)
	if protocol == f.panicOn {
		panic("cracker exploded")
	}
	if f.blockCtx {
		<-ctx.Done()
		return brute.TaskResult{Outcome: model.OutcomeFailed, Err: ctx.Err()}
	}
	time.Sleep(f.delay)
	f.mu.Lock()
	f.done = append(f.done, target.IP+"/"+protocol)
	f.mu.Unlock()
	if res, ok := f.results[protocol]; ok {
		return res
	}
	return brute.TaskResult{Outcome: model.OutcomeNoCreds}
}

type fakeVuln struct {
	calls int32
}

func (f *fakeVuln) Scan(ctx context.Context, target *model.Target, ports []int) (model.OutcomeKind, *vuln.Report, error) {
	atomic.AddInt32(&f.calls, 1)
	return model.OutcomeSuccess, &vuln.Report{PortsScanned: ports, PortsSucceeded: len(ports)}, nil
}

type recordingStealer struct {
	mu       sync.Mutex
	protocol string
	calls    []time.Time
	files    int
	err      error
}

func (s *recordingStealer) Protocol() string { return s.protocol }

func (s *recordingStealer) Steal(ctx context.Context, target *model.Target, port int, cred model.CredentialRecord) (int, error) {
	s.mu.Lock()
	s.calls = append(s.calls, time.Now())
	s.mu.Unlock()
	return s.files, s.err
}

func testConfig(dataDir string) *config.Config {
	return &config.Config{
		DataDir: dataDir,
		Scheduler: &config.SchedulerConfig{
			ScanInterval:       time.Hour,
			AttackOrder:        "per_host",
			RetryFailedActions: true,
			FailedRetryDelay:   time.Minute,
			MaxFailedRetries:   3,
			VulnScanEnabled:    true,
			StealEnabled:       true,
		},
		Network: &config.NetworkConfig{},
		Brute:   &config.BruteConfig{WorkerThreads: 4, QueueTimeout: time.Minute},
	}
}

func newTestOrchestrator(t *testing.T, cfg *config.Config, disc Discoverer, eng BruteForcer, vs VulnScanner) (*Orchestrator, *steal.Registry) {
	t.Helper()
	cat := catalog.Default()
	store, err := netkb.NewStore(cfg.DataDir, cat.OutcomeColumns())
	if err != nil {
		t.Fatal(err)
	}
	reg, err := netkb.NewRegistry(store)
	if err != nil {
		t.Fatal(err)
	}
	creds, err := loot.NewCredStore(cfg.DataDir)
	if err != nil {
		t.Fatal(err)
	}
	stealers := steal.NewRegistry()
	bl := policy.NewBlacklist(cfg.Network, "")
	state := NewRunState(false)
	return New(cfg, state, reg, cat, bl, disc, eng, vs, creds, stealers), stealers
}

func seedTarget(t *testing.T, o *Orchestrator, ip string, ports ...int) *model.Target {
	t.Helper()
	return o.registry.Upsert(model.DiscoveredHost{IP: ip, MAC: "aa:bb:cc:00:11:22"}, ports)
}

func TestScanPhaseFiltersAndMarksOffline(t *testing.T) {
	cfg := testConfig(t.TempDir())
	cfg.Network.BlacklistIPs = []string{"10.0.0.9"}
	disc := &fakeDiscoverer{targets: []alive.DiscoveredTarget{
		{Host: model.DiscoveredHost{IP: "10.0.0.5", MAC: "aa:bb:cc:00:00:05"}, Ports: []int{22}},
		{Host: model.DiscoveredHost{IP: "10.0.0.9", MAC: "aa:bb:cc:00:00:09"}, Ports: []int{22}},
	}}
	o, _ := newTestOrchestrator(t, cfg, disc, &fakeBrute{}, &fakeVuln{})

	// 上一轮见过但这轮没发现的主机
	seedTarget(t, o, "10.0.0.7", 21)

	o.scanPhase(context.Background())

	if _, ok := o.registry.Get(model.TargetKey("10.0.0.9", "")); ok {
		t.Error("blacklisted host should not enter the registry")
	}
	if got, ok := o.registry.Get(model.TargetKey("10.0.0.5", "")); !ok || !got.Alive {
		t.Error("discovered host should be alive in registry")
	}
	if got, ok := o.registry.Get(model.TargetKey("10.0.0.7", "")); !ok || got.Alive {
		t.Error("host missing from sweep should be marked offline")
	}
}

func TestRunHostStealWaitsForBruteBarrier(t *testing.T) {
	cfg := testConfig(t.TempDir())
	eng := &fakeBrute{
		delay: 50 * time.Millisecond,
		results: map[string]brute.TaskResult{
			"ftp": {Outcome: model.OutcomeSuccess, Creds: []model.CredentialRecord{
				{Protocol: "ftp", IP: "10.0.0.5", MAC: "aa:bb:cc:00:11:22", Username: "admin", Password: "admin"},
			}},
		},
	}
	disc := &fakeDiscoverer{}
	o, stealers := newTestOrchestrator(t, cfg, disc, eng, &fakeVuln{})

	st := &recordingStealer{protocol: "ftp", files: 2}
	stealers.Register(st)

	// ftp + ssh 两个爆破动作都适用
	target := seedTarget(t, o, "10.0.0.5", 21, 22)

	start := time.Now()
	o.runHost(context.Background(), target, o.eligibleMatrix(time.Now()))

	if len(st.calls) != 1 {
		t.Fatalf("stealer calls = %d, want 1", len(st.calls))
	}
	// 两个爆破任务并发跑，窃取必须等屏障之后
	if st.calls[0].Sub(start) < eng.delay {
		t.Error("steal ran before brute tasks finished")
	}
	eng.mu.Lock()
	bruteDone := len(eng.done)
	eng.mu.Unlock()
	if bruteDone != 2 {
		t.Errorf("brute tasks completed = %d, want 2", bruteDone)
	}

	got, _ := o.registry.Get(target.Key())
	if got.Outcome("brute_ftp").Kind != model.OutcomeSuccess {
		t.Errorf("brute_ftp outcome = %s, want success", got.Outcome("brute_ftp").Kind)
	}
	if got.Outcome("brute_ssh").Kind != model.OutcomeNoCreds {
		t.Errorf("brute_ssh outcome = %s, want no_creds", got.Outcome("brute_ssh").Kind)
	}
	if got.Outcome("steal_ftp").Kind != model.OutcomeSuccess {
		t.Errorf("steal_ftp outcome = %s, want success", got.Outcome("steal_ftp").Kind)
	}

	// 命中凭据要进凭据日志
	creds, err := o.creds.FindForTarget("ftp", "10.0.0.5")
	if err != nil || len(creds) != 1 {
		t.Errorf("stored creds = %d (%v), want 1", len(creds), err)
	}
}

func TestRunHostSkipsStealWithoutParentSuccess(t *testing.T) {
	cfg := testConfig(t.TempDir())
	o, stealers := newTestOrchestrator(t, cfg, &fakeDiscoverer{}, &fakeBrute{}, &fakeVuln{})
	st := &recordingStealer{protocol: "ftp"}
	stealers.Register(st)

	target := seedTarget(t, o, "10.0.0.5", 21)
	o.runHost(context.Background(), target, o.eligibleMatrix(time.Now()))

	if len(st.calls) != 0 {
		t.Error("steal should not run when brute found no creds")
	}
	got, _ := o.registry.Get(target.Key())
	if got.Outcome("steal_ftp").Kind != model.OutcomeNone {
		t.Errorf("steal_ftp outcome = %s, want none", got.Outcome("steal_ftp").Kind)
	}
}

func TestRunHostVulnScanFirst(t *testing.T) {
	cfg := testConfig(t.TempDir())
	cfg.Scheduler.VulnScanFirst = true
	vs := &fakeVuln{}
	o, _ := newTestOrchestrator(t, cfg, &fakeDiscoverer{}, &fakeBrute{}, vs)

	target := seedTarget(t, o, "10.0.0.5", 22, 80)
	o.runHost(context.Background(), target, o.eligibleMatrix(time.Now()))

	if atomic.LoadInt32(&vs.calls) != 1 {
		t.Errorf("vuln scans = %d, want 1", vs.calls)
	}
	got, _ := o.registry.Get(target.Key())
	if got.Outcome("vuln_scan").Kind != model.OutcomeSuccess {
		t.Errorf("vuln_scan outcome = %s, want success", got.Outcome("vuln_scan").Kind)
	}
}

func TestBrutePanicRecordedAsFailed(t *testing.T) {
	cfg := testConfig(t.TempDir())
	eng := &fakeBrute{panicOn: "ssh"}
	o, _ := newTestOrchestrator(t, cfg, &fakeDiscoverer{}, eng, &fakeVuln{})

	target := seedTarget(t, o, "10.0.0.5", 22)
	o.runHost(context.Background(), target, o.eligibleMatrix(time.Now()))

	got, _ := o.registry.Get(target.Key())
	out := got.Outcome("brute_ssh")
	if out.Kind != model.OutcomeFailed {
		t.Errorf("outcome after panic = %s, want failed", out.Kind)
	}
	if out.FailCount != 1 {
		t.Errorf("fail count = %d, want 1", out.FailCount)
	}
}

func TestManualExecuteExclusion(t *testing.T) {
	cfg := testConfig(t.TempDir())
	eng := &fakeBrute{blockCtx: true}
	o, _ := newTestOrchestrator(t, cfg, &fakeDiscoverer{}, eng, &fakeVuln{})
	target := seedTarget(t, o, "10.0.0.5", 22)

	done := make(chan error, 1)
	go func() {
		done <- o.ExecuteManual(context.Background(), "brute_ssh", target.Key())
	}()

	// 等第一个动作登记后再放并发请求
	deadline := time.After(time.Second)
	for o.state.Manual() == nil {
		select {
		case <-deadline:
			t.Fatal("first manual action never registered")
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}
	if err := o.ExecuteManual(context.Background(), "brute_ftp", target.Key()); err == nil {
		t.Error("second manual action should be rejected while one is in flight")
	}

	if !o.StopManual() {
		t.Error("StopManual should find an in-flight action")
	}
	<-done

	// 终态后状态复位，新动作可以登记
	deadline = time.After(time.Second)
	for o.state.Manual() != nil {
		select {
		case <-deadline:
			t.Fatal("manual state not reset after terminal state")
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}
	if o.StopManual() {
		t.Error("cancel flag should be cleared after terminal state")
	}
}

func TestManualUnknownTargetAndAction(t *testing.T) {
	cfg := testConfig(t.TempDir())
	o, _ := newTestOrchestrator(t, cfg, &fakeDiscoverer{}, &fakeBrute{}, &fakeVuln{})

	if err := o.ExecuteManual(context.Background(), "brute_ssh", "10.9.9.9"); err == nil {
		t.Error("unknown target should be rejected")
	}
	target := seedTarget(t, o, "10.0.0.5", 22)
	if err := o.ExecuteManual(context.Background(), "made_up", target.Key()); err == nil {
		t.Error("unknown action should be rejected")
	}
	// 端口未开放的协议
	if err := o.ExecuteManual(context.Background(), "brute_ftp", target.Key()); err == nil {
		t.Error("brute on a closed port should be rejected")
	}
}

func TestAddManualTarget(t *testing.T) {
	cfg := testConfig(t.TempDir())
	disc := &fakeDiscoverer{targets: []alive.DiscoveredTarget{
		{Host: model.DiscoveredHost{IP: "10.0.0.8", MAC: "aa:bb:cc:00:00:08", Hostname: "nas"}, Ports: []int{445}},
	}}
	o, _ := newTestOrchestrator(t, cfg, disc, &fakeBrute{}, &fakeVuln{})

	got := o.AddManualTarget(context.Background(), "10.0.0.8", "")
	if !got.Alive || got.MAC != "aa:bb:cc:00:00:08" || got.Hostname != "nas" {
		t.Errorf("reachable manual target not enriched: %+v", got)
	}
	if ports := o.registry.Ports("10.0.0.8"); ports == nil || !ports.Has(445) {
		t.Error("probed ports should be recorded")
	}

	offline := o.AddManualTarget(context.Background(), "10.0.0.99", "printer")
	if offline.Alive {
		t.Error("unreachable manual target should be stored offline")
	}
	if offline.MAC != model.ManualMAC {
		t.Errorf("unreachable manual target MAC = %q, want %q", offline.MAC, model.ManualMAC)
	}
}

func TestAttackPerPhaseRunsAllBruteBeforeSteal(t *testing.T) {
	cfg := testConfig(t.TempDir())
	cfg.Scheduler.AttackOrder = "per_phase"
	eng := &fakeBrute{
		delay: 20 * time.Millisecond,
		results: map[string]brute.TaskResult{
			"ftp": {Outcome: model.OutcomeSuccess, Creds: []model.CredentialRecord{
				{Protocol: "ftp", IP: "10.0.0.5", Username: "admin", Password: "admin"},
			}},
		},
	}
	o, stealers := newTestOrchestrator(t, cfg, &fakeDiscoverer{}, eng, &fakeVuln{})
	st := &recordingStealer{protocol: "ftp", files: 1}
	stealers.Register(st)

	seedTarget(t, o, "10.0.0.5", 21)
	seedTarget(t, o, "10.0.0.6", 22)

	start := time.Now()
	o.attackPhase(context.Background())

	eng.mu.Lock()
	bruteDone := len(eng.done)
	eng.mu.Unlock()
	if bruteDone != 2 {
		t.Errorf("brute tasks = %d, want 2", bruteDone)
	}
	if len(st.calls) != 1 {
		t.Fatalf("steal calls = %d, want 1 (only 10.0.0.5 had an ftp success)", len(st.calls))
	}
	if st.calls[0].Sub(start) < eng.delay {
		t.Error("steal phase started before brute phase finished")
	}
}

func TestRunLoopRespectsManualMode(t *testing.T) {
	cfg := testConfig(t.TempDir())
	cfg.Scheduler.ScanInterval = 10 * time.Millisecond
	disc := &fakeDiscoverer{}
	o, _ := newTestOrchestrator(t, cfg, disc, &fakeBrute{}, &fakeVuln{})
	o.state.SetMode(ModeManual)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	err := o.Run(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Run returned %v, want deadline exceeded", err)
	}
	if atomic.LoadInt32(&disc.sweeps) != 0 {
		t.Error("manual mode must suspend the autonomous loop")
	}
}

func TestFruitlessCycleRunsIdleAction(t *testing.T) {
	cfg := testConfig(t.TempDir())
	cfg.Scheduler.ScanInterval = 5 * time.Millisecond
	o, _ := newTestOrchestrator(t, cfg, &fakeDiscoverer{}, &fakeBrute{}, &fakeVuln{})

	// 空网段，每轮都无成果
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	_ = o.Run(ctx)

	if o.IdleCycles() == 0 {
		t.Error("fruitless cycles should dispatch the idle action and count up")
	}
}

func TestRunCycleReportsDispatchedWork(t *testing.T) {
	cfg := testConfig(t.TempDir())
	eng := &fakeBrute{}
	disc := &fakeDiscoverer{targets: []alive.DiscoveredTarget{
		{Host: model.DiscoveredHost{IP: "10.0.0.5", MAC: "aa:bb:cc:00:11:22"}, Ports: []int{21}},
	}}
	o, _ := newTestOrchestrator(t, cfg, disc, eng, &fakeVuln{})

	if !o.runCycle(context.Background()) {
		t.Error("cycle with an eligible brute target should report work")
	}
	if atomic.LoadInt32(&eng.calls) == 0 {
		t.Error("eligible brute target should reach the engine")
	}
}

func TestAttackPhaseStopsInManualMode(t *testing.T) {
	for _, order := range []string{"per_host", "spread", "per_phase"} {
		t.Run(order, func(t *testing.T) {
			cfg := testConfig(t.TempDir())
			cfg.Scheduler.AttackOrder = order
			eng := &fakeBrute{}
			vs := &fakeVuln{}
			o, _ := newTestOrchestrator(t, cfg, &fakeDiscoverer{}, eng, vs)
			seedTarget(t, o, "10.0.0.5", 21)
			seedTarget(t, o, "10.0.0.6", 22, 80)

			o.state.SetMode(ModeManual)
			o.attackPhase(context.Background())

			if got := atomic.LoadInt32(&eng.calls); got != 0 {
				t.Errorf("brute calls = %d, want 0 while suspended", got)
			}
			if got := atomic.LoadInt32(&vs.calls); got != 0 {
				t.Errorf("vuln calls = %d, want 0 while suspended", got)
			}
		})
	}
}

func TestApplyConfigRebuildsPolicyAndMode(t *testing.T) {
	cfg := testConfig(t.TempDir())
	o, _ := newTestOrchestrator(t, cfg, &fakeDiscoverer{}, &fakeBrute{}, &fakeVuln{})

	next := testConfig(cfg.DataDir)
	next.Scheduler.RetryFailedActions = false
	next.Scheduler.ManualMode = true
	o.ApplyConfig(cfg, next)

	if o.state.Mode() != ModeManual {
		t.Errorf("mode = %s, want manual after reload flips manual_mode", o.state.Mode())
	}
	if o.sched() != next.Scheduler {
		t.Error("scheduler parameters should come from the reloaded config")
	}
	if o.retryPolicy().RetryFailed {
		t.Error("retry policy should be rebuilt from the reloaded config")
	}

	// 开关没变化的重载不得回滚 API 切出来的模式
	o.state.SetMode(ModeAutonomous)
	third := testConfig(cfg.DataDir)
	third.Scheduler.ManualMode = true
	o.ApplyConfig(next, third)
	if o.state.Mode() != ModeAutonomous {
		t.Error("reload without a manual_mode change must keep the current mode")
	}
}

func TestRunBruteRejectsConcurrentDuplicate(t *testing.T) {
	cfg := testConfig(t.TempDir())
	eng := &fakeBrute{blockCtx: true}
	o, _ := newTestOrchestrator(t, cfg, &fakeDiscoverer{}, eng, &fakeVuln{})
	target := seedTarget(t, o, "10.0.0.5", 21)
	action, _ := o.catalog.Get("brute_ftp")

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		o.runBrute(ctx, target, action)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for atomic.LoadInt32(&eng.calls) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("first brute task never started")
		}
		time.Sleep(time.Millisecond)
	}

	// 第一个任务还挂在 Crack 里，重复派发必须被拒掉
	o.runBrute(context.Background(), target, action)
	if got := atomic.LoadInt32(&eng.calls); got != 1 {
		t.Fatalf("engine calls = %d, want 1 while first task in flight", got)
	}

	cancel()
	wg.Wait()

	// 首个任务终态后登记释放，再派发可以进入引擎
	done, doneCancel := context.WithCancel(context.Background())
	doneCancel()
	o.runBrute(done, target, action)
	if got := atomic.LoadInt32(&eng.calls); got != 2 {
		t.Fatalf("engine calls = %d, want 2 after first task finished", got)
	}
}
