/**
 * 应用装配
 * @description: 把配置、日志、存储、扫描器、调度器和控制面拼成一个进程。
 *               Start 拉起后台循环和 HTTP 服务，Stop 按序收尾。
 */
package raider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"raider/internal/app/control"
	"raider/internal/config"
	"raider/internal/core/catalog"
	"raider/internal/core/loot"
	"raider/internal/core/netkb"
	"raider/internal/core/orchestrator"
	"raider/internal/core/policy"
	"raider/internal/core/scanner/alive"
	"raider/internal/core/scanner/brute"
	"raider/internal/core/scanner/brute/protocol"
	"raider/internal/core/scanner/vuln"
	"raider/internal/core/steal"
	"raider/internal/pkg/logger"
)

// App Raider 进程
type App struct {
	cfg     *config.Config
	orch    *orchestrator.Orchestrator
	server  *http.Server
	watcher *config.ConfigWatcher

	cancelLoop context.CancelFunc
	loopDone   chan struct{}
}

// NewApp 按配置装配整个进程
// 数据目录建不出来或配置非法都是致命错误
func NewApp(cfg *config.Config, configPath string) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if _, err := logger.InitLogger(cfg.Log); err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("data dir: %w", err)
	}

	// 存储层
	cat := catalog.Default()
	store, err := netkb.NewStore(cfg.DataDir, cat.OutcomeColumns())
	if err != nil {
		return nil, fmt.Errorf("netkb store: %w", err)
	}
	registry, err := netkb.NewRegistry(store)
	if err != nil {
		return nil, fmt.Errorf("netkb load: %w", err)
	}
	creds, err := loot.NewCredStore(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("credential store: %w", err)
	}
	files, err := loot.NewFileStore(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("loot store: %w", err)
	}
	vulnStore, err := vuln.NewStore(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("vuln store: %w", err)
	}

	// 扫描与攻击组件
	gateway := ""
	if cfg.Network.ExcludeGateway {
		gateway = alive.GatewayIP()
		if gateway != "" {
			logger.Infof("gateway %s excluded from targeting", gateway)
		}
	}
	bl := policy.NewBlacklist(cfg.Network, gateway)
	netScanner := alive.NewNetScanner(cfg.Network)

	dict := brute.NewDictManager(cfg.Brute.UserList, cfg.Brute.PassList)
	pool := brute.NewPool(cfg.Brute.WorkerThreads, cfg.Brute.QueueTimeout)
	engine := brute.NewEngine(pool, dict, cfg.Brute.TimeWaitFor)
	for _, c := range []brute.Cracker{
		protocol.NewFTPCracker(),
		protocol.NewSSHCracker(),
		protocol.NewTelnetCracker(),
		protocol.NewSMBCracker(),
		protocol.NewMySQLCracker(),
		protocol.NewRDPCracker(),
		protocol.NewRedisCracker(),
		protocol.NewPostgresCracker(),
	} {
		engine.RegisterCracker(c)
	}

	vulnScanner := vuln.NewScanner(vuln.NewNmapRunner(cfg.Network.Aggressivity), vulnStore, cfg.Vuln)

	limits := steal.LimitsFromConfig(cfg.Steal)
	stealers := steal.NewRegistry()
	stealers.Register(steal.NewFTPStealer(files, limits))
	stealers.Register(steal.NewSSHStealer(files, limits))
	stealers.Register(steal.NewTelnetStealer(files, limits))
	stealers.Register(steal.NewSMBStealer(files, limits))
	stealers.Register(steal.NewMySQLStealer(files, limits))

	state := orchestrator.NewRunState(cfg.Scheduler.ManualMode)
	orch := orchestrator.New(cfg, state, registry, cat, bl, netScanner, engine, vulnScanner, creds, stealers)

	router := control.NewRouter(cfg.Server, control.Deps{
		Orchestrator: orch,
		Creds:        creds,
		Files:        files,
		Vulns:        vulnStore,
		LogFile:      cfg.Log.FilePath,
	})

	app := &App{
		cfg:    cfg,
		orch:   orch,
		server: router.Server(),
	}

	// 配置热加载 (日志级别等运行期可调项)
	if configPath != "" {
		watcher, err := config.NewConfigWatcher(configPath, cfg)
		if err != nil {
			logger.Warnf("config watcher disabled: %v", err)
		} else {
			app.watcher = watcher
		}
	}
	return app, nil
}

// Orchestrator 调度器 (CLI 一次性命令用)
func (a *App) Orchestrator() *orchestrator.Orchestrator {
	return a.orch
}

// Start 拉起调度循环和控制面
func (a *App) Start() error {
	loopCtx, cancel := context.WithCancel(context.Background())
	a.cancelLoop = cancel
	a.loopDone = make(chan struct{})

	go func() {
		defer close(a.loopDone)
		if err := a.orch.Run(loopCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Errorf("orchestrator loop exited: %v", err)
		}
	}()

	go func() {
		logger.Infof("control api listening on %s", a.server.Addr)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("control api failed: %v", err)
		}
	}()

	if a.watcher != nil {
		a.watcher.OnChange(func(old, next *config.Config) error {
			a.orch.ApplyConfig(old, next)
			return nil
		})
		if err := a.watcher.Start(func(err error) {
			logger.Errorf("config reload failed: %v", err)
		}); err != nil {
			logger.Warnf("config watcher start failed: %v", err)
		}
	}
	return nil
}

// Stop 优雅关停: 先停循环，再关 HTTP，最后落盘
func (a *App) Stop(ctx context.Context) error {
	if a.watcher != nil {
		a.watcher.Stop()
	}
	if a.cancelLoop != nil {
		a.cancelLoop()
		select {
		case <-a.loopDone:
		case <-ctx.Done():
			logger.Warnf("orchestrator did not stop in time")
		}
	}

	var firstErr error
	if err := a.server.Shutdown(ctx); err != nil {
		firstErr = err
	}
	if err := a.orch.Registry().Flush(); err != nil {
		logger.Errorf("final registry flush failed: %v", err)
		if firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// DefaultDotEnvPaths .env 搜索路径
func DefaultDotEnvPaths() []string {
	return []string{".env", filepath.Join("configs", ".env")}
}
