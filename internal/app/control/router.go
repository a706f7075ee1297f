/**
 * 控制面路由
 * @description: gin HTTP API。启停自主模式、手动攻击、目标管理、
 *               凭据/战利品/漏洞结果查询与清理。
 */
package control

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"raider/internal/app/control/middleware"
	"raider/internal/config"
	"raider/internal/core/loot"
	"raider/internal/core/orchestrator"
	"raider/internal/core/scanner/vuln"
)

// Deps 控制面依赖
type Deps struct {
	Orchestrator *orchestrator.Orchestrator
	Creds        *loot.CredStore
	Files        *loot.FileStore
	Vulns        *vuln.Store
	LogFile      string // 日志文件路径，清理接口用；空 = 未落盘
}

// Router 控制面路由器
type Router struct {
	engine *gin.Engine
	cfg    *config.ServerConfig
	deps   Deps
}

// NewRouter 创建路由器并注册全部路由
func NewRouter(cfg *config.ServerConfig, deps Deps) *Router {
	if cfg.Mode != "" {
		gin.SetMode(cfg.Mode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.Logging(&middleware.LoggingConfig{
		SkipPaths:            []string{"/health", "/ping"},
		SlowRequestThreshold: 3 * time.Second,
	}))
	engine.Use(middleware.CORS(nil))

	r := &Router{engine: engine, cfg: cfg, deps: deps}
	r.setupRoutes()
	return r
}

// Engine 底层 gin 引擎 (测试用)
func (r *Router) Engine() *gin.Engine {
	return r.engine
}

// Server 构建 http.Server
func (r *Router) Server() *http.Server {
	return &http.Server{
		Addr:         fmt.Sprintf("%s:%d", r.cfg.Host, r.cfg.Port),
		Handler:      r.engine,
		ReadTimeout:  r.cfg.ReadTimeout,
		WriteTimeout: r.cfg.WriteTimeout,
	}
}

func (r *Router) setupRoutes() {
	r.engine.GET("/health", r.handleHealth)
	r.engine.GET("/ping", r.handlePing)
	r.engine.GET("/status", r.handleStatus)

	v1 := r.engine.Group("/api/v1")
	{
		v1.GET("/mode", r.handleGetMode)
		v1.POST("/mode", r.handleSetMode)

		v1.POST("/attack", r.handleManualAttack)
		v1.DELETE("/attack", r.handleStopAttack)

		v1.GET("/targets", r.handleListTargets)
		v1.POST("/targets", r.handleAddTarget)
		v1.DELETE("/targets", r.handleClearTargets)

		v1.GET("/credentials", r.handleListCredentials)
		v1.DELETE("/credentials", r.handleClearCredentials)

		v1.DELETE("/loot", r.handleClearLoot)
		v1.DELETE("/logs", r.handleClearLogs)
		v1.DELETE("/data", r.handleClearAll)

		v1.GET("/vulns", r.handleVulnSummaries)
		v1.GET("/vulns/:ip", r.handleVulnDetails)
	}
}
