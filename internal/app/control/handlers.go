/**
 * 控制面处理器
 * @description: 模式切换、手动攻击、目标和战果管理的 HTTP 入口
 */
package control

import (
	"context"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"

	"raider/internal/core/catalog"
	"raider/internal/core/model"
	"raider/internal/core/orchestrator"
	"raider/internal/core/scanner/alive"
	"raider/internal/pkg/logger"
	"raider/internal/pkg/version"
)

// ==================== 基础 ====================

func (r *Router) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"service":   "raider",
		"version":   version.Version,
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

func (r *Router) handlePing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "pong"})
}

// ==================== 模式 ====================

func (r *Router) handleGetMode(c *gin.Context) {
	state := r.deps.Orchestrator.State()
	resp := gin.H{"mode": state.Mode()}
	if m := state.Manual(); m != nil {
		resp["manual_attack"] = m
	}
	c.JSON(http.StatusOK, resp)
}

type setModeRequest struct {
	Mode string `json:"mode" binding:"required"`
}

func (r *Router) handleSetMode(c *gin.Context) {
	var req setModeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	switch orchestrator.Mode(req.Mode) {
	case orchestrator.ModeAutonomous, orchestrator.ModeManual:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "mode must be autonomous or manual"})
		return
	}
	r.deps.Orchestrator.State().SetMode(orchestrator.Mode(req.Mode))
	logger.Infof("mode switched to %s via control api", req.Mode)
	c.JSON(http.StatusOK, gin.H{"mode": req.Mode})
}

// ==================== 手动攻击 ====================

type manualAttackRequest struct {
	ActionID  string `json:"action_id" binding:"required"`
	TargetKey string `json:"target_key"`
}

// handleManualAttack 手动执行动作
// 扫描类和全量序列异步跑，单协议动作同步等结果
func (r *Router) handleManualAttack(c *gin.Context) {
	var req manualAttackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	o := r.deps.Orchestrator
	async := req.ActionID == "network_scan" ||
		req.ActionID == "vuln_scan" ||
		req.ActionID == orchestrator.RunAllAction

	if async {
		// 名额在请求协程里同步占住，并发请求只会有一个拿到 202
		// 请求结束会取消 request context，后台动作用独立 context
		desc, err := o.State().BeginManual(req.ActionID, req.TargetKey)
		if err != nil {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		go func() {
			if err := o.ExecuteReserved(context.Background(), desc); err != nil {
				logger.Warnf("async manual action %s: %v", req.ActionID, err)
			}
		}()
		c.JSON(http.StatusAccepted, gin.H{"action_id": req.ActionID, "status": "started"})
		return
	}

	if err := o.ExecuteManual(c.Request.Context(), req.ActionID, req.TargetKey); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}

	resp := gin.H{"action_id": req.ActionID, "status": "finished"}
	if t, ok := o.Registry().Get(req.TargetKey); ok {
		resp["outcome"] = t.Outcome(req.ActionID).Encode()
	}
	c.JSON(http.StatusOK, resp)
}

func (r *Router) handleStopAttack(c *gin.Context) {
	if !r.deps.Orchestrator.StopManual() {
		c.JSON(http.StatusNotFound, gin.H{"error": "no manual attack in flight"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cancelling"})
}

// ==================== 目标 ====================

func (r *Router) handleListTargets(c *gin.Context) {
	targets := r.deps.Orchestrator.Registry().Targets()
	out := make([]gin.H, 0, len(targets))
	for _, t := range targets {
		row := gin.H{
			"key":      t.Key(),
			"ip":       t.IP,
			"hostname": t.Hostname,
			"mac":      t.MAC,
			"alive":    t.Alive,
		}
		if ports := r.deps.Orchestrator.Registry().Ports(t.IP); ports != nil {
			row["ports"] = ports.List()
		}
		outcomes := gin.H{}
		for _, col := range r.deps.Orchestrator.Catalog().OutcomeColumns() {
			if o := t.Outcome(col); o.Kind != model.OutcomeNone {
				outcomes[col] = o.Encode()
			}
		}
		row["outcomes"] = outcomes
		out = append(out, row)
	}
	c.JSON(http.StatusOK, gin.H{"count": len(out), "targets": out})
}

type addTargetRequest struct {
	IP       string `json:"ip"`
	Hostname string `json:"hostname"`
}

// handleAddTarget 手动录入目标
// 只给 hostname 时先做解析，解析失败报错但服务不受影响
func (r *Router) handleAddTarget(c *gin.Context) {
	var req addTargetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.IP == "" && req.Hostname == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ip or hostname is required"})
		return
	}

	ip := req.IP
	if ip == "" {
		resolved, err := alive.ResolveHostname(req.Hostname)
		if err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"error": "hostname resolution failed: " + err.Error(),
			})
			return
		}
		ip = resolved
	} else if net.ParseIP(ip) == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid ip"})
		return
	}

	t := r.deps.Orchestrator.AddManualTarget(c.Request.Context(), ip, req.Hostname)
	c.JSON(http.StatusCreated, gin.H{
		"key":      t.Key(),
		"ip":       t.IP,
		"hostname": t.Hostname,
		"mac":      t.MAC,
		"alive":    t.Alive,
	})
}

func (r *Router) handleClearTargets(c *gin.Context) {
	archive, err := r.deps.Orchestrator.Registry().ArchiveAndClear()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	resp := gin.H{"status": "cleared"}
	if archive != "" {
		resp["archive"] = archive
	}
	c.JSON(http.StatusOK, resp)
}

// ==================== 凭据 / 战利品 ====================

func (r *Router) handleListCredentials(c *gin.Context) {
	protocols := []string{}
	if p := c.Query("protocol"); p != "" {
		protocols = append(protocols, p)
	} else {
		for _, a := range r.deps.Orchestrator.Catalog().ByCategory(catalog.CategoryBrute) {
			protocols = append(protocols, a.Protocol)
		}
	}

	out := []model.CredentialRecord{}
	for _, p := range protocols {
		creds, err := r.deps.Creds.List(p)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		out = append(out, creds...)
	}
	c.JSON(http.StatusOK, gin.H{"count": len(out), "credentials": out})
}

func (r *Router) handleClearCredentials(c *gin.Context) {
	if err := r.deps.Creds.Clear(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cleared"})
}

func (r *Router) handleClearLoot(c *gin.Context) {
	if err := r.deps.Files.Clear(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cleared"})
}

// handleClearLogs 截断日志文件，注册表行不受影响
func (r *Router) handleClearLogs(c *gin.Context) {
	if r.deps.LogFile == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "file logging not enabled"})
		return
	}
	if err := os.Truncate(r.deps.LogFile, 0); err != nil && !os.IsNotExist(err) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cleared"})
}

// handleClearAll 全部清理: 目标归档清空 + 凭据 + 战利品 + 漏洞结果
func (r *Router) handleClearAll(c *gin.Context) {
	var errs []string
	if _, err := r.deps.Orchestrator.Registry().ArchiveAndClear(); err != nil {
		errs = append(errs, "targets: "+err.Error())
	}
	if err := r.deps.Creds.Clear(); err != nil {
		errs = append(errs, "credentials: "+err.Error())
	}
	if err := r.deps.Files.Clear(); err != nil {
		errs = append(errs, "loot: "+err.Error())
	}
	if err := r.deps.Vulns.Clear(); err != nil {
		errs = append(errs, "vulns: "+err.Error())
	}
	if len(errs) > 0 {
		c.JSON(http.StatusInternalServerError, gin.H{"errors": errs})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cleared"})
}

// ==================== 漏洞结果 ====================

func (r *Router) handleVulnSummaries(c *gin.Context) {
	summaries, err := r.deps.Vulns.Summaries()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(summaries), "summaries": summaries})
}

func (r *Router) handleVulnDetails(c *gin.Context) {
	ip := c.Param("ip")
	findings, err := r.deps.Vulns.Details(ip)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ip": ip, "count": len(findings), "findings": findings})
}
