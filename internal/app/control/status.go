/**
 * 运行状态
 * @description: 进程与宿主机状态快照，gopsutil 采集
 */
package control

import (
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"

	"raider/internal/pkg/logger"
	"raider/internal/pkg/version"
)

var startedAt = time.Now()

// handleStatus 状态快照: 模式 + 注册表规模 + 宿主资源
func (r *Router) handleStatus(c *gin.Context) {
	o := r.deps.Orchestrator

	resp := gin.H{
		"service":    "raider",
		"version":    version.Version,
		"go_version": version.GoVersion,
		"uptime":     time.Since(startedAt).Round(time.Second).String(),
		"goroutines": runtime.NumGoroutine(),
		"mode":       o.State().Mode(),
		"targets":    o.Registry().Len(),
	}

	// 采样 100ms，心跳接口可以接受
	if pct, err := cpu.Percent(100*time.Millisecond, false); err == nil && len(pct) > 0 {
		resp["cpu_percent"] = pct[0]
	} else if err != nil {
		logger.Debugf("cpu sample failed: %v", err)
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		resp["memory_percent"] = vm.UsedPercent
	}
	if du, err := disk.Usage("/"); err == nil {
		resp["disk_percent"] = du.UsedPercent
	}
	if hi, err := host.Info(); err == nil {
		resp["host"] = gin.H{
			"hostname": hi.Hostname,
			"os":       hi.OS,
			"platform": hi.Platform,
			"uptime":   hi.Uptime,
		}
	}

	c.JSON(http.StatusOK, resp)
}
