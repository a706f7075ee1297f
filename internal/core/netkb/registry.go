/**
 * 网络知识库 (netkb)
 * @description: 目标、端口与动作结果的权威存储。内存视图加锁串行写，
 *               磁盘落盘为尽力而为的异步补充，失败只记日志不致命。
 */
package netkb

import (
	"fmt"
	"sync"
	"time"

	"raider/internal/core/catalog"
	"raider/internal/core/model"
	"raider/internal/core/policy"
	"raider/internal/pkg/logger"
)

// Registry 目标注册表
// 行键 = (ip, hostname)；端口集按 ip 共享，虚拟主机行之间互通
type Registry struct {
	mu    sync.RWMutex
	rows  map[string]*model.Target
	order []string                  // 插入顺序，保证稳定遍历
	ports map[string]*model.PortSet // ip -> 端口集
	store *Store                    // nil 表示纯内存 (测试)
	dirty bool
}

// NewRegistry 创建注册表并从存储恢复现场
func NewRegistry(store *Store) (*Registry, error) {
	r := &Registry{
		rows:  make(map[string]*model.Target),
		order: make([]string, 0),
		ports: make(map[string]*model.PortSet),
		store: store,
	}
	if store != nil {
		rows, ports, err := store.Load()
		if err != nil {
			return nil, fmt.Errorf("failed to load netkb: %w", err)
		}
		for _, row := range rows {
			r.rows[row.Key()] = row
			r.order = append(r.order, row.Key())
		}
		r.ports = ports
	}
	return r, nil
}

// Upsert 合并发现结果: 端口并入既有行或新建行
// 端口集只增不减，行的存活标记被刷新
func (r *Registry) Upsert(host model.DiscoveredHost, openPorts []int) *model.Target {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := model.TargetKey(host.IP, host.Hostname)
	row, ok := r.rows[key]
	if !ok {
		mac := host.MAC
		if mac == "" {
			mac = model.ManualMAC
		}
		row = model.NewTarget(host.IP, host.Hostname, mac)
		r.rows[key] = row
		r.order = append(r.order, key)
	} else if host.MAC != "" && row.MAC == model.ManualMAC {
		// 手工目标被扫描确认后补全 MAC
		row.MAC = host.MAC
	}
	row.Alive = true

	set, ok := r.ports[host.IP]
	if !ok {
		set = model.NewPortSet()
		r.ports[host.IP] = set
	}
	set.Add(openPorts...)

	r.dirty = true
	return row.Clone()
}

// SetAlive 更新 ip 下所有行的存活标记
func (r *Registry) SetAlive(ip string, alive bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, key := range r.order {
		if row := r.rows[key]; row.IP == ip {
			row.Alive = alive
			r.dirty = true
		}
	}
}

// MarkRunning 写入在途标记
// 进程若在动作执行中崩溃，重启后该标记按失败参与重试评估
func (r *Registry) MarkRunning(targetKey, actionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if row, ok := r.rows[targetKey]; ok {
		row.Outcomes[actionID] = model.Outcome{Kind: model.OutcomeRunning}.Encode()
		r.dirty = true
	}
}

// RecordOutcome 覆写动作结果单元格
// failed 结果在旧计数上递增；同一单元格的写入由注册表锁线性化
func (r *Registry) RecordOutcome(targetKey, actionID string, kind model.OutcomeKind, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	row, ok := r.rows[targetKey]
	if !ok {
		return
	}

	out := model.Outcome{Kind: kind, At: at}
	if kind == model.OutcomeFailed {
		prev := model.ParseOutcome(row.Outcomes[actionID])
		if prev.Kind == model.OutcomeFailed {
			out.FailCount = prev.FailCount + 1
		} else {
			out.FailCount = 1
		}
	}
	row.Outcomes[actionID] = out.Encode()
	r.dirty = true
}

// Ports 返回 ip 的端口集快照
func (r *Registry) Ports(ip string) *model.PortSet {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set, ok := r.ports[ip]
	if !ok {
		return model.NewPortSet()
	}
	return model.NewPortSet(set.List()...)
}

// Get 按键取行 (克隆)
func (r *Registry) Get(targetKey string) (*model.Target, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	row, ok := r.rows[targetKey]
	if !ok {
		return nil, false
	}
	return row.Clone(), true
}

// Targets 全部行的克隆，稳定顺序
func (r *Registry) Targets() []*model.Target {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*model.Target, 0, len(r.order))
	for _, key := range r.order {
		out = append(out, r.rows[key].Clone())
	}
	return out
}

// EligibleTargets 返回某动作当前可调度的目标
// 过滤顺序: 存活 -> 黑名单/网段 -> 端口要求 -> 父动作成功 -> 重试策略
func (r *Registry) EligibleTargets(action catalog.Action, pol policy.RetryPolicy, bl *policy.Blacklist, now time.Time) []*model.Target {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*model.Target
	for _, key := range r.order {
		row := r.rows[key]
		if !row.Alive {
			continue
		}
		if bl != nil && (bl.Blocked(row.IP, row.MAC) || !bl.InScope(row.IP)) {
			continue
		}
		if !action.Applicable(r.ports[row.IP]) {
			continue
		}
		if action.Parent != "" {
			if model.ParseOutcome(row.Outcomes[action.Parent]).Kind != model.OutcomeSuccess {
				continue
			}
		}
		if !pol.Eligible(model.ParseOutcome(row.Outcomes[action.ID]), now) {
			continue
		}
		out = append(out, row.Clone())
	}
	return out
}

// Flush 尽力而为地落盘
// 失败保留 dirty 标记，调用方在下个调度节拍重试
func (r *Registry) Flush() error {
	r.mu.Lock()
	if r.store == nil || !r.dirty {
		r.mu.Unlock()
		return nil
	}
	rows := make([]*model.Target, 0, len(r.order))
	for _, key := range r.order {
		rows = append(rows, r.rows[key].Clone())
	}
	ports := make(map[string]*model.PortSet, len(r.ports))
	for ip, set := range r.ports {
		ports[ip] = model.NewPortSet(set.List()...)
	}
	r.dirty = false
	store := r.store
	r.mu.Unlock()

	if err := store.Save(rows, ports); err != nil {
		r.mu.Lock()
		r.dirty = true
		r.mu.Unlock()
		logger.Errorf("netkb flush failed (will retry next tick): %v", err)
		return err
	}
	return nil
}

// ArchiveAndClear 归档当前快照后清空注册表
// 返回归档文件路径 (注册表为空时跳过归档返回空串)
func (r *Registry) ArchiveAndClear() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	archive := ""
	if r.store != nil && len(r.rows) > 0 {
		// 先保证磁盘与内存一致，再归档
		rows := make([]*model.Target, 0, len(r.order))
		for _, key := range r.order {
			rows = append(rows, r.rows[key])
		}
		if err := r.store.Save(rows, r.ports); err != nil {
			return "", fmt.Errorf("failed to persist before archive: %w", err)
		}
		path, err := r.store.Archive()
		if err != nil {
			return "", err
		}
		archive = path
	}

	r.rows = make(map[string]*model.Target)
	r.order = r.order[:0]
	r.ports = make(map[string]*model.PortSet)
	r.dirty = true

	if r.store != nil {
		if err := r.store.Save(nil, nil); err != nil {
			logger.Errorf("netkb truncate flush failed: %v", err)
		} else {
			r.dirty = false
		}
	}
	return archive, nil
}

// Len 当前行数
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rows)
}
