// 动作目录: 静态注册所有可调度的动作类型
// 启动时构建一次，运行期只读，无需加锁
package catalog

import (
	"fmt"

	"raider/internal/core/model"
)

// Category 动作类别
type Category string

const (
	CategoryScan  Category = "scan"       // 网络发现
	CategoryBrute Category = "bruteforce" // 弱口令爆破
	CategorySteal Category = "steal"      // 文件/数据窃取
	CategoryVuln  Category = "vuln"       // 漏洞扫描
	CategoryIdle  Category = "idle"       // 空闲动作
)

// Action 动作描述符 (不可变)
type Action struct {
	ID       string // 唯一标识，netkb 列名
	Name     string // 展示名
	Category Category
	Protocol string // 协议名 (brute/steal 类别)
	Port     int    // 所需端口，0 表示与端口无关
	Parent   string // 父动作 ID，子动作仅在父动作 success 后可执行
}

// Applicable 目标端口集是否满足该动作的端口要求
func (a Action) Applicable(ports *model.PortSet) bool {
	if a.Port == 0 {
		return true
	}
	return ports != nil && ports.Has(a.Port)
}

// Catalog 动作注册表
type Catalog struct {
	actions map[string]Action
	order   []string // 稳定的调度顺序
}

// Default 构建内置动作目录
// 显式注册表，不做运行时反射
func Default() *Catalog {
	c := &Catalog{actions: make(map[string]Action)}

	c.register(Action{ID: "network_scan", Name: "Network Scan", Category: CategoryScan})
	c.register(Action{ID: "vuln_scan", Name: "Vulnerability Scan", Category: CategoryVuln})

	// 爆破动作，每协议一个
	bruteports := []struct {
		proto string
		port  int
	}{
		{"ftp", 21},
		{"ssh", 22},
		{"telnet", 23},
		{"smb", 445},
		{"mysql", 3306},
		{"rdp", 3389},
		{"redis", 6379},
		{"postgres", 5432},
	}
	for _, bp := range bruteports {
		c.register(Action{
			ID:       "brute_" + bp.proto,
			Name:     fmt.Sprintf("Brute %s", bp.proto),
			Category: CategoryBrute,
			Protocol: bp.proto,
			Port:     bp.port,
		})
	}

	// 窃取动作是对应爆破动作的子动作
	for _, proto := range []string{"ftp", "ssh", "telnet", "smb", "mysql"} {
		parent := "brute_" + proto
		c.register(Action{
			ID:       "steal_" + proto,
			Name:     fmt.Sprintf("Steal via %s", proto),
			Category: CategorySteal,
			Protocol: proto,
			Port:     c.actions[parent].Port,
			Parent:   parent,
		})
	}

	c.register(Action{ID: "idle", Name: "Idle", Category: CategoryIdle})

	return c
}

func (c *Catalog) register(a Action) {
	c.actions[a.ID] = a
	c.order = append(c.order, a.ID)
}

// Get 按 ID 查找动作
func (c *Catalog) Get(id string) (Action, bool) {
	a, ok := c.actions[id]
	return a, ok
}

// ByCategory 按类别返回动作 (注册顺序)
func (c *Catalog) ByCategory(cat Category) []Action {
	var out []Action
	for _, id := range c.order {
		if a := c.actions[id]; a.Category == cat {
			out = append(out, a)
		}
	}
	return out
}

// StealActionFor 返回协议对应的窃取动作
func (c *Catalog) StealActionFor(protocol string) (Action, bool) {
	return c.Get("steal_" + protocol)
}

// All 全部动作 (注册顺序)
func (c *Catalog) All() []Action {
	out := make([]Action, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.actions[id])
	}
	return out
}

// OutcomeColumns netkb 需要持久化的结果列 (scan 与 idle 不占列)
func (c *Catalog) OutcomeColumns() []string {
	var cols []string
	for _, id := range c.order {
		switch c.actions[id].Category {
		case CategoryBrute, CategorySteal, CategoryVuln:
			cols = append(cols, id)
		}
	}
	return cols
}
