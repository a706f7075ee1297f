package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// OutcomeTimeLayout 结果时间戳格式 (netkb 单元格内嵌格式)
const OutcomeTimeLayout = "20060102_150405"

// OutcomeKind 动作结果类型
type OutcomeKind string

const (
	OutcomeNone    OutcomeKind = ""         // 从未执行
	OutcomeRunning OutcomeKind = "running"  // 执行中 (崩溃残留标记，重试时按失败处理)
	OutcomeSuccess OutcomeKind = "success"  // 成功 (含 guest 访问)
	OutcomeNoCreds OutcomeKind = "no_creds" // 字典耗尽，未命中凭据
	OutcomeFailed  OutcomeKind = "failed"   // 连接/协议/超时错误
)

// Outcome 单个 (目标, 动作) 的执行结果
// 编码为 netkb 单元格字符串:
//
//	success_20260829_153000
//	no_creds_20260829_153000
//	failed_2_20260829_153000  (2 为累计失败次数)
//	running
type Outcome struct {
	Kind      OutcomeKind
	FailCount int       // 仅 Kind == OutcomeFailed 时有意义
	At        time.Time // 最近一次尝试时间，零值表示无时间戳
}

// Encode 编码为 netkb 单元格字符串
func (o Outcome) Encode() string {
	switch o.Kind {
	case OutcomeNone:
		return ""
	case OutcomeRunning:
		return string(OutcomeRunning)
	case OutcomeFailed:
		count := o.FailCount
		if count < 1 {
			count = 1
		}
		return fmt.Sprintf("%s_%d_%s", OutcomeFailed, count, o.At.Format(OutcomeTimeLayout))
	default:
		return fmt.Sprintf("%s_%s", o.Kind, o.At.Format(OutcomeTimeLayout))
	}
}

// ParseOutcome 解析 netkb 单元格字符串
// 无法识别的格式按 OutcomeNone 处理，保证旧数据不会阻塞调度
func ParseOutcome(s string) Outcome {
	s = strings.TrimSpace(s)
	if s == "" {
		return Outcome{Kind: OutcomeNone}
	}
	if s == string(OutcomeRunning) {
		return Outcome{Kind: OutcomeRunning}
	}

	// no_creds 前缀本身含下划线，优先匹配
	if rest, ok := strings.CutPrefix(s, string(OutcomeNoCreds)+"_"); ok {
		return Outcome{Kind: OutcomeNoCreds, At: parseOutcomeTime(rest)}
	}
	if rest, ok := strings.CutPrefix(s, string(OutcomeSuccess)+"_"); ok {
		return Outcome{Kind: OutcomeSuccess, At: parseOutcomeTime(rest)}
	}
	if rest, ok := strings.CutPrefix(s, string(OutcomeFailed)+"_"); ok {
		// failed_{count}_{ts} 或旧格式 failed_{ts}
		// 时间戳本身是 {日期}_{时刻} 两段，首段是不是计数要看剩余部分
		// 能否按时间戳解析，否则 failed_20060102_150405 会被当成巨额计数
		parts := strings.SplitN(rest, "_", 2)
		if len(parts) == 2 {
			count, err := strconv.Atoi(parts[0])
			if err == nil && !parseOutcomeTime(parts[1]).IsZero() {
				return Outcome{Kind: OutcomeFailed, FailCount: count, At: parseOutcomeTime(parts[1])}
			}
		}
		return Outcome{Kind: OutcomeFailed, FailCount: 1, At: parseOutcomeTime(rest)}
	}

	return Outcome{Kind: OutcomeNone}
}

func parseOutcomeTime(s string) time.Time {
	t, err := time.ParseInLocation(OutcomeTimeLayout, s, time.Local)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Terminal 是否为终态 (一次调度过程结束后必须处于终态或空态)
func (o Outcome) Terminal() bool {
	return o.Kind == OutcomeSuccess || o.Kind == OutcomeNoCreds || o.Kind == OutcomeFailed
}
