// 重试策略: 纯函数，输入 (上次结果, 当前时间, 配置) 输出是否可再次调度
package policy

import (
	"time"

	"raider/internal/config"
	"raider/internal/core/model"
)

// RetryPolicy 重试决策参数
type RetryPolicy struct {
	RetrySuccess     bool          // 成功动作是否允许重试
	SuccessDelay     time.Duration // 成功后的重试间隔
	RetryFailed      bool          // 失败动作是否允许重试
	FailedDelay      time.Duration // 失败后的重试间隔
	MaxFailedRetries int           // 失败重试上限 (仅 failed 计数)
}

// FromConfig 由调度配置构造策略
func FromConfig(c *config.SchedulerConfig) RetryPolicy {
	return RetryPolicy{
		RetrySuccess:     c.RetrySuccessActions,
		SuccessDelay:     c.SuccessRetryDelay,
		RetryFailed:      c.RetryFailedActions,
		FailedDelay:      c.FailedRetryDelay,
		MaxFailedRetries: c.MaxFailedRetries,
	}
}

// Eligible 判断动作是否可调度
//
// 规则:
//   - 无历史结果: 可调度
//   - success@T: 开启成功重试且间隔已过
//   - no_creds@T / failed@T: 开启失败重试且间隔已过
//   - failed 额外受 MaxFailedRetries 约束
//   - running: 崩溃残留的在途标记，按失败处理
func (p RetryPolicy) Eligible(o model.Outcome, now time.Time) bool {
	switch o.Kind {
	case model.OutcomeNone:
		return true

	case model.OutcomeSuccess:
		if !p.RetrySuccess {
			return false
		}
		return delayElapsed(o.At, p.SuccessDelay, now)

	case model.OutcomeNoCreds:
		if !p.RetryFailed {
			return false
		}
		return delayElapsed(o.At, p.FailedDelay, now)

	case model.OutcomeFailed:
		if !p.RetryFailed {
			return false
		}
		if p.MaxFailedRetries > 0 && o.FailCount >= p.MaxFailedRetries {
			return false
		}
		return delayElapsed(o.At, p.FailedDelay, now)

	case model.OutcomeRunning:
		// 进程崩溃时留下的标记没有时间戳，立即可重试
		if !p.RetryFailed {
			return false
		}
		return delayElapsed(o.At, p.FailedDelay, now)
	}
	return false
}

func delayElapsed(at time.Time, delay time.Duration, now time.Time) bool {
	if at.IsZero() {
		return true
	}
	return !now.Before(at.Add(delay))
}
