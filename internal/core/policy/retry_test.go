package policy

import (
	"testing"
	"time"

	"raider/internal/config"
	"raider/internal/core/model"
)

func TestRetryPolicyEligible(t *testing.T) {
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.Local)
	pol := RetryPolicy{
		RetrySuccess:     false,
		SuccessDelay:     time.Hour,
		RetryFailed:      true,
		FailedDelay:      10 * time.Minute,
		MaxFailedRetries: 3,
	}

	tests := []struct {
		name string
		o    model.Outcome
		want bool
	}{
		{"无历史", model.Outcome{}, true},
		{"成功不重试", model.Outcome{Kind: model.OutcomeSuccess, At: now.Add(-2 * time.Hour)}, false},
		{"无凭据间隔已过", model.Outcome{Kind: model.OutcomeNoCreds, At: now.Add(-11 * time.Minute)}, true},
		{"无凭据间隔未过", model.Outcome{Kind: model.OutcomeNoCreds, At: now.Add(-time.Minute)}, false},
		{"失败间隔已过", model.Outcome{Kind: model.OutcomeFailed, FailCount: 1, At: now.Add(-11 * time.Minute)}, true},
		{"失败间隔未过", model.Outcome{Kind: model.OutcomeFailed, FailCount: 1, At: now.Add(-time.Minute)}, false},
		{"失败到达上限", model.Outcome{Kind: model.OutcomeFailed, FailCount: 3, At: now.Add(-time.Hour)}, false},
		{"失败超过上限", model.Outcome{Kind: model.OutcomeFailed, FailCount: 5, At: now.Add(-time.Hour)}, false},
		{"在途标记立即重试", model.Outcome{Kind: model.OutcomeRunning}, true},
		{"恰好到达间隔边界", model.Outcome{Kind: model.OutcomeFailed, FailCount: 1, At: now.Add(-10 * time.Minute)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := pol.Eligible(tt.o, now); got != tt.want {
				t.Errorf("Eligible(%+v) = %v, want %v", tt.o, got, tt.want)
			}
		})
	}
}

func TestRetryPolicySuccessRetry(t *testing.T) {
	now := time.Now()
	pol := RetryPolicy{RetrySuccess: true, SuccessDelay: time.Hour, RetryFailed: true}

	stale := model.Outcome{Kind: model.OutcomeSuccess, At: now.Add(-2 * time.Hour)}
	if !pol.Eligible(stale, now) {
		t.Error("stale success should be retryable when enabled")
	}
	fresh := model.Outcome{Kind: model.OutcomeSuccess, At: now.Add(-time.Minute)}
	if pol.Eligible(fresh, now) {
		t.Error("fresh success should wait out the delay")
	}
}

func TestRetryPolicyFailedRetryDisabled(t *testing.T) {
	now := time.Now()
	pol := RetryPolicy{RetryFailed: false}
	for _, k := range []model.OutcomeKind{model.OutcomeFailed, model.OutcomeNoCreds, model.OutcomeRunning} {
		if pol.Eligible(model.Outcome{Kind: k, At: now.Add(-24 * time.Hour)}, now) {
			t.Errorf("%s should not retry when failed retry is off", k)
		}
	}
}

func TestFromConfig(t *testing.T) {
	pol := FromConfig(&config.SchedulerConfig{
		RetrySuccessActions: true,
		SuccessRetryDelay:   time.Hour,
		RetryFailedActions:  true,
		FailedRetryDelay:    10 * time.Minute,
		MaxFailedRetries:    5,
	})
	if !pol.RetrySuccess || pol.SuccessDelay != time.Hour || pol.MaxFailedRetries != 5 {
		t.Errorf("unexpected policy: %+v", pol)
	}
}

func TestBlacklist(t *testing.T) {
	bl := NewBlacklist(&config.NetworkConfig{
		Subnet:         "192.168.1.0/24",
		BlacklistIPs:   []string{"192.168.1.10"},
		BlacklistMACs:  []string{"AA:BB:CC:DD:EE:FF"},
		ExcludeGateway: true,
	}, "192.168.1.1")

	tests := []struct {
		name    string
		ip, mac string
		want    bool
	}{
		{"IP黑名单", "192.168.1.10", "", true},
		{"MAC黑名单大小写不敏感", "192.168.1.20", "aa:bb:cc:dd:ee:ff", true},
		{"网关排除", "192.168.1.1", "", true},
		{"普通目标", "192.168.1.50", "11:22:33:44:55:66", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := bl.Blocked(tt.ip, tt.mac); got != tt.want {
				t.Errorf("Blocked(%s, %s) = %v, want %v", tt.ip, tt.mac, got, tt.want)
			}
		})
	}

	if !bl.InScope("192.168.1.77") {
		t.Error("in-subnet ip should be in scope")
	}
	if bl.InScope("10.0.0.1") {
		t.Error("out-of-subnet ip should be out of scope")
	}
	if bl.InScope("not-an-ip") {
		t.Error("unparseable ip should be out of scope")
	}

	open := NewBlacklist(&config.NetworkConfig{}, "")
	if !open.InScope("10.0.0.1") {
		t.Error("no subnet configured should mean everything in scope")
	}
	if open.Blocked("10.0.0.1", "") {
		t.Error("empty blacklist should block nothing")
	}
}
