package orchestrator

import (
	"fmt"
	"sync"
	"time"
)

// Mode 运行模式
type Mode string

const (
	ModeAutonomous Mode = "autonomous" // 自主循环
	ModeManual     Mode = "manual"     // 循环挂起，等待手动指令
)

// ManualAttack 在途手动动作描述
type ManualAttack struct {
	ActionID  string    `json:"action_id"`
	TargetKey string    `json:"target_key,omitempty"` // 空表示全目标 (扫描类)
	StartedAt time.Time `json:"started_at"`
}

// RunState 全局运行状态
// 唯一实例，只通过方法修改；取消标志由工作池/批处理轮询，
// 动作终态后清除
type RunState struct {
	mu       sync.Mutex
	mode     Mode
	manual   *ManualAttack
	cancelCh chan struct{}
}

// NewRunState 按配置初始化运行模式
func NewRunState(manualMode bool) *RunState {
	mode := ModeAutonomous
	if manualMode {
		mode = ModeManual
	}
	return &RunState{mode: mode}
}

// Mode 当前模式
func (s *RunState) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// SetMode 切换模式
// 切手动不打断在途阶段，循环在阶段边界自行挂起
func (s *RunState) SetMode(m Mode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = m
}

// BeginManual 登记一个手动动作，已有在途动作时拒绝
func (s *RunState) BeginManual(actionID, targetKey string) (*ManualAttack, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.manual != nil {
		return nil, fmt.Errorf("manual attack %s already in flight", s.manual.ActionID)
	}
	s.manual = &ManualAttack{ActionID: actionID, TargetKey: targetKey, StartedAt: time.Now()}
	s.cancelCh = make(chan struct{})
	return s.manual, nil
}

// EndManual 手动动作到达终态，同时清除取消标志
func (s *RunState) EndManual() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.manual = nil
	s.cancelCh = nil
}

// Manual 在途手动动作 (副本)，无在途返回 nil
func (s *RunState) Manual() *ManualAttack {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.manual == nil {
		return nil
	}
	cp := *s.manual
	return &cp
}

// CancelManual 对在途手动动作升取消标志
func (s *RunState) CancelManual() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.manual == nil || s.cancelCh == nil {
		return false
	}
	select {
	case <-s.cancelCh:
	default:
		close(s.cancelCh)
	}
	return true
}

// CancelChan 在途手动动作的取消通道，供 context 串接
func (s *RunState) CancelChan() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelCh
}
