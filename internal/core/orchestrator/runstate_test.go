package orchestrator

import "testing"

func TestRunStateModes(t *testing.T) {
	s := NewRunState(false)
	if s.Mode() != ModeAutonomous {
		t.Errorf("default mode = %s, want autonomous", s.Mode())
	}
	s.SetMode(ModeManual)
	if s.Mode() != ModeManual {
		t.Errorf("mode after switch = %s, want manual", s.Mode())
	}

	if m := NewRunState(true); m.Mode() != ModeManual {
		t.Error("manual_mode config should start in manual mode")
	}
}

func TestRunStateManualLifecycle(t *testing.T) {
	s := NewRunState(false)

	if s.Manual() != nil {
		t.Error("no manual action should be in flight initially")
	}
	if s.CancelManual() {
		t.Error("cancel with nothing in flight should report false")
	}

	desc, err := s.BeginManual("brute_ssh", "10.0.0.5")
	if err != nil {
		t.Fatal(err)
	}
	if desc.ActionID != "brute_ssh" || desc.StartedAt.IsZero() {
		t.Errorf("descriptor not populated: %+v", desc)
	}

	if _, err := s.BeginManual("brute_ftp", ""); err == nil {
		t.Error("second manual action should be rejected")
	}

	ch := s.CancelChan()
	if ch == nil {
		t.Fatal("cancel channel should exist while in flight")
	}
	if !s.CancelManual() {
		t.Error("cancel should succeed with an action in flight")
	}
	select {
	case <-ch:
	default:
		t.Error("cancel channel should be closed after CancelManual")
	}
	// 重复取消幂等
	if !s.CancelManual() {
		t.Error("repeated cancel should still report true")
	}

	s.EndManual()
	if s.Manual() != nil || s.CancelChan() != nil {
		t.Error("state should be reset after terminal state")
	}
	if _, err := s.BeginManual("vuln_scan", "10.0.0.5"); err != nil {
		t.Errorf("new manual action after reset: %v", err)
	}
}
