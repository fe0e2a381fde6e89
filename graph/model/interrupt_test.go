package model

import "testing"

func TestInterruptType(t *testing.T) {
	tests := []struct {
		typ        InterruptType
		planEnding bool
		nodeOnly   bool
		status     Status
		plan       PlanStatus
	}{
		{AbortAll, true, false, StatusAborted, PlanAborted},
		{ExpireAll, true, false, StatusExpired, PlanExpired},
		{PauseAll, false, false, "", ""},
		{ResumeAll, false, false, "", ""},
		{IgnoreFailed, false, true, "", ""},
		{MarkExpired, false, true, "", ""},
		{CustomFailure, false, true, "", ""},
		{Retry, false, true, "", ""},
	}

	for _, tt := range tests {
		t.Run(string(tt.typ), func(t *testing.T) {
			if !tt.typ.Valid() {
				t.Error("not valid")
			}
			if got := tt.typ.PlanEnding(); got != tt.planEnding {
				t.Errorf("PlanEnding = %v, want %v", got, tt.planEnding)
			}
			if got := tt.typ.NodeOnly(); got != tt.nodeOnly {
				t.Errorf("NodeOnly = %v, want %v", got, tt.nodeOnly)
			}
			if got := tt.typ.DiscontinuedStatus(); got != tt.status {
				t.Errorf("DiscontinuedStatus = %q, want %q", got, tt.status)
			}
			if got := tt.typ.DiscontinuedPlanStatus(); got != tt.plan {
				t.Errorf("DiscontinuedPlanStatus = %q, want %q", got, tt.plan)
			}
		})
	}
}

func TestParseInterruptType(t *testing.T) {
	if got, err := ParseInterruptType("RETRY"); err != nil || got != Retry {
		t.Errorf("ParseInterruptType(RETRY) = %q, %v", got, err)
	}
	for _, bad := range []string{"", "retry", "STOP"} {
		if _, err := ParseInterruptType(bad); err == nil {
			t.Errorf("ParseInterruptType(%q) succeeded", bad)
		}
	}
}

func TestInterruptState(t *testing.T) {
	tests := []struct {
		state  InterruptState
		active bool
		final  bool
	}{
		{StateRegistered, true, false},
		{StateProcessing, true, false},
		{StateProcessedSuccessfully, false, true},
		{StateProcessedUnsuccessfully, false, true},
	}
	for _, tt := range tests {
		if tt.state.Active() != tt.active || tt.state.Final() != tt.final {
			t.Errorf("%s: Active=%v Final=%v", tt.state, tt.state.Active(), tt.state.Final())
		}
		if got, err := ParseInterruptState(string(tt.state)); err != nil || got != tt.state {
			t.Errorf("ParseInterruptState(%s) = %q, %v", tt.state, got, err)
		}
	}
	if _, err := ParseInterruptState("DONE"); err == nil {
		t.Error("ParseInterruptState(DONE) succeeded")
	}
}

func TestInterrupt_Scope(t *testing.T) {
	plan := Interrupt{ExecutionID: "e"}
	node := Interrupt{ExecutionID: "e", NodeID: "n"}

	if !plan.PlanScoped() || node.PlanScoped() {
		t.Error("PlanScoped mismatch")
	}
	if plan.SameScope(node) {
		t.Error("plan and node scope reported equal")
	}
	if !node.SameScope(Interrupt{ExecutionID: "e", NodeID: "n", Type: Retry}) {
		t.Error("same node scope not recognised")
	}
	if node.SameScope(Interrupt{ExecutionID: "other", NodeID: "n"}) {
		t.Error("scope across executions reported equal")
	}
}
