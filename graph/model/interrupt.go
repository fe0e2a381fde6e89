package model

import (
	"fmt"
	"time"
)

// InterruptType is the closed set of control-plane requests.
type InterruptType string

const (
	AbortAll      InterruptType = "ABORT_ALL"
	ExpireAll     InterruptType = "EXPIRE_ALL"
	PauseAll      InterruptType = "PAUSE_ALL"
	ResumeAll     InterruptType = "RESUME_ALL"
	IgnoreFailed  InterruptType = "IGNORE_FAILED"
	MarkExpired   InterruptType = "MARK_EXPIRED"
	CustomFailure InterruptType = "CUSTOM_FAILURE"
	Retry         InterruptType = "RETRY"
)

// InterruptTypes lists every known interrupt type.
var InterruptTypes = []InterruptType{
	AbortAll,
	ExpireAll,
	PauseAll,
	ResumeAll,
	IgnoreFailed,
	MarkExpired,
	CustomFailure,
	Retry,
}

// ParseInterruptType rejects anything outside InterruptTypes.
func ParseInterruptType(v string) (InterruptType, error) {
	t := InterruptType(v)
	if !t.Valid() {
		return "", fmt.Errorf("unknown interrupt type %q", v)
	}
	return t, nil
}

// Valid reports whether t is a known type.
func (t InterruptType) Valid() bool {
	for _, known := range InterruptTypes {
		if t == known {
			return true
		}
	}
	return false
}

// PlanEnding reports whether t finishes the whole execution.
func (t InterruptType) PlanEnding() bool {
	return t == AbortAll || t == ExpireAll
}

// NodeOnly reports whether t is only meaningful against a single node.
func (t InterruptType) NodeOnly() bool {
	switch t {
	case IgnoreFailed, MarkExpired, CustomFailure, Retry:
		return true
	}
	return false
}

// DiscontinuedStatus is the terminal node status a plan-ending type drives
// DISCONTINUING nodes to. Empty for other types.
func (t InterruptType) DiscontinuedStatus() Status {
	switch t {
	case AbortAll:
		return StatusAborted
	case ExpireAll:
		return StatusExpired
	}
	return ""
}

// DiscontinuedPlanStatus is the plan status reached once a plan-ending
// interrupt has finished. Empty for other types.
func (t InterruptType) DiscontinuedPlanStatus() PlanStatus {
	switch t {
	case AbortAll:
		return PlanAborted
	case ExpireAll:
		return PlanExpired
	}
	return ""
}

// InterruptState is the processing state of an Interrupt record.
type InterruptState string

const (
	StateRegistered              InterruptState = "REGISTERED"
	StateProcessing              InterruptState = "PROCESSING"
	StateProcessedSuccessfully   InterruptState = "PROCESSED_SUCCESSFULLY"
	StateProcessedUnsuccessfully InterruptState = "PROCESSED_UNSUCCESSFULLY"
)

// ActiveStates are the states in which an interrupt still participates in
// conflict checks.
var ActiveStates = []InterruptState{StateRegistered, StateProcessing}

// Active reports whether the state is REGISTERED or PROCESSING.
func (s InterruptState) Active() bool {
	return s == StateRegistered || s == StateProcessing
}

// Final reports whether the state is one of the PROCESSED_* states.
func (s InterruptState) Final() bool {
	return s == StateProcessedSuccessfully || s == StateProcessedUnsuccessfully
}

// ParseInterruptState converts a stored string to an InterruptState.
func ParseInterruptState(v string) (InterruptState, error) {
	switch s := InterruptState(v); s {
	case StateRegistered, StateProcessing, StateProcessedSuccessfully, StateProcessedUnsuccessfully:
		return s, nil
	}
	return "", fmt.Errorf("unknown interrupt state %q", v)
}

// InterruptConfig is the opaque payload describing who asked and why.
type InterruptConfig struct {
	IssuedBy string            `json:"issued_by,omitempty"`
	Reason   string            `json:"reason,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Interrupt is a control-plane request against an execution or a node subtree.
// Records are never deleted; they form the audit trail of an execution.
type Interrupt struct {
	ID          string          `json:"id"`
	Type        InterruptType   `json:"type"`
	ExecutionID string          `json:"execution_id"`
	NodeID      string          `json:"node_id,omitempty"` // empty for plan scope
	State       InterruptState  `json:"state"`
	Config      InterruptConfig `json:"config"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// PlanScoped reports whether the interrupt targets the whole execution.
func (i Interrupt) PlanScoped() bool {
	return i.NodeID == ""
}

// SameScope reports whether i and other target the same execution scope.
func (i Interrupt) SameScope(other Interrupt) bool {
	return i.ExecutionID == other.ExecutionID && i.NodeID == other.NodeID
}
