// Package model defines the records shared by the interrupt engine and its stores:
// interrupts, execution nodes, plan executions, and the status sets that
// decide which interrupt may touch which node.
package model

import (
	"fmt"
	"slices"
)

// Status is the lifecycle status of a single ExecutionNode.
type Status string

const (
	StatusQueued              Status = "QUEUED"
	StatusRunning             Status = "RUNNING"
	StatusAsyncWaiting        Status = "ASYNC_WAITING"
	StatusInterventionWaiting Status = "INTERVENTION_WAITING"
	StatusPausing             Status = "PAUSING"
	StatusPaused              Status = "PAUSED"
	StatusDiscontinuing       Status = "DISCONTINUING"
	StatusAborted             Status = "ABORTED"
	StatusExpired             Status = "EXPIRED"
	StatusSucceeded           Status = "SUCCEEDED"
	StatusFailed              Status = "FAILED"
	StatusErrored             Status = "ERRORED"
	StatusIgnoreFailed        Status = "IGNORE_FAILED"
	StatusSkipped             Status = "SKIPPED"
)

// AllStatuses lists every node status in declaration order.
var AllStatuses = []Status{
	StatusQueued,
	StatusRunning,
	StatusAsyncWaiting,
	StatusInterventionWaiting,
	StatusPausing,
	StatusPaused,
	StatusDiscontinuing,
	StatusAborted,
	StatusExpired,
	StatusSucceeded,
	StatusFailed,
	StatusErrored,
	StatusIgnoreFailed,
	StatusSkipped,
}

// TerminalStatuses are never overwritten by ABORT_ALL, EXPIRE_ALL, PAUSE_ALL
// or RESUME_ALL. Only IGNORE_FAILED and RETRY may move a node out of the
// failed members of this set.
var TerminalStatuses = []Status{
	StatusAborted,
	StatusExpired,
	StatusSucceeded,
	StatusFailed,
	StatusErrored,
	StatusIgnoreFailed,
	StatusSkipped,
}

// FinalizableStatuses are the statuses ABORT_ALL and EXPIRE_ALL may discontinue:
// every non-terminal status.
var FinalizableStatuses = []Status{
	StatusQueued,
	StatusRunning,
	StatusAsyncWaiting,
	StatusInterventionWaiting,
	StatusPausing,
	StatusPaused,
	StatusDiscontinuing,
}

// PausableStatuses are the expected pre-pause statuses of a PAUSE_ALL transition.
var PausableStatuses = []Status{
	StatusQueued,
	StatusRunning,
	StatusAsyncWaiting,
	StatusPausing,
}

// ResumableStatuses are the statuses RESUME_ALL moves back to RUNNING.
var ResumableStatuses = []Status{StatusPaused}

// BrokeStatuses are failures a user may ignore or retry.
var BrokeStatuses = []Status{
	StatusFailed,
	StatusErrored,
	StatusInterventionWaiting,
}

// IsTerminal reports whether s is a terminal node status.
func (s Status) IsTerminal() bool {
	return slices.Contains(TerminalStatuses, s)
}

// IsFinalizable reports whether s may still be discontinued.
func (s Status) IsFinalizable() bool {
	return slices.Contains(FinalizableStatuses, s)
}

// In reports whether s is one of set.
func (s Status) In(set []Status) bool {
	return slices.Contains(set, s)
}

// ParseStatus converts a stored string to a Status.
func ParseStatus(v string) (Status, error) {
	s := Status(v)
	if !slices.Contains(AllStatuses, s) {
		return "", fmt.Errorf("unknown node status %q", v)
	}
	return s, nil
}

// PlanStatus is the aggregate status of a PlanExecution.
type PlanStatus string

const (
	PlanRunning       PlanStatus = "RUNNING"
	PlanPausing       PlanStatus = "PAUSING"
	PlanPaused        PlanStatus = "PAUSED"
	PlanDiscontinuing PlanStatus = "DISCONTINUING"
	PlanAborted       PlanStatus = "ABORTED"
	PlanExpired       PlanStatus = "EXPIRED"
	PlanSucceeded     PlanStatus = "SUCCEEDED"
	PlanFailed        PlanStatus = "FAILED"
)

// IsTerminal reports whether the plan has finished.
func (p PlanStatus) IsTerminal() bool {
	switch p {
	case PlanAborted, PlanExpired, PlanSucceeded, PlanFailed:
		return true
	}
	return false
}

// ParsePlanStatus converts a stored string to a PlanStatus.
func ParsePlanStatus(v string) (PlanStatus, error) {
	switch p := PlanStatus(v); p {
	case PlanRunning, PlanPausing, PlanPaused, PlanDiscontinuing,
		PlanAborted, PlanExpired, PlanSucceeded, PlanFailed:
		return p, nil
	}
	return "", fmt.Errorf("unknown plan status %q", v)
}
