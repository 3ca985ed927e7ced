// Package alignment decides whether a session's declared role and spec
// agree with the task governance says it should be working on.
package alignment

import (
	"github.com/adt-framework/adt-console/internal/governance"
	"github.com/adt-framework/adt-console/internal/session"
)

// Status is the computed alignment of one session.
type Status string

const (
	Offline  Status = "offline"
	NoTask   Status = "no-task"
	Nominal  Status = "nominal"
	Mismatch Status = "mismatch"
)

// Evaluate computes the session's status against snap. It is pure; a nil
// snapshot is treated as having no tasks.
func Evaluate(s *session.Session, snap *governance.Snapshot) Status {
	if s == nil {
		return Offline
	}
	task := activeTask(s, snap)
	if task == nil {
		return NoTask
	}
	if task.AssignedTo.Contains(s.Role) && task.SpecRef != "" && task.SpecRef != "--" {
		return Nominal
	}
	return Mismatch
}

// Explain returns the operator-facing detail line for a session.
func Explain(s *session.Session, snap *governance.Snapshot) string {
	switch Evaluate(s, snap) {
	case Offline:
		return "No active session"
	case NoTask:
		return "Awaiting task assignment"
	case Mismatch:
		return "Role/Spec discrepancy detected"
	}
	task := activeTask(s, snap)
	if task.Status == governance.StatusInProgress {
		return "Active on " + task.SpecRef + ": " + task.Title
	}
	return "Ready for " + task.SpecRef
}

func activeTask(s *session.Session, snap *governance.Snapshot) *governance.Task {
	if snap == nil {
		return nil
	}
	return governance.ActiveTask(snap.Tasks, s.Role)
}
