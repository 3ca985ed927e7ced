package governance

import "strings"

// ActiveTask resolves the task a role is working on: the first in-progress
// task assigned to it, else the first pending task assigned to it whose
// dependencies are all completed. List order decides ties.
func ActiveTask(tasks []Task, role string) *Task {
	for i := range tasks {
		t := &tasks[i]
		if t.Status == StatusInProgress && t.AssignedTo.Contains(role) {
			return t
		}
	}
	for i := range tasks {
		t := &tasks[i]
		if t.Status == StatusPending && t.AssignedTo.Contains(role) && DependenciesMet(tasks, t) {
			return t
		}
	}
	return nil
}

// DependenciesMet reports whether every dependency of t resolves to a
// completed task. Unknown dependency ids are not met.
func DependenciesMet(tasks []Task, t *Task) bool {
	for _, dep := range t.DependsOn {
		met := false
		for i := range tasks {
			if tasks[i].ID == dep {
				met = tasks[i].Status == StatusCompleted
				break
			}
		}
		if !met {
			return false
		}
	}
	return true
}

// RoleQueue returns the role's pending and in-progress tasks in list order.
func RoleQueue(tasks []Task, role string) []Task {
	var out []Task
	for _, t := range tasks {
		if (t.Status == StatusPending || t.Status == StatusInProgress) && t.AssignedTo.Contains(role) {
			out = append(out, t)
		}
	}
	return out
}

// RoleCompleted returns the role's completed tasks, newest first.
func RoleCompleted(tasks []Task, role string) []Task {
	var out []Task
	for i := len(tasks) - 1; i >= 0; i-- {
		if tasks[i].Status == StatusCompleted && tasks[i].AssignedTo.Contains(role) {
			out = append(out, tasks[i])
		}
	}
	return out
}

// PhaseProgress counts completed tasks per phase.
type PhaseProgress struct {
	Phase     Phase
	Completed int
	Total     int
}

// Percent returns completion as 0-100.
func (p PhaseProgress) Percent() int {
	if p.Total == 0 {
		return 0
	}
	return p.Completed * 100 / p.Total
}

// Progress computes progress for every phase from the tasks whose spec
// belongs to it.
func Progress(phases []Phase, tasks []Task) []PhaseProgress {
	out := make([]PhaseProgress, 0, len(phases))
	for _, ph := range phases {
		specs := make(map[string]bool, len(ph.Specs))
		for _, s := range ph.Specs {
			specs[s] = true
		}
		p := PhaseProgress{Phase: ph}
		for _, t := range tasks {
			if !specs[t.SpecRef] {
				continue
			}
			p.Total++
			if t.Status == StatusCompleted {
				p.Completed++
			}
		}
		out = append(out, p)
	}
	return out
}

// AgentEvents returns up to limit of the agent's most recent events,
// newest first. Agent names compare case-insensitively.
func AgentEvents(events []Event, agent string, limit int) []Event {
	var out []Event
	for i := len(events) - 1; i >= 0 && len(out) < limit; i-- {
		if strings.EqualFold(events[i].Agent, agent) {
			out = append(out, events[i])
		}
	}
	return out
}

// ChainLink is one step of a delegation chain.
type ChainLink struct {
	Label string
	Value string
	Extra string
}

// Chain renders how a task reached a role: Spec, then the delegator when
// known, then Role, then Task. A nil task yields no chain.
func Chain(task *Task, role string, specs SpecSet) []ChainLink {
	if task == nil {
		return nil
	}
	spec := task.SpecRef
	if spec == "" {
		spec = "--"
	}
	links := []ChainLink{{Label: "Spec", Value: spec, Extra: specs[task.SpecRef].Title}}
	if d := task.Delegation; d != nil && d.DelegatedBy.Role != "" {
		by := d.DelegatedBy.Role
		if d.DelegatedBy.Agent != "" {
			by += " (" + d.DelegatedBy.Agent + ")"
		}
		links = append(links, ChainLink{Label: "By", Value: by})
	}
	return append(links,
		ChainLink{Label: "Role", Value: role},
		ChainLink{Label: "Task", Value: task.ID, Extra: task.Title},
	)
}

// SentDelegations returns delegations issued by role, newest first.
func SentDelegations(delegations []Delegation, role string, limit int) []Delegation {
	var out []Delegation
	for i := len(delegations) - 1; i >= 0 && len(out) < limit; i-- {
		if delegations[i].From == role {
			out = append(out, delegations[i])
		}
	}
	return out
}
