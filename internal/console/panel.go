package console

import (
	"time"

	"github.com/adt-framework/adt-console/internal/alignment"
	"github.com/adt-framework/adt-console/internal/governance"
	"github.com/adt-framework/adt-console/internal/session"
)

// Feed and delegation list lengths shown in the panel.
const (
	FeedLimit       = 10
	DelegationLimit = 5
)

// Panel is everything the context panel shows for the active session,
// computed from one snapshot.
type Panel struct {
	Token     Token
	Session   *session.Session // nil in the empty state
	Snapshot  *governance.Snapshot
	Alignment alignment.Status
	Detail    string
	Uptime    string

	ActiveTask *governance.Task
	DepsMet    bool
	Queue      []governance.Task
	Completed  []governance.Task
	Chain      []governance.ChainLink
	Sent       []governance.Delegation
	Feed       []governance.Event
	Progress   []governance.PhaseProgress
}

// BuildPanel derives the panel for s from snap.
func BuildPanel(tok Token, s *session.Session, snap *governance.Snapshot, now time.Time) *Panel {
	p := &Panel{
		Token:     tok,
		Session:   s,
		Snapshot:  snap,
		Alignment: alignment.Evaluate(s, snap),
		Detail:    alignment.Explain(s, snap),
	}
	if snap != nil {
		p.Progress = governance.Progress(snap.Phases, snap.Tasks)
	}
	if s == nil {
		return p
	}
	p.Uptime = session.FormatUptime(now.Sub(s.CreatedAt))
	if snap == nil {
		return p
	}
	p.ActiveTask = governance.ActiveTask(snap.Tasks, s.Role)
	if p.ActiveTask != nil {
		p.DepsMet = governance.DependenciesMet(snap.Tasks, p.ActiveTask)
	}
	p.Queue = governance.RoleQueue(snap.Tasks, s.Role)
	p.Completed = governance.RoleCompleted(snap.Tasks, s.Role)
	p.Chain = governance.Chain(p.ActiveTask, s.Role, snap.Specs)
	p.Sent = governance.SentDelegations(snap.Delegations, s.Role, DelegationLimit)
	p.Feed = governance.AgentEvents(snap.Events, string(s.Agent), FeedLimit)
	return p
}
