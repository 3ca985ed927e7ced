package console

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/adt-framework/adt-console/internal/alignment"
	"github.com/adt-framework/adt-console/internal/backend"
	"github.com/adt-framework/adt-console/internal/config"
	"github.com/adt-framework/adt-console/internal/governance"
	"github.com/adt-framework/adt-console/internal/log"
	"github.com/adt-framework/adt-console/internal/notify"
	"github.com/adt-framework/adt-console/internal/session"
	"github.com/adt-framework/adt-console/internal/testutil"
)

// center is a governance.Service whose state tests change between polls.
// While gate is non-nil, Tasks blocks until it is closed.
type center struct {
	mu     sync.Mutex
	tasks  []governance.Task
	events []governance.Event
	down   bool
	gate   chan struct{}
	// fetches counts Tasks calls, one per refresh.
	fetches int
}

func (c *center) Tasks(ctx context.Context) ([]governance.Task, error) {
	c.mu.Lock()
	gate := c.gate
	c.fetches++
	c.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.down {
		return nil, governance.ErrServiceUnreachable
	}
	return append([]governance.Task(nil), c.tasks...), nil
}

func (c *center) Specs(context.Context) (governance.SpecSet, error) {
	if c.isDown() {
		return nil, governance.ErrServiceUnreachable
	}
	return governance.SpecSet{}, nil
}

func (c *center) Delegations(context.Context) ([]governance.Delegation, error) {
	if c.isDown() {
		return nil, governance.ErrServiceUnreachable
	}
	return nil, nil
}

func (c *center) Events(context.Context) ([]governance.Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.down {
		return nil, governance.ErrServiceUnreachable
	}
	return append([]governance.Event(nil), c.events...), nil
}

func (c *center) Requests(context.Context) ([]governance.Request, error) {
	if c.isDown() {
		return nil, governance.ErrServiceUnreachable
	}
	return nil, nil
}

func (c *center) DTTPStatus(context.Context) (string, error) {
	if c.isDown() {
		return "", governance.ErrServiceUnreachable
	}
	return "active", nil
}

func (c *center) taskFetches() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fetches
}

func (c *center) isDown() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.down
}

func (c *center) addEvents(actionTypes ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, at := range actionTypes {
		id := fmt.Sprintf("evt-%d", len(c.events)+1)
		c.events = append(c.events, governance.Event{EventID: id, ActionType: at, Description: at + " happened"})
	}
}

type harness struct {
	console *Console
	backend *testutil.MemBackend
	center  *center
	audit   *log.Logger
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{backend: testutil.NewMemBackend(), center: &center{}}
	audit, err := log.NewLogger(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	h.audit = audit

	n := 0
	cfg := config.DefaultConfig()
	c, err := New(Options{
		Config:  cfg,
		Backend: h.backend,
		Service: h.center,
		Audit:   audit,
		NewID: func() string {
			n++
			return fmt.Sprintf("s%d", n)
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { c.Close() })
	h.console = c
	return h
}

func (h *harness) create(t *testing.T, role string) *session.Session {
	t.Helper()
	s, err := h.console.Create(context.Background(), session.CreateRequest{Agent: session.AgentClaude, Role: role, SpecRef: "SPEC-021"})
	if err != nil {
		t.Fatalf("Create(%s): %v", role, err)
	}
	return s
}

// settle waits for the panel refreshes that session switches started.
func (h *harness) settle() {
	h.console.pending.Wait()
}

func (h *harness) auditEvents(t *testing.T, name string) []log.LogEvent {
	t.Helper()
	all, err := h.audit.ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	var out []log.LogEvent
	for _, ev := range all {
		if ev.Event == name {
			out = append(out, ev)
		}
	}
	return out
}

func TestNewRequiresBackend(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Fatal("New without backend succeeded")
	}
}

func TestGuard(t *testing.T) {
	var g Guard
	first := g.Issue()
	if !g.Current(first) {
		t.Fatal("fresh token is not current")
	}
	second := g.Advance("s1")
	if g.Current(first) {
		t.Error("token from before Advance is still current")
	}
	if !g.Current(second) || second.SessionID != "s1" {
		t.Errorf("Advance token = %+v", second)
	}
	if g.Issue() != second {
		t.Error("Issue after Advance differs from Advance's token")
	}
}

func TestStalePanelDiscardedAcrossSwitch(t *testing.T) {
	h := newHarness(t)
	h.create(t, "Backend_Engineer")
	h.settle()

	h.center.mu.Lock()
	h.center.gate = make(chan struct{})
	gate := h.center.gate
	h.center.mu.Unlock()

	result := make(chan *Panel, 1)
	go func() { result <- h.console.FetchPanel(context.Background()) }()

	// The fetch for s1 is blocked; switching to a new session makes it stale.
	time.Sleep(20 * time.Millisecond)
	s2 := h.create(t, "Frontend_Engineer")
	close(gate)

	p := <-result
	if p.Token.SessionID != "s1" {
		t.Fatalf("fetch token session = %q, want s1", p.Token.SessionID)
	}
	if h.console.ApplyPanel(p) {
		t.Fatal("stale panel was applied")
	}
	if got := h.console.Panel().Session; got == nil || got.ID != s2.ID {
		t.Errorf("panel session = %v, want %s", got, s2.ID)
	}
	if !h.console.RefreshPanel(context.Background()) {
		t.Error("fresh panel was not applied")
	}
}

func TestSwitchToRefreshesPanel(t *testing.T) {
	h := newHarness(t)
	s1 := h.create(t, "Backend_Engineer")
	h.create(t, "Frontend_Engineer")
	h.settle()

	h.center.mu.Lock()
	h.center.tasks = []governance.Task{{
		ID: "task-7", Status: governance.StatusInProgress,
		AssignedTo: governance.StringList{"Backend_Engineer"}, SpecRef: "SPEC-021",
	}}
	h.center.mu.Unlock()
	before := h.center.taskFetches()

	if err := h.console.SwitchTo(context.Background(), s1.ID); err != nil {
		t.Fatalf("SwitchTo: %v", err)
	}
	h.settle()

	if got := h.center.taskFetches() - before; got != 1 {
		t.Errorf("fetches after switch = %d, want 1", got)
	}
	p := h.console.Panel()
	if p.Session == nil || p.Session.ID != s1.ID {
		t.Fatalf("panel session = %v, want %s", p.Session, s1.ID)
	}
	if p.ActiveTask == nil || p.ActiveTask.ID != "task-7" || p.Alignment != alignment.Nominal {
		t.Errorf("panel = task %+v alignment %s, want task-7 nominal", p.ActiveTask, p.Alignment)
	}

	// Switching to the session already active fetches nothing.
	before = h.center.taskFetches()
	if err := h.console.SwitchTo(context.Background(), s1.ID); err != nil {
		t.Fatal(err)
	}
	h.settle()
	if got := h.center.taskFetches() - before; got != 0 {
		t.Errorf("fetches after repeated switch = %d, want 0", got)
	}
}

func TestOlderPanelNeverReplacesNewer(t *testing.T) {
	h := newHarness(t)
	h.create(t, "Backend_Engineer")
	h.settle()

	h.center.mu.Lock()
	h.center.gate = make(chan struct{})
	gate := h.center.gate
	h.center.mu.Unlock()

	older := make(chan *Panel, 1)
	go func() { older <- h.console.FetchPanel(context.Background()) }()
	time.Sleep(20 * time.Millisecond)

	h.center.mu.Lock()
	h.center.gate = nil
	h.center.mu.Unlock()
	if !h.console.RefreshPanel(context.Background()) {
		t.Fatal("newer panel was not applied")
	}
	newer := h.console.Panel().Snapshot.Seq

	close(gate)
	p := <-older
	if p.Snapshot.Seq >= newer {
		t.Fatalf("older fetch seq = %d, newer = %d", p.Snapshot.Seq, newer)
	}
	if h.console.ApplyPanel(p) {
		t.Error("panel from an older snapshot was applied")
	}
	if got := h.console.Panel().Snapshot.Seq; got != newer {
		t.Errorf("panel seq = %d, want %d", got, newer)
	}
}

func TestPanelForActiveSession(t *testing.T) {
	h := newHarness(t)
	h.center.tasks = []governance.Task{{
		ID: "task-1", Title: "Bridge", Status: governance.StatusInProgress,
		AssignedTo: governance.StringList{"Backend_Engineer"}, SpecRef: "SPEC-021",
	}}
	s := h.create(t, "Backend_Engineer")
	h.settle()

	if !h.console.RefreshPanel(context.Background()) {
		t.Fatal("RefreshPanel discarded a current panel")
	}
	p := h.console.Panel()
	if p.Alignment != alignment.Nominal {
		t.Errorf("Alignment = %s, want nominal", p.Alignment)
	}
	if p.ActiveTask == nil || p.ActiveTask.ID != "task-1" {
		t.Errorf("ActiveTask = %+v", p.ActiveTask)
	}
	if len(p.Chain) == 0 || p.Chain[len(p.Chain)-1].Value != "task-1" {
		t.Errorf("Chain = %+v", p.Chain)
	}
	if got := h.console.Alignment(s.ID); got != alignment.Nominal {
		t.Errorf("Alignment(%s) = %s", s.ID, got)
	}
	if got := h.console.Alignment("nope"); got != alignment.Offline {
		t.Errorf("Alignment(unknown) = %s, want offline", got)
	}
}

func TestEmptyStatePanel(t *testing.T) {
	h := newHarness(t)
	s := h.create(t, "Backend_Engineer")
	if err := h.console.CloseSession(context.Background(), s.ID, session.Confirmed); err != nil {
		t.Fatal(err)
	}
	if h.console.ActiveID() != "" {
		t.Errorf("ActiveID = %q after closing the last session", h.console.ActiveID())
	}
	p := h.console.Panel()
	if p.Session != nil || p.Alignment != alignment.Offline {
		t.Errorf("empty panel = %+v", p)
	}
	if got := len(h.auditEvents(t, log.EventSessionClosed)); got != 1 {
		t.Errorf("session_closed records = %d, want 1", got)
	}
}

func TestPollNotificationsSeedsThenFires(t *testing.T) {
	h := newHarness(t)
	h.create(t, "Backend_Engineer")
	h.center.addEvents("session_start", "file_edit")

	if fired := h.console.PollNotifications(context.Background()); fired[notify.ConsumerToast] != 0 {
		t.Fatalf("first poll fired %v", fired)
	}

	h.center.addEvents("dttp_denied", "escalation")
	fired := h.console.PollNotifications(context.Background())
	if fired[notify.ConsumerToast] != 2 {
		t.Fatalf("second poll fired %v, want 2 toasts", fired)
	}

	var titles []string
	for i := 0; i < 2; i++ {
		select {
		case a := <-h.console.Alerts():
			titles = append(titles, a.Title)
		default:
			t.Fatalf("only %d alerts delivered", i)
		}
	}
	if titles[0] != "DENIED" || titles[1] != "ESCALATION" {
		t.Errorf("titles = %v", titles)
	}
	if got := len(h.console.Toasts()); got != 2 {
		t.Errorf("visible toasts = %d, want 2", got)
	}
	if got := len(h.auditEvents(t, log.EventAlertFired)); got != 2 {
		t.Errorf("alert_fired records = %d, want 2", got)
	}

	amb := h.console.Ambient()
	if amb.Level != notify.LevelWarning || amb.Escalations != 1 || amb.Sessions != 1 {
		t.Errorf("Ambient = %+v", amb)
	}
}

func TestPollNotificationsOutageReseeds(t *testing.T) {
	h := newHarness(t)
	h.center.addEvents("a")
	h.console.PollNotifications(context.Background())

	h.center.mu.Lock()
	h.center.down = true
	h.center.mu.Unlock()
	h.console.PollNotifications(context.Background())

	h.center.mu.Lock()
	h.center.down = false
	h.center.mu.Unlock()
	h.center.addEvents("b", "c")
	if fired := h.console.PollNotifications(context.Background()); len(fired) != 0 {
		t.Fatalf("poll after outage replayed %v", fired)
	}
	h.center.addEvents("d")
	if fired := h.console.PollNotifications(context.Background()); fired[notify.ConsumerToast] != 1 {
		t.Errorf("fired = %v, want 1 toast", fired)
	}

	if len(h.auditEvents(t, log.EventGovernanceOffline)) != 1 || len(h.auditEvents(t, log.EventGovernanceOnline)) != 1 {
		t.Error("outage transitions not recorded")
	}
}

func TestCreateRecordsAndForwardsInput(t *testing.T) {
	h := newHarness(t)
	s := h.create(t, "Backend_Engineer")
	if err := h.console.Input(context.Background(), []byte("ls\r")); err != nil {
		t.Fatal(err)
	}
	if got := h.backend.Input(s.ID); got != "ls\r" {
		t.Errorf("backend input = %q", got)
	}
	created := h.auditEvents(t, log.EventSessionCreated)
	if len(created) != 1 || created[0].SessionID != s.ID || created[0].Role != "Backend_Engineer" {
		t.Errorf("session_created records = %+v", created)
	}
}

func TestCreateSpawnFailureRecorded(t *testing.T) {
	h := newHarness(t)
	_, err := h.console.Create(context.Background(), session.CreateRequest{
		Agent: session.AgentCustom, Role: "DevOps_Engineer", Command: testutil.MissingCommand,
	})
	if err == nil {
		t.Fatal("Create with missing binary succeeded")
	}
	if len(h.console.Sessions()) != 0 {
		t.Error("failed spawn registered a session")
	}
	if got := len(h.auditEvents(t, log.EventSpawnFailed)); got != 1 {
		t.Errorf("spawn_failed records = %d, want 1", got)
	}
}

func TestStartRestoresSessions(t *testing.T) {
	h := newHarness(t)
	h.backend.Spawn(context.Background(), backend.SpawnSpec{ID: "old-1", Agent: "claude", Role: "Backend_Engineer", Command: "claude"})
	h.backend.Spawn(context.Background(), backend.SpawnSpec{ID: "old-2", Agent: "gemini", Role: "Frontend_Engineer", Command: "gemini"})

	h.console.cfg.Polling = config.PollingConfig{}
	if err := h.console.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := len(h.console.Sessions()); got != 2 {
		t.Fatalf("restored %d sessions, want 2", got)
	}
	if h.console.ActiveID() != "old-2" {
		t.Errorf("ActiveID = %q, want the last restored session", h.console.ActiveID())
	}
	restored := h.auditEvents(t, log.EventSessionRestored)
	if len(restored) != 1 || restored[0].Count != 2 {
		t.Errorf("session_restored records = %+v", restored)
	}
}
