package session

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/adt-framework/adt-console/internal/backend"
)

type fakeChannels struct {
	mu       sync.Mutex
	bound    map[string]bool
	attached map[string]bool
	shown    string
	showErr  error
}

func newFakeChannels() *fakeChannels {
	return &fakeChannels{bound: make(map[string]bool), attached: make(map[string]bool)}
}

func (f *fakeChannels) Allocate(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.bound[id] {
		return errors.New("already bound")
	}
	f.bound[id] = true
	return nil
}

func (f *fakeChannels) Attach(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attached[id] = true
	return nil
}

func (f *fakeChannels) Show(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.bound[id] {
		return errors.New("not bound")
	}
	if f.showErr != nil {
		return f.showErr
	}
	f.shown = id
	return nil
}

func (f *fakeChannels) Hide() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shown = ""
}

func (f *fakeChannels) Destroy(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.bound, id)
	delete(f.attached, id)
}

type fakeProcesses struct {
	mu       sync.Mutex
	running  []backend.Descriptor
	spawned  []backend.SpawnSpec
	closed   []string
	spawnErr error
	listErr  error
}

func (f *fakeProcesses) Spawn(_ context.Context, spec backend.SpawnSpec) (backend.Descriptor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.spawnErr != nil {
		return backend.Descriptor{}, f.spawnErr
	}
	f.spawned = append(f.spawned, spec)
	return backend.Descriptor{ID: spec.ID, Command: spec.Command, Alive: true}, nil
}

func (f *fakeProcesses) Close(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = append(f.closed, id)
	return nil
}

func (f *fakeProcesses) List(context.Context) ([]backend.Descriptor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]backend.Descriptor(nil), f.running...), f.listErr
}

type fakeRecents struct {
	entries []RecentEntry
	err     error
}

func (f *fakeRecents) Add(e RecentEntry) error {
	if f.err != nil {
		return f.err
	}
	f.entries = append(f.entries, e)
	return nil
}

type recordingObserver struct {
	mu     sync.Mutex
	active []string // "" for the empty state
	counts []int
}

func (o *recordingObserver) ActiveChanged(s *Session) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if s == nil {
		o.active = append(o.active, "")
		return
	}
	o.active = append(o.active, s.ID)
}

func (o *recordingObserver) SessionsChanged(n int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.counts = append(o.counts, n)
}

type harness struct {
	reg      *Registry
	channels *fakeChannels
	procs    *fakeProcesses
	recents  *fakeRecents
	observer *recordingObserver
}

func newHarness() *harness {
	h := &harness{
		channels: newFakeChannels(),
		procs:    &fakeProcesses{},
		recents:  &fakeRecents{},
		observer: &recordingObserver{},
	}
	n := 0
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	h.reg = NewRegistry(h.channels, h.procs, RegistryOptions{
		Recent:   h.recents,
		Observer: h.observer,
		NewID: func() string {
			n++
			return fmt.Sprintf("s%d", n)
		},
		Now: func() time.Time {
			clock = clock.Add(time.Second)
			return clock
		},
	})
	return h
}

func (h *harness) create(t *testing.T, role string) *Session {
	t.Helper()
	s, err := h.reg.Create(context.Background(), CreateRequest{Agent: AgentClaude, Role: role, Project: "/work/adt"})
	if err != nil {
		t.Fatalf("Create(%s): %v", role, err)
	}
	return s
}

func TestCreateActivatesAndRecords(t *testing.T) {
	h := newHarness()
	s := h.create(t, "Backend_Engineer")

	if h.reg.ActiveID() != s.ID {
		t.Errorf("ActiveID = %q, want %q", h.reg.ActiveID(), s.ID)
	}
	if h.channels.shown != s.ID || !h.channels.attached[s.ID] {
		t.Errorf("channel not shown/attached: shown=%q attached=%v", h.channels.shown, h.channels.attached)
	}
	spec := h.procs.spawned[0]
	if spec.Command != "claude" || spec.Cwd != "/work/adt" || spec.Cols != backend.DefaultCols || spec.Rows != backend.DefaultRows {
		t.Errorf("spawn spec = %+v", spec)
	}
	if len(h.recents.entries) != 1 || h.recents.entries[0].Role != "Backend_Engineer" {
		t.Errorf("recents = %+v", h.recents.entries)
	}
	if s.Color != "#6B7FD7" || !s.Alive {
		t.Errorf("session = %+v", s)
	}
}

func TestCreateSpawnFailureRegistersNothing(t *testing.T) {
	h := newHarness()
	h.procs.spawnErr = errors.New("exec: \"claude\": executable file not found")

	_, err := h.reg.Create(context.Background(), CreateRequest{Agent: AgentClaude, Role: "Overseer"})
	var spawnErr *backend.SpawnError
	if !errors.As(err, &spawnErr) {
		t.Fatalf("Create err = %v, want *backend.SpawnError", err)
	}
	if h.reg.Len() != 0 || h.reg.ActiveID() != "" {
		t.Errorf("registry Len=%d ActiveID=%q, want empty", h.reg.Len(), h.reg.ActiveID())
	}
	if len(h.channels.bound) != 0 {
		t.Errorf("channels still bound: %v", h.channels.bound)
	}
	if len(h.recents.entries) != 0 {
		t.Error("failed spawn recorded as recent")
	}
}

func TestCreateRecentFailureIsNotFatal(t *testing.T) {
	h := newHarness()
	h.recents.err = errors.New("database is locked")
	if _, err := h.reg.Create(context.Background(), CreateRequest{Agent: AgentGemini, Role: "Overseer"}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if h.reg.Len() != 1 {
		t.Errorf("Len = %d, want 1", h.reg.Len())
	}
}

func TestSwitchToIdempotent(t *testing.T) {
	h := newHarness()
	a := h.create(t, "Backend_Engineer")
	h.create(t, "Frontend_Engineer")

	ctx := context.Background()
	if err := h.reg.SwitchTo(ctx, a.ID); err != nil {
		t.Fatalf("SwitchTo: %v", err)
	}
	before := len(h.observer.active)
	if err := h.reg.SwitchTo(ctx, a.ID); err != nil {
		t.Fatalf("SwitchTo again: %v", err)
	}
	if len(h.observer.active) != before {
		t.Error("second SwitchTo notified the observer")
	}
	if h.reg.ActiveID() != a.ID || h.channels.shown != a.ID {
		t.Errorf("active = %q shown = %q, want %q", h.reg.ActiveID(), h.channels.shown, a.ID)
	}
	if err := h.reg.SwitchTo(ctx, "missing"); !errors.Is(err, ErrUnknownSession) {
		t.Errorf("SwitchTo(missing) err = %v, want ErrUnknownSession", err)
	}
	if h.reg.ActiveID() != a.ID {
		t.Error("failed SwitchTo changed the active session")
	}
}

func TestCloseDeclined(t *testing.T) {
	h := newHarness()
	s := h.create(t, "Overseer")

	var prompt string
	err := h.reg.Close(context.Background(), s.ID, ConfirmFunc(func(p string) bool {
		prompt = p
		return false
	}))
	if !errors.Is(err, ErrCloseDeclined) {
		t.Fatalf("Close err = %v, want ErrCloseDeclined", err)
	}
	if prompt == "" {
		t.Error("confirmer was not asked")
	}
	if h.reg.Len() != 1 || len(h.procs.closed) != 0 {
		t.Error("declined close had an effect")
	}
}

func TestCloseActivatesNewestRemaining(t *testing.T) {
	h := newHarness()
	a := h.create(t, "Backend_Engineer")
	b := h.create(t, "Frontend_Engineer")
	c := h.create(t, "DevOps_Engineer")
	ctx := context.Background()

	if err := h.reg.SwitchTo(ctx, a.ID); err != nil {
		t.Fatalf("SwitchTo: %v", err)
	}
	if err := h.reg.Close(ctx, a.ID, Confirmed); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if got := h.reg.ActiveID(); got != c.ID {
		t.Errorf("ActiveID = %q, want newest remaining %q", got, c.ID)
	}

	// Closing an inactive session leaves the active one alone.
	if err := h.reg.Close(ctx, b.ID, Confirmed); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if got := h.reg.ActiveID(); got != c.ID {
		t.Errorf("ActiveID = %q, want %q", got, c.ID)
	}
}

func TestCloseLastEntersEmptyState(t *testing.T) {
	h := newHarness()
	s := h.create(t, "Overseer")

	if err := h.reg.Close(context.Background(), s.ID, Confirmed); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if h.reg.Len() != 0 || h.reg.ActiveID() != "" || h.reg.Active() != nil {
		t.Errorf("Len=%d ActiveID=%q, want empty state", h.reg.Len(), h.reg.ActiveID())
	}
	if h.channels.shown != "" {
		t.Errorf("channel %q still shown", h.channels.shown)
	}
	last := h.observer.active[len(h.observer.active)-1]
	if last != "" {
		t.Errorf("last ActiveChanged = %q, want nil", last)
	}
	if len(h.procs.closed) != 1 || h.procs.closed[0] != s.ID {
		t.Errorf("backend closes = %v", h.procs.closed)
	}
}

func TestCloseAllConfirmsOnce(t *testing.T) {
	h := newHarness()
	for _, role := range Roles {
		h.create(t, role)
	}

	asked := 0
	var prompt string
	err := h.reg.CloseAll(context.Background(), ConfirmFunc(func(p string) bool {
		asked++
		prompt = p
		return true
	}))
	if err != nil {
		t.Fatalf("CloseAll: %v", err)
	}
	if asked != 1 {
		t.Errorf("confirmer asked %d times, want 1", asked)
	}
	if want := fmt.Sprintf("Close all %d sessions?", len(Roles)); prompt != want {
		t.Errorf("prompt = %q, want %q", prompt, want)
	}
	if h.reg.Len() != 0 || h.reg.ActiveID() != "" {
		t.Errorf("Len=%d ActiveID=%q after CloseAll", h.reg.Len(), h.reg.ActiveID())
	}
}

func TestCloseAllDeclined(t *testing.T) {
	h := newHarness()
	h.create(t, "Overseer")
	err := h.reg.CloseAll(context.Background(), ConfirmFunc(func(string) bool { return false }))
	if !errors.Is(err, ErrCloseDeclined) {
		t.Errorf("CloseAll err = %v, want ErrCloseDeclined", err)
	}
	if h.reg.Len() != 1 {
		t.Errorf("Len = %d, want 1", h.reg.Len())
	}
}

// TestAtMostOneActive drives random create/switch/close sequences and
// checks that the active id is always empty or registered.
func TestAtMostOneActive(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	h := newHarness()
	ctx := context.Background()

	for step := 0; step < 500; step++ {
		sessions := h.reg.Sessions()
		switch op := rng.Intn(4); {
		case op == 0 || len(sessions) == 0:
			h.create(t, Roles[rng.Intn(len(Roles))])
		case op == 1:
			id := sessions[rng.Intn(len(sessions))].ID
			if err := h.reg.SwitchTo(ctx, id); err != nil {
				t.Fatalf("step %d: SwitchTo: %v", step, err)
			}
		default:
			id := sessions[rng.Intn(len(sessions))].ID
			if err := h.reg.Close(ctx, id, Confirmed); err != nil {
				t.Fatalf("step %d: Close: %v", step, err)
			}
		}

		active := h.reg.ActiveID()
		n := h.reg.Len()
		if n == 0 && active != "" {
			t.Fatalf("step %d: active %q with no sessions", step, active)
		}
		if n > 0 {
			if _, ok := h.reg.Get(active); !ok {
				t.Fatalf("step %d: active %q not registered", step, active)
			}
			if h.channels.shown != active {
				t.Fatalf("step %d: shown %q, active %q", step, h.channels.shown, active)
			}
		}
	}
}

func TestRestore(t *testing.T) {
	h := newHarness()
	created := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	h.procs.running = []backend.Descriptor{
		{ID: "old", Agent: "gemini", Role: "Overseer", Command: "gemini", CreatedAt: created, Alive: true},
		{ID: "new", Agent: "claude", Role: "Backend_Engineer", SpecRef: "SPEC-021", Command: "claude", CreatedAt: created.Add(time.Minute), Alive: false},
	}

	n, err := h.reg.Restore(context.Background())
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if n != 2 {
		t.Errorf("restored = %d, want 2", n)
	}
	if len(h.procs.spawned) != 0 {
		t.Error("Restore re-spawned processes")
	}
	if got := h.reg.ActiveID(); got != "new" {
		t.Errorf("ActiveID = %q, want most recently listed", got)
	}
	s, _ := h.reg.Get("old")
	if s.Color != "#4CAF50" || !h.channels.attached["old"] {
		t.Errorf("restored session = %+v attached=%v", s, h.channels.attached["old"])
	}
	if s, _ := h.reg.Get("new"); s.Alive {
		t.Error("exited session restored as alive")
	}

	// A second restore finds nothing new.
	if n, _ := h.reg.Restore(context.Background()); n != 0 {
		t.Errorf("second Restore = %d, want 0", n)
	}
}

func TestRestoreUnknownAgentIsCustom(t *testing.T) {
	h := newHarness()
	h.procs.running = []backend.Descriptor{
		{ID: "a", Agent: "codex", Role: "Overseer", Command: "codex", Alive: true},
		{ID: "b", Agent: "GEMINI", Role: "Overseer", Command: "gemini", Alive: true},
	}
	if _, err := h.reg.Restore(context.Background()); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	tests := []struct {
		id    string
		agent AgentKind
		color string
	}{
		{"a", AgentCustom, "#bc8cff"},
		{"b", AgentGemini, "#4CAF50"},
	}
	for _, tt := range tests {
		s, ok := h.reg.Get(tt.id)
		if !ok {
			t.Fatalf("session %s not restored", tt.id)
		}
		if s.Agent != tt.agent || s.Color != tt.color {
			t.Errorf("%s: agent = %q color = %q, want %q %q", tt.id, s.Agent, s.Color, tt.agent, tt.color)
		}
	}
}

func TestCreateShowFailureRollsBack(t *testing.T) {
	h := newHarness()
	h.channels.showErr = errors.New("no display")

	s, err := h.reg.Create(context.Background(), CreateRequest{Agent: AgentClaude, Role: "Overseer"})
	if err == nil || s != nil {
		t.Fatalf("Create = (%v, %v), want an error", s, err)
	}
	if h.reg.Len() != 0 || h.reg.ActiveID() != "" {
		t.Errorf("Len = %d ActiveID = %q, want empty registry", h.reg.Len(), h.reg.ActiveID())
	}
	if h.channels.bound["s1"] {
		t.Error("channel still bound after rollback")
	}
	if len(h.procs.closed) != 1 || h.procs.closed[0] != "s1" {
		t.Errorf("backend closed = %v, want [s1]", h.procs.closed)
	}
	if len(h.recents.entries) != 0 {
		t.Errorf("recents = %+v, want none", h.recents.entries)
	}
}

func TestRestoreUnreachableBackend(t *testing.T) {
	h := newHarness()
	h.procs.listErr = backend.ErrUnreachable
	n, err := h.reg.Restore(context.Background())
	if err != nil || n != 0 {
		t.Errorf("Restore = (%d, %v), want (0, nil)", n, err)
	}
}

func TestMarkExitedKeepsSession(t *testing.T) {
	h := newHarness()
	s := h.create(t, "Overseer")
	h.reg.MarkExited(s.ID)

	got, ok := h.reg.Get(s.ID)
	if !ok {
		t.Fatal("session removed by MarkExited")
	}
	if got.Alive {
		t.Error("session still alive")
	}
	h.reg.MarkExited("missing")
}

func TestUptime(t *testing.T) {
	h := newHarness()
	s := h.create(t, "Overseer")
	if got := h.reg.Uptime(s.ID, s.CreatedAt.Add(90*time.Minute)); got != "1h 30m" {
		t.Errorf("Uptime = %q, want 1h 30m", got)
	}
	if got := h.reg.Uptime("missing", time.Now()); got != "" {
		t.Errorf("Uptime(missing) = %q, want empty", got)
	}
}
