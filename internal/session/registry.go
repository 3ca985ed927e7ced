package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/adt-framework/adt-console/internal/backend"
	"github.com/adt-framework/adt-console/internal/metrics"
)

// Channels is the terminal side of a session: one channel per id, exactly
// one shown at a time.
type Channels interface {
	Allocate(id string) error
	Attach(ctx context.Context, id string) error
	Show(id string) error
	Hide()
	Destroy(id string)
}

// Processes is the backend side of a session.
type Processes interface {
	Spawn(ctx context.Context, spec backend.SpawnSpec) (backend.Descriptor, error)
	Close(ctx context.Context, id string) error
	List(ctx context.Context) ([]backend.Descriptor, error)
}

// Recents remembers opened configurations.
type Recents interface {
	Add(e RecentEntry) error
}

// RegistryOptions configures a Registry. Recent and Observer may be nil.
type RegistryOptions struct {
	Recent   Recents
	Observer Observer
	Logger   *slog.Logger
	// NewID overrides uuid generation.
	NewID func() string
	// Now overrides time.Now.
	Now func() time.Time
}

// Registry is the single source of truth for which sessions exist and
// which one is active.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	order    []string // creation order
	active   string

	channels  Channels
	processes Processes
	recent    Recents
	observer  Observer
	newID     func() string
	now       func() time.Time
	log       *slog.Logger
}

// NewRegistry creates an empty Registry.
func NewRegistry(channels Channels, processes Processes, opts RegistryOptions) *Registry {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	newID := opts.NewID
	if newID == nil {
		newID = func() string { return uuid.New().String() }
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	observer := opts.Observer
	if observer == nil {
		observer = nopObserver{}
	}
	return &Registry{
		sessions:  make(map[string]*Session),
		channels:  channels,
		processes: processes,
		recent:    opts.Recent,
		observer:  observer,
		newID:     newID,
		now:       now,
		log:       logger,
	}
}

// Create launches a new session and makes it active. When the backend
// cannot spawn the process the channel is released, nothing is registered,
// and a *backend.SpawnError is returned. A session that cannot be shown is
// closed again and not recorded as recent.
func (r *Registry) Create(ctx context.Context, req CreateRequest) (*Session, error) {
	cmd := Launch(req.Agent, req.Role, LaunchOptions{
		Command:         req.Command,
		SkipPermissions: req.SkipPermissions,
		Yolo:            req.Yolo,
	})
	cwd := req.Cwd
	if cwd == "" {
		cwd = req.Project
	}
	cols, rows := req.Cols, req.Rows
	if cols == 0 || rows == 0 {
		cols, rows = backend.DefaultCols, backend.DefaultRows
	}

	id := r.newID()
	if err := r.channels.Allocate(id); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	desc, err := r.processes.Spawn(ctx, backend.SpawnSpec{
		ID:      id,
		Project: req.Project,
		Agent:   string(req.Agent),
		Role:    req.Role,
		SpecRef: req.SpecRef,
		Command: cmd.Name,
		Args:    cmd.Args,
		Cwd:     cwd,
		Cols:    cols,
		Rows:    rows,
	})
	if err != nil {
		r.channels.Destroy(id)
		var spawnErr *backend.SpawnError
		if !errors.As(err, &spawnErr) {
			err = &backend.SpawnError{ID: id, Command: cmd.Name, Err: err}
		}
		r.log.Warn("spawn failed", "id", id, "command", cmd.Name, "error", err)
		return nil, err
	}

	created := desc.CreatedAt
	if created.IsZero() {
		created = r.now()
	}
	s := &Session{
		ID:        id,
		Agent:     req.Agent,
		Role:      req.Role,
		SpecRef:   req.SpecRef,
		Command:   cmd.Name,
		Args:      cmd.Args,
		Cwd:       cwd,
		Project:   req.Project,
		Color:     cmd.Color,
		CreatedAt: created,
		Alive:     true,
	}
	count := r.register(s)
	r.observer.SessionsChanged(count)

	if err := r.channels.Attach(ctx, id); err != nil {
		r.log.Warn("attach failed", "id", id, "error", err)
	}
	if err := r.SwitchTo(ctx, id); err != nil {
		r.closeOne(ctx, id)
		return nil, fmt.Errorf("create session: %w", err)
	}
	if r.recent != nil {
		entry := RecentEntry{
			Project:  req.Project,
			Role:     req.Role,
			Agent:    req.Agent,
			SpecRef:  req.SpecRef,
			Command:  req.Command,
			OpenedAt: r.now(),
		}
		if err := r.recent.Add(entry); err != nil {
			r.log.Warn("record recent session", "error", err)
		}
	}
	r.log.Info("session created", "id", id, "agent", req.Agent, "role", req.Role)
	return s.clone(), nil
}

func (r *Registry) register(s *Session) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = s
	r.order = append(r.order, s.ID)
	metrics.SetSessions(len(r.sessions))
	return len(r.sessions)
}

// SwitchTo makes id the only active session. Switching to the already
// active session does nothing.
func (r *Registry) SwitchTo(_ context.Context, id string) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("switch to %s: %w", id, ErrUnknownSession)
	}
	if r.active == id {
		r.mu.Unlock()
		return nil
	}
	if err := r.channels.Show(id); err != nil {
		r.mu.Unlock()
		return fmt.Errorf("switch to %s: %w", id, err)
	}
	r.active = id
	active := s.clone()
	r.mu.Unlock()

	r.observer.ActiveChanged(active)
	return nil
}

// Close asks c to confirm and then ends the session. When it was active,
// the most recently created remaining session becomes active, or the
// registry enters the empty state.
func (r *Registry) Close(ctx context.Context, id string, c Confirmer) error {
	s, ok := r.Get(id)
	if !ok {
		return fmt.Errorf("close %s: %w", id, ErrUnknownSession)
	}
	if c != nil && !c.Confirm(fmt.Sprintf("Close session %s?", s.Label())) {
		return ErrCloseDeclined
	}
	r.closeOne(ctx, id)
	return nil
}

// CloseAll confirms once and closes every session.
func (r *Registry) CloseAll(ctx context.Context, c Confirmer) error {
	ids := r.ids()
	if len(ids) == 0 {
		return nil
	}
	if c != nil && !c.Confirm(fmt.Sprintf("Close all %d sessions?", len(ids))) {
		return ErrCloseDeclined
	}
	for _, id := range ids {
		r.closeOne(ctx, id)
	}
	return nil
}

func (r *Registry) closeOne(ctx context.Context, id string) {
	r.channels.Destroy(id)
	if err := r.processes.Close(ctx, id); err != nil && !errors.Is(err, backend.ErrUnknownSession) {
		r.log.Warn("backend close failed", "id", id, "error", err)
	}

	r.mu.Lock()
	if _, ok := r.sessions[id]; !ok {
		r.mu.Unlock()
		return
	}
	delete(r.sessions, id)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	wasActive := r.active == id
	var next *Session
	if wasActive {
		r.active = ""
		// Try newest first; a channel that cannot be shown is skipped.
		for i := len(r.order) - 1; i >= 0; i-- {
			candidate := r.order[i]
			if err := r.channels.Show(candidate); err == nil {
				r.active = candidate
				next = r.sessions[candidate].clone()
				break
			}
		}
		if r.active == "" {
			r.channels.Hide()
		}
	}
	count := len(r.sessions)
	metrics.SetSessions(count)
	r.mu.Unlock()

	r.log.Info("session closed", "id", id)
	r.observer.SessionsChanged(count)
	if wasActive {
		r.observer.ActiveChanged(next)
	}
}

// Restore registers sessions the backend is already running, without
// re-spawning them. An unreachable backend yields zero sessions.
func (r *Registry) Restore(ctx context.Context) (int, error) {
	descs, err := r.processes.List(ctx)
	if err != nil {
		r.log.Warn("restore: backend list failed", "error", err)
		return 0, nil
	}

	restored := 0
	var last string
	for _, d := range descs {
		if _, ok := r.Get(d.ID); ok {
			continue
		}
		if err := r.channels.Allocate(d.ID); err != nil {
			r.log.Warn("restore: allocate failed", "id", d.ID, "error", err)
			continue
		}
		kind, err := ParseAgentKind(d.Agent)
		if err != nil {
			r.log.Warn("restore: unknown agent, treating as custom", "id", d.ID, "agent", d.Agent)
			kind = AgentCustom
		}
		s := &Session{
			ID:        d.ID,
			Agent:     kind,
			Role:      d.Role,
			SpecRef:   d.SpecRef,
			Command:   d.Command,
			Args:      append([]string(nil), d.Args...),
			Cwd:       d.Cwd,
			Project:   d.Project,
			Color:     Color(kind),
			CreatedAt: d.CreatedAt,
			Alive:     d.Alive,
		}
		r.register(s)
		if err := r.channels.Attach(ctx, d.ID); err != nil {
			r.log.Warn("restore: attach failed", "id", d.ID, "error", err)
		}
		restored++
		last = d.ID
	}

	if restored == 0 {
		return 0, nil
	}
	r.observer.SessionsChanged(r.Len())
	if r.ActiveID() == "" {
		if err := r.SwitchTo(ctx, last); err != nil {
			return restored, err
		}
	}
	r.log.Info("sessions restored", "count", restored)
	return restored, nil
}

// MarkExited records that the session's process has ended. The session
// stays registered so its scrollback can still be read.
func (r *Registry) MarkExited(id string) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if ok {
		s.Alive = false
	}
	count := len(r.sessions)
	r.mu.Unlock()
	if ok {
		r.observer.SessionsChanged(count)
	}
}

// Get returns a copy of the session.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, false
	}
	return s.clone(), true
}

// Sessions returns copies of every session in creation order.
func (r *Registry) Sessions() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Session, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.sessions[id].clone())
	}
	return out
}

// Active returns a copy of the active session, or nil.
func (r *Registry) Active() *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[r.active]; ok {
		return s.clone()
	}
	return nil
}

// ActiveID returns the active session id, or "" in the empty state.
func (r *Registry) ActiveID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Uptime renders how long the session has existed as of now.
func (r *Registry) Uptime(id string, now time.Time) string {
	s, ok := r.Get(id)
	if !ok {
		return ""
	}
	return FormatUptime(now.Sub(s.CreatedAt))
}

func (r *Registry) ids() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.order...)
}

type nopObserver struct{}

func (nopObserver) ActiveChanged(*Session) {}
func (nopObserver) SessionsChanged(int)    {}
