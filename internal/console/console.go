// Package console composes the session registry, the terminal bridge, the
// governance fetcher and the notification dispatcher into one console
// session with an explicit Start and Close.
package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/adt-framework/adt-console/internal/alignment"
	"github.com/adt-framework/adt-console/internal/backend"
	"github.com/adt-framework/adt-console/internal/config"
	"github.com/adt-framework/adt-console/internal/governance"
	"github.com/adt-framework/adt-console/internal/log"
	"github.com/adt-framework/adt-console/internal/metrics"
	"github.com/adt-framework/adt-console/internal/notify"
	"github.com/adt-framework/adt-console/internal/session"
	"github.com/adt-framework/adt-console/internal/terminal"
)

// Options configures a Console. Backend is required.
type Options struct {
	Config  *config.Config
	Backend backend.Backend
	// Service is the governance service; nil means local or offline only.
	Service governance.Service
	Recent  session.Recents
	Audit   *log.Logger
	// Desktop receives desktop alerts; nil disables them.
	Desktop notify.Sink
	Ambient []notify.AmbientSink
	Logger  *slog.Logger
	// Now and NewID override the clock and session id generation.
	Now   func() time.Time
	NewID func() string
}

// Console is one running operator console.
type Console struct {
	cfg        *config.Config
	registry   *session.Registry
	bridge     *terminal.Bridge
	fetcher    *governance.Fetcher
	dispatcher *notify.Dispatcher
	toasts     *notify.Toasts
	guard      Guard
	audit      *log.Logger
	log        *slog.Logger
	now        func() time.Time

	alerts  chan notify.Alert
	changes chan struct{}

	mu     sync.Mutex
	panel  *Panel
	source governance.Source

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	metrics *http.Server

	// base scopes refreshes started by session switches; Close ends it.
	base    context.Context
	stop    context.CancelFunc
	pending sync.WaitGroup
}

// New wires a Console. Nothing runs until Start.
func New(opts Options) (*Console, error) {
	if opts.Backend == nil {
		return nil, errors.New("console: backend is required")
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	c := &Console{
		cfg:     cfg,
		audit:   opts.Audit,
		log:     logger,
		now:     now,
		toasts:  notify.NewToasts(5),
		alerts:  make(chan notify.Alert, 32),
		changes: make(chan struct{}, 1),
	}
	c.base, c.stop = context.WithCancel(context.Background())

	c.bridge = terminal.NewBridge(opts.Backend, terminal.Options{
		ScrollbackBytes: cfg.Terminal.ScrollbackBytes,
		OnClosed:        c.sessionExited,
		Logger:          logger.With("component", "bridge"),
	})
	c.registry = session.NewRegistry(c.bridge, opts.Backend, session.RegistryOptions{
		Recent:   opts.Recent,
		Observer: c,
		Logger:   logger.With("component", "registry"),
		NewID:    opts.NewID,
		Now:      now,
	})

	var local *governance.LocalReader
	if cfg.Project.Root != "" {
		local = governance.NewLocalReader(cfg.Project.Root)
	}
	c.fetcher = governance.NewFetcher(opts.Service, governance.FetcherOptions{
		Local:   local,
		Timeout: cfg.Center.Timeout(),
		Logger:  logger.With("component", "fetcher"),
		Now:     now,
	})

	c.dispatcher = notify.NewDispatcher(logger.With("component", "notify"))
	c.dispatcher.Route(notify.ConsumerToast, toastSink{c})
	if opts.Desktop != nil {
		c.dispatcher.Route(notify.ConsumerDesktop, opts.Desktop)
	}
	for _, s := range opts.Ambient {
		c.dispatcher.AddAmbient(s)
	}

	c.panel = BuildPanel(c.guard.Issue(), nil, nil, now())
	return c, nil
}

// Start restores sessions the backend already runs, takes a first
// snapshot, and starts the periodic cycles. The cycles stop at Close or
// when ctx ends.
func (c *Console) Start(ctx context.Context) error {
	ctx, c.cancel = context.WithCancel(ctx)

	if _, err := c.Restore(ctx); err != nil {
		c.log.Warn("restore sessions", "error", err)
	}
	c.RefreshPanel(ctx)
	c.PollNotifications(ctx)

	c.every(ctx, c.cfg.Polling.NotifyInterval(), func(ctx context.Context) { c.PollNotifications(ctx) })
	c.every(ctx, c.cfg.Polling.SnapshotInterval(), func(ctx context.Context) { c.RefreshPanel(ctx) })

	if local := c.fetcher.Local(); local != nil && c.cfg.Polling.WatchInterval() > 0 {
		watch := governance.NewWatch(local)
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			watch.Run(ctx, c.cfg.Polling.WatchInterval(), func(files []string) {
				c.log.Debug("project files changed", "files", files)
				c.RefreshPanel(ctx)
				c.PollNotifications(ctx)
			})
		}()
	}

	if addr := c.cfg.Metrics.Addr; addr != "" {
		if err := c.serveMetrics(addr); err != nil {
			_ = c.Close()
			return err
		}
	}
	return nil
}

// Restore registers the sessions the backend already runs. Start calls
// it; the headless commands call it alone.
func (c *Console) Restore(ctx context.Context) (int, error) {
	n, err := c.registry.Restore(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		c.record(log.LogEvent{Event: log.EventSessionRestored, Count: n})
	}
	return n, nil
}

// every runs fn each interval. A cycle still running does not delay the
// next one.
func (c *Console) every(ctx context.Context, interval time.Duration, fn func(context.Context)) {
	if interval <= 0 {
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.wg.Add(1)
				go func() {
					defer c.wg.Done()
					fn(ctx)
				}()
			}
		}
	}()
}

func (c *Console) serveMetrics(addr string) error {
	metrics.Init()
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen metrics %s: %w", addr, err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	c.metrics = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := c.metrics.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			c.log.Error("metrics server", "error", err)
		}
	}()
	c.log.Info("metrics listening", "addr", ln.Addr().String())
	return nil
}

// Close stops the periodic cycles and detaches from every channel.
// Sessions keep running in the backend.
func (c *Console) Close() error {
	if c.cancel != nil {
		c.cancel()
	}
	c.stop()
	c.wg.Wait()
	c.pending.Wait()
	c.bridge.Close()
	if c.metrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return c.metrics.Shutdown(ctx)
	}
	return nil
}

// Create launches a session and makes it active.
func (c *Console) Create(ctx context.Context, req session.CreateRequest) (*session.Session, error) {
	if req.Project == "" {
		req.Project = c.cfg.Project.Root
	}
	if req.Cols == 0 || req.Rows == 0 {
		size := c.viewportOr(terminal.Size{Cols: uint16(c.cfg.Terminal.Cols), Rows: uint16(c.cfg.Terminal.Rows)})
		req.Cols, req.Rows = size.Cols, size.Rows
	}
	s, err := c.registry.Create(ctx, req)
	if err != nil {
		c.record(log.LogEvent{
			Event:   log.EventSpawnFailed,
			Agent:   string(req.Agent),
			Role:    req.Role,
			Project: req.Project,
			Error:   err.Error(),
		})
		return nil, err
	}
	c.record(log.LogEvent{
		Event:     log.EventSessionCreated,
		SessionID: s.ID,
		Agent:     string(s.Agent),
		Role:      s.Role,
		SpecRef:   s.SpecRef,
		Project:   s.Project,
		Command:   s.Command,
	})
	return s, nil
}

func (c *Console) viewportOr(fallback terminal.Size) terminal.Size {
	if id := c.bridge.Active(); id != "" {
		if info, ok := c.bridge.Info(id); ok && info.Size.Usable() {
			return info.Size
		}
	}
	return fallback
}

// SwitchTo makes id the active session.
func (c *Console) SwitchTo(ctx context.Context, id string) error {
	return c.registry.SwitchTo(ctx, id)
}

// CloseSession ends one session after confirmation.
func (c *Console) CloseSession(ctx context.Context, id string, confirm session.Confirmer) error {
	s, _ := c.registry.Get(id)
	if err := c.registry.Close(ctx, id, confirm); err != nil {
		return err
	}
	c.recordClosed(s)
	return nil
}

// CloseAll ends every session after one confirmation.
func (c *Console) CloseAll(ctx context.Context, confirm session.Confirmer) error {
	all := c.registry.Sessions()
	if err := c.registry.CloseAll(ctx, confirm); err != nil {
		return err
	}
	for _, s := range all {
		c.recordClosed(s)
	}
	return nil
}

func (c *Console) recordClosed(s *session.Session) {
	if s == nil {
		return
	}
	c.record(log.LogEvent{Event: log.EventSessionClosed, SessionID: s.ID, Role: s.Role, Agent: string(s.Agent)})
}

// Input forwards operator keystrokes to the active session.
func (c *Console) Input(ctx context.Context, data []byte) error {
	id := c.registry.ActiveID()
	if id == "" {
		return nil
	}
	return c.bridge.Input(ctx, id, data)
}

// Resize records the terminal view size. The active channel is resized
// once the size settles.
func (c *Console) Resize(size terminal.Size) {
	c.bridge.SetViewport(size)
}

// Bridge exposes the terminal bridge for rendering.
func (c *Console) Bridge() *terminal.Bridge {
	return c.bridge
}

// Sessions returns every session in creation order.
func (c *Console) Sessions() []*session.Session {
	return c.registry.Sessions()
}

// ActiveID returns the active session id, or "".
func (c *Console) ActiveID() string {
	return c.registry.ActiveID()
}

// Uptime renders how long session id has existed.
func (c *Console) Uptime(id string) string {
	return c.registry.Uptime(id, c.now())
}

// Alignment evaluates session id against the latest snapshot. Unknown ids
// are offline.
func (c *Console) Alignment(id string) alignment.Status {
	s, ok := c.registry.Get(id)
	if !ok {
		return alignment.Offline
	}
	return alignment.Evaluate(s, c.fetcher.Latest())
}

// Snapshot returns the latest governance snapshot, or nil before the first.
func (c *Console) Snapshot() *governance.Snapshot {
	return c.fetcher.Latest()
}

// Panel returns the current context panel.
func (c *Console) Panel() *Panel {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.panel
}

// FetchPanel refreshes the snapshot and builds a panel for the session
// that was active when the fetch began.
func (c *Console) FetchPanel(ctx context.Context) *Panel {
	tok := c.guard.Issue()
	snap := c.fetcher.Refresh(ctx)
	var s *session.Session
	if tok.SessionID != "" {
		s, _ = c.registry.Get(tok.SessionID)
	}
	return BuildPanel(tok, s, snap, c.now())
}

// ApplyPanel installs p unless the active session changed since its fetch
// began, or the installed panel comes from a newer snapshot. It reports
// whether p was applied.
func (c *Console) ApplyPanel(p *Panel) bool {
	c.mu.Lock()
	if !c.guard.Current(p.Token) || olderThan(p, c.panel) {
		c.mu.Unlock()
		metrics.RecordStalePanel()
		c.log.Debug("discarding stale panel", "epoch", p.Token.Epoch, "session", p.Token.SessionID)
		return false
	}
	c.panel = p
	c.mu.Unlock()
	c.changed()
	return true
}

// olderThan reports whether p was built from an earlier snapshot than cur.
// Refreshes overlap, so a slow one can finish after a newer one.
func olderThan(p, cur *Panel) bool {
	if cur == nil || cur.Snapshot == nil {
		return false
	}
	return p.Snapshot == nil || p.Snapshot.Seq < cur.Snapshot.Seq
}

// RefreshPanel fetches and applies a panel.
func (c *Console) RefreshPanel(ctx context.Context) bool {
	return c.ApplyPanel(c.FetchPanel(ctx))
}

// PollNotifications runs one notification cycle over the event log. A
// source change or outage re-seeds every watermark so the first poll on the
// new log fires nothing.
func (c *Console) PollNotifications(ctx context.Context) map[notify.Consumer]int {
	events, src, err := c.fetcher.Events(ctx)

	c.mu.Lock()
	prev := c.source
	c.source = src
	c.mu.Unlock()

	if src != prev {
		c.dispatcher.MarkOutage()
		switch {
		case src == governance.SourceRemote && prev != "":
			c.record(log.LogEvent{Event: log.EventGovernanceOnline, Source: string(src)})
		case src != governance.SourceRemote:
			c.record(log.LogEvent{Event: log.EventGovernanceOffline, Source: string(src)})
		}
	}
	if err != nil {
		if src != governance.SourceOffline {
			c.log.Warn("poll events", "source", src, "error", err)
		}
		c.dispatcher.UpdateAmbient(c.registry.Len())
		c.changed()
		return nil
	}

	fired, _ := c.dispatcher.Dispatch(ctx, events, c.registry.Len())
	c.changed()
	return fired
}

// Alerts delivers toast alerts as they fire. Sends never block: a reader
// that falls behind loses alerts from this channel, but Toasts still holds
// them.
func (c *Console) Alerts() <-chan notify.Alert {
	return c.alerts
}

// Toasts returns the toasts visible now.
func (c *Console) Toasts() []notify.Toast {
	return c.toasts.Visible(c.now())
}

// DismissToast removes a toast early.
func (c *Console) DismissToast(id int) {
	if c.toasts.Dismiss(id) {
		c.changed()
	}
}

// Ambient returns the latest ambient status.
func (c *Console) Ambient() notify.Ambient {
	return c.dispatcher.Ambient()
}

// Changes signals, coalesced, whenever sessions, the panel or alerts
// changed.
func (c *Console) Changes() <-chan struct{} {
	return c.changes
}

func (c *Console) changed() {
	select {
	case c.changes <- struct{}{}:
	default:
	}
}

// ActiveChanged implements session.Observer. It advances the guard so
// in-flight fetches for the previous session are dropped, shows the new
// session against the cached snapshot, and starts a fresh fetch for it.
func (c *Console) ActiveChanged(s *session.Session) {
	id := ""
	if s != nil {
		id = s.ID
	}
	c.mu.Lock()
	tok := c.guard.Advance(id)
	c.panel = BuildPanel(tok, s, c.fetcher.Latest(), c.now())
	c.mu.Unlock()
	c.changed()
	if s != nil {
		c.refreshSoon()
	}
}

// refreshSoon fetches and applies a panel off the caller's goroutine.
func (c *Console) refreshSoon() {
	if c.base.Err() != nil {
		return
	}
	c.pending.Add(1)
	go func() {
		defer c.pending.Done()
		c.RefreshPanel(c.base)
	}()
}

// SessionsChanged implements session.Observer.
func (c *Console) SessionsChanged(n int) {
	c.dispatcher.UpdateAmbient(n)
	c.changed()
}

func (c *Console) sessionExited(id string, exitCode int) {
	c.registry.MarkExited(id)
	c.log.Info("session process exited", "id", id, "exit_code", exitCode)
}

func (c *Console) record(ev log.LogEvent) {
	if c.audit == nil {
		return
	}
	if err := c.audit.Append(ev); err != nil {
		c.log.Warn("audit log append", "event", ev.Event, "error", err)
	}
}

// toastSink queues alerts as toasts, publishes them on Alerts and writes
// them to the audit log.
type toastSink struct {
	c *Console
}

func (t toastSink) Name() string { return "toast" }

func (t toastSink) Notify(ctx context.Context, a notify.Alert) error {
	if ms := t.c.cfg.Notifications.ToastDismissMS; ms > 0 {
		a.DismissAfter = time.Duration(ms) * time.Millisecond
	}
	if err := t.c.toasts.Notify(ctx, a); err != nil {
		return err
	}
	select {
	case t.c.alerts <- a:
	default:
	}
	t.c.record(log.LogEvent{
		Event: log.EventAlertFired,
		Kind:  string(a.Kind),
		Title: a.Title,
		Data:  map[string]any{"event_id": a.Event.EventID, "action_type": a.Event.ActionType},
	})
	return nil
}
