// Package terminal binds each console session to one I/O channel. A channel
// owns the session's scrollback and its output subscription; the Bridge
// keeps exactly one channel visible and negotiates its size with the
// backend.
package terminal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/adt-framework/adt-console/internal/backend"
	"github.com/adt-framework/adt-console/internal/metrics"
	"github.com/adt-framework/adt-console/internal/scrollback"
)

var (
	// ErrAlreadyBound means a channel already exists for the session id.
	// It is a programming error in the caller.
	ErrAlreadyBound = errors.New("channel already bound")
	// ErrUnknownChannel means no channel exists for the session id.
	ErrUnknownChannel = errors.New("unknown channel")
)

// EndedMarker is appended to a channel when its process exits.
const EndedMarker = "\r\n[Session ended]\r\n"

// DefaultDebounce is the trailing window for viewport negotiation.
const DefaultDebounce = 50 * time.Millisecond

const resizeTimeout = 2 * time.Second

// Size is a terminal area in character cells.
type Size struct {
	Cols uint16
	Rows uint16
}

// FallbackSize is used when the display area is unusable.
var FallbackSize = Size{Cols: 80, Rows: 24}

// Usable reports whether both dimensions are non-zero.
func (s Size) Usable() bool {
	return s.Cols > 0 && s.Rows > 0
}

func (s Size) String() string {
	return fmt.Sprintf("%dx%d", s.Cols, s.Rows)
}

// ChannelWriteError reports input that could not be delivered to a
// session. The error text is also written into that channel's scrollback.
type ChannelWriteError struct {
	ID  string
	Err error
}

func (e *ChannelWriteError) Error() string {
	return fmt.Sprintf("write to session %s: %v", e.ID, e.Err)
}

func (e *ChannelWriteError) Unwrap() error {
	return e.Err
}

// Transport is the part of a backend the bridge drives.
type Transport interface {
	Write(ctx context.Context, id string, data []byte) error
	Resize(ctx context.Context, id string, cols, rows uint16) error
	Subscribe(ctx context.Context, id string, from uint64) (<-chan backend.Event, error)
}

// Options configures a Bridge.
type Options struct {
	// ScrollbackBytes sizes each channel's buffer. Zero means 1 MiB.
	ScrollbackBytes int
	// Debounce overrides DefaultDebounce.
	Debounce time.Duration
	// OnClosed is called from the channel's pump when its process exits.
	OnClosed func(id string, exitCode int)
	Logger   *slog.Logger
}

// Info describes a channel's state.
type Info struct {
	ID      string
	Size    Size
	Visible bool
	Ended   bool
}

type channel struct {
	id      string
	size    Size
	visible bool
	ended   bool
	out     *scrollback.Buffer
	cancel  context.CancelFunc
	created int
}

// Bridge multiplexes session channels over one Transport.
type Bridge struct {
	mu        sync.Mutex
	channels  map[string]*channel
	visible   string
	viewport  Size
	seq       int
	transport Transport
	opts      Options
	updates   chan struct{}
	negotiate *debouncer
	log       *slog.Logger
}

// NewBridge creates a Bridge over t.
func NewBridge(t Transport, opts Options) *Bridge {
	if opts.ScrollbackBytes <= 0 {
		opts.ScrollbackBytes = scrollback.DefaultSize
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	b := &Bridge{
		channels:  make(map[string]*channel),
		transport: t,
		opts:      opts,
		updates:   make(chan struct{}, 1),
		log:       logger,
	}
	b.negotiate = newDebouncer(opts.Debounce, b.Negotiate)
	return b
}

// Updates delivers a coalesced signal whenever any channel's scrollback
// grows or ends. Readers redraw from Snapshot.
func (b *Bridge) Updates() <-chan struct{} {
	return b.updates
}

func (b *Bridge) notify() {
	select {
	case b.updates <- struct{}{}:
	default:
	}
}

// Allocate creates a hidden channel for id.
func (b *Bridge) Allocate(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.channels[id]; ok {
		return fmt.Errorf("allocate %s: %w", id, ErrAlreadyBound)
	}
	b.seq++
	b.channels[id] = &channel{
		id:      id,
		size:    Size{Cols: backend.DefaultCols, Rows: backend.DefaultRows},
		out:     scrollback.New(b.opts.ScrollbackBytes),
		created: b.seq,
	}
	return nil
}

// Attach subscribes the channel to its session's output from offset 0.
// The subscription lives until Destroy, independent of ctx's deadline.
func (b *Bridge) Attach(ctx context.Context, id string) error {
	subCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	b.mu.Lock()
	ch, ok := b.channels[id]
	if !ok {
		b.mu.Unlock()
		cancel()
		return fmt.Errorf("attach %s: %w", id, ErrUnknownChannel)
	}
	if ch.cancel != nil {
		ch.cancel()
	}
	ch.cancel = cancel
	b.mu.Unlock()

	events, err := b.transport.Subscribe(subCtx, id, 0)
	if err != nil {
		cancel()
		return fmt.Errorf("attach %s: %w", id, err)
	}
	go b.pump(subCtx, ch, events)
	return nil
}

// pump appends every payload to the channel in arrival order, visible or not.
func (b *Bridge) pump(ctx context.Context, ch *channel, events <-chan backend.Event) {
	exitCode := -1
	for ev := range events {
		switch ev.Kind {
		case backend.EventOutput:
			ch.out.Write(ev.Data)
			b.notify()
		case backend.EventClosed:
			exitCode = ev.ExitCode
		}
	}
	if ctx.Err() != nil {
		// Destroyed.
		return
	}

	ch.out.Write([]byte(EndedMarker))
	b.mu.Lock()
	ch.ended = true
	b.mu.Unlock()
	b.notify()
	b.log.Info("channel ended", "id", ch.id, "exit_code", exitCode)
	if b.opts.OnClosed != nil {
		b.opts.OnClosed(ch.id, exitCode)
	}
}

// Show makes id the only visible channel and schedules a viewport
// negotiation for it.
func (b *Bridge) Show(id string) error {
	b.mu.Lock()
	target, ok := b.channels[id]
	if !ok {
		b.mu.Unlock()
		return fmt.Errorf("show %s: %w", id, ErrUnknownChannel)
	}
	for _, ch := range b.channels {
		ch.visible = false
	}
	target.visible = true
	b.visible = id
	b.mu.Unlock()

	b.notify()
	b.negotiate.Trigger()
	return nil
}

// Hide leaves no channel visible.
func (b *Bridge) Hide() {
	b.mu.Lock()
	for _, ch := range b.channels {
		ch.visible = false
	}
	b.visible = ""
	b.mu.Unlock()
	b.notify()
}

// Active returns the visible channel id, or "" when none is.
func (b *Bridge) Active() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.visible
}

// SetViewport records the display area and schedules a negotiation.
func (b *Bridge) SetViewport(size Size) {
	b.mu.Lock()
	b.viewport = size
	b.mu.Unlock()
	b.negotiate.Trigger()
}

// Negotiate sizes the visible channel to the recorded viewport, falling
// back to 80x24 when it is unusable. The backend is told only when the size
// actually changes. Normally called through the debouncer.
func (b *Bridge) Negotiate() {
	b.mu.Lock()
	ch, ok := b.channels[b.visible]
	if !ok {
		b.mu.Unlock()
		return
	}
	want := b.viewport
	if !want.Usable() {
		want = FallbackSize
	}
	if ch.size == want {
		b.mu.Unlock()
		return
	}
	id := ch.id
	b.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), resizeTimeout)
	defer cancel()
	if err := b.transport.Resize(ctx, id, want.Cols, want.Rows); err != nil {
		b.log.Warn("resize failed", "id", id, "size", want.String(), "error", err)
		return
	}

	b.mu.Lock()
	ch.size = want
	b.mu.Unlock()
	b.log.Debug("channel resized", "id", id, "size", want.String())
}

// Input forwards data verbatim to the session. A failure is reported in
// that channel's scrollback and returned as *ChannelWriteError.
func (b *Bridge) Input(ctx context.Context, id string, data []byte) error {
	b.mu.Lock()
	ch, ok := b.channels[id]
	b.mu.Unlock()
	if !ok {
		return fmt.Errorf("input %s: %w", id, ErrUnknownChannel)
	}

	if err := b.transport.Write(ctx, id, data); err != nil {
		ch.out.Write([]byte(fmt.Sprintf("\r\n\x1b[31m[IPC Write Error: %v]\x1b[0m\r\n", err)))
		b.notify()
		metrics.RecordChannelWriteError()
		return &ChannelWriteError{ID: id, Err: err}
	}
	return nil
}

// Destroy cancels the channel's subscription and forgets it. Destroying an
// unknown id is a no-op.
func (b *Bridge) Destroy(id string) {
	b.mu.Lock()
	ch, ok := b.channels[id]
	if ok {
		delete(b.channels, id)
		if b.visible == id {
			b.visible = ""
		}
	}
	b.mu.Unlock()
	if ok && ch.cancel != nil {
		ch.cancel()
	}
}

// Snapshot returns a copy of the channel's retained scrollback.
func (b *Bridge) Snapshot(id string) ([]byte, error) {
	b.mu.Lock()
	ch, ok := b.channels[id]
	b.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("snapshot %s: %w", id, ErrUnknownChannel)
	}
	return ch.out.Bytes(), nil
}

// Info returns the channel's state.
func (b *Bridge) Info(id string) (Info, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch, ok := b.channels[id]
	if !ok {
		return Info{}, false
	}
	return Info{ID: ch.id, Size: ch.size, Visible: ch.visible, Ended: ch.ended}, true
}

// Channels lists every channel in allocation order.
func (b *Bridge) Channels() []Info {
	b.mu.Lock()
	chans := make([]*channel, 0, len(b.channels))
	for _, ch := range b.channels {
		chans = append(chans, ch)
	}
	sort.Slice(chans, func(i, j int) bool { return chans[i].created < chans[j].created })
	out := make([]Info, 0, len(chans))
	for _, ch := range chans {
		out = append(out, Info{ID: ch.id, Size: ch.size, Visible: ch.visible, Ended: ch.ended})
	}
	b.mu.Unlock()
	return out
}

// Close destroys every channel and stops pending negotiation.
func (b *Bridge) Close() {
	b.negotiate.Stop()
	for _, info := range b.Channels() {
		b.Destroy(info.ID)
	}
}
