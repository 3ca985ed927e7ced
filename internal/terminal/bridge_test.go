package terminal

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/adt-framework/adt-console/internal/backend"
)

// fakeTransport feeds each subscribed channel from a test-controlled
// stream and records writes and resizes.
type fakeTransport struct {
	mu       sync.Mutex
	streams  map[string]chan backend.Event
	writes   map[string][]byte
	resizes  []string
	writeErr error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		streams: make(map[string]chan backend.Event),
		writes:  make(map[string][]byte),
	}
}

func (f *fakeTransport) stream(id string) chan backend.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch, ok := f.streams[id]
	if !ok {
		ch = make(chan backend.Event, 64)
		f.streams[id] = ch
	}
	return ch
}

func (f *fakeTransport) Write(_ context.Context, id string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	f.writes[id] = append(f.writes[id], data...)
	return nil
}

func (f *fakeTransport) Resize(_ context.Context, id string, cols, rows uint16) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resizes = append(f.resizes, id+":"+Size{Cols: cols, Rows: rows}.String())
	return nil
}

func (f *fakeTransport) resizeLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.resizes...)
}

func (f *fakeTransport) Subscribe(ctx context.Context, id string, _ uint64) (<-chan backend.Event, error) {
	src := f.stream(id)
	out := make(chan backend.Event)
	go func() {
		defer close(out)
		for {
			select {
			case ev, ok := <-src:
				if !ok {
					return
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func snapshot(t *testing.T, b *Bridge, id string) string {
	t.Helper()
	data, err := b.Snapshot(id)
	if err != nil {
		t.Fatalf("Snapshot(%s): %v", id, err)
	}
	return string(data)
}

func newAttached(t *testing.T, ft *fakeTransport, opts Options, ids ...string) *Bridge {
	t.Helper()
	b := NewBridge(ft, opts)
	t.Cleanup(b.Close)
	for _, id := range ids {
		if err := b.Allocate(id); err != nil {
			t.Fatalf("Allocate(%s): %v", id, err)
		}
		if err := b.Attach(context.Background(), id); err != nil {
			t.Fatalf("Attach(%s): %v", id, err)
		}
	}
	return b
}

func TestAllocateTwice(t *testing.T) {
	b := NewBridge(newFakeTransport(), Options{})
	if err := b.Allocate("a"); err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if err := b.Allocate("a"); !errors.Is(err, ErrAlreadyBound) {
		t.Errorf("second Allocate err = %v, want ErrAlreadyBound", err)
	}
}

func TestHiddenChannelAppendsInOrder(t *testing.T) {
	ft := newFakeTransport()
	b := newAttached(t, ft, Options{}, "a", "b")
	if err := b.Show("a"); err != nil {
		t.Fatalf("Show: %v", err)
	}

	src := ft.stream("b")
	for _, chunk := range []string{"one ", "two ", "three"} {
		src <- backend.Event{Kind: backend.EventOutput, Data: []byte(chunk)}
	}

	waitFor(t, "hidden output", func() bool {
		return snapshot(t, b, "b") == "one two three"
	})
	if info, _ := b.Info("b"); info.Visible {
		t.Error("channel b visible, want hidden")
	}
}

func TestShowKeepsOneVisible(t *testing.T) {
	b := newAttached(t, newFakeTransport(), Options{}, "a", "b", "c")

	for _, id := range []string{"a", "c", "b", "b"} {
		if err := b.Show(id); err != nil {
			t.Fatalf("Show(%s): %v", id, err)
		}
		visible := 0
		for _, info := range b.Channels() {
			if info.Visible {
				visible++
				if info.ID != id {
					t.Errorf("visible = %s, want %s", info.ID, id)
				}
			}
		}
		if visible != 1 {
			t.Errorf("after Show(%s): %d visible channels, want 1", id, visible)
		}
	}
	if err := b.Show("missing"); !errors.Is(err, ErrUnknownChannel) {
		t.Errorf("Show(missing) err = %v, want ErrUnknownChannel", err)
	}
}

func TestInputWriteErrorIsInline(t *testing.T) {
	ft := newFakeTransport()
	b := newAttached(t, ft, Options{}, "a", "b")
	ft.writeErr = errors.New("broken pipe")

	err := b.Input(context.Background(), "a", []byte("ls\r"))
	var writeErr *ChannelWriteError
	if !errors.As(err, &writeErr) {
		t.Fatalf("Input err = %v, want *ChannelWriteError", err)
	}
	if writeErr.ID != "a" {
		t.Errorf("ChannelWriteError.ID = %q, want a", writeErr.ID)
	}

	want := "\r\n\x1b[31m[IPC Write Error: broken pipe]\x1b[0m\r\n"
	if got := snapshot(t, b, "a"); got != want {
		t.Errorf("scrollback a = %q, want %q", got, want)
	}
	if got := snapshot(t, b, "b"); got != "" {
		t.Errorf("scrollback b = %q, want empty", got)
	}
}

func TestInputForwardsVerbatim(t *testing.T) {
	ft := newFakeTransport()
	b := newAttached(t, ft, Options{}, "a")

	payload := []byte{0x1b, '[', 'A', '\r', 0x03}
	if err := b.Input(context.Background(), "a", payload); err != nil {
		t.Fatalf("Input: %v", err)
	}
	if got := string(ft.writes["a"]); got != string(payload) {
		t.Errorf("written = %q, want %q", got, payload)
	}
}

func TestStreamEndMarksEnded(t *testing.T) {
	ft := newFakeTransport()
	var closedID atomic.Value
	var closedCode atomic.Int64
	b := newAttached(t, ft, Options{OnClosed: func(id string, code int) {
		closedCode.Store(int64(code))
		closedID.Store(id)
	}}, "a")

	src := ft.stream("a")
	src <- backend.Event{Kind: backend.EventOutput, Data: []byte("bye")}
	src <- backend.Event{Kind: backend.EventClosed, ExitCode: 2}
	close(src)

	waitFor(t, "OnClosed", func() bool { return closedID.Load() != nil })
	if got := closedID.Load().(string); got != "a" {
		t.Errorf("OnClosed id = %q, want a", got)
	}
	if got := closedCode.Load(); got != 2 {
		t.Errorf("OnClosed code = %d, want 2", got)
	}
	if got := snapshot(t, b, "a"); got != "bye"+EndedMarker {
		t.Errorf("scrollback = %q, want output plus ended marker", got)
	}
	if info, _ := b.Info("a"); !info.Ended {
		t.Error("channel not marked ended")
	}
}

func TestDestroyIdempotent(t *testing.T) {
	ft := newFakeTransport()
	var closed atomic.Bool
	b := newAttached(t, ft, Options{OnClosed: func(string, int) { closed.Store(true) }}, "a")
	if err := b.Show("a"); err != nil {
		t.Fatalf("Show: %v", err)
	}

	b.Destroy("a")
	b.Destroy("a")
	b.Destroy("never-existed")

	if _, ok := b.Info("a"); ok {
		t.Error("channel still present after Destroy")
	}
	if got := b.Active(); got != "" {
		t.Errorf("Active = %q, want empty", got)
	}
	// Cancelling the subscription is not a session end.
	time.Sleep(20 * time.Millisecond)
	if closed.Load() {
		t.Error("OnClosed fired for a destroyed channel")
	}
	if err := b.Allocate("a"); err != nil {
		t.Errorf("re-Allocate after Destroy: %v", err)
	}
}

func TestViewportNegotiation(t *testing.T) {
	ft := newFakeTransport()
	b := newAttached(t, ft, Options{Debounce: time.Millisecond}, "a")
	if err := b.Show("a"); err != nil {
		t.Fatalf("Show: %v", err)
	}

	tests := []struct {
		name     string
		viewport Size
		want     Size
	}{
		{"usable", Size{Cols: 100, Rows: 40}, Size{Cols: 100, Rows: 40}},
		{"zero cols falls back", Size{Cols: 0, Rows: 40}, FallbackSize},
		{"zero rows falls back", Size{Cols: 100, Rows: 0}, FallbackSize},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b.SetViewport(tt.viewport)
			b.Negotiate()
			info, _ := b.Info("a")
			if info.Size != tt.want {
				t.Errorf("size = %v, want %v", info.Size, tt.want)
			}
		})
	}
}

func TestNegotiateSkipsUnchangedSize(t *testing.T) {
	ft := newFakeTransport()
	b := newAttached(t, ft, Options{Debounce: time.Hour}, "a")
	if err := b.Show("a"); err != nil {
		t.Fatalf("Show: %v", err)
	}

	b.SetViewport(Size{Cols: backend.DefaultCols, Rows: backend.DefaultRows})
	b.Negotiate()
	if got := ft.resizeLog(); len(got) != 0 {
		t.Errorf("resizes = %v, want none for the default size", got)
	}

	b.SetViewport(Size{Cols: 90, Rows: 20})
	b.Negotiate()
	b.Negotiate()
	if got := ft.resizeLog(); len(got) != 1 || got[0] != "a:90x20" {
		t.Errorf("resizes = %v, want [a:90x20]", got)
	}
}

func TestViewportDebounceCoalesces(t *testing.T) {
	ft := newFakeTransport()
	b := newAttached(t, ft, Options{Debounce: 30 * time.Millisecond}, "a")
	if err := b.Show("a"); err != nil {
		t.Fatalf("Show: %v", err)
	}

	for cols := uint16(81); cols <= 90; cols++ {
		b.SetViewport(Size{Cols: cols, Rows: 25})
	}
	waitFor(t, "debounced resize", func() bool { return len(ft.resizeLog()) > 0 })
	time.Sleep(60 * time.Millisecond)

	got := ft.resizeLog()
	if len(got) != 1 || got[0] != "a:90x25" {
		t.Errorf("resizes = %v, want only the final a:90x25", got)
	}
}

func TestDebouncerStop(t *testing.T) {
	var runs atomic.Int32
	d := newDebouncer(10*time.Millisecond, func() { runs.Add(1) })
	d.Trigger()
	d.Stop()
	d.Trigger()
	time.Sleep(40 * time.Millisecond)
	if got := runs.Load(); got != 0 {
		t.Errorf("runs = %d, want 0 after Stop", got)
	}
}

func TestUpdatesSignalled(t *testing.T) {
	ft := newFakeTransport()
	b := newAttached(t, ft, Options{}, "a")

	ft.stream("a") <- backend.Event{Kind: backend.EventOutput, Data: []byte("x")}
	select {
	case <-b.Updates():
	case <-time.After(2 * time.Second):
		t.Fatal("no update signal")
	}
	waitFor(t, "output", func() bool { return strings.Contains(snapshot(t, b, "a"), "x") })
}
