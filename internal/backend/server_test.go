package backend

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

// fakeBackend is an in-memory Backend whose sessions never run anything.
type fakeBackend struct {
	mu       sync.Mutex
	sessions map[string]*Descriptor
	input    map[string][]byte
	output   map[string][]byte
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		sessions: make(map[string]*Descriptor),
		input:    make(map[string][]byte),
		output:   make(map[string][]byte),
	}
}

func (f *fakeBackend) Spawn(_ context.Context, spec SpawnSpec) (Descriptor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if spec.Command == "missing-binary" {
		return Descriptor{}, errors.New("executable file not found")
	}
	if _, ok := f.sessions[spec.ID]; ok {
		return Descriptor{}, ErrSessionExists
	}
	d := &Descriptor{
		ID:        spec.ID,
		Agent:     spec.Agent,
		Role:      spec.Role,
		Command:   spec.Command,
		Args:      spec.Args,
		Cols:      spec.Cols,
		Rows:      spec.Rows,
		CreatedAt: time.Now().UTC().Add(time.Duration(len(f.sessions)) * time.Millisecond),
		Alive:     true,
	}
	f.sessions[spec.ID] = d
	return *d, nil
}

func (f *fakeBackend) Write(_ context.Context, id string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.sessions[id]; !ok {
		return fmt.Errorf("%s: %w", id, ErrUnknownSession)
	}
	f.input[id] = append(f.input[id], data...)
	// Echo like a cooked terminal.
	f.output[id] = append(f.output[id], data...)
	return nil
}

func (f *fakeBackend) inputOf(id string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return string(f.input[id])
}

func (f *fakeBackend) Resize(_ context.Context, id string, cols, rows uint16) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.sessions[id]
	if !ok {
		return fmt.Errorf("%s: %w", id, ErrUnknownSession)
	}
	d.Cols, d.Rows = cols, rows
	return nil
}

func (f *fakeBackend) Close(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.sessions[id]; !ok {
		return fmt.Errorf("%s: %w", id, ErrUnknownSession)
	}
	delete(f.sessions, id)
	return nil
}

func (f *fakeBackend) List(_ context.Context) ([]Descriptor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Descriptor, 0, len(f.sessions))
	for _, d := range f.sessions {
		out = append(out, *d)
	}
	return out, nil
}

// Subscribe replays the echoed output from offset and then reports exit 0.
func (f *fakeBackend) Subscribe(ctx context.Context, id string, from uint64) (<-chan Event, error) {
	f.mu.Lock()
	_, ok := f.sessions[id]
	data := append([]byte(nil), f.output[id]...)
	f.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, ErrUnknownSession)
	}
	if from > uint64(len(data)) {
		from = uint64(len(data))
	}
	events := make(chan Event, 2)
	go func() {
		defer close(events)
		for _, ev := range []Event{
			{Kind: EventOutput, Data: data[from:], Offset: from},
			{Kind: EventClosed, Offset: uint64(len(data))},
		} {
			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return events, nil
}

// startServer serves b on a socket in a short temp dir; unix socket paths
// are length limited, which t.TempDir can exceed.
func startServer(t *testing.T, b Backend) *Client {
	t.Helper()
	dir, err := os.MkdirTemp("", "adt")
	if err != nil {
		t.Fatalf("MkdirTemp: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	socket := filepath.Join(dir, "b.sock")

	ctx, cancel := context.WithCancel(context.Background())
	srv := NewServer(b, socket, nil)
	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	client := NewClient(socket, time.Second)
	deadline := time.Now().Add(2 * time.Second)
	for {
		if err := client.Health(context.Background()); err == nil {
			return client
		}
		if time.Now().After(deadline) {
			t.Fatal("server did not become healthy")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestClientServerRoundTrip(t *testing.T) {
	fake := newFakeBackend()
	client := startServer(t, fake)
	ctx := context.Background()

	desc, err := client.Spawn(ctx, SpawnSpec{
		ID:      "s1",
		Agent:   "claude",
		Role:    "Backend_Engineer",
		Command: "claude",
		Args:    []string{"/hive-backend"},
		Cols:    DefaultCols,
		Rows:    DefaultRows,
	})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	if desc.ID != "s1" || desc.Role != "Backend_Engineer" || !desc.Alive {
		t.Errorf("Spawn descriptor = %+v", desc)
	}

	if err := client.Write(ctx, "s1", []byte("ls\r")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if got := fake.inputOf("s1"); got != "ls\r" {
		t.Errorf("backend input = %q, want %q", got, "ls\r")
	}

	if err := client.Resize(ctx, "s1", 80, 24); err != nil {
		t.Fatalf("Resize: %v", err)
	}
	list, err := client.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 1 || list[0].Cols != 80 || list[0].Rows != 24 {
		t.Errorf("List = %+v, want one 80x24 session", list)
	}

	if err := client.Close(ctx, "s1"); err != nil {
		t.Fatalf("Close: %v", err)
	}
	list, err = client.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("List after Close = %d sessions, want 0", len(list))
	}
}

func TestClientUnknownSession(t *testing.T) {
	client := startServer(t, newFakeBackend())
	ctx := context.Background()

	if err := client.Write(ctx, "nope", []byte("x")); !errors.Is(err, ErrUnknownSession) {
		t.Errorf("Write unknown: err = %v, want ErrUnknownSession", err)
	}
	if err := client.Resize(ctx, "nope", 80, 24); !errors.Is(err, ErrUnknownSession) {
		t.Errorf("Resize unknown: err = %v, want ErrUnknownSession", err)
	}
	if err := client.Close(ctx, "nope"); !errors.Is(err, ErrUnknownSession) {
		t.Errorf("Close unknown: err = %v, want ErrUnknownSession", err)
	}
	if _, err := client.Subscribe(ctx, "nope", 0); !errors.Is(err, ErrUnknownSession) {
		t.Errorf("Subscribe unknown: err = %v, want ErrUnknownSession", err)
	}
}

func TestClientSpawnFailure(t *testing.T) {
	client := startServer(t, newFakeBackend())

	_, err := client.Spawn(context.Background(), SpawnSpec{ID: "s1", Command: "missing-binary"})
	var spawnErr *SpawnError
	if !errors.As(err, &spawnErr) {
		t.Fatalf("Spawn err = %v, want *SpawnError", err)
	}
	if spawnErr.ID != "s1" {
		t.Errorf("SpawnError.ID = %q, want s1", spawnErr.ID)
	}
}

func TestClientSubscribeStream(t *testing.T) {
	fake := newFakeBackend()
	client := startServer(t, fake)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if _, err := client.Spawn(ctx, SpawnSpec{ID: "s1", Command: "bash"}); err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	if err := client.Write(ctx, "s1", []byte("hello world")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	events, err := client.Subscribe(ctx, "s1", 6)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	var got []Event
	for ev := range events {
		got = append(got, ev)
	}
	if len(got) != 2 {
		t.Fatalf("got %d events, want 2: %+v", len(got), got)
	}
	if got[0].Kind != EventOutput || string(got[0].Data) != "world" || got[0].Offset != 6 {
		t.Errorf("first event = %+v, want output %q at 6", got[0], "world")
	}
	if got[1].Kind != EventClosed || got[1].Offset != 11 {
		t.Errorf("second event = %+v, want closed at 11", got[1])
	}
}

func TestClientUnreachable(t *testing.T) {
	dir, err := os.MkdirTemp("", "adt")
	if err != nil {
		t.Fatalf("MkdirTemp: %v", err)
	}
	defer os.RemoveAll(dir)

	client := NewClient(filepath.Join(dir, "absent.sock"), 200*time.Millisecond)
	err = client.Health(context.Background())
	if !IsUnreachable(err) {
		t.Errorf("Health err = %v, want unreachable", err)
	}

	_, err = Connect(context.Background(), filepath.Join(dir, "absent.sock"), false, "", 0)
	if !IsUnreachable(err) {
		t.Errorf("Connect without autostart err = %v, want unreachable", err)
	}
}

func TestServerRefusesLiveSocket(t *testing.T) {
	client := startServer(t, newFakeBackend())

	second := NewServer(newFakeBackend(), client.Socket(), nil)
	err := second.Start(context.Background())
	if err == nil {
		t.Fatal("second Start succeeded, want already listening error")
	}
}
