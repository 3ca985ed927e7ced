package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/adt-framework/adt-console/internal/backend"
)

// MissingCommand makes MemBackend.Spawn fail with a SpawnError.
const MissingCommand = "missing-binary"

// MemBackend is an in-memory backend.Backend. Subscriptions carry no
// output and stay open until their context ends.
type MemBackend struct {
	mu       sync.Mutex
	sessions map[string]backend.Descriptor
	order    []string
	input    map[string][]byte
}

// NewMemBackend returns an empty MemBackend.
func NewMemBackend() *MemBackend {
	return &MemBackend{sessions: make(map[string]backend.Descriptor), input: make(map[string][]byte)}
}

func (m *MemBackend) Spawn(_ context.Context, spec backend.SpawnSpec) (backend.Descriptor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if spec.Command == MissingCommand {
		return backend.Descriptor{}, &backend.SpawnError{ID: spec.ID, Command: spec.Command, Err: fmt.Errorf("not found")}
	}
	d := backend.Descriptor{
		ID: spec.ID, Agent: spec.Agent, Role: spec.Role, SpecRef: spec.SpecRef,
		Command: spec.Command, Cols: spec.Cols, Rows: spec.Rows,
		CreatedAt: time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC), Alive: true,
	}
	m.sessions[spec.ID] = d
	m.order = append(m.order, spec.ID)
	return d, nil
}

func (m *MemBackend) Write(_ context.Context, id string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return backend.ErrUnknownSession
	}
	m.input[id] = append(m.input[id], data...)
	return nil
}

func (m *MemBackend) Resize(context.Context, string, uint16, uint16) error { return nil }

func (m *MemBackend) Close(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

func (m *MemBackend) List(context.Context) ([]backend.Descriptor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []backend.Descriptor
	for _, id := range m.order {
		if d, ok := m.sessions[id]; ok {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *MemBackend) Subscribe(ctx context.Context, _ string, _ uint64) (<-chan backend.Event, error) {
	ch := make(chan backend.Event)
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch, nil
}

// Input returns everything written to session id.
func (m *MemBackend) Input(id string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return string(m.input[id])
}
