package session

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"
)

func openRecent(t *testing.T) *RecentStore {
	t.Helper()
	store, err := NewRecentStore(filepath.Join(t.TempDir(), "recent.db"))
	if err != nil {
		t.Fatalf("NewRecentStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestRecentStoreCapAndUniqueness(t *testing.T) {
	store := openRecent(t)
	base := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)

	for i := 0; i < 15; i++ {
		e := RecentEntry{
			Project:  "/work/adt",
			Role:     fmt.Sprintf("Role_%d", i),
			Agent:    AgentClaude,
			OpenedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := store.Add(e); err != nil {
			t.Fatalf("Add(%d): %v", i, err)
		}
	}
	// Reopening an old configuration moves it to the front instead of
	// adding a duplicate.
	if err := store.Add(RecentEntry{
		Project:  "/work/adt",
		Role:     "Role_9",
		Agent:    AgentClaude,
		SpecRef:  "SPEC-021",
		OpenedAt: base.Add(time.Hour),
	}); err != nil {
		t.Fatalf("Add(reopen): %v", err)
	}

	entries, err := store.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != MaxRecent {
		t.Fatalf("len = %d, want %d", len(entries), MaxRecent)
	}
	if entries[0].Role != "Role_9" || entries[0].SpecRef != "SPEC-021" {
		t.Errorf("first = %+v, want reopened Role_9 with SPEC-021", entries[0])
	}

	seen := make(map[string]bool)
	for i, e := range entries {
		key := e.Project + "|" + e.Role + "|" + string(e.Agent)
		if seen[key] {
			t.Errorf("duplicate entry %s", key)
		}
		seen[key] = true
		if i > 0 && e.OpenedAt.After(entries[i-1].OpenedAt) {
			t.Errorf("entry %d newer than entry %d", i, i-1)
		}
	}
}

func TestRecentStoreAgentIsPartOfKey(t *testing.T) {
	store := openRecent(t)
	for _, kind := range []AgentKind{AgentClaude, AgentGemini} {
		if err := store.Add(RecentEntry{Project: "/p", Role: "Overseer", Agent: kind}); err != nil {
			t.Fatalf("Add(%s): %v", kind, err)
		}
	}
	entries, err := store.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("len = %d, want 2", len(entries))
	}
}

func TestRecentStorePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recent.db")
	store, err := NewRecentStore(path)
	if err != nil {
		t.Fatalf("NewRecentStore: %v", err)
	}
	if err := store.Add(RecentEntry{Project: "/p", Role: "Overseer", Agent: AgentGemini, Command: "gemini -i"}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	store.Close()

	store, err = NewRecentStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer store.Close()
	entries, err := store.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 1 || entries[0].Agent != AgentGemini || entries[0].Command != "gemini -i" {
		t.Errorf("entries = %+v", entries)
	}
}

func TestRecentStorePrune(t *testing.T) {
	store := openRecent(t)
	base := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	for i, role := range []string{"Old_A", "Old_B", "Fresh"} {
		opened := base.Add(time.Duration(i) * time.Hour)
		if role == "Fresh" {
			opened = base.AddDate(0, 0, 40)
		}
		if err := store.Add(RecentEntry{Project: "/p", Role: role, Agent: AgentClaude, OpenedAt: opened}); err != nil {
			t.Fatalf("Add(%s): %v", role, err)
		}
	}
	cutoff := base.AddDate(0, 0, 10)

	preview, err := store.Prune(cutoff, true)
	if err != nil {
		t.Fatalf("Prune dry run: %v", err)
	}
	if len(preview) != 2 || preview[0].Role != "Old_A" || preview[1].Role != "Old_B" {
		t.Fatalf("dry run = %+v, want Old_A, Old_B", preview)
	}
	if entries, _ := store.List(); len(entries) != 3 {
		t.Fatalf("dry run deleted entries: %d left", len(entries))
	}

	pruned, err := store.Prune(cutoff, false)
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if len(pruned) != 2 {
		t.Errorf("pruned %d, want 2", len(pruned))
	}
	entries, err := store.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 1 || entries[0].Role != "Fresh" {
		t.Errorf("entries = %+v, want only Fresh", entries)
	}
}
