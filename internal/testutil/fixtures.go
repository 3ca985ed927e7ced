// Package testutil provides test helper utilities for adt-console tests.
package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// TempProject creates a temporary directory with the given files and returns its path.
// Files is a map of relative path -> content. Directories are created as needed.
// The directory is automatically cleaned up when the test finishes.
func TempProject(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()

	for relPath, content := range files {
		absPath := filepath.Join(dir, relPath)
		if err := os.MkdirAll(filepath.Dir(absPath), 0755); err != nil {
			t.Fatalf("creating directory for %s: %v", relPath, err)
		}
		if err := os.WriteFile(absPath, []byte(content), 0644); err != nil {
			t.Fatalf("writing %s: %v", relPath, err)
		}
	}

	return dir
}

// TasksJSON is a _cortex/tasks.json with one task per status, written the
// way projects hand-edit it (comments, trailing commas).
const TasksJSON = `{
  // maintained by the Overseer
  "tasks": [
    {"id": "task-001", "title": "Extract DTTP service", "status": "completed",
     "assigned_to": ["Backend_Engineer"], "spec_ref": "SPEC-019"},
    {"id": "task-002", "title": "Console session bridge", "status": "in_progress",
     "assigned_to": ["Frontend_Engineer"], "spec_ref": "SPEC-021", "priority": "high",
     "delegation": {"delegated_by": {"role": "Systems_Architect", "agent": "CLAUDE"}}},
    {"id": "task-003", "title": "Wire ADS feed", "status": "pending",
     "assigned_to": ["Backend_Engineer"], "depends_on": ["task-001"], "spec_ref": "SPEC-021"},
    {"id": "task-004", "title": "Package installers", "status": "pending",
     "assigned_to": "DevOps_Engineer", "depends_on": ["task-002"], "spec_ref": "SPEC-022"},
  ],
}`

// SpecsJSON is a config/specs.json keyed by spec id.
const SpecsJSON = `{
  "specs": {
    "SPEC-019": {"title": "DTTP Service Extraction", "status": "APPROVED"},
    "SPEC-021": {"title": "Operator Console", "status": "APPROVED"},
    "SPEC-022": {"title": "Distribution", "status": "DRAFT"}
  }
}`

// EventsJSONL is a _cortex/ads/events.jsonl with one unparseable line.
const EventsJSONL = `{"event_id": "evt-1", "ts": "2026-02-10T09:00:00Z", "agent": "CLAUDE", "role": "Backend_Engineer", "action_type": "session_start", "description": "Session started", "spec_ref": "SPEC-019"}
{"event_id": "evt-2", "ts": "2026-02-10T09:05:00Z", "agent": "GEMINI", "role": "DevOps_Engineer", "action_type": "dttp_denied", "description": "Write to /etc denied"
{"event_id": "evt-3", "ts": "2026-02-10T09:06:00Z", "agent": "GEMINI", "role": "DevOps_Engineer", "action_type": "break_glass_escalation", "description": "Break-glass requested", "authorized": false}
{"event_id": "evt-4", "ts": "2026-02-10T09:30:00Z", "agent": "CLAUDE", "role": "Backend_Engineer", "action_type": "task_complete", "description": "task-001 done"}
`

// CortexProject returns the files of a project with governance data.
func CortexProject() map[string]string {
	return map[string]string{
		"_cortex/tasks.json":       TasksJSON,
		"config/specs.json":        SpecsJSON,
		"_cortex/ads/events.jsonl": EventsJSONL,
	}
}

// CortexProjectWithPhases adds a custom phase tree to CortexProject.
func CortexProjectWithPhases() map[string]string {
	files := CortexProject()
	files["_cortex/phases.json"] = `{"phases": [
  {"id": "A", "name": "Bring-up", "status": "active", "specs": ["SPEC-019", "SPEC-021"]}
]}`
	return files
}

// EmptyProject returns an empty directory with no files.
func EmptyProject() map[string]string {
	return map[string]string{}
}
