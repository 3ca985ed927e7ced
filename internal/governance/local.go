package governance

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"
)

// Project-relative locations of the governance files.
const (
	TasksFile    = "_cortex/tasks.json"
	SpecsFile    = "config/specs.json"
	EventsFile   = "_cortex/ads/events.jsonl"
	PhasesFile   = "_cortex/phases.json"
	RequestsFile = "_cortex/requests.md"
)

// LocalReader reads governance files from a project checkout.
type LocalReader struct {
	root string
}

// NewLocalReader creates a reader rooted at root.
func NewLocalReader(root string) *LocalReader {
	return &LocalReader{root: filepath.Clean(root)}
}

// Root returns the project root.
func (r *LocalReader) Root() string {
	return r.root
}

// Resolve maps a project-relative path to an absolute one, rejecting
// anything that would land outside the root.
func (r *LocalReader) Resolve(rel string) (string, error) {
	if filepath.IsAbs(rel) {
		return "", fmt.Errorf("%s: %w", rel, ErrOutsideRoot)
	}
	abs := filepath.Join(r.root, rel)
	within, err := filepath.Rel(r.root, abs)
	if err != nil || within == ".." || strings.HasPrefix(within, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%s: %w", rel, ErrOutsideRoot)
	}
	return abs, nil
}

// Read returns the content of a project-relative file.
func (r *LocalReader) Read(rel string) ([]byte, error) {
	abs, err := r.Resolve(rel)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", rel, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rel, err)
	}
	return data, nil
}

// readJSON reads a file leniently: comments and trailing commas are
// tolerated.
func (r *LocalReader) readJSON(rel string, v any) error {
	data, err := r.Read(rel)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(jsonc.ToJSON(data), v); err != nil {
		return fmt.Errorf("parse %s: %w", rel, err)
	}
	return nil
}

// Tasks reads _cortex/tasks.json, either {"tasks": [...]} or a bare list.
func (r *LocalReader) Tasks() ([]Task, error) {
	var raw json.RawMessage
	if err := r.readJSON(TasksFile, &raw); err != nil {
		return nil, err
	}
	if strings.HasPrefix(strings.TrimSpace(string(raw)), "[") {
		var tasks []Task
		if err := json.Unmarshal(raw, &tasks); err != nil {
			return nil, fmt.Errorf("parse %s: %w", TasksFile, err)
		}
		return tasks, nil
	}
	var wrapped struct {
		Tasks []Task `json:"tasks"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, fmt.Errorf("parse %s: %w", TasksFile, err)
	}
	return wrapped.Tasks, nil
}

// Specs reads config/specs.json.
func (r *LocalReader) Specs() (SpecSet, error) {
	var wrapped struct {
		Specs SpecSet `json:"specs"`
	}
	if err := r.readJSON(SpecsFile, &wrapped); err != nil {
		return nil, err
	}
	return wrapped.Specs, nil
}

// Events reads the ADS log, one JSON object per line. Lines that do not
// parse are skipped, matching how a partially written log is tolerated.
func (r *LocalReader) Events() ([]Event, error) {
	data, err := r.Read(EventsFile)
	if err != nil {
		return nil, err
	}
	var events []Event
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var ev Event
		if err := json.Unmarshal(line, &ev); err != nil {
			continue
		}
		events = append(events, ev)
	}
	if err := scanner.Err(); err != nil {
		return events, fmt.Errorf("scan %s: %w", EventsFile, err)
	}
	return events, nil
}

// Phases reads _cortex/phases.json.
func (r *LocalReader) Phases() ([]Phase, error) {
	var wrapped struct {
		Phases []Phase `json:"phases"`
	}
	if err := r.readJSON(PhasesFile, &wrapped); err != nil {
		return nil, err
	}
	return wrapped.Phases, nil
}

// DefaultPhases is the phase tree used when the project does not define one.
func DefaultPhases() []Phase {
	return []Phase{
		{ID: "1", Name: "Core Engines", Status: "completed",
			Specs: []string{"SPEC-014", "SPEC-015", "SPEC-016", "SPEC-017"}},
		{ID: "1.5", Name: "Hardening + Service Extraction", Status: "active",
			Specs: []string{"SPEC-018", "SPEC-019", "SPEC-020"}},
		{ID: "2", Name: "Operator Console", Status: "active",
			Specs: []string{"SPEC-021", "SPEC-013", "SPEC-003"}},
		{ID: "3", Name: "Production & Distribution", Status: "planned",
			Specs: []string{"SPEC-022", "SPEC-023", "SPEC-024"}},
	}
}
