// Package governance fetches whole-state snapshots of the ADT governance
// model (tasks, specs, delegations, the ADS event log, phases) from ADT
// Center, falling back to the project's local _cortex files when the
// service cannot be reached.
package governance

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"
)

var (
	// ErrServiceUnreachable means the governance service could not be
	// contacted at all, as opposed to answering with an error.
	ErrServiceUnreachable = errors.New("governance service unreachable")
	// ErrNotFound means a local project file does not exist.
	ErrNotFound = errors.New("file not found")
	// ErrOutsideRoot means a local path escapes the project root.
	ErrOutsideRoot = errors.New("path outside project root")
)

// Task statuses.
const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
)

// StringList decodes either a JSON array of strings or a single string.
type StringList []string

func (l *StringList) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*l = list
		return nil
	}
	var single string
	if err := json.Unmarshal(data, &single); err != nil {
		return fmt.Errorf("want string or list of strings: %w", err)
	}
	if single == "" {
		*l = nil
	} else {
		*l = StringList{single}
	}
	return nil
}

// Contains reports whether s is in the list.
func (l StringList) Contains(s string) bool {
	for _, v := range l {
		if v == s {
			return true
		}
	}
	return false
}

// Actor identifies who did something.
type Actor struct {
	Role  string `json:"role"`
	Agent string `json:"agent"`
}

// TaskDelegation is the delegation metadata carried on a task.
type TaskDelegation struct {
	DelegatedBy Actor  `json:"delegated_by"`
	TS          string `json:"ts,omitempty"`
}

// Task is one unit of governed work.
type Task struct {
	ID         string          `json:"id"`
	Title      string          `json:"title"`
	Status     string          `json:"status"`
	AssignedTo StringList      `json:"assigned_to"`
	DependsOn  StringList      `json:"depends_on,omitempty"`
	SpecRef    string          `json:"spec_ref,omitempty"`
	Priority   json.RawMessage `json:"priority,omitempty"`
	Evidence   string          `json:"evidence,omitempty"`
	Delegation *TaskDelegation `json:"delegation,omitempty"`
}

// PriorityText renders the priority whether it was sent as a string or a
// number.
func (t *Task) PriorityText() string {
	if len(t.Priority) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(t.Priority, &s); err == nil {
		return s
	}
	return string(t.Priority)
}

// Spec is a specification document known to the governance service.
type Spec struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Status   string `json:"status"`
	Filename string `json:"filename,omitempty"`
}

// SpecSet decodes the specs payload, which is either a map keyed by id or
// a list of specs.
type SpecSet map[string]Spec

func (s *SpecSet) UnmarshalJSON(data []byte) error {
	var byID map[string]Spec
	if err := json.Unmarshal(data, &byID); err == nil {
		for id, spec := range byID {
			if spec.ID == "" {
				spec.ID = id
				byID[id] = spec
			}
		}
		*s = byID
		return nil
	}
	var list []Spec
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("specs: want map or list: %w", err)
	}
	out := make(SpecSet, len(list))
	for _, spec := range list {
		out[spec.ID] = spec
	}
	*s = out
	return nil
}

// Delegation is one recorded hand-off of a task between roles.
type Delegation struct {
	TaskID string `json:"task_id"`
	From   string `json:"from"`
	To     string `json:"to"`
	Action string `json:"action"`
	TS     string `json:"ts,omitempty"`
}

// Event is one entry of the append-only ADS event log.
type Event struct {
	EventID     string `json:"event_id"`
	TS          string `json:"ts"`
	Agent       string `json:"agent"`
	Role        string `json:"role"`
	ActionType  string `json:"action_type"`
	Description string `json:"description"`
	SpecRef     string `json:"spec_ref,omitempty"`
	Authorized  *bool  `json:"authorized,omitempty"`
}

// Request is an operator-facing governance request.
type Request struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	Summary string `json:"summary"`
	Author  string `json:"author"`
}

// Phase groups specs into a delivery stage.
type Phase struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Status string   `json:"status"`
	Specs  []string `json:"specs"`
}

// Source says where a snapshot came from.
type Source string

const (
	SourceRemote  Source = "remote"
	SourceLocal   Source = "local"
	SourceOffline Source = "offline"
)

// Slice names one independently fetched part of a snapshot.
type Slice string

const (
	SliceTasks       Slice = "tasks"
	SliceSpecs       Slice = "specs"
	SliceDelegations Slice = "delegations"
	SliceEvents      Slice = "events"
	SlicePhases      Slice = "phases"
	SliceRequests    Slice = "requests"
	SliceDTTP        Slice = "dttp"
)

// remoteSlices are fetched from the service on every refresh.
var remoteSlices = []Slice{SliceTasks, SliceSpecs, SliceDelegations, SliceEvents, SliceRequests, SliceDTTP}

// DegradedError records that one slice could not be fetched; the slice is
// empty in the snapshot.
type DegradedError struct {
	Slice Slice
	Err   error
}

func (e *DegradedError) Error() string {
	return fmt.Sprintf("%s degraded: %v", e.Slice, e.Err)
}

func (e *DegradedError) Unwrap() error {
	return e.Err
}

// Snapshot is a full replacement of governance state at one point in time.
type Snapshot struct {
	Tasks       []Task
	Specs       SpecSet
	Delegations []Delegation
	Events      []Event
	Phases      []Phase
	Requests    []Request
	DTTPStatus  string

	Source    Source
	FetchedAt time.Time
	Degraded  map[Slice]*DegradedError
	// Seq orders snapshots produced by one Fetcher.
	Seq uint64
}

// IsDegraded reports whether slice failed in this snapshot.
func (s *Snapshot) IsDegraded(slice Slice) bool {
	if s == nil {
		return true
	}
	_, ok := s.Degraded[slice]
	return ok
}

// DegradedSlices lists failed slices in name order.
func (s *Snapshot) DegradedSlices() []Slice {
	out := make([]Slice, 0, len(s.Degraded))
	for slice := range s.Degraded {
		out = append(out, slice)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Task returns the task with id, or nil.
func (s *Snapshot) Task(id string) *Task {
	for i := range s.Tasks {
		if s.Tasks[i].ID == id {
			return &s.Tasks[i]
		}
	}
	return nil
}

func (s *Snapshot) degrade(slice Slice, err error) {
	if s.Degraded == nil {
		s.Degraded = make(map[Slice]*DegradedError)
	}
	s.Degraded[slice] = &DegradedError{Slice: slice, Err: err}
}
