package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/adt-framework/adt-console/internal/metrics"
	"github.com/adt-framework/adt-console/internal/scrollback"
)

// killGrace is how long Close waits after SIGTERM before SIGKILL.
const killGrace = 2 * time.Second

// ManagerOptions configures a Manager.
type ManagerOptions struct {
	// ScrollbackBytes sizes each session's replay buffer.
	ScrollbackBytes int
	// DTTPURL is exported to agents as DTTP_URL.
	DTTPURL string
	// Path overrides the PATH used to resolve and run agent commands.
	// Empty means resolve the user's login shell PATH once.
	Path   string
	Logger *slog.Logger
}

// Manager is an in-process Backend running each session on its own PTY.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*ptySession
	opts     ManagerOptions
	path     string
	pathOnce sync.Once
	log      *slog.Logger
}

type ptySession struct {
	mu     sync.Mutex
	desc   Descriptor
	master *os.File
	cmd    *exec.Cmd
	out    *scrollback.Buffer
	wakers map[chan struct{}]struct{}
	exited chan struct{}
}

// NewManager creates an empty Manager.
func NewManager(opts ManagerOptions) *Manager {
	if opts.ScrollbackBytes <= 0 {
		opts.ScrollbackBytes = scrollback.DefaultSize
	}
	if opts.DTTPURL == "" {
		opts.DTTPURL = "http://localhost:5002"
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Manager{
		sessions: make(map[string]*ptySession),
		opts:     opts,
		log:      logger,
	}
}

// Spawn starts spec.Command on a fresh PTY.
func (m *Manager) Spawn(_ context.Context, spec SpawnSpec) (Descriptor, error) {
	fail := func(err error) (Descriptor, error) {
		metrics.RecordSpawn("error")
		return Descriptor{}, &SpawnError{ID: spec.ID, Command: spec.Command, Err: err}
	}
	if spec.ID == "" || spec.Command == "" {
		return fail(errors.New("id and command are required"))
	}
	if spec.Cols == 0 || spec.Rows == 0 {
		spec.Cols, spec.Rows = DefaultCols, DefaultRows
	}

	m.mu.Lock()
	_, exists := m.sessions[spec.ID]
	m.mu.Unlock()
	if exists {
		return fail(ErrSessionExists)
	}

	master, slavePath, err := openPTY()
	if err != nil {
		return fail(err)
	}
	slave, err := os.OpenFile(slavePath, os.O_RDWR|syscall.O_NOCTTY, 0)
	if err != nil {
		master.Close()
		return fail(fmt.Errorf("open pty slave: %w", err))
	}
	if err := setWindowSize(master, spec.Cols, spec.Rows); err != nil {
		slave.Close()
		master.Close()
		return fail(fmt.Errorf("set window size: %w", err))
	}

	userPath := m.userPath()
	cmd := exec.Command(m.resolveCommand(spec.Command, userPath), spec.Args...)
	cmd.Dir = spec.Cwd
	cmd.Env = m.environ(spec, userPath)
	cmd.Stdin = slave
	cmd.Stdout = slave
	cmd.Stderr = slave
	attachTerminal(cmd)

	if err := cmd.Start(); err != nil {
		slave.Close()
		master.Close()
		return fail(fmt.Errorf("start %s: %w", spec.Command, err))
	}
	// The child holds its own copies of the slave.
	slave.Close()

	s := &ptySession{
		desc: Descriptor{
			ID:        spec.ID,
			Project:   spec.Project,
			Agent:     spec.Agent,
			Role:      spec.Role,
			SpecRef:   spec.SpecRef,
			Command:   spec.Command,
			Args:      append([]string(nil), spec.Args...),
			Cwd:       spec.Cwd,
			Pid:       cmd.Process.Pid,
			Cols:      spec.Cols,
			Rows:      spec.Rows,
			CreatedAt: time.Now().UTC(),
			Alive:     true,
		},
		master: master,
		cmd:    cmd,
		out:    scrollback.New(m.opts.ScrollbackBytes),
		wakers: make(map[chan struct{}]struct{}),
		exited: make(chan struct{}),
	}

	m.mu.Lock()
	m.sessions[spec.ID] = s
	count := len(m.sessions)
	m.mu.Unlock()
	metrics.RecordSpawn("ok")
	metrics.SetBackendSessions(count)

	go m.pump(s)

	m.log.Info("session spawned", "id", spec.ID, "command", spec.Command, "pid", s.desc.Pid)
	return s.descriptor(), nil
}

// pump copies PTY output into the scrollback until the process exits.
func (m *Manager) pump(s *ptySession) {
	buf := make([]byte, 32*1024)
	for {
		n, err := s.master.Read(buf)
		if n > 0 {
			s.out.Write(buf[:n])
			s.wake()
		}
		if err != nil {
			// EIO once the last slave fd closes.
			break
		}
	}

	exitCode := 0
	if err := s.cmd.Wait(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
		}
	}

	s.mu.Lock()
	s.desc.Alive = false
	s.desc.ExitCode = exitCode
	s.mu.Unlock()
	close(s.exited)
	m.log.Info("session exited", "id", s.desc.ID, "exit_code", exitCode)
}

// Write forwards input bytes to the session's PTY.
func (m *Manager) Write(_ context.Context, id string, data []byte) error {
	s, err := m.lookup(id)
	if err != nil {
		return err
	}
	if _, err := s.master.Write(data); err != nil {
		return fmt.Errorf("write %s: %w", id, err)
	}
	return nil
}

// Resize sets the session's terminal dimensions.
func (m *Manager) Resize(_ context.Context, id string, cols, rows uint16) error {
	s, err := m.lookup(id)
	if err != nil {
		return err
	}
	if err := setWindowSize(s.master, cols, rows); err != nil {
		return fmt.Errorf("resize %s: %w", id, err)
	}
	s.mu.Lock()
	s.desc.Cols, s.desc.Rows = cols, rows
	s.mu.Unlock()
	return nil
}

// Close terminates the session's process group and forgets the session.
func (m *Manager) Close(ctx context.Context, id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	count := len(m.sessions)
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("close %s: %w", id, ErrUnknownSession)
	}
	metrics.SetBackendSessions(count)

	select {
	case <-s.exited:
	default:
		_ = signalGroup(s.desc.Pid, syscall.SIGHUP)
		_ = signalGroup(s.desc.Pid, syscall.SIGTERM)
		timer := time.NewTimer(killGrace)
		select {
		case <-s.exited:
		case <-timer.C:
			_ = signalGroup(s.desc.Pid, syscall.SIGKILL)
		case <-ctx.Done():
			_ = signalGroup(s.desc.Pid, syscall.SIGKILL)
		}
		timer.Stop()
	}
	s.master.Close()
	s.wake()
	m.log.Info("session closed", "id", id)
	return nil
}

// List returns all sessions ordered by creation time, oldest first.
func (m *Manager) List(_ context.Context) ([]Descriptor, error) {
	m.mu.Lock()
	out := make([]Descriptor, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s.descriptor())
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// Subscribe streams the session's output from offset from. Output retained
// in the scrollback is replayed first, so a late subscriber sees history.
func (m *Manager) Subscribe(ctx context.Context, id string, from uint64) (<-chan Event, error) {
	s, err := m.lookup(id)
	if err != nil {
		return nil, err
	}

	events := make(chan Event, 16)
	wake := s.addWaker()
	go func() {
		defer close(events)
		defer s.removeWaker(wake)

		send := func(ev Event) bool {
			select {
			case events <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		offset := from
		flush := func() bool {
			data, start := s.out.Since(offset)
			if len(data) == 0 {
				return true
			}
			offset = start + uint64(len(data))
			return send(Event{Kind: EventOutput, Data: data, Offset: start})
		}

		for {
			if !flush() {
				return
			}
			select {
			case <-wake:
			case <-s.exited:
				if !flush() {
					return
				}
				s.mu.Lock()
				code := s.desc.ExitCode
				s.mu.Unlock()
				send(Event{Kind: EventClosed, Offset: offset, ExitCode: code})
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	return events, nil
}

// Shutdown closes every session.
func (m *Manager) Shutdown(ctx context.Context) {
	descs, _ := m.List(ctx)
	for _, d := range descs {
		_ = m.Close(ctx, d.ID)
	}
}

func (m *Manager) lookup(id string) (*ptySession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, ErrUnknownSession)
	}
	return s, nil
}

func (m *Manager) environ(spec SpawnSpec, userPath string) []string {
	env := os.Environ()
	env = append(env,
		"ADT_AGENT="+spec.Agent,
		"ADT_ROLE="+spec.Role,
		"ADT_SPEC_ID="+spec.SpecRef,
		"DTTP_URL="+m.opts.DTTPURL,
		"TERM=xterm-256color",
		"PATH="+userPath,
	)
	if spec.Cwd != "" {
		env = append(env, "CLAUDE_PROJECT_DIR="+spec.Cwd, "GEMINI_PROJECT_DIR="+spec.Cwd)
	}
	return env
}

// userPath returns the PATH agents run with. Consoles started from a
// desktop launcher inherit a minimal PATH, so the login shell is asked once.
func (m *Manager) userPath() string {
	m.pathOnce.Do(func() {
		if m.opts.Path != "" {
			m.path = m.opts.Path
			return
		}
		shell := os.Getenv("SHELL")
		if shell == "" {
			shell = "/bin/bash"
		}
		out, err := exec.Command(shell, "-l", "-c", "echo $PATH").Output()
		if p := strings.TrimSpace(string(out)); err == nil && p != "" {
			m.path = p
			return
		}
		home, _ := os.UserHomeDir()
		m.path = strings.Join([]string{
			filepath.Join(home, ".npm-global", "bin"),
			filepath.Join(home, ".cargo", "bin"),
			filepath.Join(home, ".local", "bin"),
			os.Getenv("PATH"),
		}, string(os.PathListSeparator))
	})
	return m.path
}

// resolveCommand finds command on userPath, falling back to the bare name.
func (m *Manager) resolveCommand(command, userPath string) string {
	if filepath.IsAbs(command) {
		return command
	}
	for _, dir := range filepath.SplitList(userPath) {
		candidate := filepath.Join(dir, command)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate
		}
	}
	return command
}

func (s *ptySession) descriptor() Descriptor {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.desc
	d.Args = append([]string(nil), s.desc.Args...)
	return d
}

func (s *ptySession) addWaker() chan struct{} {
	ch := make(chan struct{}, 1)
	s.mu.Lock()
	s.wakers[ch] = struct{}{}
	s.mu.Unlock()
	return ch
}

func (s *ptySession) removeWaker(ch chan struct{}) {
	s.mu.Lock()
	delete(s.wakers, ch)
	s.mu.Unlock()
}

// wake nudges every subscriber without blocking; a pending nudge already
// covers any bytes written since.
func (s *ptySession) wake() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.wakers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
