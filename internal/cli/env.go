package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/adt-framework/adt-console/internal/backend"
	"github.com/adt-framework/adt-console/internal/config"
	"github.com/adt-framework/adt-console/internal/detect"
	"github.com/adt-framework/adt-console/internal/governance"
	"github.com/adt-framework/adt-console/internal/log"
	"github.com/adt-framework/adt-console/internal/session"
)

// daemonWait bounds how long an autostarted daemon has to come up.
const daemonWait = 5 * time.Second

// recentDB is the recent-sessions database inside the console directory.
const recentDB = "recent.db"

// env is what every command loads: the console directory, its config and
// the two logs.
type env struct {
	dir    string
	cfg    *config.Config
	logger *slog.Logger
	closer io.Closer
	audit  *log.Logger
}

func loadEnv() (*env, error) {
	dir := homeDir
	if dir == "" {
		d, err := config.Dir()
		if err != nil {
			return nil, err
		}
		dir = d
	}
	cfg, err := config.Load(dir)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if cfg.Project.Root == "" {
		if wd, err := os.Getwd(); err == nil {
			if root, ok := detect.ProjectRoot(wd); ok {
				cfg.Project.Root = root
			}
		}
	}

	logger, closer, err := log.NewDiagnostics(dir, cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	audit, err := log.NewLogger(dir)
	if err != nil {
		closer.Close()
		return nil, err
	}
	return &env{dir: dir, cfg: cfg, logger: logger, closer: closer, audit: audit}, nil
}

func (e *env) Close() {
	_ = e.closer.Close()
}

// service returns the governance client, or nil when no URL is set.
func (e *env) service() governance.Service {
	if e.cfg.Center.URL == "" {
		return nil
	}
	return governance.NewClient(e.cfg.Center.URL, e.cfg.Center.Timeout())
}

// fetcher builds a standalone governance fetcher for the headless commands.
func (e *env) fetcher() *governance.Fetcher {
	var local *governance.LocalReader
	if e.cfg.Project.Root != "" {
		local = governance.NewLocalReader(e.cfg.Project.Root)
	}
	return governance.NewFetcher(e.service(), governance.FetcherOptions{
		Local:   local,
		Timeout: e.cfg.Center.Timeout(),
		Logger:  e.logger.With("component", "fetcher"),
	})
}

// openRecents opens the recent-sessions store. A store that cannot be
// opened only costs the recents list, so it is logged and skipped.
func (e *env) openRecents() *session.RecentStore {
	store, err := session.NewRecentStore(filepath.Join(e.dir, recentDB))
	if err != nil {
		e.logger.Warn("recent sessions unavailable", "error", err)
		return nil
	}
	return store
}

// manager builds an in-process PTY backend from the config.
func (e *env) manager() *backend.Manager {
	return backend.NewManager(backend.ManagerOptions{
		ScrollbackBytes: e.cfg.Terminal.ScrollbackBytes,
		Logger:          e.logger.With("component", "backend"),
	})
}

// openBackend connects to the daemon, starting it when allowed, or runs
// an embedded backend. release undoes whatever openBackend set up.
func (e *env) openBackend(ctx context.Context) (be backend.Backend, release func(), err error) {
	if e.cfg.Backend.Mode == config.BackendEmbedded {
		m := e.manager()
		return m, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			m.Shutdown(ctx)
		}, nil
	}

	socket := e.cfg.SocketPath(e.dir)
	c, err := backend.Connect(ctx, socket, e.cfg.Backend.Autostart, "", daemonWait)
	if err != nil {
		if backend.IsUnreachable(err) {
			return nil, nil, fmt.Errorf("backend daemon not running at %s (start it with: adt-console daemon): %w", socket, err)
		}
		return nil, nil, err
	}
	return c, func() {}, nil
}

// daemonClient connects to a running daemon without starting one.
func (e *env) daemonClient(ctx context.Context) (*backend.Client, error) {
	socket := e.cfg.SocketPath(e.dir)
	c, err := backend.Connect(ctx, socket, false, "", 0)
	if err != nil {
		return nil, fmt.Errorf("backend daemon not running at %s: %w", socket, err)
	}
	return c, nil
}
