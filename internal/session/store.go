package session

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// MaxRecent is how many recent configurations are kept.
const MaxRecent = 10

// RecentStore provides SQLite-backed persistence for recently opened
// session configurations.
type RecentStore struct {
	db *sql.DB
}

// NewRecentStore opens the SQLite database at dbPath and creates tables if
// they don't exist.
func NewRecentStore(dbPath string) (*RecentStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := createTables(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return &RecentStore{db: db}, nil
}

// Close closes the database connection.
func (s *RecentStore) Close() error {
	return s.db.Close()
}

func createTables(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS recent_sessions (
		project TEXT NOT NULL,
		role TEXT NOT NULL,
		agent TEXT NOT NULL,
		spec_ref TEXT NOT NULL DEFAULT '',
		command TEXT NOT NULL DEFAULT '',
		opened_at INTEGER NOT NULL,
		UNIQUE (project, role, agent)
	);
	`
	_, err := db.Exec(schema)
	return err
}

// Add records e as the most recent entry, replacing any entry with the
// same project, role and agent, and trims the list to MaxRecent.
func (s *RecentStore) Add(e RecentEntry) error {
	if e.OpenedAt.IsZero() {
		e.OpenedAt = time.Now()
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin recent update: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.Exec(
		`INSERT INTO recent_sessions (project, role, agent, spec_ref, command, opened_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (project, role, agent) DO UPDATE SET
		   spec_ref = excluded.spec_ref,
		   command = excluded.command,
		   opened_at = excluded.opened_at`,
		e.Project, e.Role, string(e.Agent), e.SpecRef, e.Command, e.OpenedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("upsert recent session: %w", err)
	}

	_, err = tx.Exec(
		`DELETE FROM recent_sessions WHERE rowid NOT IN (
		   SELECT rowid FROM recent_sessions ORDER BY opened_at DESC LIMIT ?
		 )`,
		MaxRecent,
	)
	if err != nil {
		return fmt.Errorf("trim recent sessions: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit recent update: %w", err)
	}
	return nil
}

// List returns the remembered entries, most recent first.
func (s *RecentStore) List() ([]RecentEntry, error) {
	rows, err := s.db.Query(
		`SELECT project, role, agent, spec_ref, command, opened_at
		 FROM recent_sessions
		 ORDER BY opened_at DESC
		 LIMIT ?`,
		MaxRecent,
	)
	if err != nil {
		return nil, fmt.Errorf("query recent sessions: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// Prune removes the entries opened before cutoff and returns them, oldest
// first. With dryRun nothing is deleted.
func (s *RecentStore) Prune(cutoff time.Time, dryRun bool) ([]RecentEntry, error) {
	rows, err := s.db.Query(
		`SELECT project, role, agent, spec_ref, command, opened_at
		 FROM recent_sessions
		 WHERE opened_at < ?
		 ORDER BY opened_at ASC`,
		cutoff.UnixNano(),
	)
	if err != nil {
		return nil, fmt.Errorf("query stale sessions: %w", err)
	}
	entries, err := scanEntries(rows)
	rows.Close()
	if err != nil || dryRun || len(entries) == 0 {
		return entries, err
	}

	if _, err := s.db.Exec(`DELETE FROM recent_sessions WHERE opened_at < ?`, cutoff.UnixNano()); err != nil {
		return nil, fmt.Errorf("prune recent sessions: %w", err)
	}
	return entries, nil
}

func scanEntries(rows *sql.Rows) ([]RecentEntry, error) {
	var entries []RecentEntry
	for rows.Next() {
		var (
			e        RecentEntry
			agent    string
			openedAt int64
		)
		if err := rows.Scan(&e.Project, &e.Role, &agent, &e.SpecRef, &e.Command, &openedAt); err != nil {
			return nil, fmt.Errorf("scan recent session: %w", err)
		}
		e.Agent = AgentKind(agent)
		e.OpenedAt = time.Unix(0, openedAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
