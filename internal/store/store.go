// Package store persists template designs in SQLite
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/dynodocs/template-engine/pkg/designformat"
)

// ErrNotFound is returned when a template does not exist
var ErrNotFound = errors.New("template not found")

// Template is a stored design
type Template struct {
	ID        string    `json:"templateId"`
	Name      string    `json:"name"`
	Design    string    `json:"templateDesign"`
	UpdatedAt time.Time `json:"updatedAt"`
	UpdatedBy string    `json:"updatedBy,omitempty"`
}

// Summary is a template without its design markup
type Summary struct {
	ID        string    `json:"templateId"`
	Name      string    `json:"name"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Store wraps the SQLite connection
type Store struct {
	conn *sql.DB
}

// Open opens (or creates) the database at path. ":memory:" keeps it in memory.
func Open(path string) (*Store, error) {
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create db directory: %w", err)
		}
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	// one writer; also keeps an in-memory database on a single connection
	conn.SetMaxOpenConns(1)

	s := &Store{conn: conn}
	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}
	return s, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.conn.Close()
}

func (s *Store) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS templates (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			design TEXT NOT NULL,
			updated_at INTEGER NOT NULL,
			updated_by TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_templates_updated ON templates(updated_at)`,
	}
	for _, m := range migrations {
		if _, err := s.conn.Exec(m); err != nil {
			return err
		}
	}
	return nil
}

// Create stores a new template. An empty design stores the blank page.
func (s *Store) Create(ctx context.Context, name, design, userID string) (*Template, error) {
	if strings.TrimSpace(design) == "" {
		markup, err := designformat.Serialize(designformat.Default())
		if err != nil {
			return nil, err
		}
		design = markup
	}

	t := &Template{
		ID:        uuid.NewString(),
		Name:      name,
		Design:    design,
		UpdatedAt: time.Now().UTC().Truncate(time.Millisecond),
		UpdatedBy: userID,
	}
	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO templates (id, name, design, updated_at, updated_by) VALUES (?, ?, ?, ?, ?)`,
		t.ID, t.Name, t.Design, t.UpdatedAt.UnixMilli(), t.UpdatedBy)
	if err != nil {
		return nil, fmt.Errorf("failed to insert template: %w", err)
	}
	return t, nil
}

// Get loads a template by ID
func (s *Store) Get(ctx context.Context, id string) (*Template, error) {
	var t Template
	var updated int64
	err := s.conn.QueryRowContext(ctx,
		`SELECT id, name, design, updated_at, updated_by FROM templates WHERE id = ?`, id).
		Scan(&t.ID, &t.Name, &t.Design, &updated, &t.UpdatedBy)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load template: %w", err)
	}
	t.UpdatedAt = time.UnixMilli(updated).UTC()
	return &t, nil
}

// List returns every template, most recently updated first
func (s *Store) List(ctx context.Context) ([]Summary, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT id, name, updated_at FROM templates ORDER BY updated_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	defer rows.Close()

	out := make([]Summary, 0)
	for rows.Next() {
		var sum Summary
		var updated int64
		if err := rows.Scan(&sum.ID, &sum.Name, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan template: %w", err)
		}
		sum.UpdatedAt = time.UnixMilli(updated).UTC()
		out = append(out, sum)
	}
	return out, rows.Err()
}

// Save replaces the design of an existing template
func (s *Store) Save(ctx context.Context, id, design, userID string) (*Template, error) {
	now := time.Now().UTC().Truncate(time.Millisecond)
	res, err := s.conn.ExecContext(ctx,
		`UPDATE templates SET design = ?, updated_at = ?, updated_by = ? WHERE id = ?`,
		design, now.UnixMilli(), userID, id)
	if err != nil {
		return nil, fmt.Errorf("failed to update template: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to update template: %w", err)
	}
	if n == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s.Get(ctx, id)
}

// Delete removes a template
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.conn.ExecContext(ctx, `DELETE FROM templates WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete template: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// Fingerprints returns the last update time of every template, keyed by ID.
// Watchers compare successive fingerprints to detect changes.
func (s *Store) Fingerprints(ctx context.Context) (map[string]int64, error) {
	rows, err := s.conn.QueryContext(ctx, `SELECT id, updated_at FROM templates`)
	if err != nil {
		return nil, fmt.Errorf("failed to read fingerprints: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var id string
		var updated int64
		if err := rows.Scan(&id, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan fingerprint: %w", err)
		}
		out[id] = updated
	}
	return out, rows.Err()
}
