package artifact

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore persists artifacts in a SQLite database file.
type SQLiteStore struct {
	notifier
	db *sql.DB
}

// OpenSQLite opens or creates the artifact database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create artifact db directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open artifact db: %w", err)
	}
	// sqlite serializes writers anyway; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	_, err = db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS artifacts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			path TEXT NOT NULL,
			category TEXT NOT NULL,
			created_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS artifacts_path_category ON artifacts (path, category);
		CREATE TABLE IF NOT EXISTS artifact_attributes (
			artifact_id INTEGER NOT NULL REFERENCES artifacts(id),
			seq INTEGER NOT NULL,
			name TEXT NOT NULL,
			value TEXT NOT NULL,
			PRIMARY KEY (artifact_id, seq)
		);
		CREATE TABLE IF NOT EXISTS artifact_index (
			artifact_id INTEGER PRIMARY KEY REFERENCES artifacts(id),
			content TEXT NOT NULL,
			indexed_at INTEGER NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create artifact tables: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Existing(ctx context.Context, path, category string) ([]Artifact, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id FROM artifacts WHERE path = ? AND category = ? ORDER BY id",
		path, category,
	)
	if err != nil {
		return nil, fmt.Errorf("query artifacts: %w", err)
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	out := make([]Artifact, 0, len(ids))
	for _, id := range ids {
		attrs, err := s.attributes(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, Artifact{ID: id, Path: path, Category: category, Attributes: attrs})
	}
	return out, nil
}

func (s *SQLiteStore) attributes(ctx context.Context, id int64) ([]Attribute, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT name, value FROM artifact_attributes WHERE artifact_id = ? ORDER BY seq", id)
	if err != nil {
		return nil, fmt.Errorf("query attributes: %w", err)
	}
	defer rows.Close()
	var attrs []Attribute
	for rows.Next() {
		var a Attribute
		if err := rows.Scan(&a.Name, &a.Value); err != nil {
			return nil, err
		}
		attrs = append(attrs, a)
	}
	return attrs, rows.Err()
}

func (s *SQLiteStore) New(ctx context.Context, path, category string) (*Artifact, error) {
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO artifacts (path, category, created_at) VALUES (?, ?, ?)",
		path, category, time.Now().Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert artifact: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &Artifact{ID: id, Path: path, Category: category}, nil
}

func (s *SQLiteStore) AddAttribute(ctx context.Context, a *Artifact, name, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO artifact_attributes (artifact_id, seq, name, value)
		 VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM artifact_attributes WHERE artifact_id = ?), ?, ?)`,
		a.ID, a.ID, name, value,
	)
	if err != nil {
		return fmt.Errorf("insert attribute %s: %w", name, err)
	}
	a.Attributes = append(a.Attributes, Attribute{Name: name, Value: value})
	return nil
}

// Index stores a flattened text form of the artifact for keyword search.
func (s *SQLiteStore) Index(ctx context.Context, a *Artifact) error {
	var b strings.Builder
	b.WriteString(a.Path)
	for _, at := range a.Attributes {
		b.WriteByte('\n')
		b.WriteString(at.Name)
		b.WriteByte('=')
		b.WriteString(at.Value)
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO artifact_index (artifact_id, content, indexed_at) VALUES (?, ?, ?)",
		a.ID, b.String(), time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("index artifact %d: %w", a.ID, err)
	}
	return nil
}

// Search returns ids of indexed artifacts whose text contains term.
func (s *SQLiteStore) Search(ctx context.Context, term string) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT artifact_id FROM artifact_index WHERE instr(content, ?) > 0 ORDER BY artifact_id", term)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
