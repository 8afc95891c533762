// Package settings persists the small set of user choices that survive
// between runs: tool locations and the duplicate/CSV switches.
package settings

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"pdfsift/logger"
)

// Keys as stored in the settings table.
const (
	KeySignerExec           = "signer_exec_name"
	KeyExiftoolExec         = "exiftool_exec_name"
	KeyDontInsertDuplicates = "dont_insert_duplicates"
	KeyCreateCSV            = "create_CSV_file"
)

// DefaultFileName is the database file name used next to the binary or in
// the configured settings directory.
const DefaultFileName = "SignedPDFs_Settings.db3"

// Values is the typed view of the settings table. Present lists the keys
// that were actually found by Load.
type Values struct {
	SignerPath         string
	ExiftoolPath       string
	SuppressDuplicates bool
	CreateCSV          bool

	Present map[string]bool
}

// Has reports whether key was loaded from the store.
func (v Values) Has(key string) bool {
	return v.Present[key]
}

// Store loads and saves Values.
type Store interface {
	Load(ctx context.Context) (Values, error)
	Save(ctx context.Context, v Values) error
}

// SQLiteStore keeps settings in a `settings(Setting_Name, Setting_Value)`
// table.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens or creates the settings database.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create settings directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open settings db: %w", err)
	}
	db.SetMaxOpenConns(1)
	_, err = db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS settings (
			Setting_Name TEXT NOT NULL,
			Setting_Value TEXT
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create settings table: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Load(ctx context.Context) (Values, error) {
	v := Values{Present: make(map[string]bool)}
	rows, err := s.db.QueryContext(ctx, "SELECT Setting_Name, Setting_Value FROM settings")
	if err != nil {
		return v, fmt.Errorf("read settings: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		var value sql.NullString
		if err := rows.Scan(&name, &value); err != nil {
			return v, fmt.Errorf("read settings: %w", err)
		}
		switch name {
		case KeySignerExec:
			v.SignerPath = value.String
		case KeyExiftoolExec:
			v.ExiftoolPath = value.String
		case KeyDontInsertDuplicates, KeyCreateCSV:
			flag, ok := parseBool(value.String)
			if !ok {
				logger.Warnf("ignoring setting %s=%q: not a boolean", name, value.String)
				continue
			}
			if name == KeyCreateCSV {
				v.CreateCSV = flag
			} else {
				v.SuppressDuplicates = flag
			}
		default:
			continue
		}
		v.Present[name] = true
	}
	return v, rows.Err()
}

// Save writes all four keys, updating existing rows in place.
func (s *SQLiteStore) Save(ctx context.Context, v Values) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin settings update: %w", err)
	}
	pairs := [][2]string{
		{KeySignerExec, v.SignerPath},
		{KeyExiftoolExec, v.ExiftoolPath},
		{KeyDontInsertDuplicates, formatBool(v.SuppressDuplicates)},
		{KeyCreateCSV, formatBool(v.CreateCSV)},
	}
	for _, p := range pairs {
		res, err := tx.ExecContext(ctx, "UPDATE settings SET Setting_Value = ? WHERE Setting_Name = ?", p[1], p[0])
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("update setting %s: %w", p[0], err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			continue
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO settings (Setting_Name, Setting_Value) VALUES (?, ?)", p[0], p[1]); err != nil {
			tx.Rollback()
			return fmt.Errorf("insert setting %s: %w", p[0], err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit settings: %w", err)
	}
	return nil
}

func parseBool(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true":
		return true, true
	case "false":
		return false, true
	}
	return false, false
}

func formatBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}
