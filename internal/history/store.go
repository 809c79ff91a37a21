// Package history keeps a sqlite record of every finished analysis.
package history

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/andrestor94/pliegos-ai/internal/history/migrations"
)

// ErrNotFound is returned by Get for an unknown id.
var ErrNotFound = errors.New("report not found")

// Record is one stored analysis.
type Record struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Title       string    `json:"title,omitempty"`
	Files       []string  `json:"files"`
	Strategy    string    `json:"strategy"`
	States      []string  `json:"states"`
	Repairs     []string  `json:"repairs"`
	Chunks      int       `json:"chunks"`
	Failed      bool      `json:"failed"`
	ContentHash string    `json:"content_hash"`
	Report      string    `json:"report,omitempty"`
	PDFPath     string    `json:"pdf_path,omitempty"`
	ElapsedMS   int64     `json:"elapsed_ms"`
	CreatedAt   time.Time `json:"created_at"`
}

// Store is the sqlite-backed history.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (creating if needed) the database at path and applies pending
// migrations.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating history directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening history db: %w", err)
	}
	// sqlite serializes writers; a single connection keeps it that way.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, path: path}
	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) migrate(fsys embed.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var current int
	if err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}
	var ups []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".up.sql") {
			ups = append(ups, e.Name())
		}
	}
	sort.Strings(ups)

	for _, name := range ups {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= current {
			continue
		}
		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := s.db.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
	}
	return nil
}

// Save inserts r, assigning ID and CreatedAt when they are empty.
func (s *Store) Save(ctx context.Context, r *Record) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	files, err := marshalList(r.Files)
	if err != nil {
		return err
	}
	states, err := marshalList(r.States)
	if err != nil {
		return err
	}
	repairs, err := marshalList(r.Repairs)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO reports (id, name, title, files, strategy, states, repairs, chunks, failed,
			content_hash, report, pdf_path, elapsed_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.ID, r.Name, r.Title, files, r.Strategy, states, repairs, r.Chunks, r.Failed,
		r.ContentHash, r.Report, r.PDFPath, r.ElapsedMS, r.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("saving report %s: %w", r.ID, err)
	}
	return nil
}

const columns = `id, name, title, files, strategy, states, repairs, chunks, failed,
	content_hash, report, pdf_path, elapsed_ms, created_at`

// Get returns the full record, report text included.
func (s *Store) Get(ctx context.Context, id string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+columns+" FROM reports WHERE id = ?", id)
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting report %s: %w", id, err)
	}
	return r, nil
}

// List returns the newest records first, without the report text.
func (s *Store) List(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, "SELECT "+columns+" FROM reports ORDER BY created_at DESC, rowid DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("listing reports: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning report: %w", err)
		}
		r.Report = ""
		out = append(out, *r)
	}
	return out, rows.Err()
}

// LatestByHash returns the newest successful record for the same combined
// text, or ErrNotFound.
func (s *Store) LatestByHash(ctx context.Context, hash string) (*Record, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+columns+" FROM reports WHERE content_hash = ? AND failed = 0 ORDER BY created_at DESC, rowid DESC LIMIT 1", hash)
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("looking up hash: %w", err)
	}
	return r, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(sc scanner) (*Record, error) {
	var (
		r                      Record
		files, states, repairs string
		created                int64
	)
	err := sc.Scan(&r.ID, &r.Name, &r.Title, &files, &r.Strategy, &states, &repairs, &r.Chunks, &r.Failed,
		&r.ContentHash, &r.Report, &r.PDFPath, &r.ElapsedMS, &created)
	if err != nil {
		return nil, err
	}
	if err := unmarshalList(files, &r.Files); err != nil {
		return nil, err
	}
	if err := unmarshalList(states, &r.States); err != nil {
		return nil, err
	}
	if err := unmarshalList(repairs, &r.Repairs); err != nil {
		return nil, err
	}
	r.CreatedAt = time.UnixMilli(created).UTC()
	return &r, nil
}

func marshalList(v []string) (string, error) {
	if v == nil {
		v = []string{}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshalling list: %w", err)
	}
	return string(b), nil
}

func unmarshalList(s string, dst *[]string) error {
	if err := json.Unmarshal([]byte(s), dst); err != nil {
		return fmt.Errorf("unmarshalling list: %w", err)
	}
	return nil
}
