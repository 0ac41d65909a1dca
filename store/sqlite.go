package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/meetline/server/agenda"
	"github.com/meetline/server/persist"
)

// SQLiteStore implements Store on SQLite in WAL mode. It does not observe
// writes made by other processes.
type SQLiteStore struct {
	db   *sql.DB
	path string
	now  func() time.Time

	mu        sync.Mutex
	listeners []OnChangeListener
}

var _ Store = (*SQLiteStore)(nil)

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dbPath = strings.TrimSpace(dbPath)
	if dbPath == "" {
		return nil, fmt.Errorf("sqlite db path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer keeps the version check and the update atomic without
	// relying on SQLite's lock upgrade.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("exec %q: %w", p, err)
		}
	}

	s := &SQLiteStore{db: db, path: dbPath, now: time.Now}
	if err := s.ensureSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) ensureSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS items (
		id                 TEXT PRIMARY KEY,
		position           INTEGER NOT NULL,
		parent_id          TEXT NOT NULL DEFAULT '',
		sort_order         INTEGER NOT NULL DEFAULT 0,
		title              TEXT NOT NULL,
		description        TEXT NOT NULL DEFAULT '',
		status             TEXT NOT NULL DEFAULT 'pending',
		time_segments      TEXT NOT NULL DEFAULT '[]',
		started_at_seconds INTEGER,
		version            INTEGER NOT NULL DEFAULT 0,
		updated_at         TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_items_parent ON items(parent_id, sort_order);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const selectItems = `SELECT id, parent_id, sort_order, title, description, status,
	time_segments, started_at_seconds, version, updated_at FROM items`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var (
		r        Record
		segsJSON string
		anchor   sql.NullInt64
		updated  string
	)
	if err := row.Scan(&r.ID, &r.ParentID, &r.Order, &r.Title, &r.Description, &r.Status,
		&segsJSON, &anchor, &r.Version, &updated); err != nil {
		return Record{}, err
	}
	if err := json.Unmarshal([]byte(segsJSON), &r.TimeSegments); err != nil {
		return Record{}, fmt.Errorf("decode segments of %s: %w", r.ID, err)
	}
	if r.TimeSegments == nil {
		r.TimeSegments = []agenda.TimeRange{}
	}
	if anchor.Valid {
		v := int(anchor.Int64)
		r.StartedAtSeconds = &v
	}
	r.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
	return r, nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, selectItems+" ORDER BY position")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Record{}
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (Record, bool, error) {
	r, err := scanRecord(s.db.QueryRowContext(ctx, selectItems+" WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, err
	}
	return r, true, nil
}

func (s *SQLiteStore) PatchSegments(ctx context.Context, itemID string, p persist.Patch) error {
	if err := persist.Validate(p); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	prev, err := scanRecord(tx.QueryRowContext(ctx, selectItems+" WHERE id = ?", itemID))
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrItemNotFound, itemID)
	}
	if err != nil {
		return err
	}

	updated, err := applyPatch(prev, p, s.now())
	if err != nil {
		return err
	}
	if !recordChanged(prev, updated) {
		return nil
	}

	segsJSON, err := json.Marshal(updated.TimeSegments)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE items SET time_segments = ?, started_at_seconds = ?, status = ?, version = ?, updated_at = ? WHERE id = ?`,
		string(segsJSON), nullInt(updated.StartedAtSeconds), updated.Status, updated.Version,
		updated.UpdatedAt.UTC().Format(time.RFC3339Nano), itemID)
	if err != nil {
		return fmt.Errorf("update item: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	notify(s.copyListeners(), ChangeEvent{Op: OperationUpdate, Record: updated})
	return nil
}

func (s *SQLiteStore) Replace(ctx context.Context, items []agenda.Item) error {
	records, err := recordsFromItems(items, s.now())
	if err != nil {
		return err
	}
	prev, err := s.List(ctx)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM items"); err != nil {
		return fmt.Errorf("clear items: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO items
		(id, position, parent_id, sort_order, title, description, status, time_segments, started_at_seconds, version, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, r := range records {
		segsJSON, err := json.Marshal(r.TimeSegments)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, r.ID, i, r.ParentID, r.Order, r.Title, r.Description, r.Status,
			string(segsJSON), nullInt(r.StartedAtSeconds), r.Version, r.UpdatedAt.UTC().Format(time.RFC3339Nano)); err != nil {
			return fmt.Errorf("insert item %s: %w", r.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	notify(s.copyListeners(), diffRecords(prev, records)...)
	return nil
}

func (s *SQLiteStore) AddOnChangeListener(listener OnChangeListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, listener)
}

func (s *SQLiteStore) copyListeners() []OnChangeListener {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]OnChangeListener, len(s.listeners))
	copy(out, s.listeners)
	return out
}

// StartWatching is a no-op; SQLite offers no cross-process change feed.
func (s *SQLiteStore) StartWatching() error { return nil }
func (s *SQLiteStore) StopWatching()        {}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}
