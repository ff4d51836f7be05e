package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"marklift/internal/config"
)

const schema = `
CREATE TABLE IF NOT EXISTS conversions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT NOT NULL,
    job_id TEXT,
    item_name TEXT NOT NULL,
    kind TEXT NOT NULL,
    status TEXT NOT NULL,
    message TEXT,
    bytes INTEGER NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_conversions_session ON conversions(session_id);
`

// Record is one finished (or failed, or cancelled) conversion job.
type Record struct {
	ID        int64
	SessionID string
	JobID     string
	ItemName  string
	Kind      string
	Status    string
	Message   string
	Bytes     int64
	CreatedAt time.Time
}

// Store manages conversion history backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the history database.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := filepath.Join(cfg.StateDir, "history.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db, path: dbPath}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// Add persists a record, assigning its id and timestamp.
func (s *Store) Add(ctx context.Context, rec *Record) error {
	if rec == nil {
		return errors.New("record is nil")
	}
	if rec.SessionID == "" {
		return errors.New("session id is required")
	}
	rec.CreatedAt = time.Now().UTC()

	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO conversions (session_id, job_id, item_name, kind, status, message, bytes, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.SessionID,
		nullableString(rec.JobID),
		rec.ItemName,
		rec.Kind,
		rec.Status,
		nullableString(rec.Message),
		rec.Bytes,
		rec.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert record: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	rec.ID = id
	return nil
}

// List returns the most recent records, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]*Record, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, session_id, job_id, item_name, kind, status, message, bytes, created_at
         FROM conversions ORDER BY id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Clear removes all history records.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM conversions`)
	if err != nil {
		return 0, fmt.Errorf("clear history: %w", err)
	}
	return res.RowsAffected()
}

// Stats returns a count of records grouped by status.
func (s *Store) Stats(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM conversions GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("history stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[string]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

func scanRecord(rows *sql.Rows) (*Record, error) {
	var (
		rec        Record
		jobID      sql.NullString
		message    sql.NullString
		createdRaw string
	)
	if err := rows.Scan(&rec.ID, &rec.SessionID, &jobID, &rec.ItemName, &rec.Kind, &rec.Status, &message, &rec.Bytes, &createdRaw); err != nil {
		return nil, fmt.Errorf("scan record: %w", err)
	}
	rec.JobID = jobID.String
	rec.Message = message.String
	if created, err := time.Parse(time.RFC3339Nano, createdRaw); err == nil {
		rec.CreatedAt = created
	}
	return &rec, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}
