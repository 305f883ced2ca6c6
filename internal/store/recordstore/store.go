// SPDX-License-Identifier: MIT

// Package recordstore persists delivery records in SQLite with upsert
// semantics keyed by event ID.
package recordstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver (pure Go, no CGO)

	"github.com/khaas/earshot/internal/deliver"
	"github.com/khaas/earshot/internal/detect"
)

// createdAtLayout is fixed-width (nanoseconds never trimmed, always
// UTC) so the string ordering used by List matches time order.
const createdAtLayout = "2006-01-02T15:04:05.000000000Z"

// Store provides SQLite persistence for delivery records.
type Store struct {
	db *sql.DB
}

// Open initializes the store and runs migrations. WAL mode and
// busy_timeout are set via DSN pragmas so they apply to every pooled
// connection.
func Open(dbPath string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)", dbPath)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS delivery_records (
		event_id TEXT PRIMARY KEY,
		labels TEXT NOT NULL DEFAULT '[]',
		scores TEXT NOT NULL DEFAULT '[]',
		artifact_url TEXT,
		raw_text TEXT NOT NULL DEFAULT '',
		upload_status TEXT NOT NULL DEFAULT 'ok' CHECK(upload_status IN ('ok', 'failed', 'skipped')),
		notify_status TEXT NOT NULL DEFAULT '',
		degraded INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_delivery_records_created ON delivery_records(created_at);
	CREATE INDEX IF NOT EXISTS idx_delivery_records_upload_status ON delivery_records(upload_status);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Upsert inserts or replaces the record for rec.EventID. Repeating the
// call with the same data leaves exactly one logical row.
func (s *Store) Upsert(ctx context.Context, rec deliver.Record) error {
	labels, err := json.Marshal(rec.Labels)
	if err != nil {
		return fmt.Errorf("encode labels: %w", err)
	}
	scores, err := json.Marshal(rec.Scores)
	if err != nil {
		return fmt.Errorf("encode scores: %w", err)
	}

	query := `
	INSERT INTO delivery_records (event_id, labels, scores, artifact_url, raw_text, upload_status, notify_status, degraded, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(event_id) DO UPDATE SET
		labels = excluded.labels,
		scores = excluded.scores,
		artifact_url = excluded.artifact_url,
		raw_text = excluded.raw_text,
		upload_status = excluded.upload_status,
		notify_status = excluded.notify_status,
		degraded = excluded.degraded
	`
	var artifactURL any
	if rec.ArtifactURL != "" {
		artifactURL = rec.ArtifactURL
	}
	_, err = s.db.ExecContext(ctx, query,
		string(rec.EventID), string(labels), string(scores), artifactURL,
		rec.RawText, rec.UploadStatus, rec.NotifyStatus, boolToInt(rec.Degraded),
		rec.CreatedAt.UTC().Format(createdAtLayout),
	)
	return err
}

// Get retrieves one record by event ID, or nil when absent.
func (s *Store) Get(ctx context.Context, id detect.EventID) (*deliver.Record, error) {
	query := `
	SELECT event_id, labels, scores, artifact_url, raw_text, upload_status, notify_status, degraded, created_at
	FROM delivery_records
	WHERE event_id = ?
	`
	rec, err := scanRecord(s.db.QueryRowContext(ctx, query, string(id)))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// List returns up to limit records, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]deliver.Record, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
	SELECT event_id, labels, scores, artifact_url, raw_text, upload_status, notify_status, degraded, created_at
	FROM delivery_records
	ORDER BY created_at DESC
	LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var records []deliver.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

// Count returns the number of persisted records.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM delivery_records`).Scan(&n)
	return n, err
}

// Ping reports store reachability for health checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*deliver.Record, error) {
	var (
		rec        deliver.Record
		eventID    string
		labelsJSON string
		scoresJSON string
		artifact   sql.NullString
		degraded   int
		createdAt  string
	)
	if err := row.Scan(&eventID, &labelsJSON, &scoresJSON, &artifact, &rec.RawText,
		&rec.UploadStatus, &rec.NotifyStatus, &degraded, &createdAt); err != nil {
		return nil, err
	}
	rec.EventID = detect.EventID(eventID)
	if err := json.Unmarshal([]byte(labelsJSON), &rec.Labels); err != nil {
		return nil, fmt.Errorf("decode labels: %w", err)
	}
	if err := json.Unmarshal([]byte(scoresJSON), &rec.Scores); err != nil {
		return nil, fmt.Errorf("decode scores: %w", err)
	}
	if artifact.Valid {
		rec.ArtifactURL = artifact.String
	}
	rec.Degraded = degraded != 0
	// RFC3339Nano also accepts the fixed-width stored layout.
	if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		rec.CreatedAt = t
	}
	return &rec, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
