package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

type sqliteStore struct {
	db *sql.DB
}

// openSQLite opens (or creates) the SQLite history database.
func openSQLite(path string) (Store, error) {
	if path == "" {
		path = filepath.Join(os.Getenv("HOME"), ".go_ingest", "history.db")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, fmt.Errorf("store: mkdir %s: %w", filepath.Dir(path), err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite: single writer
	if err := initSQLiteSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: init schema: %w", err)
	}
	return &sqliteStore{db: db}, nil
}

func initSQLiteSchema(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS ingests (
		id               TEXT PRIMARY KEY,
		input            TEXT NOT NULL,
		source_type      TEXT NOT NULL DEFAULT '',
		source_name      TEXT,
		video_count      INTEGER NOT NULL,
		transcript_count INTEGER NOT NULL,
		api_calls        INTEGER NOT NULL,
		quota_units      INTEGER NOT NULL,
		duration_ms      INTEGER NOT NULL,
		high_quota_cost  INTEGER NOT NULL,
		created_at       TEXT NOT NULL
	)`)
	return err
}

func (s *sqliteStore) SaveIngest(ctx context.Context, rec IngestRecord) error {
	created := rec.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO ingests (id, input, source_type, source_name, video_count,
		 transcript_count, api_calls, quota_units, duration_ms, high_quota_cost, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Input, rec.SourceType, rec.SourceName, rec.VideoCount,
		rec.TranscriptCount, rec.APICalls, rec.QuotaUnits, rec.DurationMs,
		boolInt(rec.HighQuotaCost), created.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("store: insert: %w", err)
	}
	return nil
}

func (s *sqliteStore) RecentIngests(ctx context.Context, limit int) ([]IngestRecord, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, input, source_type, source_name, video_count, transcript_count,
		 api_calls, quota_units, duration_ms, high_quota_cost, created_at
		 FROM ingests ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: query: %w", err)
	}
	defer rows.Close()

	records := []IngestRecord{}
	for rows.Next() {
		var rec IngestRecord
		var sourceName sql.NullString
		var highCost int
		var created string
		if err := rows.Scan(&rec.ID, &rec.Input, &rec.SourceType, &sourceName,
			&rec.VideoCount, &rec.TranscriptCount, &rec.APICalls, &rec.QuotaUnits,
			&rec.DurationMs, &highCost, &created); err != nil {
			continue
		}
		rec.SourceName = sourceName.String
		rec.HighQuotaCost = highCost != 0
		rec.CreatedAt, _ = time.Parse(time.RFC3339, created)
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *sqliteStore) Close() error { return s.db.Close() }

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
