package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type postgresStore struct {
	pool *pgxpool.Pool
}

const postgresSchema = `CREATE TABLE IF NOT EXISTS ingests (
	id               TEXT PRIMARY KEY,
	input            TEXT NOT NULL,
	source_type      TEXT NOT NULL DEFAULT '',
	source_name      TEXT NOT NULL DEFAULT '',
	video_count      INTEGER NOT NULL,
	transcript_count INTEGER NOT NULL,
	api_calls        BIGINT NOT NULL,
	quota_units      BIGINT NOT NULL,
	duration_ms      BIGINT NOT NULL,
	high_quota_cost  BOOLEAN NOT NULL,
	created_at       TIMESTAMPTZ NOT NULL
)`

// openPostgres creates a pgx pool and ensures the history schema.
func openPostgres(ctx context.Context, databaseURL string) (Store, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("store: parse DATABASE_URL: %w", err)
	}
	config.MaxConns = 10
	config.MinConns = 1

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("store: create pgx pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: init schema: %w", err)
	}

	slog.Info("store: postgres connected", slog.String("addr", config.ConnConfig.Host))
	return &postgresStore{pool: pool}, nil
}

func (s *postgresStore) SaveIngest(ctx context.Context, rec IngestRecord) error {
	created := rec.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO ingests (id, input, source_type, source_name, video_count,
		 transcript_count, api_calls, quota_units, duration_ms, high_quota_cost, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		rec.ID, rec.Input, rec.SourceType, rec.SourceName, rec.VideoCount,
		rec.TranscriptCount, rec.APICalls, rec.QuotaUnits, rec.DurationMs,
		rec.HighQuotaCost, created)
	if err != nil {
		return fmt.Errorf("store: insert: %w", err)
	}
	return nil
}

func (s *postgresStore) RecentIngests(ctx context.Context, limit int) ([]IngestRecord, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, input, source_type, source_name, video_count, transcript_count,
		 api_calls, quota_units, duration_ms, high_quota_cost, created_at
		 FROM ingests ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: query: %w", err)
	}
	defer rows.Close()

	records := []IngestRecord{}
	for rows.Next() {
		var rec IngestRecord
		if err := rows.Scan(&rec.ID, &rec.Input, &rec.SourceType, &rec.SourceName,
			&rec.VideoCount, &rec.TranscriptCount, &rec.APICalls, &rec.QuotaUnits,
			&rec.DurationMs, &rec.HighQuotaCost, &rec.CreatedAt); err != nil {
			continue
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *postgresStore) Close() error {
	s.pool.Close()
	return nil
}
