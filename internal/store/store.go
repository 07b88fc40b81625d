package store

import (
	"context"
	"time"
)

// Request history persistence. SQLite is the default; setting
// DATABASE_URL switches to Postgres so several instances can share one
// history.

// IngestRecord is one completed ingestion request.
type IngestRecord struct {
	ID              string    `json:"id"`
	Input           string    `json:"input"`
	SourceType      string    `json:"source_type"`
	SourceName      string    `json:"source_name"`
	VideoCount      int       `json:"video_count"`
	TranscriptCount int       `json:"transcript_count"`
	APICalls        int64     `json:"api_calls"`
	QuotaUnits      int64     `json:"quota_units"`
	DurationMs      int64     `json:"duration_ms"`
	HighQuotaCost   bool      `json:"high_quota_cost"`
	CreatedAt       time.Time `json:"created_at"`
}

// Store persists ingestion history.
type Store interface {
	SaveIngest(ctx context.Context, rec IngestRecord) error
	RecentIngests(ctx context.Context, limit int) ([]IngestRecord, error)
	Close() error
}

// Open picks the backend: Postgres when databaseURL is set, otherwise
// SQLite at sqlitePath.
func Open(ctx context.Context, databaseURL, sqlitePath string) (Store, error) {
	if databaseURL != "" {
		return openPostgres(ctx, databaseURL)
	}
	return openSQLite(sqlitePath)
}
