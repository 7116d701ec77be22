// Package storage persists historical request logs and per-credential
// metrics to PostgreSQL. Writes are fire-and-forget from the request path:
// failures are logged, never surfaced; in-memory metrics drive routing, not
// this store.
package storage

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// RequestLog is one appended request record.
type RequestLog struct {
	KeyHash          string
	Model            string
	Endpoint         string
	StatusCode       int
	LatencyMs        int64
	PromptTokens     int
	CompletionTokens int
	IsStream         bool
	ErrorMessage     string
}

// MetricsDelta is one outcome folded into a credential's aggregate row.
type MetricsDelta struct {
	Success   bool
	LatencyMs int64
}

// Store writes to PostgreSQL through a pgx pool. A nil Store (or one built
// with a nil pool) discards everything, so the gateway runs without a
// database.
type Store struct {
	db     *pgxpool.Pool
	logger *slog.Logger
}

func New(db *pgxpool.Pool, logger *slog.Logger) *Store {
	return &Store{db: db, logger: logger}
}

const writeTimeout = 5 * time.Second

// LogRequest appends one request record asynchronously.
func (s *Store) LogRequest(entry RequestLog) {
	if s == nil || s.db == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()
		_, err := s.db.Exec(ctx, `
			INSERT INTO request_logs
				(key_hash, model, endpoint, status_code, latency_ms,
				 prompt_tokens, completion_tokens, is_stream, error_message)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, entry.KeyHash, entry.Model, entry.Endpoint, entry.StatusCode, entry.LatencyMs,
			entry.PromptTokens, entry.CompletionTokens, entry.IsStream, entry.ErrorMessage)
		if err != nil {
			s.logger.Warn("request log write failed", "error", err)
		}
	}()
}

// UpsertKeyMetrics folds one outcome into the credential's aggregate row
// asynchronously.
func (s *Store) UpsertKeyMetrics(keyHash string, delta MetricsDelta) {
	if s == nil || s.db == nil {
		return
	}
	successInc, failureInc := 0, 0
	if delta.Success {
		successInc = 1
	} else {
		failureInc = 1
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()
		_, err := s.db.Exec(ctx, `
			INSERT INTO key_metrics (key_hash, success_count, failure_count, total_latency_ms, last_used_at)
			VALUES ($1, $2, $3, $4, NOW())
			ON CONFLICT (key_hash) DO UPDATE SET
				success_count = key_metrics.success_count + EXCLUDED.success_count,
				failure_count = key_metrics.failure_count + EXCLUDED.failure_count,
				total_latency_ms = key_metrics.total_latency_ms + EXCLUDED.total_latency_ms,
				last_used_at = NOW()
		`, keyHash, successInc, failureInc, delta.LatencyMs)
		if err != nil {
			s.logger.Warn("key metrics upsert failed", "error", err)
		}
	}()
}
