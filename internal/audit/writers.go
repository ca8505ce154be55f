package audit

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/MentalSpaceTherapy/mentalspace-ehr/internal/segment"
)

// LogWriter writes entries as structured log lines.
type LogWriter struct {
	log zerolog.Logger
}

func NewLogWriter(log zerolog.Logger) *LogWriter {
	return &LogWriter{log: log.With().Str("component", "audit").Logger()}
}

func (w *LogWriter) Write(_ context.Context, e Entry) error {
	w.log.Info().
		Str("audit_id", e.ID).
		Str("action", string(e.Action)).
		Str("segment_id", e.SegmentID).
		Str("segment_name", e.SegmentName).
		Bool("is_system", e.IsSystem).
		Str("fingerprint", e.Fingerprint).
		Time("at", e.At).
		Msg("segment change")
	return nil
}

// PostgresWriter appends entries to the segment_audit table.
type PostgresWriter struct {
	pool *pgxpool.Pool
}

func NewPostgresWriter(pool *pgxpool.Pool) *PostgresWriter {
	return &PostgresWriter{pool: pool}
}

func (w *PostgresWriter) Write(ctx context.Context, e Entry) error {
	_, err := w.pool.Exec(ctx, `
		INSERT INTO segment_audit (id, occurred_at, action, segment_id, segment_name, is_system, fingerprint, state)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.ID, e.At, string(e.Action), e.SegmentID, e.SegmentName, e.IsSystem, e.Fingerprint, e.State)
	if err != nil {
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}
	return nil
}

// Recent returns the latest entries for a segment, newest first.
func (w *PostgresWriter) Recent(ctx context.Context, segmentID string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := w.pool.Query(ctx, `
		SELECT id::text, occurred_at, action, segment_id, segment_name, is_system, fingerprint, state
		FROM segment_audit WHERE segment_id = $1
		ORDER BY occurred_at DESC LIMIT $2`, segmentID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit entries: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var action string
		if err := rows.Scan(&e.ID, &e.At, &action, &e.SegmentID, &e.SegmentName, &e.IsSystem, &e.Fingerprint, &e.State); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		e.Action = segment.ChangeType(action)
		out = append(out, e)
	}
	return out, rows.Err()
}
