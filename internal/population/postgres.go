package population

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MentalSpaceTherapy/mentalspace-ehr/internal/engine"
)

// DefaultQuery reads the flattened client attribute view maintained by the
// practice database.
const DefaultQuery = `SELECT * FROM client_segment_attributes`

// PostgresSource reads client records with a configurable query. Column names
// become attribute ids.
type PostgresSource struct {
	pool  *pgxpool.Pool
	query string
}

// NewPostgresSource creates a source over pool. An empty query uses DefaultQuery.
func NewPostgresSource(pool *pgxpool.Pool, query string) *PostgresSource {
	if query == "" {
		query = DefaultQuery
	}
	return &PostgresSource{pool: pool, query: query}
}

// Records runs the population query.
func (s *PostgresSource) Records(ctx context.Context) ([]engine.Record, error) {
	rows, err := s.pool.Query(ctx, s.query)
	if err != nil {
		return nil, fmt.Errorf("failed to query population: %w", err)
	}
	maps, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, fmt.Errorf("failed to scan population: %w", err)
	}

	records := make([]engine.Record, 0, len(maps))
	for _, m := range maps {
		rec := make(engine.Record, len(m))
		for k, v := range m {
			rec[k] = fromColumn(v)
		}
		records = append(records, rec)
	}
	return records, nil
}

// fromColumn maps pgx column values onto evaluator-friendly types.
func fromColumn(v any) any {
	switch t := v.(type) {
	case [16]byte:
		return uuid.UUID(t).String()
	case pgtype.Numeric:
		f, err := t.Float64Value()
		if err != nil || !f.Valid {
			return nil
		}
		return f.Float64
	case int16:
		return float64(t)
	case time.Time:
		return t.UTC().Format(time.RFC3339)
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			s, ok := item.(string)
			if !ok {
				return t
			}
			out = append(out, s)
		}
		return out
	default:
		return v
	}
}
