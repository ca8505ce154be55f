package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const segmentColumns = `id, name, description, tags, filter, is_system, is_active,
	client_count, count_approximate, created_at, updated_at, counted_at, deleted_at`

// uniqueViolation is the SQLSTATE for duplicate primary keys.
const uniqueViolation = "23505"

// PostgresStore is a PostgreSQL implementation of the Store interface.
// Deletes are soft: deleted_at is set and the row stays as a tombstone.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// ListSegments retrieves all live segments.
func (p *PostgresStore) ListSegments(ctx context.Context) ([]Segment, error) {
	query := `SELECT ` + segmentColumns + ` FROM segments
		WHERE deleted_at IS NULL ORDER BY created_at, id`

	rows, err := p.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query segments: %w", err)
	}
	defer rows.Close()

	segments := make([]Segment, 0)
	for rows.Next() {
		seg, _, err := scanSegment(rows)
		if err != nil {
			return nil, err
		}
		segments = append(segments, seg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over segments: %w", err)
	}
	return segments, nil
}

// GetSegment retrieves a single segment by id.
func (p *PostgresStore) GetSegment(ctx context.Context, id string) (*Segment, error) {
	query := `SELECT ` + segmentColumns + ` FROM segments WHERE id = $1`

	seg, deleted, err := scanSegment(p.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if deleted {
		return nil, ErrRemoved
	}
	return &seg, nil
}

// InsertSegment stores a new segment.
func (p *PostgresStore) InsertSegment(ctx context.Context, seg Segment) error {
	filter, err := json.Marshal(seg.Filter)
	if err != nil {
		return fmt.Errorf("failed to marshal segment filter: %w", err)
	}

	query := `INSERT INTO segments (id, name, description, tags, filter, is_system, is_active,
			client_count, count_approximate, created_at, updated_at, counted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	_, err = p.pool.Exec(ctx, query,
		seg.ID, seg.Name, seg.Description, nonNilTags(seg.Tags), filter, seg.IsSystem, seg.IsActive,
		seg.ClientCount, seg.CountApproximate, seg.CreatedAt, seg.UpdatedAt, seg.CountedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrConflict
		}
		return fmt.Errorf("failed to insert segment: %w", err)
	}
	return nil
}

// UpdateSegment replaces a live segment.
func (p *PostgresStore) UpdateSegment(ctx context.Context, seg Segment) error {
	filter, err := json.Marshal(seg.Filter)
	if err != nil {
		return fmt.Errorf("failed to marshal segment filter: %w", err)
	}

	query := `UPDATE segments
		SET name = $2, description = $3, tags = $4, filter = $5, is_system = $6, is_active = $7,
		    client_count = $8, count_approximate = $9, updated_at = $10, counted_at = $11
		WHERE id = $1 AND deleted_at IS NULL`
	tag, err := p.pool.Exec(ctx, query,
		seg.ID, seg.Name, seg.Description, nonNilTags(seg.Tags), filter, seg.IsSystem, seg.IsActive,
		seg.ClientCount, seg.CountApproximate, seg.UpdatedAt, seg.CountedAt)
	if err != nil {
		return fmt.Errorf("failed to update segment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return p.missing(ctx, seg.ID)
	}
	return nil
}

// DeleteSegment soft-deletes a segment.
func (p *PostgresStore) DeleteSegment(ctx context.Context, id string) error {
	query := `UPDATE segments SET deleted_at = $2 WHERE id = $1 AND deleted_at IS NULL`
	tag, err := p.pool.Exec(ctx, query, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to delete segment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return p.missing(ctx, id)
	}
	return nil
}

// Close closes the database connection pool.
func (p *PostgresStore) Close() error {
	p.pool.Close()
	return nil
}

// missing resolves why a write touched no rows.
func (p *PostgresStore) missing(ctx context.Context, id string) error {
	var deleted bool
	err := p.pool.QueryRow(ctx, `SELECT deleted_at IS NOT NULL FROM segments WHERE id = $1`, id).Scan(&deleted)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return ErrNotFound
	case err != nil:
		return err
	case deleted:
		return ErrRemoved
	default:
		return ErrNotFound
	}
}

func scanSegment(row pgx.Row) (Segment, bool, error) {
	var (
		seg       Segment
		filter    []byte
		deletedAt *time.Time
	)
	err := row.Scan(&seg.ID, &seg.Name, &seg.Description, &seg.Tags, &filter, &seg.IsSystem, &seg.IsActive,
		&seg.ClientCount, &seg.CountApproximate, &seg.CreatedAt, &seg.UpdatedAt, &seg.CountedAt, &deletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Segment{}, false, err
		}
		return Segment{}, false, fmt.Errorf("failed to scan segment row: %w", err)
	}
	if err := json.Unmarshal(filter, &seg.Filter); err != nil {
		return Segment{}, false, fmt.Errorf("segment %s has a corrupt filter: %w", seg.ID, err)
	}
	seg.Tags = nonNilTags(seg.Tags)
	return seg, deletedAt != nil, nil
}

func nonNilTags(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}
