package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/user/prodsearch-service/internal/domain"
)

// PostgresStore persists rate-limit windows in the `rate_limits` table.
// Each Mutate call is one transaction with a row lock, so concurrent checks
// for the same key serialize instead of both slipping under the limit.
type PostgresStore struct {
	db      *pgxpool.Pool
	builder sq.StatementBuilderType
}

var _ Store = (*PostgresStore)(nil)

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{
		db:      db,
		builder: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

func (s *PostgresStore) Mutate(ctx context.Context, identifier, endpoint string, fn func(*domain.RateLimitRecord)) (*domain.RateLimitRecord, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin rate limit tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query, args, err := s.builder.
		Select("request_count", "window_start", "blocked_until").
		From("rate_limits").
		Where(sq.Eq{"identifier": identifier, "endpoint": endpoint}).
		Suffix("FOR UPDATE").
		ToSql()
	if err != nil {
		return nil, err
	}

	rec := domain.RateLimitRecord{
		Identifier:  identifier,
		Endpoint:    endpoint,
		WindowStart: time.Now(),
	}
	err = tx.QueryRow(ctx, query, args...).Scan(&rec.RequestCount, &rec.WindowStart, &rec.BlockedUntil)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("load rate limit record: %w", err)
	}

	fn(&rec)

	query, args, err = s.builder.
		Insert("rate_limits").
		Columns("identifier", "endpoint", "request_count", "window_start", "blocked_until").
		Values(rec.Identifier, rec.Endpoint, rec.RequestCount, rec.WindowStart, rec.BlockedUntil).
		Suffix(`ON CONFLICT (identifier, endpoint) DO UPDATE SET
			request_count = EXCLUDED.request_count,
			window_start = EXCLUDED.window_start,
			blocked_until = EXCLUDED.blocked_until`).
		ToSql()
	if err != nil {
		return nil, err
	}
	if _, err := tx.Exec(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("save rate limit record: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit rate limit tx: %w", err)
	}
	return &rec, nil
}

func (s *PostgresStore) Cleanup(ctx context.Context, idleSince time.Time) (int64, error) {
	query, args, err := s.builder.
		Delete("rate_limits").
		Where(sq.Lt{"window_start": idleSince}).
		Where(sq.Or{
			sq.Eq{"blocked_until": nil},
			sq.Lt{"blocked_until": time.Now()},
		}).
		ToSql()
	if err != nil {
		return 0, err
	}

	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("cleanup rate limit records: %w", err)
	}
	return tag.RowsAffected(), nil
}
