package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/user/prodsearch-service/internal/domain"
)

// RunResultRepoImpl persists completed pipeline runs in PostgreSQL.
type RunResultRepoImpl struct {
	db *pgxpool.Pool
}

func NewRunResultRepo(db *pgxpool.Pool) *RunResultRepoImpl {
	return &RunResultRepoImpl{db: db}
}

// Save stores one run with its property results and per-source failures as
// JSONB documents.
func (r *RunResultRepoImpl) Save(ctx context.Context, result *domain.RunResult) error {
	propsJSON, err := json.Marshal(result.Properties)
	if err != nil {
		return fmt.Errorf("marshal properties: %w", err)
	}
	failuresJSON, err := json.Marshal(result.Failures)
	if err != nil {
		return fmt.Errorf("marshal failures: %w", err)
	}

	query := `
		INSERT INTO research_runs (id, article_number, product_name, properties, failures, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			properties = EXCLUDED.properties,
			failures = EXCLUDED.failures;
	`
	_, err = r.db.Exec(ctx, query,
		result.ID,
		result.Identity.ArticleNumber,
		result.Identity.ProductName,
		propsJSON,
		failuresJSON,
		result.CreatedAt,
	)
	return err
}

// FindByID retrieves a stored run. Returns domain.ErrRunNotFound when
// absent.
func (r *RunResultRepoImpl) FindByID(ctx context.Context, id string) (*domain.RunResult, error) {
	query := `
		SELECT id, article_number, product_name, properties, failures, created_at
		FROM research_runs
		WHERE id = $1;
	`
	row := r.db.QueryRow(ctx, query, id)

	var result domain.RunResult
	var propsJSON, failuresJSON []byte
	err := row.Scan(
		&result.ID,
		&result.Identity.ArticleNumber,
		&result.Identity.ProductName,
		&propsJSON,
		&failuresJSON,
		&result.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRunNotFound
		}
		return nil, err
	}

	if err := json.Unmarshal(propsJSON, &result.Properties); err != nil {
		return nil, fmt.Errorf("unmarshal properties: %w", err)
	}
	if err := json.Unmarshal(failuresJSON, &result.Failures); err != nil {
		return nil, fmt.Errorf("unmarshal failures: %w", err)
	}
	return &result, nil
}
