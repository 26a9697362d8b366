package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"intake/internal/reviewer/models"
	id "intake/pkg/domain"
	"intake/pkg/platform/sentinel"
	txcontext "intake/pkg/platform/tx"
)

const uniqueViolation = "23505"

// PostgresStore persists organizations in reviewer_organizations.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const orgColumns = `id, short_label, display_name, token_hash, is_active, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, org *models.Organization) error {
	_, err := txcontext.ExecutorFrom(ctx, s.db).ExecContext(ctx,
		`INSERT INTO reviewer_organizations (`+orgColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		uuid.UUID(org.ID), org.ShortLabel, org.DisplayName, org.TokenHash, org.IsActive, org.CreatedAt, org.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("insert reviewer organization: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, reviewerID id.ReviewerID) (*models.Organization, error) {
	return s.findOne(ctx, `SELECT `+orgColumns+` FROM reviewer_organizations WHERE id = $1`, uuid.UUID(reviewerID))
}

func (s *PostgresStore) FindByTokenHash(ctx context.Context, tokenHash string) (*models.Organization, error) {
	return s.findOne(ctx, `SELECT `+orgColumns+` FROM reviewer_organizations WHERE token_hash = $1`, tokenHash)
}

func (s *PostgresStore) List(ctx context.Context) ([]*models.Organization, error) {
	rows, err := txcontext.ExecutorFrom(ctx, s.db).QueryContext(ctx,
		`SELECT `+orgColumns+` FROM reviewer_organizations ORDER BY short_label ASC`)
	if err != nil {
		return nil, fmt.Errorf("list reviewer organizations: %w", err)
	}
	defer rows.Close()

	var out []*models.Organization
	for rows.Next() {
		org, err := scanOrg(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, org)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reviewer organizations: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Update(ctx context.Context, org *models.Organization) error {
	res, err := txcontext.ExecutorFrom(ctx, s.db).ExecContext(ctx,
		`UPDATE reviewer_organizations SET display_name = $2, token_hash = $3, is_active = $4, updated_at = $5 WHERE id = $1`,
		uuid.UUID(org.ID), org.DisplayName, org.TokenHash, org.IsActive, org.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("update reviewer organization: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update reviewer organization: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) findOne(ctx context.Context, query string, arg any) (*models.Organization, error) {
	org, err := scanOrg(txcontext.ExecutorFrom(ctx, s.db).QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	return org, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrg(row rowScanner) (*models.Organization, error) {
	var (
		org   models.Organization
		rawID uuid.UUID
	)
	if err := row.Scan(&rawID, &org.ShortLabel, &org.DisplayName, &org.TokenHash, &org.IsActive, &org.CreatedAt, &org.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan reviewer organization: %w", err)
	}
	org.ID = id.ReviewerID(rawID)
	return &org, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
