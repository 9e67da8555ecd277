package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jihoonkang/account-api/internal/errors"
	"github.com/jihoonkang/account-api/internal/models"
)

type OwnerRepository interface {
	FindByID(ctx context.Context, id int64) (*models.Owner, error)
	FindByIDForUpdate(ctx context.Context, tx *sql.Tx, id int64) (*models.Owner, error)
}

type PostgresOwnerRepository struct {
	db *sql.DB
}

func NewOwnerRepository(db *sql.DB) *PostgresOwnerRepository {
	return &PostgresOwnerRepository{db: db}
}

func (r *PostgresOwnerRepository) FindByID(ctx context.Context, id int64) (*models.Owner, error) {
	query := `SELECT id, name, created_at, updated_at FROM owners WHERE id = $1`

	owner := &models.Owner{}
	err := r.db.QueryRowContext(ctx, query, id).
		Scan(&owner.ID, &owner.Name, &owner.CreatedAt, &owner.UpdatedAt)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.ErrOwnerNotFound
		}
		return nil, fmt.Errorf("failed to get owner by ID: %w", err)
	}
	return owner, nil
}

// FindByIDForUpdate locks the owner row for the duration of the enclosing
// transaction. Account creation locks here so the per-owner account count and
// the insert cannot interleave with a concurrent creation for the same owner.
func (r *PostgresOwnerRepository) FindByIDForUpdate(ctx context.Context, tx *sql.Tx, id int64) (*models.Owner, error) {
	query := `SELECT id, name, created_at, updated_at FROM owners WHERE id = $1 FOR UPDATE`

	owner := &models.Owner{}
	err := tx.QueryRowContext(ctx, query, id).
		Scan(&owner.ID, &owner.Name, &owner.CreatedAt, &owner.UpdatedAt)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.ErrOwnerNotFound
		}
		return nil, fmt.Errorf("failed to get owner by ID for update: %w", err)
	}
	return owner, nil
}
