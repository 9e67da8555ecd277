package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/jihoonkang/account-api/internal/errors"
	"github.com/jihoonkang/account-api/internal/models"
)

type AccountRepository interface {
	FindByID(ctx context.Context, id int64) (*models.Account, error)
	FindByNumber(ctx context.Context, number string) (*models.Account, error)
	FindByNumberForUpdate(ctx context.Context, tx *sql.Tx, number string) (*models.Account, error)
	FindLatest(ctx context.Context, tx *sql.Tx) (*models.Account, error)
	CountInUseByOwner(ctx context.Context, tx *sql.Tx, ownerID int64) (int, error)
	Insert(ctx context.Context, tx *sql.Tx, account *models.Account) error
	Update(ctx context.Context, tx *sql.Tx, account *models.Account) error
	ListByOwner(ctx context.Context, ownerID int64) ([]*models.Account, error)
}

type PostgresAccountRepository struct {
	db *sql.DB
}

func NewAccountRepository(db *sql.DB) *PostgresAccountRepository {
	return &PostgresAccountRepository{db: db}
}

const accountColumns = `id, owner_id, account_number, status, balance, registered_at, unregistered_at, created_at, updated_at`

func scanAccount(row *sql.Row) (*models.Account, error) {
	account := &models.Account{}
	var unregisteredAt sql.NullTime
	err := row.Scan(
		&account.ID,
		&account.OwnerID,
		&account.AccountNumber,
		&account.Status,
		&account.Balance,
		&account.RegisteredAt,
		&unregisteredAt,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if unregisteredAt.Valid {
		account.UnregisteredAt = &unregisteredAt.Time
	}
	return account, nil
}

func (r *PostgresAccountRepository) FindByID(ctx context.Context, id int64) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`

	account, err := scanAccount(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account by ID: %w", err)
	}
	return account, nil
}

func (r *PostgresAccountRepository) FindByNumber(ctx context.Context, number string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE account_number = $1`

	account, err := scanAccount(r.db.QueryRowContext(ctx, query, number))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account by number: %w", err)
	}
	return account, nil
}

func (r *PostgresAccountRepository) FindByNumberForUpdate(ctx context.Context, tx *sql.Tx, number string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE account_number = $1 FOR UPDATE`

	account, err := scanAccount(tx.QueryRowContext(ctx, query, number))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account by number for update: %w", err)
	}
	return account, nil
}

// FindLatest returns the most recently inserted account regardless of owner,
// ordered by internal id, not by account number. The row is locked so number
// assignment is serialized across concurrent creations; the unique constraint
// on account_number backstops the empty-table case where there is no row to
// lock.
func (r *PostgresAccountRepository) FindLatest(ctx context.Context, tx *sql.Tx) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts ORDER BY id DESC LIMIT 1 FOR UPDATE`

	account, err := scanAccount(tx.QueryRowContext(ctx, query))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get latest account: %w", err)
	}
	return account, nil
}

func (r *PostgresAccountRepository) CountInUseByOwner(ctx context.Context, tx *sql.Tx, ownerID int64) (int, error) {
	query := `SELECT COUNT(*) FROM accounts WHERE owner_id = $1 AND status = $2`

	var count int
	err := tx.QueryRowContext(ctx, query, ownerID, models.AccountStatusInUse).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count in-use accounts: %w", err)
	}
	return count, nil
}

func (r *PostgresAccountRepository) Insert(ctx context.Context, tx *sql.Tx, account *models.Account) error {
	query := `INSERT INTO accounts (owner_id, account_number, status, balance, registered_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		RETURNING id, created_at, updated_at`

	err := tx.QueryRowContext(ctx, query,
		account.OwnerID,
		account.AccountNumber,
		account.Status,
		account.Balance,
		account.RegisteredAt,
	).Scan(&account.ID, &account.CreatedAt, &account.UpdatedAt)

	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return fmt.Errorf("account number %s already assigned: %w", account.AccountNumber, err)
		}
		return fmt.Errorf("failed to insert account: %w", err)
	}
	return nil
}

// Update persists balance and status changes in place. Accounts are never
// deleted; closure only flips status and sets unregistered_at.
func (r *PostgresAccountRepository) Update(ctx context.Context, tx *sql.Tx, account *models.Account) error {
	query := `UPDATE accounts
		SET balance = $1, status = $2, unregistered_at = $3, updated_at = CURRENT_TIMESTAMP
		WHERE id = $4`

	var unregisteredAt sql.NullTime
	if account.UnregisteredAt != nil {
		unregisteredAt = sql.NullTime{Time: *account.UnregisteredAt, Valid: true}
	}

	result, err := tx.ExecContext(ctx, query, account.Balance, account.Status, unregisteredAt, account.ID)
	if err != nil {
		return fmt.Errorf("failed to update account: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected after updating account: %w", err)
	}
	if rowsAffected == 0 {
		return errors.ErrAccountNotFound
	}
	return nil
}

func (r *PostgresAccountRepository) ListByOwner(ctx context.Context, ownerID int64) ([]*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE owner_id = $1 ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts by owner: %w", err)
	}
	defer rows.Close()

	var accounts []*models.Account
	for rows.Next() {
		account := &models.Account{}
		var unregisteredAt sql.NullTime
		err := rows.Scan(
			&account.ID,
			&account.OwnerID,
			&account.AccountNumber,
			&account.Status,
			&account.Balance,
			&account.RegisteredAt,
			&unregisteredAt,
			&account.CreatedAt,
			&account.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		if unregisteredAt.Valid {
			account.UnregisteredAt = &unregisteredAt.Time
		}
		accounts = append(accounts, account)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over accounts: %w", err)
	}
	return accounts, nil
}
