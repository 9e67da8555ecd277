package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jihoonkang/account-api/internal/errors"
	"github.com/jihoonkang/account-api/internal/models"
)

// TransactionRepository is insert-only. Transaction rows are an audit trail
// and are never updated or deleted.
type TransactionRepository interface {
	Insert(ctx context.Context, tx *sql.Tx, transaction *models.Transaction) error
	InsertWithDB(ctx context.Context, transaction *models.Transaction) error
	FindByTransactionID(ctx context.Context, transactionID string) (*models.Transaction, error)
}

type PostgresTransactionRepository struct {
	db *sql.DB
}

func NewTransactionRepository(db *sql.DB) *PostgresTransactionRepository {
	return &PostgresTransactionRepository{db: db}
}

const insertTransactionQuery = `INSERT INTO transactions
	(transaction_id, account_id, transaction_type, result, amount, balance_snapshot, transacted_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	RETURNING id`

func (r *PostgresTransactionRepository) Insert(ctx context.Context, tx *sql.Tx, transaction *models.Transaction) error {
	err := tx.QueryRowContext(ctx, insertTransactionQuery,
		transaction.TransactionID,
		transaction.AccountID,
		transaction.Type,
		transaction.Result,
		transaction.Amount,
		transaction.BalanceSnapshot,
		transaction.TransactedAt,
	).Scan(&transaction.ID)

	if err != nil {
		return fmt.Errorf("failed to insert transaction: %w", err)
	}
	return nil
}

// InsertWithDB writes a transaction row outside any enclosing db transaction.
// Used by the failed-attempt recorders, which run after the failing unit of
// work has already rolled back.
func (r *PostgresTransactionRepository) InsertWithDB(ctx context.Context, transaction *models.Transaction) error {
	err := r.db.QueryRowContext(ctx, insertTransactionQuery,
		transaction.TransactionID,
		transaction.AccountID,
		transaction.Type,
		transaction.Result,
		transaction.Amount,
		transaction.BalanceSnapshot,
		transaction.TransactedAt,
	).Scan(&transaction.ID)

	if err != nil {
		return fmt.Errorf("failed to insert transaction: %w", err)
	}
	return nil
}

func (r *PostgresTransactionRepository) FindByTransactionID(ctx context.Context, transactionID string) (*models.Transaction, error) {
	query := `SELECT id, transaction_id, account_id, transaction_type, result, amount, balance_snapshot, transacted_at
		FROM transactions WHERE transaction_id = $1`

	transaction := &models.Transaction{}
	err := r.db.QueryRowContext(ctx, query, transactionID).Scan(
		&transaction.ID,
		&transaction.TransactionID,
		&transaction.AccountID,
		&transaction.Type,
		&transaction.Result,
		&transaction.Amount,
		&transaction.BalanceSnapshot,
		&transaction.TransactedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.ErrTransactionNotFound
		}
		return nil, fmt.Errorf("failed to get transaction by transaction ID: %w", err)
	}
	return transaction, nil
}
