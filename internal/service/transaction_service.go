package service

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jihoonkang/account-api/internal/errors"
	"github.com/jihoonkang/account-api/internal/models"
	"github.com/jihoonkang/account-api/internal/repository"
)

// Cancellations are accepted up to exactly one year after the original
// transaction; the boundary itself is allowed.
const cancelWindow = 1 // years

type TransactionService interface {
	UseBalance(ctx context.Context, ownerID int64, accountNumber string, amount int64) (*models.TransactionDetail, error)
	RecordFailedUse(ctx context.Context, accountNumber string, amount int64) error
	CancelBalance(ctx context.Context, transactionID, accountNumber string, amount int64) (*models.TransactionDetail, error)
	RecordFailedCancel(ctx context.Context, accountNumber string, amount int64) error
	QueryTransaction(ctx context.Context, transactionID string) (*models.TransactionDetail, error)
}

type TransactionServiceImpl struct {
	db              *sql.DB
	ownerRepo       repository.OwnerRepository
	accountRepo     repository.AccountRepository
	transactionRepo repository.TransactionRepository
	logger          *zap.Logger
	now             func() time.Time
}

func NewTransactionService(db *sql.DB, ownerRepo repository.OwnerRepository, accountRepo repository.AccountRepository, transactionRepo repository.TransactionRepository, logger *zap.Logger) *TransactionServiceImpl {
	return &TransactionServiceImpl{
		db:              db,
		ownerRepo:       ownerRepo,
		accountRepo:     accountRepo,
		transactionRepo: transactionRepo,
		logger:          logger,
		now:             time.Now,
	}
}

// newTransactionID generates the opaque token callers use to reference a
// transaction. Independent of the storage key so row ids never leak.
func newTransactionID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}

// UseBalance debits the account and writes a USE/SUCCESS row whose snapshot
// is the post-debit balance. Validation failures roll back without writing
// anything; recording the failed attempt is the caller's job via
// RecordFailedUse.
func (s *TransactionServiceImpl) UseBalance(ctx context.Context, ownerID int64, accountNumber string, amount int64) (*models.TransactionDetail, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		s.logger.Error("failed to begin transaction", zap.Error(err))
		return nil, fmt.Errorf("begin use balance: %w", err)
	}
	defer func() {
		if tx != nil {
			tx.Rollback()
		}
	}()

	owner, err := s.ownerRepo.FindByID(ctx, ownerID)
	if err != nil {
		if errors.IsNotFound(err) {
			s.logger.Warn("owner not found", zap.Int64("owner_id", ownerID))
		}
		return nil, err
	}

	account, err := s.accountRepo.FindByNumberForUpdate(ctx, tx, accountNumber)
	if err != nil {
		if errors.IsNotFound(err) {
			s.logger.Warn("account not found", zap.String("account_number", accountNumber))
		}
		return nil, err
	}

	if err := validateUseBalance(owner, account, amount); err != nil {
		s.logger.Warn("use balance rejected",
			zap.Int64("owner_id", ownerID),
			zap.String("account_number", accountNumber),
			zap.Int64("amount", amount),
			zap.Error(err),
		)
		return nil, err
	}

	account.Balance -= amount
	if err := s.accountRepo.Update(ctx, tx, account); err != nil {
		s.logger.Error("failed to update account balance",
			zap.String("account_number", accountNumber),
			zap.Error(err),
		)
		return nil, err
	}

	transaction := &models.Transaction{
		TransactionID:   newTransactionID(),
		AccountID:       account.ID,
		Type:            models.TransactionTypeUse,
		Result:          models.TransactionResultSuccess,
		Amount:          amount,
		BalanceSnapshot: account.Balance,
		TransactedAt:    s.now(),
	}
	if err := s.transactionRepo.Insert(ctx, tx, transaction); err != nil {
		s.logger.Error("failed to insert transaction",
			zap.String("account_number", accountNumber),
			zap.Error(err),
		)
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		s.logger.Error("failed to commit use balance", zap.Error(err))
		return nil, fmt.Errorf("commit use balance: %w", err)
	}
	tx = nil

	s.logger.Info("balance used",
		zap.String("account_number", accountNumber),
		zap.String("transaction_id", transaction.TransactionID),
		zap.Int64("amount", amount),
		zap.Int64("balance", account.Balance),
	)
	return detail(account.AccountNumber, transaction), nil
}

func validateUseBalance(owner *models.Owner, account *models.Account, amount int64) error {
	if owner.ID != account.OwnerID {
		return errors.ErrOwnershipMismatch
	}
	if account.Status != models.AccountStatusInUse {
		return errors.ErrAccountClosed
	}
	if amount > account.Balance {
		return errors.ErrInsufficientBalance
	}
	return nil
}

// RecordFailedUse writes a USE/FAIL audit row with the account's current,
// unchanged balance. The account itself is not mutated.
func (s *TransactionServiceImpl) RecordFailedUse(ctx context.Context, accountNumber string, amount int64) error {
	return s.recordFailed(ctx, models.TransactionTypeUse, accountNumber, amount)
}

// RecordFailedCancel is RecordFailedUse tagged CANCEL.
func (s *TransactionServiceImpl) RecordFailedCancel(ctx context.Context, accountNumber string, amount int64) error {
	return s.recordFailed(ctx, models.TransactionTypeCancel, accountNumber, amount)
}

func (s *TransactionServiceImpl) recordFailed(ctx context.Context, transactionType models.TransactionType, accountNumber string, amount int64) error {
	account, err := s.accountRepo.FindByNumber(ctx, accountNumber)
	if err != nil {
		if errors.IsNotFound(err) {
			s.logger.Warn("account not found for failure record",
				zap.String("account_number", accountNumber),
			)
		}
		return err
	}

	transaction := &models.Transaction{
		TransactionID:   newTransactionID(),
		AccountID:       account.ID,
		Type:            transactionType,
		Result:          models.TransactionResultFail,
		Amount:          amount,
		BalanceSnapshot: account.Balance,
		TransactedAt:    s.now(),
	}
	if err := s.transactionRepo.InsertWithDB(ctx, transaction); err != nil {
		s.logger.Error("failed to record failed transaction",
			zap.String("account_number", accountNumber),
			zap.String("transaction_type", string(transactionType)),
			zap.Error(err),
		)
		return err
	}

	s.logger.Info("failed transaction recorded",
		zap.String("account_number", accountNumber),
		zap.String("transaction_type", string(transactionType)),
		zap.Int64("amount", amount),
	)
	return nil
}

// CancelBalance refunds a prior USE in full. Partial cancellation is not
// allowed and the original transaction must be at most one year old.
func (s *TransactionServiceImpl) CancelBalance(ctx context.Context, transactionID, accountNumber string, amount int64) (*models.TransactionDetail, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		s.logger.Error("failed to begin transaction", zap.Error(err))
		return nil, fmt.Errorf("begin cancel balance: %w", err)
	}
	defer func() {
		if tx != nil {
			tx.Rollback()
		}
	}()

	original, err := s.transactionRepo.FindByTransactionID(ctx, transactionID)
	if err != nil {
		if errors.IsNotFound(err) {
			s.logger.Warn("transaction not found", zap.String("transaction_id", transactionID))
		}
		return nil, err
	}

	account, err := s.accountRepo.FindByNumberForUpdate(ctx, tx, accountNumber)
	if err != nil {
		if errors.IsNotFound(err) {
			s.logger.Warn("account not found", zap.String("account_number", accountNumber))
		}
		return nil, err
	}

	if err := s.validateCancelBalance(original, account, amount); err != nil {
		s.logger.Warn("cancel balance rejected",
			zap.String("transaction_id", transactionID),
			zap.String("account_number", accountNumber),
			zap.Int64("amount", amount),
			zap.Error(err),
		)
		return nil, err
	}

	account.Balance += amount
	if err := s.accountRepo.Update(ctx, tx, account); err != nil {
		s.logger.Error("failed to update account balance",
			zap.String("account_number", accountNumber),
			zap.Error(err),
		)
		return nil, err
	}

	transaction := &models.Transaction{
		TransactionID:   newTransactionID(),
		AccountID:       account.ID,
		Type:            models.TransactionTypeCancel,
		Result:          models.TransactionResultSuccess,
		Amount:          amount,
		BalanceSnapshot: account.Balance,
		TransactedAt:    s.now(),
	}
	if err := s.transactionRepo.Insert(ctx, tx, transaction); err != nil {
		s.logger.Error("failed to insert transaction",
			zap.String("account_number", accountNumber),
			zap.Error(err),
		)
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		s.logger.Error("failed to commit cancel balance", zap.Error(err))
		return nil, fmt.Errorf("commit cancel balance: %w", err)
	}
	tx = nil

	s.logger.Info("balance use cancelled",
		zap.String("account_number", accountNumber),
		zap.String("original_transaction_id", transactionID),
		zap.String("transaction_id", transaction.TransactionID),
		zap.Int64("amount", amount),
	)
	return detail(account.AccountNumber, transaction), nil
}

func (s *TransactionServiceImpl) validateCancelBalance(original *models.Transaction, account *models.Account, amount int64) error {
	if original.AccountID != account.ID {
		return errors.ErrTransactionAccountMismatch
	}
	if original.Amount != amount {
		return errors.ErrPartialCancelNotAllowed
	}
	if original.TransactedAt.Before(s.now().AddDate(-cancelWindow, 0, 0)) {
		return errors.ErrCancelWindowExpired
	}
	return nil
}

// QueryTransaction returns a read-only projection of one transaction,
// successful or failed.
func (s *TransactionServiceImpl) QueryTransaction(ctx context.Context, transactionID string) (*models.TransactionDetail, error) {
	transaction, err := s.transactionRepo.FindByTransactionID(ctx, transactionID)
	if err != nil {
		if errors.IsNotFound(err) {
			s.logger.Warn("transaction not found", zap.String("transaction_id", transactionID))
		}
		return nil, err
	}

	account, err := s.accountRepo.FindByID(ctx, transaction.AccountID)
	if err != nil {
		s.logger.Error("failed to resolve transaction account",
			zap.String("transaction_id", transactionID),
			zap.Int64("account_id", transaction.AccountID),
			zap.Error(err),
		)
		return nil, err
	}

	return detail(account.AccountNumber, transaction), nil
}

func detail(accountNumber string, transaction *models.Transaction) *models.TransactionDetail {
	return &models.TransactionDetail{
		AccountNumber:   accountNumber,
		TransactionID:   transaction.TransactionID,
		Type:            transaction.Type,
		Result:          transaction.Result,
		Amount:          transaction.Amount,
		BalanceSnapshot: transaction.BalanceSnapshot,
		TransactedAt:    transaction.TransactedAt,
	}
}
