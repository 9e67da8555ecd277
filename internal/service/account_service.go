package service

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/jihoonkang/account-api/internal/errors"
	"github.com/jihoonkang/account-api/internal/models"
	"github.com/jihoonkang/account-api/internal/repository"
)

// Each owner may hold at most this many IN_USE accounts.
const maxAccountsPerOwner = 10

// Account numbering starts here when the ledger is empty.
const firstAccountNumber = "1000000000"

type AccountService interface {
	CreateAccount(ctx context.Context, ownerID int64, initialBalance int64) (*models.Account, error)
	CloseAccount(ctx context.Context, ownerID int64, accountNumber string) (*models.Account, error)
	ListAccounts(ctx context.Context, ownerID int64) ([]*models.Account, error)
}

type AccountServiceImpl struct {
	db          *sql.DB
	ownerRepo   repository.OwnerRepository
	accountRepo repository.AccountRepository
	logger      *zap.Logger
}

func NewAccountService(db *sql.DB, ownerRepo repository.OwnerRepository, accountRepo repository.AccountRepository, logger *zap.Logger) *AccountServiceImpl {
	return &AccountServiceImpl{
		db:          db,
		ownerRepo:   ownerRepo,
		accountRepo: accountRepo,
		logger:      logger,
	}
}

// CreateAccount opens a new IN_USE account for the owner. The account number
// is one greater than the most recently inserted account's number, or
// "1000000000" when no account exists anywhere yet. The owner row is locked
// so the per-owner cap cannot be exceeded by concurrent creations.
func (s *AccountServiceImpl) CreateAccount(ctx context.Context, ownerID int64, initialBalance int64) (*models.Account, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		s.logger.Error("failed to begin transaction", zap.Error(err))
		return nil, fmt.Errorf("begin create account: %w", err)
	}
	defer func() {
		if tx != nil {
			tx.Rollback()
		}
	}()

	owner, err := s.ownerRepo.FindByIDForUpdate(ctx, tx, ownerID)
	if err != nil {
		if errors.IsNotFound(err) {
			s.logger.Warn("owner not found", zap.Int64("owner_id", ownerID))
			return nil, err
		}
		s.logger.Error("failed to get owner", zap.Int64("owner_id", ownerID), zap.Error(err))
		return nil, err
	}

	count, err := s.accountRepo.CountInUseByOwner(ctx, tx, owner.ID)
	if err != nil {
		s.logger.Error("failed to count accounts", zap.Int64("owner_id", ownerID), zap.Error(err))
		return nil, err
	}
	if count >= maxAccountsPerOwner {
		s.logger.Warn("owner at account limit",
			zap.Int64("owner_id", ownerID),
			zap.Int("in_use_accounts", count),
		)
		return nil, errors.ErrTooManyAccounts
	}

	number, err := s.nextAccountNumber(ctx, tx)
	if err != nil {
		s.logger.Error("failed to compute next account number", zap.Error(err))
		return nil, err
	}

	account := &models.Account{
		OwnerID:       owner.ID,
		AccountNumber: number,
		Status:        models.AccountStatusInUse,
		Balance:       initialBalance,
		RegisteredAt:  time.Now(),
	}

	if err := s.accountRepo.Insert(ctx, tx, account); err != nil {
		s.logger.Error("failed to insert account",
			zap.Int64("owner_id", ownerID),
			zap.String("account_number", number),
			zap.Error(err),
		)
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		s.logger.Error("failed to commit account creation", zap.Error(err))
		return nil, fmt.Errorf("commit create account: %w", err)
	}
	tx = nil

	s.logger.Info("account created",
		zap.Int64("owner_id", ownerID),
		zap.String("account_number", account.AccountNumber),
	)
	return account, nil
}

// nextAccountNumber reads the latest account by insertion order, not by the
// numeric value of its number, and increments. Mirrors the ledger convention
// that numbers are assigned strictly increasing with creation order.
func (s *AccountServiceImpl) nextAccountNumber(ctx context.Context, tx *sql.Tx) (string, error) {
	latest, err := s.accountRepo.FindLatest(ctx, tx)
	if err != nil {
		if errors.IsNotFound(err) {
			return firstAccountNumber, nil
		}
		return "", err
	}

	n, err := strconv.ParseInt(latest.AccountNumber, 10, 64)
	if err != nil {
		return "", fmt.Errorf("malformed account number %q: %w", latest.AccountNumber, err)
	}
	return fmt.Sprintf("%010d", n+1), nil
}

// CloseAccount transitions an account to UNREGISTERED. The balance must be
// zero and the transition is one-way; the row stays in place.
func (s *AccountServiceImpl) CloseAccount(ctx context.Context, ownerID int64, accountNumber string) (*models.Account, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		s.logger.Error("failed to begin transaction", zap.Error(err))
		return nil, fmt.Errorf("begin close account: %w", err)
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

	if err := validateCloseAccount(owner, account); err != nil {
		s.logger.Warn("close account rejected",
			zap.Int64("owner_id", ownerID),
			zap.String("account_number", accountNumber),
			zap.Error(err),
		)
		return nil, err
	}

	now := time.Now()
	account.Status = models.AccountStatusUnregistered
	account.UnregisteredAt = &now

	if err := s.accountRepo.Update(ctx, tx, account); err != nil {
		s.logger.Error("failed to update account",
			zap.String("account_number", accountNumber),
			zap.Error(err),
		)
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		s.logger.Error("failed to commit account closure", zap.Error(err))
		return nil, fmt.Errorf("commit close account: %w", err)
	}
	tx = nil

	s.logger.Info("account closed",
		zap.Int64("owner_id", ownerID),
		zap.String("account_number", accountNumber),
	)
	return account, nil
}

func validateCloseAccount(owner *models.Owner, account *models.Account) error {
	if owner.ID != account.OwnerID {
		return errors.ErrOwnershipMismatch
	}
	if account.Status == models.AccountStatusUnregistered {
		return errors.ErrAlreadyClosed
	}
	if account.Balance > 0 {
		return errors.ErrBalanceNotEmpty
	}
	return nil
}

// ListAccounts returns every account the owner holds, any status.
func (s *AccountServiceImpl) ListAccounts(ctx context.Context, ownerID int64) ([]*models.Account, error) {
	if _, err := s.ownerRepo.FindByID(ctx, ownerID); err != nil {
		if errors.IsNotFound(err) {
			s.logger.Warn("owner not found", zap.Int64("owner_id", ownerID))
		}
		return nil, err
	}

	accounts, err := s.accountRepo.ListByOwner(ctx, ownerID)
	if err != nil {
		s.logger.Error("failed to list accounts", zap.Int64("owner_id", ownerID), zap.Error(err))
		return nil, err
	}
	return accounts, nil
}
