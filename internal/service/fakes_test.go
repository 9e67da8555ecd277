package service

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"sync"
	"testing"

	"github.com/jihoonkang/account-api/internal/errors"
	"github.com/jihoonkang/account-api/internal/models"
)

// stubDriver satisfies database/sql so services can open and commit real
// *sql.Tx values in tests. All statements go through the fake repositories,
// so the driver only has to hand out no-op transactions.
type stubDriver struct{}

func (stubDriver) Open(string) (driver.Conn, error) { return &stubConn{}, nil }

type stubConn struct{}

func (*stubConn) Prepare(string) (driver.Stmt, error) { return nil, driver.ErrSkip }
func (*stubConn) Close() error                        { return nil }
func (*stubConn) Begin() (driver.Tx, error)           { return stubTx{}, nil }

func (*stubConn) BeginTx(context.Context, driver.TxOptions) (driver.Tx, error) {
	return stubTx{}, nil
}

type stubTx struct{}

func (stubTx) Commit() error   { return nil }
func (stubTx) Rollback() error { return nil }

var registerStubDriver sync.Once

func newStubDB(t *testing.T) *sql.DB {
	t.Helper()
	registerStubDriver.Do(func() {
		sql.Register("stub", stubDriver{})
	})
	db, err := sql.Open("stub", "")
	if err != nil {
		t.Fatalf("open stub db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

type fakeOwnerRepo struct {
	owners map[int64]*models.Owner
}

func newFakeOwnerRepo(owners ...*models.Owner) *fakeOwnerRepo {
	r := &fakeOwnerRepo{owners: make(map[int64]*models.Owner)}
	for _, o := range owners {
		r.owners[o.ID] = o
	}
	return r
}

func (r *fakeOwnerRepo) FindByID(_ context.Context, id int64) (*models.Owner, error) {
	owner, ok := r.owners[id]
	if !ok {
		return nil, errors.ErrOwnerNotFound
	}
	copied := *owner
	return &copied, nil
}

func (r *fakeOwnerRepo) FindByIDForUpdate(ctx context.Context, _ *sql.Tx, id int64) (*models.Owner, error) {
	return r.FindByID(ctx, id)
}

// fakeAccountRepo keeps accounts in insertion order and hands out copies, so
// a rolled-back service mutation is not observable through later reads.
type fakeAccountRepo struct {
	accounts []*models.Account
	nextID   int64
}

func newFakeAccountRepo(accounts ...*models.Account) *fakeAccountRepo {
	r := &fakeAccountRepo{}
	for _, a := range accounts {
		copied := *a
		r.nextID++
		if copied.ID == 0 {
			copied.ID = r.nextID
		}
		r.accounts = append(r.accounts, &copied)
	}
	return r
}

func (r *fakeAccountRepo) find(match func(*models.Account) bool) (*models.Account, error) {
	for _, a := range r.accounts {
		if match(a) {
			copied := *a
			return &copied, nil
		}
	}
	return nil, errors.ErrAccountNotFound
}

func (r *fakeAccountRepo) FindByID(_ context.Context, id int64) (*models.Account, error) {
	return r.find(func(a *models.Account) bool { return a.ID == id })
}

func (r *fakeAccountRepo) FindByNumber(_ context.Context, number string) (*models.Account, error) {
	return r.find(func(a *models.Account) bool { return a.AccountNumber == number })
}

func (r *fakeAccountRepo) FindByNumberForUpdate(ctx context.Context, _ *sql.Tx, number string) (*models.Account, error) {
	return r.FindByNumber(ctx, number)
}

func (r *fakeAccountRepo) FindLatest(context.Context, *sql.Tx) (*models.Account, error) {
	if len(r.accounts) == 0 {
		return nil, errors.ErrAccountNotFound
	}
	copied := *r.accounts[len(r.accounts)-1]
	return &copied, nil
}

func (r *fakeAccountRepo) CountInUseByOwner(_ context.Context, _ *sql.Tx, ownerID int64) (int, error) {
	count := 0
	for _, a := range r.accounts {
		if a.OwnerID == ownerID && a.Status == models.AccountStatusInUse {
			count++
		}
	}
	return count, nil
}

func (r *fakeAccountRepo) Insert(_ context.Context, _ *sql.Tx, account *models.Account) error {
	r.nextID++
	account.ID = r.nextID
	copied := *account
	r.accounts = append(r.accounts, &copied)
	return nil
}

func (r *fakeAccountRepo) Update(_ context.Context, _ *sql.Tx, account *models.Account) error {
	for i, a := range r.accounts {
		if a.ID == account.ID {
			copied := *account
			r.accounts[i] = &copied
			return nil
		}
	}
	return errors.ErrAccountNotFound
}

func (r *fakeAccountRepo) ListByOwner(_ context.Context, ownerID int64) ([]*models.Account, error) {
	var out []*models.Account
	for _, a := range r.accounts {
		if a.OwnerID == ownerID {
			copied := *a
			out = append(out, &copied)
		}
	}
	return out, nil
}

type fakeTransactionRepo struct {
	transactions []*models.Transaction
	nextID       int64
}

func (r *fakeTransactionRepo) Insert(_ context.Context, _ *sql.Tx, transaction *models.Transaction) error {
	r.nextID++
	transaction.ID = r.nextID
	copied := *transaction
	r.transactions = append(r.transactions, &copied)
	return nil
}

func (r *fakeTransactionRepo) InsertWithDB(ctx context.Context, transaction *models.Transaction) error {
	return r.Insert(ctx, nil, transaction)
}

func (r *fakeTransactionRepo) FindByTransactionID(_ context.Context, transactionID string) (*models.Transaction, error) {
	for _, tr := range r.transactions {
		if tr.TransactionID == transactionID {
			copied := *tr
			return &copied, nil
		}
	}
	return nil, errors.ErrTransactionNotFound
}
