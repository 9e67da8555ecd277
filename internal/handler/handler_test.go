package handler

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jihoonkang/account-api/internal/errors"
	"github.com/jihoonkang/account-api/internal/models"
)

type stubAccountService struct {
	account  *models.Account
	accounts []*models.Account
	err      error
	calls    int
}

func (s *stubAccountService) CreateAccount(context.Context, int64, int64) (*models.Account, error) {
	s.calls++
	return s.account, s.err
}

func (s *stubAccountService) CloseAccount(context.Context, int64, string) (*models.Account, error) {
	s.calls++
	return s.account, s.err
}

func (s *stubAccountService) ListAccounts(context.Context, int64) ([]*models.Account, error) {
	s.calls++
	return s.accounts, s.err
}

type failedRecord struct {
	accountNumber string
	amount        int64
}

type stubTransactionService struct {
	detail        *models.TransactionDetail
	err           error
	calls         int
	failedUses    []failedRecord
	failedCancels []failedRecord
}

func (s *stubTransactionService) UseBalance(context.Context, int64, string, int64) (*models.TransactionDetail, error) {
	s.calls++
	return s.detail, s.err
}

func (s *stubTransactionService) RecordFailedUse(_ context.Context, accountNumber string, amount int64) error {
	s.failedUses = append(s.failedUses, failedRecord{accountNumber, amount})
	return nil
}

func (s *stubTransactionService) CancelBalance(context.Context, string, string, int64) (*models.TransactionDetail, error) {
	s.calls++
	return s.detail, s.err
}

func (s *stubTransactionService) RecordFailedCancel(_ context.Context, accountNumber string, amount int64) error {
	s.failedCancels = append(s.failedCancels, failedRecord{accountNumber, amount})
	return nil
}

func (s *stubTransactionService) QueryTransaction(context.Context, string) (*models.TransactionDetail, error) {
	s.calls++
	return s.detail, s.err
}

type stubLocker struct {
	err      error
	acquired int
	released int
}

func (l *stubLocker) Acquire(context.Context, string) (func(), error) {
	if l.err != nil {
		return nil, l.err
	}
	l.acquired++
	return func() { l.released++ }, nil
}

func newAccountRouter(svc *stubAccountService) *mux.Router {
	router := mux.NewRouter()
	NewAccountHandler(svc, validator.New(), zap.NewNop()).RegisterRoutes(router)
	return router
}

func newTransactionRouter(svc *stubTransactionService, locker *stubLocker) *mux.Router {
	router := mux.NewRouter()
	NewTransactionHandler(svc, locker, validator.New(), zap.NewNop()).RegisterRoutes(router)
	return router
}

func doJSON(t *testing.T, router *mux.Router, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestCreateAccountHandler(t *testing.T) {
	registeredAt := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	svc := &stubAccountService{account: &models.Account{
		OwnerID:       1,
		AccountNumber: "1000000000",
		Status:        models.AccountStatusInUse,
		Balance:       1000,
		RegisteredAt:  registeredAt,
	}}

	rec := doJSON(t, newAccountRouter(svc), http.MethodPost, "/account",
		map[string]interface{}{"user_id": 1, "initial_balance": 1000})

	require.Equal(t, http.StatusOK, rec.Code)
	var resp models.CreateAccountResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, int64(1), resp.UserID)
	assert.Equal(t, "1000000000", resp.AccountNumber)
	assert.True(t, registeredAt.Equal(resp.RegisteredAt))
}

func TestCreateAccountHandlerValidation(t *testing.T) {
	svc := &stubAccountService{}

	// user_id missing
	rec := doJSON(t, newAccountRouter(svc), http.MethodPost, "/account",
		map[string]interface{}{"initial_balance": 1000})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, svc.calls)
}

func TestCreateAccountHandlerOwnerNotFound(t *testing.T) {
	svc := &stubAccountService{err: errors.ErrOwnerNotFound}

	rec := doJSON(t, newAccountRouter(svc), http.MethodPost, "/account",
		map[string]interface{}{"user_id": 42, "initial_balance": 0})

	require.Equal(t, http.StatusNotFound, rec.Code)
	var resp models.ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "OWNER_NOT_FOUND", resp.Error)
}

func TestDeleteAccountHandler(t *testing.T) {
	unregisteredAt := time.Date(2026, 4, 2, 8, 0, 0, 0, time.UTC)
	svc := &stubAccountService{account: &models.Account{
		OwnerID:        1,
		AccountNumber:  "1000000000",
		Status:         models.AccountStatusUnregistered,
		UnregisteredAt: &unregisteredAt,
	}}

	rec := doJSON(t, newAccountRouter(svc), http.MethodDelete, "/account",
		map[string]interface{}{"user_id": 1, "account_number": "1000000000"})

	require.Equal(t, http.StatusOK, rec.Code)
	var resp models.DeleteAccountResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "1000000000", resp.AccountNumber)
	require.NotNil(t, resp.UnregisteredAt)
	assert.True(t, unregisteredAt.Equal(*resp.UnregisteredAt))
}

func TestDeleteAccountHandlerBalanceNotEmpty(t *testing.T) {
	svc := &stubAccountService{err: errors.ErrBalanceNotEmpty}

	rec := doJSON(t, newAccountRouter(svc), http.MethodDelete, "/account",
		map[string]interface{}{"user_id": 1, "account_number": "1000000000"})

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var resp models.ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "BALANCE_NOT_EMPTY", resp.Error)
}

func TestListAccountsHandler(t *testing.T) {
	svc := &stubAccountService{accounts: []*models.Account{
		{AccountNumber: "1000000000", Balance: 100},
		{AccountNumber: "1000000001", Balance: 0, Status: models.AccountStatusUnregistered},
	}}

	rec := doJSON(t, newAccountRouter(svc), http.MethodGet, "/account?user_id=1", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp []models.AccountInfo
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp, 2)
	assert.Equal(t, "1000000000", resp[0].AccountNumber)
	assert.Equal(t, int64(100), resp[0].Balance)
}

func TestListAccountsHandlerBadUserID(t *testing.T) {
	rec := doJSON(t, newAccountRouter(&stubAccountService{}), http.MethodGet, "/account?user_id=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUseBalanceHandler(t *testing.T) {
	transactedAt := time.Date(2026, 5, 1, 14, 0, 0, 0, time.UTC)
	svc := &stubTransactionService{detail: &models.TransactionDetail{
		AccountNumber:   "1000000000",
		TransactionID:   "aabbccdd",
		Type:            models.TransactionTypeUse,
		Result:          models.TransactionResultSuccess,
		Amount:          1000,
		BalanceSnapshot: 29000,
		TransactedAt:    transactedAt,
	}}
	locker := &stubLocker{}

	rec := doJSON(t, newTransactionRouter(svc, locker), http.MethodPost, "/transaction/use",
		map[string]interface{}{"user_id": 1, "account_number": "1000000000", "amount": 1000})

	require.Equal(t, http.StatusOK, rec.Code)
	var resp models.TransactionResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "1000000000", resp.AccountNumber)
	assert.Equal(t, models.TransactionResultSuccess, resp.TransactionResult)
	assert.Equal(t, "aabbccdd", resp.TransactionID)
	assert.Equal(t, int64(1000), resp.Amount)

	assert.Equal(t, 1, locker.acquired)
	assert.Equal(t, 1, locker.released)
	assert.Empty(t, svc.failedUses)
}

func TestUseBalanceHandlerRecordsFailure(t *testing.T) {
	svc := &stubTransactionService{err: errors.ErrInsufficientBalance}
	locker := &stubLocker{}

	rec := doJSON(t, newTransactionRouter(svc, locker), http.MethodPost, "/transaction/use",
		map[string]interface{}{"user_id": 1, "account_number": "1000000000", "amount": 10000})

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var resp models.ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "INSUFFICIENT_BALANCE", resp.Error)

	require.Len(t, svc.failedUses, 1)
	assert.Equal(t, failedRecord{"1000000000", 10000}, svc.failedUses[0])
	assert.Equal(t, 1, locker.released)
}

func TestUseBalanceHandlerInfraErrorNotRecorded(t *testing.T) {
	svc := &stubTransactionService{err: stderrors.New("db down")}

	rec := doJSON(t, newTransactionRouter(svc, &stubLocker{}), http.MethodPost, "/transaction/use",
		map[string]interface{}{"user_id": 1, "account_number": "1000000000", "amount": 1000})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Empty(t, svc.failedUses)
}

func TestUseBalanceHandlerValidation(t *testing.T) {
	svc := &stubTransactionService{}
	locker := &stubLocker{}

	// amount below the minimum of 10
	rec := doJSON(t, newTransactionRouter(svc, locker), http.MethodPost, "/transaction/use",
		map[string]interface{}{"user_id": 1, "account_number": "1000000000", "amount": 5})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, svc.calls)
	assert.Zero(t, locker.acquired)
}

func TestUseBalanceHandlerAccountLocked(t *testing.T) {
	svc := &stubTransactionService{}
	locker := &stubLocker{err: errors.ErrAccountLocked}

	rec := doJSON(t, newTransactionRouter(svc, locker), http.MethodPost, "/transaction/use",
		map[string]interface{}{"user_id": 1, "account_number": "1000000000", "amount": 1000})

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Zero(t, svc.calls)
}

func TestCancelBalanceHandlerRecordsFailure(t *testing.T) {
	svc := &stubTransactionService{err: errors.ErrPartialCancelNotAllowed}

	rec := doJSON(t, newTransactionRouter(svc, &stubLocker{}), http.MethodPost, "/transaction/cancel",
		map[string]interface{}{"transaction_id": "aabbccdd", "account_number": "1000000000", "amount": 500})

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var resp models.ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "PARTIAL_CANCEL_NOT_ALLOWED", resp.Error)

	require.Len(t, svc.failedCancels, 1)
	assert.Equal(t, failedRecord{"1000000000", 500}, svc.failedCancels[0])
}

func TestQueryTransactionHandler(t *testing.T) {
	transactedAt := time.Date(2026, 1, 20, 16, 45, 0, 0, time.UTC)
	svc := &stubTransactionService{detail: &models.TransactionDetail{
		AccountNumber:   "1000000000",
		TransactionID:   "aabbccdd",
		Type:            models.TransactionTypeCancel,
		Result:          models.TransactionResultFail,
		Amount:          500,
		BalanceSnapshot: 1500,
		TransactedAt:    transactedAt,
	}}

	rec := doJSON(t, newTransactionRouter(svc, &stubLocker{}), http.MethodGet, "/transaction/aabbccdd", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp models.QueryTransactionResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, models.TransactionTypeCancel, resp.TransactionType)
	assert.Equal(t, models.TransactionResultFail, resp.TransactionResult)
	assert.Equal(t, "aabbccdd", resp.TransactionID)
}

func TestQueryTransactionHandlerNotFound(t *testing.T) {
	svc := &stubTransactionService{err: errors.ErrTransactionNotFound}

	rec := doJSON(t, newTransactionRouter(svc, &stubLocker{}), http.MethodGet, "/transaction/missing", nil)

	require.Equal(t, http.StatusNotFound, rec.Code)
	var resp models.ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "TRANSACTION_NOT_FOUND", resp.Error)
}
