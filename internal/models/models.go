package models

import (
	"time"
)

type AccountStatus string

const (
	AccountStatusInUse        AccountStatus = "IN_USE"
	AccountStatusUnregistered AccountStatus = "UNREGISTERED"
)

type TransactionType string

const (
	TransactionTypeUse    TransactionType = "USE"
	TransactionTypeCancel TransactionType = "CANCEL"
)

type TransactionResult string

const (
	TransactionResultSuccess TransactionResult = "SUCCESS"
	TransactionResultFail    TransactionResult = "FAIL"
)

// Owner is the end user holding accounts. Owners are created by an external
// system; this service only reads them.
type Owner struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Account is a ledger line. Closure is a soft transition to UNREGISTERED;
// rows are never deleted.
type Account struct {
	ID             int64         `json:"id"`
	OwnerID        int64         `json:"owner_id"`
	AccountNumber  string        `json:"account_number"`
	Status         AccountStatus `json:"status"`
	Balance        int64         `json:"balance"`
	RegisteredAt   time.Time     `json:"registered_at"`
	UnregisteredAt *time.Time    `json:"unregistered_at,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// Transaction is an immutable audit record of one balance-affecting attempt,
// successful or failed. BalanceSnapshot is the account balance at the instant
// the row was written.
type Transaction struct {
	ID              int64             `json:"id"`
	TransactionID   string            `json:"transaction_id"`
	AccountID       int64             `json:"account_id"`
	Type            TransactionType   `json:"transaction_type"`
	Result          TransactionResult `json:"result"`
	Amount          int64             `json:"amount"`
	BalanceSnapshot int64             `json:"balance_snapshot"`
	TransactedAt    time.Time         `json:"transacted_at"`
}

// TransactionDetail is the projection the transaction service hands back to
// callers: the transaction joined with its account number, internal row ids
// stripped.
type TransactionDetail struct {
	AccountNumber   string            `json:"account_number"`
	TransactionID   string            `json:"transaction_id"`
	Type            TransactionType   `json:"transaction_type"`
	Result          TransactionResult `json:"result"`
	Amount          int64             `json:"amount"`
	BalanceSnapshot int64             `json:"balance_snapshot"`
	TransactedAt    time.Time         `json:"transacted_at"`
}

type CreateAccountRequest struct {
	UserID         int64 `json:"user_id" validate:"required,min=1"`
	InitialBalance int64 `json:"initial_balance" validate:"min=0"`
}

type CreateAccountResponse struct {
	UserID        int64     `json:"user_id"`
	AccountNumber string    `json:"account_number"`
	RegisteredAt  time.Time `json:"registered_at"`
}

type DeleteAccountRequest struct {
	UserID        int64  `json:"user_id" validate:"required,min=1"`
	AccountNumber string `json:"account_number" validate:"required,len=10,numeric"`
}

type DeleteAccountResponse struct {
	UserID         int64      `json:"user_id"`
	AccountNumber  string     `json:"account_number"`
	UnregisteredAt *time.Time `json:"unregistered_at"`
}

type AccountInfo struct {
	AccountNumber string `json:"account_number"`
	Balance       int64  `json:"balance"`
}

type UseBalanceRequest struct {
	UserID        int64  `json:"user_id" validate:"required,min=1"`
	AccountNumber string `json:"account_number" validate:"required,len=10,numeric"`
	Amount        int64  `json:"amount" validate:"required,min=10,max=1000000000"`
}

type CancelBalanceRequest struct {
	TransactionID string `json:"transaction_id" validate:"required"`
	AccountNumber string `json:"account_number" validate:"required,len=10,numeric"`
	Amount        int64  `json:"amount" validate:"required,min=10,max=1000000000"`
}

type TransactionResponse struct {
	AccountNumber     string            `json:"account_number"`
	TransactionResult TransactionResult `json:"transaction_result"`
	TransactionID     string            `json:"transaction_id"`
	Amount            int64             `json:"amount"`
	TransactedAt      time.Time         `json:"transacted_at"`
}

type QueryTransactionResponse struct {
	AccountNumber     string            `json:"account_number"`
	TransactionType   TransactionType   `json:"transaction_type"`
	TransactionResult TransactionResult `json:"transaction_result"`
	TransactionID     string            `json:"transaction_id"`
	Amount            int64             `json:"amount"`
	TransactedAt      time.Time         `json:"transacted_at"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
