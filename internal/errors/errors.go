package errors

import (
	"errors"
	"fmt"
)

// Code identifies a business-rule failure. Infrastructure faults are never
// assigned a Code; they propagate as plain wrapped errors.
type Code string

const (
	CodeOwnerNotFound              Code = "OWNER_NOT_FOUND"
	CodeAccountNotFound            Code = "ACCOUNT_NOT_FOUND"
	CodeOwnershipMismatch          Code = "OWNERSHIP_MISMATCH"
	CodeTooManyAccounts            Code = "TOO_MANY_ACCOUNTS"
	CodeAlreadyClosed              Code = "ACCOUNT_ALREADY_CLOSED"
	CodeBalanceNotEmpty            Code = "BALANCE_NOT_EMPTY"
	CodeAccountClosed              Code = "ACCOUNT_CLOSED"
	CodeInsufficientBalance        Code = "INSUFFICIENT_BALANCE"
	CodeTransactionNotFound        Code = "TRANSACTION_NOT_FOUND"
	CodeTransactionAccountMismatch Code = "TRANSACTION_ACCOUNT_MISMATCH"
	CodePartialCancelNotAllowed    Code = "PARTIAL_CANCEL_NOT_ALLOWED"
	CodeCancelWindowExpired        Code = "CANCEL_WINDOW_EXPIRED"
	CodeAccountLocked              Code = "ACCOUNT_LOCKED"
)

var descriptions = map[Code]string{
	CodeOwnerNotFound:              "owner not found",
	CodeAccountNotFound:            "account not found",
	CodeOwnershipMismatch:          "account is not held by this owner",
	CodeTooManyAccounts:            "owner already holds the maximum number of accounts",
	CodeAlreadyClosed:              "account is already unregistered",
	CodeBalanceNotEmpty:            "account balance must be zero to close",
	CodeAccountClosed:              "account is unregistered",
	CodeInsufficientBalance:        "amount exceeds account balance",
	CodeTransactionNotFound:        "transaction not found",
	CodeTransactionAccountMismatch: "transaction does not belong to this account",
	CodePartialCancelNotAllowed:    "cancel amount must equal the original transaction amount",
	CodeCancelWindowExpired:        "transaction is too old to cancel",
	CodeAccountLocked:              "account is in use by another transaction",
}

// AccountError is a business-rule failure with a machine-readable code and a
// human-readable message.
type AccountError struct {
	Code    Code
	Message string
}

func (e *AccountError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is makes two AccountErrors carrying the same code match under errors.Is.
func (e *AccountError) Is(target error) bool {
	var other *AccountError
	if !errors.As(target, &other) {
		return false
	}
	return e.Code == other.Code
}

func New(code Code) *AccountError {
	return &AccountError{
		Code:    code,
		Message: descriptions[code],
	}
}

// Sentinel values for the taxonomy. Comparison is by code, so wrapped copies
// still match under errors.Is.
var (
	ErrOwnerNotFound              = New(CodeOwnerNotFound)
	ErrAccountNotFound            = New(CodeAccountNotFound)
	ErrOwnershipMismatch          = New(CodeOwnershipMismatch)
	ErrTooManyAccounts            = New(CodeTooManyAccounts)
	ErrAlreadyClosed              = New(CodeAlreadyClosed)
	ErrBalanceNotEmpty            = New(CodeBalanceNotEmpty)
	ErrAccountClosed              = New(CodeAccountClosed)
	ErrInsufficientBalance        = New(CodeInsufficientBalance)
	ErrTransactionNotFound        = New(CodeTransactionNotFound)
	ErrTransactionAccountMismatch = New(CodeTransactionAccountMismatch)
	ErrPartialCancelNotAllowed    = New(CodePartialCancelNotAllowed)
	ErrCancelWindowExpired        = New(CodeCancelWindowExpired)
	ErrAccountLocked              = New(CodeAccountLocked)
)

// CodeOf extracts the business code from err. ok is false for infrastructure
// faults and nil errors.
func CodeOf(err error) (Code, bool) {
	var accountErr *AccountError
	if errors.As(err, &accountErr) {
		return accountErr.Code, true
	}
	return "", false
}

// Is reports whether err carries the given business code.
func Is(err error, code Code) bool {
	got, ok := CodeOf(err)
	return ok && got == code
}

// IsBusiness reports whether err is a business-rule failure as opposed to an
// infrastructure fault.
func IsBusiness(err error) bool {
	_, ok := CodeOf(err)
	return ok
}

func IsNotFound(err error) bool {
	return Is(err, CodeOwnerNotFound) || Is(err, CodeAccountNotFound) || Is(err, CodeTransactionNotFound)
}
