package types

import (
	"fmt"
	"sort"
	"strings"
)

// ErrorClass groups economy error codes by how callers should react:
// reject the request, retry after changing state, treat as a duplicate,
// or halt the table because money can no longer be trusted.
type ErrorClass string

const (
	ClassValidation    ErrorClass = "validation"
	ClassPrecondition  ErrorClass = "precondition"
	ClassIdempotency   ErrorClass = "idempotency"
	ClassAuthorization ErrorClass = "authorization"
	ClassTimeout       ErrorClass = "timeout"
	ClassFatal         ErrorClass = "fatal"
)

// ErrorCode identifies one failure mode of the economy core.
type ErrorCode string

const (
	CodeInvalidAmount ErrorCode = "invalid_amount"
	CodeInvalidID     ErrorCode = "invalid_id"
	CodeInvalidConfig ErrorCode = "invalid_config"
	CodeInvalidState  ErrorCode = "invalid_state"

	CodeAccountExists       ErrorCode = "account_exists"
	CodeAccountNotFound     ErrorCode = "account_not_found"
	CodeInsufficientBalance ErrorCode = "insufficient_balance"
	CodeInsufficientLocked  ErrorCode = "insufficient_locked"
	CodeInsufficientPending ErrorCode = "insufficient_pending"
	CodeEscrowExists        ErrorCode = "escrow_exists"
	CodeEscrowNotFound      ErrorCode = "escrow_not_found"
	CodeEscrowInsufficient  ErrorCode = "escrow_insufficient"
	CodeEscrowCommitted     ErrorCode = "escrow_committed"
	CodePotSettled          ErrorCode = "pot_settled"
	CodePotNotFound         ErrorCode = "pot_not_found"

	CodeDuplicateSettlement ErrorCode = "duplicate_settlement"
	CodeDuplicateTxn        ErrorCode = "duplicate_txn"

	CodeAuthorizationDenied ErrorCode = "authorization_denied"

	CodeTxnTimeout ErrorCode = "txn_timeout"

	CodeLedgerIntegrity  ErrorCode = "ledger_integrity"
	CodeConservation     ErrorCode = "conservation_violated"
	CodeChecksumMismatch ErrorCode = "checksum_mismatch"
	CodeAmountOverflow   ErrorCode = "amount_overflow"
)

// EconomyError is the structured error surfaced by every keeper and
// engine. Code is stable and machine-readable; Details carries the
// identifiers and amounts a caller needs to render or log the failure
// without parsing the message.
type EconomyError struct {
	Class   ErrorClass        `json:"class"`
	Code    ErrorCode         `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

func (e *EconomyError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if len(e.Details) == 0 {
		return fmt.Sprintf("economy: %s: %s", e.Code, e.Message)
	}
	keys := make([]string, 0, len(e.Details))
	for k := range e.Details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var sb strings.Builder
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "%s=%s", k, e.Details[k])
	}
	return fmt.Sprintf("economy: %s: %s (%s)", e.Code, e.Message, sb.String())
}

// Is matches errors by code, so sentinel instances below work with
// errors.Is regardless of message or details.
func (e *EconomyError) Is(target error) bool {
	other, ok := target.(*EconomyError)
	if !ok || e == nil || other == nil {
		return false
	}
	return e.Code == other.Code
}

// Fatal reports whether the error invalidates economy state rather
// than a single request. Fatal errors halt the affected table until an
// operator recovers from a snapshot.
func (e *EconomyError) Fatal() bool {
	return e != nil && e.Class == ClassFatal
}

// WithDetail returns a copy of the error with one more detail attached.
func (e *EconomyError) WithDetail(key, value string) *EconomyError {
	if e == nil {
		return nil
	}
	clone := *e
	clone.Details = make(map[string]string, len(e.Details)+1)
	for k, v := range e.Details {
		clone.Details[k] = v
	}
	clone.Details[key] = value
	return &clone
}

func newError(class ErrorClass, code ErrorCode, msg string, details map[string]string) *EconomyError {
	return &EconomyError{Class: class, Code: code, Message: msg, Details: details}
}

// ErrValidation builds a validation-class error.
func ErrValidation(code ErrorCode, msg string, details map[string]string) *EconomyError {
	return newError(ClassValidation, code, msg, details)
}

// ErrPrecondition builds a precondition-class error.
func ErrPrecondition(code ErrorCode, msg string, details map[string]string) *EconomyError {
	return newError(ClassPrecondition, code, msg, details)
}

// ErrIdempotency builds an idempotency-class error.
func ErrIdempotency(code ErrorCode, msg string, details map[string]string) *EconomyError {
	return newError(ClassIdempotency, code, msg, details)
}

// ErrAuthorization builds an authorization denial carrying the reason.
func ErrAuthorization(reason string, details map[string]string) *EconomyError {
	e := newError(ClassAuthorization, CodeAuthorizationDenied, "operation denied", details)
	if e.Details == nil {
		e.Details = map[string]string{}
	}
	e.Details["reason"] = reason
	return e
}

// ErrTimeout builds a coordinator timeout error.
func ErrTimeout(msg string, details map[string]string) *EconomyError {
	return newError(ClassTimeout, CodeTxnTimeout, msg, details)
}

// ErrFatal builds a fatal integrity error.
func ErrFatal(code ErrorCode, msg string, details map[string]string) *EconomyError {
	return newError(ClassFatal, code, msg, details)
}

// Sentinel instances for errors.Is matching. Keepers return richer
// instances built by the constructors above; these carry only the code.
var (
	ErrInvalidAmount = &EconomyError{Class: ClassValidation, Code: CodeInvalidAmount}
	ErrInvalidID     = &EconomyError{Class: ClassValidation, Code: CodeInvalidID}
	ErrInvalidConfig = &EconomyError{Class: ClassValidation, Code: CodeInvalidConfig}
	ErrInvalidState  = &EconomyError{Class: ClassValidation, Code: CodeInvalidState}

	ErrAccountExists       = &EconomyError{Class: ClassPrecondition, Code: CodeAccountExists}
	ErrAccountNotFound     = &EconomyError{Class: ClassPrecondition, Code: CodeAccountNotFound}
	ErrInsufficientBalance = &EconomyError{Class: ClassPrecondition, Code: CodeInsufficientBalance}
	ErrInsufficientLocked  = &EconomyError{Class: ClassPrecondition, Code: CodeInsufficientLocked}
	ErrInsufficientPending = &EconomyError{Class: ClassPrecondition, Code: CodeInsufficientPending}
	ErrEscrowExists        = &EconomyError{Class: ClassPrecondition, Code: CodeEscrowExists}
	ErrEscrowNotFound      = &EconomyError{Class: ClassPrecondition, Code: CodeEscrowNotFound}
	ErrEscrowInsufficient  = &EconomyError{Class: ClassPrecondition, Code: CodeEscrowInsufficient}
	ErrEscrowCommitted     = &EconomyError{Class: ClassPrecondition, Code: CodeEscrowCommitted}
	ErrPotSettled          = &EconomyError{Class: ClassPrecondition, Code: CodePotSettled}
	ErrPotNotFound         = &EconomyError{Class: ClassPrecondition, Code: CodePotNotFound}

	ErrDuplicateSettlement = &EconomyError{Class: ClassIdempotency, Code: CodeDuplicateSettlement}
	ErrDuplicateTxn        = &EconomyError{Class: ClassIdempotency, Code: CodeDuplicateTxn}

	ErrAuthorizationDenied = &EconomyError{Class: ClassAuthorization, Code: CodeAuthorizationDenied}

	ErrTxnTimeout = &EconomyError{Class: ClassTimeout, Code: CodeTxnTimeout}

	ErrLedgerIntegrity  = &EconomyError{Class: ClassFatal, Code: CodeLedgerIntegrity}
	ErrConservation     = &EconomyError{Class: ClassFatal, Code: CodeConservation}
	ErrChecksumMismatch = &EconomyError{Class: ClassFatal, Code: CodeChecksumMismatch}
	ErrAmountOverflow   = &EconomyError{Class: ClassFatal, Code: CodeAmountOverflow}
)
