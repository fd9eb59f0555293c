// Package errors defines the stable error vocabulary shared by every layer of
// the wallet core: wallet engine, idempotency service, atomic transfer
// service, and the use cases built on top of them.
package errors

import "fmt"

type ErrorCode string

const (
	InvalidAmount          ErrorCode = "INVALID_AMOUNT"
	AmountOutOfRange       ErrorCode = "AMOUNT_OUT_OF_RANGE"
	WalletNotFound         ErrorCode = "WALLET_NOT_FOUND"
	DestinationNotFound    ErrorCode = "DESTINATION_NOT_FOUND"
	InsufficientFunds      ErrorCode = "INSUFFICIENT_FUNDS"
	DuplicateUser          ErrorCode = "DUPLICATE_USER"
	DuplicatePixKey        ErrorCode = "DUPLICATE_PIX_KEY"
	InvalidPixKey          ErrorCode = "INVALID_PIX_KEY"
	IllegalState           ErrorCode = "ILLEGAL_STATE"
	TransientConflict      ErrorCode = "TRANSIENT_CONFLICT"
	DataIntegrityViolation ErrorCode = "DATA_INTEGRITY_VIOLATION"
	InvalidInput           ErrorCode = "INVALID_INPUT"
	InternalError          ErrorCode = "INTERNAL_ERROR"
)

// WalletError is the error type every core component returns. It carries a
// stable code so the HTTP layer can translate it into a status code without
// parsing message text.
type WalletError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`
}

func (e *WalletError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func New(code ErrorCode, message string) *WalletError {
	return &WalletError{Code: code, Message: message}
}

func Newf(code ErrorCode, format string, args ...interface{}) *WalletError {
	return &WalletError{Code: code, Message: fmt.Sprintf(format, args...)}
}

func (e *WalletError) WithDetails(details string) *WalletError {
	e.Details = details
	return e
}

// HTTPStatus maps the error code to the status the HTTP layer must return.
func (e *WalletError) HTTPStatus() int {
	switch e.Code {
	case InvalidAmount, AmountOutOfRange, InvalidInput, InvalidPixKey,
		DuplicateUser, DuplicatePixKey, InsufficientFunds:
		return 400
	case WalletNotFound, DestinationNotFound:
		return 404
	case IllegalState:
		return 409
	case TransientConflict:
		return 503
	default:
		return 500
	}
}

// Is reports whether err is a *WalletError with the given code.
func Is(err error, code ErrorCode) bool {
	we, ok := err.(*WalletError)
	return ok && we.Code == code
}

// Predefined errors used by more than one caller.
var (
	ErrWalletNotFound      = New(WalletNotFound, "wallet not found")
	ErrDestinationNotFound = New(DestinationNotFound, "destination pix key not found or inactive")
	ErrInsufficientFunds   = New(InsufficientFunds, "insufficient funds")
	ErrDuplicateUser       = New(DuplicateUser, "wallet already exists for user")
	ErrIllegalState        = New(IllegalState, "transfer is not in a state that allows this transition")
	ErrTransientConflict   = New(TransientConflict, "operation could not complete due to contention, retry")
)
