package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrRateLimited   = errors.New("rate limited")
	ErrLockHeld      = errors.New("lock already held")
)

// ErrorKind classifies terminal failures of the swap engine.
type ErrorKind string

const (
	KindValidation          ErrorKind = "validation_error"
	KindNoLiquidity         ErrorKind = "no_liquidity"
	KindInsufficientFunds   ErrorKind = "insufficient_funds"
	KindAllowanceFailure    ErrorKind = "allowance_failure"
	KindSigningFailure      ErrorKind = "signing_failure"
	KindSubmissionFailure   ErrorKind = "submission_failure"
	KindConfirmationTimeout ErrorKind = "confirmation_timeout"
	KindDecodeError         ErrorKind = "decode_error"
	KindUpstreamError       ErrorKind = "upstream_error"
	KindTransactionReverted ErrorKind = "transaction_reverted"
)

// Per-kind sentinels so callers can use errors.Is.
var (
	ErrValidation          = &Error{Kind: KindValidation}
	ErrNoLiquidity         = &Error{Kind: KindNoLiquidity}
	ErrInsufficientFunds   = &Error{Kind: KindInsufficientFunds}
	ErrAllowanceFailure    = &Error{Kind: KindAllowanceFailure}
	ErrSigningFailure      = &Error{Kind: KindSigningFailure}
	ErrSubmissionFailure   = &Error{Kind: KindSubmissionFailure}
	ErrConfirmationTimeout = &Error{Kind: KindConfirmationTimeout}
	ErrDecode              = &Error{Kind: KindDecodeError}
	ErrUpstream            = &Error{Kind: KindUpstreamError}
	ErrReverted            = &Error{Kind: KindTransactionReverted}
)

// Error is the single error type returned by engine components.
type Error struct {
	Kind    ErrorKind
	Op      string
	Message string
	Cause   error
	// Advice is set on InsufficientFunds errors raised during execution.
	Advice *ShortfallAdvice
	// Shortfall is set on InsufficientFunds errors raised before an advisor
	// was available; callers turn it into Advice.
	Shortfall *Shortfall
	// TxHash is the transaction the error refers to, when there is one.
	TxHash string
}

// NewError builds an Error without a cause.
func NewError(kind ErrorKind, op, msg string) *Error {
	return &Error{Kind: kind, Op: op, Message: msg}
}

// WrapError builds an Error around cause.
func WrapError(kind ErrorKind, op, msg string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Message: msg, Cause: cause}
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches any *Error of the same kind, so errors.Is(err, ErrNoLiquidity)
// works regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// KindOf returns the kind of the first *Error in err's chain, or "".
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}

// ShortfallOf returns the unadvised shortfall attached to err, if any.
func ShortfallOf(err error) *Shortfall {
	var e *Error
	if errors.As(err, &e) {
		return e.Shortfall
	}
	return nil
}

// AdviceOf returns the shortfall advice attached to err, if any.
func AdviceOf(err error) *ShortfallAdvice {
	var e *Error
	if errors.As(err, &e) {
		return e.Advice
	}
	return nil
}
