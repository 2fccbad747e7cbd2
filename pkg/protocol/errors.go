package protocol

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a protocol error. Every operation aborts atomically on
// error; the kind tells the caller what to do next (fix the call, re-query
// state, or give up).
type ErrorKind string

const (
	// KindAuthorization means the caller lacks the required role.
	// Never retried automatically.
	KindAuthorization ErrorKind = "authorization"

	// KindState means the operation is invalid for the record's current
	// status. The caller must re-query state before retrying.
	KindState ErrorKind = "state"

	// KindValidation means the input was malformed; no mutation occurred.
	KindValidation ErrorKind = "validation"

	// KindInsufficientValue means a stake or payment was below the required
	// threshold. No partial acceptance.
	KindInsufficientValue ErrorKind = "insufficient_value"

	// KindTransfer means an outbound value transfer failed; the enclosing
	// operation rolled back in full.
	KindTransfer ErrorKind = "transfer"

	// KindReentrancy means a nested call tried to re-enter a guarded
	// operation; it aborted immediately with no state change.
	KindReentrancy ErrorKind = "reentrancy"
)

// Error is a classified protocol error with call context.
type Error struct {
	// Kind is the error classification.
	Kind ErrorKind `json:"kind"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code is an optional stable code for programmatic handling.
	Code string `json:"code,omitempty"`

	// ConditionID is the affected condition, if applicable.
	ConditionID uint64 `json:"condition_id,omitempty"`

	// Principal is the caller or subject principal, if applicable.
	Principal string `json:"principal,omitempty"`

	// Operation is the operation being performed when the error occurred.
	Operation string `json:"operation,omitempty"`

	// Err is the underlying error, if any.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Kind, e.Message)
	if e.Operation != "" {
		msg += fmt.Sprintf(" (operation=%s)", e.Operation)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error for error chain inspection.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is implements error equality for errors.Is: two protocol errors match when
// their kind and code agree.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Code != "" && e.Code != t.Code {
		return false
	}
	return e.Kind == t.Kind
}

// WithCondition adds condition context to the error.
func (e *Error) WithCondition(id uint64) *Error {
	e.ConditionID = id
	return e
}

// WithPrincipal adds principal context to the error.
func (e *Error) WithPrincipal(p string) *Error {
	e.Principal = p
	return e
}

// WithOperation adds operation context to the error.
func (e *Error) WithOperation(op string) *Error {
	e.Operation = op
	return e
}

// NewAuthorizationError creates a new authorization error.
func NewAuthorizationError(message string) *Error {
	return &Error{Kind: KindAuthorization, Message: message}
}

// NewStateError creates a new state error.
func NewStateError(message string) *Error {
	return &Error{Kind: KindState, Message: message}
}

// NewValidationError creates a new validation error.
func NewValidationError(message string) *Error {
	return &Error{Kind: KindValidation, Message: message}
}

// NewInsufficientValueError creates a new insufficient-value error.
func NewInsufficientValueError(message string) *Error {
	return &Error{Kind: KindInsufficientValue, Message: message}
}

// NewTransferError creates a new transfer error wrapping the transport cause.
func NewTransferError(message string, err error) *Error {
	return &Error{Kind: KindTransfer, Message: message, Err: err}
}

// NewReentrancyError creates a new reentrancy error.
func NewReentrancyError(message string) *Error {
	return &Error{Kind: KindReentrancy, Message: message}
}

// IsAuthorization returns true if the error is an authorization failure.
func IsAuthorization(err error) bool { return isKind(err, KindAuthorization) }

// IsState returns true if the error is a state failure.
func IsState(err error) bool { return isKind(err, KindState) }

// IsValidation returns true if the error is a validation failure.
func IsValidation(err error) bool { return isKind(err, KindValidation) }

// IsInsufficientValue returns true if the error is an insufficient-value failure.
func IsInsufficientValue(err error) bool { return isKind(err, KindInsufficientValue) }

// IsTransfer returns true if the error is a transfer failure.
func IsTransfer(err error) bool { return isKind(err, KindTransfer) }

// IsReentrancy returns true if the error is a reentrancy failure.
func IsReentrancy(err error) bool { return isKind(err, KindReentrancy) }

func isKind(err error, kind ErrorKind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// Stable error codes.
const (
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeAlreadyStaked     = "ALREADY_STAKED"
	ErrCodeAlreadyChallenged = "ALREADY_CHALLENGED"
	ErrCodeAlreadyReleased   = "ALREADY_RELEASED"
	ErrCodePeriodExpired     = "PERIOD_EXPIRED"
	ErrCodeTerminalStatus    = "TERMINAL_STATUS"
	ErrCodeNotChallenged     = "NOT_CHALLENGED"
	ErrCodeNoProof           = "NO_PROOF"
	ErrCodeBelowMinimum      = "BELOW_MINIMUM"
	ErrCodeNotStaked         = "NOT_STAKED"
)

// WithCode adds a stable code to the error.
func (e *Error) WithCode(code string) *Error {
	e.Code = code
	return e
}
