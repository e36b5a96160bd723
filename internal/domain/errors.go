package domain

import "errors"

// Validation errors: the caller can fix the request and resubmit.
var (
	ErrEmptyField        = errors.New("required field is empty")
	ErrFieldTooLong      = errors.New("field exceeds maximum length")
	ErrZeroAmount        = errors.New("amount must be positive")
	ErrSameAnswer        = errors.New("proposed answer matches current answer")
	ErrInvalidDeadline   = errors.New("deadline outside allowed bounds")
	ErrInvalidPrice      = errors.New("price must be positive")
	ErrTooManyCategories = errors.New("too many categories")
	ErrOverflow          = errors.New("amount exceeds ledger capacity")
)

// State-conflict errors: the request was well-formed but the ledger is not in
// the required state.
var (
	ErrNotFound          = errors.New("not found")
	ErrOpinionInactive   = errors.New("opinion is not active")
	ErrSameOwner         = errors.New("caller already owns the current answer")
	ErrNotOwner          = errors.New("caller does not own the question")
	ErrNotListed         = errors.New("question is not listed for sale")
	ErrPoolNotActive     = errors.New("pool is not active")
	ErrPoolNotExpired    = errors.New("pool is not expired")
	ErrPoolExecuted      = errors.New("pool already executed")
	ErrDeadlinePassed    = errors.New("pool deadline has passed")
	ErrNoContribution    = errors.New("caller never contributed to this pool")
	ErrAlreadyWithdrawn  = errors.New("contribution already withdrawn")
	ErrGraceWindowClosed = errors.New("extension grace window has closed")
	ErrPaused            = errors.New("ledger is paused")
)

// Economic errors.
var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrZeroClaim         = errors.New("no accumulated fees to claim")
)

// Rate / ordering errors. The rapid-trade window is a soft penalty, not a
// rejection, so it has no sentinel here.
var (
	ErrRateLimited     = errors.New("per-tick trade cap exceeded")
	ErrOpinionCooldown = errors.New("opinion already traded this tick")
)

// Access errors. Capability checks fail closed: an unreachable gate is a
// denial.
var (
	ErrUnauthorized = errors.New("capability check failed")
	ErrLockHeld     = errors.New("lock already held")
)

// ErrorKind classifies every engine rejection so callers can decide whether
// to resubmit, wait, or top up funds.
type ErrorKind string

const (
	KindValidation ErrorKind = "validation"
	KindState      ErrorKind = "state"
	KindEconomic   ErrorKind = "economic"
	KindRateLimit  ErrorKind = "rate_limit"
	KindAccess     ErrorKind = "access"
	KindInternal   ErrorKind = "internal"
)

// Kind returns the taxonomy bucket for an engine error. Unknown errors are
// classified as internal.
func Kind(err error) ErrorKind {
	switch {
	case errors.Is(err, ErrEmptyField),
		errors.Is(err, ErrFieldTooLong),
		errors.Is(err, ErrZeroAmount),
		errors.Is(err, ErrSameAnswer),
		errors.Is(err, ErrInvalidDeadline),
		errors.Is(err, ErrInvalidPrice),
		errors.Is(err, ErrTooManyCategories),
		errors.Is(err, ErrOverflow):
		return KindValidation
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ErrOpinionInactive),
		errors.Is(err, ErrSameOwner),
		errors.Is(err, ErrNotOwner),
		errors.Is(err, ErrNotListed),
		errors.Is(err, ErrPoolNotActive),
		errors.Is(err, ErrPoolNotExpired),
		errors.Is(err, ErrPoolExecuted),
		errors.Is(err, ErrDeadlinePassed),
		errors.Is(err, ErrNoContribution),
		errors.Is(err, ErrAlreadyWithdrawn),
		errors.Is(err, ErrGraceWindowClosed),
		errors.Is(err, ErrPaused):
		return KindState
	case errors.Is(err, ErrInsufficientFunds),
		errors.Is(err, ErrZeroClaim):
		return KindEconomic
	case errors.Is(err, ErrRateLimited),
		errors.Is(err, ErrOpinionCooldown):
		return KindRateLimit
	case errors.Is(err, ErrUnauthorized):
		return KindAccess
	default:
		return KindInternal
	}
}
