package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind classifies a failure so transports can map it without knowing every
// sentinel.
type Kind uint8

const (
	KindInternal Kind = iota
	KindAuthorization
	KindInsufficient
	KindInvariant
	KindTemporal
	KindNothingToDo
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindAuthorization:
		return "authorization"
	case KindInsufficient:
		return "insufficient"
	case KindInvariant:
		return "invariant"
	case KindTemporal:
		return "temporal"
	case KindNothingToDo:
		return "nothing_to_do"
	case KindNotFound:
		return "not_found"
	default:
		return "internal"
	}
}

// Error is a classified sentinel. Compare with errors.Is; the kind travels
// through any amount of %w wrapping.
type Error struct {
	kind Kind
	msg  string
}

// New declares a classified sentinel error.
func New(kind Kind, msg string) *Error {
	return &Error{kind: kind, msg: msg}
}

func (e *Error) Error() string { return e.msg }

// Kind returns the classification of the sentinel.
func (e *Error) Kind() Kind { return e.kind }

// KindOf walks the wrap chain and returns the first classification found.
// Unclassified errors are internal.
func KindOf(err error) Kind {
	if err == nil {
		return KindInternal
	}
	var violation *ParamViolation
	if stderrors.As(err, &violation) {
		return KindInvariant
	}
	var classified *Error
	if stderrors.As(err, &classified) {
		return classified.kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

var (
	ErrUnauthorized          = New(KindAuthorization, "ledger: caller not authorized")
	ErrInsufficientBalance   = New(KindInsufficient, "ledger: insufficient balance")
	ErrInsufficientAllowance = New(KindInsufficient, "ledger: insufficient allowance")
	ErrInsufficientPrincipal = New(KindInsufficient, "ledger: withdrawal exceeds principal")
	ErrTVLCapExceeded        = New(KindInvariant, "ledger: deposit exceeds tvl cap")
	ErrInvalidAmount         = New(KindInvariant, "ledger: amount must be positive")
	ErrEpochNotElapsed       = New(KindTemporal, "ledger: epoch has not elapsed")
	ErrMigrationDelay        = New(KindTemporal, "ledger: migration delay has not elapsed")
	ErrNothingToClaim        = New(KindNothingToDo, "ledger: nothing to claim")
	ErrNothingToWithdraw     = New(KindNothingToDo, "ledger: nothing to withdraw")
	ErrNotFound              = New(KindNotFound, "ledger: record not found")
)

// Parameter ceilings. A *ParamViolation unwraps to one of these.
var (
	ErrInvalidParameter     = New(KindInvariant, "params: invalid parameter")
	ErrProfitFeeCeiling     = New(KindInvariant, "params: profit fee at or above ceiling")
	ErrCallFeeCeiling       = New(KindInvariant, "params: call fee above ceiling")
	ErrWithdrawalFeeCeiling = New(KindInvariant, "params: withdrawal fee at or above ceiling")
	ErrEpochDurationBound   = New(KindInvariant, "params: epoch duration out of bounds")
	ErrMigrationDelayBound  = New(KindInvariant, "params: migration delay out of bounds")
)

// ParamViolation is the typed failure returned by parameter validation.
type ParamViolation struct {
	Field string
	Value string
	Limit string
	Err   error
}

func (v *ParamViolation) Error() string {
	if v == nil {
		return "<nil>"
	}
	base := v.Err
	if base == nil {
		base = ErrInvalidParameter
	}
	return fmt.Sprintf("%s: %s=%s (limit %s)", base.Error(), v.Field, v.Value, v.Limit)
}

func (v *ParamViolation) Unwrap() error {
	if v == nil || v.Err == nil {
		return ErrInvalidParameter
	}
	return v.Err
}
