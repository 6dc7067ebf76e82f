// Package apperr classifies errors along the taxonomy in spec §7 so callers
// can dispatch on category (retry vs failover vs surface) without string
// matching.
package apperr

import (
	"errors"
	"fmt"
)

// Kind is one of the error categories from spec §7.
type Kind string

const (
	KindValidation Kind = "validation"  // caller fault
	KindTransient  Kind = "transient"   // network/timeout/5xx downstream
	KindPermanent  Kind = "permanent"   // adapter declined the payment
	KindBreaker    Kind = "breaker"     // local circuit-breaker protection
	KindInvariant  Kind = "invariant"   // refund bound exceeded, etc.
	KindIntegrity  Kind = "integrity"   // duplicate key at durable tier, expected
	KindFatal      Kind = "fatal"       // unrecoverable, never masked
)

// Error wraps an underlying cause with a Kind and optional failure code.
type Error struct {
	Kind        Kind
	Code        string
	Message     string
	Cause       error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// New constructs an *Error of the given kind.
func New(kind Kind, code, message string, cause error) *Error {
	return &Error{Kind: kind, Code: code, Message: message, Cause: cause}
}

// CallNotPermitted is returned by the breaker when OPEN (§4.3). It is a
// distinct failure class: it triggers failover, never a bare error return.
var CallNotPermitted = New(KindBreaker, "CALL_NOT_PERMITTED", "circuit breaker is open", nil)

// NewNoPspAvailable builds the exhaustion error surfaced when a failover
// loop runs out of adapters to try (§4.6 step 3, §7 "503 NO_PSP_AVAILABLE").
func NewNoPspAvailable(attempted int) *Error {
	return New(KindTransient, "NO_PSP_AVAILABLE",
		fmt.Sprintf("no payment service provider available after %d attempt(s)", attempted), nil)
}

// IsCallNotPermitted reports whether err (or anything it wraps) is the
// breaker's open-circuit signal.
func IsCallNotPermitted(err error) bool {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind == KindBreaker
	}
	return errors.Is(err, CallNotPermitted)
}

// KindOf extracts the Kind of err, defaulting to KindTransient for plain
// errors (the conservative choice — an unclassified downstream failure
// should still drive retry/failover rather than surface immediately).
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindTransient
}
