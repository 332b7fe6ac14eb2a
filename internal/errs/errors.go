// Package errs provides the unified error type used across rowcast.
//
// Transports wrap their native errors into *errs.Error before returning
// them; the root package re-exports the type and predicates so callers
// never import driver-specific packages. The taxonomy follows the driver
// contract: protocol-state violations are caller bugs and never retried,
// query errors carry the server's code and SQLSTATE verbatim, conversion
// errors are internal inconsistencies.
package errs

import (
	"errors"
	"fmt"
)

// ErrKind categorises a driver error without exposing transport-specific
// codes.
type ErrKind int

const (
	ErrKindUnknown       ErrKind = iota
	ErrKindProtocolState         // caller violated the single-query-cycle contract
	ErrKindConversion            // declared column type and raw payload disagree
	ErrKindQuery                 // server rejected or failed the query
	ErrKindConnection            // transport-level failure (socket, handshake)
	ErrKindTimeout               // context deadline / cancellation
)

func (k ErrKind) String() string {
	switch k {
	case ErrKindProtocolState:
		return "protocol_state"
	case ErrKindConversion:
		return "conversion"
	case ErrKindQuery:
		return "query"
	case ErrKindConnection:
		return "connection"
	case ErrKindTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Error is the single error type returned by all rowcast operations.
// Transports produce it; callers inspect it via the Is* predicates.
type Error struct {
	Kind    ErrKind
	Message string

	// Code and SQLState carry the server-provided error number and
	// SQLSTATE for ErrKindQuery errors, zero values otherwise.
	Code     uint16
	SQLState string

	Cause error // original transport-level error, preserved for logging
}

func (e *Error) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("[%s] %s (server error %d, sqlstate %s)", e.Kind, e.Message, e.Code, e.SQLState)
	}
	if e.SQLState != "" {
		return fmt.Sprintf("[%s] %s (sqlstate %s)", e.Kind, e.Message, e.SQLState)
	}
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap allows errors.Is / errors.As to traverse the cause chain.
func (e *Error) Unwrap() error {
	return e.Cause
}

// --- Constructors ---

// New creates an *Error with the given kind and message and no cause.
func New(kind ErrKind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Wrap creates an *Error with the given kind, message, and a cause.
func Wrap(kind ErrKind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

// Query creates an ErrKindQuery error carrying the server-provided error
// number and SQLSTATE verbatim.
func Query(code uint16, sqlState, msg string, cause error) *Error {
	return &Error{
		Kind:     ErrKindQuery,
		Message:  msg,
		Code:     code,
		SQLState: sqlState,
		Cause:    cause,
	}
}

// --- Predicates ---

// IsProtocolState reports whether err was caused by using a connection
// outside its state machine.
func IsProtocolState(err error) bool {
	return KindOf(err) == ErrKindProtocolState
}

// IsConversion reports whether err is an internal cast failure.
func IsConversion(err error) bool {
	return KindOf(err) == ErrKindConversion
}

// IsQuery reports whether the server rejected or failed the query.
func IsQuery(err error) bool {
	return KindOf(err) == ErrKindQuery
}

// IsConnection reports whether err is a connectivity or handshake failure.
func IsConnection(err error) bool {
	return KindOf(err) == ErrKindConnection
}

// IsTimeout reports whether err was caused by a deadline or cancellation.
func IsTimeout(err error) bool {
	return KindOf(err) == ErrKindTimeout
}

// KindOf extracts the ErrKind from any error in the chain.
func KindOf(err error) ErrKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ErrKindUnknown
}
