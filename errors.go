package rowcast

import "github.com/koustreak/rowcast/internal/errs"

// Error is the single error type returned by all rowcast operations.
// Transports produce it; callers inspect it via the Is* predicates or by
// unwrapping with errors.As. For ErrKindQuery errors Code and SQLState
// carry the server-provided error number and SQLSTATE verbatim.
type Error = errs.Error

// ErrKind categorises a driver error without exposing transport-specific
// codes.
type ErrKind = errs.ErrKind

const (
	ErrKindUnknown       = errs.ErrKindUnknown
	ErrKindProtocolState = errs.ErrKindProtocolState // caller violated the single-query-cycle contract
	ErrKindConversion    = errs.ErrKindConversion    // declared column type and raw payload disagree
	ErrKindQuery         = errs.ErrKindQuery         // server rejected or failed the query
	ErrKindConnection    = errs.ErrKindConnection    // transport-level failure (socket, handshake)
	ErrKindTimeout       = errs.ErrKindTimeout       // context deadline / cancellation
)

// NewError creates an *Error with the given kind and message and no cause.
func NewError(kind ErrKind, msg string) *Error {
	return errs.New(kind, msg)
}

// WrapError creates an *Error with the given kind, message and cause.
func WrapError(kind ErrKind, msg string, cause error) *Error {
	return errs.Wrap(kind, msg, cause)
}

// IsProtocolState reports whether err was caused by using a Conn outside
// its state machine (query while busy, undrained streaming result, …).
func IsProtocolState(err error) bool { return errs.IsProtocolState(err) }

// IsConversion reports whether err is an internal cast failure.
func IsConversion(err error) bool { return errs.IsConversion(err) }

// IsQuery reports whether the server rejected or failed the query.
func IsQuery(err error) bool { return errs.IsQuery(err) }

// IsConnection reports whether err is a connectivity or handshake failure.
func IsConnection(err error) bool { return errs.IsConnection(err) }

// IsTimeout reports whether err was caused by a deadline or cancellation.
func IsTimeout(err error) bool { return errs.IsTimeout(err) }
