package pgwire

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/koustreak/rowcast/internal/errs"
)

// mapError translates pgconn errors into *errs.Error. Server errors keep
// their SQLSTATE verbatim; Postgres has no numeric error code.
func mapError(err error, msg string) *errs.Error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.Wrap(errs.ErrKindTimeout, msg, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if isConnectionState(pgErr.Code) {
			return errs.Wrap(errs.ErrKindConnection, msg+": "+pgErr.Message, err)
		}
		return errs.Query(0, pgErr.Code, msg+": "+pgErr.Message, err)
	}

	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return errs.Wrap(errs.ErrKindConnection, msg, err)
	}
	if pgconn.Timeout(err) {
		return errs.Wrap(errs.ErrKindTimeout, msg, err)
	}

	return errs.Wrap(errs.ErrKindConnection, msg, err)
}

// isConnectionState reports whether a SQLSTATE class describes a
// connection-level failure rather than a failed query.
// Class 08 = connection exception, 28 = invalid authorization,
// 57P01..57P03 = server shutdown / cannot connect now.
func isConnectionState(code string) bool {
	return strings.HasPrefix(code, "08") ||
		strings.HasPrefix(code, "28") ||
		strings.HasPrefix(code, "57P")
}
