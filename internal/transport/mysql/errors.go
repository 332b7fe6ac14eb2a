package mysql

import (
	"context"
	"database/sql"
	"errors"

	gomysql "github.com/go-sql-driver/mysql"

	"github.com/koustreak/rowcast/internal/errs"
)

// MySQL error numbers that indicate the connection, not the query, failed.
// Full list: https://dev.mysql.com/doc/mysql-errors/8.0/en/server-error-reference.html
const (
	errAccessDenied    = 1045
	errUnknownDatabase = 1049
	errTooManyConns    = 1040
	errAbortingConn    = 1152
	errServerGone      = 2006
	errConnRefused     = 2003
)

// mapError translates go-sql-driver errors into *errs.Error. Server
// errors keep their number and SQLSTATE verbatim.
func mapError(err error, msg string) *errs.Error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.Wrap(errs.ErrKindTimeout, msg, err)
	}

	var mysqlErr *gomysql.MySQLError
	if errors.As(err, &mysqlErr) {
		if isConnectionCode(mysqlErr.Number) {
			return errs.Wrap(errs.ErrKindConnection, msg+": "+mysqlErr.Message, err)
		}
		return errs.Query(mysqlErr.Number, string(mysqlErr.SQLState[:]), msg+": "+mysqlErr.Message, err)
	}

	if errors.Is(err, gomysql.ErrInvalidConn) || errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, gomysql.ErrBusyBuffer) {
		return errs.Wrap(errs.ErrKindConnection, msg, err)
	}

	return errs.Wrap(errs.ErrKindConnection, msg, err)
}

func isConnectionCode(code uint16) bool {
	switch code {
	case errAccessDenied, errUnknownDatabase, errTooManyConns,
		errAbortingConn, errServerGone, errConnRefused:
		return true
	}
	return false
}
