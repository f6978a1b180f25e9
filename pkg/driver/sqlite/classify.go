package sqlite

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/workledger/workledger/pkg/constants"
	wldriver "github.com/workledger/workledger/pkg/driver"
)

// Classify maps SQLite result codes. Lock contention and I/O trouble are transient;
// schema, constraint and type errors are not.
func (d *Driver) Classify(err error) wldriver.Class {
	switch {
	case errors.Is(err, constants.ErrNotFound),
		errors.Is(err, constants.ErrInvalidEntity),
		errors.Is(err, constants.ErrUnknownKind),
		errors.Is(err, constants.ErrTxDone),
		errors.Is(err, sql.ErrTxDone):
		return wldriver.ClassPermanent
	case errors.Is(err, constants.ErrNotConnected),
		errors.Is(err, driver.ErrBadConn),
		errors.Is(err, sql.ErrConnDone),
		errors.Is(err, context.DeadlineExceeded):
		return wldriver.ClassTransient
	}

	var serr *sqlite.Error
	if !errors.As(err, &serr) {
		return wldriver.ClassUnknown
	}
	return classifyCode(serr.Code())
}

func classifyCode(code int) wldriver.Class {
	switch code & 0xff {
	case sqlite3.SQLITE_BUSY,
		sqlite3.SQLITE_LOCKED,
		sqlite3.SQLITE_IOERR,
		sqlite3.SQLITE_FULL,
		sqlite3.SQLITE_CANTOPEN,
		sqlite3.SQLITE_PROTOCOL,
		sqlite3.SQLITE_NOMEM,
		sqlite3.SQLITE_INTERRUPT:
		return wldriver.ClassTransient
	case sqlite3.SQLITE_CONSTRAINT,
		sqlite3.SQLITE_ERROR,
		sqlite3.SQLITE_MISMATCH,
		sqlite3.SQLITE_READONLY,
		sqlite3.SQLITE_AUTH,
		sqlite3.SQLITE_PERM,
		sqlite3.SQLITE_TOOBIG,
		sqlite3.SQLITE_RANGE:
		return wldriver.ClassPermanent
	}
	return wldriver.ClassUnknown
}
