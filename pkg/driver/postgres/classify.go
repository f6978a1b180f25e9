package postgres

import (
	"context"
	"database/sql"
	sqldriver "database/sql/driver"
	"errors"
	"io"
	"net"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/workledger/workledger/pkg/constants"
	"github.com/workledger/workledger/pkg/driver"
)

// Classify maps PostgreSQL SQLSTATE classes and connection errors to retry classes.
func (d *Driver) Classify(err error) driver.Class {
	switch {
	case errors.Is(err, constants.ErrNotFound),
		errors.Is(err, constants.ErrInvalidEntity),
		errors.Is(err, constants.ErrUnknownKind),
		errors.Is(err, constants.ErrTxDone),
		errors.Is(err, gorm.ErrRecordNotFound),
		errors.Is(err, gorm.ErrInvalidTransaction),
		errors.Is(err, gorm.ErrInvalidData),
		errors.Is(err, gorm.ErrMissingWhereClause):
		return driver.ClassPermanent
	case errors.Is(err, constants.ErrNotConnected),
		errors.Is(err, sqldriver.ErrBadConn),
		errors.Is(err, sql.ErrConnDone),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, context.DeadlineExceeded):
		return driver.ClassTransient
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return classifyState(pgErr.Code)
	}
	if pgconn.Timeout(err) || pgconn.SafeToRetry(err) {
		return driver.ClassTransient
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return driver.ClassTransient
	}
	return driver.ClassUnknown
}

// classifyState maps a SQLSTATE code.
// https://www.postgresql.org/docs/current/errcodes-appendix.html
func classifyState(code string) driver.Class {
	switch code {
	case "40001", // serialization_failure
		"40P01": // deadlock_detected
		return driver.ClassTransient
	}
	if len(code) < 2 {
		return driver.ClassUnknown
	}
	switch code[:2] {
	case "08", // connection exception
		"53", // insufficient resources
		"57", // operator intervention: shutdown, cancel, cannot connect now
		"58": // system error
		return driver.ClassTransient
	case "22", // data exception
		"23", // integrity constraint violation
		"28", // invalid authorization
		"42", // syntax error or access rule violation
		"3D", // invalid catalog name
		"25", // invalid transaction state
		"3F": // invalid schema name
		return driver.ClassPermanent
	}
	return driver.ClassUnknown
}
