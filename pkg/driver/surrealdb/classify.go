package surrealdb

import (
	"context"
	"errors"
	"net"
	"strings"

	surrealdb "github.com/surrealdb/surrealdb.go"

	"github.com/workledger/workledger/pkg/constants"
	"github.com/workledger/workledger/pkg/driver"
)

// conflictMessages mark query errors that a retry can clear.
var conflictMessages = []string{
	"transaction conflict",
	"resource busy",
	"can be retried",
}

// Classify treats statement failures as permanent unless the database reports a
// write conflict, and connection trouble as transient.
func (d *Driver) Classify(err error) driver.Class {
	switch {
	case errors.Is(err, constants.ErrNotFound),
		errors.Is(err, constants.ErrInvalidEntity),
		errors.Is(err, constants.ErrUnknownKind),
		errors.Is(err, constants.ErrTxDone):
		return driver.ClassPermanent
	case errors.Is(err, constants.ErrNotConnected),
		errors.Is(err, context.DeadlineExceeded):
		return driver.ClassTransient
	}

	msg := strings.ToLower(err.Error())
	if errors.Is(err, &surrealdb.QueryError{}) {
		for _, m := range conflictMessages {
			if strings.Contains(msg, m) {
				return driver.ClassTransient
			}
		}
		return driver.ClassPermanent
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return driver.ClassTransient
	}
	return driver.ClassUnknown
}
