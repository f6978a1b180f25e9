package backend_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/workledger/workledger/pkg/backend"
	"github.com/workledger/workledger/pkg/constants"
	"github.com/workledger/workledger/pkg/driver"
)

func TestDefaultClassifier(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected driver.Class
	}{
		{"nil", nil, driver.ClassUnknown},
		{"not found", fmt.Errorf("employees/9: %w", constants.ErrNotFound), driver.ClassPermanent},
		{"invalid entity", constants.ErrInvalidEntity, driver.ClassPermanent},
		{"read only", constants.ErrReadOnly, driver.ClassPermanent},
		{"deadline", context.DeadlineExceeded, driver.ClassTransient},
		{"operation timeout", constants.ErrOperationTimeout, driver.ClassTransient},
		{"conn refused errno", &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}, driver.ClassTransient},
		{"reset errno", fmt.Errorf("read: %w", syscall.ECONNRESET), driver.ClassTransient},
		{"unexpected eof", io.ErrUnexpectedEOF, driver.ClassTransient},
		{"too many connections", errors.New("FATAL: sorry, too many clients already"), driver.ClassTransient},
		{"deadlock", errors.New("ERROR: deadlock detected"), driver.ClassTransient},
		{"sqlite busy", errors.New("database is locked (5) (SQLITE_BUSY)"), driver.ClassTransient},
		{"constraint", errors.New("ERROR: duplicate key value violates unique constraint"), driver.ClassPermanent},
		{"auth", errors.New("FATAL: password authentication failed for user"), driver.ClassPermanent},
		{"syntax", errors.New("syntax error at end of input"), driver.ClassPermanent},
		{"unrecognised", errors.New("something odd happened"), driver.ClassTransient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, backend.DefaultClassifier(tt.err))
		})
	}
}

func TestErrorWrapping(t *testing.T) {
	cause := fmt.Errorf("query: %w", constants.ErrNotFound)
	err := error(&backend.Error{Op: "get", StoreID: "primary", Leg: backend.LegFailover, Attempt: 2,
		Class: driver.ClassPermanent, Err: cause})

	assert.ErrorIs(t, err, constants.ErrNotFound)
	var be *backend.Error
	assert.ErrorAs(t, err, &be)
	assert.Equal(t, "primary", be.StoreID)
	assert.Equal(t, `backend get on store "primary" (failover leg, attempt 2, permanent): query: record not found`, err.Error())
	assert.False(t, backend.IsUnavailable(err))

	transient := &backend.Error{Op: "get", StoreID: "primary", Class: driver.ClassTransient, Err: errConnRefused}
	assert.True(t, backend.IsUnavailable(transient))
	assert.True(t, backend.IsUnavailable(&backend.Error{Op: "get", Err: constants.ErrNoStoreAvailable}))
	assert.False(t, backend.IsUnavailable(&backend.Error{Op: "get", Class: driver.ClassTransient, Err: context.Canceled}))
}
