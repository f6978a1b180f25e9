package backend

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"strings"
	"syscall"

	"github.com/workledger/workledger/pkg/constants"
	"github.com/workledger/workledger/pkg/driver"
)

var transientMessages = []string{
	"connection refused",
	"connection reset",
	"broken pipe",
	"too many connections",
	"too many clients",
	"timeout",
	"timed out",
	"deadlock",
	"serialization failure",
	"could not serialize",
	"database is locked",
	"resource exhausted",
	"resource temporarily unavailable",
	"no such host",
	"server closed",
	"eof",
}

var permanentMessages = []string{
	"syntax error",
	"violates",
	"constraint",
	"duplicate key",
	"authentication failed",
	"permission denied",
	"not allowed",
	"invalid",
}

// DefaultClassifier classifies errors a driver could not.
//
// Domain rejections and errors that read like malformed input, constraint or
// authentication failures are permanent. Network, timeout and contention failures are
// transient, and so is anything unrecognised: the retry budget is bounded, and a store
// that keeps failing in unknown ways should lose traffic.
func DefaultClassifier(err error) driver.Class {
	switch {
	case err == nil:
		return driver.ClassUnknown
	case errors.Is(err, constants.ErrNotFound),
		errors.Is(err, constants.ErrInvalidEntity),
		errors.Is(err, constants.ErrUnknownKind),
		errors.Is(err, constants.ErrReadOnly),
		errors.Is(err, constants.ErrTxDone),
		errors.Is(err, constants.ErrHandleReleased):
		return driver.ClassPermanent
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, os.ErrDeadlineExceeded),
		errors.Is(err, constants.ErrNotConnected),
		errors.Is(err, constants.ErrOperationTimeout),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.EPIPE),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF):
		return driver.ClassTransient
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return driver.ClassTransient
	}

	msg := strings.ToLower(err.Error())
	for _, m := range transientMessages {
		if strings.Contains(msg, m) {
			return driver.ClassTransient
		}
	}
	for _, m := range permanentMessages {
		if strings.Contains(msg, m) {
			return driver.ClassPermanent
		}
	}
	return driver.ClassTransient
}
