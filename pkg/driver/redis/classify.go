package redis

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/workledger/workledger/pkg/constants"
	"github.com/workledger/workledger/pkg/driver"
)

// transientPrefixes are server error codes that clear up on their own.
var transientPrefixes = []string{
	"LOADING",
	"BUSY",
	"TRYAGAIN",
	"CLUSTERDOWN",
	"MASTERDOWN",
	"READONLY",
	"MOVED",
	"ASK",
}

// Classify treats server-side command errors as permanent except the codes Redis
// uses for temporary unavailability.
func (d *Driver) Classify(err error) driver.Class {
	switch {
	case errors.Is(err, constants.ErrNotFound),
		errors.Is(err, constants.ErrInvalidEntity),
		errors.Is(err, constants.ErrUnknownKind),
		errors.Is(err, constants.ErrTxDone),
		errors.Is(err, redis.Nil):
		return driver.ClassPermanent
	case errors.Is(err, constants.ErrNotConnected),
		errors.Is(err, redis.TxFailedErr),
		errors.Is(err, redis.ErrClosed),
		errors.Is(err, context.DeadlineExceeded):
		return driver.ClassTransient
	}

	var rerr redis.Error
	if errors.As(err, &rerr) {
		msg := rerr.Error()
		for _, p := range transientPrefixes {
			if strings.HasPrefix(msg, p+" ") || msg == p {
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
