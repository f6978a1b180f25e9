package app

import (
	"fmt"
	"strconv"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/workledger/workledger/internal/config"
	"github.com/workledger/workledger/pkg/constants"
	"github.com/workledger/workledger/pkg/driver"
	"github.com/workledger/workledger/pkg/driver/postgres"
	"github.com/workledger/workledger/pkg/driver/redis"
	"github.com/workledger/workledger/pkg/driver/sqlite"
	"github.com/workledger/workledger/pkg/driver/stub"
	"github.com/workledger/workledger/pkg/driver/surrealdb"
	"github.com/workledger/workledger/pkg/logger"
)

// newDrivers builds one unconnected driver per configured store. The registry
// connects them on Start.
func newDrivers(cfg *config.Config, log logger.Logger, clk clock.Clock) (map[string]driver.Driver, error) {
	out := make(map[string]driver.Driver, len(cfg.Stores))
	for _, s := range cfg.Stores {
		d, err := newDriver(s, log, clk)
		if err != nil {
			return nil, fmt.Errorf("store %q: %w", s.ID, err)
		}
		out[s.ID] = d
	}
	return out, nil
}

func newDriver(s config.Store, log logger.Logger, clk clock.Clock) (driver.Driver, error) {
	switch s.Driver {
	case constants.DriverPostgres:
		opts := []postgres.Option{postgres.WithLogger(log), postgres.WithClock(clk)}
		if v, ok := s.Options["slowQuery"]; ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				return nil, fmt.Errorf("option slowQuery: %w", err)
			}
			opts = append(opts, postgres.WithSlowQuery(d))
		}
		return postgres.New(s.Target, opts...), nil

	case constants.DriverSQLite:
		return sqlite.New(s.Target, sqlite.WithClock(clk)), nil

	case constants.DriverSurrealDB:
		return surrealdb.New(surrealdb.Config{
			URL:       s.Target,
			Namespace: s.Options["namespace"],
			Database:  s.Options["database"],
			Username:  s.Options["username"],
			Password:  s.Options["password"],
		}, surrealdb.WithClock(clk)), nil

	case constants.DriverRedis:
		rc := redis.Config{URL: s.Target, KeyPrefix: s.Options["keyPrefix"]}
		if v, ok := s.Options["poolSize"]; ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return nil, fmt.Errorf("option poolSize: %w", err)
			}
			rc.PoolSize = n
		}
		return redis.New(rc, redis.WithClock(clk)), nil

	case constants.DriverStub:
		return stub.New(stub.WithClock(clk)), nil
	}
	return nil, fmt.Errorf("unknown driver %q", s.Driver)
}
