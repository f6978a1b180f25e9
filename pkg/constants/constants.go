package constants

import "time"

// Driver names accepted in store configuration.
const (
	DriverPostgres  = "postgres"
	DriverSQLite    = "sqlite"
	DriverSurrealDB = "surrealdb"
	DriverRedis     = "redis"
	DriverStub      = "stub"
)

// Defaults applied to store descriptors that leave a field unset.
var (
	DefaultMaxFailuresBeforeOffline   = 3
	DefaultSuccessesRequiredToRecover = 2
	DefaultProbeInterval              = 5 * time.Second
	DefaultProbeTimeout               = 2 * time.Second
	DefaultOperationTimeout           = 5 * time.Second
	DefaultStubPriority               = 999
)

// Retry defaults.
var (
	DefaultMaxRetries = 3
	DefaultBaseDelay  = 100 * time.Millisecond
	DefaultMaxDelay   = 2 * time.Second
)

// DefaultPageLimit is used by List operations when the caller does not set one.
const DefaultPageLimit = 50

// MaxPageLimit bounds a single List call.
const MaxPageLimit = 500
