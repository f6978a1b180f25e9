package testenv

import (
	"os"
	"testing"
)

const (
	// EnvPostgresDSN points the postgres driver tests at a live database.
	EnvPostgresDSN = "POSTGRES_DSN"

	// EnvSurrealDBURL is the SurrealDB WebSocket endpoint, for example
	// ws://localhost:8000/rpc.
	EnvSurrealDBURL = "SURREALDB_URL"

	// EnvSurrealDBUser and EnvSurrealDBPass override the root credentials.
	EnvSurrealDBUser = "SURREALDB_USER"
	EnvSurrealDBPass = "SURREALDB_PASS"
)

// PostgresDSN returns the DSN from EnvPostgresDSN, skipping the test when unset.
func PostgresDSN(t testing.TB) string {
	t.Helper()
	return lookupOrSkip(t, EnvPostgresDSN)
}

// SurrealDBURL returns the endpoint from EnvSurrealDBURL, skipping the test when unset.
func SurrealDBURL(t testing.TB) string {
	t.Helper()
	return lookupOrSkip(t, EnvSurrealDBURL)
}

// SurrealDBCredentials returns the user and password, root/root by default.
func SurrealDBCredentials() (user, pass string) {
	return getenv(EnvSurrealDBUser, "root"), getenv(EnvSurrealDBPass, "root")
}

func lookupOrSkip(t testing.TB, key string) string {
	t.Helper()
	if testing.Short() {
		t.Skipf("skipping %s integration test in short mode", key)
	}
	v := os.Getenv(key)
	if v == "" {
		t.Skipf("%s is not set", key)
	}
	return v
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
