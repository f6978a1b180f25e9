// Package stub implements the degraded in-memory store the registry falls back to
// when no real store is reachable.
//
// The stub is seeded with a small fixed dataset (three companies, six employees
// including employee 42, and three documents) and serves the full typed store
// surface over maps. It is deterministic: the same sequence of operations yields the
// same results. It is not a cache of real data, so results served from it are marked
// degraded by the registry and callers must treat them as non-authoritative.
package stub
