// Package backend implements the multi-backend data access layer.
//
// A [Registry] owns a set of candidate stores, each described by a [Descriptor] and
// served by a [driver.Driver]. It continuously probes every store, keeps a per-store
// [Health] record driven by a small state machine, elects the store that serves live
// traffic with [SelectActive], and runs operations against it with bounded retry,
// failover to another store, and a final fallback to the degraded in-memory stub.
//
// # Health
//
// Every store starts UNKNOWN. Outcomes observed by probes and by live operations move
// it between ONLINE, DEGRADED and OFFLINE (see [Health.Record]). Only transient errors
// count as failures: an operation rejected as malformed or not found says nothing about
// the store's availability.
//
// # Selection
//
// Three strategies are supported: [StrategyPriority] prefers the healthiest, then the
// lowest priority number; [StrategyRoundRobin] rotates over ONLINE real stores;
// [StrategyStickyFailover] keeps the current store while it is usable. The policy runs
// on every call, so a recovered preferred store takes traffic back without operator
// action. An operator can pin a store with [Registry.SwitchTo].
//
// # Execution
//
// [Registry.Execute] runs one operation. A transient failure is retried on the same
// store with exponential backoff; once the retries of a leg are spent the registry
// fails over to a store not yet tried in the call, and finally to the stub. There are
// at most three legs per call. [Registry.Acquire] applies the same logic to opening a
// transaction and returns a [Handle] the caller must release.
package backend
