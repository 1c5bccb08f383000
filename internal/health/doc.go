// Package health provides composable probes and the HTTP handlers behind the
// ops listener's liveness and readiness endpoints.
//
// Probes combine with [All] (AND), [Any] (OR) and [Fixed] (static).
// [Timeout] bounds a probe that calls a backing store. [ShutdownGate] fails
// readiness as soon as draining begins so load balancers stop routing before
// in-flight requests finish.
package health
