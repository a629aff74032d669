// Package goSession manages the lifecycle of server-side user sessions: issuance,
// validation with transparent refresh, revocation, per-user concurrency caps, and
// a periodic sweep of expired records.
//
// The package is designed for concurrent server workloads: Manager methods are safe
// to call from multiple goroutines after initialization through [Builder.Build].
//
// # Architecture boundaries
//
// goSession is the public surface. It exposes [Manager], [Builder], [Config], and value
// types (SessionSummary, ActiveSession, MetricsSnapshot). Storage lives behind
// session.Repository; token signing lives in the token package; the security
// heuristics live in the security package. Flow orchestration and audit dispatch live
// under internal/ and are never exported.
//
// # What this package must NOT do
//
//   - Leak why a session was rejected: every public operation except CreateSession's
//     input check returns a plain negative result and logs the cause.
//   - Touch transport state (cookies, headers); that belongs to the middleware package.
//   - Run background work that is not stopped by [Manager.Close].
package goSession
