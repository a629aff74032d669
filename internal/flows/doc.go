// Package flows contains the orchestrators behind the Manager's session operations.
//
// Each flow function (RunCreate, RunValidate, RunRefresh, RunDestroyAll) accepts a
// typed dependency struct and returns a result carrying a classified failure kind.
// The root package maps kinds to metrics, audit events and log lines; flows never
// log or emit anything themselves.
//
// # Architecture boundaries
//
// Flow functions coordinate calls to the session repository, token codec and
// security validator. They do NOT own any of these resources, and they do NOT
// lock: mutual exclusion is the Manager's job.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import goSession (to avoid import cycles).
//   - Perform I/O directly; all I/O is mediated through dependency funcs.
package flows
