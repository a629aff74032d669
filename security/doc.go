// Package security implements the stateless heuristics a session must pass on
// every validation: record integrity, inactivity, and client-environment drift.
//
// The validator has no side effects. Deciding what to do with a failed check,
// typically destroying the session, is the caller's job.
package security
