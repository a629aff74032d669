// Package session provides the session record model and its keyed persistence.
//
// # Repositories
//
// A [Repository] owns the primary records (keyed by session id) together with a
// per-user ordered index of session ids. Three implementations are provided:
//
//   - [MemoryRepository]: process-local maps guarded by a mutex.
//   - [RedisRepository]: Redis keys with Lua scripts so every record write and
//     its index updates land in one atomic step.
//   - [PostgresRepository]: a single table with a (user_id, seq) index,
//     mutated inside transactions.
//
// Each implementation has an explicit open/close lifecycle and is injected into
// the Manager; nothing in this package is reached through globals.
//
// # What this package must NOT do
//
//   - Import goSession, token, or security (no upward imports).
//   - Interpret bearer tokens or make authentication decisions.
//   - Enforce the per-user concurrency cap; that is the Manager's job.
package session
