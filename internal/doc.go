// Package internal contains helpers that are private to goSession: session id
// generation and client environment extraction from HTTP requests.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - flows: flow runners behind the Manager's create and validate operations
//
// # What this package must NOT do
//
//   - Export types that appear in the public goSession API.
//   - Be imported by any package outside the goSession module.
package internal
