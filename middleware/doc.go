// Package middleware adapts goSession validation to net/http.
//
// # Guards
//
//   - [RequireSession] validates the session named by a cookie or header and
//     injects the [goSession.SessionSummary] into the request context.
//   - [Require] is RequireSession with [DefaultOptions].
//
// The guard forwards the client IP and User-Agent to the Manager so the
// anomaly check can compare them with the login environment. When validation
// refreshed the access token, the new value is written back as a cookie and in
// the X-Access-Token response header.
//
// # What this package must NOT do
//
//   - Parse or create tokens directly (delegates to the Manager).
//   - Touch the session repository.
package middleware
