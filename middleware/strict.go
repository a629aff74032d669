package middleware

import (
	"net/http"
)

// Require returns [RequireSession] configured with [DefaultOptions].
func Require(v SessionValidator) func(http.Handler) http.Handler {
	return RequireSession(v, DefaultOptions())
}
