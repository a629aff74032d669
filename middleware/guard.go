package middleware

import (
	"context"
	"net/http"
	"strings"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/internal"
)

// SessionValidator is the subset of [goSession.Manager] the guard needs.
type SessionValidator interface {
	ValidateSession(ctx context.Context, sessionID, accessToken string) (*goSession.SessionSummary, bool)
}

// Options names where the guard looks for credentials.
type Options struct {
	SessionCookie string
	AccessCookie  string
	// SessionHeader is consulted when the session cookie is absent.
	SessionHeader string
	// TrustForwardedFor takes the client IP from X-Forwarded-For. Enable it only
	// behind a proxy that sets the header.
	TrustForwardedFor bool
}

const (
	DefaultSessionCookie = "session_id"
	DefaultAccessCookie  = "access_token"
	DefaultSessionHeader = "X-Session-ID"
	// AccessTokenHeader carries a reissued access token on the response.
	AccessTokenHeader = "X-Access-Token"
)

func DefaultOptions() Options {
	return Options{
		SessionCookie: DefaultSessionCookie,
		AccessCookie:  DefaultAccessCookie,
		SessionHeader: DefaultSessionHeader,
	}
}

type summaryContextKey struct{}

// SummaryFromContext returns the summary injected by the guard.
func SummaryFromContext(ctx context.Context) (*goSession.SessionSummary, bool) {
	res, ok := ctx.Value(summaryContextKey{}).(*goSession.SessionSummary)
	return res, ok
}

// RequireSession rejects requests without a valid session with 401.
func RequireSession(v SessionValidator, opts Options) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if v == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			sessionID := cookieValue(r, opts.SessionCookie)
			if sessionID == "" && opts.SessionHeader != "" {
				sessionID = r.Header.Get(opts.SessionHeader)
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				token = cookieValue(r, opts.AccessCookie)
			}

			if sessionID == "" || token == "" {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := goSession.WithClientIP(r.Context(), internal.ClientIP(r, opts.TrustForwardedFor))
			ctx = goSession.WithUserAgent(ctx, r.UserAgent())

			sum, ok := v.ValidateSession(ctx, sessionID, token)
			if !ok {
				ClearSessionCookies(w, opts)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			if sum.Refreshed {
				RenewSessionCookies(w, r, opts, sum)
				w.Header().Set(AccessTokenHeader, sum.AccessToken)
			}

			ctx = context.WithValue(ctx, summaryContextKey{}, sum)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func cookieValue(r *http.Request, name string) string {
	if name == "" {
		return ""
	}
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}
