package middleware

import (
	"net/http"
	"time"

	goSession "github.com/MrEthical07/goSession"
)

// SetSessionCookies writes the session id and access token cookies after a
// login. Both expire with the session. The refresh token is left to the caller.
func SetSessionCookies(w http.ResponseWriter, r *http.Request, opts Options, res *goSession.CreateResult) {
	if res == nil {
		return
	}
	RenewSessionCookies(w, r, opts, &goSession.SessionSummary{
		SessionID:   res.SessionID,
		AccessToken: res.AccessToken,
		ExpiresAt:   res.ExpiresAt,
	})
}

// RenewSessionCookies rewrites both cookies from a refreshed summary so their
// Max-Age follows the extended expiry.
func RenewSessionCookies(w http.ResponseWriter, r *http.Request, opts Options, sum *goSession.SessionSummary) {
	if sum == nil {
		return
	}
	setCookie(w, r, opts.SessionCookie, sum.SessionID, sum)
	setCookie(w, r, opts.AccessCookie, sum.AccessToken, sum)
}

// ClearSessionCookies expires both credential cookies.
func ClearSessionCookies(w http.ResponseWriter, opts Options) {
	for _, name := range []string{opts.SessionCookie, opts.AccessCookie} {
		if name == "" {
			continue
		}
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			SameSite: http.SameSiteStrictMode,
		})
	}
}

func setCookie(w http.ResponseWriter, r *http.Request, name, value string, sum *goSession.SessionSummary) {
	if name == "" {
		return
	}
	maxAge := int(time.Until(sum.ExpiresAt).Seconds())
	if maxAge <= 0 {
		maxAge = 1
	}
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteStrictMode,
	})
}
