package main

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/rs/zerolog/log"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/internal"
	"github.com/MrEthical07/goSession/middleware"
)

const adminTokenHeader = "X-Admin-Token"

type routerOptions struct {
	Manager *goSession.Manager
	Metrics http.Handler
	// AdminToken guards session issuing and the per-user routes. Empty leaves
	// them unmounted.
	AdminToken        string
	TrustForwardedFor bool
	AllowedOrigins    []string
}

type createRequest struct {
	UserID      string   `json:"user_id"`
	Username    string   `json:"username"`
	Email       string   `json:"email"`
	Role        string   `json:"role"`
	Permissions []string `json:"permissions"`
	// IPAddress and UserAgent describe the end user when a login service calls
	// on their behalf. They default to the caller's own.
	IPAddress string `json:"ip_address"`
	UserAgent string `json:"user_agent"`
}

type userResponse struct {
	UserID      string   `json:"user_id"`
	Username    string   `json:"username,omitempty"`
	Email       string   `json:"email,omitempty"`
	Role        string   `json:"role,omitempty"`
	Permissions []string `json:"permissions"`
}

type createResponse struct {
	SessionID    string       `json:"session_id"`
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	ExpiresAt    time.Time    `json:"expires_at"`
	User         userResponse `json:"user"`
}

type summaryResponse struct {
	SessionID    string       `json:"session_id"`
	AccessToken  string       `json:"access_token"`
	CreatedAt    time.Time    `json:"created_at"`
	LastActivity time.Time    `json:"last_activity"`
	ExpiresAt    time.Time    `json:"expires_at"`
	Refreshed    bool         `json:"refreshed"`
	User         userResponse `json:"user"`
}

type activeSessionResponse struct {
	SessionID    string    `json:"session_id"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
	IPAddress    string    `json:"ip_address,omitempty"`
	UserAgent    string    `json:"user_agent,omitempty"`
	DeviceInfo   string    `json:"device_info,omitempty"`
}

func newRouter(opts routerOptions) http.Handler {
	m := opts.Manager
	mwOpts := middleware.DefaultOptions()
	mwOpts.TrustForwardedFor = opts.TrustForwardedFor

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)

	allowed := opts.AllowedOrigins
	if len(allowed) == 0 {
		allowed = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowed,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", middleware.DefaultSessionHeader},
		ExposedHeaders:   []string{middleware.AccessTokenHeader},
		AllowCredentials: true,
		MaxAge:           int((10 * time.Minute).Seconds()),
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, req *http.Request) {
		h := m.Health(req.Context())
		if !h.Available {
			http.Error(w, "repository unavailable", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"backend":    h.Backend,
			"latency_ms": h.Latency.Milliseconds(),
		})
	})

	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	r.Route("/v1/session", func(r chi.Router) {
		r.Use(middleware.RequireSession(m, mwOpts))

		r.Get("/", func(w http.ResponseWriter, req *http.Request) {
			sum, _ := middleware.SummaryFromContext(req.Context())
			writeJSON(w, http.StatusOK, toSummaryResponse(sum))
		})

		r.Post("/refresh", func(w http.ResponseWriter, req *http.Request) {
			cur, _ := middleware.SummaryFromContext(req.Context())
			sum, ok := m.RefreshSession(req.Context(), cur.SessionID)
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			middleware.RenewSessionCookies(w, req, mwOpts, sum)
			w.Header().Set(middleware.AccessTokenHeader, sum.AccessToken)
			writeJSON(w, http.StatusOK, toSummaryResponse(sum))
		})

		r.Delete("/", func(w http.ResponseWriter, req *http.Request) {
			sum, _ := middleware.SummaryFromContext(req.Context())
			if !m.DestroySession(req.Context(), sum.SessionID) {
				http.Error(w, "storage failure", http.StatusServiceUnavailable)
				return
			}
			middleware.ClearSessionCookies(w, mwOpts)
			w.WriteHeader(http.StatusNoContent)
		})
	})

	if opts.AdminToken == "" {
		return r
	}

	r.Group(func(r chi.Router) {
		r.Use(requireAdmin(opts.AdminToken))

		r.With(httprate.LimitByIP(60, time.Minute)).Post("/v1/sessions", func(w http.ResponseWriter, req *http.Request) {
			var body createRequest
			if err := json.NewDecoder(http.MaxBytesReader(w, req.Body, 1<<16)).Decode(&body); err != nil {
				http.Error(w, "invalid body", http.StatusBadRequest)
				return
			}
			if body.IPAddress == "" {
				body.IPAddress = internal.ClientIP(req, opts.TrustForwardedFor)
			}
			if body.UserAgent == "" {
				body.UserAgent = req.UserAgent()
			}

			res, err := m.CreateSession(req.Context(), goSession.UserData{
				UserID:      body.UserID,
				Username:    body.Username,
				Email:       body.Email,
				Role:        body.Role,
				Permissions: body.Permissions,
			}, goSession.CreateOptions{
				IPAddress:  body.IPAddress,
				UserAgent:  body.UserAgent,
				DeviceInfo: internal.DeviceLabel(body.UserAgent),
			})
			switch {
			case errors.Is(err, goSession.ErrInvalidInput):
				http.Error(w, "user_id is required", http.StatusBadRequest)
				return
			case err != nil:
				http.Error(w, "session creation failed", http.StatusInternalServerError)
				return
			}

			middleware.SetSessionCookies(w, req, mwOpts, res)
			writeJSON(w, http.StatusCreated, createResponse{
				SessionID:    res.SessionID,
				AccessToken:  res.AccessToken,
				RefreshToken: res.RefreshToken,
				ExpiresAt:    res.ExpiresAt,
				User:         toUserResponse(res.User),
			})
		})

		r.Get("/v1/users/{userID}/sessions", func(w http.ResponseWriter, req *http.Request) {
			list := m.GetUserActiveSessions(req.Context(), chi.URLParam(req, "userID"))
			out := make([]activeSessionResponse, 0, len(list))
			for _, s := range list {
				out = append(out, activeSessionResponse{
					SessionID:    s.SessionID,
					CreatedAt:    s.CreatedAt,
					LastActivity: s.LastActivity,
					IPAddress:    s.IPAddress,
					UserAgent:    s.UserAgent,
					DeviceInfo:   s.DeviceInfo,
				})
			}
			writeJSON(w, http.StatusOK, out)
		})

		r.Delete("/v1/users/{userID}/sessions", func(w http.ResponseWriter, req *http.Request) {
			n := m.DestroyAllUserSessions(req.Context(), chi.URLParam(req, "userID"))
			writeJSON(w, http.StatusOK, map[string]int{"destroyed": n})
		})
	})

	return r
}

func requireAdmin(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get(adminTokenHeader)
			if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func toUserResponse(u goSession.UserView) userResponse {
	perms := u.Permissions
	if perms == nil {
		perms = []string{}
	}
	return userResponse{
		UserID:      u.UserID,
		Username:    u.Username,
		Email:       u.Email,
		Role:        u.Role,
		Permissions: perms,
	}
}

func toSummaryResponse(s *goSession.SessionSummary) summaryResponse {
	return summaryResponse{
		SessionID:    s.SessionID,
		AccessToken:  s.AccessToken,
		CreatedAt:    s.CreatedAt,
		LastActivity: s.LastActivity,
		ExpiresAt:    s.ExpiresAt,
		Refreshed:    s.Refreshed,
		User:         toUserResponse(s.User),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("encode response")
	}
}
