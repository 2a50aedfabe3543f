package authgate

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
)

type contextKey string

const emailContextKey contextKey = "authgate.email"

// Middleware extracts the authenticated account email from the session
// credential on each request and makes it available to downstream handlers.
type Middleware struct {
	AuthTokenCookieName string
	AuthTokenHeaderName string

	// LoginURL is where EnsureUser redirects browser requests that carry no
	// valid session. Defaults to "/login".
	LoginURL string

	// VerifyToken checks a session credential and returns the email it
	// names.
	VerifyToken func(tokenString string) (email string, err error)
}

func (m *Middleware) ensureDefaults() {
	if m.AuthTokenHeaderName == "" {
		m.AuthTokenHeaderName = "Authorization"
	}
	if m.LoginURL == "" {
		m.LoginURL = "/login"
	}
}

// EmailFromRequest returns the authenticated email set by ExtractUser or
// EnsureUser, or "".
func EmailFromRequest(r *http.Request) string {
	if v, ok := r.Context().Value(emailContextKey).(string); ok {
		return v
	}
	return ""
}

// GetAuthenticatedEmail verifies the request's session credential directly.
// A failed verification means the requester is anonymous; it is never an
// error surfaced to the client.
func (m *Middleware) GetAuthenticatedEmail(r *http.Request) string {
	m.ensureDefaults()
	if m.VerifyToken == nil {
		slog.Warn("no session token verifier configured")
		return ""
	}

	var tokens []string
	for _, header := range r.Header.Values(m.AuthTokenHeaderName) {
		tokens = append(tokens, strings.TrimPrefix(header, "Bearer "))
	}
	for _, cookie := range r.CookiesNamed(m.AuthTokenCookieName) {
		if cookie.Value != "" {
			tokens = append(tokens, cookie.Value)
		}
	}

	for _, token := range tokens {
		email, err := m.VerifyToken(token)
		if err == nil && email != "" {
			return email
		} else if err != nil {
			slog.Debug("session token rejected", "err", err)
		}
	}
	return ""
}

// ExtractUser loads the authenticated email (if any) into the request
// context without enforcing that one exists.
func (m *Middleware) ExtractUser(next http.Handler) http.Handler {
	m.ensureDefaults()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		email := m.GetAuthenticatedEmail(r)
		next.ServeHTTP(w, m.withEmail(email, r))
	})
}

// EnsureUser enforces a valid session: browser requests are redirected to
// the login page, API-style requests get a 401.
func (m *Middleware) EnsureUser(next http.Handler) http.Handler {
	m.ensureDefaults()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		email := m.GetAuthenticatedEmail(r)
		if email == "" {
			if wantsJSON(r) {
				http.Error(w, `{"error": "Not authenticated"}`, http.StatusUnauthorized)
			} else {
				http.Redirect(w, r, m.LoginURL, http.StatusFound)
			}
			return
		}
		next.ServeHTTP(w, m.withEmail(email, r))
	})
}

func (m *Middleware) withEmail(email string, r *http.Request) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), emailContextKey, email))
}

func wantsJSON(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	return strings.Contains(accept, "application/json") ||
		strings.HasPrefix(r.Header.Get("Content-Type"), "application/json")
}
