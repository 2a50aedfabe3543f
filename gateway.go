package authgate

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"path/filepath"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/gorilla/mux"
)

// Gateway exposes the HTTP entry points that wire proof verifiers, the
// identity resolver, and the session issuer together. Every browser-facing
// flow terminates in "issue session, set cookie, redirect to the dashboard"
// or "redirect to the login page"; internal error detail is logged, never
// sent to the client.
type Gateway struct {
	Resolver *Resolver
	Issuer   *SessionIssuer

	// Session manages server-held short-lived state (WebAuthn challenges).
	// Optional; required only when passkey routes are mounted.
	Session *scs.SessionManager

	// Origin is the externally reachable base URL used to build provider
	// redirect URIs, e.g. "https://auth.example.com".
	Origin string

	// Name of the cookie carrying the session credential.
	AuthTokenCookieName string

	// StaticDir holds login.html and dashboard.html plus assets.
	StaticDir string

	DashboardURL string
	LoginURL     string

	Middleware Middleware

	router        *mux.Router
	staticMounted bool
}

func NewGateway(resolver *Resolver, issuer *SessionIssuer) *Gateway {
	g := &Gateway{Resolver: resolver, Issuer: issuer}
	return g.ensureDefaults()
}

func (g *Gateway) ensureDefaults() *Gateway {
	if g.AuthTokenCookieName == "" {
		g.AuthTokenCookieName = "AuthGateToken"
	}
	if g.DashboardURL == "" {
		g.DashboardURL = "/dashboard"
	}
	if g.LoginURL == "" {
		g.LoginURL = "/login"
	}
	if g.Middleware.VerifyToken == nil {
		g.Middleware.VerifyToken = g.Issuer.Verify
		g.Middleware.AuthTokenCookieName = g.AuthTokenCookieName
		g.Middleware.LoginURL = g.LoginURL
	}
	if g.router == nil {
		g.router = mux.NewRouter()
		g.router.HandleFunc("/logout", g.handleLogout).Methods(http.MethodPost)
		g.router.HandleFunc(g.DashboardURL, g.requireUser(g.handleDashboard)).Methods(http.MethodGet)
		g.router.HandleFunc("/user-info", g.requireUser(g.handleUserInfo)).Methods(http.MethodGet)
	}
	return g
}

// Handler returns the gateway's HTTP handler. Static pages are mounted
// last so auth routes take precedence; the scs session wrapper is applied
// when configured.
func (g *Gateway) Handler() http.Handler {
	g.ensureDefaults()
	if g.StaticDir != "" && !g.staticMounted {
		g.router.HandleFunc(g.LoginURL, func(w http.ResponseWriter, r *http.Request) {
			http.ServeFile(w, r, filepath.Join(g.StaticDir, "login.html"))
		}).Methods(http.MethodGet)
		g.router.PathPrefix("/").Handler(http.FileServer(http.Dir(g.StaticDir)))
		g.staticMounted = true
	}
	if g.Session != nil {
		return g.Session.LoadAndSave(g.router)
	}
	return g.router
}

// AddLocal mounts password registration and login under /auth.
func (g *Gateway) AddLocal(local *LocalAuth) *Gateway {
	g.ensureDefaults()
	if local.HandleUser == nil {
		local.HandleUser = g.SignInAndRedirect
	}
	g.router.HandleFunc("/auth/register", local.HandleRegister).Methods(http.MethodPost)
	g.router.HandleFunc("/auth/login", local.HandleLogin).Methods(http.MethodPost)
	return g
}

// AddOAuth mounts the four routes of an OAuth-style provider: initiation
// and callback for the login flow, and their "link" variants which run only
// for an already-authenticated caller and merge the verified identity onto
// the caller's own account.
func (g *Gateway) AddOAuth(v ProofVerifier) *Gateway {
	g.ensureDefaults()
	provider := v.Provider()
	callbackURI := fmt.Sprintf("/auth/%s/callback", provider)
	linkCallbackURI := fmt.Sprintf("/auth/%s/link/callback", provider)

	g.router.HandleFunc("/auth/"+provider, g.oauthRedirect(v, callbackURI)).
		Methods(http.MethodGet)
	g.router.HandleFunc(callbackURI, g.oauthCallback(v, callbackURI)).
		Methods(http.MethodGet, http.MethodPost)
	g.router.HandleFunc("/auth/"+provider+"/link", g.requireUser(g.oauthRedirect(v, linkCallbackURI))).
		Methods(http.MethodGet)
	g.router.HandleFunc(linkCallbackURI, g.formPostBounce(g.requireUser(g.oauthLinkCallback(v, linkCallbackURI)))).
		Methods(http.MethodGet, http.MethodPost)
	return g
}

// formPostBounce turns a provider's cross-site form POST callback into a
// same-site GET before any cookie-gated handling runs. Browsers withhold
// SameSite=Lax cookies from cross-site POSTs, so Apple's form_post link
// callback would otherwise arrive without the session cookie and bounce to
// the login page. The redirect makes the browser re-request the callback as
// a top-level same-site navigation that carries it.
func (g *Gateway) formPostBounce(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			next(w, r)
			return
		}
		if err := r.ParseForm(); err != nil {
			slog.Warn("unparseable callback form", "err", err)
			http.Redirect(w, r, g.LoginURL, http.StatusFound)
			return
		}
		q := url.Values{}
		for _, key := range []string{"code", "state", "error"} {
			if v := r.PostFormValue(key); v != "" {
				q.Set(key, v)
			}
		}
		http.Redirect(w, r, r.URL.Path+"?"+q.Encode(), http.StatusSeeOther)
	}
}

// Handle mounts an extra route on the gateway's router.
func (g *Gateway) Handle(method, path string, h http.Handler) *Gateway {
	g.ensureDefaults()
	g.router.Handle(path, h).Methods(method)
	return g
}

// HandleAuthed mounts a route that requires a valid session.
func (g *Gateway) HandleAuthed(method, path string, h http.Handler) *Gateway {
	g.ensureDefaults()
	g.router.Handle(path, g.Middleware.EnsureUser(h)).Methods(method)
	return g
}

func (g *Gateway) requireUser(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		g.Middleware.EnsureUser(h).ServeHTTP(w, r)
	}
}

// SignInAndRedirect issues a session credential for the account, sets it as
// the session cookie, and redirects to the dashboard.
func (g *Gateway) SignInAndRedirect(account *Account, w http.ResponseWriter, r *http.Request) {
	if _, err := g.SetSession(account.Email, w); err != nil {
		slog.Error("issuing session token", "err", err)
		http.Redirect(w, r, g.LoginURL, http.StatusFound)
		return
	}
	http.Redirect(w, r, g.DashboardURL, http.StatusFound)
}

// SignInJSON issues a session credential, sets the cookie, and responds
// with a JSON status, for API-style flows.
func (g *Gateway) SignInJSON(account *Account, w http.ResponseWriter, r *http.Request) {
	if _, err := g.SetSession(account.Email, w); err != nil {
		slog.Error("issuing session token", "err", err)
		http.Error(w, `{"error": "Internal error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"status": "ok"})
}

// SetSession mints the session credential and sets it as a cookie.
func (g *Gateway) SetSession(email string, w http.ResponseWriter) (string, error) {
	g.ensureDefaults()
	token, err := g.Issuer.Issue(email)
	if err != nil {
		return "", err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     g.AuthTokenCookieName,
		Value:    token,
		Path:     "/",
		Expires:  time.Now().Add(g.Issuer.ttl()),
		MaxAge:   int(g.Issuer.ttl() / time.Second),
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	})
	return token, nil
}

// ClearSession unsets the session cookie.
func (g *Gateway) ClearSession(w http.ResponseWriter) {
	g.ensureDefaults()
	http.SetCookie(w, &http.Cookie{
		Name:    g.AuthTokenCookieName,
		Path:    "/",
		MaxAge:  -1,
		Expires: time.Now(),
	})
}

func (g *Gateway) handleLogout(w http.ResponseWriter, r *http.Request) {
	g.ClearSession(w)
	if g.Session != nil {
		if err := g.Session.Clear(r.Context()); err != nil {
			slog.Warn("clearing server-side session", "err", err)
		}
	}
	http.Redirect(w, r, g.LoginURL, http.StatusFound)
}

func (g *Gateway) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if g.StaticDir == "" {
		fmt.Fprintf(w, "Welcome, %s", EmailFromRequest(r))
		return
	}
	http.ServeFile(w, r, filepath.Join(g.StaticDir, "dashboard.html"))
}

// handleUserInfo returns the session claims merged with the stored account,
// with the password hash redacted.
func (g *Gateway) handleUserInfo(w http.ResponseWriter, r *http.Request) {
	email := EmailFromRequest(r)
	info := map[string]any{"email": email}

	account, err := g.Resolver.FindByEmail(r.Context(), email)
	if err == nil {
		if account.Apple != nil {
			info["apple"] = account.Apple
		}
		if account.Google != nil {
			info["google"] = account.Google
		}
		if account.Passkey != nil {
			info["passkey"] = map[string]any{"id": account.Passkey.ID, "raw_id": account.Passkey.RawID}
		}
		info["has_password"] = account.Password != nil
	} else if ae, ok := AsAuthError(err); !ok || ae.Code != ErrCodeNotFound {
		slog.Error("loading account for user-info", "err", err)
		http.Error(w, `{"error": "Internal error"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(info)
}

// oauthRedirect sends the user to the provider authorization URL, pinning a
// state value in a short-lived cookie.
func (g *Gateway) oauthRedirect(v ProofVerifier, callbackURI string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state := generateStateCookie(w)
		http.Redirect(w, r, v.AuthCodeURL(g.Origin+callbackURI, state), http.StatusFound)
	}
}

func (g *Gateway) oauthCallback(v ProofVerifier, callbackURI string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ident, ok := g.verifyCallback(v, callbackURI, w, r)
		if !ok {
			return
		}
		account, err := g.Resolver.ResolveOrCreate(r.Context(), ident)
		if err != nil {
			slog.Error("resolving provider identity", "provider", v.Provider(), "err", err)
			http.Redirect(w, r, g.LoginURL, http.StatusFound)
			return
		}
		g.SignInAndRedirect(account, w, r)
	}
}

func (g *Gateway) oauthLinkCallback(v ProofVerifier, callbackURI string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ident, ok := g.verifyCallback(v, callbackURI, w, r)
		if !ok {
			return
		}
		if _, err := g.Resolver.Link(r.Context(), EmailFromRequest(r), ident); err != nil {
			writeResolverError(w, err)
			return
		}
		http.Redirect(w, r, g.DashboardURL, http.StatusFound)
	}
}

// verifyCallback performs the shared state check and code exchange for both
// login and link callbacks. Failures redirect to the login page; causes are
// logged only.
func (g *Gateway) verifyCallback(v ProofVerifier, callbackURI string, w http.ResponseWriter, r *http.Request) (VerifiedIdentity, bool) {
	stateCookie, _ := r.Cookie("oauthstate")
	if stateCookie == nil || r.FormValue("state") != stateCookie.Value {
		slog.Warn("oauth state mismatch", "provider", v.Provider())
		clearStateCookie(w)
		http.Redirect(w, r, g.LoginURL, http.StatusFound)
		return VerifiedIdentity{}, false
	}
	clearStateCookie(w)

	code := r.FormValue("code")
	if code == "" {
		slog.Warn("oauth callback missing code", "provider", v.Provider())
		http.Redirect(w, r, g.LoginURL, http.StatusFound)
		return VerifiedIdentity{}, false
	}

	ident, err := v.VerifyCode(r.Context(), code, g.Origin+callbackURI)
	if err != nil {
		slog.Error("provider exchange failed", "provider", v.Provider(), "err", err)
		http.Redirect(w, r, g.LoginURL, http.StatusFound)
		return VerifiedIdentity{}, false
	}
	return ident, true
}

func generateStateCookie(w http.ResponseWriter) string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		slog.Error("generating oauth state", "err", err)
	}
	state := base64.URLEncoding.EncodeToString(b)
	// SameSite=None so the cookie survives the cross-site form POST that
	// Apple's form_post response mode produces.
	http.SetCookie(w, &http.Cookie{
		Name:     "oauthstate",
		Value:    state,
		Path:     "/",
		Expires:  time.Now().Add(10 * time.Minute),
		MaxAge:   600,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteNoneMode,
	})
	return state
}

func clearStateCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{Name: "oauthstate", Path: "/", MaxAge: -1, Expires: time.Now()})
}
