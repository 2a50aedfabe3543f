// Command authgate runs the authentication gateway: password, Google,
// Apple and passkey sign-in in front of a file-backed account store.
package main

import (
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/alexedwards/scs/v2"

	"github.com/dsavitsk/authgate"
	"github.com/dsavitsk/authgate/oauth2"
	"github.com/dsavitsk/authgate/passkey"
	"github.com/dsavitsk/authgate/stores"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	cfg, err := authgate.LoadConfig()
	if err != nil {
		slog.Error("loading config", "err", err)
		os.Exit(1)
	}

	store := stores.NewFSAccountStore(cfg.StoragePath)
	resolver := authgate.NewResolver(store)
	issuer := authgate.NewSessionIssuer(cfg.JWTSecret)

	session := scs.New()
	session.Lifetime = 10 * time.Minute
	session.Cookie.HttpOnly = true
	session.Cookie.Secure = cfg.TLSEnabled()

	gw := authgate.NewGateway(resolver, issuer)
	gw.Session = session
	gw.Origin = cfg.Origin
	gw.StaticDir = cfg.StaticDir
	if cfg.AuthTokenCookieName != "" {
		gw.AuthTokenCookieName = cfg.AuthTokenCookieName
	}

	gw.AddLocal(&authgate.LocalAuth{Resolver: resolver})

	if cfg.GoogleEnabled() {
		gw.AddOAuth(oauth2.NewGoogle(cfg.GoogleClientID, cfg.GoogleClientSecret))
	} else {
		slog.Warn("google sign-in disabled: credentials not configured")
	}

	if cfg.AppleEnabled() {
		apple, err := oauth2.NewApple(oauth2.AppleConfig{
			ClientID:   cfg.AppleClientID,
			TeamID:     cfg.AppleTeamID,
			PrivateKey: cfg.ApplePrivateKey,
			KeyID:      cfg.ApplePrivateKeyID,
		})
		if err != nil {
			slog.Error("configuring apple sign-in", "err", err)
			os.Exit(1)
		}
		gw.AddOAuth(apple)
	} else {
		slog.Warn("apple sign-in disabled: credentials not configured")
	}

	if err := mountPasskey(gw, resolver); err != nil {
		slog.Error("configuring passkeys", "err", err)
		os.Exit(1)
	}

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           gw.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	if cfg.TLSEnabled() {
		slog.Info("listening", "addr", cfg.Addr, "origin", cfg.Origin, "tls", true)
		err = server.ListenAndServeTLS(cfg.CertFile, cfg.KeyFile)
	} else {
		slog.Warn("tls cert paths not configured, serving plain http")
		slog.Info("listening", "addr", cfg.Addr, "origin", cfg.Origin, "tls", false)
		err = server.ListenAndServe()
	}
	if err != nil && err != http.ErrServerClosed {
		slog.Error("server exited", "err", err)
		os.Exit(1)
	}
}

// mountPasskey wires the WebAuthn ceremonies onto the gateway router. The
// login pair is public; the link pair requires a session.
func mountPasskey(gw *authgate.Gateway, resolver *authgate.Resolver) error {
	web, err := passkey.NewWebAuthn(passkey.LoadConfigFromEnv())
	if err != nil {
		return err
	}
	pk := &passkey.PasskeyAuth{
		Web:        web,
		Session:    gw.Session,
		Resolver:   resolver,
		HandleUser: gw.SignInJSON,
	}
	gw.Handle(http.MethodPost, "/auth/passkey/login", http.HandlerFunc(pk.HandleBeginLogin))
	gw.Handle(http.MethodPost, "/auth/passkey/login/callback", http.HandlerFunc(pk.HandleFinishLogin))
	gw.HandleAuthed(http.MethodPost, "/auth/passkey/link", http.HandlerFunc(pk.HandleBeginLink))
	gw.HandleAuthed(http.MethodPost, "/auth/passkey/link/callback", http.HandlerFunc(pk.HandleFinishLink))
	return nil
}
