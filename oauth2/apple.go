package oauth2

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"

	"github.com/dsavitsk/authgate"
)

const (
	appleAuthURL  = "https://appleid.apple.com/auth/authorize"
	appleTokenURL = "https://appleid.apple.com/auth/token"
	appleJWKSURL  = "https://appleid.apple.com/auth/keys"
	appleIssuer   = "https://appleid.apple.com"

	// Apple accepts client secrets valid for up to six months; a short
	// window is enough since one is generated per exchange.
	appleClientSecretTTL = 5 * time.Minute
)

// AppleConfig holds the Sign in with Apple service credentials.
type AppleConfig struct {
	ClientID   string
	TeamID     string
	PrivateKey string // PEM-encoded ES256 key
	KeyID      string
}

// Apple verifies Sign in with Apple authorization codes. The exchange signs
// a client assertion with the configured service key; the returned identity
// token is verified against Apple's published keys and the configured
// audience.
type Apple struct {
	base
	teamID     string
	keyID      string
	privateKey *ecdsa.PrivateKey

	jwksURL  string
	issuer   string
	keysOnce sync.Once
	keys     keyfunc.Keyfunc
	keysErr  error
}

func NewApple(cfg AppleConfig) (*Apple, error) {
	key, err := jwt.ParseECPrivateKeyFromPEM([]byte(cfg.PrivateKey))
	if err != nil {
		return nil, fmt.Errorf("parsing apple private key: %w", err)
	}
	return &Apple{
		base: base{
			name: authgate.ProviderApple,
			config: oauth2.Config{
				ClientID: cfg.ClientID,
				Endpoint: oauth2.Endpoint{AuthURL: appleAuthURL, TokenURL: appleTokenURL},
				Scopes:   []string{"email", "name"},
			},
		},
		teamID:     cfg.TeamID,
		keyID:      cfg.KeyID,
		privateKey: key,
		jwksURL:    appleJWKSURL,
		issuer:     appleIssuer,
	}, nil
}

// SetHTTPClient overrides the client used for the token exchange.
func (a *Apple) SetHTTPClient(c *http.Client) { a.httpClient = c }

// SetVerificationKeys overrides the JWKS endpoint and expected issuer.
// Mainly for tests.
func (a *Apple) SetVerificationKeys(jwksURL, issuer string) {
	a.jwksURL = jwksURL
	a.issuer = issuer
}

// AuthCodeURL builds the Apple authorization URL. Apple requires the
// form_post response mode whenever scopes are requested, which is why the
// login callback is a POST.
func (a *Apple) AuthCodeURL(redirectURI, state string) string {
	return a.authCodeURL(redirectURI, state,
		oauth2.SetAuthURLParam("response_mode", "form_post"))
}

func (a *Apple) VerifyCode(ctx context.Context, code, redirectURI string) (authgate.VerifiedIdentity, error) {
	secret, err := a.clientSecret()
	if err != nil {
		return authgate.VerifiedIdentity{}, authgate.NewProviderExchangeError(a.name, err)
	}
	cfg := a.config
	cfg.ClientSecret = secret

	token, err := a.exchange(ctx, cfg, code, redirectURI)
	if err != nil {
		return authgate.VerifiedIdentity{}, authgate.NewProviderExchangeError(a.name, err)
	}

	idToken, _ := token.Extra("id_token").(string)
	if idToken == "" {
		return authgate.VerifiedIdentity{}, authgate.NewProviderExchangeError(a.name,
			fmt.Errorf("token response carried no id_token"))
	}

	claims, err := a.verifyIDToken(idToken)
	if err != nil {
		return authgate.VerifiedIdentity{}, authgate.NewProviderExchangeError(a.name, err)
	}

	sub := claimString(claims, "sub")
	if sub == "" {
		return authgate.VerifiedIdentity{}, authgate.NewProviderExchangeError(a.name,
			fmt.Errorf("id_token carried no subject"))
	}

	return authgate.VerifiedIdentity{
		Provider: a.name,
		Subject:  sub,
		Email:    claimString(claims, "email"),
		Name:     claimString(claims, "name"),
		Claims:   claims,
	}, nil
}

// clientSecret generates the ES256-signed client assertion Apple expects in
// place of a static client secret.
func (a *Apple) clientSecret() (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodES256, jwt.MapClaims{
		"iss": a.teamID,
		"iat": now.Unix(),
		"exp": now.Add(appleClientSecretTTL).Unix(),
		"aud": appleIssuer,
		"sub": a.config.ClientID,
	})
	token.Header["kid"] = a.keyID

	secret, err := token.SignedString(a.privateKey)
	if err != nil {
		return "", fmt.Errorf("signing apple client secret: %w", err)
	}
	return secret, nil
}

// verifyIDToken checks the identity token's signature against Apple's
// public keys along with the issuer and audience claims.
func (a *Apple) verifyIDToken(idToken string) (jwt.MapClaims, error) {
	a.keysOnce.Do(func() {
		a.keys, a.keysErr = keyfunc.NewDefault([]string{a.jwksURL})
	})
	if a.keysErr != nil {
		return nil, fmt.Errorf("loading apple public keys: %w", a.keysErr)
	}

	token, err := jwt.Parse(idToken, a.keys.Keyfunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg(), jwt.SigningMethodES256.Alg()}),
		jwt.WithIssuer(a.issuer),
		jwt.WithAudience(a.config.ClientID),
	)
	if err != nil {
		return nil, fmt.Errorf("verifying apple id_token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || claims == nil {
		return nil, fmt.Errorf("apple id_token claims are not a map")
	}
	return claims, nil
}
