package authgate

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultSessionTTL is the fixed validity window of a session credential.
const DefaultSessionTTL = time.Hour

// SessionIssuer mints and verifies the signed session credential bound to
// an account's email. Verification checks signature and expiry only; it
// never consults the account store.
type SessionIssuer struct {
	SecretKey string
	Issuer    string

	// TTL defaults to one hour.
	TTL time.Duration
}

func NewSessionIssuer(secretKey string) *SessionIssuer {
	return &SessionIssuer{SecretKey: secretKey, Issuer: "AuthGate", TTL: DefaultSessionTTL}
}

func (s *SessionIssuer) ttl() time.Duration {
	if s.TTL <= 0 {
		return DefaultSessionTTL
	}
	return s.TTL
}

// Issue produces a signed credential naming the account's email.
func (s *SessionIssuer) Issue(email string) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": email,
		"iss": s.Issuer,
		"iat": now.Unix(),
		"exp": now.Add(s.ttl()).Unix(),
	})
	signed, err := token.SignedString([]byte(s.SecretKey))
	if err != nil {
		return "", fmt.Errorf("signing session token: %w", err)
	}
	return signed, nil
}

// Verify checks the token's signature and expiry and returns the email it
// names.
func (s *SessionIssuer) Verify(tokenString string) (email string, err error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		return []byte(s.SecretKey), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", err
	}
	if !token.Valid {
		return "", fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || claims == nil {
		return "", fmt.Errorf("claims is not a map")
	}
	sub, err := claims.GetSubject()
	if sub == "" {
		return "", fmt.Errorf("subject not found")
	} else if err != nil {
		return "", err
	}
	return sub, nil
}
