package authgate

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// dummyPasswordHash is compared against when no stored hash applies, so a
// login miss costs one bcrypt compare just like a password mismatch.
var dummyPasswordHash = []byte("$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy")

// HandleUserFunc is called after a successful authentication with the
// resolved account. The gateway uses it to issue the session credential and
// redirect.
type HandleUserFunc func(account *Account, w http.ResponseWriter, r *http.Request)

// LocalAuth handles password-based registration and login. The proof is an
// (email, plaintext password) pair verified locally against the stored
// bcrypt hash; no external call is made.
type LocalAuth struct {
	Resolver *Resolver

	// Form field names. Default to "email" and "password".
	EmailField    string
	PasswordField string

	// Minimum password length for registration. Defaults to 8.
	MinPasswordLength int

	// Handler called after successful authentication
	HandleUser HandleUserFunc
}

// HandleRegister processes user registration: hashes the password, creates
// the account, and hands the result to HandleUser. A second registration
// with the same email is rejected with 400 and leaves the store unchanged.
func (a *LocalAuth) HandleRegister(w http.ResponseWriter, r *http.Request) {
	email, password, authErr := a.parseCredentials(r)
	if authErr != nil {
		writeAuthError(w, authErr)
		return
	}

	if !emailRegex.MatchString(email) {
		writeAuthError(w, NewValidationError(ErrCodeInvalidEmail, "Invalid email format", "email"))
		return
	}
	if minLen := a.minPasswordLength(); len(password) < minLen {
		writeAuthError(w, NewValidationError(ErrCodeWeakPassword,
			fmt.Sprintf("Password must be at least %d characters", minLen), "password"))
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		slog.Error("hashing password", "err", err)
		writeAuthError(w, NewPersistenceError("hash", err))
		return
	}

	account, err := a.Resolver.CreateLocal(r.Context(), email, string(hash))
	if err != nil {
		writeResolverError(w, err)
		return
	}

	a.HandleUser(account, w, r)
}

// HandleLogin verifies an (email, password) proof. Rejection does not
// reveal whether the account exists.
func (a *LocalAuth) HandleLogin(w http.ResponseWriter, r *http.Request) {
	email, password, authErr := a.parseCredentials(r)
	if authErr != nil {
		writeAuthError(w, authErr)
		return
	}

	account, err := a.Resolver.FindByEmail(r.Context(), email)
	hasPassword := err == nil && account.Password != nil
	hash := dummyPasswordHash
	if hasPassword {
		hash = []byte(*account.Password)
	}
	if bcrypt.CompareHashAndPassword(hash, []byte(password)) != nil || !hasPassword {
		if err != nil {
			slog.Info("login rejected", "err", err)
		}
		writeAuthError(w, NewValidationError(ErrCodeInvalidCreds, "Invalid credentials", "password"))
		return
	}

	a.HandleUser(account, w, r)
}

func (a *LocalAuth) parseCredentials(r *http.Request) (email, password string, authErr *AuthError) {
	contentType := r.Header.Get("Content-Type")
	emailField := a.emailField()
	passwordField := a.passwordField()

	if strings.HasPrefix(contentType, "application/x-www-form-urlencoded") ||
		strings.HasPrefix(contentType, "multipart/form-data") {
		if err := r.ParseForm(); err != nil {
			return "", "", NewValidationError("parse_error", "Error parsing form", "")
		}
		email = r.FormValue(emailField)
		password = r.FormValue(passwordField)
	} else {
		var data map[string]any
		if err := json.NewDecoder(r.Body).Decode(&data); err != nil || data == nil {
			return "", "", NewValidationError("parse_error", "Invalid post body", "")
		}
		if e, ok := data[emailField].(string); ok {
			email = e
		}
		if p, ok := data[passwordField].(string); ok {
			password = p
		}
	}

	if email == "" || password == "" {
		return "", "", NewValidationError(ErrCodeMissingField, "Email and password required", emailField)
	}
	return email, password, nil
}

func (a *LocalAuth) emailField() string {
	if a.EmailField != "" {
		return a.EmailField
	}
	return "email"
}

func (a *LocalAuth) passwordField() string {
	if a.PasswordField != "" {
		return a.PasswordField
	}
	return "password"
}

func (a *LocalAuth) minPasswordLength() int {
	if a.MinPasswordLength > 0 {
		return a.MinPasswordLength
	}
	return 8
}

// writeAuthError returns the JSON error body for a 4xx-class failure.
func writeAuthError(w http.ResponseWriter, err *AuthError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.HTTPStatus())
	json.NewEncoder(w).Encode(err)
}

// writeResolverError converts resolver failures into responses, logging the
// internal cause rather than exposing it.
func writeResolverError(w http.ResponseWriter, err error) {
	if ae, ok := AsAuthError(err); ok {
		if ae.Code == ErrCodePersistence {
			slog.Error("persistence failure", "err", err)
			http.Error(w, `{"error": "Internal error"}`, http.StatusInternalServerError)
			return
		}
		writeAuthError(w, ae)
		return
	}
	slog.Error("unexpected resolver failure", "err", err)
	http.Error(w, `{"error": "Internal error"}`, http.StatusInternalServerError)
}
