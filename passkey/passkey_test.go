package passkey

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alexedwards/scs/v2"
	"github.com/go-webauthn/webauthn/webauthn"

	"github.com/dsavitsk/authgate"
)

type memStore struct {
	accounts []*authgate.Account
}

func (m *memStore) Load(ctx context.Context) ([]*authgate.Account, error) {
	return m.accounts, nil
}

func (m *memStore) Save(ctx context.Context, accounts []*authgate.Account) error {
	m.accounts = accounts
	return nil
}

func newTestPasskeyAuth(t *testing.T, store *memStore) *PasskeyAuth {
	t.Helper()
	web, err := NewWebAuthn(Config{
		RPDisplayName: "AuthGate Test",
		RPID:          "localhost",
		RPOrigins:     []string{"https://localhost"},
	})
	if err != nil {
		t.Fatal(err)
	}
	return &PasskeyAuth{
		Web:      web,
		Resolver: authgate.NewResolver(store),
		HandleUser: func(account *authgate.Account, w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		},
	}
}

func postBody(handler http.HandlerFunc, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	handler(w, req)
	return w
}

func TestBeginLoginUnknownEmail(t *testing.T) {
	p := newTestPasskeyAuth(t, &memStore{})

	w := postBody(p.HandleBeginLogin, `{"email": "ghost@example.com"}`)
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown email should be 404, got %d: %s", w.Code, w.Body.String())
	}
}

func TestBeginLoginAccountWithoutPasskey(t *testing.T) {
	p := newTestPasskeyAuth(t, &memStore{
		accounts: []*authgate.Account{{Email: "alice@example.com"}},
	})

	w := postBody(p.HandleBeginLogin, `{"email": "alice@example.com"}`)
	if w.Code != http.StatusNotFound {
		t.Errorf("account without passkey should be 404, got %d", w.Code)
	}
}

func TestBeginLoginBadBody(t *testing.T) {
	p := newTestPasskeyAuth(t, &memStore{})

	for _, body := range []string{``, `{}`, `garbage`} {
		if w := postBody(p.HandleBeginLogin, body); w.Code != http.StatusBadRequest {
			t.Errorf("body %q should be 400, got %d", body, w.Code)
		}
	}
}

// assertionJSON builds a syntactically valid assertion response for the
// given base64url credential id. It decodes and parses but can never pass
// signature validation.
func assertionJSON(t *testing.T, rawID string) string {
	t.Helper()
	authData := base64.RawURLEncoding.EncodeToString(make([]byte, 37))
	clientData := base64.RawURLEncoding.EncodeToString(
		[]byte(`{"type":"webauthn.get","challenge":"Y2hhbGxlbmdl","origin":"https://localhost"}`))
	return fmt.Sprintf(
		`{"id":%q,"rawId":%q,"type":"public-key","response":{"authenticatorData":%q,"clientDataJSON":%q,"signature":"c2ln","userHandle":"aGFuZGxl"}}`,
		rawID, rawID, authData, clientData)
}

func TestFinishLoginUnknownCredentialIs404(t *testing.T) {
	// An assertion naming a credential nobody holds must 404 without ever
	// reaching verification or issuing a session.
	signedIn := false
	store := &memStore{accounts: []*authgate.Account{{
		Email:   "alice@example.com",
		Passkey: &authgate.PasskeyCredential{ID: "a", RawID: "a", UserHandle: []byte("h")},
	}}}
	p := newTestPasskeyAuth(t, store)
	p.HandleUser = func(account *authgate.Account, w http.ResponseWriter, r *http.Request) {
		signedIn = true
	}

	w := postBody(p.HandleFinishLogin, assertionJSON(t, "dW5rbm93bg"))
	if w.Code != http.StatusNotFound {
		t.Fatalf("unknown credential got %d, want 404: %s", w.Code, w.Body.String())
	}
	if signedIn {
		t.Error("unknown credential must not sign anyone in")
	}
}

func TestFinishLoginChallengeAccountMismatch(t *testing.T) {
	// The stored begin-email must match the account the asserted credential
	// resolves to; a challenge started for another account is rejected.
	rawID := base64.RawURLEncoding.EncodeToString([]byte("cred-id"))
	signedIn := false
	store := &memStore{accounts: []*authgate.Account{{
		Email:   "alice@example.com",
		Passkey: &authgate.PasskeyCredential{ID: rawID, RawID: rawID, UserHandle: []byte("handle")},
	}}}
	p := newTestPasskeyAuth(t, store)
	p.Session = scs.New()
	p.HandleUser = func(account *authgate.Account, w http.ResponseWriter, r *http.Request) {
		signedIn = true
	}

	router := http.NewServeMux()
	router.HandleFunc("/begin", func(w http.ResponseWriter, r *http.Request) {
		p.storeChallenge(w, r, &webauthn.SessionData{
			Challenge: "Y2hhbGxlbmdl",
			UserID:    []byte("handle"),
		}, "mallory@example.com")
	})
	router.HandleFunc("/finish", p.HandleFinishLogin)
	handler := p.Session.LoadAndSave(router)

	begin := httptest.NewRequest(http.MethodPost, "/begin", nil)
	beginRec := httptest.NewRecorder()
	handler.ServeHTTP(beginRec, begin)
	cookies := beginRec.Result().Cookies()
	if len(cookies) == 0 {
		t.Fatal("challenge storage did not set the scs cookie")
	}

	finish := httptest.NewRequest(http.MethodPost, "/finish", strings.NewReader(assertionJSON(t, rawID)))
	finish.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		finish.AddCookie(c)
	}
	finishRec := httptest.NewRecorder()
	handler.ServeHTTP(finishRec, finish)

	if finishRec.Code != http.StatusNotFound {
		t.Fatalf("mismatched challenge got %d, want 404: %s", finishRec.Code, finishRec.Body.String())
	}
	if signedIn {
		t.Error("mismatched challenge must not sign anyone in")
	}
}

func TestFinishLoginMalformedAssertion(t *testing.T) {
	p := newTestPasskeyAuth(t, &memStore{})

	w := postBody(p.HandleFinishLogin, `not an assertion`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("malformed assertion should be 400, got %d", w.Code)
	}
}

func TestFinishLinkMalformedAttestation(t *testing.T) {
	p := newTestPasskeyAuth(t, &memStore{
		accounts: []*authgate.Account{{Email: "alice@example.com"}},
	})

	w := postBody(p.HandleFinishLink, `not an attestation`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("malformed attestation should be 400, got %d", w.Code)
	}
}

func TestPasskeyUserContract(t *testing.T) {
	cred := webauthn.Credential{ID: []byte("cred-id")}
	data, err := json.Marshal(cred)
	if err != nil {
		t.Fatal(err)
	}
	account := &authgate.Account{
		Email: "alice@example.com",
		Passkey: &authgate.PasskeyCredential{
			ID:         "Y3JlZC1pZA",
			RawID:      "Y3JlZC1pZA",
			UserHandle: []byte("handle-1"),
			Credential: data,
		},
	}
	user := &passkeyUser{account: account, handle: account.Passkey.UserHandle}

	if string(user.WebAuthnID()) != "handle-1" {
		t.Errorf("unexpected user handle %q", user.WebAuthnID())
	}
	if user.WebAuthnName() != "alice@example.com" || user.WebAuthnDisplayName() != "alice@example.com" {
		t.Error("name and display name should be the account email")
	}
	creds := user.WebAuthnCredentials()
	if len(creds) != 1 || string(creds[0].ID) != "cred-id" {
		t.Errorf("stored credential did not decode: %+v", creds)
	}
}

func TestPasskeyUserWithoutCredential(t *testing.T) {
	user := &passkeyUser{account: &authgate.Account{Email: "alice@example.com"}}
	if creds := user.WebAuthnCredentials(); len(creds) != 0 {
		t.Errorf("expected no credentials, got %d", len(creds))
	}
}

func TestNewUserHandle(t *testing.T) {
	fresh := &authgate.Account{Email: "a@b.com"}
	first := newUserHandle(fresh)
	if len(first) == 0 {
		t.Fatal("expected a generated handle")
	}

	existing := &authgate.Account{
		Email:   "a@b.com",
		Passkey: &authgate.PasskeyCredential{UserHandle: []byte("stable-handle")},
	}
	if got := newUserHandle(existing); string(got) != "stable-handle" {
		t.Errorf("existing handle must be reused, got %q", got)
	}
}
