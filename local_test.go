package authgate

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func newLocalAuth(store *memStore) (*LocalAuth, *Account) {
	var signedIn Account
	local := &LocalAuth{
		Resolver: NewResolver(store),
		HandleUser: func(account *Account, w http.ResponseWriter, r *http.Request) {
			signedIn = *account
			w.WriteHeader(http.StatusOK)
		},
	}
	return local, &signedIn
}

func postForm(handler http.HandlerFunc, values url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	handler(w, req)
	return w
}

func postJSON(handler http.HandlerFunc, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	handler(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) AuthError {
	t.Helper()
	var ae AuthError
	if err := json.Unmarshal(w.Body.Bytes(), &ae); err != nil {
		t.Fatalf("error body is not JSON: %v: %s", err, w.Body.String())
	}
	return ae
}

func TestRegisterThenLogin(t *testing.T) {
	store := &memStore{}
	local, signedIn := newLocalAuth(store)

	w := postForm(local.HandleRegister, url.Values{
		"email":    {"alice@example.com"},
		"password": {"correct horse"},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("register returned %d: %s", w.Code, w.Body.String())
	}
	if signedIn.Email != "alice@example.com" {
		t.Fatalf("HandleUser got %q", signedIn.Email)
	}
	if account := store.accounts[0]; account.Password == nil || *account.Password == "correct horse" {
		t.Fatal("password must be stored hashed")
	}

	w = postJSON(local.HandleLogin, `{"email": "alice@example.com", "password": "correct horse"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("login returned %d: %s", w.Code, w.Body.String())
	}
}

func TestLoginRejections(t *testing.T) {
	store := &memStore{}
	local, _ := newLocalAuth(store)
	postForm(local.HandleRegister, url.Values{
		"email":    {"alice@example.com"},
		"password": {"correct horse"},
	})

	cases := []struct {
		name string
		body string
		code string
	}{
		{"wrong password", `{"email": "alice@example.com", "password": "wrong"}`, ErrCodeInvalidCreds},
		{"unknown email", `{"email": "ghost@example.com", "password": "correct horse"}`, ErrCodeInvalidCreds},
		{"missing password", `{"email": "alice@example.com"}`, ErrCodeMissingField},
		{"empty body", `{}`, ErrCodeMissingField},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := postJSON(local.HandleLogin, tc.body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
			}
			if ae := decodeError(t, w); ae.Code != tc.code {
				t.Errorf("expected code %s, got %s", tc.code, ae.Code)
			}
		})
	}
}

func TestLoginDoesNotRevealAccountExistence(t *testing.T) {
	store := &memStore{}
	local, _ := newLocalAuth(store)
	postForm(local.HandleRegister, url.Values{
		"email":    {"alice@example.com"},
		"password": {"correct horse"},
	})

	wrongPassword := postJSON(local.HandleLogin, `{"email": "alice@example.com", "password": "wrong"}`)
	unknownUser := postJSON(local.HandleLogin, `{"email": "nobody@example.com", "password": "wrong"}`)

	if wrongPassword.Code != unknownUser.Code {
		t.Errorf("status leaks existence: %d vs %d", wrongPassword.Code, unknownUser.Code)
	}
	if wrongPassword.Body.String() != unknownUser.Body.String() {
		t.Errorf("body leaks existence: %s vs %s", wrongPassword.Body.String(), unknownUser.Body.String())
	}
}

func TestLoginProviderOnlyAccountRejected(t *testing.T) {
	// An account created from a provider callback has no password hash; a
	// password login against it must fail like any other bad credential.
	store := &memStore{accounts: []*Account{{
		Email:  "bob@gmail.com",
		Google: &ProviderIdentity{Subject: "g-123", Email: "bob@gmail.com"},
	}}}
	local, _ := newLocalAuth(store)

	w := postJSON(local.HandleLogin, `{"email": "bob@gmail.com", "password": "anything"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
	if ae := decodeError(t, w); ae.Code != ErrCodeInvalidCreds {
		t.Errorf("expected invalid_credentials, got %s", ae.Code)
	}
}

func TestLoginMissRunsConstantCostCompare(t *testing.T) {
	// The dummy hash stands in when no stored hash applies; it must be a
	// well-formed bcrypt hash or the miss path would return instantly and
	// give account existence away through timing.
	if err := bcrypt.CompareHashAndPassword(dummyPasswordHash, []byte("some-guess")); err != bcrypt.ErrMismatchedHashAndPassword {
		t.Fatalf("dummy hash is not a valid bcrypt hash: %v", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	local, _ := newLocalAuth(&memStore{})

	cases := []struct {
		name string
		body string
		code string
	}{
		{"bad email", `{"email": "not-an-email", "password": "long enough"}`, ErrCodeInvalidEmail},
		{"short password", `{"email": "a@b.com", "password": "short"}`, ErrCodeWeakPassword},
		{"missing email", `{"password": "long enough"}`, ErrCodeMissingField},
		{"not json", `garbage`, "parse_error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := postJSON(local.HandleRegister, tc.body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
			}
			if ae := decodeError(t, w); ae.Code != tc.code {
				t.Errorf("expected code %s, got %s", tc.code, ae.Code)
			}
		})
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	store := &memStore{}
	local, _ := newLocalAuth(store)

	body := `{"email": "alice@example.com", "password": "correct horse"}`
	if w := postJSON(local.HandleRegister, body); w.Code != http.StatusOK {
		t.Fatalf("first registration returned %d", w.Code)
	}

	w := postJSON(local.HandleRegister, `{"email": "alice@example.com", "password": "another pass"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
	if ae := decodeError(t, w); ae.Code != ErrCodeEmailExists {
		t.Errorf("expected email_exists, got %s", ae.Code)
	}
	if len(store.accounts) != 1 {
		t.Errorf("duplicate registration must not touch the store, got %d accounts", len(store.accounts))
	}
}

func TestRegisterPersistenceFailureIs500(t *testing.T) {
	store := &memStore{saveErr: errSaveBroken}
	local, _ := newLocalAuth(store)

	w := postJSON(local.HandleRegister, `{"email": "alice@example.com", "password": "correct horse"}`)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	if strings.Contains(w.Body.String(), "broken") {
		t.Error("internal cause must not leak to the client")
	}
}
