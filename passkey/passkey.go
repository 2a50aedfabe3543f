package passkey

import (
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/alexedwards/scs/v2"
	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/google/uuid"

	"github.com/dsavitsk/authgate"
)

// Session keys for the server-held challenge state. Values are read with
// Pop so a challenge can never be replayed. The email records which account
// the ceremony began for; the finish step must land on the same one.
const (
	sessionKeyChallenge = "passkeyChallenge"
	sessionKeyEmail     = "passkeyEmail"
)

// PasskeyAuth handles the WebAuthn login and link ceremonies. Login resolves
// the account by the asserted credential id. There is no create-on-missing;
// passkey accounts must already exist via the link flow.
type PasskeyAuth struct {
	Web      *webauthn.WebAuthn
	Session  *scs.SessionManager
	Resolver *authgate.Resolver

	// Handler called after successful authentication
	HandleUser authgate.HandleUserFunc
}

// passkeyUser adapts an Account to the relying party's user contract.
type passkeyUser struct {
	account *authgate.Account
	handle  []byte
}

func (u *passkeyUser) WebAuthnID() []byte          { return u.handle }
func (u *passkeyUser) WebAuthnName() string        { return u.account.Email }
func (u *passkeyUser) WebAuthnDisplayName() string { return u.account.Email }

func (u *passkeyUser) WebAuthnCredentials() []webauthn.Credential {
	if u.account.Passkey == nil || len(u.account.Passkey.Credential) == 0 {
		return nil
	}
	var cred webauthn.Credential
	if err := json.Unmarshal(u.account.Passkey.Credential, &cred); err != nil {
		slog.Error("decoding stored passkey credential", "err", err)
		return nil
	}
	return []webauthn.Credential{cred}
}

// HandleBeginLogin starts the login ceremony for the email in the request
// body and responds with assertion options naming the account's stored
// credential. Unknown email or an account without a passkey is a 404.
func (p *PasskeyAuth) HandleBeginLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Email == "" {
		writeJSONError(w, http.StatusBadRequest, "Email required")
		return
	}

	account, err := p.Resolver.FindByEmail(r.Context(), body.Email)
	if err != nil || account.Passkey == nil {
		writeJSONError(w, http.StatusNotFound, "User not found")
		return
	}

	user := &passkeyUser{account: account, handle: account.Passkey.UserHandle}
	assertion, session, err := p.Web.BeginLogin(user)
	if err != nil {
		slog.Error("begin passkey login", "err", err)
		writeJSONError(w, http.StatusInternalServerError, "Internal error")
		return
	}

	if !p.storeChallenge(w, r, session, body.Email) {
		return
	}
	writeJSON(w, assertion)
}

// HandleFinishLogin verifies the assertion against the stored credential
// and hands the account to HandleUser. An unknown credential id is always a
// 404 and never issues a session.
func (p *PasskeyAuth) HandleFinishLogin(w http.ResponseWriter, r *http.Request) {
	parsed, err := protocol.ParseCredentialRequestResponse(r)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "Invalid assertion")
		return
	}

	rawID := base64.RawURLEncoding.EncodeToString(parsed.RawID)
	account, err := p.Resolver.ResolveByPasskey(r.Context(), rawID)
	if err != nil {
		writeJSONError(w, http.StatusNotFound, "User not found")
		return
	}

	session, beganEmail, ok := p.popChallenge(r)
	if !ok {
		writeJSONError(w, http.StatusBadRequest, "No pending challenge")
		return
	}
	if beganEmail != account.Email {
		writeJSONError(w, http.StatusNotFound, "User not found")
		return
	}

	user := &passkeyUser{account: account, handle: session.UserID}
	cred, err := p.Web.ValidateLogin(user, *session, parsed)
	if err != nil {
		slog.Warn("passkey assertion rejected", "err", err)
		writeJSONError(w, http.StatusBadRequest, "Verification failed")
		return
	}

	// Persist the updated sign counter.
	if updated := marshalCredential(account.Passkey, cred); updated != nil {
		if err := p.Resolver.UpdatePasskey(r.Context(), rawID, updated); err != nil {
			slog.Error("updating passkey credential", "err", err)
		}
	}

	p.HandleUser(account, w, r)
}

// HandleBeginLink starts the registration ceremony for the authenticated
// caller and responds with credential creation options.
func (p *PasskeyAuth) HandleBeginLink(w http.ResponseWriter, r *http.Request) {
	email := authgate.EmailFromRequest(r)
	account, err := p.Resolver.FindByEmail(r.Context(), email)
	if err != nil {
		writeJSONError(w, http.StatusNotFound, "User not found")
		return
	}

	handle := newUserHandle(account)
	user := &passkeyUser{account: account, handle: handle}

	opts := []webauthn.RegistrationOption{
		webauthn.WithConveyancePreference(protocol.PreferDirectAttestation),
		webauthn.WithAuthenticatorSelection(protocol.AuthenticatorSelection{
			AuthenticatorAttachment: protocol.Platform,
		}),
	}
	if creds := user.WebAuthnCredentials(); len(creds) > 0 {
		opts = append(opts, webauthn.WithExclusions(webauthn.Credentials(creds).CredentialDescriptors()))
	}

	creation, session, err := p.Web.BeginRegistration(user, opts...)
	if err != nil {
		slog.Error("begin passkey registration", "err", err)
		writeJSONError(w, http.StatusInternalServerError, "Internal error")
		return
	}

	if !p.storeChallenge(w, r, session, email) {
		return
	}
	writeJSON(w, creation)
}

// HandleFinishLink verifies the attestation response and stores the new
// credential on the caller's account, replacing any previous one; the
// model holds a single passkey per account.
func (p *PasskeyAuth) HandleFinishLink(w http.ResponseWriter, r *http.Request) {
	email := authgate.EmailFromRequest(r)

	parsed, err := protocol.ParseCredentialCreationResponse(r)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "Invalid attestation")
		return
	}

	session, beganEmail, ok := p.popChallenge(r)
	if !ok || beganEmail != email {
		writeJSONError(w, http.StatusBadRequest, "No pending challenge")
		return
	}

	account, err := p.Resolver.FindByEmail(r.Context(), email)
	if err != nil {
		writeJSONError(w, http.StatusNotFound, "User not found")
		return
	}

	user := &passkeyUser{account: account, handle: session.UserID}
	cred, err := p.Web.CreateCredential(user, *session, parsed)
	if err != nil {
		slog.Warn("passkey attestation rejected", "err", err)
		writeJSONError(w, http.StatusBadRequest, "Verification failed")
		return
	}

	stored := &authgate.PasskeyCredential{
		ID:         parsed.ID,
		RawID:      base64.RawURLEncoding.EncodeToString(cred.ID),
		UserHandle: session.UserID,
	}
	if stored = marshalCredential(stored, cred); stored == nil {
		writeJSONError(w, http.StatusInternalServerError, "Internal error")
		return
	}

	if _, err := p.Resolver.SetPasskey(r.Context(), email, stored); err != nil {
		slog.Error("storing passkey credential", "err", err)
		writeJSONError(w, http.StatusInternalServerError, "Internal error")
		return
	}

	writeJSON(w, map[string]any{"status": "ok"})
}

// storeChallenge saves the ceremony session data server-side; the matching
// callback consumes it exactly once.
func (p *PasskeyAuth) storeChallenge(w http.ResponseWriter, r *http.Request, session *webauthn.SessionData, email string) bool {
	data, err := json.Marshal(session)
	if err != nil {
		slog.Error("encoding passkey session", "err", err)
		writeJSONError(w, http.StatusInternalServerError, "Internal error")
		return false
	}
	p.Session.Put(r.Context(), sessionKeyChallenge, data)
	p.Session.Put(r.Context(), sessionKeyEmail, email)
	return true
}

func (p *PasskeyAuth) popChallenge(r *http.Request) (*webauthn.SessionData, string, bool) {
	raw := p.Session.Pop(r.Context(), sessionKeyChallenge)
	email, _ := p.Session.Pop(r.Context(), sessionKeyEmail).(string)
	data, ok := raw.([]byte)
	if !ok || len(data) == 0 {
		return nil, "", false
	}
	var session webauthn.SessionData
	if err := json.Unmarshal(data, &session); err != nil {
		slog.Error("decoding passkey session", "err", err)
		return nil, "", false
	}
	return &session, email, true
}

// newUserHandle returns the account's existing WebAuthn user handle or a
// fresh one.
func newUserHandle(account *authgate.Account) []byte {
	if account.Passkey != nil && len(account.Passkey.UserHandle) > 0 {
		return account.Passkey.UserHandle
	}
	id := uuid.New()
	return id[:]
}

func marshalCredential(stored *authgate.PasskeyCredential, cred *webauthn.Credential) *authgate.PasskeyCredential {
	data, err := json.Marshal(cred)
	if err != nil {
		slog.Error("encoding passkey credential", "err", err)
		return nil
	}
	out := *stored
	out.Credential = data
	return &out
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{"error": message})
}
