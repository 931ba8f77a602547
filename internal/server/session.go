package server

import (
	"net/http"

	"github.com/desertthunder/spotstats/internal/shared"
	"github.com/gorilla/sessions"
)

const (
	sessionIDKey = "sid"
	stateKey     = "state"
)

// SessionManager reads and writes the signed session cookie.
//
// The cookie only ever carries the session id and the pending OAuth state. Tokens stay server-side in the
// [repositories.TokenStore].
type SessionManager struct {
	store *sessions.CookieStore
	name  string
}

// NewSessionManager builds a cookie store signed with the configured secret.
func NewSessionManager(cfg shared.SessionConfig) *SessionManager {
	store := sessions.NewCookieStore([]byte(cfg.Secret))
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   cfg.MaxAge,
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	}
	store.MaxAge(cfg.MaxAge)

	return &SessionManager{store: store, name: cfg.CookieName}
}

// session returns the request's session. A cookie that fails verification yields a fresh, empty session.
func (m *SessionManager) session(r *http.Request) *sessions.Session {
	s, _ := m.store.Get(r, m.name)
	return s
}

func stringValue(s *sessions.Session, key string) string {
	v, _ := s.Values[key].(string)
	return v
}

// SessionID returns the id carried by the cookie, if any.
func (m *SessionManager) SessionID(r *http.Request) (string, bool) {
	id := stringValue(m.session(r), sessionIDKey)
	return id, id != ""
}

// State returns the OAuth state stored by [SessionManager.BeginLogin].
func (m *SessionManager) State(r *http.Request) string {
	return stringValue(m.session(r), stateKey)
}

// BeginLogin drops any session id from the cookie and remembers state for the callback.
func (m *SessionManager) BeginLogin(w http.ResponseWriter, r *http.Request, state string) error {
	s := m.session(r)
	delete(s.Values, sessionIDKey)
	s.Values[stateKey] = state
	return s.Save(r, w)
}

// Authenticate binds the cookie to sessionID and forgets the consumed state.
func (m *SessionManager) Authenticate(w http.ResponseWriter, r *http.Request, sessionID string) error {
	s := m.session(r)
	delete(s.Values, stateKey)
	s.Values[sessionIDKey] = sessionID
	return s.Save(r, w)
}

// Destroy expires the cookie.
func (m *SessionManager) Destroy(w http.ResponseWriter, r *http.Request) error {
	s := m.session(r)
	s.Values = map[any]any{}
	s.Options.MaxAge = -1
	return s.Save(r, w)
}
