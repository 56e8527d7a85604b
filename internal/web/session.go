package web

import (
	"net/http"

	"github.com/gorilla/sessions"

	"github.com/desertthunder/amalgam/internal/tasks"
)

const (
	sessionName = "amalgam"

	keyUserID         = "user_id"
	keyDomain         = "user_domain"
	keyVerifiedDomain = "verified_domain"
	keyState          = "oauth_state"
)

// SessionStore names the one cookie session the app uses.
type SessionStore struct {
	name  string
	store sessions.Store
}

// NewCookieSessionStore keeps sessions in a signed cookie. keyPairs are passed to
// [sessions.NewCookieStore]; the first key must be set.
func NewCookieSessionStore(secure bool, keyPairs ...[]byte) *SessionStore {
	store := sessions.NewCookieStore(keyPairs...)
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   86400 * 7,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
	return &SessionStore{name: sessionName, store: store}
}

// Get returns the request's session. A cookie that fails to decode yields a fresh session and the error.
func (s *SessionStore) Get(r *http.Request) (*sessions.Session, error) {
	return s.store.Get(r, s.name)
}

func (s *SessionStore) Save(r *http.Request, w http.ResponseWriter, sess *sessions.Session) error {
	return s.store.Save(r, w, sess)
}

// Principal is the logged-in user of a request.
type Principal struct {
	UserID   string
	Username string
}

func stringValue(sess *sessions.Session, key string) string {
	v, _ := sess.Values[key].(string)
	return v
}

func pendingFrom(sess *sessions.Session) tasks.PendingLink {
	return tasks.PendingLink{
		Domain:         stringValue(sess, keyDomain),
		VerifiedDomain: stringValue(sess, keyVerifiedDomain),
		State:          stringValue(sess, keyState),
	}
}

func storePending(sess *sessions.Session, p tasks.PendingLink) {
	sess.Values[keyDomain] = p.Domain
	sess.Values[keyVerifiedDomain] = p.VerifiedDomain
	sess.Values[keyState] = p.State
}

func clearPending(sess *sessions.Session) {
	delete(sess.Values, keyDomain)
	delete(sess.Values, keyVerifiedDomain)
	delete(sess.Values, keyState)
}

func clearSession(sess *sessions.Session) {
	for k := range sess.Values {
		delete(sess.Values, k)
	}
}

func flashes(sess *sessions.Session) []string {
	var out []string
	for _, f := range sess.Flashes() {
		if s, ok := f.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// sessionHandle is a request's session bound to its store.
type sessionHandle struct {
	*sessions.Session
	store *SessionStore
}

func (h *sessionHandle) save(w http.ResponseWriter, r *http.Request) error {
	return h.store.Save(r, w, h.Session)
}
