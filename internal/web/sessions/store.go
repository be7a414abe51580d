package sessions

import (
	"net/http"

	"github.com/gorilla/sessions"
)

const CookieName = "accounts-session"

// PersistentMaxAge is the lifetime in seconds of the cookie of a session
// that should be remembered across browser restarts.
const PersistentMaxAge = 86400 * 30

type Store struct {
	store sessions.Store
}

func NewStore(store sessions.Store) *Store {
	return &Store{store: store}
}

// NewCookieStore creates a store that keeps sessions in cookies signed and
// encrypted with keyPairs. Pairs are authentication and encryption keys,
// the first pair is used for new cookies, the others only to read old ones.
//
// Cookies end with the browser session unless the session is made persistent.
func NewCookieStore(secure bool, keyPairs ...[]byte) *Store {
	// The codecs reject cookies older than PersistentMaxAge.
	cs := sessions.NewCookieStore(keyPairs...)
	cs.MaxAge(PersistentMaxAge)
	cs.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   0,
		Secure:   secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	return NewStore(cs)
}

// Get returns the session of the request. A cookie that can't be decoded,
// for example because the keys were rotated, results in a new session.
func (s *Store) Get(r *http.Request) (*Session, error) {
	base, err := s.store.Get(r, CookieName)
	if err != nil && base == nil {
		return nil, err
	}

	sess := &Session{base: base}
	sess.applyPersistence()
	if base.IsNew {
		// Write the cookie on the first response.
		sess.needsSave = true
	}

	return sess, nil
}

func (s *Store) Save(r *http.Request, w http.ResponseWriter, sess *Session) error {
	err := s.store.Save(r, w, sess.base)
	if err != nil {
		return err
	}

	sess.needsSave = false
	return nil
}
