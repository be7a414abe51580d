package sessions

import (
	"github.com/gorilla/sessions"
)

// Only strings are stored, so the values survive the gob encoding of the
// cookie store without registering any types.
const (
	keyUserID        = "user_id"
	keySecurityStamp = "security_stamp"
	keyPersistent    = "persistent"
	keyOAuthProvider = "oauth_provider"
	keyOAuthState    = "oauth_state"
	keyPendingPrefix = "pending_"
)

// Session is the cookie backed session of a visitor.
type Session struct {
	base      *sessions.Session
	needsSave bool
}

func (s *Session) NeedsSave() bool {
	return s.needsSave
}

// User returns the id of the logged in user and the security stamp the
// session was issued with.
func (s *Session) User() (string, string, bool) {
	userID, ok := s.base.Values[keyUserID].(string)
	if !ok || userID == "" {
		return "", "", false
	}

	stamp, _ := s.base.Values[keySecurityStamp].(string)
	return userID, stamp, true
}

func (s *Session) SetUser(userID, stamp string) {
	s.needsSave = true
	s.base.Values[keyUserID] = userID
	s.base.Values[keySecurityStamp] = stamp
}

func (s *Session) ClearUser() {
	s.needsSave = true
	delete(s.base.Values, keyUserID)
	delete(s.base.Values, keySecurityStamp)
	s.SetPersistent(false)
}

// SetPersistent makes the cookie outlive the browser session. The choice is
// kept in the session so later saves don't revert it.
func (s *Session) SetPersistent(persistent bool) {
	s.needsSave = true
	if persistent {
		s.base.Values[keyPersistent] = "true"
	} else {
		delete(s.base.Values, keyPersistent)
	}
	s.applyPersistence()
}

func (s *Session) Persistent() bool {
	v, _ := s.base.Values[keyPersistent].(string)
	return v == "true"
}

func (s *Session) applyPersistence() {
	opts := sessions.Options{}
	if s.base.Options != nil {
		opts = *s.base.Options
	}

	opts.MaxAge = 0
	if s.Persistent() {
		opts.MaxAge = PersistentMaxAge
	}
	s.base.Options = &opts
}

func (s *Session) AddFlash(msg string) {
	s.needsSave = true
	s.base.AddFlash(msg)
}

// ConsumeFlashes returns all flash messages and removes them from the session.
func (s *Session) ConsumeFlashes() []string {
	flashes := s.base.Flashes()
	if len(flashes) == 0 {
		return nil
	}

	s.needsSave = true

	out := make([]string, 0, len(flashes))
	for _, f := range flashes {
		if msg, ok := f.(string); ok {
			out = append(out, msg)
		}
	}
	return out
}

// SetOAuthState remembers the state sent to an external provider.
func (s *Session) SetOAuthState(provider, state string) {
	s.needsSave = true
	s.base.Values[keyOAuthProvider] = provider
	s.base.Values[keyOAuthState] = state
}

// ConsumeOAuthState returns the state set by SetOAuthState. It can only be
// used once.
func (s *Session) ConsumeOAuthState() (string, string, bool) {
	provider, _ := s.base.Values[keyOAuthProvider].(string)
	state, _ := s.base.Values[keyOAuthState].(string)

	if provider == "" && state == "" {
		return "", "", false
	}

	s.needsSave = true
	delete(s.base.Values, keyOAuthProvider)
	delete(s.base.Values, keyOAuthState)

	return provider, state, provider != "" && state != ""
}

// PendingLogin is an external identity that isn't linked to an account yet.
type PendingLogin struct {
	Provider    string
	ProviderKey string
	Email       string
	Name        string
}

func (s *Session) SetPendingLogin(p PendingLogin) {
	s.needsSave = true
	for k, v := range pendingFields(&p) {
		s.base.Values[keyPendingPrefix+k] = *v
	}
}

func (s *Session) PendingLogin() (PendingLogin, bool) {
	var p PendingLogin
	for k, v := range pendingFields(&p) {
		*v, _ = s.base.Values[keyPendingPrefix+k].(string)
	}
	return p, p.Provider != "" && p.ProviderKey != ""
}

func (s *Session) ClearPendingLogin() {
	s.needsSave = true
	for k := range pendingFields(&PendingLogin{}) {
		delete(s.base.Values, keyPendingPrefix+k)
	}
}

func pendingFields(p *PendingLogin) map[string]*string {
	return map[string]*string{
		"provider":     &p.Provider,
		"provider_key": &p.ProviderKey,
		"email":        &p.Email,
		"name":         &p.Name,
	}
}
