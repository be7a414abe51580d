package sessions_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/willemschots/accounts/internal/web/sessions"
)

func Test_Session_RoundTrip(t *testing.T) {
	store := sessions.NewCookieStore(false, []byte("0123456789abcdef0123456789abcdef"), []byte("0123456789abcdef0123456789abcdef"))

	t.Run("ok, values survive a round trip", func(t *testing.T) {
		sess := getSession(t, store, nil)
		if !sess.NeedsSave() {
			t.Errorf("expected new session to need saving")
		}

		sess.SetUser("user-1", "stamp-1")
		sess.SetOAuthState("github", "state-1")
		sess.SetPendingLogin(sessions.PendingLogin{
			Provider:    "github",
			ProviderKey: "1234",
			Email:       "alice@example.com",
			Name:        "alice",
		})
		sess.AddFlash("hello")

		cookies := saveSession(t, store, sess)
		got := getSession(t, store, cookies)

		userID, stamp, ok := got.User()
		if !ok || userID != "user-1" || stamp != "stamp-1" {
			t.Errorf("unexpected user %q %q %v", userID, stamp, ok)
		}

		provider, state, ok := got.ConsumeOAuthState()
		if !ok || provider != "github" || state != "state-1" {
			t.Errorf("unexpected oauth state %q %q %v", provider, state, ok)
		}

		if _, _, ok := got.ConsumeOAuthState(); ok {
			t.Errorf("expected oauth state to be consumed")
		}

		pending, ok := got.PendingLogin()
		if !ok || pending.ProviderKey != "1234" || pending.Email != "alice@example.com" || pending.Name != "alice" {
			t.Errorf("unexpected pending login %+v %v", pending, ok)
		}

		flashes := got.ConsumeFlashes()
		if len(flashes) != 1 || flashes[0] != "hello" {
			t.Errorf("unexpected flashes %v", flashes)
		}

		if len(got.ConsumeFlashes()) != 0 {
			t.Errorf("expected flashes to be consumed")
		}
	})

	t.Run("ok, clear values", func(t *testing.T) {
		sess := getSession(t, store, nil)
		sess.SetUser("user-1", "stamp-1")
		sess.SetPendingLogin(sessions.PendingLogin{Provider: "github", ProviderKey: "1234"})

		sess.ClearUser()
		sess.ClearPendingLogin()

		got := getSession(t, store, saveSession(t, store, sess))

		if _, _, ok := got.User(); ok {
			t.Errorf("expected no user")
		}

		if _, ok := got.PendingLogin(); ok {
			t.Errorf("expected no pending login")
		}
	})

	t.Run("ok, cookie lifetime follows persistence", func(t *testing.T) {
		sess := getSession(t, store, nil)
		sess.SetUser("user-1", "stamp-1")

		cookies := saveSession(t, store, sess)
		assertMaxAge(t, cookies, 0)

		sess = getSession(t, store, cookies)
		sess.SetPersistent(true)
		cookies = saveSession(t, store, sess)
		assertMaxAge(t, cookies, sessions.PersistentMaxAge)

		// later saves keep the cookie persistent.
		sess = getSession(t, store, cookies)
		if !sess.Persistent() {
			t.Fatalf("expected session to be persistent")
		}
		sess.AddFlash("hello")
		cookies = saveSession(t, store, sess)
		assertMaxAge(t, cookies, sessions.PersistentMaxAge)

		// logging out ends persistence.
		sess = getSession(t, store, cookies)
		sess.ClearUser()
		cookies = saveSession(t, store, sess)
		assertMaxAge(t, cookies, 0)
	})

	t.Run("ok, cookie from other keys results in new session", func(t *testing.T) {
		other := sessions.NewCookieStore(false, []byte("fedcba9876543210fedcba9876543210"), []byte("fedcba9876543210fedcba9876543210"))

		sess := getSession(t, other, nil)
		sess.SetUser("user-1", "stamp-1")

		got := getSession(t, store, saveSession(t, other, sess))

		if _, _, ok := got.User(); ok {
			t.Errorf("expected no user")
		}
	})
}

func getSession(t *testing.T, store *sessions.Store, cookies []*http.Cookie) *sessions.Session {
	t.Helper()

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range cookies {
		r.AddCookie(c)
	}

	sess, err := store.Get(r)
	if err != nil {
		t.Fatalf("failed to get session: %v", err)
	}

	return sess
}

func saveSession(t *testing.T, store *sessions.Store, sess *sessions.Session) []*http.Cookie {
	t.Helper()

	w := httptest.NewRecorder()
	err := store.Save(httptest.NewRequest(http.MethodGet, "/", nil), w, sess)
	if err != nil {
		t.Fatalf("failed to save session: %v", err)
	}

	if sess.NeedsSave() {
		t.Errorf("expected session not to need saving after save")
	}

	return w.Result().Cookies()
}

func assertMaxAge(t *testing.T, cookies []*http.Cookie, want int) {
	t.Helper()

	for _, c := range cookies {
		if c.Name != sessions.CookieName {
			continue
		}

		if c.MaxAge != want {
			t.Errorf("expected cookie max age %d, got %d", want, c.MaxAge)
		}
		return
	}

	t.Fatalf("no %s cookie in %v", sessions.CookieName, cookies)
}
