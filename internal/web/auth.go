package web

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/willemschots/accounts/internal/auth"
)

func (s *Server) public(pattern string, handler http.Handler) {
	s.mux.Handle(pattern, handler)
}

// publicOnly routes are only available to visitors that are not logged in.
func (s *Server) publicOnly(pattern string, handler http.Handler) {
	s.mux.Handle(pattern, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, ok := userFromCtx(r.Context())
		if ok {
			http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
			return
		}

		handler.ServeHTTP(w, r)
	}))
}

func (s *Server) loggedIn(pattern string, handler http.Handler) {
	s.mux.Handle(pattern, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, ok := userFromCtx(r.Context())
		if !ok {
			target := "/login"
			if r.Method == http.MethodGet {
				target += "?" + url.Values{returnURLField: {r.URL.RequestURI()}}.Encode()
			}
			http.Redirect(w, r, target, http.StatusSeeOther)
			return
		}

		handler.ServeHTTP(w, r)
	}))
}

// authenticate is a middleware that puts the logged in user in the context.
// Sessions issued before the security stamp of the user changed are ended.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := sessionFromCtx(r.Context())
		if err != nil {
			s.handleError(w, r, err)
			return
		}

		userID, stamp, ok := sess.User()
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		user, valid, err := s.deps.AuthService.ValidateSession(r.Context(), userID, stamp)
		if err != nil {
			s.handleError(w, r, err)
			return
		}

		if !valid {
			sess.ClearUser()
			err = s.saveSession(w, r, sess)
			if err != nil {
				s.handleError(w, r, err)
				return
			}

			next.ServeHTTP(w, r)
			return
		}

		next.ServeHTTP(w, r.WithContext(ctxWithUser(r.Context(), user)))
	})
}

const returnURLField = "ReturnURL"

// localPath returns target when it is a path on this server and fallback
// otherwise. Protocol relative and backslash paths are rejected, browsers
// treat both as another host.
func localPath(target, fallback string) string {
	if !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") || strings.Contains(target, `\`) {
		return fallback
	}

	u, err := url.Parse(target)
	if err != nil || u.Scheme != "" || u.Host != "" || u.User != nil {
		return fallback
	}

	return target
}

// signIn starts a session for user. Persistent sessions outlive the browser session.
func (s *Server) signIn(w http.ResponseWriter, r *http.Request, user auth.User, persistent bool) error {
	sess, err := sessionFromCtx(r.Context())
	if err != nil {
		return err
	}

	// We clear the CSRF token to provide defense in depth against fixation attacks.
	// If an attacker somehow gains access to the CSRF token before the user logged in, it will
	// be worthless after the user logs in.
	//
	// A new CSRF token will be generated on the next GET request after the redirect.
	http.SetCookie(w, &http.Cookie{
		Name:   csrfTokenCookieName,
		Path:   "/",
		MaxAge: -1,
	})

	sess.ClearPendingLogin()
	sess.SetUser(user.ID, user.SecurityStamp)
	sess.SetPersistent(persistent)
	return s.saveSession(w, r, sess)
}
