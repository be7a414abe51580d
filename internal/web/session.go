package web

import (
	"context"
	"errors"
	"net/http"

	"github.com/willemschots/accounts/internal/auth"
	"github.com/willemschots/accounts/internal/web/sessions"
)

// sessionMiddleware loads the session and injects it in the context.
func sessionMiddleware(srv *Server) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, err := srv.deps.SessionStore.Get(r)
			if err != nil {
				srv.handleError(w, r, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(sessionKey.with(r.Context(), sess)))
		})
	}
}

// saveSession only writes a cookie when the session was modified during the request.
func (s *Server) saveSession(w http.ResponseWriter, r *http.Request, sess *sessions.Session) error {
	if !sess.NeedsSave() {
		return nil
	}
	return s.deps.SessionStore.Save(r, w, sess)
}

// ctxKey is a typed context key, the type parameter is the type of the stored value.
type ctxKey[T any] struct{ name string }

var (
	sessionKey = ctxKey[*sessions.Session]{"session"}
	userKey    = ctxKey[auth.User]{"user"}
)

func (k ctxKey[T]) with(ctx context.Context, v T) context.Context {
	return context.WithValue(ctx, k, v)
}

func (k ctxKey[T]) from(ctx context.Context) (T, bool) {
	v, ok := ctx.Value(k).(T)
	return v, ok
}

func sessionFromCtx(ctx context.Context) (*sessions.Session, error) {
	sess, ok := sessionKey.from(ctx)
	if !ok || sess == nil {
		return nil, errors.New("no session in request context")
	}
	return sess, nil
}

func ctxWithUser(ctx context.Context, user auth.User) context.Context {
	return userKey.with(ctx, user)
}

func userFromCtx(ctx context.Context) (auth.User, bool) {
	return userKey.from(ctx)
}
