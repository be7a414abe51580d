package web

import (
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/gorilla/csrf"
	"github.com/gorilla/schema"
	"github.com/willemschots/accounts/internal/auth"
	"github.com/willemschots/accounts/internal/errorz"
	"github.com/willemschots/accounts/internal/krypto"
	"github.com/willemschots/accounts/internal/oauth"
	"github.com/willemschots/accounts/internal/web/sessions"
)

const (
	csrfTokenField      = "csrf_token"
	csrfTokenCookieName = "accounts-csrf"
)

// ViewRenderer renders named views with the given data.
type ViewRenderer interface {
	Render(w io.Writer, name string, data any) error
}

// ServerDeps are the dependencies for the server.
type ServerDeps struct {
	Logger       *slog.Logger
	ViewRenderer ViewRenderer
	AuthService  *auth.Service
	SessionStore *sessions.Store
	Providers    oauth.Registry
	DistFS       fs.FS
}

// ServerConfig is the configuration for the server.
type ServerConfig struct {
	CSRFKey      krypto.Key
	SecureCookie bool
}

type Server struct {
	deps    *ServerDeps
	mux     *http.ServeMux
	decoder *schema.Decoder
	handler http.Handler
}

func NewServer(deps *ServerDeps, cfg ServerConfig) *Server {
	s := &Server{
		deps:    deps,
		mux:     http.NewServeMux(),
		decoder: schema.NewDecoder(),
	}

	// Most endpoints below are created using the newHandler functions.
	// These functions return handlers that automatically map between HTTP requests, target functions and HTTP responses.
	// The request mapping and response writing is customizable.

	// Homepage endpoint.
	s.public("GET /{$}", s.viewHandler("home"))

	// Registration endpoints.
	s.publicOnly("GET /register", s.viewHandler("register"))
	s.publicOnly("POST /register", s.registerHandler())
	s.publicOnly("GET /register/confirmation-sent", s.viewHandler("confirmation-sent"))
	s.public("GET /confirm", s.confirmHandler())

	// Login endpoints.
	s.publicOnly("GET /login", s.viewHandler("login"))
	s.publicOnly("POST /login", s.loginHandler())
	s.loggedIn("POST /logout", s.logoutHandler())

	// Password reset endpoints.
	s.publicOnly("GET /forgot-password", s.viewHandler("forgot-password"))
	s.publicOnly("POST /forgot-password", s.forgotPasswordHandler())
	s.publicOnly("GET /reset-password", s.resetPasswordFormHandler())
	s.publicOnly("POST /reset-password", s.resetPasswordHandler())

	// External login endpoints.
	// The callback is public, logged in users use it to link another login.
	s.public("POST /external-login", s.startExternalLoginHandler())
	s.public("GET /external-login/callback/{provider}", s.externalLoginCallbackHandler())
	s.publicOnly("GET /external-login/confirm", s.externalConfirmFormHandler())
	s.publicOnly("POST /external-login/confirm", s.externalConfirmHandler())

	// Account endpoints.
	s.loggedIn("GET /dashboard", s.dashboardHandler())
	s.loggedIn("POST /external-logins/remove", s.removeExternalLoginHandler())

	// Static files.
	s.public("GET /static/", http.StripPrefix("/static/", http.FileServerFS(deps.DistFS)))

	csrfMW := csrf.Protect(
		cfg.CSRFKey.SecretValue(),
		csrf.CookieName(csrfTokenCookieName),
		csrf.FieldName(csrfTokenField),
		csrf.Path("/"),
		csrf.Secure(cfg.SecureCookie),
		csrf.SameSite(csrf.SameSiteLaxMode),
	)

	s.handler = logRequests(deps.Logger)(
		csrfMW(
			sessionMiddleware(s)(
				s.authenticate(s.mux),
			),
		),
	)

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// handleError writes an error response for err. Errors that are not caused
// by the client are logged.
func (s *Server) handleError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, errorz.ErrNotFound) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		return
	}

	var invalidInput errorz.InvalidInput
	if errors.As(err, &invalidInput) {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	s.deps.Logger.Error("internal server error",
		"method", r.Method,
		"path", r.URL.Path,
		"error", err,
	)
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}
