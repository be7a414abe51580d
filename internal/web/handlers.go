package web

import (
	"context"
	"errors"
	"net/http"

	"github.com/willemschots/accounts/internal/auth"
	"github.com/willemschots/accounts/internal/email"
	"github.com/willemschots/accounts/internal/errorz"
	"github.com/willemschots/accounts/internal/krypto"
	"github.com/willemschots/accounts/internal/oauth"
	"github.com/willemschots/accounts/internal/web/sessions"
)

var (
	errPasswordMismatch = errors.New("passwords do not match")
	errInvalidState     = errors.New("invalid or expired login state")
	errMissingCode      = errors.New("missing authorization code")
)

// viewHandler renders a view without any data.
func (s *Server) viewHandler(name string) http.Handler {
	return newHandler(s, func(context.Context, struct{}) (struct{}, error) {
		return struct{}{}, nil
	}).request(noInput).success(func(r result[struct{}, struct{}]) error {
		return s.writeView(r.w, r.r, name, nil)
	})
}

type registerForm struct {
	Email           string
	Nickname        string
	Password        string
	ConfirmPassword string
}

func (f registerForm) parse() (auth.Registration, error) {
	var (
		reg          auth.Registration
		invalidInput errorz.InvalidInput
		err          error
	)

	reg.Email, err = email.ParseAddress(f.Email)
	if err != nil {
		invalidInput = append(invalidInput, errorz.Keyed{Key: "Email", Err: err})
	}

	reg.Nickname, err = auth.ParseNickname(f.Nickname)
	if err != nil {
		invalidInput = append(invalidInput, errorz.Keyed{Key: "Nickname", Err: err})
	}

	reg.Password, err = auth.ParsePassword(f.Password)
	if err != nil {
		invalidInput = append(invalidInput, errorz.Keyed{Key: "Password", Err: err})
	}

	if f.Password != f.ConfirmPassword {
		invalidInput = append(invalidInput, errorz.Keyed{Key: "ConfirmPassword", Err: errPasswordMismatch})
	}

	if len(invalidInput) > 0 {
		return auth.Registration{}, invalidInput
	}

	return reg, nil
}

func (s *Server) registerHandler() http.Handler {
	return newHandler(s, func(ctx context.Context, f registerForm) (auth.User, error) {
		reg, err := f.parse()
		if err != nil {
			return auth.User{}, err
		}
		return s.deps.AuthService.Register(ctx, reg)
	}).
		success(redirectTo[registerForm, auth.User](s, "/register/confirmation-sent")).
		fail(formFail(s, "register"))
}

type confirmQuery struct {
	ID string `schema:"id"`
}

// confirmView is the data for the confirm view.
type confirmView struct {
	Title     string
	Message   string
	Succeeded bool
}

func (s *Server) confirmHandler() http.Handler {
	return newHandler(s, func(ctx context.Context, q confirmQuery) (auth.ConfirmationStatus, error) {
		return s.deps.AuthService.ConfirmEmail(ctx, q.ID)
	}).success(func(r result[confirmQuery, auth.ConfirmationStatus]) error {
		var v confirmView
		switch r.out {
		case auth.ConfirmationSucceeded:
			v = confirmView{
				Title:     "Confirmation Successful",
				Message:   "Your email address has been confirmed, you can now log in.",
				Succeeded: true,
			}
		case auth.ConfirmationAlreadyConfirmed:
			v = confirmView{
				Title:     "Already Confirmed",
				Message:   "Your email address was already confirmed, you can log in.",
				Succeeded: true,
			}
		case auth.ConfirmationResent:
			v = confirmView{
				Title:   "Token Expired",
				Message: "This confirmation link has expired. We have sent a new one to your email address.",
			}
		default:
			v = confirmView{
				Title:   "Invalid Confirmation Token",
				Message: "This confirmation link is not valid.",
			}
		}

		return s.writeView(r.w, r.r, "confirm", v)
	})
}

type loginForm struct {
	Email      string
	Password   string
	RememberMe bool
	ReturnURL  string
}

// loginView is the data for the login view.
type loginView struct {
	Message string
}

func (s *Server) loginHandler() http.Handler {
	return newHandler(s, func(ctx context.Context, f loginForm) (auth.LoginResult, error) {
		addr, err := email.ParseAddress(f.Email)
		if err != nil {
			return auth.LoginResult{Status: auth.LoginInvalidCredentials}, nil
		}

		pwd, err := auth.ParsePassword(f.Password)
		if err != nil {
			return auth.LoginResult{Status: auth.LoginInvalidCredentials}, nil
		}

		return s.deps.AuthService.Login(ctx, auth.Credentials{Email: addr, Password: pwd})
	}).success(func(r result[loginForm, auth.LoginResult]) error {
		var msg string
		switch r.out.Status {
		case auth.LoginSucceeded:
			err := s.signIn(r.w, r.r, r.out.User, r.in.RememberMe)
			if err != nil {
				return err
			}

			http.Redirect(r.w, r.r, localPath(r.in.ReturnURL, "/dashboard"), http.StatusSeeOther)
			return nil
		case auth.LoginUnconfirmed:
			msg = "Please confirm your email address first, follow the link in the email we sent you."
		case auth.LoginConfirmationResent:
			msg = "Your confirmation link has expired. We have sent a new one to your email address."
		default:
			msg = "Invalid email address or password."
		}

		return s.writeView(r.w, r.r, "login", loginView{Message: msg})
	})
}

func (s *Server) logoutHandler() http.Handler {
	return newHandler(s, func(context.Context, struct{}) (struct{}, error) {
		return struct{}{}, nil
	}).request(func(sh shared) (struct{}, error) {
		sh.sess.ClearUser()
		return struct{}{}, nil
	}).success(redirectTo[struct{}, struct{}](s, "/"))
}

type forgotPasswordForm struct {
	Email string
}

func (s *Server) forgotPasswordHandler() http.Handler {
	return newInputHandler(s, func(ctx context.Context, f forgotPasswordForm) error {
		addr, err := email.ParseAddress(f.Email)
		if err != nil {
			return errorz.InvalidInput{errorz.Keyed{Key: "Email", Err: err}}
		}

		s.deps.AuthService.RequestPasswordReset(ctx, addr)
		return nil
	}).success(func(r result[forgotPasswordForm, struct{}]) error {
		r.sess.AddFlash("If an account exists for this email address, we have sent instructions to reset your password.")
		return redirectTo[forgotPasswordForm, struct{}](s, "/forgot-password")(r)
	}).fail(formFail(s, "forgot-password"))
}

type resetPasswordQuery struct {
	Token string `schema:"token"`
}

// resetPasswordView is the data for the reset-password view.
type resetPasswordView struct {
	Token string
}

func (s *Server) resetPasswordFormHandler() http.Handler {
	return newHandler(s, func(_ context.Context, q resetPasswordQuery) (resetPasswordView, error) {
		_, err := auth.DecodeConfirmationToken(q.Token)
		if err != nil {
			return resetPasswordView{}, errorz.ErrNotFound
		}
		return resetPasswordView{Token: q.Token}, nil
	}).success(func(r result[resetPasswordQuery, resetPasswordView]) error {
		return s.writeView(r.w, r.r, "reset-password", r.out)
	})
}

type resetPasswordForm struct {
	Token           string
	Password        string
	ConfirmPassword string
}

func (s *Server) resetPasswordHandler() http.Handler {
	return newInputHandler(s, func(ctx context.Context, f resetPasswordForm) error {
		var invalidInput errorz.InvalidInput

		pwd, err := auth.ParsePassword(f.Password)
		if err != nil {
			invalidInput = append(invalidInput, errorz.Keyed{Key: "Password", Err: err})
		}

		if f.Password != f.ConfirmPassword {
			invalidInput = append(invalidInput, errorz.Keyed{Key: "ConfirmPassword", Err: errPasswordMismatch})
		}

		if len(invalidInput) > 0 {
			return invalidInput
		}

		return s.deps.AuthService.ResetPassword(ctx, auth.PasswordReset{
			Token:    f.Token,
			Password: pwd,
		})
	}).success(func(r result[resetPasswordForm, struct{}]) error {
		r.sess.AddFlash("Your password has been reset, you can now log in.")
		return redirectTo[resetPasswordForm, struct{}](s, "/login")(r)
	}).fail(formFail(s, "reset-password"))
}

type externalLoginForm struct {
	Provider string
}

func (s *Server) startExternalLoginHandler() http.Handler {
	return newHandler(s, func(_ context.Context, f externalLoginForm) (*oauth.Provider, error) {
		p, ok := s.deps.Providers[f.Provider]
		if !ok {
			return nil, errorz.ErrNotFound
		}
		return p, nil
	}).success(func(r result[externalLoginForm, *oauth.Provider]) error {
		state, err := krypto.GenerateToken()
		if err != nil {
			return err
		}

		r.sess.SetOAuthState(r.out.Name(), state.String())
		err = s.saveSession(r.w, r.r, r.sess)
		if err != nil {
			return err
		}

		http.Redirect(r.w, r.r, r.out.AuthURL(state.String()), http.StatusSeeOther)
		return nil
	})
}

// callbackRequest is the redirect back from an external provider.
type callbackRequest struct {
	provider *oauth.Provider
	code     string
	// denied is set when the user did not grant access.
	denied bool
}

func (s *Server) externalLoginCallbackHandler() http.Handler {
	return newInputHandler(s, func(context.Context, struct{}) error {
		return nil
	}).request(noInput).success(func(r result[struct{}, struct{}]) error {
		req, err := s.parseCallback(r.shared)
		if err != nil {
			return err
		}

		if req.denied {
			r.sess.AddFlash("Logging in with " + req.provider.Name() + " was cancelled.")
			return redirectTo[struct{}, struct{}](s, "/login")(r)
		}

		ctx := r.r.Context()
		identity, err := req.provider.Exchange(ctx, req.code)
		if err != nil {
			return err
		}

		login := auth.LoginInfo{
			Provider:    identity.Provider,
			ProviderKey: identity.ProviderKey,
		}

		user, found, err := s.deps.AuthService.FindExternalLogin(ctx, login)
		if err != nil {
			return err
		}

		current, loggedIn := userFromCtx(ctx)

		switch {
		case found && loggedIn && user.ID != current.ID:
			r.sess.AddFlash("This " + identity.Provider + " account is linked to another account.")
			return redirectTo[struct{}, struct{}](s, "/dashboard")(r)
		case found:
			err = s.signIn(r.w, r.r, user, false)
			if err != nil {
				return err
			}
			http.Redirect(r.w, r.r, "/dashboard", http.StatusSeeOther)
			return nil
		case loggedIn:
			err = s.deps.AuthService.LinkExternalLogin(ctx, current.ID, login)
			if err != nil {
				return err
			}
			r.sess.AddFlash("Your " + identity.Provider + " account has been linked.")
			return redirectTo[struct{}, struct{}](s, "/dashboard")(r)
		default:
			r.sess.SetPendingLogin(sessions.PendingLogin{
				Provider:    identity.Provider,
				ProviderKey: identity.ProviderKey,
				Email:       identity.Email,
				Name:        identity.Name,
			})
			return redirectTo[struct{}, struct{}](s, "/external-login/confirm")(r)
		}
	})
}

// parseCallback validates the callback against the state stored in the session.
// The state can only be used once.
func (s *Server) parseCallback(sh shared) (callbackRequest, error) {
	name := sh.r.PathValue("provider")
	p, ok := s.deps.Providers[name]
	if !ok {
		return callbackRequest{}, errorz.ErrNotFound
	}

	wantProvider, wantState, ok := sh.sess.ConsumeOAuthState()
	err := s.saveSession(sh.w, sh.r, sh.sess)
	if err != nil {
		return callbackRequest{}, err
	}

	q := sh.r.URL.Query()
	if !ok || wantProvider != name || !krypto.EqualStrings(q.Get("state"), wantState) {
		return callbackRequest{}, errorz.InvalidInput{errorz.Keyed{Key: "state", Err: errInvalidState}}
	}

	if q.Get("error") != "" {
		return callbackRequest{provider: p, denied: true}, nil
	}

	code := q.Get("code")
	if code == "" {
		return callbackRequest{}, errorz.InvalidInput{errorz.Keyed{Key: "code", Err: errMissingCode}}
	}

	return callbackRequest{provider: p, code: code}, nil
}

// externalConfirmView is the data for the external-login-confirm view.
type externalConfirmView struct {
	Provider string
	Email    string
	Nickname string
}

func (s *Server) externalConfirmFormHandler() http.Handler {
	return newHandler(s, func(_ context.Context, p sessions.PendingLogin) (externalConfirmView, error) {
		return externalConfirmView{
			Provider: p.Provider,
			Email:    p.Email,
			Nickname: p.Name,
		}, nil
	}).request(pendingLogin).success(func(r result[sessions.PendingLogin, externalConfirmView]) error {
		return s.writeView(r.w, r.r, "external-login-confirm", r.out)
	}).fail(pendingFail(s))
}

type externalConfirmForm struct {
	Email    string
	Nickname string
}

type externalConfirmInput struct {
	form    externalConfirmForm
	pending sessions.PendingLogin
}

func (s *Server) externalConfirmHandler() http.Handler {
	return newHandler(s, func(ctx context.Context, in externalConfirmInput) (auth.User, error) {
		var (
			reg = auth.ExternalRegistration{
				Login: auth.LoginInfo{
					Provider:    in.pending.Provider,
					ProviderKey: in.pending.ProviderKey,
				},
			}
			invalidInput errorz.InvalidInput
			err          error
		)

		reg.Email, err = email.ParseAddress(in.form.Email)
		if err != nil {
			invalidInput = append(invalidInput, errorz.Keyed{Key: "Email", Err: err})
		}

		reg.Nickname, err = auth.ParseNickname(in.form.Nickname)
		if err != nil {
			invalidInput = append(invalidInput, errorz.Keyed{Key: "Nickname", Err: err})
		}

		if len(invalidInput) > 0 {
			return auth.User{}, invalidInput
		}

		return s.deps.AuthService.RegisterExternal(ctx, reg)
	}).request(func(sh shared) (externalConfirmInput, error) {
		pending, err := pendingLogin(sh)
		if err != nil {
			return externalConfirmInput{}, err
		}

		form, err := defaultReqToIn[externalConfirmForm](s, sh)
		if err != nil {
			return externalConfirmInput{}, err
		}

		return externalConfirmInput{form: form, pending: pending}, nil
	}).success(func(r result[externalConfirmInput, auth.User]) error {
		err := s.signIn(r.w, r.r, r.out, false)
		if err != nil {
			return err
		}

		http.Redirect(r.w, r.r, "/dashboard", http.StatusSeeOther)
		return nil
	}).fail(func(sh shared, err error) {
		if errors.Is(err, errNoPendingLogin) {
			pendingFail(s)(sh, err)
			return
		}
		formFail(s, "external-login-confirm")(sh, err)
	})
}

var errNoPendingLogin = errors.New("no pending external login")

func pendingLogin(sh shared) (sessions.PendingLogin, error) {
	p, ok := sh.sess.PendingLogin()
	if !ok {
		return sessions.PendingLogin{}, errNoPendingLogin
	}
	return p, nil
}

// pendingFail sends visitors without a pending external login back to the login page.
func pendingFail(s *Server) func(sh shared, err error) {
	return func(sh shared, err error) {
		if !errors.Is(err, errNoPendingLogin) {
			s.handleError(sh.w, sh.r, err)
			return
		}
		http.Redirect(sh.w, sh.r, "/login", http.StatusSeeOther)
	}
}

// dashboardView is the data for the dashboard view.
type dashboardView struct {
	Logins []auth.LoginInfo
	// Providers are the external providers that can still be linked.
	Providers []string
}

func (s *Server) dashboardHandler() http.Handler {
	return newHandler(s, func(ctx context.Context, _ struct{}) (dashboardView, error) {
		user, ok := userFromCtx(ctx)
		if !ok {
			return dashboardView{}, errorz.ErrNotFound
		}

		logins, err := s.deps.AuthService.ExternalLogins(ctx, user.ID)
		if err != nil {
			return dashboardView{}, err
		}

		linked := make(map[string]bool, len(logins))
		for _, l := range logins {
			linked[l.Provider] = true
		}

		v := dashboardView{Logins: logins}
		for _, name := range s.deps.Providers.Names() {
			if !linked[name] {
				v.Providers = append(v.Providers, name)
			}
		}

		return v, nil
	}).request(noInput).success(func(r result[struct{}, dashboardView]) error {
		return s.writeView(r.w, r.r, "dashboard", r.out)
	})
}

type removeExternalLoginForm struct {
	Provider    string
	ProviderKey string
}

func (s *Server) removeExternalLoginHandler() http.Handler {
	return newHandler(s, func(ctx context.Context, f removeExternalLoginForm) (string, error) {
		user, ok := userFromCtx(ctx)
		if !ok {
			return "", errorz.ErrNotFound
		}

		err := s.deps.AuthService.UnlinkExternalLogin(ctx, user.ID, auth.LoginInfo{
			Provider:    f.Provider,
			ProviderKey: f.ProviderKey,
		})
		if errors.Is(err, auth.ErrLastCredential) {
			return "You can't remove your only way to log in.", nil
		}
		if err != nil {
			return "", err
		}

		return "Your " + f.Provider + " account has been unlinked.", nil
	}).success(func(r result[removeExternalLoginForm, string]) error {
		r.sess.AddFlash(r.out)
		return redirectTo[removeExternalLoginForm, string](s, "/dashboard")(r)
	})
}
