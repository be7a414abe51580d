package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/willemschots/accounts/internal/email"
	"github.com/willemschots/accounts/internal/errorz"
	"github.com/willemschots/accounts/internal/krypto"
)

var (
	ErrDuplicateUser = errors.New("an account with this email address already exists")
	// ErrLastCredential indicates a user would be left without any way to log in.
	ErrLastCredential = errors.New("cannot remove the last way to log in")
)

const (
	TemplateConfirmAccount = "confirm-account"
	TemplatePasswordReset  = "password-reset"
)

// Emailer is used to send templated emails.
type Emailer interface {
	Send(ctx context.Context, template string, to email.Address, data any) error
}

// ErrFunc is a function that handles errors.
type ErrFunc func(error)

// ServiceConfig is the configuration for the Service.
type ServiceConfig struct {
	// WorkerTimeout is the max duration worker goroutines are allowed
	// to take before they are cancelled.
	WorkerTimeout time.Duration
	// TokenExpiry is the duration a confirmation token is valid.
	TokenExpiry time.Duration
	// LegacyConfirmation confirms accounts based on the email address in a
	// confirmation link alone, without checking the token it carries.
	LegacyConfirmation bool
}

// Service is the type that provides the main rules for
// authentication.
type Service struct {
	store      UserStore
	emailer    Emailer
	wg         *sync.WaitGroup
	errHandler ErrFunc
	cfg        ServiceConfig

	// comparisonHash is used to compare passwords when no user was found.
	comparisonHash string

	// NowFunc is used to get the current time.
	// Exposed for testing purposes.
	NowFunc func() time.Time
}

func NewService(s UserStore, emailer Emailer, errHandler ErrFunc, cfg ServiceConfig) (*Service, error) {
	tok, err := krypto.GenerateToken()
	if err != nil {
		return nil, err
	}

	hash, err := krypto.HashArgon2(tok[:])
	if err != nil {
		return nil, err
	}

	svc := &Service{
		store:          s,
		emailer:        emailer,
		wg:             &sync.WaitGroup{},
		errHandler:     errHandler,
		cfg:            cfg,
		comparisonHash: hash.String(),
		NowFunc:        time.Now,
	}

	return svc, nil
}

// Wait waits for all open workers to finish.
func (s *Service) Wait() {
	s.wg.Wait()
}

// ConfirmationEmail is the data passed to the confirm-account template.
type ConfirmationEmail struct {
	Nickname Nickname
	// Token is the encoded confirmation token, ready to be put in a link.
	Token string
}

// PasswordResetEmail is the data passed to the password-reset template.
type PasswordResetEmail struct {
	Nickname Nickname
	Token    string
}

// Registration is a request to create an account with a password.
type Registration struct {
	Email    email.Address
	Nickname Nickname
	Password Password
}

// Register creates a new unconfirmed user and sends a confirmation link to
// their email address. The email is sent in a separate goroutine, failing
// to send it does not fail the registration.
func (s *Service) Register(ctx context.Context, r Registration) (User, error) {
	_, found, err := s.store.FindByUsername(ctx, string(r.Email))
	if err != nil {
		return User{}, err
	}

	if found {
		return User{}, errorz.InvalidInput{
			errorz.Keyed{Key: "Email", Err: ErrDuplicateUser},
		}
	}

	pwdHash, err := r.Password.Hash()
	if err != nil {
		return User{}, err
	}

	token, err := krypto.GenerateToken()
	if err != nil {
		return User{}, err
	}

	stamp, err := krypto.GenerateToken()
	if err != nil {
		return User{}, err
	}

	user := User{
		Username:          r.Email,
		Nickname:          r.Nickname,
		PasswordHash:      pwdHash.String(),
		SecurityStamp:     stamp.String(),
		IsConfirmed:       false,
		ConfirmationToken: token.String(),
		CreatedDate:       s.NowFunc().UTC(),
	}

	// A concurrent registration for the same email is caught by the
	// unique index and ends up here as a data access failure.
	err = s.store.Create(ctx, &user)
	if err != nil {
		return User{}, err
	}

	s.sendConfirmation(user)

	return user, nil
}

// ConfirmationStatus is the outcome of following a confirmation link.
type ConfirmationStatus int

const (
	ConfirmationInvalid ConfirmationStatus = iota
	ConfirmationAlreadyConfirmed
	ConfirmationResent
	ConfirmationSucceeded
)

func (c ConfirmationStatus) String() string {
	switch c {
	case ConfirmationAlreadyConfirmed:
		return "already confirmed"
	case ConfirmationResent:
		return "resent"
	case ConfirmationSucceeded:
		return "succeeded"
	default:
		return "invalid"
	}
}

// ConfirmEmail handles a confirmation link. Links that can't be decoded or
// that don't belong to a user are reported as ConfirmationInvalid, the
// error is reserved for failing dependencies.
//
// When the token has expired a new one is issued and sent instead.
func (s *Service) ConfirmEmail(ctx context.Context, raw string) (ConfirmationStatus, error) {
	ct, err := DecodeConfirmationToken(raw)
	if err != nil {
		return ConfirmationInvalid, nil
	}

	user, found, err := s.store.FindByUsername(ctx, ct.Email)
	if err != nil {
		return ConfirmationInvalid, err
	}

	if !found {
		return ConfirmationInvalid, nil
	}

	if !s.cfg.LegacyConfirmation && !krypto.EqualStrings(ct.Token, user.ConfirmationToken) {
		return ConfirmationInvalid, nil
	}

	if user.IsConfirmed {
		return ConfirmationAlreadyConfirmed, nil
	}

	if s.isExpired(user) {
		err = s.reissueConfirmation(ctx, &user)
		if err != nil {
			return ConfirmationInvalid, err
		}
		return ConfirmationResent, nil
	}

	user.IsConfirmed = true

	err = s.store.Update(ctx, &user)
	if err != nil {
		return ConfirmationInvalid, err
	}

	return ConfirmationSucceeded, nil
}

func (s *Service) isExpired(u User) bool {
	return s.NowFunc().Sub(u.CreatedDate) > s.cfg.TokenExpiry
}

// reissueConfirmation replaces the confirmation token of u, restarts its
// expiry window and sends the new link.
func (s *Service) reissueConfirmation(ctx context.Context, u *User) error {
	token, err := krypto.GenerateToken()
	if err != nil {
		return err
	}

	u.ConfirmationToken = token.String()
	u.CreatedDate = s.NowFunc().UTC()

	err = s.store.Update(ctx, u)
	if err != nil {
		return err
	}

	s.sendConfirmation(*u)

	return nil
}

func (s *Service) sendConfirmation(u User) {
	s.sendAsync(TemplateConfirmAccount, u.Username, ConfirmationEmail{
		Nickname: u.Nickname,
		Token:    EncodeConfirmationToken(u.ConfirmationToken, string(u.Username)),
	})
}

// Credentials are used to log in with a password.
type Credentials struct {
	Email    email.Address
	Password Password
}

// LoginStatus is the outcome of a login attempt.
type LoginStatus int

const (
	LoginInvalidCredentials LoginStatus = iota
	LoginUnconfirmed
	LoginConfirmationResent
	LoginSucceeded
)

func (l LoginStatus) String() string {
	switch l {
	case LoginUnconfirmed:
		return "unconfirmed"
	case LoginConfirmationResent:
		return "confirmation resent"
	case LoginSucceeded:
		return "succeeded"
	default:
		return "invalid credentials"
	}
}

// LoginResult is the outcome of Login. User is only set when the status
// is LoginSucceeded.
type LoginResult struct {
	Status LoginStatus
	User   User
}

// Login checks the credentials. Only confirmed users can log in, for an
// unconfirmed user whose token expired a new confirmation link is sent.
func (s *Service) Login(ctx context.Context, c Credentials) (LoginResult, error) {
	user, found, err := s.store.FindByUsername(ctx, string(c.Email))
	if err != nil {
		return LoginResult{}, err
	}

	if !found {
		// Even if no user is found we compare to a hash to prevent timing differences
		// that could result in user enumeration attacks.
		_ = c.Password.MatchEncoded(s.comparisonHash)
		return LoginResult{Status: LoginInvalidCredentials}, nil
	}

	if !c.Password.MatchEncoded(user.PasswordHash) {
		return LoginResult{Status: LoginInvalidCredentials}, nil
	}

	if !user.IsConfirmed {
		if !s.isExpired(user) {
			return LoginResult{Status: LoginUnconfirmed}, nil
		}

		err = s.reissueConfirmation(ctx, &user)
		if err != nil {
			return LoginResult{}, err
		}
		return LoginResult{Status: LoginConfirmationResent}, nil
	}

	return LoginResult{Status: LoginSucceeded, User: user}, nil
}

// ValidateSession returns the user with the given ID if the security stamp
// still matches. A changed stamp invalidates all sessions issued before.
func (s *Service) ValidateSession(ctx context.Context, userID, stamp string) (User, bool, error) {
	user, found, err := s.store.FindByID(ctx, userID)
	if err != nil {
		return User{}, false, err
	}

	if !found || !krypto.EqualStrings(stamp, user.SecurityStamp) {
		return User{}, false, nil
	}

	return user, true, nil
}

// FindExternalLogin finds the user linked to login.
func (s *Service) FindExternalLogin(ctx context.Context, login LoginInfo) (User, bool, error) {
	return s.store.FindByExternalLogin(ctx, login)
}

// ExternalRegistration is a request to create an account for an identity
// confirmed by an external provider.
type ExternalRegistration struct {
	Login    LoginInfo
	Email    email.Address
	Nickname Nickname
}

// RegisterExternal creates a confirmed user without a password and links it
// to the external login.
func (s *Service) RegisterExternal(ctx context.Context, r ExternalRegistration) (User, error) {
	if r.Login.Provider == "" || r.Login.ProviderKey == "" {
		return User{}, fmt.Errorf("%w: empty external login", errorz.ErrInvalidArgument)
	}

	_, found, err := s.store.FindByUsername(ctx, string(r.Email))
	if err != nil {
		return User{}, err
	}

	if found {
		return User{}, errorz.InvalidInput{
			errorz.Keyed{Key: "Email", Err: ErrDuplicateUser},
		}
	}

	stamp, err := krypto.GenerateToken()
	if err != nil {
		return User{}, err
	}

	// The provider vouches for the identity, not necessarily for the email
	// address. The account is confirmed regardless.
	user := User{
		Username:      r.Email,
		Nickname:      r.Nickname,
		SecurityStamp: stamp.String(),
		IsConfirmed:   true,
		CreatedDate:   s.NowFunc().UTC(),
	}

	err = s.store.Create(ctx, &user)
	if err != nil {
		return User{}, err
	}

	err = s.store.AddExternalLogin(ctx, &user, r.Login)
	if err != nil {
		// Don't leave an account behind that nobody can log in to.
		dErr := s.store.Delete(ctx, &user)
		if dErr != nil {
			err = errors.Join(err, dErr)
		}
		return User{}, err
	}

	return user, nil
}

// LinkExternalLogin links an additional external login to an existing user.
func (s *Service) LinkExternalLogin(ctx context.Context, userID string, login LoginInfo) error {
	user, err := s.findUser(ctx, userID)
	if err != nil {
		return err
	}

	return s.store.AddExternalLogin(ctx, &user, login)
}

// UnlinkExternalLogin removes an external login from a user, unless it is
// the only way left for them to log in.
func (s *Service) UnlinkExternalLogin(ctx context.Context, userID string, login LoginInfo) error {
	user, err := s.findUser(ctx, userID)
	if err != nil {
		return err
	}

	hasPassword, err := s.store.HasPassword(&user)
	if err != nil {
		return err
	}

	if !hasPassword {
		logins, err := s.store.ExternalLogins(ctx, &user)
		if err != nil {
			return err
		}

		if len(logins) <= 1 {
			return ErrLastCredential
		}
	}

	return s.store.RemoveExternalLogin(ctx, &user, login)
}

// ExternalLogins lists the external logins of a user.
func (s *Service) ExternalLogins(ctx context.Context, userID string) ([]LoginInfo, error) {
	user, err := s.findUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	return s.store.ExternalLogins(ctx, &user)
}

// RequestPasswordReset sends a password reset link to the user with the
// provided email address. The main work is done in a separate goroutine and
// nothing is returned, so callers can't find out whether a user exists.
func (s *Service) RequestPasswordReset(_ context.Context, addr email.Address) {
	// The actual work is done in a separate goroutine to prevent:
	// - Waiting for the email to be send might slow down sending a response.
	// - Information leakage. Timing difference between existing/non-existing
	//   user could lead to user enumeration attacks.
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		wCtx, cancel := context.WithTimeout(context.Background(), s.cfg.WorkerTimeout)
		defer cancel()

		err := s.startPasswordReset(wCtx, addr)
		if err != nil {
			s.errHandler(err)
			return
		}
	}()
}

func (s *Service) startPasswordReset(ctx context.Context, addr email.Address) error {
	user, found, err := s.store.FindByUsername(ctx, string(addr))
	if err != nil {
		return err
	}

	if !found || !user.IsConfirmed {
		return nil
	}

	stamp, err := s.store.SecurityStamp(&user)
	if err != nil {
		return err
	}

	return s.emailer.Send(ctx, TemplatePasswordReset, user.Username, PasswordResetEmail{
		Nickname: user.Nickname,
		Token:    EncodeConfirmationToken(stamp, string(user.Username)),
	})
}

// PasswordReset is a request to set a new password using a reset link.
type PasswordReset struct {
	Token    string
	Password Password
}

// ResetPassword sets a new password if the token matches the current
// security stamp of the user. The stamp is rotated, which invalidates the
// reset link and every session of the user.
func (s *Service) ResetPassword(ctx context.Context, r PasswordReset) error {
	ct, err := DecodeConfirmationToken(r.Token)
	if err != nil {
		return errorz.ErrNotFound
	}

	user, found, err := s.store.FindByUsername(ctx, ct.Email)
	if err != nil {
		return err
	}

	if !found {
		return errorz.ErrNotFound
	}

	stamp, err := s.store.SecurityStamp(&user)
	if err != nil {
		return err
	}

	if !krypto.EqualStrings(ct.Token, stamp) {
		return errorz.ErrNotFound
	}

	pwdHash, err := r.Password.Hash()
	if err != nil {
		return err
	}

	newStamp, err := krypto.GenerateToken()
	if err != nil {
		return err
	}

	err = s.store.SetPasswordHash(&user, pwdHash.String())
	if err != nil {
		return err
	}

	err = s.store.SetSecurityStamp(&user, newStamp.String())
	if err != nil {
		return err
	}

	return s.store.Update(ctx, &user)
}

func (s *Service) findUser(ctx context.Context, userID string) (User, error) {
	user, found, err := s.store.FindByID(ctx, userID)
	if err != nil {
		return User{}, err
	}

	if !found {
		return User{}, errorz.ErrNotFound
	}

	return user, nil
}

// sendAsync sends an email in a separate goroutine, so a slow mail
// provider doesn't hold up the response. Failures go to the error handler.
func (s *Service) sendAsync(template string, to email.Address, data any) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		wCtx, cancel := context.WithTimeout(context.Background(), s.cfg.WorkerTimeout)
		defer cancel()

		err := s.emailer.Send(wCtx, template, to, data)
		if err != nil {
			s.errHandler(err)
		}
	}()
}
