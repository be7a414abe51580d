package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/willemschots/accounts/internal/auth"
	"github.com/willemschots/accounts/internal/db"
	"github.com/willemschots/accounts/internal/errorz"
)

const component = "auth/db.Store"

// Store is a SQL implementation of auth.UserStore. Every call acquires its
// own connection from the provider and releases it before returning, no
// transaction spans more than a single statement.
type Store struct {
	p *db.Provider
}

// New creates a new Store.
func New(p *db.Provider) *Store {
	return &Store{
		p: p,
	}
}

// Create assigns a new ID to u and inserts it.
func (s *Store) Create(ctx context.Context, u *auth.User) error {
	if u == nil {
		return nilUser()
	}

	id := uuid.NewString()
	err := db.Exec(ctx, s.p, component, func(ctx context.Context, conn *sql.Conn) error {
		return insertUser(s.p.Query(), execFunc(ctx, conn), id, *u)
	})
	if err != nil {
		return err
	}

	u.ID = id
	return nil
}

// Delete deletes u. Its external logins are left in place.
func (s *Store) Delete(ctx context.Context, u *auth.User) error {
	if u == nil {
		return nilUser()
	}

	return db.Exec(ctx, s.p, component, func(ctx context.Context, conn *sql.Conn) error {
		return deleteUser(s.p.Query(), execFunc(ctx, conn), u.ID)
	})
}

// Update overwrites all fields of the user with the ID of u. Updating a user
// that doesn't exist does nothing.
func (s *Store) Update(ctx context.Context, u *auth.User) error {
	if u == nil {
		return nilUser()
	}

	return db.Exec(ctx, s.p, component, func(ctx context.Context, conn *sql.Conn) error {
		return updateUser(s.p.Query(), execFunc(ctx, conn), *u)
	})
}

func (s *Store) FindByID(ctx context.Context, id string) (auth.User, bool, error) {
	return s.findOne(ctx, func(q *db.Query) {
		q.Unsafe(`Id = `)
		q.Param(id)
	})
}

// FindByUsername finds a user by username, ignoring case.
func (s *Store) FindByUsername(ctx context.Context, username string) (auth.User, bool, error) {
	return s.findOne(ctx, func(q *db.Query) {
		q.Unsafe(`NormalizedUserName = `)
		q.Param(normalizeUsername(username))
	})
}

func (s *Store) findOne(ctx context.Context, where func(q *db.Query)) (auth.User, bool, error) {
	users, err := db.WithConn(ctx, s.p, component, func(ctx context.Context, conn *sql.Conn) ([]auth.User, error) {
		return selectUsers(s.p.Query(), queryFunc(ctx, conn), where)
	})
	if err != nil {
		return auth.User{}, false, err
	}

	return single(users)
}

func (s *Store) AddExternalLogin(ctx context.Context, u *auth.User, login auth.LoginInfo) error {
	if u == nil {
		return nilUser()
	}

	return db.Exec(ctx, s.p, component, func(ctx context.Context, conn *sql.Conn) error {
		return insertExternalLogin(s.p.Query(), execFunc(ctx, conn), auth.ExternalLogin{
			ID:        uuid.NewString(),
			UserID:    u.ID,
			LoginInfo: login,
		})
	})
}

func (s *Store) RemoveExternalLogin(ctx context.Context, u *auth.User, login auth.LoginInfo) error {
	if u == nil {
		return nilUser()
	}

	return db.Exec(ctx, s.p, component, func(ctx context.Context, conn *sql.Conn) error {
		return deleteExternalLogin(s.p.Query(), execFunc(ctx, conn), u.ID, login)
	})
}

func (s *Store) ExternalLogins(ctx context.Context, u *auth.User) ([]auth.LoginInfo, error) {
	if u == nil {
		return nil, nilUser()
	}

	return db.WithConn(ctx, s.p, component, func(ctx context.Context, conn *sql.Conn) ([]auth.LoginInfo, error) {
		return selectExternalLogins(s.p.Query(), queryFunc(ctx, conn), u.ID)
	})
}

// FindByExternalLogin finds the user linked to login.
func (s *Store) FindByExternalLogin(ctx context.Context, login auth.LoginInfo) (auth.User, bool, error) {
	users, err := db.WithConn(ctx, s.p, component, func(ctx context.Context, conn *sql.Conn) ([]auth.User, error) {
		return selectUsersByExternalLogin(s.p.Query(), queryFunc(ctx, conn), login)
	})
	if err != nil {
		return auth.User{}, false, err
	}

	return single(users)
}

func (s *Store) SetPasswordHash(u *auth.User, hash string) error {
	if u == nil {
		return nilUser()
	}
	u.PasswordHash = hash
	return nil
}

func (s *Store) PasswordHash(u *auth.User) (string, error) {
	if u == nil {
		return "", nilUser()
	}
	return u.PasswordHash, nil
}

// HasPassword reports whether u has a password hash. Users that registered
// through an external provider don't.
func (s *Store) HasPassword(u *auth.User) (bool, error) {
	if u == nil {
		return false, nilUser()
	}
	return u.PasswordHash != "", nil
}

func (s *Store) SetSecurityStamp(u *auth.User, stamp string) error {
	if u == nil {
		return nilUser()
	}
	u.SecurityStamp = stamp
	return nil
}

func (s *Store) SecurityStamp(u *auth.User) (string, error) {
	if u == nil {
		return "", nilUser()
	}
	return u.SecurityStamp, nil
}

func single(users []auth.User) (auth.User, bool, error) {
	switch len(users) {
	case 0:
		return auth.User{}, false, nil
	case 1:
		return users[0], true, nil
	default:
		return auth.User{}, false, errorz.ErrAmbiguousResult
	}
}

func nilUser() error {
	return fmt.Errorf("%w: user is nil", errorz.ErrInvalidArgument)
}
