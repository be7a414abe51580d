package auth

import (
	"context"
)

// UserStore persists users and their external logins.
//
// Lookups return false instead of an error when nothing matched, and
// errorz.ErrAmbiguousResult when a key that should be unique matched more
// than one row. Every method taking a *User fails with errorz.ErrInvalidArgument
// when it is nil.
//
// The hash and stamp accessors only touch the given User, they don't do any I/O.
type UserStore interface {
	Create(ctx context.Context, u *User) error
	Delete(ctx context.Context, u *User) error
	FindByID(ctx context.Context, id string) (User, bool, error)
	FindByUsername(ctx context.Context, username string) (User, bool, error)
	Update(ctx context.Context, u *User) error

	AddExternalLogin(ctx context.Context, u *User, login LoginInfo) error
	RemoveExternalLogin(ctx context.Context, u *User, login LoginInfo) error
	ExternalLogins(ctx context.Context, u *User) ([]LoginInfo, error)
	FindByExternalLogin(ctx context.Context, login LoginInfo) (User, bool, error)

	SetPasswordHash(u *User, hash string) error
	PasswordHash(u *User) (string, error)
	HasPassword(u *User) (bool, error)
	SetSecurityStamp(u *User, stamp string) error
	SecurityStamp(u *User) (string, error)
}
