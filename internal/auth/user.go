package auth

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/willemschots/accounts/internal/email"
)

// User is an account. Username is the email address the account was
// registered with and is compared case-insensitively.
type User struct {
	ID                string
	Username          email.Address
	Nickname          Nickname
	PasswordHash      string
	SecurityStamp     string
	IsConfirmed       bool
	ConfirmationToken string
	// CreatedDate is reset every time a new confirmation token is issued.
	CreatedDate time.Time
}

// LoginInfo identifies an account at an external identity provider.
type LoginInfo struct {
	Provider    string
	ProviderKey string
}

// ExternalLogin links a User to an account at an external identity provider.
type ExternalLogin struct {
	ID     string
	UserID string
	LoginInfo
}

const (
	minNicknameRunes = 4
	maxNicknameRunes = 30
)

var ErrInvalidNickname = errors.New("nickname must be between 4 and 30 characters")

// Nickname is the display name of a user.
type Nickname string

// ParseNickname trims raw and checks its length.
func ParseNickname(raw string) (Nickname, error) {
	trimmed := strings.TrimSpace(raw)
	n := utf8.RuneCountInString(trimmed)
	if n < minNicknameRunes || n > maxNicknameRunes {
		return "", ErrInvalidNickname
	}
	return Nickname(trimmed), nil
}

func (n *Nickname) UnmarshalText(b []byte) error {
	parsed, err := ParseNickname(string(b))
	if err != nil {
		return err
	}
	*n = parsed
	return nil
}
