package email

import (
	"errors"
	"log/slog"
	"net/mail"
	"strings"
)

// maxAddressLen is the longest path SMTP accepts (RFC 5321).
const maxAddressLen = 254

var ErrInvalidEmail = errors.New("invalid email address")

// Address is a bare email address, without display name. For accounts it
// doubles as the username.
type Address string

// ParseAddress trims raw and checks it is shaped like an email address.
// It does not check that the mailbox exists.
func ParseAddress(raw string) (Address, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || len(raw) > maxAddressLen {
		return "", ErrInvalidEmail
	}

	addr, err := mail.ParseAddress(raw)
	// Only accept the address part, not "Alice <alice@example.com>".
	if err != nil || addr.Address != raw {
		return "", ErrInvalidEmail
	}

	return Address(addr.Address), nil
}

func (a *Address) UnmarshalText(text []byte) error {
	addr, err := ParseAddress(string(text))
	if err != nil {
		return err
	}

	*a = addr
	return nil
}

// LogValue masks the local part, "alice@example.com" is logged as
// "a***@example.com".
func (a Address) LogValue() slog.Value {
	local, domain, ok := strings.Cut(string(a), "@")
	if !ok || local == "" {
		return slog.StringValue("***")
	}
	return slog.StringValue(local[:1] + "***@" + domain)
}
