package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/willemschots/accounts/internal/krypto"
)

const (
	minPasswordBytes = 8
	// Passphrases are fine, megabytes of input to hash are not.
	maxPasswordBytes = 512

	SecretMarker = krypto.SecretMarker
)

var ErrInvalidPassword = errors.New("invalid password")

// Password is a plaintext password as entered by a visitor. It prints,
// marshals and logs as SecretMarker. It can only be hashed or matched
// against a hash.
type Password struct {
	krypto.Secret
}

// ParsePassword checks the length of pwd. Passwords made up of only
// whitespace are rejected, browsers and password managers sometimes
// submit those by accident.
func ParsePassword(pwd string) (Password, error) {
	if len(pwd) < minPasswordBytes {
		return Password{}, fmt.Errorf("%w: needs at least %d characters", ErrInvalidPassword, minPasswordBytes)
	}

	if len(pwd) > maxPasswordBytes {
		return Password{}, fmt.Errorf("%w: can be at most %d characters", ErrInvalidPassword, maxPasswordBytes)
	}

	if strings.TrimSpace(pwd) == "" {
		return Password{}, fmt.Errorf("%w: only whitespace", ErrInvalidPassword)
	}

	return Password{Secret: krypto.NewSecret(pwd)}, nil
}

func (p Password) Hash() (krypto.Argon2Hash, error) {
	return krypto.HashArgon2(p.SecretValue())
}

func (p Password) Match(h krypto.Argon2Hash) bool {
	return h.MatchBytes(p.SecretValue())
}

// MatchEncoded matches against a hash in its stored form. Empty or
// malformed hashes never match.
func (p Password) MatchEncoded(encoded string) bool {
	h, err := krypto.ParseArgon2Hash(encoded)
	if err != nil {
		return false
	}
	return p.Match(h)
}

func (p *Password) UnmarshalText(b []byte) error {
	parsed, err := ParsePassword(string(b))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
