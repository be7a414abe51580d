package krypto

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"log/slog"
)

const (
	tokenLen = 32
)

var ErrInvalidToken = errors.New("invalid token")

// Token is a random value used for confirmation links, security stamps and
// OAuth state.
//
// Tokens are only ever shown in plaintext inside emails and redirect URLs,
// they should never end up in logs.
type Token [tokenLen]byte

// GenerateToken creates a new random token.
func GenerateToken() (Token, error) {
	b, err := genRandomBytes(tokenLen)
	if err != nil {
		return Token{}, err
	}
	return Token(b), nil
}

// ParseToken parses a token from its hex representation.
func ParseToken(raw string) (Token, error) {
	if len(raw) != tokenLen*2 {
		return Token{}, ErrInvalidToken
	}

	b, err := hex.DecodeString(raw)
	if err != nil {
		return Token{}, ErrInvalidToken
	}

	return Token(b), nil
}

// String returns the hex representation of the token.
func (t Token) String() string {
	return hex.EncodeToString(t[:])
}

// LogValue implements the slog.LogValuer interface.
func (t Token) LogValue() slog.Value {
	return slog.StringValue(SecretMarker)
}

// EqualStrings compares two secret strings in constant time. Empty strings
// never match.
func EqualStrings(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func genRandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	if err != nil {
		return nil, err
	}
	return b, nil
}
