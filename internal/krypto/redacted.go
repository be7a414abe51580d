package krypto

import (
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

const (
	keyLen = 32

	// SecretMarker is written in place of sensitive values. Grep the logs
	// for it to find places that try to print them.
	SecretMarker = "<!SECRET_REDACTED!>"
)

var ErrInvalidKey = errors.New("invalid key")

// redacted is embedded in types that should never print their value.
type redacted struct{}

func (redacted) Format(f fmt.State, _ rune) {
	f.Write([]byte(SecretMarker))
}

func (redacted) MarshalText() ([]byte, error) {
	return []byte(SecretMarker), nil
}

func (redacted) LogValue() slog.Value {
	return slog.StringValue(SecretMarker)
}

// Key is 32 bytes of key material, used for signing and encrypting cookies
// and CSRF tokens.
type Key struct {
	redacted
	value []byte
}

// ParseKey expects a hex encoded key of 32 bytes (64 characters).
func ParseKey(raw string) (Key, error) {
	if len(raw) != keyLen*2 {
		return Key{}, ErrInvalidKey
	}

	k, err := hex.DecodeString(raw)
	if err != nil {
		return Key{}, ErrInvalidKey
	}

	return Key{value: k}, nil
}

// ParseKeys parses a comma separated list of keys. Order is kept, the first
// key is the one that is used for new values.
func ParseKeys(raw string) ([]Key, error) {
	parts := strings.Split(raw, ",")
	keys := make([]Key, 0, len(parts))
	for i, p := range parts {
		k, err := ParseKey(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("key %d: %w", i, err)
		}
		keys = append(keys, k)
	}
	return keys, nil
}

// GenerateKey returns a new random key.
func GenerateKey() (Key, error) {
	b, err := genRandomBytes(keyLen)
	if err != nil {
		return Key{}, err
	}
	return Key{value: b}, nil
}

// SecretValue returns the raw key material, for handing to libraries that
// need it.
func (k Key) SecretValue() []byte {
	return k.value
}

// KeyValues returns the raw material of all keys in order.
func KeyValues(keys []Key) [][]byte {
	out := make([][]byte, 0, len(keys))
	for _, k := range keys {
		out = append(out, k.value)
	}
	return out
}

// Secret is a credential of arbitrary length, like an API key or an OAuth
// client secret.
type Secret struct {
	redacted
	value []byte
}

func NewSecret(raw string) Secret {
	return Secret{value: []byte(raw)}
}

func (s Secret) IsZero() bool {
	return len(s.value) == 0
}

func (s Secret) SecretValue() []byte {
	return s.value
}
