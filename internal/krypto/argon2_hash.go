package krypto

import (
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	argon2Variant     = "argon2id"
	argon2MemoryKiB   = 47104
	argon2Iterations  = 1
	argon2Parallelism = 1
	argon2SaltLen     = 16
	argon2KeyLen      = 32
)

var ErrInvalidInput = errors.New("invalid input")

// Argon2Hash is an argon2id hash together with the parameters that produced it.
// Its text form is the PHC string format:
//
//	$argon2id$v=19$m=47104,t=1,p=1$<salt>$<hash>
//
// with the salt and hash as unpadded standard base64.
type Argon2Hash struct {
	Variant     string
	Version     int
	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint8
	Salt        []byte
	Hash        []byte
}

// HashArgon2 hashes b with a random salt.
func HashArgon2(b []byte) (Argon2Hash, error) {
	if len(b) == 0 {
		return Argon2Hash{}, ErrInvalidInput
	}

	salt, err := genRandomBytes(argon2SaltLen)
	if err != nil {
		return Argon2Hash{}, err
	}

	h := Argon2Hash{
		Variant:     argon2Variant,
		Version:     argon2.Version,
		MemoryKiB:   argon2MemoryKiB,
		Iterations:  argon2Iterations,
		Parallelism: argon2Parallelism,
		Salt:        salt,
	}
	h.Hash = h.derive(b)

	return h, nil
}

// ParseArgon2Hash parses a hash from its PHC string format.
func ParseArgon2Hash(s string) (Argon2Hash, error) {
	parts := strings.Split(s, "$")
	// the string starts with a $ so the first part is empty.
	if len(parts) != 6 || parts[0] != "" {
		return Argon2Hash{}, fmt.Errorf("%w: expected 5 sections", ErrInvalidInput)
	}

	if parts[1] != argon2Variant {
		return Argon2Hash{}, fmt.Errorf("%w: unsupported variant %q", ErrInvalidInput, parts[1])
	}

	var h Argon2Hash
	h.Variant = parts[1]

	_, err := fmt.Sscanf(parts[2], "v=%d", &h.Version)
	if err != nil {
		return Argon2Hash{}, fmt.Errorf("%w: invalid version: %w", ErrInvalidInput, err)
	}

	if h.Version != argon2.Version {
		return Argon2Hash{}, fmt.Errorf("%w: unsupported version %d", ErrInvalidInput, h.Version)
	}

	h.MemoryKiB, h.Iterations, h.Parallelism, err = parseArgon2Params(parts[3])
	if err != nil {
		return Argon2Hash{}, err
	}

	h.Salt, err = base64.RawStdEncoding.Strict().DecodeString(parts[4])
	if err != nil {
		return Argon2Hash{}, fmt.Errorf("%w: invalid salt: %w", ErrInvalidInput, err)
	}

	h.Hash, err = base64.RawStdEncoding.Strict().DecodeString(parts[5])
	if err != nil {
		return Argon2Hash{}, fmt.Errorf("%w: invalid hash: %w", ErrInvalidInput, err)
	}

	return h, nil
}

func parseArgon2Params(s string) (uint32, uint32, uint8, error) {
	var vals [3]uint64
	for i, kv := range strings.Split(s, ",") {
		if i >= len(vals) {
			return 0, 0, 0, fmt.Errorf("%w: too many parameters", ErrInvalidInput)
		}

		want := [3]string{"m", "t", "p"}[i]
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k != want {
			return 0, 0, 0, fmt.Errorf("%w: expected parameter %q", ErrInvalidInput, want)
		}

		bitSize := 32
		if want == "p" {
			bitSize = 8
		}

		n, err := strconv.ParseUint(v, 10, bitSize)
		if err != nil {
			return 0, 0, 0, fmt.Errorf("%w: invalid parameter %q: %w", ErrInvalidInput, want, err)
		}
		vals[i] = n
	}

	return uint32(vals[0]), uint32(vals[1]), uint8(vals[2]), nil
}

// MatchBytes reports whether b hashes to h, comparing in constant time.
func (h Argon2Hash) MatchBytes(b []byte) bool {
	if len(h.Hash) == 0 {
		return false
	}
	return subtle.ConstantTimeCompare(h.derive(b), h.Hash) == 1
}

func (h Argon2Hash) derive(b []byte) []byte {
	keyLen := uint32(len(h.Hash))
	if keyLen == 0 {
		keyLen = argon2KeyLen
	}
	return argon2.IDKey(b, h.Salt, h.Iterations, h.MemoryKiB, h.Parallelism, keyLen)
}

func (h Argon2Hash) String() string {
	return fmt.Sprintf(
		"$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		h.Variant, h.Version, h.MemoryKiB, h.Iterations, h.Parallelism,
		base64.RawStdEncoding.EncodeToString(h.Salt),
		base64.RawStdEncoding.EncodeToString(h.Hash),
	)
}

func (h Argon2Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

func (h *Argon2Hash) UnmarshalText(b []byte) error {
	parsed, err := ParseArgon2Hash(string(b))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// Scan implements sql.Scanner.
func (h *Argon2Hash) Scan(src any) error {
	switch v := src.(type) {
	case string:
		return h.UnmarshalText([]byte(v))
	case []byte:
		return h.UnmarshalText(v)
	default:
		return fmt.Errorf("cannot scan %T into Argon2Hash", src)
	}
}
