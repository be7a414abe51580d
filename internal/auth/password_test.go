package auth_test

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"github.com/willemschots/accounts/internal/auth"
	"github.com/willemschots/accounts/internal/krypto"
)

func Test_ParsePassword(t *testing.T) {
	okTests := map[string]string{
		"min length":      "12345678",
		"max length":      strings.Repeat("a", 512),
		"non-ascii":       "\U0001F978\U0001F978\U0001F978",
		"passphrase":      "correct horse battery staple",
		"leading spaces":  "   12345678",
		"only some space": "        a",
	}

	for name, raw := range okTests {
		t.Run("ok, "+name, func(t *testing.T) {
			pwd, err := auth.ParsePassword(raw)
			if err != nil {
				t.Fatalf("failed to parse password: %v", err)
			}

			hash, err := pwd.Hash()
			if err != nil {
				t.Fatalf("failed to hash password: %v", err)
			}

			// Salts are random, so the hash can only be checked by matching.
			if !pwd.Match(hash) {
				t.Errorf("password does not match own hash %s", hash)
			}

			if !pwd.MatchEncoded(hash.String()) {
				t.Errorf("password does not match own encoded hash %s", hash)
			}
		})
	}

	failTests := map[string]string{
		"empty":           "",
		"too short":       "1234567",
		"too long":        strings.Repeat("a", 513),
		"only whitespace": "         ",
	}

	for name, raw := range failTests {
		t.Run("fail, "+name, func(t *testing.T) {
			_, err := auth.ParsePassword(raw)
			if !errors.Is(err, auth.ErrInvalidPassword) {
				t.Fatalf("expected error %v, got %v (via errors.Is)", auth.ErrInvalidPassword, err)
			}

			var pwd auth.Password
			err = pwd.UnmarshalText([]byte(raw))
			if !errors.Is(err, auth.ErrInvalidPassword) {
				t.Fatalf("expected error %v, got %v (via errors.Is)", auth.ErrInvalidPassword, err)
			}
		})
	}
}

func Test_Password_Match(t *testing.T) {
	pwd := must(auth.ParsePassword("reallyStrongPassword1"))
	other := must(auth.ParsePassword("reallyStrongPassword2"))
	hash := must(pwd.Hash())

	if other.Match(hash) {
		t.Errorf("other password matches hash")
	}

	if other.MatchEncoded(hash.String()) {
		t.Errorf("other password matches encoded hash")
	}

	t.Run("ok, hash with other parameters", func(t *testing.T) {
		// Test vector of the argon2 package.
		hash := krypto.Argon2Hash{
			Variant:     "argon2id",
			Version:     19,
			MemoryKiB:   64,
			Iterations:  1,
			Parallelism: 1,
			Salt:        []byte("somesalt"),
			Hash:        must(hex.DecodeString("655ad15eac652dc59f7170a7332bf49b8469be1fdb9c28bb")),
		}

		pwd := must(auth.ParsePassword("password"))
		if !pwd.Match(hash) {
			t.Errorf("password does not match hash %s", hash)
		}
	})

	t.Run("ok, unusable hashes never match", func(t *testing.T) {
		for _, encoded := range []string{"", "12345678", "$argon2id$v=19$"} {
			if pwd.MatchEncoded(encoded) {
				t.Errorf("expected %q not to match", encoded)
			}
		}
	})
}

func Test_Password_PreventExposure(t *testing.T) {
	raw := "reallyStrongPassword1"
	pwd := must(auth.ParsePassword(raw))

	outputs := map[string]func() string{
		"fmt %s":  func() string { return fmt.Sprintf("%s", pwd) }, //nolint:gosimple
		"fmt %v":  func() string { return fmt.Sprintf("%v", pwd) },
		"fmt %+v": func() string { return fmt.Sprintf("%+v", pwd) },
		"fmt %#v": func() string { return fmt.Sprintf("%#v", pwd) },
		"struct field": func() string {
			return fmt.Sprintf("%+v", auth.Credentials{Email: "alice@example.com", Password: pwd})
		},
		"json": func() string {
			var buf bytes.Buffer
			enc := json.NewEncoder(&buf)
			enc.SetEscapeHTML(false)
			if err := enc.Encode(struct{ Password auth.Password }{pwd}); err != nil {
				t.Fatalf("failed to encode: %v", err)
			}
			return buf.String()
		},
		"log": func() string {
			var buf bytes.Buffer
			slog.New(slog.NewTextHandler(&buf, nil)).Info("login", "password", pwd)
			return buf.String()
		},
	}

	for name, output := range outputs {
		t.Run("ok, "+name, func(t *testing.T) {
			s := output()
			if !strings.Contains(s, auth.SecretMarker) {
				t.Errorf("output\n%s\ndoes not contain secret marker %s", s, auth.SecretMarker)
			}

			if strings.Contains(s, raw) {
				t.Errorf("output\n%s\ncontains raw password", s)
			}
		})
	}
}
