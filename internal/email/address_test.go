package email_test

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/willemschots/accounts/internal/email"
)

func Test_ParseAddress(t *testing.T) {
	okTests := map[string]struct {
		raw  string
		want email.Address
	}{
		"shortest possible":     {raw: "a@b", want: "a@b"},
		"typical":               {raw: "alice@example.com", want: "alice@example.com"},
		"case is kept":          {raw: "Alice@Example.com", want: "Alice@Example.com"},
		"plus addressing":       {raw: "alice+accounts@example.com", want: "alice+accounts@example.com"},
		"whitespace is trimmed": {raw: " \talice@example.com\n ", want: "alice@example.com"},
		"max length": {
			raw:  strings.Repeat("a", 64) + "@" + strings.Repeat("b", 189),
			want: email.Address(strings.Repeat("a", 64) + "@" + strings.Repeat("b", 189)),
		},
	}

	for name, tc := range okTests {
		t.Run("ok, "+name, func(t *testing.T) {
			got, err := email.ParseAddress(tc.raw)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}

	failTests := map[string]string{
		"empty":                 "",
		"whitespace only":       " \t",
		"missing @":             "alice.example.com",
		"missing domain":        "alice@",
		"missing local part":    "@example.com",
		"two addresses":         "alice@example.com, bob@example.com",
		"with name":             "Alice <alice@example.com>",
		"with name and comment": "Alice <alice@example.com>(comment)",
		"too long":              strings.Repeat("a", 64) + "@" + strings.Repeat("b", 190),
	}

	for name, raw := range failTests {
		t.Run("fail, "+name, func(t *testing.T) {
			_, err := email.ParseAddress(raw)
			if !errors.Is(err, email.ErrInvalidEmail) {
				t.Fatalf("expected error %v, got %v (via errors.Is)", email.ErrInvalidEmail, err)
			}
		})
	}
}

func Test_Address_UnmarshalText(t *testing.T) {
	var a email.Address
	err := a.UnmarshalText([]byte(" bob@example.com"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if a != "bob@example.com" {
		t.Errorf("got %q, want %q", a, "bob@example.com")
	}

	err = a.UnmarshalText([]byte("bob"))
	if !errors.Is(err, email.ErrInvalidEmail) {
		t.Fatalf("expected error %v, got %v (via errors.Is)", email.ErrInvalidEmail, err)
	}
}

func Test_Address_LogValue(t *testing.T) {
	tests := map[string]string{
		"alice@example.com": "a***@example.com",
		"a@b":               "a***@b",
		"":                  "***",
		"not an address":    "***",
	}

	for addr, want := range tests {
		t.Run("ok, "+addr, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&buf, nil))
			logger.Info("test", "addr", email.Address(addr))

			if !strings.Contains(buf.String(), "addr="+want) {
				t.Errorf("log output\n%s\ndoes not contain addr=%s", buf.String(), want)
			}
		})
	}
}
