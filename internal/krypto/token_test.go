package krypto_test

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/willemschots/accounts/internal/krypto"
)

func Test_GenerateToken(t *testing.T) {
	a := must(krypto.GenerateToken())
	b := must(krypto.GenerateToken())

	if a == b {
		t.Errorf("expected two generated tokens to differ, both were %s", a)
	}

	parsed, err := krypto.ParseToken(a.String())
	if err != nil {
		t.Fatalf("failed to parse token: %v", err)
	}

	if parsed != a {
		t.Errorf("expected %s, got %s", a, parsed)
	}
}

func Test_ParseToken(t *testing.T) {
	failCases := map[string]string{
		"empty string": "",
		"too short":    "2b671594b775f371eab4050b4d58326682df6b1a6cc2e886717b1a26b4d6c45",
		"invalid hex":  "zb671594b775f371eab4050b4d58326682df6b1a6cc2e886717b1a26b4d6c45d",
	}

	for name, raw := range failCases {
		t.Run("fail, "+name, func(t *testing.T) {
			_, err := krypto.ParseToken(raw)
			if !errors.Is(err, krypto.ErrInvalidToken) {
				t.Errorf("expected error %v, got %v (via errors.Is)", krypto.ErrInvalidToken, err)
			}
		})
	}
}

func Test_Token_LogValue(t *testing.T) {
	tok := must(krypto.GenerateToken())

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	logger.Info("attempting to log a token", "token", tok)

	s := buf.String()
	if !strings.Contains(s, krypto.SecretMarker) {
		t.Errorf("log output\n%s\ndoes not contain secret marker: %s", s, krypto.SecretMarker)
	}

	if strings.Contains(s, tok.String()) {
		t.Errorf("log output\n%s\ncontains raw token", s)
	}
}

func Test_EqualStrings(t *testing.T) {
	tests := map[string]struct {
		a, b string
		want bool
	}{
		"equal":      {a: "abc", b: "abc", want: true},
		"different":  {a: "abc", b: "abd", want: false},
		"prefix":     {a: "abc", b: "ab", want: false},
		"both empty": {a: "", b: "", want: false},
		"one empty":  {a: "abc", b: "", want: false},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			if got := krypto.EqualStrings(tc.a, tc.b); got != tc.want {
				t.Errorf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}
