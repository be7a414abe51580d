package auth

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/willemschots/accounts/internal/errorz"
)

// ConfirmationToken is the payload of a link sent by email. It carries no
// signature or expiry, anyone can construct one.
type ConfirmationToken struct {
	Token string `json:"token"`
	Email string `json:"email"`
}

// EncodeConfirmationToken encodes token and email into an opaque string that
// is safe to use in URLs. Both must be valid UTF-8, invalid bytes are replaced
// by U+FFFD and the result does not decode to the original.
func EncodeConfirmationToken(token, email string) string {
	// Marshalling a struct of two strings can't fail.
	b, _ := json.Marshal(ConfirmationToken{
		Token: token,
		Email: email,
	})
	return base64.RawURLEncoding.EncodeToString(b)
}

// DecodeConfirmationToken reverses EncodeConfirmationToken. It fails with
// errorz.ErrMalformedToken for anything that isn't the encoding of exactly
// a token and an email.
func DecodeConfirmationToken(raw string) (ConfirmationToken, error) {
	b, err := base64.RawURLEncoding.DecodeString(raw)
	if err != nil {
		return ConfirmationToken{}, fmt.Errorf("%w: %w", errorz.ErrMalformedToken, err)
	}

	// Pointers so missing fields can be told apart from empty ones.
	var payload struct {
		Token *string `json:"token"`
		Email *string `json:"email"`
	}

	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()

	err = dec.Decode(&payload)
	if err != nil {
		return ConfirmationToken{}, fmt.Errorf("%w: %w", errorz.ErrMalformedToken, err)
	}

	_, err = dec.Token()
	if !errors.Is(err, io.EOF) {
		return ConfirmationToken{}, fmt.Errorf("%w: trailing data", errorz.ErrMalformedToken)
	}

	// JSON decoding silently replaces invalid UTF-8.
	if !utf8.Valid(b) {
		return ConfirmationToken{}, fmt.Errorf("%w: invalid utf-8", errorz.ErrMalformedToken)
	}

	if payload.Token == nil || payload.Email == nil {
		return ConfirmationToken{}, fmt.Errorf("%w: missing token or email", errorz.ErrMalformedToken)
	}

	return ConfirmationToken{
		Token: *payload.Token,
		Email: *payload.Email,
	}, nil
}
