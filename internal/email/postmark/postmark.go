package postmark

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/willemschots/accounts/internal/email"
	"github.com/willemschots/accounts/internal/krypto"
)

const (
	// DefaultAPIURL is the endpoint for sending a single email.
	DefaultAPIURL = "https://api.postmarkapp.com/email"

	provider = "postmark"
)

type Settings struct {
	APIURL        *url.URL
	ServerToken   krypto.Secret
	MessageStream string
}

// Sender delivers emails through the Postmark API.
type Sender struct {
	client   *http.Client
	settings Settings
}

func NewSender(client *http.Client, s Settings) *Sender {
	return &Sender{
		client:   client,
		settings: s,
	}
}

type message struct {
	From          string
	To            string
	Subject       string
	TextBody      string
	MessageStream string `json:",omitempty"`
	// Link tracking would rewrite the confirmation links.
	TrackLinks string
}

type result struct {
	ErrorCode int
	Message   string
	MessageID string
}

func (s *Sender) Send(ctx context.Context, from, recipient email.Address, subject, body string) error {
	payload, err := json.Marshal(message{
		From:          string(from),
		To:            string(recipient),
		Subject:       subject,
		TextBody:      body,
		MessageStream: s.settings.MessageStream,
		TrackLinks:    "None",
	})
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.settings.APIURL.String(), bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Postmark-Server-Token", string(s.settings.ServerToken.SecretValue()))

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusUnprocessableEntity {
		return email.ReadAPIError(provider, resp)
	}

	// Both accepted and rejected messages come with a result body, the error
	// code tells them apart.
	var res result
	err = json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&res)
	if err != nil {
		return fmt.Errorf("failed to decode result (status %d): %w", resp.StatusCode, err)
	}

	if res.ErrorCode != 0 || resp.StatusCode != http.StatusOK {
		return &email.APIError{
			Provider:   provider,
			StatusCode: resp.StatusCode,
			Code:       res.ErrorCode,
			Message:    res.Message,
		}
	}

	return nil
}
