package sendgrid

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/willemschots/accounts/internal/email"
	"github.com/willemschots/accounts/internal/krypto"
)

// DefaultBaseURL is the base URL of the SendGrid v3 API.
const DefaultBaseURL = "https://api.sendgrid.com"

// Settings contains the settings for the SendGrid API.
type Settings struct {
	BaseURL *url.URL
	APIKey  krypto.Secret
}

// Sender sends emails using the SendGrid mail send endpoint.
type Sender struct {
	client   *http.Client
	settings Settings
}

// NewSender creates a new sender.
func NewSender(client *http.Client, s Settings) *Sender {
	return &Sender{
		client:   client,
		settings: s,
	}
}

type addressJSON struct {
	Email string `json:"email"`
}

type contentJSON struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type personalizationJSON struct {
	To []addressJSON `json:"to"`
}

type mailJSON struct {
	Personalizations []personalizationJSON `json:"personalizations"`
	From             addressJSON           `json:"from"`
	Subject          string                `json:"subject"`
	Content          []contentJSON         `json:"content"`
}

// Send sends an email using the SendGrid API.
func (s *Sender) Send(ctx context.Context, from, recipient email.Address, subject, body string) error {
	data := mailJSON{
		Personalizations: []personalizationJSON{
			{To: []addressJSON{{Email: string(recipient)}}},
		},
		From:    addressJSON{Email: string(from)},
		Subject: subject,
		Content: []contentJSON{{Type: "text/plain", Value: body}},
	}

	var b bytes.Buffer
	err := json.NewEncoder(&b).Encode(data)
	if err != nil {
		return fmt.Errorf("failed to encode email json: %w", err)
	}

	reqURL := s.settings.BaseURL.JoinPath("v3", "mail", "send")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL.String(), &b)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+string(s.settings.APIKey.SecretValue()))

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	// SendGrid accepts the message for delivery with a 202 and an empty body.
	if resp.StatusCode != http.StatusAccepted {
		return email.ReadAPIError("sendgrid", resp)
	}

	return nil
}
