package mailgun

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/url"

	"github.com/willemschots/accounts/internal/email"
	"github.com/willemschots/accounts/internal/krypto"
)

// DefaultBaseURL is the base URL of the US region of the Mailgun API.
const DefaultBaseURL = "https://api.mailgun.net"

// Settings contains the settings for the Mailgun API.
type Settings struct {
	BaseURL *url.URL
	Domain  string
	APIKey  krypto.Secret
}

// Sender is an email sender that sends emails using the Mailgun API.
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

// Send posts a plain text message to the messages endpoint of the configured domain.
// Click and open tracking are switched off so links in account emails are not rewritten.
func (s *Sender) Send(ctx context.Context, from, recipient email.Address, subject, body string) error {
	form, contentType, err := multipartForm([][2]string{
		{"from", string(from)},
		{"to", string(recipient)},
		{"subject", subject},
		{"text", body},
		{"o:tracking", "no"},
	})
	if err != nil {
		return fmt.Errorf("failed to encode form: %w", err)
	}

	endpoint := s.settings.BaseURL.JoinPath("v3", s.settings.Domain, "messages")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), form)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", contentType)
	req.SetBasicAuth("api", string(s.settings.APIKey.SecretValue()))

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return email.ReadAPIError("mailgun", resp)
	}

	return nil
}

func multipartForm(fields [][2]string) (*bytes.Buffer, string, error) {
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)
	for _, f := range fields {
		err := w.WriteField(f[0], f[1])
		if err != nil {
			return nil, "", err
		}
	}

	err := w.Close()
	if err != nil {
		return nil, "", err
	}

	return buf, w.FormDataContentType(), nil
}
