// Package oauth logs users in through external identity providers using the
// OAuth 2.0 authorization code flow.
package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"

	"github.com/willemschots/accounts/internal/krypto"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
	"golang.org/x/oauth2/github"
)

var ErrMissingKey = errors.New("provider did not return a user id")

// Identity is the user as described by a provider.
type Identity struct {
	Provider    string
	ProviderKey string
	// Email and Name are empty when the provider doesn't share them.
	Email string
	Name  string
}

// Settings configure a Provider.
type Settings struct {
	// Name identifies the provider, it's stored with every external login.
	Name         string
	ClientID     string
	ClientSecret krypto.Secret
	// RedirectURL is the callback URL registered with the provider.
	RedirectURL string
	Endpoint    oauth2.Endpoint
	Scopes      []string

	// UserInfoURL is requested with the access token to find out who logged in.
	UserInfoURL string
	// KeyField, EmailField and NameField are the top level fields of the
	// user info response to read.
	KeyField   string
	EmailField string
	NameField  string
}

// Provider is an external identity provider.
type Provider struct {
	name   string
	config *oauth2.Config
	s      Settings
}

// New creates a new Provider.
func New(s Settings) *Provider {
	return &Provider{
		name: s.Name,
		config: &oauth2.Config{
			ClientID:     s.ClientID,
			ClientSecret: string(s.ClientSecret.SecretValue()),
			RedirectURL:  s.RedirectURL,
			Scopes:       s.Scopes,
			Endpoint:     s.Endpoint,
		},
		s: s,
	}
}

// NewGitHub creates a provider for GitHub.
func NewGitHub(clientID string, clientSecret krypto.Secret, redirectURL string) *Provider {
	return New(Settings{
		Name:         "github",
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Endpoint:     github.Endpoint,
		Scopes:       []string{"read:user", "user:email"},
		UserInfoURL:  "https://api.github.com/user",
		KeyField:     "id",
		EmailField:   "email",
		NameField:    "login",
	})
}

// NewGoogle creates a provider for Google.
func NewGoogle(clientID string, clientSecret krypto.Secret, redirectURL string) *Provider {
	return New(Settings{
		Name:         "google",
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Endpoint:     endpoints.Google,
		Scopes:       []string{"openid", "email", "profile"},
		UserInfoURL:  "https://openidconnect.googleapis.com/v1/userinfo",
		KeyField:     "sub",
		EmailField:   "email",
		NameField:    "name",
	})
}

func (p *Provider) Name() string {
	return p.name
}

// AuthURL returns the URL to send the user to. The provider hands state
// back to the callback unchanged.
func (p *Provider) AuthURL(state string) string {
	return p.config.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

// Exchange trades the code the provider sent to the callback for the
// identity of the user.
func (p *Provider) Exchange(ctx context.Context, code string) (Identity, error) {
	token, err := p.config.Exchange(ctx, code)
	if err != nil {
		return Identity{}, fmt.Errorf("failed to exchange code with %s: %w", p.name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.s.UserInfoURL, nil)
	if err != nil {
		return Identity{}, err
	}
	req.Header.Set("Accept", "application/json")

	// The client adds the access token to every request.
	resp, err := p.config.Client(ctx, token).Do(req)
	if err != nil {
		return Identity{}, fmt.Errorf("failed to request user info from %s: %w", p.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Identity{}, fmt.Errorf("user info request to %s returned status %d", p.name, resp.StatusCode)
	}

	dec := json.NewDecoder(resp.Body)
	// Numeric ids would lose precision as floats.
	dec.UseNumber()

	var info map[string]any
	err = dec.Decode(&info)
	if err != nil {
		return Identity{}, fmt.Errorf("failed to decode user info from %s: %w", p.name, err)
	}

	id := Identity{
		Provider:    p.name,
		ProviderKey: field(info, p.s.KeyField),
		Email:       field(info, p.s.EmailField),
		Name:        field(info, p.s.NameField),
	}

	if id.ProviderKey == "" {
		return Identity{}, fmt.Errorf("%s: %w", p.name, ErrMissingKey)
	}

	return id, nil
}

func field(info map[string]any, name string) string {
	if name == "" {
		return ""
	}

	switch v := info[name].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	default:
		return ""
	}
}

// Registry holds the configured providers by name.
type Registry map[string]*Provider

// NewRegistry creates a registry of the given providers.
func NewRegistry(providers ...*Provider) Registry {
	r := make(Registry, len(providers))
	for _, p := range providers {
		r[p.Name()] = p
	}
	return r
}

// Names returns the names of all providers in alphabetical order.
func (r Registry) Names() []string {
	names := make([]string, 0, len(r))
	for name := range r {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
