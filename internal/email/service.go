package email

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
)

// TemplateElement is used by a renderer to identify the different parts of an email template.
type TemplateElement string

const (
	ElementSubject TemplateElement = "subject"
	ElementBody    TemplateElement = "body"
)

// Renderer renders a single element of a named email template.
type Renderer interface {
	Render(w io.Writer, name string, element TemplateElement, data any) error
}

// Sender is responsible for actually sending an email.
type Sender interface {
	Send(ctx context.Context, from, recipient Address, subject, body string) error
}

// ServiceConfig is the configuration for the Service.
type ServiceConfig struct {
	// From is the address emails are sent from.
	From Address
	// BaseURL is the URL the links in emails are relative to.
	BaseURL *url.URL
}

// TemplateData is what email templates are executed with.
type TemplateData struct {
	BaseURL string
	Data    any
}

// Service renders templated emails and hands them to a Sender.
type Service struct {
	renderer Renderer
	sender   Sender
	cfg      ServiceConfig
}

func NewService(renderer Renderer, sender Sender, cfg ServiceConfig) *Service {
	return &Service{
		renderer: renderer,
		sender:   sender,
		cfg:      cfg,
	}
}

// Send renders the template with the given name and sends the result to recipient.
func (s *Service) Send(ctx context.Context, template string, recipient Address, data any) error {
	td := TemplateData{
		Data: data,
	}

	if s.cfg.BaseURL != nil {
		td.BaseURL = strings.TrimSuffix(s.cfg.BaseURL.String(), "/")
	}

	var subject, body strings.Builder

	err := s.renderer.Render(&subject, template, ElementSubject, td)
	if err != nil {
		return fmt.Errorf("failed to render subject of %s: %w", template, err)
	}

	err = s.renderer.Render(&body, template, ElementBody, td)
	if err != nil {
		return fmt.Errorf("failed to render body of %s: %w", template, err)
	}

	err = s.sender.Send(ctx, s.cfg.From, recipient, strings.TrimSpace(subject.String()), strings.TrimSpace(body.String()))
	if err != nil {
		return fmt.Errorf("failed to send %s: %w", template, err)
	}

	return nil
}
