// Package notifier delivers the out-of-band messages the credential
// lifecycle produces: password recovery links and e-mail verification links.
package notifier

import (
	"context"
	"fmt"
	"strings"

	"github.com/wneessen/go-mail"
)

// Config holds the SMTP transport settings
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
	TLS      bool
	// BaseURL is the public origin links are built against, no trailing slash
	BaseURL string
}

// SMTP sends lifecycle mail through a regular SMTP relay
type SMTP struct {
	cfg     Config
	baseURL string
}

// NewSMTP creates an SMTP notifier
func NewSMTP(cfg Config) (*SMTP, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("SMTP host is required")
	}
	if cfg.From == "" {
		return nil, fmt.Errorf("SMTP from address is required")
	}

	return &SMTP{
		cfg:     cfg,
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
	}, nil
}

// Send dispatches one message. The template kind picks subject, body, and
// the link the payload token is embedded into.
func (s *SMTP) Send(ctx context.Context, destination, templateKind string, payload map[string]string) error {
	subject, body, err := s.compose(templateKind, payload)
	if err != nil {
		return err
	}

	return s.send(ctx, destination, subject, body)
}

func (s *SMTP) compose(templateKind string, payload map[string]string) (string, string, error) {
	token := payload["token"]

	switch templateKind {
	case "password_reset":
		link := fmt.Sprintf("%s/reset-password?token=%s", s.baseURL, token)
		body := fmt.Sprintf(
			"We received a request to reset your password.\n\n"+
				"Open this link to choose a new one:\n%s\n\n"+
				"The link is valid for one hour and works once. If you did not "+
				"ask for this, you can ignore this message.\n",
			link,
		)
		return "Reset your password", body, nil

	case "email_verification":
		link := fmt.Sprintf("%s/verify-email?token=%s", s.baseURL, token)
		body := fmt.Sprintf(
			"Please confirm your e-mail address by opening this link:\n%s\n",
			link,
		)
		return "Verify your e-mail address", body, nil

	default:
		return "", "", fmt.Errorf("unknown template kind: %q", templateKind)
	}
}

func (s *SMTP) send(ctx context.Context, to, subject, body string) error {
	msg := mail.NewMsg()

	if s.cfg.FromName != "" {
		if err := msg.FromFormat(s.cfg.FromName, s.cfg.From); err != nil {
			return fmt.Errorf("setting from address: %w", err)
		}
	} else {
		if err := msg.From(s.cfg.From); err != nil {
			return fmt.Errorf("setting from address: %w", err)
		}
	}

	if err := msg.To(to); err != nil {
		return fmt.Errorf("setting to address: %w", err)
	}

	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, body)

	opts := []mail.Option{
		mail.WithPort(s.cfg.Port),
	}

	if s.cfg.TLS {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
		// implicit TLS for port 465, STARTTLS otherwise
		if s.cfg.Port == 465 {
			opts = append(opts, mail.WithSSL())
		}
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	}

	if s.cfg.Username != "" && s.cfg.Password != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.cfg.Username),
			mail.WithPassword(s.cfg.Password),
		)
	}

	client, err := mail.NewClient(s.cfg.Host, opts...)
	if err != nil {
		return fmt.Errorf("creating mail client: %w", err)
	}

	// the caller's deadline bounds the dial and the delivery
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("sending email: %w", err)
	}

	return nil
}
