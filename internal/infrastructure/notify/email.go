package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/wneessen/go-mail"

	"signalbot-backend/internal/domain"
)

type EmailConfig struct {
	Host      string
	Port      int
	UseTLS    bool
	Username  string
	Password  string
	From      string // defaults to Username
	Recipient string
	Timeout   time.Duration
}

// EmailTransport sends an HTML summary of each signal over SMTP.
type EmailTransport struct {
	cfg EmailConfig
}

func NewEmailTransport(cfg EmailConfig) *EmailTransport {
	if cfg.From == "" {
		cfg.From = cfg.Username
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &EmailTransport{cfg: cfg}
}

func (t *EmailTransport) Name() string { return "email" }

func (t *EmailTransport) Send(ctx context.Context, signal domain.Signal) error {
	msg, err := t.message(signal)
	if err != nil {
		return err
	}
	client, err := t.client()
	if err != nil {
		return err
	}
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

func (t *EmailTransport) message(signal domain.Signal) (*mail.Msg, error) {
	body, err := EmailHTML(signal)
	if err != nil {
		return nil, err
	}
	msg := mail.NewMsg()
	if err := msg.From(t.cfg.From); err != nil {
		return nil, fmt.Errorf("email from: %w", err)
	}
	if err := msg.To(t.cfg.Recipient); err != nil {
		return nil, fmt.Errorf("email recipient: %w", err)
	}
	msg.Subject(EmailSubject(signal))
	msg.SetBodyString(mail.TypeTextHTML, body)
	return msg, nil
}

func (t *EmailTransport) client() (*mail.Client, error) {
	opts := []mail.Option{
		mail.WithPort(t.cfg.Port),
		mail.WithTimeout(t.cfg.Timeout),
	}
	if t.cfg.UseTLS {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	}
	if t.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(t.cfg.Username),
			mail.WithPassword(t.cfg.Password),
		)
	}
	c, err := mail.NewClient(t.cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("smtp client: %w", err)
	}
	return c, nil
}
