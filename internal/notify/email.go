package notify

import (
	"context"
	"fmt"
	"html"

	"gopkg.in/gomail.v2"
)

// SMTPConfig holds SMTP server configuration
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       []string
}

// Email sends reminders as a short HTML mail to a fixed recipient list.
type Email struct {
	cfg  SMTPConfig
	send func(m *gomail.Message) error
}

func NewEmail(cfg SMTPConfig) *Email {
	if cfg.From == "" {
		cfg.From = "noreply@sunwatch.local"
	}
	e := &Email{cfg: cfg}
	e.send = func(m *gomail.Message) error {
		return gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password).DialAndSend(m)
	}
	return e
}

func (e *Email) Name() string { return "email" }

func (e *Email) Configured() bool {
	return e.cfg.Host != "" && len(e.cfg.To) > 0
}

func (e *Email) Send(ctx context.Context, msg Message) error {
	if !e.Configured() {
		return ErrNotAuthorized
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", e.cfg.From)
	m.SetHeader("To", e.cfg.To...)
	m.SetHeader("Subject", msg.Title)
	m.SetBody("text/plain", msg.Body)
	m.AddAlternative("text/html", renderEmail(msg))

	if err := e.send(m); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

func renderEmail(msg Message) string {
	return fmt.Sprintf(
		`<html><body style="font-family:sans-serif"><h2>%s</h2><p>%s</p></body></html>`,
		html.EscapeString(msg.Title), html.EscapeString(msg.Body),
	)
}
