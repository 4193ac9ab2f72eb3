// Package mailer sends the daily digest emails the report scheduler (C10)
// produces, over plain net/smtp, the same approach the rest of the
// example pack reaches for rather than a third-party mail client.
package mailer

import (
	"fmt"
	"net/smtp"
	"strings"

	"github.com/solidex/shpak/internal/config"
)

// sendFunc matches smtp.SendMail's signature, injectable for tests.
type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Mailer sends HTML email over SMTP using the controller's configured
// relay.
type Mailer struct {
	cfg  config.SMTPConfig
	send sendFunc
}

// New builds a Mailer from the SMTP settings.
func New(cfg config.SMTPConfig) *Mailer {
	return &Mailer{cfg: cfg, send: smtp.SendMail}
}

// SendHTML sends an HTML-bodied message to a single recipient through
// smtp.SendMail, which upgrades to STARTTLS when the server offers it.
// SMTPConfig's UseSSL, UseTLS and Timeout are not applied: there is no
// implicit-TLS mode and no dial timeout.
func (m *Mailer) SendHTML(to, subject, htmlBody string) error {
	if to == "" {
		return fmt.Errorf("mailer: empty recipient")
	}

	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)

	var auth smtp.Auth
	if m.cfg.User != "" {
		auth = smtp.PlainAuth("", m.cfg.User, m.cfg.Password, m.cfg.Host)
	}

	from := m.cfg.From
	if from == "" {
		from = "noreply@shpak.local"
	}

	headers := map[string]string{
		"From":         from,
		"To":           to,
		"Subject":      subject,
		"MIME-Version": "1.0",
		"Content-Type": `text/html; charset="utf-8"`,
	}

	var b strings.Builder
	for k, v := range headers {
		fmt.Fprintf(&b, "%s: %s\r\n", k, v)
	}
	b.WriteString("\r\n")
	b.WriteString(htmlBody)
	b.WriteString("\r\n")

	return m.send(addr, auth, from, []string{to}, []byte(b.String()))
}
