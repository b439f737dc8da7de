// Package mailer renders and delivers transactional account emails.
package mailer

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
)

// Mailer delivers plain-text messages over SMTP. Defaults pair with a local
// Mailpit instance in development.
type Mailer struct {
	addr string
	from string
}

// New constructs a Mailer for the given SMTP endpoint.
func New(host string, port int, from string) *Mailer {
	return &Mailer{addr: fmt.Sprintf("%s:%d", host, port), from: from}
}

// Send delivers one message. The context is honored only up to the point the
// SMTP dialog starts; net/smtp does not support cancellation mid-session.
func (m *Mailer) Send(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", m.from)
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")
	msg.WriteString(body)

	if err := smtp.SendMail(m.addr, nil, m.from, []string{to}, []byte(msg.String())); err != nil {
		return fmt.Errorf("mailer: send to %s: %w", to, err)
	}
	return nil
}
