package jobs

import (
	"context"
	"fmt"

	"github.com/inkpress/inkpress/internal/mailer"
)

// Notifier implements the auth service's notification capability by
// rendering account emails and enqueueing them for the mail worker. The
// enqueue is the only I/O; delivery and retries happen off-request.
type Notifier struct {
	client      *Client
	frontendURL string
}

// NewNotifier constructs a queue-backed notifier. Links in the rendered
// messages point at the decoupled frontend.
func NewNotifier(client *Client, frontendURL string) *Notifier {
	return &Notifier{client: client, frontendURL: frontendURL}
}

// SendVerification queues the email-verification message.
func (n *Notifier) SendVerification(ctx context.Context, to, username, token string) error {
	msg, err := mailer.RenderVerification(n.frontendURL, username, token)
	if err != nil {
		return err
	}
	return n.enqueue(ctx, to, msg)
}

// SendPasswordReset queues the password-reset message.
func (n *Notifier) SendPasswordReset(ctx context.Context, to, username, token string) error {
	msg, err := mailer.RenderPasswordReset(n.frontendURL, username, token)
	if err != nil {
		return err
	}
	return n.enqueue(ctx, to, msg)
}

func (n *Notifier) enqueue(ctx context.Context, to string, msg mailer.Message) error {
	if _, err := n.client.EnqueueSendEmail(ctx, SendEmailPayload{
		To:      to,
		Subject: msg.Subject,
		Body:    msg.Body,
	}); err != nil {
		return fmt.Errorf("jobs: enqueue mail: %w", err)
	}
	return nil
}
