// Package jobs wires the asynq-backed background queue used for email
// dispatch.
package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeSendEmail is the task type for transactional emails.
	TaskTypeSendEmail = "mail:send"
)

// SendEmailPayload describes one outbound message.
type SendEmailPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// NewSendEmailTask constructs an asynq task with a unique task ID so a
// retried enqueue cannot double-send the same message.
func NewSendEmailTask(payload SendEmailPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSendEmail, data, asynq.TaskID(uuid.NewString())), nil
}

// Sender delivers a rendered message. Satisfied by *mailer.Mailer.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// MailProcessor handles TaskTypeSendEmail tasks on the worker.
type MailProcessor struct {
	sender Sender
	logger *slog.Logger
}

// NewMailProcessor constructs a MailProcessor.
func NewMailProcessor(sender Sender, logger *slog.Logger) *MailProcessor {
	return &MailProcessor{sender: sender, logger: logger}
}

// Handle delivers one queued message. Malformed payloads are dropped;
// delivery failures are retried by asynq.
func (p *MailProcessor) Handle(ctx context.Context, t *asynq.Task) error {
	var payload SendEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		p.logger.Error("drop malformed mail task", slog.Any("error", err))
		return asynq.SkipRetry
	}
	if err := p.sender.Send(ctx, payload.To, payload.Subject, payload.Body); err != nil {
		p.logger.Warn("mail delivery failed",
			slog.String("to", payload.To), slog.Any("error", err))
		return err
	}
	p.logger.Info("mail delivered", slog.String("to", payload.To), slog.String("subject", payload.Subject))
	return nil
}
