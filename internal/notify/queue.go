package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	log "github.com/sirupsen/logrus"
)

const (
	// QueueMail is the asynq queue holding outgoing mail.
	QueueMail = "mail"
	// TaskTypeSendMail is the task type for transactional emails.
	TaskTypeSendMail = "mail:send"
)

// Enqueuer is the part of *asynq.Client the queue needs.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Queue is a Sender that hands messages to the background worker.
type Queue struct {
	client Enqueuer
}

func NewQueue(client Enqueuer) *Queue {
	return &Queue{client: client}
}

// NewSendMailTask constructs the asynq task for msg.
func NewSendMailTask(msg Message) (*asynq.Task, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSendMail, data, asynq.Queue(QueueMail), asynq.MaxRetry(5)), nil
}

func (q *Queue) Send(ctx context.Context, msg Message) error {
	task, err := NewSendMailTask(msg)
	if err != nil {
		return err
	}
	if _, err := q.client.EnqueueContext(ctx, task); err != nil {
		return fmt.Errorf("enqueue mail: %w", err)
	}
	return nil
}

// MailHandler delivers queued mail with the wrapped sender.
type MailHandler struct {
	Sender Sender
	Logger log.FieldLogger
}

// ProcessTask implements asynq.Handler. Malformed payloads are not retried.
func (h *MailHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var msg Message
	if err := json.Unmarshal(t.Payload(), &msg); err != nil {
		return fmt.Errorf("decode mail payload: %v: %w", err, asynq.SkipRetry)
	}
	if err := h.Sender.Send(ctx, msg); err != nil {
		h.Logger.WithFields(log.Fields{
			"to":      msg.To,
			"subject": msg.Subject,
		}).WithError(err).Warn("mail delivery failed, will retry")
		return err
	}
	h.Logger.WithField("subject", msg.Subject).Debug("mail delivered")
	return nil
}

var (
	_ Sender        = (*Queue)(nil)
	_ Sender        = (*SMTPSender)(nil)
	_ asynq.Handler = (*MailHandler)(nil)
)
