// Package notify hands committed registrations over to the mail path,
// either through the broker or by calling the mailer directly.
package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"regdesk/internal/dto"
)

type Publisher interface {
	Publish(ctx context.Context, body []byte) error
}

type Sender interface {
	SendRegistrationEmail(ctx context.Context, msg dto.NotificationMessage) error
}

// Queue publishes the message for the consumer worker to deliver.
type Queue struct {
	pub Publisher
}

func NewQueue(pub Publisher) *Queue {
	return &Queue{pub: pub}
}

func (q *Queue) Notify(ctx context.Context, msg dto.NotificationMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	if err := q.pub.Publish(ctx, body); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}

// Direct sends the message in the calling goroutine.
type Direct struct {
	sender Sender
}

func NewDirect(sender Sender) *Direct {
	return &Direct{sender: sender}
}

func (d *Direct) Notify(ctx context.Context, msg dto.NotificationMessage) error {
	return d.sender.SendRegistrationEmail(ctx, msg)
}
