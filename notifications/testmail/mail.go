// Package testmail provides an in-memory notification service that keeps
// every message it is asked to send. It is used by tests and by the
// development launcher.
package testmail

import (
	"context"
	"io"
	"strings"
	"sync"

	"github.com/infinityplans/portal/notifications"
	"go.vocdoni.io/dvote/log"
)

// Outbox implements notifications.NotificationService.
type Outbox struct {
	mu   sync.Mutex
	sent []notifications.Notification
}

// New accepts any configuration.
func (*Outbox) New(any) error { return nil }

// SendNotification records the notification.
func (o *Outbox) SendNotification(ctx context.Context, notification *notifications.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	o.mu.Lock()
	o.sent = append(o.sent, *notification)
	o.mu.Unlock()
	log.Debugw("notification recorded", "to", notification.ToAddress+notification.ToNumber, "subject", notification.Subject)
	return nil
}

// Sent returns a copy of the recorded notifications.
func (o *Outbox) Sent() []notifications.Notification {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]notifications.Notification(nil), o.sent...)
}

// FindEmail returns the body of the last message sent to the address or
// number, or io.EOF when there is none.
func (o *Outbox) FindEmail(_ context.Context, to string) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i := len(o.sent) - 1; i >= 0; i-- {
		n := o.sent[i]
		if strings.EqualFold(n.ToAddress, to) || n.ToNumber == to {
			if n.PlainBody != "" {
				return n.PlainBody, nil
			}
			return n.Body, nil
		}
	}
	return "", io.EOF
}
