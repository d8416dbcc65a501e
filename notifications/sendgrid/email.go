// Package sendgrid sends mail notifications through the SendGrid API.
package sendgrid

import (
	"context"
	"fmt"
	"net/http"

	"github.com/infinityplans/portal/notifications"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// Config holds the sender identity and the API key.
type Config struct {
	FromName    string
	FromAddress string
	APIKey      string
}

// Email implements notifications.NotificationService.
type Email struct {
	config *Config
	client *sendgrid.Client
}

// New initializes the SendGrid client.
func (sg *Email) New(rawConfig any) error {
	config, ok := rawConfig.(*Config)
	if !ok {
		return fmt.Errorf("invalid SendGrid configuration")
	}
	if config.APIKey == "" {
		return fmt.Errorf("missing SendGrid API key")
	}
	sg.config = config
	sg.client = sendgrid.NewSendClient(sg.config.APIKey)
	return nil
}

// SendNotification sends the notification as a single mail.
func (sg *Email) SendNotification(ctx context.Context, notification *notifications.Notification) error {
	from := mail.NewEmail(sg.config.FromName, sg.config.FromAddress)
	to := mail.NewEmail(notification.ToName, notification.ToAddress)
	plain := notification.PlainBody
	if plain == "" {
		plain = notification.Body
	}
	message := mail.NewSingleEmail(from, notification.Subject, to, plain, notification.Body)
	if notification.ReplyTo != "" {
		message.SetReplyTo(mail.NewEmail("", notification.ReplyTo))
	}
	resp, err := sg.client.SendWithContext(ctx, message)
	if err != nil {
		return err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("sendgrid rejected the message: %d %s", resp.StatusCode, resp.Body)
	}
	return nil
}
