// Package twilio sends SMS notifications, such as password reset codes for
// members without a mail address, through Twilio.
package twilio

import (
	"context"
	"fmt"

	"github.com/infinityplans/portal/internal"
	"github.com/infinityplans/portal/notifications"
	t "github.com/twilio/twilio-go"
	api "github.com/twilio/twilio-go/rest/api/v2010"
	"go.vocdoni.io/dvote/log"
)

// maxBodyLength keeps messages within ten concatenated segments.
const maxBodyLength = 1600

// Config holds the account credentials and the sender number.
type Config struct {
	AccountSid string
	AuthToken  string
	FromNumber string
}

// SMS implements notifications.NotificationService with the Twilio
// messages API.
type SMS struct {
	from   string
	client *t.RestClient
}

// New builds the REST client. The sender number is normalized the same way
// member numbers are.
func (s *SMS) New(rawConfig any) error {
	config, ok := rawConfig.(*Config)
	if !ok {
		return fmt.Errorf("invalid Twilio configuration")
	}
	if config.AccountSid == "" || config.AuthToken == "" {
		return fmt.Errorf("missing Twilio credentials")
	}
	from, err := internal.SanitizeAndVerifyPhoneNumber(config.FromNumber)
	if err != nil {
		return fmt.Errorf("invalid Twilio sender number: %w", err)
	}
	s.from = from
	s.client = t.NewRestClientWithParams(t.ClientParams{
		Username: config.AccountSid,
		Password: config.AuthToken,
	})
	return nil
}

// SendNotification texts the plain body (or the HTML body when there is no
// plain one) to ToNumber. The Twilio client has no context support, so ctx
// only bounds how long the caller waits.
func (s *SMS) SendNotification(ctx context.Context, n *notifications.Notification) error {
	to, err := internal.SanitizeAndVerifyPhoneNumber(n.ToNumber)
	if err != nil {
		return fmt.Errorf("invalid recipient number: %w", err)
	}
	body := n.PlainBody
	if body == "" {
		body = n.Body
	}
	if body == "" {
		return fmt.Errorf("empty SMS body")
	}
	if len(body) > maxBodyLength {
		body = body[:maxBodyLength]
	}
	params := (&api.CreateMessageParams{}).SetTo(to).SetFrom(s.from).SetBody(body)

	done := make(chan error, 1)
	go func() {
		msg, err := s.client.Api.CreateMessage(params)
		if err == nil && msg.Sid != nil {
			log.Debugw("sms queued", "sid", *msg.Sid)
		}
		done <- err
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}
