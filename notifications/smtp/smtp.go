// Package smtp sends mail notifications through an SMTP relay. It serves
// the platform mails and the contact form relay configured in the site
// settings.
package smtp

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"mime"
	"mime/multipart"
	"net"
	"net/mail"
	"net/smtp"
	"net/textproto"
	"strconv"

	"github.com/infinityplans/portal/internal"
	"github.com/infinityplans/portal/notifications"
)

// Config holds the relay address, the optional credentials and the sender.
// InboxAPIPort is only set in tests, where it points to the MailHog HTTP API
// used to read back delivered messages.
type Config struct {
	FromName     string
	FromAddress  string
	SMTPUsername string
	SMTPPassword string
	SMTPServer   string
	SMTPPort     int
	InboxAPIPort int
}

// Email implements notifications.NotificationService on top of net/smtp.
type Email struct {
	config *Config
	from   mail.Address
	auth   smtp.Auth
}

// New validates the configuration. Credentials are optional; without them
// the relay is used unauthenticated.
func (se *Email) New(rawConfig any) error {
	config, ok := rawConfig.(*Config)
	if !ok {
		return fmt.Errorf("invalid SMTP configuration")
	}
	from, err := mail.ParseAddress(config.FromAddress)
	if err != nil {
		return fmt.Errorf("could not parse from email: %v", err)
	}
	from.Name = config.FromName
	se.config = config
	se.from = *from
	if config.SMTPUsername != "" && config.SMTPPassword != "" {
		se.auth = smtp.PlainAuth("", config.SMTPUsername, config.SMTPPassword, config.SMTPServer)
	}
	return nil
}

// SendNotification delivers the notification to its ToAddress. The whole
// SMTP conversation is bound to ctx.
func (se *Email) SendNotification(ctx context.Context, n *notifications.Notification) error {
	msg, err := se.composeBody(n)
	if err != nil {
		return fmt.Errorf("could not compose email body: %v", err)
	}
	addr := net.JoinHostPort(se.config.SMTPServer, strconv.Itoa(se.config.SMTPPort))
	conn, err := new(net.Dialer).DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("could not connect to %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	client, err := smtp.NewClient(conn, se.config.SMTPServer)
	if err != nil {
		_ = conn.Close()
		return err
	}
	defer func() { _ = client.Close() }()
	if err := se.deliver(client, n.ToAddress, msg); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return client.Quit()
}

func (se *Email) deliver(client *smtp.Client, to string, msg []byte) error {
	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: se.config.SMTPServer}); err != nil {
			return fmt.Errorf("starttls: %w", err)
		}
	}
	if se.auth != nil {
		if ok, _ := client.Extension("AUTH"); ok {
			if err := client.Auth(se.auth); err != nil {
				return fmt.Errorf("auth: %w", err)
			}
		}
	}
	if err := client.Mail(se.from.Address); err != nil {
		return err
	}
	if err := client.Rcpt(to); err != nil {
		return err
	}
	w, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	return w.Close()
}

// composeBody renders a multipart/alternative message carrying the plain
// and the HTML versions of the notification.
func (se *Email) composeBody(n *notifications.Notification) ([]byte, error) {
	to, err := mail.ParseAddress(n.ToAddress)
	if err != nil {
		return nil, fmt.Errorf("could not parse to email: %v", err)
	}
	to.Name = n.ToName
	headers := [][2]string{
		{"From", se.from.String()},
		{"To", to.String()},
	}
	if n.ReplyTo != "" {
		replyTo, err := mail.ParseAddress(n.ReplyTo)
		if err != nil {
			return nil, fmt.Errorf("could not parse reply-to email: %v", err)
		}
		headers = append(headers, [2]string{"Reply-To", replyTo.String()})
	}

	var parts bytes.Buffer
	mw := multipart.NewWriter(&parts)
	if err := mw.SetBoundary("----=_Part_0_" + internal.RandomHex(12)); err != nil {
		return nil, fmt.Errorf("could not set boundary: %v", err)
	}
	for _, p := range []struct{ kind, content string }{
		{"text/plain", n.PlainBody},
		{"text/html", n.Body},
	} {
		w, err := mw.CreatePart(textproto.MIMEHeader{
			"Content-Type":              {p.kind + "; charset=\"UTF-8\""},
			"Content-Transfer-Encoding": {"7bit"},
		})
		if err != nil {
			return nil, err
		}
		if _, err := w.Write([]byte(p.content)); err != nil {
			return nil, fmt.Errorf("could not write %s part: %v", p.kind, err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("could not close writer: %v", err)
	}
	headers = append(headers,
		[2]string{"Subject", mime.QEncoding.Encode("utf-8", n.Subject)},
		[2]string{"MIME-Version", "1.0"},
		[2]string{"Content-Type", fmt.Sprintf("multipart/alternative; boundary=%q", mw.Boundary())},
	)

	var msg bytes.Buffer
	for _, h := range headers {
		fmt.Fprintf(&msg, "%s: %s\r\n", h[0], h[1])
	}
	msg.WriteString("\r\n")
	msg.Write(parts.Bytes())
	return msg.Bytes(), nil
}
