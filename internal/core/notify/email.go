package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/noa10/mataresit-sub018/pkg/errors"
)

// EmailSender delivers alerts over SMTP. Channel config keys: host, port,
// from, to (comma-separated), and optional username/password for plain auth.
type EmailSender struct {
	logger *logrus.Logger

	// sendMail is swapped out in tests.
	sendMail func(addr string, a smtp.Auth, from string, to []string, body []byte) error
}

// NewEmailSender creates an email sender.
func NewEmailSender(logger *logrus.Logger) *EmailSender {
	return &EmailSender{
		logger:   logger,
		sendMail: smtp.SendMail,
	}
}

// Send delivers the message to the channel's recipients.
func (e *EmailSender) Send(ctx context.Context, ch Channel, msg *Message) error {
	host := ch.Config["host"]
	port := ch.Config["port"]
	from := ch.Config["from"]
	to := splitRecipients(ch.Config["to"])

	if host == "" || from == "" || len(to) == 0 {
		return errors.Wrapf(errors.ErrDeliveryFailure, "email channel %s is missing host/from/to", ch.ID)
	}
	if port == "" {
		port = "587"
	}

	var auth smtp.Auth
	if user := ch.Config["username"]; user != "" {
		auth = smtp.PlainAuth("", user, ch.Config["password"], host)
	}

	body := buildEmailBody(from, to, msg)

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := e.sendMail(host+":"+port, auth, from, to, body); err != nil {
		return errors.Wrapf(errors.ErrDeliveryFailure, "smtp send: %v", err)
	}

	e.logger.WithFields(logrus.Fields{
		"channel_id": ch.ID,
		"alert_id":   msg.AlertID,
		"recipients": len(to),
	}).Debug("Email notification delivered")

	return nil
}

func splitRecipients(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if addr := strings.TrimSpace(part); addr != "" {
			out = append(out, addr)
		}
	}
	return out
}

func buildEmailBody(from string, to []string, msg *Message) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	b.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=\"utf-8\"\r\n\r\n")
	b.WriteString(msg.Body)
	b.WriteString("\r\n")
	return []byte(b.String())
}
