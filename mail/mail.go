// Package mail is the outbound email channel. Everything above it depends on
// the Mailer interface only; the SMTP implementation is plain net/smtp.
package mail

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/feedpulse/feedpulse/apperr"
)

type Message struct {
	To      string
	Subject string
	Body    string
}

type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

type SMTPSettings struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

func (cfg SMTPSettings) Enabled() bool {
	return cfg.Host != ""
}

type smtpMailer struct {
	cfg SMTPSettings
}

func NewSMTP(cfg SMTPSettings) Mailer {
	return &smtpMailer{cfg: cfg}
}

func (m *smtpMailer) Send(_ context.Context, msg Message) error {
	if !m.cfg.Enabled() {
		return errors.Wrap(apperr.ErrDeliveryFailure, "smtp is not configured")
	}
	if msg.To == "" {
		return apperr.Validationf("recipient is required")
	}

	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}

	addr := net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))
	body := formatMessage(m.cfg.From, msg)
	err := smtp.SendMail(addr, auth, m.cfg.From, []string{msg.To}, []byte(body))
	if err != nil {
		return errors.Wrapf(apperr.ErrDeliveryFailure, "smtp send to %s: %v", msg.To, err)
	}
	return nil
}

func formatMessage(from string, msg Message) string {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", msg.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	b.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")
	b.WriteString(msg.Body)
	return b.String()
}

// VerificationCode is the template for the submission verification mail.
func VerificationCode(to, heading, code string) Message {
	return Message{
		To:      to,
		Subject: "Your feedback verification code",
		Body: fmt.Sprintf(
			"Your verification code for %q is: %s\n\nEnter it on the feedback page to unlock the form.\nIf you did not request this, you can ignore this message.\n",
			heading, code,
		),
	}
}

// PasswordReset is the template for the account password reset mail.
func PasswordReset(to, link string) Message {
	return Message{
		To:      to,
		Subject: "Password reset",
		Body: fmt.Sprintf(
			"A password reset was requested for this account.\n\nVisit the link below to choose a new password:\n%s\n\nIf you did not request a reset, you can ignore this message.\n",
			link,
		),
	}
}
