package service

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"
	"time"

	mail "github.com/go-mail/mail"
	"go.uber.org/zap"

	"github.com/iliyamo/weighbridge-ops/internal/config"
	"github.com/iliyamo/weighbridge-ops/internal/queue"
)

// Mailer delivers a rendered email.
type Mailer interface {
	Send(ctx context.Context, job queue.MailJob) error
}

// NewMailer picks the transport named by cfg.Mail.Transport. An smtp
// transport without MAIL_HOST degrades to logging outside production so a
// fresh checkout can exercise the reset flow.
func NewMailer(cfg config.Config, log *zap.Logger) (Mailer, error) {
	switch cfg.Mail.Transport {
	case "smtp":
		if cfg.Mail.Host == "" {
			if cfg.IsProduction() {
				return nil, errors.New("MAIL_HOST is required for MAIL_TRANSPORT=smtp")
			}
			log.Warn("MAIL_HOST not set, password reset emails are only logged")
			return &LogMailer{Log: log}, nil
		}
		return NewSMTPMailer(cfg.Mail, log), nil
	case "queue":
		return &QueueMailer{Publisher: queue.NewPublisher(cfg.RabbitMQ, log)}, nil
	case "log":
		return &LogMailer{Log: log}, nil
	default:
		return nil, fmt.Errorf("unknown MAIL_TRANSPORT %q", cfg.Mail.Transport)
	}
}

// SMTPMailer sends through an SMTP relay.
type SMTPMailer struct {
	cfg config.MailConfig
	log *zap.Logger
}

func NewSMTPMailer(cfg config.MailConfig, log *zap.Logger) *SMTPMailer {
	return &SMTPMailer{cfg: cfg, log: log}
}

// Send dials the relay and sends job as multipart/alternative when both
// bodies are present.
func (m *SMTPMailer) Send(ctx context.Context, job queue.MailJob) error {
	msg := mail.NewMessage()
	msg.SetHeader("From", m.cfg.From)
	msg.SetHeader("To", job.To)
	msg.SetHeader("Subject", job.Subject)
	msg.SetBody("text/plain", job.Text)
	if job.HTML != "" {
		msg.AddAlternative("text/html", job.HTML)
	}

	d := mail.NewDialer(m.cfg.Host, m.cfg.Port, m.cfg.User, m.cfg.Pass)
	d.TLSConfig = &tls.Config{ServerName: m.cfg.Host}
	d.Timeout = 10 * time.Second
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left > 0 && left < d.Timeout {
			d.Timeout = left
		}
	}
	switch strings.ToLower(m.cfg.TLSMode) {
	case "ssl":
		d.SSL = true
	case "starttls":
		d.StartTLSPolicy = mail.MandatoryStartTLS
	case "none":
		d.StartTLSPolicy = mail.NoStartTLS
	default:
		// auto: STARTTLS when the server offers it
	}

	if err := d.DialAndSend(msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	m.log.Info("mail sent", zap.String("kind", job.Kind), zap.String("to", job.To))
	return nil
}

// QueueMailer hands the job to RabbitMQ; the mail consumer delivers it.
type QueueMailer struct {
	Publisher *queue.Publisher
}

func (m *QueueMailer) Send(ctx context.Context, job queue.MailJob) error {
	return m.Publisher.PublishMail(ctx, job)
}

// LogMailer writes the job to the log instead of sending it.
type LogMailer struct {
	Log *zap.Logger
}

func (m *LogMailer) Send(_ context.Context, job queue.MailJob) error {
	m.Log.Info("mail not sent (log transport)",
		zap.String("kind", job.Kind),
		zap.String("to", job.To),
		zap.String("subject", job.Subject),
		zap.String("body", job.Text))
	return nil
}

type resetMailData struct {
	UserName         string
	ResetURL         string
	ExpiresInMinutes int
	Year             int
}

var resetTextTmpl = texttemplate.Must(texttemplate.New("reset.txt").Parse(
	`Forgot your password? Click the link to reset your password: {{.ResetURL}}

This link is valid for {{.ExpiresInMinutes}} minutes. If you didn't forget your password, please ignore this email!
`))

var resetHTMLTmpl = htmltemplate.Must(htmltemplate.New("reset.html").Parse(`<!DOCTYPE html>
<html>
<head>
<style>
  body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, Helvetica, Arial, sans-serif; line-height: 1.6; color: #333; }
  .container { max-width: 600px; margin: 20px auto; padding: 20px; border: 1px solid #ddd; border-radius: 10px; }
  .header { text-align: center; padding-bottom: 20px; border-bottom: 1px solid #ddd; }
  .header h2 { color: #4f46e5; }
  .content { text-align: center; padding: 20px 0; }
  .button { display: inline-block; padding: 12px 25px; margin: 25px 0; font-weight: bold; color: #fff !important; background-color: #4f46e5; border-radius: 5px; text-decoration: none; }
  .footer { text-align: center; font-size: 12px; color: #777; padding-top: 20px; border-top: 1px solid #ddd; }
</style>
</head>
<body>
  <div class="container">
    <div class="header"><h2>Password Reset Request</h2></div>
    <div class="content">
      <p>Dear {{.UserName}},</p>
      <p>You requested a password reset. Please click the button below to set a new password.</p>
      <a href="{{.ResetURL}}" class="button">Reset Password</a>
      <p>This link is valid for {{.ExpiresInMinutes}} minutes. If you did not request a password reset, please ignore this email.</p>
    </div>
    <div class="footer"><p>&copy; {{.Year}} Weighbridge Operations</p></div>
  </div>
</body>
</html>
`))

// passwordResetMail renders the reset email for one recipient.
func passwordResetMail(to, userName, resetURL string, ttl time.Duration, now time.Time) (queue.MailJob, error) {
	data := resetMailData{
		UserName:         userName,
		ResetURL:         resetURL,
		ExpiresInMinutes: int(ttl / time.Minute),
		Year:             now.Year(),
	}
	var text, html bytes.Buffer
	if err := resetTextTmpl.Execute(&text, data); err != nil {
		return queue.MailJob{}, err
	}
	if err := resetHTMLTmpl.Execute(&html, data); err != nil {
		return queue.MailJob{}, err
	}
	return queue.MailJob{
		Kind:        queue.MailKindPasswordReset,
		To:          to,
		Subject:     fmt.Sprintf("Your password reset token (valid for %d min)", data.ExpiresInMinutes),
		Text:        text.String(),
		HTML:        html.String(),
		RequestedAt: now,
	}, nil
}
