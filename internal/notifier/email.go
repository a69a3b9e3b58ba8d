package notifier

import (
	"context"
	"fmt"

	"leadpulse_backend/internal/config"

	gomail "github.com/wneessen/go-mail"
)

// EmailSender is the SMTP side channel for handover notifications, used when
// the handover user cannot be reached on WhatsApp.
type EmailSender struct {
	client   *gomail.Client
	from     string
	fromName string
}

func NewEmailSender(cfg *config.Config) (*EmailSender, error) {
	client, err := gomail.NewClient(cfg.SMTPHost,
		gomail.WithPort(cfg.SMTPPort),
		gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
		gomail.WithUsername(cfg.SMTPUsername),
		gomail.WithPassword(cfg.SMTPPassword),
		gomail.WithTLSPortPolicy(gomail.TLSOpportunistic),
	)
	if err != nil {
		return nil, fmt.Errorf("create smtp client: %w", err)
	}

	return &EmailSender{
		client:   client,
		from:     cfg.EmailFrom,
		fromName: cfg.EmailFromName,
	}, nil
}

func (s *EmailSender) Send(ctx context.Context, to, subject, body string) error {
	msg := gomail.NewMsg()
	if err := msg.FromFormat(s.fromName, s.from); err != nil {
		return fmt.Errorf("invalid from address: %w", err)
	}
	if err := msg.To(to); err != nil {
		return fmt.Errorf("invalid to address: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(gomail.TypeTextPlain, body)

	if err := s.client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	return nil
}
