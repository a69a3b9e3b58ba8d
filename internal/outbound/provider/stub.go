package provider

import (
	"context"
	"time"

	"leadpulse_backend/platform/logger"

	"github.com/google/uuid"
)

// StubSender accepts every message without touching a network. It is the
// default for development and tests.
type StubSender struct {
	log *logger.Logger
}

func NewStubSender(log *logger.Logger) *StubSender {
	return &StubSender{log: log}
}

func (s *StubSender) Name() string { return "stub" }

func (s *StubSender) Send(ctx context.Context, toPhone, body string) (SendResult, error) {
	if err := ctx.Err(); err != nil {
		return SendResult{}, err
	}

	id := "stub-" + uuid.NewString()
	if s.log != nil {
		s.log.Info("whatsapp send stubbed", "phone", toPhone, "messageId", id)
	}
	return SendResult{Provider: s.Name(), ProviderMessageID: id, SentAt: time.Now().UTC()}, nil
}
