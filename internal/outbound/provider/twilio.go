package provider

import (
	"context"
	"fmt"
	"strings"
	"time"

	"leadpulse_backend/platform/logger"
	"leadpulse_backend/platform/phone"
	"leadpulse_backend/platform/sanitize"

	"github.com/twilio/twilio-go"
	twilioapi "github.com/twilio/twilio-go/rest/api/v2010"
)

// TwilioSender delivers through the Twilio WhatsApp messaging API.
type TwilioSender struct {
	client *twilio.RestClient
	from   string
	token  string
	log    *logger.Logger
}

func NewTwilioSender(accountSID, authToken, fromNumber string, timeout time.Duration, log *logger.Logger) *TwilioSender {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	// The Twilio REST client does not take a context; the client timeout is
	// the bound on a hung provider call.
	client.SetTimeout(timeout)

	return &TwilioSender{
		client: client,
		from:   fromNumber,
		token:  authToken,
		log:    log,
	}
}

func (s *TwilioSender) Name() string { return "twilio" }

func (s *TwilioSender) Send(ctx context.Context, toPhone, body string) (SendResult, error) {
	if err := ctx.Err(); err != nil {
		return SendResult{}, err
	}

	normalized := phone.NormalizeE164(toPhone)

	params := &twilioapi.CreateMessageParams{}
	params.SetTo("whatsapp:" + normalized)
	params.SetFrom("whatsapp:" + s.from)
	params.SetBody(body)

	resp, err := s.client.Api.CreateMessage(params)
	if err != nil {
		return SendResult{}, fmt.Errorf("twilio send failed: %s", sanitize.ProviderError(err.Error(), s.token))
	}
	if resp.Sid == nil || *resp.Sid == "" {
		return SendResult{}, fmt.Errorf("twilio send returned no message sid")
	}

	s.log.Info("whatsapp sent via twilio", "phone", strings.TrimPrefix(normalized, "+"), "messageId", *resp.Sid)
	return SendResult{Provider: s.Name(), ProviderMessageID: *resp.Sid, SentAt: time.Now().UTC()}, nil
}
