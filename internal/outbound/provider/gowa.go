package provider

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"leadpulse_backend/platform/logger"
	"leadpulse_backend/platform/phone"
	"leadpulse_backend/platform/sanitize"

	"github.com/google/uuid"
)

// GowaSender talks to a go-whatsapp-web-multidevice gateway.
type GowaSender struct {
	baseURL  string
	apiKey   string
	deviceID string
	http     *http.Client
	log      *logger.Logger
}

type gowaRequest struct {
	Phone   string `json:"phone"`
	Message string `json:"message"`
}

type gowaResponse struct {
	Results struct {
		MessageID string `json:"message_id"`
	} `json:"results"`
}

func NewGowaSender(baseURL, apiKey, deviceID string, timeout time.Duration, log *logger.Logger) *GowaSender {
	return &GowaSender{
		baseURL:  strings.TrimRight(baseURL, "/"),
		apiKey:   apiKey,
		deviceID: deviceID,
		http:     &http.Client{Timeout: timeout},
		log:      log,
	}
}

func (s *GowaSender) Name() string { return "gowa" }

func (s *GowaSender) Send(ctx context.Context, toPhone, body string) (SendResult, error) {
	normalized := strings.TrimPrefix(phone.NormalizeE164(toPhone), "+")

	payload, err := json.Marshal(gowaRequest{Phone: normalized, Message: body})
	if err != nil {
		return SendResult{}, fmt.Errorf("marshal gowa payload: %w", err)
	}

	url := fmt.Sprintf("%s/send/message", s.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(payload))
	if err != nil {
		return SendResult{}, err
	}

	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", formatAuthHeader(s.apiKey))
	}
	if s.deviceID != "" {
		req.Header.Set("X-Device-Id", s.deviceID)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return SendResult{}, fmt.Errorf("gowa request failed: %s", sanitize.ProviderError(err.Error(), s.apiKey))
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= http.StatusBadRequest {
		return SendResult{}, fmt.Errorf("gowa service returned %d: %s",
			resp.StatusCode, sanitize.ProviderError(strings.TrimSpace(string(data)), s.apiKey))
	}

	var decoded gowaResponse
	messageID := ""
	if err := json.Unmarshal(data, &decoded); err == nil {
		messageID = decoded.Results.MessageID
	}
	if messageID == "" {
		// Gateway builds without message ids still count as sent.
		messageID = "gowa-" + uuid.NewString()
	}

	s.log.Info("whatsapp sent via gowa", "phone", normalized, "messageId", messageID)
	return SendResult{Provider: s.Name(), ProviderMessageID: messageID, SentAt: time.Now().UTC()}, nil
}

func formatAuthHeader(apiKey string) string {
	if strings.HasPrefix(strings.ToLower(apiKey), "basic ") {
		return apiKey
	}

	encoded := base64.StdEncoding.EncodeToString([]byte(apiKey))
	return "Basic " + encoded
}
