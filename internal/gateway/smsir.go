package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/mallsoft/peyk/internal/config"
)

const smsirBaseURL = "https://api.sms.ir/v1"

// SMSIR is the gateway client for api.sms.ir
type SMSIR struct {
	apiKey  string
	sender  string
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// NewSMSIR creates an SMS.ir gateway client
func NewSMSIR(cfg config.GatewayConfig, logger *slog.Logger) *SMSIR {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = smsirBaseURL
	}
	return &SMSIR{
		apiKey:  cfg.APIKey,
		sender:  cfg.SenderNumber,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: cfg.Timeout},
		logger:  logger,
	}
}

type smsirSendRequest struct {
	LineNumber  string   `json:"lineNumber"`
	MessageText string   `json:"messageText"`
	Mobiles     []string `json:"mobiles"`
}

type smsirEnvelope struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
	Data    struct {
		MessageIDs []int64 `json:"messageIds"`
		Cost       float64 `json:"cost"`

		// Delivery report fields
		DeliveryState int `json:"deliveryState"`
	} `json:"data"`
}

// SMS.ir delivery state for a message confirmed on the handset.
const smsirDelivered = 1

// Send submits one message via the SMS.ir HTTP API
func (s *SMSIR) Send(ctx context.Context, mobile, message, sender string) (*SendResult, error) {
	if sender == "" {
		sender = s.sender
	}

	payload, err := json.Marshal(smsirSendRequest{
		LineNumber:  sender,
		MessageText: message,
		Mobiles:     []string{mobile},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal send request: %w", err)
	}

	raw, envelope, httpStatus, err := s.do(ctx, http.MethodPost, "/send/bulk", payload)
	if err != nil {
		return nil, err
	}

	if httpStatus == http.StatusUnauthorized || httpStatus == http.StatusForbidden {
		return nil, fmt.Errorf("%w: smsir rejected credentials (http %d)", ErrUnavailable, httpStatus)
	}

	if envelope.Status != 1 || len(envelope.Data.MessageIDs) == 0 {
		return &SendResult{
			Accepted:    false,
			Reason:      envelope.Message,
			RawResponse: raw,
		}, nil
	}

	return &SendResult{
		Accepted:    true,
		MessageID:   fmt.Sprintf("%d", envelope.Data.MessageIDs[0]),
		Cost:        int64(envelope.Data.Cost),
		RawResponse: raw,
	}, nil
}

// CheckDelivery polls SMS.ir for a delivery confirmation
func (s *SMSIR) CheckDelivery(ctx context.Context, messageID string) (*DeliveryStatus, error) {
	_, envelope, _, err := s.do(ctx, http.MethodGet, "/send/"+messageID, nil)
	if err != nil {
		return nil, err
	}

	if envelope.Status != 1 {
		return nil, fmt.Errorf("smsir status check failed: %s", envelope.Message)
	}

	return &DeliveryStatus{Delivered: envelope.Data.DeliveryState == smsirDelivered}, nil
}

func (s *SMSIR) do(ctx context.Context, method, path string, payload []byte) (string, *smsirEnvelope, int, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, body)
	if err != nil {
		return "", nil, 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-KEY", s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", nil, 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", nil, 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	envelope := &smsirEnvelope{}
	if err := json.Unmarshal(data, envelope); err != nil {
		return "", nil, resp.StatusCode, fmt.Errorf("%w: invalid response: %v", ErrUnavailable, err)
	}

	s.logger.Debug("smsir response",
		"path", path,
		"http_status", resp.StatusCode,
		"provider_status", envelope.Status,
	)

	return string(data), envelope, resp.StatusCode, nil
}
