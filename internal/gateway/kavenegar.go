package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/mallsoft/peyk/internal/config"
)

const kavenegarBaseURL = "https://api.kavenegar.com/v1"

// Kavenegar delivery status codes that mean the message reached the handset.
const (
	kavenegarStatusDelivered = 4
	kavenegarStatusReached   = 8
)

// Kavenegar is the gateway client for api.kavenegar.com
type Kavenegar struct {
	apiKey  string
	sender  string
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// NewKavenegar creates a Kavenegar gateway client
func NewKavenegar(cfg config.GatewayConfig, logger *slog.Logger) *Kavenegar {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = kavenegarBaseURL
	}
	return &Kavenegar{
		apiKey:  cfg.APIKey,
		sender:  cfg.SenderNumber,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: cfg.Timeout},
		logger:  logger,
	}
}

type kavenegarEnvelope struct {
	Return struct {
		Status  int    `json:"status"`
		Message string `json:"message"`
	} `json:"return"`
	Entries []struct {
		MessageID json.Number `json:"messageid"`
		Status    int         `json:"status"`
		Cost      int64       `json:"cost"`
	} `json:"entries"`
}

// Send submits one message via the Kavenegar HTTP API
func (k *Kavenegar) Send(ctx context.Context, mobile, message, sender string) (*SendResult, error) {
	if sender == "" {
		sender = k.sender
	}

	form := url.Values{
		"receptor": {mobile},
		"message":  {message},
		"sender":   {sender},
	}

	raw, envelope, err := k.post(ctx, "/sms/send.json", form)
	if err != nil {
		return nil, err
	}

	if envelope.Return.Status != 200 || len(envelope.Entries) == 0 {
		// Auth failures take down the whole batch; anything else is a
		// single-recipient rejection.
		if envelope.Return.Status == 401 || envelope.Return.Status == 403 {
			return nil, fmt.Errorf("%w: kavenegar status %d: %s", ErrUnavailable, envelope.Return.Status, envelope.Return.Message)
		}
		return &SendResult{
			Accepted:    false,
			Reason:      envelope.Return.Message,
			RawResponse: raw,
		}, nil
	}

	entry := envelope.Entries[0]
	return &SendResult{
		Accepted:    true,
		MessageID:   entry.MessageID.String(),
		Cost:        entry.Cost,
		RawResponse: raw,
	}, nil
}

// CheckDelivery polls Kavenegar for a delivery confirmation
func (k *Kavenegar) CheckDelivery(ctx context.Context, messageID string) (*DeliveryStatus, error) {
	form := url.Values{"messageid": {messageID}}

	_, envelope, err := k.post(ctx, "/sms/status.json", form)
	if err != nil {
		return nil, err
	}

	if envelope.Return.Status != 200 || len(envelope.Entries) == 0 {
		return nil, fmt.Errorf("kavenegar status check failed: %s", envelope.Return.Message)
	}

	status := envelope.Entries[0].Status
	return &DeliveryStatus{
		Delivered: status == kavenegarStatusDelivered || status == kavenegarStatusReached,
	}, nil
}

func (k *Kavenegar) post(ctx context.Context, path string, form url.Values) (string, *kavenegarEnvelope, error) {
	endpoint := fmt.Sprintf("%s/%s%s", k.baseURL, k.apiKey, path)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := k.client.Do(req)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	envelope := &kavenegarEnvelope{}
	if err := json.Unmarshal(body, envelope); err != nil {
		return "", nil, fmt.Errorf("%w: invalid response: %v", ErrUnavailable, err)
	}

	k.logger.Debug("kavenegar response",
		"path", path,
		"http_status", resp.StatusCode,
		"provider_status", envelope.Return.Status,
	)

	return string(body), envelope, nil
}
