package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mallsoft/peyk/internal/config"
)

// ErrUnavailable marks a systemic gateway failure: unreachable endpoint,
// rejected credentials, malformed provider response. The dispatcher aborts
// the whole campaign on this error, unlike a per-recipient rejection.
var ErrUnavailable = errors.New("sms gateway unavailable")

// SendResult is the gateway's synchronous acknowledgment of one message
type SendResult struct {
	Accepted    bool   `json:"accepted"`
	MessageID   string `json:"message_id,omitempty"`
	Cost        int64  `json:"cost,omitempty"` // Rials
	Reason      string `json:"reason,omitempty"`
	RawResponse string `json:"raw_response,omitempty"`
}

// DeliveryStatus is the result of an asynchronous delivery check
type DeliveryStatus struct {
	Delivered bool `json:"delivered"`
}

// Gateway abstracts the external SMS provider. Send returns a non-nil
// SendResult with Accepted=false for a per-recipient rejection and
// ErrUnavailable for failures that affect the whole batch.
type Gateway interface {
	// Send submits one message for delivery
	Send(ctx context.Context, mobile, message, sender string) (*SendResult, error)

	// CheckDelivery polls the provider for a delivery confirmation
	CheckDelivery(ctx context.Context, messageID string) (*DeliveryStatus, error)
}

// New constructs the gateway selected by configuration. The provider set
// is closed; adding a provider means adding a config constant and a case
// here.
func New(cfg config.GatewayConfig, logger *slog.Logger) (Gateway, error) {
	switch cfg.Provider {
	case config.ProviderSandbox:
		return NewSandbox(cfg.FailureRate, logger), nil
	case config.ProviderKavenegar:
		return NewKavenegar(cfg, logger), nil
	case config.ProviderSMSIR:
		return NewSMSIR(cfg, logger), nil
	default:
		return nil, fmt.Errorf("unknown gateway provider: %q", cfg.Provider)
	}
}
