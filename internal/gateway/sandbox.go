package gateway

import (
	"context"
	"io"
	"log/slog"
	"math/rand"
	"sync"

	"github.com/google/uuid"
)

// Sandbox is an in-process gateway that accepts every well-formed send
// without touching a real provider. A configurable failure rate simulates
// per-recipient rejections for testing dispatch behavior. Messages sent
// through the sandbox are remembered so delivery checks can confirm them.
type Sandbox struct {
	failureRate float64
	logger      *slog.Logger

	mu   sync.Mutex
	rng  *rand.Rand
	sent map[string]bool // message ID -> delivered
}

// NewSandbox creates a sandbox gateway
func NewSandbox(failureRate float64, logger *slog.Logger) *Sandbox {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Sandbox{
		failureRate: failureRate,
		logger:      logger,
		rng:         rand.New(rand.NewSource(1)),
		sent:        make(map[string]bool),
	}
}

// Send simulates a gateway send
func (s *Sandbox) Send(ctx context.Context, mobile, message, sender string) (*SendResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failureRate > 0 && s.rng.Float64() < s.failureRate {
		s.logger.Debug("sandbox rejected message", "mobile", mobile)
		return &SendResult{
			Accepted: false,
			Reason:   "simulated rejection",
		}, nil
	}

	id := uuid.New().String()
	s.sent[id] = true

	s.logger.Debug("sandbox accepted message", "mobile", mobile, "message_id", id, "length", len(message))
	return &SendResult{
		Accepted:  true,
		MessageID: id,
		Cost:      500,
	}, nil
}

// CheckDelivery confirms delivery for any message the sandbox accepted
func (s *Sandbox) CheckDelivery(ctx context.Context, messageID string) (*DeliveryStatus, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return &DeliveryStatus{Delivered: s.sent[messageID]}, nil
}
