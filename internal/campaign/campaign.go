package campaign

import (
	"errors"
	"fmt"
	"time"

	"github.com/mallsoft/peyk/internal/recipient"
)

// Status represents the lifecycle state of a campaign
type Status string

const (
	StatusDraft     Status = "draft"
	StatusScheduled Status = "scheduled"
	StatusSending   Status = "sending"
	StatusCompleted Status = "completed"
	StatusPaused    Status = "paused"
	StatusCancelled Status = "cancelled"
	StatusFailed    Status = "failed"
)

// ErrInvalidTransition is returned for a status change the state machine
// does not allow
var ErrInvalidTransition = errors.New("invalid campaign status transition")

// transitions is the allowed status graph. Terminal states have no
// outgoing edges; a recurring campaign continues as a fresh instance,
// never by re-entering sending.
var transitions = map[Status][]Status{
	StatusDraft:     {StatusScheduled, StatusSending, StatusCancelled},
	StatusScheduled: {StatusSending, StatusCancelled},
	StatusSending:   {StatusPaused, StatusCompleted, StatusCancelled, StatusFailed},
	StatusPaused:    {StatusSending, StatusCancelled},
}

// CanTransitionTo reports whether the state machine allows moving to next
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether the status has no outgoing transitions
func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

// SendType selects when a campaign goes out
type SendType string

const (
	SendImmediate SendType = "immediate"
	SendScheduled SendType = "scheduled"
	SendRecurring SendType = "recurring"
)

// Frequency is the unit of a recurrence pattern
type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
)

// Recurrence describes how often a recurring campaign re-spawns.
// Intervals are fixed-length: monthly means 30 days, matching how
// operators already priced and planned these campaigns.
type Recurrence struct {
	Frequency Frequency `json:"frequency"`
	Interval  int       `json:"interval"`
}

// Validate checks the recurrence pattern
func (r *Recurrence) Validate() error {
	switch r.Frequency {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly:
	default:
		return fmt.Errorf("unknown recurrence frequency: %q", r.Frequency)
	}
	if r.Interval < 1 {
		return fmt.Errorf("recurrence interval must be at least 1")
	}
	return nil
}

// NextAfter returns the earliest time a new instance is due after the
// given completion time.
func (r *Recurrence) NextAfter(completed time.Time) time.Time {
	switch r.Frequency {
	case FrequencyDaily:
		return completed.AddDate(0, 0, r.Interval)
	case FrequencyWeekly:
		return completed.AddDate(0, 0, r.Interval*7)
	case FrequencyMonthly:
		return completed.AddDate(0, 0, r.Interval*30)
	default:
		return completed
	}
}

// Campaign is one SMS campaign of a store
type Campaign struct {
	ID          string `json:"id"`
	StoreID     string `json:"store_id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`

	// Message source: a template reference or an inline message.
	// The inline message wins when both are set.
	TemplateID string `json:"template_id,omitempty"`
	Message    string `json:"message,omitempty"`

	// Free-form marketing variables merged into the render context
	// (discount codes, amounts).
	Variables map[string]string `json:"variables,omitempty"`

	// Targeting
	SegmentIDs       []string           `json:"segment_ids,omitempty"`
	CustomRecipients []recipient.Custom `json:"custom_recipients,omitempty"`

	// Scheduling
	SendType    SendType    `json:"send_type"`
	ScheduledAt *time.Time  `json:"scheduled_at,omitempty"`
	Recurrence  *Recurrence `json:"recurrence,omitempty"`
	ParentID    string      `json:"parent_id,omitempty"` // recurring lineage

	Status        Status `json:"status"`
	FailureReason string `json:"failure_reason,omitempty"`

	// Aggregate counters. Sent and failed counts are incremented as the
	// dispatcher processes recipients; the delivered count is recomputed
	// from reports by the reconciler.
	TotalRecipients int `json:"total_recipients"`
	SentCount       int `json:"sent_count"`
	DeliveredCount  int `json:"delivered_count"`
	FailedCount     int `json:"failed_count"`

	// Costs in Rials
	EstimatedCost int64 `json:"estimated_cost"`
	ActualCost    int64 `json:"actual_cost"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Validate checks a campaign definition before it enters the state machine
func (c *Campaign) Validate() error {
	if c.StoreID == "" {
		return fmt.Errorf("campaign store_id is required")
	}
	if c.Name == "" {
		return fmt.Errorf("campaign name is required")
	}
	if c.TemplateID == "" && c.Message == "" {
		return fmt.Errorf("campaign requires a template or an inline message")
	}
	if len(c.SegmentIDs) == 0 && len(c.CustomRecipients) == 0 {
		return fmt.Errorf("campaign requires at least one segment or custom recipient")
	}

	switch c.SendType {
	case SendImmediate:
	case SendScheduled:
		if c.ScheduledAt == nil {
			return fmt.Errorf("scheduled campaign requires scheduled_at")
		}
	case SendRecurring:
		if c.Recurrence == nil {
			return fmt.Errorf("recurring campaign requires a recurrence pattern")
		}
	default:
		return fmt.Errorf("unknown send type: %q", c.SendType)
	}

	if c.Recurrence != nil {
		if err := c.Recurrence.Validate(); err != nil {
			return err
		}
	}

	return nil
}

// Recurring reports whether this campaign spawns new instances
func (c *Campaign) Recurring() bool {
	return c.SendType == SendRecurring && c.Recurrence != nil
}

// SuccessRate returns delivered/sent as a percentage
func (c *Campaign) SuccessRate() float64 {
	if c.SentCount == 0 {
		return 0
	}
	return float64(c.DeliveredCount) / float64(c.SentCount) * 100
}

// ListFilter contains filters for listing campaigns
type ListFilter struct {
	Status Status
}
