package campaign

import "time"

// ReportStatus tracks one recipient's message through the gateway
type ReportStatus string

const (
	ReportPending   ReportStatus = "pending"
	ReportSent      ReportStatus = "sent"
	ReportDelivered ReportStatus = "delivered"
	ReportFailed    ReportStatus = "failed"
	ReportRejected  ReportStatus = "rejected"
)

// Settled reports whether the report can no longer change, except for a
// sent report being confirmed delivered by the reconciler.
func (s ReportStatus) Settled() bool {
	return s == ReportDelivered || s == ReportFailed || s == ReportRejected
}

// DeliveryReport records one message to one recipient of a campaign.
// There is at most one report per (campaign, mobile) pair; a resumed
// campaign reuses the existing reports to skip recipients already
// handled.
type DeliveryReport struct {
	ID         string `json:"id"`
	CampaignID string `json:"campaign_id"`
	StoreID    string `json:"store_id"`
	CustomerID string `json:"customer_id,omitempty"`
	Name       string `json:"name,omitempty"`
	Mobile     string `json:"mobile"`

	// Message is the rendered text as handed to the gateway, materialized
	// so the record survives template edits.
	Message string `json:"message,omitempty"`

	Status           ReportStatus `json:"status"`
	GatewayMessageID string       `json:"gateway_message_id,omitempty"`
	FailureReason    string       `json:"failure_reason,omitempty"`
	Cost             int64        `json:"cost,omitempty"` // Rials

	CreatedAt   time.Time  `json:"created_at"`
	SentAt      *time.Time `json:"sent_at,omitempty"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
}
