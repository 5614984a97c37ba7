package campaign

import (
	"context"
	"time"
)

// Summary aggregates campaign performance for one store
type Summary struct {
	Campaigns int `json:"campaigns"`
	Active    int `json:"active"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`

	TotalRecipients int `json:"total_recipients"`
	SentCount       int `json:"sent_count"`
	DeliveredCount  int `json:"delivered_count"`
	FailedCount     int `json:"failed_count"`

	ActualCost int64 `json:"actual_cost"` // Rials

	// DeliveryRate is delivered over sent, as a percentage
	DeliveryRate float64 `json:"delivery_rate"`
}

// Summarize aggregates the campaigns of a store created at or after
// since. A zero since covers everything.
func (s *BoltStorage) Summarize(ctx context.Context, storeID string, since time.Time) (*Summary, error) {
	campaigns, err := s.List(ctx, storeID, ListFilter{})
	if err != nil {
		return nil, err
	}

	sum := &Summary{}
	for _, c := range campaigns {
		if !since.IsZero() && c.CreatedAt.Before(since) {
			continue
		}

		sum.Campaigns++
		switch c.Status {
		case StatusSending, StatusPaused:
			sum.Active++
		case StatusCompleted:
			sum.Completed++
		case StatusFailed:
			sum.Failed++
		}

		sum.TotalRecipients += c.TotalRecipients
		sum.SentCount += c.SentCount
		sum.DeliveredCount += c.DeliveredCount
		sum.FailedCount += c.FailedCount
		sum.ActualCost += c.ActualCost
	}

	if sum.SentCount > 0 {
		sum.DeliveryRate = float64(sum.DeliveredCount) / float64(sum.SentCount) * 100
	}

	return sum, nil
}

// TemplatePerformance aggregates campaign outcomes per template
type TemplatePerformance struct {
	TemplateID string `json:"template_id"`

	Campaigns      int   `json:"campaigns"`
	SentCount      int   `json:"sent_count"`
	DeliveredCount int   `json:"delivered_count"`
	FailedCount    int   `json:"failed_count"`
	ActualCost     int64 `json:"actual_cost"` // Rials

	DeliveryRate float64 `json:"delivery_rate"`
}

// TemplateStats aggregates the campaigns of a store by template, created
// at or after since. Campaigns with only an inline message are skipped.
func (s *BoltStorage) TemplateStats(ctx context.Context, storeID string, since time.Time) ([]*TemplatePerformance, error) {
	campaigns, err := s.List(ctx, storeID, ListFilter{})
	if err != nil {
		return nil, err
	}

	byTemplate := make(map[string]*TemplatePerformance)
	var order []string
	for _, c := range campaigns {
		if c.TemplateID == "" {
			continue
		}
		if !since.IsZero() && c.CreatedAt.Before(since) {
			continue
		}

		perf, ok := byTemplate[c.TemplateID]
		if !ok {
			perf = &TemplatePerformance{TemplateID: c.TemplateID}
			byTemplate[c.TemplateID] = perf
			order = append(order, c.TemplateID)
		}

		perf.Campaigns++
		perf.SentCount += c.SentCount
		perf.DeliveredCount += c.DeliveredCount
		perf.FailedCount += c.FailedCount
		perf.ActualCost += c.ActualCost
	}

	stats := make([]*TemplatePerformance, 0, len(order))
	for _, id := range order {
		perf := byTemplate[id]
		if perf.SentCount > 0 {
			perf.DeliveryRate = float64(perf.DeliveredCount) / float64(perf.SentCount) * 100
		}
		stats = append(stats, perf)
	}
	return stats, nil
}
