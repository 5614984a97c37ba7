package campaign

import (
	"testing"
	"time"
)

func TestStatusTransitions(t *testing.T) {
	tests := []struct {
		from    Status
		to      Status
		allowed bool
	}{
		{StatusDraft, StatusScheduled, true},
		{StatusDraft, StatusSending, true},
		{StatusDraft, StatusCancelled, true},
		{StatusDraft, StatusCompleted, false},
		{StatusScheduled, StatusSending, true},
		{StatusScheduled, StatusCancelled, true},
		{StatusScheduled, StatusPaused, false},
		{StatusSending, StatusPaused, true},
		{StatusSending, StatusCompleted, true},
		{StatusSending, StatusCancelled, true},
		{StatusSending, StatusFailed, true},
		{StatusSending, StatusDraft, false},
		{StatusPaused, StatusSending, true},
		{StatusPaused, StatusCancelled, true},
		{StatusPaused, StatusCompleted, false},
		{StatusCompleted, StatusSending, false},
		{StatusCancelled, StatusSending, false},
		{StatusFailed, StatusSending, false},
	}

	for _, tt := range tests {
		if got := tt.from.CanTransitionTo(tt.to); got != tt.allowed {
			t.Errorf("CanTransitionTo(%s -> %s) = %v, want %v", tt.from, tt.to, got, tt.allowed)
		}
	}
}

func TestStatusTerminal(t *testing.T) {
	terminal := []Status{StatusCompleted, StatusCancelled, StatusFailed}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("expected %s to be terminal", s)
		}
	}

	active := []Status{StatusDraft, StatusScheduled, StatusSending, StatusPaused}
	for _, s := range active {
		if s.Terminal() {
			t.Errorf("expected %s to not be terminal", s)
		}
	}
}

func TestRecurrenceNextAfter(t *testing.T) {
	completed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		recurrence Recurrence
		want       time.Time
	}{
		{Recurrence{FrequencyDaily, 1}, completed.AddDate(0, 0, 1)},
		{Recurrence{FrequencyDaily, 3}, completed.AddDate(0, 0, 3)},
		{Recurrence{FrequencyWeekly, 1}, completed.AddDate(0, 0, 7)},
		{Recurrence{FrequencyWeekly, 2}, completed.AddDate(0, 0, 14)},
		{Recurrence{FrequencyMonthly, 1}, completed.AddDate(0, 0, 30)},
	}

	for _, tt := range tests {
		if got := tt.recurrence.NextAfter(completed); !got.Equal(tt.want) {
			t.Errorf("NextAfter(%s/%d) = %v, want %v", tt.recurrence.Frequency, tt.recurrence.Interval, got, tt.want)
		}
	}
}

func TestCampaignValidate(t *testing.T) {
	valid := Campaign{
		StoreID:    "store-1",
		Name:       "Spring sale",
		Message:    "sale is on",
		SegmentIDs: []string{"seg-1"},
		SendType:   SendImmediate,
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("expected valid campaign, got %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Campaign)
	}{
		{"missing store", func(c *Campaign) { c.StoreID = "" }},
		{"missing name", func(c *Campaign) { c.Name = "" }},
		{"no message source", func(c *Campaign) { c.Message = ""; c.TemplateID = "" }},
		{"no recipients", func(c *Campaign) { c.SegmentIDs = nil; c.CustomRecipients = nil }},
		{"scheduled without time", func(c *Campaign) { c.SendType = SendScheduled }},
		{"recurring without pattern", func(c *Campaign) { c.SendType = SendRecurring }},
		{"unknown send type", func(c *Campaign) { c.SendType = "someday" }},
		{"bad frequency", func(c *Campaign) {
			c.SendType = SendRecurring
			c.Recurrence = &Recurrence{Frequency: "hourly", Interval: 1}
		}},
		{"bad interval", func(c *Campaign) {
			c.SendType = SendRecurring
			c.Recurrence = &Recurrence{Frequency: FrequencyDaily, Interval: 0}
		}},
	}

	for _, tt := range tests {
		c := valid
		tt.mutate(&c)
		if err := c.Validate(); err == nil {
			t.Errorf("%s: expected validation error", tt.name)
		}
	}
}
