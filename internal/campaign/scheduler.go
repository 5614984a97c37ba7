package campaign

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Scheduler promotes due scheduled campaigns into sending and spawns new
// instances of recurring campaigns whose interval has elapsed.
type Scheduler struct {
	storage    *BoltStorage
	dispatcher *Dispatcher
	logger     *slog.Logger
}

// NewScheduler creates a campaign scheduler
func NewScheduler(storage *BoltStorage, dispatcher *Dispatcher, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		storage:    storage,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// RunOnce performs one scheduler sweep at the given time
func (s *Scheduler) RunOnce(ctx context.Context, now time.Time) error {
	if err := s.promoteDue(ctx, now); err != nil {
		return err
	}
	return s.spawnRecurring(ctx, now)
}

// promoteDue starts every scheduled campaign whose scheduled_at has passed
func (s *Scheduler) promoteDue(ctx context.Context, now time.Time) error {
	due, err := s.storage.AllByStatus(ctx, StatusScheduled)
	if err != nil {
		return fmt.Errorf("failed to list scheduled campaigns: %w", err)
	}

	for _, c := range due {
		if c.ScheduledAt == nil || c.ScheduledAt.After(now) {
			continue
		}

		s.logger.Info("starting scheduled campaign",
			"campaign_id", c.ID,
			"store_id", c.StoreID,
			"scheduled_at", c.ScheduledAt,
		)

		if _, err := s.dispatcher.Start(ctx, c.StoreID, c.ID); err != nil {
			s.logger.Error("failed to start scheduled campaign", "campaign_id", c.ID, "error", err)
		}
	}

	return nil
}

// spawnRecurring creates and starts a fresh instance for each completed
// recurring campaign whose interval has elapsed. The due time is measured
// from the later of the parent's completion and the newest child's
// creation, so a redundant sweep inside the same interval cannot spawn a
// second instance.
func (s *Scheduler) spawnRecurring(ctx context.Context, now time.Time) error {
	completed, err := s.storage.AllByStatus(ctx, StatusCompleted)
	if err != nil {
		return fmt.Errorf("failed to list completed campaigns: %w", err)
	}

	for _, c := range completed {
		if !c.Recurring() || c.CompletedAt == nil {
			continue
		}
		// Children carry the parent's lineage themselves; only the root
		// of a recurring chain spawns.
		if c.ParentID != "" {
			continue
		}

		base := *c.CompletedAt
		children, err := s.storage.Children(ctx, c.StoreID, c.ID)
		if err != nil {
			s.logger.Error("failed to list campaign children", "campaign_id", c.ID, "error", err)
			continue
		}
		for _, child := range children {
			if child.CreatedAt.After(base) {
				base = child.CreatedAt
			}
		}

		if now.Before(c.Recurrence.NextAfter(base)) {
			continue
		}

		if err := s.spawnChild(ctx, c, now); err != nil {
			s.logger.Error("failed to spawn recurring campaign", "campaign_id", c.ID, "error", err)
		}
	}

	return nil
}

func (s *Scheduler) spawnChild(ctx context.Context, parent *Campaign, now time.Time) error {
	child := &Campaign{
		StoreID:          parent.StoreID,
		Name:             fmt.Sprintf("%s - %s", parent.Name, now.Format("2006-01-02")),
		Description:      parent.Description,
		TemplateID:       parent.TemplateID,
		Message:          parent.Message,
		Variables:        parent.Variables,
		SegmentIDs:       parent.SegmentIDs,
		CustomRecipients: parent.CustomRecipients,
		SendType:         SendImmediate,
		ParentID:         parent.ID,
		Status:           StatusDraft,
	}

	if err := s.storage.Create(ctx, child); err != nil {
		return err
	}

	s.logger.Info("spawned recurring campaign instance",
		"parent_id", parent.ID,
		"campaign_id", child.ID,
		"store_id", child.StoreID,
	)

	_, err := s.dispatcher.Start(ctx, child.StoreID, child.ID)
	return err
}
