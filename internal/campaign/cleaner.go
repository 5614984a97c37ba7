package campaign

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/mallsoft/peyk/internal/config"
)

// Cleaner deletes settled delivery reports of finished campaigns once
// they age out of the retention window. Campaign rows and their counters
// stay; only the per-recipient detail is dropped.
type Cleaner struct {
	storage *BoltStorage
	cfg     config.RetentionConfig
	logger  *slog.Logger
	wg      sync.WaitGroup
	done    chan struct{}
}

// NewCleaner creates a report retention cleaner
func NewCleaner(storage *BoltStorage, cfg config.RetentionConfig, logger *slog.Logger) *Cleaner {
	return &Cleaner{
		storage: storage,
		cfg:     cfg,
		logger:  logger,
		done:    make(chan struct{}),
	}
}

// Start starts the cleanup loop. A zero max age disables cleanup.
func (c *Cleaner) Start(ctx context.Context) {
	if c.cfg.ReportMaxAge <= 0 || c.cfg.CleanupInterval <= 0 {
		return
	}

	c.wg.Add(1)
	go c.loop(ctx)

	c.logger.Info("report cleaner started",
		"max_age", c.cfg.ReportMaxAge,
		"interval", c.cfg.CleanupInterval,
	)
}

// Stop stops the cleaner and waits for the loop to finish
func (c *Cleaner) Stop() {
	close(c.done)
	c.wg.Wait()
}

func (c *Cleaner) loop(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.CleanupInterval)
	defer ticker.Stop()

	// Run cleanup immediately on start
	c.runCleanup(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case <-ticker.C:
			c.runCleanup(ctx)
		}
	}
}

func (c *Cleaner) runCleanup(ctx context.Context) {
	deleted, err := c.storage.CleanupReports(ctx, c.cfg.ReportMaxAge)
	if err != nil {
		c.logger.Error("failed to cleanup delivery reports", "error", err)
		return
	}

	if deleted > 0 {
		c.logger.Info("cleaned up delivery reports", "deleted", deleted)
	}
}

// CleanupReports deletes settled reports older than maxAge that belong to
// terminal campaigns. Returns the number of deleted reports.
func (s *BoltStorage) CleanupReports(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := time.Now().Add(-maxAge)
	deleted := 0

	err := s.db.Update(func(tx *bolt.Tx) error {
		campaigns := tx.Bucket(bucketCampaigns)
		reports := tx.Bucket(bucketReports)
		mobiles := tx.Bucket(bucketReportMobiles)

		terminal := make(map[string]bool) // campaign ID -> terminal

		// Collect first; deleting under a live cursor repositions it.
		var expired []*DeliveryReport
		cursor := reports.Cursor()
		for k, v := cursor.First(); k != nil; k, v = cursor.Next() {
			var r DeliveryReport
			if err := json.Unmarshal(v, &r); err != nil {
				continue
			}
			if r.CreatedAt.After(cutoff) {
				continue
			}
			// Sent reports stay until the reconciler settles them.
			if !r.Status.Settled() {
				continue
			}

			isTerminal, seen := terminal[r.CampaignID]
			if !seen {
				isTerminal = campaignTerminal(campaigns, r.StoreID, r.CampaignID)
				terminal[r.CampaignID] = isTerminal
			}
			if !isTerminal {
				continue
			}

			report := r
			expired = append(expired, &report)
		}

		for _, r := range expired {
			if err := reports.Delete(reportKey(r.CampaignID, r.ID)); err != nil {
				return err
			}
			if err := mobiles.Delete(reportKey(r.CampaignID, r.Mobile)); err != nil {
				return err
			}
			deleted++
		}
		return nil
	})

	return deleted, err
}

func campaignTerminal(campaigns *bolt.Bucket, storeID, campaignID string) bool {
	data := campaigns.Get(campaignKey(storeID, campaignID))
	if data == nil {
		// Orphaned report, the campaign is gone.
		return true
	}
	var c Campaign
	if err := json.Unmarshal(data, &c); err != nil {
		return false
	}
	return c.Status.Terminal()
}
