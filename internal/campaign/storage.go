package campaign

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketCampaigns     = []byte("campaigns")
	bucketReports       = []byte("reports")
	bucketReportMobiles = []byte("report_mobiles")
)

// ErrNotFound is returned when a campaign or report does not exist
var ErrNotFound = errors.New("campaign not found")

// ErrInUse is returned when deletion is blocked by a referencing campaign
var ErrInUse = errors.New("resource is referenced by an active campaign")

// BoltStorage persists campaigns and delivery reports in BoltDB.
// Campaign keys are "<store_id>/<campaign_id>"; report keys are
// "<campaign_id>/<report_id>" so a prefix scan yields one campaign's
// reports and a cascade delete is a prefix delete. The report_mobiles
// bucket maps "<campaign_id>/<mobile>" to a report ID and enforces the
// one-report-per-recipient rule.
type BoltStorage struct {
	db *bolt.DB
}

// NewBoltStorage opens the database file and creates the campaign buckets
func NewBoltStorage(path string) (*BoltStorage, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{
		Timeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketCampaigns, bucketReports, bucketReportMobiles} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStorage{db: db}, nil
}

// DB exposes the underlying database so other storages can share the file
func (s *BoltStorage) DB() *bolt.DB {
	return s.db
}

// Close closes the database
func (s *BoltStorage) Close() error {
	return s.db.Close()
}

func campaignKey(storeID, id string) []byte {
	return []byte(storeID + "/" + id)
}

func reportKey(campaignID, id string) []byte {
	return []byte(campaignID + "/" + id)
}

func prefix(id string) []byte {
	return []byte(id + "/")
}

func hasPrefix(key, prefix []byte) bool {
	if len(key) < len(prefix) {
		return false
	}
	for i := range prefix {
		if key[i] != prefix[i] {
			return false
		}
	}
	return true
}

// Create stores a new campaign in draft status
func (s *BoltStorage) Create(ctx context.Context, c *Campaign) error {
	if err := c.Validate(); err != nil {
		return err
	}

	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.Status == "" {
		c.Status = StatusDraft
	}
	now := time.Now()
	c.CreatedAt = now
	c.UpdatedAt = now

	return s.db.Update(func(tx *bolt.Tx) error {
		return putCampaign(tx, c)
	})
}

// Get returns a campaign by store and ID
func (s *BoltStorage) Get(ctx context.Context, storeID, id string) (*Campaign, error) {
	var c *Campaign

	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketCampaigns).Get(campaignKey(storeID, id))
		if data == nil {
			return ErrNotFound
		}
		c = &Campaign{}
		return json.Unmarshal(data, c)
	})

	return c, err
}

// Update persists campaign changes
func (s *BoltStorage) Update(ctx context.Context, c *Campaign) error {
	c.UpdatedAt = time.Now()

	return s.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketCampaigns).Get(campaignKey(c.StoreID, c.ID)) == nil {
			return ErrNotFound
		}
		return putCampaign(tx, c)
	})
}

// Delete removes a campaign and all its delivery reports
func (s *BoltStorage) Delete(ctx context.Context, storeID, id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		campaigns := tx.Bucket(bucketCampaigns)
		key := campaignKey(storeID, id)
		if campaigns.Get(key) == nil {
			return ErrNotFound
		}
		if err := campaigns.Delete(key); err != nil {
			return err
		}

		for _, bucket := range []*bolt.Bucket{tx.Bucket(bucketReports), tx.Bucket(bucketReportMobiles)} {
			c := bucket.Cursor()
			p := prefix(id)
			for k, _ := c.Seek(p); k != nil && hasPrefix(k, p); k, _ = c.Next() {
				if err := bucket.Delete(k); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// List returns the campaigns of a store, ordered by ID, optionally
// filtered by status
func (s *BoltStorage) List(ctx context.Context, storeID string, filter ListFilter) ([]*Campaign, error) {
	var campaigns []*Campaign

	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketCampaigns).Cursor()
		p := prefix(storeID)

		for k, v := c.Seek(p); k != nil && hasPrefix(k, p); k, v = c.Next() {
			var camp Campaign
			if err := json.Unmarshal(v, &camp); err != nil {
				continue
			}
			if filter.Status != "" && camp.Status != filter.Status {
				continue
			}
			campaigns = append(campaigns, &camp)
		}
		return nil
	})

	return campaigns, err
}

// AllByStatus scans every store's campaigns for the given status. Used by
// the scheduler, which works across tenants.
func (s *BoltStorage) AllByStatus(ctx context.Context, status Status) ([]*Campaign, error) {
	var campaigns []*Campaign

	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketCampaigns).ForEach(func(k, v []byte) error {
			var camp Campaign
			if err := json.Unmarshal(v, &camp); err != nil {
				return nil
			}
			if camp.Status == status {
				campaigns = append(campaigns, &camp)
			}
			return nil
		})
	})

	return campaigns, err
}

// Children returns the campaigns spawned from a recurring parent
func (s *BoltStorage) Children(ctx context.Context, storeID, parentID string) ([]*Campaign, error) {
	var children []*Campaign

	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketCampaigns).Cursor()
		p := prefix(storeID)

		for k, v := c.Seek(p); k != nil && hasPrefix(k, p); k, v = c.Next() {
			var camp Campaign
			if err := json.Unmarshal(v, &camp); err != nil {
				continue
			}
			if camp.ParentID == parentID {
				children = append(children, &camp)
			}
		}
		return nil
	})

	return children, err
}

// Transition moves a campaign to the next status inside a single write
// transaction, enforcing the state machine against the stored status.
// mutate, if non-nil, runs on the campaign after the status change and
// before persisting.
func (s *BoltStorage) Transition(ctx context.Context, storeID, id string, next Status, mutate func(*Campaign)) (*Campaign, error) {
	var c *Campaign

	err := s.db.Update(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketCampaigns).Get(campaignKey(storeID, id))
		if data == nil {
			return ErrNotFound
		}

		c = &Campaign{}
		if err := json.Unmarshal(data, c); err != nil {
			return fmt.Errorf("failed to unmarshal campaign: %w", err)
		}

		if !c.Status.CanTransitionTo(next) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, c.Status, next)
		}

		c.Status = next
		if mutate != nil {
			mutate(c)
		}
		c.UpdatedAt = time.Now()

		return putCampaign(tx, c)
	})

	if err != nil {
		return nil, err
	}
	return c, nil
}

// AddCounters atomically bumps the dispatch counters of a campaign
func (s *BoltStorage) AddCounters(ctx context.Context, storeID, id string, sent, failed int, cost int64) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketCampaigns).Get(campaignKey(storeID, id))
		if data == nil {
			return ErrNotFound
		}

		var c Campaign
		if err := json.Unmarshal(data, &c); err != nil {
			return fmt.Errorf("failed to unmarshal campaign: %w", err)
		}

		c.SentCount += sent
		c.FailedCount += failed
		c.ActualCost += cost
		c.UpdatedAt = time.Now()

		return putCampaign(tx, &c)
	})
}

// RecomputeDelivered recounts delivered reports and stores the result on
// the campaign. The count is always derived from reports, never
// incremented, so repeated reconciliation cannot drift.
func (s *BoltStorage) RecomputeDelivered(ctx context.Context, storeID, id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketCampaigns).Get(campaignKey(storeID, id))
		if data == nil {
			return ErrNotFound
		}

		var c Campaign
		if err := json.Unmarshal(data, &c); err != nil {
			return fmt.Errorf("failed to unmarshal campaign: %w", err)
		}

		delivered := 0
		cursor := tx.Bucket(bucketReports).Cursor()
		p := prefix(id)
		for k, v := cursor.Seek(p); k != nil && hasPrefix(k, p); k, v = cursor.Next() {
			var r DeliveryReport
			if err := json.Unmarshal(v, &r); err != nil {
				continue
			}
			if r.Status == ReportDelivered {
				delivered++
			}
		}

		c.DeliveredCount = delivered
		c.UpdatedAt = time.Now()

		return putCampaign(tx, &c)
	})
}

// TemplateInUse reports whether any non-terminal campaign of the store
// references the template
func (s *BoltStorage) TemplateInUse(ctx context.Context, storeID, templateID string) (bool, error) {
	return s.anyCampaign(storeID, func(c *Campaign) bool {
		return c.TemplateID == templateID && !c.Status.Terminal()
	})
}

// SegmentInUse reports whether any non-terminal campaign of the store
// references the segment
func (s *BoltStorage) SegmentInUse(ctx context.Context, storeID, segmentID string) (bool, error) {
	return s.anyCampaign(storeID, func(c *Campaign) bool {
		if c.Status.Terminal() {
			return false
		}
		for _, id := range c.SegmentIDs {
			if id == segmentID {
				return true
			}
		}
		return false
	})
}

func (s *BoltStorage) anyCampaign(storeID string, match func(*Campaign) bool) (bool, error) {
	found := false

	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketCampaigns).Cursor()
		p := prefix(storeID)

		for k, v := c.Seek(p); k != nil && hasPrefix(k, p); k, v = c.Next() {
			var camp Campaign
			if err := json.Unmarshal(v, &camp); err != nil {
				continue
			}
			if match(&camp) {
				found = true
				return nil
			}
		}
		return nil
	})

	return found, err
}

func putCampaign(tx *bolt.Tx, c *Campaign) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal campaign: %w", err)
	}
	return tx.Bucket(bucketCampaigns).Put(campaignKey(c.StoreID, c.ID), data)
}

// CreateReport stores a delivery report, enforcing one report per
// (campaign, mobile). When a report for the mobile already exists it is
// returned with created=false and nothing is written.
func (s *BoltStorage) CreateReport(ctx context.Context, r *DeliveryReport) (report *DeliveryReport, created bool, err error) {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.Status == "" {
		r.Status = ReportPending
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}

	err = s.db.Update(func(tx *bolt.Tx) error {
		mobiles := tx.Bucket(bucketReportMobiles)
		mobileKey := reportKey(r.CampaignID, r.Mobile)

		if existingID := mobiles.Get(mobileKey); existingID != nil {
			data := tx.Bucket(bucketReports).Get(reportKey(r.CampaignID, string(existingID)))
			if data == nil {
				return fmt.Errorf("report index points at missing report %s", existingID)
			}
			existing := &DeliveryReport{}
			if err := json.Unmarshal(data, existing); err != nil {
				return fmt.Errorf("failed to unmarshal report: %w", err)
			}
			report = existing
			return nil
		}

		if err := putReport(tx, r); err != nil {
			return err
		}
		if err := mobiles.Put(mobileKey, []byte(r.ID)); err != nil {
			return err
		}
		report = r
		created = true
		return nil
	})

	return report, created, err
}

// UpdateReport persists report changes
func (s *BoltStorage) UpdateReport(ctx context.Context, r *DeliveryReport) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketReports).Get(reportKey(r.CampaignID, r.ID)) == nil {
			return ErrNotFound
		}
		return putReport(tx, r)
	})
}

// Reports returns the delivery reports of a campaign, ordered by report ID
func (s *BoltStorage) Reports(ctx context.Context, campaignID string) ([]*DeliveryReport, error) {
	var reports []*DeliveryReport

	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketReports).Cursor()
		p := prefix(campaignID)

		for k, v := c.Seek(p); k != nil && hasPrefix(k, p); k, v = c.Next() {
			var r DeliveryReport
			if err := json.Unmarshal(v, &r); err != nil {
				continue
			}
			reports = append(reports, &r)
		}
		return nil
	})

	return reports, err
}

// HandledMobiles returns the mobiles of a campaign whose reports are past
// pending. A resumed campaign skips these.
func (s *BoltStorage) HandledMobiles(ctx context.Context, campaignID string) (map[string]struct{}, error) {
	handled := make(map[string]struct{})

	reports, err := s.Reports(ctx, campaignID)
	if err != nil {
		return nil, err
	}

	for _, r := range reports {
		if r.Status != ReportPending {
			handled[r.Mobile] = struct{}{}
		}
	}
	return handled, nil
}

// SentSince returns reports still awaiting delivery confirmation that
// were sent at or after the cutoff, across all campaigns
func (s *BoltStorage) SentSince(ctx context.Context, cutoff time.Time) ([]*DeliveryReport, error) {
	var reports []*DeliveryReport

	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketReports).ForEach(func(k, v []byte) error {
			var r DeliveryReport
			if err := json.Unmarshal(v, &r); err != nil {
				return nil
			}
			if r.Status != ReportSent || r.GatewayMessageID == "" {
				return nil
			}
			if r.SentAt == nil || r.SentAt.Before(cutoff) {
				return nil
			}
			reports = append(reports, &r)
			return nil
		})
	})

	return reports, err
}

func putReport(tx *bolt.Tx, r *DeliveryReport) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	return tx.Bucket(bucketReports).Put(reportKey(r.CampaignID, r.ID), data)
}
