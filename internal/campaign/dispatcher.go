package campaign

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/mallsoft/peyk/internal/config"
	"github.com/mallsoft/peyk/internal/customer"
	"github.com/mallsoft/peyk/internal/gateway"
	"github.com/mallsoft/peyk/internal/metrics"
	"github.com/mallsoft/peyk/internal/recipient"
	"github.com/mallsoft/peyk/internal/segment"
	"github.com/mallsoft/peyk/internal/template"
)

// ErrNoRecipients is returned when a campaign resolves to an empty
// recipient set
var ErrNoRecipients = errors.New("campaign has no recipients")

// Dispatcher drives campaigns through the sending state. Each started
// campaign gets its own goroutine; a buffered slot channel caps how many
// dispatch concurrently. Status is re-read from storage between sends so
// pause and cancel take effect mid-campaign.
type Dispatcher struct {
	storage   *BoltStorage
	templates *template.Storage
	segments  *segment.Storage
	directory customer.Directory
	resolver  *recipient.Resolver
	gateway   gateway.Gateway
	cfg       config.DispatchConfig
	logger    *slog.Logger

	slots  chan struct{}
	stopCh chan struct{}
	wg     sync.WaitGroup

	mu     sync.Mutex
	active map[string]bool // campaign IDs with a live dispatch loop
}

// NewDispatcher creates a campaign dispatcher
func NewDispatcher(
	storage *BoltStorage,
	templates *template.Storage,
	segments *segment.Storage,
	directory customer.Directory,
	resolver *recipient.Resolver,
	gw gateway.Gateway,
	cfg config.DispatchConfig,
	logger *slog.Logger,
) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 30 * time.Second
	}

	return &Dispatcher{
		storage:   storage,
		templates: templates,
		segments:  segments,
		directory: directory,
		resolver:  resolver,
		gateway:   gw,
		cfg:       cfg,
		logger:    logger,
		slots:     make(chan struct{}, cfg.Workers),
		stopCh:    make(chan struct{}),
		active:    make(map[string]bool),
	}
}

// Stop signals running dispatch loops to wind down and waits for them.
// Campaigns mid-dispatch stay in sending; Requeue picks them up on the
// next boot.
func (d *Dispatcher) Stop() {
	d.logger.Info("stopping campaign dispatcher")
	close(d.stopCh)
	d.wg.Wait()
	d.logger.Info("campaign dispatcher stopped")
}

// EstimateCost returns the projected cost of sending to n recipients
func (d *Dispatcher) EstimateCost(n int) int64 {
	return int64(n) * d.cfg.CostPerSMS
}

// Start moves a draft or scheduled campaign into sending and dispatches
// it in the background. Recipients are resolved up front; an empty set
// fails the start without touching campaign status.
func (d *Dispatcher) Start(ctx context.Context, storeID, id string) (*Campaign, error) {
	c, err := d.storage.Get(ctx, storeID, id)
	if err != nil {
		return nil, err
	}

	body, err := d.messageBody(ctx, c)
	if err != nil {
		return nil, err
	}

	recipients, err := d.resolveRecipients(ctx, c)
	if err != nil {
		return nil, err
	}
	if len(recipients) == 0 {
		return nil, ErrNoRecipients
	}

	now := time.Now()
	c, err = d.storage.Transition(ctx, storeID, id, StatusSending, func(c *Campaign) {
		c.TotalRecipients = len(recipients)
		c.EstimatedCost = d.EstimateCost(len(recipients))
		c.StartedAt = &now
		c.FailureReason = ""
	})
	if err != nil {
		return nil, err
	}

	if c.TemplateID != "" {
		if err := d.templates.IncrementUsage(ctx, storeID, c.TemplateID); err != nil {
			d.logger.Warn("failed to bump template usage", "template_id", c.TemplateID, "error", err)
		}
	}

	d.spawn(c, body, recipients, nil)
	return c, nil
}

// Resume moves a paused campaign back into sending. Recipients whose
// reports are already past pending are skipped, so nobody gets the
// message twice.
func (d *Dispatcher) Resume(ctx context.Context, storeID, id string) (*Campaign, error) {
	c, err := d.storage.Get(ctx, storeID, id)
	if err != nil {
		return nil, err
	}

	body, err := d.messageBody(ctx, c)
	if err != nil {
		return nil, err
	}

	recipients, err := d.resolveRecipients(ctx, c)
	if err != nil {
		return nil, err
	}

	handled, err := d.storage.HandledMobiles(ctx, id)
	if err != nil {
		return nil, err
	}

	c, err = d.storage.Transition(ctx, storeID, id, StatusSending, nil)
	if err != nil {
		return nil, err
	}

	d.spawn(c, body, recipients, handled)
	return c, nil
}

// Pause stops a sending campaign after the in-flight message
func (d *Dispatcher) Pause(ctx context.Context, storeID, id string) (*Campaign, error) {
	return d.storage.Transition(ctx, storeID, id, StatusPaused, nil)
}

// Cancel terminally stops a campaign in any non-terminal state
func (d *Dispatcher) Cancel(ctx context.Context, storeID, id string) (*Campaign, error) {
	return d.storage.Transition(ctx, storeID, id, StatusCancelled, nil)
}

// Requeue restarts dispatch for campaigns stuck in sending, called once
// at boot after an unclean shutdown.
func (d *Dispatcher) Requeue(ctx context.Context) error {
	stuck, err := d.storage.AllByStatus(ctx, StatusSending)
	if err != nil {
		return fmt.Errorf("failed to list sending campaigns: %w", err)
	}

	for _, c := range stuck {
		body, err := d.messageBody(ctx, c)
		if err != nil {
			d.logger.Error("failed to requeue campaign", "campaign_id", c.ID, "error", err)
			continue
		}
		recipients, err := d.resolveRecipients(ctx, c)
		if err != nil {
			d.logger.Error("failed to requeue campaign", "campaign_id", c.ID, "error", err)
			continue
		}
		handled, err := d.storage.HandledMobiles(ctx, c.ID)
		if err != nil {
			d.logger.Error("failed to requeue campaign", "campaign_id", c.ID, "error", err)
			continue
		}

		d.logger.Info("requeueing interrupted campaign",
			"campaign_id", c.ID,
			"store_id", c.StoreID,
			"handled", len(handled),
			"total", len(recipients),
		)
		d.spawn(c, body, recipients, handled)
	}

	return nil
}

// Wait blocks until all running dispatch loops finish
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// messageBody returns the text to render per recipient: the inline
// message, or the referenced template's body.
func (d *Dispatcher) messageBody(ctx context.Context, c *Campaign) (string, error) {
	if c.Message != "" {
		return c.Message, nil
	}

	tmpl, err := d.templates.Get(ctx, c.StoreID, c.TemplateID)
	if err != nil {
		return "", fmt.Errorf("failed to load template %s: %w", c.TemplateID, err)
	}
	if tmpl == nil {
		return "", fmt.Errorf("template %s: %w", c.TemplateID, template.ErrNotFound)
	}
	if !tmpl.Active {
		return "", fmt.Errorf("template %s is inactive", c.TemplateID)
	}
	return tmpl.Body, nil
}

func (d *Dispatcher) resolveRecipients(ctx context.Context, c *Campaign) ([]*recipient.Recipient, error) {
	segments := make([]*segment.Segment, 0, len(c.SegmentIDs))
	for _, segID := range c.SegmentIDs {
		seg, err := d.segments.Get(ctx, c.StoreID, segID)
		if err != nil {
			return nil, fmt.Errorf("failed to load segment %s: %w", segID, err)
		}
		if seg == nil {
			return nil, fmt.Errorf("segment %s: %w", segID, segment.ErrNotFound)
		}
		segments = append(segments, seg)
	}

	return d.resolver.Resolve(ctx, segments, c.CustomRecipients, time.Now())
}

// spawn starts the dispatch loop for a campaign unless one is already
// running. A resume can race a loop that is still draining an in-flight
// send; the running loop re-reads the sending status and carries on, and
// a second loop here would message the remaining recipients twice.
func (d *Dispatcher) spawn(c *Campaign, body string, recipients []*recipient.Recipient, handled map[string]struct{}) {
	d.mu.Lock()
	if d.active[c.ID] {
		d.mu.Unlock()
		d.logger.Info("dispatch loop already running, not spawning", "campaign_id", c.ID)
		return
	}
	d.active[c.ID] = true
	d.mu.Unlock()

	metrics.CampaignStarted()
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		select {
		case d.slots <- struct{}{}:
			defer func() { <-d.slots }()
		case <-d.stopCh:
			d.release(c.ID)
			metrics.CampaignStopped()
			return
		}

		d.run(c, body, recipients, handled)
	}()
}

// release retires a campaign's dispatch loop from the registry
func (d *Dispatcher) release(id string) {
	d.mu.Lock()
	delete(d.active, id)
	d.mu.Unlock()
}

// confirmStop decides, atomically with the loop registry, whether a loop
// that observed its campaign outside sending should exit. Resume flips
// the status back to sending before spawn consults the registry, so
// either this re-read sees sending again and the loop keeps going, or
// the loop retires here and the next resume spawns a fresh one.
func (d *Dispatcher) confirmStop(ctx context.Context, c *Campaign) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	fresh, err := d.storage.Get(ctx, c.StoreID, c.ID)
	if err == nil && fresh.Status == StatusSending {
		return false
	}
	delete(d.active, c.ID)
	return true
}

// run is the dispatch loop for one campaign
func (d *Dispatcher) run(c *Campaign, body string, recipients []*recipient.Recipient, handled map[string]struct{}) {
	ctx := context.Background()
	logger := d.logger.With("campaign_id", c.ID, "store_id", c.StoreID)
	logger.Info("dispatching campaign", "recipients", len(recipients))

	store, err := d.directory.Store(ctx, c.StoreID)
	if err != nil {
		logger.Warn("failed to load store profile", "error", err)
	}

	for _, rec := range recipients {
		select {
		case <-d.stopCh:
			logger.Info("dispatch interrupted by shutdown")
			d.release(c.ID)
			metrics.CampaignStopped()
			return
		default:
		}

		// Fresh status read so pause/cancel issued through the API take
		// effect between sends.
		fresh, err := d.storage.Get(ctx, c.StoreID, c.ID)
		if err != nil {
			logger.Error("failed to re-read campaign", "error", err)
			d.release(c.ID)
			metrics.CampaignStopped()
			return
		}
		if fresh.Status != StatusSending {
			if d.confirmStop(ctx, c) {
				logger.Info("dispatch stopped", "status", fresh.Status)
				metrics.CampaignStopped()
				return
			}
			// Resumed while the send was in flight; keep going.
		}

		if _, ok := handled[rec.Mobile]; ok {
			continue
		}

		if rec.Invalid {
			d.recordRejected(ctx, c, rec)
			continue
		}

		message := d.renderMessage(ctx, c, body, rec, store)

		report, created, err := d.storage.CreateReport(ctx, &DeliveryReport{
			CampaignID: c.ID,
			StoreID:    c.StoreID,
			CustomerID: rec.CustomerID,
			Name:       rec.Name,
			Mobile:     rec.Mobile,
			Message:    message,
			Status:     ReportPending,
		})
		if err != nil {
			logger.Error("failed to create delivery report", "mobile", rec.Mobile, "error", err)
			continue
		}
		if !created && report.Status != ReportPending {
			continue
		}

		sendCtx, cancel := context.WithTimeout(ctx, d.cfg.SendTimeout)
		res, err := d.gateway.Send(sendCtx, rec.Mobile, message, "")
		cancel()

		if err != nil {
			if errors.Is(err, gateway.ErrUnavailable) {
				d.failCampaign(ctx, c, report, err, logger)
				d.release(c.ID)
				return
			}
			d.recordFailed(ctx, c, report, err.Error())
			logger.Warn("send error", "mobile", rec.Mobile, "error", err)
			continue
		}

		if !res.Accepted {
			d.recordFailed(ctx, c, report, res.Reason)
			continue
		}

		now := time.Now()
		report.Status = ReportSent
		report.GatewayMessageID = res.MessageID
		report.Cost = res.Cost
		report.SentAt = &now
		if err := d.storage.UpdateReport(ctx, report); err != nil {
			logger.Error("failed to update delivery report", "report_id", report.ID, "error", err)
		}

		cost := res.Cost
		if cost == 0 {
			cost = d.cfg.CostPerSMS
		}
		if err := d.storage.AddCounters(ctx, c.StoreID, c.ID, 1, 0, cost); err != nil {
			logger.Error("failed to bump counters", "error", err)
		}
		metrics.IncSMSSent(c.StoreID, cost)
	}

	for {
		now := time.Now()
		_, err := d.storage.Transition(ctx, c.StoreID, c.ID, StatusCompleted, func(c *Campaign) {
			c.CompletedAt = &now
		})
		if err == nil {
			break
		}
		if d.confirmStop(ctx, c) {
			// Lost the race with pause/cancel on the final recipient.
			logger.Info("dispatch finished without completing", "error", err)
			metrics.CampaignStopped()
			return
		}
	}

	d.release(c.ID)
	metrics.CampaignCompleted()
	logger.Info("campaign completed")
}

// renderMessage builds the variable context for one recipient and renders
// the message body
func (d *Dispatcher) renderMessage(ctx context.Context, c *Campaign, body string, rec *recipient.Recipient, store *customer.Store) string {
	vars := make(map[string]string, len(c.Variables)+12)
	for k, v := range c.Variables {
		vars[k] = v
	}

	if store != nil {
		vars["store_name"] = store.Name
		vars["store_phone"] = store.Phone
		vars["store_address"] = store.Address
	}

	vars["mobile"] = rec.Mobile
	if rec.Name != "" {
		vars["name"] = rec.Name
		vars["customer_name"] = rec.Name
	}

	if rec.CustomerID != "" {
		if cust, err := d.directory.Customer(ctx, c.StoreID, rec.CustomerID); err == nil && cust != nil {
			vars["first_name"] = cust.FirstName
			vars["last_name"] = cust.LastName
			vars["customer_name"] = cust.FullName()
			vars["name"] = cust.FullName()
			vars["email"] = cust.Email

			if order, err := d.directory.LastOrder(ctx, c.StoreID, rec.CustomerID); err == nil && order != nil {
				vars["order_number"] = order.Number
				vars["order_total"] = strconv.FormatInt(order.TotalAmount, 10)
				vars["order_date"] = order.CreatedAt.Format("2006-01-02")
			}
		}
	}

	return template.Render(body, vars)
}

func (d *Dispatcher) recordRejected(ctx context.Context, c *Campaign, rec *recipient.Recipient) {
	_, created, err := d.storage.CreateReport(ctx, &DeliveryReport{
		CampaignID:    c.ID,
		StoreID:       c.StoreID,
		CustomerID:    rec.CustomerID,
		Name:          rec.Name,
		Mobile:        rec.Mobile,
		Status:        ReportRejected,
		FailureReason: "invalid mobile number",
	})
	if err != nil {
		d.logger.Error("failed to record rejected recipient", "mobile", rec.Mobile, "error", err)
		return
	}
	if !created {
		return
	}

	if err := d.storage.AddCounters(ctx, c.StoreID, c.ID, 0, 1, 0); err != nil {
		d.logger.Error("failed to bump counters", "campaign_id", c.ID, "error", err)
	}
	metrics.IncSMSRejected(c.StoreID)
}

func (d *Dispatcher) recordFailed(ctx context.Context, c *Campaign, report *DeliveryReport, reason string) {
	report.Status = ReportFailed
	report.FailureReason = reason
	if err := d.storage.UpdateReport(ctx, report); err != nil {
		d.logger.Error("failed to update delivery report", "report_id", report.ID, "error", err)
	}

	if err := d.storage.AddCounters(ctx, c.StoreID, c.ID, 0, 1, 0); err != nil {
		d.logger.Error("failed to bump counters", "campaign_id", c.ID, "error", err)
	}
	metrics.IncSMSFailed(c.StoreID)
}

// failCampaign aborts dispatch on a systemic gateway failure. The
// in-flight report fails; untouched recipients keep no reports and are
// retried if the campaign is ever resurrected manually.
func (d *Dispatcher) failCampaign(ctx context.Context, c *Campaign, report *DeliveryReport, cause error, logger *slog.Logger) {
	d.recordFailed(ctx, c, report, cause.Error())

	_, err := d.storage.Transition(ctx, c.StoreID, c.ID, StatusFailed, func(c *Campaign) {
		c.FailureReason = cause.Error()
	})
	if err != nil {
		logger.Error("failed to mark campaign failed", "error", err)
	}

	metrics.CampaignFailed()
	logger.Error("campaign failed on gateway error", "error", cause)
}
