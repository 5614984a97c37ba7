package campaign

import (
	"context"
	"log/slog"
	"time"

	"github.com/mallsoft/peyk/internal/gateway"
	"github.com/mallsoft/peyk/internal/metrics"
)

// Reconciler polls the gateway for delivery confirmations of recently
// sent messages and folds them back into reports and campaign counters.
type Reconciler struct {
	storage  *BoltStorage
	gateway  gateway.Gateway
	lookback time.Duration
	logger   *slog.Logger
}

// NewReconciler creates a delivery status reconciler
func NewReconciler(storage *BoltStorage, gw gateway.Gateway, lookback time.Duration, logger *slog.Logger) *Reconciler {
	if lookback <= 0 {
		lookback = 24 * time.Hour
	}
	return &Reconciler{
		storage:  storage,
		gateway:  gw,
		lookback: lookback,
		logger:   logger,
	}
}

// RunOnce checks every sent-but-unconfirmed report within the lookback
// window. Confirmed reports flip to delivered and the owning campaign's
// delivered count is recomputed from its reports. A gateway error on one
// report is logged and skipped; the rest of the batch still runs.
func (r *Reconciler) RunOnce(ctx context.Context) error {
	cutoff := time.Now().Add(-r.lookback)

	reports, err := r.storage.SentSince(ctx, cutoff)
	if err != nil {
		return err
	}
	if len(reports) == 0 {
		return nil
	}

	r.logger.Debug("reconciling delivery statuses", "reports", len(reports))

	confirmed := make(map[string]string) // campaign ID -> store ID
	for _, report := range reports {
		if err := ctx.Err(); err != nil {
			return err
		}

		status, err := r.gateway.CheckDelivery(ctx, report.GatewayMessageID)
		if err != nil {
			r.logger.Warn("delivery check failed",
				"report_id", report.ID,
				"gateway_message_id", report.GatewayMessageID,
				"error", err,
			)
			continue
		}
		if !status.Delivered {
			continue
		}

		now := time.Now()
		report.Status = ReportDelivered
		report.DeliveredAt = &now
		if err := r.storage.UpdateReport(ctx, report); err != nil {
			r.logger.Error("failed to update delivery report", "report_id", report.ID, "error", err)
			continue
		}

		confirmed[report.CampaignID] = report.StoreID
		metrics.IncSMSDelivered(report.StoreID)
	}

	for campaignID, storeID := range confirmed {
		if err := r.storage.RecomputeDelivered(ctx, storeID, campaignID); err != nil {
			r.logger.Error("failed to recompute delivered count", "campaign_id", campaignID, "error", err)
		}
	}

	return nil
}
