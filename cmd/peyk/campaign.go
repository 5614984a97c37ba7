package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/mallsoft/peyk/internal/campaign"
	"github.com/mallsoft/peyk/internal/config"
)

var (
	campaignStore      string
	campaignListStatus string
	reportsStatus      string
)

var campaignCmd = &cobra.Command{
	Use:   "campaign",
	Short: "Campaign management commands",
}

var campaignListCmd = &cobra.Command{
	Use:   "list",
	Short: "List campaigns of a store",
	RunE:  runCampaignList,
}

var campaignShowCmd = &cobra.Command{
	Use:   "show <campaign_id>",
	Short: "Show campaign details",
	Args:  cobra.ExactArgs(1),
	RunE:  runCampaignShow,
}

var campaignStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate campaign statistics for a store",
	RunE:  runCampaignStats,
}

var campaignReportsCmd = &cobra.Command{
	Use:   "reports <campaign_id>",
	Short: "List per-recipient delivery reports",
	Args:  cobra.ExactArgs(1),
	RunE:  runCampaignReports,
}

func init() {
	campaignCmd.PersistentFlags().StringVar(&campaignStore, "store", "", "Store ID (required)")
	campaignListCmd.Flags().StringVar(&campaignListStatus, "status", "", "Filter by status (draft, scheduled, sending, paused, completed, cancelled, failed)")
	campaignReportsCmd.Flags().StringVar(&reportsStatus, "status", "", "Filter by report status (pending, sent, delivered, failed, rejected)")

	campaignCmd.AddCommand(campaignListCmd, campaignShowCmd, campaignStatsCmd, campaignReportsCmd)
	rootCmd.AddCommand(campaignCmd)
}

func openCampaignStorage() (*campaign.BoltStorage, error) {
	if cfgFile == "" {
		return nil, fmt.Errorf("config file is required (use -c flag)")
	}
	if campaignStore == "" {
		return nil, fmt.Errorf("store ID is required (use --store flag)")
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	storage, err := campaign.NewBoltStorage(cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open campaign storage: %w", err)
	}

	return storage, nil
}

func runCampaignList(cmd *cobra.Command, args []string) error {
	storage, err := openCampaignStorage()
	if err != nil {
		return err
	}
	defer storage.Close()

	ctx := context.Background()

	filter := campaign.ListFilter{
		Status: campaign.Status(campaignListStatus),
	}

	campaigns, err := storage.List(ctx, campaignStore, filter)
	if err != nil {
		return fmt.Errorf("failed to list campaigns: %w", err)
	}

	if len(campaigns) == 0 {
		fmt.Println("No campaigns")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSTATUS\tTYPE\tRECIPIENTS\tSENT\tDELIVERED\tFAILED\tCREATED")
	fmt.Fprintln(w, "--\t----\t------\t----\t----------\t----\t---------\t------\t-------")

	for _, c := range campaigns {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
			truncateID(c.ID),
			truncateName(c.Name),
			c.Status,
			c.SendType,
			c.TotalRecipients,
			c.SentCount,
			c.DeliveredCount,
			c.FailedCount,
			c.CreatedAt.Format("2006-01-02 15:04"),
		)
	}

	w.Flush()
	fmt.Printf("\nTotal: %d campaigns\n", len(campaigns))

	return nil
}

func runCampaignShow(cmd *cobra.Command, args []string) error {
	storage, err := openCampaignStorage()
	if err != nil {
		return err
	}
	defer storage.Close()

	ctx := context.Background()

	c, err := storage.Get(ctx, campaignStore, args[0])
	if err != nil {
		return fmt.Errorf("failed to get campaign: %w", err)
	}

	fmt.Printf("Campaign: %s\n\n", c.ID)
	fmt.Printf("Name:        %s\n", c.Name)
	fmt.Printf("Status:      %s\n", c.Status)
	fmt.Printf("Send Type:   %s\n", c.SendType)
	fmt.Printf("Created:     %s\n", c.CreatedAt.Format(time.RFC3339))
	if c.ScheduledAt != nil {
		fmt.Printf("Scheduled:   %s\n", c.ScheduledAt.Format(time.RFC3339))
	}
	if c.Recurrence != nil {
		fmt.Printf("Recurrence:  every %d %s\n", c.Recurrence.Interval, c.Recurrence.Frequency)
	}
	if c.ParentID != "" {
		fmt.Printf("Parent:      %s\n", c.ParentID)
	}
	if c.StartedAt != nil {
		fmt.Printf("Started:     %s\n", c.StartedAt.Format(time.RFC3339))
	}
	if c.CompletedAt != nil {
		fmt.Printf("Completed:   %s\n", c.CompletedAt.Format(time.RFC3339))
	}

	fmt.Printf("\nRecipients:  %d\n", c.TotalRecipients)
	fmt.Printf("Sent:        %d\n", c.SentCount)
	fmt.Printf("Delivered:   %d\n", c.DeliveredCount)
	fmt.Printf("Failed:      %d\n", c.FailedCount)
	fmt.Printf("Success:     %.1f%%\n", c.SuccessRate())

	fmt.Printf("\nEstimated Cost: %d Rials\n", c.EstimatedCost)
	fmt.Printf("Actual Cost:    %d Rials\n", c.ActualCost)

	if c.FailureReason != "" {
		fmt.Printf("\nFailure Reason:\n  %s\n", c.FailureReason)
	}

	return nil
}

func runCampaignStats(cmd *cobra.Command, args []string) error {
	storage, err := openCampaignStorage()
	if err != nil {
		return err
	}
	defer storage.Close()

	ctx := context.Background()

	sum, err := storage.Summarize(ctx, campaignStore, time.Time{})
	if err != nil {
		return fmt.Errorf("failed to summarize campaigns: %w", err)
	}

	fmt.Println("Campaign Statistics")
	fmt.Println("===================")
	fmt.Printf("Campaigns:  %d\n", sum.Campaigns)
	fmt.Printf("Active:     %d\n", sum.Active)
	fmt.Printf("Completed:  %d\n", sum.Completed)
	fmt.Printf("Failed:     %d\n", sum.Failed)
	fmt.Println()
	fmt.Printf("Recipients: %d\n", sum.TotalRecipients)
	fmt.Printf("Sent:       %d\n", sum.SentCount)
	fmt.Printf("Delivered:  %d\n", sum.DeliveredCount)
	fmt.Printf("Failures:   %d\n", sum.FailedCount)
	fmt.Printf("Delivery:   %.1f%%\n", sum.DeliveryRate)
	fmt.Println()
	fmt.Printf("Spend:      %d Rials\n", sum.ActualCost)

	return nil
}

func runCampaignReports(cmd *cobra.Command, args []string) error {
	storage, err := openCampaignStorage()
	if err != nil {
		return err
	}
	defer storage.Close()

	ctx := context.Background()
	id := args[0]

	// Ownership check before touching reports
	if _, err := storage.Get(ctx, campaignStore, id); err != nil {
		return fmt.Errorf("failed to get campaign: %w", err)
	}

	reports, err := storage.Reports(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to list delivery reports: %w", err)
	}

	if reportsStatus != "" {
		filtered := reports[:0]
		for _, r := range reports {
			if r.Status == campaign.ReportStatus(reportsStatus) {
				filtered = append(filtered, r)
			}
		}
		reports = filtered
	}

	if len(reports) == 0 {
		fmt.Println("No delivery reports")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tMOBILE\tSTATUS\tCOST\tSENT\tERROR")
	fmt.Fprintln(w, "--\t------\t------\t----\t----\t-----")

	for _, r := range reports {
		sent := ""
		if r.SentAt != nil {
			sent = r.SentAt.Format("2006-01-02 15:04")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
			truncateID(r.ID),
			r.Mobile,
			r.Status,
			r.Cost,
			sent,
			r.FailureReason,
		)
	}

	w.Flush()
	fmt.Printf("\nTotal: %d reports\n", len(reports))

	return nil
}

func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncateName(name string) string {
	runes := []rune(name)
	if len(runes) > 30 {
		return string(runes[:27]) + "..."
	}
	return name
}
