package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mallsoft/peyk/internal/campaign"
	"github.com/mallsoft/peyk/internal/recipient"
)

// CreateCampaignRequest is the request body for POST /campaigns
type CreateCampaignRequest struct {
	Name             string             `json:"name" validate:"required"`
	Description      string             `json:"description"`
	TemplateID       string             `json:"template_id"`
	Message          string             `json:"message"`
	Variables        map[string]string  `json:"variables"`
	SegmentIDs       []string           `json:"segment_ids"`
	CustomRecipients []recipient.Custom `json:"custom_recipients"`
	SendType         string             `json:"send_type" validate:"required,oneof=immediate scheduled recurring"`
	ScheduledAt      *time.Time         `json:"scheduled_at"`
	Recurrence       *struct {
		Frequency string `json:"frequency" validate:"required,oneof=daily weekly monthly"`
		Interval  int    `json:"interval" validate:"gte=1"`
	} `json:"recurrence"`
}

// CampaignResponse augments a campaign with derived figures
type CampaignResponse struct {
	*campaign.Campaign
	SuccessRate float64 `json:"success_rate"`
}

func campaignResponse(c *campaign.Campaign) CampaignResponse {
	return CampaignResponse{Campaign: c, SuccessRate: c.SuccessRate()}
}

func (s *Server) handleListCampaigns(w http.ResponseWriter, r *http.Request) {
	storeID := chi.URLParam(r, "storeID")

	filter := campaign.ListFilter{
		Status: campaign.Status(r.URL.Query().Get("status")),
	}

	campaigns, err := s.campaigns.List(r.Context(), storeID, filter)
	if err != nil {
		s.logger.Error("failed to list campaigns", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to list campaigns")
		return
	}

	out := make([]CampaignResponse, len(campaigns))
	for i, c := range campaigns {
		out[i] = campaignResponse(c)
	}
	s.sendJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateCampaign(w http.ResponseWriter, r *http.Request) {
	storeID := chi.URLParam(r, "storeID")

	var req CreateCampaignRequest
	if err := s.decodeAndValidate(r, &req); err != nil {
		s.sendError(w, http.StatusBadRequest, err.Error())
		return
	}

	c := &campaign.Campaign{
		StoreID:          storeID,
		Name:             req.Name,
		Description:      req.Description,
		TemplateID:       req.TemplateID,
		Message:          req.Message,
		Variables:        req.Variables,
		SegmentIDs:       req.SegmentIDs,
		CustomRecipients: req.CustomRecipients,
		SendType:         campaign.SendType(req.SendType),
		ScheduledAt:      req.ScheduledAt,
	}
	if req.Recurrence != nil {
		c.Recurrence = &campaign.Recurrence{
			Frequency: campaign.Frequency(req.Recurrence.Frequency),
			Interval:  req.Recurrence.Interval,
		}
	}

	if err := s.campaigns.Create(r.Context(), c); err != nil {
		s.sendError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Scheduled campaigns arm immediately; immediate and recurring ones
	// wait in draft for an explicit start.
	if c.SendType == campaign.SendScheduled {
		armed, err := s.campaigns.Transition(r.Context(), storeID, c.ID, campaign.StatusScheduled, nil)
		if err != nil {
			s.logger.Error("failed to schedule campaign", "id", c.ID, "error", err)
			s.sendError(w, http.StatusInternalServerError, "Failed to schedule campaign")
			return
		}
		c = armed
	}

	s.sendJSON(w, http.StatusCreated, campaignResponse(c))
}

func (s *Server) handleGetCampaign(w http.ResponseWriter, r *http.Request) {
	storeID := chi.URLParam(r, "storeID")
	id := chi.URLParam(r, "id")

	c, err := s.campaigns.Get(r.Context(), storeID, id)
	if err != nil {
		s.campaignError(w, id, err, "get")
		return
	}

	s.sendJSON(w, http.StatusOK, campaignResponse(c))
}

func (s *Server) handleDeleteCampaign(w http.ResponseWriter, r *http.Request) {
	storeID := chi.URLParam(r, "storeID")
	id := chi.URLParam(r, "id")

	c, err := s.campaigns.Get(r.Context(), storeID, id)
	if err != nil {
		s.campaignError(w, id, err, "delete")
		return
	}

	if c.Status == campaign.StatusSending || c.Status == campaign.StatusPaused {
		s.sendError(w, http.StatusConflict, "Cannot delete a campaign mid-dispatch; cancel it first")
		return
	}

	if err := s.campaigns.Delete(r.Context(), storeID, id); err != nil {
		s.campaignError(w, id, err, "delete")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStartCampaign(w http.ResponseWriter, r *http.Request) {
	storeID := chi.URLParam(r, "storeID")
	id := chi.URLParam(r, "id")

	c, err := s.dispatcher.Start(r.Context(), storeID, id)
	if err != nil {
		s.transitionError(w, id, err, "start")
		return
	}

	// Dispatch continues in the background after the response.
	s.sendJSON(w, http.StatusAccepted, campaignResponse(c))
}

func (s *Server) handlePauseCampaign(w http.ResponseWriter, r *http.Request) {
	storeID := chi.URLParam(r, "storeID")
	id := chi.URLParam(r, "id")

	c, err := s.dispatcher.Pause(r.Context(), storeID, id)
	if err != nil {
		s.transitionError(w, id, err, "pause")
		return
	}

	s.sendJSON(w, http.StatusOK, campaignResponse(c))
}

func (s *Server) handleResumeCampaign(w http.ResponseWriter, r *http.Request) {
	storeID := chi.URLParam(r, "storeID")
	id := chi.URLParam(r, "id")

	c, err := s.dispatcher.Resume(r.Context(), storeID, id)
	if err != nil {
		s.transitionError(w, id, err, "resume")
		return
	}

	// Dispatch continues in the background after the response.
	s.sendJSON(w, http.StatusAccepted, campaignResponse(c))
}

func (s *Server) handleCancelCampaign(w http.ResponseWriter, r *http.Request) {
	storeID := chi.URLParam(r, "storeID")
	id := chi.URLParam(r, "id")

	c, err := s.dispatcher.Cancel(r.Context(), storeID, id)
	if err != nil {
		s.transitionError(w, id, err, "cancel")
		return
	}

	s.sendJSON(w, http.StatusOK, campaignResponse(c))
}

func (s *Server) handleCampaignReports(w http.ResponseWriter, r *http.Request) {
	storeID := chi.URLParam(r, "storeID")
	id := chi.URLParam(r, "id")

	// Ownership check before touching reports.
	if _, err := s.campaigns.Get(r.Context(), storeID, id); err != nil {
		s.campaignError(w, id, err, "get reports for")
		return
	}

	reports, err := s.campaigns.Reports(r.Context(), id)
	if err != nil {
		s.logger.Error("failed to list delivery reports", "campaign_id", id, "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to list delivery reports")
		return
	}

	if status := campaign.ReportStatus(r.URL.Query().Get("status")); status != "" {
		filtered := reports[:0]
		for _, rep := range reports {
			if rep.Status == status {
				filtered = append(filtered, rep)
			}
		}
		reports = filtered
	}

	s.sendJSON(w, http.StatusOK, reports)
}

func (s *Server) handleAnalyticsSummary(w http.ResponseWriter, r *http.Request) {
	storeID := chi.URLParam(r, "storeID")

	since, ok := s.sinceParam(w, r)
	if !ok {
		return
	}

	summary, err := s.campaigns.Summarize(r.Context(), storeID, since)
	if err != nil {
		s.logger.Error("failed to summarize campaigns", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to summarize campaigns")
		return
	}

	s.sendJSON(w, http.StatusOK, summary)
}

func (s *Server) handleAnalyticsTemplates(w http.ResponseWriter, r *http.Request) {
	storeID := chi.URLParam(r, "storeID")

	since, ok := s.sinceParam(w, r)
	if !ok {
		return
	}

	stats, err := s.campaigns.TemplateStats(r.Context(), storeID, since)
	if err != nil {
		s.logger.Error("failed to aggregate template stats", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to aggregate template stats")
		return
	}
	if stats == nil {
		stats = []*campaign.TemplatePerformance{}
	}

	s.sendJSON(w, http.StatusOK, stats)
}

// sinceParam parses the optional ?days=N window. ok=false means the
// error response was already written.
func (s *Server) sinceParam(w http.ResponseWriter, r *http.Request) (time.Time, bool) {
	days := r.URL.Query().Get("days")
	if days == "" {
		return time.Time{}, true
	}
	n, err := strconv.Atoi(days)
	if err != nil || n < 1 {
		s.sendError(w, http.StatusBadRequest, "days must be a positive integer")
		return time.Time{}, false
	}
	return time.Now().AddDate(0, 0, -n), true
}

// campaignError maps storage errors to HTTP responses
func (s *Server) campaignError(w http.ResponseWriter, id string, err error, action string) {
	if errors.Is(err, campaign.ErrNotFound) {
		s.sendError(w, http.StatusNotFound, "Campaign not found")
		return
	}
	s.logger.Error("campaign operation failed", "action", action, "campaign_id", id, "error", err)
	s.sendError(w, http.StatusInternalServerError, "Failed to "+action+" campaign")
}

// transitionError maps dispatcher errors to HTTP responses
func (s *Server) transitionError(w http.ResponseWriter, id string, err error, action string) {
	switch {
	case errors.Is(err, campaign.ErrNotFound):
		s.sendError(w, http.StatusNotFound, "Campaign not found")
	case errors.Is(err, campaign.ErrInvalidTransition):
		s.sendError(w, http.StatusConflict, err.Error())
	case errors.Is(err, campaign.ErrNoRecipients):
		s.sendError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error("campaign transition failed", "action", action, "campaign_id", id, "error", err)
		s.sendError(w, http.StatusBadRequest, err.Error())
	}
}
