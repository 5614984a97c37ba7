package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mallsoft/peyk/internal/recipient"
	"github.com/mallsoft/peyk/internal/segment"
)

// SegmentRequest is the request body for POST and PUT on segments
type SegmentRequest struct {
	Name        string `json:"name" validate:"required"`
	Type        string `json:"type" validate:"required"`
	Description string `json:"description"`
	Criteria    struct {
		Days      int    `json:"days" validate:"gte=0"`
		MinOrders int    `json:"min_orders" validate:"gte=0"`
		MinAmount int64  `json:"min_amount" validate:"gte=0"`
		City      string `json:"city"`
		Province  string `json:"province"`
	} `json:"criteria"`
	Active *bool `json:"active"`
}

func (r *SegmentRequest) toSegment(storeID, id string) *segment.Segment {
	seg := &segment.Segment{
		ID:          id,
		StoreID:     storeID,
		Name:        r.Name,
		Type:        segment.Type(r.Type),
		Description: r.Description,
		Criteria: segment.Criteria{
			Days:      r.Criteria.Days,
			MinOrders: r.Criteria.MinOrders,
			MinAmount: r.Criteria.MinAmount,
			City:      r.Criteria.City,
			Province:  r.Criteria.Province,
		},
		Active: true,
	}
	if r.Active != nil {
		seg.Active = *r.Active
	}
	return seg
}

// PreviewSegmentResponse is the response for GET /segments/{id}/preview
type PreviewSegmentResponse struct {
	Count      int                    `json:"count"`
	Recipients []*recipient.Recipient `json:"recipients"`
}

func (s *Server) handleListSegments(w http.ResponseWriter, r *http.Request) {
	storeID := chi.URLParam(r, "storeID")

	segments, err := s.segments.List(r.Context(), storeID)
	if err != nil {
		s.logger.Error("failed to list segments", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to list segments")
		return
	}

	s.sendJSON(w, http.StatusOK, segments)
}

func (s *Server) handleCreateSegment(w http.ResponseWriter, r *http.Request) {
	storeID := chi.URLParam(r, "storeID")

	var req SegmentRequest
	if err := s.decodeAndValidate(r, &req); err != nil {
		s.sendError(w, http.StatusBadRequest, err.Error())
		return
	}

	seg := req.toSegment(storeID, "")
	if err := s.segments.Create(r.Context(), seg); err != nil {
		s.sendError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.sendJSON(w, http.StatusCreated, seg)
}

func (s *Server) handleGetSegment(w http.ResponseWriter, r *http.Request) {
	storeID := chi.URLParam(r, "storeID")
	id := chi.URLParam(r, "id")

	seg, err := s.getSegment(w, r, storeID, id)
	if err != nil {
		return
	}

	s.sendJSON(w, http.StatusOK, seg)
}

func (s *Server) handleUpdateSegment(w http.ResponseWriter, r *http.Request) {
	storeID := chi.URLParam(r, "storeID")
	id := chi.URLParam(r, "id")

	var req SegmentRequest
	if err := s.decodeAndValidate(r, &req); err != nil {
		s.sendError(w, http.StatusBadRequest, err.Error())
		return
	}

	seg := req.toSegment(storeID, id)
	if err := s.segments.Update(r.Context(), seg); err != nil {
		if errors.Is(err, segment.ErrNotFound) {
			s.sendError(w, http.StatusNotFound, "Segment not found")
			return
		}
		s.sendError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.sendJSON(w, http.StatusOK, seg)
}

func (s *Server) handleDeleteSegment(w http.ResponseWriter, r *http.Request) {
	storeID := chi.URLParam(r, "storeID")
	id := chi.URLParam(r, "id")

	inUse, err := s.campaigns.SegmentInUse(r.Context(), storeID, id)
	if err != nil {
		s.logger.Error("failed to check segment references", "id", id, "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to delete segment")
		return
	}
	if inUse {
		s.sendError(w, http.StatusConflict, "Segment is referenced by an active campaign")
		return
	}

	if err := s.segments.Delete(r.Context(), storeID, id); err != nil {
		if errors.Is(err, segment.ErrNotFound) {
			s.sendError(w, http.StatusNotFound, "Segment not found")
			return
		}
		s.logger.Error("failed to delete segment", "id", id, "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to delete segment")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRefreshSegmentCount(w http.ResponseWriter, r *http.Request) {
	storeID := chi.URLParam(r, "storeID")
	id := chi.URLParam(r, "id")

	seg, err := s.segments.RefreshCount(r.Context(), s.evaluator, storeID, id, time.Now())
	if err != nil {
		if errors.Is(err, segment.ErrNotFound) {
			s.sendError(w, http.StatusNotFound, "Segment not found")
			return
		}
		s.logger.Error("failed to refresh segment count", "id", id, "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to refresh segment count")
		return
	}

	s.sendJSON(w, http.StatusOK, seg)
}

func (s *Server) handlePreviewSegment(w http.ResponseWriter, r *http.Request) {
	storeID := chi.URLParam(r, "storeID")
	id := chi.URLParam(r, "id")

	seg, err := s.getSegment(w, r, storeID, id)
	if err != nil {
		return
	}

	customers, err := s.evaluator.Evaluate(r.Context(), seg, time.Now())
	if err != nil {
		s.logger.Error("failed to evaluate segment", "id", id, "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to preview segment")
		return
	}

	recipients := s.resolver.ResolveForCustomers(customers, "segment:"+id)

	// Cap the sample; the count covers the full set.
	const sampleSize = 20
	sample := recipients
	if len(sample) > sampleSize {
		sample = sample[:sampleSize]
	}

	s.sendJSON(w, http.StatusOK, PreviewSegmentResponse{
		Count:      len(recipients),
		Recipients: sample,
	})
}

// getSegment loads a segment and writes the error response on failure
func (s *Server) getSegment(w http.ResponseWriter, r *http.Request, storeID, id string) (*segment.Segment, error) {
	seg, err := s.segments.Get(r.Context(), storeID, id)
	if err != nil {
		s.logger.Error("failed to get segment", "id", id, "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to get segment")
		return nil, err
	}
	if seg == nil {
		s.sendError(w, http.StatusNotFound, "Segment not found")
		return nil, segment.ErrNotFound
	}
	return seg, nil
}
