package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mallsoft/peyk/internal/template"
)

// CreateTemplateRequest is the request body for POST /templates
type CreateTemplateRequest struct {
	Name      string   `json:"name" validate:"required"`
	Category  string   `json:"category"`
	Body      string   `json:"body" validate:"required"`
	Variables []string `json:"variables"`
	Active    *bool    `json:"active"`
}

// UpdateTemplateRequest is the request body for PUT /templates/{id}
type UpdateTemplateRequest struct {
	Name      string   `json:"name" validate:"required"`
	Category  string   `json:"category"`
	Body      string   `json:"body" validate:"required"`
	Variables []string `json:"variables"`
	Active    *bool    `json:"active"`
}

// PreviewTemplateRequest is the request body for POST /templates/{id}/preview
type PreviewTemplateRequest struct {
	Context map[string]string `json:"context"`
}

// PreviewTemplateResponse is the response for POST /templates/{id}/preview
type PreviewTemplateResponse struct {
	Rendered string `json:"rendered"`
}

func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	storeID := chi.URLParam(r, "storeID")

	filter := template.ListFilter{
		Category: template.Category(r.URL.Query().Get("category")),
	}
	if active := r.URL.Query().Get("active"); active != "" {
		v := active == "true"
		filter.Active = &v
	}

	templates, err := s.templates.List(r.Context(), storeID, filter)
	if err != nil {
		s.logger.Error("failed to list templates", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to list templates")
		return
	}

	s.sendJSON(w, http.StatusOK, templates)
}

func (s *Server) handleCreateTemplate(w http.ResponseWriter, r *http.Request) {
	storeID := chi.URLParam(r, "storeID")

	var req CreateTemplateRequest
	if err := s.decodeAndValidate(r, &req); err != nil {
		s.sendError(w, http.StatusBadRequest, err.Error())
		return
	}

	tmpl := &template.Template{
		StoreID:   storeID,
		Name:      req.Name,
		Category:  template.Category(req.Category),
		Body:      req.Body,
		Variables: req.Variables,
		Active:    true,
	}
	if req.Active != nil {
		tmpl.Active = *req.Active
	}
	if tmpl.Category == "" {
		tmpl.Category = template.CategoryCustom
	}
	if len(tmpl.Variables) == 0 {
		tmpl.Variables = template.ExtractVariables(tmpl.Body)
	}

	if err := s.templates.Create(r.Context(), tmpl); err != nil {
		s.sendError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.sendJSON(w, http.StatusCreated, tmpl)
}

func (s *Server) handleGetTemplate(w http.ResponseWriter, r *http.Request) {
	storeID := chi.URLParam(r, "storeID")
	id := chi.URLParam(r, "id")

	tmpl, err := s.getTemplate(w, r, storeID, id)
	if err != nil {
		return
	}

	s.sendJSON(w, http.StatusOK, tmpl)
}

// getTemplate loads a template and writes the error response on failure
func (s *Server) getTemplate(w http.ResponseWriter, r *http.Request, storeID, id string) (*template.Template, error) {
	tmpl, err := s.templates.Get(r.Context(), storeID, id)
	if err != nil {
		s.logger.Error("failed to get template", "id", id, "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to get template")
		return nil, err
	}
	if tmpl == nil {
		s.sendError(w, http.StatusNotFound, "Template not found")
		return nil, template.ErrNotFound
	}
	return tmpl, nil
}

func (s *Server) handleUpdateTemplate(w http.ResponseWriter, r *http.Request) {
	storeID := chi.URLParam(r, "storeID")
	id := chi.URLParam(r, "id")

	var req UpdateTemplateRequest
	if err := s.decodeAndValidate(r, &req); err != nil {
		s.sendError(w, http.StatusBadRequest, err.Error())
		return
	}

	tmpl := &template.Template{
		ID:        id,
		StoreID:   storeID,
		Name:      req.Name,
		Category:  template.Category(req.Category),
		Body:      req.Body,
		Variables: req.Variables,
		Active:    true,
	}
	if req.Active != nil {
		tmpl.Active = *req.Active
	}
	if tmpl.Category == "" {
		tmpl.Category = template.CategoryCustom
	}
	if len(tmpl.Variables) == 0 {
		tmpl.Variables = template.ExtractVariables(tmpl.Body)
	}

	if err := s.templates.Update(r.Context(), tmpl); err != nil {
		if errors.Is(err, template.ErrNotFound) {
			s.sendError(w, http.StatusNotFound, "Template not found")
			return
		}
		s.sendError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.sendJSON(w, http.StatusOK, tmpl)
}

func (s *Server) handleDeleteTemplate(w http.ResponseWriter, r *http.Request) {
	storeID := chi.URLParam(r, "storeID")
	id := chi.URLParam(r, "id")

	inUse, err := s.campaigns.TemplateInUse(r.Context(), storeID, id)
	if err != nil {
		s.logger.Error("failed to check template references", "id", id, "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to delete template")
		return
	}
	if inUse {
		s.sendError(w, http.StatusConflict, "Template is referenced by an active campaign")
		return
	}

	if err := s.templates.Delete(r.Context(), storeID, id); err != nil {
		if errors.Is(err, template.ErrNotFound) {
			s.sendError(w, http.StatusNotFound, "Template not found")
			return
		}
		s.logger.Error("failed to delete template", "id", id, "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to delete template")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSeedDefaultTemplates(w http.ResponseWriter, r *http.Request) {
	storeID := chi.URLParam(r, "storeID")

	created, err := s.templates.SeedDefaults(r.Context(), storeID)
	if err != nil {
		s.logger.Error("failed to seed default templates", "store_id", storeID, "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to seed default templates")
		return
	}
	if created == nil {
		created = []*template.Template{}
	}

	s.sendJSON(w, http.StatusCreated, created)
}

func (s *Server) handlePreviewTemplate(w http.ResponseWriter, r *http.Request) {
	storeID := chi.URLParam(r, "storeID")
	id := chi.URLParam(r, "id")

	var req PreviewTemplateRequest
	if err := s.decodeAndValidate(r, &req); err != nil {
		s.sendError(w, http.StatusBadRequest, err.Error())
		return
	}

	tmpl, err := s.getTemplate(w, r, storeID, id)
	if err != nil {
		return
	}

	s.sendJSON(w, http.StatusOK, PreviewTemplateResponse{
		Rendered: template.Render(tmpl.Body, req.Context),
	})
}
