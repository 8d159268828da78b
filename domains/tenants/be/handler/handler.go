// Package handler exposes tenant orchestration over HTTP.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/Abdulquadri-hub/niceblog/domains/tenants/be/service"
)

// Handler wires the tenants service to the router.
type Handler struct {
	svc *service.Service
	log *zap.Logger
}

// New constructs a Handler instance.
func New(svc *service.Service, log *zap.Logger) *Handler {
	if svc == nil {
		panic("tenants service is required")
	}
	if log == nil {
		panic("logger is required")
	}
	return &Handler{svc: svc, log: log}
}

// Routes mounts the tenant endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/tenants", h.list)
	r.Post("/tenants", h.create)
	r.Get("/tenants/{tenantID}", h.get)
	r.Delete("/tenants/{tenantID}", h.delete)
	r.Post("/tenants/{tenantID}/retry", h.retry)
	r.Get("/tenants/{tenantID}/setup-progress", h.setupProgress)
}

type createRequest struct {
	Name      string `json:"name"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Password  string `json:"password"`
	PlanID    *int64 `json:"plan_id,omitempty"`
}

type tenantResponse struct {
	ID               int64      `json:"id"`
	UUID             string     `json:"uuid"`
	Name             string     `json:"name"`
	Slug             string     `json:"slug"`
	Email            string     `json:"email"`
	Status           string     `json:"status"`
	SetupStep        *string    `json:"setup_step,omitempty"`
	SetupError       *string    `json:"setup_error,omitempty"`
	SetupCompletedAt *time.Time `json:"setup_completed_at,omitempty"`
	TrialEndsAt      *time.Time `json:"trial_ends_at,omitempty"`
	PlanID           *int64     `json:"plan_id,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

func toTenantResponse(t service.Tenant) tenantResponse {
	return tenantResponse{
		ID:               t.ID,
		UUID:             t.UUID.String(),
		Name:             t.Name,
		Slug:             t.Slug,
		Email:            t.Email,
		Status:           string(t.Status),
		SetupStep:        t.SetupStep,
		SetupError:       t.SetupError,
		SetupCompletedAt: t.SetupCompletedAt,
		TrialEndsAt:      t.TrialEndsAt,
		PlanID:           t.PlanID,
		CreatedAt:        t.CreatedAt,
	}
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	t, err := h.svc.Create(r.Context(), service.CreateInput{
		Name:      req.Name,
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Password:  req.Password,
		PlanID:    req.PlanID,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	w.Header().Set("Location", "/api/v1/tenants/"+strconv.FormatInt(t.ID, 10))
	writeJSON(w, http.StatusCreated, toTenantResponse(t))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	opts := service.ListOptions{Page: 1, PageSize: 20}
	if v := r.URL.Query().Get("page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			opts.Page = n
		}
	}
	if v := r.URL.Query().Get("page_size"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			opts.PageSize = n
		}
	}
	if v := r.URL.Query().Get("status"); v != "" {
		status, err := service.ParseStatus(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		opts.Status = &status
	}

	result, err := h.svc.List(r.Context(), opts)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	items := make([]tenantResponse, 0, len(result.Tenants))
	for _, t := range result.Tenants {
		items = append(items, toTenantResponse(t))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items":       items,
		"page":        result.Page,
		"page_size":   result.PageSize,
		"total_items": result.TotalItems,
		"total_pages": result.TotalPages,
	})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := tenantID(w, r)
	if !ok {
		return
	}
	t, err := h.svc.Get(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTenantResponse(t))
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := tenantID(w, r)
	if !ok {
		return
	}
	if err := h.svc.Delete(r.Context(), id); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) retry(w http.ResponseWriter, r *http.Request) {
	id, ok := tenantID(w, r)
	if !ok {
		return
	}
	if err := h.svc.RetrySetup(r.Context(), id); err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "retry scheduled"})
}

func (h *Handler) setupProgress(w http.ResponseWriter, r *http.Request) {
	id, ok := tenantID(w, r)
	if !ok {
		return
	}
	progress, err := h.svc.GetSetupProgress(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       string(progress.Status),
		"step":         progress.Step,
		"error":        progress.Error,
		"completed_at": progress.CompletedAt,
		"is_complete":  progress.IsComplete,
		"has_failed":   progress.HasFailed,
	})
}

func tenantID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "tenantID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid tenant id")
		return 0, false
	}
	return id, true
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrConflictSlug), errors.Is(err, service.ErrConflictEmail):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrNotRetryable):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		h.log.Error("tenant operation failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
