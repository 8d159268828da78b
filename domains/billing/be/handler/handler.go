// Package handler exposes subscription billing and gateway webhooks over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/Abdulquadri-hub/niceblog/domains/billing/be/gateway"
	"github.com/Abdulquadri-hub/niceblog/domains/billing/be/service"
)

// signatureHeaders maps a gateway name to the request header carrying its
// webhook signature.
var signatureHeaders = map[string]string{
	"paystack":    "x-paystack-signature",
	"flutterwave": "verif-hash",
	"stripe":      "Stripe-Signature",
}

// Handler wires the billing service to the router.
type Handler struct {
	svc *service.Service
	log *zap.Logger
}

// New constructs a Handler instance.
func New(svc *service.Service, log *zap.Logger) *Handler {
	if svc == nil {
		panic("billing service is required")
	}
	if log == nil {
		panic("logger is required")
	}
	return &Handler{svc: svc, log: log}
}

// Routes mounts the billing endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/plans", h.plans)
	r.Post("/tenants/{tenantID}/subscribe", h.subscribe)
	r.Post("/tenants/{tenantID}/upgrade", h.upgrade)
	r.Get("/tenants/{tenantID}/transactions", h.transactions)
	r.Get("/payments/{reference}/verify", h.verify)
}

// WebhookRoutes mounts the unauthenticated gateway callback endpoint. Kept
// separate so the admin API's auth middleware never covers it.
func (h *Handler) WebhookRoutes(r chi.Router) {
	r.Post("/webhooks/{gateway}", h.webhook)
}

type paymentRequest struct {
	PlanID      int64  `json:"plan_id"`
	Gateway     string `json:"gateway,omitempty"`
	Currency    string `json:"currency,omitempty"`
	CallbackURL string `json:"callback_url,omitempty"`
}

type transactionResponse struct {
	ID                   int64             `json:"id"`
	TenantID             int64             `json:"tenant_id"`
	Reference            string            `json:"reference"`
	Type                 string            `json:"type"`
	Amount               int64             `json:"amount"`
	Currency             string            `json:"currency"`
	Status               string            `json:"status"`
	Gateway              string            `json:"gateway"`
	GatewayTransactionID *string           `json:"gateway_transaction_id,omitempty"`
	Metadata             map[string]string `json:"metadata,omitempty"`
	ProcessedAt          *time.Time        `json:"processed_at,omitempty"`
	CreatedAt            time.Time         `json:"created_at"`
}

func toTransactionResponse(t service.Transaction) transactionResponse {
	return transactionResponse{
		ID:                   t.ID,
		TenantID:             t.TenantID,
		Reference:            t.Reference,
		Type:                 t.Type,
		Amount:               t.Amount,
		Currency:             t.Currency,
		Status:               string(t.Status),
		Gateway:              t.Gateway,
		GatewayTransactionID: t.GatewayTransactionID,
		Metadata:             t.Metadata,
		ProcessedAt:          t.ProcessedAt,
		CreatedAt:            t.CreatedAt,
	}
}

func (h *Handler) plans(w http.ResponseWriter, r *http.Request) {
	plans, err := h.svc.Plans(r.Context())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	items := make([]map[string]any, 0, len(plans))
	for _, p := range plans {
		items = append(items, map[string]any{
			"id":            p.ID,
			"name":          p.Name,
			"slug":          p.Slug,
			"description":   p.Description,
			"price":         p.Price,
			"billing_cycle": p.BillingCycle,
			"features":      p.Features,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) subscribe(w http.ResponseWriter, r *http.Request) {
	h.startPayment(w, r, h.svc.Subscribe)
}

func (h *Handler) upgrade(w http.ResponseWriter, r *http.Request) {
	h.startPayment(w, r, h.svc.Upgrade)
}

func (h *Handler) startPayment(w http.ResponseWriter, r *http.Request, start func(ctx context.Context, in service.SubscribeInput) (service.SubscribeResult, error)) {
	tenantID, ok := pathID(w, r, "tenantID")
	if !ok {
		return
	}

	var req paymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.PlanID == 0 {
		writeError(w, http.StatusBadRequest, "plan_id is required")
		return
	}

	result, err := start(r.Context(), service.SubscribeInput{
		TenantID:    tenantID,
		PlanID:      req.PlanID,
		Gateway:     req.Gateway,
		Currency:    req.Currency,
		CallbackURL: req.CallbackURL,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"transaction":       toTransactionResponse(result.Transaction),
		"authorization_url": result.AuthorizationURL,
	})
}

func (h *Handler) transactions(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := pathID(w, r, "tenantID")
	if !ok {
		return
	}
	txns, err := h.svc.Transactions(r.Context(), tenantID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	items := make([]transactionResponse, 0, len(txns))
	for _, t := range txns {
		items = append(items, toTransactionResponse(t))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) verify(w http.ResponseWriter, r *http.Request) {
	reference := chi.URLParam(r, "reference")
	txn, err := h.svc.VerifyPayment(r.Context(), reference)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionResponse(txn))
}

func (h *Handler) webhook(w http.ResponseWriter, r *http.Request) {
	gatewayName := chi.URLParam(r, "gateway")
	header, ok := signatureHeaders[gatewayName]
	if !ok {
		writeError(w, http.StatusNotFound, "unknown gateway")
		return
	}

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	if err := h.svc.HandleWebhook(r.Context(), gatewayName, payload, r.Header.Get(header)); err != nil {
		var gwErr *gateway.Error
		switch {
		case errors.As(err, &gwErr):
			h.log.Warn("webhook rejected",
				zap.String("gateway", gatewayName), zap.Error(err))
			writeError(w, http.StatusBadRequest, "webhook rejected")
		case errors.Is(err, service.ErrTransactionNotFound):
			writeError(w, http.StatusNotFound, err.Error())
		default:
			h.log.Error("webhook processing failed",
				zap.String("gateway", gatewayName), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}
	w.WriteHeader(http.StatusOK)
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid "+name)
		return 0, false
	}
	return id, true
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	var gwErr *gateway.Error
	switch {
	case errors.Is(err, service.ErrTenantNotFound),
		errors.Is(err, service.ErrPlanNotFound),
		errors.Is(err, service.ErrTransactionNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrPlanInactive), errors.Is(err, service.ErrSamePlan):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, gateway.ErrUnsupportedGateway):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &gwErr):
		h.log.Error("gateway call failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, gwErr.Error())
	default:
		h.log.Error("billing operation failed", zap.Error(err))
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
