package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/kmahoney/transit-orchestrator/internal/domain"
	"github.com/kmahoney/transit-orchestrator/internal/storage"
	"github.com/kmahoney/transit-orchestrator/internal/workflow"
)

// RequestHandler serves the persisted attachment requests and accepts
// operator decisions on pending ones.
type RequestHandler struct {
	store  storage.Storage
	engine *workflow.Engine
}

func NewRequestHandler(store storage.Storage, engine *workflow.Engine) *RequestHandler {
	return &RequestHandler{store: store, engine: engine}
}

// List handles GET /requests with optional status, vpc_id, subnet_id and
// limit query parameters.
func (h *RequestHandler) List(w http.ResponseWriter, r *http.Request) {
	filter := storage.RequestFilter{
		Status:   domain.WorkflowStatus(r.URL.Query().Get("status")),
		VPCID:    r.URL.Query().Get("vpc_id"),
		SubnetID: r.URL.Query().Get("subnet_id"),
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			respondError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		filter.Limit = limit
	}

	requests, err := h.store.ListRequests(r.Context(), filter)
	if err != nil {
		handleError(w, err)
		return
	}
	if requests == nil {
		requests = []*domain.AttachmentRequest{}
	}
	respondJSON(w, http.StatusOK, requests)
}

// Get handles GET /requests/{id}.
func (h *RequestHandler) Get(w http.ResponseWriter, r *http.Request) {
	req, err := h.store.GetRequest(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, req)
}

// Audit handles GET /requests/{id}/audit, returning the execution's
// step-level trail.
func (h *RequestHandler) Audit(w http.ResponseWriter, r *http.Request) {
	records, err := h.store.ListAudit(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleError(w, err)
		return
	}
	if records == nil {
		records = []*domain.AuditRecord{}
	}
	respondJSON(w, http.StatusOK, records)
}

type decisionRequest struct {
	UserID string `json:"user_id"`
}

// Accept handles POST /requests/{id}/accept.
func (h *RequestHandler) Accept(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, domain.AdminActionAccept)
}

// Reject handles POST /requests/{id}/reject.
func (h *RequestHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, domain.AdminActionReject)
}

func (h *RequestHandler) decide(w http.ResponseWriter, r *http.Request, action domain.AdminAction) {
	var body decisionRequest
	if r.ContentLength > 0 {
		if err := decodeJSON(r, &body); err != nil {
			handleError(w, err)
			return
		}
	}

	c, err := h.engine.Decide(r.Context(), chi.URLParam(r, "id"), action, body.UserID)
	if err != nil {
		if c == nil || domain.IsRetryable(err) {
			handleError(w, err)
			return
		}
	}
	respondJSON(w, http.StatusOK, c)
}
