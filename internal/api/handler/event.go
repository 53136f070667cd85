package handler

import (
	"net/http"

	"github.com/kmahoney/transit-orchestrator/internal/domain"
	"github.com/kmahoney/transit-orchestrator/internal/workflow"
)

// EventHandler accepts inbound tag-change events and runs them through the
// workflow engine synchronously.
type EventHandler struct {
	engine *workflow.Engine
}

func NewEventHandler(engine *workflow.Engine) *EventHandler {
	return &EventHandler{engine: engine}
}

// Submit handles POST /events. The response body is the finished
// reconciliation context; a transient conflict maps to 503 with Retry-After
// so the event bus redelivers.
func (h *EventHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var ev domain.TagChangeEvent
	if err := decodeJSON(r, &ev); err != nil {
		handleError(w, err)
		return
	}
	if ev.Account == "" || len(ev.Resources) == 0 {
		respondError(w, http.StatusBadRequest, "event needs an account and at least one resource")
		return
	}

	c, err := h.engine.HandleTagChange(r.Context(), ev)
	if err != nil {
		if c == nil || domain.IsRetryable(err) {
			handleError(w, err)
			return
		}
		// Reconciliation failed but the outcome was recorded; return the
		// failed context so the caller sees status and comment.
	}
	respondJSON(w, http.StatusOK, c)
}
