package api

import (
	"net/http"
	"strconv"

	"github.com/newthinker/quantguard/internal/api/response"
	"github.com/newthinker/quantguard/internal/risk"
)

const defaultEventLimit = 20

// ReasonRequest carries an operator note for trip and reset.
type ReasonRequest struct {
	Reason string `json:"reason"`
}

// BreakerHandler exposes the circuit breaker.
type BreakerHandler struct {
	breaker *risk.Breaker
}

// NewBreakerHandler creates a new breaker handler.
func NewBreakerHandler(breaker *risk.Breaker) *BreakerHandler {
	return &BreakerHandler{breaker: breaker}
}

// Status returns the breaker state and its recent events.
func (h *BreakerHandler) Status(w http.ResponseWriter, r *http.Request) {
	limit := defaultEventLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	events, err := h.breaker.Events(r.Context(), limit)
	if err != nil {
		response.FromError(w, err)
		return
	}
	if events == nil {
		events = []risk.BreakerEvent{}
	}

	response.JSON(w, http.StatusOK, map[string]any{
		"status": h.breaker.Status(),
		"events": events,
	})
}

// Trip opens the breaker by hand.
func (h *BreakerHandler) Trip(w http.ResponseWriter, r *http.Request) {
	var req ReasonRequest
	if err := decodeJSON(r, &req, true); err != nil {
		response.FromError(w, err)
		return
	}

	ev, err := h.breaker.Trip(r.Context(), req.Reason)
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.JSON(w, http.StatusCreated, ev)
}

// Reset closes the open event. Resetting a closed breaker is not an error.
func (h *BreakerHandler) Reset(w http.ResponseWriter, r *http.Request) {
	var req ReasonRequest
	if err := decodeJSON(r, &req, true); err != nil {
		response.FromError(w, err)
		return
	}

	ev, err := h.breaker.Reset(r.Context(), req.Reason)
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, map[string]any{
		"reset": ev != nil,
		"event": ev,
	})
}
