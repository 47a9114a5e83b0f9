package api

import (
	"errors"
	"net/http"

	"github.com/newthinker/quantguard/internal/api/response"
	"github.com/newthinker/quantguard/internal/core"
	"github.com/newthinker/quantguard/internal/risk"
	"github.com/newthinker/quantguard/internal/sizing"
)

// SizeRequest is the body of POST /api/v1/size. Zero risk fraction and
// max position value fall back to the current limits.
type SizeRequest struct {
	EntryPrice       float64 `json:"entry_price"`
	StopPrice        float64 `json:"stop_price"`
	AccountBalance   float64 `json:"account_balance"`
	RiskFraction     float64 `json:"risk_fraction,omitempty"`
	MaxPositionValue float64 `json:"max_position_value,omitempty"`
}

// SizingHandler sizes positions, alone or through the entry planner.
type SizingHandler struct {
	limits  *risk.ConfigHolder
	planner *risk.Planner
}

// NewSizingHandler creates a new sizing handler.
func NewSizingHandler(limits *risk.ConfigHolder, planner *risk.Planner) *SizingHandler {
	return &SizingHandler{limits: limits, planner: planner}
}

// Size runs the position sizer. An entry equal to the stop answers 200 with
// a SKIP recommendation.
func (h *SizingHandler) Size(w http.ResponseWriter, r *http.Request) {
	var req SizeRequest
	if err := decodeJSON(r, &req, false); err != nil {
		response.FromError(w, err)
		return
	}
	cfg := h.limits.Get()
	if req.RiskFraction == 0 {
		req.RiskFraction = cfg.MaxRiskFraction
	}
	if req.MaxPositionValue == 0 {
		req.MaxPositionValue = cfg.MaxPositionValue
	}

	res, err := sizing.SizeFloat(req.EntryPrice, req.StopPrice, req.AccountBalance, req.RiskFraction, req.MaxPositionValue)
	if err != nil && !errors.Is(err, core.ErrInvalidStopPrice) {
		response.FromError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, res)
}

// Plan sizes an entry after the breaker and position-limit gates.
func (h *SizingHandler) Plan(w http.ResponseWriter, r *http.Request) {
	var req risk.PlanRequest
	if err := decodeJSON(r, &req, false); err != nil {
		response.FromError(w, err)
		return
	}

	plan, err := h.planner.Plan(r.Context(), req)
	if err != nil && !errors.Is(err, core.ErrInvalidStopPrice) {
		response.FromError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, plan)
}
