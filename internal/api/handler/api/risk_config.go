package api

import (
	"net/http"

	"github.com/newthinker/quantguard/internal/api/response"
	"github.com/newthinker/quantguard/internal/core"
	"github.com/newthinker/quantguard/internal/risk"
	"go.uber.org/zap"
)

// RiskConfigHandler reads and hot-reloads the risk limits.
type RiskConfigHandler struct {
	limits  *risk.ConfigHolder
	breaker *risk.Breaker
	clock   core.Clock
	logger  *zap.Logger
}

// NewRiskConfigHandler creates a new risk config handler.
func NewRiskConfigHandler(limits *risk.ConfigHolder, breaker *risk.Breaker, clock core.Clock, logger *zap.Logger) *RiskConfigHandler {
	if clock == nil {
		clock = core.SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RiskConfigHandler{limits: limits, breaker: breaker, clock: clock, logger: logger}
}

// Get returns the current limits.
func (h *RiskConfigHandler) Get(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, h.limits.Get())
}

// Update replaces the limits. The breaker is re-evaluated so a tighter loss
// limit takes effect without waiting for the next trigger.
func (h *RiskConfigHandler) Update(w http.ResponseWriter, r *http.Request) {
	var cfg risk.Config
	if err := decodeJSON(r, &cfg, false); err != nil {
		response.FromError(w, err)
		return
	}
	if err := h.limits.Update(cfg); err != nil {
		response.FromError(w, err)
		return
	}

	if _, err := h.breaker.Evaluate(r.Context(), h.clock.Now()); err != nil {
		h.logger.Error("breaker evaluation after limit update failed", zap.Error(err))
	}
	response.JSON(w, http.StatusOK, h.limits.Get())
}
