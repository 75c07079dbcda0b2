package http

import (
	"net/http"
	"strconv"

	"golang-signal-engine/internal/engine/dto"
	"golang-signal-engine/internal/engine/repository"
	"golang-signal-engine/internal/engine/service"
	"golang-signal-engine/internal/entity"
	"golang-signal-engine/pkg/logger"

	"github.com/labstack/echo/v4"
)

// EngineHandler exposes the signal and decision logs, the derived
// position state and manual run triggers.
type EngineHandler struct {
	runner    *service.Runner
	signals   repository.SignalRepository
	decisions repository.DecisionRepository
	logger    *logger.Logger
}

// NewEngineHandler creates a new EngineHandler.
func NewEngineHandler(runner *service.Runner, signals repository.SignalRepository, decisions repository.DecisionRepository, logger *logger.Logger) *EngineHandler {
	return &EngineHandler{runner: runner, signals: signals, decisions: decisions, logger: logger}
}

// RegisterRoutes registers the engine routes to the Echo group.
func (h *EngineHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/signals/:symbol", h.GetSignals)
	g.GET("/decisions/:symbol", h.GetDecisions)
	g.GET("/positions/:symbol", h.GetPosition)
	g.POST("/runs/signals", h.RunSignals)
	g.POST("/runs/decisions", h.RunDecisions)
}

// GetSignals returns the most recent signals for a symbol.
func (h *EngineHandler) GetSignals(c echo.Context) error {
	symbol := c.Param("symbol")
	limit := parseLimit(c.QueryParam("limit"), 50)

	signals, err := h.signals.GetRecent(c.Request().Context(), symbol, maxBucketTs, limit)
	if err != nil {
		h.logger.Error("Failed to get signals", logger.ErrorField(err), logger.StringField("symbol", symbol))
		return c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to get signals"})
	}
	return c.JSON(http.StatusOK, signals)
}

// GetDecisions returns the most recent decisions for a symbol.
func (h *EngineHandler) GetDecisions(c echo.Context) error {
	symbol := c.Param("symbol")
	limit := parseLimit(c.QueryParam("limit"), 50)

	decisions, err := h.decisions.GetRecent(c.Request().Context(), symbol, limit)
	if err != nil {
		h.logger.Error("Failed to get decisions", logger.ErrorField(err), logger.StringField("symbol", symbol))
		return c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to get decisions"})
	}
	return c.JSON(http.StatusOK, decisions)
}

// GetPosition returns the position state derived from the latest
// decision.
func (h *EngineHandler) GetPosition(c echo.Context) error {
	symbol := c.Param("symbol")

	last, err := h.decisions.GetLatest(c.Request().Context(), symbol)
	if err != nil {
		h.logger.Error("Failed to get latest decision", logger.ErrorField(err), logger.StringField("symbol", symbol))
		return c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to get position"})
	}

	resp := dto.PositionResponse{Symbol: symbol, State: entity.PositionFlat}
	if last != nil {
		resp.State = entity.PositionAfter(last.Action)
		resp.LastAction = last.Action
		resp.BucketTs = last.BucketTs
	}
	return c.JSON(http.StatusOK, resp)
}

// RunSignals triggers a signal batch run outside the cadence.
func (h *EngineHandler) RunSignals(c echo.Context) error {
	summary := h.runner.RunSignals(c.Request().Context())
	return c.JSON(http.StatusOK, summary)
}

// RunDecisions triggers a decision batch run outside the cadence.
func (h *EngineHandler) RunDecisions(c echo.Context) error {
	summary := h.runner.RunDecisions(c.Request().Context())
	return c.JSON(http.StatusOK, summary)
}

// maxBucketTs is an upper bound accepted by the recent-signal query.
const maxBucketTs = int64(1) << 62

func parseLimit(raw string, def int) int {
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 || n > 1000 {
		return def
	}
	return n
}
