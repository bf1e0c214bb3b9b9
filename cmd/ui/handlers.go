package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"kraken-auto-trader-go/internal/config"
	"kraken-auto-trader-go/internal/database"
	"kraken-auto-trader-go/internal/models"
	"kraken-auto-trader-go/internal/risk"
	"kraken-auto-trader-go/internal/trader"

	"github.com/spf13/cast"
	"go.uber.org/zap"
)

const (
	defaultTradeLimit = 100
	maxTradeLimit     = 1000
)

// TradeStore is the read side of the trade journal.
type TradeStore interface {
	Recent(ctx context.Context, limit int) ([]models.Trade, error)
	Stats(ctx context.Context, since time.Time) (database.Stats, error)
}

// APIHandler holds dependencies for the API endpoints.
type APIHandler struct {
	log    *zap.Logger
	trades TradeStore
	cfg    config.Config
	now    func() time.Time
}

// NewAPIHandler creates a new APIHandler.
func NewAPIHandler(log *zap.Logger, trades TradeStore, cfg config.Config) *APIHandler {
	return &APIHandler{log: log, trades: trades, cfg: cfg, now: time.Now}
}

// Routes registers the dashboard endpoints.
func (h *APIHandler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", h.StatusHandler)
	mux.HandleFunc("/api/trades", h.TradesHandler)
	mux.HandleFunc("/api/statistics", h.StatisticsHandler)
	mux.HandleFunc("/api/risk", h.RiskHandler)
	return mux
}

func (h *APIHandler) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error("Failed to write response", zap.Error(err))
	}
}

// StatusHandler returns the engine status snapshot.
func (h *APIHandler) StatusHandler(w http.ResponseWriter, r *http.Request) {
	st, err := trader.ReadStatus(h.cfg.Engine.StatusFile())
	if err != nil {
		h.log.Error("Failed to read engine status", zap.Error(err))
		http.Error(w, "Failed to read status", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, st)
}

// TradesHandler returns the most recent journalled trades.
func (h *APIHandler) TradesHandler(w http.ResponseWriter, r *http.Request) {
	limit := defaultTradeLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := cast.ToIntE(raw)
		if err != nil || n <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = min(n, maxTradeLimit)
	}

	trades, err := h.trades.Recent(r.Context(), limit)
	if err != nil {
		h.log.Error("Failed to get trades from database", zap.Error(err))
		http.Error(w, "Failed to get trades", http.StatusInternalServerError)
		return
	}
	if trades == nil {
		trades = []models.Trade{}
	}
	h.writeJSON(w, trades)
}

// StatisticsResponse is the structure for the /api/statistics endpoint.
type StatisticsResponse struct {
	Since24h database.Stats `json:"since_24h"`
	AllTime  database.Stats `json:"all_time"`
}

// StatisticsHandler returns journal statistics for the last day and all time.
func (h *APIHandler) StatisticsHandler(w http.ResponseWriter, r *http.Request) {
	since24h := h.now().UTC().Add(-24 * time.Hour)

	recent, err := h.trades.Stats(r.Context(), since24h)
	if err != nil {
		h.log.Error("Failed to get trades for statistics", zap.Error(err))
		http.Error(w, "Failed to calculate statistics", http.StatusInternalServerError)
		return
	}
	allTime, err := h.trades.Stats(r.Context(), time.Time{})
	if err != nil {
		h.log.Error("Failed to get trades for statistics", zap.Error(err))
		http.Error(w, "Failed to calculate statistics", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, StatisticsResponse{Since24h: recent, AllTime: allTime})
}

// RiskHandler returns the persisted risk state.
func (h *APIHandler) RiskHandler(w http.ResponseWriter, r *http.Request) {
	state, err := risk.LoadState(h.cfg.Risk.StateFile, h.now().UTC())
	if errors.Is(err, risk.ErrInvalidEntries) {
		h.log.Warn("Risk state had invalid entries", zap.Error(err))
		err = nil
	}
	if err != nil {
		h.log.Error("Failed to read risk state", zap.Error(err))
		http.Error(w, "Failed to read risk state", http.StatusInternalServerError)
		return
	}
	limits, err := risk.MergeLimits(risk.DefaultLimits(), h.cfg.Risk.Limits)
	if err != nil {
		h.log.Warn("Invalid risk limits in config, showing defaults", zap.Error(err))
	}
	h.writeJSON(w, risk.Summarize(state, limits))
}
