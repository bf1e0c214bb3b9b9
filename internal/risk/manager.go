package risk

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"kraken-auto-trader-go/internal/alerts"
	"kraken-auto-trader-go/internal/market"
	"kraken-auto-trader-go/internal/strategy"

	"go.uber.org/zap"
)

// Alerter receives risk notifications.
type Alerter interface {
	Send(event, message string, severity alerts.Severity, details map[string]any)
}

type nopAlerter struct{}

func (nopAlerter) Send(string, string, alerts.Severity, map[string]any) {}

// Decision is the verdict on one signal. Zero protective prices mean none.
type Decision struct {
	Approved         bool        `json:"approved"`
	Reason           string      `json:"reason"`
	Pair             string      `json:"pair"`
	Side             market.Side `json:"side"`
	Volume           float64     `json:"volume,omitempty"`
	PositionFraction float64     `json:"position_fraction,omitempty"`
	Direction        Direction   `json:"direction"`
	EntryPrice       float64     `json:"entry_price,omitempty"`
	StopLossPrice    float64     `json:"stop_loss_price,omitempty"`
	TakeProfitPrice  float64     `json:"take_profit_price,omitempty"`
	ClosingPosition  bool        `json:"closing_position"`
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithDefaults replaces the default limits that strategy overrides merge onto.
func WithDefaults(l Limits) Option {
	return func(m *Manager) { m.defaults = l }
}

// Manager evaluates signals against daily limits, cooldowns and position
// sizing, and owns the persisted risk state.
type Manager struct {
	mu       sync.Mutex
	path     string
	state    State
	defaults Limits
	alerts   Alerter
	logger   *zap.Logger
	now      func() time.Time
}

// NewManager loads the risk state from path. A corrupt state file is logged
// and replaced by a fresh state.
func NewManager(path string, alerter Alerter, logger *zap.Logger, opts ...Option) *Manager {
	m := &Manager{
		path:     path,
		defaults: DefaultLimits(),
		alerts:   alerter,
		logger:   logger.Named("risk"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.alerts == nil {
		m.alerts = nopAlerter{}
	}

	st, err := LoadState(path, m.now())
	switch {
	case errors.Is(err, ErrInvalidEntries):
		m.logger.Warn("Risk state had invalid entries", zap.String("path", path), zap.Error(err))
	case err != nil:
		m.logger.Warn("Risk state unreadable, starting fresh", zap.String("path", path), zap.Error(err))
	}
	m.state = st
	return m
}

func (m *Manager) reject(pair string, side market.Side, reason string) Decision {
	m.logger.Info("Signal rejected", zap.String("pair", pair), zap.String("side", string(side)), zap.String("reason", reason))
	return Decision{Pair: pair, Side: side, Reason: reason, Direction: DirectionFlat}
}

// EvaluateSignal decides whether sig may be traded and sizes it.
func (m *Manager) EvaluateSignal(sig strategy.Signal, ctx strategy.Context) Decision {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now().UTC()
	if m.state.resetIfNewDay(now) {
		m.persist()
	}

	pair := ctx.Pair
	side := sig.Action.Side()
	if sig.Action != strategy.ActionBuy && sig.Action != strategy.ActionSell {
		return m.reject(pair, side, fmt.Sprintf("Unsupported signal action %q", sig.Action))
	}

	limits, err := MergeLimits(m.defaults, ctx.Config.Risk)
	if err != nil {
		m.logger.Error("Invalid risk parameters", zap.String("strategy", ctx.Config.Key), zap.Error(err))
		return m.reject(pair, side, fmt.Sprintf("Invalid risk parameters: %v", err))
	}

	if m.state.DailyTrades >= limits.MaxDailyTrades {
		return m.reject(pair, side, "Daily trade limit reached")
	}

	if h := m.state.HistoryByPair[pair]; h != nil && h.LastTradeAt != nil {
		gap := time.Duration(limits.MinTradeGapMinutes) * time.Minute
		if now.Sub(*h.LastTradeAt) < gap {
			return m.reject(pair, side, fmt.Sprintf("Minimum trade gap of %d minutes not met for %s", limits.MinTradeGapMinutes, pair))
		}
	}

	if equity := estimateEquity(ctx); equity > 0 {
		maxLoss := limits.MaxDailyLoss * equity
		if m.state.DailyLoss >= maxLoss {
			m.alertDailyLoss(maxLoss)
			return m.reject(pair, side, "Maximum daily loss threshold reached")
		}
	}

	existing := m.state.Positions[pair]
	closing := existing != nil &&
		(existing.Direction == DirectionLong && side == market.SideSell ||
			existing.Direction == DirectionShort && side == market.SideBuy)
	if existing != nil && !closing {
		return m.reject(pair, side, fmt.Sprintf("Existing %s position already open for %s", existing.Direction, pair))
	}
	if !closing && len(m.state.Positions) >= limits.MaxPositions {
		return m.reject(pair, side, "Maximum concurrent positions reached")
	}

	price, ok := ctx.Candles.LastClose()
	if !ok || price <= 0 {
		return m.reject(pair, side, "Unable to determine latest close price")
	}

	volume := calculateVolume(ctx, side, price, limits.PositionSize, existing, closing)
	if !(volume > 0) {
		return m.reject(pair, side, "Calculated trade volume is non-positive")
	}

	d := Decision{
		Approved:         true,
		Reason:           "Signal approved",
		Pair:             pair,
		Side:             side,
		Volume:           volume,
		PositionFraction: limits.PositionSize,
		EntryPrice:       price,
		ClosingPosition:  closing,
	}
	switch {
	case closing:
		d.Direction = existing.Direction
	case side == market.SideBuy:
		d.Direction = DirectionLong
	default:
		d.Direction = DirectionShort
	}
	if !closing {
		d.StopLossPrice, d.TakeProfitPrice = protectivePrices(price, d.Direction, limits)
	}
	return d
}

// RecordExecution books an executed (or simulated) decision and returns the
// realised PnL, which is non-zero only when a position is closed.
func (m *Manager) RecordExecution(pair string, d Decision, ctx strategy.Context) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now().UTC()
	m.state.resetIfNewDay(now)

	price := d.EntryPrice
	if price <= 0 {
		price, _ = ctx.Candles.LastClose()
	}

	realised := 0.0
	if d.ClosingPosition {
		if pos := m.state.Positions[pair]; pos == nil {
			m.logger.Debug("No tracked position to close", zap.String("pair", pair))
		} else {
			volume := pos.Volume
			if d.Volume > 0 && d.Volume < volume {
				volume = d.Volume
			}
			if pos.Direction == DirectionShort {
				realised = (pos.EntryPrice - price) * volume
			} else {
				realised = (price - pos.EntryPrice) * volume
			}
			if volume >= pos.Volume {
				delete(m.state.Positions, pair)
			} else {
				pos.Volume -= volume
			}
		}
	} else if d.Volume > 0 {
		direction := d.Direction
		if direction == "" || direction == DirectionFlat {
			direction = DirectionLong
		}
		m.state.Positions[pair] = &Position{Direction: direction, EntryPrice: price, Volume: d.Volume, OpenedAt: now}
	}

	m.state.DailyTrades++
	if realised < 0 {
		m.state.DailyLoss += -realised
	}
	m.state.DailyRealisedPnL += realised

	h := m.state.HistoryByPair[pair]
	if h == nil {
		h = &PairHistory{}
		m.state.HistoryByPair[pair] = h
	}
	h.LastTradeAt = &now
	h.TradesToday++

	m.state.AsOf = now.Format(dateLayout)
	m.persist()

	if limits, err := MergeLimits(m.defaults, ctx.Config.Risk); err == nil {
		if equity := estimateEquity(ctx); equity > 0 && m.state.DailyLoss >= limits.MaxDailyLoss*equity {
			m.alertDailyLoss(limits.MaxDailyLoss * equity)
		}
	}
	return realised
}

// alertDailyLoss fires once per UTC day. The caller holds m.mu.
func (m *Manager) alertDailyLoss(limit float64) {
	if m.state.DailyLossAlerted {
		return
	}
	m.state.DailyLossAlerted = true
	m.persist()
	m.alerts.Send("risk.daily_loss_limit", "Daily loss limit reached; halting new trades", alerts.SeverityError, map[string]any{
		"daily_loss": round2(m.state.DailyLoss),
		"limit":      round2(limit),
	})
}

// persist writes the state; failures leave the in-memory state authoritative.
func (m *Manager) persist() {
	if err := SaveState(m.path, m.state); err != nil {
		m.logger.Error("Failed to persist risk state", zap.String("path", m.path), zap.Error(err))
	}
}

// estimateEquity approximates account equity by the pair's quote balance.
// Open positions are not marked to market, so equity is understated while
// positions are large.
func estimateEquity(ctx strategy.Context) float64 {
	_, quote, ok := market.SplitPair(ctx.Pair)
	if !ok {
		return 0
	}
	balance, _ := ctx.Balances.Lookup(quote)
	return math.Max(0, balance)
}

func calculateVolume(ctx strategy.Context, side market.Side, price, fraction float64, existing *Position, closing bool) float64 {
	if closing && existing != nil {
		return existing.Volume
	}
	base, quote, ok := market.SplitPair(ctx.Pair)
	if !ok {
		return 0
	}
	if side == market.SideBuy {
		balance, _ := ctx.Balances.Lookup(quote)
		return balance * fraction / price
	}
	balance, _ := ctx.Balances.Lookup(base)
	return balance * fraction
}

func protectivePrices(entry float64, direction Direction, limits Limits) (stopLoss, takeProfit float64) {
	if direction == DirectionShort {
		if limits.StopLoss > 0 {
			stopLoss = entry * (1 + limits.StopLoss)
		}
		if limits.TakeProfit > 0 && limits.TakeProfit < 1 {
			takeProfit = entry * (1 - limits.TakeProfit)
		}
		return stopLoss, takeProfit
	}
	if limits.StopLoss > 0 {
		stopLoss = entry * (1 - limits.StopLoss)
	}
	if limits.TakeProfit > 0 {
		takeProfit = entry * (1 + limits.TakeProfit)
	}
	return stopLoss, takeProfit
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Summary is a point-in-time view of the risk state for operators.
type Summary struct {
	AsOf             string                 `json:"as_of"`
	DailyLoss        float64                `json:"daily_loss"`
	DailyTrades      int                    `json:"daily_trades"`
	DailyLossAlerted bool                   `json:"daily_loss_alerted"`
	DailyRealisedPnL float64                `json:"daily_realised_pnl"`
	Limits           Limits                 `json:"limits"`
	Positions        map[string]Position    `json:"positions"`
	HistoryByPair    map[string]PairHistory `json:"history_by_pair"`
}

// Summarize copies st into a Summary.
func Summarize(st State, limits Limits) Summary {
	s := Summary{
		AsOf:             st.AsOf,
		DailyLoss:        st.DailyLoss,
		DailyTrades:      st.DailyTrades,
		DailyLossAlerted: st.DailyLossAlerted,
		DailyRealisedPnL: st.DailyRealisedPnL,
		Limits:           limits,
		Positions:        make(map[string]Position, len(st.Positions)),
		HistoryByPair:    make(map[string]PairHistory, len(st.HistoryByPair)),
	}
	for pair, pos := range st.Positions {
		s.Positions[pair] = *pos
	}
	for pair, h := range st.HistoryByPair {
		s.HistoryByPair[pair] = *h
	}
	return s
}

// Status returns the current risk state after applying any day rollover.
func (m *Manager) Status() Summary {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.resetIfNewDay(m.now().UTC()) {
		m.persist()
	}
	return Summarize(m.state, m.defaults)
}
