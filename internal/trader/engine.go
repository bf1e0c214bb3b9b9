package trader

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"kraken-auto-trader-go/internal/alerts"
	"kraken-auto-trader-go/internal/config"
	"kraken-auto-trader-go/internal/market"
	"kraken-auto-trader-go/internal/models"
	"kraken-auto-trader-go/internal/monitoring"
	"kraken-auto-trader-go/internal/risk"
	"kraken-auto-trader-go/internal/strategy"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ErrNoCandles is returned for a pair whose candle payload is empty.
var ErrNoCandles = errors.New("no candles")

// Exchange is the market data, portfolio and execution surface the engine consumes.
type Exchange interface {
	GetCandles(ctx context.Context, pair string, interval int) (market.Candles, error)
	GetBalances(ctx context.Context) (market.Balances, error)
	GetOpenPositions(ctx context.Context) (map[string]market.Position, error)
	PlaceOrder(ctx context.Context, req market.OrderRequest) (string, error)
}

// StrategySource provides the strategies to run.
type StrategySource interface {
	Refresh() error
	Strategy(key string) (strategy.Strategy, error)
	ActiveStrategies() []strategy.Strategy
}

// RiskEvaluator decides on signals and books executions.
type RiskEvaluator interface {
	EvaluateSignal(sig strategy.Signal, ctx strategy.Context) risk.Decision
	RecordExecution(pair string, d risk.Decision, ctx strategy.Context) float64
	Status() risk.Summary
}

// AlertSink receives engine notifications.
type AlertSink interface {
	Send(event, message string, severity alerts.Severity, details map[string]any)
}

// TradeJournal stores placed and simulated orders.
type TradeJournal interface {
	Record(ctx context.Context, trade *models.Trade) error
}

// RunOptions narrows what a cycle evaluates. Zero values fall back to the
// engine configuration and the strategies' own settings.
type RunOptions struct {
	Strategies   []string
	Pairs        []string
	Timeframe    string
	DryRun       *bool
	PollInterval time.Duration
	MaxCycles    int
}

// Engine is the trading loop: it drives strategies, risk checks and order
// execution once per cycle.
type Engine struct {
	logger     *zap.Logger
	cfg        config.Engine
	exchange   Exchange
	strategies StrategySource
	risk       RiskEvaluator
	alerts     AlertSink
	journal    TradeJournal
	pacer      *rate.Limiter
	now        func() time.Time

	mu     sync.Mutex
	status Status

	stopRequested chan struct{}
	stopOnce      sync.Once
}

// NewEngine creates a new trading engine. journal may be nil.
func NewEngine(logger *zap.Logger, cfg config.Engine, exchange Exchange, strategies StrategySource, riskEval RiskEvaluator, alertSink AlertSink, journal TradeJournal) *Engine {
	if alertSink == nil {
		alertSink = noAlerts{}
	}
	return &Engine{
		logger:        logger.Named("engine"),
		cfg:           cfg,
		exchange:      exchange,
		strategies:    strategies,
		risk:          riskEval,
		alerts:        alertSink,
		journal:       journal,
		pacer:         rate.NewLimiter(rate.Every(cfg.RequestDelay()), 1),
		now:           time.Now,
		status:        Status{State: StateStopped, DryRun: cfg.DryRun},
		stopRequested: make(chan struct{}),
	}
}

type noAlerts struct{}

func (noAlerts) Send(string, string, alerts.Severity, map[string]any) {}

// Status returns a copy of the current status.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	st := e.status
	st.ActivePairs = append([]string(nil), e.status.ActivePairs...)
	st.ActiveStrategies = append([]string(nil), e.status.ActiveStrategies...)
	return st
}

func (e *Engine) updateStatus(fn func(*Status)) {
	e.mu.Lock()
	fn(&e.status)
	e.mu.Unlock()
}

// persistStatus writes the snapshot; failures are logged only.
func (e *Engine) persistStatus() {
	st := e.Status()
	if err := writeStatus(e.cfg.StatusFile(), st); err != nil {
		e.logger.Error("Failed to persist engine status", zap.Error(err))
	}
}

// RequestStop asks the loop to stop at the next cycle boundary. The stop
// marker is written too so other processes observe the request.
func (e *Engine) RequestStop() {
	if err := WriteStopMarker(e.cfg.StopFile()); err != nil {
		e.logger.Error("Failed to write stop marker", zap.Error(err))
	}
	e.updateStatus(func(s *Status) {
		if s.Running {
			s.State = StateStopping
		}
	})
	e.persistStatus()
	e.stopOnce.Do(func() { close(e.stopRequested) })
}

func (e *Engine) shouldStop(ctx context.Context) bool {
	if ctx.Err() != nil {
		return true
	}
	select {
	case <-e.stopRequested:
		return true
	default:
	}
	return stopMarkerExists(e.cfg.StopFile())
}

func (e *Engine) dryRun(opts RunOptions) bool {
	if opts.DryRun != nil {
		return *opts.DryRun
	}
	return e.cfg.DryRun
}

// RunForever executes cycles until a stop is requested, ctx is cancelled or
// the cycle limit is reached. A cycle in flight always completes.
func (e *Engine) RunForever(ctx context.Context, opts RunOptions) {
	if err := e.strategies.Refresh(); err != nil {
		e.logger.Error("Strategy refresh failed, keeping previous configuration", zap.Error(err))
	}

	interval := opts.PollInterval
	if interval <= 0 {
		interval = e.cfg.PollInterval
	}
	maxCycles := opts.MaxCycles
	if maxCycles <= 0 {
		maxCycles = e.cfg.MaxCycles
	}
	dryRun := e.dryRun(opts)

	startedAt := e.now().UTC()
	runID := uuid.NewString()
	e.updateStatus(func(s *Status) {
		s.RunID = runID
		s.State = StateRunning
		s.Running = true
		s.DryRun = dryRun
		s.StartedAt = &startedAt
		s.LastError = nil
		s.Cycles = 0
	})
	e.persistStatus()

	log := e.logger.With(zap.String("run_id", runID))
	log.Info("Trading engine started",
		zap.Bool("dry_run", dryRun),
		zap.Duration("poll_interval", interval),
		zap.Int("max_cycles", maxCycles),
	)

	defer e.finish(log)

	for cycle := 1; !e.shouldStop(ctx); cycle++ {
		start := time.Now()
		log.Info("Starting trading cycle", zap.Int("cycle", cycle))

		// Cancellation is honoured between cycles only, so order sequences are never cut short.
		processed, err := e.runCycle(context.WithoutCancel(ctx), opts)
		cycleAt := e.now().UTC()
		e.updateStatus(func(s *Status) {
			s.Cycles = cycle
			if err != nil {
				msg := err.Error()
				s.LastError = &msg
				return
			}
			s.ProcessedSignals = processed
			s.LastCycleAt = &cycleAt
			s.LastError = nil
		})
		if err != nil {
			log.Error("Trading cycle failed", zap.Int("cycle", cycle), zap.Error(err))
			monitoring.RecordError("cycle")
			e.alerts.Send("engine.cycle_error", fmt.Sprintf("Trading engine cycle failed: %v", err), alerts.SeverityError, map[string]any{
				"cycle": cycle,
			})
		} else {
			log.Info("Completed trading cycle", zap.Int("cycle", cycle), zap.Int("processed_signals", processed))
		}
		e.persistStatus()
		monitoring.RecordCycle(time.Since(start))
		monitoring.SetDailyLoss(e.risk.Status().DailyLoss)

		if maxCycles > 0 && cycle >= maxCycles {
			break
		}

		sleep := interval - time.Since(start)
		if sleep <= 0 {
			continue
		}
		timer := time.NewTimer(sleep)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
		case <-e.stopRequested:
			timer.Stop()
		}
	}
}

// runCycle runs one cycle and turns a panic anywhere inside it into the cycle's error.
func (e *Engine) runCycle(ctx context.Context, opts RunOptions) (processed int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cycle panicked: %v", r)
		}
	}()
	return e.RunOnce(ctx, opts)
}

// finish publishes the final status, clears the stop marker and announces the stop.
func (e *Engine) finish(log *zap.Logger) {
	if r := recover(); r != nil {
		msg := fmt.Sprintf("engine panic: %v", r)
		e.updateStatus(func(s *Status) { s.LastError = &msg })
		log.Error("Trading engine aborted", zap.Any("panic", r))
	}

	e.updateStatus(func(s *Status) {
		s.Running = false
		s.State = StateStopped
	})
	e.persistStatus()
	if err := clearStopMarker(e.cfg.StopFile()); err != nil {
		log.Warn("Failed to clear stop marker", zap.Error(err))
	}

	st := e.Status()
	severity := alerts.SeverityInfo
	message := "Trading engine stopped."
	var lastError any
	if st.LastError != nil {
		severity = alerts.SeverityWarning
		message = fmt.Sprintf("Trading engine stopped due to error: %s", *st.LastError)
		lastError = *st.LastError
	}
	var lastCycle any
	if st.LastCycleAt != nil {
		lastCycle = st.LastCycleAt.Format(time.RFC3339)
	}
	e.alerts.Send("engine.stopped", message, severity, map[string]any{
		"last_error":    lastError,
		"last_cycle_at": lastCycle,
		"run_id":        st.RunID,
	})
	log.Info("Trading engine stopped", zap.Int("cycles", st.Cycles))
}

// RunOnce executes a single evaluation cycle and returns the number of
// signals processed. Per-pair and per-strategy failures are logged and
// skipped; an error is returned only when the cycle could not run at all.
func (e *Engine) RunOnce(ctx context.Context, opts RunOptions) (int, error) {
	strategies, err := e.selectStrategies(opts.Strategies)
	if err != nil {
		return 0, err
	}

	keys := make([]string, 0, len(strategies))
	for _, s := range strategies {
		keys = append(keys, s.Config().Key)
	}
	e.updateStatus(func(s *Status) { s.ActiveStrategies = keys })

	balances, err := e.exchange.GetBalances(ctx)
	if err != nil {
		return 0, fmt.Errorf("could not get balances: %w", err)
	}
	positions, err := e.exchange.GetOpenPositions(ctx)
	if err != nil {
		return 0, fmt.Errorf("could not get open positions: %w", err)
	}

	dryRun := e.dryRun(opts)
	processed := 0
	var activePairs []string

	for _, strat := range strategies {
		cfg := strat.Config()
		timeframe := opts.Timeframe
		if timeframe == "" {
			timeframe = cfg.Timeframe
		}
		interval := market.TimeframeInterval(timeframe)
		log := e.logger.With(zap.String("strategy", cfg.Key), zap.String("timeframe", timeframe))

		for _, pair := range e.resolvePairs(cfg, opts.Pairs) {
			if !strategy.SupportsPair(strat, pair) {
				log.Debug("Strategy does not support pair", zap.String("pair", pair))
				continue
			}
			activePairs = append(activePairs, pair)

			if err := e.pacer.Wait(ctx); err != nil {
				return processed, err
			}
			candles, err := e.fetchCandles(ctx, pair, interval)
			if err != nil {
				log.Warn("Skipping pair for this cycle", zap.String("pair", pair), zap.Error(err))
				monitoring.RecordError("candles")
				continue
			}

			sctx := strategy.Context{
				Pair:      pair,
				Timeframe: timeframe,
				Candles:   candles,
				Balances:  balances,
				Positions: positions,
				Config:    cfg,
				Now:       e.now().UTC(),
			}

			signals, err := generateSignals(strat, sctx)
			if err != nil {
				log.Error("Signal generation failed", zap.String("pair", pair), zap.Error(err))
				monitoring.RecordError("strategy")
				continue
			}

			for _, sig := range signals {
				if sig.Strategy == "" {
					sig.Strategy = cfg.Key
				}
				processed++
				monitoring.RecordSignal(cfg.Key, pair, string(sig.Action))
				e.handleSignal(ctx, sig, sctx, dryRun)
			}
		}
	}

	e.updateStatus(func(s *Status) { s.ActivePairs = activePairs })
	return processed, nil
}

func (e *Engine) selectStrategies(keys []string) ([]strategy.Strategy, error) {
	if len(keys) == 0 {
		return e.strategies.ActiveStrategies(), nil
	}
	selected := make([]strategy.Strategy, 0, len(keys))
	for _, key := range keys {
		s, err := e.strategies.Strategy(key)
		if err != nil {
			return nil, fmt.Errorf("could not load strategy %q: %w", key, err)
		}
		selected = append(selected, s)
	}
	return selected, nil
}

// resolvePairs prefers the explicit override, then the strategy's pairs,
// then the configured default pair.
func (e *Engine) resolvePairs(cfg strategy.Config, override []string) []string {
	if len(override) > 0 {
		return override
	}
	if pairs := cfg.Pairs(); len(pairs) > 0 {
		return pairs
	}
	return []string{e.cfg.DefaultPair}
}

func (e *Engine) fetchCandles(ctx context.Context, pair string, interval int) (market.Candles, error) {
	candles, err := e.exchange.GetCandles(ctx, pair, interval)
	if err != nil {
		return nil, err
	}
	if len(candles) == 0 {
		return nil, fmt.Errorf("%s: %w", pair, ErrNoCandles)
	}
	if n := e.cfg.HistoryBars; n > 0 && len(candles) > n {
		candles = candles[len(candles)-n:]
	}
	return candles, nil
}

// generateSignals isolates a strategy so a panic becomes an error.
func generateSignals(s strategy.Strategy, ctx strategy.Context) (signals []strategy.Signal, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("strategy %s panicked: %v", s.Config().Key, r)
		}
	}()
	return s.GenerateSignals(ctx)
}

func (e *Engine) handleSignal(ctx context.Context, sig strategy.Signal, sctx strategy.Context, dryRun bool) {
	pair := sctx.Pair
	log := e.logger.With(zap.String("pair", pair), zap.String("strategy", sig.Strategy), zap.String("action", string(sig.Action)))

	decision := e.risk.EvaluateSignal(sig, sctx)
	monitoring.RecordDecision(pair, decision.Approved)
	if !decision.Approved {
		log.Info("Signal skipped", zap.String("signal_reason", sig.Reason), zap.String("reason", decision.Reason))
		e.alerts.Send("risk.decision_rejected", fmt.Sprintf("%s: %s", pair, decision.Reason), alerts.SeverityWarning, map[string]any{
			"pair":       pair,
			"reason":     decision.Reason,
			"strategy":   sig.Strategy,
			"confidence": fmt.Sprintf("%.2f", sig.Confidence),
		})
		return
	}

	if dryRun {
		log.Info("Dry-run signal approved",
			zap.Float64("volume", decision.Volume),
			zap.Float64("confidence", sig.Confidence),
		)
		realised := e.risk.RecordExecution(pair, decision, sctx)
		monitoring.RecordOrder(pair, string(market.OrderTypeMarket), models.TradeStatusSimulated)
		entry := e.tradeRecord(sig, decision, market.OrderTypeMarket, decision.Side, decision.EntryPrice)
		entry.IsSimulation = true
		entry.Status = models.TradeStatusSimulated
		entry.RealizedPnL = realised
		e.journalTrades(ctx, entry)
		if realised < 0 {
			e.alerts.Send("risk.dry_run_loss", fmt.Sprintf("Dry-run loss recorded for %s: %.2f", pair, realised), alerts.SeverityWarning, map[string]any{
				"pair":     pair,
				"strategy": sig.Strategy,
			})
		}
		return
	}

	records, ok := e.executeOrders(ctx, sig, decision)
	if ok {
		realised := e.risk.RecordExecution(pair, decision, sctx)
		records[0].RealizedPnL = realised
		if realised != 0 {
			log.Info("Realised PnL recorded", zap.Float64("pnl", realised))
		}
		if realised < 0 {
			e.alerts.Send("risk.realised_loss", fmt.Sprintf("Realised loss recorded for %s: %.2f", pair, realised), alerts.SeverityWarning, map[string]any{
				"pair":     pair,
				"strategy": sig.Strategy,
			})
		}
	}
	e.journalTrades(ctx, records...)

	if err := e.pacer.Wait(ctx); err != nil {
		log.Warn("Pacing interrupted", zap.Error(err))
	}
}

// executeOrders places the entry and, for new positions, the protective
// orders. It reports whether the entry was placed; protective failures are
// alerted but never undo the entry.
func (e *Engine) executeOrders(ctx context.Context, sig strategy.Signal, d risk.Decision) ([]*models.Trade, bool) {
	pair := d.Pair
	log := e.logger.With(zap.String("pair", pair), zap.String("strategy", sig.Strategy))

	if !(d.Volume > 0) {
		log.Warn("Calculated order volume invalid; skipping order")
		return nil, false
	}

	entry := e.tradeRecord(sig, d, market.OrderTypeMarket, d.Side, d.EntryPrice)
	ref, err := e.exchange.PlaceOrder(ctx, market.OrderRequest{
		Pair:   pair,
		Side:   d.Side,
		Type:   market.OrderTypeMarket,
		Volume: d.Volume,
	})
	if err != nil {
		log.Error("Failed to place order", zap.Error(err))
		monitoring.RecordOrder(pair, string(market.OrderTypeMarket), models.TradeStatusFailed)
		entry.Status = models.TradeStatusFailed
		entry.Error = err.Error()
		e.alerts.Send("engine.order_failed", fmt.Sprintf("Order placement failed for %s: %v", pair, err), alerts.SeverityError, map[string]any{
			"pair":       pair,
			"order_type": string(market.OrderTypeMarket),
			"strategy":   sig.Strategy,
		})
		return []*models.Trade{entry}, false
	}
	log.Info("Order placed", zap.String("ref", ref), zap.Float64("volume", d.Volume))
	monitoring.RecordOrder(pair, string(market.OrderTypeMarket), models.TradeStatusPlaced)
	entry.Status = models.TradeStatusPlaced
	entry.OrderRef = ref
	records := []*models.Trade{entry}

	if d.ClosingPosition {
		return records, true
	}

	protectiveSide := d.Side.Opposite()
	for _, p := range []struct {
		orderType market.OrderType
		price     float64
	}{
		{market.OrderTypeStopLoss, d.StopLossPrice},
		{market.OrderTypeTakeProfit, d.TakeProfitPrice},
	} {
		if p.price <= 0 {
			continue
		}
		record := e.tradeRecord(sig, d, p.orderType, protectiveSide, p.price)
		ref, err := e.exchange.PlaceOrder(ctx, market.OrderRequest{
			Pair:   pair,
			Side:   protectiveSide,
			Type:   p.orderType,
			Volume: d.Volume,
			Price:  p.price,
		})
		if err != nil {
			log.Error("Failed to place protective order", zap.String("order_type", string(p.orderType)), zap.Error(err))
			monitoring.RecordOrder(pair, string(p.orderType), models.TradeStatusFailed)
			record.Status = models.TradeStatusFailed
			record.Error = err.Error()
			e.alerts.Send("engine.order_failed", fmt.Sprintf("%s order failed for %s: %v", p.orderType, pair, err), alerts.SeverityError, map[string]any{
				"pair":       pair,
				"order_type": string(p.orderType),
				"price":      p.price,
			})
		} else {
			log.Info("Protective order placed", zap.String("order_type", string(p.orderType)), zap.Float64("price", p.price), zap.String("ref", ref))
			monitoring.RecordOrder(pair, string(p.orderType), models.TradeStatusPlaced)
			record.Status = models.TradeStatusPlaced
			record.OrderRef = ref
		}
		records = append(records, record)
	}
	return records, true
}

func (e *Engine) tradeRecord(sig strategy.Signal, d risk.Decision, orderType market.OrderType, side market.Side, price float64) *models.Trade {
	return &models.Trade{
		RunID:     e.Status().RunID,
		Pair:      d.Pair,
		Side:      string(side),
		OrderType: string(orderType),
		Volume:    d.Volume,
		Price:     price,
		Strategy:  sig.Strategy,
		Reason:    sig.Reason,
		Timestamp: e.now().UTC(),
	}
}

func (e *Engine) journalTrades(ctx context.Context, trades ...*models.Trade) {
	if e.journal == nil {
		return
	}
	for _, t := range trades {
		if err := e.journal.Record(ctx, t); err != nil {
			e.logger.Error("Failed to save trade record to database", zap.String("pair", t.Pair), zap.Error(err))
		}
	}
}
