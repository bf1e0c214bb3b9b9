package risk

import (
	"path/filepath"
	"testing"
	"time"

	"kraken-auto-trader-go/internal/alerts"
	"kraken-auto-trader-go/internal/market"
	"kraken-auto-trader-go/internal/strategy"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// MockAlerter is a mock implementation of Alerter.
type MockAlerter struct {
	mock.Mock
}

func (m *MockAlerter) Send(event, message string, severity alerts.Severity, details map[string]any) {
	m.Called(event, severity, details)
}

type testClock struct{ now time.Time }

func (c *testClock) Now() time.Time          { return c.now }
func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func setupManager(t *testing.T) (*Manager, *testClock, *MockAlerter, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "risk_state.json")
	clock := &testClock{now: time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)}
	alerter := new(MockAlerter)
	m := NewManager(path, alerter, zap.NewNop(), WithClock(clock.Now))
	return m, clock, alerter, path
}

func riskContext(pair string, close float64, balances market.Balances, risk map[string]any) strategy.Context {
	if risk == nil {
		risk = map[string]any{}
	}
	return strategy.Context{
		Pair:      pair,
		Timeframe: "1h",
		Candles:   market.Candles{{Close: close * 0.99}, {Close: close}},
		Balances:  balances,
		Config:    strategy.Config{Key: "rsi", Name: "rsi", Risk: risk, Enabled: true},
	}
}

func buy() strategy.Signal  { return strategy.Signal{Action: strategy.ActionBuy, Confidence: 0.8} }
func sell() strategy.Signal { return strategy.Signal{Action: strategy.ActionSell, Confidence: 0.8} }

func TestEvaluateSignal_ExampleScenario(t *testing.T) {
	m, _, _, _ := setupManager(t)
	ctx := riskContext("ETHUSD", 3038.15, market.Balances{"USD": 1000}, map[string]any{"position_size": 0.1})

	d := m.EvaluateSignal(buy(), ctx)

	require.True(t, d.Approved, d.Reason)
	assert.InDelta(t, 0.0329, d.Volume, 1e-4)
	assert.InDelta(t, 1000*0.1/3038.15, d.Volume, 1e-12)
	assert.Equal(t, DirectionLong, d.Direction)
	assert.Equal(t, 3038.15, d.EntryPrice)
	assert.InDelta(t, 3038.15*0.98, d.StopLossPrice, 1e-9)
	assert.InDelta(t, 3038.15*1.04, d.TakeProfitPrice, 1e-9)
	assert.Less(t, d.StopLossPrice, d.EntryPrice)
	assert.Less(t, d.EntryPrice, d.TakeProfitPrice)
	assert.False(t, d.ClosingPosition)
	assert.Equal(t, 0.1, d.PositionFraction)
}

func TestEvaluateSignal_SellOpensShort(t *testing.T) {
	m, _, _, _ := setupManager(t)
	ctx := riskContext("XETHZUSD", 3000, market.Balances{"XETH": 2, "ZUSD": 1000}, map[string]any{"position_size_pct": 0.1})

	d := m.EvaluateSignal(sell(), ctx)

	require.True(t, d.Approved, d.Reason)
	assert.InDelta(t, 0.2, d.Volume, 1e-12)
	assert.Equal(t, DirectionShort, d.Direction)
	assert.Greater(t, d.StopLossPrice, d.EntryPrice)
	assert.Greater(t, d.EntryPrice, d.TakeProfitPrice)
}

func TestEvaluateSignal_DailyTradeLimit(t *testing.T) {
	m, _, _, _ := setupManager(t)
	m.state.DailyTrades = DefaultLimits().MaxDailyTrades

	for _, pair := range []string{"ETHUSD", "XBTUSD", "SOLEUR"} {
		for _, sig := range []strategy.Signal{buy(), sell()} {
			d := m.EvaluateSignal(sig, riskContext(pair, 100, market.Balances{"USD": 1000, "EUR": 1000, "ETH": 1, "XBT": 1, "SOL": 1}, nil))
			assert.False(t, d.Approved)
			assert.Equal(t, "Daily trade limit reached", d.Reason)
		}
	}
}

func TestConfiguredDefaultsUnderlieStrategyOverrides(t *testing.T) {
	defaults, err := MergeLimits(DefaultLimits(), map[string]any{"max_daily_trades": 1, "position_size": 0.05})
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "risk_state.json")
	m := NewManager(path, nil, zap.NewNop(), WithDefaults(defaults))
	m.state.DailyTrades = 1
	balances := market.Balances{"USD": 1000}

	d := m.EvaluateSignal(buy(), riskContext("ETHUSD", 100, balances, nil))
	assert.False(t, d.Approved)
	assert.Equal(t, "Daily trade limit reached", d.Reason)

	d = m.EvaluateSignal(buy(), riskContext("ETHUSD", 100, balances, map[string]any{"max_daily_trades": 3}))
	require.True(t, d.Approved, d.Reason)
	assert.Equal(t, 0.05, d.PositionFraction)
	assert.Equal(t, 1, m.Status().Limits.MaxDailyTrades)
}

func TestEvaluateSignal_TradeGapBoundary(t *testing.T) {
	m, clock, _, _ := setupManager(t)
	ctx := riskContext("ETHUSD", 3000, market.Balances{"USD": 1000, "ETH": 1}, map[string]any{"min_trade_gap_minutes": 60})

	opened := m.EvaluateSignal(buy(), ctx)
	require.True(t, opened.Approved)
	m.RecordExecution("ETHUSD", opened, ctx)

	clock.Advance(59 * time.Minute)
	d := m.EvaluateSignal(sell(), ctx)
	assert.False(t, d.Approved)
	assert.Contains(t, d.Reason, "Minimum trade gap")

	clock.Advance(time.Minute)
	d = m.EvaluateSignal(sell(), ctx)
	require.True(t, d.Approved, d.Reason)
	assert.True(t, d.ClosingPosition)
	assert.Equal(t, opened.Volume, d.Volume)
	assert.Zero(t, d.StopLossPrice)
	assert.Zero(t, d.TakeProfitPrice)
}

func TestEvaluateSignal_PositionRules(t *testing.T) {
	m, clock, _, _ := setupManager(t)
	balances := market.Balances{"USD": 1000, "EUR": 1000}
	ctx := riskContext("ETHUSD", 3000, balances, map[string]any{"max_positions": 1, "min_trade_gap_minutes": 0})

	d := m.EvaluateSignal(buy(), ctx)
	require.True(t, d.Approved)
	m.RecordExecution("ETHUSD", d, ctx)
	clock.Advance(time.Minute)

	again := m.EvaluateSignal(buy(), ctx)
	assert.False(t, again.Approved)
	assert.Contains(t, again.Reason, "Existing long position")

	other := m.EvaluateSignal(buy(), riskContext("XBTEUR", 50000, balances, map[string]any{"max_positions": 1}))
	assert.False(t, other.Approved)
	assert.Equal(t, "Maximum concurrent positions reached", other.Reason)
}

func TestEvaluateSignal_Rejections(t *testing.T) {
	m, _, _, _ := setupManager(t)

	t.Run("MissingBalance", func(t *testing.T) {
		d := m.EvaluateSignal(buy(), riskContext("ETHUSD", 3000, market.Balances{}, nil))
		assert.False(t, d.Approved)
		assert.Equal(t, "Calculated trade volume is non-positive", d.Reason)
		assert.Zero(t, d.Volume)
	})

	t.Run("NoCandles", func(t *testing.T) {
		ctx := riskContext("ETHUSD", 3000, market.Balances{"USD": 1000}, nil)
		ctx.Candles = nil
		d := m.EvaluateSignal(buy(), ctx)
		assert.False(t, d.Approved)
	})

	t.Run("InvalidLimits", func(t *testing.T) {
		d := m.EvaluateSignal(buy(), riskContext("ETHUSD", 3000, market.Balances{"USD": 1000}, map[string]any{"position_size": 2}))
		assert.False(t, d.Approved)
		assert.Contains(t, d.Reason, "Invalid risk parameters")
	})

	t.Run("UnsupportedAction", func(t *testing.T) {
		d := m.EvaluateSignal(strategy.Signal{Action: "hold"}, riskContext("ETHUSD", 3000, market.Balances{"USD": 1000}, nil))
		assert.False(t, d.Approved)
	})
}

func TestDailyLossAlertFiresOncePerDay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "risk_state.json")
	clock := &testClock{now: time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)}
	st := newState(clock.now)
	st.DailyLoss = 50
	require.NoError(t, SaveState(path, st))

	alerter := new(MockAlerter)
	alerter.On("Send", "risk.daily_loss_limit", alerts.SeverityError, map[string]any{"daily_loss": 50.0, "limit": 20.0}).Once()
	m := NewManager(path, alerter, zap.NewNop(), WithClock(clock.Now))
	ctx := riskContext("ETHUSD", 3000, market.Balances{"USD": 1000}, nil)

	for i := 0; i < 3; i++ {
		d := m.EvaluateSignal(buy(), ctx)
		assert.False(t, d.Approved)
		assert.Equal(t, "Maximum daily loss threshold reached", d.Reason)
	}
	alerter.AssertNumberOfCalls(t, "Send", 1)
	assert.True(t, m.Status().DailyLossAlerted)

	clock.Advance(24 * time.Hour)
	d := m.EvaluateSignal(buy(), ctx)
	assert.True(t, d.Approved, d.Reason)
	assert.False(t, m.Status().DailyLossAlerted)
	alerter.AssertExpectations(t)
}

func TestRecordExecution_RealisedLoss(t *testing.T) {
	m, clock, alerter, _ := setupManager(t)
	alerter.On("Send", "risk.daily_loss_limit", alerts.SeverityError, mock.Anything).Once()
	limits := map[string]any{"position_size": 0.1, "max_daily_loss": 0.001}

	entryCtx := riskContext("ETHUSD", 3000, market.Balances{"USD": 1000}, limits)
	open := m.EvaluateSignal(buy(), entryCtx)
	require.True(t, open.Approved)
	assert.Zero(t, m.RecordExecution("ETHUSD", open, entryCtx))

	clock.Advance(2 * time.Hour)
	exitCtx := riskContext("ETHUSD", 2900, market.Balances{"USD": 900, "ETH": open.Volume}, limits)
	closeDecision := m.EvaluateSignal(sell(), exitCtx)
	require.True(t, closeDecision.Approved, closeDecision.Reason)
	require.True(t, closeDecision.ClosingPosition)

	pnl := m.RecordExecution("ETHUSD", closeDecision, exitCtx)

	assert.InDelta(t, -100*open.Volume, pnl, 1e-9)
	status := m.Status()
	assert.InDelta(t, 100*open.Volume, status.DailyLoss, 1e-9)
	assert.InDelta(t, pnl, status.DailyRealisedPnL, 1e-9)
	assert.Equal(t, 2, status.DailyTrades)
	assert.Empty(t, status.Positions)
	assert.Equal(t, 2, status.HistoryByPair["ETHUSD"].TradesToday)
	alerter.AssertExpectations(t)
}

func TestStatePersistenceRoundTrip(t *testing.T) {
	m, clock, _, path := setupManager(t)
	ctx := riskContext("ETHUSD", 3000, market.Balances{"USD": 1000}, nil)
	d := m.EvaluateSignal(buy(), ctx)
	require.True(t, d.Approved)
	m.RecordExecution("ETHUSD", d, ctx)

	reloaded := NewManager(path, nil, zap.NewNop(), WithClock(clock.Now))

	before, after := m.Status(), reloaded.Status()
	assert.Equal(t, before.DailyTrades, after.DailyTrades)
	assert.Equal(t, before.DailyLoss, after.DailyLoss)
	require.Contains(t, after.HistoryByPair, "ETHUSD")
	assert.True(t, before.HistoryByPair["ETHUSD"].LastTradeAt.Equal(*after.HistoryByPair["ETHUSD"].LastTradeAt))
	assert.Equal(t, before.HistoryByPair["ETHUSD"].TradesToday, after.HistoryByPair["ETHUSD"].TradesToday)
	assert.Equal(t, before.Positions, after.Positions)
}

func TestDayRolloverKeepsCooldowns(t *testing.T) {
	m, clock, _, _ := setupManager(t)
	ctx := riskContext("ETHUSD", 3000, market.Balances{"USD": 1000}, nil)
	d := m.EvaluateSignal(buy(), ctx)
	require.True(t, d.Approved)
	m.RecordExecution("ETHUSD", d, ctx)
	m.state.DailyLoss = 5
	m.state.DailyLossAlerted = true
	lastTrade := *m.state.HistoryByPair["ETHUSD"].LastTradeAt

	clock.now = time.Date(2025, 3, 11, 0, 0, 1, 0, time.UTC)
	status := m.Status()

	assert.Equal(t, "2025-03-11", status.AsOf)
	assert.Zero(t, status.DailyLoss)
	assert.Zero(t, status.DailyTrades)
	assert.False(t, status.DailyLossAlerted)
	assert.True(t, lastTrade.Equal(*status.HistoryByPair["ETHUSD"].LastTradeAt))
	assert.Contains(t, status.Positions, "ETHUSD")
}

func TestCorruptStateStartsFresh(t *testing.T) {
	path := filepath.Join(t.TempDir(), "risk_state.json")
	require.NoError(t, writeFile(path, "{not json"))

	m := NewManager(path, nil, zap.NewNop())

	status := m.Status()
	assert.Zero(t, status.DailyTrades)
	assert.Empty(t, status.HistoryByPair)
}

func TestNullStateEntriesAreDropped(t *testing.T) {
	path := filepath.Join(t.TempDir(), "risk_state.json")
	require.NoError(t, writeFile(path, `{"as_of":"2025-03-09","daily_trades":2,"history_by_pair":{"ETHUSD":null},"positions":{"XBTUSD":null}}`))
	now := time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)

	st, err := LoadState(path, now)
	require.ErrorIs(t, err, ErrInvalidEntries)
	assert.Equal(t, "2025-03-09", st.AsOf)
	assert.Equal(t, 2, st.DailyTrades)
	assert.Empty(t, st.HistoryByPair)
	assert.Empty(t, st.Positions)

	m := NewManager(path, nil, zap.NewNop(), WithClock(func() time.Time { return now }))
	assert.NotPanics(t, func() { m.Status() })

	d := m.EvaluateSignal(buy(), riskContext("XBTUSD", 60000, market.Balances{"USD": 1000}, map[string]any{"max_positions": 1}))
	require.True(t, d.Approved, d.Reason)
	assert.False(t, d.ClosingPosition)
}
