package risk

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"kraken-auto-trader-go/internal/statefile"
)

const dateLayout = "2006-01-02"

// ErrInvalidEntries is returned by LoadState alongside a usable state when
// empty pair entries had to be dropped.
var ErrInvalidEntries = errors.New("invalid risk state entries")

// Direction is the exposure a decision or position carries.
type Direction string

const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
	DirectionFlat  Direction = "flat"
)

// PairHistory tracks trade cadence for one pair.
type PairHistory struct {
	LastTradeAt *time.Time `json:"last_trade_at"`
	TradesToday int        `json:"trades_today"`
}

// Position is an open position tracked by the risk manager.
type Position struct {
	Direction  Direction `json:"direction"`
	EntryPrice float64   `json:"entry_price"`
	Volume     float64   `json:"volume"`
	OpenedAt   time.Time `json:"opened_at"`
}

// State is the persisted, day-scoped risk state.
type State struct {
	AsOf             string                  `json:"as_of"`
	DailyLoss        float64                 `json:"daily_loss"`
	DailyTrades      int                     `json:"daily_trades"`
	DailyLossAlerted bool                    `json:"daily_loss_alerted"`
	DailyRealisedPnL float64                 `json:"daily_realised_pnl"`
	HistoryByPair    map[string]*PairHistory `json:"history_by_pair"`
	Positions        map[string]*Position    `json:"positions"`
}

func newState(now time.Time) State {
	return State{
		AsOf:          now.UTC().Format(dateLayout),
		HistoryByPair: make(map[string]*PairHistory),
		Positions:     make(map[string]*Position),
	}
}

// resetIfNewDay zeroes the daily counters when now falls on a later UTC day
// than AsOf. Cooldown timestamps and open positions are kept.
func (s *State) resetIfNewDay(now time.Time) bool {
	today := now.UTC().Format(dateLayout)
	if s.AsOf == today {
		return false
	}
	s.AsOf = today
	s.DailyLoss = 0
	s.DailyTrades = 0
	s.DailyLossAlerted = false
	s.DailyRealisedPnL = 0
	for _, h := range s.HistoryByPair {
		h.TradesToday = 0
	}
	return true
}

// LoadState reads the state file. A missing file yields a fresh state; a
// corrupt file yields a fresh state together with the decode error. Null
// pair entries are dropped and reported with ErrInvalidEntries.
func LoadState(path string, now time.Time) (State, error) {
	var st State
	if err := statefile.Read(path, &st); err != nil {
		if errors.Is(err, statefile.ErrNotExist) {
			return newState(now), nil
		}
		return newState(now), err
	}
	if st.AsOf == "" {
		st.AsOf = now.UTC().Format(dateLayout)
	}
	if st.HistoryByPair == nil {
		st.HistoryByPair = make(map[string]*PairHistory)
	}
	if st.Positions == nil {
		st.Positions = make(map[string]*Position)
	}
	if dropped := st.dropInvalid(); len(dropped) > 0 {
		return st, fmt.Errorf("%w: dropped %s", ErrInvalidEntries, strings.Join(dropped, ", "))
	}
	return st, nil
}

// dropInvalid removes null history and position entries and returns their keys.
func (s *State) dropInvalid() []string {
	var dropped []string
	for pair, h := range s.HistoryByPair {
		if h == nil {
			delete(s.HistoryByPair, pair)
			dropped = append(dropped, "history_by_pair."+pair)
		}
	}
	for pair, pos := range s.Positions {
		if pos == nil {
			delete(s.Positions, pair)
			dropped = append(dropped, "positions."+pair)
		}
	}
	sort.Strings(dropped)
	return dropped
}

// SaveState writes the state atomically.
func SaveState(path string, st State) error {
	return statefile.Write(path, st)
}
