package database

import (
	"context"
	"fmt"
	"time"

	"kraken-auto-trader-go/internal/models"

	"gorm.io/gorm"
)

// Journal records every order the engine places or simulates.
type Journal struct {
	db *gorm.DB
}

// NewJournal wraps an open database.
func NewJournal(db *gorm.DB) *Journal {
	return &Journal{db: db}
}

// Record appends one trade.
func (j *Journal) Record(ctx context.Context, trade *models.Trade) error {
	if err := j.db.WithContext(ctx).Create(trade).Error; err != nil {
		return fmt.Errorf("failed to record trade: %w", err)
	}
	return nil
}

// Recent returns up to limit trades, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]models.Trade, error) {
	var trades []models.Trade
	if err := j.db.WithContext(ctx).Order("timestamp desc, id desc").Limit(limit).Find(&trades).Error; err != nil {
		return nil, fmt.Errorf("failed to load trades: %w", err)
	}
	return trades, nil
}

// Stats aggregates the journal for the dashboard.
type Stats struct {
	TotalTrades     int64   `json:"total_trades"`
	LiveTrades      int64   `json:"live_trades"`
	SimulatedTrades int64   `json:"simulated_trades"`
	FailedOrders    int64   `json:"failed_orders"`
	Wins            int64   `json:"wins"`
	Losses          int64   `json:"losses"`
	WinRate         float64 `json:"win_rate"`
	RealizedPnL     float64 `json:"realized_pnl"`
}

// Stats counts entry orders (market) and sums realised PnL for trades at or
// after since. A zero since covers the whole journal.
func (j *Journal) Stats(ctx context.Context, since time.Time) (Stats, error) {
	var s Stats
	scope := func() *gorm.DB {
		q := j.db.WithContext(ctx).Model(&models.Trade{})
		if !since.IsZero() {
			q = q.Where("timestamp >= ?", since)
		}
		return q
	}

	if err := scope().Where("order_type = ? AND status <> ?", "market", models.TradeStatusFailed).Count(&s.TotalTrades).Error; err != nil {
		return s, fmt.Errorf("failed to count trades: %w", err)
	}
	if err := scope().Where("order_type = ? AND status = ?", "market", models.TradeStatusSimulated).Count(&s.SimulatedTrades).Error; err != nil {
		return s, fmt.Errorf("failed to count simulated trades: %w", err)
	}
	s.LiveTrades = s.TotalTrades - s.SimulatedTrades
	if err := scope().Where("status = ?", models.TradeStatusFailed).Count(&s.FailedOrders).Error; err != nil {
		return s, fmt.Errorf("failed to count failed orders: %w", err)
	}
	if err := scope().Where("realized_pnl > 0").Count(&s.Wins).Error; err != nil {
		return s, fmt.Errorf("failed to count wins: %w", err)
	}
	if err := scope().Where("realized_pnl < 0").Count(&s.Losses).Error; err != nil {
		return s, fmt.Errorf("failed to count losses: %w", err)
	}
	if err := scope().Select("COALESCE(SUM(realized_pnl), 0)").Scan(&s.RealizedPnL).Error; err != nil {
		return s, fmt.Errorf("failed to sum pnl: %w", err)
	}
	if closed := s.Wins + s.Losses; closed > 0 {
		s.WinRate = float64(s.Wins) / float64(closed) * 100
	}
	return s, nil
}
