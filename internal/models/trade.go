package models

import (
	"time"

	"gorm.io/gorm"
)

// Trade status values.
const (
	TradeStatusPlaced    = "placed"
	TradeStatusSimulated = "simulated"
	TradeStatusFailed    = "failed"
)

// Trade is one journalled order, placed or simulated, in the database.
type Trade struct {
	gorm.Model
	RunID        string    `gorm:"index" json:"run_id"`
	Pair         string    `gorm:"index" json:"pair"`
	Side         string    `json:"side"`       // "buy" or "sell"
	OrderType    string    `json:"order_type"` // "market", "stop-loss" or "take-profit"
	Volume       float64   `json:"volume"`
	Price        float64   `json:"price"`
	OrderRef     string    `json:"order_ref,omitempty"`
	Strategy     string    `json:"strategy"`
	Reason       string    `json:"reason"`
	IsSimulation bool      `json:"is_simulation"`
	RealizedPnL  float64   `json:"realized_pnl"`
	Status       string    `json:"status"`
	Error        string    `json:"error,omitempty"`
	Timestamp    time.Time `gorm:"index" json:"timestamp"`
}
