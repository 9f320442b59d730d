package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	TradeSideBuy  = "BUY"
	TradeSideSell = "SELL"
)

// TradeRecord is one row of the append-only trade ledger.
type TradeRecord struct {
	ID           uint            `gorm:"primaryKey" json:"id"`
	RunID        string          `gorm:"type:varchar(64);index" json:"run_id"`
	Mode         string          `gorm:"type:varchar(16);index" json:"mode"` // backtest | live | paper
	Time         time.Time       `gorm:"column:traded_at;not null;index" json:"time"`
	Symbol       string          `gorm:"type:varchar(50);not null;index" json:"symbol"`
	Side         string          `gorm:"type:varchar(4);not null" json:"side"`
	Price        decimal.Decimal `gorm:"type:numeric(30,12);not null" json:"price"`
	Quantity     decimal.Decimal `gorm:"type:numeric(30,12);not null" json:"quantity"`
	Value        decimal.Decimal `gorm:"type:numeric(30,12);not null" json:"value"`
	StrategyTag  string          `gorm:"type:varchar(50);index" json:"strategy_tag"`
	Reason       string          `gorm:"type:varchar(100)" json:"reason,omitempty"`
	PnLPct       decimal.Decimal `gorm:"type:numeric(20,10)" json:"pnl_pct"`
	PnLValue     decimal.Decimal `gorm:"type:numeric(30,12)" json:"pnl_value"`
	HoldingHours float64         `json:"holding_hours"`
	MaxProfitPct decimal.Decimal `gorm:"type:numeric(20,10)" json:"max_profit_pct"`
	MaxLossPct   decimal.Decimal `gorm:"type:numeric(20,10)" json:"max_loss_pct"`
	CreatedAt    time.Time       `json:"created_at"`
}

func (TradeRecord) TableName() string {
	return "trade_records"
}

func (t TradeRecord) IsExit() bool { return t.Side == TradeSideSell }
