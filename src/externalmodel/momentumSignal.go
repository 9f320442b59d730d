package externalmodel

import (
	"time"

	"github.com/shopspring/decimal"
)

// MomentumSignal is a detector output row. The table is written by the signal
// detectors and only read here.
type MomentumSignal struct {
	ID             uint                `gorm:"primaryKey;column:id" json:"id"`
	Symbol         string              `gorm:"column:symbol" json:"symbol"`
	Kind           string              `gorm:"column:kind" json:"kind"`
	DetectedAt     time.Time           `gorm:"column:detected_at" json:"detected_at"`
	Price          decimal.Decimal     `gorm:"column:price" json:"price"`
	BarOpenTime    *time.Time          `gorm:"column:bar_open_time" json:"bar_open_time,omitempty"`
	BarOpen        decimal.NullDecimal `gorm:"column:bar_open" json:"bar_open"`
	BarClose       decimal.NullDecimal `gorm:"column:bar_close" json:"bar_close"`
	VolumeRatio    decimal.NullDecimal `gorm:"column:volume_ratio" json:"volume_ratio"`
	PriceChangePct decimal.NullDecimal `gorm:"column:price_change_pct" json:"price_change_pct"`
	Timeframes     string              `gorm:"column:timeframes" json:"timeframes"` // comma separated, e.g. "15m,1h,4h"
	PullbackRatio  decimal.NullDecimal `gorm:"column:pullback_ratio" json:"pullback_ratio"`
	RSI            decimal.NullDecimal `gorm:"column:rsi" json:"rsi"`
	Sector         string              `gorm:"column:sector" json:"sector"`
	SectorReturn   decimal.NullDecimal `gorm:"column:sector_return" json:"sector_return"`
	CoinReturn     decimal.NullDecimal `gorm:"column:coin_return" json:"coin_return"`
}

// TableName Ensures that GORM uses the exact table name from the database.
func (MomentumSignal) TableName() string {
	return "momentum_signals"
}
