package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Candle is one OHLCV bar for a spot instrument. Datetime is the bar open time in UTC.
type Candle struct {
	ID       uint            `gorm:"primaryKey" json:"-"`
	Symbol   string          `json:"symbol"   gorm:"type:varchar(50);not null;uniqueIndex:ux_candles_symbol_interval_datetime,priority:1;index:idx_candles_symbol_datetime,priority:1"`
	Interval string          `json:"interval" gorm:"column:bar_interval;type:varchar(8);not null;uniqueIndex:ux_candles_symbol_interval_datetime,priority:2"`
	Datetime time.Time       `json:"datetime" gorm:"not null;uniqueIndex:ux_candles_symbol_interval_datetime,priority:3;index:idx_candles_symbol_datetime,priority:2;index:idx_candles_datetime"`
	Open     decimal.Decimal `json:"open"   gorm:"type:numeric(30,12);not null"`
	High     decimal.Decimal `json:"high"   gorm:"type:numeric(30,12);not null"`
	Low      decimal.Decimal `json:"low"    gorm:"type:numeric(30,12);not null"`
	Close    decimal.Decimal `json:"close"  gorm:"type:numeric(30,12);not null"`
	Volume   decimal.Decimal `json:"volume" gorm:"type:numeric(30,12);not null"`
}

func (Candle) TableName() string {
	return "candles"
}
