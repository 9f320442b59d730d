package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// PortfolioSnapshot is one point of the equity time series.
type PortfolioSnapshot struct {
	ID            uint            `gorm:"primaryKey" json:"id"`
	RunID         string          `gorm:"type:varchar(64);index" json:"run_id"`
	Mode          string          `gorm:"type:varchar(16);index" json:"mode"`
	Time          time.Time       `gorm:"column:taken_at;not null;index" json:"time"`
	TotalValue    decimal.Decimal `gorm:"type:numeric(30,12);not null" json:"total_value"`
	Cash          decimal.Decimal `gorm:"type:numeric(30,12);not null" json:"cash"`
	PositionValue decimal.Decimal `gorm:"type:numeric(30,12);not null" json:"position_value"`
	PositionCount int             `gorm:"not null" json:"position_count"`
	PendingCount  int             `gorm:"not null;default:0" json:"pending_count"`
	PendingValue  decimal.Decimal `gorm:"type:numeric(30,12);not null;default:0" json:"pending_value"`
	Exposure      decimal.Decimal `gorm:"type:numeric(20,10);not null" json:"exposure"`
}

func (PortfolioSnapshot) TableName() string {
	return "portfolio_snapshots"
}
