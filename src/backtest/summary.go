package backtest

import (
	"sort"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"momentumengine/src/model"
)

type StrategyStats struct {
	Strategy  string          `json:"strategy"`
	Trades    int             `json:"trades"`
	WinRate   decimal.Decimal `json:"win_rate"`
	AvgPnLPct decimal.Decimal `json:"avg_pnl_pct"`
}

// Summary is the report of one replay. Rates and returns are fractions.
type Summary struct {
	InitialValue    decimal.Decimal `json:"initial_value"`
	FinalValue      decimal.Decimal `json:"final_value"`
	TotalReturn     decimal.Decimal `json:"total_return"`
	TradeCount      int             `json:"trade_count"`
	BuyCount        int             `json:"buy_count"`
	SellCount       int             `json:"sell_count"`
	WinRate         decimal.Decimal `json:"win_rate"`
	AvgPnLPct       decimal.Decimal `json:"avg_pnl_pct"`
	AvgHoldingHours float64         `json:"avg_holding_hours"`
	MaxDrawdown     decimal.Decimal `json:"max_drawdown"`
	ByStrategy      []StrategyStats `json:"by_strategy"`
}

func Summarize(initial, final decimal.Decimal, trades []model.TradeRecord, snapshots []model.PortfolioSnapshot) Summary {
	s := Summary{
		InitialValue: initial,
		FinalValue:   final,
		TradeCount:   len(trades),
	}
	if initial.IsPositive() {
		s.TotalReturn = final.Sub(initial).Div(initial)
	}

	type acc struct {
		n, wins int
		pnl     decimal.Decimal
	}
	byStrategy := map[string]*acc{}
	pnlSum := decimal.Zero
	wins := 0
	hours := 0.0

	for _, t := range trades {
		if !t.IsExit() {
			s.BuyCount++
			continue
		}
		s.SellCount++
		pnlSum = pnlSum.Add(t.PnLPct)
		hours += t.HoldingHours

		a, ok := byStrategy[t.StrategyTag]
		if !ok {
			a = &acc{}
			byStrategy[t.StrategyTag] = a
		}
		a.n++
		a.pnl = a.pnl.Add(t.PnLPct)
		if t.PnLValue.IsPositive() {
			wins++
			a.wins++
		}
	}

	if s.SellCount > 0 {
		n := decimal.NewFromInt(int64(s.SellCount))
		s.WinRate = decimal.NewFromInt(int64(wins)).Div(n)
		s.AvgPnLPct = pnlSum.Div(n)
		s.AvgHoldingHours = hours / float64(s.SellCount)
	}

	for tag, a := range byStrategy {
		n := decimal.NewFromInt(int64(a.n))
		s.ByStrategy = append(s.ByStrategy, StrategyStats{
			Strategy:  tag,
			Trades:    a.n,
			WinRate:   decimal.NewFromInt(int64(a.wins)).Div(n),
			AvgPnLPct: a.pnl.Div(n),
		})
	}
	sort.Slice(s.ByStrategy, func(i, j int) bool { return s.ByStrategy[i].Strategy < s.ByStrategy[j].Strategy })

	values := make([]decimal.Decimal, len(snapshots))
	for i, snap := range snapshots {
		values[i] = snap.TotalValue
	}
	s.MaxDrawdown = MaxDrawdown(values)
	return s
}

// MaxDrawdown is the largest peak-to-trough fall as a positive fraction of the peak.
func MaxDrawdown(values []decimal.Decimal) decimal.Decimal {
	worst := decimal.Zero
	if len(values) < 2 {
		return worst
	}
	peak := values[0]
	for _, v := range values {
		if v.GreaterThan(peak) {
			peak = v
		}
		if !peak.IsPositive() {
			continue
		}
		if dd := peak.Sub(v).Div(peak); dd.GreaterThan(worst) {
			worst = dd
		}
	}
	return worst
}

func pct(v decimal.Decimal) string {
	return v.Mul(decimal.NewFromInt(100)).StringFixed(2) + "%"
}

// Log writes the report as structured log lines.
func (s Summary) Log(log *logrus.Entry) {
	log.WithFields(map[string]interface{}{
		"initialValue": s.InitialValue.StringFixed(2),
		"finalValue":   s.FinalValue.StringFixed(2),
		"totalReturn":  pct(s.TotalReturn),
		"maxDrawdown":  pct(s.MaxDrawdown),
	}).Info("backtest capital")

	log.WithFields(map[string]interface{}{
		"trades":       s.TradeCount,
		"buys":         s.BuyCount,
		"sells":        s.SellCount,
		"winRate":      pct(s.WinRate),
		"avgPnl":       pct(s.AvgPnLPct),
		"avgHoldHours": s.AvgHoldingHours,
	}).Info("backtest trades")

	for _, st := range s.ByStrategy {
		log.WithFields(map[string]interface{}{
			"strategy": st.Strategy,
			"trades":   st.Trades,
			"winRate":  pct(st.WinRate),
			"avgPnl":   pct(st.AvgPnLPct),
		}).Info("backtest strategy")
	}
}
