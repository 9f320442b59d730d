// Package notify fans trading events out to chat sinks. Sinks report errors;
// callers wrap them in Safe so a failed notification never affects trading.
package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"momentumengine/src/model"
	"momentumengine/src/pending"
	"momentumengine/src/portfolio"
)

type Kind string

const (
	KindPositionOpened   Kind = "position_opened"
	KindPositionClosed   Kind = "position_closed"
	KindOrderPlaced      Kind = "order_placed"
	KindOrderFilled      Kind = "order_filled"
	KindOrderCancelled   Kind = "order_cancelled"
	KindRiskAlert        Kind = "risk_alert"
	KindSystemStatus     Kind = "system_status"
	KindPortfolioSummary Kind = "portfolio_summary"
)

type Field struct {
	Name  string
	Value string
}

type Event struct {
	Kind       Kind
	Title      string
	Fields     []Field
	Simulation bool
	At         time.Time
}

func (e Event) heading() string {
	mode := "LIVE"
	if e.Simulation {
		mode = "SIM"
	}
	return fmt.Sprintf("[%s] %s", mode, e.Title)
}

// Markdown renders the event for DingTalk.
func (e Event) Markdown() string {
	var b strings.Builder
	fmt.Fprintf(&b, "### %s\n\n", e.heading())
	for _, f := range e.Fields {
		fmt.Fprintf(&b, "- **%s**: %s\n", f.Name, f.Value)
	}
	if !e.At.IsZero() {
		fmt.Fprintf(&b, "\n> %s\n", e.At.UTC().Format("2006-01-02 15:04:05 MST"))
	}
	return b.String()
}

// Text renders the event as plain text.
func (e Event) Text() string {
	var b strings.Builder
	b.WriteString(e.heading())
	for _, f := range e.Fields {
		fmt.Fprintf(&b, "\n%s: %s", f.Name, f.Value)
	}
	if !e.At.IsZero() {
		fmt.Fprintf(&b, "\n%s", e.At.UTC().Format("2006-01-02 15:04:05 MST"))
	}
	return b.String()
}

func percent(v decimal.Decimal) string {
	return v.Mul(decimal.NewFromInt(100)).StringFixed(2) + "%"
}

// TradeEvent describes an entry or an exit from the trade ledger.
func TradeEvent(t model.TradeRecord, simulation bool) Event {
	if !t.IsExit() {
		return Event{
			Kind:       KindPositionOpened,
			Title:      "Position opened " + t.Symbol,
			Simulation: simulation,
			At:         t.Time,
			Fields: []Field{
				{"Price", t.Price.String()},
				{"Quantity", t.Quantity.String()},
				{"Cost", t.Value.StringFixed(2)},
				{"Strategy", t.StrategyTag},
				{"Reason", t.Reason},
			},
		}
	}
	return Event{
		Kind:       KindPositionClosed,
		Title:      "Position closed " + t.Symbol,
		Simulation: simulation,
		At:         t.Time,
		Fields: []Field{
			{"Price", t.Price.String()},
			{"Quantity", t.Quantity.String()},
			{"Proceeds", t.Value.StringFixed(2)},
			{"PnL", t.PnLValue.StringFixed(2) + " (" + percent(t.PnLPct) + ")"},
			{"Held", fmt.Sprintf("%.1fh", t.HoldingHours)},
			{"Reason", t.Reason},
		},
	}
}

// OrderEvent describes a resting pivot order changing state.
func OrderEvent(kind Kind, o pending.Order, simulation bool, at time.Time) Event {
	title := map[Kind]string{
		KindOrderPlaced:    "Pivot order placed ",
		KindOrderFilled:    "Pivot order filled ",
		KindOrderCancelled: "Pivot order cancelled ",
	}[kind]
	fields := []Field{
		{"Order", o.OrderID},
		{"Limit", o.LimitPrice.String()},
		{"Quantity", o.Quantity.String()},
		{"Status", string(o.Status)},
	}
	if kind == KindOrderPlaced {
		fields = append(fields, Field{"Expires", o.ExpiresAt.UTC().Format(time.RFC3339)})
	}
	if o.CloseReason != "" {
		fields = append(fields, Field{"Reason", o.CloseReason})
	}
	return Event{Kind: kind, Title: title + o.Instrument, Fields: fields, Simulation: simulation, At: at}
}

func SummaryEvent(s portfolio.Status, simulation bool, at time.Time) Event {
	return Event{
		Kind:       KindPortfolioSummary,
		Title:      "Portfolio summary",
		Simulation: simulation,
		At:         at,
		Fields: []Field{
			{"Total value", s.TotalValue.StringFixed(2)},
			{"Cash", s.Cash.StringFixed(2)},
			{"Return", percent(s.TotalReturn)},
			{"Exposure", percent(s.Exposure)},
			{"Positions", fmt.Sprint(s.PositionCount)},
			{"Pending", fmt.Sprintf("%d (%s reserved)", s.PendingCount, s.Reserved.StringFixed(2))},
		},
	}
}

func AlertEvent(title string, err error, simulation bool, at time.Time) Event {
	fields := []Field{}
	if err != nil {
		fields = append(fields, Field{"Error", err.Error()})
	}
	return Event{Kind: KindRiskAlert, Title: title, Fields: fields, Simulation: simulation, At: at}
}

func StatusEvent(title, detail string, simulation bool, at time.Time) Event {
	var fields []Field
	if detail != "" {
		fields = append(fields, Field{"Detail", detail})
	}
	return Event{Kind: KindSystemStatus, Title: title, Fields: fields, Simulation: simulation, At: at}
}
