package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"momentumengine/src/model"
	"momentumengine/src/pending"
	"momentumengine/src/portfolio"
	"momentumengine/src/position"

	logger "github.com/sirupsen/logrus"
)

// PortfolioReader is the read side of the portfolio. Every method returns a copy.
type PortfolioReader interface {
	Status() portfolio.Status
	Positions(now time.Time) []position.View
	PendingOrders() []pending.Order
	Trades() []model.TradeRecord
	Snapshots() []model.PortfolioSnapshot
}

const maxLimit = 1000

func writeJSON(w http.ResponseWriter, payload interface{}, what string) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.WithError(err).Errorf("failed to encode %s response", what)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

// parseLimit reads ?limit=N. Zero means everything.
func parseLimit(r *http.Request) (int, bool) {
	param := r.URL.Query().Get("limit")
	if param == "" {
		return 0, true
	}
	limit, err := strconv.Atoi(param)
	if err != nil || limit <= 0 || limit > maxLimit {
		return 0, false
	}
	return limit, true
}

func tail[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[len(items)-limit:]
	}
	return items
}

func PortfolioHandler(book PortfolioReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, book.Status(), "portfolio")
	}
}

// PositionsHandler lists open positions, holding time measured with now.
func PositionsHandler(book PortfolioReader, now func() time.Time) http.HandlerFunc {
	if now == nil {
		now = time.Now
	}
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, book.Positions(now().UTC()), "positions")
	}
}

func PendingHandler(book PortfolioReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, book.PendingOrders(), "pending orders")
	}
}

// TradesHandler returns the ledger in execution order, the newest limit entries when set.
func TradesHandler(book PortfolioReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, ok := parseLimit(r)
		if !ok {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		trades := tail(book.Trades(), limit)
		if trades == nil {
			trades = []model.TradeRecord{}
		}
		writeJSON(w, trades, "trades")
	}
}

func SnapshotsHandler(book PortfolioReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, ok := parseLimit(r)
		if !ok {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		snaps := tail(book.Snapshots(), limit)
		if snaps == nil {
			snaps = []model.PortfolioSnapshot{}
		}
		writeJSON(w, snaps, "snapshots")
	}
}
