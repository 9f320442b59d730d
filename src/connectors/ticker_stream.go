package connectors

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const DefaultMiniTickerURL = "wss://stream.binance.com:9443/ws/!miniTicker@arr"

var (
	ErrNoQuote    = errors.New("no quote received")
	ErrStaleQuote = errors.New("quote is stale")
)

// PriceQuoter is anything that can quote the last price of a symbol.
type PriceQuoter interface {
	LatestPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}

type quote struct {
	price decimal.Decimal
	at    time.Time
}

// miniTicker is one element of the !miniTicker@arr payload.
type miniTicker struct {
	Event     string          `json:"e"`
	EventTime int64           `json:"E"`
	Symbol    string          `json:"s"`
	Close     decimal.Decimal `json:"c"`
}

// TickerStream keeps the last close of every symbol from the Binance
// all-market mini ticker stream.
type TickerStream struct {
	url    string
	maxAge time.Duration
	log    *logrus.Entry
	now    func() time.Time

	mu     sync.RWMutex
	quotes map[string]quote
}

func NewTickerStream(url string, maxAge time.Duration, log *logrus.Entry) *TickerStream {
	if url == "" {
		url = DefaultMiniTickerURL
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &TickerStream{
		url:    url,
		maxAge: maxAge,
		log:    log.WithField("component", "TickerStream"),
		now:    time.Now,
		quotes: make(map[string]quote),
	}
}

// Run dials and consumes the stream, reconnecting with backoff until ctx ends.
func (s *TickerStream) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		err := s.consume(ctx)
		if ctx.Err() != nil {
			return nil
		}
		s.log.WithError(err).WithField("retryIn", backoff.String()).Warn("ticker stream disconnected")

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		if backoff < time.Minute {
			backoff *= 2
		}
	}
}

func (s *TickerStream) consume(ctx context.Context) error {
	dialer := websocket.Dialer{
		HandshakeTimeout:  15 * time.Second,
		EnableCompression: true,
		Proxy:             http.ProxyFromEnvironment,
	}

	conn, _, err := dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("ws dial failed: %w", err)
	}
	defer conn.Close()

	// Unblock ReadMessage on shutdown.
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	s.log.WithField("url", s.url).Info("ticker stream connected")
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("ws read failed: %w", err)
		}
		s.handle(msg)
	}
}

func (s *TickerStream) handle(msg []byte) {
	msg = bytes.TrimSpace(msg)
	if len(msg) == 0 {
		return
	}

	var tickers []miniTicker
	if msg[0] == '[' {
		if err := json.Unmarshal(msg, &tickers); err != nil {
			s.log.WithError(err).Debug("ignoring undecodable ticker frame")
			return
		}
	} else {
		var one miniTicker
		if err := json.Unmarshal(msg, &one); err != nil {
			s.log.WithError(err).Debug("ignoring undecodable ticker frame")
			return
		}
		tickers = append(tickers, one)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range tickers {
		if t.Symbol == "" || !t.Close.IsPositive() {
			continue
		}
		at := s.now()
		if t.EventTime > 0 {
			at = time.UnixMilli(t.EventTime).UTC()
		}
		s.quotes[strings.ToUpper(t.Symbol)] = quote{price: t.Close, at: at}
	}
}

// LatestPrice returns the cached close, or ErrNoQuote / ErrStaleQuote.
func (s *TickerStream) LatestPrice(_ context.Context, symbol string) (decimal.Decimal, error) {
	s.mu.RLock()
	q, ok := s.quotes[strings.ToUpper(symbol)]
	s.mu.RUnlock()

	if !ok {
		return decimal.Zero, fmt.Errorf("%w for %s", ErrNoQuote, symbol)
	}
	if s.maxAge > 0 && s.now().Sub(q.at) > s.maxAge {
		return decimal.Zero, fmt.Errorf("%w for %s: last update %s", ErrStaleQuote, symbol, q.at.Format(time.RFC3339))
	}
	return q.price, nil
}

// FallbackQuoter asks each quoter in turn and returns the first price.
type FallbackQuoter []PriceQuoter

func (f FallbackQuoter) LatestPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	var errs []error
	for _, q := range f {
		price, err := q.LatestPrice(ctx, symbol)
		if err == nil {
			return price, nil
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return decimal.Zero, fmt.Errorf("%w for %s", ErrNoQuote, symbol)
	}
	return decimal.Zero, errors.Join(errs...)
}
