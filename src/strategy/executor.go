package strategy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"momentumengine/src/model"
	"momentumengine/src/pending"
	"momentumengine/src/portfolio"
	"momentumengine/src/risk"
	"momentumengine/src/signal"
)

// Book is the part of the portfolio a strategy pass drives.
type Book interface {
	Enter(ctx context.Context, sig signal.Signal, now time.Time) (portfolio.EntryOutcome, error)
	Status() portfolio.Status
}

type Executor struct {
	logger      *logrus.Entry
	book        Book
	benchmark   string
	maxExposure decimal.Decimal
	now         func() time.Time
	pricer      Pricer
}

func NewExecutor(logger *logrus.Entry, book Book, policy risk.Policy) *Executor {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}

	return &Executor{
		logger:      logger,
		book:        book,
		benchmark:   policy.Benchmark,
		maxExposure: policy.MaxTotalExposure,
		now:         time.Now,
	}
}

// WithPricer re-prices every signal at the entry time before it is offered.
func (e *Executor) WithPricer(pricer Pricer) *Executor {
	cp := *e
	cp.pricer = pricer
	return &cp
}

// WithClock pins the entry time, used by replays.
func (e *Executor) WithClock(now func() time.Time) *Executor {
	cp := *e
	cp.now = now
	return &cp
}

type Rejected struct {
	Instrument string
	Rejection  portfolio.Rejection
}

type LogEntry struct {
	Level      string
	Message    string
	Instrument string
	Metadata   map[string]any
	CreatedAt  time.Time
}

type ExecutionResult struct {
	Opened    []model.TradeRecord
	Placed    []pending.Order
	Rejected  []Rejected
	Discarded []string
	Logs      []LogEntry
	Errors    []error
}

// Execute offers signals to the book strongest first. Only the strongest
// signal per instrument is considered; the benchmark is never traded and the
// pass stops once exposure reaches the cap. A failed entry never stops the pass.
func (e *Executor) Execute(ctx context.Context, signals []signal.Signal) ExecutionResult {
	if ctx == nil {
		ctx = context.Background()
	}

	result := ExecutionResult{}
	ordered := strongestPerInstrument(signals)

	for _, sig := range ordered {
		select {
		case <-ctx.Done():
			err := fmt.Errorf("execution canceled: %w", ctx.Err())
			result.Errors = append(result.Errors, err)
			result.Logs = append(result.Logs, e.logEntry("warn", "execution canceled", "", map[string]any{"error": err.Error()}))
			return result
		default:
		}

		instrument := sig.Instrument()
		if instrument == e.benchmark {
			result.Logs = append(result.Logs, e.logEntry("debug", "benchmark skipped", instrument, nil))
			continue
		}

		if status := e.book.Status(); status.Exposure.GreaterThanOrEqual(e.maxExposure) {
			msg := "exposure limit reached, remaining signals skipped"
			e.logger.WithField("exposure", status.Exposure.StringFixed(4)).Info(msg)
			result.Logs = append(result.Logs, e.logEntry("info", msg, instrument, map[string]any{"exposure": status.Exposure.String()}))
			break
		}

		fields := logrus.Fields{
			"instrument": instrument,
			"strategy":   string(sig.Kind()),
			"strength":   sig.Strength().StringFixed(2),
		}

		now := e.now()
		if e.pricer != nil {
			repriced, err := e.pricer.Reprice(ctx, sig, now)
			if errors.Is(err, ErrNoPrice) {
				result.Discarded = append(result.Discarded, instrument+": "+ErrNoPrice.Error())
				result.Logs = append(result.Logs, e.logEntry("info", "entry discarded", instrument, map[string]any{"detail": err.Error()}))
				continue
			}
			if err != nil {
				e.logger.WithError(err).WithFields(fields).Warn("failed to price signal")
				result.Errors = append(result.Errors, err)
				result.Logs = append(result.Logs, e.logEntry("error", "pricing failed", instrument, map[string]any{"error": err.Error()}))
				continue
			}
			sig = repriced
		}

		outcome, err := e.book.Enter(ctx, sig, now)
		if rej, ok := portfolio.IsRejected(err); ok {
			e.logger.WithFields(fields).WithField("reason", rej.String()).Debug("signal rejected")
			result.Rejected = append(result.Rejected, Rejected{Instrument: instrument, Rejection: rej})
			result.Logs = append(result.Logs, e.logEntry("info", "signal rejected", instrument, map[string]any{"reason": rej.String()}))
			continue
		}
		if err != nil {
			e.logger.WithError(err).WithFields(fields).Error("failed to enter signal")
			result.Errors = append(result.Errors, err)
			result.Logs = append(result.Logs, e.logEntry("error", "entry failed", instrument, map[string]any{"error": err.Error()}))
			continue
		}

		switch outcome.Kind {
		case portfolio.EntryOpened:
			result.Opened = append(result.Opened, *outcome.Trade)
			result.Logs = append(result.Logs, e.logEntry("info", "position opened", instrument, map[string]any{"price": outcome.Trade.Price.String()}))
			e.logger.WithFields(fields).Info("signal executed")
		case portfolio.EntryPlaced:
			result.Placed = append(result.Placed, *outcome.Order)
			result.Logs = append(result.Logs, e.logEntry("info", "pivot order placed", instrument, map[string]any{"limit": outcome.Order.LimitPrice.String()}))
		case portfolio.EntryDiscarded:
			result.Discarded = append(result.Discarded, instrument+": "+outcome.Detail)
			result.Logs = append(result.Logs, e.logEntry("info", "entry discarded", instrument, map[string]any{"detail": outcome.Detail}))
		}
	}

	return result
}

func strongestPerInstrument(signals []signal.Signal) []signal.Signal {
	ordered := append([]signal.Signal(nil), signals...)
	signal.SortByStrength(ordered)

	seen := make(map[string]struct{}, len(ordered))
	out := ordered[:0]
	for _, sig := range ordered {
		if _, dup := seen[sig.Instrument()]; dup {
			continue
		}
		seen[sig.Instrument()] = struct{}{}
		out = append(out, sig)
	}
	return out
}

func (e *Executor) logEntry(level, message, instrument string, metadata map[string]any) LogEntry {
	entry := LogEntry{
		Level:      level,
		Message:    message,
		Instrument: instrument,
		CreatedAt:  e.now(),
	}
	if len(metadata) > 0 {
		entry.Metadata = metadata
	}
	return entry
}
