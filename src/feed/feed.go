// Package feed adapts the detector signal table into signal sources: windowed
// reads for replays and incremental polling for live trading.
package feed

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"momentumengine/src/externalmodel"
	"momentumengine/src/mapper"
	"momentumengine/src/signal"
)

// WindowStore is satisfied by *repository.MomentumSignalRepository.
type WindowStore interface {
	FindBetween(ctx context.Context, from, to time.Time) ([]externalmodel.MomentumSignal, error)
}

// IncrementalStore is satisfied by *repository.MomentumSignalRepository.
type IncrementalStore interface {
	FindAfterID(ctx context.Context, lastID uint, limit int) ([]externalmodel.MomentumSignal, error)
}

// RepositoryFeed is a signal.Source over stored detector output.
type RepositoryFeed struct {
	store WindowStore
}

func NewRepositoryFeed(store WindowStore) *RepositoryFeed {
	return &RepositoryFeed{store: store}
}

func (f *RepositoryFeed) Signals(ctx context.Context, from, to time.Time) ([]signal.Signal, error) {
	rows, err := f.store.FindBetween(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("load signals (%s, %s]: %w", from.Format(time.RFC3339), to.Format(time.RFC3339), err)
	}
	return mapper.MapMomentumSignals(rows), nil
}

// Static is an in-memory source.
type Static []signal.Signal

func (s Static) Signals(_ context.Context, from, to time.Time) ([]signal.Signal, error) {
	var out []signal.Signal
	for _, sig := range s {
		at := sig.DetectedAt()
		if at.After(from) && !at.After(to) {
			out = append(out, sig)
		}
	}
	return out, nil
}

// Poller reads signals newer than the last id it has seen. It is not safe
// for concurrent use; the live loop owns it.
type Poller struct {
	store  IncrementalStore
	lastID uint
	batch  int
	log    *logrus.Entry
}

func NewPoller(store IncrementalStore, startID uint, batch int, log *logrus.Entry) *Poller {
	if batch <= 0 {
		batch = 100
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Poller{store: store, lastID: startID, batch: batch, log: log.WithField("component", "SignalPoller")}
}

func (p *Poller) LastID() uint { return p.lastID }

// Poll drains every new row. The cursor only advances past rows that were read.
func (p *Poller) Poll(ctx context.Context) ([]signal.Signal, error) {
	var out []signal.Signal
	for {
		rows, err := p.store.FindAfterID(ctx, p.lastID, p.batch)
		if err != nil {
			return out, fmt.Errorf("poll signals after %d: %w", p.lastID, err)
		}
		if len(rows) == 0 {
			break
		}
		out = append(out, mapper.MapMomentumSignals(rows)...)
		p.lastID = rows[len(rows)-1].ID
		if len(rows) < p.batch {
			break
		}
	}

	if len(out) > 0 {
		p.log.WithFields(map[string]interface{}{
			"signals": len(out),
			"lastID":  p.lastID,
		}).Info("new signals polled")
	}
	return out, nil
}
