package notify

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"
)

type Notifier interface {
	Notify(ctx context.Context, e Event) error
}

// Nop drops every event.
type Nop struct{}

func (Nop) Notify(context.Context, Event) error { return nil }

// Multi delivers to every sink and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, e Event) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type safe struct {
	next Notifier
	log  *logrus.Entry
}

// Safe logs delivery failures at warn and never returns them.
func Safe(next Notifier, log *logrus.Entry) Notifier {
	if next == nil {
		next = Nop{}
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &safe{next: next, log: log.WithField("component", "Notifier")}
}

func (s *safe) Notify(ctx context.Context, e Event) error {
	if err := s.next.Notify(ctx, e); err != nil {
		s.log.WithError(err).WithFields(map[string]interface{}{
			"kind":  string(e.Kind),
			"title": e.Title,
		}).Warn("notification not delivered")
	}
	return nil
}
