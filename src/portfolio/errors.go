package portfolio

import (
	"errors"
	"fmt"
)

// RejectCode is why an entry was refused. Rejections are expected outcomes,
// the caller skips the signal and moves on.
type RejectCode string

const (
	RejectNone             RejectCode = ""
	RejectAlreadyHeld      RejectCode = "already held"
	RejectPendingExists    RejectCode = "pending order exists"
	RejectInsufficientCash RejectCode = "insufficient cash"
	RejectExposure         RejectCode = "exposure over limit"
	RejectBelowMinimum     RejectCode = "investment below minimum"
	RejectInvalidPrice     RejectCode = "invalid price"
	RejectZeroSize         RejectCode = "zero size"
)

type Rejection struct {
	Code   RejectCode
	Detail string
}

func (r Rejection) OK() bool { return r.Code == RejectNone }

func (r Rejection) String() string {
	if r.Detail == "" {
		return string(r.Code)
	}
	return fmt.Sprintf("%s: %s", r.Code, r.Detail)
}

type RejectedError struct {
	Instrument string
	Rejection  Rejection
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("entry %s rejected: %s", e.Instrument, e.Rejection)
}

// IsRejected reports whether err is an entry rejection and returns it.
func IsRejected(err error) (Rejection, bool) {
	var rej *RejectedError
	if errors.As(err, &rej) {
		return rej.Rejection, true
	}
	return Rejection{}, false
}

var (
	ErrNoPosition       = errors.New("no open position")
	ErrLedgerCorrupted  = errors.New("ledger corrupted")
	ErrUnsupportedEntry = errors.New("entry mode not supported by executor")
	ErrNotContingent    = errors.New("executor cannot track resting orders")
)

// LedgerError is fatal: a ledger invariant no longer holds. Once raised the
// portfolio refuses every further mutation.
type LedgerError struct {
	Op     string
	Detail string
}

func (e *LedgerError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrLedgerCorrupted, e.Op, e.Detail)
}

func (e *LedgerError) Unwrap() error { return ErrLedgerCorrupted }
