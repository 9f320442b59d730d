package model

import "time"

const (
	ExceptionLevelWarn  = "warn"
	ExceptionLevelError = "error"
	ExceptionLevelFatal = "fatal"
)

// Exception is a persisted engine failure: a skipped instrument, a failed
// exchange call or a halted driver.
type Exception struct {
	ID uint `gorm:"primaryKey" json:"id"`

	Service    string `gorm:"size:100;index" json:"service"` // e.g. "live"
	Module     string `gorm:"size:100;index" json:"module"`  // e.g. "risk_tick"
	Method     string `gorm:"size:100" json:"method"`        // e.g. "LatestPrice"
	Instrument string `gorm:"size:50;index" json:"instrument,omitempty"`

	Message string `gorm:"type:text" json:"message"`
	Level   string `gorm:"size:20;index" json:"level"`

	CreatedAt time.Time `json:"created_at"`
}

func NewException(service, module, method, instrument, level string, err error) *Exception {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return &Exception{
		Service:    service,
		Module:     module,
		Method:     method,
		Instrument: instrument,
		Message:    msg,
		Level:      level,
	}
}
