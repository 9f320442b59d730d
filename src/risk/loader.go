package risk

import (
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"
)

// policyDocument mirrors Policy for YAML overrides. Absent keys keep the base value.
type policyDocument struct {
	StopLossPct  *float64 `yaml:"stop_loss_pct"`
	MaxProfitPct *float64 `yaml:"max_profit_pct"`

	Trailing struct {
		ActivationPct    *float64 `yaml:"activation_pct"`
		RetracementRatio *float64 `yaml:"retracement_ratio"`
		FloorRatio       *float64 `yaml:"floor_ratio"`
	} `yaml:"trailing"`

	TimeExit struct {
		Enabled           *bool          `yaml:"enabled"`
		QuickProfitAfter  *time.Duration `yaml:"quick_profit_after"`
		QuickProfitPct    *float64       `yaml:"quick_profit_pct"`
		ProfitTakingAfter *time.Duration `yaml:"profit_taking_after"`
		ProfitTakingPct   *float64       `yaml:"profit_taking_pct"`
		StopLossAfter     *time.Duration `yaml:"stop_loss_after"`
		StopLossPct       *float64       `yaml:"stop_loss_pct"`
		ForcedCloseAfter  *time.Duration `yaml:"forced_close_after"`
	} `yaml:"time_exit"`

	BasePositionPct       *float64 `yaml:"base_position_pct"`
	MaxPositionPct        *float64 `yaml:"max_position_pct"`
	MaxTotalExposure      *float64 `yaml:"max_total_exposure"`
	StrengthDivisor       *float64 `yaml:"strength_divisor"`
	StrengthMultiplierCap *float64 `yaml:"strength_multiplier_cap"`
	MinInvestment         *float64 `yaml:"min_investment"`

	EntryMode      *string        `yaml:"entry_mode"`
	PivotRatio     *float64       `yaml:"pivot_ratio"`
	PendingTimeout *time.Duration `yaml:"pending_timeout"`
	SlippageLimit  *float64       `yaml:"slippage_limit"`
	Benchmark      *string        `yaml:"benchmark"`
}

func setDecimal(dst *decimal.Decimal, v *float64) {
	if v != nil {
		*dst = decimal.NewFromFloat(*v)
	}
}

func setDuration(dst *time.Duration, v *time.Duration) {
	if v != nil {
		*dst = *v
	}
}

// ParsePolicy applies a YAML document on top of base and validates the result.
func ParsePolicy(base Policy, data []byte) (Policy, error) {
	var doc policyDocument
	if err := yaml.UnmarshalStrict(data, &doc); err != nil {
		return Policy{}, fmt.Errorf("decode policy document: %w", err)
	}

	p := base
	setDecimal(&p.StopLossPct, doc.StopLossPct)
	setDecimal(&p.MaxProfitPct, doc.MaxProfitPct)

	setDecimal(&p.Trailing.ActivationPct, doc.Trailing.ActivationPct)
	setDecimal(&p.Trailing.RetracementRatio, doc.Trailing.RetracementRatio)
	setDecimal(&p.Trailing.FloorRatio, doc.Trailing.FloorRatio)

	if doc.TimeExit.Enabled != nil {
		p.TimeExit.Enabled = *doc.TimeExit.Enabled
	}
	setDuration(&p.TimeExit.QuickProfit.After, doc.TimeExit.QuickProfitAfter)
	setDecimal(&p.TimeExit.QuickProfit.PnLPct, doc.TimeExit.QuickProfitPct)
	setDuration(&p.TimeExit.ProfitTaking.After, doc.TimeExit.ProfitTakingAfter)
	setDecimal(&p.TimeExit.ProfitTaking.PnLPct, doc.TimeExit.ProfitTakingPct)
	setDuration(&p.TimeExit.StopLoss.After, doc.TimeExit.StopLossAfter)
	setDecimal(&p.TimeExit.StopLoss.PnLPct, doc.TimeExit.StopLossPct)
	setDuration(&p.TimeExit.ForcedCloseAfter, doc.TimeExit.ForcedCloseAfter)

	setDecimal(&p.BasePositionPct, doc.BasePositionPct)
	setDecimal(&p.MaxPositionPct, doc.MaxPositionPct)
	setDecimal(&p.MaxTotalExposure, doc.MaxTotalExposure)
	setDecimal(&p.StrengthDivisor, doc.StrengthDivisor)
	setDecimal(&p.StrengthMultiplierCap, doc.StrengthMultiplierCap)
	setDecimal(&p.MinInvestment, doc.MinInvestment)

	if doc.EntryMode != nil {
		p.EntryMode = EntryMode(*doc.EntryMode)
	}
	setDecimal(&p.PivotRatio, doc.PivotRatio)
	setDuration(&p.PendingTimeout, doc.PendingTimeout)
	setDecimal(&p.SlippageLimit, doc.SlippageLimit)
	if doc.Benchmark != nil {
		p.Benchmark = *doc.Benchmark
	}

	if err := p.Validate(); err != nil {
		return Policy{}, err
	}
	return p, nil
}

// LoadPolicy builds the policy for a run: base defaults, then the optional
// POLICY_FILE document, then the ENTRY_MODE override.
func LoadPolicy(base Policy, config Config) (Policy, error) {
	p := base
	if config.PolicyFile != "" {
		data, err := os.ReadFile(config.PolicyFile)
		if err != nil {
			return Policy{}, fmt.Errorf("read policy file %s: %w", config.PolicyFile, err)
		}
		p, err = ParsePolicy(base, data)
		if err != nil {
			return Policy{}, err
		}
		logger.WithField("file", config.PolicyFile).Info("risk policy loaded from file")
	}
	if config.EntryMode != "" {
		p.EntryMode = EntryMode(config.EntryMode)
	}
	if err := p.Validate(); err != nil {
		return Policy{}, err
	}
	return p, nil
}
