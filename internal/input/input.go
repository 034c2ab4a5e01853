// Package input keeps a free-text amount field and a discrete percentage
// slider mutually consistent, anchored to a ceiling value (wallet balance or
// remaining pool cap). The two representations always agree within the
// three-decimal display tolerance.
package input

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"liquidityHub/internal/amount"
	"liquidityHub/internal/model"
)

// State is a read-only view of the synchronized input.
type State struct {
	Text    string
	Percent int
}

// Synchronizer owns the amount input state for one flow.
type Synchronizer struct {
	text       string
	percent    int
	ceiling    decimal.Decimal
	hasCeiling bool
	logger     *zap.Logger
}

// NewSynchronizer builds a cleared synchronizer.
func NewSynchronizer(logger *zap.Logger) *Synchronizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Synchronizer{logger: logger}
}

// SetText applies a free-text edit and detaches the slider, so a later
// ceiling refresh does not re-derive over the typed amount. Input that fails
// the numeric grammar (digits, optional dot, at most three fraction digits)
// is rejected without any state change.
func (s *Synchronizer) SetText(text string) error {
	if !amount.ValidAmountText(text) {
		return fmt.Errorf("amount text %q: %w", text, model.InvalidInput)
	}
	s.text = text
	s.percent = 0
	return nil
}

// SetPercent applies a slider step. Zero clears the amount; other steps
// derive the amount as floor(ceiling * percent/100 * 1000) / 1000.
func (s *Synchronizer) SetPercent(percent int) error {
	switch percent {
	case 0, 25, 50, 75, 100:
	default:
		return fmt.Errorf("slider percent %d: %w", percent, model.InvalidInput)
	}

	s.percent = percent
	s.deriveFromPercent()
	return nil
}

// SetMax snaps the slider to 100%.
func (s *Synchronizer) SetMax() {
	s.percent = 100
	s.deriveFromPercent()
}

// SetCeiling records the anchor value. When the user already chose a percent
// the amount is re-derived from it, so a balance or cap arriving (or
// shrinking) after the fact updates the amount rather than leaving it stale.
func (s *Synchronizer) SetCeiling(ceiling decimal.Decimal) {
	s.ceiling = ceiling
	s.hasCeiling = true
	if s.percent > 0 {
		s.deriveFromPercent()
	}
}

// Reset clears text, slider and ceiling.
func (s *Synchronizer) Reset() {
	s.text = ""
	s.percent = 0
	s.ceiling = decimal.Zero
	s.hasCeiling = false
}

// State returns the current input state.
func (s *Synchronizer) State() State {
	return State{Text: s.text, Percent: s.percent}
}

// Amount returns the entered amount as a decimal; ok is false for an empty
// or dangling-dot input.
func (s *Synchronizer) Amount() (decimal.Decimal, bool) {
	if s.text == "" || s.text == "." {
		return decimal.Zero, false
	}
	value, err := decimal.NewFromString(s.text)
	if err != nil {
		return decimal.Zero, false
	}
	return value, true
}

// RawAmount converts the entered amount to the raw integer representation
// for the given token decimals.
func (s *Synchronizer) RawAmount(decimals uint8) (*big.Int, error) {
	return amount.Parse(s.text, decimals)
}

// ExceedsCeiling reports whether the entered amount is above the ceiling.
// It is false while either side is unknown.
func (s *Synchronizer) ExceedsCeiling() bool {
	if !s.hasCeiling {
		return false
	}
	value, ok := s.Amount()
	if !ok {
		return false
	}
	return value.GreaterThan(s.ceiling)
}

func (s *Synchronizer) deriveFromPercent() {
	if s.percent == 0 {
		s.text = ""
		return
	}
	if !s.hasCeiling || s.ceiling.Sign() <= 0 {
		return
	}

	// percent/100 as an exact decimal factor, truncated toward zero and
	// rendered with all three fraction digits ("10.000", not "10").
	derived := s.ceiling.Mul(decimal.New(int64(s.percent), -2)).Truncate(3)
	s.text = derived.StringFixed(3)
	s.logger.Debug("slider derived amount",
		zap.Int("percent", s.percent),
		zap.String("amount", s.text),
	)
}
