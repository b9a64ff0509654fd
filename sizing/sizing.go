// Package sizing implements Position Sizing: bounding desired open and
// exit volumes against daily caps, concurrency limits, and account
// margin, via an ordered chain of fail-fast checks.
package sizing

import "github.com/haka-quant/optionengine/position"

// AccountSnapshot is the subset of broker account state sizing needs.
type AccountSnapshot struct {
	Balance     float64
	FreeMargin  float64
}

// Config holds the bounds calculate_open_volume enforces, in the order
// they're checked.
type Config struct {
	PerSymbolDailyCap int
	GlobalDailyCap    int
	MaxConcurrentPositions int
	PositionRatio     float64 // required free-margin fraction of balance
}

// Sizer is the pluggable position-sizing port.
type Sizer interface {
	CalculateOpenVolume(desired int, vtSymbol string, positions *position.Aggregate, account AccountSnapshot) int
	CalculateExitVolume(desired int, pos *position.Position) int
}

// DefaultSizer is the built-in Sizer.
type DefaultSizer struct {
	Config Config
}

func New(cfg Config) *DefaultSizer {
	return &DefaultSizer{Config: cfg}
}

// CalculateOpenVolume returns an integer >= 0: desired clamped to 0 the
// moment any check fails, in the fixed order global cap, per-symbol cap,
// max concurrent positions, account margin.
func (s *DefaultSizer) CalculateOpenVolume(desired int, vtSymbol string, positions *position.Aggregate, account AccountSnapshot) int {
	if desired <= 0 {
		return 0
	}

	if !positions.CheckOpenLimit(vtSymbol, desired, s.Config.PerSymbolDailyCap, s.Config.GlobalDailyCap) {
		return 0
	}

	if s.Config.MaxConcurrentPositions > 0 && positions.OpenPositionCount() >= s.Config.MaxConcurrentPositions {
		return 0
	}

	required := s.Config.PositionRatio * account.Balance
	if account.FreeMargin < required {
		return 0
	}

	return desired
}

// CalculateExitVolume clamps desired to the position's remaining
// unpending volume: min(desired, volume - pending_close_volume).
func (s *DefaultSizer) CalculateExitVolume(desired int, pos *position.Position) int {
	remaining := pos.Volume - pos.PendingCloseVolume()
	if remaining < 0 {
		remaining = 0
	}
	if float64(desired) > remaining {
		return int(remaining)
	}
	if desired < 0 {
		return 0
	}
	return desired
}
