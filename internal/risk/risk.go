// Package risk computes volatility, drawdown, Value-at-Risk and position
// sizing from a close-price series, independently of the indicator engine.
package risk

import (
	"fmt"
	"math"

	"github.com/quantsignal/advisor-go/internal/models"
)

// Config carries the risk-calculation settings. AnnualizationFactor scales
// per-period volatility to an annual figure (sqrt(252) for daily bars) and is
// a required input, never a built-in constant.
type Config struct {
	Window              int
	AnnualizationFactor float64
	VaRConfidence       float64
	MaxPositionFraction float64
	TargetRiskPerTrade  float64
}

// Validate checks the configuration before any metric is computed.
func (c Config) Validate() error {
	if c.Window < 2 {
		return fmt.Errorf("%w: risk window must be at least 2, got %d", models.ErrInvalidParameter, c.Window)
	}
	if c.AnnualizationFactor <= 0 {
		return fmt.Errorf("%w: annualization factor must be positive, got %v",
			models.ErrInvalidParameter, c.AnnualizationFactor)
	}
	if c.VaRConfidence <= 0 || c.VaRConfidence >= 1 {
		return fmt.Errorf("%w: VaR confidence must be in (0,1), got %v",
			models.ErrInvalidParameter, c.VaRConfidence)
	}
	if c.MaxPositionFraction <= 0 || c.MaxPositionFraction > 1 {
		return fmt.Errorf("%w: max position fraction must be in (0,1], got %v",
			models.ErrInvalidParameter, c.MaxPositionFraction)
	}
	if c.TargetRiskPerTrade <= 0 {
		return fmt.Errorf("%w: target risk per trade must be positive, got %v",
			models.ErrInvalidParameter, c.TargetRiskPerTrade)
	}
	return nil
}

// Returns computes simple returns r[i] = close[i]/close[i-1] - 1. The result
// has one fewer element than the input; the first bar has no return.
func Returns(closes []float64) ([]float64, error) {
	if len(closes) < 2 {
		return nil, fmt.Errorf("returns: %w: need at least 2 closes, have %d",
			models.ErrInsufficientData, len(closes))
	}
	rets := make([]float64, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		rets[i-1] = closes[i]/closes[i-1] - 1
	}
	return rets, nil
}

// Compute derives the full risk profile over the trailing window of the
// series. Degenerate inputs (zero variance) are valid and produce zero
// volatility, not an error.
func Compute(closes []float64, cfg Config) (*models.RiskMetrics, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	rets, err := Returns(closes)
	if err != nil {
		return nil, err
	}
	if len(rets) > cfg.Window {
		rets = rets[len(rets)-cfg.Window:]
	}
	if len(rets) < 2 {
		return nil, fmt.Errorf("risk: %w: need at least 2 returns in window, have %d",
			models.ErrInsufficientData, len(rets))
	}

	mean, sd := meanStdDev(rets)
	return &models.RiskMetrics{
		Volatility:            sd * cfg.AnnualizationFactor,
		MaxDrawdown:           MaxDrawdown(rets),
		ValueAtRisk:           ValueAtRisk(mean, sd, cfg.VaRConfidence),
		SuggestedPositionSize: PositionSize(sd, cfg),
		StopLoss:              clamp(1.5*sd, 0.001, 0.5),
		TakeProfit:            clamp(2.5*sd, 0.002, 1.0),
		Observations:          len(rets),
	}, nil
}

// MaxDrawdown returns the deepest peak-to-trough decline of the cumulative
// growth implied by the returns, as a fraction that is never positive.
func MaxDrawdown(rets []float64) float64 {
	cum, peak, maxDD := 1.0, 1.0, 0.0
	for _, r := range rets {
		cum *= 1 + r
		if cum > peak {
			peak = cum
		}
		if dd := cum/peak - 1; dd < maxDD {
			maxDD = dd
		}
	}
	return maxDD
}

// ValueAtRisk computes the parametric per-period VaR mu - z(alpha)*sigma for
// the given confidence level.
func ValueAtRisk(mean, stdDev, confidence float64) float64 {
	return mean - zQuantile(confidence)*stdDev
}

// PositionSize sizes a position inversely with per-period volatility and
// clamps the result to the configured ceiling. Zero volatility yields the
// ceiling itself; no input can push the result above it.
func PositionSize(perPeriodVol float64, cfg Config) float64 {
	if perPeriodVol <= 0 || math.IsNaN(perPeriodVol) {
		return cfg.MaxPositionFraction
	}
	size := cfg.TargetRiskPerTrade / perPeriodVol
	if size > cfg.MaxPositionFraction {
		return cfg.MaxPositionFraction
	}
	return size
}

// zQuantile is the standard-normal quantile at probability p, via the inverse
// error function.
func zQuantile(p float64) float64 {
	return math.Sqrt2 * math.Erfinv(2*p-1)
}

// meanStdDev returns the mean and sample standard deviation of the returns.
func meanStdDev(rets []float64) (mean, sd float64) {
	for _, r := range rets {
		mean += r
	}
	mean /= float64(len(rets))
	variance := 0.0
	for _, r := range rets {
		d := r - mean
		variance += d * d
	}
	variance /= float64(len(rets) - 1)
	return mean, math.Sqrt(variance)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
