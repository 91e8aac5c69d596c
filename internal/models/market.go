package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Bar represents a single OHLCV candle. Prices travel the JSON boundary as
// decimals and are converted to float64 before any indicator math runs.
type Bar struct {
	Timestamp time.Time       `json:"timestamp" binding:"required"`
	Open      decimal.Decimal `json:"open"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	Close     decimal.Decimal `json:"close"`
	Volume    decimal.Decimal `json:"volume"`
}

// Series is an ordered sequence of bars, oldest first. It is treated as
// immutable for the duration of an analysis run; pipeline stages share it
// read-only.
type Series struct {
	Symbol   string `json:"symbol"`
	Interval string `json:"interval"`
	Bars     []Bar  `json:"bars"`
}

// Len returns the number of bars in the series.
func (s *Series) Len() int {
	return len(s.Bars)
}

// Closes extracts the close prices as float64 in series order.
func (s *Series) Closes() []float64 {
	closes := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		closes[i] = b.Close.InexactFloat64()
	}
	return closes
}

// Validate enforces the series invariants: strictly increasing timestamps,
// all price fields positive, volume non-negative.
func (s *Series) Validate() error {
	if len(s.Bars) == 0 {
		return fmt.Errorf("%w: series is empty", ErrInsufficientData)
	}
	for i, b := range s.Bars {
		if !b.Open.IsPositive() || !b.High.IsPositive() || !b.Low.IsPositive() || !b.Close.IsPositive() {
			return fmt.Errorf("%w: bar %d has a non-positive price", ErrInvalidParameter, i)
		}
		if b.Volume.IsNegative() {
			return fmt.Errorf("%w: bar %d has negative volume", ErrInvalidParameter, i)
		}
		if i > 0 && !b.Timestamp.After(s.Bars[i-1].Timestamp) {
			return fmt.Errorf("%w: bar %d timestamp is not strictly increasing", ErrInvalidParameter, i)
		}
	}
	return nil
}

// AnalysisRequest is the payload for signal analysis. Sentiment is an opaque
// annotation from the data-fetching collaborator; it is passed through to the
// signal reasons untouched.
type AnalysisRequest struct {
	Symbol    string     `json:"symbol" binding:"required"`
	Interval  string     `json:"interval"`
	Bars      []Bar      `json:"bars" binding:"required"`
	Sentiment string     `json:"sentiment,omitempty"`
	Overrides *Overrides `json:"overrides,omitempty"`
}

// Series builds the immutable series view of the request.
func (r *AnalysisRequest) Series() *Series {
	return &Series{Symbol: r.Symbol, Interval: r.Interval, Bars: r.Bars}
}

// Overrides carries per-invocation pipeline settings. Zero values mean
// "use the configured default".
type Overrides struct {
	EMAFastPeriod       int     `json:"ema_fast_period,omitempty"`
	EMASlowPeriod       int     `json:"ema_slow_period,omitempty"`
	MACDSignalPeriod    int     `json:"macd_signal_period,omitempty"`
	RSIPeriod           int     `json:"rsi_period,omitempty"`
	BollingerPeriod     int     `json:"bollinger_period,omitempty"`
	BollingerStd        float64 `json:"bollinger_std,omitempty"`
	RiskWindow          int     `json:"risk_window,omitempty"`
	AnnualizationFactor float64 `json:"annualization_factor,omitempty"`
	VaRConfidence       float64 `json:"var_confidence,omitempty"`
	MaxPositionFraction float64 `json:"max_position_fraction,omitempty"`
}

// BacktestRequest replays generated signals over a submitted series.
type BacktestRequest struct {
	Symbol         string          `json:"symbol" binding:"required"`
	Interval       string          `json:"interval"`
	Bars           []Bar           `json:"bars" binding:"required"`
	InitialCapital decimal.Decimal `json:"initial_capital"`
	Overrides      *Overrides      `json:"overrides,omitempty"`
}

// Series builds the immutable series view of the request.
func (r *BacktestRequest) Series() *Series {
	return &Series{Symbol: r.Symbol, Interval: r.Interval, Bars: r.Bars}
}
