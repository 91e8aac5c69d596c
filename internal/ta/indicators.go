package ta

import (
	"fmt"
	"math"

	"github.com/quantsignal/advisor-go/internal/models"
)

// MACDResult holds the three aligned MACD series.
type MACDResult struct {
	Line      *IndicatorSeries
	Signal    *IndicatorSeries
	Histogram *IndicatorSeries
}

// BollingerResult holds the three aligned band series. At every defined
// position Upper >= Middle >= Lower.
type BollingerResult struct {
	Upper  *IndicatorSeries
	Middle *IndicatorSeries
	Lower  *IndicatorSeries
}

// SMA computes the simple moving average. The first defined value is at
// position period-1.
func SMA(closes []float64, period int) (*IndicatorSeries, error) {
	if err := checkPeriod(len(closes), period); err != nil {
		return nil, fmt.Errorf("SMA: %w", err)
	}
	values := undefined(len(closes))
	sum := 0.0
	for i, c := range closes {
		sum += c
		if i >= period {
			sum -= closes[i-period]
		}
		if i >= period-1 {
			values[i] = sum / float64(period)
		}
	}
	return &IndicatorSeries{Name: fmt.Sprintf("SMA_%d", period), Values: values}, nil
}

// EMA computes the exponential moving average, seeded at position period-1 by
// the simple moving average of the first period closes, then smoothed with
// k = 2/(period+1).
func EMA(closes []float64, period int) (*IndicatorSeries, error) {
	series, err := emaOver(closes, period)
	if err != nil {
		return nil, fmt.Errorf("EMA: %w", err)
	}
	series.Name = fmt.Sprintf("EMA_%d", period)
	return series, nil
}

// emaOver runs the EMA recursion over values that may carry a leading
// undefined (NaN) prefix, as the MACD line does. The seed SMA covers the
// first period defined values.
func emaOver(values []float64, period int) (*IndicatorSeries, error) {
	first := 0
	for first < len(values) && math.IsNaN(values[first]) {
		first++
	}
	if err := checkPeriod(len(values)-first, period); err != nil {
		return nil, err
	}
	out := undefined(len(values))
	seed := 0.0
	for i := first; i < first+period; i++ {
		seed += values[i]
	}
	out[first+period-1] = seed / float64(period)
	k := 2.0 / float64(period+1)
	for i := first + period; i < len(values); i++ {
		out[i] = (values[i]-out[i-1])*k + out[i-1]
	}
	return &IndicatorSeries{Values: out}, nil
}

// MACD computes the MACD line (EMA fast minus EMA slow), its signal line
// (EMA of the MACD line) and the histogram (line minus signal). The line is
// defined from position slow-1, the signal and histogram from
// slow+signalPeriod-2.
func MACD(closes []float64, fast, slow, signalPeriod int) (*MACDResult, error) {
	if fast >= slow {
		return nil, fmt.Errorf("MACD: %w: fast period %d must be shorter than slow period %d",
			models.ErrInvalidParameter, fast, slow)
	}
	emaFast, err := EMA(closes, fast)
	if err != nil {
		return nil, fmt.Errorf("MACD: %w", err)
	}
	emaSlow, err := EMA(closes, slow)
	if err != nil {
		return nil, fmt.Errorf("MACD: %w", err)
	}

	line := undefined(len(closes))
	for i := range closes {
		if emaFast.Defined(i) && emaSlow.Defined(i) {
			line[i] = emaFast.At(i) - emaSlow.At(i)
		}
	}

	signal, err := emaOver(line, signalPeriod)
	if err != nil {
		return nil, fmt.Errorf("MACD signal: %w", err)
	}

	histogram := undefined(len(closes))
	for i := range closes {
		if !math.IsNaN(line[i]) && signal.Defined(i) {
			histogram[i] = line[i] - signal.At(i)
		}
	}

	return &MACDResult{
		Line:      &IndicatorSeries{Name: "MACD", Values: line},
		Signal:    &IndicatorSeries{Name: "MACD_signal", Values: signal.Values},
		Histogram: &IndicatorSeries{Name: "MACD_histogram", Values: histogram},
	}, nil
}

// RSI computes Wilder's relative strength index. The first defined value is
// at position period. A window with no losses yields 100, no gains yields 0,
// and a fully flat window yields 50; none of these raise an error.
func RSI(closes []float64, period int) (*IndicatorSeries, error) {
	if period < 1 {
		return nil, fmt.Errorf("RSI: %w: period must be at least 1, got %d", models.ErrInvalidParameter, period)
	}
	if len(closes) < period+1 {
		return nil, fmt.Errorf("RSI: %w: period %d needs %d bars, have %d",
			models.ErrInvalidParameter, period, period+1, len(closes))
	}

	values := undefined(len(closes))
	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		change := closes[i] - closes[i-1]
		if change > 0 {
			avgGain += change
		} else {
			avgLoss -= change
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)
	values[period] = rsiValue(avgGain, avgLoss)

	for i := period + 1; i < len(closes); i++ {
		change := closes[i] - closes[i-1]
		gain, loss := 0.0, 0.0
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
		values[i] = rsiValue(avgGain, avgLoss)
	}

	return &IndicatorSeries{Name: fmt.Sprintf("RSI_%d", period), Values: values}, nil
}

func rsiValue(avgGain, avgLoss float64) float64 {
	switch {
	case avgGain == 0 && avgLoss == 0:
		return 50.0
	case avgLoss == 0:
		return 100.0
	case avgGain == 0:
		return 0.0
	}
	rs := avgGain / avgLoss
	return 100.0 - 100.0/(1.0+rs)
}

// BollingerBands computes the middle band as SMA(period) and the outer bands
// at numStd sample standard deviations around it. Undefined before
// position period-1.
func BollingerBands(closes []float64, period int, numStd float64) (*BollingerResult, error) {
	if numStd < 0 {
		return nil, fmt.Errorf("bollinger: %w: std multiplier must be non-negative, got %v",
			models.ErrInvalidParameter, numStd)
	}
	middle, err := SMA(closes, period)
	if err != nil {
		return nil, fmt.Errorf("bollinger: %w", err)
	}

	upper := undefined(len(closes))
	lower := undefined(len(closes))
	for i := period - 1; i < len(closes); i++ {
		sd := sampleStdDev(closes[i-period+1:i+1], middle.At(i))
		upper[i] = middle.At(i) + numStd*sd
		lower[i] = middle.At(i) - numStd*sd
	}

	middle.Name = "BB_middle"
	return &BollingerResult{
		Upper:  &IndicatorSeries{Name: "BB_upper", Values: upper},
		Middle: middle,
		Lower:  &IndicatorSeries{Name: "BB_lower", Values: lower},
	}, nil
}

// sampleStdDev uses the n-1 denominator, matching a rolling sample standard
// deviation. A single-element window has zero deviation.
func sampleStdDev(window []float64, mean float64) float64 {
	if len(window) < 2 {
		return 0
	}
	variance := 0.0
	for _, v := range window {
		d := v - mean
		variance += d * d
	}
	variance /= float64(len(window) - 1)
	return math.Sqrt(variance)
}

func checkPeriod(available, period int) error {
	if period < 1 {
		return fmt.Errorf("%w: period must be at least 1, got %d", models.ErrInvalidParameter, period)
	}
	if period > available {
		return fmt.Errorf("%w: period %d exceeds available data length %d",
			models.ErrInvalidParameter, period, available)
	}
	return nil
}
