// Package ta implements the technical indicators and crossover detection the
// signal pipeline is built on. All functions are pure: they never mutate
// their inputs and their outputs are aligned 1:1 by position with the source
// series, with warm-up positions marked undefined (NaN), never zero.
package ta

import "math"

// IndicatorSeries is a named numeric sequence aligned by position with the
// series it was computed from. Positions before the minimum lookback window
// hold NaN.
type IndicatorSeries struct {
	Name   string
	Values []float64
}

// FromValues wraps an already-aligned value slice (such as raw closes) so it
// can participate in crossover detection.
func FromValues(name string, values []float64) *IndicatorSeries {
	return &IndicatorSeries{Name: name, Values: values}
}

// Len returns the series length.
func (s *IndicatorSeries) Len() int {
	return len(s.Values)
}

// At returns the value at position i.
func (s *IndicatorSeries) At(i int) float64 {
	return s.Values[i]
}

// Defined reports whether position i holds a computed value.
func (s *IndicatorSeries) Defined(i int) bool {
	return i >= 0 && i < len(s.Values) && !math.IsNaN(s.Values[i])
}

// Last returns the value at the final position and whether it is defined.
func (s *IndicatorSeries) Last() (float64, bool) {
	if len(s.Values) == 0 {
		return 0, false
	}
	v := s.Values[len(s.Values)-1]
	return v, !math.IsNaN(v)
}

// WarmupLen counts the leading undefined positions.
func (s *IndicatorSeries) WarmupLen() int {
	for i, v := range s.Values {
		if !math.IsNaN(v) {
			return i
		}
	}
	return len(s.Values)
}

func undefined(n int) []float64 {
	values := make([]float64, n)
	for i := range values {
		values[i] = math.NaN()
	}
	return values
}
