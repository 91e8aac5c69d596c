package ta

// CrossKind classifies a crossover event.
type CrossKind string

const (
	CrossBullish CrossKind = "bullish"
	CrossBearish CrossKind = "bearish"
)

// CrossoverEvent marks the position where series A crossed series B. Events
// are only produced where both series are defined at the position and the one
// before it.
type CrossoverEvent struct {
	Position int       `json:"position"`
	Kind     CrossKind `json:"kind"`
	A        string    `json:"a"`
	B        string    `json:"b"`
}

// Crossovers scans two aligned indicator series and returns every crossover
// in position order. A bullish event at i means a[i-1] <= b[i-1] and
// a[i] > b[i]; bearish is the mirror. Positions where either series is
// undefined produce no event. The scan is a pure function of its inputs, so
// it can be re-run at will.
func Crossovers(a, b *IndicatorSeries) []CrossoverEvent {
	n := a.Len()
	if b.Len() < n {
		n = b.Len()
	}
	var events []CrossoverEvent
	for i := 1; i < n; i++ {
		if !a.Defined(i-1) || !a.Defined(i) || !b.Defined(i-1) || !b.Defined(i) {
			continue
		}
		prevA, prevB := a.At(i-1), b.At(i-1)
		curA, curB := a.At(i), b.At(i)
		switch {
		case prevA <= prevB && curA > curB:
			events = append(events, CrossoverEvent{Position: i, Kind: CrossBullish, A: a.Name, B: b.Name})
		case prevA >= prevB && curA < curB:
			events = append(events, CrossoverEvent{Position: i, Kind: CrossBearish, A: a.Name, B: b.Name})
		}
	}
	return events
}
