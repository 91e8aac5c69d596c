// Package signal turns indicator values, crossover events and risk metrics
// into a BUY/SELL/HOLD decision. The decision surface is a data-driven rule
// table rather than chained conditionals, so every factor combination can be
// tested directly.
package signal

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/quantsignal/advisor-go/internal/models"
	"github.com/quantsignal/advisor-go/internal/ta"
)

// Trend classifies the directional factors (EMA pair, MACD vs signal).
type Trend string

// RSIZone classifies the momentum oscillator reading.
type RSIZone string

// BandPosition locates the close relative to the Bollinger bands.
type BandPosition string

// RiskLevel buckets annualized volatility.
type RiskLevel string

const (
	TrendBullish Trend = "bullish"
	TrendBearish Trend = "bearish"
	TrendFlat    Trend = "flat"

	ZoneOversold   RSIZone = "oversold"
	ZoneNeutral    RSIZone = "neutral"
	ZoneOverbought RSIZone = "overbought"

	BandBelowLower BandPosition = "below_lower"
	BandInside     BandPosition = "inside"
	BandAboveUpper BandPosition = "above_upper"

	RiskLow      RiskLevel = "low"
	RiskElevated RiskLevel = "elevated"
	RiskHigh     RiskLevel = "high"
)

// Settings holds the tunable thresholds of the rule table.
type Settings struct {
	RSIOversold        float64
	RSIOverbought      float64
	BuyThreshold       float64
	SellThreshold      float64
	CorroborationBonus float64
	ElevatedRiskVol    float64
	HighRiskVol        float64
}

// DefaultSettings returns the standard thresholds: RSI 30/70 zones, a +-1.5
// score gate for BUY/SELL, a 0.05 confidence bonus per corroborating
// crossover, and volatility buckets at 25% and 50% annualized.
func DefaultSettings() Settings {
	return Settings{
		RSIOversold:        30,
		RSIOverbought:      70,
		BuyThreshold:       1.5,
		SellThreshold:      -1.5,
		CorroborationBonus: 0.05,
		ElevatedRiskVol:    0.25,
		HighRiskVol:        0.50,
	}
}

// Inputs is the snapshot the generator decides on: the latest defined value
// of each indicator, the crossover events of the window, and the risk
// profile. Sentiment is an opaque annotation appended to the reasons as-is.
type Inputs struct {
	Close      float64
	EMAFast    float64
	EMASlow    float64
	MACDLine   float64
	MACDSignal float64
	RSI        float64
	BBUpper    float64
	BBMiddle   float64
	BBLower    float64
	Crossovers []ta.CrossoverEvent
	Risk       *models.RiskMetrics
	Sentiment  string
}

type rule struct {
	score  float64
	reason string
}

// maxScore is the largest attainable |score|: two directional factors at 1.0
// plus two mean-reversion factors at 0.5.
const maxScore = 3.0

var trendRules = map[Trend]rule{
	TrendBullish: {1, "EMA fast above EMA slow (uptrend)"},
	TrendBearish: {-1, "EMA fast below EMA slow (downtrend)"},
	TrendFlat:    {0, "no directional signal from the moving averages"},
}

var momentumRules = map[Trend]rule{
	TrendBullish: {1, "MACD above signal line (bullish momentum)"},
	TrendBearish: {-1, "MACD below signal line (bearish momentum)"},
	TrendFlat:    {0, "no directional signal from MACD"},
}

var rsiRules = map[RSIZone]rule{
	ZoneOversold:   {0.5, "RSI in oversold zone"},
	ZoneOverbought: {-0.5, "RSI in overbought zone"},
	ZoneNeutral:    {0, ""},
}

var bandRules = map[BandPosition]rule{
	BandBelowLower: {0.5, "close below lower Bollinger band (mean-reversion up)"},
	BandAboveUpper: {-0.5, "close above upper Bollinger band (mean-reversion down)"},
	BandInside:     {0, ""},
}

var riskRules = map[RiskLevel]struct {
	factor float64
	reason string
}{
	RiskLow:      {1.0, ""},
	RiskElevated: {0.9, "elevated volatility regime, confidence damped"},
	RiskHigh:     {0.75, "high volatility regime, confidence damped"},
}

// Generate evaluates the rule table and returns exactly one signal. It is a
// pure function: identical inputs and settings produce an identical signal.
func Generate(in Inputs, s Settings) *models.Signal {
	trend := classifyTrend(in.EMAFast, in.EMASlow)
	momentum := classifyTrend(in.MACDLine, in.MACDSignal)
	zone := classifyRSI(in.RSI, s)
	band := classifyBand(in.Close, in.BBLower, in.BBUpper)
	riskLevel := classifyRisk(in.Risk, s)

	score := 0.0
	var reasons []string
	for _, r := range []rule{trendRules[trend], momentumRules[momentum], rsiRules[zone], bandRules[band]} {
		score += r.score
		if r.reason != "" {
			reasons = append(reasons, r.reason)
		}
	}

	action := models.ActionHold
	switch {
	case score >= s.BuyThreshold:
		action = models.ActionBuy
	case score <= s.SellThreshold:
		action = models.ActionSell
	}

	confidence := baseConfidence(action, score, s)
	for _, ev := range in.Crossovers {
		if corroborates(ev.Kind, action) {
			confidence += s.CorroborationBonus
			reasons = append(reasons, fmt.Sprintf("%s crossover (%s vs %s)", ev.Kind, ev.A, ev.B))
		}
	}
	confidence *= riskRules[riskLevel].factor
	if confidence > 1 {
		confidence = 1
	}
	if r := riskRules[riskLevel].reason; r != "" {
		reasons = append(reasons, r)
	}
	if in.Sentiment != "" {
		reasons = append(reasons, in.Sentiment)
	}

	sig := &models.Signal{
		Action:     action,
		Confidence: decimal.NewFromFloat(confidence).Round(4),
		Reasons:    reasons,
		KeySignals: keySignals(in),
	}
	if in.Risk != nil {
		sig.Risk = in.Risk
		sig.RiskParams = models.RiskParams{
			StopLoss:     decimal.NewFromFloat(in.Risk.StopLoss).Round(4),
			TakeProfit:   decimal.NewFromFloat(in.Risk.TakeProfit).Round(4),
			PositionSize: decimal.NewFromFloat(in.Risk.SuggestedPositionSize).Round(4),
		}
	}
	return sig
}

// baseConfidence grades how decisive the score is. For BUY/SELL it grows with
// the score magnitude; for HOLD it grows as the evidence cancels out, so a
// perfectly neutral read is a confident HOLD.
func baseConfidence(action models.Action, score float64, s Settings) float64 {
	mag := score
	if mag < 0 {
		mag = -mag
	}
	if action == models.ActionHold {
		return 1 - mag/s.BuyThreshold
	}
	return mag / maxScore
}

func corroborates(kind ta.CrossKind, action models.Action) bool {
	return (kind == ta.CrossBullish && action == models.ActionBuy) ||
		(kind == ta.CrossBearish && action == models.ActionSell)
}

func classifyTrend(fast, slow float64) Trend {
	switch {
	case fast > slow:
		return TrendBullish
	case fast < slow:
		return TrendBearish
	}
	return TrendFlat
}

func classifyRSI(rsi float64, s Settings) RSIZone {
	switch {
	case rsi < s.RSIOversold:
		return ZoneOversold
	case rsi > s.RSIOverbought:
		return ZoneOverbought
	}
	return ZoneNeutral
}

func classifyBand(close, lower, upper float64) BandPosition {
	switch {
	case close < lower:
		return BandBelowLower
	case close > upper:
		return BandAboveUpper
	}
	return BandInside
}

func classifyRisk(m *models.RiskMetrics, s Settings) RiskLevel {
	if m == nil {
		return RiskLow
	}
	switch {
	case m.Volatility >= s.HighRiskVol:
		return RiskHigh
	case m.Volatility >= s.ElevatedRiskVol:
		return RiskElevated
	}
	return RiskLow
}

func keySignals(in Inputs) map[string]decimal.Decimal {
	return map[string]decimal.Decimal{
		"close":       decimal.NewFromFloat(in.Close),
		"ema_fast":    decimal.NewFromFloat(in.EMAFast),
		"ema_slow":    decimal.NewFromFloat(in.EMASlow),
		"macd":        decimal.NewFromFloat(in.MACDLine),
		"macd_signal": decimal.NewFromFloat(in.MACDSignal),
		"rsi":         decimal.NewFromFloat(in.RSI),
		"bb_upper":    decimal.NewFromFloat(in.BBUpper),
		"bb_middle":   decimal.NewFromFloat(in.BBMiddle),
		"bb_lower":    decimal.NewFromFloat(in.BBLower),
	}
}
