package signal

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantsignal/advisor-go/internal/models"
	"github.com/quantsignal/advisor-go/internal/ta"
)

func lowRisk() *models.RiskMetrics {
	return &models.RiskMetrics{
		Volatility:            0.10,
		MaxDrawdown:           -0.05,
		ValueAtRisk:           -0.01,
		SuggestedPositionSize: 0.05,
		StopLoss:              0.02,
		TakeProfit:            0.04,
		Observations:          60,
	}
}

func flatInputs() Inputs {
	return Inputs{
		Close:      100,
		EMAFast:    100,
		EMASlow:    100,
		MACDLine:   0,
		MACDSignal: 0,
		RSI:        50,
		BBUpper:    100,
		BBMiddle:   100,
		BBLower:    100,
		Risk:       lowRisk(),
	}
}

func bullishInputs() Inputs {
	return Inputs{
		Close:      95,
		EMAFast:    105,
		EMASlow:    100,
		MACDLine:   1.2,
		MACDSignal: 0.4,
		RSI:        25,
		BBUpper:    110,
		BBMiddle:   103,
		BBLower:    96,
		Risk:       lowRisk(),
	}
}

func bearishInputs() Inputs {
	return Inputs{
		Close:      115,
		EMAFast:    100,
		EMASlow:    105,
		MACDLine:   -1.2,
		MACDSignal: -0.4,
		RSI:        78,
		BBUpper:    112,
		BBMiddle:   105,
		BBLower:    98,
		Risk:       lowRisk(),
	}
}

func reasonsContain(reasons []string, fragment string) bool {
	for _, r := range reasons {
		if strings.Contains(r, fragment) {
			return true
		}
	}
	return false
}

func TestGenerate_FlatMarketHolds(t *testing.T) {
	sig := Generate(flatInputs(), DefaultSettings())

	assert.Equal(t, models.ActionHold, sig.Action)
	assert.True(t, sig.Confidence.Equal(decimal.NewFromInt(1)),
		"neutral evidence should be a fully confident HOLD, got %s", sig.Confidence)
	assert.True(t, reasonsContain(sig.Reasons, "no directional signal"))
}

func TestGenerate_AllBullishFactorsBuy(t *testing.T) {
	sig := Generate(bullishInputs(), DefaultSettings())

	assert.Equal(t, models.ActionBuy, sig.Action)
	// Score 3.0 of a possible 3.0.
	assert.True(t, sig.Confidence.Equal(decimal.NewFromInt(1)), "got %s", sig.Confidence)
	assert.True(t, reasonsContain(sig.Reasons, "uptrend"))
	assert.True(t, reasonsContain(sig.Reasons, "bullish momentum"))
	assert.True(t, reasonsContain(sig.Reasons, "oversold"))
	assert.True(t, reasonsContain(sig.Reasons, "lower Bollinger band"))
}

func TestGenerate_AllBearishFactorsSell(t *testing.T) {
	sig := Generate(bearishInputs(), DefaultSettings())

	assert.Equal(t, models.ActionSell, sig.Action)
	assert.True(t, sig.Confidence.Equal(decimal.NewFromInt(1)), "got %s", sig.Confidence)
	assert.True(t, reasonsContain(sig.Reasons, "downtrend"))
	assert.True(t, reasonsContain(sig.Reasons, "overbought"))
}

func TestGenerate_MixedEvidenceHolds(t *testing.T) {
	// Uptrend and momentum, but overbought and stretched above the band:
	// score 1.0 stays below the BUY gate.
	in := Inputs{
		Close:      120,
		EMAFast:    105,
		EMASlow:    100,
		MACDLine:   1.0,
		MACDSignal: 0.5,
		RSI:        75,
		BBUpper:    118,
		BBMiddle:   110,
		BBLower:    102,
		Risk:       lowRisk(),
	}
	sig := Generate(in, DefaultSettings())
	assert.Equal(t, models.ActionHold, sig.Action)
}

func TestGenerate_TrendAloneIsNotEnough(t *testing.T) {
	in := flatInputs()
	in.EMAFast = 101
	sig := Generate(in, DefaultSettings())
	assert.Equal(t, models.ActionHold, sig.Action)
	assert.NotEqual(t, models.ActionSell, sig.Action)
}

func TestGenerate_CorroboratingCrossoverRaisesConfidence(t *testing.T) {
	s := DefaultSettings()
	in := bullishInputs()
	// Remove one half-point factor so the base confidence has headroom.
	in.RSI = 50

	plain := Generate(in, s)
	require.Equal(t, models.ActionBuy, plain.Action)

	in.Crossovers = []ta.CrossoverEvent{
		{Position: 59, Kind: ta.CrossBullish, A: "MACD", B: "MACD_signal"},
	}
	boosted := Generate(in, s)
	require.Equal(t, models.ActionBuy, boosted.Action)

	assert.True(t, boosted.Confidence.GreaterThan(plain.Confidence),
		"crossover should raise confidence: %s vs %s", boosted.Confidence, plain.Confidence)
	assert.True(t, reasonsContain(boosted.Reasons, "crossover"))
}

func TestGenerate_OpposingCrossoverIgnored(t *testing.T) {
	s := DefaultSettings()
	in := bullishInputs()
	in.RSI = 50
	plain := Generate(in, s)

	in.Crossovers = []ta.CrossoverEvent{
		{Position: 59, Kind: ta.CrossBearish, A: "MACD", B: "MACD_signal"},
	}
	crossed := Generate(in, s)

	assert.True(t, crossed.Confidence.Equal(plain.Confidence))
	assert.False(t, reasonsContain(crossed.Reasons, "crossover"))
}

func TestGenerate_HighVolatilityDampsConfidence(t *testing.T) {
	s := DefaultSettings()
	in := bullishInputs()
	in.RSI = 50
	calm := Generate(in, s)

	in.Risk = lowRisk()
	in.Risk.Volatility = 0.60
	stormy := Generate(in, s)

	assert.Equal(t, calm.Action, stormy.Action)
	assert.True(t, stormy.Confidence.LessThan(calm.Confidence))
	assert.True(t, reasonsContain(stormy.Reasons, "high volatility"))
}

func TestGenerate_ElevatedVolatilityDampsLess(t *testing.T) {
	s := DefaultSettings()
	in := bullishInputs()
	in.RSI = 50

	in.Risk.Volatility = 0.30
	elevated := Generate(in, s)
	assert.True(t, reasonsContain(elevated.Reasons, "elevated volatility"))

	in.Risk = lowRisk()
	in.Risk.Volatility = 0.60
	high := Generate(in, s)
	assert.True(t, high.Confidence.LessThan(elevated.Confidence))
}

func TestGenerate_ConfidenceNeverExceedsOne(t *testing.T) {
	in := bullishInputs()
	in.Crossovers = []ta.CrossoverEvent{
		{Position: 58, Kind: ta.CrossBullish, A: "EMA_12", B: "EMA_26"},
		{Position: 59, Kind: ta.CrossBullish, A: "MACD", B: "MACD_signal"},
		{Position: 59, Kind: ta.CrossBullish, A: "close", B: "BB_lower"},
	}
	sig := Generate(in, DefaultSettings())
	assert.True(t, sig.Confidence.LessThanOrEqual(decimal.NewFromInt(1)))
}

func TestGenerate_SentimentAppendedVerbatim(t *testing.T) {
	in := flatInputs()
	in.Sentiment = "news flow skews positive"
	sig := Generate(in, DefaultSettings())
	assert.Contains(t, sig.Reasons, "news flow skews positive")
}

func TestGenerate_KeySignalsComplete(t *testing.T) {
	sig := Generate(bullishInputs(), DefaultSettings())
	for _, key := range []string{"close", "ema_fast", "ema_slow", "macd", "macd_signal",
		"rsi", "bb_upper", "bb_middle", "bb_lower"} {
		assert.Contains(t, sig.KeySignals, key)
	}
	assert.True(t, sig.KeySignals["rsi"].Equal(decimal.NewFromInt(25)))
}

func TestGenerate_RiskParamsFromMetrics(t *testing.T) {
	sig := Generate(bullishInputs(), DefaultSettings())
	require.NotNil(t, sig.Risk)
	assert.True(t, sig.RiskParams.StopLoss.Equal(decimal.NewFromFloat(0.02)))
	assert.True(t, sig.RiskParams.TakeProfit.Equal(decimal.NewFromFloat(0.04)))
	assert.True(t, sig.RiskParams.PositionSize.Equal(decimal.NewFromFloat(0.05)))
}

func TestGenerate_NilRiskStillDecides(t *testing.T) {
	in := bullishInputs()
	in.Risk = nil
	sig := Generate(in, DefaultSettings())
	assert.Equal(t, models.ActionBuy, sig.Action)
	assert.Nil(t, sig.Risk)
}

func TestGenerate_Deterministic(t *testing.T) {
	in := bullishInputs()
	in.Crossovers = []ta.CrossoverEvent{{Position: 59, Kind: ta.CrossBullish, A: "MACD", B: "MACD_signal"}}
	in.Sentiment = "steady"

	first := Generate(in, DefaultSettings())
	second := Generate(in, DefaultSettings())

	assert.Equal(t, first.Action, second.Action)
	assert.True(t, first.Confidence.Equal(second.Confidence))
	assert.Equal(t, first.Reasons, second.Reasons)
	assert.Equal(t, first.KeySignals, second.KeySignals)
}
