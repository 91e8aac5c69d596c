package services

import (
	"context"
	"io"
	"math"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantsignal/advisor-go/internal/cache"
	"github.com/quantsignal/advisor-go/internal/config"
	"github.com/quantsignal/advisor-go/internal/models"
	"github.com/quantsignal/advisor-go/internal/ta"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func testAppConfig() *config.Config {
	return &config.Config{
		Environment: "test",
		LogLevel:    "error",
		Indicators: config.IndicatorsConfig{
			EMAFastPeriod:    12,
			EMASlowPeriod:    26,
			MACDSignalPeriod: 9,
			RSIPeriod:        14,
			BollingerPeriod:  20,
			BollingerStd:     2.0,
		},
		Risk: config.RiskConfig{
			Window:              60,
			AnnualizationFactor: math.Sqrt(252),
			VaRConfidence:       0.95,
			MaxPositionFraction: 0.10,
			TargetRiskPerTrade:  0.001,
		},
	}
}

func barsFromCloses(closes []float64) []models.Bar {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]models.Bar, len(closes))
	for i, c := range closes {
		price := decimal.NewFromFloat(c)
		bars[i] = models.Bar{
			Timestamp: base.Add(time.Duration(i) * 24 * time.Hour),
			Open:      price,
			High:      price.Mul(decimal.NewFromFloat(1.01)),
			Low:       price.Mul(decimal.NewFromFloat(0.99)),
			Close:     price,
			Volume:    decimal.NewFromInt(1000),
		}
	}
	return bars
}

func risingBars(n int) []models.Bar {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	return barsFromCloses(closes)
}

func choppyBars(n int) []models.Bar {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = 100 + 5*math.Sin(float64(i)/3) + 0.1*float64(i)
	}
	return barsFromCloses(closes)
}

func TestAnalyze_StampsIdentityFields(t *testing.T) {
	analyzer := NewAnalyzer(testAppConfig(), testLogger(), nil)
	req := &models.AnalysisRequest{Symbol: "BTC/USDT", Interval: "1d", Bars: risingBars(80)}

	sig, err := analyzer.Analyze(context.Background(), req)
	require.NoError(t, err)

	assert.NotEmpty(t, sig.ID)
	assert.Equal(t, "BTC/USDT", sig.Symbol)
	assert.Equal(t, "1d", sig.Interval)
	assert.False(t, sig.GeneratedAt.IsZero())
	require.NotNil(t, sig.Risk)
	assert.Equal(t, 60, sig.Risk.Observations)
}

func TestAnalyze_RisingSeriesNeverSells(t *testing.T) {
	analyzer := NewAnalyzer(testAppConfig(), testLogger(), nil)
	req := &models.AnalysisRequest{Symbol: "BTC/USDT", Interval: "1d", Bars: risingBars(80)}

	sig, err := analyzer.Analyze(context.Background(), req)
	require.NoError(t, err)
	assert.NotEqual(t, models.ActionSell, sig.Action)
	assert.NotEmpty(t, sig.Reasons)
	for _, key := range []string{"close", "ema_fast", "ema_slow", "macd", "macd_signal",
		"rsi", "bb_upper", "bb_middle", "bb_lower"} {
		assert.Contains(t, sig.KeySignals, key)
	}
}

func TestAnalyze_DecisionFieldsDeterministic(t *testing.T) {
	analyzer := NewAnalyzer(testAppConfig(), testLogger(), nil)
	req := &models.AnalysisRequest{Symbol: "BTC/USDT", Interval: "1d", Bars: choppyBars(100)}

	first, err := analyzer.Analyze(context.Background(), req)
	require.NoError(t, err)
	second, err := analyzer.Analyze(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first.Action, second.Action)
	assert.True(t, first.Confidence.Equal(second.Confidence))
	assert.Equal(t, first.Reasons, second.Reasons)
	assert.Equal(t, first.KeySignals, second.KeySignals)
	assert.Equal(t, first.Risk, second.Risk)
	// Identity fields are per-run.
	assert.NotEqual(t, first.ID, second.ID)
}

func TestAnalyze_TooFewBars(t *testing.T) {
	analyzer := NewAnalyzer(testAppConfig(), testLogger(), nil)
	req := &models.AnalysisRequest{Symbol: "BTC/USDT", Interval: "1d", Bars: risingBars(5)}

	_, err := analyzer.Analyze(context.Background(), req)
	assert.ErrorIs(t, err, models.ErrInsufficientData)
}

func TestAnalyze_InvalidSeries(t *testing.T) {
	analyzer := NewAnalyzer(testAppConfig(), testLogger(), nil)
	bars := risingBars(80)
	bars[40].Timestamp = bars[39].Timestamp
	req := &models.AnalysisRequest{Symbol: "BTC/USDT", Bars: bars}

	_, err := analyzer.Analyze(context.Background(), req)
	assert.ErrorIs(t, err, models.ErrInvalidParameter)
}

func TestAnalyze_InvalidOverride(t *testing.T) {
	analyzer := NewAnalyzer(testAppConfig(), testLogger(), nil)
	req := &models.AnalysisRequest{
		Symbol:    "BTC/USDT",
		Bars:      risingBars(80),
		Overrides: &models.Overrides{EMAFastPeriod: 30},
	}

	_, err := analyzer.Analyze(context.Background(), req)
	assert.ErrorIs(t, err, models.ErrInvalidParameter)
}

func TestAnalyze_OverridesShrinkLookback(t *testing.T) {
	analyzer := NewAnalyzer(testAppConfig(), testLogger(), nil)
	req := &models.AnalysisRequest{
		Symbol: "BTC/USDT",
		Bars:   risingBars(20),
		Overrides: &models.Overrides{
			EMAFastPeriod:    3,
			EMASlowPeriod:    8,
			MACDSignalPeriod: 4,
			RSIPeriod:        5,
			BollingerPeriod:  10,
			RiskWindow:       10,
		},
	}

	sig, err := analyzer.Analyze(context.Background(), req)
	require.NoError(t, err)
	assert.NotEmpty(t, sig.ID)
}

func TestAnalyze_SentimentFlowsThrough(t *testing.T) {
	analyzer := NewAnalyzer(testAppConfig(), testLogger(), nil)
	req := &models.AnalysisRequest{
		Symbol:    "BTC/USDT",
		Bars:      risingBars(80),
		Sentiment: "funding rates deeply negative",
	}

	sig, err := analyzer.Analyze(context.Background(), req)
	require.NoError(t, err)
	assert.Contains(t, sig.Reasons, "funding rates deeply negative")
}

func TestAnalyze_CacheReturnsSameSignal(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	signalCache := cache.NewSignalCache(client, time.Minute, testLogger())

	analyzer := NewAnalyzer(testAppConfig(), testLogger(), signalCache)
	req := &models.AnalysisRequest{Symbol: "BTC/USDT", Interval: "1d", Bars: risingBars(80)}

	first, err := analyzer.Analyze(context.Background(), req)
	require.NoError(t, err)
	second, err := analyzer.Analyze(context.Background(), req)
	require.NoError(t, err)

	// A cache hit returns the stored signal, ID included.
	assert.Equal(t, first.ID, second.ID)

	stats := signalCache.GetStats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Sets)
}

func TestAnalyze_CacheKeyedBySeriesContent(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	signalCache := cache.NewSignalCache(client, time.Minute, testLogger())

	analyzer := NewAnalyzer(testAppConfig(), testLogger(), signalCache)

	first, err := analyzer.Analyze(context.Background(),
		&models.AnalysisRequest{Symbol: "BTC/USDT", Interval: "1d", Bars: risingBars(80)})
	require.NoError(t, err)

	second, err := analyzer.Analyze(context.Background(),
		&models.AnalysisRequest{Symbol: "BTC/USDT", Interval: "1d", Bars: risingBars(81)})
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)

	// Same length, same final bar, revised history: must miss the cache and
	// recompute, not serve the other series' signal.
	revised := risingBars(80)
	revised[40].Close = decimal.NewFromInt(90)
	revised[40].Low = decimal.NewFromInt(89)
	third, err := analyzer.Analyze(context.Background(),
		&models.AnalysisRequest{Symbol: "BTC/USDT", Interval: "1d", Bars: revised})
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, third.ID)
}

func TestFingerprint_CoversEveryBar(t *testing.T) {
	pipe := PipelineFromConfig(testAppConfig())

	base := &models.Series{Symbol: "BTC/USDT", Interval: "1d", Bars: risingBars(80)}
	same := &models.Series{Symbol: "BTC/USDT", Interval: "1d", Bars: risingBars(80)}
	assert.Equal(t, fingerprint(base, pipe, ""), fingerprint(same, pipe, ""))

	interior := risingBars(80)
	interior[40].Close = decimal.NewFromInt(90)
	changed := &models.Series{Symbol: "BTC/USDT", Interval: "1d", Bars: interior}
	assert.NotEqual(t, fingerprint(base, pipe, ""), fingerprint(changed, pipe, ""))

	shifted := risingBars(80)
	shifted[40].Timestamp = shifted[40].Timestamp.Add(time.Hour)
	changed = &models.Series{Symbol: "BTC/USDT", Interval: "1d", Bars: shifted}
	assert.NotEqual(t, fingerprint(base, pipe, ""), fingerprint(changed, pipe, ""))

	assert.NotEqual(t, fingerprint(base, pipe, ""), fingerprint(base, pipe, "news skews positive"))
}

func TestLatestCrossovers_BandBreaksAreMeanReversion(t *testing.T) {
	flat := func(name string, v float64) *ta.IndicatorSeries {
		return ta.FromValues(name, []float64{v, v})
	}
	noTrendCross := func() (*ta.IndicatorSeries, *ta.IndicatorSeries, *ta.MACDResult) {
		return flat("EMA_12", 5), flat("EMA_26", 6), &ta.MACDResult{
			Line:      flat("MACD", 1),
			Signal:    flat("MACD_signal", 0),
			Histogram: flat("MACD_histogram", 1),
		}
	}
	bands := func(lower, upper float64) *ta.BollingerResult {
		return &ta.BollingerResult{
			Upper:  flat("BB_upper", upper),
			Middle: flat("BB_middle", (lower+upper)/2),
			Lower:  flat("BB_lower", lower),
		}
	}

	// A close breaking above the upper band argues down, not up.
	emaFast, emaSlow, macd := noTrendCross()
	events := latestCrossovers([]float64{10, 12}, emaFast, emaSlow, macd, bands(2, 11))
	require.Len(t, events, 1)
	assert.Equal(t, ta.CrossBearish, events[0].Kind)
	assert.Equal(t, "close", events[0].A)
	assert.Equal(t, "BB_upper", events[0].B)

	// A close breaking below the lower band argues up.
	events = latestCrossovers([]float64{10, 1}, emaFast, emaSlow, macd, bands(2, 11))
	require.Len(t, events, 1)
	assert.Equal(t, ta.CrossBullish, events[0].Kind)
	assert.Equal(t, "BB_lower", events[0].B)

	// Re-entries into the bands are not evidence either way.
	assert.Empty(t, latestCrossovers([]float64{1, 5}, emaFast, emaSlow, macd, bands(2, 11)))
	assert.Empty(t, latestCrossovers([]float64{12, 10}, emaFast, emaSlow, macd, bands(2, 11)))
}

func TestLatestCrossovers_TrendCrossesKeepTheirDirection(t *testing.T) {
	flat := func(name string, v float64) *ta.IndicatorSeries {
		return ta.FromValues(name, []float64{v, v})
	}
	macd := &ta.MACDResult{
		Line:      ta.FromValues("MACD", []float64{-1, 1}),
		Signal:    flat("MACD_signal", 0),
		Histogram: ta.FromValues("MACD_histogram", []float64{-1, 1}),
	}
	bands := &ta.BollingerResult{
		Upper:  flat("BB_upper", 100),
		Middle: flat("BB_middle", 50),
		Lower:  flat("BB_lower", 1),
	}

	events := latestCrossovers([]float64{49, 51}, flat("EMA_12", 5), flat("EMA_26", 6), macd, bands)
	require.Len(t, events, 1)
	assert.Equal(t, ta.CrossBullish, events[0].Kind)
	assert.Equal(t, "MACD", events[0].A)
	assert.Equal(t, "MACD_signal", events[0].B)
}

func TestPipelineConfig_MinBars(t *testing.T) {
	pipe := PipelineFromConfig(testAppConfig())
	// MACD signal chain dominates: 26 + 9 - 1.
	assert.Equal(t, 34, pipe.MinBars())

	pipe.RSIPeriod = 50
	assert.Equal(t, 51, pipe.MinBars())

	pipe = PipelineConfig{EMAFastPeriod: 1, EMASlowPeriod: 2, MACDSignalPeriod: 1,
		RSIPeriod: 1, BollingerPeriod: 1}
	assert.Equal(t, 3, pipe.MinBars())
}

func TestPipelineConfig_WithOverrides(t *testing.T) {
	base := PipelineFromConfig(testAppConfig())

	same := base.WithOverrides(nil)
	assert.Equal(t, base, same)

	changed := base.WithOverrides(&models.Overrides{
		RSIPeriod:     21,
		RiskWindow:    30,
		VaRConfidence: 0.99,
	})
	assert.Equal(t, 21, changed.RSIPeriod)
	assert.Equal(t, 30, changed.Risk.Window)
	assert.Equal(t, 0.99, changed.Risk.VaRConfidence)
	// Untouched settings keep their defaults.
	assert.Equal(t, base.EMAFastPeriod, changed.EMAFastPeriod)
	assert.Equal(t, base.Risk.TargetRiskPerTrade, changed.Risk.TargetRiskPerTrade)
}
