package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/quantsignal/advisor-go/internal/cache"
	"github.com/quantsignal/advisor-go/internal/config"
	"github.com/quantsignal/advisor-go/internal/models"
	"github.com/quantsignal/advisor-go/internal/risk"
	"github.com/quantsignal/advisor-go/internal/signal"
	"github.com/quantsignal/advisor-go/internal/ta"
)

// PipelineConfig is the resolved per-invocation configuration of the whole
// pipeline: configured defaults with request overrides applied.
type PipelineConfig struct {
	EMAFastPeriod    int
	EMASlowPeriod    int
	MACDSignalPeriod int
	RSIPeriod        int
	BollingerPeriod  int
	BollingerStd     float64
	Risk             risk.Config
	Signal           signal.Settings
}

// PipelineFromConfig builds the default pipeline configuration.
func PipelineFromConfig(cfg *config.Config) PipelineConfig {
	return PipelineConfig{
		EMAFastPeriod:    cfg.Indicators.EMAFastPeriod,
		EMASlowPeriod:    cfg.Indicators.EMASlowPeriod,
		MACDSignalPeriod: cfg.Indicators.MACDSignalPeriod,
		RSIPeriod:        cfg.Indicators.RSIPeriod,
		BollingerPeriod:  cfg.Indicators.BollingerPeriod,
		BollingerStd:     cfg.Indicators.BollingerStd,
		Risk: risk.Config{
			Window:              cfg.Risk.Window,
			AnnualizationFactor: cfg.Risk.AnnualizationFactor,
			VaRConfidence:       cfg.Risk.VaRConfidence,
			MaxPositionFraction: cfg.Risk.MaxPositionFraction,
			TargetRiskPerTrade:  cfg.Risk.TargetRiskPerTrade,
		},
		Signal: signal.DefaultSettings(),
	}
}

// WithOverrides returns a copy with the request's non-zero overrides applied.
func (p PipelineConfig) WithOverrides(o *models.Overrides) PipelineConfig {
	if o == nil {
		return p
	}
	if o.EMAFastPeriod > 0 {
		p.EMAFastPeriod = o.EMAFastPeriod
	}
	if o.EMASlowPeriod > 0 {
		p.EMASlowPeriod = o.EMASlowPeriod
	}
	if o.MACDSignalPeriod > 0 {
		p.MACDSignalPeriod = o.MACDSignalPeriod
	}
	if o.RSIPeriod > 0 {
		p.RSIPeriod = o.RSIPeriod
	}
	if o.BollingerPeriod > 0 {
		p.BollingerPeriod = o.BollingerPeriod
	}
	if o.BollingerStd > 0 {
		p.BollingerStd = o.BollingerStd
	}
	if o.RiskWindow > 0 {
		p.Risk.Window = o.RiskWindow
	}
	if o.AnnualizationFactor > 0 {
		p.Risk.AnnualizationFactor = o.AnnualizationFactor
	}
	if o.VaRConfidence > 0 {
		p.Risk.VaRConfidence = o.VaRConfidence
	}
	if o.MaxPositionFraction > 0 {
		p.Risk.MaxPositionFraction = o.MaxPositionFraction
	}
	return p
}

// Validate rejects pipeline settings that can never compute.
func (p PipelineConfig) Validate() error {
	for name, period := range map[string]int{
		"ema_fast":    p.EMAFastPeriod,
		"ema_slow":    p.EMASlowPeriod,
		"macd_signal": p.MACDSignalPeriod,
		"rsi":         p.RSIPeriod,
		"bollinger":   p.BollingerPeriod,
	} {
		if period < 1 {
			return fmt.Errorf("%w: %s period must be at least 1, got %d",
				models.ErrInvalidParameter, name, period)
		}
	}
	if p.EMAFastPeriod >= p.EMASlowPeriod {
		return fmt.Errorf("%w: ema fast period %d must be shorter than ema slow period %d",
			models.ErrInvalidParameter, p.EMAFastPeriod, p.EMASlowPeriod)
	}
	return p.Risk.Validate()
}

// MinBars is the longest lookback any configured stage requires. A series
// shorter than this fails with ErrInsufficientData before any computation.
func (p PipelineConfig) MinBars() int {
	min := p.EMASlowPeriod + p.MACDSignalPeriod - 1
	if n := p.RSIPeriod + 1; n > min {
		min = n
	}
	if p.BollingerPeriod > min {
		min = p.BollingerPeriod
	}
	// Risk needs two returns, so three closes.
	if min < 3 {
		min = 3
	}
	return min
}

// Analyzer runs the full pipeline: series validation, the indicator engine
// and risk calculator (computed concurrently over the read-only series),
// crossover detection and the signal generator.
type Analyzer struct {
	cfg    *config.Config
	logger *logrus.Logger
	cache  *cache.SignalCache
}

// NewAnalyzer creates an analyzer. The cache may be nil to disable caching.
func NewAnalyzer(cfg *config.Config, logger *logrus.Logger, signalCache *cache.SignalCache) *Analyzer {
	return &Analyzer{cfg: cfg, logger: logger, cache: signalCache}
}

// Analyze produces one signal for the request's series. The decision fields
// are deterministic for identical inputs and configuration; only ID and
// GeneratedAt differ between runs.
func (a *Analyzer) Analyze(ctx context.Context, req *models.AnalysisRequest) (*models.Signal, error) {
	series := req.Series()
	if err := series.Validate(); err != nil {
		return nil, err
	}
	pipe := PipelineFromConfig(a.cfg).WithOverrides(req.Overrides)
	if err := pipe.Validate(); err != nil {
		return nil, err
	}

	key := fingerprint(series, pipe, req.Sentiment)
	if a.cache != nil {
		if cached, ok := a.cache.Get(ctx, key); ok {
			return cached, nil
		}
	}

	sig, err := a.evaluate(series, pipe, req.Sentiment)
	if err != nil {
		return nil, err
	}
	sig.ID = uuid.NewString()
	sig.Symbol = series.Symbol
	sig.Interval = series.Interval
	sig.GeneratedAt = time.Now().UTC()

	a.logger.WithFields(logrus.Fields{
		"symbol":     series.Symbol,
		"bars":       series.Len(),
		"action":     sig.Action,
		"confidence": sig.Confidence,
	}).Info("signal generated")

	if a.cache != nil {
		a.cache.Set(ctx, key, sig)
	}
	return sig, nil
}

// evaluate is the pure core shared with the backtester: no cache, no ID, no
// timestamps.
func (a *Analyzer) evaluate(series *models.Series, pipe PipelineConfig, sentiment string) (*models.Signal, error) {
	closes := series.Closes()
	if len(closes) < pipe.MinBars() {
		return nil, fmt.Errorf("%w: pipeline needs %d bars, have %d",
			models.ErrInsufficientData, pipe.MinBars(), len(closes))
	}

	// Fan-out over the read-only closes; each stage records its own error so
	// one failing indicator does not abort the others.
	var (
		wg          sync.WaitGroup
		emaFast     *ta.IndicatorSeries
		emaSlow     *ta.IndicatorSeries
		macd        *ta.MACDResult
		rsi         *ta.IndicatorSeries
		bands       *ta.BollingerResult
		riskMetrics *models.RiskMetrics

		emaFastErr, emaSlowErr, macdErr, rsiErr, bandsErr, riskErr error
	)
	wg.Add(3)
	go func() {
		defer wg.Done()
		emaFast, emaFastErr = ta.EMA(closes, pipe.EMAFastPeriod)
		emaSlow, emaSlowErr = ta.EMA(closes, pipe.EMASlowPeriod)
		macd, macdErr = ta.MACD(closes, pipe.EMAFastPeriod, pipe.EMASlowPeriod, pipe.MACDSignalPeriod)
	}()
	go func() {
		defer wg.Done()
		rsi, rsiErr = ta.RSI(closes, pipe.RSIPeriod)
		bands, bandsErr = ta.BollingerBands(closes, pipe.BollingerPeriod, pipe.BollingerStd)
	}()
	go func() {
		defer wg.Done()
		riskMetrics, riskErr = risk.Compute(closes, pipe.Risk)
	}()
	wg.Wait()

	for name, err := range map[string]error{
		"ema_fast": emaFastErr, "ema_slow": emaSlowErr, "macd": macdErr,
		"rsi": rsiErr, "bollinger": bandsErr, "risk": riskErr,
	} {
		if err != nil {
			a.logger.WithFields(logrus.Fields{"indicator": name}).Warnf("indicator failed: %v", err)
			return nil, fmt.Errorf("%w: required input %s unavailable: %v",
				models.ErrInsufficientData, name, err)
		}
	}

	inputs, err := latestInputs(closes, emaFast, emaSlow, macd, rsi, bands)
	if err != nil {
		return nil, err
	}
	inputs.Risk = riskMetrics
	inputs.Sentiment = sentiment
	inputs.Crossovers = latestCrossovers(closes, emaFast, emaSlow, macd, bands)

	return signal.Generate(inputs, pipe.Signal), nil
}

// latestInputs snapshots the final position of every indicator series. Every
// value must be defined there; MinBars guarantees that for valid pipelines.
func latestInputs(closes []float64, emaFast, emaSlow *ta.IndicatorSeries, macd *ta.MACDResult, rsi *ta.IndicatorSeries, bands *ta.BollingerResult) (signal.Inputs, error) {
	in := signal.Inputs{Close: closes[len(closes)-1]}
	for _, probe := range []struct {
		series *ta.IndicatorSeries
		dst    *float64
	}{
		{emaFast, &in.EMAFast},
		{emaSlow, &in.EMASlow},
		{macd.Line, &in.MACDLine},
		{macd.Signal, &in.MACDSignal},
		{rsi, &in.RSI},
		{bands.Upper, &in.BBUpper},
		{bands.Middle, &in.BBMiddle},
		{bands.Lower, &in.BBLower},
	} {
		v, ok := probe.series.Last()
		if !ok {
			return signal.Inputs{}, fmt.Errorf("%w: %s undefined at latest bar",
				models.ErrInsufficientData, probe.series.Name)
		}
		*probe.dst = v
	}
	return in, nil
}

// latestCrossovers keeps only events landing on the final bar; older
// crossovers are stale evidence for today's decision.
//
// Trend crossovers (MACD/signal, EMA fast/slow) carry their own direction.
// Band crossings are mean-reversion evidence, so their polarity is flipped to
// agree with the band rules: a close breaking below the lower band argues up,
// one breaking above the upper band argues down. Re-entries into the bands are
// not evidence either way.
func latestCrossovers(closes []float64, emaFast, emaSlow *ta.IndicatorSeries, macd *ta.MACDResult, bands *ta.BollingerResult) []ta.CrossoverEvent {
	price := ta.FromValues("close", closes)
	last := len(closes) - 1
	var latest []ta.CrossoverEvent
	for _, events := range [][]ta.CrossoverEvent{
		ta.Crossovers(macd.Line, macd.Signal),
		ta.Crossovers(emaFast, emaSlow),
	} {
		for _, ev := range events {
			if ev.Position == last {
				latest = append(latest, ev)
			}
		}
	}
	for _, ev := range ta.Crossovers(price, bands.Lower) {
		if ev.Position == last && ev.Kind == ta.CrossBearish {
			latest = append(latest, ta.CrossoverEvent{Position: ev.Position, Kind: ta.CrossBullish, A: ev.A, B: ev.B})
		}
	}
	for _, ev := range ta.Crossovers(price, bands.Upper) {
		if ev.Position == last && ev.Kind == ta.CrossBullish {
			latest = append(latest, ta.CrossoverEvent{Position: ev.Position, Kind: ta.CrossBearish, A: ev.A, B: ev.B})
		}
	}
	return latest
}

// fingerprint keys the signal cache by series identity, configuration and the
// full series body. Every bar is hashed: two series that share a final bar but
// differ anywhere in their history must not collide.
func fingerprint(series *models.Series, pipe PipelineConfig, sentiment string) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%d|%+v|%s", series.Symbol, series.Interval, series.Len(), pipe, sentiment)
	for _, bar := range series.Bars {
		fmt.Fprintf(h, "|%d|%s", bar.Timestamp.UnixNano(), bar.Close.String())
	}
	return hex.EncodeToString(h.Sum(nil))
}
