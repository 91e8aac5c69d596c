package services

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/quantsignal/advisor-go/internal/models"
)

// Backtester replays the signal pipeline bar by bar over a historical series
// to validate its outputs: long-only, one position at a time, sized by the
// pipeline's own risk plan. It is a validation aid, not a portfolio engine.
type Backtester struct {
	analyzer *Analyzer
	logger   *logrus.Logger
}

// NewBacktester wraps an analyzer for historical replay.
func NewBacktester(analyzer *Analyzer, logger *logrus.Logger) *Backtester {
	return &Backtester{analyzer: analyzer, logger: logger}
}

const defaultInitialCapital = 10000

// Run walks the series forward, generating a signal at each bar from the
// history available up to that bar, and books simulated fills at the close.
func (b *Backtester) Run(ctx context.Context, req *models.BacktestRequest) (*models.BacktestResult, error) {
	series := req.Series()
	if err := series.Validate(); err != nil {
		return nil, err
	}
	pipe := PipelineFromConfig(b.analyzer.cfg).WithOverrides(req.Overrides)
	if err := pipe.Validate(); err != nil {
		return nil, err
	}
	if series.Len() <= pipe.MinBars() {
		return nil, fmt.Errorf("%w: backtest needs more than %d bars, have %d",
			models.ErrInsufficientData, pipe.MinBars(), series.Len())
	}

	initial := req.InitialCapital.InexactFloat64()
	if initial <= 0 {
		initial = defaultInitialCapital
	}

	closes := series.Closes()
	cash, shares := initial, 0.0
	peak, maxDD := initial, 0.0
	var trades []models.BacktestTrade
	evaluated := 0

	for i := pipe.MinBars(); i <= series.Len(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		window := &models.Series{Symbol: series.Symbol, Interval: series.Interval, Bars: series.Bars[:i]}
		sig, err := b.analyzer.evaluate(window, pipe, "")
		if err != nil {
			return nil, fmt.Errorf("backtest at bar %d: %w", i-1, err)
		}
		evaluated++

		price := closes[i-1]
		switch sig.Action {
		case models.ActionBuy:
			if shares == 0 {
				alloc := cash * sig.Risk.SuggestedPositionSize
				if alloc > 0 {
					shares = alloc / price
					cash -= alloc
					trades = append(trades, models.BacktestTrade{
						Position: i - 1,
						Action:   models.ActionBuy,
						Price:    decimal.NewFromFloat(price),
						Shares:   decimal.NewFromFloat(shares).Round(6),
					})
				}
			}
		case models.ActionSell:
			if shares > 0 {
				cash += shares * price
				trades = append(trades, models.BacktestTrade{
					Position: i - 1,
					Action:   models.ActionSell,
					Price:    decimal.NewFromFloat(price),
					Shares:   decimal.NewFromFloat(shares).Round(6),
				})
				shares = 0
			}
		}

		equity := cash + shares*price
		if equity > peak {
			peak = equity
		}
		if dd := equity/peak - 1; dd < maxDD {
			maxDD = dd
		}
	}

	final := cash + shares*closes[len(closes)-1]
	b.logger.WithFields(logrus.Fields{
		"symbol": series.Symbol,
		"bars":   evaluated,
		"trades": len(trades),
		"return": final/initial - 1,
	}).Info("backtest completed")

	return &models.BacktestResult{
		Symbol:         series.Symbol,
		InitialCapital: decimal.NewFromFloat(initial),
		FinalValue:     decimal.NewFromFloat(final).Round(2),
		TotalReturn:    final/initial - 1,
		MaxDrawdown:    maxDD,
		Trades:         trades,
		BarsEvaluated:  evaluated,
	}, nil
}
