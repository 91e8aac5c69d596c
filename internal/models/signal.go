package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Action is the final recommendation of the signal pipeline.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionHold Action = "HOLD"
)

// RiskMetrics summarizes the risk profile of an analysis window. Volatility
// is annualized by the configured scaling factor; MaxDrawdown and ValueAtRisk
// are fractions (drawdown is never positive). StopLoss, TakeProfit and
// SuggestedPositionSize are per-period fractions of price and account equity.
type RiskMetrics struct {
	Volatility            float64 `json:"volatility"`
	MaxDrawdown           float64 `json:"max_drawdown"`
	ValueAtRisk           float64 `json:"value_at_risk"`
	SuggestedPositionSize float64 `json:"suggested_position_size"`
	StopLoss              float64 `json:"stop_loss"`
	TakeProfit            float64 `json:"take_profit"`
	Observations          int     `json:"observations"`
}

// RiskParams is the risk plan attached to an emitted signal.
type RiskParams struct {
	StopLoss     decimal.Decimal `json:"stop_loss"`
	TakeProfit   decimal.Decimal `json:"take_profit"`
	PositionSize decimal.Decimal `json:"position_size"`
}

// Signal is the structured output of one pipeline invocation. The decision
// fields (Action, Confidence, Reasons, KeySignals, RiskParams) are a pure
// function of the input series and configuration; ID and GeneratedAt are
// stamped by the analyzer service.
type Signal struct {
	ID          string                     `json:"id,omitempty"`
	Symbol      string                     `json:"symbol,omitempty"`
	Interval    string                     `json:"interval,omitempty"`
	Action      Action                     `json:"action"`
	Confidence  decimal.Decimal            `json:"confidence"`
	Reasons     []string                   `json:"reasons"`
	KeySignals  map[string]decimal.Decimal `json:"key_signals"`
	RiskParams  RiskParams                 `json:"risk_params"`
	Risk        *RiskMetrics               `json:"risk,omitempty"`
	GeneratedAt time.Time                  `json:"generated_at,omitempty"`
}

// BacktestTrade records a single fill in a backtest replay.
type BacktestTrade struct {
	Position int             `json:"position"`
	Action   Action          `json:"action"`
	Price    decimal.Decimal `json:"price"`
	Shares   decimal.Decimal `json:"shares"`
}

// BacktestResult reports the outcome of replaying the signal pipeline over a
// historical series.
type BacktestResult struct {
	Symbol         string          `json:"symbol"`
	InitialCapital decimal.Decimal `json:"initial_capital"`
	FinalValue     decimal.Decimal `json:"final_value"`
	TotalReturn    float64         `json:"total_return"`
	MaxDrawdown    float64         `json:"max_drawdown"`
	Trades         []BacktestTrade `json:"trades"`
	BarsEvaluated  int             `json:"bars_evaluated"`
}
