// Package risk sizes leveraged positions and gates trade admission.
package risk

import "fmt"

// Params bound how much the account can put at risk.
type Params struct {
	RiskPerTrade   float64 // fraction of balance risked per trade
	MaxLeverage    float64
	MaxPositions   int
	DailyLossLimit float64 // fraction of balance, positive number
	MinBalance     float64 // absolute floor in quote currency
	MaxMarginPct   float64 // margin cap as fraction of balance
}

// DefaultParams returns the production risk limits.
func DefaultParams() Params {
	return Params{
		RiskPerTrade:   0.02,
		MaxLeverage:    10,
		MaxPositions:   3,
		DailyLossLimit: 0.05,
		MinBalance:     10,
		MaxMarginPct:   0.30,
	}
}

// Sizing is the computed position for a trade candidate. It is never
// persisted; the ledger receives it as part of an open request.
type Sizing struct {
	PositionValue  float64
	MarginRequired float64
	Quantity       float64
	Leverage       float64
	RiskAmount     float64
	StopDistPct    float64
}

// Engine applies the risk parameters. Stateless given its inputs.
type Engine struct {
	params Params
}

func New(params Params) *Engine {
	if params.MaxLeverage <= 0 {
		params = DefaultParams()
	}
	return &Engine{params: params}
}

func (e *Engine) Params() Params { return e.params }

// CalculatePosition sizes a position from balance, price, stop distance,
// requested leverage and signal confidence.
//
// Leverage is capped by the lowest of a confidence tier, a volatility tier
// (wider stop allows less leverage) and the global maximum, and floored at 1.
// The position value risks RiskPerTrade of balance against the stop distance,
// capped at balance*leverage; margin never exceeds MaxMarginPct of balance.
// A non-positive stop distance is treated as 1% by convention.
func (e *Engine) CalculatePosition(balance, price, stopDistPct, leverage, confidence float64) Sizing {
	if stopDistPct <= 0 {
		stopDistPct = 1.0
	}

	confCap := confidenceCap(confidence)
	volCap := volatilityCap(stopDistPct)

	lev := leverage
	if confCap < lev {
		lev = confCap
	}
	if volCap < lev {
		lev = volCap
	}
	if e.params.MaxLeverage < lev {
		lev = e.params.MaxLeverage
	}
	if lev < 1 {
		lev = 1
	}

	riskAmount := balance * e.params.RiskPerTrade
	positionValue := riskAmount / (stopDistPct / 100)
	if max := balance * lev; positionValue > max {
		positionValue = max
	}

	margin := positionValue / lev
	if maxMargin := balance * e.params.MaxMarginPct; margin > maxMargin {
		margin = maxMargin
		positionValue = margin * lev
	}

	quantity := 0.0
	if price > 0 {
		quantity = positionValue / price
	}

	return Sizing{
		PositionValue:  positionValue,
		MarginRequired: margin,
		Quantity:       quantity,
		Leverage:       lev,
		RiskAmount:     riskAmount,
		StopDistPct:    stopDistPct,
	}
}

// Higher confidence unlocks higher leverage tiers.
func confidenceCap(confidence float64) float64 {
	switch {
	case confidence >= 0.90:
		return 15
	case confidence >= 0.80:
		return 10
	case confidence >= 0.70:
		return 5
	default:
		return 3
	}
}

// Wider stops mean more volatile markets and force lower leverage.
func volatilityCap(stopDistPct float64) float64 {
	switch {
	case stopDistPct > 3:
		return 3
	case stopDistPct > 2:
		return 5
	case stopDistPct > 1:
		return 10
	default:
		return 15
	}
}

// Admission is the can-trade verdict; the first failing reason wins.
type Admission struct {
	CanTrade bool
	Reason   string
}

// CheckCanTrade gates new entries on position count, the daily loss limit and
// an absolute balance floor.
func (e *Engine) CheckCanTrade(balance float64, openPositions int, dailyPnL float64) Admission {
	if openPositions >= e.params.MaxPositions {
		return Admission{Reason: fmt.Sprintf("max positions reached (%d)", e.params.MaxPositions)}
	}
	if balance > 0 && dailyPnL/balance < -e.params.DailyLossLimit {
		return Admission{Reason: fmt.Sprintf("daily loss limit hit (%.1f%%)", e.params.DailyLossLimit*100)}
	}
	if balance < e.params.MinBalance {
		return Admission{Reason: fmt.Sprintf("balance below floor ($%.2f)", e.params.MinBalance)}
	}
	return Admission{CanTrade: true}
}

// EarlyCloseAction says what to do with a winning position.
type EarlyCloseAction struct {
	TrailStop   bool
	NewStopDist float64 // percent distance for the tightened stop
}

// ShouldCloseEarly tightens the stop to half the original distance once the
// unleveraged gain exceeds three times the original stop distance.
func (e *Engine) ShouldCloseEarly(entry, current float64, side string, stopDistPct float64) EarlyCloseAction {
	if entry <= 0 || stopDistPct <= 0 {
		return EarlyCloseAction{}
	}
	gainPct := (current - entry) / entry * 100
	if side == "SHORT" {
		gainPct = -gainPct
	}
	if gainPct > 3*stopDistPct {
		return EarlyCloseAction{TrailStop: true, NewStopDist: stopDistPct * 0.5}
	}
	return EarlyCloseAction{}
}
