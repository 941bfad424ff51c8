package ledger

import "github.com/amirphl/perp-paper-trader/internal/db"

// Exit reasons recorded on closed trades.
const (
	ExitStopLoss      = "STOP_LOSS"
	ExitTP2           = "TP2"
	ExitTP3           = "TP3"
	ExitEmergencyStop = "EMERGENCY_STOP"
	ExitEmergencyTake = "EMERGENCY_TAKE"
	ExitEndOfData     = "END_OF_DATA"
	ExitManual        = "MANUAL"
)

// Emergency thresholds on leveraged P&L percent at bar close.
const (
	emergencyStopPct = -20.0
	emergencyTakePct = 30.0
)

// ExitDecision is the outcome of checking one bar against an open trade.
// Close and MoveStop are mutually exclusive.
type ExitDecision struct {
	Close    bool
	Reason   string
	Price    float64
	MoveStop bool
	NewStop  float64
}

// CheckExit evaluates an open trade against a completed bar's high, low and
// close. When both the stop and a target fall inside the bar's range the bar
// alone cannot tell which traded first, so the stop wins: the conservative
// resolution for a fill-simulation that never sees intrabar ticks.
//
// Priority: stop loss, then TP3, then TP2 (both close the whole position),
// then TP1 which only ratchets the stop to breakeven, then the emergency
// bounds on leveraged P&L at the bar close.
func CheckExit(t db.Trade, high, low, close float64) ExitDecision {
	if !t.IsOpen() {
		return ExitDecision{}
	}
	if t.Side == db.SideLong {
		return checkExitLong(t, high, low, close)
	}
	return checkExitShort(t, high, low, close)
}

func checkExitLong(t db.Trade, high, low, close float64) ExitDecision {
	if t.StopLoss > 0 && low <= t.StopLoss {
		return ExitDecision{Close: true, Reason: ExitStopLoss, Price: t.StopLoss}
	}
	if t.TP3 > 0 && high >= t.TP3 {
		return ExitDecision{Close: true, Reason: ExitTP3, Price: t.TP3}
	}
	if t.TP2 > 0 && high >= t.TP2 {
		return ExitDecision{Close: true, Reason: ExitTP2, Price: t.TP2}
	}
	if t.TP1 > 0 && high >= t.TP1 && t.StopLoss < t.EntryPrice {
		return ExitDecision{MoveStop: true, NewStop: t.EntryPrice}
	}
	return checkEmergency(t, close)
}

func checkExitShort(t db.Trade, high, low, close float64) ExitDecision {
	if t.StopLoss > 0 && high >= t.StopLoss {
		return ExitDecision{Close: true, Reason: ExitStopLoss, Price: t.StopLoss}
	}
	if t.TP3 > 0 && low <= t.TP3 {
		return ExitDecision{Close: true, Reason: ExitTP3, Price: t.TP3}
	}
	if t.TP2 > 0 && low <= t.TP2 {
		return ExitDecision{Close: true, Reason: ExitTP2, Price: t.TP2}
	}
	if t.TP1 > 0 && low <= t.TP1 && t.StopLoss > t.EntryPrice {
		return ExitDecision{MoveStop: true, NewStop: t.EntryPrice}
	}
	return checkEmergency(t, close)
}

// checkEmergency closes at the bar close when the leveraged P&L blows past
// the hard floor or ceiling. Catches positions whose stop was placed too
// wide for the leverage in use.
func checkEmergency(t db.Trade, close float64) ExitDecision {
	if t.EntryPrice <= 0 {
		return ExitDecision{}
	}
	pnlPct := (close - t.EntryPrice) / t.EntryPrice * 100
	if t.Side == db.SideShort {
		pnlPct = -pnlPct
	}
	leveraged := pnlPct * t.Leverage
	if leveraged < emergencyStopPct {
		return ExitDecision{Close: true, Reason: ExitEmergencyStop, Price: close}
	}
	if leveraged > emergencyTakePct {
		return ExitDecision{Close: true, Reason: ExitEmergencyTake, Price: close}
	}
	return ExitDecision{}
}
