package scanner

import (
	"fmt"
	"strings"

	"github.com/amirphl/perp-paper-trader/internal/consensus"
)

// Confirmation is a validated external override (typically an AI reviewer's
// verdict on a candidate setup). It only influences position sizing; it never
// replaces the engine's own consensus.
type Confirmation struct {
	Action     string  // LONG, SHORT or SKIP
	Confidence float64 // always in [0,1]
}

// ParseConfirmation validates raw override input at the boundary. Confidence
// given percent-style (e.g. 70) is normalized to 0.70; values above 100 or
// below 0 are rejected rather than clamped so a malformed upstream payload
// surfaces instead of silently trading on it.
func ParseConfirmation(action string, confidence float64) (*Confirmation, error) {
	normalized := strings.ToUpper(strings.TrimSpace(action))
	switch normalized {
	case consensus.SignalLong, consensus.SignalShort, consensus.SignalSkip:
	default:
		return nil, fmt.Errorf("ParseConfirmation | unknown action %q", action)
	}
	if confidence < 0 || confidence > 100 {
		return nil, fmt.Errorf("ParseConfirmation | confidence %f out of range", confidence)
	}
	if confidence > 1 {
		confidence /= 100
	}
	return &Confirmation{Action: normalized, Confidence: confidence}, nil
}
