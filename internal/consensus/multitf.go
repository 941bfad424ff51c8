package consensus

import (
	"github.com/amirphl/perp-paper-trader/internal/candle"
	"github.com/amirphl/perp-paper-trader/internal/tfutils"
)

// MultiTimeframe aggregates per-timeframe scores into a weighted consensus.
// Higher timeframes carry more weight; the weighted average is renormalized by
// the total weight actually present. A directional consensus is downgraded to
// SKIP when fewer than MinAgreement of the analyzed timeframes point the same
// way. Timeframes are processed shortest-first so the result is deterministic
// for a given input.
func (e *Engine) MultiTimeframe(candlesByTF map[string][]candle.Candle) ConsensusResult {
	cons := ConsensusResult{Signal: SignalSkip, Score: 50}

	keys := make([]string, 0, len(candlesByTF))
	for tf := range candlesByTF {
		keys = append(keys, tf)
	}
	keys = tfutils.SortByDuration(keys)

	var weightedSum, totalWeight float64
	var longCount, shortCount int
	for _, tf := range keys {
		candles := candlesByTF[tf]
		if len(candles) == 0 {
			continue
		}
		res := e.Analyze(candles, tf)
		cons.Results = append(cons.Results, res)

		w, ok := e.cfg.Weights[tf]
		if !ok {
			w = e.cfg.DefaultWeight
		}
		weightedSum += res.Score * w
		totalWeight += w

		switch res.Signal {
		case SignalLong:
			longCount++
		case SignalShort:
			shortCount++
		}
	}

	total := len(cons.Results)
	if total == 0 || totalWeight == 0 {
		return cons
	}

	cons.Score = weightedSum / totalWeight
	cons.TotalWeight = totalWeight

	directional := longCount
	if shortCount > directional {
		directional = shortCount
	}
	cons.AgreementRatio = float64(directional) / float64(total)

	switch {
	case cons.Score >= e.cfg.ConsensusLong:
		cons.Signal = SignalLong
		if float64(longCount) < e.cfg.MinAgreement*float64(total) {
			cons.Signal = SignalSkip
		}
	case cons.Score <= e.cfg.ConsensusShort:
		cons.Signal = SignalShort
		if float64(shortCount) < e.cfg.MinAgreement*float64(total) {
			cons.Signal = SignalSkip
		}
	}
	return cons
}
