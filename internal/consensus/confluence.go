package consensus

import (
	"fmt"
	"math"

	"github.com/amirphl/perp-paper-trader/internal/pattern"
)

// ConfluenceInput bundles everything the confluence scorer looks at.
type ConfluenceInput struct {
	Side        string
	Consensus   *ConsensusResult
	EntryResult *TimeframeResult
	Pattern     *pattern.Match
	VolumeRatio float64
	Regime      string
	FearGreed   *int // 0..100 sentiment index, nil when unavailable
	StopMethod  string
}

// Confluence scores how many independent factors back the candidate, 0..100.
// Contributions: higher-timeframe agreement strength (max 40), entry-timeframe
// alignment (max 10), candlestick pattern (max 15), volume (+8/-3), regime
// alignment (+-10), sentiment extremes (max 10, -3 contrarian), RSI sweet spot
// (max 10), and +5 for a structure-anchored stop.
func Confluence(in ConfluenceInput) (float64, []string) {
	score := 0.0
	var reasons []string

	// Higher-timeframe agreement: average conviction of the timeframes that
	// agree with the side, scaled to the 40-point bucket.
	if in.Consensus != nil && len(in.Consensus.Results) > 0 {
		sum, count := 0.0, 0
		for _, r := range in.Consensus.Results {
			if r.Signal != in.Side {
				continue
			}
			sum += math.Abs(r.Score-50) / 50
			count++
		}
		if count > 0 {
			contrib := sum / float64(count) * 40
			score += contrib
			reasons = append(reasons, fmt.Sprintf("tf agreement +%.1f (%d aligned)", contrib, count))
		}
	}

	if in.EntryResult != nil {
		switch {
		case in.EntryResult.Signal == in.Side:
			score += 10
			reasons = append(reasons, "entry tf aligned +10")
		case in.Side == SignalLong && in.EntryResult.Score > 55,
			in.Side == SignalShort && in.EntryResult.Score < 45:
			score += 3
			reasons = append(reasons, "entry tf leaning +3")
		}
	}

	if in.Pattern != nil && matchesSide(in.Pattern.Direction, in.Side) {
		contrib := math.Min(15, in.Pattern.Strength*0.18)
		score += contrib
		reasons = append(reasons, fmt.Sprintf("%s +%.1f", in.Pattern.Name, contrib))
	}

	switch {
	case in.VolumeRatio >= 1.5:
		score += 8
		reasons = append(reasons, "volume surge +8")
	case !math.IsNaN(in.VolumeRatio) && in.VolumeRatio < 0.5:
		score -= 3
		reasons = append(reasons, "volume dry -3")
	}

	switch {
	case in.Regime == RegimeTrendingUp && in.Side == SignalLong,
		in.Regime == RegimeTrendingDown && in.Side == SignalShort:
		score += 10
		reasons = append(reasons, "regime aligned +10")
	case in.Regime == RegimeTrendingUp && in.Side == SignalShort,
		in.Regime == RegimeTrendingDown && in.Side == SignalLong:
		score -= 10
		reasons = append(reasons, "regime against -10")
	}

	if in.FearGreed != nil {
		fg := *in.FearGreed
		if in.Side == SignalLong {
			switch {
			case fg <= 25:
				score += 10
				reasons = append(reasons, "extreme fear +10")
			case fg <= 35:
				score += 5
				reasons = append(reasons, "fear +5")
			case fg >= 80:
				score -= 3
				reasons = append(reasons, "buying into greed -3")
			}
		} else {
			switch {
			case fg >= 75:
				score += 10
				reasons = append(reasons, "extreme greed +10")
			case fg >= 65:
				score += 5
				reasons = append(reasons, "greed +5")
			case fg <= 20:
				score -= 3
				reasons = append(reasons, "shorting into fear -3")
			}
		}
	}

	if in.EntryResult != nil && !math.IsNaN(in.EntryResult.RSI) {
		rsi := in.EntryResult.RSI
		if in.Side == SignalLong {
			switch {
			case rsi >= 38 && rsi <= 58:
				score += 10
				reasons = append(reasons, "rsi sweet spot +10")
			case rsi >= 30 && rsi <= 68:
				score += 5
				reasons = append(reasons, "rsi acceptable +5")
			}
		} else {
			switch {
			case rsi >= 42 && rsi <= 68:
				score += 10
				reasons = append(reasons, "rsi sweet spot +10")
			case rsi >= 30 && rsi <= 75:
				score += 5
				reasons = append(reasons, "rsi acceptable +5")
			}
		}
	}

	if in.StopMethod == "structure" {
		score += 5
		reasons = append(reasons, "structural stop +5")
	}

	return clampScore(score), reasons
}

func matchesSide(direction, side string) bool {
	return (direction == pattern.Bullish && side == SignalLong) ||
		(direction == pattern.Bearish && side == SignalShort)
}
