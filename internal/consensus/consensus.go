// Package consensus implements the multi-timeframe technical consensus engine:
// per-timeframe directional scoring, weighted cross-timeframe aggregation,
// structural stop placement, and confluence scoring for autonomous setups.
package consensus

import (
	"math"

	"github.com/amirphl/perp-paper-trader/internal/candle"
	"github.com/amirphl/perp-paper-trader/internal/pattern"
)

// Signal labels. SKIP is a first-class outcome, not a failure.
const (
	SignalLong  = "LONG"
	SignalShort = "SHORT"
	SignalSkip  = "SKIP"
)

// Config holds the engine thresholds and timeframe weights.
type Config struct {
	MinCandles         int
	LongThreshold      float64 // per-timeframe LONG score threshold
	ShortThreshold     float64 // per-timeframe SHORT score threshold
	ConsensusLong      float64 // weighted consensus LONG threshold
	ConsensusShort     float64 // weighted consensus SHORT threshold
	MinAgreement       float64 // min fraction of timeframes agreeing with consensus
	MinConfluence      float64
	MinConfidence      float64
	MaxStopDistancePct float64
	EntryTimeframe     string
	Weights            map[string]float64
	DefaultWeight      float64
}

// DefaultConfig returns the production thresholds.
func DefaultConfig() Config {
	return Config{
		MinCandles:         55,
		LongThreshold:      65,
		ShortThreshold:     35,
		ConsensusLong:      60,
		ConsensusShort:     40,
		MinAgreement:       0.4,
		MinConfluence:      68,
		MinConfidence:      0.68,
		MaxStopDistancePct: 4.0,
		EntryTimeframe:     "15m",
		Weights: map[string]float64{
			"1m":  0.05,
			"5m":  0.15,
			"15m": 0.25,
			"1h":  0.30,
			"4h":  0.25,
		},
		DefaultWeight: 0.10,
	}
}

// TimeframeResult is the directional analysis of a single timeframe.
type TimeframeResult struct {
	Timeframe   string
	Score       float64 // 0..100, 50 neutral
	Signal      string
	Close       float64
	EMAFast     float64
	EMASlow     float64
	EMALong     float64
	RSI         float64
	MACDLine    float64
	MACDSignal  float64
	MACDHist    float64
	BBUpper     float64
	BBMiddle    float64
	BBLower     float64
	ATR         float64
	StochRSI    float64
	VolumeRatio float64
	VolumeClass string
}

// ConsensusResult is the weighted cross-timeframe aggregate.
type ConsensusResult struct {
	Signal         string
	Score          float64
	Results        []TimeframeResult
	AgreementRatio float64
	TotalWeight    float64
}

// StructuralLevels carries the stop and take-profit prices for a candidate.
type StructuralLevels struct {
	Entry           float64
	StopLoss        float64
	TP1             float64
	TP2             float64
	TP3             float64
	Method          string // "structure" or "atr"
	StopDistancePct float64
}

// Setup is a fully evaluated, admissible trade candidate.
type Setup struct {
	Symbol     string
	Side       string
	Confidence float64
	Confluence float64
	Levels     StructuralLevels
	Consensus  ConsensusResult
	Pattern    *pattern.Match
	Regime     string
	Reasons    []string
}

// Engine evaluates candles into consensus signals and trade setups.
type Engine struct {
	cfg Config
}

func New(cfg Config) *Engine {
	if cfg.MinCandles <= 0 {
		cfg = DefaultConfig()
	}
	return &Engine{cfg: cfg}
}

func (e *Engine) Config() Config { return e.cfg }

// EvaluateSetup runs the full autonomous pipeline over the per-timeframe
// candle sets: consensus, confidence, volatility filter, structural stop,
// pattern scan, regime detection, and confluence scoring. It returns nil when
// no admissible setup exists; that is the expected outcome most of the time.
func (e *Engine) EvaluateSetup(candlesByTF map[string][]candle.Candle, symbol string, fearGreed *int) *Setup {
	cons := e.MultiTimeframe(candlesByTF)
	if cons.Signal == SignalSkip {
		return nil
	}
	side := cons.Signal

	var confidence float64
	if side == SignalLong {
		confidence = math.Min(0.95, cons.Score/100)
	} else {
		confidence = math.Min(0.95, (100-cons.Score)/100)
	}
	if confidence < e.cfg.MinConfidence {
		return nil
	}

	entry, ok := candlesByTF[e.cfg.EntryTimeframe]
	if !ok || len(entry) < e.cfg.MinCandles {
		return nil
	}

	vol := CheckVolatility(entry)
	if !vol.Tradable {
		return nil
	}

	var entryResult *TimeframeResult
	for i := range cons.Results {
		if cons.Results[i].Timeframe == e.cfg.EntryTimeframe {
			entryResult = &cons.Results[i]
		}
	}
	if entryResult == nil {
		return nil
	}

	price := entry[len(entry)-1].Close
	levels := e.StructuralStop(entry, side, price, entryResult.ATR)
	match := pattern.Scan(entry, 3)
	regime := DetectRegime(candlesByTF["4h"])

	score, reasons := Confluence(ConfluenceInput{
		Side:        side,
		Consensus:   &cons,
		EntryResult: entryResult,
		Pattern:     match,
		VolumeRatio: entryResult.VolumeRatio,
		Regime:      regime,
		FearGreed:   fearGreed,
		StopMethod:  levels.Method,
	})
	if score < e.cfg.MinConfluence {
		return nil
	}

	return &Setup{
		Symbol:     symbol,
		Side:       side,
		Confidence: confidence,
		Confluence: score,
		Levels:     levels,
		Consensus:  cons,
		Pattern:    match,
		Regime:     regime,
		Reasons:    reasons,
	}
}

func clampScore(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
