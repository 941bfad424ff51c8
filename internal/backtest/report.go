package backtest

import (
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/amirphl/perp-paper-trader/internal/db"
	"github.com/amirphl/perp-paper-trader/internal/ledger"
)

// EquityPoint is one equity-curve sample.
type EquityPoint struct {
	Time   time.Time
	Equity float64
}

// SymbolResult is the per-symbol slice of a multi-symbol run.
type SymbolResult struct {
	Trades int
	Wins   int
	Losses int
	NetPnL float64
}

// Report is the outcome of one replay run.
type Report struct {
	Symbols         []string
	StartingBalance float64
	FinalBalance    float64

	TotalTrades int
	Wins        int
	Losses      int
	WinRate     float64 // percent
	NetPnL      float64
	ROI         float64 // percent
	TotalFees   float64

	MaxDrawdownPct  float64
	ProfitFactor    float64
	Expectancy      float64
	MaxConsecWins   int
	MaxConsecLosses int

	ByReason map[string]int
	BySymbol map[string]*SymbolResult
	DailyPnL map[string]float64 // UTC date -> realized net

	EquityCurve []EquityPoint
	Trades      []db.Trade // closed trades, newest first

	grossWin  float64
	grossLoss float64 // positive magnitude
}

func newReport(symbols []string, startingBalance float64) *Report {
	r := &Report{
		Symbols:         symbols,
		StartingBalance: startingBalance,
		ByReason:        make(map[string]int),
		BySymbol:        make(map[string]*SymbolResult),
		DailyPnL:        make(map[string]float64),
	}
	for _, s := range symbols {
		r.BySymbol[s] = &SymbolResult{}
	}
	return r
}

func (r *Report) recordClose(res *ledger.CloseResult, reason string) {
	r.ByReason[reason]++
	r.DailyPnL[res.Trade.ClosedAt.UTC().Format("2006-01-02")] += res.NetProfit

	sym := r.BySymbol[res.Trade.Symbol]
	if sym == nil {
		sym = &SymbolResult{}
		r.BySymbol[res.Trade.Symbol] = sym
	}
	sym.Trades++
	sym.NetPnL += res.NetProfit
	if res.NetProfit > 0 {
		sym.Wins++
		r.grossWin += res.NetProfit
	} else {
		sym.Losses++
		r.grossLoss += -res.NetProfit
	}
}

func (r *Report) finalize(stats *ledger.Stats, closed []db.Trade) {
	r.TotalTrades = stats.TotalTrades
	r.Wins = stats.Wins
	r.Losses = stats.Losses
	r.WinRate = stats.WinRate
	r.NetPnL = stats.TotalPnL
	r.ROI = stats.ROI
	r.TotalFees = stats.TotalFees
	r.FinalBalance = stats.Balance
	r.Trades = closed

	if r.grossLoss > 0 {
		r.ProfitFactor = r.grossWin / r.grossLoss
	}
	if r.TotalTrades > 0 {
		var avgWin, avgLoss float64
		if r.Wins > 0 {
			avgWin = r.grossWin / float64(r.Wins)
		}
		if r.Losses > 0 {
			avgLoss = -r.grossLoss / float64(r.Losses)
		}
		winRate := float64(r.Wins) / float64(r.TotalTrades)
		r.Expectancy = winRate*avgWin + (1-winRate)*avgLoss
	}
}

// SaveCSV writes the closed-trade log to path.
func (r *Report) SaveCSV(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("SaveCSV | create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	header := []string{"id", "symbol", "side", "entry", "exit", "quantity", "leverage", "margin", "net_profit", "fee", "reason", "status", "opened_at", "closed_at"}
	if err := w.Write(header); err != nil {
		return fmt.Errorf("SaveCSV | write header: %w", err)
	}
	for _, t := range r.Trades {
		row := []string{
			fmt.Sprintf("%d", t.ID),
			t.Symbol,
			t.Side,
			fmt.Sprintf("%.8f", t.EntryPrice),
			fmt.Sprintf("%.8f", t.ExitPrice),
			fmt.Sprintf("%.8f", t.Quantity),
			fmt.Sprintf("%.1f", t.Leverage),
			fmt.Sprintf("%.2f", t.Margin),
			fmt.Sprintf("%.4f", t.RealizedProfit),
			fmt.Sprintf("%.4f", t.ExitFee),
			t.ExitReason,
			t.Status,
			t.OpenedAt.Format(time.RFC3339),
			t.ClosedAt.Format(time.RFC3339),
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("SaveCSV | write row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("SaveCSV | flush: %w", err)
	}
	log.Printf("SaveCSV | saved %d trades to %s", len(r.Trades), path)
	return nil
}

// LogSummary prints the run summary through the standard logger.
func (r *Report) LogSummary() {
	log.Printf("Backtest Results (%v):", r.Symbols)
	log.Printf("  Trades=%d, Wins=%d, Losses=%d, WinRate=%.2f%%",
		r.TotalTrades, r.Wins, r.Losses, r.WinRate)
	log.Printf("  StartingBalance=%.2f, FinalBalance=%.2f, NetPnL=%.2f, ROI=%.2f%%",
		r.StartingBalance, r.FinalBalance, r.NetPnL, r.ROI)
	log.Printf("  MaxDrawdown=%.2f%%, ProfitFactor=%.2f, Expectancy=%.4f, Fees=%.2f",
		r.MaxDrawdownPct, r.ProfitFactor, r.Expectancy, r.TotalFees)
	log.Printf("  MaxConsecWins=%d, MaxConsecLosses=%d", r.MaxConsecWins, r.MaxConsecLosses)
	for reason, count := range r.ByReason {
		log.Printf("  Exit %-15s %d", reason, count)
	}
	if len(r.Symbols) > 1 {
		for _, s := range r.Symbols {
			if sr := r.BySymbol[s]; sr != nil {
				log.Printf("  %s: trades=%d wins=%d losses=%d net=%.2f", s, sr.Trades, sr.Wins, sr.Losses, sr.NetPnL)
			}
		}
	}
}
