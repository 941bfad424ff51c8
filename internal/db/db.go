// Package db
package db

import (
	"context"
	"errors"
	"time"

	"github.com/amirphl/perp-paper-trader/internal/journal"
)

// Trade statuses. OPEN transitions once, to WIN or LOSS.
const (
	StatusOpen = "OPEN"
	StatusWin  = "WIN"
	StatusLoss = "LOSS"
)

// Trade sides.
const (
	SideLong  = "LONG"
	SideShort = "SHORT"
)

// ErrTradeNotFound is returned for unknown trade ids.
var ErrTradeNotFound = errors.New("trade not found")

// Trade is the persisted unit of account. The ledger owns all mutation;
// storage implementations only read and write whole rows.
type Trade struct {
	ID             int64
	Symbol         string
	Side           string
	EntryPrice     float64
	Quantity       float64
	Leverage       float64
	Margin         float64
	PositionValue  float64
	StopLoss       float64
	TP1            float64
	TP2            float64
	TP3            float64
	Status         string
	OpenedAt       time.Time
	ClosedAt       time.Time // zero while open
	ExitPrice      float64
	ExitReason     string
	ExitFee        float64
	RealizedProfit float64
	Confidence     float64
	Confluence     float64
	StopMethod     string
}

// IsOpen reports whether the trade is still live.
func (t *Trade) IsOpen() bool { return t.Status == StatusOpen }

// BalanceEntry is one row of the append-only balance history log.
type BalanceEntry struct {
	Timestamp   time.Time
	Balance     float64
	Delta       float64
	Description string
}

// AgentState is the scalar key-value state of the account.
type AgentState struct {
	Balance   float64
	TotalPnL  float64
	DailyPnL  float64
	DailyDate string // UTC date "2006-01-02" the daily P&L belongs to
}

// Storage is the interface for all persistent trade storage.
type Storage interface {
	// SaveTrade stores a new trade and assigns its id.
	SaveTrade(ctx context.Context, t *Trade) (int64, error)
	// UpdateTrade overwrites an existing trade row.
	UpdateTrade(ctx context.Context, t Trade) error
	GetTrade(ctx context.Context, id int64) (*Trade, error)
	GetOpenTrades(ctx context.Context) ([]Trade, error)
	// GetClosedTrades returns closed trades newest first; limit <= 0 means all.
	GetClosedTrades(ctx context.Context, limit int) ([]Trade, error)

	AppendBalanceHistory(ctx context.Context, e BalanceEntry) error
	GetBalanceHistory(ctx context.Context, limit int) ([]BalanceEntry, error)

	SaveAgentState(ctx context.Context, s AgentState) error
	// LoadAgentState returns nil when no state has been persisted yet.
	LoadAgentState(ctx context.Context) (*AgentState, error)

	journal.Journaler

	Close() error
}
