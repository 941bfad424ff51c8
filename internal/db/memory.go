package db

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/amirphl/perp-paper-trader/internal/journal"
)

// MemoryStorage keeps everything in process memory. It backs backtests,
// which own a fresh instance per run, and tests.
type MemoryStorage struct {
	mu sync.RWMutex

	// Trades by ID and auto-increment counter
	trades      map[int64]Trade
	nextTradeID int64

	// Balance history (append-only)
	history []BalanceEntry

	state *AgentState

	// Events (append-only)
	events []journal.Event
}

func NewMemory() *MemoryStorage {
	return &MemoryStorage{
		trades:  make(map[int64]Trade),
		history: make([]BalanceEntry, 0, 256),
		events:  make([]journal.Event, 0, 1024),
	}
}

func (m *MemoryStorage) SaveTrade(ctx context.Context, t *Trade) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextTradeID++
	t.ID = m.nextTradeID
	m.trades[t.ID] = *t
	return t.ID, nil
}

func (m *MemoryStorage) UpdateTrade(ctx context.Context, t Trade) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.trades[t.ID]; !ok {
		return ErrTradeNotFound
	}
	m.trades[t.ID] = t
	return nil
}

func (m *MemoryStorage) GetTrade(ctx context.Context, id int64) (*Trade, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if t, ok := m.trades[id]; ok {
		tt := t
		return &tt, nil
	}
	return nil, ErrTradeNotFound
}

func (m *MemoryStorage) GetOpenTrades(ctx context.Context) ([]Trade, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Trade
	for _, t := range m.trades {
		if t.Status == StatusOpen {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStorage) GetClosedTrades(ctx context.Context, limit int) ([]Trade, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Trade
	for _, t := range m.trades {
		if t.Status != StatusOpen {
			out = append(out, t)
		}
	}
	// Newest first
	sort.Slice(out, func(i, j int) bool { return out[i].ClosedAt.After(out[j].ClosedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStorage) AppendBalanceHistory(ctx context.Context, e BalanceEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = append(m.history, e)
	return nil
}

func (m *MemoryStorage) GetBalanceHistory(ctx context.Context, limit int) ([]BalanceEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]BalanceEntry, len(m.history))
	copy(out, m.history)
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (m *MemoryStorage) SaveAgentState(ctx context.Context, s AgentState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ss := s
	m.state = &ss
	return nil
}

func (m *MemoryStorage) LoadAgentState(ctx context.Context) (*AgentState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state == nil {
		return nil, nil
	}
	ss := *m.state
	return &ss, nil
}

func (m *MemoryStorage) LogEvent(ctx context.Context, e journal.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return nil
}

func (m *MemoryStorage) GetEvents(ctx context.Context, eventType string, start, end time.Time) ([]journal.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []journal.Event
	for _, e := range m.events {
		if eventType != "" && e.Type != eventType {
			continue
		}
		if !start.IsZero() && e.Time.Before(start) {
			continue
		}
		if !end.IsZero() && e.Time.After(end) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (m *MemoryStorage) Close() error { return nil }
