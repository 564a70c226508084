package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/wfarrell/condortrack/internal/models"
)

// MockStorage implements Interface in memory for testing. Error fields, when
// set, are returned by the corresponding method to exercise failure paths.
type MockStorage struct {
	mu sync.Mutex

	Trades      map[string]*models.Trade
	Legs        map[string]*models.Leg
	Snapshots   []models.LiveSnapshot
	Analyses    []models.PLAnalysis
	Underlyings []UnderlyingSnapshot

	InsertTradeErr     error
	InsertSnapshotsErr error
	UpdateLegErr       error
	UpdateTradeErr     error
	InsertAnalysisErr  error
	OpenLegsErr        error
}

// NewMockStorage creates an empty in-memory ledger for tests.
func NewMockStorage() *MockStorage {
	return &MockStorage{
		Trades: make(map[string]*models.Trade),
		Legs:   make(map[string]*models.Leg),
	}
}

// InsertTrade persists a trade and its legs.
func (m *MockStorage) InsertTrade(_ context.Context, trade *models.Trade, legs []models.Leg) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.InsertTradeErr != nil {
		return m.InsertTradeErr
	}
	t := *trade
	m.Trades[t.TradeID] = &t
	for i := range legs {
		l := legs[i]
		m.Legs[l.LegID] = &l
	}
	return nil
}

// OpenLegs returns all open legs for a symbol with owning-trade metadata.
func (m *MockStorage) OpenLegs(_ context.Context, symbol string) ([]OpenLeg, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.OpenLegsErr != nil {
		return nil, m.OpenLegsErr
	}
	var out []OpenLeg
	for _, leg := range m.Legs {
		if leg.Status != models.LegOpen {
			continue
		}
		trade, ok := m.Trades[leg.TradeID]
		if !ok || trade.Symbol != symbol {
			continue
		}
		out = append(out, OpenLeg{
			Leg:             *leg,
			Symbol:          trade.Symbol,
			StrategyType:    trade.StrategyType,
			ExpirationDate:  trade.ExpirationDate,
			TradeEntryPrice: trade.EntryPrice,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TradeID != out[j].TradeID {
			return out[i].TradeID < out[j].TradeID
		}
		return out[i].LegID < out[j].LegID
	})
	return out, nil
}

// TradeLegs returns every leg of a trade.
func (m *MockStorage) TradeLegs(_ context.Context, tradeID string) ([]models.Leg, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Leg
	for _, leg := range m.Legs {
		if leg.TradeID == tradeID {
			out = append(out, *leg)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LegID < out[j].LegID })
	return out, nil
}

// GetTrade returns one trade or ErrTradeNotFound.
func (m *MockStorage) GetTrade(_ context.Context, tradeID string) (*models.Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.Trades[tradeID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTradeNotFound, tradeID)
	}
	cp := *t
	return &cp, nil
}

// ListTrades returns all trades for a symbol, newest first.
func (m *MockStorage) ListTrades(_ context.Context, symbol string) ([]models.Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Trade
	for _, t := range m.Trades {
		if t.Symbol == symbol {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EntryTime.After(out[j].EntryTime) })
	return out, nil
}

// InsertSnapshots appends valuation snapshots.
func (m *MockStorage) InsertSnapshots(_ context.Context, snaps []models.LiveSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.InsertSnapshotsErr != nil {
		return m.InsertSnapshotsErr
	}
	m.Snapshots = append(m.Snapshots, snaps...)
	return nil
}

// UpdateLeg applies the cycle's field set to one leg. Closed legs are
// immutable.
func (m *MockStorage) UpdateLeg(_ context.Context, legID string, upd LegUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.UpdateLegErr != nil {
		return m.UpdateLegErr
	}
	leg, ok := m.Legs[legID]
	if !ok || leg.Status == models.LegClosed {
		return nil
	}
	leg.PnL = upd.PnL
	leg.Status = upd.Status
	if upd.ExitPrice != nil {
		v := *upd.ExitPrice
		leg.ExitPrice = &v
	}
	return nil
}

// UpdateTrade applies the rollup to one trade; closed trades are untouched.
func (m *MockStorage) UpdateTrade(_ context.Context, tradeID string, upd TradeUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.UpdateTradeErr != nil {
		return m.UpdateTradeErr
	}
	trade, ok := m.Trades[tradeID]
	if !ok || trade.Status == models.TradeClosed {
		return nil
	}
	trade.PnL = upd.PnL
	trade.Status = upd.Status
	if upd.ExitTime != nil {
		v := *upd.ExitTime
		trade.ExitTime = &v
	}
	if upd.ExitPrice != nil {
		v := *upd.ExitPrice
		trade.ExitPrice = &v
	}
	return nil
}

// InsertAnalysis appends a derived P/L analysis row.
func (m *MockStorage) InsertAnalysis(_ context.Context, a models.PLAnalysis) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.InsertAnalysisErr != nil {
		return m.InsertAnalysisErr
	}
	m.Analyses = append(m.Analyses, a)
	return nil
}

// LatestAnalysis returns the newest analysis for a trade or ErrNoAnalysis.
func (m *MockStorage) LatestAnalysis(_ context.Context, tradeID string) (*models.PLAnalysis, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *models.PLAnalysis
	for i := range m.Analyses {
		a := &m.Analyses[i]
		if a.TradeID != tradeID {
			continue
		}
		if latest == nil || a.Timestamp.After(latest.Timestamp) {
			latest = a
		}
	}
	if latest == nil {
		return nil, fmt.Errorf("%w: trade %s", ErrNoAnalysis, tradeID)
	}
	cp := *latest
	return &cp, nil
}

// InsertUnderlyingSnapshot appends an underlying quote record.
func (m *MockStorage) InsertUnderlyingSnapshot(_ context.Context, s UnderlyingSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Underlyings = append(m.Underlyings, s)
	return nil
}

// RecentUnderlyingCloses returns up to limit last prices, oldest first.
func (m *MockStorage) RecentUnderlyingCloses(_ context.Context, symbol string, limit int) ([]float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []float64
	for i := range m.Underlyings {
		if m.Underlyings[i].Symbol == symbol {
			all = append(all, m.Underlyings[i].Last)
		}
	}
	if len(all) > limit {
		all = all[len(all)-limit:]
	}
	return all, nil
}

// Close is a no-op for the in-memory ledger.
func (m *MockStorage) Close() error { return nil }
