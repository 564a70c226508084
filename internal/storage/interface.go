// Package storage persists the trade ledger: trades, legs, live valuation
// snapshots, and P/L analyses, backed by a queryable tabular store.
package storage

import (
	"context"
	"time"

	"github.com/wfarrell/condortrack/internal/models"
)

// OpenLeg is an open leg joined with the metadata of its owning trade.
type OpenLeg struct {
	models.Leg
	Symbol          string
	StrategyType    models.StrategyType
	ExpirationDate  string
	TradeEntryPrice float64
}

// LegUpdate is the field set applied to a leg each monitor cycle. ExitPrice
// is only set at settlement, together with the closed status.
type LegUpdate struct {
	PnL       float64
	Status    models.LegStatus
	ExitPrice *float64
}

// TradeUpdate is the field set applied to a trade at rollup. Exit fields are
// only set at settlement.
type TradeUpdate struct {
	PnL       float64
	Status    models.TradeStatus
	ExitTime  *time.Time
	ExitPrice *float64
}

// UnderlyingSnapshot records the underlying quote a monitor cycle priced
// against; feeds the realized-volatility analytics.
type UnderlyingSnapshot struct {
	Symbol    string
	Timestamp time.Time
	Last      float64
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    int64
}

// Interface defines the ledger contract against the durable warehouse.
//
// Implementations must be safe for concurrent use across symbols. UpdateTrade
// must be an atomic conditional write: a mutating update to a trade is
// applied only while its stored status is not closed, so a late-arriving
// monitor cycle can never resurrect or re-price a settled trade.
type Interface interface {
	// InsertTrade persists a trade and its legs in one transaction.
	InsertTrade(ctx context.Context, trade *models.Trade, legs []models.Leg) error
	// OpenLegs returns all open legs for a symbol with owning-trade metadata.
	OpenLegs(ctx context.Context, symbol string) ([]OpenLeg, error)
	// TradeLegs returns every leg of a trade, open or closed.
	TradeLegs(ctx context.Context, tradeID string) ([]models.Leg, error)
	// GetTrade returns one trade or ErrTradeNotFound.
	GetTrade(ctx context.Context, tradeID string) (*models.Trade, error)
	// ListTrades returns all trades for a symbol, newest first.
	ListTrades(ctx context.Context, symbol string) ([]models.Trade, error)

	// InsertSnapshots appends immutable per-leg valuation snapshots.
	InsertSnapshots(ctx context.Context, snaps []models.LiveSnapshot) error
	// UpdateLeg applies the cycle's field set to one leg.
	UpdateLeg(ctx context.Context, legID string, upd LegUpdate) error
	// UpdateTrade applies the rollup to one trade, guarded on
	// status != closed. Updating an already-closed trade is a no-op.
	UpdateTrade(ctx context.Context, tradeID string, upd TradeUpdate) error

	// InsertAnalysis appends a derived P/L analysis row.
	InsertAnalysis(ctx context.Context, a models.PLAnalysis) error
	// LatestAnalysis returns the newest analysis for a trade or ErrNoAnalysis.
	LatestAnalysis(ctx context.Context, tradeID string) (*models.PLAnalysis, error)

	// InsertUnderlyingSnapshot appends an underlying quote record.
	InsertUnderlyingSnapshot(ctx context.Context, s UnderlyingSnapshot) error
	// RecentUnderlyingCloses returns up to limit last prices for a symbol,
	// oldest first.
	RecentUnderlyingCloses(ctx context.Context, symbol string, limit int) ([]float64, error)

	Close() error
}

// NewStorage creates the default storage implementation (SQLite).
func NewStorage(path string) (Interface, error) {
	return NewSQLiteStorage(path)
}

// Ensure implementations satisfy Interface.
var (
	_ Interface = (*SQLiteStorage)(nil)
	_ Interface = (*MockStorage)(nil)
)
