// Package models defines the persisted entities of the trade ledger: trades,
// their legs, per-cycle valuation snapshots, and derived P/L analyses.
package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ContractMultiplier converts option points to dollars for index contracts.
const ContractMultiplier = 100.0

// OptionType identifies the contract kind of a leg.
type OptionType string

const (
	// OptionCall is a call option contract.
	OptionCall OptionType = "call"
	// OptionPut is a put option contract.
	OptionPut OptionType = "put"
)

// Valid returns true if the OptionType is one of the defined constants.
func (t OptionType) Valid() bool {
	switch t {
	case OptionCall, OptionPut:
		return true
	default:
		return false
	}
}

// Direction identifies whether a leg was bought or sold.
type Direction string

const (
	// DirectionLong is a bought (debit) leg.
	DirectionLong Direction = "long"
	// DirectionShort is a sold (credit) leg.
	DirectionShort Direction = "short"
)

// Valid returns true if the Direction is one of the defined constants.
func (d Direction) Valid() bool {
	switch d {
	case DirectionLong, DirectionShort:
		return true
	default:
		return false
	}
}

// Sign returns +1 for long legs and -1 for short legs.
func (d Direction) Sign() float64 {
	if d == DirectionShort {
		return -1
	}
	return 1
}

// StrategyType identifies the shape of a multi-leg strategy.
type StrategyType string

const (
	// StrategyVerticalSpread is a two-leg defined-risk put spread.
	StrategyVerticalSpread StrategyType = "vertical_spread"
	// StrategyIronCondor is a four-leg defined-risk condor.
	StrategyIronCondor StrategyType = "iron_condor"
)

// Valid returns true if the StrategyType is one of the defined constants.
func (s StrategyType) Valid() bool {
	switch s {
	case StrategyVerticalSpread, StrategyIronCondor:
		return true
	default:
		return false
	}
}

// LegStatus is the lifecycle state of a leg; open -> closed is one-way.
type LegStatus string

const (
	// LegOpen means the leg is still being marked to market.
	LegOpen LegStatus = "open"
	// LegClosed means the leg settled; pnl and exit price are frozen.
	LegClosed LegStatus = "closed"
)

// TradeStatus is the lifecycle state of a trade; active -> closed is one-way.
type TradeStatus string

const (
	// TradeActive means at least one owned leg is open.
	TradeActive TradeStatus = "active"
	// TradeClosed means the trade settled exactly once, with all its legs.
	TradeClosed TradeStatus = "closed"
)

// Leg is one option contract within a strategy.
type Leg struct {
	LegID      string     `json:"leg_id"`
	TradeID    string     `json:"trade_id"`
	Strike     float64    `json:"strike"`
	OptionType OptionType `json:"option_type"`
	Direction  Direction  `json:"direction"`
	EntryPrice float64    `json:"entry_price"` // mid at creation, points per unit
	Status     LegStatus  `json:"status"`
	ExitPrice  *float64   `json:"exit_price,omitempty"` // set once, at closure
	PnL        float64    `json:"pnl"`                  // points; frozen at closure
}

// Trade is an owning strategy instance grouping one or more legs.
type Trade struct {
	TradeID        string       `json:"trade_id"`
	Symbol         string       `json:"symbol"`
	StrategyType   StrategyType `json:"strategy_type"`
	ExpirationDate string       `json:"expiration_date"` // YYYY-MM-DD
	EntryTime      time.Time    `json:"entry_time"`
	EntryPrice     float64      `json:"entry_price"` // signed net debit/credit, points
	Status         TradeStatus  `json:"status"`
	PnL            float64      `json:"pnl"` // dollars
	ExitTime       *time.Time   `json:"exit_time,omitempty"`
	ExitPrice      *float64     `json:"exit_price,omitempty"`
	Notes          string       `json:"notes,omitempty"`
}

// LiveSnapshot is an immutable valuation record for one leg at one monitor
// cycle. Created only by the PnL monitor, never mutated.
type LiveSnapshot struct {
	TradeID          string    `json:"trade_id"`
	LegID            string    `json:"leg_id"`
	Timestamp        time.Time `json:"timestamp"`
	CurrentPrice     float64   `json:"current_price"`
	TheoreticalPnL   float64   `json:"theoretical_pnl"` // points
	UnderlyingPrice  float64   `json:"underlying_price"`
	UnderlyingSymbol string    `json:"underlying_symbol"`
	PriceType        string    `json:"price_type"` // "mid"
	Status           LegStatus `json:"status"`     // leg status at snapshot time
}

// PLAnalysis is a derived payoff summary for a trade. MaxProfit and MaxLoss
// are in dollars, breakevens in underlying points, probability in percent.
type PLAnalysis struct {
	TradeID           string    `json:"trade_id"`
	Timestamp         time.Time `json:"timestamp"`
	MaxProfit         float64   `json:"max_profit"`
	MaxLoss           float64   `json:"max_loss"`
	BreakevenLower    float64   `json:"breakeven_lower"` // NaN when payoff never crosses zero
	BreakevenUpper    float64   `json:"breakeven_upper"`
	ProbabilityProfit float64   `json:"probability_profit"` // 0-100
	Delta             float64   `json:"delta"`              // signed per-leg sum
	Theta             float64   `json:"theta"`
	Notes             string    `json:"notes,omitempty"`
}

// ChainKey addresses one quote in an option chain snapshot.
type ChainKey struct {
	Strike     float64
	OptionType OptionType
}

// MidMap holds current mid prices keyed by (strike, option type) for a
// single expiration.
type MidMap map[ChainKey]float64

// NewTradeID builds a unique, human-scannable trade identifier.
func NewTradeID(st StrategyType, now time.Time) string {
	return fmt.Sprintf("%s_%s_%s",
		strings.ToUpper(string(st)),
		now.UTC().Format("20060102T150405"),
		uuid.NewString()[:8])
}

// NewLegID builds a unique leg identifier scoped to its trade.
func NewLegID(tradeID string, ot OptionType, strike float64) string {
	return fmt.Sprintf("%s_%s_%.0f_%s", tradeID, strings.ToUpper(string(ot)), strike, uuid.NewString()[:8])
}

// RawPnLPoints returns the leg's mark-to-market PnL in points at the given
// current price: shorts gain when price falls, longs when it rises.
func (l *Leg) RawPnLPoints(current float64) float64 {
	if l.Direction == DirectionShort {
		return l.EntryPrice - current
	}
	return current - l.EntryPrice
}

// IsOpen reports whether the leg is still being marked.
func (l *Leg) IsOpen() bool { return l.Status == LegOpen }

// Validate checks structural invariants on a leg.
func (l *Leg) Validate() error {
	if l.LegID == "" || l.TradeID == "" {
		return fmt.Errorf("leg %q: missing identifiers", l.LegID)
	}
	if !l.OptionType.Valid() {
		return fmt.Errorf("leg %s: invalid option type %q", l.LegID, l.OptionType)
	}
	if !l.Direction.Valid() {
		return fmt.Errorf("leg %s: invalid direction %q", l.LegID, l.Direction)
	}
	if l.Strike <= 0 {
		return fmt.Errorf("leg %s: strike must be positive (got %.2f)", l.LegID, l.Strike)
	}
	if l.Status == LegOpen && l.ExitPrice != nil {
		return fmt.Errorf("leg %s: exit price must be unset while open", l.LegID)
	}
	if l.Status == LegClosed && l.ExitPrice == nil {
		return fmt.Errorf("leg %s: exit price must be set once closed", l.LegID)
	}
	return nil
}

// Validate checks structural invariants on a trade.
func (t *Trade) Validate() error {
	if t.TradeID == "" {
		return fmt.Errorf("trade: missing identifier")
	}
	if t.Symbol == "" {
		return fmt.Errorf("trade %s: missing symbol", t.TradeID)
	}
	if !t.StrategyType.Valid() {
		return fmt.Errorf("trade %s: invalid strategy type %q", t.TradeID, t.StrategyType)
	}
	if _, err := time.Parse("2006-01-02", t.ExpirationDate); err != nil {
		return fmt.Errorf("trade %s: invalid expiration date %q: %w", t.TradeID, t.ExpirationDate, err)
	}
	if t.Status == TradeClosed && t.ExitTime == nil {
		return fmt.Errorf("trade %s: exit time must be set once closed", t.TradeID)
	}
	if t.Status == TradeActive && (t.ExitTime != nil || t.ExitPrice != nil) {
		return fmt.Errorf("trade %s: exit fields must be unset while active", t.TradeID)
	}
	return nil
}
