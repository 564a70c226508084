// Package monitor implements the periodic PnL job: it re-prices open legs
// from fresh mid quotes, snapshots valuations, rolls up to trade level, and
// performs the one-time end-of-day settlement transition.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/wfarrell/condortrack/internal/marketdata"
	"github.com/wfarrell/condortrack/internal/models"
	"github.com/wfarrell/condortrack/internal/storage"
)

// Monitor marks open legs to market and settles trades at expiry. Safe to
// invoke repeatedly: re-running after a partial cycle is harmless because
// every trade mutation is guarded on the trade not being closed.
type Monitor struct {
	storage storage.Interface
	logger  *logrus.Logger
	venue   *time.Location
	now     func() time.Time
}

// NewMonitor creates a monitor settling at the given venue's close.
func NewMonitor(store storage.Interface, venue *time.Location, logger *logrus.Logger) *Monitor {
	if logger == nil {
		logger = logrus.New()
	}
	if venue == nil {
		venue = time.UTC
	}
	return &Monitor{
		storage: store,
		logger:  logger,
		venue:   venue,
		now:     time.Now,
	}
}

// WithClock overrides the monitor's clock; used by tests.
func (m *Monitor) WithClock(now func() time.Time) *Monitor {
	m.now = now
	return m
}

// tradeRollup accumulates per-trade state across the leg loop. A trade
// settles only when every one of its legs reached expiry this cycle.
type tradeRollup struct {
	totalPoints  float64
	entryPrice   float64
	strategyType models.StrategyType
	settle       bool
}

// UpdateTradePnL runs one monitor cycle for a symbol.
//
// With no open legs it is a no-op. With open legs but no usable underlying
// quote it skips the entire cycle (no partial updates) and leaves retry to
// the next scheduled invocation. Otherwise it appends one LiveSnapshot per
// leg, updates each leg's pnl (and, inside the settlement window on the
// leg's own expiry date, closes it with an exit price), and rolls the leg
// points up to trade level.
// Persistence errors propagate to the caller unmodified.
func (m *Monitor) UpdateTradePnL(ctx context.Context, symbol string, quote *marketdata.Quote, mids map[string]models.MidMap) error {
	legs, err := m.storage.OpenLegs(ctx, symbol)
	if err != nil {
		return fmt.Errorf("loading open legs: %w", err)
	}
	if len(legs) == 0 {
		m.logger.WithField("symbol", symbol).Info("no open legs to update")
		return nil
	}

	if quote == nil || quote.Last <= 0 {
		m.logger.WithField("symbol", symbol).Warn("no underlying quote available, skipping cycle")
		return nil
	}

	now := m.now()
	inWindow := m.InSettlementWindow(now)
	today := now.In(m.venue).Format("2006-01-02")
	underlying := quote.Last

	if err := m.storage.InsertUnderlyingSnapshot(ctx, storage.UnderlyingSnapshot{
		Symbol:    symbol,
		Timestamp: now.UTC(),
		Last:      quote.Last,
		Open:      quote.Open,
		High:      quote.High,
		Low:       quote.Low,
		Close:     quote.Close,
		Volume:    quote.Volume,
	}); err != nil {
		return fmt.Errorf("recording underlying snapshot: %w", err)
	}

	snapshots := make([]models.LiveSnapshot, 0, len(legs))
	updates := make(map[string]storage.LegUpdate, len(legs))
	rollups := make(map[string]*tradeRollup)

	for i := range legs {
		leg := &legs[i]
		// A leg only settles in the window of its own expiry date; a
		// forward-dated leg keeps marking intraday until then.
		isEOD := inWindow && leg.ExpirationDate == today

		current, ok := mids[leg.ExpirationDate][models.ChainKey{Strike: leg.Strike, OptionType: leg.OptionType}]
		if !ok {
			// Intraday a missing quote means "assume flat"; at EOD the
			// contract expired worthless.
			if isEOD {
				current = 0
			} else {
				current = leg.EntryPrice
			}
		}

		pnl := leg.RawPnLPoints(current)
		status := models.LegOpen
		if isEOD {
			status = models.LegClosed
		}

		snapshots = append(snapshots, models.LiveSnapshot{
			TradeID:          leg.TradeID,
			LegID:            leg.LegID,
			Timestamp:        now.UTC(),
			CurrentPrice:     current,
			TheoreticalPnL:   pnl,
			UnderlyingPrice:  underlying,
			UnderlyingSymbol: symbol,
			PriceType:        "mid",
			Status:           status,
		})
		updates[leg.LegID] = legUpdate(pnl, current, isEOD)

		r := rollups[leg.TradeID]
		if r == nil {
			r = &tradeRollup{entryPrice: leg.TradeEntryPrice, strategyType: leg.StrategyType, settle: isEOD}
			rollups[leg.TradeID] = r
		} else {
			r.settle = r.settle && isEOD
		}
		r.totalPoints += pnl
	}

	if err := m.storage.InsertSnapshots(ctx, snapshots); err != nil {
		return fmt.Errorf("inserting live snapshots: %w", err)
	}

	for legID, upd := range updates {
		if err := m.storage.UpdateLeg(ctx, legID, upd); err != nil {
			return fmt.Errorf("updating leg %s: %w", legID, err)
		}
	}

	for tradeID, r := range rollups {
		if err := m.rollupTrade(ctx, tradeID, r, underlying, now, r.settle); err != nil {
			return err
		}
	}

	m.logger.WithFields(logrus.Fields{
		"symbol": symbol,
		"legs":   len(legs),
		"trades": len(rollups),
		"eod":    inWindow,
	}).Info("PnL monitor cycle complete")
	return nil
}

// legUpdate chooses the leg field set for this cycle: pnl always, exit price
// and closed status only inside the settlement window.
func legUpdate(pnl, current float64, eod bool) storage.LegUpdate {
	if !eod {
		return storage.LegUpdate{PnL: pnl, Status: models.LegOpen}
	}
	exit := current
	return storage.LegUpdate{PnL: pnl, Status: models.LegClosed, ExitPrice: &exit}
}

// rollupTrade writes the trade-level PnL. Intraday it marks the running
// dollar PnL; at EOD it performs the one-time settlement. Both paths go
// through the ledger's conditional update, so a trade closed by an earlier
// cycle is left untouched.
func (m *Monitor) rollupTrade(ctx context.Context, tradeID string, r *tradeRollup, underlying float64, now time.Time, isEOD bool) error {
	rawDollars := r.totalPoints * models.ContractMultiplier

	if !isEOD {
		return m.storage.UpdateTrade(ctx, tradeID, storage.TradeUpdate{
			PnL:    rawDollars,
			Status: models.TradeActive,
		})
	}

	finalPnL, err := m.settlementPnL(ctx, tradeID, underlying, rawDollars)
	if err != nil {
		return err
	}

	exitTime := now.UTC()
	exitPrice := r.entryPrice + finalPnL
	if err := m.storage.UpdateTrade(ctx, tradeID, storage.TradeUpdate{
		PnL:       finalPnL,
		Status:    models.TradeClosed,
		ExitTime:  &exitTime,
		ExitPrice: &exitPrice,
	}); err != nil {
		return fmt.Errorf("settling trade %s: %w", tradeID, err)
	}

	m.logger.WithFields(logrus.Fields{
		"trade_id": tradeID,
		"pnl":      finalPnL,
	}).Info("trade settled")
	return nil
}

// settlementPnL computes the final trade PnL at expiry. When a P/L analysis
// exists and the trade has both a short put and a short call strike, the
// analysis bounds are authoritative: max profit if the underlying settled
// between the shorts, max loss otherwise. Anything less than that
// (no analysis, a two-leg vertical, missing short-strike data) falls back to
// the raw leg-point sum times the contract multiplier.
func (m *Monitor) settlementPnL(ctx context.Context, tradeID string, underlying, rawDollars float64) (float64, error) {
	analysis, err := m.storage.LatestAnalysis(ctx, tradeID)
	if err != nil {
		if errors.Is(err, storage.ErrNoAnalysis) {
			return rawDollars, nil
		}
		return 0, fmt.Errorf("loading analysis for trade %s: %w", tradeID, err)
	}

	legs, err := m.storage.TradeLegs(ctx, tradeID)
	if err != nil {
		return 0, fmt.Errorf("loading legs for trade %s: %w", tradeID, err)
	}

	shortPut, shortCall := shortStrikes(legs)
	if shortPut <= 0 || shortCall <= 0 {
		m.logger.WithField("trade_id", tradeID).
			Warn("insufficient short-strike data for analytic settlement, using raw sum")
		return rawDollars, nil
	}

	if underlying > shortPut && underlying < shortCall {
		return analysis.MaxProfit, nil
	}
	return analysis.MaxLoss, nil
}

// shortStrikes returns the short put and short call strikes of a leg set,
// zero when a side has no short leg.
func shortStrikes(legs []models.Leg) (shortPut, shortCall float64) {
	for i := range legs {
		leg := &legs[i]
		if leg.Direction != models.DirectionShort {
			continue
		}
		switch leg.OptionType {
		case models.OptionPut:
			shortPut = leg.Strike
		case models.OptionCall:
			shortCall = leg.Strike
		}
	}
	return shortPut, shortCall
}
