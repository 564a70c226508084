package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/wfarrell/condortrack/internal/marketdata"
	"github.com/wfarrell/condortrack/internal/models"
)

// settlementWindowMinutes is the length of the inclusive end-of-day window
// after the venue close during which open positions settle. Wide enough to
// tolerate scheduler jitter while still closing same-day.
const settlementWindowMinutes = 5

// venue close hour, local time.
const closeHour = 16

// InSettlementWindow reports whether t falls inside the end-of-day
// settlement window: the first five minutes at or after the venue close.
func (m *Monitor) InSettlementWindow(t time.Time) bool {
	local := t.In(m.venue)
	return local.Hour() == closeHour && local.Minute() < settlementWindowMinutes
}

// Cycle gathers the inputs for one monitor invocation and runs it: the
// current underlying quote plus fresh mid prices for every expiration that
// has open legs. A provider failure on the quote is treated as "no quote"
// (the cycle skips); a chain failure for one expiration degrades to the
// per-leg fallback pricing rather than aborting the cycle.
func (m *Monitor) Cycle(ctx context.Context, provider marketdata.Provider, symbol string) error {
	legs, err := m.storage.OpenLegs(ctx, symbol)
	if err != nil {
		return fmt.Errorf("loading open legs: %w", err)
	}
	if len(legs) == 0 {
		m.logger.WithField("symbol", symbol).Info("no open legs to update")
		return nil
	}

	quote, err := provider.GetQuote(ctx, symbol)
	if err != nil {
		m.logger.WithField("symbol", symbol).WithError(err).Warn("quote fetch failed, skipping cycle")
		return nil
	}

	expirations := make(map[string]struct{})
	for i := range legs {
		expirations[legs[i].ExpirationDate] = struct{}{}
	}

	mids := make(map[string]models.MidMap, len(expirations))
	for exp := range expirations {
		chain, err := provider.GetOptionChain(ctx, symbol, exp)
		if err != nil {
			m.logger.WithFields(map[string]interface{}{
				"symbol":     symbol,
				"expiration": exp,
			}).WithError(err).Warn("chain fetch failed, legs will use fallback pricing")
			continue
		}
		mids[exp] = marketdata.MidMap(chain)
	}

	return m.UpdateTradePnL(ctx, symbol, quote, mids)
}
