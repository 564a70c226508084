// Package strategy selects strikes for defined-risk strategy shapes and
// creates the resulting trades in the ledger.
package strategy

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/wfarrell/condortrack/internal/marketdata"
	"github.com/wfarrell/condortrack/internal/models"
	"github.com/wfarrell/condortrack/internal/payoff"
	"github.com/wfarrell/condortrack/internal/storage"
	"github.com/wfarrell/condortrack/internal/util"
)

// entryTick is the increment leg entry prices are marked at.
const entryTick = 0.01

// strikeGrid is the strike increment wing targets snap to.
const strikeGrid = 5.0

// ErrUnknownStrategy is returned for strategy types the builder does not
// support; rejected before any state mutation.
var ErrUnknownStrategy = errors.New("unknown strategy type")

// ErrNoTargetableStrike is returned when the chain carries no strike that can
// satisfy delta targeting (for example, missing greeks). A skip, not a crash.
var ErrNoTargetableStrike = errors.New("no targetable strike")

// ErrMissingMid is returned when a selected leg's quote has no usable mid
// price; no trade is created.
var ErrMissingMid = errors.New("selected leg missing mid price")

// IsSkip reports whether a build error is an expected no-data condition
// (logged and retried next cadence) rather than a real failure.
func IsSkip(err error) bool {
	return errors.Is(err, marketdata.ErrNoQuote) ||
		errors.Is(err, marketdata.ErrEmptyChain) ||
		errors.Is(err, ErrNoTargetableStrike) ||
		errors.Is(err, ErrMissingMid)
}

// Config holds strike-selection parameters.
type Config struct {
	DeltaTarget     float64        // target absolute delta for short strikes
	WingWidth       float64        // points between short and long strikes
	GridPoints      int            // payoff grid resolution
	UnderlyingRange float64        // payoff grid +/- range around spot
	Venue           *time.Location // trading venue timezone
}

// DefaultConfig returns the 0DTE defaults: 10-delta shorts, 10-point wings.
func DefaultConfig(venue *time.Location) Config {
	return Config{
		DeltaTarget:     0.10,
		WingWidth:       10,
		GridPoints:      payoff.DefaultGridPoints,
		UnderlyingRange: payoff.DefaultUnderlyingRange,
		Venue:           venue,
	}
}

// Builder constructs trades by delta-targeting a freshly fetched option
// chain, prices them at mid, and persists trade, legs, and initial analysis.
type Builder struct {
	provider marketdata.Provider
	storage  storage.Interface
	logger   *logrus.Logger
	config   Config
	now      func() time.Time
}

// NewBuilder creates a strategy builder.
func NewBuilder(provider marketdata.Provider, store storage.Interface, cfg Config, logger *logrus.Logger) *Builder {
	if logger == nil {
		logger = logrus.New()
	}
	if cfg.Venue == nil {
		cfg.Venue = time.UTC
	}
	if cfg.DeltaTarget <= 0 {
		cfg.DeltaTarget = 0.10
	}
	if cfg.WingWidth <= 0 {
		cfg.WingWidth = 10
	}
	return &Builder{
		provider: provider,
		storage:  store,
		logger:   logger,
		config:   cfg,
		now:      time.Now,
	}
}

// WithClock overrides the builder's clock; used by tests.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// Build selects strikes for the strategy, prices the combination at mid, and
// persists the trade with status active and all legs open, followed by an
// initial P/L analysis. Each call creates a new, independently identified
// trade; existing trades are never mutated.
func (b *Builder) Build(ctx context.Context, symbol string, st models.StrategyType, expiration string) (*models.Trade, error) {
	if !st.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, st)
	}
	if _, err := time.Parse("2006-01-02", expiration); err != nil {
		return nil, fmt.Errorf("invalid expiration %q: %w", expiration, err)
	}

	quote, err := b.provider.GetQuote(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("fetching underlying quote: %w", err)
	}

	chain, err := b.provider.GetOptionChain(ctx, symbol, expiration)
	if err != nil {
		return nil, fmt.Errorf("fetching option chain: %w", err)
	}

	picks, err := b.selectStrikes(chain, st)
	if err != nil {
		return nil, err
	}

	now := b.now().UTC()
	tradeID := models.NewTradeID(st, now)

	var legs []models.Leg
	netEntry := 0.0
	for _, p := range picks {
		mid := util.RoundToTick(p.option.Mid(), entryTick)
		if math.IsNaN(mid) || mid <= 0 {
			return nil, fmt.Errorf("%w: %s %.0f", ErrMissingMid, p.option.OptionType, p.option.Strike)
		}
		legs = append(legs, models.Leg{
			LegID:      models.NewLegID(tradeID, p.option.Type(), p.option.Strike),
			TradeID:    tradeID,
			Strike:     p.option.Strike,
			OptionType: p.option.Type(),
			Direction:  p.direction,
			EntryPrice: mid,
			Status:     models.LegOpen,
		})
		netEntry += p.direction.Sign() * mid
	}

	trade := &models.Trade{
		TradeID:        tradeID,
		Symbol:         symbol,
		StrategyType:   st,
		ExpirationDate: expiration,
		EntryTime:      now,
		EntryPrice:     netEntry,
		Status:         models.TradeActive,
		Notes:          fmt.Sprintf("generated 0DTE %s trade", st),
	}

	if err := b.storage.InsertTrade(ctx, trade, legs); err != nil {
		return nil, fmt.Errorf("persisting trade: %w", err)
	}

	b.logger.WithFields(logrus.Fields{
		"trade_id":    tradeID,
		"symbol":      symbol,
		"strategy":    st,
		"entry_price": netEntry,
		"legs":        len(legs),
	}).Info("trade created")

	if err := b.storeAnalysis(ctx, trade, legs, picks, quote.Last); err != nil {
		return nil, err
	}

	return trade, nil
}

// pick pairs a selected chain row with the direction it will be traded.
type pick struct {
	option    marketdata.Option
	direction models.Direction
}

// selectStrikes performs delta targeting for the strategy shape. The short
// strike is the one whose absolute delta is closest to the target; the long
// wing is the nearest available strike to short +/- wing width, with the
// target snapped outward to the strike grid so a wing never comes out
// narrower than configured.
func (b *Builder) selectStrikes(chain []marketdata.Option, st models.StrategyType) ([]pick, error) {
	shortPut, err := b.findStrikeByDelta(chain, models.OptionPut)
	if err != nil {
		return nil, err
	}
	putTarget := util.FloorToTick(shortPut.Strike-b.config.WingWidth, strikeGrid)
	longPut, err := findNearestStrike(chain, models.OptionPut, putTarget, shortPut.Strike)
	if err != nil {
		return nil, err
	}

	picks := []pick{
		{option: *shortPut, direction: models.DirectionShort},
		{option: *longPut, direction: models.DirectionLong},
	}
	if st == models.StrategyVerticalSpread {
		return picks, nil
	}

	shortCall, err := b.findStrikeByDelta(chain, models.OptionCall)
	if err != nil {
		return nil, err
	}
	callTarget := util.CeilToTick(shortCall.Strike+b.config.WingWidth, strikeGrid)
	longCall, err := findNearestStrike(chain, models.OptionCall, callTarget, shortCall.Strike)
	if err != nil {
		return nil, err
	}

	return append(picks,
		pick{option: *shortCall, direction: models.DirectionShort},
		pick{option: *longCall, direction: models.DirectionLong},
	), nil
}

// findStrikeByDelta returns the option of the given type whose absolute
// delta is closest to the configured target. Rows without greeks cannot be
// targeted and are skipped.
func (b *Builder) findStrikeByDelta(chain []marketdata.Option, ot models.OptionType) (*marketdata.Option, error) {
	var best *marketdata.Option
	bestDiff := math.MaxFloat64

	for i := range chain {
		opt := &chain[i]
		if opt.Type() != ot || opt.Greeks == nil {
			continue
		}
		diff := math.Abs(math.Abs(opt.Greeks.Delta) - b.config.DeltaTarget)
		if diff < bestDiff {
			bestDiff = diff
			best = opt
		}
	}

	if best == nil {
		return nil, fmt.Errorf("%w: no %s with greeks in chain", ErrNoTargetableStrike, ot)
	}
	return best, nil
}

// findNearestStrike returns the option of the given type whose strike is
// closest to target, excluding the short strike itself.
func findNearestStrike(chain []marketdata.Option, ot models.OptionType, target, exclude float64) (*marketdata.Option, error) {
	var best *marketdata.Option
	bestDiff := math.MaxFloat64

	for i := range chain {
		opt := &chain[i]
		if opt.Type() != ot || opt.Strike == exclude {
			continue
		}
		diff := math.Abs(opt.Strike - target)
		if diff < bestDiff {
			bestDiff = diff
			best = opt
		}
	}

	if best == nil {
		return nil, fmt.Errorf("%w: no %s wing near %.0f", ErrNoTargetableStrike, ot, target)
	}
	return best, nil
}

// storeAnalysis derives and persists the initial P/L analysis: payoff grid
// always, analytic probability additionally when the structure has both
// short strikes and a usable implied volatility.
func (b *Builder) storeAnalysis(ctx context.Context, trade *models.Trade, legs []models.Leg, picks []pick, spot float64) error {
	grid := payoff.AnalyzeGrid(legs, spot, b.config.GridPoints, b.config.UnderlyingRange)
	if !grid.Bracketed() {
		b.logger.WithField("trade_id", trade.TradeID).Warn("payoff never crosses zero across grid; breakevens undefined")
	}

	prob := grid.ProbabilityProfit
	if shortPut, shortCall, sigma, ok := analyticInputs(picks); ok {
		t, err := payoff.YearsToExpiry(b.now(), trade.ExpirationDate, b.config.Venue)
		if err == nil {
			if analytic, aerr := payoff.AnalyticPOP(spot, shortPut, shortCall, sigma, t); aerr == nil {
				prob = analytic
			} else {
				b.logger.WithField("trade_id", trade.TradeID).
					Debug("analytic estimator inapplicable, keeping grid probability")
			}
		}
	}

	var delta, theta float64
	for _, p := range picks {
		if p.option.Greeks == nil {
			continue
		}
		delta += p.direction.Sign() * p.option.Greeks.Delta
		theta += p.direction.Sign() * p.option.Greeks.Theta
	}

	analysis := models.PLAnalysis{
		TradeID:           trade.TradeID,
		Timestamp:         b.now().UTC(),
		MaxProfit:         grid.MaxProfit * models.ContractMultiplier,
		MaxLoss:           grid.MaxLoss * models.ContractMultiplier,
		BreakevenLower:    grid.BreakevenLower,
		BreakevenUpper:    grid.BreakevenUpper,
		ProbabilityProfit: prob,
		Delta:             delta,
		Theta:             theta,
		Notes:             "auto-computed via payoff grid",
	}
	if err := b.storage.InsertAnalysis(ctx, analysis); err != nil {
		return fmt.Errorf("persisting analysis: %w", err)
	}
	return nil
}

// analyticInputs extracts short put/call strikes and a mean implied vol from
// the picks. Returns ok=false when the structure is not strangle-shaped or
// no vol is available; callers then keep the grid estimate.
func analyticInputs(picks []pick) (shortPut, shortCall, sigma float64, ok bool) {
	var ivs []float64
	for _, p := range picks {
		if p.direction != models.DirectionShort {
			continue
		}
		switch p.option.Type() {
		case models.OptionPut:
			shortPut = p.option.Strike
		case models.OptionCall:
			shortCall = p.option.Strike
		}
		if p.option.Greeks != nil && p.option.Greeks.MidIV > 0 {
			ivs = append(ivs, p.option.Greeks.MidIV)
		}
	}
	if shortPut <= 0 || shortCall <= 0 || len(ivs) == 0 {
		return 0, 0, 0, false
	}
	for _, iv := range ivs {
		sigma += iv
	}
	return shortPut, shortCall, sigma / float64(len(ivs)), true
}
