// Package payoff models expiry payoffs for multi-leg option strategies and
// estimates probability of profit, both empirically over a price grid and
// analytically under a log-normal terminal-price assumption.
package payoff

import (
	"math"

	"github.com/wfarrell/condortrack/internal/models"
)

// DefaultGridPoints is the grid resolution used for P/L analyses.
const DefaultGridPoints = 200

// DefaultUnderlyingRange is the +/- fraction around spot the grid spans.
const DefaultUnderlyingRange = 0.20

// Points returns the expiry payoff of the leg set at the given underlying
// price, in underlying-index points. Pure and deterministic: no side effects,
// no error conditions.
func Points(legs []models.Leg, underlying float64) float64 {
	total := 0.0
	for i := range legs {
		leg := &legs[i]
		var intrinsic float64
		if leg.OptionType == models.OptionCall {
			intrinsic = math.Max(underlying-leg.Strike, 0)
		} else {
			intrinsic = math.Max(leg.Strike-underlying, 0)
		}
		sign := leg.Direction.Sign()
		total += sign*intrinsic - sign*leg.EntryPrice
	}
	return total
}

// GridResult summarizes the payoff of a leg set over a discretized price grid.
// MaxProfit and MaxLoss are in points; breakevens are underlying prices and
// are NaN when the payoff never changes sign across the grid.
type GridResult struct {
	MaxProfit         float64
	MaxLoss           float64
	BreakevenLower    float64
	BreakevenUpper    float64
	ProbabilityProfit float64 // percent, 0-100
}

// Bracketed reports whether the grid found at least one zero crossing, i.e.
// whether the breakeven bounds are meaningful.
func (r GridResult) Bracketed() bool {
	return !math.IsNaN(r.BreakevenLower) && !math.IsNaN(r.BreakevenUpper)
}

// AnalyzeGrid evaluates the payoff over points evenly spaced prices spanning
// spot*(1±rng). Probability of profit is the fraction of grid prices with
// positive payoff. Grids below 100 points are widened to the default.
func AnalyzeGrid(legs []models.Leg, spot float64, points int, rng float64) GridResult {
	if points < 100 {
		points = DefaultGridPoints
	}
	if rng <= 0 {
		rng = DefaultUnderlyingRange
	}

	low := spot * (1 - rng)
	high := spot * (1 + rng)
	step := (high - low) / float64(points-1)

	prices := make([]float64, points)
	values := make([]float64, points)
	profitable := 0
	maxProfit := math.Inf(-1)
	maxLoss := math.Inf(1)

	for i := 0; i < points; i++ {
		s := low + float64(i)*step
		v := Points(legs, s)
		prices[i] = s
		values[i] = v
		if v > 0 {
			profitable++
		}
		if v > maxProfit {
			maxProfit = v
		}
		if v < maxLoss {
			maxLoss = v
		}
	}

	beLower, beUpper := math.NaN(), math.NaN()
	for i := 0; i < points-1; i++ {
		if sign(values[i]) != sign(values[i+1]) {
			if math.IsNaN(beLower) {
				beLower = prices[i]
			}
			beUpper = prices[i+1]
		}
	}

	return GridResult{
		MaxProfit:         maxProfit,
		MaxLoss:           maxLoss,
		BreakevenLower:    beLower,
		BreakevenUpper:    beUpper,
		ProbabilityProfit: float64(profitable) / float64(points) * 100,
	}
}

func sign(v float64) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}
