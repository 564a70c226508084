package payoff

import (
	"errors"
	"math"
	"time"
)

// ErrInapplicable is returned when the analytic estimator's preconditions do
// not hold (no volatility, no time to expiry, or malformed strikes). Callers
// fall back to the grid estimator; a probability is never fabricated.
var ErrInapplicable = errors.New("analytic estimator inapplicable")

const hoursPerYear = 24 * 365.0

// settlementHour is the venue close hour (16:00 local) used as the terminal
// time for time-to-expiry calculations.
const settlementHour = 16

// YearsToExpiry returns the time from now until 16:00 venue-local time on the
// expiration date, in years, floored at zero.
func YearsToExpiry(now time.Time, expiration string, venue *time.Location) (float64, error) {
	d, err := time.ParseInLocation("2006-01-02", expiration, venue)
	if err != nil {
		return 0, err
	}
	settle := time.Date(d.Year(), d.Month(), d.Day(), settlementHour, 0, 0, 0, venue)
	years := settle.Sub(now).Hours() / hoursPerYear
	if years < 0 {
		return 0, nil
	}
	return years, nil
}

// AnalyticPOP estimates probability of profit for a short-strangle-shaped
// structure (short put below spot, short call above) under a log-normal
// terminal price: Phi(d2(putStrike)) - Phi(d2(callStrike)), where
// d2(K) = (ln(S/K) - sigma^2*T/2) / (sigma*sqrt(T)).
//
// The result is a percentage clamped to [0, 100]. Returns ErrInapplicable
// when sigma <= 0, T <= 0, or the strikes/spot are not positive.
func AnalyticPOP(spot, putStrike, callStrike, sigma, yearsToExpiry float64) (float64, error) {
	if sigma <= 0 || yearsToExpiry <= 0 || spot <= 0 || putStrike <= 0 || callStrike <= 0 {
		return 0, ErrInapplicable
	}
	vol := sigma * math.Sqrt(yearsToExpiry)
	d2 := func(k float64) float64 {
		return (math.Log(spot/k) - 0.5*sigma*sigma*yearsToExpiry) / vol
	}
	p := (normCDF(d2(putStrike)) - normCDF(d2(callStrike))) * 100
	if p < 0 {
		p = 0
	}
	if p > 100 {
		p = 100
	}
	return p, nil
}

// normCDF is the standard normal cumulative distribution function.
func normCDF(x float64) float64 {
	return 0.5 * (1 + math.Erf(x/math.Sqrt2))
}
