package analytics

import (
	"sort"

	"github.com/wfarrell/condortrack/internal/marketdata"
	"github.com/wfarrell/condortrack/internal/models"
)

// StrikeGEX is the net dealer gamma exposure at one strike: calls contribute
// positive gamma, puts negative, each weighted by open interest and the
// contract multiplier.
type StrikeGEX struct {
	Strike    float64 `json:"strike"`
	NetGamma  float64 `json:"net_gamma_exposure"`
	CallGamma float64 `json:"call_gamma"`
	PutGamma  float64 `json:"put_gamma"`
}

// GEXProfile is the per-strike gamma exposure of one expiration's chain,
// sorted by strike.
type GEXProfile struct {
	Strikes   []StrikeGEX `json:"strikes"`
	ZeroGamma float64     `json:"zero_gamma"` // estimated flip strike, 0 when none
}

// ComputeGEX aggregates net gamma exposure per strike from a chain snapshot.
// Rows without greeks carry no gamma information and are skipped.
func ComputeGEX(chain []marketdata.Option) GEXProfile {
	byStrike := make(map[float64]*StrikeGEX)
	for i := range chain {
		opt := &chain[i]
		if opt.Greeks == nil {
			continue
		}
		g := opt.Greeks.Gamma * float64(opt.OpenInterest) * models.ContractMultiplier
		entry := byStrike[opt.Strike]
		if entry == nil {
			entry = &StrikeGEX{Strike: opt.Strike}
			byStrike[opt.Strike] = entry
		}
		switch opt.Type() {
		case models.OptionCall:
			entry.CallGamma += g
			entry.NetGamma += g
		case models.OptionPut:
			entry.PutGamma += g
			entry.NetGamma -= g
		}
	}

	profile := GEXProfile{Strikes: make([]StrikeGEX, 0, len(byStrike))}
	for _, entry := range byStrike {
		profile.Strikes = append(profile.Strikes, *entry)
	}
	sort.Slice(profile.Strikes, func(i, j int) bool {
		return profile.Strikes[i].Strike < profile.Strikes[j].Strike
	})
	profile.ZeroGamma = zeroGammaFlip(profile.Strikes)
	return profile
}

// zeroGammaFlip estimates the strike where cumulative net gamma crosses
// zero, interpolating between the bracketing strikes. Returns 0 when the
// cumulative sum never changes sign.
func zeroGammaFlip(strikes []StrikeGEX) float64 {
	if len(strikes) < 2 {
		return 0
	}
	cum := 0.0
	prevCum := 0.0
	for i := range strikes {
		prevCum = cum
		cum += strikes[i].NetGamma
		if i == 0 {
			continue
		}
		if (prevCum < 0 && cum >= 0) || (prevCum > 0 && cum <= 0) {
			lower := strikes[i-1].Strike
			upper := strikes[i].Strike
			denom := cum - prevCum
			if denom == 0 {
				return lower
			}
			frac := -prevCum / denom
			return lower + frac*(upper-lower)
		}
	}
	return 0
}
