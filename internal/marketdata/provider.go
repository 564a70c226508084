// Package marketdata provides read-only market data clients: underlying
// quotes and option-chain snapshots with greeks. This system consumes prices
// and greeks; it never computes them and never routes orders.
package marketdata

import (
	"context"
	"errors"
	"math"

	"github.com/wfarrell/condortrack/internal/models"
)

// ErrNoQuote is returned when the provider has no quote for a symbol.
var ErrNoQuote = errors.New("no quote available")

// ErrEmptyChain is returned when the provider has no options for the
// requested symbol and expiration.
var ErrEmptyChain = errors.New("empty option chain")

// Provider defines the market-data collaborator contract.
//
// Implementations must be safe for concurrent use; monitor cycles for
// different symbols may fetch in parallel.
type Provider interface {
	// GetQuote returns the current underlying quote for a symbol.
	GetQuote(ctx context.Context, symbol string) (*Quote, error)
	// GetOptionChain returns the freshest option snapshot per
	// (strike, option type) for the given expiration, greeks included.
	GetOptionChain(ctx context.Context, symbol, expiration string) ([]Option, error)
}

// Quote is an underlying quote snapshot.
type Quote struct {
	Symbol string  `json:"symbol"`
	Last   float64 `json:"last"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume int64   `json:"volume"`
}

// Option is one contract row of an option-chain snapshot.
type Option struct {
	Greeks         *Greeks `json:"greeks,omitempty"`
	Symbol         string  `json:"symbol"`
	OptionType     string  `json:"option_type"`
	ExpirationDate string  `json:"expiration_date"`
	Underlying     string  `json:"underlying"`
	Strike         float64 `json:"strike"`
	Bid            float64 `json:"bid"`
	Ask            float64 `json:"ask"`
	Last           float64 `json:"last"`
	Volume         int64   `json:"volume"`
	OpenInterest   int64   `json:"open_interest"`
}

// Greeks contains the greeks block of an option snapshot.
type Greeks struct {
	Delta  float64 `json:"delta"`
	Gamma  float64 `json:"gamma"`
	Theta  float64 `json:"theta"`
	Vega   float64 `json:"vega"`
	MidIV  float64 `json:"mid_iv"`
	SmvVol float64 `json:"smv_vol"`
}

// Mid returns the option's mid price, or NaN when the quote has no usable
// bid/ask.
func (o *Option) Mid() float64 {
	if o.Ask <= 0 || o.Bid < 0 || o.Ask < o.Bid {
		return math.NaN()
	}
	return (o.Bid + o.Ask) / 2
}

// Type returns the option type as a models sum type; invalid strings map to
// an empty (invalid) OptionType.
func (o *Option) Type() models.OptionType {
	t := models.OptionType(o.OptionType)
	if !t.Valid() {
		return ""
	}
	return t
}

// MidMap flattens a chain into current mid prices keyed by
// (strike, option type), skipping rows without a usable mid.
func MidMap(chain []Option) models.MidMap {
	m := make(models.MidMap, len(chain))
	for i := range chain {
		mid := chain[i].Mid()
		if math.IsNaN(mid) {
			continue
		}
		t := chain[i].Type()
		if t == "" {
			continue
		}
		m[models.ChainKey{Strike: chain[i].Strike, OptionType: t}] = mid
	}
	return m
}
