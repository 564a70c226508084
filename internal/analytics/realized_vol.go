// Package analytics derives secondary market metrics from stored snapshots:
// short-term realized volatility and per-strike gamma exposure.
package analytics

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/montanaflynn/stats"

	"github.com/wfarrell/condortrack/internal/storage"
)

// ErrInsufficientData is returned when too few observations exist to compute
// a metric.
var ErrInsufficientData = errors.New("insufficient data")

// VolWindow names a realized-volatility rolling window.
type VolWindow struct {
	Name    string  // e.g. "5M"
	Samples int     // log returns per window
	Scale   float64 // sqrt annualization-ish factor applied to the stddev
}

// DefaultVolWindows mirrors the monitor's snapshot cadence: rolling windows
// over the most recent 5-minute samples.
var DefaultVolWindows = []VolWindow{
	{Name: "5M", Samples: 5, Scale: math.Sqrt(12)},
	{Name: "15M", Samples: 3, Scale: math.Sqrt(3)},
	{Name: "1H", Samples: 12, Scale: math.Sqrt(12)},
}

// VolReading is one realized-volatility observation.
type VolReading struct {
	Window      string
	RealizedVol float64
}

// RealizedVolatility computes the rolling standard deviation of log returns
// over the last w.Samples observations, scaled by w.Scale.
func RealizedVolatility(closes []float64, w VolWindow) (float64, error) {
	if len(closes) < w.Samples+1 {
		return 0, fmt.Errorf("%w: need %d closes, have %d", ErrInsufficientData, w.Samples+1, len(closes))
	}

	tail := closes[len(closes)-(w.Samples+1):]
	returns := make([]float64, 0, w.Samples)
	for i := 1; i < len(tail); i++ {
		if tail[i-1] <= 0 || tail[i] <= 0 {
			return 0, fmt.Errorf("%w: non-positive close", ErrInsufficientData)
		}
		returns = append(returns, math.Log(tail[i]/tail[i-1]))
	}

	sd, err := stats.StandardDeviationSample(stats.Float64Data(returns))
	if err != nil {
		return 0, fmt.Errorf("computing stddev: %w", err)
	}
	return sd * w.Scale, nil
}

// RealizedVolatilities computes every default window from the warehouse's
// recent underlying closes, skipping windows with too little data.
func RealizedVolatilities(ctx context.Context, store storage.Interface, symbol string) ([]VolReading, error) {
	maxSamples := 0
	for _, w := range DefaultVolWindows {
		if w.Samples > maxSamples {
			maxSamples = w.Samples
		}
	}

	closes, err := store.RecentUnderlyingCloses(ctx, symbol, maxSamples+1)
	if err != nil {
		return nil, fmt.Errorf("loading underlying closes: %w", err)
	}

	var out []VolReading
	for _, w := range DefaultVolWindows {
		v, err := RealizedVolatility(closes, w)
		if err != nil {
			if errors.Is(err, ErrInsufficientData) {
				continue
			}
			return nil, err
		}
		out = append(out, VolReading{Window: w.Name, RealizedVol: v})
	}
	return out, nil
}
