package analytics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wfarrell/condortrack/internal/marketdata"
)

func gexOpt(ot string, strike, gamma float64, oi int64) marketdata.Option {
	return marketdata.Option{
		OptionType:   ot,
		Strike:       strike,
		OpenInterest: oi,
		Greeks:       &marketdata.Greeks{Gamma: gamma},
	}
}

func TestComputeGEXSigns(t *testing.T) {
	chain := []marketdata.Option{
		gexOpt("call", 5000, 0.002, 1000),
		gexOpt("put", 5000, 0.003, 500),
	}

	profile := ComputeGEX(chain)
	require.Len(t, profile.Strikes, 1)

	s := profile.Strikes[0]
	// call: 0.002 * 1000 * 100 = 200; put: 0.003 * 500 * 100 = 150.
	assert.InDelta(t, 200.0, s.CallGamma, 1e-9)
	assert.InDelta(t, 150.0, s.PutGamma, 1e-9)
	assert.InDelta(t, 50.0, s.NetGamma, 1e-9)
}

func TestComputeGEXSortsAndSkipsMissingGreeks(t *testing.T) {
	chain := []marketdata.Option{
		gexOpt("call", 5050, 0.002, 100),
		gexOpt("put", 4990, 0.002, 100),
		{OptionType: "call", Strike: 5000, OpenInterest: 100}, // no greeks
	}

	profile := ComputeGEX(chain)
	require.Len(t, profile.Strikes, 2)
	assert.Equal(t, 4990.0, profile.Strikes[0].Strike)
	assert.Equal(t, 5050.0, profile.Strikes[1].Strike)
}

func TestComputeGEXZeroGammaFlip(t *testing.T) {
	// Put-heavy low strikes, call-heavy high strikes: the cumulative net
	// gamma starts negative and flips positive between 5000 and 5050.
	chain := []marketdata.Option{
		gexOpt("put", 4950, 0.004, 1000),
		gexOpt("put", 5000, 0.001, 500),
		gexOpt("call", 5050, 0.004, 1500),
		gexOpt("call", 5100, 0.002, 1000),
	}

	profile := ComputeGEX(chain)
	assert.Greater(t, profile.ZeroGamma, 5000.0)
	assert.LessOrEqual(t, profile.ZeroGamma, 5050.0)
}

func TestComputeGEXNoFlip(t *testing.T) {
	chain := []marketdata.Option{
		gexOpt("call", 5000, 0.002, 1000),
		gexOpt("call", 5050, 0.002, 1000),
	}

	profile := ComputeGEX(chain)
	assert.Equal(t, 0.0, profile.ZeroGamma)
}
