package payoff

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalyticPOPInapplicable(t *testing.T) {
	tests := []struct {
		name                                 string
		spot, putK, callK, sigma, yearsToExp float64
	}{
		{"zero vol", 5000, 4990, 5050, 0, 0.01},
		{"negative vol", 5000, 4990, 5050, -0.2, 0.01},
		{"expired", 5000, 4990, 5050, 0.2, 0},
		{"zero spot", 0, 4990, 5050, 0.2, 0.01},
		{"zero put strike", 5000, 0, 5050, 0.2, 0.01},
		{"zero call strike", 5000, 4990, 0, 0.2, 0.01},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := AnalyticPOP(tt.spot, tt.putK, tt.callK, tt.sigma, tt.yearsToExp)
			assert.ErrorIs(t, err, ErrInapplicable)
		})
	}
}

func TestAnalyticPOPBounds(t *testing.T) {
	p, err := AnalyticPOP(5000, 4990, 5050, 0.15, 1.0/365)
	require.NoError(t, err)
	assert.Greater(t, p, 0.0)
	assert.Less(t, p, 100.0)
}

func TestAnalyticPOPWideStrangleNearsCertainty(t *testing.T) {
	// Strikes far outside any plausible same-day move.
	p, err := AnalyticPOP(5000, 3000, 7000, 0.10, 1.0/365)
	require.NoError(t, err)
	assert.Greater(t, p, 99.0)
}

func TestAnalyticPOPTighterStrikesLowerProbability(t *testing.T) {
	wide, err := AnalyticPOP(5000, 4900, 5100, 0.20, 1.0/365)
	require.NoError(t, err)
	tight, err := AnalyticPOP(5000, 4990, 5010, 0.20, 1.0/365)
	require.NoError(t, err)
	assert.Greater(t, wide, tight)
}

func TestYearsToExpiry(t *testing.T) {
	venue := time.UTC

	t.Run("morning of expiry", func(t *testing.T) {
		now := time.Date(2025, 6, 13, 10, 0, 0, 0, venue)
		years, err := YearsToExpiry(now, "2025-06-13", venue)
		require.NoError(t, err)
		// Six hours until the 16:00 close.
		assert.InDelta(t, 6.0/(24*365), years, 1e-12)
	})

	t.Run("after the close floors at zero", func(t *testing.T) {
		now := time.Date(2025, 6, 13, 17, 0, 0, 0, venue)
		years, err := YearsToExpiry(now, "2025-06-13", venue)
		require.NoError(t, err)
		assert.Equal(t, 0.0, years)
	})

	t.Run("bad date", func(t *testing.T) {
		_, err := YearsToExpiry(time.Now(), "13/06/2025", venue)
		assert.Error(t, err)
	})
}
