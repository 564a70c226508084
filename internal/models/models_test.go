package models

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirectionSign(t *testing.T) {
	assert.Equal(t, 1.0, DirectionLong.Sign())
	assert.Equal(t, -1.0, DirectionShort.Sign())
}

func TestEnumValidity(t *testing.T) {
	assert.True(t, OptionCall.Valid())
	assert.True(t, OptionPut.Valid())
	assert.False(t, OptionType("straddle").Valid())

	assert.True(t, StrategyIronCondor.Valid())
	assert.True(t, StrategyVerticalSpread.Valid())
	assert.False(t, StrategyType("butterfly").Valid())

	assert.True(t, DirectionLong.Valid())
	assert.False(t, Direction("flat").Valid())
}

func TestRawPnLPoints(t *testing.T) {
	short := Leg{Direction: DirectionShort, EntryPrice: 0.50}
	long := Leg{Direction: DirectionLong, EntryPrice: 0.50}

	// Shorts gain when price falls, longs when it rises.
	assert.InDelta(t, 0.30, short.RawPnLPoints(0.20), 1e-9)
	assert.InDelta(t, -0.30, long.RawPnLPoints(0.20), 1e-9)
	assert.InDelta(t, -0.25, short.RawPnLPoints(0.75), 1e-9)
	assert.InDelta(t, 0.25, long.RawPnLPoints(0.75), 1e-9)
	// A worthless expiry returns the full premium to the short.
	assert.InDelta(t, 0.50, short.RawPnLPoints(0), 1e-9)
}

func TestNewTradeID(t *testing.T) {
	now := time.Date(2025, 6, 13, 14, 30, 0, 0, time.UTC)
	id := NewTradeID(StrategyIronCondor, now)

	assert.True(t, strings.HasPrefix(id, "IRON_CONDOR_20250613T143000_"), id)
	assert.NotEqual(t, id, NewTradeID(StrategyIronCondor, now))
}

func TestNewLegID(t *testing.T) {
	id := NewLegID("TRADE1", OptionPut, 4990)
	assert.True(t, strings.HasPrefix(id, "TRADE1_PUT_4990_"), id)
}

func TestLegValidate(t *testing.T) {
	valid := Leg{
		LegID:      "L1",
		TradeID:    "T1",
		Strike:     4990,
		OptionType: OptionPut,
		Direction:  DirectionShort,
		EntryPrice: 0.58,
		Status:     LegOpen,
	}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*Leg)
	}{
		{"missing ids", func(l *Leg) { l.LegID = "" }},
		{"bad option type", func(l *Leg) { l.OptionType = "swap" }},
		{"bad direction", func(l *Leg) { l.Direction = "sideways" }},
		{"zero strike", func(l *Leg) { l.Strike = 0 }},
		{"open with exit price", func(l *Leg) { v := 0.1; l.ExitPrice = &v }},
		{"closed without exit price", func(l *Leg) { l.Status = LegClosed }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := valid
			tt.mutate(&l)
			assert.Error(t, l.Validate())
		})
	}
}

func TestTradeValidate(t *testing.T) {
	valid := Trade{
		TradeID:        "T1",
		Symbol:         "SPX",
		StrategyType:   StrategyIronCondor,
		ExpirationDate: "2025-06-13",
		EntryTime:      time.Now(),
		EntryPrice:     -0.98,
		Status:         TradeActive,
	}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*Trade)
	}{
		{"missing id", func(tr *Trade) { tr.TradeID = "" }},
		{"missing symbol", func(tr *Trade) { tr.Symbol = "" }},
		{"bad strategy", func(tr *Trade) { tr.StrategyType = "calendar" }},
		{"bad expiration", func(tr *Trade) { tr.ExpirationDate = "06/13/2025" }},
		{"closed without exit time", func(tr *Trade) { tr.Status = TradeClosed }},
		{"active with exit fields", func(tr *Trade) { v := 1.0; tr.ExitPrice = &v }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := valid
			tt.mutate(&tr)
			assert.Error(t, tr.Validate())
		})
	}
}
