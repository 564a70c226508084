package marketdata

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubProvider counts calls and returns canned results or a fixed error.
type stubProvider struct {
	quote    *Quote
	chain    []Option
	err      error
	quoteCalls int
	chainCalls int
}

func (s *stubProvider) GetQuote(_ context.Context, _ string) (*Quote, error) {
	s.quoteCalls++
	if s.err != nil {
		return nil, s.err
	}
	return s.quote, nil
}

func (s *stubProvider) GetOptionChain(_ context.Context, _, _ string) ([]Option, error) {
	s.chainCalls++
	if s.err != nil {
		return nil, s.err
	}
	return s.chain, nil
}

func TestCircuitBreakerPassesThrough(t *testing.T) {
	stub := &stubProvider{
		quote: &Quote{Symbol: "SPX", Last: 5000},
		chain: []Option{{OptionType: "put", Strike: 4990}},
	}
	cb := NewCircuitBreakerProvider(stub, nil)

	quote, err := cb.GetQuote(context.Background(), "SPX")
	require.NoError(t, err)
	assert.Equal(t, 5000.0, quote.Last)

	chain, err := cb.GetOptionChain(context.Background(), "SPX", "2025-06-13")
	require.NoError(t, err)
	assert.Len(t, chain, 1)
}

func TestCircuitBreakerOpensAfterFailures(t *testing.T) {
	stub := &stubProvider{err: errors.New("connection refused")}
	cb := NewCircuitBreakerProviderWithSettings(stub, nil, CircuitBreakerSettings{
		MaxRequests:  1,
		Interval:     time.Minute,
		Timeout:      time.Minute,
		MinRequests:  3,
		FailureRatio: 0.6,
	})

	for i := 0; i < 3; i++ {
		_, err := cb.GetQuote(context.Background(), "SPX")
		require.Error(t, err)
	}
	assert.Equal(t, 3, stub.quoteCalls)

	// Tripped: subsequent calls fail fast without reaching the provider.
	_, err := cb.GetQuote(context.Background(), "SPX")
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, 3, stub.quoteCalls)
}
