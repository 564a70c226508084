package marketdata

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wfarrell/condortrack/internal/models"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *TradierClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewTradierClient("test-key", true, nil).WithBaseURL(srv.URL)
}

func TestGetQuote(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "/markets/quotes", r.URL.Path)
		assert.Equal(t, "SPX", r.URL.Query().Get("symbols"))
		fmt.Fprint(w, `{"quotes":{"quote":{"symbol":"SPX","last":5000.25,"open":4990,"high":5010,"low":4985,"close":4995,"volume":123456}}}`)
	})

	quote, err := client.GetQuote(context.Background(), "SPX")
	require.NoError(t, err)
	assert.Equal(t, "SPX", quote.Symbol)
	assert.Equal(t, 5000.25, quote.Last)
	assert.Equal(t, int64(123456), quote.Volume)
}

func TestGetQuoteArrayResponse(t *testing.T) {
	// The API returns an array when multiple symbols are requested; the
	// decoder must accept both shapes.
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"quotes":{"quote":[{"symbol":"SPX","last":5000},{"symbol":"SPY","last":500}]}}`)
	})

	quote, err := client.GetQuote(context.Background(), "SPX")
	require.NoError(t, err)
	assert.Equal(t, "SPX", quote.Symbol)
}

func TestGetQuoteEmpty(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"quotes":{"quote":[]}}`)
	})

	_, err := client.GetQuote(context.Background(), "NOPE")
	assert.ErrorIs(t, err, ErrNoQuote)
}

func TestGetOptionChain(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/markets/options/chains", r.URL.Path)
		assert.Equal(t, "2025-06-13", r.URL.Query().Get("expiration"))
		assert.Equal(t, "true", r.URL.Query().Get("greeks"))
		fmt.Fprint(w, `{"options":{"option":[
			{"symbol":"SPXW250613P04990000","option_type":"put","strike":4990,"bid":0.55,"ask":0.61,
			 "open_interest":1200,"greeks":{"delta":-0.10,"gamma":0.002,"theta":-0.45,"mid_iv":0.22}},
			{"symbol":"SPXW250613C05050000","option_type":"call","strike":5050,"bid":0.64,"ask":0.70,
			 "open_interest":900,"greeks":{"delta":0.098,"gamma":0.0018,"theta":-0.40,"mid_iv":0.19}}
		]}}`)
	})

	chain, err := client.GetOptionChain(context.Background(), "SPX", "2025-06-13")
	require.NoError(t, err)
	require.Len(t, chain, 2)
	assert.Equal(t, 4990.0, chain[0].Strike)
	require.NotNil(t, chain[0].Greeks)
	assert.Equal(t, -0.10, chain[0].Greeks.Delta)
	assert.Equal(t, models.OptionCall, chain[1].Type())
}

func TestGetOptionChainEmpty(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"options":{"option":[]}}`)
	})

	_, err := client.GetOptionChain(context.Background(), "SPX", "2025-06-13")
	assert.ErrorIs(t, err, ErrEmptyChain)
}

func TestAPIError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, "invalid token")
	})

	_, err := client.GetQuote(context.Background(), "SPX")
	require.Error(t, err)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Contains(t, apiErr.Body, "invalid token")
}

func TestOptionMid(t *testing.T) {
	tests := []struct {
		name     string
		bid, ask float64
		want     float64
		wantNaN  bool
	}{
		{name: "normal market", bid: 0.55, ask: 0.61, want: 0.58},
		{name: "zero ask", bid: 0.55, ask: 0, wantNaN: true},
		{name: "negative bid", bid: -0.05, ask: 0.10, wantNaN: true},
		{name: "crossed market", bid: 0.70, ask: 0.61, wantNaN: true},
		{name: "zero bid is a valid market", bid: 0, ask: 0.10, want: 0.05},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := Option{Bid: tt.bid, Ask: tt.ask}
			got := o.Mid()
			if tt.wantNaN {
				assert.True(t, math.IsNaN(got))
				return
			}
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestMidMap(t *testing.T) {
	chain := []Option{
		{OptionType: "put", Strike: 4990, Bid: 0.55, Ask: 0.61},
		{OptionType: "call", Strike: 5050, Bid: 0.64, Ask: 0.70},
		{OptionType: "call", Strike: 5060, Bid: 0.10, Ask: 0}, // no usable mid
		{OptionType: "warrant", Strike: 5000, Bid: 1, Ask: 2}, // unknown type
	}

	m := MidMap(chain)
	require.Len(t, m, 2)
	assert.InDelta(t, 0.58, m[models.ChainKey{Strike: 4990, OptionType: models.OptionPut}], 1e-9)
	assert.InDelta(t, 0.67, m[models.ChainKey{Strike: 5050, OptionType: models.OptionCall}], 1e-9)
}
