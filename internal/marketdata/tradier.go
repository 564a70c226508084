package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	productionBaseURL = "https://api.tradier.com/v1"
	sandboxBaseURL    = "https://sandbox.tradier.com/v1"

	defaultTimeout = 15 * time.Second
)

// APIError represents a non-2xx response from the market-data API.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d: %s", e.Status, e.Body)
}

// TradierClient fetches quotes and option chains from the Tradier market-data
// API. It implements Provider.
type TradierClient struct {
	client  *http.Client
	logger  *logrus.Logger
	apiKey  string
	baseURL string
}

var _ Provider = (*TradierClient)(nil)

// NewTradierClient creates a market-data client. Pass sandbox=true to target
// the paper endpoint.
func NewTradierClient(apiKey string, sandbox bool, logger *logrus.Logger) *TradierClient {
	base := productionBaseURL
	if sandbox {
		base = sandboxBaseURL
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &TradierClient{
		client:  &http.Client{Timeout: defaultTimeout},
		logger:  logger,
		apiKey:  apiKey,
		baseURL: base,
	}
}

// WithBaseURL overrides the API base URL; used by tests with httptest servers.
func (t *TradierClient) WithBaseURL(baseURL string) *TradierClient {
	t.baseURL = baseURL
	return t
}

// singleOrArray decodes JSON fields the API returns as either a single
// object or an array of objects.
type singleOrArray[T any] []T

func (s *singleOrArray[T]) UnmarshalJSON(data []byte) error {
	var many []T
	if err := json.Unmarshal(data, &many); err == nil {
		*s = many
		return nil
	}
	var one T
	if err := json.Unmarshal(data, &one); err != nil {
		return err
	}
	*s = []T{one}
	return nil
}

type quotesResponse struct {
	Quotes struct {
		Quote singleOrArray[Quote] `json:"quote"`
	} `json:"quotes"`
}

type chainResponse struct {
	Options struct {
		Option singleOrArray[Option] `json:"option"`
	} `json:"options"`
}

// GetQuote retrieves the current underlying quote for a symbol.
func (t *TradierClient) GetQuote(ctx context.Context, symbol string) (*Quote, error) {
	params := url.Values{}
	params.Set("symbols", symbol)
	params.Set("greeks", "false")

	var resp quotesResponse
	if err := t.get(ctx, "/markets/quotes?"+params.Encode(), &resp); err != nil {
		return nil, err
	}
	if len(resp.Quotes.Quote) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoQuote, symbol)
	}
	q := resp.Quotes.Quote[0]
	return &q, nil
}

// GetOptionChain retrieves the option chain for a symbol and expiration,
// greeks included.
func (t *TradierClient) GetOptionChain(ctx context.Context, symbol, expiration string) ([]Option, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("expiration", expiration)
	params.Set("greeks", "true")

	var resp chainResponse
	if err := t.get(ctx, "/markets/options/chains?"+params.Encode(), &resp); err != nil {
		return nil, err
	}
	if len(resp.Options.Option) == 0 {
		return nil, fmt.Errorf("%w: %s %s", ErrEmptyChain, symbol, expiration)
	}
	return []Option(resp.Options.Option), nil
}

func (t *TradierClient) get(ctx context.Context, endpoint string, response interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL+endpoint, http.NoBody)
	if err != nil {
		return err
	}
	req.Header.Add("Authorization", "Bearer "+t.apiKey)
	req.Header.Add("Accept", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			t.logger.WithError(cerr).Warn("failed to close response body")
		}
	}()

	if resp.StatusCode != http.StatusOK {
		body, rerr := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if rerr != nil {
			return &APIError{Status: resp.StatusCode, Body: "failed to read error body"}
		}
		return &APIError{Status: resp.StatusCode, Body: string(body)}
	}

	dec := json.NewDecoder(resp.Body)
	if err := dec.Decode(response); err != nil && err != io.EOF {
		return err
	}
	return nil
}
