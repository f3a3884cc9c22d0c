package providers

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"richjet-go/internal/cache"
	"richjet-go/internal/config"
	"richjet-go/internal/models"
)

const (
	finnhubName    = "finnhub"
	finnhubBaseURL = "https://finnhub.io/api/v1"

	// Finnhub truncates long queries instead of rejecting them, which
	// produces garbage matches. Cap them ourselves.
	finnhubMaxQueryLen = 20
)

// Finnhub wraps the Finnhub stock API: search and quote.
type Finnhub struct {
	restClient
	apiKey   string
	searches *cache.Cache[[]models.Symbol]
	quotes   *cache.Cache[models.Quote]
}

var _ Client = (*Finnhub)(nil)

// NewFinnhub creates a Finnhub adapter.
func NewFinnhub(cfg *config.Provider, capacity int, logger *zap.Logger) (*Finnhub, error) {
	searches, err := cache.New[[]models.Symbol](capacity)
	if err != nil {
		return nil, err
	}
	quotes, err := cache.New[models.Quote](capacity)
	if err != nil {
		return nil, err
	}
	return &Finnhub{
		restClient: newRestClient(finnhubName, finnhubBaseURL, cfg, logger),
		apiKey:     cfg.ApiKey,
		searches:   searches,
		quotes:     quotes,
	}, nil
}

// Name returns the provider's configuration name.
func (c *Finnhub) Name() string { return finnhubName }

type finnhubSearchResponse struct {
	Result []struct {
		Symbol      string `json:"symbol"`
		Description string `json:"description"`
		Type        string `json:"type"`
	} `json:"result"`
}

// SearchStock looks up symbols matching the query on the US exchange.
func (c *Finnhub) SearchStock(ctx context.Context, query string) ([]models.Symbol, error) {
	if len(query) > finnhubMaxQueryLen {
		c.logger.Warn("search query too long", zap.String("provider", finnhubName), zap.String("query", query))
		return nil, ErrNoResults
	}

	return c.searches.GetOrCompute("search:"+query, func() ([]models.Symbol, error) {
		var result finnhubSearchResponse
		req := c.client.R().
			SetQueryParams(map[string]string{
				// The exchange hint improves result quality considerably.
				"q":        query,
				"exchange": "US",
				"token":    c.apiKey,
			}).
			SetResult(&result)

		if _, err := c.execute(ctx, "GET", "/search", req); err != nil {
			return nil, err
		}

		symbols := make([]models.Symbol, 0, len(result.Result))
		for _, r := range result.Result {
			if !isFinnhubType(r.Type) || !models.IsSupportedTicker(r.Symbol, r.Description) {
				c.logger.Debug("discarding result", zap.String("provider", finnhubName), zap.String("ticker", r.Symbol))
				continue
			}
			securityType, err := models.ParseSecurityType(r.Type)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", finnhubName, err)
			}
			symbol := models.Symbol{
				Ticker:       r.Symbol,
				Name:         r.Description,
				Currency:     "USD",
				SecurityType: securityType,
				Source:       finnhubName,
			}
			if models.IsValidISIN(query) {
				symbol.ISIN = query
			}
			symbols = append(symbols, symbol)
		}

		if len(symbols) == 0 {
			return nil, ErrNoResults
		}
		return symbols, nil
	})
}

func isFinnhubType(t string) bool {
	switch t {
	case "Common Stock", "COMMON STOCK", "ETF", "ETP":
		return true
	}
	return false
}

type finnhubQuoteResponse struct {
	Current       float64 `json:"c"`
	High          float64 `json:"h"`
	Low           float64 `json:"l"`
	Open          float64 `json:"o"`
	PreviousClose float64 `json:"pc"`
}

// GetQuote fetches the current quote for a ticker. Finnhub answers 200 with
// an all-zero payload for unknown tickers; that is ErrNoResults, not a price.
func (c *Finnhub) GetQuote(ctx context.Context, ticker string) (models.Quote, error) {
	return c.quotes.GetOrCompute("quote:"+ticker, func() (models.Quote, error) {
		var result finnhubQuoteResponse
		req := c.client.R().
			SetQueryParams(map[string]string{
				"symbol": ticker,
				"token":  c.apiKey,
			}).
			SetResult(&result)

		if _, err := c.execute(ctx, "GET", "/quote", req); err != nil {
			return models.Quote{}, err
		}

		if result.Current == 0 && result.PreviousClose == 0 {
			return models.Quote{}, ErrNoResults
		}
		return models.Quote{
			Ticker:        ticker,
			Current:       result.Current,
			PreviousClose: result.PreviousClose,
			Currency:      "USD",
		}, nil
	})
}
