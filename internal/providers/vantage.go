package providers

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"richjet-go/internal/cache"
	"richjet-go/internal/config"
	"richjet-go/internal/models"
)

const (
	vantageName    = "vantage"
	vantageBaseURL = "https://www.alphavantage.co"
)

// Vantage wraps the Alpha Vantage API: search and quote.
type Vantage struct {
	restClient
	apiKey   string
	searches *cache.Cache[[]models.Symbol]
	quotes   *cache.Cache[models.Quote]
}

var _ Client = (*Vantage)(nil)

// NewVantage creates an Alpha Vantage adapter.
func NewVantage(cfg *config.Provider, capacity int, logger *zap.Logger) (*Vantage, error) {
	searches, err := cache.New[[]models.Symbol](capacity)
	if err != nil {
		return nil, err
	}
	quotes, err := cache.New[models.Quote](capacity)
	if err != nil {
		return nil, err
	}
	return &Vantage{
		restClient: newRestClient(vantageName, vantageBaseURL, cfg, logger),
		apiKey:     cfg.ApiKey,
		searches:   searches,
		quotes:     quotes,
	}, nil
}

// Name returns the provider's configuration name.
func (c *Vantage) Name() string { return vantageName }

// Alpha Vantage numbers its JSON keys.
type vantageSearchResponse struct {
	BestMatches []struct {
		Symbol   string `json:"1. symbol"`
		Name     string `json:"2. name"`
		Type     string `json:"3. type"`
		Region   string `json:"4. region"`
		Currency string `json:"8. currency"`
	} `json:"bestMatches"`
}

// SearchStock looks up symbols matching the query.
func (c *Vantage) SearchStock(ctx context.Context, query string) ([]models.Symbol, error) {
	return c.searches.GetOrCompute("search:"+query, func() ([]models.Symbol, error) {
		var result vantageSearchResponse
		req := c.client.R().
			SetQueryParams(map[string]string{
				"function": "SYMBOL_SEARCH",
				"keywords": query,
				"apikey":   c.apiKey,
			}).
			SetResult(&result)

		if _, err := c.execute(ctx, "GET", "/query", req); err != nil {
			return nil, err
		}

		symbols := make([]models.Symbol, 0, len(result.BestMatches))
		for _, r := range result.BestMatches {
			if !isVantageType(r.Type) || !models.IsSupportedTicker(r.Symbol, r.Name) {
				c.logger.Debug("discarding result", zap.String("provider", vantageName), zap.String("ticker", r.Symbol))
				continue
			}
			securityType, err := models.ParseSecurityType(r.Type)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", vantageName, err)
			}
			symbol := models.Symbol{
				Ticker:       r.Symbol,
				Name:         r.Name,
				Currency:     r.Currency,
				SecurityType: securityType,
				Source:       vantageName,
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

func isVantageType(t string) bool {
	return t == "Equity" || t == "EQUITY" || t == "ETF"
}

type vantageQuoteResponse struct {
	GlobalQuote struct {
		Symbol        string `json:"01. symbol"`
		Price         string `json:"05. price"`
		PreviousClose string `json:"08. previous close"`
	} `json:"Global Quote"`
}

// GetQuote fetches the current quote for a ticker. An exhausted API key or an
// unknown ticker both come back 200 with an empty "Global Quote" object.
func (c *Vantage) GetQuote(ctx context.Context, ticker string) (models.Quote, error) {
	return c.quotes.GetOrCompute("quote:"+ticker, func() (models.Quote, error) {
		var result vantageQuoteResponse
		req := c.client.R().
			SetQueryParams(map[string]string{
				"function": "GLOBAL_QUOTE",
				"symbol":   ticker,
				"apikey":   c.apiKey,
			}).
			SetResult(&result)

		if _, err := c.execute(ctx, "GET", "/query", req); err != nil {
			return models.Quote{}, err
		}

		if result.GlobalQuote.Price == "" {
			return models.Quote{}, ErrNoResults
		}
		current, err := strconv.ParseFloat(result.GlobalQuote.Price, 64)
		if err != nil {
			return models.Quote{}, fmt.Errorf("%s: invalid price %q: %w", vantageName, result.GlobalQuote.Price, err)
		}
		previousClose, err := strconv.ParseFloat(result.GlobalQuote.PreviousClose, 64)
		if err != nil {
			return models.Quote{}, fmt.Errorf("%s: invalid previous close %q: %w", vantageName, result.GlobalQuote.PreviousClose, err)
		}

		return models.Quote{
			Ticker:        ticker,
			Current:       current,
			PreviousClose: previousClose,
			Currency:      "USD",
		}, nil
	})
}
