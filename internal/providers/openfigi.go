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
	openfigiName    = "openfigi"
	openfigiBaseURL = "https://api.openfigi.com"
)

// OpenFIGI wraps the OpenFIGI symbology API. It is search-only: FIGI is an
// identifier registry and has no price data, so GetQuote reports
// ErrNotSupported.
type OpenFIGI struct {
	restClient
	apiKey   string
	searches *cache.Cache[[]models.Symbol]
}

var _ Client = (*OpenFIGI)(nil)

// NewOpenFIGI creates an OpenFIGI adapter. The API key is optional; without
// one the public (lower) rate limits apply.
func NewOpenFIGI(cfg *config.Provider, capacity int, logger *zap.Logger) (*OpenFIGI, error) {
	searches, err := cache.New[[]models.Symbol](capacity)
	if err != nil {
		return nil, err
	}
	return &OpenFIGI{
		restClient: newRestClient(openfigiName, openfigiBaseURL, cfg, logger),
		apiKey:     cfg.ApiKey,
		searches:   searches,
	}, nil
}

// Name returns the provider's configuration name.
func (c *OpenFIGI) Name() string { return openfigiName }

type openfigiSearchResponse struct {
	Data []struct {
		Ticker       string `json:"ticker"`
		Name         string `json:"name"`
		SecurityType string `json:"securityType"`
		MarketSector string `json:"marketSector"`
		ExchCode     string `json:"exchCode"`
		FIGI         string `json:"figi"`
	} `json:"data"`
}

// SearchStock looks up equity symbols matching the query (ticker, name or
// ISIN). OpenFIGI serializes missing fields as the literal string "None";
// records with any such hole are discarded.
func (c *OpenFIGI) SearchStock(ctx context.Context, query string) ([]models.Symbol, error) {
	return c.searches.GetOrCompute("search:"+query, func() ([]models.Symbol, error) {
		var result openfigiSearchResponse
		req := c.client.R().
			SetHeader("Content-Type", "application/json").
			SetBody(map[string]string{"query": query}).
			SetResult(&result)
		if c.apiKey != "" {
			req.SetHeader("X-OPENFIGI-APIKEY", c.apiKey)
		}

		if _, err := c.execute(ctx, "POST", "/v3/search", req); err != nil {
			return nil, err
		}

		symbols := make([]models.Symbol, 0, len(result.Data))
		for _, r := range result.Data {
			if !isOpenfigiResult(r.MarketSector, r.SecurityType, []string{r.Ticker, r.Name, r.ExchCode, r.FIGI}) ||
				!models.IsSupportedTicker(r.Ticker, r.Name) {
				c.logger.Debug("discarding result", zap.String("provider", openfigiName), zap.String("ticker", r.Ticker))
				continue
			}
			securityType, err := models.ParseSecurityType(r.SecurityType)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", openfigiName, err)
			}
			marketSector, err := models.ParseMarketSector(r.MarketSector)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", openfigiName, err)
			}
			symbol := models.Symbol{
				Ticker:       r.Ticker,
				Name:         r.Name,
				Currency:     "USD",
				SecurityType: securityType,
				MarketSector: marketSector,
				Source:       openfigiName,
			}
			if models.IsValidFIGI(r.FIGI) {
				symbol.FIGI = r.FIGI
			}
			symbols = append(symbols, symbol)
		}

		if len(symbols) == 0 {
			return nil, ErrNoResults
		}
		return symbols, nil
	})
}

func isOpenfigiResult(marketSector, securityType string, fields []string) bool {
	if marketSector != "Equity" && marketSector != "EQUITY" {
		return false
	}
	switch securityType {
	case "Common Stock", "COMMON STOCK", "ETP", "ETF", "GDR":
	default:
		return false
	}
	for _, f := range fields {
		if f == "" || f == "None" {
			return false
		}
	}
	return true
}

// GetQuote is not implemented by OpenFIGI.
func (c *OpenFIGI) GetQuote(_ context.Context, _ string) (models.Quote, error) {
	return models.Quote{}, fmt.Errorf("%s: %w", openfigiName, ErrNotSupported)
}
