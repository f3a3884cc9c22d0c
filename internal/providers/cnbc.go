package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"richjet-go/internal/cache"
	"richjet-go/internal/config"
	"richjet-go/internal/models"
)

const (
	cnbcName      = "cnbc"
	cnbcQuoteURL  = "https://quote.cnbc.com/quote-html-webservice/quote.htm"
	cnbcLookupURL = "https://symlookup.cnbc.com/symlookup.do"
)

// CNBC wraps the CNBC symbol-lookup and quote services. Lookup and quote
// live on different hosts, so the adapter keeps full URLs instead of a base.
type CNBC struct {
	restClient
	lookupURL string
	quoteURL  string
	searches  *cache.Cache[[]models.Symbol]
	quotes    *cache.Cache[models.Quote]
}

var _ Client = (*CNBC)(nil)

// NewCNBC creates a CNBC adapter. The service needs no API key.
func NewCNBC(cfg *config.Provider, capacity int, logger *zap.Logger) (*CNBC, error) {
	searches, err := cache.New[[]models.Symbol](capacity)
	if err != nil {
		return nil, err
	}
	quotes, err := cache.New[models.Quote](capacity)
	if err != nil {
		return nil, err
	}
	return &CNBC{
		restClient: newRestClient(cnbcName, "", cfg, logger),
		lookupURL:  cnbcLookupURL,
		quoteURL:   cnbcQuoteURL,
		searches:   searches,
		quotes:     quotes,
	}, nil
}

// Name returns the provider's configuration name.
func (c *CNBC) Name() string { return cnbcName }

type cnbcLookupEntry struct {
	SymbolName  string `json:"symbolName"`
	CompanyName string `json:"companyName"`
	IssueType   string `json:"issueType"`
	CountryCode string `json:"countryCode"`
}

// SearchStock looks up symbols by ticker prefix. The first element of the
// lookup payload is a result-count header row, not a symbol.
func (c *CNBC) SearchStock(ctx context.Context, query string) ([]models.Symbol, error) {
	return c.searches.GetOrCompute("search:"+query, func() ([]models.Symbol, error) {
		var result []cnbcLookupEntry
		req := c.client.R().
			SetQueryParams(map[string]string{
				"prefix": query,
				"output": "json",
			}).
			SetResult(&result)

		if _, err := c.execute(ctx, "GET", c.lookupURL, req); err != nil {
			return nil, err
		}

		if len(result) <= 1 {
			return nil, ErrNoResults
		}

		entries := result[1:]
		symbols := make([]models.Symbol, 0, len(entries))
		for _, r := range entries {
			if !models.IsSupportedTicker(r.SymbolName, r.CompanyName) {
				c.logger.Debug("discarding result", zap.String("provider", cnbcName), zap.String("ticker", r.SymbolName))
				continue
			}
			securityType, err := models.ParseSecurityType(r.IssueType)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", cnbcName, err)
			}
			symbols = append(symbols, models.Symbol{
				Ticker:       strings.ToUpper(r.SymbolName),
				Name:         r.CompanyName,
				Currency:     "USD",
				SecurityType: securityType,
				Source:       cnbcName,
			})
		}

		if len(symbols) == 0 {
			return nil, ErrNoResults
		}
		return symbols, nil
	})
}

type cnbcQuote struct {
	Last               string `json:"last"`
	PreviousDayClosing string `json:"previous_day_closing"`
	CurrencyCode       string `json:"currencyCode"`
}

type cnbcQuoteResponse struct {
	QuickQuoteResult struct {
		// One symbol comes back as an object, several as an array.
		QuickQuote json.RawMessage `json:"QuickQuote"`
	} `json:"QuickQuoteResult"`
}

// GetQuote fetches the current quote for a ticker.
func (c *CNBC) GetQuote(ctx context.Context, ticker string) (models.Quote, error) {
	return c.quotes.GetOrCompute("quote:"+ticker, func() (models.Quote, error) {
		var result cnbcQuoteResponse
		req := c.client.R().
			SetQueryParams(map[string]string{
				"symbols": ticker,
				"output":  "json",
			}).
			SetResult(&result)

		if _, err := c.execute(ctx, "GET", c.quoteURL, req); err != nil {
			return models.Quote{}, err
		}

		quote, ok := decodeCNBCQuote(result.QuickQuoteResult.QuickQuote)
		if !ok {
			return models.Quote{}, ErrNoResults
		}

		current, err := strconv.ParseFloat(quote.Last, 64)
		if err != nil {
			return models.Quote{}, fmt.Errorf("%s: invalid price %q: %w", cnbcName, quote.Last, err)
		}
		previousClose, err := strconv.ParseFloat(quote.PreviousDayClosing, 64)
		if err != nil {
			return models.Quote{}, fmt.Errorf("%s: invalid previous close %q: %w", cnbcName, quote.PreviousDayClosing, err)
		}

		return models.Quote{
			Ticker:        strings.ToUpper(ticker),
			Current:       current,
			PreviousClose: previousClose,
			Currency:      quote.CurrencyCode,
		}, nil
	})
}

func decodeCNBCQuote(raw json.RawMessage) (cnbcQuote, bool) {
	if len(raw) == 0 {
		return cnbcQuote{}, false
	}
	var one cnbcQuote
	if err := json.Unmarshal(raw, &one); err == nil && one.Last != "" {
		return one, true
	}
	var many []cnbcQuote
	if err := json.Unmarshal(raw, &many); err == nil && len(many) > 0 && many[0].Last != "" {
		return many[0], true
	}
	return cnbcQuote{}, false
}
