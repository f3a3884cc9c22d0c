// Package rates converts monetary amounts into the caller's display currency.
package rates

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"richjet-go/internal/cache"
	"richjet-go/internal/config"
)

const ratesBaseURL = "https://v6.exchangerate-api.com/v6"

// Converter converts amounts between currencies using a cached rate lookup.
// Rate-source failures never reach the caller: a transient FX outage must not
// block display of positions, so conversion degrades to the identity rate and
// the failure goes to the log only.
type Converter struct {
	client *resty.Client
	apiKey string
	rates  *cache.Cache[float64]
	logger *zap.Logger
}

// NewConverter creates a currency converter.
func NewConverter(cfg *config.Rates, capacity int, logger *zap.Logger) (*Converter, error) {
	rates, err := cache.New[float64](capacity)
	if err != nil {
		return nil, err
	}
	timeout := time.Duration(cfg.Timeout) * time.Second
	if cfg.Timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Converter{
		client: resty.New().SetBaseURL(ratesBaseURL).SetTimeout(timeout),
		apiKey: cfg.ApiKey,
		rates:  rates,
		logger: logger,
	}, nil
}

// Convert returns amount expressed in the target currency. A zero amount, a
// missing source currency or an identical pair passes through unchanged.
func (c *Converter) Convert(ctx context.Context, amount float64, from, to string) float64 {
	from = strings.ToUpper(strings.TrimSpace(from))
	to = strings.ToUpper(strings.TrimSpace(to))
	if amount == 0 || from == "" || from == to {
		return amount
	}
	return amount * c.rate(ctx, from, to)
}

type pairResponse struct {
	ConversionRate float64 `json:"conversion_rate"`
}

// rate returns the conversion rate for a normalized currency pair, falling
// back to 1.0 on any rate-source failure.
func (c *Converter) rate(ctx context.Context, from, to string) float64 {
	rate, err := c.rates.GetOrCompute(from+"/"+to, func() (float64, error) {
		var result pairResponse
		resp, err := c.client.R().
			SetContext(ctx).
			SetResult(&result).
			Get(fmt.Sprintf("/%s/pair/%s/%s", c.apiKey, from, to))
		if err != nil {
			return 0, err
		}
		if resp.IsError() {
			return 0, fmt.Errorf("rate lookup failed with status %d", resp.StatusCode())
		}
		if result.ConversionRate == 0 {
			return 0, fmt.Errorf("rate lookup returned no conversion rate")
		}
		return result.ConversionRate, nil
	})
	if err != nil {
		c.logger.Error("failed to fetch exchange rate, using identity rate",
			zap.String("from", from),
			zap.String("to", to),
			zap.Error(err),
		)
		return 1.0
	}
	return rate
}
