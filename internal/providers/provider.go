// Package providers contains the adapters for the external market-data
// sources. Every adapter exposes the same capability pair (symbol search,
// quote fetch) behind the Client interface; a source that structurally lacks
// one of the two reports ErrNotSupported instead of guessing.
package providers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"richjet-go/internal/config"
	"richjet-go/internal/models"
)

var (
	// ErrNoResults means the source answered successfully but had nothing
	// for the query. An empty answer is an answer, not an UnavailableError.
	ErrNoResults = errors.New("no results")

	// ErrNotSupported means the operation is not implemented by this
	// provider (e.g. a symbology-only source has no quote capability).
	ErrNotSupported = errors.New("operation not supported by provider")
)

// UnavailableError reports a provider that could not be reached or answered
// with a non-2xx status. The orchestrator collects these instead of failing
// the whole request.
type UnavailableError struct {
	Provider string
	Status   int
	Err      error
}

func (e *UnavailableError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: provider unavailable (status %d)", e.Provider, e.Status)
	}
	return fmt.Sprintf("%s: provider unavailable: %v", e.Provider, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// Client is the uniform capability wrapped around one external data source.
type Client interface {
	// Name returns the provider's configuration name.
	Name() string

	// SearchStock looks up symbols matching the query. Inadmissible
	// tickers are filtered out; an empty admissible set is ErrNoResults.
	SearchStock(ctx context.Context, query string) ([]models.Symbol, error)

	// GetQuote fetches the current quote for a ticker.
	GetQuote(ctx context.Context, ticker string) (models.Quote, error)
}

// restClient is the shared transport for all adapters: one resty client with
// an end-to-end timeout per call and a token-bucket limiter per source.
type restClient struct {
	name    string
	client  *resty.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

func newRestClient(name, baseURL string, cfg *config.Provider, logger *zap.Logger) restClient {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if cfg.Timeout <= 0 {
		timeout = 5 * time.Second
	}
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout)

	return restClient{
		name:    name,
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimitBurst),
		logger:  logger,
	}
}

// execute runs a prepared request, mapping transport failures, timeouts and
// non-2xx statuses to UnavailableError.
func (c *restClient) execute(ctx context.Context, method, url string, req *resty.Request) (*resty.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &UnavailableError{Provider: c.name, Err: err}
	}

	c.logger.Debug("executing provider request",
		zap.String("provider", c.name),
		zap.String("method", method),
		zap.String("url", url),
	)

	resp, err := req.SetContext(ctx).Execute(method, url)
	if err != nil {
		return nil, &UnavailableError{Provider: c.name, Err: err}
	}
	if resp.IsError() {
		return nil, &UnavailableError{Provider: c.name, Status: resp.StatusCode()}
	}
	return resp, nil
}
