// Package resolver is the resolution orchestrator: it answers symbol searches
// from the local symbol table or by fanning out to the provider adapters, and
// serves quotes with cross-provider fallback and currency normalization.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"richjet-go/internal/models"
	"richjet-go/internal/providers"
	"richjet-go/internal/rates"
)

// SearchMode selects where a search is answered from.
type SearchMode string

const (
	// ModeLocal answers from the persisted symbol table only. The store is
	// already deduplicated, so no merge logic applies.
	ModeLocal SearchMode = "local"

	// ModeExpand fans out to every enabled provider ("load more").
	ModeExpand SearchMode = "expand"
)

// AllProvidersFailedError is returned by an expand search when no provider
// produced a usable result and at least one genuinely failed. Individual
// failures are otherwise absorbed; empty answers everywhere are ErrNoResults,
// not a failure.
type AllProvidersFailedError struct {
	Causes []error
}

func (e *AllProvidersFailedError) Error() string {
	msgs := make([]string, len(e.Causes))
	for i, c := range e.Causes {
		msgs[i] = c.Error()
	}
	return "all providers failed: " + strings.Join(msgs, "; ")
}

func (e *AllProvidersFailedError) Unwrap() []error { return e.Causes }

// NoQuoteFoundError is returned when every quote-capable provider was
// exhausted without a price.
type NoQuoteFoundError struct {
	Ticker string
}

func (e *NoQuoteFoundError) Error() string {
	return fmt.Sprintf("no quote found for %s", e.Ticker)
}

// Resolver coordinates the provider adapters, the local symbol table and the
// currency converter. The provider slice order is the configured priority and
// is authoritative for ranking and fallback.
type Resolver struct {
	logger    *zap.Logger
	db        *gorm.DB
	clients   []providers.Client
	converter *rates.Converter
}

// New creates a resolver. clients must be in configured priority order.
func New(logger *zap.Logger, db *gorm.DB, clients []providers.Client, converter *rates.Converter) *Resolver {
	return &Resolver{
		logger:    logger,
		db:        db,
		clients:   clients,
		converter: converter,
	}
}

// Search looks up symbols for a query in the requested mode.
func (r *Resolver) Search(ctx context.Context, query string, mode SearchMode) ([]models.Symbol, error) {
	if query == "" {
		return nil, nil
	}
	if mode == ModeExpand {
		return r.searchExpand(ctx, query)
	}
	return r.searchLocal(query)
}

// searchLocal answers from the persisted symbol table: substring match over
// ticker, name, ISIN and FIGI, excluding user-created symbols.
func (r *Resolver) searchLocal(query string) ([]models.Symbol, error) {
	pattern := "%" + query + "%"
	var symbols []models.Symbol
	err := r.db.
		Where("user_created = ?", false).
		Where("ticker LIKE ? OR name LIKE ? OR isin LIKE ? OR figi LIKE ?", pattern, pattern, pattern, pattern).
		Find(&symbols).Error
	if err != nil {
		return nil, fmt.Errorf("local symbol search failed: %w", err)
	}
	r.Rank(symbols)
	return symbols, nil
}

type searchBatch struct {
	provider string
	symbols  []models.Symbol
	err      error
}

// searchExpand fans out to all enabled providers concurrently and folds their
// results into one set keyed by ticker. Batches are folded as they arrive, so
// merge order across providers is nondeterministic; once a ticker is in the
// accumulator, later batches only fill its gaps (first-present-wins).
func (r *Resolver) searchExpand(ctx context.Context, query string) ([]models.Symbol, error) {
	batches := make(chan searchBatch, len(r.clients))
	var wg sync.WaitGroup

	for _, client := range r.clients {
		wg.Add(1)
		go func(client providers.Client) {
			defer wg.Done()
			symbols, err := client.SearchStock(ctx, query)
			batches <- searchBatch{provider: client.Name(), symbols: symbols, err: err}
		}(client)
	}

	go func() {
		wg.Wait()
		close(batches)
	}()

	merged := make(map[string]models.Symbol)
	var causes []error
	for batch := range batches {
		if batch.err != nil {
			r.logger.Warn("provider search failed",
				zap.String("provider", batch.provider),
				zap.String("query", query),
				zap.Error(batch.err),
			)
			// An empty answer is an answer, not a provider failure.
			if !errors.Is(batch.err, providers.ErrNoResults) {
				causes = append(causes, fmt.Errorf("%s: %w", batch.provider, batch.err))
			}
			continue
		}
		for _, symbol := range batch.symbols {
			if existing, ok := merged[symbol.Ticker]; ok {
				merged[symbol.Ticker] = existing.Merge(symbol)
			} else {
				merged[symbol.Ticker] = symbol
			}
		}
	}

	if len(merged) == 0 {
		if len(causes) == 0 {
			// Covers both "every provider answered empty" and "no
			// providers enabled".
			return nil, fmt.Errorf("%q: %w", query, providers.ErrNoResults)
		}
		return nil, &AllProvidersFailedError{Causes: causes}
	}

	symbols := make([]models.Symbol, 0, len(merged))
	for _, symbol := range merged {
		symbols = append(symbols, symbol)
	}
	r.Rank(symbols)
	return symbols, nil
}

// Rank sorts symbols into the stable display order: configured provider
// priority first, then all-letter tickers before tickers with other
// characters, then shorter tickers, then lexicographically. A short
// alphabetic ticker is more often the canonical instrument than a long
// alphanumeric ADR or warrant variant.
func (r *Resolver) Rank(symbols []models.Symbol) {
	sort.Slice(symbols, func(i, j int) bool {
		a, b := symbols[i], symbols[j]
		if pa, pb := r.priority(a.Source), r.priority(b.Source); pa != pb {
			return pa < pb
		}
		if la, lb := isAllLetters(a.Ticker), isAllLetters(b.Ticker); la != lb {
			return la
		}
		if len(a.Ticker) != len(b.Ticker) {
			return len(a.Ticker) < len(b.Ticker)
		}
		if c := strings.Compare(strings.ToUpper(a.Ticker), strings.ToUpper(b.Ticker)); c != 0 {
			return c < 0
		}
		return a.Ticker < b.Ticker
	})
}

func (r *Resolver) priority(source string) int {
	for i, client := range r.clients {
		if client.Name() == source {
			return i
		}
	}
	return len(r.clients)
}

func isAllLetters(s string) bool {
	for _, c := range s {
		if !unicode.IsLetter(c) {
			return false
		}
	}
	return s != ""
}

// Quote serves the current quote for a ticker in the caller's display
// currency. The day's persisted history point is consulted first; a fresh
// fetch is only made when it is missing or priceless, and a successful fetch
// is written back as the day's point.
func (r *Resolver) Quote(ctx context.Context, source, ticker, displayCurrency string) (models.Quote, error) {
	var quote models.Quote
	var havePoint bool

	day := time.Now().UTC().Format("2006-01-02")
	var point models.QuotePoint
	err := r.db.
		Where("ticker = ? AND day = ?", ticker, day).
		Order("created_at DESC").
		First(&point).Error
	if err == nil {
		quote = point.Quote()
		havePoint = true
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Quote{}, fmt.Errorf("quote history read failed: %w", err)
	}

	if !quote.HasPrice() {
		fetched, err := r.fetchQuote(ctx, source, ticker)
		if err != nil {
			if !havePoint {
				return models.Quote{}, err
			}
			// Degrade to the stale point rather than failing the request.
			r.logger.Warn("quote fetch failed, serving persisted point",
				zap.String("ticker", ticker),
				zap.Error(err),
			)
		} else {
			if fetched.HasPrice() {
				r.savePoint(day, fetched)
			}
			quote = quote.Merge(fetched)
		}
	}

	if displayCurrency != "" {
		quote.Current = r.converter.Convert(ctx, quote.Current, quote.Currency, displayCurrency)
		quote.PreviousClose = r.converter.Convert(ctx, quote.PreviousClose, quote.Currency, displayCurrency)
		quote.Currency = displayCurrency
	}
	return quote, nil
}

// fetchQuote asks the named source first, then falls back across the other
// enabled providers in priority order. Quote-incapable providers are skipped;
// every other failure is collected and absorbed until the list is exhausted.
func (r *Resolver) fetchQuote(ctx context.Context, source, ticker string) (models.Quote, error) {
	candidates := make([]providers.Client, 0, len(r.clients))
	for _, client := range r.clients {
		if client.Name() == source {
			candidates = append([]providers.Client{client}, candidates...)
		} else {
			candidates = append(candidates, client)
		}
	}

	for _, client := range candidates {
		quote, err := client.GetQuote(ctx, ticker)
		if err == nil {
			return quote, nil
		}
		if errors.Is(err, providers.ErrNotSupported) {
			continue
		}
		r.logger.Warn("provider quote failed",
			zap.String("provider", client.Name()),
			zap.String("ticker", ticker),
			zap.Error(err),
		)
	}
	return models.Quote{}, &NoQuoteFoundError{Ticker: ticker}
}

func (r *Resolver) savePoint(day string, quote models.Quote) {
	point := models.QuotePoint{
		Ticker:        quote.Ticker,
		Day:           day,
		Price:         quote.Current,
		PreviousClose: quote.PreviousClose,
		Currency:      quote.Currency,
	}
	if err := r.db.Create(&point).Error; err != nil {
		r.logger.Error("failed to persist quote point",
			zap.String("ticker", quote.Ticker),
			zap.Error(err),
		)
	}
}
