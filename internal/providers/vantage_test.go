package providers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"richjet-go/internal/cache"
	"richjet-go/internal/models"
)

func setupVantage(t *testing.T, handler http.Handler) (*Vantage, *httptest.Server) {
	server := httptest.NewServer(handler)

	searches, err := cache.New[[]models.Symbol](8)
	assert.NoError(t, err)
	quotes, err := cache.New[models.Quote](8)
	assert.NoError(t, err)

	return &Vantage{
		restClient: testRestClient(vantageName, server.URL),
		apiKey:     "test_api_key",
		searches:   searches,
		quotes:     quotes,
	}, server
}

func TestVantageSearchStock(t *testing.T) {
	t.Run("MapsNumberedKeysAndKeepsCurrency", func(t *testing.T) {
		mockResponse := `{"bestMatches": [
			{"1. symbol": "SAP", "2. name": "SAP SE", "3. type": "Equity", "4. region": "Frankfurt", "8. currency": "EUR"},
			{"1. symbol": "SAP.LON", "2. name": "SAP SE", "3. type": "Equity", "4. region": "United Kingdom", "8. currency": "GBP"},
			{"1. symbol": "SAPGF", "2. name": "SAP SE Bond", "3. type": "Bond", "4. region": "United States", "8. currency": "USD"}
		]}`
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/query", r.URL.Path)
			assert.Equal(t, "SYMBOL_SEARCH", r.URL.Query().Get("function"))
			assert.Equal(t, "sap", r.URL.Query().Get("keywords"))
			assert.Equal(t, "test_api_key", r.URL.Query().Get("apikey"))
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(mockResponse))
		})
		client, server := setupVantage(t, handler)
		defer server.Close()

		symbols, err := client.SearchStock(context.Background(), "sap")

		assert.NoError(t, err)
		assert.Len(t, symbols, 1)
		assert.Equal(t, "SAP", symbols[0].Ticker)
		assert.Equal(t, "EUR", symbols[0].Currency)
		assert.Equal(t, models.SecurityCommonStock, symbols[0].SecurityType)
		assert.Equal(t, vantageName, symbols[0].Source)
	})

	t.Run("NoMatchesIsNoResults", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"bestMatches": []}`))
		})
		client, server := setupVantage(t, handler)
		defer server.Close()

		_, err := client.SearchStock(context.Background(), "zzzz")
		assert.ErrorIs(t, err, ErrNoResults)
	})
}

func TestVantageGetQuote(t *testing.T) {
	t.Run("ParsesStringPrices", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "GLOBAL_QUOTE", r.URL.Query().Get("function"))
			assert.Equal(t, "AAPL", r.URL.Query().Get("symbol"))
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"Global Quote":
				{"01. symbol": "AAPL", "05. price": "190.5000", "08. previous close": "188.2000"}}`))
		})
		client, server := setupVantage(t, handler)
		defer server.Close()

		quote, err := client.GetQuote(context.Background(), "AAPL")
		assert.NoError(t, err)
		assert.Equal(t, models.Quote{Ticker: "AAPL", Current: 190.5, PreviousClose: 188.2, Currency: "USD"}, quote)
	})

	t.Run("EmptyGlobalQuoteIsNoResults", func(t *testing.T) {
		// An exhausted key and an unknown ticker look identical on the wire.
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"Global Quote": {}}`))
		})
		client, server := setupVantage(t, handler)
		defer server.Close()

		_, err := client.GetQuote(context.Background(), "ZZZZ")
		assert.ErrorIs(t, err, ErrNoResults)
	})
}
