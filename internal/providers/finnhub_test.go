package providers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"richjet-go/internal/cache"
	"richjet-go/internal/models"
)

// testRestClient builds the shared transport against a test server, with the
// rate limiter wide open.
func testRestClient(name, baseURL string) restClient {
	return restClient{
		name:    name,
		client:  resty.New().SetBaseURL(baseURL),
		limiter: rate.NewLimiter(rate.Inf, 1),
		logger:  zap.NewNop(),
	}
}

func setupFinnhub(t *testing.T, handler http.Handler) (*Finnhub, *httptest.Server) {
	server := httptest.NewServer(handler)

	searches, err := cache.New[[]models.Symbol](8)
	assert.NoError(t, err)
	quotes, err := cache.New[models.Quote](8)
	assert.NoError(t, err)

	return &Finnhub{
		restClient: testRestClient(finnhubName, server.URL),
		apiKey:     "test_api_key",
		searches:   searches,
		quotes:     quotes,
	}, server
}

func TestFinnhubSearchStock(t *testing.T) {
	t.Run("FiltersAndMapsResults", func(t *testing.T) {
		// Arrange
		mockResponse := `{"result": [
			{"symbol": "AAPL", "description": "APPLE INC", "type": "Common Stock"},
			{"symbol": "AAPL.SW", "description": "APPLE INC", "type": "Common Stock"},
			{"symbol": "QQQ", "description": "INVESCO QQQ TRUST", "type": "ETP"},
			{"symbol": "AAPL240621C", "description": "AAPL CALL", "type": "Option"}
		]}`
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/search", r.URL.Path)
			assert.Equal(t, "AAPL", r.URL.Query().Get("q"))
			assert.Equal(t, "US", r.URL.Query().Get("exchange"))
			assert.Equal(t, "test_api_key", r.URL.Query().Get("token"))
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(mockResponse))
		})
		client, server := setupFinnhub(t, handler)
		defer server.Close()

		// Act
		symbols, err := client.SearchStock(context.Background(), "AAPL")

		// Assert: the suffixed ticker and the unsupported type are gone.
		assert.NoError(t, err)
		assert.Len(t, symbols, 2)
		assert.Equal(t, "AAPL", symbols[0].Ticker)
		assert.Equal(t, models.SecurityCommonStock, symbols[0].SecurityType)
		assert.Equal(t, "USD", symbols[0].Currency)
		assert.Equal(t, finnhubName, symbols[0].Source)
		assert.Equal(t, models.SecurityETP, symbols[1].SecurityType)
	})

	t.Run("EmptyPayloadIsNoResults", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"result": []}`))
		})
		client, server := setupFinnhub(t, handler)
		defer server.Close()

		_, err := client.SearchStock(context.Background(), "NOPE")
		assert.ErrorIs(t, err, ErrNoResults)
	})

	t.Run("NonOKStatusIsUnavailable", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		})
		client, server := setupFinnhub(t, handler)
		defer server.Close()

		_, err := client.SearchStock(context.Background(), "AAPL")
		var unavailable *UnavailableError
		assert.ErrorAs(t, err, &unavailable)
		assert.Equal(t, http.StatusTooManyRequests, unavailable.Status)
	})

	t.Run("LongQueryIsNoResults", func(t *testing.T) {
		client, server := setupFinnhub(t, http.NotFoundHandler())
		defer server.Close()

		_, err := client.SearchStock(context.Background(), strings.Repeat("A", 21))
		assert.ErrorIs(t, err, ErrNoResults)
	})

	t.Run("ISINQueryIsCarriedOntoResults", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"result": [{"symbol": "AAPL", "description": "APPLE INC", "type": "Common Stock"}]}`))
		})
		client, server := setupFinnhub(t, handler)
		defer server.Close()

		symbols, err := client.SearchStock(context.Background(), "US0378331005")
		assert.NoError(t, err)
		assert.Equal(t, "US0378331005", symbols[0].ISIN)
	})
}

func TestFinnhubGetQuote(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/quote", r.URL.Path)
			assert.Equal(t, "AAPL", r.URL.Query().Get("symbol"))
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"c": 190.5, "h": 192.1, "l": 189.0, "o": 189.9, "pc": 188.2}`))
		})
		client, server := setupFinnhub(t, handler)
		defer server.Close()

		quote, err := client.GetQuote(context.Background(), "AAPL")
		assert.NoError(t, err)
		assert.Equal(t, models.Quote{Ticker: "AAPL", Current: 190.5, PreviousClose: 188.2, Currency: "USD"}, quote)
	})

	t.Run("AllZeroPayloadIsNoResults", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"c": 0, "pc": 0}`))
		})
		client, server := setupFinnhub(t, handler)
		defer server.Close()

		_, err := client.GetQuote(context.Background(), "NOPE")
		assert.ErrorIs(t, err, ErrNoResults)
	})

	t.Run("CachesSuccessfulQuote", func(t *testing.T) {
		requests := 0
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requests++
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"c": 190.5, "pc": 188.2}`))
		})
		client, server := setupFinnhub(t, handler)
		defer server.Close()

		_, err := client.GetQuote(context.Background(), "AAPL")
		assert.NoError(t, err)
		_, err = client.GetQuote(context.Background(), "AAPL")
		assert.NoError(t, err)
		assert.Equal(t, 1, requests)
	})
}
