package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"richjet-go/internal/config"
	"richjet-go/internal/database"
	"richjet-go/internal/ledger"
	"richjet-go/internal/models"
	"richjet-go/internal/rates"
	"richjet-go/internal/resolver"
)

// setupAPI wires the full handler stack over an in-memory database, with no
// market-data providers enabled.
func setupAPI(t *testing.T) (*http.ServeMux, *gorm.DB) {
	name := strings.ReplaceAll(t.Name(), "/", "_")
	db, err := database.NewDatabase(fmt.Sprintf("file:%s?mode=memory&cache=shared", name))
	assert.NoError(t, err)

	log := zap.NewNop()
	converter, err := rates.NewConverter(&config.Rates{}, 8, log)
	assert.NoError(t, err)

	apiHandler := NewAPIHandler(log, db, resolver.New(log, db, nil, converter), ledger.New(db, log))

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/search", apiHandler.SearchHandler)
	mux.HandleFunc("GET /api/quote/{source}/{ticker}", apiHandler.QuoteHandler)
	mux.HandleFunc("POST /api/symbols", apiHandler.CreateSymbolHandler)
	mux.HandleFunc("/api/watchlist", apiHandler.WatchlistHandler)
	mux.HandleFunc("/api/watchlist/{id}", apiHandler.WatchlistItemHandler)
	mux.HandleFunc("/api/transactions", apiHandler.TransactionsHandler)
	mux.HandleFunc("/api/transactions/{id}", apiHandler.TransactionHandler)
	mux.HandleFunc("PUT /api/transactions/{ticker}/account", apiHandler.ReassignAccountHandler)
	mux.HandleFunc("/api/accounts", apiHandler.AccountsHandler)
	mux.HandleFunc("POST /api/accounts/{id}/balance", apiHandler.AccountBalanceHandler)
	return mux, db
}

func doRequest(mux *http.ServeMux, method, path, user string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		payload, _ := json.Marshal(body)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if user != "" {
		req.Header.Set("X-User-Id", user)
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestMissingUserIsUnauthorized(t *testing.T) {
	mux, _ := setupAPI(t)

	for _, path := range []string{"/api/watchlist", "/api/transactions", "/api/accounts"} {
		rec := doRequest(mux, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}
}

func TestTransactionEndpoints(t *testing.T) {
	mux, db := setupAPI(t)
	symbol := models.Symbol{Ticker: "AAPL", Name: "Apple Inc", Currency: "USD"}
	assert.NoError(t, db.Create(&symbol).Error)

	post := func(body map[string]interface{}) *httptest.ResponseRecorder {
		return doRequest(mux, http.MethodPost, "/api/transactions", "user-1", body)
	}

	// Arrange: a position of 5 shares.
	rec := post(map[string]interface{}{
		"symbol_id": symbol.ID, "transaction_type": "BUY",
		"quantity": 5, "price": 100, "currency": "USD", "date": "2025-01-01",
	})
	assert.Equal(t, http.StatusCreated, rec.Code)

	// An oversell is a client error with the exact numbers in the detail.
	rec = post(map[string]interface{}{
		"symbol_id": symbol.ID, "transaction_type": "SELL",
		"quantity": 6, "price": 110, "currency": "USD", "date": "2025-01-02",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Available: 5")

	// A malformed date never reaches the ledger.
	rec = post(map[string]interface{}{
		"symbol_id": symbol.ID, "transaction_type": "BUY",
		"quantity": 1, "price": 100, "currency": "USD", "date": "01/02/2025",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Editing a transaction that does not exist is a 404.
	rec = doRequest(mux, http.MethodPut, "/api/transactions/999", "user-1", map[string]interface{}{
		"quantity": 1, "price": 100, "currency": "USD",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// The listing is newest-first.
	rec = post(map[string]interface{}{
		"symbol_id": symbol.ID, "transaction_type": "SELL",
		"quantity": 2, "price": 110, "currency": "USD", "date": "2025-01-03",
	})
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = doRequest(mux, http.MethodGet, "/api/transactions", "user-1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	var listed []models.Transaction
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	assert.Len(t, listed, 2)
	assert.Equal(t, models.TransactionSell, listed[0].Type)
}

func TestUserSymbolAndWatchlist(t *testing.T) {
	mux, _ := setupAPI(t)

	// Create a user symbol; it lands on the caller's watchlist.
	rec := doRequest(mux, http.MethodPost, "/api/symbols", "user-1", map[string]interface{}{
		"ticker": "MYFUND", "name": "My Private Fund", "currency": "CHF",
		"security_type": "COMMON_STOCK", "manual_price": 42.0,
	})
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = doRequest(mux, http.MethodGet, "/api/watchlist", "user-1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	var watchlist []models.Symbol
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &watchlist))
	assert.Len(t, watchlist, 1)
	assert.Equal(t, "MYFUND", watchlist[0].Ticker)
	if assert.NotNil(t, watchlist[0].ManualPrice) {
		assert.Equal(t, 42.0, *watchlist[0].ManualPrice)
	}

	// The manual price override lives on the watchlist link, per user.
	rec = doRequest(mux, http.MethodPut, fmt.Sprintf("/api/watchlist/%d", watchlist[0].ID), "user-1",
		map[string]interface{}{"price": 55.0})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(mux, http.MethodGet, "/api/watchlist", "user-1", nil)
	var repriced []models.Symbol
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &repriced))
	if assert.Len(t, repriced, 1) && assert.NotNil(t, repriced[0].ManualPrice) {
		assert.Equal(t, 55.0, *repriced[0].ManualPrice)
	}

	// Someone else's watchlist stays empty, and shared search never shows
	// user-created symbols.
	rec = doRequest(mux, http.MethodGet, "/api/watchlist", "user-2", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	var other []models.Symbol
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &other))
	assert.Empty(t, other)

	rec = doRequest(mux, http.MethodGet, "/api/search?q=MYFUND", "user-1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"count":0`)

	// Removing the item leaves the symbol row in place.
	symbolID := watchlist[0].ID
	rec = doRequest(mux, http.MethodDelete, fmt.Sprintf("/api/watchlist/%d", symbolID), "user-1", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doRequest(mux, http.MethodGet, "/api/watchlist", "user-1", nil)
	var after []models.Symbol
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &after))
	assert.Empty(t, after)

	// Setting a manual price on a removed item is a 404, not a silent no-op.
	rec = doRequest(mux, http.MethodPut, fmt.Sprintf("/api/watchlist/%d", symbolID), "user-1",
		map[string]interface{}{"price": 60.0})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Re-adding after removal must reuse the symbol row and succeed; the
	// removed link may not keep occupying the (user, symbol) key.
	rec = doRequest(mux, http.MethodPost, "/api/watchlist", "user-1", map[string]interface{}{
		"ticker": "MYFUND",
	})
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = doRequest(mux, http.MethodGet, "/api/watchlist", "user-1", nil)
	var readded []models.Symbol
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &readded))
	if assert.Len(t, readded, 1) {
		assert.Equal(t, symbolID, readded[0].ID)
	}
}

func TestExpandSearchWithoutProviders(t *testing.T) {
	mux, _ := setupAPI(t)

	rec := doRequest(mux, http.MethodGet, "/api/search?q=apple&mode=expand", "user-1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAccountEndpoints(t *testing.T) {
	mux, _ := setupAPI(t)

	rec := doRequest(mux, http.MethodPost, "/api/accounts", "user-1", map[string]interface{}{
		"name": "Savings", "account_type": "BANK", "currency": "USD",
	})
	assert.Equal(t, http.StatusCreated, rec.Code)
	var bank models.Account
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &bank))

	rec = doRequest(mux, http.MethodPost, "/api/accounts", "user-1", map[string]interface{}{
		"name": "Margin", "account_type": "HEDGE-FUND", "currency": "USD",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Deposits and withdrawals move the balance.
	balancePath := fmt.Sprintf("/api/accounts/%d/balance", bank.ID)
	rec = doRequest(mux, http.MethodPost, balancePath, "user-1", map[string]interface{}{"amount": 250.0})
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = doRequest(mux, http.MethodPost, balancePath, "user-1", map[string]interface{}{"amount": -100.0})
	assert.Equal(t, http.StatusOK, rec.Code)

	var updated models.Account
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	assert.Equal(t, 150.0, updated.Balance)

	// A BROKER account has no balance to move.
	rec = doRequest(mux, http.MethodPost, "/api/accounts", "user-1", map[string]interface{}{
		"name": "Broker", "account_type": "BROKER", "currency": "USD",
	})
	assert.Equal(t, http.StatusCreated, rec.Code)
	var broker models.Account
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &broker))

	rec = doRequest(mux, http.MethodPost, fmt.Sprintf("/api/accounts/%d/balance", broker.ID), "user-1",
		map[string]interface{}{"amount": 50.0})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Another user's account is invisible.
	rec = doRequest(mux, http.MethodPost, balancePath, "user-2", map[string]interface{}{"amount": 1.0})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
