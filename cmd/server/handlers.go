package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"richjet-go/internal/ledger"
	"richjet-go/internal/models"
	"richjet-go/internal/providers"
	"richjet-go/internal/resolver"
)

// APIHandler holds dependencies for the API endpoints.
type APIHandler struct {
	log      *zap.Logger
	db       *gorm.DB
	resolver *resolver.Resolver
	ledger   *ledger.Ledger
}

// NewAPIHandler creates a new APIHandler.
func NewAPIHandler(log *zap.Logger, db *gorm.DB, res *resolver.Resolver, led *ledger.Ledger) *APIHandler {
	return &APIHandler{log: log, db: db, resolver: res, ledger: led}
}

// session is the caller identity supplied by the auth collaborator in front
// of this service. The service itself never authenticates.
type session struct {
	UserID   string
	Currency string
}

func (h *APIHandler) session(r *http.Request) (session, bool) {
	s := session{
		UserID:   r.Header.Get("X-User-Id"),
		Currency: r.Header.Get("X-Display-Currency"),
	}
	if s.Currency == "" {
		s.Currency = "USD"
	}
	return s, s.UserID != ""
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"detail": err.Error()})
}

// ledgerStatus maps a ledger rejection to an HTTP status. Invariant
// violations are client errors; anything else is on us.
func ledgerStatus(err error) int {
	var (
		invalidType  *ledger.InvalidTransactionTypeError
		noPriorBuy   *ledger.NoPriorBuyError
		insufficient *ledger.InsufficientSharesError
		mismatch     *ledger.AccountMismatchError
	)
	switch {
	case errors.As(err, &invalidType),
		errors.As(err, &noPriorBuy),
		errors.As(err, &insufficient),
		errors.As(err, &mismatch),
		errors.Is(err, ledger.ErrQuantityRequired),
		errors.Is(err, ledger.ErrPriceRequired):
		return http.StatusBadRequest
	case errors.Is(err, gorm.ErrRecordNotFound):
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

// SearchHandler answers GET /api/search?q=...&mode=local|expand.
func (h *APIHandler) SearchHandler(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	mode := resolver.SearchMode(r.URL.Query().Get("mode"))
	if mode == "" {
		mode = resolver.ModeLocal
	}

	symbols, err := h.resolver.Search(r.Context(), query, mode)
	if err != nil {
		if errors.Is(err, providers.ErrNoResults) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		var allFailed *resolver.AllProvidersFailedError
		if errors.As(err, &allFailed) {
			writeError(w, http.StatusBadGateway, err)
			return
		}
		h.log.Error("search failed", zap.String("query", query), zap.Error(err))
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":   len(symbols),
		"results": symbols,
	})
}

// QuoteHandler answers GET /api/quote/{source}/{ticker}, converting the quote
// into the session's display currency.
func (h *APIHandler) QuoteHandler(w http.ResponseWriter, r *http.Request) {
	s, _ := h.session(r)
	source := r.PathValue("source")
	ticker := r.PathValue("ticker")

	quote, err := h.resolver.Quote(r.Context(), source, ticker, s.Currency)
	if err != nil {
		var notFound *resolver.NoQuoteFoundError
		if errors.As(err, &notFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		h.log.Error("quote failed", zap.String("ticker", ticker), zap.Error(err))
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, quote)
}

// CreateSymbolHandler answers POST /api/symbols: a user-created symbol that
// joins the caller's watchlist but is excluded from shared search.
func (h *APIHandler) CreateSymbolHandler(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, errors.New("missing user"))
		return
	}

	var symbol models.Symbol
	if err := json.NewDecoder(r.Body).Decode(&symbol); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	symbol.ID = 0
	symbol.UserCreated = true
	if symbol.Picture == "" {
		symbol.Picture = symbol.PictureURL()
	}

	if err := h.db.Create(&symbol).Error; err != nil {
		h.log.Error("failed to create symbol", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	item := models.WatchlistItem{UserID: s.UserID, SymbolID: symbol.ID, ManualPrice: symbol.ManualPrice}
	if err := h.db.Create(&item).Error; err != nil {
		h.log.Error("failed to create watchlist item", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusCreated, symbol)
}

// WatchlistHandler answers GET and POST /api/watchlist.
func (h *APIHandler) WatchlistHandler(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, errors.New("missing user"))
		return
	}

	switch r.Method {
	case http.MethodGet:
		var symbols []models.Symbol
		err := h.db.
			Select("symbols.*, watchlist_items.manual_price AS manual_price").
			Joins("JOIN watchlist_items ON watchlist_items.symbol_id = symbols.id").
			Where("watchlist_items.user_id = ?", s.UserID).
			Find(&symbols).Error
		if err != nil {
			h.log.Error("failed to read watchlist", zap.Error(err))
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, symbols)

	case http.MethodPost:
		var symbol models.Symbol
		if err := json.NewDecoder(r.Body).Decode(&symbol); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		// Reuse the deduplicated symbol row when the ticker is known.
		var existing models.Symbol
		err := h.db.Where("ticker = ?", symbol.Ticker).First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			if symbol.Picture == "" {
				symbol.Picture = symbol.PictureURL()
			}
			if err := h.db.Create(&symbol).Error; err != nil {
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			existing = symbol
		} else if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}

		item := models.WatchlistItem{UserID: s.UserID, SymbolID: existing.ID}
		if err := h.db.Create(&item).Error; err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusCreated, existing)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// WatchlistItemHandler answers PUT and DELETE /api/watchlist/{id}. PUT sets
// or clears the manual price override.
func (h *APIHandler) WatchlistItemHandler(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, errors.New("missing user"))
		return
	}
	symbolID, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	switch r.Method {
	case http.MethodPut:
		var body struct {
			Price *float64 `json:"price"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		result := h.db.Model(&models.WatchlistItem{}).
			Where("user_id = ? AND symbol_id = ?", s.UserID, symbolID).
			Update("manual_price", body.Price)
		if result.Error != nil {
			writeError(w, http.StatusInternalServerError, result.Error)
			return
		}
		if result.RowsAffected == 0 {
			writeError(w, http.StatusNotFound, errors.New("watchlist item not found"))
			return
		}
		writeJSON(w, http.StatusOK, body)

	case http.MethodDelete:
		// Hard delete: a soft-deleted row would keep occupying the
		// (user, symbol) unique key and block re-adding the item.
		err := h.db.Unscoped().
			Where("user_id = ? AND symbol_id = ?", s.UserID, symbolID).
			Delete(&models.WatchlistItem{}).Error
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// transactionRequest is the wire form of a transaction write.
type transactionRequest struct {
	SymbolID   uint    `json:"symbol_id"`
	AccountID  *uint   `json:"account_id"`
	Quantity   float64 `json:"quantity"`
	Price      float64 `json:"price"`
	Commission float64 `json:"commission"`
	Currency   string  `json:"currency"`
	Type       string  `json:"transaction_type"`
	Date       string  `json:"date"` // YYYY-MM-DD
}

func (req *transactionRequest) toModel(userID string) (models.Transaction, error) {
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		return models.Transaction{}, err
	}
	return models.Transaction{
		UserID:     userID,
		SymbolID:   req.SymbolID,
		AccountID:  req.AccountID,
		Quantity:   req.Quantity,
		Price:      req.Price,
		Commission: req.Commission,
		Currency:   req.Currency,
		Type:       models.TransactionType(req.Type),
		Date:       date,
	}, nil
}

// TransactionsHandler answers GET and POST /api/transactions.
func (h *APIHandler) TransactionsHandler(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, errors.New("missing user"))
		return
	}

	switch r.Method {
	case http.MethodGet:
		var transactions []models.Transaction
		err := h.db.Where("user_id = ?", s.UserID).
			Order("date DESC, id DESC").
			Find(&transactions).Error
		if err != nil {
			h.log.Error("failed to read transactions", zap.Error(err))
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, transactions)

	case http.MethodPost:
		var req transactionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		transaction, err := req.toModel(s.UserID)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if err := h.ledger.Create(&transaction); err != nil {
			writeError(w, ledgerStatus(err), err)
			return
		}
		writeJSON(w, http.StatusCreated, transaction)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// TransactionHandler answers PUT and DELETE /api/transactions/{id}.
func (h *APIHandler) TransactionHandler(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, errors.New("missing user"))
		return
	}
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	switch r.Method {
	case http.MethodPut:
		var req transactionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		transaction := models.Transaction{
			UserID:     s.UserID,
			AccountID:  req.AccountID,
			Quantity:   req.Quantity,
			Price:      req.Price,
			Commission: req.Commission,
			Currency:   req.Currency,
			Type:       models.TransactionType(req.Type),
		}
		transaction.ID = uint(id)
		if err := h.ledger.Update(&transaction); err != nil {
			writeError(w, ledgerStatus(err), err)
			return
		}
		writeJSON(w, http.StatusOK, transaction)

	case http.MethodDelete:
		if err := h.ledger.Delete(s.UserID, uint(id)); err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// ReassignAccountHandler answers PUT /api/transactions/{ticker}/account,
// bulk-moving a ticker's transactions between accounts.
func (h *APIHandler) ReassignAccountHandler(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, errors.New("missing user"))
		return
	}

	var body struct {
		FromAccount *uint `json:"from_account"`
		ToAccount   *uint `json:"to_account"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	moved, err := h.ledger.ReassignAccount(s.UserID, r.PathValue("ticker"), body.FromAccount, body.ToAccount)
	if err != nil {
		writeError(w, ledgerStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"moved": moved})
}

// AccountsHandler answers GET and POST /api/accounts.
func (h *APIHandler) AccountsHandler(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, errors.New("missing user"))
		return
	}

	switch r.Method {
	case http.MethodGet:
		var accounts []models.Account
		if err := h.db.Where("user_id = ?", s.UserID).Find(&accounts).Error; err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, accounts)

	case http.MethodPost:
		var account models.Account
		if err := json.NewDecoder(r.Body).Decode(&account); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		account.ID = 0
		account.UserID = s.UserID
		if account.Type != models.AccountBroker && account.Type != models.AccountBank {
			writeError(w, http.StatusBadRequest, errors.New("invalid account type"))
			return
		}
		if err := h.db.Create(&account).Error; err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusCreated, account)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// AccountBalanceHandler answers POST /api/accounts/{id}/balance: applies a
// signed amount to a BANK account and appends to its balance log.
func (h *APIHandler) AccountBalanceHandler(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, errors.New("missing user"))
		return
	}
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var body struct {
		Amount float64 `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var account models.Account
	if err := h.db.Where("id = ? AND user_id = ?", id, s.UserID).First(&account).Error; err != nil {
		writeError(w, http.StatusNotFound, errors.New("account not found"))
		return
	}
	if account.Type != models.AccountBank {
		writeError(w, http.StatusBadRequest, errors.New("only BANK accounts carry a balance"))
		return
	}

	err = h.db.Transaction(func(tx *gorm.DB) error {
		account.Balance += body.Amount
		if err := tx.Save(&account).Error; err != nil {
			return err
		}
		entry := models.BalanceEntry{AccountID: account.ID, Amount: body.Amount, Balance: account.Balance}
		return tx.Create(&entry).Error
	})
	if err != nil {
		h.log.Error("failed to update balance", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}
