// Package ledger enforces the ordering and quantity invariants over a user's
// transaction history. Every validation re-reads the persisted history for
// the (user, symbol, account) scope: ledger state is never cached across
// requests.
package ledger

import (
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"richjet-go/internal/models"
)

var (
	// ErrQuantityRequired rejects a DIVIDEND without a share count.
	ErrQuantityRequired = errors.New("quantity must be greater than 0 for dividend transactions")

	// ErrPriceRequired rejects a DIVIDEND-CASH without an amount.
	ErrPriceRequired = errors.New("price must be greater than 0 for dividend cash transactions")
)

// InvalidTransactionTypeError rejects a transaction type outside the four
// known kinds.
type InvalidTransactionTypeError struct {
	Type models.TransactionType
}

func (e *InvalidTransactionTypeError) Error() string {
	return fmt.Sprintf("invalid transaction type: %q", string(e.Type))
}

// NoPriorBuyError rejects a dividend for a scope that never had a BUY.
type NoPriorBuyError struct {
	SymbolID uint
}

func (e *NoPriorBuyError) Error() string {
	return fmt.Sprintf("no BUY transaction found for symbol %d", e.SymbolID)
}

// InsufficientSharesError rejects a SELL exceeding the shares held in scope.
// It carries the numbers so a client can render a precise message.
type InsufficientSharesError struct {
	Available float64
	Requested float64
}

func (e *InsufficientSharesError) Error() string {
	return fmt.Sprintf("not enough shares to sell. Available: %g, Trying to sell: %g", e.Available, e.Requested)
}

// AccountMismatchError reports an account reference the caller cannot use:
// it does not belong to them, or a reassignment names the same account on
// both sides.
type AccountMismatchError struct {
	AccountID *uint
	UserID    string
	Same      bool
}

func (e *AccountMismatchError) Error() string {
	if e.Same {
		return "from_account and to_account cannot be the same"
	}
	if e.AccountID == nil {
		return fmt.Sprintf("account not found for user %q", e.UserID)
	}
	return fmt.Sprintf("account %d not found for user %q", *e.AccountID, e.UserID)
}

// Ledger validates and persists transactions.
type Ledger struct {
	db     *gorm.DB
	logger *zap.Logger
}

// New creates a ledger engine over the persistence collaborator.
func New(db *gorm.DB, logger *zap.Logger) *Ledger {
	return &Ledger{db: db, logger: logger}
}

// Create validates a prospective transaction against the latest persisted
// history and inserts it, assigning its identity.
func (l *Ledger) Create(transaction *models.Transaction) error {
	if err := l.validate(transaction, 0); err != nil {
		return err
	}
	if err := l.db.Create(transaction).Error; err != nil {
		return fmt.Errorf("failed to create transaction: %w", err)
	}
	l.logger.Info("transaction created",
		zap.Uint("id", transaction.ID),
		zap.String("type", string(transaction.Type)),
		zap.Float64("quantity", transaction.Quantity),
	)
	return nil
}

// Update re-validates an edited transaction with itself excluded from the
// replay, so that the edit is judged against the state as if it had not yet
// happened. Only quantity, price, commission and account assignment are
// mutable.
func (l *Ledger) Update(transaction *models.Transaction) error {
	if transaction.ID == 0 {
		return fmt.Errorf("transaction id is required")
	}

	var existing models.Transaction
	err := l.db.Where("id = ? AND user_id = ?", transaction.ID, transaction.UserID).First(&existing).Error
	if err != nil {
		return fmt.Errorf("transaction not found: %w", err)
	}
	// Identity fields never change on update; the edit is reinserted at its
	// original position by date.
	transaction.SymbolID = existing.SymbolID
	transaction.Date = existing.Date
	transaction.CreatedAt = existing.CreatedAt
	if transaction.Type == "" {
		transaction.Type = existing.Type
	}

	if err := l.validate(transaction, transaction.ID); err != nil {
		return err
	}

	updates := map[string]interface{}{
		"quantity":   transaction.Quantity,
		"price":      transaction.Price,
		"commission": transaction.Commission,
		"account_id": transaction.AccountID,
	}
	if err := l.db.Model(&existing).Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to update transaction: %w", err)
	}
	return nil
}

// Delete removes a transaction unconditionally. No re-validation is run: a
// delete can leave a SELL standing ahead of its covering BUY, a documented
// simplification. Deleting an absent id is a no-op.
func (l *Ledger) Delete(userID string, id uint) error {
	err := l.db.Where("user_id = ? AND id = ?", userID, id).Delete(&models.Transaction{}).Error
	if err != nil {
		return fmt.Errorf("failed to delete transaction: %w", err)
	}
	return nil
}

// ReassignAccount bulk-moves the user's transactions for a ticker from one
// account to another. A nil from moves the unassigned holdings. Returns the
// number of moved rows.
func (l *Ledger) ReassignAccount(userID, ticker string, from, to *uint) (int64, error) {
	if equalAccountRef(from, to) {
		return 0, &AccountMismatchError{Same: true}
	}
	if from != nil {
		if err := l.checkAccountOwnership(userID, from); err != nil {
			return 0, err
		}
	}
	if to != nil {
		if err := l.checkAccountOwnership(userID, to); err != nil {
			return 0, err
		}
	}

	var symbol models.Symbol
	if err := l.db.Where("ticker = ?", ticker).First(&symbol).Error; err != nil {
		return 0, fmt.Errorf("symbol %q not found: %w", ticker, err)
	}

	query := l.db.Model(&models.Transaction{}).
		Where("user_id = ? AND symbol_id = ?", userID, symbol.ID)
	if from != nil {
		query = query.Where("account_id = ?", *from)
	} else {
		query = query.Where("account_id IS NULL")
	}

	result := query.Update("account_id", to)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to reassign account: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// validate runs the full invariant chain. excludeID is the identity of the
// transaction being edited (0 on create): it is left out of the replay so an
// edit is not rejected by its own prior value.
func (l *Ledger) validate(transaction *models.Transaction, excludeID uint) error {
	if !transaction.Type.Valid() {
		return &InvalidTransactionTypeError{Type: transaction.Type}
	}

	switch transaction.Type {
	case models.TransactionDividend:
		if transaction.Quantity <= 0 {
			return ErrQuantityRequired
		}
		transaction.Price = 0 // not applicable
	case models.TransactionDividendCash:
		if transaction.Price <= 0 {
			return ErrPriceRequired
		}
		transaction.Quantity = 0 // not applicable
	}

	if transaction.AccountID != nil {
		if err := l.checkAccountOwnership(transaction.UserID, transaction.AccountID); err != nil {
			return err
		}
	}

	switch transaction.Type {
	case models.TransactionDividend, models.TransactionDividendCash:
		return l.requirePriorBuy(transaction)
	case models.TransactionSell:
		return l.checkSellCoverage(transaction, excludeID)
	}
	return nil
}

// requirePriorBuy enforces that dividends only land on positions that were
// actually bought in the same scope.
func (l *Ledger) requirePriorBuy(transaction *models.Transaction) error {
	var count int64
	query := l.scope(transaction).Where("transaction_type = ?", models.TransactionBuy)
	if err := query.Count(&count).Error; err != nil {
		return fmt.Errorf("failed to read transaction history: %w", err)
	}
	if count == 0 {
		return &NoPriorBuyError{SymbolID: transaction.SymbolID}
	}
	return nil
}

// checkSellCoverage replays the scoped history chronologically and rejects a
// SELL exceeding the accumulated remaining quantity. For an edit, the history
// is truncated at the edited transaction's own position.
func (l *Ledger) checkSellCoverage(transaction *models.Transaction, excludeID uint) error {
	var history []models.Transaction
	err := l.scope(transaction).
		Where("transaction_type IN ?", []models.TransactionType{
			models.TransactionBuy,
			models.TransactionSell,
			models.TransactionDividend,
		}).
		Find(&history).Error
	if err != nil {
		return fmt.Errorf("failed to read transaction history: %w", err)
	}

	// Strict order: trade date, then insertion order as tie-break.
	sort.Slice(history, func(i, j int) bool {
		if !history[i].Date.Equal(history[j].Date) {
			return history[i].Date.Before(history[j].Date)
		}
		return history[i].ID < history[j].ID
	})

	if excludeID != 0 {
		for i, t := range history {
			if t.ID == excludeID {
				history = history[:i]
				break
			}
		}
	}

	var remaining float64
	for _, t := range history {
		remaining += t.SignedQuantity()
	}
	if remaining < transaction.Quantity {
		return &InsufficientSharesError{Available: remaining, Requested: transaction.Quantity}
	}
	return nil
}

// scope builds the query for the (user, symbol, account) triple the ledger
// invariants are evaluated over.
func (l *Ledger) scope(transaction *models.Transaction) *gorm.DB {
	query := l.db.Model(&models.Transaction{}).
		Where("user_id = ? AND symbol_id = ?", transaction.UserID, transaction.SymbolID)
	if transaction.AccountID != nil {
		return query.Where("account_id = ?", *transaction.AccountID)
	}
	return query.Where("account_id IS NULL")
}

func (l *Ledger) checkAccountOwnership(userID string, accountID *uint) error {
	var count int64
	err := l.db.Model(&models.Account{}).
		Where("id = ? AND user_id = ?", *accountID, userID).
		Count(&count).Error
	if err != nil {
		return fmt.Errorf("failed to read accounts: %w", err)
	}
	if count == 0 {
		return &AccountMismatchError{AccountID: accountID, UserID: userID}
	}
	return nil
}

func equalAccountRef(a, b *uint) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
