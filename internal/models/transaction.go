package models

import (
	"time"

	"gorm.io/gorm"
)

// TransactionType is the kind of ledger entry.
type TransactionType string

const (
	TransactionBuy          TransactionType = "BUY"
	TransactionSell         TransactionType = "SELL"
	TransactionDividend     TransactionType = "DIVIDEND"
	TransactionDividendCash TransactionType = "DIVIDEND-CASH"
)

// Valid reports whether the type is one of the four known kinds.
func (t TransactionType) Valid() bool {
	switch t {
	case TransactionBuy, TransactionSell, TransactionDividend, TransactionDividendCash:
		return true
	}
	return false
}

// Transaction is one ledger entry: a buy, sell or dividend recorded by a user
// against a symbol, optionally assigned to an account. A nil AccountID is an
// unassigned holding. Identity is immutable once created except for account
// reassignment.
type Transaction struct {
	gorm.Model
	UserID     string          `gorm:"index" json:"user_id"`
	SymbolID   uint            `gorm:"index" json:"symbol_id"`
	AccountID  *uint           `gorm:"index" json:"account_id,omitempty"`
	Quantity   float64         `json:"quantity"`
	Price      float64         `json:"price"`
	Commission float64         `json:"commission"`
	Currency   string          `json:"currency"`
	Type       TransactionType `gorm:"column:transaction_type" json:"transaction_type"`
	Date       time.Time       `gorm:"index" json:"date"`
}

// SignedQuantity is the share-count contribution of this entry when replaying
// a history: BUY and DIVIDEND add shares, SELL removes them, DIVIDEND-CASH
// never moves shares.
func (t Transaction) SignedQuantity() float64 {
	switch t.Type {
	case TransactionSell:
		return -t.Quantity
	case TransactionBuy, TransactionDividend:
		return t.Quantity
	}
	return 0
}
