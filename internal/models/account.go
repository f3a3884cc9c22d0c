package models

import "gorm.io/gorm"

// AccountType distinguishes brokerage accounts from cash accounts.
type AccountType string

const (
	AccountBroker AccountType = "BROKER"
	AccountBank   AccountType = "BANK"
)

// Account groups a user's holdings. Only BANK accounts carry a balance; the
// balance of a BROKER account is derived from its transactions.
type Account struct {
	gorm.Model
	UserID   string      `gorm:"index" json:"user_id"`
	Name     string      `json:"name"`
	Type     AccountType `gorm:"column:account_type" json:"account_type"`
	Currency string      `json:"currency"`
	Balance  float64     `json:"balance"`
}

// BalanceEntry is one row of a BANK account's append-only balance log.
type BalanceEntry struct {
	gorm.Model
	AccountID uint    `gorm:"index" json:"account_id"`
	Amount    float64 `json:"amount"`  // signed delta applied
	Balance   float64 `json:"balance"` // balance after applying Amount
}
