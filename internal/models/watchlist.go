package models

import "gorm.io/gorm"

// WatchlistItem links a user to a symbol they track. A manual price set here
// overrides live quotes for that user's position valuation. Removal is
// permanent (hard delete): a lingering soft-deleted row would still occupy
// the (user, symbol) unique key and block re-adding the item.
type WatchlistItem struct {
	gorm.Model
	UserID      string   `gorm:"uniqueIndex:idx_watchlist_user_symbol" json:"user_id"`
	SymbolID    uint     `gorm:"uniqueIndex:idx_watchlist_user_symbol" json:"symbol_id"`
	ManualPrice *float64 `json:"manual_price,omitempty"`
}
