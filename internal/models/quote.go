package models

import "gorm.io/gorm"

// Quote is a snapshot of an instrument's price. Zero values mean "no data
// yet": a quote assembled from a partial source (a history point without a
// previous close, a scrape without a currency) keeps its gaps until merged
// with another partial quote.
type Quote struct {
	Ticker        string  `json:"ticker"`
	Current       float64 `json:"current"`
	PreviousClose float64 `json:"previous_close"`
	Currency      string  `json:"currency,omitempty"`
}

// Merge fills the gaps of this quote from another one, first-present-wins.
func (q Quote) Merge(other Quote) Quote {
	if q.Ticker == "" {
		q.Ticker = other.Ticker
	}
	if q.Current == 0 {
		q.Current = other.Current
	}
	if q.PreviousClose == 0 {
		q.PreviousClose = other.PreviousClose
	}
	if q.Currency == "" {
		q.Currency = other.Currency
	}
	return q
}

// HasPrice reports whether the quote carries a usable current price.
func (q Quote) HasPrice() bool {
	return q.Current > 0
}

// QuotePoint is a persisted quote observation. Points are keyed by calendar
// day so that the day's first successful fetch serves later requests without
// another upstream call; the in-process cache has no time-based expiry, the
// Day column is what bounds staleness.
type QuotePoint struct {
	gorm.Model
	Ticker        string  `gorm:"index:idx_quote_ticker_day"`
	Day           string  `gorm:"index:idx_quote_ticker_day"` // YYYY-MM-DD
	Price         float64
	PreviousClose float64
	Currency      string
}

// Quote projects a persisted point back into a quote value.
func (p QuotePoint) Quote() Quote {
	return Quote{
		Ticker:        p.Ticker,
		Current:       p.Price,
		PreviousClose: p.PreviousClose,
		Currency:      p.Currency,
	}
}
