package models

import (
	"fmt"
	"regexp"
	"strings"

	"gorm.io/gorm"
)

// SecurityType classifies an instrument.
type SecurityType string

const (
	SecurityCommonStock SecurityType = "COMMON_STOCK"
	SecurityETP         SecurityType = "ETP"
	SecurityIndex       SecurityType = "INDEX"
	SecurityGDR         SecurityType = "GDR"
	SecurityCrypto      SecurityType = "CRYPTO"
	SecurityBond        SecurityType = "BOND"
)

// MarketSector is the broad market classification used by symbology providers.
type MarketSector string

const (
	SectorCommodity   MarketSector = "COMMODITY"
	SectorCorporate   MarketSector = "CORPORATE"
	SectorCurrency    MarketSector = "CURRENCY"
	SectorEquity      MarketSector = "EQUITY"
	SectorGovernment  MarketSector = "GOVERNMENT"
	SectorIndex       MarketSector = "INDEX"
	SectorMoneyMarket MarketSector = "MONEY_MARKET"
	SectorMortgage    MarketSector = "MORTGAGE"
	SectorMunicipal   MarketSector = "MUNICIPAL"
	SectorPreferred   MarketSector = "PREFERRED"
)

// UnknownEnumValueError reports a vendor vocabulary value that has no mapping
// into our enums. It is a hard error: silently dropping it would hide a vendor
// contract change.
type UnknownEnumValueError struct {
	Enum  string
	Value string
}

func (e *UnknownEnumValueError) Error() string {
	return fmt.Sprintf("unknown %s value: %q", e.Enum, e.Value)
}

// securityTypeAliases maps the heterogeneous vendor vocabularies onto
// SecurityType. Lookups are case-insensitive.
var securityTypeAliases = map[string]SecurityType{
	"common stock":    SecurityCommonStock,
	"equity":          SecurityCommonStock,
	"stock":           SecurityCommonStock,
	"etf":             SecurityETP,
	"etp":             SecurityETP,
	"index":           SecurityIndex,
	"equity index":    SecurityIndex,
	"commodity index": SecurityIndex,
	"gdr":             SecurityGDR,
	"crypto":          SecurityCrypto,
	"cryptocurrency":  SecurityCrypto,
	"bond":            SecurityBond,
}

// marketSectorAliases maps vendor market-sector codes (OpenFIGI short codes
// included) onto MarketSector. Lookups are case-insensitive.
var marketSectorAliases = map[string]MarketSector{
	"comdty":       SectorCommodity,
	"commodity":    SectorCommodity,
	"corp":         SectorCorporate,
	"corporate":    SectorCorporate,
	"curncy":       SectorCurrency,
	"currency":     SectorCurrency,
	"equity":       SectorEquity,
	"govt":         SectorGovernment,
	"government":   SectorGovernment,
	"index":        SectorIndex,
	"m-mkt":        SectorMoneyMarket,
	"money market": SectorMoneyMarket,
	"mtge":         SectorMortgage,
	"mortgage":     SectorMortgage,
	"muni":         SectorMunicipal,
	"municipal":    SectorMunicipal,
	"pfd":          SectorPreferred,
	"preferred":    SectorPreferred,
}

// ParseSecurityType normalizes a vendor security-type string.
func ParseSecurityType(value string) (SecurityType, error) {
	if t, ok := securityTypeAliases[strings.ToLower(strings.TrimSpace(value))]; ok {
		return t, nil
	}
	return "", &UnknownEnumValueError{Enum: "security type", Value: value}
}

// ParseMarketSector normalizes a vendor market-sector code.
func ParseMarketSector(value string) (MarketSector, error) {
	if s, ok := marketSectorAliases[strings.ToLower(strings.TrimSpace(value))]; ok {
		return s, nil
	}
	return "", &UnknownEnumValueError{Enum: "market sector", Value: value}
}

// leveragedPattern matches the naming convention of leveraged and short
// products ("3X SHORT ...", "2X LONG ...", "LS 5X ...") which we never track.
var leveragedPattern = regexp.MustCompile(`(?i)\b\d+X\s+(SHORT|LONG)\b|\bLS\s+\d+X\b`)

// IsSupportedTicker is the admissibility predicate applied to every provider
// result. A ticker with an embedded "." beyond its first character is an
// exchange-suffixed or warrant variant; those and leveraged products are
// filtered out before results reach the caller.
func IsSupportedTicker(ticker, name string) bool {
	if ticker == "" {
		return false
	}
	if strings.Contains(ticker[1:], ".") {
		return false
	}
	if leveragedPattern.MatchString(ticker) || leveragedPattern.MatchString(name) {
		return false
	}
	return true
}

// Symbol represents a tracked instrument. Identity for deduplication purposes
// is the ticker alone: two symbols with the same ticker from different
// providers describe the same entity even when other fields differ.
type Symbol struct {
	gorm.Model
	Ticker       string       `gorm:"uniqueIndex" json:"ticker"`
	Name         string       `json:"name"`
	Currency     string       `json:"currency"`
	SecurityType SecurityType `json:"security_type"`
	MarketSector MarketSector `json:"market_sector,omitempty"`
	ISIN         string       `json:"isin,omitempty"`
	FIGI         string       `json:"figi,omitempty"`
	Source       string       `json:"source"`
	Picture      string       `json:"picture,omitempty"`
	ManualPrice  *float64     `json:"manual_price,omitempty"`
	UserCreated  bool         `json:"user_created"`
}

// Merge folds another symbol with the same ticker into this one using
// first-present-wins semantics: a field already set on the receiver is never
// overwritten, an empty field takes the other side's value.
func (s Symbol) Merge(other Symbol) Symbol {
	if s.Name == "" {
		s.Name = other.Name
	}
	if s.Currency == "" {
		s.Currency = other.Currency
	}
	if s.SecurityType == "" {
		s.SecurityType = other.SecurityType
	}
	if s.MarketSector == "" {
		s.MarketSector = other.MarketSector
	}
	if s.ISIN == "" {
		s.ISIN = other.ISIN
	}
	if s.FIGI == "" {
		s.FIGI = other.FIGI
	}
	if s.Source == "" {
		s.Source = other.Source
	}
	if s.Picture == "" {
		s.Picture = other.Picture
	}
	if s.ManualPrice == nil {
		s.ManualPrice = other.ManualPrice
	}
	return s
}

// PictureURL derives the logo URL for a symbol. ISIN-based logos are
// preferred; without an ISIN only a few security types have a usable asset.
func (s Symbol) PictureURL() string {
	if s.ISIN != "" {
		return "https://assets.parqet.com/logos/isin/" + s.ISIN
	}
	switch s.SecurityType {
	case SecurityCommonStock, SecurityETP, SecurityGDR:
		return "https://assets.parqet.com/logos/symbol/" + s.Ticker
	case SecurityCrypto:
		return "https://assets.parqet.com/logos/crypto/" + s.Ticker
	}
	return ""
}
