package models

import "regexp"

var (
	// ISIN: two-letter country code, nine alphanumerics, one check digit.
	isinPattern = regexp.MustCompile(`^[A-Z]{2}[A-Z0-9]{9}[0-9]$`)

	// FIGI: "BBG" prefix, eight consonant/digit characters, one check digit.
	figiPattern = regexp.MustCompile(`^BBG[B-DF-HJ-NP-TV-Z0-9]{8}[0-9]$`)
)

// IsValidISIN reports whether s is structurally a valid ISIN.
func IsValidISIN(s string) bool {
	return isinPattern.MatchString(s)
}

// IsValidFIGI reports whether s is structurally a valid FIGI.
func IsValidFIGI(s string) bool {
	return figiPattern.MatchString(s)
}
