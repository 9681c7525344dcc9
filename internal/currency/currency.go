// Package currency formats minor-unit amounts for display. All monetary
// values in the data model are integer minor units (cents); formatting is a
// presentation concern and never feeds back into stored amounts.
package currency

import (
	"github.com/Rhymond/go-money"

	"github.com/genzilabs/monger-client/internal/domain"
)

// Format renders a minor-unit amount with its currency symbol, e.g.
// Format(152550, "USD") -> "$1,525.50".
func Format(amountCents int64, code string) string {
	return money.New(amountCents, normalize(code)).Display()
}

// FormatSigned prefixes income with "+" and renders expenses negative, for
// transaction rows.
func FormatSigned(amountCents int64, code string, txType domain.TransactionType) string {
	switch txType {
	case domain.TransactionIncome:
		return "+" + Format(amountCents, code)
	case domain.TransactionExpense:
		return Format(-amountCents, code)
	default:
		return Format(amountCents, code)
	}
}

// Symbol returns the display symbol for a currency code ("$", "Rp", ...).
func Symbol(code string) string {
	return money.New(0, normalize(code)).Currency().Grapheme
}

// MinorUnits converts a major-unit float from user input into minor units
// using the currency's fraction, rounding half away from zero. Input parsing
// is the only place floats touch money.
func MinorUnits(amount float64, code string) int64 {
	fraction := money.New(0, normalize(code)).Currency().Fraction
	factor := 1.0
	for i := 0; i < fraction; i++ {
		factor *= 10
	}
	scaled := amount * factor
	if scaled < 0 {
		return int64(scaled - 0.5)
	}
	return int64(scaled + 0.5)
}

func normalize(code string) string {
	if code == "" {
		return money.IDR // the backend's default base currency
	}
	return code
}
