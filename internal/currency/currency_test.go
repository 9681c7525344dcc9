package currency

import (
	"testing"

	"github.com/genzilabs/monger-client/internal/domain"
)

func TestFormat(t *testing.T) {
	if got := Format(152550, "USD"); got != "$1,525.50" {
		t.Errorf("Format(152550, USD) = %q", got)
	}
	if got := Format(-5000, "USD"); got != "-$50.00" {
		t.Errorf("Format(-5000, USD) = %q", got)
	}
}

func TestFormatSigned(t *testing.T) {
	if got := FormatSigned(15000, "USD", domain.TransactionIncome); got != "+$150.00" {
		t.Errorf("income: %q", got)
	}
	if got := FormatSigned(15000, "USD", domain.TransactionExpense); got != "-$150.00" {
		t.Errorf("expense: %q", got)
	}
}

func TestSymbol(t *testing.T) {
	if got := Symbol("USD"); got != "$" {
		t.Errorf("Symbol(USD) = %q", got)
	}
	if got := Symbol("IDR"); got != "Rp" {
		t.Errorf("Symbol(IDR) = %q", got)
	}
}

func TestMinorUnits(t *testing.T) {
	cases := []struct {
		amount float64
		code   string
		want   int64
	}{
		{15.25, "USD", 1525},
		{15.255, "USD", 1526},
		{-3.10, "USD", -310},
		{1500, "JPY", 1500}, // zero-fraction currency
		{0, "USD", 0},
	}
	for _, tc := range cases {
		if got := MinorUnits(tc.amount, tc.code); got != tc.want {
			t.Errorf("MinorUnits(%v, %s) = %d, want %d", tc.amount, tc.code, got, tc.want)
		}
	}
}
