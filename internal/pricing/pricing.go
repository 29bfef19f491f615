// Package pricing is the only source of truth for what a configured product costs.
package pricing

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/josepro66/CONFIGURATOR-sub000/internal/domain"
)

type Entry struct {
	Product  string          `json:"product"`
	Currency string          `json:"currency"`
	Amount   decimal.Decimal `json:"amount"`
}

type key struct {
	product  string
	currency string
}

// Authority is an immutable price table. It is safe for concurrent use.
type Authority struct {
	table map[key]decimal.Decimal
}

// catalogue is the code-defined price list. Amounts are exact decimals.
var catalogue = []struct {
	product, currency, amount string
}{
	{"beato8", "USD", "220.00"},
	{"beato8", "COP", "880000.00"},
	{"beato8", "EUR", "205.00"},
	{"beato16", "USD", "320.00"},
	{"beato16", "COP", "1280000.00"},
	{"beato16", "EUR", "299.00"},
	{"beato32", "USD", "450.00"},
	{"beato32", "COP", "1800000.00"},
	{"beato32", "EUR", "420.00"},
}

func NewAuthority() *Authority {
	a := &Authority{table: make(map[key]decimal.Decimal, len(catalogue))}
	for _, c := range catalogue {
		a.table[key{c.product, c.currency}] = decimal.RequireFromString(c.amount)
	}
	return a
}

func normalize(product, currency string) key {
	return key{
		product:  strings.ToLower(strings.TrimSpace(product)),
		currency: strings.ToUpper(strings.TrimSpace(currency)),
	}
}

// Price returns the canonical amount for product in currency.
func (a *Authority) Price(product, currency string) (decimal.Decimal, error) {
	k := normalize(product, currency)
	amt, ok := a.table[k]
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("%w: %s/%s", domain.ErrUnsupportedPricing, k.product, k.currency)
	}
	return amt, nil
}

// Entries lists the table ordered by product then currency.
func (a *Authority) Entries() []Entry {
	out := make([]Entry, 0, len(a.table))
	for k, v := range a.table {
		out = append(out, Entry{Product: k.product, Currency: k.currency, Amount: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Product != out[j].Product {
			return out[i].Product < out[j].Product
		}
		return out[i].Currency < out[j].Currency
	})
	return out
}
