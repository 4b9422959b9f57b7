package invoice

import (
	"strings"

	"github.com/shopspring/decimal"
)

// VATRate is the value-added tax rate applied when an amount is missing.
var VATRate = decimal.RequireFromString("0.17")

var vatMultiplier = decimal.NewFromInt(1).Add(VATRate)

// Normalizer turns oracle output into a Record. Locale controls the
// category label stored on the record.
type Normalizer struct {
	Locale Locale
}

// Normalize applies the default Normalizer.
func Normalize(f Fields) Record {
	return Normalizer{}.Normalize(f)
}

// Normalize fills defaults and triangulates the three amounts. A positive
// VAT amount means the oracle read all three and they are kept as given.
// Otherwise the total, then the pre-VAT amount, drives the derivation.
// Derived values are rounded half-up to two decimals.
func (n Normalizer) Normalize(f Fields) Record {
	before := f.AmountBeforeVAT.Decimal()
	vat := f.VATAmount.Decimal()
	total := f.TotalAmount.Decimal()

	switch {
	case vat.IsPositive():
	case total.IsPositive():
		before = total.Div(vatMultiplier).Round(2)
		vat = total.Sub(before).Round(2)
	case before.IsPositive():
		vat = before.Mul(VATRate).Round(2)
		total = before.Add(vat).Round(2)
	default:
		before, vat, total = decimal.Zero, decimal.Zero, decimal.Zero
	}

	category := ResolveCategory(f.Category)

	return Record{
		Date:            trimmed(f.Date),
		SupplierName:    orDefault(trimmed(f.SupplierName), UnknownSupplier),
		InvoiceNumber:   optional(trimmed(f.InvoiceNumber)),
		AmountBeforeVAT: before,
		VATAmount:       vat,
		TotalAmount:     total,
		Category:        category,
		CategoryLabel:   category.Label(n.Locale),
	}
}

func trimmed(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
