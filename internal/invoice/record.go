package invoice

import (
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// UnknownSupplier is recorded when the oracle could not read a supplier name.
const UnknownSupplier = "Unknown"

// Record is a fully normalized invoice: every field is present and the
// three amounts are consistent with the VAT rate.
type Record struct {
	Date            string          `json:"date"`
	SupplierName    string          `json:"supplier_name"`
	InvoiceNumber   *string         `json:"invoice_number,omitempty"`
	AmountBeforeVAT decimal.Decimal `json:"amount_before_vat"`
	VATAmount       decimal.Decimal `json:"vat_amount"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	Category        Category        `json:"category"`
	CategoryLabel   string          `json:"category_label"`
}

// InvoiceNumberOr returns the invoice number, or fallback when absent.
func (r Record) InvoiceNumberOr(fallback string) string {
	if r.InvoiceNumber == nil || *r.InvoiceNumber == "" {
		return fallback
	}
	return *r.InvoiceNumber
}

// DateKey renders the invoice date for use in file and object names:
// "12/03/2025" becomes "12-03-2025". An empty date becomes "undated".
func (r Record) DateKey() string {
	if r.Date == "" {
		return "undated"
	}
	return sanitizeName(strings.ReplaceAll(r.Date, "/", "-"))
}

// Filename builds the archive name of the invoice's source file,
// for example "12-03-2025_Paz_88231.pdf". ext includes the leading dot.
func (r Record) Filename(ext string) string {
	name := r.DateKey() + "_" + sanitizeName(r.SupplierName) + "_" + sanitizeName(r.InvoiceNumberOr("inv"))
	return name + ext
}

// sanitizeName keeps letters (any script), digits, dots, dashes and
// underscores. Whitespace becomes an underscore, anything else a dash.
func sanitizeName(s string) string {
	s = strings.TrimSpace(s)
	var b strings.Builder
	for _, r := range s {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '.', r == '-', r == '_':
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune('_')
		default:
			b.WriteRune('-')
		}
	}
	return b.String()
}
