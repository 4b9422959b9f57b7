package invoice

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

// Fields is the partial payload reported by an extraction oracle. Any field
// may be missing; amounts may arrive as numbers, numeric strings or junk.
type Fields struct {
	Date            *string `json:"date"`
	SupplierName    *string `json:"supplier_name"`
	InvoiceNumber   *string `json:"invoice_number"`
	AmountBeforeVAT Amount  `json:"amount_before_vat"`
	VATAmount       Amount  `json:"vat_amount"`
	TotalAmount     Amount  `json:"total_amount"`
	Category        *string `json:"category"`
}

// Amount is a money value exactly as the oracle wrote it. The raw JSON token
// is kept so that a malformed value degrades to zero instead of failing the
// whole decode.
type Amount struct {
	raw json.RawMessage
}

// RawAmount wraps a JSON token such as `342`, `"342.00"` or `null`.
func RawAmount(token string) Amount {
	return Amount{raw: json.RawMessage(token)}
}

// UnmarshalJSON implements json.Unmarshaler.
func (a *Amount) UnmarshalJSON(b []byte) error {
	a.raw = append(a.raw[:0], b...)
	return nil
}

// MarshalJSON implements json.Marshaler.
func (a Amount) MarshalJSON() ([]byte, error) {
	if len(bytes.TrimSpace(a.raw)) == 0 {
		return []byte("null"), nil
	}
	return a.raw, nil
}

// Bounds on amounts accepted from extraction. Anything outside them is
// treated as non-numeric.
const (
	maxIntegerDigits  = 15
	maxFractionDigits = 30
)

// Decimal coerces the raw token to a non-negative decimal. Missing values,
// null, booleans, non-numeric strings, negative numbers and out-of-range
// magnitudes all become zero.
func (a Amount) Decimal() decimal.Decimal {
	raw := bytes.TrimSpace(a.raw)
	if len(raw) == 0 || string(raw) == "null" {
		return decimal.Zero
	}

	s := string(raw)
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &s); err != nil {
			return decimal.Zero
		}
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero
	}

	d, err := decimal.NewFromString(s)
	if err != nil || d.IsNegative() || !inRange(d) {
		return decimal.Zero
	}
	return d
}

func inRange(d decimal.Decimal) bool {
	exp := int(d.Exponent())
	if exp > maxIntegerDigits || exp < -maxFractionDigits {
		return false
	}
	return d.NumDigits()+exp <= maxIntegerDigits
}

// Str is a convenience for building Fields literals.
func Str(s string) *string {
	return &s
}
