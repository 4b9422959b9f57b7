package extract

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/dvloznov/invoice-agent/internal/invoice"
)

// fieldsSchema accepts the loose shapes models actually produce: numbers
// where strings are expected and vice versa. It rejects arrays, nested
// objects and non-object documents.
const fieldsSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "definitions": {
    "text": {"type": ["string", "number", "null"]},
    "amount": {"type": ["number", "string", "boolean", "null"]}
  },
  "properties": {
    "date": {"$ref": "#/definitions/text"},
    "supplier_name": {"$ref": "#/definitions/text"},
    "invoice_number": {"$ref": "#/definitions/text"},
    "amount_before_vat": {"$ref": "#/definitions/amount"},
    "vat_amount": {"$ref": "#/definitions/amount"},
    "total_amount": {"$ref": "#/definitions/amount"},
    "category": {"$ref": "#/definitions/text"}
  }
}`

var schema = jsonschema.MustCompileString("invoice_fields.json", fieldsSchema)

// Decode parses a model reply into Fields. Markdown fences and prose around
// the JSON object are tolerated; anything that is not a JSON object with the
// expected field shapes is a malformed Failure.
func Decode(raw string) (invoice.Fields, error) {
	clean := cleanModelJSON(raw)
	if clean == "" {
		return invoice.Fields{}, Fail(ReasonMalformed, errors.New("empty response from model"))
	}

	dec := json.NewDecoder(strings.NewReader(clean))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return invoice.Fields{}, Fail(ReasonMalformed, fmt.Errorf("unmarshal JSON: %w", err))
	}
	if err := schema.Validate(v); err != nil {
		return invoice.Fields{}, Fail(ReasonMalformed, fmt.Errorf("json does not match schema: %w", err))
	}

	obj := v.(map[string]any)
	return invoice.Fields{
		Date:            textField(obj["date"]),
		SupplierName:    textField(obj["supplier_name"]),
		InvoiceNumber:   textField(obj["invoice_number"]),
		AmountBeforeVAT: amountField(obj["amount_before_vat"]),
		VATAmount:       amountField(obj["vat_amount"]),
		TotalAmount:     amountField(obj["total_amount"]),
		Category:        textField(obj["category"]),
	}, nil
}

func textField(v any) *string {
	switch t := v.(type) {
	case string:
		return &t
	case json.Number:
		s := t.String()
		return &s
	default:
		return nil
	}
}

func amountField(v any) invoice.Amount {
	if v == nil {
		return invoice.Amount{}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return invoice.Amount{}
	}
	return invoice.RawAmount(string(b))
}

// cleanModelJSON strips Markdown fences and any text around the outermost
// JSON object.
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		idx := strings.Index(s, "\n")
		if idx == -1 {
			return ""
		}
		s = strings.TrimSpace(s[idx+1:])
	}

	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}

	s = strings.TrimSpace(s)

	if start := strings.Index(s, "{"); start != -1 {
		if end := strings.LastIndex(s, "}"); end != -1 && end > start {
			s = strings.TrimSpace(s[start : end+1])
		}
	}

	return s
}

// MustJSON renders v as indented JSON, for logs and CLI output.
func MustJSON(v any) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
	return strings.TrimSpace(buf.String())
}
