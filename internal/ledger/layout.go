package ledger

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/dvloznov/invoice-agent/internal/invoice"
	"github.com/dvloznov/invoice-agent/internal/pending"
)

// Fixed columns of an invoice row. Category amount columns sit between
// InvoiceNumberColumn and LinkColumn.
const (
	DateColumn          = 0
	SupplierColumn      = 1
	InvoiceNumberColumn = 2
	LinkColumn          = 23
	ColumnCount         = LinkColumn + 1
)

// UsersTab is the directory tab listing every known submitter.
const UsersTab = "Users"

// maxTabName is the longest tab name spreadsheet tools accept.
const maxTabName = 31

// Layout renders records into rows of the shared spreadsheet format.
type Layout struct {
	Locale invoice.Locale
}

// LastColumn is the letter of the final column, "X".
func LastColumn() string {
	return invoice.ColumnName(LinkColumn)
}

// Headers returns the header row.
func (l Layout) Headers() []string {
	h := make([]string, ColumnCount)
	if l.Locale == invoice.English {
		h[DateColumn], h[SupplierColumn], h[InvoiceNumberColumn], h[LinkColumn] = "Date", "Supplier", "Invoice number", "File link"
	} else {
		h[DateColumn], h[SupplierColumn], h[InvoiceNumberColumn], h[LinkColumn] = "תאריך", "ספק", "מספר חשבונית", "קישור לקובץ"
	}
	for _, c := range invoice.Categories() {
		h[c.Column()] = c.Label(l.Locale)
	}
	return h
}

// UserHeaders returns the header row of the users tab.
func (l Layout) UserHeaders() []string {
	if l.Locale == invoice.English {
		return []string{"Joined", "Name", "Telegram ID"}
	}
	return []string{"תאריך הצטרפות", "שם", "מזהה טלגרם"}
}

// Row renders rec as a full-width row. The total amount lands in the
// category's column; every other amount column stays empty.
func (l Layout) Row(rec invoice.Record, link string) []interface{} {
	row := make([]interface{}, ColumnCount)
	for i := range row {
		row[i] = ""
	}
	row[DateColumn] = rec.Date
	row[SupplierColumn] = rec.SupplierName
	row[InvoiceNumberColumn] = rec.InvoiceNumberOr("")
	row[rec.Category.Column()] = rec.TotalAmount.InexactFloat64()
	row[LinkColumn] = link
	return row
}

// TabName returns the per-submitter tab name, "<name>-<id>". Characters
// spreadsheet tools reject are replaced and the name part is shortened so
// the id suffix always survives.
func TabName(s pending.Submitter) string {
	suffix := fmt.Sprintf("-%d", s.ID)

	name := strings.Map(func(r rune) rune {
		switch r {
		case ':', '\\', '/', '?', '*', '[', ']', '\'':
			return '-'
		}
		return r
	}, strings.TrimSpace(s.DisplayName))
	if name == "" {
		name = "user"
	}

	budget := maxTabName - len(suffix)
	if utf8.RuneCountInString(name) > budget {
		name = string([]rune(name)[:budget])
	}
	return name + suffix
}

// a1 quotes a tab name for use in an A1 range.
func a1(tab, cells string) string {
	return "'" + strings.ReplaceAll(tab, "'", "''") + "'!" + cells
}
