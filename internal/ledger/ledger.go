// Package ledger appends approved invoices to tabular storage. Every
// submitter gets their own partition (a tab or a partition key) holding one
// row per invoice.
package ledger

import (
	"context"

	"github.com/dvloznov/invoice-agent/internal/invoice"
	"github.com/dvloznov/invoice-agent/internal/pending"
)

// Ledger appends one row per approved invoice.
type Ledger interface {
	Append(ctx context.Context, submitter pending.Submitter, rec invoice.Record, link string) error
}

// UserLog records each submitter once in a directory of known users.
type UserLog interface {
	LogUser(ctx context.Context, submitter pending.Submitter) error
}
