// Package archive stores approved invoice source files and returns a link
// that is written to the ledger next to the invoice row.
package archive

import (
	"context"
	"errors"
	"strconv"

	"github.com/dvloznov/invoice-agent/internal/invoice"
	"github.com/dvloznov/invoice-agent/internal/pending"
)

// ErrNoContent is returned when a source carries no bytes to store.
var ErrNoContent = errors.New("archive: source has no content")

// Archive stores a source file under key and returns a link to it.
type Archive interface {
	Put(ctx context.Context, key string, src pending.Source) (string, error)
}

// Key is the object name of an approved invoice's source file:
// "<submitter id>/<date>/<submission id>/<date>_<supplier>_<number>.<ext>".
// The submission id keeps same-day invoices from one supplier apart.
func Key(id string, sub pending.Submitter, rec invoice.Record, src pending.Source) string {
	return strconv.FormatInt(sub.ID, 10) + "/" + rec.DateKey() + "/" + id + "/" + rec.Filename(src.Ext())
}

// Disabled keeps no copy; the link is the file's original download URL.
type Disabled struct{}

// Put implements Archive.
func (Disabled) Put(_ context.Context, _ string, src pending.Source) (string, error) {
	return src.URL, nil
}

func contentType(src pending.Source) string {
	if src.MIMEType != "" {
		return src.MIMEType
	}
	return "application/octet-stream"
}
