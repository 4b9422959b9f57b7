package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"google.golang.org/api/googleapi"

	"github.com/dvloznov/invoice-agent/internal/invoice"
	"github.com/dvloznov/invoice-agent/internal/logger"
	"github.com/dvloznov/invoice-agent/internal/pending"
)

// InvoiceRow is one approved invoice in the invoices table.
type InvoiceRow struct {
	InvoiceID string `bigquery:"invoice_id"` // REQUIRED

	SubmitterID   int64  `bigquery:"submitter_id"`   // REQUIRED
	SubmitterName string `bigquery:"submitter_name"` // REQUIRED

	InvoiceDate bigquery.NullDate `bigquery:"invoice_date"` // NULLABLE, unset when the date does not parse
	RawDate     string            `bigquery:"raw_date"`     // REQUIRED, as extracted

	SupplierName  string              `bigquery:"supplier_name"`  // REQUIRED
	InvoiceNumber bigquery.NullString `bigquery:"invoice_number"` // NULLABLE

	AmountBeforeVAT *big.Rat `bigquery:"amount_before_vat"` // REQUIRED NUMERIC
	VATAmount       *big.Rat `bigquery:"vat_amount"`        // REQUIRED NUMERIC
	TotalAmount     *big.Rat `bigquery:"total_amount"`      // REQUIRED NUMERIC

	Category      string `bigquery:"category"`       // REQUIRED
	CategoryLabel string `bigquery:"category_label"` // REQUIRED

	FileLink bigquery.NullString `bigquery:"file_link"` // NULLABLE

	CreatedTS time.Time `bigquery:"created_ts"` // REQUIRED
}

// NewInvoiceRow converts an approved record into a table row.
func NewInvoiceRow(sub pending.Submitter, rec invoice.Record, link string, now time.Time) *InvoiceRow {
	row := &InvoiceRow{
		InvoiceID:       uuid.NewString(),
		SubmitterID:     sub.ID,
		SubmitterName:   sub.DisplayName,
		RawDate:         rec.Date,
		SupplierName:    rec.SupplierName,
		AmountBeforeVAT: rec.AmountBeforeVAT.Rat(),
		VATAmount:       rec.VATAmount.Rat(),
		TotalAmount:     rec.TotalAmount.Rat(),
		Category:        rec.Category.ID(),
		CategoryLabel:   rec.CategoryLabel,
		CreatedTS:       now.UTC(),
	}
	if t, err := time.Parse("02/01/2006", rec.Date); err == nil {
		row.InvoiceDate = bigquery.NullDate{Date: civil.DateOf(t), Valid: true}
	}
	if rec.InvoiceNumber != nil {
		row.InvoiceNumber = bigquery.NullString{StringVal: *rec.InvoiceNumber, Valid: true}
	}
	if link != "" {
		row.FileLink = bigquery.NullString{StringVal: link, Valid: true}
	}
	return row
}

// invoiceTable is the slice of *bigquery.Table the ledger uses.
type invoiceTable interface {
	Exists(ctx context.Context) (bool, error)
	Create(ctx context.Context, meta *bigquery.TableMetadata) error
	Put(ctx context.Context, rows []*InvoiceRow) error
}

// BigQuery is a Ledger backed by a single BigQuery table. The table is
// created from InvoiceRow's schema on first append when missing.
type BigQuery struct {
	client *bigquery.Client
	table  invoiceTable
	now    func() time.Time

	mu    sync.Mutex
	ready bool
}

// NewBigQuery connects to projectID and writes to dataset.table.
func NewBigQuery(ctx context.Context, projectID, dataset, table string) (*BigQuery, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewBigQuery: bigquery client: %w", err)
	}
	b := newBigQuery(bqTable{client.DatasetInProject(projectID, dataset).Table(table)})
	b.client = client
	return b, nil
}

func newBigQuery(table invoiceTable) *BigQuery {
	return &BigQuery{table: table, now: time.Now}
}

// Close closes the BigQuery client connection.
func (b *BigQuery) Close() error {
	if b.client != nil {
		return b.client.Close()
	}
	return nil
}

// Append implements Ledger.
func (b *BigQuery) Append(ctx context.Context, sub pending.Submitter, rec invoice.Record, link string) error {
	if err := b.EnsureTable(ctx); err != nil {
		return fmt.Errorf("ledger.BigQuery.Append: %w", err)
	}

	row := NewInvoiceRow(sub, rec, link, b.now())
	if err := b.table.Put(ctx, []*InvoiceRow{row}); err != nil {
		return fmt.Errorf("ledger.BigQuery.Append: inserting row: %w", err)
	}

	log := logger.FromContext(ctx)
	log.Info().Str("invoice_id", row.InvoiceID).Int64("submitter_id", sub.ID).Msg("Invoice inserted into BigQuery")
	return nil
}

// EnsureTable creates the invoices table with the schema inferred from
// InvoiceRow unless it already exists. Append calls it on first use.
func (b *BigQuery) EnsureTable(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.ready {
		return nil
	}
	ok, err := b.table.Exists(ctx)
	if err != nil {
		return fmt.Errorf("checking table: %w", err)
	}
	if !ok {
		meta, err := invoiceTableMetadata()
		if err != nil {
			return err
		}
		if err := b.table.Create(ctx, meta); err != nil && !isStatus(err, http.StatusConflict) {
			return fmt.Errorf("creating table: %w", err)
		}
		log := logger.FromContext(ctx)
		log.Info().Msg("Created BigQuery invoices table")
	}
	b.ready = true
	return nil
}

// invoiceTableMetadata infers the schema from InvoiceRow and clusters rows
// by submitter so each submitter's invoices are stored together.
func invoiceTableMetadata() (*bigquery.TableMetadata, error) {
	schema, err := bigquery.InferSchema(InvoiceRow{})
	if err != nil {
		return nil, fmt.Errorf("inferring schema: %w", err)
	}
	return &bigquery.TableMetadata{
		Schema:     schema,
		Clustering: &bigquery.Clustering{Fields: []string{"submitter_id"}},
	}, nil
}

func isStatus(err error, code int) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == code
}

// bqTable adapts *bigquery.Table to invoiceTable.
type bqTable struct {
	t *bigquery.Table
}

func (t bqTable) Exists(ctx context.Context) (bool, error) {
	_, err := t.t.Metadata(ctx)
	if err == nil {
		return true, nil
	}
	if isStatus(err, http.StatusNotFound) {
		return false, nil
	}
	return false, err
}

func (t bqTable) Create(ctx context.Context, meta *bigquery.TableMetadata) error {
	return t.t.Create(ctx, meta)
}

func (t bqTable) Put(ctx context.Context, rows []*InvoiceRow) error {
	return t.t.Inserter().Put(ctx, rows)
}

var _ Ledger = (*BigQuery)(nil)
