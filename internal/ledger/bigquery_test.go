package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"google.golang.org/api/googleapi"

	"github.com/dvloznov/invoice-agent/internal/invoice"
	"github.com/dvloznov/invoice-agent/internal/pending"
)

type fakeTable struct {
	exists  bool
	created []*bigquery.TableMetadata
	rows    []*InvoiceRow

	ExistsFunc func(ctx context.Context) (bool, error)
	CreateFunc func(ctx context.Context, meta *bigquery.TableMetadata) error
	PutFunc    func(ctx context.Context, rows []*InvoiceRow) error
}

func (f *fakeTable) Exists(ctx context.Context) (bool, error) {
	if f.ExistsFunc != nil {
		return f.ExistsFunc(ctx)
	}
	return f.exists, nil
}

func (f *fakeTable) Create(ctx context.Context, meta *bigquery.TableMetadata) error {
	if f.CreateFunc != nil {
		return f.CreateFunc(ctx, meta)
	}
	f.created = append(f.created, meta)
	f.exists = true
	return nil
}

func (f *fakeTable) Put(ctx context.Context, rows []*InvoiceRow) error {
	if f.PutFunc != nil {
		return f.PutFunc(ctx, rows)
	}
	f.rows = append(f.rows, rows...)
	return nil
}

func TestNewInvoiceRow(t *testing.T) {
	now := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	sub := pending.Submitter{ID: 42, DisplayName: "Dana"}

	row := NewInvoiceRow(sub, sampleRecord(), "https://files/1", now)

	if row.InvoiceID == "" {
		t.Error("InvoiceID is empty")
	}
	if row.SubmitterID != 42 || row.SubmitterName != "Dana" {
		t.Errorf("submitter = %d/%q", row.SubmitterID, row.SubmitterName)
	}
	wantDate := civil.Date{Year: 2025, Month: time.March, Day: 12}
	if !row.InvoiceDate.Valid || row.InvoiceDate.Date != wantDate {
		t.Errorf("InvoiceDate = %+v, want %v", row.InvoiceDate, wantDate)
	}
	if row.TotalAmount.FloatString(2) != "342.00" {
		t.Errorf("TotalAmount = %s", row.TotalAmount.FloatString(2))
	}
	if row.AmountBeforeVAT.FloatString(2) != "292.31" || row.VATAmount.FloatString(2) != "49.69" {
		t.Errorf("before/vat = %s/%s", row.AmountBeforeVAT.FloatString(2), row.VATAmount.FloatString(2))
	}
	if row.Category != "fuel" {
		t.Errorf("Category = %q", row.Category)
	}
	if row.InvoiceNumber.Valid {
		t.Errorf("InvoiceNumber should be null, got %q", row.InvoiceNumber.StringVal)
	}
	if !row.FileLink.Valid || row.FileLink.StringVal != "https://files/1" {
		t.Errorf("FileLink = %+v", row.FileLink)
	}
}

func TestNewInvoiceRow_UnparsableDate(t *testing.T) {
	rec := invoice.Normalize(invoice.Fields{Date: invoice.Str("March 2025")})
	row := NewInvoiceRow(pending.Submitter{ID: 1}, rec, "", time.Now())

	if row.InvoiceDate.Valid {
		t.Errorf("InvoiceDate should be null for %q", rec.Date)
	}
	if row.RawDate != "March 2025" {
		t.Errorf("RawDate = %q", row.RawDate)
	}
	if row.FileLink.Valid {
		t.Error("FileLink should be null without a link")
	}
}

func TestBigQuery_CreatesTableOnce(t *testing.T) {
	table := &fakeTable{}
	b := newBigQuery(table)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := b.Append(ctx, pending.Submitter{ID: 1}, sampleRecord(), ""); err != nil {
			t.Fatalf("Append %d failed: %v", i, err)
		}
	}

	if len(table.created) != 1 {
		t.Errorf("table created %d times, want 1", len(table.created))
	}
	if len(table.rows) != 3 {
		t.Errorf("rows = %d, want 3", len(table.rows))
	}
	var names []string
	for _, f := range table.created[0].Schema {
		names = append(names, f.Name)
	}
	if names[0] != "invoice_id" || len(names) != 14 {
		t.Errorf("schema fields = %v", names)
	}
	clustering := table.created[0].Clustering
	if clustering == nil || len(clustering.Fields) != 1 || clustering.Fields[0] != "submitter_id" {
		t.Errorf("clustering = %+v, want submitter_id", clustering)
	}
}

func TestBigQuery_CreateConflictIsIgnored(t *testing.T) {
	table := &fakeTable{
		CreateFunc: func(ctx context.Context, meta *bigquery.TableMetadata) error {
			return &googleapi.Error{Code: 409, Message: "Already Exists"}
		},
	}
	b := newBigQuery(table)

	if err := b.Append(context.Background(), pending.Submitter{ID: 1}, sampleRecord(), ""); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if len(table.rows) != 1 {
		t.Errorf("rows = %d, want 1", len(table.rows))
	}
}

func TestBigQuery_Errors(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name  string
		table *fakeTable
	}{
		{
			name: "metadata fails",
			table: &fakeTable{ExistsFunc: func(ctx context.Context) (bool, error) {
				return false, boom
			}},
		},
		{
			name: "create fails",
			table: &fakeTable{CreateFunc: func(ctx context.Context, meta *bigquery.TableMetadata) error {
				return &googleapi.Error{Code: 403, Message: "denied"}
			}},
		},
		{
			name: "insert fails",
			table: &fakeTable{exists: true, PutFunc: func(ctx context.Context, rows []*InvoiceRow) error {
				return boom
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newBigQuery(tt.table)
			if err := b.Append(context.Background(), pending.Submitter{ID: 1}, sampleRecord(), ""); err == nil {
				t.Fatal("expected error")
			}
			if len(tt.table.rows) != 0 {
				t.Errorf("rows written on failure: %d", len(tt.table.rows))
			}
		})
	}
}
