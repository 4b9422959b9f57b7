package dispatch

import (
	"context"
	"errors"
	"testing"

	"github.com/dvloznov/invoice-agent/internal/archive"
	"github.com/dvloznov/invoice-agent/internal/invoice"
	"github.com/dvloznov/invoice-agent/internal/pending"
)

type mockArchive struct {
	PutFunc func(ctx context.Context, key string, src pending.Source) (string, error)
	keys    []string
}

func (m *mockArchive) Put(ctx context.Context, key string, src pending.Source) (string, error) {
	m.keys = append(m.keys, key)
	if m.PutFunc != nil {
		return m.PutFunc(ctx, key, src)
	}
	return "https://archive/" + key, nil
}

type mockLedger struct {
	AppendFunc func(ctx context.Context, sub pending.Submitter, rec invoice.Record, link string) error
	links      []string
}

func (m *mockLedger) Append(ctx context.Context, sub pending.Submitter, rec invoice.Record, link string) error {
	m.links = append(m.links, link)
	if m.AppendFunc != nil {
		return m.AppendFunc(ctx, sub, rec, link)
	}
	return nil
}

func record() invoice.Record {
	return invoice.Normalize(invoice.Fields{
		Date:          invoice.Str("01/02/2025"),
		SupplierName:  invoice.Str("Bezeq"),
		InvoiceNumber: invoice.Str("77"),
		TotalAmount:   invoice.RawAmount(`117`),
		Category:      invoice.Str("telecom"),
	})
}

func TestService_Commit(t *testing.T) {
	sub := pending.Submitter{ID: 5, DisplayName: "Noa"}

	tests := []struct {
		name     string
		archive  archive.Archive
		src      pending.Source
		wantKey  string
		wantLink string
	}{
		{
			name:     "bytes are archived",
			src:      pending.Source{URL: "https://tg/f", Bytes: []byte("%PDF"), MIMEType: "application/pdf"},
			wantKey:  "5/01-02-2025/sub-1/01-02-2025_Bezeq_77.pdf",
			wantLink: "https://archive/5/01-02-2025/sub-1/01-02-2025_Bezeq_77.pdf",
		},
		{
			name:     "no bytes falls back to url",
			src:      pending.Source{URL: "https://tg/f", MIMEType: "image/jpeg"},
			wantLink: "https://tg/f",
		},
		{
			name:     "disabled archive links the source",
			archive:  archive.Disabled{},
			src:      pending.Source{URL: "https://tg/f", Bytes: []byte("jpeg"), MIMEType: "image/jpeg"},
			wantKey:  "5/01-02-2025/sub-1/01-02-2025_Bezeq_77.jpg",
			wantLink: "https://tg/f",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := tt.archive
			if a == nil {
				a = &mockArchive{}
			}
			l := &mockLedger{}

			ref, err := New(a, l).Commit(context.Background(), "sub-1", tt.src, record(), sub)
			if err != nil {
				t.Fatalf("Commit failed: %v", err)
			}
			if ref.Key != tt.wantKey || ref.Link != tt.wantLink {
				t.Errorf("ref = %+v, want key %q link %q", ref, tt.wantKey, tt.wantLink)
			}
			if len(l.links) != 1 || l.links[0] != tt.wantLink {
				t.Errorf("ledger links = %v", l.links)
			}
		})
	}
}

func TestService_CommitNilArchive(t *testing.T) {
	l := &mockLedger{}
	ref, err := New(nil, l).Commit(context.Background(), "sub-1", pending.Source{URL: "u", Bytes: []byte("x")}, record(), pending.Submitter{ID: 1})
	if err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if ref.Link != "u" {
		t.Errorf("link = %q, want source url", ref.Link)
	}
}

func TestService_CommitFailures(t *testing.T) {
	boom := errors.New("boom")
	src := pending.Source{URL: "u", Bytes: []byte("x"), MIMEType: "image/png"}

	tests := []struct {
		name          string
		archive       *mockArchive
		ledger        *mockLedger
		wantStage     Stage
		wantLedgerHit int
	}{
		{
			name: "archive fails",
			archive: &mockArchive{PutFunc: func(ctx context.Context, key string, src pending.Source) (string, error) {
				return "", boom
			}},
			ledger:        &mockLedger{},
			wantStage:     StageArchive,
			wantLedgerHit: 0,
		},
		{
			name:    "ledger fails",
			archive: &mockArchive{},
			ledger: &mockLedger{AppendFunc: func(ctx context.Context, sub pending.Submitter, rec invoice.Record, link string) error {
				return boom
			}},
			wantStage:     StageLedger,
			wantLedgerHit: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.archive, tt.ledger).Commit(context.Background(), "sub-1", src, record(), pending.Submitter{ID: 1})
			if !errors.Is(err, ErrPersistence) {
				t.Fatalf("err = %v, want ErrPersistence", err)
			}
			if !errors.Is(err, boom) {
				t.Errorf("err = %v, want wrapped cause", err)
			}
			var f *Failure
			if !errors.As(err, &f) || f.Stage != tt.wantStage {
				t.Errorf("failure = %+v, want stage %s", f, tt.wantStage)
			}
			if len(tt.ledger.links) != tt.wantLedgerHit {
				t.Errorf("ledger called %d times, want %d", len(tt.ledger.links), tt.wantLedgerHit)
			}
			if len(tt.archive.keys) != 1 {
				t.Errorf("archive called %d times, want 1", len(tt.archive.keys))
			}
		})
	}
}

func TestService_CommitKeepsSameDayInvoicesApart(t *testing.T) {
	fields := func(total string) invoice.Fields {
		return invoice.Fields{
			Date:         invoice.Str("05/03/2025"),
			SupplierName: invoice.Str("Paz"),
			TotalAmount:  invoice.RawAmount(total),
			Category:     invoice.Str("fuel"),
		}
	}
	stored := map[string]string{}
	a := &mockArchive{PutFunc: func(ctx context.Context, key string, src pending.Source) (string, error) {
		stored[key] = string(src.Bytes)
		return "https://bucket/" + key, nil
	}}
	l := &mockLedger{}
	sub := pending.Submitter{ID: 7}
	svc := New(a, l)

	first, err := svc.Commit(context.Background(), "sub-a", pending.Source{Bytes: []byte("RECEIPT-ONE"), MIMEType: "image/jpeg"}, invoice.Normalize(fields("100")), sub)
	if err != nil {
		t.Fatalf("first Commit failed: %v", err)
	}
	second, err := svc.Commit(context.Background(), "sub-b", pending.Source{Bytes: []byte("RECEIPT-TWO"), MIMEType: "image/jpeg"}, invoice.Normalize(fields("250")), sub)
	if err != nil {
		t.Fatalf("second Commit failed: %v", err)
	}

	if first.Key == second.Key || first.Link == second.Link {
		t.Fatalf("keys collide: %q and %q", first.Key, second.Key)
	}
	if got := stored[first.Key]; got != "RECEIPT-ONE" {
		t.Errorf("first object = %q, want RECEIPT-ONE", got)
	}
	if got := stored[second.Key]; got != "RECEIPT-TWO" {
		t.Errorf("second object = %q, want RECEIPT-TWO", got)
	}
}
