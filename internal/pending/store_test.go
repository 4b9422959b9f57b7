package pending

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dvloznov/invoice-agent/internal/invoice"
)

func TestStore_CreateGetRemove(t *testing.T) {
	s := NewStore()
	sub := Submission{
		Submitter: Submitter{ID: 42, DisplayName: "Dana", ChatID: 42},
		Record:    invoice.Record{SupplierName: "Paz"},
	}

	id := s.Create(sub)
	if id == "" {
		t.Fatal("Create returned empty id")
	}

	got, ok := s.Get(id)
	if !ok {
		t.Fatal("Get after Create: not found")
	}
	if got.ID != id || got.Record.SupplierName != "Paz" || got.Submitter.ID != 42 {
		t.Errorf("Get = %+v", got)
	}
	if got.CreatedAt.IsZero() {
		t.Error("CreatedAt should be set")
	}

	s.Remove(id)
	if _, ok := s.Get(id); ok {
		t.Error("Get after Remove: still present")
	}

	s.Remove(id)
	s.Remove("never-existed")
	if s.Len() != 0 {
		t.Errorf("Len = %d, want 0", s.Len())
	}
}

func TestStore_IDsAreUnique(t *testing.T) {
	s := NewStore()
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := s.Create(Submission{})
		if seen[id] {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = true
	}
	if s.Len() != 1000 {
		t.Errorf("Len = %d, want 1000", s.Len())
	}
}

func TestStore_CreateRetriesOnCollision(t *testing.T) {
	s := NewStore()
	ids := []string{"a", "a", "b"}
	s.newID = func() string {
		id := ids[0]
		ids = ids[1:]
		return id
	}

	first := s.Create(Submission{})
	second := s.Create(Submission{})
	if first != "a" || second != "b" {
		t.Errorf("ids = %q, %q; want a, b", first, second)
	}
}

func TestStore_GetReturnsCopy(t *testing.T) {
	s := NewStore()
	id := s.Create(Submission{Record: invoice.Record{SupplierName: "Paz"}})

	got, _ := s.Get(id)
	got.Record.SupplierName = "changed"

	again, _ := s.Get(id)
	if again.Record.SupplierName != "Paz" {
		t.Errorf("stored entry was mutated through a returned copy: %q", again.Record.SupplierName)
	}
}

func TestStore_TakeIsExclusive(t *testing.T) {
	s := NewStore()
	id := s.Create(Submission{})

	var winners atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := s.Take(id); ok {
				winners.Add(1)
			}
		}()
	}
	wg.Wait()

	if winners.Load() != 1 {
		t.Errorf("Take succeeded %d times, want 1", winners.Load())
	}
	if _, ok := s.Get(id); ok {
		t.Error("entry still present after Take")
	}
}

func TestStore_List(t *testing.T) {
	s := NewStore()
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	s.Create(Submission{CreatedAt: base.Add(2 * time.Minute), Record: invoice.Record{SupplierName: "second"}})
	s.Create(Submission{CreatedAt: base, Record: invoice.Record{SupplierName: "first"}})

	list := s.List()
	if len(list) != 2 {
		t.Fatalf("List len = %d, want 2", len(list))
	}
	if list[0].Record.SupplierName != "first" || list[1].Record.SupplierName != "second" {
		t.Errorf("List order = %q, %q", list[0].Record.SupplierName, list[1].Record.SupplierName)
	}
}

func TestSource_Ext(t *testing.T) {
	tests := []struct {
		name string
		src  Source
		want string
	}{
		{name: "from file name", src: Source{FileName: "Invoice.PDF"}, want: ".pdf"},
		{name: "pdf mime", src: Source{MIMEType: "application/pdf"}, want: ".pdf"},
		{name: "jpeg mime", src: Source{MIMEType: "image/jpeg"}, want: ".jpg"},
		{name: "unknown", src: Source{}, want: ".bin"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.src.Ext(); got != tt.want {
				t.Errorf("Ext() = %q, want %q", got, tt.want)
			}
		})
	}
}
