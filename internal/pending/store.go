// Package pending holds extracted invoices awaiting an approval decision.
package pending

import (
	"mime"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dvloznov/invoice-agent/internal/invoice"
)

// Submitter identifies the chat user who sent an invoice.
type Submitter struct {
	ID          int64  `json:"id"`
	DisplayName string `json:"display_name"`
	ChatID      int64  `json:"chat_id"`
}

// Source is the uploaded file an invoice was extracted from.
type Source struct {
	URL      string `json:"-"`
	Bytes    []byte `json:"-"`
	MIMEType string `json:"mime_type"`
	FileName string `json:"file_name,omitempty"`
}

// Ext returns the file extension of the source, including the dot.
func (s Source) Ext() string {
	if ext := path.Ext(s.FileName); ext != "" {
		return strings.ToLower(ext)
	}
	switch s.MIMEType {
	case "application/pdf":
		return ".pdf"
	case "image/jpeg":
		return ".jpg"
	}
	if exts, err := mime.ExtensionsByType(s.MIMEType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ".bin"
}

// Submission is one invoice between extraction and decision.
type Submission struct {
	ID        string         `json:"id"`
	Submitter Submitter      `json:"submitter"`
	Record    invoice.Record `json:"record"`
	Source    Source         `json:"source"`
	CreatedAt time.Time      `json:"created_at"`
}

// Store is an in-memory map of submissions keyed by opaque id.
// It is safe for concurrent use. Entries are lost on restart.
type Store struct {
	mu      sync.RWMutex
	entries map[string]Submission
	newID   func() string
	now     func() time.Time
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		entries: make(map[string]Submission),
		newID:   uuid.NewString,
		now:     time.Now,
	}
}

// Create registers sub under a fresh random id and returns the id.
// Any ID already set on sub is ignored.
func (s *Store) Create(sub Submission) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.newID()
	for {
		if _, taken := s.entries[id]; !taken {
			break
		}
		id = s.newID()
	}

	sub.ID = id
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = s.now()
	}
	s.entries[id] = sub
	return id
}

// Get returns the submission stored under id.
func (s *Store) Get(id string) (Submission, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sub, ok := s.entries[id]
	return sub, ok
}

// Take removes and returns the submission stored under id. Of several
// concurrent callers for one id, exactly one gets ok == true.
func (s *Store) Take(id string) (Submission, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.entries[id]
	if ok {
		delete(s.entries, id)
	}
	return sub, ok
}

// Remove deletes id. Removing an absent id is a no-op.
func (s *Store) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, id)
}

// List returns every waiting submission, oldest first.
func (s *Store) List() []Submission {
	s.mu.RLock()
	out := make([]Submission, 0, len(s.entries))
	for _, sub := range s.entries {
		out = append(out, sub)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Len returns the number of waiting submissions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.entries)
}
