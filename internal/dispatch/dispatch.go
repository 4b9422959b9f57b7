// Package dispatch commits approved invoices to durable storage: the
// source file goes to the archive and a row goes to the ledger.
package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/invoice-agent/internal/archive"
	"github.com/dvloznov/invoice-agent/internal/invoice"
	"github.com/dvloznov/invoice-agent/internal/ledger"
	"github.com/dvloznov/invoice-agent/internal/logger"
	"github.com/dvloznov/invoice-agent/internal/pending"
)

// ErrPersistence matches every error returned by Commit.
var ErrPersistence = errors.New("persistence failed")

// Stage names the storage step that failed.
type Stage string

const (
	StageArchive Stage = "archive"
	StageLedger  Stage = "ledger"
)

// Failure is a storage error during Commit.
type Failure struct {
	Stage Stage
	Err   error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("persistence failed at %s: %v", f.Stage, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// Is reports whether target is ErrPersistence.
func (f *Failure) Is(target error) bool { return target == ErrPersistence }

// Reference points at the committed invoice.
type Reference struct {
	// Key is the archive object name, empty when nothing was archived.
	Key string `json:"key,omitempty"`
	// Link is the retrievable file link written to the ledger.
	Link string `json:"link"`
}

// Committer persists one approved invoice.
type Committer interface {
	Commit(ctx context.Context, id string, src pending.Source, rec invoice.Record, sub pending.Submitter) (Reference, error)
}

// Service archives then appends. It makes exactly one attempt per call.
type Service struct {
	archive archive.Archive
	ledger  ledger.Ledger
}

// New returns a dispatcher over a and l. A nil archive keeps no file copies.
func New(a archive.Archive, l ledger.Ledger) *Service {
	if a == nil {
		a = archive.Disabled{}
	}
	return &Service{archive: a, ledger: l}
}

// Commit implements Committer. id is the submission id. Without source bytes
// the ledger links the original download URL.
func (s *Service) Commit(ctx context.Context, id string, src pending.Source, rec invoice.Record, sub pending.Submitter) (Reference, error) {
	log := logger.FromContext(ctx)
	ref := Reference{Link: src.URL}

	if len(src.Bytes) > 0 {
		key := archive.Key(id, sub, rec, src)
		link, err := s.archive.Put(ctx, key, src)
		if err != nil {
			log.Error().Err(err).Str("key", key).Msg("Failed to archive invoice file")
			return Reference{}, &Failure{Stage: StageArchive, Err: err}
		}
		ref = Reference{Key: key, Link: link}
	}

	if err := s.ledger.Append(ctx, sub, rec, ref.Link); err != nil {
		log.Error().Err(err).Int64("submitter_id", sub.ID).Msg("Failed to append invoice to ledger")
		return Reference{}, &Failure{Stage: StageLedger, Err: err}
	}

	log.Info().Str("link", ref.Link).Int64("submitter_id", sub.ID).Msg("Invoice committed")
	return ref, nil
}

var _ Committer = (*Service)(nil)
