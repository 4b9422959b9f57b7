package intake

import (
	"context"
	"fmt"

	"github.com/dvloznov/invoice-agent/internal/extract"
	"github.com/dvloznov/invoice-agent/internal/invoice"
	"github.com/dvloznov/invoice-agent/internal/logger"
	"github.com/dvloznov/invoice-agent/internal/pending"
)

// Fetcher downloads an uploaded file.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// ApproverNotifier sends a submission to the approver with approve and
// reject controls.
type ApproverNotifier interface {
	RequestApproval(ctx context.Context, sub pending.Submission) error
}

// FetchStep downloads the upload so it can be extracted and archived.
type FetchStep struct {
	Fetcher Fetcher
}

func (s *FetchStep) Execute(ctx context.Context, state *State) error {
	data, err := s.Fetcher.Fetch(ctx, state.Upload.URL)
	if err != nil {
		return fmt.Errorf("fetch upload: %w", err)
	}
	state.Bytes = data
	return nil
}

// ExtractStep asks the oracle for raw invoice fields.
type ExtractStep struct {
	Oracle extract.Oracle
}

func (s *ExtractStep) Execute(ctx context.Context, state *State) error {
	fields, err := s.Oracle.Extract(ctx, extract.Document{
		Kind:     state.Upload.Kind,
		Bytes:    state.Bytes,
		URL:      state.Upload.URL,
		MIMEType: state.Upload.MIMEType,
		FileName: state.Upload.FileName,
	})
	if err != nil {
		return err
	}
	state.Fields = fields
	return nil
}

// NormalizeStep completes the raw fields into a record.
type NormalizeStep struct {
	Normalizer invoice.Normalizer
}

func (s *NormalizeStep) Execute(ctx context.Context, state *State) error {
	state.Record = s.Normalizer.Normalize(state.Fields)
	return nil
}

// RegisterStep stores the submission and assigns its id.
type RegisterStep struct {
	Store *pending.Store
}

func (s *RegisterStep) Execute(ctx context.Context, state *State) error {
	state.SubmissionID = s.Store.Create(pending.Submission{
		Submitter: state.Submitter,
		Record:    state.Record,
		Source:    state.Source(),
	})
	return nil
}

// RequestApprovalStep notifies the approver. A submission nobody was told
// about can never be decided, so it is removed when the notice fails.
type RequestApprovalStep struct {
	Notifier ApproverNotifier
	Store    *pending.Store
}

func (s *RequestApprovalStep) Execute(ctx context.Context, state *State) error {
	sub, ok := s.Store.Get(state.SubmissionID)
	if !ok {
		return fmt.Errorf("submission %s vanished before approval request", state.SubmissionID)
	}
	if err := s.Notifier.RequestApproval(ctx, sub); err != nil {
		s.Store.Remove(state.SubmissionID)
		log := logger.FromContext(ctx)
		log.Error().Err(err).Str("submission_id", state.SubmissionID).Msg("Approval request failed, submission removed")
		return fmt.Errorf("request approval: %w", err)
	}
	return nil
}
