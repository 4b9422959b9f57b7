package intake

import (
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/invoice-agent/internal/extract"
	"github.com/dvloznov/invoice-agent/internal/invoice"
	"github.com/dvloznov/invoice-agent/internal/ledger"
	"github.com/dvloznov/invoice-agent/internal/logger"
	"github.com/dvloznov/invoice-agent/internal/pending"
)

// ErrUnsupported is returned for uploads that are neither images nor PDFs.
var ErrUnsupported = errors.New("unsupported upload")

// Messages sent to the submitter.
const (
	MsgUnsupported     = "⚠️ Please send a PDF document or an image (JPG/PNG)."
	MsgProcessingImage = "⏳ Processing your image..."
	MsgProcessingPDF   = "⏳ Processing your PDF..."
	MsgImageFailed     = "❌ Error processing image. Please try again or ensure the image is clear."
	MsgPDFFailed       = "❌ Error processing PDF."
	MsgTooLarge        = "⚠️ The file is too large. Please send a file under 20 MB."
)

// Responder replies to the submitter in the chat the upload came from.
type Responder interface {
	Respond(ctx context.Context, text string) error
}

// ResponderFunc adapts a function to the Responder interface.
type ResponderFunc func(ctx context.Context, text string) error

// Respond implements Responder.
func (f ResponderFunc) Respond(ctx context.Context, text string) error {
	return f(ctx, text)
}

// Service runs uploads through the intake pipeline.
type Service struct {
	pipeline *Pipeline
	users    ledger.UserLog
}

// Deps are the collaborators of the intake pipeline. Users is optional.
type Deps struct {
	Fetcher    Fetcher
	Oracle     extract.Oracle
	Normalizer invoice.Normalizer
	Store      *pending.Store
	Notifier   ApproverNotifier
	Users      ledger.UserLog
}

// NewService wires the standard pipeline:
// fetch, extract, normalize, register, request approval.
func NewService(d Deps) *Service {
	return &Service{
		pipeline: NewPipeline(
			&FetchStep{Fetcher: d.Fetcher},
			&ExtractStep{Oracle: d.Oracle},
			&NormalizeStep{Normalizer: d.Normalizer},
			&RegisterStep{Store: d.Store},
			&RequestApprovalStep{Notifier: d.Notifier, Store: d.Store},
		),
		users: d.Users,
	}
}

// Submit processes one upload from sub and returns the id of the pending
// submission. Progress and the result are reported through r. A failed
// extraction leaves nothing behind in the store.
func (s *Service) Submit(ctx context.Context, sub pending.Submitter, up Upload, r Responder) (string, error) {
	ctx = logger.Enrich(ctx, map[string]interface{}{"submitter_id": sub.ID})
	log := logger.FromContext(ctx)

	kind, ok := extract.DetectKind(up.MIMEType, up.FileName)
	if !ok {
		respond(ctx, r, MsgUnsupported)
		return "", ErrUnsupported
	}
	up.Kind = kind
	if up.Size > MaxUploadBytes {
		respond(ctx, r, MsgTooLarge)
		return "", ErrTooLarge
	}

	s.logUser(ctx, sub)

	processing, failed := MsgProcessingImage, MsgImageFailed
	if kind == extract.KindPDF {
		processing, failed = MsgProcessingPDF, MsgPDFFailed
	}
	respond(ctx, r, processing)

	state := &State{Submitter: sub, Upload: up}
	if err := s.pipeline.Execute(ctx, state); err != nil {
		log.Error().Err(err).Str("reason", string(extract.ReasonOf(err))).Msg("Intake failed")
		if errors.Is(err, ErrTooLarge) {
			failed = MsgTooLarge
		}
		respond(ctx, r, failed)
		return "", err
	}

	log.Info().Str("submission_id", state.SubmissionID).Str("supplier", state.Record.SupplierName).Msg("Submission waiting for approval")
	respond(ctx, r, ReceiptMessage(state.Record))
	return state.SubmissionID, nil
}

// ReceiptMessage confirms to the submitter that the invoice reached the
// approver.
func ReceiptMessage(rec invoice.Record) string {
	return fmt.Sprintf("✅ Received! Sent to manager for approval.\n\nSupplier: %s\nTotal: %s ₪",
		rec.SupplierName, rec.TotalAmount.StringFixed(2))
}

func (s *Service) logUser(ctx context.Context, sub pending.Submitter) {
	if s.users == nil {
		return
	}
	if err := s.users.LogUser(ctx, sub); err != nil {
		log := logger.FromContext(ctx)
		log.Warn().Err(err).Msg("Failed to log user")
	}
}

func respond(ctx context.Context, r Responder, text string) {
	if err := r.Respond(ctx, text); err != nil {
		log := logger.FromContext(ctx)
		log.Warn().Err(err).Msg("Failed to reply to submitter")
	}
}
