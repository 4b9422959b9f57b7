// Package approval runs the decision lifecycle of a pending invoice:
// a submission waits in the store until the approver approves it, which
// commits it to storage, or rejects it, which hands it over to manual
// handling. Every decision is final.
package approval

import (
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/invoice-agent/internal/dispatch"
	"github.com/dvloznov/invoice-agent/internal/logger"
	"github.com/dvloznov/invoice-agent/internal/pending"
)

// ErrNotFound is reported when a decision names a submission that is not
// waiting, either because it was already decided or never existed.
var ErrNotFound = errors.New("submission not found")

// State is the lifecycle position of a submission.
type State string

const (
	StateExtracted State = "extracted"
	StateApproved  State = "approved"
	StateRejected  State = "rejected"
	StateExpired   State = "expired"
	// StateFailed is terminal: the approval was accepted but persistence
	// failed and the submission was discarded.
	StateFailed State = "failed"
)

// Terminal reports whether no further transition can leave s.
func (s State) Terminal() bool {
	return s != StateExtracted
}

// Messages shown on the decision channel.
const (
	MsgExpired    = "Invoice expired or not found."
	MsgApproving  = "Approving..."
	MsgRejected   = "Rejected!"
	MsgRejectedOK = "❌ Rejected - requires manual handling."
	MsgSaveFailed = "❌ Error saving data."
)

// Reply is the decision channel back to the approver.
type Reply interface {
	// Ack answers the decision itself, typically as a short toast.
	Ack(ctx context.Context, text string) error
	// Update replaces the approval request with a status message.
	Update(ctx context.Context, text string) error
}

// SubmitterNotifier tells the person who sent an invoice how it was decided.
type SubmitterNotifier interface {
	NotifySubmitter(ctx context.Context, sub pending.Submitter, text string) error
}

// Outcome describes the transition a decision caused.
type Outcome struct {
	State        State
	SubmissionID string
	Submission   pending.Submission
	Reference    dispatch.Reference
	Err          error
}

// Machine applies approver decisions to the pending store.
type Machine struct {
	store     *pending.Store
	committer dispatch.Committer
	notifier  SubmitterNotifier
}

// New returns a machine deciding entries of store. notifier may be nil.
func New(store *pending.Store, committer dispatch.Committer, notifier SubmitterNotifier) *Machine {
	return &Machine{store: store, committer: committer, notifier: notifier}
}

// Approve commits submission id. The entry is claimed before the commit,
// so it is attempted at most once and is gone afterwards whatever the
// result. Approving an absent id yields StateExpired and commits nothing.
func (m *Machine) Approve(ctx context.Context, id string, reply Reply) Outcome {
	ctx = logger.Enrich(ctx, map[string]interface{}{"submission_id": id, "decision": "approve"})
	log := logger.FromContext(ctx)

	sub, ok := m.store.Take(id)
	if !ok {
		log.Warn().Msg("Approval for unknown submission")
		m.ack(ctx, reply, MsgExpired)
		return Outcome{State: StateExpired, SubmissionID: id, Err: ErrNotFound}
	}
	m.ack(ctx, reply, MsgApproving)

	ref, err := m.committer.Commit(ctx, sub.ID, sub.Source, sub.Record, sub.Submitter)
	if err != nil {
		log.Error().Err(err).Int64("submitter_id", sub.Submitter.ID).Msg("Approval failed, submission discarded")
		m.update(ctx, reply, MsgSaveFailed)
		return Outcome{State: StateFailed, SubmissionID: id, Submission: sub, Err: err}
	}

	log.Info().Int64("submitter_id", sub.Submitter.ID).Str("link", ref.Link).Msg("Approval committed")
	m.update(ctx, reply, approvedMessage(sub))
	m.notify(ctx, sub, fmt.Sprintf("✅ Your invoice from %s (%s ₪) was approved.", sub.Record.SupplierName, sub.Record.TotalAmount.StringFixed(2)))
	return Outcome{State: StateApproved, SubmissionID: id, Submission: sub, Reference: ref}
}

// Reject removes submission id and marks it for manual handling. It
// succeeds whether or not the entry still exists.
func (m *Machine) Reject(ctx context.Context, id string, reply Reply) Outcome {
	ctx = logger.Enrich(ctx, map[string]interface{}{"submission_id": id, "decision": "reject"})
	log := logger.FromContext(ctx)

	sub, found := m.store.Take(id)
	m.ack(ctx, reply, MsgRejected)
	m.update(ctx, reply, MsgRejectedOK)

	out := Outcome{State: StateRejected, SubmissionID: id}
	if found {
		out.Submission = sub
		m.notify(ctx, sub, fmt.Sprintf("❌ Your invoice from %s was rejected and will be handled manually.", sub.Record.SupplierName))
	}
	log.Info().Bool("found", found).Msg("Submission rejected")
	return out
}

func approvedMessage(sub pending.Submission) string {
	return fmt.Sprintf("✅ Approved and logged by Manager.\n\nSupplier: %s\nTotal: %s ₪",
		sub.Record.SupplierName, sub.Record.TotalAmount.StringFixed(2))
}

func (m *Machine) ack(ctx context.Context, reply Reply, text string) {
	if err := reply.Ack(ctx, text); err != nil {
		log := logger.FromContext(ctx)
		log.Warn().Err(err).Msg("Failed to acknowledge decision")
	}
}

func (m *Machine) update(ctx context.Context, reply Reply, text string) {
	if err := reply.Update(ctx, text); err != nil {
		log := logger.FromContext(ctx)
		log.Warn().Err(err).Msg("Failed to update approval message")
	}
}

func (m *Machine) notify(ctx context.Context, sub pending.Submission, text string) {
	if m.notifier == nil {
		return
	}
	if err := m.notifier.NotifySubmitter(ctx, sub.Submitter, text); err != nil {
		log := logger.FromContext(ctx)
		log.Warn().Err(err).Int64("submitter_id", sub.Submitter.ID).Msg("Failed to notify submitter")
	}
}
