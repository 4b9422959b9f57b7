package approval

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/dvloznov/invoice-agent/internal/dispatch"
	"github.com/dvloznov/invoice-agent/internal/invoice"
	"github.com/dvloznov/invoice-agent/internal/pending"
)

type mockCommitter struct {
	mu         sync.Mutex
	calls      int
	ids        []string
	CommitFunc func(ctx context.Context, id string, src pending.Source, rec invoice.Record, sub pending.Submitter) (dispatch.Reference, error)
}

func (m *mockCommitter) Commit(ctx context.Context, id string, src pending.Source, rec invoice.Record, sub pending.Submitter) (dispatch.Reference, error) {
	m.mu.Lock()
	m.calls++
	m.ids = append(m.ids, id)
	m.mu.Unlock()
	if m.CommitFunc != nil {
		return m.CommitFunc(ctx, id, src, rec, sub)
	}
	return dispatch.Reference{Link: "https://files/" + sub.DisplayName}, nil
}

type recordingReply struct {
	mu      sync.Mutex
	acks    []string
	updates []string
	err     error
}

func (r *recordingReply) Ack(ctx context.Context, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.acks = append(r.acks, text)
	return r.err
}

func (r *recordingReply) Update(ctx context.Context, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, text)
	return r.err
}

type mockNotifier struct {
	NotifySubmitterFunc func(ctx context.Context, sub pending.Submitter, text string) error
	sent                []string
}

func (m *mockNotifier) NotifySubmitter(ctx context.Context, sub pending.Submitter, text string) error {
	m.sent = append(m.sent, text)
	if m.NotifySubmitterFunc != nil {
		return m.NotifySubmitterFunc(ctx, sub, text)
	}
	return nil
}

func seed(store *pending.Store) string {
	return store.Create(pending.Submission{
		Submitter: pending.Submitter{ID: 3, DisplayName: "Dana", ChatID: 3},
		Record: invoice.Normalize(invoice.Fields{
			SupplierName: invoice.Str("Paz"),
			TotalAmount:  invoice.RawAmount(`342`),
		}),
		Source: pending.Source{URL: "https://tg/file"},
	})
}

func TestMachine_Approve(t *testing.T) {
	store := pending.NewStore()
	id := seed(store)
	committer := &mockCommitter{}
	notifier := &mockNotifier{}
	reply := &recordingReply{}

	out := New(store, committer, notifier).Approve(context.Background(), id, reply)

	if out.State != StateApproved || out.Err != nil {
		t.Fatalf("outcome = %+v, want approved", out)
	}
	if out.Reference.Link != "https://files/Dana" {
		t.Errorf("reference = %+v", out.Reference)
	}
	if committer.calls != 1 || committer.ids[0] != id {
		t.Errorf("commit calls = %d ids %q, want 1 for %q", committer.calls, committer.ids, id)
	}
	if _, ok := store.Get(id); ok {
		t.Error("entry still in store after approval")
	}
	if len(reply.acks) != 1 || reply.acks[0] != MsgApproving {
		t.Errorf("acks = %q", reply.acks)
	}
	want := "✅ Approved and logged by Manager.\n\nSupplier: Paz\nTotal: 342.00 ₪"
	if len(reply.updates) != 1 || reply.updates[0] != want {
		t.Errorf("updates = %q, want %q", reply.updates, want)
	}
	if len(notifier.sent) != 1 || !strings.Contains(notifier.sent[0], "approved") {
		t.Errorf("submitter notices = %q", notifier.sent)
	}
}

func TestMachine_ApproveUnknownID(t *testing.T) {
	committer := &mockCommitter{}
	reply := &recordingReply{}

	out := New(pending.NewStore(), committer, nil).Approve(context.Background(), "missing", reply)

	if out.State != StateExpired {
		t.Errorf("state = %s, want expired", out.State)
	}
	if !errors.Is(out.Err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", out.Err)
	}
	if committer.calls != 0 {
		t.Errorf("commit called %d times for unknown id", committer.calls)
	}
	if len(reply.acks) != 1 || reply.acks[0] != MsgExpired {
		t.Errorf("acks = %q", reply.acks)
	}
	if len(reply.updates) != 0 {
		t.Errorf("updates = %q, want none", reply.updates)
	}
}

func TestMachine_ApproveTwice(t *testing.T) {
	store := pending.NewStore()
	id := seed(store)
	committer := &mockCommitter{}
	m := New(store, committer, nil)

	first := m.Approve(context.Background(), id, &recordingReply{})
	second := m.Approve(context.Background(), id, &recordingReply{})

	if first.State != StateApproved || second.State != StateExpired {
		t.Errorf("states = %s, %s; want approved, expired", first.State, second.State)
	}
	if committer.calls != 1 {
		t.Errorf("commit calls = %d, want 1", committer.calls)
	}
}

func TestMachine_ConcurrentApprovalsCommitOnce(t *testing.T) {
	store := pending.NewStore()
	id := seed(store)
	committer := &mockCommitter{}
	m := New(store, committer, nil)

	var wg sync.WaitGroup
	states := make([]State, 20)
	for i := range states {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			states[i] = m.Approve(context.Background(), id, &recordingReply{}).State
		}(i)
	}
	wg.Wait()

	approved := 0
	for _, s := range states {
		if s == StateApproved {
			approved++
		}
	}
	if approved != 1 || committer.calls != 1 {
		t.Errorf("approved = %d, commits = %d; want 1, 1", approved, committer.calls)
	}
}

func TestMachine_ApprovePersistenceFailure(t *testing.T) {
	store := pending.NewStore()
	id := seed(store)
	boom := &dispatch.Failure{Stage: dispatch.StageLedger, Err: errors.New("quota exceeded")}
	committer := &mockCommitter{
		CommitFunc: func(ctx context.Context, id string, src pending.Source, rec invoice.Record, sub pending.Submitter) (dispatch.Reference, error) {
			return dispatch.Reference{}, boom
		},
	}
	notifier := &mockNotifier{}
	reply := &recordingReply{}

	out := New(store, committer, notifier).Approve(context.Background(), id, reply)

	if out.State != StateFailed {
		t.Fatalf("state = %s, want failed", out.State)
	}
	if !errors.Is(out.Err, dispatch.ErrPersistence) {
		t.Errorf("err = %v, want ErrPersistence", out.Err)
	}
	if _, ok := store.Get(id); ok {
		t.Error("entry kept after failed persistence")
	}
	if len(reply.updates) != 1 || reply.updates[0] != MsgSaveFailed {
		t.Errorf("updates = %q", reply.updates)
	}
	if len(notifier.sent) != 0 {
		t.Errorf("submitter notified on failure: %q", notifier.sent)
	}

	// A retry of the same decision finds nothing.
	if again := New(store, committer, nil).Approve(context.Background(), id, &recordingReply{}); again.State != StateExpired {
		t.Errorf("retry state = %s, want expired", again.State)
	}
}

func TestMachine_Reject(t *testing.T) {
	tests := []struct {
		name       string
		seeded     bool
		wantNotice bool
	}{
		{name: "pending entry", seeded: true, wantNotice: true},
		{name: "absent entry", seeded: false, wantNotice: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := pending.NewStore()
			id := "missing"
			if tt.seeded {
				id = seed(store)
			}
			committer := &mockCommitter{}
			notifier := &mockNotifier{}
			reply := &recordingReply{}

			out := New(store, committer, notifier).Reject(context.Background(), id, reply)

			if out.State != StateRejected || out.Err != nil {
				t.Errorf("outcome = %+v, want rejected", out)
			}
			if store.Len() != 0 {
				t.Errorf("store len = %d, want 0", store.Len())
			}
			if committer.calls != 0 {
				t.Error("reject must not commit")
			}
			if len(reply.updates) != 1 || reply.updates[0] != MsgRejectedOK {
				t.Errorf("updates = %q", reply.updates)
			}
			if got := len(notifier.sent) == 1; got != tt.wantNotice {
				t.Errorf("submitter notices = %q", notifier.sent)
			}
		})
	}
}

func TestMachine_ReplyErrorsDoNotAbort(t *testing.T) {
	store := pending.NewStore()
	id := seed(store)
	notifier := &mockNotifier{NotifySubmitterFunc: func(ctx context.Context, sub pending.Submitter, text string) error {
		return errors.New("blocked by user")
	}}
	reply := &recordingReply{err: errors.New("message too old")}

	out := New(store, &mockCommitter{}, notifier).Approve(context.Background(), id, reply)

	if out.State != StateApproved {
		t.Errorf("state = %s, want approved", out.State)
	}
}

func TestState_Terminal(t *testing.T) {
	for _, s := range []State{StateApproved, StateRejected, StateExpired, StateFailed} {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	if StateExtracted.Terminal() {
		t.Error("extracted should not be terminal")
	}
}
