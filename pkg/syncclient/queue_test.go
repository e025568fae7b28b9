package syncclient

import (
	"errors"
	"sync"
	"testing"
	"time"

	"itinerary-collab-be/pkg/document"
	"itinerary-collab-be/pkg/protocol"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu   sync.Mutex
	sent []protocol.Message
	fail error
}

func (r *recorder) Send(msg protocol.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return r.fail
	}
	r.sent = append(r.sent, msg)
	return nil
}

func (r *recorder) submits() []protocol.Submit {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []protocol.Submit
	for _, m := range r.sent {
		if s, ok := m.(protocol.Submit); ok {
			out = append(out, s)
		}
	}
	return out
}

func intPtr(v int) *int { return &v }

// baseDoc: <p>Hello</p>, content size 7.
func baseDoc() *document.Node {
	return document.Doc(document.Paragraph(document.Text("Hello")))
}

func readyQueue(t *testing.T, opts ...Option) (*Queue, *recorder) {
	t.Helper()
	rec := &recorder{}
	q := NewQueue(rec, opts...)
	require.NoError(t, q.Handle(protocol.Init{Version: 5, Document: baseDoc(), ClientID: "me"}))
	return q, rec
}

func TestQueueEditBeforeInit(t *testing.T) {
	q := NewQueue(&recorder{})
	assert.ErrorIs(t, q.Edit(document.Insert(1, document.Text("x"))), ErrNotReady)
}

func TestQueueOptimisticEditAndAccept(t *testing.T) {
	q, rec := readyQueue(t)

	require.NoError(t, q.Edit(document.Insert(6, document.Text("!"))))
	assert.Equal(t, "Hello!", q.Document().TextContent())
	require.Len(t, rec.submits(), 1)
	assert.Equal(t, 5, rec.submits()[0].BaseVersion)

	// a second edit waits for the first reply
	require.NoError(t, q.Edit(document.Insert(1, document.Text(">"))))
	assert.Len(t, rec.submits(), 1)
	assert.Equal(t, 2, q.State().Pending)

	require.NoError(t, q.Handle(protocol.Accepted{NewVersion: 6}))
	st := q.State()
	assert.Equal(t, 6, st.Version)
	assert.Equal(t, 1, st.Pending)
	require.Len(t, rec.submits(), 2)
	assert.Equal(t, 6, rec.submits()[1].BaseVersion)

	require.NoError(t, q.Handle(protocol.Accepted{NewVersion: 7}))
	assert.Equal(t, 0, q.State().Pending)
	assert.Equal(t, ">Hello!", q.Document().TextContent())
}

func TestQueueRefusesInvalidLocalStep(t *testing.T) {
	q, rec := readyQueue(t)
	err := q.Edit(document.Delete(0, 50))

	var failure *document.StepFailure
	require.True(t, errors.As(err, &failure))
	assert.Equal(t, document.FailureOutOfRange, failure.Kind)
	assert.Equal(t, 0, q.State().Pending)
	assert.Empty(t, rec.submits())
}

func TestQueueDiscardsOwnBatch(t *testing.T) {
	q, _ := readyQueue(t)
	require.NoError(t, q.Edit(document.Insert(6, document.Text("!"))))

	require.NoError(t, q.Handle(protocol.Steps{
		Steps:          []document.Step{document.Insert(6, document.Text("!"))},
		NewVersion:     6,
		OriginClientID: "me",
	}))
	assert.Equal(t, "Hello!", q.Document().TextContent(), "own batch must not be applied twice")
	assert.Equal(t, 5, q.Version())
}

func TestQueueRebasesAfterConflict(t *testing.T) {
	q, rec := readyQueue(t)
	local := document.Insert(1, document.Text(">"))
	require.NoError(t, q.Edit(local))

	// someone else got version 6 first
	remote := document.Insert(6, document.Text("!"))
	require.NoError(t, q.Handle(protocol.Steps{Steps: []document.Step{remote}, NewVersion: 6, OriginClientID: "other"}))
	assert.Equal(t, 6, q.Version())
	assert.Equal(t, ">Hello!", q.Document().TextContent(), "remote first, then local pending")
	assert.Len(t, rec.submits(), 1, "no resubmit while the old one is in flight")

	require.NoError(t, q.Handle(protocol.Rejected{CurrentVersion: 6, Reason: protocol.RejectVersionConflict}))
	subs := rec.submits()
	require.Len(t, subs, 2)
	assert.Equal(t, 6, subs[1].BaseVersion)
	require.Len(t, subs[1].Steps, 1)
	assert.True(t, subs[1].Steps[0].Equal(local), "pending steps are resubmitted unchanged")

	require.NoError(t, q.Handle(protocol.Accepted{NewVersion: 7}))
	assert.Equal(t, 7, q.Version())
	assert.NoError(t, q.Err())
}

func TestQueueWaitsForMissedSteps(t *testing.T) {
	q, rec := readyQueue(t)
	require.NoError(t, q.Edit(document.Insert(6, document.Text("!"))))

	require.NoError(t, q.Handle(protocol.Rejected{CurrentVersion: 6, Reason: protocol.RejectVersionConflict}))
	assert.Len(t, rec.submits(), 1, "cannot rebase before the missed batch arrives")

	require.NoError(t, q.Handle(protocol.Steps{Steps: []document.Step{document.Insert(1, document.Text("A"))}, NewVersion: 6, OriginClientID: "other"}))
	require.Len(t, rec.submits(), 2)
	assert.Equal(t, 6, rec.submits()[1].BaseVersion)
}

func TestQueueGivesUpAfterMaxRebaseAttempts(t *testing.T) {
	q, rec := readyQueue(t, WithMaxRebaseAttempts(2))
	require.NoError(t, q.Edit(document.Insert(1, document.Text(">"))))

	for v := 6; v <= 7; v++ {
		require.NoError(t, q.Handle(protocol.Steps{Steps: []document.Step{document.Insert(1, document.Text("x"))}, NewVersion: v, OriginClientID: "other"}))
		require.NoError(t, q.Handle(protocol.Rejected{CurrentVersion: v, Reason: protocol.RejectVersionConflict}))
	}
	require.NoError(t, q.Handle(protocol.Steps{Steps: []document.Step{document.Insert(1, document.Text("x"))}, NewVersion: 8, OriginClientID: "other"}))
	err := q.Handle(protocol.Rejected{CurrentVersion: 8, Reason: protocol.RejectVersionConflict})
	assert.ErrorIs(t, err, ErrUnsynced)
	assert.ErrorIs(t, q.Err(), ErrUnsynced)

	st := q.State()
	assert.Equal(t, 1, st.Pending, "edits are kept, not dropped")
	assert.Equal(t, ">xxxHello", st.Document.TextContent())

	before := len(rec.submits())
	require.NoError(t, q.Retry())
	assert.Len(t, rec.submits(), before+1)
}

func TestQueueStepFailureRejection(t *testing.T) {
	q, _ := readyQueue(t)
	require.NoError(t, q.Edit(document.Insert(6, document.Text("!"))))

	err := q.Handle(protocol.Rejected{CurrentVersion: 5, Reason: protocol.RejectStepFailure, FailedIndex: intPtr(0), FailureKind: document.FailureOutOfRange})
	assert.ErrorIs(t, err, ErrUnsynced)
	var failure *document.StepFailure
	require.True(t, errors.As(err, &failure))
	assert.Equal(t, 0, failure.Index)

	require.NoError(t, q.Discard())
	assert.NoError(t, q.Err())
	assert.Equal(t, "Hello", q.Document().TextContent())
}

func TestQueuePendingThatNoLongerApplies(t *testing.T) {
	q, _ := readyQueue(t)
	require.NoError(t, q.Edit(document.Delete(2, 5)))

	// the remote edit empties the paragraph the pending delete points into
	err := q.Handle(protocol.Steps{Steps: []document.Step{document.Delete(1, 6)}, NewVersion: 6, OriginClientID: "other"})
	assert.ErrorIs(t, err, ErrUnsynced)
	assert.Equal(t, 1, q.State().Pending)
	assert.Equal(t, "", q.Document().TextContent())

	// the step is in flight, so discarding cannot remove it
	assert.ErrorIs(t, q.Discard(), ErrUnsynced)
	assert.ErrorIs(t, q.Err(), ErrUnsynced)
}

func TestQueueVersionGap(t *testing.T) {
	q, _ := readyQueue(t)
	err := q.Handle(protocol.Steps{Steps: []document.Step{document.Insert(1, document.Text("x"))}, NewVersion: 9, OriginClientID: "other"})
	assert.ErrorIs(t, err, ErrVersionGap)
	assert.Equal(t, 5, q.Version())
}

func TestQueueCatchUpInit(t *testing.T) {
	q, rec := readyQueue(t)
	require.NoError(t, q.Edit(document.Insert(1, document.Text(">"))))

	// connection dropped before the reply; rejoin at version 5
	known, ready := q.PrepareRejoin()
	require.True(t, ready)
	assert.Equal(t, 5, known)

	// the submission never made it, someone else's batch did
	require.NoError(t, q.Handle(protocol.Init{
		Version: 6,
		Batches: []protocol.Steps{
			{Steps: []document.Step{document.Insert(6, document.Text("!"))}, NewVersion: 6, OriginClientID: "other"},
		},
		ClientID: "me-again",
	}))
	assert.Equal(t, ">Hello!", q.Document().TextContent())
	subs := rec.submits()
	require.Len(t, subs, 2)
	assert.Equal(t, 6, subs[1].BaseVersion)
}

func TestQueueCatchUpRecognisesOwnBatch(t *testing.T) {
	q, rec := readyQueue(t)
	require.NoError(t, q.Edit(document.Insert(6, document.Text("!"))))
	require.NoError(t, q.Edit(document.Insert(1, document.Text(">"))))
	require.Len(t, rec.submits(), 1)

	// accepted at 6, but the reply was lost with the connection
	_, ready := q.PrepareRejoin()
	require.True(t, ready)
	require.NoError(t, q.Handle(protocol.Init{
		Version: 7,
		Batches: []protocol.Steps{
			{Steps: []document.Step{document.Insert(6, document.Text("!"))}, NewVersion: 6, OriginClientID: "me"},
			{Steps: []document.Step{document.Insert(1, document.Text("A"))}, NewVersion: 7, OriginClientID: "other"},
		},
		ClientID: "me-again",
	}))

	st := q.State()
	assert.Equal(t, 7, st.Version)
	assert.Equal(t, 1, st.Pending, "only the unsent edit is left")
	assert.Equal(t, ">AHello!", st.Document.TextContent())
	subs := rec.submits()
	require.Len(t, subs, 2)
	assert.Equal(t, 7, subs[1].BaseVersion)
	require.Len(t, subs[1].Steps, 1)
	assert.True(t, subs[1].Steps[0].Equal(document.Insert(1, document.Text(">"))))
}

func TestQueueSnapshotInitAbandonsInFlight(t *testing.T) {
	q, rec := readyQueue(t)
	require.NoError(t, q.Edit(document.Insert(6, document.Text("!"))))
	require.NoError(t, q.Edit(document.Insert(1, document.Text(">"))))

	q.PrepareRejoin()
	require.NoError(t, q.Handle(protocol.Init{Version: 9, Document: document.Doc(document.Paragraph(document.Text("Hello!"))), ClientID: "me-again"}))

	st := q.State()
	assert.Equal(t, 1, st.Pending)
	assert.Equal(t, ">Hello!", st.Document.TextContent())
	subs := rec.submits()
	require.Len(t, subs, 2)
	assert.Equal(t, 9, subs[1].BaseVersion)
}

func TestQueueChannelFailureKeepsPending(t *testing.T) {
	q, rec := readyQueue(t)
	rec.fail = errors.New("broken pipe")

	err := q.Edit(document.Insert(6, document.Text("!")))
	var cf *ChannelFailure
	require.True(t, errors.As(err, &cf))
	st := q.State()
	assert.Equal(t, 1, st.Pending)
	assert.Equal(t, 0, st.InFlight)
}

func TestPresenceSetPurgesOnUserLeft(t *testing.T) {
	p := NewPresenceSet()
	p.Handle(protocol.Init{PresentUsers: []protocol.PresentUser{
		{UserID: "ana", DisplayName: "Ana", Color: "#e6194b", From: intPtr(1), To: intPtr(3)},
		{UserID: "bo", DisplayName: "Bo", Color: "#3cb44b"},
	}})
	require.Len(t, p.Peers(), 1, "users without a selection have no overlay")

	assert.True(t, p.Handle(protocol.Presence{UserID: "bo", DisplayName: "Bo", Color: "#3cb44b", From: intPtr(4), To: intPtr(4)}))
	assert.Len(t, p.Peers(), 2)

	assert.True(t, p.Handle(protocol.UserLeft{UserID: "ana"}))
	_, ok := p.Get("ana")
	assert.False(t, ok)

	assert.True(t, p.Handle(protocol.Presence{UserID: "bo"}))
	assert.Empty(t, p.Peers())
}

func TestSelectionDebouncerCoalesces(t *testing.T) {
	sent := make(chan protocol.Selection, 4)
	d := NewSelectionDebouncer(30*time.Millisecond, func(s protocol.Selection) { sent <- s })

	d.Update(intPtr(1), intPtr(1))
	d.Update(intPtr(2), intPtr(2))
	d.Update(intPtr(3), intPtr(5))

	select {
	case s := <-sent:
		require.False(t, s.Empty())
		assert.Equal(t, 3, *s.From)
		assert.Equal(t, 5, *s.To)
	case <-time.After(time.Second):
		t.Fatal("debounced selection never sent")
	}
	select {
	case s := <-sent:
		t.Fatalf("unexpected second send %+v", s)
	case <-time.After(80 * time.Millisecond):
	}
}
