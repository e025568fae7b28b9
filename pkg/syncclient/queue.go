// Package syncclient is the editor side of the collaboration protocol: a
// reconciliation queue holding optimistic local steps, the remote presence
// set, and a websocket transport that feeds both.
package syncclient

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"itinerary-collab-be/pkg/document"
	"itinerary-collab-be/pkg/protocol"
)

// DefaultMaxRebaseAttempts bounds consecutive version conflicts before the
// queue gives up.
const DefaultMaxRebaseAttempts = 5

var (
	// ErrUnsynced is surfaced when local edits could not be reconciled with
	// the server. The edits are kept, never silently dropped.
	ErrUnsynced   = errors.New("your changes could not be synced")
	ErrNotReady   = errors.New("no init received yet")
	ErrVersionGap = errors.New("missed a step batch")
)

// ChannelFailure wraps a transport error. Presence is gone with the
// connection; pending steps survive and are resubmitted after a new join.
type ChannelFailure struct {
	Err error
}

func (e *ChannelFailure) Error() string { return fmt.Sprintf("channel failure: %v", e.Err) }

func (e *ChannelFailure) Unwrap() error { return e.Err }

// Sender delivers client messages to the session.
type Sender interface {
	Send(msg protocol.Message) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(msg protocol.Message) error

func (f SenderFunc) Send(msg protocol.Message) error { return f(msg) }

// State is a consistent copy of the queue's view.
type State struct {
	Ready    bool
	ClientID string
	Version  int
	Document *document.Node
	Pending  int
	InFlight int
	Err      error
}

// Queue keeps the last confirmed server document, the steps made locally on
// top of it that the server has not acknowledged, and the optimistic local
// document (confirmed + pending). At most one submission is in flight.
type Queue struct {
	sender            Sender
	maxRebaseAttempts int

	mu        sync.Mutex
	ready     bool
	clientID  string
	confirmed *document.Node
	version   int
	local     *document.Node
	pending   []document.Step
	inflight  int // pending[:inflight] is awaiting a reply
	waitFor   int // do not resubmit before reaching this version
	rebases   int
	err       error
	changed   chan struct{}
}

// Option configures a Queue.
type Option func(*Queue)

// WithMaxRebaseAttempts overrides DefaultMaxRebaseAttempts.
func WithMaxRebaseAttempts(n int) Option {
	return func(q *Queue) { q.maxRebaseAttempts = n }
}

func NewQueue(sender Sender, opts ...Option) *Queue {
	q := &Queue{
		sender:            sender,
		maxRebaseAttempts: DefaultMaxRebaseAttempts,
		changed:           make(chan struct{}),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// State returns a snapshot of the queue.
func (q *Queue) State() State {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.stateLocked()
}

func (q *Queue) stateLocked() State {
	return State{
		Ready:    q.ready,
		ClientID: q.clientID,
		Version:  q.version,
		Document: q.local,
		Pending:  len(q.pending),
		InFlight: q.inflight,
		Err:      q.err,
	}
}

// Document is the optimistic local document.
func (q *Queue) Document() *document.Node { return q.State().Document }

// Version is the last server version incorporated.
func (q *Queue) Version() int { return q.State().Version }

// Err returns ErrUnsynced (wrapped) once reconciliation has given up.
func (q *Queue) Err() error { return q.State().Err }

// Wait blocks until cond holds for the current state or ctx ends.
func (q *Queue) Wait(ctx context.Context, cond func(State) bool) error {
	for {
		q.mu.Lock()
		st, ch := q.stateLocked(), q.changed
		q.mu.Unlock()
		if cond(st) {
			return nil
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (q *Queue) notifyLocked() {
	close(q.changed)
	q.changed = make(chan struct{})
}

// Edit applies steps to the local document right away and queues them for
// submission. Steps that do not apply locally are refused with their
// *document.StepFailure and change nothing.
func (q *Queue) Edit(steps ...document.Step) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.ready {
		return ErrNotReady
	}
	doc, err := document.ComposeSequential(q.local, steps)
	if err != nil {
		return err
	}
	q.local = doc
	q.pending = append(q.pending, steps...)
	defer q.notifyLocked()
	return q.flushLocked()
}

// Handle feeds one server message into the queue. Presence messages are
// ignored here.
func (q *Queue) Handle(msg protocol.Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	defer q.notifyLocked()

	switch m := msg.(type) {
	case protocol.Init:
		return q.handleInit(m)
	case protocol.Accepted:
		return q.handleAccepted(m)
	case protocol.Rejected:
		return q.handleRejected(m)
	case protocol.Steps:
		return q.handleSteps(m)
	}
	return nil
}

func (q *Queue) handleInit(m protocol.Init) error {
	if m.Document != nil {
		q.confirmed = m.Document
		// the fate of a submission made on a dropped connection is unknown
		// without history; it is abandoned rather than risk applying it twice
		q.pending = q.pending[q.inflight:]
	} else {
		if !q.ready {
			return fmt.Errorf("%w: catch-up init without a document", ErrNotReady)
		}
		if err := q.catchUpLocked(m.Batches); err != nil {
			return err
		}
	}
	q.clientID = m.ClientID
	q.version = m.Version
	q.ready = true
	q.inflight = 0
	q.waitFor = 0
	if err := q.rebuildLocked(); err != nil {
		return err
	}
	return q.flushLocked()
}

// catchUpLocked applies the batches missed while disconnected. A batch from
// the previous connection can only be the submission that was in flight when
// it dropped: the server accepted it, so it leaves pending instead of being
// sent again.
func (q *Queue) catchUpLocked(batches []protocol.Steps) error {
	for _, b := range batches {
		doc, err := document.ComposeSequential(q.confirmed, b.Steps)
		if err != nil {
			q.err = fmt.Errorf("%w: catch-up: %w", ErrUnsynced, err)
			return q.err
		}
		q.confirmed = doc
		if q.inflight > 0 && q.clientID != "" && b.OriginClientID == q.clientID {
			if len(b.Steps) != q.inflight {
				q.err = fmt.Errorf("%w: own batch of %d steps, %d were in flight", ErrUnsynced, len(b.Steps), q.inflight)
				return q.err
			}
			q.pending = q.pending[q.inflight:]
			q.inflight = 0
			q.rebases = 0
		}
	}
	return nil
}

func (q *Queue) handleAccepted(m protocol.Accepted) error {
	if q.inflight == 0 {
		return fmt.Errorf("accepted version %d with nothing in flight", m.NewVersion)
	}
	doc, err := document.ComposeSequential(q.confirmed, q.pending[:q.inflight])
	if err != nil {
		// the server applied these to the same document; this is divergence
		q.err = fmt.Errorf("%w: %w", ErrUnsynced, err)
		return q.err
	}
	q.confirmed = doc
	q.version = m.NewVersion
	q.pending = q.pending[q.inflight:]
	q.inflight = 0
	q.rebases = 0
	return q.flushLocked()
}

func (q *Queue) handleRejected(m protocol.Rejected) error {
	q.inflight = 0
	switch m.Reason {
	case protocol.RejectStepFailure:
		index := -1
		if m.FailedIndex != nil {
			index = *m.FailedIndex
		}
		failure := &document.StepFailure{Kind: m.FailureKind, Index: index, Message: "rejected by server"}
		q.err = fmt.Errorf("%w: %w", ErrUnsynced, failure)
		return q.err
	default:
		q.rebases++
		if q.rebases > q.maxRebaseAttempts {
			q.err = fmt.Errorf("%w: %d consecutive version conflicts", ErrUnsynced, q.rebases)
			return q.err
		}
		q.waitFor = m.CurrentVersion
		return q.flushLocked()
	}
}

func (q *Queue) handleSteps(m protocol.Steps) error {
	if q.clientID != "" && m.OriginClientID == q.clientID {
		// already applied optimistically
		return nil
	}
	base := m.NewVersion - len(m.Steps)
	switch {
	case m.NewVersion <= q.version:
		return nil
	case base != q.version:
		return fmt.Errorf("%w: at %d, batch starts at %d", ErrVersionGap, q.version, base)
	}

	doc, err := document.ComposeSequential(q.confirmed, m.Steps)
	if err != nil {
		q.err = fmt.Errorf("%w: remote batch: %w", ErrUnsynced, err)
		return q.err
	}
	q.confirmed = doc
	q.version = m.NewVersion
	if err := q.rebuildLocked(); err != nil {
		return err
	}
	return q.flushLocked()
}

// rebuildLocked replays pending on top of the confirmed document: remote
// steps first, local pending after. A pending step that no longer applies
// stops the replay and marks the queue unsynced, keeping every step.
func (q *Queue) rebuildLocked() error {
	doc := q.confirmed
	for i, s := range q.pending {
		next, err := s.Apply(doc)
		if err != nil {
			var failure *document.StepFailure
			if errors.As(err, &failure) {
				failure.Index = i
			}
			q.local = doc
			q.err = fmt.Errorf("%w: pending step no longer applies: %w", ErrUnsynced, err)
			return q.err
		}
		doc = next
	}
	q.local = doc
	return nil
}

// flushLocked submits every pending step when nothing is in flight.
func (q *Queue) flushLocked() error {
	if q.err != nil || q.inflight > 0 || len(q.pending) == 0 || q.version < q.waitFor {
		return nil
	}
	steps := make([]document.Step, len(q.pending))
	copy(steps, q.pending)
	q.inflight = len(steps)
	if err := q.sender.Send(protocol.Submit{BaseVersion: q.version, Steps: steps}); err != nil {
		q.inflight = 0
		var cf *ChannelFailure
		if errors.As(err, &cf) {
			return err
		}
		return &ChannelFailure{Err: err}
	}
	return nil
}

// PrepareRejoin returns the version to send as knownVersion in the next
// join. A submission still in flight stays marked as such until the init
// tells whether the server took it.
func (q *Queue) PrepareRejoin() (int, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.waitFor = 0
	return q.version, q.ready
}

// Retry clears an unsynced state and resubmits the pending steps. The rebuilt
// local document may still refuse a pending step, in which case the queue is
// unsynced again.
func (q *Queue) Retry() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	defer q.notifyLocked()
	q.err = nil
	q.rebases = 0
	if err := q.rebuildLocked(); err != nil {
		return err
	}
	return q.flushLocked()
}

// Discard drops the pending steps that are not in flight and clears an
// unsynced state. If the in-flight steps themselves no longer apply, the
// queue stays unsynced and the error is returned.
func (q *Queue) Discard() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	defer q.notifyLocked()
	q.pending = q.pending[:q.inflight]
	q.err = nil
	q.rebases = 0
	return q.rebuildLocked()
}
