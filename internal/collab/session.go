// Package collab is the server side authority for collaboratively edited
// documents: one Session per open document, owned by a Registry.
package collab

import (
	"errors"
	"fmt"
	"sync"

	"itinerary-collab-be/internal/pkg/logger"
	"itinerary-collab-be/pkg/document"
	"itinerary-collab-be/pkg/protocol"
)

// Subscriber is one connected editor. Deliver must not block; it reports
// false when the message could not be queued.
type Subscriber interface {
	ClientID() string
	Deliver(msg protocol.Message) bool
}

// User identifies the person behind a connection.
type User struct {
	ID          string
	DisplayName string
}

// VersionConflict rejects a submission built on a stale version.
type VersionConflict struct {
	BaseVersion    int
	CurrentVersion int
}

func (e *VersionConflict) Error() string {
	return fmt.Sprintf("version conflict: submitted against %d, current is %d", e.BaseVersion, e.CurrentVersion)
}

var (
	ErrAlreadyJoined   = errors.New("client already joined")
	ErrNotMember       = errors.New("client is not in the session")
	ErrVersionNotKnown = errors.New("version not in history")
	ErrEmptySubmission = errors.New("submission has no steps")
)

// Palette is the fixed set of presence colors, handed out round-robin.
var Palette = []string{
	"#e6194b", "#3cb44b", "#4363d8", "#f58231",
	"#911eb4", "#42d4f4", "#f032e6", "#9a6324",
}

// Batch describes an accepted submission.
type Batch struct {
	DocumentID string
	Origin     string
	Steps      []document.Step
	Version    int
}

type member struct {
	sub   Subscriber
	user  User
	color string
	from  *int
	to    *int
}

// Session holds the canonical document of one document id. Every mutation
// happens under mu, and every message to members is queued under mu too, so
// all members observe accepted batches in the same order.
type Session struct {
	id  string
	log logger.ILogger

	mu          sync.Mutex
	doc         *document.Node
	version     int
	baseVersion int // version doc had when the session was loaded
	history     []protocol.Steps // accepted batches since baseVersion, oldest first
	members     map[string]*member
	order       []string // client ids in join order
	nextColor   int

	onAccepted func(Batch)
}

// NewSession starts a session at version from a loaded snapshot.
func NewSession(id string, doc *document.Node, version int, log logger.ILogger) *Session {
	if doc == nil {
		doc = document.EmptyDoc()
	}
	return &Session{
		id:          id,
		log:         log,
		doc:         doc,
		version:     version,
		baseVersion: version,
		members:     make(map[string]*member),
	}
}

// OnAccepted registers a hook called after each accepted batch, outside the
// session lock.
func (s *Session) OnAccepted(fn func(Batch)) {
	s.mu.Lock()
	s.onAccepted = fn
	s.mu.Unlock()
}

// ID returns the document id.
func (s *Session) ID() string { return s.id }

// Snapshot returns the canonical document and its version.
func (s *Session) Snapshot() (*document.Node, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc, s.version
}

// StepsSince returns the accepted steps after version v.
func (s *Session) StepsSince(v int) ([]document.Step, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	batches, err := s.batchesSinceLocked(v)
	if err != nil {
		return nil, err
	}
	out := make([]document.Step, 0, s.version-v)
	for _, b := range batches {
		out = append(out, b.Steps...)
	}
	return out, nil
}

// BatchesSince returns the accepted batches after version v with their
// origin client ids. A batch straddling v is cut to the steps after v.
func (s *Session) BatchesSince(v int) ([]protocol.Steps, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.batchesSinceLocked(v)
}

func (s *Session) batchesSinceLocked(v int) ([]protocol.Steps, error) {
	if v < s.baseVersion || v > s.version {
		return nil, fmt.Errorf("%w: %d not in [%d,%d]", ErrVersionNotKnown, v, s.baseVersion, s.version)
	}
	out := []protocol.Steps{}
	for _, b := range s.history {
		if b.NewVersion <= v {
			continue
		}
		if start := b.NewVersion - len(b.Steps); start < v {
			b.Steps = b.Steps[v-start:]
		}
		out = append(out, b)
	}
	return out, nil
}

// MemberCount returns the number of connected clients.
func (s *Session) MemberCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.members)
}

// Join adds sub and sends it an init message. With a knownVersion still in
// history the init carries only the missed batches instead of the document,
// each with its origin so a reconnecting editor can recognise a submission
// whose reply it never got.
// The other members learn about the newcomer through an empty presence.
func (s *Session) Join(sub Subscriber, user User, knownVersion *int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := sub.ClientID()
	if _, ok := s.members[id]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyJoined, id)
	}

	init := protocol.Init{Version: s.version, ClientID: id, PresentUsers: s.presentUsersLocked()}
	if knownVersion != nil {
		if missed, err := s.batchesSinceLocked(*knownVersion); err == nil {
			init.Batches = missed
		}
	}
	if init.Batches == nil {
		init.Document = s.doc
	}

	m := &member{sub: sub, user: user, color: Palette[s.nextColor%len(Palette)]}
	s.nextColor++
	s.members[id] = m
	s.order = append(s.order, id)

	s.deliver(m, init)
	s.broadcast(id, protocol.Presence{UserID: user.ID, DisplayName: user.DisplayName, Color: m.color})

	s.log.Info("Session", "Client joined", map[string]interface{}{
		"document_id": s.id, "client_id": id, "user_id": user.ID, "version": s.version,
	})
	return nil
}

func (s *Session) presentUsersLocked() []protocol.PresentUser {
	users := make([]protocol.PresentUser, 0, len(s.order))
	for _, id := range s.order {
		m := s.members[id]
		users = append(users, protocol.PresentUser{
			UserID: m.user.ID, DisplayName: m.user.DisplayName, Color: m.color, From: m.from, To: m.to,
		})
	}
	return users
}

// Submit applies steps built against baseVersion. The whole batch is applied
// or nothing is: a stale base yields *VersionConflict, a failing step a
// *document.StepFailure with its Index, and in both cases the document and
// version stay as they were.
//
// origin is usually a member's client id, which then gets the accepted or
// rejected reply in order with the broadcasts. Non-member origins (the
// assistant) only get the return value.
func (s *Session) Submit(origin string, baseVersion int, steps []document.Step) (int, error) {
	if len(steps) == 0 {
		return 0, ErrEmptySubmission
	}

	s.mu.Lock()
	submitter := s.members[origin]

	if baseVersion != s.version {
		conflict := &VersionConflict{BaseVersion: baseVersion, CurrentVersion: s.version}
		if submitter != nil {
			s.deliver(submitter, protocol.Rejected{CurrentVersion: s.version, Reason: protocol.RejectVersionConflict})
		}
		s.mu.Unlock()
		s.log.Debug("Session", "Stale submission rejected", map[string]interface{}{
			"document_id": s.id, "client_id": origin, "base_version": baseVersion, "version": conflict.CurrentVersion,
		})
		return conflict.CurrentVersion, conflict
	}

	doc, err := document.ComposeSequential(s.doc, steps)
	if err != nil {
		current := s.version
		if submitter != nil {
			rejected := protocol.Rejected{CurrentVersion: current, Reason: protocol.RejectStepFailure}
			var failure *document.StepFailure
			if errors.As(err, &failure) {
				index := failure.Index
				rejected.FailedIndex = &index
				rejected.FailureKind = failure.Kind
			}
			s.deliver(submitter, rejected)
		}
		s.mu.Unlock()
		s.log.Warn("Session", "Submission failed to apply", map[string]interface{}{
			"document_id": s.id, "client_id": origin, "error": err.Error(),
		})
		return current, err
	}

	s.doc = doc
	s.version += len(steps)
	version := s.version
	s.history = append(s.history, protocol.Steps{Steps: append([]document.Step(nil), steps...), NewVersion: version, OriginClientID: origin})

	if submitter != nil {
		s.deliver(submitter, protocol.Accepted{NewVersion: version})
	}
	s.broadcast(origin, protocol.Steps{Steps: steps, NewVersion: version, OriginClientID: origin})
	hook := s.onAccepted
	s.mu.Unlock()

	if hook != nil {
		hook(Batch{DocumentID: s.id, Origin: origin, Steps: steps, Version: version})
	}
	return version, nil
}

// UpdateSelection records a member's selection and fans it out verbatim to
// the others. Nil bounds clear the selection.
func (s *Session) UpdateSelection(clientID string, from, to *int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.members[clientID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotMember, clientID)
	}
	if from == nil || to == nil {
		from, to = nil, nil
	}
	m.from, m.to = from, to
	s.broadcast(clientID, protocol.Presence{
		UserID: m.user.ID, DisplayName: m.user.DisplayName, Color: m.color, From: from, To: to,
	})
	return nil
}

// Leave removes a member and returns how many remain. The others get a
// userLeft once the user has no connection left.
func (s *Session) Leave(clientID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.members[clientID]
	if !ok {
		return len(s.members), fmt.Errorf("%w: %s", ErrNotMember, clientID)
	}
	delete(s.members, clientID)
	for i, id := range s.order {
		if id == clientID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}

	stillHere := false
	for _, other := range s.members {
		if other.user.ID == m.user.ID {
			stillHere = true
			break
		}
	}
	if !stillHere {
		s.broadcast(clientID, protocol.UserLeft{UserID: m.user.ID})
	}

	s.log.Info("Session", "Client left", map[string]interface{}{
		"document_id": s.id, "client_id": clientID, "remaining": len(s.members),
	})
	return len(s.members), nil
}

func (s *Session) deliver(m *member, msg protocol.Message) {
	if !m.sub.Deliver(msg) {
		s.log.Warn("Session", "Client send buffer full, message dropped", map[string]interface{}{
			"document_id": s.id, "client_id": m.sub.ClientID(), "type": msg.MessageType(),
		})
	}
}

// broadcast sends msg to every member except the one with id except.
func (s *Session) broadcast(except string, msg protocol.Message) {
	for _, id := range s.order {
		if id == except {
			continue
		}
		s.deliver(s.members[id], msg)
	}
}
