package collab

import (
	"context"
	"fmt"
	"sync"
	"time"

	"itinerary-collab-be/internal/entity"
	"itinerary-collab-be/internal/pkg/logger"
	"itinerary-collab-be/internal/repository/contract"
	"itinerary-collab-be/pkg/document"
)

const saveTimeout = 10 * time.Second

// Observer is told about session lifecycle and accepted batches. Calls happen
// outside every lock.
type Observer interface {
	SessionOpened(documentID string, version int)
	SessionClosed(documentID string, version int)
	BatchAccepted(batch Batch)
}

type nopObserver struct{}

func (nopObserver) SessionOpened(string, int) {}
func (nopObserver) SessionClosed(string, int) {}
func (nopObserver) BatchAccepted(Batch)       {}

type entry struct {
	session *Session
	refs    int
	ready   chan struct{} // closed once loading finished
	err     error
	closing chan struct{} // set while the last reference saves and tears down

	saveMu sync.Mutex
	saved  int // last version written to the repository
}

// Registry owns the live sessions, one per document id. A session is loaded
// from the snapshot repository on first use and saved back when its last
// reference is released.
type Registry struct {
	repo     contract.SnapshotRepository
	log      logger.ILogger
	observer Observer

	mu      sync.Mutex
	entries map[string]*entry
}

func NewRegistry(repo contract.SnapshotRepository, log logger.ILogger, observer Observer) *Registry {
	if observer == nil {
		observer = nopObserver{}
	}
	return &Registry{
		repo:     repo,
		log:      log,
		observer: observer,
		entries:  make(map[string]*entry),
	}
}

// Acquire returns the live session for documentID, loading it if needed.
// The caller must call release exactly once.
func (r *Registry) Acquire(ctx context.Context, documentID string) (*Session, func(), error) {
	r.mu.Lock()
	for {
		e, ok := r.entries[documentID]
		if !ok {
			break
		}
		if e.closing != nil {
			// wait for the previous incarnation to be saved
			closing := e.closing
			r.mu.Unlock()
			select {
			case <-closing:
			case <-ctx.Done():
				return nil, nil, ctx.Err()
			}
			r.mu.Lock()
			continue
		}
		e.refs++
		r.mu.Unlock()
		select {
		case <-e.ready:
		case <-ctx.Done():
			r.release(documentID, e)
			return nil, nil, ctx.Err()
		}
		if e.err != nil {
			return nil, nil, e.err
		}
		return e.session, r.releaser(documentID, e), nil
	}

	e := &entry{refs: 1, ready: make(chan struct{})}
	r.entries[documentID] = e
	r.mu.Unlock()

	session, err := r.load(ctx, documentID)
	if err != nil {
		r.mu.Lock()
		if r.entries[documentID] == e {
			delete(r.entries, documentID)
		}
		e.err = err
		r.mu.Unlock()
		close(e.ready)
		return nil, nil, err
	}
	_, version := session.Snapshot()
	r.mu.Lock()
	e.session = session
	e.saved = version
	r.mu.Unlock()
	close(e.ready)

	r.log.Info("Registry", "Session opened", map[string]interface{}{
		"document_id": documentID, "version": version,
	})
	r.observer.SessionOpened(documentID, version)
	return session, r.releaser(documentID, e), nil
}

func (r *Registry) load(ctx context.Context, documentID string) (*Session, error) {
	snap, err := r.repo.FindByDocumentId(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("load snapshot %s: %w", documentID, err)
	}
	doc, version := document.EmptyDoc(), 0
	if snap != nil {
		doc, version = snap.Document, snap.Version
	}
	session := NewSession(documentID, doc, version, r.log)
	session.OnAccepted(r.observer.BatchAccepted)
	return session, nil
}

func (r *Registry) releaser(documentID string, e *entry) func() {
	var once sync.Once
	return func() {
		once.Do(func() { r.release(documentID, e) })
	}
}

func (r *Registry) release(documentID string, e *entry) {
	r.mu.Lock()
	e.refs--
	if e.refs > 0 || e.session == nil {
		r.mu.Unlock()
		return
	}
	e.closing = make(chan struct{})
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	version, _, err := r.persist(ctx, documentID, e)
	cancel()
	if err != nil {
		r.log.Error("Registry", "Failed to save snapshot on close", map[string]interface{}{
			"document_id": documentID, "version": version, "error": err.Error(),
		})
	}

	r.mu.Lock()
	if r.entries[documentID] == e {
		delete(r.entries, documentID)
	}
	close(e.closing)
	r.mu.Unlock()

	r.log.Info("Registry", "Session closed", map[string]interface{}{
		"document_id": documentID, "version": version,
	})
	r.observer.SessionClosed(documentID, version)
}

// persist writes the session's current document unless that version is
// already stored. Saves of one entry are serialized so a slow checkpoint can
// never overwrite a newer snapshot.
func (r *Registry) persist(ctx context.Context, documentID string, e *entry) (int, bool, error) {
	e.saveMu.Lock()
	defer e.saveMu.Unlock()

	doc, version := e.session.Snapshot()
	if version <= e.saved {
		return version, false, nil
	}
	err := r.repo.Save(ctx, &entity.DocumentSnapshot{
		DocumentId: documentID,
		Document:   doc,
		Version:    version,
		UpdatedAt:  time.Now(),
	})
	if err != nil {
		return version, false, err
	}
	e.saved = version
	return version, true, nil
}

// Checkpoint saves an open session without closing it. It reports the
// version and whether anything was written; closed documents are skipped.
func (r *Registry) Checkpoint(ctx context.Context, documentID string) (int, bool, error) {
	r.mu.Lock()
	e, ok := r.entries[documentID]
	if !ok || e.session == nil || e.closing != nil {
		r.mu.Unlock()
		return 0, false, nil
	}
	e.refs++
	r.mu.Unlock()
	defer r.release(documentID, e)

	return r.persist(ctx, documentID, e)
}

// Join acquires the session for documentID and adds sub to it. The reference
// is held until Leave.
func (r *Registry) Join(ctx context.Context, documentID string, sub Subscriber, user User, knownVersion *int) (*Session, error) {
	session, release, err := r.Acquire(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if err := session.Join(sub, user, knownVersion); err != nil {
		release()
		return nil, err
	}
	return session, nil
}

// Leave removes clientID from the session and drops the reference Join took.
func (r *Registry) Leave(documentID, clientID string) error {
	r.mu.Lock()
	e, ok := r.entries[documentID]
	r.mu.Unlock()
	if !ok || e.session == nil {
		return fmt.Errorf("%w: %s", ErrNotMember, clientID)
	}
	if _, err := e.session.Leave(clientID); err != nil {
		return err
	}
	r.release(documentID, e)
	return nil
}

// Get returns the live session, if any.
func (r *Registry) Get(documentID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[documentID]
	if !ok || e.session == nil || e.closing != nil {
		return nil, false
	}
	return e.session, true
}

// Snapshot returns the live document when a session is open, otherwise the
// stored one. A document never saved is empty at version 0.
func (r *Registry) Snapshot(ctx context.Context, documentID string) (*document.Node, int, error) {
	if s, ok := r.Get(documentID); ok {
		doc, version := s.Snapshot()
		return doc, version, nil
	}
	snap, err := r.repo.FindByDocumentId(ctx, documentID)
	if err != nil {
		return nil, 0, fmt.Errorf("load snapshot %s: %w", documentID, err)
	}
	if snap == nil {
		return document.EmptyDoc(), 0, nil
	}
	return snap.Document, snap.Version, nil
}

// Active returns the ids of the open sessions.
func (r *Registry) Active() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.entries))
	for id, e := range r.entries {
		if e.session != nil && e.closing == nil {
			ids = append(ids, id)
		}
	}
	return ids
}

// Drain waits until every session has been released and saved.
func (r *Registry) Drain(ctx context.Context) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		r.mu.Lock()
		n := len(r.entries)
		r.mu.Unlock()
		if n == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%d sessions still open: %w", n, ctx.Err())
		case <-ticker.C:
		}
	}
}
