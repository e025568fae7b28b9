package collab

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"itinerary-collab-be/internal/entity"
	"itinerary-collab-be/internal/pkg/logger"
	"itinerary-collab-be/internal/repository/memory"
	"itinerary-collab-be/pkg/document"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type observed struct {
	mu      sync.Mutex
	opened  []string
	closed  []int
	batches []Batch
}

func (o *observed) SessionOpened(id string, version int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.opened = append(o.opened, id)
}

func (o *observed) SessionClosed(id string, version int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed = append(o.closed, version)
}

func (o *observed) BatchAccepted(b Batch) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.batches = append(o.batches, b)
}

type brokenRepo struct{}

func (brokenRepo) FindByDocumentId(context.Context, string) (*entity.DocumentSnapshot, error) {
	return nil, errors.New("connection refused")
}

func (brokenRepo) Save(context.Context, *entity.DocumentSnapshot) error {
	return errors.New("connection refused")
}

func TestRegistrySavesOnLastLeave(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewSnapshotRepository(0)
	obs := &observed{}
	r := NewRegistry(repo, logger.NewNop(), obs)

	a, b := &inbox{id: "a"}, &inbox{id: "b"}
	s, err := r.Join(ctx, "trip", a, User{ID: "ana"}, nil)
	require.NoError(t, err)
	s2, err := r.Join(ctx, "trip", b, User{ID: "bo"}, nil)
	require.NoError(t, err)
	assert.Same(t, s, s2)
	assert.Equal(t, []string{"trip"}, r.Active())

	_, err = s.Submit("a", 0, []document.Step{document.Replace(0, 2, document.Paragraph(document.Text("Day 1")))})
	require.NoError(t, err)

	require.NoError(t, r.Leave("trip", "a"))
	stored, err := repo.FindByDocumentId(ctx, "trip")
	require.NoError(t, err)
	assert.Nil(t, stored, "still open, nothing saved yet")

	require.NoError(t, r.Leave("trip", "b"))
	stored, err = repo.FindByDocumentId(ctx, "trip")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, 1, stored.Version)
	assert.Equal(t, "Day 1", stored.Document.TextContent())
	assert.Empty(t, r.Active())

	assert.Equal(t, []string{"trip"}, obs.opened)
	assert.Equal(t, []int{1}, obs.closed)
	require.Len(t, obs.batches, 1)
	assert.Equal(t, "a", obs.batches[0].Origin)

	// reopening resumes from the stored snapshot
	c := &inbox{id: "c"}
	s3, err := r.Join(ctx, "trip", c, User{ID: "cy"}, nil)
	require.NoError(t, err)
	doc, v := s3.Snapshot()
	assert.Equal(t, 1, v)
	assert.Equal(t, "Day 1", doc.TextContent())
}

func TestRegistrySnapshot(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewSnapshotRepository(0)
	r := NewRegistry(repo, logger.NewNop(), nil)

	doc, v, err := r.Snapshot(ctx, "unknown")
	require.NoError(t, err)
	assert.Equal(t, 0, v)
	assert.True(t, document.IsEmptyDoc(doc))

	require.NoError(t, repo.Save(ctx, &entity.DocumentSnapshot{DocumentId: "trip", Document: hello(), Version: 9}))
	_, v, err = r.Snapshot(ctx, "trip")
	require.NoError(t, err)
	assert.Equal(t, 9, v)

	s, release, err := r.Acquire(ctx, "trip")
	require.NoError(t, err)
	_, err = s.Submit("assistant", 9, []document.Step{document.Insert(6, document.Text("!"))})
	require.NoError(t, err)

	doc, v, err = r.Snapshot(ctx, "trip")
	require.NoError(t, err)
	assert.Equal(t, 10, v, "live session wins over the stored copy")
	assert.Equal(t, "Hello!", doc.TextContent())

	release()
	release() // second call is a no-op
	stored, err := repo.FindByDocumentId(ctx, "trip")
	require.NoError(t, err)
	assert.Equal(t, 10, stored.Version)
}

func TestRegistryUnchangedSessionIsNotSaved(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(memory.NewSnapshotRepository(0), logger.NewNop(), nil)
	_, release, err := r.Acquire(ctx, "trip")
	require.NoError(t, err)
	release()

	_, ok := r.Get("trip")
	assert.False(t, ok)
	stored, err := r.repo.FindByDocumentId(ctx, "trip")
	require.NoError(t, err)
	assert.Nil(t, stored)
}

func TestRegistryLoadFailure(t *testing.T) {
	r := NewRegistry(brokenRepo{}, logger.NewNop(), nil)
	_, err := r.Join(context.Background(), "trip", &inbox{id: "a"}, User{ID: "ana"}, nil)
	assert.ErrorContains(t, err, "connection refused")
	assert.Empty(t, r.Active())

	assert.ErrorIs(t, r.Leave("trip", "a"), ErrNotMember)
}

func TestRegistryConcurrentJoins(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	r := NewRegistry(memory.NewSnapshotRepository(0), logger.NewNop(), nil)

	const n = 20
	var wg sync.WaitGroup
	sessions := make([]*Session, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := r.Join(ctx, "trip", &inbox{id: string(rune('A' + i))}, User{ID: string(rune('A' + i))}, nil)
			assert.NoError(t, err)
			sessions[i] = s
		}(i)
	}
	wg.Wait()
	for _, s := range sessions {
		assert.Same(t, sessions[0], s)
	}
	assert.Equal(t, n, sessions[0].MemberCount())
}

func TestRegistryCheckpoint(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewSnapshotRepository(0)
	r := NewRegistry(repo, logger.NewNop(), nil)

	_, ok, err := r.Checkpoint(ctx, "trip")
	require.NoError(t, err)
	assert.False(t, ok, "nothing open")

	s, release, err := r.Acquire(ctx, "trip")
	require.NoError(t, err)
	defer release()

	_, ok, err = r.Checkpoint(ctx, "trip")
	require.NoError(t, err)
	assert.False(t, ok, "no change since load")

	_, err = s.Submit("assistant", 0, []document.Step{document.Insert(1, document.Text("x"))})
	require.NoError(t, err)
	v, ok, err := r.Checkpoint(ctx, "trip")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	stored, err := repo.FindByDocumentId(ctx, "trip")
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Version)

	_, ok, err = r.Checkpoint(ctx, "trip")
	require.NoError(t, err)
	assert.False(t, ok, "already stored")
	_, still := r.Get("trip")
	assert.True(t, still, "a checkpoint does not close the session")
}

func TestRegistryDrain(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(memory.NewSnapshotRepository(0), logger.NewNop(), nil)

	_, err := r.Join(ctx, "trip", &inbox{id: "a"}, User{ID: "ana"}, nil)
	require.NoError(t, err)

	short, cancel := context.WithTimeout(ctx, 120*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, r.Drain(short), context.DeadlineExceeded)

	go func() {
		time.Sleep(30 * time.Millisecond)
		r.Leave("trip", "a")
	}()
	assert.NoError(t, r.Drain(ctx))
	assert.Empty(t, r.Active())
}
