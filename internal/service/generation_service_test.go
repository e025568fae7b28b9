package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"itinerary-collab-be/internal/collab"
	"itinerary-collab-be/internal/pkg/logger"
	"itinerary-collab-be/internal/repository/memory"
	"itinerary-collab-be/pkg/compiler"
	"itinerary-collab-be/pkg/document"
	"itinerary-collab-be/pkg/llm"
	"itinerary-collab-be/pkg/llm/static"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedEvent struct {
	kind       string
	documentID string
	version    int
	steps      int
}

type recordingEvents struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *recordingEvents) add(e recordedEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingEvents) PublishSessionOpened(ctx context.Context, documentID string, version int) {
	r.add(recordedEvent{kind: "opened", documentID: documentID, version: version})
}

func (r *recordingEvents) PublishSessionClosed(ctx context.Context, documentID string, version int) {
	r.add(recordedEvent{kind: "closed", documentID: documentID, version: version})
}

func (r *recordingEvents) PublishContentGenerated(ctx context.Context, documentID string, version, steps int, mode string) {
	r.add(recordedEvent{kind: "generated", documentID: documentID, version: version, steps: steps})
}

// scripted streams chunks and runs between after each one.
type scripted struct {
	*static.Provider
	between func(i int)
}

func (p *scripted) Stream(ctx context.Context, history []llm.Message, onChunk func(string) error, opts ...llm.Option) error {
	for i, c := range p.Chunks {
		if err := onChunk(c); err != nil {
			return err
		}
		if p.between != nil {
			p.between(i)
		}
	}
	return nil
}

// stalled never answers before the deadline.
type stalled struct{ static.Provider }

func (stalled) Chat(ctx context.Context, history []llm.Message, opts ...llm.Option) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func newGeneration(t *testing.T, provider llm.StreamingProvider) (*collab.Registry, *recordingEvents, IGenerationService) {
	t.Helper()
	registry := collab.NewRegistry(memory.NewSnapshotRepository(0), logger.NewNop(), nil)
	events := &recordingEvents{}
	svc := NewGenerationService(registry, provider, events, time.Second, logger.NewNop())
	return registry, events, svc
}

func liveDoc(t *testing.T, r *collab.Registry, id string) (*document.Node, int) {
	t.Helper()
	doc, v, err := r.Snapshot(context.Background(), id)
	require.NoError(t, err)
	return doc, v
}

func TestGenerateIntoEmptyDocument(t *testing.T) {
	registry, events, svc := newGeneration(t, static.NewProvider("```html\n<h1>Trip</h1><p>Hello</p>\n```"))

	res, err := svc.Generate(context.Background(), "trip", "two days in Porto")
	require.NoError(t, err)
	assert.Equal(t, compiler.ModeReplaceEmpty, res.Mode)
	assert.Equal(t, 2, res.Steps)
	assert.Equal(t, 2, res.Version)

	doc, v := liveDoc(t, registry, "trip")
	assert.Equal(t, 2, v)
	want := document.Doc(
		document.Heading(1, document.Text("Trip")),
		document.Paragraph(document.Text("Hello")),
	)
	assert.True(t, want.Equal(doc))
	assert.Equal(t, []recordedEvent{{kind: "generated", documentID: "trip", version: 2, steps: 2}}, events.events)
}

func TestGenerateAppends(t *testing.T) {
	provider := static.NewProvider("<h1>Day 1</h1>")
	registry, _, svc := newGeneration(t, provider)
	_, err := svc.Generate(context.Background(), "trip", "start")
	require.NoError(t, err)

	provider.Reply = "<p>More</p>"
	res, err := svc.Generate(context.Background(), "trip", "continue")
	require.NoError(t, err)
	assert.Equal(t, compiler.ModeAppend, res.Mode)

	doc, v := liveDoc(t, registry, "trip")
	assert.Equal(t, 2, v)
	require.Equal(t, 2, doc.ChildCount())
	assert.Equal(t, "More", doc.Child(1).TextContent())
}

func TestGenerateInvalidMarkupLeavesDocument(t *testing.T) {
	registry, events, svc := newGeneration(t, static.NewProvider("<table><tr><td>x</td></tr></table>"))

	_, err := svc.Generate(context.Background(), "trip", "anything")
	var failure *compiler.CompileFailure
	require.True(t, errors.As(err, &failure))
	assert.Equal(t, compiler.FailureInvalidMarkup, failure.Kind)

	doc, v := liveDoc(t, registry, "trip")
	assert.Equal(t, 0, v)
	assert.True(t, document.IsEmptyDoc(doc))
	assert.Empty(t, events.events)
}

func TestGenerateEmptyReply(t *testing.T) {
	_, _, svc := newGeneration(t, static.NewProvider("  \n"))
	_, err := svc.Generate(context.Background(), "trip", "anything")
	assert.ErrorIs(t, err, ErrNoContent)
}

func TestGenerateTimesOut(t *testing.T) {
	registry := collab.NewRegistry(memory.NewSnapshotRepository(0), logger.NewNop(), nil)
	svc := NewGenerationService(registry, &stalled{}, &recordingEvents{}, 20*time.Millisecond, logger.NewNop())

	_, err := svc.Generate(context.Background(), "trip", "anything")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	_, v := liveDoc(t, registry, "trip")
	assert.Equal(t, 0, v)
}

func TestStreamBlocksSubmitsEachBlock(t *testing.T) {
	provider := &scripted{Provider: &static.Provider{Chunks: []string{
		"<h1>Tr", "ip</h1><p>Day", " one</p>\n<ul><li>Mu", "seum</li></ul>",
	}}}
	registry, events, svc := newGeneration(t, provider)

	var versions []int
	res, err := svc.StreamBlocks(context.Background(), "trip", "go", func(r *GenerateResult) {
		versions = append(versions, r.Version)
	})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, versions)
	assert.Equal(t, 3, res.Steps)
	assert.Equal(t, compiler.ModeReplaceEmpty, res.Mode)

	doc, _ := liveDoc(t, registry, "trip")
	assert.Equal(t, 3, doc.ChildCount())
	assert.Equal(t, "TripDay oneMuseum", doc.TextContent())
	require.Len(t, events.events, 1)
	assert.Equal(t, 3, events.events[0].version)
}

func TestStreamBlocksAbortsOnConcurrentEdit(t *testing.T) {
	var registry *collab.Registry
	provider := &scripted{Provider: &static.Provider{Chunks: []string{"<p>one</p>", "<p>two</p>"}}}
	provider.between = func(i int) {
		if i != 0 {
			return
		}
		// a human types while the assistant is streaming
		s, release, err := registry.Acquire(context.Background(), "trip")
		require.NoError(t, err)
		defer release()
		_, v := s.Snapshot()
		_, err = s.Submit("human", v, []document.Step{document.Insert(1, document.Text("!"))})
		require.NoError(t, err)
	}
	registry, events, svc := newGeneration(t, provider)

	res, err := svc.StreamBlocks(context.Background(), "trip", "go", nil)
	var conflict *collab.VersionConflict
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, 2, conflict.CurrentVersion)
	assert.Equal(t, 1, res.Steps, "the first block stays applied")

	doc, v := liveDoc(t, registry, "trip")
	assert.Equal(t, 2, v)
	assert.Equal(t, "!one", doc.TextContent())
	assert.Empty(t, events.events)
}
