package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"itinerary-collab-be/internal/collab"
	"itinerary-collab-be/internal/constant"
	"itinerary-collab-be/internal/pkg/logger"
	"itinerary-collab-be/pkg/compiler"
	"itinerary-collab-be/pkg/document"
	"itinerary-collab-be/pkg/llm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("itinerary-collab-be/internal/service")

// ErrNoContent means the model answered without a single usable block.
var ErrNoContent = errors.New("model returned no content")

// sessionSource is the part of collab.Registry generation needs.
type sessionSource interface {
	Acquire(ctx context.Context, documentID string) (*collab.Session, func(), error)
}

type GenerateResult struct {
	Mode    compiler.Mode
	Steps   int
	Version int
	Markup  string
}

type IGenerationService interface {
	Generate(ctx context.Context, documentID, prompt string) (*GenerateResult, error)
	StreamBlocks(ctx context.Context, documentID, prompt string, onBlock func(*GenerateResult)) (*GenerateResult, error)
}

// generationService asks the model for itinerary markup, compiles it
// against the live document and submits it as the assistant. A version
// conflict aborts; generated content is never rebased.
type generationService struct {
	sessions sessionSource
	provider llm.StreamingProvider
	events   DocumentEventPublisher
	timeout  time.Duration
	logger   logger.ILogger
}

func NewGenerationService(sessions sessionSource, provider llm.StreamingProvider, events DocumentEventPublisher, timeout time.Duration, logger logger.ILogger) IGenerationService {
	return &generationService{
		sessions: sessions,
		provider: provider,
		events:   events,
		timeout:  timeout,
		logger:   logger,
	}
}

func (s *generationService) history(baseline *document.Node, prompt string) ([]llm.Message, error) {
	msgs := []llm.Message{{Role: constant.ChatMessageRoleSystem, Content: constant.ItineraryMarkupPromptV1}}
	if !document.IsEmptyDoc(baseline) {
		current, err := compiler.Render(baseline)
		if err != nil {
			return nil, fmt.Errorf("render baseline: %w", err)
		}
		msgs = append(msgs, llm.Message{Role: constant.ChatMessageRoleSystem, Content: fmt.Sprintf(constant.ItineraryAppendContextV1, current)})
	}
	return append(msgs, llm.Message{Role: constant.ChatMessageRoleUser, Content: prompt}), nil
}

func modeFor(baseline *document.Node) compiler.Mode {
	if document.IsEmptyDoc(baseline) {
		return compiler.ModeReplaceEmpty
	}
	return compiler.ModeAppend
}

func (s *generationService) Generate(ctx context.Context, documentID, prompt string) (*GenerateResult, error) {
	ctx, span := tracer.Start(ctx, "GenerationService.Generate", trace.WithAttributes(attribute.String("document.id", documentID)))
	defer span.End()

	session, release, err := s.sessions.Acquire(ctx, documentID)
	if err != nil {
		return nil, err
	}
	defer release()

	baseline, version := session.Snapshot()
	history, err := s.history(baseline, prompt)
	if err != nil {
		return nil, err
	}

	genCtx, cancel := context.WithTimeout(ctx, s.timeout)
	reply, err := s.provider.Chat(genCtx, history)
	cancel()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "model call failed")
		return nil, fmt.Errorf("generate: %w", err)
	}

	blocks, rest := compiler.SplitBlocks(reply)
	markup := strings.Join(blocks, "") + strings.TrimSpace(rest)
	if markup == "" {
		return nil, ErrNoContent
	}

	res, _, err := s.submit(session, baseline, version, markup)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "submit failed")
		return nil, err
	}
	span.SetAttributes(attribute.Int("document.version", res.Version), attribute.Int("steps", res.Steps))
	s.events.PublishContentGenerated(ctx, documentID, res.Version, res.Steps, string(res.Mode))
	return res, nil
}

// submit compiles markup against baseline at version and submits it,
// returning the document the steps produce. The session document is left
// untouched on any failure.
func (s *generationService) submit(session *collab.Session, baseline *document.Node, version int, markup string) (*GenerateResult, *document.Node, error) {
	mode := modeFor(baseline)
	compiled, err := compiler.CompileDocument(markup, baseline, mode, compiler.AppendAtEnd)
	if err != nil {
		s.logger.Warn("GENERATION", "Generated markup did not compile", map[string]interface{}{
			"document_id": session.ID(), "error": err.Error(),
		})
		return nil, nil, err
	}
	newVersion, err := session.Submit(constant.AssistantOrigin, version, compiled.Steps)
	if err != nil {
		s.logger.Warn("GENERATION", "Generated content rejected", map[string]interface{}{
			"document_id": session.ID(), "base_version": version, "error": err.Error(),
		})
		return nil, nil, fmt.Errorf("generation aborted: %w", err)
	}
	s.logger.Info("GENERATION", "Generated content applied", map[string]interface{}{
		"document_id": session.ID(), "mode": mode, "steps": len(compiled.Steps), "version": newVersion,
	})
	res := &GenerateResult{Mode: mode, Steps: len(compiled.Steps), Version: newVersion, Markup: markup}
	return res, compiled.Document, nil
}

// StreamBlocks submits each block as soon as the model has finished it. It
// assumes it is the only writer while it runs: every block is built on the
// document its previous block produced, so a concurrent human edit makes the
// next submit conflict and aborts the stream. Blocks already applied stay.
func (s *generationService) StreamBlocks(ctx context.Context, documentID, prompt string, onBlock func(*GenerateResult)) (*GenerateResult, error) {
	ctx, span := tracer.Start(ctx, "GenerationService.StreamBlocks", trace.WithAttributes(attribute.String("document.id", documentID)))
	defer span.End()

	session, release, err := s.sessions.Acquire(ctx, documentID)
	if err != nil {
		return nil, err
	}
	defer release()

	baseline, version := session.Snapshot()
	history, err := s.history(baseline, prompt)
	if err != nil {
		return nil, err
	}

	total := &GenerateResult{Mode: modeFor(baseline), Version: version}
	var buf strings.Builder
	apply := func(markup string) error {
		res, doc, err := s.submit(session, baseline, version, markup)
		if err != nil {
			return err
		}
		// continue from what we produced, not from the live document
		baseline, version = doc, res.Version
		total.Steps += res.Steps
		total.Version = res.Version
		total.Markup += markup
		if onBlock != nil {
			onBlock(res)
		}
		return nil
	}

	genCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	err = s.provider.Stream(genCtx, history, func(chunk string) error {
		buf.WriteString(chunk)
		blocks, rest := compiler.SplitBlocks(buf.String())
		buf.Reset()
		buf.WriteString(rest)
		for _, b := range blocks {
			if err := apply(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "stream aborted")
		return total, err
	}
	if tail := strings.TrimSpace(buf.String()); tail != "" {
		if err := apply(tail); err != nil {
			return total, err
		}
	}
	if total.Steps == 0 {
		return total, ErrNoContent
	}
	s.events.PublishContentGenerated(ctx, documentID, total.Version, total.Steps, string(total.Mode))
	return total, nil
}
