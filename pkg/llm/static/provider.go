// Package static is an LLM provider that always answers with the same text.
package static

import (
	"context"
	"strings"

	"itinerary-collab-be/pkg/llm"
)

// DefaultReply is a small valid itinerary.
const DefaultReply = `<h2>Day 1</h2><p>Arrive and check in.</p><ul><li>Walk the old town</li><li>Dinner near the river</li></ul>`

type Provider struct {
	Reply string
	// Chunks, when set, is what Stream emits instead of Reply split on "\n".
	Chunks []string
}

var _ llm.StreamingProvider = &Provider{}

func NewProvider(reply string) *Provider {
	return &Provider{Reply: reply}
}

func (p *Provider) Chat(ctx context.Context, history []llm.Message, opts ...llm.Option) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return p.Reply, nil
}

func (p *Provider) Generate(ctx context.Context, prompt string, opts ...llm.Option) (string, error) {
	return p.Chat(ctx, []llm.Message{{Role: "user", Content: prompt}}, opts...)
}

func (p *Provider) Stream(ctx context.Context, history []llm.Message, onChunk func(string) error, opts ...llm.Option) error {
	chunks := p.Chunks
	if chunks == nil {
		chunks = strings.SplitAfter(p.Reply, "\n")
	}
	for _, c := range chunks {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := onChunk(c); err != nil {
			return err
		}
	}
	return nil
}
