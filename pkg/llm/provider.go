// Package llm is a provider-agnostic client for the language models that
// draft itinerary content.
package llm

import (
	"context"
)

// Message is one chat turn.
type Message struct {
	Role    string // "user", "assistant", "system"
	Content string
}

type Option func(*Options)

type Options struct {
	Temperature float64
	MaxTokens   int
	Model       string // overrides the provider default
}

func WithTemperature(temp float64) Option {
	return func(o *Options) {
		o.Temperature = temp
	}
}

func WithModel(model string) Option {
	return func(o *Options) {
		o.Model = model
	}
}

func WithMaxTokens(n int) Option {
	return func(o *Options) {
		o.MaxTokens = n
	}
}

// ApplyOptions resolves opts over the defaults every provider shares.
func ApplyOptions(opts []Option) *Options {
	options := &Options{Temperature: 0.7}
	for _, opt := range opts {
		opt(options)
	}
	return options
}

// LLMProvider is the contract for any model backend.
type LLMProvider interface {
	Chat(ctx context.Context, history []Message, options ...Option) (string, error)
	Generate(ctx context.Context, prompt string, options ...Option) (string, error)
}

// StreamingProvider can hand out a response while it is being generated.
// onChunk sees each piece in order; returning an error stops the stream.
type StreamingProvider interface {
	LLMProvider
	Stream(ctx context.Context, history []Message, onChunk func(chunk string) error, options ...Option) error
}
