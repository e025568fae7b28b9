package factory

import (
	"fmt"

	"itinerary-collab-be/pkg/llm"
	"itinerary-collab-be/pkg/llm/ollama"
	"itinerary-collab-be/pkg/llm/static"
)

// NewLLMProvider builds the provider named by providerType. "static" replays
// a fixed reply and is meant for local development without a model server.
func NewLLMProvider(providerType, modelName, baseURL string) (llm.StreamingProvider, error) {
	switch providerType {
	case "ollama":
		if baseURL == "" {
			baseURL = "http://localhost:11434"
		}
		return ollama.NewOllamaProvider(baseURL, modelName), nil
	case "static":
		return static.NewProvider(static.DefaultReply), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", providerType)
	}
}
