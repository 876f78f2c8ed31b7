package core

import "context"

// EmbeddingProvider turns texts into vectors, one per input, in input order.
type EmbeddingProvider interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// LLMProvider generates a completion for a system and user prompt pair.
// When jsonOutput is set the model is asked to reply with a JSON document.
type LLMProvider interface {
	Generate(ctx context.Context, systemPrompt, userPrompt string, jsonOutput bool) (string, error)
}
