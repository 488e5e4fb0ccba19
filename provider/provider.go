package provider

import (
	"context"
	"fmt"
)

// Provider abstracts the generation and embedding services consumed by the
// session state machine and the RAG engine. Implementations live in
// subpackages; tests substitute stubs.
type Provider interface {
	// Generate produces free-form text for the given prompt.
	Generate(ctx context.Context, prompt string) (string, error)

	// CreateEmbedding converts texts into fixed-dimension vectors,
	// order-preserving, batched internally to respect provider limits.
	CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error)
}

// EmbeddingError marks an embedding failure that survived the provider's
// bounded retries. Callers treat it as "no signal" rather than aborting the
// pipeline.
type EmbeddingError struct {
	Err error
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("embedding failed after retries: %v", e.Err)
}

func (e *EmbeddingError) Unwrap() error { return e.Err }
