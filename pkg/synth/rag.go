package synth

import "context"

// RAGConfig controls a retrieval query: the collection to search, optional
// metadata filters, and the number of results.
type RAGConfig struct {
	CollectionName string           `json:"collection_name,omitempty" yaml:"collection_name,omitempty"`
	Filters        []map[string]any `json:"filters,omitempty" yaml:"filters,omitempty"`
	N              int              `json:"n,omitempty" yaml:"n,omitempty"`
}

// overlay returns c with every set field of o applied on top.
func (c RAGConfig) overlay(o *RAGConfig) RAGConfig {
	if o == nil {
		return c
	}

	if o.CollectionName != "" {
		c.CollectionName = o.CollectionName
	}
	if len(o.Filters) > 0 {
		c.Filters = o.Filters
	}
	if o.N != 0 {
		c.N = o.N
	}

	return c
}

// Retriever is the injected retrieval collaborator for rag outputs.
type Retriever interface {
	// Query searches the configured collection with the rendered prompt and
	// returns a JSON-compatible result that is committed to memory.
	Query(ctx context.Context, prompt string, cfg RAGConfig) (any, error)

	// Embed ingests documents (with optional per-document metadata) into
	// the retrieval backend.
	Embed(ctx context.Context, documents []string, metadata []map[string]any) error
}
