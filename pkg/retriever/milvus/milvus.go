// Package milvus implements the orchestrator's Retriever contract on top
// of a Milvus vector database. Embeddings are delegated to an injected
// Embedder so the adapter stays independent of any one model provider.
package milvus

import (
	"context"
	"fmt"
	"strings"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"github.com/hiresynth/synth/pkg/synth"
)

// Default query settings when the rag config leaves them unset.
const (
	defaultTopK       = 3
	defaultCollection = "synth"

	vectorField = "vector"
	textField   = "text"
)

// Embedder turns documents into dense vectors.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// HashEmbedder is a deterministic, model-free embedder for local
// development and tests: tokens hash into a fixed-dimension bag-of-words
// vector. It is the retrieval analog of the lorem provider and is not
// meant for production relevance.
type HashEmbedder struct {
	// Dim is the vector dimension (128 when zero).
	Dim int
}

func (e HashEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	dim := e.Dim
	if dim <= 0 {
		dim = 128
	}

	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec := make([]float32, dim)
		for _, token := range strings.Fields(strings.ToLower(text)) {
			var h uint32 = 2166136261
			for _, r := range token {
				h = (h ^ uint32(r)) * 16777619
			}
			vec[h%uint32(dim)]++
		}
		out[i] = vec
	}

	return out, nil
}

// Retriever is a Milvus-backed implementation of synth.Retriever.
type Retriever struct {
	client   client.Client
	embedder Embedder

	collection string
}

// Option configures the Retriever.
type Option func(*Retriever)

// WithCollection sets the default collection searched when the rag config
// does not name one.
func WithCollection(name string) Option {
	return func(r *Retriever) { r.collection = name }
}

// New connects to Milvus and returns a retriever using the given embedder.
func New(ctx context.Context, address string, embedder Embedder, opts ...Option) (*Retriever, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}

	c, err := client.NewClient(ctx, client.Config{Address: address})
	if err != nil {
		return nil, fmt.Errorf("connect milvus: %w", err)
	}

	r := &Retriever{
		client:     c,
		embedder:   embedder,
		collection: defaultCollection,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r, nil
}

// Close releases the Milvus connection.
func (r *Retriever) Close() error {
	return r.client.Close()
}

// Query embeds the prompt and searches the configured collection. Results
// are returned as a list of {text, score} objects ready to commit to
// pipeline memory.
func (r *Retriever) Query(ctx context.Context, prompt string, cfg synth.RAGConfig) (any, error) {
	vectors, err := r.embedder.Embed(ctx, []string{prompt})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("embedder returned no vector for query")
	}

	collection := cfg.CollectionName
	if collection == "" {
		collection = r.collection
	}

	topK := cfg.N
	if topK <= 0 {
		topK = defaultTopK
	}

	sp, err := entity.NewIndexFlatSearchParam()
	if err != nil {
		return nil, fmt.Errorf("build search param: %w", err)
	}

	results, err := r.client.Search(
		ctx,
		collection,
		nil,
		filterExpr(cfg.Filters),
		[]string{textField},
		[]entity.Vector{entity.FloatVector(vectors[0])},
		vectorField,
		entity.L2,
		topK,
		sp,
	)
	if err != nil {
		return nil, fmt.Errorf("milvus search: %w", err)
	}

	var out []any
	for _, result := range results {
		texts := textColumn(result.Fields)
		for i := 0; i < result.ResultCount; i++ {
			item := map[string]any{}
			if i < len(texts) {
				item[textField] = texts[i]
			}
			if i < len(result.Scores) {
				item["score"] = result.Scores[i]
			}
			out = append(out, item)
		}
	}

	return out, nil
}

// Embed ingests documents into the default collection. Metadata is
// currently ignored by the Milvus backend.
func (r *Retriever) Embed(ctx context.Context, documents []string, _ []map[string]any) error {
	if len(documents) == 0 {
		return nil
	}

	vectors, err := r.embedder.Embed(ctx, documents)
	if err != nil {
		return fmt.Errorf("embed documents: %w", err)
	}
	if len(vectors) != len(documents) {
		return fmt.Errorf("embedder returned %d vectors for %d documents", len(vectors), len(documents))
	}

	dim := len(vectors[0])

	_, err = r.client.Insert(
		ctx,
		r.collection,
		"",
		entity.NewColumnVarChar(textField, documents),
		entity.NewColumnFloatVector(vectorField, dim, vectors),
	)
	if err != nil {
		return fmt.Errorf("milvus insert: %w", err)
	}

	return nil
}

// filterExpr joins filter entries of the form {field, value} into a Milvus
// boolean expression.
func filterExpr(filters []map[string]any) string {
	expr := ""
	for _, f := range filters {
		field, _ := f["field"].(string)
		if field == "" {
			continue
		}
		clause := fmt.Sprintf("%s == %q", field, fmt.Sprint(f["value"]))
		if expr == "" {
			expr = clause
		} else {
			expr += " && " + clause
		}
	}

	return expr
}

// textColumn extracts the text field values from a search result set.
func textColumn(fields []entity.Column) []string {
	for _, col := range fields {
		if col.Name() != textField {
			continue
		}
		if varchar, ok := col.(*entity.ColumnVarChar); ok {
			return varchar.Data()
		}
	}

	return nil
}
