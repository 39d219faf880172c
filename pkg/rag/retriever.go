package rag

import (
	"context"
	"fmt"
	"strings"

	"ai-assistant-be/internal/repository/contract"
	"ai-assistant-be/pkg/embedding"

	"github.com/pgvector/pgvector-go"
)

// Source identifies a document chunk that contributed to an answer.
type Source struct {
	DocumentId string  `json:"document_id"`
	FileName   string  `json:"file_name"`
	Score      float64 `json:"score"`
}

// Result is the retrieval output for one query: the prompt context block
// and the sources it was assembled from.
type Result struct {
	Context string
	Sources []Source
}

type Retriever struct {
	embedder embedding.EmbeddingProvider
	docs     contract.DocumentRepository
	topK     int
	minScore float64
}

func NewRetriever(embedder embedding.EmbeddingProvider, docs contract.DocumentRepository, topK int, minScore float64) *Retriever {
	if topK <= 0 {
		topK = 4
	}
	return &Retriever{
		embedder: embedder,
		docs:     docs,
		topK:     topK,
		minScore: minScore,
	}
}

// Retrieve embeds the query and pulls the closest indexed chunks.
// An empty Result (no error) means nothing relevant was found and the
// caller should answer without document context.
func (r *Retriever) Retrieve(ctx context.Context, query string) (*Result, error) {
	resp, err := r.embedder.Generate(query, "RETRIEVAL_QUERY")
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	hits, err := r.docs.SearchChunks(ctx, pgvector.NewVector(resp.Embedding.Values), r.topK, r.minScore)
	if err != nil {
		return nil, fmt.Errorf("search chunks: %w", err)
	}
	if len(hits) == 0 {
		return &Result{}, nil
	}

	var sb strings.Builder
	sources := make([]Source, 0, len(hits))
	for i, hit := range hits {
		fmt.Fprintf(&sb, "[%d] %s\n%s\n\n", i+1, hit.FileName, hit.Chunk.Content)
		sources = append(sources, Source{
			DocumentId: hit.Chunk.DocumentId.String(),
			FileName:   hit.FileName,
			Score:      hit.Score,
		})
	}

	return &Result{
		Context: strings.TrimSpace(sb.String()),
		Sources: sources,
	}, nil
}

// BuildPrompt wraps the retrieved context around the user question the
// way the chat service feeds it to the model.
func BuildPrompt(contextBlock, question string) string {
	if contextBlock == "" {
		return question
	}
	return "Use the following document excerpts to answer the question. " +
		"If the excerpts are not relevant, answer from general knowledge and say so.\n\n" +
		"Excerpts:\n" + contextBlock + "\n\nQuestion: " + question
}
