package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/seanblong/docqa/internal/ai"
	"github.com/seanblong/docqa/internal/index"
	"github.com/seanblong/docqa/pkg/models"
)

const (
	DefaultTopK          = 5
	DefaultExcerptLength = 150
)

// NoDocumentsAnswer is the fixed answer when retrieval finds nothing.
const NoDocumentsAnswer = "No relevant documents found."

// Options configures retrieval and answer assembly.
type Options struct {
	TopK          int
	Style         PromptStyle
	ExcerptLength int
}

// Service answers questions from the vector index.
type Service struct {
	Embedder  ai.Embedder
	Generator ai.Generator
	Index     index.VectorIndex
	opts      Options
}

// NewService creates a new search service. The embedder must be the one
// used at ingestion so query and chunk vectors share a space.
func NewService(emb ai.Embedder, gen ai.Generator, ix index.VectorIndex, opts Options) (*Service, error) {
	if opts.TopK == 0 {
		opts.TopK = DefaultTopK
	}
	if opts.TopK < 0 {
		return nil, fmt.Errorf("%w: top-k must be positive, got %d", models.ErrInvalidInput, opts.TopK)
	}
	if opts.ExcerptLength <= 0 {
		opts.ExcerptLength = DefaultExcerptLength
	}
	style, err := ParsePromptStyle(string(opts.Style))
	if err != nil {
		return nil, err
	}
	opts.Style = style

	return &Service{
		Embedder:  emb,
		Generator: gen,
		Index:     ix,
		opts:      opts,
	}, nil
}

// Ask retrieves the top chunks for question and has the generator answer
// from them. An empty retrieval returns StatusNoDocuments without calling
// the generator. Backend failures come back as errors, never as an answer.
func (s *Service) Ask(ctx context.Context, question string) (models.QueryResult, error) {
	q := strings.TrimSpace(question)
	if q == "" {
		return models.QueryResult{}, fmt.Errorf("%w: empty question", models.ErrInvalidInput)
	}

	vecs, err := s.Embedder.Embed(ctx, []string{q})
	if err != nil {
		return models.QueryResult{}, fmt.Errorf("embed question: %w", err)
	}
	if len(vecs) != 1 {
		return models.QueryResult{}, fmt.Errorf("%w: got %d vectors for one question", models.ErrEmbeddingUnavailable, len(vecs))
	}

	hits, err := s.Index.Search(ctx, vecs[0], s.opts.TopK)
	if err != nil {
		return models.QueryResult{}, fmt.Errorf("search index: %w", err)
	}
	if len(hits) == 0 {
		log.Info().Str("question", q).Msg("no relevant documents")
		return models.QueryResult{
			Status:       models.StatusNoDocuments,
			AnswerText:   NoDocumentsAnswer,
			CitedSources: []models.Citation{},
		}, nil
	}

	texts := make([]string, len(hits))
	for i, h := range hits {
		texts[i] = h.Record.Chunk.Text
	}
	prompt, err := BuildPrompt(s.opts.Style, texts, q)
	if err != nil {
		return models.QueryResult{}, err
	}

	answer, err := s.Generator.Generate(ctx, prompt)
	if err != nil {
		return models.QueryResult{}, fmt.Errorf("generate answer: %w", err)
	}

	log.Debug().Int("chunks", len(hits)).Float64("top_score", hits[0].Score).Msg("answered")
	return models.QueryResult{
		Status:       models.StatusAnswered,
		AnswerText:   answer,
		CitedSources: Citations(hits, s.opts.ExcerptLength),
	}, nil
}

// Citations lists one entry per hit in retrieval order. Repeated files are
// kept so callers can see how much evidence came from each.
func Citations(hits []models.SearchResult, excerptLen int) []models.Citation {
	out := make([]models.Citation, len(hits))
	for i, h := range hits {
		c := h.Record.Chunk
		out[i] = models.Citation{
			Filename: c.SourceFilename,
			Path:     c.SourcePath,
			Excerpt:  Excerpt(c.Text, excerptLen),
		}
	}
	return out
}

// Excerpt returns the first n characters of text, with "..." appended when
// anything was cut.
func Excerpt(text string, n int) string {
	r := []rune(text)
	if len(r) <= n {
		return text
	}
	return string(r[:n]) + "..."
}

// DocumentInfo reports whether the index has anything to answer from.
func (s *Service) DocumentInfo(ctx context.Context) (models.DocumentInfo, error) {
	n, err := s.Index.Count(ctx)
	if err != nil {
		return models.DocumentInfo{}, fmt.Errorf("count index: %w", err)
	}
	status := models.IndexStatusReady
	if n == 0 {
		status = models.IndexStatusEmpty
	}
	return models.DocumentInfo{Status: status, TotalChunks: n}, nil
}

// Options returns the effective options.
func (s *Service) Options() Options { return s.opts }
