// Package generate turns ranked evidence into a grounded, cited answer.
package generate

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/policybot-ai/policybot/internal/cache"
	"github.com/policybot-ai/policybot/internal/domain"
	"github.com/policybot-ai/policybot/internal/evidence"
	"github.com/policybot-ai/policybot/internal/llm"
)

// SystemPrompt constrains the model to the supplied policy chunks.
const SystemPrompt = `You are PolicyBot AI, an assistant that answers user questions
strictly using provided insurance policy chunks.
Rules:
- Use only the provided chunks; do not hallucinate.
- If the answer is not in the context, say: "Answer not found in provided policies."
- Keep your answer concise, factual, and formatted for readability.`

// NotFoundAnswer is returned when retrieval produced no evidence at all.
const NotFoundAnswer = "Answer not found in provided policies."

const (
	// contextSnippetLength bounds each chunk's text in the prompt to
	// keep token usage down.
	contextSnippetLength = 600

	generationTemperature = 0.1
	generationMaxTokens   = 400

	// answerKeyPrefix separates post-generation cache entries from the
	// retriever's key space.
	answerKeyPrefix = "answer:"
)

// Retriever returns the topK most similar passages for a query.
type Retriever interface {
	Retrieve(ctx context.Context, query string, topK int) ([]domain.RetrievedItem, error)
}

// Reranker narrows retrieved candidates to the topN most relevant.
type Reranker interface {
	Rerank(ctx context.Context, query string, items []domain.RetrievedItem, topN int) ([]domain.RetrievedItem, error)
}

// Answer is a generated response with its supporting evidence.
type Answer struct {
	// Answer is the generated text including the references section.
	Answer string `json:"answer"`

	// Evidence is the formatted evidence block backing the answer.
	Evidence string `json:"evidence"`

	// Sources are the reranked items the answer was grounded on. Empty
	// for answers served from the cache.
	Sources []domain.RetrievedItem `json:"sources,omitempty"`

	// Cached reports whether the answer came from the cache.
	Cached bool `json:"cached"`
}

// Service runs the full answer pipeline: retrieve, rerank, generate,
// cite, cache.
type Service struct {
	retriever Retriever
	reranker  Reranker
	llmClient llm.LLM
	store     *cache.Store
	logger    *slog.Logger

	model string
	topK  int
	topN  int
}

// Option is a functional option for configuring the Service.
type Option func(*Service)

// WithModel sets the generation model.
func WithModel(model string) Option {
	return func(s *Service) {
		s.model = model
	}
}

// WithLimits sets the retrieval breadth and post-rerank size.
func WithLimits(topK, topN int) Option {
	return func(s *Service) {
		if topK > 0 {
			s.topK = topK
		}
		if topN > 0 {
			s.topN = topN
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// New creates an answer service.
func New(ret Retriever, rr Reranker, llmClient llm.LLM, store *cache.Store, opts ...Option) *Service {
	s := &Service{
		retriever: ret,
		reranker:  rr,
		llmClient: llmClient,
		store:     store,
		logger:    slog.Default(),
		topK:      20,
		topN:      5,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Answer produces a grounded answer for the query. Repeated identical
// queries are served from the answer cache, including values written by
// the legacy bare-string schema (those surface with empty evidence).
func (s *Service) Answer(ctx context.Context, query string) (Answer, error) {
	cacheKey := answerKeyPrefix + query

	value, ok, err := s.store.Get(ctx, cacheKey)
	if err != nil {
		return Answer{}, fmt.Errorf("generate: cache lookup: %w", err)
	}
	if ok && (value.Kind == cache.KindAnswer || value.Kind == cache.KindLegacy) {
		s.logger.Debug("answer cache hit", "query", query)
		return Answer{Answer: value.Answer, Evidence: value.Evidence, Cached: true}, nil
	}

	items, err := s.retriever.Retrieve(ctx, query, s.topK)
	if err != nil {
		return Answer{}, err
	}

	top, err := s.reranker.Rerank(ctx, query, items, s.topN)
	if err != nil {
		return Answer{}, err
	}

	var answer Answer
	if len(top) == 0 {
		// No evidence found: answer explicitly instead of prompting the
		// model with an empty context.
		answer = Answer{Answer: NotFoundAnswer}
	} else {
		text, err := s.llmClient.Generate(ctx, buildPrompt(query, top), llm.GenerateOptions{
			Model:        s.model,
			SystemPrompt: SystemPrompt,
			Temperature:  generationTemperature,
			MaxTokens:    generationMaxTokens,
		})
		if err != nil {
			return Answer{}, fmt.Errorf("generate: llm: %w", err)
		}
		answer = Answer{
			Answer:   withCitations(strings.TrimSpace(text), top),
			Evidence: evidence.Format(top),
			Sources:  top,
		}
	}

	if err := s.store.Set(ctx, cacheKey, cache.Value{
		Kind:     cache.KindAnswer,
		Answer:   answer.Answer,
		Evidence: answer.Evidence,
	}); err != nil {
		return Answer{}, fmt.Errorf("generate: cache store: %w", err)
	}

	return answer, nil
}

// buildPrompt assembles a compact grounded prompt: one snippet line per
// chunk, then the question.
func buildPrompt(query string, chunks []domain.RetrievedItem) string {
	var sb strings.Builder
	sb.WriteString("Use only the context below to answer briefly and accurately.\n\n")
	for _, chunk := range chunks {
		fmt.Fprintf(&sb, "[%s] %s\n", chunk.ID, snippet(chunk.Text))
	}
	fmt.Fprintf(&sb, "\nQ: %s\nA:", query)
	return sb.String()
}

// withCitations appends a short reference section listing each chunk's
// source and page.
func withCitations(answer string, chunks []domain.RetrievedItem) string {
	var sb strings.Builder
	sb.WriteString(answer)
	sb.WriteString("\n\n**References:**\n")
	for i, chunk := range chunks {
		if i > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "- %s [chunk: %s, page: %s]",
			chunk.Meta("source", "Policy Document"), chunk.ID, chunk.Meta("page", "N/A"))
	}
	return sb.String()
}

func snippet(text string) string {
	runes := []rune(text)
	if len(runes) <= contextSnippetLength {
		return text
	}
	return string(runes[:contextSnippetLength])
}
