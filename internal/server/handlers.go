package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/policybot-ai/policybot/internal/auth"
	"github.com/policybot-ai/policybot/internal/domain"
	"github.com/policybot-ai/policybot/internal/generate"
	"github.com/policybot-ai/policybot/internal/ingestion"
	"github.com/policybot-ai/policybot/internal/repository"
)

// Answerer runs the full answer pipeline for a query.
type Answerer interface {
	Answer(ctx context.Context, query string) (generate.Answer, error)
}

// Ingester loads documents into the index and removes them again.
type Ingester interface {
	Ingest(ctx context.Context, req ingestion.Request) (*repository.Document, error)
	Remove(ctx context.Context, id uuid.UUID) error
}

// ReadinessChecker reports whether a backing dependency is reachable.
type ReadinessChecker func(ctx context.Context) error

// Handlers holds the HTTP handlers and their dependencies
type Handlers struct {
	answerer  Answerer
	retriever generate.Retriever
	reranker  generate.Reranker
	ingester  Ingester
	docs      repository.DocumentRepository
	feedback  repository.FeedbackRepository
	jwt       *auth.JWTManager
	apiKey    string
	ready     []ReadinessChecker
	topK      int
	topN      int
	logger    *slog.Logger
}

// HandlersConfig wires dependencies into the handlers
type HandlersConfig struct {
	Answerer  Answerer
	Retriever generate.Retriever
	Reranker  generate.Reranker
	Ingester  Ingester
	Documents repository.DocumentRepository
	Feedback  repository.FeedbackRepository
	JWT       *auth.JWTManager
	APIKey    string
	Readiness []ReadinessChecker
	TopK      int
	TopN      int
	Logger    *slog.Logger
}

// NewHandlers creates the handler set
func NewHandlers(cfg HandlersConfig) *Handlers {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	topK := cfg.TopK
	if topK <= 0 {
		topK = 20
	}
	topN := cfg.TopN
	if topN <= 0 {
		topN = 5
	}
	return &Handlers{
		answerer:  cfg.Answerer,
		retriever: cfg.Retriever,
		reranker:  cfg.Reranker,
		ingester:  cfg.Ingester,
		docs:      cfg.Documents,
		feedback:  cfg.Feedback,
		jwt:       cfg.JWT,
		apiKey:    cfg.APIKey,
		ready:     cfg.Readiness,
		topK:      topK,
		topN:      topN,
		logger:    logger,
	}
}

type queryRequest struct {
	Query string `json:"query"`
}

// Query handles POST /v1/query: the full answer pipeline
func (h *Handlers) Query(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	answer, err := h.answerer.Answer(r.Context(), req.Query)
	if err != nil {
		h.logger.Error("query failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to answer query")
		return
	}

	writeJSON(w, http.StatusOK, answer)
}

type retrieveRequest struct {
	Query  string `json:"query"`
	TopK   int    `json:"top_k,omitempty"`
	TopN   int    `json:"top_n,omitempty"`
	Rerank *bool  `json:"rerank,omitempty"`
}

type retrieveResponse struct {
	Results []domain.RetrievedItem `json:"results"`
}

// Retrieve handles POST /v1/retrieve: retrieval (optionally reranked)
// without generation
func (h *Handlers) Retrieve(w http.ResponseWriter, r *http.Request) {
	var req retrieveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	topK := req.TopK
	if topK <= 0 {
		topK = h.topK
	}
	topN := req.TopN
	if topN <= 0 {
		topN = h.topN
	}

	items, err := h.retriever.Retrieve(r.Context(), req.Query, topK)
	if err != nil {
		h.logger.Error("retrieve failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to retrieve passages")
		return
	}

	if req.Rerank == nil || *req.Rerank {
		items, err = h.reranker.Rerank(r.Context(), req.Query, items, topN)
		if err != nil {
			h.logger.Error("rerank failed", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to rerank passages")
			return
		}
	}

	if items == nil {
		items = []domain.RetrievedItem{}
	}
	writeJSON(w, http.StatusOK, retrieveResponse{Results: items})
}

type ingestRequest struct {
	Source   string            `json:"source"`
	Title    string            `json:"title,omitempty"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// IngestDocument handles POST /v1/documents
func (h *Handlers) IngestDocument(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Source) == "" {
		writeError(w, http.StatusBadRequest, "source is required")
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		writeError(w, http.StatusBadRequest, "content is required")
		return
	}

	doc, err := h.ingester.Ingest(r.Context(), ingestion.Request{
		Source:   req.Source,
		Title:    req.Title,
		Content:  req.Content,
		Metadata: req.Metadata,
	})
	if err != nil {
		h.logger.Error("ingestion failed", "source", req.Source, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to ingest document")
		return
	}

	writeJSON(w, http.StatusCreated, doc)
}

type listDocumentsResponse struct {
	Documents []*repository.Document `json:"documents"`
	Total     int                    `json:"total"`
	Limit     int                    `json:"limit"`
	Offset    int                    `json:"offset"`
}

// ListDocuments handles GET /v1/documents
func (h *Handlers) ListDocuments(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	if limit > 200 {
		limit = 200
	}
	offset := queryInt(r, "offset", 0)

	docs, total, err := h.docs.List(r.Context(), limit, offset)
	if err != nil {
		h.logger.Error("list documents failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list documents")
		return
	}
	if docs == nil {
		docs = []*repository.Document{}
	}

	writeJSON(w, http.StatusOK, listDocumentsResponse{
		Documents: docs,
		Total:     total,
		Limit:     limit,
		Offset:    offset,
	})
}

// DeleteDocument handles DELETE /v1/documents/{id}: removes the record
// and the document's indexed chunks
func (h *Handlers) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid document id")
		return
	}

	if err := h.ingester.Remove(r.Context(), id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "document not found")
			return
		}
		h.logger.Error("delete document failed", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete document")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type feedbackRequest struct {
	Query   string `json:"query"`
	Helpful bool   `json:"helpful"`
	Comment string `json:"comment,omitempty"`
}

// SubmitFeedback handles POST /v1/feedback
func (h *Handlers) SubmitFeedback(w http.ResponseWriter, r *http.Request) {
	var req feedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	fb := &repository.Feedback{
		ID:        uuid.New(),
		Query:     req.Query,
		Helpful:   req.Helpful,
		Comment:   req.Comment,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.feedback.Create(r.Context(), fb); err != nil {
		h.logger.Error("store feedback failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to store feedback")
		return
	}

	writeJSON(w, http.StatusCreated, fb)
}

type tokenRequest struct {
	ClientName string `json:"client_name"`
}

type tokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// IssueToken handles POST /v1/auth/token. Minting a token requires the
// service API key: the endpoint sits outside the auth middleware, and
// without this check any client could mint a bearer token that passes
// it.
func (h *Handlers) IssueToken(w http.ResponseWriter, r *http.Request) {
	if h.jwt == nil || h.apiKey == "" {
		writeError(w, http.StatusNotFound, "token auth is not configured")
		return
	}
	key := r.Header.Get(auth.APIKeyHeader)
	if subtle.ConstantTimeCompare([]byte(key), []byte(h.apiKey)) != 1 {
		writeError(w, http.StatusUnauthorized, "invalid API key")
		return
	}

	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	req.ClientName = strings.TrimSpace(req.ClientName)
	if req.ClientName == "" {
		writeError(w, http.StatusBadRequest, "client_name is required")
		return
	}

	token, err := h.jwt.GenerateToken(req.ClientName)
	if err != nil {
		h.logger.Error("token generation failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to generate token")
		return
	}
	expiry, err := h.jwt.TokenExpiry(token)
	if err != nil {
		h.logger.Error("token expiry lookup failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to generate token")
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{Token: token, ExpiresAt: expiry})
}

// Readiness handles GET /readyz: checks backing dependencies
func (h *Handlers) Readiness(w http.ResponseWriter, r *http.Request) {
	for _, check := range h.ready {
		if err := check(r.Context()); err != nil {
			h.logger.Warn("readiness check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
