package v2

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"pdfchat/src/core/chat"
	"pdfchat/src/core/corpus"
	"pdfchat/src/core/ingestion"
	"pdfchat/src/core/manifest"
	"pdfchat/src/core/rag"
	"pdfchat/src/infrastructure/job"
)

// ChatService answers and searches.
type ChatService interface {
	Ask(ctx context.Context, q rag.Query) (*chat.Reply, error)
	Search(ctx context.Context, query string) (rag.Knowledge, error)
}

// IndexService describes the index.
type IndexService interface {
	Summary(ctx context.Context) (*manifest.Summary, error)
}

// JobQueue accepts ingestion jobs. It is optional.
type JobQueue interface {
	EnqueueJob(ctx context.Context, taskType string, payload json.RawMessage) (*job.Job, error)
	GetJob(ctx context.Context, id int) (*job.Job, error)
}

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

type Handler struct {
	chatService  ChatService
	indexService IndexService
	uploads      corpus.Uploader
	jobs         JobQueue
	checks       map[string]HealthCheck
}

func NewHandler(chatService ChatService, indexService IndexService, uploads corpus.Uploader, jobs JobQueue, checks map[string]HealthCheck) *Handler {
	return &Handler{
		chatService:  chatService,
		indexService: indexService,
		uploads:      uploads,
		jobs:         jobs,
		checks:       checks,
	}
}

// RegisterRoutes registers all API routes
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	v1 := r.Group("/api/v1")

	// Chat routes
	v1.POST("/chat/stream", h.StreamCompletion)
	v1.POST("/chat/completions", h.GenerateCompletion)

	// Search routes
	v1.POST("/search", h.Search)

	// Corpus and index routes
	v1.POST("/documents", h.UploadDocument)
	v1.POST("/ingestions", h.CreateIngestion)
	v1.GET("/ingestions/:id", h.GetIngestion)
	v1.GET("/index/summary", h.GetIndexSummary)

	// System routes
	v1.GET("/health", h.CheckHealth)
}

// Common error response structure
type ErrorResponse struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func errorResponse(status int, err error) (int, ErrorResponse) {
	var code string
	switch {
	case errors.Is(err, rag.ErrEmptyMessage):
		code = "EMPTY_MESSAGE"
		status = http.StatusBadRequest
	case errors.Is(err, corpus.ErrNotPDF):
		code = "NOT_PDF"
		status = http.StatusBadRequest
	case errors.Is(err, rag.ErrPromptTooLarge):
		code = "PROMPT_TOO_LARGE"
		status = http.StatusRequestEntityTooLarge
	case errors.Is(err, rag.ErrManifestMismatch):
		code = "MANIFEST_MISMATCH"
		status = http.StatusConflict
	case errors.Is(err, ingestion.ErrRunInProgress):
		code = "INGESTION_RUNNING"
		status = http.StatusConflict
	case errors.Is(err, rag.ErrEmbeddingService):
		code = "EMBEDDING_UNAVAILABLE"
		status = http.StatusBadGateway
	case errors.Is(err, rag.ErrModelStream):
		code = "MODEL_UNAVAILABLE"
		status = http.StatusBadGateway
	case errors.Is(err, rag.ErrIndex):
		code = "INDEX_UNAVAILABLE"
		status = http.StatusServiceUnavailable
	case status == http.StatusBadRequest:
		code = "BAD_REQUEST"
	case status == http.StatusNotFound:
		code = "NOT_FOUND"
	case status == http.StatusServiceUnavailable:
		code = "UNAVAILABLE"
	default:
		code = "INTERNAL_ERROR"
		status = http.StatusInternalServerError
	}

	return status, ErrorResponse{
		Code:    code,
		Message: err.Error(),
	}
}

func sendError(c *gin.Context, status int, err error) {
	c.JSON(errorResponse(status, err))
}

func sendJSON(c *gin.Context, status int, data interface{}) {
	c.JSON(status, data)
}
