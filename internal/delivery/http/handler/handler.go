package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/user/prodsearch-service/internal/delivery/http/request"
	"github.com/user/prodsearch-service/internal/delivery/http/response"
	"github.com/user/prodsearch-service/internal/domain"
	"github.com/user/prodsearch-service/internal/pipeline"
	"github.com/user/prodsearch-service/internal/search"
)

// Researcher runs one research request end to end.
type Researcher interface {
	Run(ctx context.Context, input pipeline.Input) (*domain.RunResult, error)
}

// RunFinder looks up persisted runs by id.
type RunFinder interface {
	FindByID(ctx context.Context, id string) (*domain.RunResult, error)
}

type Handler struct {
	researcher Researcher
	runs       RunFinder
	log        *zap.Logger
}

func NewHandler(researcher Researcher, runs RunFinder, log *zap.Logger) *Handler {
	return &Handler{
		researcher: researcher,
		runs:       runs,
		log:        log,
	}
}

func (h *Handler) HandleResearch(w http.ResponseWriter, r *http.Request) {
	var req request.ResearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.Properties) == 0 {
		h.writeJSONError(w, "At least one property is required", http.StatusBadRequest)
		return
	}

	result, err := h.researcher.Run(r.Context(), toInput(req))
	if err != nil {
		if errors.Is(err, pipeline.ErrMissingProductName) {
			h.writeJSONError(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.log.Error("research run failed",
			zap.String("product", req.ProductName),
			zap.Error(err),
		)
		h.writeJSONError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, response.FromRunResult(result))
}

func (h *Handler) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		h.writeJSONError(w, "Run id is required", http.StatusBadRequest)
		return
	}

	result, err := h.runs.FindByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrRunNotFound) {
			h.writeJSONError(w, "Run not found", http.StatusNotFound)
			return
		}
		h.log.Error("failed to load run", zap.String("run_id", id), zap.Error(err))
		h.writeJSONError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, response.FromRunResult(result))
}

func (h *Handler) HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func toInput(req request.ResearchRequest) pipeline.Input {
	schema := make([]domain.PropertySpec, len(req.Properties))
	for i, p := range req.Properties {
		schema[i] = domain.PropertySpec{
			Name:           p.Name,
			Description:    p.Description,
			ExpectedFormat: p.ExpectedFormat,
			OrderIndex:     i,
			Required:       p.Required,
		}
	}

	var candidates []search.Result
	for _, c := range req.Candidates {
		candidates = append(candidates, search.Result{URL: c.URL, Title: c.Title, Snippet: c.Snippet})
	}

	return pipeline.Input{
		Identity: domain.ProductIdentity{
			ArticleNumber: req.ArticleNumber,
			ProductName:   req.ProductName,
		},
		Schema:     schema,
		Candidates: candidates,
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error("failed to write JSON response", zap.Error(err))
	}
}

func (h *Handler) writeJSONError(w http.ResponseWriter, message string, status int) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
