package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/opensource-finance/fraudlens/internal/assembler"
	"github.com/opensource-finance/fraudlens/internal/attribution"
	"github.com/opensource-finance/fraudlens/internal/cache"
	"github.com/opensource-finance/fraudlens/internal/domain"
	"github.com/opensource-finance/fraudlens/internal/feedback"
	"github.com/opensource-finance/fraudlens/internal/ingest"
	"github.com/opensource-finance/fraudlens/internal/repository"
	"github.com/opensource-finance/fraudlens/internal/rules"
	"github.com/opensource-finance/fraudlens/internal/templates"
	"github.com/opensource-finance/fraudlens/internal/worker"
)

// MaxBatchSize bounds the records accepted by one batch request.
const MaxBatchSize = 1000

// Handler holds dependencies for API handlers.
type Handler struct {
	repo      domain.Repository
	cache     domain.Cache
	bus       domain.EventBus
	worker    *worker.Worker
	assembler *assembler.Assembler
	engine    *rules.Engine
	feedback  *feedback.Service
	version   string
}

// NewHandler creates a handler. repo, cache and bus may be nil; the
// endpoints that need them then answer 503.
func NewHandler(deps Deps, version string) *Handler {
	h := &Handler{
		repo:      deps.Repository,
		cache:     deps.Cache,
		bus:       deps.Bus,
		worker:    deps.Worker,
		assembler: deps.Assembler,
		engine:    deps.Engine,
		version:   version,
	}
	if deps.Repository != nil {
		h.feedback = feedback.NewService(deps.Repository)
	}
	return h
}

// ExplainRequest is the body of POST /explain.
type ExplainRequest struct {
	Record domain.TransactionRecord `json:"record"`

	// Contributions maps feature name to signed attribution value, in the
	// feature order used to break ties. Features, when set, moves the listed
	// features to the front.
	Contributions attribution.Contributions `json:"contributions,omitempty"`
	Features      []string                  `json:"features,omitempty"`

	TopK  int    `json:"topK,omitempty"`
	Model string `json:"model,omitempty"`
}

// BatchRequest is the body of POST /explain/batch.
type BatchRequest struct {
	Records     []domain.TransactionRecord `json:"records"`
	Attribution *attribution.Batch         `json:"attribution,omitempty"`
	TopK        int                        `json:"topK,omitempty"`
	Model       string                     `json:"model,omitempty"`

	// Async publishes the batch to the event bus instead of assembling it
	// in the request.
	Async bool `json:"async,omitempty"`
}

// BatchResponse is the response of POST /explain/batch.
type BatchResponse struct {
	Count        int                           `json:"count"`
	Explanations []*domain.ExplanationResponse `json:"explanations"`
	Metadata     ResponseMetadata              `json:"metadata"`
}

// AcceptedResponse is returned for asynchronous batches.
type AcceptedResponse struct {
	TraceID string `json:"traceId"`
	Count   int    `json:"count"`
	Topic   string `json:"topic"`
}

// ResponseMetadata describes request processing.
type ResponseMetadata struct {
	TraceID string `json:"traceId"`
	TotalMs int64  `json:"totalMs"`
	Version string `json:"version"`
}

// Explain handles POST /explain.
func (h *Handler) Explain(w http.ResponseWriter, r *http.Request) {
	var req ExplainRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}

	var batch *attribution.Batch
	if len(req.Contributions) > 0 {
		batch = attribution.Single(attribution.Reorder(req.Contributions, req.Features))
	}

	out, ok := h.assemble(w, r, []domain.TransactionRecord{req.Record}, batch, req.TopK, req.Model)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, out[0].ToResponse())
}

// ExplainBatch handles POST /explain/batch.
func (h *Handler) ExplainBatch(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	var req BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}
	if len(req.Records) == 0 {
		writeError(w, http.StatusBadRequest, "records are required")
		return
	}
	if len(req.Records) > MaxBatchSize {
		writeError(w, http.StatusRequestEntityTooLarge, "batch exceeds "+strconv.Itoa(MaxBatchSize)+" records")
		return
	}

	if req.Async {
		h.publishBatch(w, r, &req)
		return
	}

	out, ok := h.assemble(w, r, req.Records, req.Attribution, req.TopK, req.Model)
	if !ok {
		return
	}

	resp := BatchResponse{
		Count:        len(out),
		Explanations: make([]*domain.ExplanationResponse, len(out)),
		Metadata: ResponseMetadata{
			TraceID: GetTraceID(ctx),
			TotalMs: time.Since(start).Milliseconds(),
			Version: h.version,
		},
	}
	for i, rec := range out {
		resp.Explanations[i] = rec.ToResponse()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) assemble(w http.ResponseWriter, r *http.Request, records []domain.TransactionRecord, batch *attribution.Batch, topK int, model string) ([]*domain.ExplainedRecord, bool) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	if err := ingest.Prepare(records); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}

	out, err := h.assembler.Process(ctx, &assembler.Input{
		TenantID:    tenantID,
		TraceID:     GetTraceID(ctx),
		Records:     records,
		Attribution: batch,
		TopK:        topK,
		Model:       model,
		StartTime:   time.Now(),
	})
	if err != nil {
		switch {
		case errors.Is(err, attribution.ErrIndexOutOfRange),
			errors.Is(err, attribution.ErrInvalidTopK),
			errors.Is(err, attribution.ErrShapeMismatch):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			slog.Error("assembly failed", "tenant_id", tenantID, "error", err)
			writeError(w, http.StatusInternalServerError, "explanation assembly failed")
		}
		return nil, false
	}

	if h.repo != nil {
		for _, rec := range out {
			if err := h.repo.SaveExplanation(ctx, tenantID, rec); err != nil {
				slog.Error("failed to save explanation", "tx_id", rec.Record.ID, "error", err)
			}
		}
	}
	return out, true
}

func (h *Handler) publishBatch(w http.ResponseWriter, r *http.Request, req *BatchRequest) {
	ctx := r.Context()
	if h.bus == nil || h.worker == nil {
		writeError(w, http.StatusServiceUnavailable, "async processing not available")
		return
	}
	if err := ingest.Prepare(req.Records); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	tenantID := GetTenantID(ctx)
	traceID := GetTraceID(ctx)
	route, ok := h.worker.Route(tenantID)
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "no async worker serves tenant "+tenantID)
		return
	}
	payload, err := json.Marshal(worker.BatchMessage{
		TenantID:    tenantID,
		TraceID:     traceID,
		Records:     req.Records,
		Attribution: req.Attribution,
		TopK:        req.TopK,
		Model:       req.Model,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to encode batch")
		return
	}
	if err := h.bus.Publish(ctx, route, domain.TopicTransactionIngested, payload); err != nil {
		slog.Error("failed to publish batch", "tenant_id", tenantID, "error", err)
		writeError(w, http.StatusServiceUnavailable, "failed to queue batch")
		return
	}

	writeJSON(w, http.StatusAccepted, AcceptedResponse{
		TraceID: traceID,
		Count:   len(req.Records),
		Topic:   domain.TopicTransactionIngested,
	})
}

// GetExplanation handles GET /explanations/{id}.
func (h *Handler) GetExplanation(w http.ResponseWriter, r *http.Request) {
	if !h.requireRepo(w) {
		return
	}
	ctx := r.Context()
	rec, err := h.repo.GetExplanation(ctx, GetTenantID(ctx), chi.URLParam(r, "id"))
	if err != nil {
		h.writeRepoError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec.ToResponse())
}

// ListExplanations handles GET /explanations. With txId it returns the
// latest explanation for that transaction.
func (h *Handler) ListExplanations(w http.ResponseWriter, r *http.Request) {
	if !h.requireRepo(w) {
		return
	}
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	if txID := r.URL.Query().Get("txId"); txID != "" {
		rec, err := h.repo.GetExplanationByTx(ctx, tenantID, txID)
		if err != nil {
			h.writeRepoError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, rec.ToResponse())
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	recs, err := h.repo.ListExplanations(ctx, tenantID, limit)
	if err != nil {
		h.writeRepoError(w, err)
		return
	}
	items := make([]*domain.ExplanationResponse, len(recs))
	for i, rec := range recs {
		items[i] = rec.ToResponse()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"explanations": items,
		"count":        len(items),
	})
}

// SubmitFeedback handles POST /feedback.
func (h *Handler) SubmitFeedback(w http.ResponseWriter, r *http.Request) {
	if !h.requireRepo(w) {
		return
	}
	ctx := r.Context()

	var fb domain.Feedback
	if err := json.NewDecoder(r.Body).Decode(&fb); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}

	if err := h.feedback.Submit(ctx, GetTenantID(ctx), &fb); err != nil {
		if errors.Is(err, feedback.ErrInvalidFeedback) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.writeRepoError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, fb)
}

// FeedbackSummary handles GET /feedback/summary.
func (h *Handler) FeedbackSummary(w http.ResponseWriter, r *http.Request) {
	if !h.requireRepo(w) {
		return
	}
	ctx := r.Context()
	summary, err := h.feedback.Summary(ctx, GetTenantID(ctx))
	if err != nil {
		h.writeRepoError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// ListRules handles GET /rules.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	defs := h.engine.LoadedDefinitions()
	writeJSON(w, http.StatusOK, map[string]any{
		"rules": defs,
		"count": len(defs),
	})
}

// ListTemplates handles GET /templates.
func (h *Handler) ListTemplates(w http.ResponseWriter, r *http.Request) {
	all := templates.All()
	writeJSON(w, http.StatusOK, map[string]any{
		"templates": all,
		"count":     len(all),
	})
}

// Health reports dependency status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	checks := map[string]string{}
	status := "healthy"

	check := func(name string, ping func() error) {
		if err := ping(); err != nil {
			checks[name] = err.Error()
			status = "degraded"
			return
		}
		checks[name] = "ok"
	}
	if h.repo != nil {
		check("repository", func() error { return h.repo.Ping(ctx) })
	}
	if h.cache != nil {
		check("cache", func() error { return h.cache.Ping(ctx) })
	}
	if h.bus != nil {
		check("bus", func() error { return h.bus.Ping(ctx) })
	}

	resp := map[string]any{
		"status":  status,
		"version": h.version,
		"checks":  checks,
	}
	if sc, ok := h.cache.(interface{ Stats() cache.Stats }); ok {
		resp["cache"] = sc.Stats()
	}
	writeJSON(w, http.StatusOK, resp)
}

// Ready reports whether the server accepts traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ready": true,
		"rules": h.engine.RulesCount(),
	})
}

func (h *Handler) requireRepo(w http.ResponseWriter) bool {
	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "repository not available")
		return false
	}
	return true
}

func (h *Handler) writeRepoError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "explanation not found")
	case errors.Is(err, repository.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		slog.Error("repository error", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
