// Package narrative builds natural-language explanation requests for flagged
// transactions and normalizes the text-generation response.
package narrative

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/opensource-finance/fraudlens/internal/domain"
	"github.com/opensource-finance/fraudlens/internal/metrics"
	"github.com/opensource-finance/fraudlens/internal/templates"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
)

const (
	// BenignNarrative is returned without any external call when no rule fired.
	BenignNarrative = "Transaction appears normal; no significant fraud indicators were detected."

	// FailurePrefix marks a narrative that could not be generated.
	FailurePrefix = "Error generating explanation: "

	// SystemPrompt is the fixed role given to the text-generation service.
	SystemPrompt = "You are a professional fraud detection analyst."

	cacheNamespace = "narrative"
)

const instructions = `You are a fraud analyst assistant.

Generate a concise (1-3 sentences), professional, business-friendly explanation
for why the transaction was flagged as potentially fraudulent.
Avoid speculation and use factual language only.`

var errEmptyResponse = errors.New("empty response from text generator")

var tracer = otel.Tracer("fraudlens-narrative")

// Requester dispatches narrative requests to a text generator.
type Requester struct {
	generator      domain.TextGenerator
	cache          domain.Cache
	metrics        *metrics.Collector
	model          string
	maxTokens      int
	temperature    float64
	timeout        time.Duration
	maxConcurrency int
	cacheTTL       time.Duration
}

// Option configures a Requester.
type Option func(*Requester)

// WithCache caches successful narratives for cfg.CacheTTL.
func WithCache(c domain.Cache) Option {
	return func(r *Requester) { r.cache = c }
}

// WithMetrics records request outcomes.
func WithMetrics(m *metrics.Collector) Option {
	return func(r *Requester) { r.metrics = m }
}

// NewRequester creates a requester around the given generator. Zero config
// values fall back to the package defaults.
func NewRequester(gen domain.TextGenerator, cfg domain.NarrativeConfig, opts ...Option) *Requester {
	r := &Requester{
		generator:      gen,
		model:          cfg.Model,
		maxTokens:      cfg.MaxTokens,
		temperature:    domain.DefaultTemperature,
		timeout:        cfg.Timeout,
		maxConcurrency: cfg.MaxConcurrency,
		cacheTTL:       cfg.CacheTTL,
	}
	if r.model == "" {
		r.model = domain.DefaultModel
	}
	if r.maxTokens <= 0 {
		r.maxTokens = domain.DefaultMaxTokens
	}
	if cfg.Temperature != nil {
		r.temperature = *cfg.Temperature
	}
	if r.timeout <= 0 {
		r.timeout = domain.DefaultTimeout
	}
	if r.maxConcurrency <= 0 {
		r.maxConcurrency = domain.DefaultMaxConcurrency
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// DefaultModel returns the model used when a request does not name one.
func (r *Requester) DefaultModel() string {
	return r.model
}

// Result is the outcome of one narrative request.
type Result struct {
	Text     string
	Status   string
	Model    string
	Duration time.Duration
}

// Request returns the narrative for one record. It never fails: dispatch
// errors come back as text starting with FailurePrefix.
func (r *Requester) Request(ctx context.Context, rec *domain.TransactionRecord, findings domain.RuleFinding, model string) string {
	return r.Explain(ctx, rec, findings, model).Text
}

// Explain is Request with outcome detail.
func (r *Requester) Explain(ctx context.Context, rec *domain.TransactionRecord, findings domain.RuleFinding, model string) Result {
	if findings.Empty() {
		r.metrics.ObserveNarrative(metrics.OutcomeBenign, 0)
		return Result{Text: BenignNarrative, Status: domain.NarrativeBenign}
	}

	if model == "" {
		model = r.model
	}

	ctx, span := tracer.Start(ctx, "narrative.request")
	defer span.End()
	span.SetAttributes(
		attribute.String("tx_id", rec.ID),
		attribute.String("model", model),
		attribute.Int("rules_fired", len(findings)),
	)

	req := domain.GenerationRequest{
		Model:       model,
		System:      SystemPrompt,
		Prompt:      BuildPrompt(rec, findings),
		MaxTokens:   r.maxTokens,
		Temperature: r.temperature,
	}
	key := cacheKey(req)

	if text, ok := r.cached(ctx, key); ok {
		r.metrics.ObserveNarrative(metrics.OutcomeCached, 0)
		span.SetAttributes(attribute.String("outcome", domain.NarrativeCached))
		return Result{Text: text, Status: domain.NarrativeCached, Model: model}
	}

	start := time.Now()
	text, err := r.dispatch(ctx, req)
	elapsed := time.Since(start)

	if err != nil {
		r.metrics.ObserveNarrative(metrics.OutcomeFailure, elapsed)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		slog.Warn("narrative generation failed",
			"tx_id", rec.ID,
			"model", model,
			"duration_ms", elapsed.Milliseconds(),
			"error", err,
		)
		return Result{Text: FailurePrefix + err.Error(), Status: domain.NarrativeFailed, Model: model, Duration: elapsed}
	}

	r.metrics.ObserveNarrative(metrics.OutcomeSuccess, elapsed)
	span.SetAttributes(attribute.String("outcome", domain.NarrativeGenerated))
	r.store(ctx, key, text)

	return Result{Text: text, Status: domain.NarrativeGenerated, Model: model, Duration: elapsed}
}

// Request is one entry of a narrative batch.
type Request struct {
	Record   *domain.TransactionRecord
	Findings domain.RuleFinding
	Model    string
}

// RequestBatch returns one narrative per request, index-aligned with reqs.
func (r *Requester) RequestBatch(ctx context.Context, reqs []Request) []string {
	results := r.ExplainBatch(ctx, reqs)
	texts := make([]string, len(results))
	for i, res := range results {
		texts[i] = res.Text
	}
	return texts
}

// ExplainBatch runs every request independently with at most maxConcurrency
// in flight. Results are index-aligned with reqs.
func (r *Requester) ExplainBatch(ctx context.Context, reqs []Request) []Result {
	results := make([]Result, len(reqs))

	var g errgroup.Group
	g.SetLimit(r.maxConcurrency)
	for i, req := range reqs {
		g.Go(func() error {
			results[i] = r.Explain(ctx, req.Record, req.Findings, req.Model)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (r *Requester) dispatch(ctx context.Context, req domain.GenerationRequest) (text string, err error) {
	if r.generator == nil {
		return "", errors.New("no text generator configured")
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("text generator panic: %v", p)
		}
	}()

	text, err = r.generator.Generate(ctx, req)
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", errEmptyResponse
	}
	return text, nil
}

func (r *Requester) cached(ctx context.Context, key string) (string, bool) {
	if r.cache == nil || r.cacheTTL <= 0 {
		return "", false
	}
	val, err := r.cache.Get(ctx, cacheNamespace, key)
	if err != nil {
		slog.Debug("narrative cache read failed", "error", err)
		return "", false
	}
	if len(val) == 0 {
		return "", false
	}
	return string(val), true
}

func (r *Requester) store(ctx context.Context, key, text string) {
	if r.cache == nil || r.cacheTTL <= 0 {
		return
	}
	if err := r.cache.Set(ctx, cacheNamespace, key, []byte(text), r.cacheTTL); err != nil {
		slog.Debug("narrative cache write failed", "error", err)
	}
}

// BuildPrompt renders the user payload: fixed instructions, the record's
// fields in output order, and the raw template text of every fired rule
// joined by single spaces.
func BuildPrompt(rec *domain.TransactionRecord, findings domain.RuleFinding) string {
	var b strings.Builder
	b.WriteString(instructions)
	b.WriteString("\n\nTransaction features:\n")
	for _, f := range rec.Fields() {
		b.WriteString(f.Name)
		b.WriteString(": ")
		b.WriteString(domain.FormatValue(f.Value))
		b.WriteByte('\n')
	}
	b.WriteString("\nDetected risk patterns:\n")
	b.WriteString(strings.Join(templates.Texts(findings), " "))
	return b.String()
}

func cacheKey(req domain.GenerationRequest) string {
	h := sha256.New()
	h.Write([]byte(req.Model))
	h.Write([]byte{0})
	h.Write([]byte(req.System))
	h.Write([]byte{0})
	h.Write([]byte(req.Prompt))
	return hex.EncodeToString(h.Sum(nil))
}
