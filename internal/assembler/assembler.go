// Package assembler merges rule findings, narratives and feature attribution
// into one explained record per transaction.
package assembler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/fraudlens/internal/attribution"
	"github.com/opensource-finance/fraudlens/internal/domain"
	"github.com/opensource-finance/fraudlens/internal/metrics"
	"github.com/opensource-finance/fraudlens/internal/narrative"
	"github.com/opensource-finance/fraudlens/internal/rules"
	"github.com/opensource-finance/fraudlens/internal/templates"
)

// EngineVersion is stamped on every explained record.
const EngineVersion = "fraudlens-1.0"

// Narrator produces one narrative result per request, index-aligned.
type Narrator interface {
	ExplainBatch(ctx context.Context, reqs []narrative.Request) []narrative.Result
}

// Assembler orchestrates the explanation pipeline.
type Assembler struct {
	engine   *rules.Engine
	narrator Narrator
	metrics  *metrics.Collector

	// TopK is used when an input does not set one.
	TopK int
}

// New creates an assembler. A nil collector disables metrics.
func New(engine *rules.Engine, narrator Narrator, m *metrics.Collector) *Assembler {
	return &Assembler{
		engine:   engine,
		narrator: narrator,
		metrics:  m,
		TopK:     domain.DefaultTopK,
	}
}

// Input contains everything needed to explain a record set.
type Input struct {
	TenantID string
	TraceID  string
	Records  []domain.TransactionRecord

	// Attribution is optional. When set, row i belongs to Records[i].
	Attribution *attribution.Batch
	TopK        int

	// Model overrides the narrator's default model.
	Model string

	StartTime time.Time
}

// Assemble explains records with the assembler defaults.
func (a *Assembler) Assemble(ctx context.Context, records []domain.TransactionRecord, batch *attribution.Batch, topK int) ([]*domain.ExplainedRecord, error) {
	return a.Process(ctx, &Input{
		Records:     records,
		Attribution: batch,
		TopK:        topK,
		StartTime:   time.Now(),
	})
}

// Process returns one explained record per input record, in input order.
// Narrative failures degrade to inline text; the only error is an attribution
// batch that does not cover the record set.
func (a *Assembler) Process(ctx context.Context, input *Input) ([]*domain.ExplainedRecord, error) {
	if input.StartTime.IsZero() {
		input.StartTime = time.Now()
	}
	topK := input.TopK
	if topK == 0 {
		topK = a.TopK
	}

	n := len(input.Records)

	// Attribution is checked up front so a precondition failure never
	// costs any external narrative calls.
	var rankings []domain.AttributionRanking
	if input.Attribution != nil {
		if input.Attribution.Len() < n {
			return nil, fmt.Errorf("attribution batch has %d rows for %d records: %w",
				input.Attribution.Len(), n, attribution.ErrIndexOutOfRange)
		}
		rankings = make([]domain.AttributionRanking, n)
		for i := range input.Records {
			ranking, err := input.Attribution.TopFeatures(i, topK)
			if err != nil {
				return nil, fmt.Errorf("record %s: %w", input.Records[i].ID, err)
			}
			rankings[i] = ranking
		}
	}

	// Rules are pure and cheap; narratives are the only blocking step.
	findings := make([]domain.RuleFinding, n)
	reqs := make([]narrative.Request, n)
	for i := range input.Records {
		rec := &input.Records[i]
		findings[i] = a.engine.Evaluate(rec)
		a.metrics.ObserveFindings(findings[i])
		reqs[i] = narrative.Request{Record: rec, Findings: findings[i], Model: input.Model}
	}

	narratives := a.narrator.ExplainBatch(ctx, reqs)

	out := make([]*domain.ExplainedRecord, n)
	for i := range input.Records {
		var ranking domain.AttributionRanking
		if rankings != nil {
			ranking = rankings[i]
		}
		out[i] = a.build(input, &input.Records[i], findings[i], narratives[i], ranking)
	}

	a.metrics.ObserveAssembled(n)
	slog.Debug("explanations assembled",
		"tenant_id", input.TenantID,
		"count", n,
		"duration_ms", time.Since(input.StartTime).Milliseconds(),
	)

	return out, nil
}

func (a *Assembler) build(input *Input, rec *domain.TransactionRecord, finding domain.RuleFinding, res narrative.Result, ranking domain.AttributionRanking) *domain.ExplainedRecord {
	stages := []domain.Stage{
		domain.StageValidated,
		domain.StageRulesEvaluated,
		domain.StageNarrativeRequested,
	}
	if ranking != nil {
		stages = append(stages, domain.StageAttributionMerged)
	}
	stages = append(stages, domain.StageAssembled)

	return &domain.ExplainedRecord{
		ID:          uuid.New().String(),
		TenantID:    input.TenantID,
		CreatedAt:   time.Now().UTC(),
		Record:      *rec,
		Narrative:   res.Text,
		RuleSummary: finding.Summary(),
		Rules:       finding.Identifiers(),
		Details:     templates.Details(finding, rec),
		Attribution: ranking,
		Metadata: domain.ExplanationMetadata{
			TraceID:         input.TraceID,
			Stage:           domain.StageAssembled,
			Stages:          stages,
			Model:           res.Model,
			NarrativeStatus: res.Status,
			RulesEvaluated:  a.engine.RulesCount(),
			RulesFired:      len(finding),
			NarrativeMs:     res.Duration.Milliseconds(),
			TotalMs:         time.Since(input.StartTime).Milliseconds(),
			EngineVersion:   EngineVersion,
		},
	}
}

// ShouldAlert reports whether the explained record belongs on the alert topic.
func ShouldAlert(rec *domain.ExplainedRecord) bool {
	return rec.Record.FraudPrediction == 1
}

// GetReasons returns the rendered description of every fired rule.
func GetReasons(rec *domain.ExplainedRecord) []string {
	reasons := make([]string, 0, len(rec.Details))
	for _, d := range rec.Details {
		if d.Detail != "" {
			reasons = append(reasons, d.Detail)
		}
	}
	return reasons
}
