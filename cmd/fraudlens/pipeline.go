package main

import (
	"fmt"
	"log/slog"

	"github.com/opensource-finance/fraudlens/internal/assembler"
	"github.com/opensource-finance/fraudlens/internal/domain"
	"github.com/opensource-finance/fraudlens/internal/llm"
	"github.com/opensource-finance/fraudlens/internal/metrics"
	"github.com/opensource-finance/fraudlens/internal/narrative"
	"github.com/opensource-finance/fraudlens/internal/rules"
)

// newPipeline builds the rule engine and assembler shared by serve and explain.
func newPipeline(cfg *domain.Config, c domain.Cache, m *metrics.Collector) (*rules.Engine, *assembler.Assembler, error) {
	engine, err := rules.NewEngine()
	if err != nil {
		return nil, nil, fmt.Errorf("initialize rule engine: %w", err)
	}

	gen, err := llm.New(cfg.Narrative)
	if err != nil {
		return nil, nil, fmt.Errorf("initialize text generator: %w", err)
	}
	if u, ok := gen.(llm.Unavailable); ok {
		slog.Warn("text generation unavailable, narratives will carry inline errors", "reason", u.Reason)
	}

	opts := []narrative.Option{narrative.WithMetrics(m)}
	if c != nil && cfg.Narrative.CacheTTL > 0 {
		opts = append(opts, narrative.WithCache(c))
	}
	requester := narrative.NewRequester(gen, cfg.Narrative, opts...)

	a := assembler.New(engine, requester, m)
	a.TopK = cfg.Attribution.TopK

	slog.Info("pipeline initialized",
		"rules_count", engine.RulesCount(),
		"provider", cfg.Narrative.Provider,
		"model", requester.DefaultModel(),
		"top_k", a.TopK,
	)
	return engine, a, nil
}
