// Package worker assembles explanations for batches published on the event bus.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/opensource-finance/fraudlens/internal/assembler"
	"github.com/opensource-finance/fraudlens/internal/attribution"
	"github.com/opensource-finance/fraudlens/internal/domain"
	"github.com/opensource-finance/fraudlens/internal/ingest"
)

// GlobalTenant is the subscription tenant used when no tenants are configured.
const GlobalTenant = "_global"

// Worker consumes TopicTransactionIngested and publishes explained records.
type Worker struct {
	bus       domain.EventBus
	repo      domain.Repository
	assembler *assembler.Assembler

	mu            sync.Mutex
	subscriptions []domain.Subscription
	tenants       map[string]bool
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// TenantIDs lists the tenants to subscribe for. Empty subscribes the
	// GlobalTenant only.
	TenantIDs []string
}

// BatchMessage is the payload of TopicTransactionIngested.
type BatchMessage struct {
	TenantID    string                     `json:"tenantId,omitempty"`
	TraceID     string                     `json:"traceId,omitempty"`
	Records     []domain.TransactionRecord `json:"records"`
	Attribution *attribution.Batch         `json:"attribution,omitempty"`
	TopK        int                        `json:"topK,omitempty"`
	Model       string                     `json:"model,omitempty"`
}

// NewWorker creates a worker. repo may be nil, in which case results are
// published but not persisted.
func NewWorker(bus domain.EventBus, repo domain.Repository, a *assembler.Assembler) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:       bus,
		repo:      repo,
		assembler: a,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start subscribes to the ingest topic for each configured tenant.
func (w *Worker) Start(cfg Config) error {
	tenants := cfg.TenantIDs
	if len(tenants) == 0 {
		tenants = []string{GlobalTenant}
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	started := 0
	for _, tenantID := range tenants {
		sub, err := w.bus.Subscribe(w.ctx, tenantID, domain.TopicTransactionIngested, w.handle)
		if err != nil {
			slog.Error("failed to start worker for tenant", "tenant_id", tenantID, "error", err)
			continue
		}
		w.subscriptions = append(w.subscriptions, sub)
		if w.tenants == nil {
			w.tenants = make(map[string]bool)
		}
		w.tenants[tenantID] = true
		started++
	}
	if started == 0 {
		return fmt.Errorf("no worker subscriptions started for %d tenants", len(tenants))
	}

	slog.Info("workers started", "tenant_count", started, "topic", domain.TopicTransactionIngested)
	return nil
}

// Route returns the subscription tenant a batch for tenantID must be
// published under, or false when no running subscription would receive it.
func (w *Worker) Route(tenantID string) (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	switch {
	case w.tenants[tenantID]:
		return tenantID, true
	case w.tenants[GlobalTenant]:
		return GlobalTenant, true
	}
	return "", false
}

func (w *Worker) handle(ctx context.Context, msg *domain.Message) error {
	var batch BatchMessage
	if err := json.Unmarshal(msg.Payload, &batch); err != nil {
		return fmt.Errorf("decode batch message %s: %w", msg.ID, err)
	}

	tenantID := msg.TenantID
	if batch.TenantID != "" {
		tenantID = batch.TenantID
	}
	traceID := batch.TraceID
	if traceID == "" {
		traceID = msg.ID
	}
	return w.Process(ctx, tenantID, traceID, &batch)
}

// Process validates and assembles a batch, persists each explained record,
// and publishes it to TopicExplanationAssembled. Records predicted as fraud
// are also published to TopicAlert.
func (w *Worker) Process(ctx context.Context, tenantID, traceID string, batch *BatchMessage) error {
	start := time.Now()

	if err := ingest.Prepare(batch.Records); err != nil {
		return fmt.Errorf("batch %s: %w", traceID, err)
	}

	explained, err := w.assembler.Process(ctx, &assembler.Input{
		TenantID:    tenantID,
		TraceID:     traceID,
		Records:     batch.Records,
		Attribution: batch.Attribution,
		TopK:        batch.TopK,
		Model:       batch.Model,
		StartTime:   start,
	})
	if err != nil {
		return fmt.Errorf("batch %s: %w", traceID, err)
	}

	alerts := 0
	for _, rec := range explained {
		if w.repo != nil {
			if err := w.repo.SaveExplanation(ctx, tenantID, rec); err != nil {
				slog.Error("failed to save explanation", "tx_id", rec.Record.ID, "error", err)
			}
		}

		payload, err := json.Marshal(rec)
		if err != nil {
			slog.Error("failed to encode explanation", "tx_id", rec.Record.ID, "error", err)
			continue
		}
		if err := w.bus.Publish(ctx, tenantID, domain.TopicExplanationAssembled, payload); err != nil {
			slog.Error("failed to publish explanation", "tx_id", rec.Record.ID, "error", err)
		}
		if assembler.ShouldAlert(rec) {
			alerts++
			if err := w.bus.Publish(ctx, tenantID, domain.TopicAlert, payload); err != nil {
				slog.Error("failed to publish alert", "tx_id", rec.Record.ID, "error", err)
			}
		}
	}

	slog.Info("batch processed",
		"tenant_id", tenantID,
		"trace_id", traceID,
		"records", len(explained),
		"alerts", alerts,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// Stop cancels in-flight work and unsubscribes.
func (w *Worker) Stop() error {
	w.cancel()

	w.mu.Lock()
	defer w.mu.Unlock()
	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe", "topic", sub.Topic(), "error", err)
		}
	}
	w.subscriptions = nil
	w.tenants = nil

	slog.Info("workers stopped")
	return nil
}

// Stats describes the worker's subscriptions.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{SubscriptionCount: len(w.subscriptions), Topics: topics}
}
