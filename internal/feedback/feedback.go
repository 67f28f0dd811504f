// Package feedback records analyst ratings of explanations and summarizes them.
package feedback

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/montanaflynn/stats"
	"github.com/opensource-finance/fraudlens/internal/domain"
)

// HighRating is the lowest rating counted as favourable.
const HighRating = 4

// ErrInvalidFeedback is returned for out-of-range ratings or missing references.
var ErrInvalidFeedback = errors.New("invalid feedback")

// Validate checks that every rating is within MinRating..MaxRating and that
// the feedback references an explanation.
func Validate(fb *domain.Feedback) error {
	if fb.ExplanationID == "" && fb.TxID == "" {
		return fmt.Errorf("explanationId or txId is required: %w", ErrInvalidFeedback)
	}
	for name, v := range map[string]int{
		"clarityRating":       fb.Clarity,
		"accuracyRating":      fb.Accuracy,
		"actionabilityRating": fb.Actionability,
	} {
		if v < domain.MinRating || v > domain.MaxRating {
			return fmt.Errorf("%s must be between %d and %d: %w", name, domain.MinRating, domain.MaxRating, ErrInvalidFeedback)
		}
	}
	return nil
}

// Summarize computes per-dimension statistics over a feedback set.
func Summarize(items []*domain.Feedback) domain.FeedbackSummary {
	summary := domain.FeedbackSummary{Count: len(items)}
	if len(items) == 0 {
		return summary
	}

	clarity := make(stats.Float64Data, len(items))
	accuracy := make(stats.Float64Data, len(items))
	actionability := make(stats.Float64Data, len(items))
	for i, fb := range items {
		clarity[i] = float64(fb.Clarity)
		accuracy[i] = float64(fb.Accuracy)
		actionability[i] = float64(fb.Actionability)
	}

	summary.Clarity = summarizeRatings(clarity)
	summary.Accuracy = summarizeRatings(accuracy)
	summary.Actionability = summarizeRatings(actionability)
	return summary
}

func summarizeRatings(data stats.Float64Data) domain.RatingSummary {
	mean, _ := stats.Mean(data)
	median, _ := stats.Median(data)

	high := 0
	for _, v := range data {
		if v >= HighRating {
			high++
		}
	}
	pct, _ := stats.Round(float64(high)/float64(len(data))*100, 2)

	avg, _ := stats.Round(mean, 2)
	return domain.RatingSummary{
		Average:     avg,
		Median:      median,
		HighPercent: pct,
	}
}

// Service stores feedback against persisted explanations.
type Service struct {
	repo domain.Repository
}

// NewService creates a feedback service.
func NewService(repo domain.Repository) *Service {
	return &Service{repo: repo}
}

// Submit validates and stores feedback. When only a transaction id is given,
// the latest explanation for it is linked.
func (s *Service) Submit(ctx context.Context, tenantID string, fb *domain.Feedback) error {
	if err := Validate(fb); err != nil {
		return err
	}

	var (
		rec *domain.ExplainedRecord
		err error
	)
	if fb.ExplanationID != "" {
		rec, err = s.repo.GetExplanation(ctx, tenantID, fb.ExplanationID)
	} else {
		rec, err = s.repo.GetExplanationByTx(ctx, tenantID, fb.TxID)
	}
	if err != nil {
		return fmt.Errorf("failed to resolve explanation: %w", err)
	}

	fb.ExplanationID = rec.ID
	fb.TxID = rec.Record.ID
	fb.TenantID = tenantID
	if fb.ID == "" {
		fb.ID = uuid.New().String()
	}
	if fb.CreatedAt.IsZero() {
		fb.CreatedAt = time.Now().UTC()
	}

	if err := s.repo.SaveFeedback(ctx, tenantID, fb); err != nil {
		return fmt.Errorf("failed to save feedback: %w", err)
	}
	return nil
}

// Summary summarizes all feedback for a tenant.
func (s *Service) Summary(ctx context.Context, tenantID string) (domain.FeedbackSummary, error) {
	items, err := s.repo.ListFeedback(ctx, tenantID)
	if err != nil {
		return domain.FeedbackSummary{}, fmt.Errorf("failed to list feedback: %w", err)
	}
	return Summarize(items), nil
}
