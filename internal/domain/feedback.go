package domain

import "time"

// Rating bounds for analyst feedback.
const (
	MinRating = 1
	MaxRating = 5
)

// Feedback is an analyst's assessment of one explanation.
type Feedback struct {
	ID            string    `json:"id"`
	TenantID      string    `json:"tenantId,omitempty"`
	ExplanationID string    `json:"explanationId"`
	TxID          string    `json:"txId"`
	Clarity       int       `json:"clarityRating"`
	Accuracy      int       `json:"accuracyRating"`
	Actionability int       `json:"actionabilityRating"`
	Comments      string    `json:"comments,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

// FeedbackSummary aggregates analyst ratings per dimension.
type FeedbackSummary struct {
	Count         int           `json:"count"`
	Clarity       RatingSummary `json:"clarity"`
	Accuracy      RatingSummary `json:"accuracy"`
	Actionability RatingSummary `json:"actionability"`
}

// RatingSummary holds the average and the share of ratings >= 4.
type RatingSummary struct {
	Average     float64 `json:"average"`
	Median      float64 `json:"median"`
	HighPercent float64 `json:"highPercent"`
}
