// Package ingest turns fraud model output into validated transaction records.
package ingest

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/opensource-finance/fraudlens/internal/domain"
)

// HighVelocityThreshold is the hourly transaction count above which a record
// is flagged as high velocity.
const HighVelocityThreshold = 3

// ErrInvalidRecord is returned when a record breaks a field invariant.
var ErrInvalidRecord = errors.New("invalid transaction record")

// Derive fills the behavioural indicators a record can compute from its own
// fields. Indicators already present are left untouched.
func Derive(rec *domain.TransactionRecord) {
	if rec.GeoMismatch == nil && rec.TransactionCountry != "" && rec.CustomerCountry != "" {
		v := 0
		if rec.TransactionCountry != rec.CustomerCountry {
			v = 1
		}
		rec.GeoMismatch = &v
	}
	if rec.HighVelocityFlag == nil && rec.Velocity1h != nil {
		v := 0
		if *rec.Velocity1h > HighVelocityThreshold {
			v = 1
		}
		rec.HighVelocityFlag = &v
	}
}

// Validate checks the record set invariants: non-empty unique identifiers
// and a binary fraud label.
func Validate(records []domain.TransactionRecord) error {
	seen := make(map[string]int, len(records))
	for i := range records {
		rec := &records[i]
		if rec.ID == "" {
			return fmt.Errorf("record %d: transaction_id is required: %w", i, ErrInvalidRecord)
		}
		if prev, ok := seen[rec.ID]; ok {
			return fmt.Errorf("record %d: duplicate transaction_id %s (first at %d): %w", i, rec.ID, prev, ErrInvalidRecord)
		}
		seen[rec.ID] = i

		if rec.FraudPrediction != 0 && rec.FraudPrediction != 1 {
			return fmt.Errorf("record %d (%s): fraud_prediction must be 0 or 1: %w", i, rec.ID, ErrInvalidRecord)
		}
	}
	return nil
}

// Prepare derives indicators for every record and validates the set.
// Indicators outside {0,1} are kept as given; the rules reading them do not
// fire.
func Prepare(records []domain.TransactionRecord) error {
	for i := range records {
		rec := &records[i]
		Derive(rec)
		if !binary(rec.GeoMismatch) {
			slog.Warn("non-binary indicator", "tx_id", rec.ID, "field", "geo_mismatch", "value", *rec.GeoMismatch)
		}
		if !binary(rec.HighVelocityFlag) {
			slog.Warn("non-binary indicator", "tx_id", rec.ID, "field", "high_velocity_flag", "value", *rec.HighVelocityFlag)
		}
	}
	return Validate(records)
}

func binary(v *int) bool {
	return v == nil || *v == 0 || *v == 1
}
