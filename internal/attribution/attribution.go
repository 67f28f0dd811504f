// Package attribution orders externally computed feature contributions.
package attribution

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/opensource-finance/fraudlens/internal/domain"
)

var (
	// ErrInvalidTopK is returned when fewer than one feature is requested.
	ErrInvalidTopK = errors.New("top_k must be at least 1")

	// ErrIndexOutOfRange is returned when a transaction index falls outside
	// the batch the attribution values were computed for.
	ErrIndexOutOfRange = errors.New("transaction index out of range")

	// ErrShapeMismatch is returned when a batch row does not match the feature list.
	ErrShapeMismatch = errors.New("attribution row does not match feature count")
)

// Rank orders contributions by descending absolute value and keeps the
// first topK. Equal magnitudes keep their input order. When topK exceeds the
// number of contributions every contribution is returned.
func Rank(contributions []domain.Contribution, topK int) (domain.AttributionRanking, error) {
	if topK < 1 {
		return nil, ErrInvalidTopK
	}

	ranked := make([]domain.Contribution, len(contributions))
	copy(ranked, contributions)
	sort.SliceStable(ranked, func(i, j int) bool {
		return math.Abs(ranked[i].Value) > math.Abs(ranked[j].Value)
	})

	if topK < len(ranked) {
		ranked = ranked[:topK]
	}
	return domain.AttributionRanking(ranked), nil
}

// Batch is the output of an external attribution computation: one row of
// signed contributions per transaction, columns aligned with Features.
type Batch struct {
	Features []string    `json:"features"`
	Rows     [][]float64 `json:"rows"`
}

// Len returns the number of transactions in the batch.
func (b *Batch) Len() int {
	if b == nil {
		return 0
	}
	return len(b.Rows)
}

// Validate checks that every row matches the feature list.
func (b *Batch) Validate() error {
	for i, row := range b.Rows {
		if len(row) != len(b.Features) {
			return fmt.Errorf("row %d has %d values for %d features: %w", i, len(row), len(b.Features), ErrShapeMismatch)
		}
	}
	return nil
}

// Contributions returns the row at index as feature/value pairs in feature order.
func (b *Batch) Contributions(index int) ([]domain.Contribution, error) {
	if index < 0 || index >= b.Len() {
		return nil, fmt.Errorf("index %d, batch size %d: %w", index, b.Len(), ErrIndexOutOfRange)
	}
	row := b.Rows[index]
	if len(row) != len(b.Features) {
		return nil, fmt.Errorf("row %d: %w", index, ErrShapeMismatch)
	}

	out := make([]domain.Contribution, len(row))
	for i, v := range row {
		out[i] = domain.Contribution{Feature: b.Features[i], Value: v}
	}
	return out, nil
}

// TopFeatures ranks the contributions for the transaction at index.
func (b *Batch) TopFeatures(index, topK int) (domain.AttributionRanking, error) {
	contributions, err := b.Contributions(index)
	if err != nil {
		return nil, err
	}
	return Rank(contributions, topK)
}

// RankAll ranks every row of the batch.
func (b *Batch) RankAll(topK int) ([]domain.AttributionRanking, error) {
	out := make([]domain.AttributionRanking, b.Len())
	for i := range out {
		ranking, err := b.TopFeatures(i, topK)
		if err != nil {
			return nil, err
		}
		out[i] = ranking
	}
	return out, nil
}

// Contributions decodes either a JSON object of feature to value, keeping
// the object's key order, or an array of {feature, value} pairs. A repeated
// feature keeps its first position and takes the last value.
type Contributions []domain.Contribution

// UnmarshalJSON implements json.Unmarshaler.
func (c *Contributions) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		*c = nil
		return nil
	}
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var pairs []domain.Contribution
		if err := json.Unmarshal(trimmed, &pairs); err != nil {
			return err
		}
		*c = dedupe(pairs)
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("contributions must be an object or an array, got %v", tok)
	}

	var pairs []domain.Contribution
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		feature, ok := tok.(string)
		if !ok {
			return fmt.Errorf("contribution key must be a string, got %v", tok)
		}
		var v float64
		if err := dec.Decode(&v); err != nil {
			return fmt.Errorf("contribution %q: %w", feature, err)
		}
		pairs = append(pairs, domain.Contribution{Feature: feature, Value: v})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*c = dedupe(pairs)
	return nil
}

func dedupe(pairs []domain.Contribution) Contributions {
	out := make(Contributions, 0, len(pairs))
	pos := make(map[string]int, len(pairs))
	for _, p := range pairs {
		if i, ok := pos[p.Feature]; ok {
			out[i].Value = p.Value
			continue
		}
		pos[p.Feature] = len(out)
		out = append(out, p)
	}
	return out
}

// Reorder moves the features listed in order to the front, in that order.
// The remaining features keep their original relative order.
func Reorder(contributions []domain.Contribution, order []string) []domain.Contribution {
	out := make([]domain.Contribution, 0, len(contributions))
	placed := make(map[string]bool, len(order))
	for _, f := range order {
		if placed[f] {
			continue
		}
		for _, c := range contributions {
			if c.Feature == f {
				out = append(out, c)
				placed[f] = true
				break
			}
		}
	}
	for _, c := range contributions {
		if !placed[c.Feature] {
			out = append(out, c)
		}
	}
	return out
}

// Single builds a one-row batch from an ordered contribution list.
func Single(contributions []domain.Contribution) *Batch {
	features := make([]string, len(contributions))
	row := make([]float64, len(contributions))
	for i, c := range contributions {
		features[i] = c.Feature
		row[i] = c.Value
	}
	return &Batch{Features: features, Rows: [][]float64{row}}
}
