package attribution

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/opensource-finance/fraudlens/internal/domain"
)

func contributions() []domain.Contribution {
	return []domain.Contribution{
		{Feature: "a", Value: -5},
		{Feature: "b", Value: 3},
		{Feature: "c", Value: 5},
		{Feature: "d", Value: 1},
	}
}

func TestRankTieBreak(t *testing.T) {
	got, err := Rank(contributions(), 2)
	if err != nil {
		t.Fatalf("Rank failed: %v", err)
	}

	want := domain.AttributionRanking{
		{Feature: "a", Value: -5},
		{Feature: "c", Value: 5},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ranking mismatch (-want +got):\n%s", diff)
	}
}

func TestRank(t *testing.T) {
	tests := []struct {
		name    string
		topK    int
		want    []string
		wantErr error
	}{
		{name: "top 1", topK: 1, want: []string{"a"}},
		{name: "top 3", topK: 3, want: []string{"a", "c", "b"}},
		{name: "exact length", topK: 4, want: []string{"a", "c", "b", "d"}},
		{name: "exceeds length", topK: 10, want: []string{"a", "c", "b", "d"}},
		{name: "zero", topK: 0, wantErr: ErrInvalidTopK},
		{name: "negative", topK: -1, wantErr: ErrInvalidTopK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Rank(contributions(), tt.topK)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			names := make([]string, len(got))
			for i, c := range got {
				names[i] = c.Feature
			}
			if diff := cmp.Diff(tt.want, names); diff != "" {
				t.Errorf("feature order mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRankDoesNotMutateInput(t *testing.T) {
	in := contributions()
	if _, err := Rank(in, 2); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(contributions(), in); diff != "" {
		t.Errorf("input mutated (-want +got):\n%s", diff)
	}
}

func TestRankIdempotent(t *testing.T) {
	first, _ := Rank(contributions(), 3)
	second, _ := Rank(contributions(), 3)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("rank is not idempotent:\n%s", diff)
	}
}

func TestBatchTopFeatures(t *testing.T) {
	batch := &Batch{
		Features: []string{"transaction_amount", "velocity_1h", "geo_mismatch"},
		Rows: [][]float64{
			{0.42, -0.10, 0.31},
			{-0.05, 0.20, 0.20},
		},
	}

	got, err := batch.TopFeatures(1, 2)
	if err != nil {
		t.Fatalf("TopFeatures failed: %v", err)
	}
	want := domain.AttributionRanking{
		{Feature: "velocity_1h", Value: 0.20},
		{Feature: "geo_mismatch", Value: 0.20},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ranking mismatch (-want +got):\n%s", diff)
	}

	for _, idx := range []int{-1, 2, 100} {
		if _, err := batch.TopFeatures(idx, 2); !errors.Is(err, ErrIndexOutOfRange) {
			t.Errorf("index %d: expected ErrIndexOutOfRange, got %v", idx, err)
		}
	}
}

func TestBatchValidate(t *testing.T) {
	good := &Batch{Features: []string{"a", "b"}, Rows: [][]float64{{1, 2}}}
	if err := good.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	bad := &Batch{Features: []string{"a", "b"}, Rows: [][]float64{{1, 2}, {1}}}
	if err := bad.Validate(); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("expected ErrShapeMismatch, got %v", err)
	}
	if _, err := bad.Contributions(1); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("expected ErrShapeMismatch from Contributions, got %v", err)
	}
}

func TestBatchRankAll(t *testing.T) {
	batch := &Batch{
		Features: []string{"x", "y"},
		Rows:     [][]float64{{1, -2}, {3, 0}},
	}

	got, err := batch.RankAll(1)
	if err != nil {
		t.Fatal(err)
	}
	want := []domain.AttributionRanking{
		{{Feature: "y", Value: -2}},
		{{Feature: "x", Value: 3}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("RankAll mismatch (-want +got):\n%s", diff)
	}

	var nilBatch *Batch
	if nilBatch.Len() != 0 {
		t.Error("nil batch should have zero length")
	}
}

func TestContributionsKeepKeyOrder(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want Contributions
	}{
		{
			name: "object",
			in:   `{"z": -5, "c": 5, "a": 1}`,
			want: Contributions{{Feature: "z", Value: -5}, {Feature: "c", Value: 5}, {Feature: "a", Value: 1}},
		},
		{
			name: "array",
			in:   `[{"feature":"z","value":-5},{"feature":"c","value":5}]`,
			want: Contributions{{Feature: "z", Value: -5}, {Feature: "c", Value: 5}},
		},
		{
			name: "repeated key",
			in:   `{"b": 1, "a": 2, "b": 3}`,
			want: Contributions{{Feature: "b", Value: 3}, {Feature: "a", Value: 2}},
		},
		{
			name: "null",
			in:   `null`,
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got Contributions
			if err := json.Unmarshal([]byte(tt.in), &got); err != nil {
				t.Fatalf("unmarshal failed: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("contributions mismatch (-want +got):\n%s", diff)
			}
		})
	}

	t.Run("TieBreakFollowsKeyOrder", func(t *testing.T) {
		var c Contributions
		if err := json.Unmarshal([]byte(`{"z": -5, "c": 5}`), &c); err != nil {
			t.Fatalf("unmarshal failed: %v", err)
		}
		got, err := Single(c).TopFeatures(0, 1)
		if err != nil {
			t.Fatalf("TopFeatures failed: %v", err)
		}
		if got[0].Feature != "z" {
			t.Errorf("expected z to win the tie, got %s", got[0].Feature)
		}
	})

	for _, in := range []string{`"x"`, `{"a": "high"}`, `{"a": 1`} {
		var c Contributions
		if err := json.Unmarshal([]byte(in), &c); err == nil {
			t.Errorf("expected error for %s", in)
		}
	}
}

func TestReorder(t *testing.T) {
	in := []domain.Contribution{{Feature: "z", Value: 1}, {Feature: "b", Value: 2}, {Feature: "a", Value: 3}}
	got := Reorder(in, []string{"a", "missing", "a"})
	want := []domain.Contribution{
		{Feature: "a", Value: 3},
		{Feature: "z", Value: 1},
		{Feature: "b", Value: 2},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Reorder mismatch (-want +got):\n%s", diff)
	}
}
