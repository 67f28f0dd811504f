package repository

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/opensource-finance/fraudlens/internal/domain"
)

func f64(v float64) *float64 { return &v }

func newTestRepo(t *testing.T) domain.Repository {
	t.Helper()

	cfg := domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "fraudlens-test.db"),
	}

	repo, err := New(cfg)
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func explanation(id, txID string, created time.Time) *domain.ExplainedRecord {
	return &domain.ExplainedRecord{
		ID:          id,
		TenantID:    "tenant-001",
		CreatedAt:   created,
		Record:      domain.TransactionRecord{ID: txID, Amount: f64(12000), FraudScore: f64(0.85), FraudPrediction: 1, Extra: map[string]any{"synthetic_feature": 39.84}},
		Narrative:   "Flagged for a high amount.",
		RuleSummary: "High Transaction Amount",
		Rules:       []string{"high_transaction_amount"},
		Attribution: domain.AttributionRanking{{Feature: "transaction_amount", Value: 0.42}},
		Metadata: domain.ExplanationMetadata{
			Stage:           domain.StageAssembled,
			NarrativeStatus: domain.NarrativeGenerated,
			RulesFired:      1,
		},
	}
}

func TestSQLiteRepository(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	tenantID := "tenant-001"
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	t.Run("Ping", func(t *testing.T) {
		if err := repo.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})

	t.Run("SaveAndGetExplanation", func(t *testing.T) {
		rec := explanation("exp-001", "TX001", base)
		if err := repo.SaveExplanation(ctx, tenantID, rec); err != nil {
			t.Fatalf("SaveExplanation failed: %v", err)
		}

		got, err := repo.GetExplanation(ctx, tenantID, "exp-001")
		if err != nil {
			t.Fatalf("GetExplanation failed: %v", err)
		}
		if diff := cmp.Diff(rec, got); diff != "" {
			t.Errorf("round trip mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("GetExplanationByTxReturnsLatest", func(t *testing.T) {
		_ = repo.SaveExplanation(ctx, tenantID, explanation("exp-002", "TX002", base))
		later := explanation("exp-003", "TX002", base.Add(time.Hour))
		later.Narrative = "Re-explained."
		_ = repo.SaveExplanation(ctx, tenantID, later)

		got, err := repo.GetExplanationByTx(ctx, tenantID, "TX002")
		if err != nil {
			t.Fatalf("GetExplanationByTx failed: %v", err)
		}
		if got.ID != "exp-003" {
			t.Errorf("expected latest explanation exp-003, got %s", got.ID)
		}
	})

	t.Run("ListExplanations", func(t *testing.T) {
		list, err := repo.ListExplanations(ctx, tenantID, 2)
		if err != nil {
			t.Fatalf("ListExplanations failed: %v", err)
		}
		if len(list) != 2 {
			t.Fatalf("expected 2 explanations, got %d", len(list))
		}
		if list[0].ID != "exp-003" {
			t.Errorf("expected newest first, got %s", list[0].ID)
		}

		all, _ := repo.ListExplanations(ctx, tenantID, 0)
		if len(all) != 3 {
			t.Errorf("expected 3 explanations with default limit, got %d", len(all))
		}
	})

	t.Run("UpsertExplanation", func(t *testing.T) {
		rec := explanation("exp-001", "TX001", base)
		rec.Narrative = "Updated narrative."
		if err := repo.SaveExplanation(ctx, tenantID, rec); err != nil {
			t.Fatalf("SaveExplanation failed: %v", err)
		}
		got, _ := repo.GetExplanation(ctx, tenantID, "exp-001")
		if got.Narrative != "Updated narrative." {
			t.Errorf("expected updated narrative, got %q", got.Narrative)
		}
	})

	t.Run("TenantIsolation", func(t *testing.T) {
		_, err := repo.GetExplanation(ctx, "tenant-002", "exp-001")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound for other tenant, got %v", err)
		}

		list, _ := repo.ListExplanations(ctx, "tenant-002", 10)
		if len(list) != 0 {
			t.Errorf("expected no explanations for other tenant, got %d", len(list))
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		if _, err := repo.GetExplanationByTx(ctx, tenantID, "missing"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("RequiresTenantID", func(t *testing.T) {
		if err := repo.SaveExplanation(ctx, "", explanation("x", "TX", base)); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
		if _, err := repo.GetExplanation(ctx, "", "x"); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
		if _, err := repo.ListFeedback(ctx, ""); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("Feedback", func(t *testing.T) {
		fb := &domain.Feedback{
			ID:            "fb-001",
			ExplanationID: "exp-001",
			TxID:          "TX001",
			Clarity:       5,
			Accuracy:      4,
			Actionability: 3,
			Comments:      "clear",
			CreatedAt:     base,
		}
		if err := repo.SaveFeedback(ctx, tenantID, fb); err != nil {
			t.Fatalf("SaveFeedback failed: %v", err)
		}

		items, err := repo.ListFeedback(ctx, tenantID)
		if err != nil {
			t.Fatalf("ListFeedback failed: %v", err)
		}
		if len(items) != 1 {
			t.Fatalf("expected 1 feedback item, got %d", len(items))
		}
		if items[0].TenantID != tenantID || items[0].Clarity != 5 || items[0].Comments != "clear" {
			t.Errorf("unexpected feedback %+v", items[0])
		}

		if err := repo.SaveFeedback(ctx, tenantID, &domain.Feedback{ID: "fb-002"}); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput for missing explanation id, got %v", err)
		}
	})
}

func TestInMemorySQLite(t *testing.T) {
	repo, err := New(domain.RepositoryConfig{Driver: "sqlite", SQLitePath: ":memory:"})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	defer repo.Close()

	ctx := context.Background()
	if err := repo.SaveExplanation(ctx, "t", explanation("exp-1", "TX1", time.Now().UTC())); err != nil {
		t.Fatalf("SaveExplanation failed: %v", err)
	}
	if _, err := repo.GetExplanation(ctx, "t", "exp-1"); err != nil {
		t.Errorf("GetExplanation failed: %v", err)
	}
}

func TestUnsupportedDriver(t *testing.T) {
	if _, err := New(domain.RepositoryConfig{Driver: "mysql"}); err == nil {
		t.Error("expected error for unsupported driver")
	}
}

func TestRebind(t *testing.T) {
	pg := &SQLRepository{driver: "postgres"}
	if got := pg.rebind("SELECT * FROM t WHERE a = ? AND b = ?"); got != "SELECT * FROM t WHERE a = $1 AND b = $2" {
		t.Errorf("unexpected rebind: %s", got)
	}

	lite := &SQLRepository{driver: "sqlite"}
	if got := lite.rebind("a = ?"); got != "a = ?" {
		t.Errorf("sqlite query should be unchanged, got %s", got)
	}
}

func TestPostgresDSN(t *testing.T) {
	dsn := postgresDSN(domain.RepositoryConfig{PostgresUser: "lens", PostgresPassword: "secret"})
	want := "host=localhost port=5432 dbname=fraudlens sslmode=disable connect_timeout=10 user=lens password=secret"
	if dsn != want {
		t.Errorf("unexpected dsn:\n got %s\nwant %s", dsn, want)
	}
}
