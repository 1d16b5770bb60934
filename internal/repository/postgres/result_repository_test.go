package postgres

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ksteimel/fast-coref/internal/config"
	"github.com/ksteimel/fast-coref/internal/domain"
	"github.com/ksteimel/fast-coref/internal/experiment"
	"github.com/ksteimel/fast-coref/internal/pkg/database"
)

var _ experiment.ResultSink = (*ResultRepository)(nil)

// getTestDB returns a database connection for integration tests.
// Returns nil if the database is not available (skips tests).
func getTestDB(t *testing.T) *database.PostgresDB {
	if os.Getenv("POSTGRES_TEST_HOST") == "" {
		t.Skip("Skipping integration test: POSTGRES_TEST_HOST not set")
		return nil
	}

	cfg := config.PostgresConfig{
		Host:     os.Getenv("POSTGRES_TEST_HOST"),
		Port:     5432,
		User:     os.Getenv("POSTGRES_TEST_USER"),
		Password: os.Getenv("POSTGRES_TEST_PASS"),
		Database: os.Getenv("POSTGRES_TEST_DB"),
		SSLMode:  "disable",
		MaxConns: 5,
		MinConns: 1,
	}
	if cfg.Database == "" {
		cfg.Database = "test_fastcoref"
	}
	if cfg.User == "" {
		cfg.User = "postgres"
	}

	db, err := database.NewPostgres(context.Background(), cfg)
	if err != nil {
		t.Skipf("Skipping integration test: failed to connect to PostgreSQL: %v", err)
		return nil
	}
	return db
}

func createTestReport(runID string) *domain.PerformanceReport {
	return &domain.PerformanceReport{
		RunID:           runID,
		ModelDir:        "/models/" + runID,
		Hyperparameters: domain.Hyperparameters{"hidden": 8, "model": "oracle"},
		Results: map[string]domain.EvaluationResult{
			"ontonotes_test": {
				MUC:    domain.MetricScore{Recall: 80, Precision: 90, FScore: 84.7},
				FScore: 79.5,
				Source: domain.ResultSourceConll,
			},
			"litbank_test": {FScore: 71.2, Source: domain.ResultSourceInternal},
		},
	}
}

func TestResultRepository_ToRows(t *testing.T) {
	repo := &ResultRepository{now: func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }}

	rows, err := repo.toRows(createTestReport("run-a"))
	require.NoError(t, err)
	require.Len(t, rows, 2)

	// ordered by result key
	assert.Equal(t, "litbank_test", rows[0].resultKey)
	assert.Equal(t, "ontonotes_test", rows[1].resultKey)
	assert.NotEqual(t, uuid.Nil, rows[0].id)
	assert.NotEqual(t, rows[0].id, rows[1].id)

	assert.Equal(t, 79.5, rows[1].fscore)
	assert.Equal(t, "conll", rows[1].source)
	assert.Equal(t, "/models/run-a", rows[1].modelDir)
	assert.Equal(t, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), rows[1].createdAt)

	var decoded domain.EvaluationResult
	require.NoError(t, json.Unmarshal(rows[1].result, &decoded))
	assert.Equal(t, 84.7, decoded.MUC.FScore)
	assert.JSONEq(t, `{"hidden": 8, "model": "oracle"}`, string(rows[0].hyperparameters))
}

func TestResultRepository_RecordAndList(t *testing.T) {
	db := getTestDB(t)
	if db == nil {
		return
	}
	defer db.Close()

	ctx := context.Background()
	repo := NewResultRepository(db)
	require.NoError(t, repo.EnsureSchema(ctx))

	runID := "test-" + uuid.NewString()
	defer func() {
		_, _ = db.Pool.Exec(ctx, "DELETE FROM experiment_results WHERE run_id = $1", runID)
	}()

	report := createTestReport(runID)
	require.NoError(t, repo.Record(ctx, report))

	results, err := repo.ListByRun(ctx, runID)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "litbank_test", results[0].ResultKey)
	assert.Equal(t, 79.5, results[1].Result.FScore)
	assert.Equal(t, "oracle", results[1].Hyperparameters["model"])

	// recording again replaces the earlier rows
	report.Results["litbank_test"] = domain.EvaluationResult{FScore: 75, Source: domain.ResultSourceInternal}
	require.NoError(t, repo.Record(ctx, report))

	results, err = repo.ListByRun(ctx, runID)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, 75.0, results[0].Result.FScore)
}
