// Package postgres persists final evaluation results in PostgreSQL.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ksteimel/fast-coref/internal/domain"
	"github.com/ksteimel/fast-coref/internal/pkg/database"
)

// Schema creates the results table when missing
const Schema = `
	CREATE TABLE IF NOT EXISTS experiment_results (
		id UUID PRIMARY KEY,
		run_id TEXT NOT NULL,
		model_dir TEXT NOT NULL,
		result_key TEXT NOT NULL,
		fscore DOUBLE PRECISION NOT NULL,
		source TEXT NOT NULL,
		result JSONB NOT NULL,
		hyperparameters JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (run_id, result_key)
	)
`

// ResultRepository stores performance reports, one row per result key
type ResultRepository struct {
	db  *database.PostgresDB
	now func() time.Time
}

// NewResultRepository creates a new result repository
func NewResultRepository(db *database.PostgresDB) *ResultRepository {
	return &ResultRepository{db: db, now: time.Now}
}

// EnsureSchema creates the results table
func (r *ResultRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("failed to create results table: %w", err)
	}
	return nil
}

// Record upserts every result of a report in one transaction. A rerun of
// the same run replaces its earlier rows.
func (r *ResultRepository) Record(ctx context.Context, report *domain.PerformanceReport) error {
	rows, err := r.toRows(report)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO experiment_results (id, run_id, model_dir, result_key, fscore, source, result, hyperparameters, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (run_id, result_key) DO UPDATE
		SET model_dir = EXCLUDED.model_dir,
			fscore = EXCLUDED.fscore,
			source = EXCLUDED.source,
			result = EXCLUDED.result,
			hyperparameters = EXCLUDED.hyperparameters,
			created_at = EXCLUDED.created_at
	`

	return database.Transaction(ctx, r.db, func(tx pgx.Tx) error {
		for _, row := range rows {
			_, err := tx.Exec(ctx, query,
				row.id,
				row.runID,
				row.modelDir,
				row.resultKey,
				row.fscore,
				row.source,
				row.result,
				row.hyperparameters,
				row.createdAt,
			)
			if err != nil {
				return fmt.Errorf("failed to record result %s: %w", row.resultKey, err)
			}
		}
		return nil
	})
}

// ListByRun retrieves the results of a run ordered by result key
func (r *ResultRepository) ListByRun(ctx context.Context, runID string) ([]domain.StoredResult, error) {
	query := `
		SELECT id, run_id, model_dir, result_key, result, hyperparameters, created_at
		FROM experiment_results
		WHERE run_id = $1
		ORDER BY result_key
	`

	rows, err := r.db.Pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list results: %w", err)
	}
	defer rows.Close()

	var results []domain.StoredResult
	for rows.Next() {
		var res domain.StoredResult
		var result, hp []byte
		if err := rows.Scan(&res.ID, &res.RunID, &res.ModelDir, &res.ResultKey, &result, &hp, &res.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		if err := json.Unmarshal(result, &res.Result); err != nil {
			return nil, fmt.Errorf("failed to decode result %s: %w", res.ResultKey, err)
		}
		if err := json.Unmarshal(hp, &res.Hyperparameters); err != nil {
			return nil, fmt.Errorf("failed to decode hyperparameters of %s: %w", res.ResultKey, err)
		}
		results = append(results, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate results: %w", err)
	}
	return results, nil
}

type resultRow struct {
	id              uuid.UUID
	runID           string
	modelDir        string
	resultKey       string
	fscore          float64
	source          string
	result          []byte
	hyperparameters []byte
	createdAt       time.Time
}

func (r *ResultRepository) toRows(report *domain.PerformanceReport) ([]resultRow, error) {
	hp, err := json.Marshal(report.Hyperparameters)
	if err != nil {
		return nil, fmt.Errorf("failed to encode hyperparameters: %w", err)
	}

	keys := make([]string, 0, len(report.Results))
	for k := range report.Results {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	now := r.now().UTC()
	rows := make([]resultRow, 0, len(keys))
	for _, key := range keys {
		res := report.Results[key]
		encoded, err := json.Marshal(res)
		if err != nil {
			return nil, fmt.Errorf("failed to encode result %s: %w", key, err)
		}
		rows = append(rows, resultRow{
			id:              uuid.New(),
			runID:           report.RunID,
			modelDir:        report.ModelDir,
			resultKey:       key,
			fscore:          res.FScore,
			source:          string(res.Source),
			result:          encoded,
			hyperparameters: hp,
			createdAt:       now,
		})
	}
	return rows, nil
}
