package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/ksteimel/fast-coref/internal/config"
	apperrors "github.com/ksteimel/fast-coref/internal/pkg/errors"
)

const (
	// TypeEvaluation is the task type for evaluating a trained model
	TypeEvaluation = "experiment:eval"
)

// EvaluationPayload is the payload for evaluation tasks. Nil overrides
// keep the worker's configured values.
type EvaluationPayload struct {
	RunID        uuid.UUID `json:"run_id"`
	ModelDir     string    `json:"model_dir"`
	BestModelDir string    `json:"best_model_dir,omitempty"`

	MaxSpanWidth    *int     `json:"max_span_width,omitempty"`
	TopSpanRatio    *float64 `json:"top_span_ratio,omitempty"`
	UseGoldMentions *bool    `json:"use_gold_ments,omitempty"`
	MaxEntities     *int     `json:"eval_max_ents,omitempty"`
	UseTopK         *bool    `json:"use_topk,omitempty"`
}

// NewEvaluationTask creates a new evaluation task
func NewEvaluationTask(payload *EvaluationPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal evaluation payload: %w", err)
	}
	return asynq.NewTask(TypeEvaluation, data, asynq.MaxRetry(2), asynq.Timeout(6*time.Hour)), nil
}

// Runner executes an experiment for a prepared configuration
type Runner func(ctx context.Context, cfg *config.Config) error

// EvalWorker handles evaluation tasks
type EvalWorker struct {
	logger *zap.Logger
	base   *config.Config
	run    Runner
}

// NewEvalWorker creates a new eval worker. Every task starts from a copy of
// base.
func NewEvalWorker(logger *zap.Logger, base *config.Config, run Runner) *EvalWorker {
	return &EvalWorker{
		logger: logger,
		base:   base,
		run:    run,
	}
}

// ProcessTask processes an evaluation task
func (w *EvalWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload EvaluationPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal evaluation payload: %w: %w", err, asynq.SkipRetry)
	}
	if payload.ModelDir == "" {
		return fmt.Errorf("evaluation payload has no model_dir: %w", asynq.SkipRetry)
	}
	if payload.RunID == uuid.Nil {
		payload.RunID = uuid.New()
	}

	cfg := w.configFor(&payload)
	w.logger.Info("processing evaluation",
		zap.String("run_id", cfg.Experiment.RunID),
		zap.String("model_dir", cfg.Experiment.ModelDir),
		zap.String("best_model_dir", cfg.Experiment.BestModelDir),
	)

	start := time.Now()
	if err := w.run(ctx, cfg); err != nil {
		if apperrors.IsCheckpointNotFound(err) || apperrors.IsWeightMismatch(err) || apperrors.IsInvalidConfig(err) {
			return fmt.Errorf("evaluation of %s cannot succeed: %w: %w", cfg.Experiment.ModelDir, err, asynq.SkipRetry)
		}
		return fmt.Errorf("evaluation of %s failed: %w", cfg.Experiment.ModelDir, err)
	}

	w.logger.Info("evaluation completed",
		zap.String("run_id", cfg.Experiment.RunID),
		zap.Duration("duration", time.Since(start)),
	)
	return nil
}

// configFor derives an eval-only configuration from the worker's base
func (w *EvalWorker) configFor(p *EvaluationPayload) *config.Config {
	cfg := *w.base
	cfg.Datasets = append([]config.DatasetConfig(nil), w.base.Datasets...)
	cfg.Model.Hyperparameters = w.base.Model.Hyperparameters.Clone()

	cfg.Experiment.EvalModel = true
	cfg.Experiment.RunID = p.RunID.String()
	cfg.Experiment.ModelDir = p.ModelDir
	cfg.Experiment.BestModelDir = p.BestModelDir
	if cfg.Experiment.BestModelDir == "" {
		cfg.Experiment.BestModelDir = filepath.Join(p.ModelDir, "best")
	}

	if p.MaxSpanWidth != nil {
		cfg.Eval.MaxSpanWidth = p.MaxSpanWidth
	}
	if p.TopSpanRatio != nil {
		cfg.Eval.TopSpanRatio = p.TopSpanRatio
	}
	if p.UseGoldMentions != nil {
		cfg.Eval.UseGoldMentions = p.UseGoldMentions
	}
	if p.MaxEntities != nil {
		cfg.Eval.MaxEntities = p.MaxEntities
	}
	if p.UseTopK != nil {
		cfg.Eval.UseTopK = p.UseTopK
	}
	return &cfg
}
