package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ksteimel/fast-coref/internal/config"
	"github.com/ksteimel/fast-coref/internal/domain"
	apperrors "github.com/ksteimel/fast-coref/internal/pkg/errors"
)

func baseConfig() *config.Config {
	return &config.Config{
		Experiment: config.ExperimentConfig{ModelDir: "/models/base", MaxEvals: 20, Patience: 10},
		Datasets: []config.DatasetConfig{
			{Name: "ontonotes", DataDir: "/data/ontonotes"},
		},
		Model:  config.ModelConfig{Name: "oracle", Hyperparameters: domain.Hyperparameters{"hidden": 8}},
		Worker: config.WorkerConfig{Concurrency: 1, Queue: "experiments"},
	}
}

func TestNewEvaluationTask(t *testing.T) {
	width := 30
	payload := &EvaluationPayload{
		RunID:        uuid.New(),
		ModelDir:     "/models/run-1",
		MaxSpanWidth: &width,
	}

	task, err := NewEvaluationTask(payload)
	require.NoError(t, err)
	assert.Equal(t, TypeEvaluation, task.Type())

	var decoded EvaluationPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &decoded))
	assert.Equal(t, payload.RunID, decoded.RunID)
	assert.Equal(t, payload.ModelDir, decoded.ModelDir)
	require.NotNil(t, decoded.MaxSpanWidth)
	assert.Equal(t, 30, *decoded.MaxSpanWidth)
	assert.Nil(t, decoded.UseTopK)
}

func TestEvalWorker_ProcessTask_InvalidPayload(t *testing.T) {
	worker := NewEvalWorker(zap.NewNop(), baseConfig(), func(context.Context, *config.Config) error {
		t.Fatal("runner must not be called")
		return nil
	})

	err := worker.ProcessTask(context.Background(), asynq.NewTask(TypeEvaluation, []byte("invalid json")))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshal")
	assert.True(t, errors.Is(err, asynq.SkipRetry))

	err = worker.ProcessTask(context.Background(), asynq.NewTask(TypeEvaluation, []byte(`{}`)))
	assert.True(t, errors.Is(err, asynq.SkipRetry))
}

func TestEvalWorker_ProcessTask_BuildsEvalConfig(t *testing.T) {
	base := baseConfig()
	var got *config.Config
	worker := NewEvalWorker(zap.NewNop(), base, func(_ context.Context, cfg *config.Config) error {
		got = cfg
		return nil
	})

	runID := uuid.New()
	gold := true
	task, err := NewEvaluationTask(&EvaluationPayload{
		RunID:           runID,
		ModelDir:        "/models/run-2",
		UseGoldMentions: &gold,
	})
	require.NoError(t, err)
	require.NoError(t, worker.ProcessTask(context.Background(), task))

	require.NotNil(t, got)
	assert.True(t, got.Experiment.EvalModel)
	assert.Equal(t, runID.String(), got.Experiment.RunID)
	assert.Equal(t, "/models/run-2", got.Experiment.ModelDir)
	assert.Equal(t, "/models/run-2/best", got.Experiment.BestModelDir)
	require.NotNil(t, got.Eval.UseGoldMentions)
	assert.True(t, *got.Eval.UseGoldMentions)
	assert.Equal(t, base.Datasets, got.Datasets)

	// the base configuration is left untouched
	assert.False(t, base.Experiment.EvalModel)
	assert.Equal(t, "/models/base", base.Experiment.ModelDir)
	assert.Nil(t, base.Eval.UseGoldMentions)
}

func TestEvalWorker_ProcessTask_AssignsRunID(t *testing.T) {
	var got *config.Config
	worker := NewEvalWorker(zap.NewNop(), baseConfig(), func(_ context.Context, cfg *config.Config) error {
		got = cfg
		return nil
	})

	task, err := NewEvaluationTask(&EvaluationPayload{ModelDir: "/models/run-3", BestModelDir: "/best/run-3"})
	require.NoError(t, err)
	require.NoError(t, worker.ProcessTask(context.Background(), task))

	_, err = uuid.Parse(got.Experiment.RunID)
	assert.NoError(t, err)
	assert.Equal(t, "/best/run-3", got.Experiment.BestModelDir)
}

func TestEvalWorker_ProcessTask_Errors(t *testing.T) {
	tests := []struct {
		name      string
		runErr    error
		skipRetry bool
	}{
		{name: "missing best checkpoint is permanent", runErr: apperrors.CheckpointNotFound("best"), skipRetry: true},
		{name: "weight mismatch is permanent", runErr: apperrors.WeightMismatch([]string{"memory.bias"}), skipRetry: true},
		{name: "other failures are retried", runErr: errors.New("disk full"), skipRetry: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			worker := NewEvalWorker(zap.NewNop(), baseConfig(), func(context.Context, *config.Config) error {
				return tt.runErr
			})
			task, err := NewEvaluationTask(&EvaluationPayload{RunID: uuid.New(), ModelDir: "/models/run-4"})
			require.NoError(t, err)

			err = worker.ProcessTask(context.Background(), task)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.runErr))
			assert.Equal(t, tt.skipRetry, errors.Is(err, asynq.SkipRetry))
		})
	}
}
