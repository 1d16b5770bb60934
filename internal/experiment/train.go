package experiment

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ksteimel/fast-coref/internal/domain"
	"github.com/ksteimel/fast-coref/internal/model"
	apperrors "github.com/ksteimel/fast-coref/internal/pkg/errors"
	"github.com/ksteimel/fast-coref/internal/pkg/metrics"
	"github.com/ksteimel/fast-coref/internal/pkg/rng"
)

const bytesPerGB = 1 << 30

// train runs epochs until patience or the step budget is exhausted.
// Cancellation is observed before each epoch and after each periodic
// evaluation.
func (e *Experiment) train(ctx context.Context) error {
	exp := e.cfg.Experiment
	encoder, task := e.model.Parameters()
	e.model.SetTrainMode()
	e.setState(StateTraining)

	all := e.trainPool()
	if len(all) == 0 {
		return apperrors.InvalidConfig("tensorization produced no training examples")
	}

	var windowLoss float64
	var windowSteps int

	for {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("training interrupted: %w", err)
		}
		e.logger.Info("Steps done", zap.Int("global_steps", e.trainInfo.GlobalSteps))
		start := time.Now()

		if !e.resumeEpoch(len(all)) {
			e.startEpoch(len(all))
		}

		for e.epoch.Position < len(e.epoch.Order) {
			ex := all[e.epoch.Order[e.epoch.Position]]
			loss, stepped, err := e.trainStep(ctx, ex, encoder, task)
			if err != nil {
				return err
			}
			e.epoch.Position++
			if stepped {
				windowLoss += loss
				windowSteps++
			}

			steps := e.trainInfo.GlobalSteps
			if steps%exp.UpdateFrequency == 0 {
				peak := e.backend.MaxMemoryAllocated()
				e.logger.Info("Training progress",
					zap.String("doc_key", ex.DocKey),
					zap.Float64("loss", loss),
					zap.Float64("max_mem_gb", float64(peak)/bytesPerGB),
					zap.Int("global_steps", steps),
				)
				if windowSteps > 0 {
					metrics.RecordTrainWindow(windowLoss/float64(windowSteps), peak)
				}
				windowLoss, windowSteps = 0, 0
				e.backend.ResetPeakMemoryStats()
			}
			e.publishProgress()

			if steps%e.evalPerK == 0 {
				done, err := e.periodicEval(ctx)
				if err != nil {
					return err
				}
				if done {
					e.logger.Info("Training finished",
						zap.Int("global_steps", e.trainInfo.GlobalSteps),
						zap.Float64("val_perf", e.trainInfo.ValPerf),
						zap.Int("num_stuck_evals", e.trainInfo.NumStuckEvals),
					)
					return nil
				}
				if err := ctx.Err(); err != nil {
					return fmt.Errorf("training interrupted: %w", err)
				}
			}
		}

		e.logger.Info("Epoch done",
			zap.Int("epoch", e.epoch.Epoch),
			zap.Duration("elapsed", time.Since(start)),
		)
		e.epoch = domain.EpochProgress{Epoch: e.epoch.Epoch + 1}
	}
}

// startEpoch shuffles the pool with the numeric RNG and truncates it to
// num_train_docs.
func (e *Experiment) startEpoch(poolSize int) {
	order := make([]int, poolSize)
	for i := range order {
		order[i] = i
	}
	rng.Shuffle(e.rng, order)
	if n := e.cfg.Experiment.NumTrainDocs; n > 0 && len(order) > n {
		order = order[:n]
	}
	e.epoch.Order = order
	e.epoch.Position = 0
}

// resumeEpoch reports whether a restored checkpoint left an epoch to
// finish. The RNG was saved after that epoch's shuffle, so it is not
// shuffled again.
func (e *Experiment) resumeEpoch(poolSize int) bool {
	if !e.epoch.Active() {
		return false
	}
	for _, i := range e.epoch.Order {
		if i < 0 || i >= poolSize {
			e.logger.Warn("Saved epoch order does not fit the training data, starting a new epoch",
				zap.Int("pool_size", poolSize),
			)
			e.epoch = domain.EpochProgress{Epoch: e.epoch.Epoch}
			return false
		}
	}
	e.logger.Info("Resuming epoch",
		zap.Int("epoch", e.epoch.Epoch),
		zap.Int("position", e.epoch.Position),
		zap.Int("epoch_docs", len(e.epoch.Order)),
	)
	return true
}

// trainPool gathers the training examples of every dataset in
// configuration order.
func (e *Experiment) trainPool() []*domain.Example {
	var pool []*domain.Example
	for _, ds := range e.datasets {
		pool = append(pool, e.examples[domain.SplitTrain][ds.Name]...)
	}
	return pool
}

// trainStep advances the step counter and, unless the model produced no
// loss, applies one optimizer update.
func (e *Experiment) trainStep(ctx context.Context, ex *domain.Example, encoder, task []model.Parameter) (float64, bool, error) {
	e.trainInfo.GlobalSteps++
	e.coordinator.ZeroGrad()

	var out model.TrainingOutput
	err := e.backend.Autocast(func() error {
		var ferr error
		out, ferr = e.model.ForwardTraining(ctx, ex)
		return ferr
	})
	if err != nil {
		return 0, false, fmt.Errorf("forward pass failed on %s: %w", ex.DocKey, err)
	}
	if out.Total == nil {
		metrics.RecordStep(true)
		e.logger.Debug("No loss for document, skipping step", zap.String("doc_key", ex.DocKey))
		return 0, false, nil
	}

	if err := e.scaler.Scale(out.Total).Backward(); err != nil {
		return 0, false, fmt.Errorf("backward pass failed on %s: %w", ex.DocKey, err)
	}
	if err := e.coordinator.Unscale(e.scaler); err != nil {
		return 0, false, err
	}
	e.backend.ClipGradNorm(encoder, e.cfg.Optim.EncoderMaxGradientNorm)
	e.backend.ClipGradNorm(task, e.cfg.Optim.MaxGradientNorm)
	if err := e.coordinator.Step(e.scaler); err != nil {
		return 0, false, err
	}
	e.scaler.Update()

	metrics.RecordStep(false)
	return out.Total.Value(), true, nil
}

// periodicEval scores every dataset's dev split, updates TrainInfo and
// writes checkpoints. It reports whether training should stop.
func (e *Experiment) periodicEval(ctx context.Context) (bool, error) {
	e.setState(StateEvaluating)
	scores := make(map[string]float64, len(e.datasets))
	var sum float64
	for _, ds := range e.datasets {
		result, err := e.Evaluate(ctx, domain.SplitDev, ds, ds.ClusterThreshold, false)
		if err != nil {
			return false, err
		}
		scores[ds.Name] = result.FScore
		sum += result.FScore
	}
	fscore := sum / float64(len(e.datasets))

	// Saves must complete even when the run is being cancelled.
	saveCtx := context.WithoutCancel(ctx)
	if e.trainInfo.RecordEval(fscore) {
		if err := e.checkpoints.Save(saveCtx, domain.SlotBest, e.checkpointState()); err != nil {
			return false, err
		}
	}
	if e.cfg.Experiment.ToSaveModel {
		if err := e.checkpoints.Save(saveCtx, domain.SlotLast, e.checkpointState()); err != nil {
			return false, err
		}
	}

	metrics.RecordProgress(e.trainInfo.ValPerf, e.trainInfo.NumStuckEvals)
	e.logger.Info("Evaluation done",
		zap.Float64("fscore", fscore),
		zap.Float64("val_perf", e.trainInfo.ValPerf),
		zap.Int("num_stuck_evals", e.trainInfo.NumStuckEvals),
		zap.Int("global_steps", e.trainInfo.GlobalSteps),
	)

	info := e.trainInfo
	e.tracker.update(func(s *Status) {
		s.TrainInfo = info
		s.LastEval = scores
		s.State = StateTraining
	})
	e.model.SetTrainMode()
	return e.trainInfo.Done(e.cfg.Experiment.Patience, e.totalSteps), nil
}
