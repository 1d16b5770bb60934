package experiment

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/ksteimel/fast-coref/internal/coref"
	"github.com/ksteimel/fast-coref/internal/domain"
	apperrors "github.com/ksteimel/fast-coref/internal/pkg/errors"
	"github.com/ksteimel/fast-coref/internal/pkg/metrics"
	"github.com/ksteimel/fast-coref/internal/report"
	"github.com/ksteimel/fast-coref/internal/scorer"
)

func (e *Experiment) datasetDir(ds domain.DatasetSpec) string {
	return filepath.Join(e.cfg.Experiment.ModelDir, ds.Name)
}

// Evaluate predicts clusters for every example of a loaded split, scores
// them against gold at the given threshold and writes the prediction log.
// A final evaluation at the dataset's canonical threshold also consults the
// external scorer, whose result replaces the internal metrics on success.
func (e *Experiment) Evaluate(ctx context.Context, split domain.Split, ds domain.DatasetSpec, threshold int, final bool) (ev domain.EvaluationResult, err error) {
	examples, ok := e.examples[split][ds.Name]
	if !ok {
		return domain.EvaluationResult{}, apperrors.Internal(
			fmt.Sprintf("no %s examples loaded for %s", split, ds.Name))
	}
	e.model.SetEvalMode()
	start := time.Now()

	dir := e.datasetDir(ds)
	predLog, err := report.CreatePredictionLog(filepath.Join(dir, report.PredictionLogName(split)))
	if err != nil {
		return domain.EvaluationResult{}, err
	}
	defer func() {
		// records mostly reach disk on the final flush
		if cerr := predLog.Close(); cerr != nil && err == nil {
			ev, err = domain.EvaluationResult{}, cerr
		}
	}()

	evaluator := coref.NewEvaluator()
	oracle := coref.NewEvaluator()
	predictions := make([]scorer.DocPrediction, 0, len(examples))
	var inferenceTime time.Duration
	var numGold, numPred int

	for _, ex := range examples {
		inferStart := time.Now()
		out, err := e.model.Infer(ctx, ex)
		if err != nil {
			return domain.EvaluationResult{}, fmt.Errorf("inference failed on %s: %w", ex.DocKey, err)
		}
		raw, err := coref.ReconstructClusters(out.Actions, out.PredictedMentions)
		if err != nil {
			return domain.EvaluationResult{}, fmt.Errorf("document %s: %w", ex.DocKey, err)
		}
		pred, predIdx := coref.MentionToCluster(raw, threshold)
		gold, goldIdx := coref.MentionToCluster(ex.Clusters, threshold)
		evaluator.Update(pred, gold, predIdx, goldIdx)
		inferenceTime += time.Since(inferStart)

		numGold += len(gold)
		numPred += len(pred)
		predictions = append(predictions, scorer.DocPrediction{
			DocKey:      ex.DocKey,
			Clusters:    pred,
			SubtokenMap: ex.SubtokenMap,
		})

		if len(out.GoldActions) > 0 {
			oracleRaw, err := coref.ReconstructClusters(out.GoldActions, out.PredictedMentions)
			if err != nil {
				return domain.EvaluationResult{}, fmt.Errorf("document %s oracle actions: %w", ex.DocKey, err)
			}
			oracleClusters, oracleIdx := coref.MentionToCluster(oracleRaw, threshold)
			oracle.Update(oracleClusters, gold, oracleIdx, goldIdx)
		}

		rec := &domain.PredictionRecord{
			DocKey:            ex.DocKey,
			Sentences:         ex.Sentences,
			Clusters:          ex.Clusters,
			SubtokenMap:       ex.SubtokenMap,
			SentenceMap:       ex.SentenceMap,
			PredMentions:      out.PredictedMentions,
			MentionScores:     out.MentionScores,
			PredActions:       out.Actions,
			PredictedClusters: pred,
		}
		if threshold != 1 {
			rec.RawPredictedClusters = raw
		}
		if err := predLog.Write(rec); err != nil {
			return domain.EvaluationResult{}, err
		}
	}

	result := evaluator.Result()
	fields := []zap.Field{
		zap.String("dataset", ds.Name),
		zap.String("split", string(split)),
		zap.Int("cluster_threshold", threshold),
	}
	e.logger.Info("F-score",
		append(fields,
			zap.Float64("fscore", result.FScore),
			zap.Float64("muc", result.MUC.FScore),
			zap.Float64("bcub", result.BCubed.FScore),
			zap.Float64("ceafe", result.CEAFE.FScore),
		)...)

	if final && threshold == ds.ClusterThreshold {
		res := e.scorer.Score(ctx, scorer.Request{
			Dataset:     ds.Name,
			Split:       split,
			GoldDir:     ds.ConllDir,
			OutputDir:   dir,
			Predictions: predictions,
		})
		switch res.Status {
		case scorer.StatusSucceeded:
			result = res.Evaluation
			e.logger.Info("(CoNLL) F-score", append(fields, zap.Float64("fscore", result.FScore))...)
		case scorer.StatusFailed:
			e.logger.Warn("CoNLL scorer failed, keeping internal metrics", append(fields, zap.Error(res.Err))...)
		default:
			e.logger.Debug("CoNLL scorer not configured", fields...)
		}
	}

	e.logger.Info("Evaluation details",
		append(fields,
			zap.Float64("oracle_fscore", oracle.Result().FScore),
			zap.String("log_file", predLog.Path()),
			zap.Duration("inference_time", inferenceTime),
			zap.Int("gold_clusters", numGold),
			zap.Int("predicted_clusters", numPred),
		)...)

	metrics.RecordEval(ds.Name, string(split), result.FScore, time.Since(start))
	return result, nil
}

// finalEval evaluates the test split of every dataset and publishes one
// report per dataset.
func (e *Experiment) finalEval(ctx context.Context) error {
	e.setState(StateEvaluating)
	for _, ds := range e.datasets {
		result, err := e.Evaluate(ctx, domain.SplitTest, ds, ds.ClusterThreshold, true)
		if err != nil {
			return err
		}

		rep := &domain.PerformanceReport{
			RunID:           e.runID,
			ModelDir:        e.cfg.Experiment.ModelDir,
			Hyperparameters: e.hp.Clone(),
			Results: map[string]domain.EvaluationResult{
				domain.ResultKey(ds.Name, domain.SplitTest): result,
			},
		}
		path := filepath.Join(e.datasetDir(ds), report.PerformanceFileName)
		if err := report.WritePerformance(path, *rep); err != nil {
			return err
		}
		e.reports = append(e.reports, rep)
		e.logger.Info("Final performance summary",
			zap.String("dataset", ds.Name),
			zap.Float64("fscore", result.FScore),
			zap.String("source", string(result.Source)),
			zap.String("path", path),
		)

		for _, sink := range e.sinks {
			if err := sink.Record(ctx, rep); err != nil {
				e.logger.Error("Failed to record result", zap.String("dataset", ds.Name), zap.Error(err))
			}
		}
	}
	return nil
}
