// Package metrics provides Prometheus metrics recording for the experiment
// controller and its collaborators.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// trainSteps tracks optimizer steps taken
	trainSteps = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fastcoref_train_steps_total",
			Help: "Total number of training steps",
		},
	)

	// skippedSteps tracks steps whose forward pass produced no loss
	skippedSteps = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fastcoref_train_skipped_steps_total",
			Help: "Total number of training steps skipped for lack of a loss",
		},
	)

	trainLoss = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fastcoref_train_loss",
			Help: "Mean training loss over the last logging window",
		},
	)

	peakMemory = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fastcoref_peak_memory_bytes",
			Help: "Peak accelerator memory over the last logging window",
		},
	)

	// evalFScore tracks the latest CoNLL F1 per dataset and split
	evalFScore = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fastcoref_eval_fscore",
			Help: "Latest CoNLL F1 by dataset and split",
		},
		[]string{"dataset", "split"},
	)

	evalDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fastcoref_eval_duration_seconds",
			Help:    "Time spent evaluating one dataset split",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"dataset", "split"},
	)

	bestFScore = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fastcoref_best_fscore",
			Help: "Best mean validation F1 so far",
		},
	)

	stuckEvals = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fastcoref_stuck_evals",
			Help: "Consecutive evaluations without improvement",
		},
	)

	// checkpointDuration tracks checkpoint save and load time in seconds
	checkpointDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fastcoref_checkpoint_duration_seconds",
			Help:    "Checkpoint save and load duration in seconds",
			Buckets: []float64{.01, .05, .1, .5, 1, 5, 10, 30, 60},
		},
		[]string{"slot", "operation"},
	)

	checkpointBytes = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fastcoref_checkpoint_bytes",
			Help: "Compressed size of the last checkpoint written per slot",
		},
		[]string{"slot"},
	)

	// scorerRuns tracks external scorer outcomes
	scorerRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fastcoref_scorer_runs_total",
			Help: "External CoNLL scorer runs by outcome",
		},
		[]string{"status"},
	)
)

// RecordStep records one training step; skipped is true when no loss was produced
func RecordStep(skipped bool) {
	trainSteps.Inc()
	if skipped {
		skippedSteps.Inc()
	}
}

// RecordTrainWindow records the loss and peak memory of a logging window
func RecordTrainWindow(meanLoss float64, peakBytes uint64) {
	trainLoss.Set(meanLoss)
	peakMemory.Set(float64(peakBytes))
}

// RecordEval records the outcome of evaluating one dataset split
func RecordEval(dataset, split string, fscore float64, duration time.Duration) {
	evalFScore.WithLabelValues(dataset, split).Set(fscore)
	evalDuration.WithLabelValues(dataset, split).Observe(duration.Seconds())
}

// RecordProgress records the early-stopping state
func RecordProgress(best float64, stuck int) {
	bestFScore.Set(best)
	stuckEvals.Set(float64(stuck))
}

// RecordCheckpoint records a checkpoint save or load
func RecordCheckpoint(slot, operation string, size int, duration time.Duration) {
	checkpointDuration.WithLabelValues(slot, operation).Observe(duration.Seconds())
	if operation == "save" {
		checkpointBytes.WithLabelValues(slot).Set(float64(size))
	}
}

// RecordScorer records one external scorer outcome
func RecordScorer(status string) {
	scorerRuns.WithLabelValues(status).Inc()
}
