// Package scorer runs the official CoNLL coreference scorer on final
// predictions.
//
// The scorer is an external program: it may be missing, fail or print
// something unexpected. Every outcome is reported through Result.Status and
// none of them is fatal for the caller.
package scorer

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ksteimel/fast-coref/internal/domain"
	"github.com/ksteimel/fast-coref/internal/pkg/circuitbreaker"
	"github.com/ksteimel/fast-coref/internal/pkg/metrics"
)

// Status is the outcome of a scoring attempt
type Status string

const (
	StatusNotConfigured Status = "not_configured"
	StatusFailed        Status = "failed"
	StatusSucceeded     Status = "succeeded"
)

// Metrics scored by the external program, in report order
var Metrics = []string{"muc", "bcub", "ceafe"}

// Request describes one dataset split to score
type Request struct {
	Dataset string
	Split   domain.Split
	// GoldDir holds <split>.conll gold annotation files.
	GoldDir string
	// OutputDir receives the <split>.conll prediction file.
	OutputDir   string
	Predictions []DocPrediction
}

// Result carries the scorer outcome. Evaluation is set only on success and
// Err only on failure.
type Result struct {
	Status     Status
	Evaluation domain.EvaluationResult
	Err        error
}

// Scorer scores final predictions
type Scorer interface {
	Score(ctx context.Context, req Request) Result
}

type runFunc func(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)

func runCommand(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// Config holds external scorer settings
type Config struct {
	// Path of the scorer executable; empty disables external scoring.
	Path    string
	Timeout time.Duration
}

// External runs the official scorer program
type External struct {
	cfg     Config
	logger  *zap.Logger
	breaker *circuitbreaker.Breaker
	run     runFunc
}

// NewExternal creates a scorer for the program at cfg.Path
func NewExternal(cfg Config, logger *zap.Logger) *External {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Minute
	}
	return &External{
		cfg:    cfg,
		logger: logger,
		breaker: circuitbreaker.New(circuitbreaker.Config{
			Name:        "conll-scorer",
			MaxFailures: 2,
			Cooldown:    30 * time.Minute,
			OnStateChange: func(name string, from, to circuitbreaker.State) {
				logger.Warn("Scorer circuit breaker changed state",
					zap.String("breaker", name),
					zap.Stringer("from", from),
					zap.Stringer("to", to),
				)
			},
		}),
		run: runCommand,
	}
}

func exists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}

// Score writes the prediction file and runs the scorer once per metric
func (s *External) Score(ctx context.Context, req Request) Result {
	if !exists(s.cfg.Path) || !exists(req.GoldDir) {
		metrics.RecordScorer(string(StatusNotConfigured))
		return Result{Status: StatusNotConfigured}
	}

	var eval domain.EvaluationResult
	err := s.breaker.Do(func() error {
		var err error
		eval, err = s.score(ctx, req)
		return err
	})
	if err != nil {
		metrics.RecordScorer(string(StatusFailed))
		s.logger.Warn("CoNLL scorer failed, keeping internal metrics",
			zap.String("dataset", req.Dataset),
			zap.String("split", string(req.Split)),
			zap.Error(err),
		)
		return Result{Status: StatusFailed, Err: err}
	}
	metrics.RecordScorer(string(StatusSucceeded))
	return Result{Status: StatusSucceeded, Evaluation: eval}
}

func (s *External) score(ctx context.Context, req Request) (domain.EvaluationResult, error) {
	goldPath := filepath.Join(req.GoldDir, string(req.Split)+".conll")
	predPath := filepath.Join(req.OutputDir, string(req.Split)+".conll")
	if err := writePredictions(goldPath, predPath, req.Predictions); err != nil {
		return domain.EvaluationResult{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	scores := make(map[string]domain.MetricScore, len(Metrics))
	for _, metric := range Metrics {
		stdout, stderr, err := s.run(ctx, s.cfg.Path, metric, goldPath, predPath, "none")
		if len(stderr) > 0 {
			s.logger.Debug("Scorer stderr", zap.String("metric", metric), zap.String("stderr", strings.TrimSpace(string(stderr))))
		}
		if err != nil {
			return domain.EvaluationResult{}, fmt.Errorf("scorer %s: %w", metric, err)
		}
		score, err := ParseScore(string(stdout))
		if err != nil {
			return domain.EvaluationResult{}, fmt.Errorf("scorer %s: %w", metric, err)
		}
		scores[metric] = score
	}
	return toEvaluation(scores), nil
}

func toEvaluation(scores map[string]domain.MetricScore) domain.EvaluationResult {
	round := func(m domain.MetricScore) domain.MetricScore {
		return domain.MetricScore{
			Recall:    domain.Round1(m.Recall),
			Precision: domain.Round1(m.Precision),
			FScore:    domain.Round1(m.FScore),
		}
	}
	mean := 0.0
	for _, m := range scores {
		mean += m.FScore
	}
	mean /= float64(len(scores))

	return domain.EvaluationResult{
		MUC:    round(scores["muc"]),
		BCubed: round(scores["bcub"]),
		CEAFE:  round(scores["ceafe"]),
		FScore: domain.Round1(mean),
		Source: domain.ResultSourceConll,
	}
}

func writePredictions(goldPath, predPath string, predictions []DocPrediction) error {
	gold, err := os.Open(goldPath)
	if err != nil {
		return fmt.Errorf("failed to open gold file: %w", err)
	}
	defer gold.Close()

	if err := os.MkdirAll(filepath.Dir(predPath), 0o755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}
	out, err := os.Create(predPath)
	if err != nil {
		return fmt.Errorf("failed to create prediction file: %w", err)
	}
	if err := WriteConll(gold, out, predictions); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
