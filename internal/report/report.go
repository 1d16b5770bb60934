// Package report writes evaluation artifacts: the per-document prediction
// log and the final performance summary.
package report

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ksteimel/fast-coref/internal/domain"
)

// PredictionLogName returns the log file name for a split
func PredictionLogName(split domain.Split) string {
	return string(split) + ".log.jsonl"
}

// PerformanceFileName is the summary written per dataset after final evaluation
const PerformanceFileName = "perf.json"

// PredictionLog writes one JSON record per document
type PredictionLog struct {
	path string
	file *os.File
	buf  *bufio.Writer
	enc  *json.Encoder
}

// CreatePredictionLog truncates or creates the log at path
func CreatePredictionLog(path string) (*PredictionLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create prediction log: %w", err)
	}
	buf := bufio.NewWriter(f)
	return &PredictionLog{path: path, file: f, buf: buf, enc: json.NewEncoder(buf)}, nil
}

// Path returns the log location
func (l *PredictionLog) Path() string {
	return l.path
}

// Write appends a record
func (l *PredictionLog) Write(rec *domain.PredictionRecord) error {
	if err := l.enc.Encode(rec); err != nil {
		return fmt.Errorf("failed to write prediction for %s: %w", rec.DocKey, err)
	}
	return nil
}

// Close flushes and closes the log
func (l *PredictionLog) Close() error {
	if err := l.buf.Flush(); err != nil {
		l.file.Close()
		return fmt.Errorf("failed to flush prediction log: %w", err)
	}
	return l.file.Close()
}

// Flatten lays a report out as a single JSON object: run metadata, every
// hyperparameter, then one "<dataset>_<split>" entry per result.
func Flatten(r domain.PerformanceReport) map[string]any {
	out := make(map[string]any, len(r.Hyperparameters)+len(r.Results)+2)
	for k, v := range r.Hyperparameters {
		out[k] = v
	}
	out["model_dir"] = r.ModelDir
	if r.RunID != "" {
		out["run_id"] = r.RunID
	}
	for k, v := range r.Results {
		out[k] = v
	}
	return out
}

// WritePerformance writes the flattened report to path
func WritePerformance(path string, r domain.PerformanceReport) error {
	data, err := json.MarshalIndent(Flatten(r), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal performance report: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write performance report: %w", err)
	}
	return nil
}
