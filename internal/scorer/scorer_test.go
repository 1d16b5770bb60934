package scorer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ksteimel/fast-coref/internal/domain"
)

func scorerOutput(r, p, f float64) []byte {
	return []byte(fmt.Sprintf("Coreference: Recall: (1 / 1) %.2f%%\tPrecision: (1 / 1) %.2f%%\tF1: %.2f%%\n", r, p, f))
}

func setup(t *testing.T) (*External, Request) {
	t.Helper()
	dir := t.TempDir()
	scorerPath := filepath.Join(dir, "scorer.pl")
	require.NoError(t, os.WriteFile(scorerPath, []byte("#!/bin/sh\n"), 0o755))

	goldDir := filepath.Join(dir, "conll")
	require.NoError(t, os.MkdirAll(goldDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(goldDir, "test.conll"), []byte(goldConll), 0o644))

	s := NewExternal(Config{Path: scorerPath}, zap.NewNop())
	req := Request{
		Dataset:   "ontonotes",
		Split:     domain.SplitTest,
		GoldDir:   goldDir,
		OutputDir: filepath.Join(dir, "model", "ontonotes"),
		Predictions: []DocPrediction{{
			DocKey:      "nw/doc_0",
			Clusters:    []domain.Cluster{{{Start: 0, End: 0}, {Start: 2, End: 3}}},
			SubtokenMap: []int{0, 1, 2, 3},
		}},
	}
	return s, req
}

func TestExternal_NotConfigured(t *testing.T) {
	s := NewExternal(Config{}, zap.NewNop())
	res := s.Score(context.Background(), Request{GoldDir: t.TempDir()})
	assert.Equal(t, StatusNotConfigured, res.Status)

	s = NewExternal(Config{Path: "/nonexistent/scorer.pl"}, zap.NewNop())
	res = s.Score(context.Background(), Request{GoldDir: t.TempDir()})
	assert.Equal(t, StatusNotConfigured, res.Status)
}

func TestExternal_Succeeded(t *testing.T) {
	s, req := setup(t)
	outputs := map[string][]byte{
		"muc":   scorerOutput(80, 90, 84.71),
		"bcub":  scorerOutput(70, 75, 72.41),
		"ceafe": scorerOutput(60, 65, 62.4),
	}
	var calls [][]string
	s.run = func(_ context.Context, name string, args ...string) ([]byte, []byte, error) {
		calls = append(calls, append([]string{name}, args...))
		return outputs[args[0]], nil, nil
	}

	res := s.Score(context.Background(), req)
	require.Equal(t, StatusSucceeded, res.Status, "%v", res.Err)
	assert.Equal(t, domain.ResultSourceConll, res.Evaluation.Source)
	assert.Equal(t, 84.7, res.Evaluation.MUC.FScore)
	assert.Equal(t, 72.4, res.Evaluation.BCubed.FScore)
	assert.Equal(t, 73.2, res.Evaluation.FScore)

	require.Len(t, calls, 3)
	predPath := filepath.Join(req.OutputDir, "test.conll")
	assert.Equal(t, []string{s.cfg.Path, "muc", filepath.Join(req.GoldDir, "test.conll"), predPath, "none"}, calls[0])
	written, err := os.ReadFile(predPath)
	require.NoError(t, err)
	assert.Contains(t, string(written), "Smith   NNP   0)")
}

func TestExternal_Failed(t *testing.T) {
	s, req := setup(t)
	s.run = func(context.Context, string, ...string) ([]byte, []byte, error) {
		return nil, []byte("perl: not found"), errors.New("exit status 127")
	}

	res := s.Score(context.Background(), req)
	assert.Equal(t, StatusFailed, res.Status)
	assert.Error(t, res.Err)
}

func TestExternal_Unparsable(t *testing.T) {
	s, req := setup(t)
	s.run = func(context.Context, string, ...string) ([]byte, []byte, error) {
		return []byte("garbage"), nil, nil
	}
	assert.Equal(t, StatusFailed, s.Score(context.Background(), req).Status)
}

func TestExternal_BreakerStopsCalls(t *testing.T) {
	s, req := setup(t)
	calls := 0
	s.run = func(context.Context, string, ...string) ([]byte, []byte, error) {
		calls++
		return nil, nil, errors.New("crash")
	}

	for i := 0; i < 3; i++ {
		assert.Equal(t, StatusFailed, s.Score(context.Background(), req).Status)
	}
	assert.Equal(t, 2, calls)
}
