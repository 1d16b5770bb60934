package report

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ksteimel/fast-coref/internal/domain"
)

func TestPredictionLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "litbank", PredictionLogName(domain.SplitDev))
	log, err := CreatePredictionLog(path)
	require.NoError(t, err)

	for _, key := range []string{"a", "b"} {
		require.NoError(t, log.Write(&domain.PredictionRecord{
			DocKey:            key,
			PredMentions:      []domain.Span{{Start: 0, End: 1}},
			PredActions:       []domain.Action{{Target: 0, Kind: domain.ActionOpen}},
			PredictedClusters: []domain.Cluster{{{Start: 0, End: 1}}},
		}))
	}
	require.NoError(t, log.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var lines []map[string]any
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var rec map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &rec))
		lines = append(lines, rec)
	}
	require.Len(t, lines, 2)
	assert.Equal(t, "b", lines[1]["doc_key"])
	assert.Equal(t, []any{[]any{0.0, "o"}}, lines[0]["pred_actions"])
	assert.NotContains(t, lines[0], "raw_predicted_clusters")
}

func TestWritePerformance(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ontonotes", PerformanceFileName)
	r := domain.PerformanceReport{
		RunID:           "run-1",
		ModelDir:        "/models/x",
		Hyperparameters: domain.Hyperparameters{"max_span_width": 20.0},
		Results: map[string]domain.EvaluationResult{
			domain.ResultKey("ontonotes", domain.SplitTest): {FScore: 79.4, Source: domain.ResultSourceConll},
		},
	}
	require.NoError(t, WritePerformance(path, r))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))

	assert.Equal(t, "/models/x", got["model_dir"])
	assert.Equal(t, 20.0, got["max_span_width"])
	result := got["ontonotes_test"].(map[string]any)
	assert.Equal(t, 79.4, result["fscore"])
	assert.Equal(t, "conll", result["source"])
}

func TestPredictionLog_CloseReportsFlushFailure(t *testing.T) {
	if _, err := os.Stat("/dev/full"); err != nil {
		t.Skip("/dev/full is not available")
	}
	log, err := CreatePredictionLog("/dev/full")
	require.NoError(t, err)
	require.NoError(t, log.Write(&domain.PredictionRecord{DocKey: "a"}))

	err = log.Close()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to flush prediction log")
}
