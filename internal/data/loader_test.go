package data

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ksteimel/fast-coref/internal/domain"
	apperrors "github.com/ksteimel/fast-coref/internal/pkg/errors"
	"github.com/ksteimel/fast-coref/internal/testutil"
)

func TestLoader_LoadSplit(t *testing.T) {
	dir := t.TempDir()
	train := append(testutil.NewTestDocuments("nw", 3), testutil.NewTestDocuments("bc", 2)...)
	testutil.WriteJSONLines(t, dir, domain.SplitTrain, 4096, train)
	testutil.WriteJSONLines(t, dir, domain.SplitDev, 4096, testutil.NewTestDocuments("nw", 5))

	tests := []struct {
		name    string
		opts    Options
		ds      domain.DatasetSpec
		split   domain.Split
		wantLen int
	}{
		{"all training docs", Options{MaxSegmentLen: 4096}, domain.DatasetSpec{DataDir: dir}, domain.SplitTrain, 5},
		{"skip dialog", Options{MaxSegmentLen: 4096, SkipDialogData: true}, domain.DatasetSpec{DataDir: dir}, domain.SplitTrain, 3},
		{"train cap", Options{MaxSegmentLen: 4096}, domain.DatasetSpec{DataDir: dir, NumTrainDocs: 2}, domain.SplitTrain, 2},
		{"eval cap", Options{MaxSegmentLen: 4096, NumEvalDocs: 4}, domain.DatasetSpec{DataDir: dir}, domain.SplitDev, 4},
		{"eval cap ignores train cap", Options{MaxSegmentLen: 4096}, domain.DatasetSpec{DataDir: dir, NumTrainDocs: 1}, domain.SplitDev, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := NewLoader(tt.opts, zap.NewNop())
			docs, err := l.LoadSplit(tt.ds, tt.split)
			require.NoError(t, err)
			assert.Len(t, docs, tt.wantLen)
		})
	}
}

func TestLoader_Missing(t *testing.T) {
	l := NewLoader(Options{MaxSegmentLen: 2048}, zap.NewNop())
	_, err := l.LoadSplit(domain.DatasetSpec{DataDir: t.TempDir()}, domain.SplitTest)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeDataNotFound))
	assert.Contains(t, err.Error(), "test.2048.jsonlines")
}

func TestReadJSONLines(t *testing.T) {
	input := `{"doc_key": "wb/a_0", "sentences": [["Hi", "."]], "clusters": [[[0, 0]]]}
{"doc_key": "wb/b_0", "sentences": [["Yo"]], "clusters": []}
`
	docs, err := ReadJSONLines(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "wb/a_0", docs[0].DocKey)
	assert.Equal(t, []domain.Cluster{{{Start: 0, End: 0}}}, docs[0].Clusters)

	_, err = ReadJSONLines(strings.NewReader(input + "{broken"))
	assert.Error(t, err)
}

func TestPassthrough(t *testing.T) {
	docs := []domain.RawDocument{testutil.NewTestDocument("nw_0")}

	examples, err := NewPassthrough(nil, true).Tensorize(docs, true)
	require.NoError(t, err)
	assert.Len(t, examples[0].Clusters, 1, "singleton dropped from training data")

	examples, err = NewPassthrough(nil, true).Tensorize(docs, false)
	require.NoError(t, err)
	assert.Len(t, examples[0].Clusters, 2, "evaluation data untouched")
}
