package scorer

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ksteimel/fast-coref/internal/domain"
)

const goldConll = `#begin document (nw/doc); part 000
nw/doc 0 0 John NNP (0)
nw/doc 0 1 saw VBD -
nw/doc 0 2 Mary NNP -
nw/doc 0 3 Smith NNP -

#end document
`

func TestWriteConll(t *testing.T) {
	preds := []DocPrediction{{
		DocKey: "nw/doc_0",
		Clusters: []domain.Cluster{
			{{Start: 0, End: 0}, {Start: 2, End: 3}},
			{{Start: 2, End: 2}},
		},
		SubtokenMap: []int{0, 1, 2, 3},
	}}

	var out bytes.Buffer
	require.NoError(t, WriteConll(strings.NewReader(goldConll), &out, preds))

	want := "#begin document (nw/doc); part 000\n" +
		"nw/doc   0   0   John   NNP   (0)\n" +
		"nw/doc   0   1   saw   VBD   -\n" +
		"nw/doc   0   2   Mary   NNP   (1)|(0\n" +
		"nw/doc   0   3   Smith   NNP   0)\n" +
		"\n" +
		"#end document\n"
	assert.Equal(t, want, out.String())
}

func TestWriteConll_SubtokenMap(t *testing.T) {
	// Subtokens 1 and 2 both belong to word 1.
	preds := []DocPrediction{{
		DocKey:      "nw/doc_0",
		Clusters:    []domain.Cluster{{{Start: 1, End: 2}, {Start: 4, End: 4}}},
		SubtokenMap: []int{0, 1, 1, 2, 3},
	}}

	var out bytes.Buffer
	require.NoError(t, WriteConll(strings.NewReader(goldConll), &out, preds))
	lines := strings.Split(out.String(), "\n")
	assert.True(t, strings.HasSuffix(lines[2], "(0)"), lines[2])
	assert.True(t, strings.HasSuffix(lines[4], "(0)"), lines[4])
}

func TestWriteConll_MissingDocument(t *testing.T) {
	err := WriteConll(strings.NewReader(goldConll), &bytes.Buffer{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nw/doc_0")
}

func TestWriteConll_MentionOutOfRange(t *testing.T) {
	preds := []DocPrediction{{
		DocKey:      "nw/doc_0",
		Clusters:    []domain.Cluster{{{Start: 0, End: 9}}},
		SubtokenMap: []int{0, 1},
	}}
	assert.Error(t, WriteConll(strings.NewReader(goldConll), &bytes.Buffer{}, preds))
}

func TestParseScore(t *testing.T) {
	output := "version: 8.01 /opt/reference-coreference-scorers/lib/CorScorer.pm\n" +
		"====== TOTALS =======\n" +
		"Identification of Mentions: Recall: (10 / 12) 83.33%\tPrecision: (10 / 11) 90.9%\tF1: 86.95%\n" +
		"--------------------------------------------------------------------------\n" +
		"Coreference: Recall: (7 / 9) 77.77%\tPrecision: (7 / 8) 87.5%\tF1: 82.35%\n"

	score, err := ParseScore(output)
	require.NoError(t, err)
	assert.Equal(t, domain.MetricScore{Recall: 77.77, Precision: 87.5, FScore: 82.35}, score)
}

func TestParseScore_NoMatch(t *testing.T) {
	_, err := ParseScore("Can't locate CorScorer.pm")
	assert.Error(t, err)
}
