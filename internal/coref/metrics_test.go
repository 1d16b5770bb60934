package coref

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ksteimel/fast-coref/internal/domain"
)

func score(pred, gold []domain.Cluster, threshold int) *Evaluator {
	pred, predIdx := MentionToCluster(pred, threshold)
	gold, goldIdx := MentionToCluster(gold, threshold)
	ev := NewEvaluator()
	ev.Update(pred, gold, predIdx, goldIdx)
	return ev
}

func TestEvaluator_PerfectMatch(t *testing.T) {
	gold := []domain.Cluster{
		{span(0, 0), span(4, 5), span(9, 9)},
		{span(2, 2), span(7, 7)},
		{span(11, 12)},
	}
	pred := []domain.Cluster{
		{span(7, 7), span(2, 2)},
		{span(11, 12)},
		{span(9, 9), span(0, 0), span(4, 5)},
	}

	ev := score(pred, gold, 1)

	for _, m := range ev.Metrics() {
		assert.InDelta(t, 1.0, m.Precision(), 1e-9, m.Name())
		assert.InDelta(t, 1.0, m.Recall(), 1e-9, m.Name())
		assert.InDelta(t, 1.0, m.F1(), 1e-9, m.Name())
	}
	assert.InDelta(t, 1.0, ev.F1(), 1e-9)
}

func TestEvaluator_KnownValues(t *testing.T) {
	a, b, c := span(0, 0), span(1, 1), span(2, 2)
	gold := []domain.Cluster{{a, b, c}}
	pred := []domain.Cluster{{a, b}, {c}}

	ev := score(pred, gold, 1)
	metrics := ev.Metrics()

	muc, b3, ceaf := metrics[0], metrics[1], metrics[2]

	assert.Equal(t, domain.MetricMUC, muc.Name())
	assert.InDelta(t, 1.0, muc.Precision(), 1e-9)
	assert.InDelta(t, 0.5, muc.Recall(), 1e-9)
	assert.InDelta(t, 2.0/3.0, muc.F1(), 1e-9)

	assert.Equal(t, domain.MetricBCubed, b3.Name())
	assert.InDelta(t, 1.0, b3.Precision(), 1e-9)
	assert.InDelta(t, 5.0/9.0, b3.Recall(), 1e-9)
	assert.InDelta(t, 10.0/14.0, b3.F1(), 1e-9)

	assert.Equal(t, domain.MetricCEAFE, ceaf.Name())
	assert.InDelta(t, 0.4, ceaf.Precision(), 1e-9)
	assert.InDelta(t, 0.8, ceaf.Recall(), 1e-9)
	assert.InDelta(t, 1.6/3.0, ceaf.F1(), 1e-9)
}

func TestEvaluator_ScoresStayInRange(t *testing.T) {
	gold := []domain.Cluster{
		{span(0, 0), span(3, 3)},
		{span(5, 5), span(6, 6), span(8, 8)},
	}
	preds := [][]domain.Cluster{
		nil,
		{{span(0, 0), span(5, 5), span(6, 6), span(3, 3), span(8, 8)}},
		{{span(20, 20), span(21, 21)}},
		{{span(0, 0)}, {span(3, 3), span(6, 6)}, {span(8, 8), span(30, 30)}},
	}

	for i, pred := range preds {
		ev := score(pred, gold, 1)
		for _, m := range ev.Metrics() {
			for _, v := range []float64{m.Precision(), m.Recall(), m.F1()} {
				assert.GreaterOrEqual(t, v, 0.0, "case %d %s", i, m.Name())
				assert.LessOrEqual(t, v, 1.0, "case %d %s", i, m.Name())
			}
		}
	}
}

func TestEvaluator_AccumulatesAcrossDocuments(t *testing.T) {
	gold := []domain.Cluster{{span(0, 0), span(1, 1)}}

	ev := NewEvaluator()
	p, pIdx := MentionToCluster(gold, 1)
	g, gIdx := MentionToCluster(gold, 1)
	ev.Update(p, g, pIdx, gIdx)

	empty, emptyIdx := MentionToCluster(nil, 1)
	ev.Update(empty, g, emptyIdx, gIdx)

	muc := ev.Metrics()[0]
	assert.InDelta(t, 1.0, muc.Precision(), 1e-9)
	assert.InDelta(t, 0.5, muc.Recall(), 1e-9)
}

func TestEvaluator_EndToEndPerfectScore(t *testing.T) {
	a, b, c := span(0, 0), span(2, 2), span(4, 4)
	mentions := []domain.Span{a, b, c}
	actions := []domain.Action{
		{Target: 0, Kind: domain.ActionOpen},
		{Target: 0, Kind: domain.ActionAttach},
		{Target: 1, Kind: domain.ActionOpen},
	}

	pred, err := ReconstructClusters(actions, mentions)
	assert.NoError(t, err)

	ev := score(pred, []domain.Cluster{{a, b}, {c}}, 1)
	result := ev.Result()

	assert.Equal(t, 100.0, result.FScore)
	assert.Equal(t, 100.0, result.MUC.FScore)
	assert.Equal(t, 100.0, result.BCubed.FScore)
	assert.Equal(t, 100.0, result.CEAFE.FScore)
	assert.Equal(t, domain.ResultSourceInternal, result.Source)
}

func TestEvaluator_EmptyGoldAfterThreshold(t *testing.T) {
	gold := []domain.Cluster{{span(0, 0)}, {span(1, 1)}}
	pred := []domain.Cluster{{span(0, 0)}, {span(1, 1)}}

	filteredGold, goldIdx := MentionToCluster(gold, 2)
	assert.Empty(t, filteredGold)
	assert.Empty(t, goldIdx)

	ev := score(pred, gold, 2)
	assert.Equal(t, 0.0, ev.F1())
}
