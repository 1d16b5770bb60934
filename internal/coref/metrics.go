package coref

import (
	"github.com/ksteimel/fast-coref/internal/domain"
)

// Metric is a running coreference metric accumulated over documents
type Metric interface {
	Name() string
	Update(pred, gold []domain.Cluster, predIdx, goldIdx MentionIndex)
	Recall() float64
	Precision() float64
	F1() float64
}

type scoreFunc func(pred, gold []domain.Cluster, predIdx, goldIdx MentionIndex) (pNum, pDen, rNum, rDen float64)

// accumulator sums precision and recall fractions across documents.
type accumulator struct {
	name  string
	score scoreFunc

	pNum, pDen float64
	rNum, rDen float64
}

func (a *accumulator) Name() string { return a.name }

func (a *accumulator) Update(pred, gold []domain.Cluster, predIdx, goldIdx MentionIndex) {
	pn, pd, rn, rd := a.score(pred, gold, predIdx, goldIdx)
	a.pNum += pn
	a.pDen += pd
	a.rNum += rn
	a.rDen += rd
}

func (a *accumulator) Recall() float64 {
	return ratio(a.rNum, a.rDen)
}

func (a *accumulator) Precision() float64 {
	return ratio(a.pNum, a.pDen)
}

func (a *accumulator) F1() float64 {
	return f1(a.Precision(), a.Recall())
}

// NewMUC returns the link-based MUC metric
func NewMUC() Metric {
	return &accumulator{
		name: domain.MetricMUC,
		score: func(pred, gold []domain.Cluster, predIdx, goldIdx MentionIndex) (float64, float64, float64, float64) {
			pn, pd := muc(pred, goldIdx)
			rn, rd := muc(gold, predIdx)
			return pn, pd, rn, rd
		},
	}
}

// NewBCubed returns the mention-based B-cubed metric
func NewBCubed() Metric {
	return &accumulator{
		name: domain.MetricBCubed,
		score: func(pred, gold []domain.Cluster, predIdx, goldIdx MentionIndex) (float64, float64, float64, float64) {
			pn, pd := bCubed(pred, goldIdx)
			rn, rd := bCubed(gold, predIdx)
			return pn, pd, rn, rd
		},
	}
}

// NewCEAFE returns the entity-based CEAF metric
func NewCEAFE() Metric {
	return &accumulator{
		name: domain.MetricCEAFE,
		score: func(pred, gold []domain.Cluster, _, _ MentionIndex) (float64, float64, float64, float64) {
			return ceafe(pred, gold)
		},
	}
}

// muc counts the links of clusters that survive in the partition given by
// other.
func muc(clusters []domain.Cluster, other MentionIndex) (num, den float64) {
	for _, c := range clusters {
		den += float64(len(c) - 1)
		tp := len(c)
		linked := make(map[int]struct{})
		for _, m := range c {
			if id, ok := other[m]; ok {
				linked[id] = struct{}{}
			} else {
				tp--
			}
		}
		tp -= len(linked)
		num += float64(tp)
	}
	return num, den
}

func bCubed(clusters []domain.Cluster, other MentionIndex) (num, den float64) {
	for _, c := range clusters {
		if len(c) == 0 {
			continue
		}
		counts := make(map[int]int)
		for _, m := range c {
			if id, ok := other[m]; ok {
				counts[id]++
			}
		}
		correct := 0
		for _, count := range counts {
			correct += count * count
		}
		num += float64(correct) / float64(len(c))
		den += float64(len(c))
	}
	return num, den
}

// phi4 is the entity similarity used by CEAFE.
func phi4(a, b domain.Cluster) float64 {
	if len(a)+len(b) == 0 {
		return 0
	}
	shared := 0
	for _, m := range a {
		if b.Contains(m) {
			shared++
		}
	}
	return 2 * float64(shared) / float64(len(a)+len(b))
}

func ceafe(pred, gold []domain.Cluster) (pNum, pDen, rNum, rDen float64) {
	similarity := 0.0
	if len(gold) > 0 && len(pred) > 0 {
		scores := make([][]float64, len(gold))
		for i := range gold {
			scores[i] = make([]float64, len(pred))
			for j := range pred {
				scores[i][j] = phi4(gold[i], pred[j])
			}
		}
		for i, j := range MaxWeightAssignment(scores) {
			if j >= 0 {
				similarity += scores[i][j]
			}
		}
	}
	return similarity, float64(len(pred)), similarity, float64(len(gold))
}

func ratio(num, den float64) float64 {
	if num == 0 || den == 0 {
		return 0
	}
	return num / den
}

func f1(p, r float64) float64 {
	if p+r == 0 {
		return 0
	}
	return 2 * p * r / (p + r)
}

// Evaluator runs MUC, B-cubed and CEAFE side by side.
type Evaluator struct {
	metrics []Metric
}

// NewEvaluator creates an evaluator with the three standard metrics
func NewEvaluator() *Evaluator {
	return &Evaluator{metrics: []Metric{NewMUC(), NewBCubed(), NewCEAFE()}}
}

// Update scores one document. The indices must be built from the same
// cluster slices by MentionToCluster.
func (e *Evaluator) Update(pred, gold []domain.Cluster, predIdx, goldIdx MentionIndex) {
	for _, m := range e.metrics {
		m.Update(pred, gold, predIdx, goldIdx)
	}
}

// Metrics returns the individual metrics in MUC, B-cubed, CEAFE order
func (e *Evaluator) Metrics() []Metric {
	return e.metrics
}

// F1 returns the CoNLL score: the mean F1 of the three metrics.
func (e *Evaluator) F1() float64 {
	_, _, f := e.PRF()
	return f
}

// PRF returns mean precision, recall and F1 across metrics
func (e *Evaluator) PRF() (precision, recall, fscore float64) {
	for _, m := range e.metrics {
		precision += m.Precision()
		recall += m.Recall()
		fscore += m.F1()
	}
	n := float64(len(e.metrics))
	return precision / n, recall / n, fscore / n
}

// Result converts the accumulated scores to a report entry
func (e *Evaluator) Result() domain.EvaluationResult {
	result := domain.EvaluationResult{
		FScore: domain.Round1(e.F1() * 100),
		Source: domain.ResultSourceInternal,
	}
	for _, m := range e.metrics {
		score := domain.NewMetricScore(m.Recall(), m.Precision(), m.F1())
		switch m.Name() {
		case domain.MetricMUC:
			result.MUC = score
		case domain.MetricBCubed:
			result.BCubed = score
		case domain.MetricCEAFE:
			result.CEAFE = score
		}
	}
	return result
}
