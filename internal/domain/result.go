package domain

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// Metric names as they appear in reports
const (
	MetricMUC    = "MUC"
	MetricBCubed = "Bcub"
	MetricCEAFE  = "CEAFE"
)

// ResultSource tells which scorer produced an evaluation result
type ResultSource string

const (
	ResultSourceInternal ResultSource = "internal"
	ResultSourceConll    ResultSource = "conll"
)

// MetricScore holds one metric's percentages, rounded to one decimal
type MetricScore struct {
	Recall    float64 `json:"recall"`
	Precision float64 `json:"precision"`
	FScore    float64 `json:"fscore"`
}

// NewMetricScore builds a MetricScore from fractions in [0, 1].
func NewMetricScore(recall, precision, f1 float64) MetricScore {
	return MetricScore{
		Recall:    Round1(recall * 100),
		Precision: Round1(precision * 100),
		FScore:    Round1(f1 * 100),
	}
}

// EvaluationResult is the outcome of evaluating one (dataset, split) pair
type EvaluationResult struct {
	MUC    MetricScore  `json:"MUC"`
	BCubed MetricScore  `json:"Bcub"`
	CEAFE  MetricScore  `json:"CEAFE"`
	FScore float64      `json:"fscore"`
	Source ResultSource `json:"source"`
}

// PredictionRecord is one line of the per-example prediction log
type PredictionRecord struct {
	DocKey      string     `json:"doc_key"`
	Sentences   [][]string `json:"sentences,omitempty"`
	Clusters    []Cluster  `json:"clusters"`
	SubtokenMap []int      `json:"subtoken_map,omitempty"`
	SentenceMap []int      `json:"sentence_map,omitempty"`

	PredMentions      []Span    `json:"pred_mentions"`
	MentionScores     []float64 `json:"mention_scores"`
	PredActions       []Action  `json:"pred_actions"`
	PredictedClusters []Cluster `json:"predicted_clusters"`

	// RawPredictedClusters is set only when the threshold differs from 1;
	// otherwise raw and filtered clusters coincide.
	RawPredictedClusters []Cluster `json:"raw_predicted_clusters,omitempty"`
}

// PerformanceReport is the final report written once per run and dataset
type PerformanceReport struct {
	RunID           string                      `json:"run_id"`
	ModelDir        string                      `json:"model_dir"`
	Hyperparameters Hyperparameters             `json:"hyperparameters"`
	Results         map[string]EvaluationResult `json:"results"`
}

// ResultKey returns the report key for a dataset and split
func ResultKey(dataset string, split Split) string {
	return dataset + "_" + string(split)
}

// Round1 rounds to one decimal place
func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// StoredResult is one persisted (run, dataset, split) evaluation result
type StoredResult struct {
	ID              uuid.UUID        `json:"id"`
	RunID           string           `json:"run_id"`
	ModelDir        string           `json:"model_dir"`
	ResultKey       string           `json:"result_key"`
	Result          EvaluationResult `json:"result"`
	Hyperparameters Hyperparameters  `json:"hyperparameters"`
	CreatedAt       time.Time        `json:"created_at"`
}
