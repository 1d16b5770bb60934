// Package oracle provides a parameter-free model that predicts the gold
// clusters of every example, together with a null tensor backend. Both are
// registered so the evaluation pipeline can run end to end without a neural
// runtime.
package oracle

import (
	"context"
	"sort"

	"github.com/ksteimel/fast-coref/internal/domain"
	"github.com/ksteimel/fast-coref/internal/model"
)

// Name is the registry name of the oracle model and of the null backend
const (
	Name        = "oracle"
	BackendName = "null"
)

func init() {
	model.Register(Name, New)
	model.RegisterBackend(BackendName, func() (model.Backend, error) { return NullBackend{}, nil })
}

// GoldMentions returns every gold mention in document order
func GoldMentions(clusters []domain.Cluster) []domain.Span {
	var mentions []domain.Span
	for _, c := range clusters {
		mentions = append(mentions, c...)
	}
	sort.Slice(mentions, func(i, j int) bool {
		if mentions[i].Start != mentions[j].Start {
			return mentions[i].Start < mentions[j].Start
		}
		return mentions[i].End < mentions[j].End
	})
	return mentions
}

// Actions labels each mention with the action that reproduces the gold
// clusters. Mentions outside every gold cluster are ignored, singletons are
// emitted untracked and larger clusters each get their own memory slot.
func Actions(mentions []domain.Span, clusters []domain.Cluster) []domain.Action {
	owner := make(map[domain.Span]int)
	for i, c := range clusters {
		for _, m := range c {
			owner[m] = i
		}
	}

	slots := make(map[int]int)
	actions := make([]domain.Action, len(mentions))
	for i, m := range mentions {
		cluster, ok := owner[m]
		switch {
		case !ok:
			actions[i] = domain.Action{Target: -1, Kind: domain.ActionIgnore}
		case len(clusters[cluster]) == 1:
			actions[i] = domain.Action{Target: -1, Kind: domain.ActionNew}
		default:
			if slot, seen := slots[cluster]; seen {
				actions[i] = domain.Action{Target: slot, Kind: domain.ActionAttach}
				continue
			}
			slot := len(slots)
			slots[cluster] = slot
			actions[i] = domain.Action{Target: slot, Kind: domain.ActionOpen}
		}
	}
	return actions
}

// Model replays gold annotations
type Model struct {
	opts model.RuntimeOptions
}

// New is the registry factory; the oracle ignores its hyperparameters
func New(_ domain.Hyperparameters, _ model.FactoryOptions) (model.Model, error) {
	return &Model{}, nil
}

// ForwardTraining has nothing to learn and always reports an absent loss
func (m *Model) ForwardTraining(_ context.Context, _ *domain.Example) (model.TrainingOutput, error) {
	return model.TrainingOutput{}, nil
}

func (m *Model) Infer(ctx context.Context, ex *domain.Example) (*model.Inference, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	mentions := GoldMentions(ex.Clusters)
	actions := Actions(mentions, ex.Clusters)
	scores := make([]float64, len(mentions))
	for i := range scores {
		scores[i] = 1
	}
	return &model.Inference{
		Actions:           actions,
		PredictedMentions: mentions,
		GoldActions:       actions,
		MentionScores:     scores,
	}, nil
}

func (m *Model) Parameters() (encoder, task []model.Parameter) { return nil, nil }

func (m *Model) Tokenizer() model.Tokenizer { return whitespaceTokenizer{} }

func (m *Model) StateDict() (model.StateDict, error) { return model.StateDict{}, nil }

func (m *Model) LoadStateDict(sd model.StateDict) (model.LoadReport, error) {
	var report model.LoadReport
	for k := range sd {
		report.Unexpected = append(report.Unexpected, k)
	}
	sort.Strings(report.Unexpected)
	return report, nil
}

func (m *Model) IsEncoderKey(string) bool { return false }

func (m *Model) SetTrainMode() {}

func (m *Model) SetEvalMode() {}

func (m *Model) Configure(opts model.RuntimeOptions) { m.opts = opts }

type whitespaceTokenizer struct{}

func (whitespaceTokenizer) Tokenize(text string) []string {
	var tokens []string
	start := -1
	for i, r := range text {
		if r == ' ' || r == '\t' || r == '\n' {
			if start >= 0 {
				tokens = append(tokens, text[start:i])
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		tokens = append(tokens, text[start:])
	}
	return tokens
}
