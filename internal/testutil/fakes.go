// Package testutil provides deterministic stand-ins for the model and tensor
// runtime plus shared fixtures.
package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"sort"
	"strings"
	"sync"

	"github.com/ksteimel/fast-coref/internal/domain"
	"github.com/ksteimel/fast-coref/internal/model"
	"github.com/ksteimel/fast-coref/internal/model/oracle"
)

// FakeParam is a named parameter of fixed size
type FakeParam struct {
	ParamName string
	Size      int
}

func (p FakeParam) Name() string     { return p.ParamName }
func (p FakeParam) NumElements() int { return p.Size }

// FakeLoss records Backward calls on its owning model
type FakeLoss struct {
	V     float64
	model *FakeModel
}

func (l *FakeLoss) Value() float64 { return l.V }

func (l *FakeLoss) Backward() error {
	if l.model != nil {
		l.model.mu.Lock()
		l.model.Backwards++
		l.model.mu.Unlock()
	}
	return nil
}

// Default parameter layout of FakeModel
var (
	EncoderParams = []model.Parameter{
		FakeParam{ParamName: "encoder.layer.0.weight", Size: 16},
		FakeParam{ParamName: "encoder.layer.0.bias", Size: 4},
		FakeParam{ParamName: "encoder.LayerNorm.weight", Size: 4},
	}
	TaskParams = []model.Parameter{
		FakeParam{ParamName: "mention_mlp.weight", Size: 8},
		FakeParam{ParamName: "memory.bias", Size: 2},
	}
)

// FakeModel predicts gold clusters and draws its losses from the RNG it was
// built with, so tests can observe RNG state through the loss values.
type FakeModel struct {
	mu sync.Mutex

	Hyperparameters domain.Hyperparameters
	FineTune        bool
	Weights         map[string][]byte
	Options         model.RuntimeOptions
	Mode            string

	// AbsentLoss lists documents whose forward pass yields no loss.
	AbsentLoss map[string]bool
	// Perturb, when set, makes Infer split every predicted cluster in two.
	Perturb bool
	// OnInfer is called with the document key before each prediction.
	OnInfer func(docKey string)

	Seen      []string
	Losses    []float64
	Backwards int
	Inferred  int

	rng *rand.Rand
}

// NewFakeModel is a model.Factory
func NewFakeModel(hp domain.Hyperparameters, opts model.FactoryOptions) (model.Model, error) {
	r := opts.RNG
	if r == nil {
		r = rand.New(rand.NewPCG(0, 0))
	}
	m := &FakeModel{
		Hyperparameters: hp,
		FineTune:        opts.FineTune,
		Weights:         make(map[string][]byte),
		AbsentLoss:      make(map[string]bool),
		Mode:            "train",
		rng:             r,
	}
	for _, p := range append(append([]model.Parameter{}, EncoderParams...), TaskParams...) {
		m.Weights[p.Name()] = []byte("init")
	}
	return m, nil
}

// FactoryCapturing returns a factory that stores each built model in *out
func FactoryCapturing(out **FakeModel) model.Factory {
	return func(hp domain.Hyperparameters, opts model.FactoryOptions) (model.Model, error) {
		m, err := NewFakeModel(hp, opts)
		if err != nil {
			return nil, err
		}
		*out = m.(*FakeModel)
		return m, nil
	}
}

func (m *FakeModel) ForwardTraining(_ context.Context, ex *domain.Example) (model.TrainingOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Seen = append(m.Seen, ex.DocKey)
	if m.AbsentLoss[ex.DocKey] {
		return model.TrainingOutput{}, nil
	}
	v := m.rng.Float64()
	m.Losses = append(m.Losses, v)
	return model.TrainingOutput{Total: &FakeLoss{V: v, model: m}}, nil
}

func (m *FakeModel) Infer(_ context.Context, ex *domain.Example) (*model.Inference, error) {
	m.mu.Lock()
	m.Inferred++
	perturb := m.Perturb
	hook := m.OnInfer
	m.mu.Unlock()
	if hook != nil {
		hook(ex.DocKey)
	}

	clusters := ex.Clusters
	if perturb {
		clusters = splitClusters(clusters)
	}
	mentions := oracle.GoldMentions(clusters)
	scores := make([]float64, len(mentions))
	for i := range scores {
		scores[i] = 0.5
	}
	return &model.Inference{
		Actions:           oracle.Actions(mentions, clusters),
		PredictedMentions: mentions,
		GoldActions:       oracle.Actions(mentions, ex.Clusters),
		MentionScores:     scores,
	}, nil
}

func splitClusters(clusters []domain.Cluster) []domain.Cluster {
	var out []domain.Cluster
	for _, c := range clusters {
		if len(c) < 2 {
			out = append(out, c)
			continue
		}
		half := len(c) / 2
		out = append(out, c[:half], c[half:])
	}
	return out
}

func (m *FakeModel) Parameters() (encoder, task []model.Parameter) {
	return EncoderParams, TaskParams
}

func (m *FakeModel) Tokenizer() model.Tokenizer { return fakeTokenizer{} }

func (m *FakeModel) StateDict() (model.StateDict, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sd := make(model.StateDict, len(m.Weights))
	for k, v := range m.Weights {
		sd[k] = append([]byte(nil), v...)
	}
	return sd, nil
}

func (m *FakeModel) LoadStateDict(sd model.StateDict) (model.LoadReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var report model.LoadReport
	for k := range m.Weights {
		if v, ok := sd[k]; ok {
			m.Weights[k] = append([]byte(nil), v...)
		} else {
			report.Missing = append(report.Missing, k)
		}
	}
	for k := range sd {
		if _, ok := m.Weights[k]; !ok {
			report.Unexpected = append(report.Unexpected, k)
		}
	}
	sort.Strings(report.Missing)
	sort.Strings(report.Unexpected)
	return report, nil
}

func (m *FakeModel) IsEncoderKey(key string) bool {
	return strings.HasPrefix(key, "encoder.")
}

func (m *FakeModel) SetTrainMode() { m.Mode = "train" }
func (m *FakeModel) SetEvalMode()  { m.Mode = "eval" }

func (m *FakeModel) Configure(opts model.RuntimeOptions) { m.Options = opts }

type fakeTokenizer struct{}

func (fakeTokenizer) Tokenize(text string) []string { return strings.Fields(text) }

// ClipCall records one gradient clipping request
type ClipCall struct {
	Params  []string
	MaxNorm float64
}

// FakeOptimizer counts its updates
type FakeOptimizer struct {
	Spec      model.OptimizerSpec
	Steps     int
	ZeroGrads int
	LRScale   float64
}

func (o *FakeOptimizer) ZeroGrad()            { o.ZeroGrads++ }
func (o *FakeOptimizer) SetLRScale(s float64) { o.LRScale = s }

func (o *FakeOptimizer) State() ([]byte, error) {
	return json.Marshal(map[string]int{"steps": o.Steps})
}

func (o *FakeOptimizer) LoadState(state []byte) error {
	var s map[string]int
	if err := json.Unmarshal(state, &s); err != nil {
		return fmt.Errorf("bad optimizer state: %w", err)
	}
	o.Steps = s["steps"]
	return nil
}

// FakeScaler applies optimizer steps and counts scaler updates
type FakeScaler struct {
	Unscaled int
	Updates  int
}

func (s *FakeScaler) Scale(loss model.Loss) model.Loss { return loss }

func (s *FakeScaler) Unscale(model.Optimizer) error {
	s.Unscaled++
	return nil
}

func (s *FakeScaler) Step(opt model.Optimizer) error {
	if o, ok := opt.(*FakeOptimizer); ok {
		o.Steps++
	}
	return nil
}

func (s *FakeScaler) Update() { s.Updates++ }

func (s *FakeScaler) State() ([]byte, error) {
	return json.Marshal(map[string]int{"updates": s.Updates})
}

func (s *FakeScaler) LoadState(state []byte) error {
	var v map[string]int
	if err := json.Unmarshal(state, &v); err != nil {
		return fmt.Errorf("bad scaler state: %w", err)
	}
	s.Updates = v["updates"]
	return nil
}

// FakeBackend records every call made by the controller
type FakeBackend struct {
	Optimizers []*FakeOptimizer
	Scalers    []*FakeScaler
	Clips      []ClipCall
	Autocasts  int
	PeakResets int
}

// NewFakeBackend creates an empty FakeBackend
func NewFakeBackend() *FakeBackend {
	return &FakeBackend{}
}

func (b *FakeBackend) NewOptimizer(spec model.OptimizerSpec) (model.Optimizer, error) {
	o := &FakeOptimizer{Spec: spec}
	b.Optimizers = append(b.Optimizers, o)
	return o, nil
}

func (b *FakeBackend) NewGradScaler() model.GradScaler {
	s := &FakeScaler{}
	b.Scalers = append(b.Scalers, s)
	return s
}

func (b *FakeBackend) Autocast(fn func() error) error {
	b.Autocasts++
	return fn()
}

func (b *FakeBackend) ClipGradNorm(params []model.Parameter, maxNorm float64) float64 {
	names := make([]string, len(params))
	for i, p := range params {
		names[i] = p.Name()
	}
	b.Clips = append(b.Clips, ClipCall{Params: names, MaxNorm: maxNorm})
	return 1
}

func (b *FakeBackend) MaxMemoryAllocated() uint64 { return 1 << 20 }

func (b *FakeBackend) ResetPeakMemoryStats() { b.PeakResets++ }
