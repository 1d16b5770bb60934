// Package model declares the contracts of the external collaborators the
// experiment controller drives: the coreference model itself and the tensor
// runtime (optimizers, mixed-precision scaler, gradient clipping, memory
// accounting).
//
// Implementations register themselves by name, in the style of
// database/sql drivers, and are looked up from configuration.
package model

import (
	"context"
	"math/rand/v2"

	"github.com/ksteimel/fast-coref/internal/domain"
)

// Parameter is an opaque handle on one trainable tensor
type Parameter interface {
	Name() string
	NumElements() int
}

// Loss is a scalar produced by a training forward pass
type Loss interface {
	Value() float64
	Backward() error
}

// TrainingOutput is the result of a training forward pass. Total is nil
// when the example carries no learnable signal.
type TrainingOutput struct {
	Total Loss
}

// Inference is the result of running the model on one example
type Inference struct {
	Actions           []domain.Action
	PredictedMentions []domain.Span
	GoldActions       []domain.Action
	MentionScores     []float64
}

// StateDict maps parameter names to serialized tensors
type StateDict map[string][]byte

// LoadReport lists the keys that did not line up during a lenient load
type LoadReport struct {
	Missing    []string
	Unexpected []string
}

// Tokenizer is handed to the data collaborator unchanged
type Tokenizer interface {
	Tokenize(text string) []string
}

// RuntimeOptions are the mention-detection knobs that may be changed after
// construction. Nil fields leave the current value untouched.
type RuntimeOptions struct {
	MaxSpanWidth    *int
	TopSpanRatio    *float64
	UseGoldMentions *bool
	MaxEntities     *int
	UseTopK         *bool
}

// IsZero reports whether no option is set
func (o RuntimeOptions) IsZero() bool {
	return o.MaxSpanWidth == nil && o.TopSpanRatio == nil && o.UseGoldMentions == nil &&
		o.MaxEntities == nil && o.UseTopK == nil
}

// Model is the incremental coreference model
type Model interface {
	ForwardTraining(ctx context.Context, ex *domain.Example) (TrainingOutput, error)
	Infer(ctx context.Context, ex *domain.Example) (*Inference, error)

	// Parameters returns the encoder parameters and the task parameters.
	Parameters() (encoder, task []Parameter)
	Tokenizer() Tokenizer

	StateDict() (StateDict, error)
	LoadStateDict(sd StateDict) (LoadReport, error)
	// IsEncoderKey reports whether a state-dict key belongs to the
	// pretrained encoder.
	IsEncoderKey(key string) bool

	SetTrainMode()
	SetEvalMode()
	Configure(opts RuntimeOptions)
}

// FactoryOptions carries controller-owned resources into model construction
type FactoryOptions struct {
	FineTune bool
	RNG      *rand.Rand
	Backend  Backend
}

// Factory builds a model from a hyperparameter record. When evaluating a
// saved model the record is the configured one merged with the checkpoint's:
// configured integer keys keep their type, but numbers known only to the
// checkpoint arrive as float64.
type Factory func(hp domain.Hyperparameters, opts FactoryOptions) (Model, error)
