package model

// OptimizerKind selects the update rule
type OptimizerKind string

const (
	OptimizerAdam  OptimizerKind = "adam"
	OptimizerAdamW OptimizerKind = "adamw"
)

// ParamSet is a slice of parameters sharing learning rate and weight decay
type ParamSet struct {
	Params      []Parameter
	LR          float64
	WeightDecay float64
}

// OptimizerSpec describes an optimizer to be built by the backend
type OptimizerSpec struct {
	Kind OptimizerKind
	Sets []ParamSet
	Eps  float64
}

// Optimizer updates a set of parameters from their gradients
type Optimizer interface {
	ZeroGrad()
	// SetLRScale multiplies every set's base learning rate by scale.
	SetLRScale(scale float64)
	State() ([]byte, error)
	LoadState(state []byte) error
}

// GradScaler implements dynamic loss scaling for reduced-precision training
type GradScaler interface {
	Scale(loss Loss) Loss
	Unscale(opt Optimizer) error
	// Step applies the optimizer update unless the unscaled gradients
	// contain infs or NaNs.
	Step(opt Optimizer) error
	Update()
	State() ([]byte, error)
	LoadState(state []byte) error
}

// Backend is the tensor runtime
type Backend interface {
	NewOptimizer(spec OptimizerSpec) (Optimizer, error)
	NewGradScaler() GradScaler
	// Autocast runs fn with reduced-precision computation enabled.
	Autocast(fn func() error) error
	// ClipGradNorm rescales gradients so their joint norm is at most
	// maxNorm and returns the norm before clipping.
	ClipGradNorm(params []Parameter, maxNorm float64) float64
	MaxMemoryAllocated() uint64
	ResetPeakMemoryStats()
}

// BackendFactory builds a backend
type BackendFactory func() (Backend, error)
