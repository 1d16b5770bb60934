package oracle

import (
	"github.com/ksteimel/fast-coref/internal/model"
)

// NullBackend is a tensor runtime with nothing to compute
type NullBackend struct{}

func (NullBackend) NewOptimizer(model.OptimizerSpec) (model.Optimizer, error) {
	return nullOptimizer{}, nil
}

func (NullBackend) NewGradScaler() model.GradScaler { return nullScaler{} }

func (NullBackend) Autocast(fn func() error) error { return fn() }

func (NullBackend) ClipGradNorm([]model.Parameter, float64) float64 { return 0 }

func (NullBackend) MaxMemoryAllocated() uint64 { return 0 }

func (NullBackend) ResetPeakMemoryStats() {}

type nullOptimizer struct{}

func (nullOptimizer) ZeroGrad()                {}
func (nullOptimizer) SetLRScale(float64)       {}
func (nullOptimizer) State() ([]byte, error)   { return []byte("{}"), nil }
func (nullOptimizer) LoadState(b []byte) error { return nil }

type nullScaler struct{}

func (nullScaler) Scale(loss model.Loss) model.Loss { return loss }
func (nullScaler) Unscale(model.Optimizer) error    { return nil }
func (nullScaler) Step(model.Optimizer) error       { return nil }
func (nullScaler) Update()                          {}
func (nullScaler) State() ([]byte, error)           { return []byte("{}"), nil }
func (nullScaler) LoadState([]byte) error           { return nil }
