// Package optim coordinates the per-group optimizers and their learning
// rate schedules.
package optim

import (
	"github.com/ksteimel/fast-coref/internal/domain"
)

// LinearSchedule warms the learning rate up linearly from 0 over WarmupSteps
// and then decays it linearly to 0 at TotalSteps.
type LinearSchedule struct {
	baseLR float64
	warmup int
	total  int
	step   int
}

// NewLinearSchedule creates a schedule positioned at step 0
func NewLinearSchedule(baseLR float64, warmup, total int) *LinearSchedule {
	return &LinearSchedule{baseLR: baseLR, warmup: warmup, total: total}
}

// Multiplier returns the factor applied to the base learning rate at the
// current step.
func (s *LinearSchedule) Multiplier() float64 {
	if s.step < s.warmup {
		return float64(s.step) / float64(max(1, s.warmup))
	}
	return max(0, float64(s.total-s.step)/float64(max(1, s.total-s.warmup)))
}

// LR returns the effective learning rate
func (s *LinearSchedule) LR() float64 {
	return s.baseLR * s.Multiplier()
}

// Step advances the schedule by one optimizer step and returns the new multiplier
func (s *LinearSchedule) Step() float64 {
	s.step++
	return s.Multiplier()
}

// Steps returns how many steps have been taken
func (s *LinearSchedule) Steps() int {
	return s.step
}

// State returns the persisted form of the schedule
func (s *LinearSchedule) State() domain.ScheduleState {
	return domain.ScheduleState{
		Step:        s.step,
		BaseLR:      s.baseLR,
		WarmupSteps: s.warmup,
		TotalSteps:  s.total,
	}
}

// Restore repositions the schedule from a persisted state
func (s *LinearSchedule) Restore(state domain.ScheduleState) {
	s.step = state.Step
	s.baseLR = state.BaseLR
	s.warmup = state.WarmupSteps
	s.total = state.TotalSteps
}
