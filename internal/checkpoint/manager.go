// Package checkpoint saves and restores the two experiment checkpoint
// slots.
//
// The "last" slot is fully resumable: model weights, every optimizer and
// schedule, the gradient scaler, TrainInfo and both RNG streams. The "best"
// slot holds what is needed to rebuild the model for evaluation. Encoder
// weights are left out of both when the encoder is frozen, since they can
// be reloaded from the pretrained encoder.
package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ksteimel/fast-coref/internal/domain"
	"github.com/ksteimel/fast-coref/internal/model"
	"github.com/ksteimel/fast-coref/internal/optim"
	apperrors "github.com/ksteimel/fast-coref/internal/pkg/errors"
	"github.com/ksteimel/fast-coref/internal/pkg/metrics"
	"github.com/ksteimel/fast-coref/internal/pkg/rng"
	"github.com/ksteimel/fast-coref/internal/pkg/storage"
)

// ObjectName is the key a checkpoint is stored under within its slot's store
const ObjectName = "model.ckpt"

// Locations maps each slot to the store holding it
type Locations struct {
	Last storage.Store
	Best storage.Store
}

// State gathers the live objects a checkpoint captures. Coordinator and
// Scaler are nil when only evaluating.
type State struct {
	Model           model.Model
	Coordinator     *optim.Coordinator
	Scaler          model.GradScaler
	RNG             *rng.Handle
	TrainInfo       *domain.TrainInfo
	Hyperparameters domain.Hyperparameters
	// Epoch is saved into and restored from "last" checkpoints. A restore
	// from a checkpoint without epoch state resets it.
	Epoch *domain.EpochProgress
}

// Manager reads and writes checkpoints
type Manager struct {
	logger    *zap.Logger
	locations Locations
	fineTune  bool
	now       func() time.Time
}

// NewManager creates a checkpoint manager
func NewManager(logger *zap.Logger, locations Locations, fineTune bool) *Manager {
	return &Manager{
		logger:    logger,
		locations: locations,
		fineTune:  fineTune,
		now:       time.Now,
	}
}

func (m *Manager) store(slot domain.Slot) (storage.Store, error) {
	switch slot {
	case domain.SlotLast:
		return m.locations.Last, nil
	case domain.SlotBest:
		return m.locations.Best, nil
	}
	return nil, apperrors.Internal(fmt.Sprintf("unknown checkpoint slot %q", slot))
}

// Location returns where a slot is stored, for logging
func (m *Manager) Location(slot domain.Slot) string {
	s, err := m.store(slot)
	if err != nil {
		return string(slot)
	}
	return s.Location(ObjectName)
}

// Exists reports whether a slot holds a checkpoint
func (m *Manager) Exists(ctx context.Context, slot domain.Slot) (bool, error) {
	s, err := m.store(slot)
	if err != nil {
		return false, err
	}
	return s.Exists(ctx, ObjectName)
}

// Save writes the current state into slot
func (m *Manager) Save(ctx context.Context, slot domain.Slot, st State) error {
	start := time.Now()
	s, err := m.store(slot)
	if err != nil {
		return err
	}

	weights, err := st.Model.StateDict()
	if err != nil {
		return fmt.Errorf("failed to collect model weights: %w", err)
	}
	if !m.fineTune {
		for key := range weights {
			if st.Model.IsEncoderKey(key) {
				delete(weights, key)
			}
		}
	}

	cp := &domain.Checkpoint{
		Version:         domain.CheckpointVersion,
		Slot:            slot,
		SavedAt:         m.now().UTC(),
		TrainInfo:       *st.TrainInfo,
		Model:           weights,
		Hyperparameters: st.Hyperparameters,
	}

	if st.Scaler != nil {
		if cp.ScalerState, err = st.Scaler.State(); err != nil {
			return fmt.Errorf("failed to collect scaler state: %w", err)
		}
	}
	if st.RNG != nil {
		if cp.RNGState, cp.NumericRNGState, err = st.RNG.Snapshot(); err != nil {
			return err
		}
	}
	if slot == domain.SlotLast && st.Coordinator != nil {
		if cp.OptimizerState, cp.SchedulerState, err = st.Coordinator.State(); err != nil {
			return err
		}
	}
	if slot == domain.SlotLast && st.Epoch.Active() {
		cp.Epoch = st.Epoch.Clone()
	}

	data, err := Encode(cp)
	if err != nil {
		return err
	}
	if err := s.Put(ctx, ObjectName, data); err != nil {
		return fmt.Errorf("failed to write %s checkpoint: %w", slot, err)
	}

	metrics.RecordCheckpoint(string(slot), "save", len(data), time.Since(start))
	m.logger.Info("Model saved",
		zap.String("slot", string(slot)),
		zap.String("location", s.Location(ObjectName)),
		zap.Int("bytes", len(data)),
		zap.Int("global_steps", cp.TrainInfo.GlobalSteps),
	)
	return nil
}

// Peek reads a checkpoint without applying it
func (m *Manager) Peek(ctx context.Context, slot domain.Slot) (*domain.Checkpoint, error) {
	s, err := m.store(slot)
	if err != nil {
		return nil, err
	}
	data, err := s.Get(ctx, ObjectName)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apperrors.CheckpointNotFound(string(slot))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s checkpoint: %w", slot, err)
	}
	return Decode(data)
}

// Load reads slot and applies it to st.
//
// Weights are restored leniently. For "last" every optimizer, schedule,
// the scaler, TrainInfo and both RNG streams are restored too, and a
// checkpoint without RNG state is rejected. For "best" a missing weight the
// model cannot do without is rejected, and TrainInfo is left untouched.
func (m *Manager) Load(ctx context.Context, slot domain.Slot, st State) (*domain.Checkpoint, error) {
	start := time.Now()
	cp, err := m.Peek(ctx, slot)
	if err != nil {
		return nil, err
	}
	if err := m.Apply(cp, st); err != nil {
		return nil, err
	}
	metrics.RecordCheckpoint(string(slot), "load", 0, time.Since(start))
	return cp, nil
}

// Apply restores an already read checkpoint into st, following the rules
// of its slot.
func (m *Manager) Apply(cp *domain.Checkpoint, st State) error {
	slot := cp.Slot
	if slot == domain.SlotLast && !cp.HasRNG() {
		return apperrors.MissingRNGState(string(slot))
	}

	report, err := st.Model.LoadStateDict(cp.Model)
	if err != nil {
		return fmt.Errorf("failed to restore model weights: %w", err)
	}
	if required := m.requiredMissing(st.Model, report.Missing); len(required) > 0 {
		if slot == domain.SlotBest {
			return apperrors.WeightMismatch(required)
		}
		m.logger.Warn("Checkpoint is missing weights", zap.Strings("keys", required))
	}
	if len(report.Unexpected) > 0 {
		m.logger.Debug("Ignoring unexpected checkpoint weights", zap.Strings("keys", report.Unexpected))
	}

	if slot == domain.SlotLast {
		if err := m.restoreTraining(cp, st); err != nil {
			return err
		}
	}

	m.logger.Info("Loaded model",
		zap.String("slot", string(slot)),
		zap.String("location", m.Location(slot)),
		zap.Float64("val_perf", cp.TrainInfo.ValPerf),
		zap.Int("global_steps", cp.TrainInfo.GlobalSteps),
	)
	return nil
}

func (m *Manager) restoreTraining(cp *domain.Checkpoint, st State) error {
	if st.Coordinator != nil {
		if err := st.Coordinator.Restore(cp.OptimizerState, cp.SchedulerState); err != nil {
			return fmt.Errorf("failed to restore optimizers: %w", err)
		}
	}
	if st.Scaler != nil && len(cp.ScalerState) > 0 {
		if err := st.Scaler.LoadState(cp.ScalerState); err != nil {
			return fmt.Errorf("failed to restore scaler: %w", err)
		}
	}
	if st.RNG != nil {
		if err := st.RNG.Restore(cp.RNGState, cp.NumericRNGState); err != nil {
			return err
		}
	}
	if st.TrainInfo != nil {
		*st.TrainInfo = cp.TrainInfo
	}
	if st.Epoch != nil {
		*st.Epoch = domain.EpochProgress{}
		if cp.Epoch.Active() {
			*st.Epoch = *cp.Epoch.Clone()
		}
	}
	return nil
}

func (m *Manager) requiredMissing(mdl model.Model, missing []string) []string {
	var required []string
	for _, key := range missing {
		if !m.fineTune && mdl.IsEncoderKey(key) {
			continue
		}
		required = append(required, key)
	}
	return required
}
