package domain

import "time"

// CheckpointVersion is the current checkpoint schema version
const CheckpointVersion = 1

// Slot names one of the two checkpoint locations
type Slot string

const (
	// SlotLast is fully resumable: optimizer, scheduler and RNG state included
	SlotLast Slot = "last"
	// SlotBest is an evaluation snapshot of the best model so far
	SlotBest Slot = "best"
)

// IsValid checks if the slot is valid
func (s Slot) IsValid() bool {
	return s == SlotLast || s == SlotBest
}

// ParamGroup is one of the statically known optimizer parameter groups
type ParamGroup string

const (
	// ParamGroupMem holds the task-specific parameters; always present
	ParamGroupMem ParamGroup = "mem"
	// ParamGroupDoc holds the encoder parameters; present only when fine-tuning
	ParamGroupDoc ParamGroup = "doc"
)

// ScheduleState is the persisted form of a learning-rate schedule
type ScheduleState struct {
	Step        int     `json:"step"`
	BaseLR      float64 `json:"baseLr"`
	WarmupSteps int     `json:"warmupSteps"`
	TotalSteps  int     `json:"totalSteps"`
}

// EpochProgress records where in an epoch a "last" checkpoint was taken.
// Order holds the epoch's shuffled, truncated example order as indices into
// the unshuffled training pool; Position counts the examples consumed.
type EpochProgress struct {
	Epoch    int   `json:"epoch"`
	Order    []int `json:"order"`
	Position int   `json:"position"`
}

// Active reports whether an epoch is in progress
func (p *EpochProgress) Active() bool {
	return p != nil && p.Order != nil
}

// Clone returns a deep copy
func (p *EpochProgress) Clone() *EpochProgress {
	if p == nil {
		return nil
	}
	c := *p
	c.Order = append([]int(nil), p.Order...)
	return &c
}

// Checkpoint is the versioned bundle written by the checkpoint manager.
//
// Optional fields are nil when absent: a "best" checkpoint carries no
// optimizer, scheduler or epoch state. Decoding an absent map yields nil, and
// loaders treat a nil RNG state as missing.
type Checkpoint struct {
	Version int       `json:"version"`
	Slot    Slot      `json:"slot"`
	SavedAt time.Time `json:"savedAt"`

	TrainInfo       TrainInfo         `json:"trainInfo"`
	Model           map[string][]byte `json:"model"`
	ScalerState     []byte            `json:"scalerState,omitempty"`
	RNGState        []byte            `json:"rngState,omitempty"`
	NumericRNGState []byte            `json:"numericRngState,omitempty"`

	OptimizerState map[ParamGroup][]byte        `json:"optimizerState,omitempty"`
	SchedulerState map[ParamGroup]ScheduleState `json:"schedulerState,omitempty"`
	// Epoch is set on "last" checkpoints taken inside an epoch.
	Epoch *EpochProgress `json:"epoch,omitempty"`

	Hyperparameters Hyperparameters `json:"hyperparameters"`
}

// HasRNG reports whether both RNG snapshots are present
func (c *Checkpoint) HasRNG() bool {
	return len(c.RNGState) > 0 && len(c.NumericRNGState) > 0
}
