package optim

import (
	"fmt"
	"strings"

	"github.com/ksteimel/fast-coref/internal/domain"
	"github.com/ksteimel/fast-coref/internal/model"
)

const (
	// DefaultWeightDecay is applied to encoder weights other than biases
	// and layer norm weights.
	DefaultWeightDecay = 0.01
	// WarmupFraction of the step budget is spent warming up the encoder.
	WarmupFraction = 0.1

	adamEps = 1e-6
)

var noDecaySuffixes = []string{"bias", "LayerNorm.weight"}

// SplitWeightDecay partitions params into a decayed set and a set exempt
// from weight decay. Empty sets are dropped.
func SplitWeightDecay(params []model.Parameter, lr, decay float64) []model.ParamSet {
	decayed := model.ParamSet{LR: lr, WeightDecay: decay}
	exempt := model.ParamSet{LR: lr}
	for _, p := range params {
		if hasNoDecaySuffix(p.Name()) {
			exempt.Params = append(exempt.Params, p)
		} else {
			decayed.Params = append(decayed.Params, p)
		}
	}

	var sets []model.ParamSet
	if len(decayed.Params) > 0 {
		sets = append(sets, decayed)
	}
	if len(exempt.Params) > 0 {
		sets = append(sets, exempt)
	}
	return sets
}

func hasNoDecaySuffix(name string) bool {
	for _, s := range noDecaySuffixes {
		if strings.Contains(name, s) {
			return true
		}
	}
	return false
}

// Config holds the learning rates and step budget for the coordinator
type Config struct {
	InitLR     float64
	FineTuneLR float64
	TotalSteps int
	FineTune   bool
}

type group struct {
	name      domain.ParamGroup
	optimizer model.Optimizer
	schedule  *LinearSchedule
}

// Coordinator drives the mem group and, when fine-tuning, the doc group in
// lockstep.
type Coordinator struct {
	groups []*group
}

// NewCoordinator builds one optimizer and schedule per parameter group
func NewCoordinator(backend model.Backend, encoder, task []model.Parameter, cfg Config) (*Coordinator, error) {
	memOpt, err := backend.NewOptimizer(model.OptimizerSpec{
		Kind: model.OptimizerAdam,
		Sets: []model.ParamSet{{Params: task, LR: cfg.InitLR}},
		Eps:  adamEps,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create mem optimizer: %w", err)
	}
	c := &Coordinator{}
	c.add(domain.ParamGroupMem, memOpt, NewLinearSchedule(cfg.InitLR, 0, cfg.TotalSteps))

	if cfg.FineTune {
		docOpt, err := backend.NewOptimizer(model.OptimizerSpec{
			Kind: model.OptimizerAdamW,
			Sets: SplitWeightDecay(encoder, cfg.FineTuneLR, DefaultWeightDecay),
			Eps:  adamEps,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create doc optimizer: %w", err)
		}
		warmup := int(WarmupFraction * float64(cfg.TotalSteps))
		c.add(domain.ParamGroupDoc, docOpt, NewLinearSchedule(cfg.FineTuneLR, warmup, cfg.TotalSteps))
	}
	return c, nil
}

func (c *Coordinator) add(name domain.ParamGroup, opt model.Optimizer, sched *LinearSchedule) {
	opt.SetLRScale(sched.Multiplier())
	c.groups = append(c.groups, &group{name: name, optimizer: opt, schedule: sched})
}

// Groups returns the active groups in their fixed order
func (c *Coordinator) Groups() []domain.ParamGroup {
	names := make([]domain.ParamGroup, len(c.groups))
	for i, g := range c.groups {
		names[i] = g.name
	}
	return names
}

// Schedule returns the schedule of a group, or nil if the group is inactive
func (c *Coordinator) Schedule(name domain.ParamGroup) *LinearSchedule {
	if g := c.lookup(name); g != nil {
		return g.schedule
	}
	return nil
}

func (c *Coordinator) lookup(name domain.ParamGroup) *group {
	for _, g := range c.groups {
		if g.name == name {
			return g
		}
	}
	return nil
}

// ZeroGrad clears the gradients of every group
func (c *Coordinator) ZeroGrad() {
	for _, g := range c.groups {
		g.optimizer.ZeroGrad()
	}
}

// Unscale divides every group's gradients by the current loss scale
func (c *Coordinator) Unscale(scaler model.GradScaler) error {
	for _, g := range c.groups {
		if err := scaler.Unscale(g.optimizer); err != nil {
			return fmt.Errorf("failed to unscale %s gradients: %w", g.name, err)
		}
	}
	return nil
}

// Step applies each group's optimizer through the scaler and then advances
// its schedule.
func (c *Coordinator) Step(scaler model.GradScaler) error {
	for _, g := range c.groups {
		if err := scaler.Step(g.optimizer); err != nil {
			return fmt.Errorf("failed to step %s optimizer: %w", g.name, err)
		}
		g.optimizer.SetLRScale(g.schedule.Step())
	}
	return nil
}

// State returns the optimizer and schedule state of every group
func (c *Coordinator) State() (map[domain.ParamGroup][]byte, map[domain.ParamGroup]domain.ScheduleState, error) {
	opts := make(map[domain.ParamGroup][]byte, len(c.groups))
	scheds := make(map[domain.ParamGroup]domain.ScheduleState, len(c.groups))
	for _, g := range c.groups {
		state, err := g.optimizer.State()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to save %s optimizer: %w", g.name, err)
		}
		opts[g.name] = state
		scheds[g.name] = g.schedule.State()
	}
	return opts, scheds, nil
}

// Restore loads every active group's state. Each active group must be
// present in both maps.
func (c *Coordinator) Restore(opts map[domain.ParamGroup][]byte, scheds map[domain.ParamGroup]domain.ScheduleState) error {
	for _, g := range c.groups {
		state, ok := opts[g.name]
		if !ok {
			return fmt.Errorf("no optimizer state for group %s", g.name)
		}
		sched, ok := scheds[g.name]
		if !ok {
			return fmt.Errorf("no scheduler state for group %s", g.name)
		}
		if err := g.optimizer.LoadState(state); err != nil {
			return fmt.Errorf("failed to restore %s optimizer: %w", g.name, err)
		}
		g.schedule.Restore(sched)
		g.optimizer.SetLRScale(g.schedule.Multiplier())
	}
	return nil
}
