// Package experiment drives a fast-coref run: training with periodic
// evaluation and early stopping, checkpointing, and the final evaluation
// of the best model.
package experiment

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ksteimel/fast-coref/internal/checkpoint"
	"github.com/ksteimel/fast-coref/internal/config"
	"github.com/ksteimel/fast-coref/internal/data"
	"github.com/ksteimel/fast-coref/internal/domain"
	"github.com/ksteimel/fast-coref/internal/model"
	"github.com/ksteimel/fast-coref/internal/optim"
	apperrors "github.com/ksteimel/fast-coref/internal/pkg/errors"
	"github.com/ksteimel/fast-coref/internal/pkg/rng"
	"github.com/ksteimel/fast-coref/internal/pkg/storage"
	"github.com/ksteimel/fast-coref/internal/scorer"
)

// Deps are the collaborators of an experiment. Logger, Scorer and
// Checkpoints fall back to defaults derived from the configuration.
type Deps struct {
	Logger       *zap.Logger
	ModelFactory model.Factory
	Backend      model.Backend
	Tensorizer   data.TensorizerFactory
	Scorer       scorer.Scorer
	Checkpoints  checkpoint.Locations
	Sinks        []ResultSink
}

// Experiment owns the model, optimizers, checkpoints and progress of one
// run. It is not safe for concurrent use, except for Status.
type Experiment struct {
	cfg      *config.Config
	runID    string
	logger   *zap.Logger
	datasets []domain.DatasetSpec

	factory     model.Factory
	backend     model.Backend
	tensorizer  data.TensorizerFactory
	scorer      scorer.Scorer
	sinks       []ResultSink
	checkpoints *checkpoint.Manager
	loader      *data.Loader
	rng         *rng.Handle

	raw      map[domain.Split]map[string][]domain.RawDocument
	examples map[domain.Split]map[string][]*domain.Example

	model       model.Model
	hp          domain.Hyperparameters
	coordinator *optim.Coordinator
	scaler      model.GradScaler
	trainInfo   domain.TrainInfo
	epoch       domain.EpochProgress
	evalPerK    int
	totalSteps  int

	reports []*domain.PerformanceReport
	tracker tracker
}

// New validates the configuration and prepares an experiment
func New(cfg *config.Config, deps Deps) (*Experiment, error) {
	if cfg == nil {
		return nil, apperrors.InvalidConfig("configuration is required")
	}
	if deps.ModelFactory == nil {
		return nil, apperrors.InvalidConfig("model factory is required")
	}
	if deps.Backend == nil {
		return nil, apperrors.InvalidConfig("backend is required")
	}
	if deps.Tensorizer == nil {
		return nil, apperrors.InvalidConfig("tensorizer is required")
	}
	exp := cfg.Experiment
	if exp.ModelDir == "" {
		return nil, apperrors.InvalidConfig("model_dir is required")
	}
	if len(cfg.Datasets) == 0 {
		return nil, apperrors.InvalidConfig("at least one dataset is required")
	}
	if exp.MaxEvals < 1 || exp.Patience < 1 || exp.UpdateFrequency < 1 {
		return nil, apperrors.InvalidConfig("max_evals, patience and update_frequency must be positive")
	}

	runID := exp.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("run_id", runID))

	sc := deps.Scorer
	if sc == nil {
		sc = scorer.NewExternal(scorer.Config{
			Path:    cfg.Eval.ConllScorer,
			Timeout: cfg.Eval.ScorerTimeout,
		}, logger)
	}

	locations := deps.Checkpoints
	if locations.Last == nil {
		locations.Last = storage.NewLocalStore(exp.ModelDir)
	}
	if locations.Best == nil {
		bestDir := exp.BestModelDir
		if bestDir == "" {
			bestDir = filepath.Join(exp.ModelDir, "best")
		}
		locations.Best = storage.NewLocalStore(bestDir)
	}

	e := &Experiment{
		cfg:         cfg,
		runID:       runID,
		logger:      logger,
		datasets:    cfg.DatasetSpecs(),
		factory:     deps.ModelFactory,
		backend:     deps.Backend,
		tensorizer:  deps.Tensorizer,
		scorer:      sc,
		sinks:       deps.Sinks,
		checkpoints: checkpoint.NewManager(logger, locations, cfg.FineTune()),
		loader: data.NewLoader(data.Options{
			MaxSegmentLen:  exp.MaxSegmentLen,
			NumEvalDocs:    exp.NumEvalDocs,
			SkipDialogData: exp.SkipDialogData,
		}, logger),
		rng:      rng.New(exp.Seed),
		raw:      make(map[domain.Split]map[string][]domain.RawDocument),
		examples: make(map[domain.Split]map[string][]*domain.Example),
	}
	e.tracker.status = Status{RunID: runID, State: StateInitializing}
	return e, nil
}

// RunID returns the identifier of this run
func (e *Experiment) RunID() string {
	return e.runID
}

// Datasets returns the resolved datasets in configuration order
func (e *Experiment) Datasets() []domain.DatasetSpec {
	return e.datasets
}

// Status returns a snapshot of the run's progress
func (e *Experiment) Status() Status {
	return e.tracker.snapshot()
}

// Reports returns the final performance reports, one per dataset
func (e *Experiment) Reports() []*domain.PerformanceReport {
	return e.reports
}

// Run executes the experiment: training when configured and still
// needed, then the final evaluation of the best model.
func (e *Experiment) Run(ctx context.Context) (err error) {
	e.tracker.update(func(s *Status) {
		s.State = StateInitializing
		s.StartedAt = time.Now().UTC()
	})
	defer func() {
		if err != nil {
			e.tracker.update(func(s *Status) {
				s.State = StateFailed
				s.Error = err.Error()
			})
		}
	}()

	names := make([]string, len(e.datasets))
	for i, ds := range e.datasets {
		names[i] = ds.Name
	}
	e.logger.Info("Starting experiment",
		zap.String("model_dir", e.cfg.Experiment.ModelDir),
		zap.Strings("datasets", names),
		zap.Bool("eval_model", e.cfg.Experiment.EvalModel),
		zap.Bool("fine_tune", e.cfg.FineTune()),
	)

	if err := e.loadData(); err != nil {
		return err
	}

	doTrain := false
	if !e.cfg.Experiment.EvalModel {
		if doTrain, err = e.setupTraining(ctx); err != nil {
			return err
		}
	}
	if !doTrain {
		if err := e.setupEval(ctx); err != nil {
			return err
		}
	}

	if err := e.tensorize(); err != nil {
		return err
	}

	if doTrain {
		if err := e.train(ctx); err != nil {
			return err
		}
		if err := e.loadBest(ctx); err != nil {
			return err
		}
	}

	if err := e.finalEval(ctx); err != nil {
		return err
	}
	e.tracker.update(func(s *Status) { s.State = StateStopped })
	e.logger.Info("Experiment finished")
	return nil
}

func (e *Experiment) loadData() error {
	splits := []domain.Split{domain.SplitTrain, domain.SplitDev, domain.SplitTest}
	if e.cfg.Experiment.EvalModel {
		splits = []domain.Split{domain.SplitTest}
	}
	for _, split := range splits {
		e.raw[split] = make(map[string][]domain.RawDocument, len(e.datasets))
	}

	for _, ds := range e.datasets {
		docs, err := e.loader.Load(ds, splits...)
		if err != nil {
			return fmt.Errorf("failed to load dataset %s: %w", ds.Name, err)
		}
		fields := []zap.Field{zap.String("dataset", ds.Name), zap.Int("cluster_threshold", ds.ClusterThreshold)}
		for _, split := range splits {
			e.raw[split][ds.Name] = docs[split]
			fields = append(fields, zap.Int(string(split), len(docs[split])))
		}
		e.logger.Info("Loaded dataset", fields...)
	}
	return nil
}

func (e *Experiment) tensorize() error {
	tz := e.tensorizer(e.model.Tokenizer(), e.cfg.Experiment.RemoveSingletons)
	for split, byDataset := range e.raw {
		e.examples[split] = make(map[string][]*domain.Example, len(byDataset))
		for name, docs := range byDataset {
			examples, err := tz.Tensorize(docs, split == domain.SplitTrain)
			if err != nil {
				return fmt.Errorf("failed to tensorize %s %s: %w", name, split, err)
			}
			e.examples[split][name] = examples
		}
	}
	e.raw = nil
	return nil
}

func (e *Experiment) factoryOptions() model.FactoryOptions {
	return model.FactoryOptions{
		FineTune: e.cfg.FineTune(),
		RNG:      e.rng.Global,
		Backend:  e.backend,
	}
}

func (e *Experiment) buildModel(hp domain.Hyperparameters) error {
	m, err := e.factory(hp, e.factoryOptions())
	if err != nil {
		return fmt.Errorf("failed to build model: %w", err)
	}
	e.model = m
	e.hp = hp
	return nil
}

func (e *Experiment) checkpointState() checkpoint.State {
	return checkpoint.State{
		Model:           e.model,
		Coordinator:     e.coordinator,
		Scaler:          e.scaler,
		RNG:             e.rng,
		TrainInfo:       &e.trainInfo,
		Hyperparameters: e.hp,
		Epoch:           &e.epoch,
	}
}

// setupTraining builds the model and optimizers and resumes from the last
// checkpoint when there is one. It reports whether training still has
// steps to take.
func (e *Experiment) setupTraining(ctx context.Context) (bool, error) {
	exp := e.cfg.Experiment
	if err := e.buildModel(e.cfg.Model.Hyperparameters.Clone()); err != nil {
		return false, err
	}

	pooled := 0
	for _, docs := range e.raw[domain.SplitTrain] {
		pooled += len(docs)
	}
	if pooled == 0 {
		return false, apperrors.InvalidConfig("no training documents were loaded")
	}
	e.evalPerK = exp.EvalPerKSteps
	if e.evalPerK == 0 {
		e.evalPerK = pooled
	}
	e.totalSteps = e.evalPerK * exp.MaxEvals

	encoder, task := e.model.Parameters()
	coordinator, err := optim.NewCoordinator(e.backend, encoder, task, optim.Config{
		InitLR:     e.cfg.Optim.InitLR,
		FineTuneLR: e.cfg.Optim.FineTuneLR,
		TotalSteps: e.totalSteps,
		FineTune:   e.cfg.FineTune(),
	})
	if err != nil {
		return false, err
	}
	e.coordinator = coordinator
	e.scaler = e.backend.NewGradScaler()

	encoderCount, taskCount := model.CountParameters(encoder), model.CountParameters(task)
	e.logger.Info("Model info",
		zap.Int("encoder_params", encoderCount),
		zap.Int("task_params", taskCount),
		zap.Int("total_params", encoderCount+taskCount),
		zap.Int("eval_per_k_steps", e.evalPerK),
		zap.Int("total_steps", e.totalSteps),
	)

	exists, err := e.checkpoints.Exists(ctx, domain.SlotLast)
	if err != nil {
		return false, err
	}
	if exists {
		if _, err := e.checkpoints.Load(ctx, domain.SlotLast, e.checkpointState()); err != nil {
			return false, err
		}
	}
	e.publishProgress()

	if e.trainInfo.Done(exp.Patience, e.totalSteps) {
		e.logger.Info("Training already finished",
			zap.Int("global_steps", e.trainInfo.GlobalSteps),
			zap.Int("num_stuck_evals", e.trainInfo.NumStuckEvals),
		)
		return false, nil
	}
	return true, nil
}

// setupEval rebuilds the model from the best checkpoint. Hyperparameters
// persisted with the checkpoint take precedence over configured ones.
func (e *Experiment) setupEval(ctx context.Context) error {
	cp, err := e.checkpoints.Peek(ctx, domain.SlotBest)
	if err != nil {
		return err
	}
	if err := e.buildModel(e.cfg.Model.Hyperparameters.Merge(cp.Hyperparameters)); err != nil {
		return err
	}
	if err := e.checkpoints.Apply(cp, checkpoint.State{Model: e.model}); err != nil {
		return err
	}

	opts := e.cfg.Eval.RuntimeOptions()
	e.model.Configure(opts)
	e.logger.Info("Loading best model",
		zap.Int("global_steps", cp.TrainInfo.GlobalSteps),
		zap.Float64("val_perf", cp.TrainInfo.ValPerf),
		zap.Bool("runtime_overrides", !opts.IsZero()),
	)
	return nil
}

func (e *Experiment) loadBest(ctx context.Context) error {
	exists, err := e.checkpoints.Exists(ctx, domain.SlotBest)
	if err != nil {
		return err
	}
	if !exists {
		e.logger.Warn("No best checkpoint was saved, evaluating the final weights")
		return nil
	}
	_, err = e.checkpoints.Load(ctx, domain.SlotBest, checkpoint.State{Model: e.model})
	return err
}

func (e *Experiment) publishProgress() {
	info := e.trainInfo
	total := e.totalSteps
	e.tracker.update(func(s *Status) {
		s.TrainInfo = info
		s.TotalSteps = total
	})
}

func (e *Experiment) setState(state State) {
	e.tracker.update(func(s *Status) { s.State = state })
}
