package checkpoint

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ksteimel/fast-coref/internal/domain"
	"github.com/ksteimel/fast-coref/internal/model"
	"github.com/ksteimel/fast-coref/internal/optim"
	apperrors "github.com/ksteimel/fast-coref/internal/pkg/errors"
	"github.com/ksteimel/fast-coref/internal/pkg/rng"
	"github.com/ksteimel/fast-coref/internal/pkg/storage"
	"github.com/ksteimel/fast-coref/internal/testutil"
)

type fixture struct {
	manager *Manager
	store   *storage.LocalStore
	state   State
	model   *testutil.FakeModel
	backend *testutil.FakeBackend
}

func newFixture(t *testing.T, fineTune bool) *fixture {
	t.Helper()
	store := storage.NewLocalStore(t.TempDir())
	return newFixtureWithStore(t, store, fineTune)
}

func newFixtureWithStore(t *testing.T, store *storage.LocalStore, fineTune bool) *fixture {
	t.Helper()
	handle := rng.New(7)
	m, err := testutil.NewFakeModel(domain.Hyperparameters{"encoder": "longformer"}, model.FactoryOptions{
		FineTune: fineTune, RNG: handle.Global,
	})
	require.NoError(t, err)

	backend := testutil.NewFakeBackend()
	enc, task := m.Parameters()
	coord, err := optim.NewCoordinator(backend, enc, task, optim.Config{
		InitLR: 2e-4, FineTuneLR: 1e-5, TotalSteps: 100, FineTune: fineTune,
	})
	require.NoError(t, err)

	return &fixture{
		manager: NewManager(zap.NewNop(), Locations{Last: store, Best: store.Sub("best")}, fineTune),
		store:   store,
		model:   m.(*testutil.FakeModel),
		backend: backend,
		state: State{
			Model:           m,
			Coordinator:     coord,
			Scaler:          backend.NewGradScaler(),
			RNG:             handle,
			TrainInfo:       &domain.TrainInfo{},
			Hyperparameters: domain.Hyperparameters{"encoder": "longformer"},
		},
	}
}

func TestCodec_RoundTrip(t *testing.T) {
	require.NotNil(t, encoder)
	require.NotNil(t, decoder)

	in := &domain.Checkpoint{
		Version:   domain.CheckpointVersion,
		Slot:      domain.SlotLast,
		TrainInfo: domain.TrainInfo{ValPerf: 70.1, GlobalSteps: 12},
		Model:     map[string][]byte{"memory.bias": []byte("w")},
		Epoch:     &domain.EpochProgress{Epoch: 1, Order: []int{1, 0}, Position: 1},
	}
	data, err := Encode(in)
	require.NoError(t, err)

	out, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, in.TrainInfo, out.TrainInfo)
	assert.Equal(t, in.Model, out.Model)
	assert.Equal(t, in.Epoch, out.Epoch)
}

func TestCodec_RejectsFutureVersion(t *testing.T) {
	data, err := Encode(&domain.Checkpoint{Version: domain.CheckpointVersion + 1})
	require.NoError(t, err)

	_, err = Decode(data)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeUnsupportedVersion))
}

func TestCodec_RejectsGarbage(t *testing.T) {
	_, err := Decode([]byte("not zstd"))
	assert.Error(t, err)
}

func TestSave_LastRoundTrip(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)

	*f.state.TrainInfo = domain.TrainInfo{ValPerf: 61.5, GlobalSteps: 40, NumStuckEvals: 1}
	f.model.Weights["memory.bias"] = []byte("trained")
	scaler := &testutil.FakeScaler{}
	for i := 0; i < 3; i++ {
		require.NoError(t, f.state.Coordinator.Step(scaler))
	}
	f.state.RNG.Global.Float64()
	require.NoError(t, f.manager.Save(ctx, domain.SlotLast, f.state))
	wantNext := f.state.RNG.Global.Float64()

	g := newFixtureWithStore(t, f.store, true)
	cp, err := g.manager.Load(ctx, domain.SlotLast, g.state)
	require.NoError(t, err)

	assert.Equal(t, domain.TrainInfo{ValPerf: 61.5, GlobalSteps: 40, NumStuckEvals: 1}, *g.state.TrainInfo)
	assert.Equal(t, []byte("trained"), g.model.Weights["memory.bias"])
	assert.Equal(t, wantNext, g.state.RNG.Global.Float64())
	assert.Equal(t, 3, g.backend.Optimizers[0].Steps)
	assert.Equal(t, 3, g.state.Coordinator.Schedule(domain.ParamGroupDoc).Steps())
	assert.Len(t, cp.OptimizerState, 2)
}

func TestSave_LastKeepsEpochProgress(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)
	f.state.Epoch = &domain.EpochProgress{Epoch: 2, Order: []int{2, 0, 1}, Position: 1}
	require.NoError(t, f.manager.Save(ctx, domain.SlotLast, f.state))
	require.NoError(t, f.manager.Save(ctx, domain.SlotBest, f.state))

	best, err := f.manager.Peek(ctx, domain.SlotBest)
	require.NoError(t, err)
	assert.Nil(t, best.Epoch)

	g := newFixtureWithStore(t, f.store, true)
	g.state.Epoch = &domain.EpochProgress{}
	_, err = g.manager.Load(ctx, domain.SlotLast, g.state)
	require.NoError(t, err)
	assert.Equal(t, domain.EpochProgress{Epoch: 2, Order: []int{2, 0, 1}, Position: 1}, *g.state.Epoch)
}

func TestLoad_LastWithoutEpochResetsProgress(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)
	require.NoError(t, f.manager.Save(ctx, domain.SlotLast, f.state))

	g := newFixtureWithStore(t, f.store, true)
	g.state.Epoch = &domain.EpochProgress{Epoch: 5, Order: []int{0}, Position: 1}
	cp, err := g.manager.Load(ctx, domain.SlotLast, g.state)
	require.NoError(t, err)
	assert.Nil(t, cp.Epoch)
	assert.False(t, g.state.Epoch.Active())
}

func TestSave_BestHasNoOptimizerState(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)
	require.NoError(t, f.manager.Save(ctx, domain.SlotBest, f.state))

	cp, err := f.manager.Peek(ctx, domain.SlotBest)
	require.NoError(t, err)
	assert.Nil(t, cp.OptimizerState)
	assert.Nil(t, cp.SchedulerState)
	assert.True(t, cp.HasRNG())
	assert.Equal(t, "longformer", cp.Hyperparameters["encoder"])
}

func TestSave_FrozenEncoderExcluded(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)
	require.NoError(t, f.manager.Save(ctx, domain.SlotBest, f.state))

	cp, err := f.manager.Peek(ctx, domain.SlotBest)
	require.NoError(t, err)
	for key := range cp.Model {
		assert.False(t, f.model.IsEncoderKey(key), key)
	}
	assert.Contains(t, cp.Model, "mention_mlp.weight")

	// The missing encoder weights are tolerated on load.
	g := newFixtureWithStore(t, f.store, false)
	_, err = g.manager.Load(ctx, domain.SlotBest, g.state)
	assert.NoError(t, err)
}

func TestLoad_BestMissingRequiredWeight(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)
	delete(f.model.Weights, "memory.bias")
	require.NoError(t, f.manager.Save(ctx, domain.SlotBest, f.state))

	g := newFixtureWithStore(t, f.store, false)
	_, err := g.manager.Load(ctx, domain.SlotBest, g.state)
	require.Error(t, err)
	assert.True(t, apperrors.IsWeightMismatch(err))
}

func TestLoad_BestKeepsTrainInfo(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)
	f.state.TrainInfo.ValPerf = 70
	require.NoError(t, f.manager.Save(ctx, domain.SlotBest, f.state))

	g := newFixtureWithStore(t, f.store, true)
	cp, err := g.manager.Load(ctx, domain.SlotBest, g.state)
	require.NoError(t, err)
	assert.Equal(t, 70.0, cp.TrainInfo.ValPerf)
	assert.Equal(t, 0.0, g.state.TrainInfo.ValPerf)
}

func TestLoad_LastWithoutRNG(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)
	f.state.RNG = nil
	require.NoError(t, f.manager.Save(ctx, domain.SlotLast, f.state))

	g := newFixtureWithStore(t, f.store, true)
	_, err := g.manager.Load(ctx, domain.SlotLast, g.state)
	require.Error(t, err)
	assert.True(t, apperrors.IsMissingRNGState(err))
}

func TestLoad_Missing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)

	exists, err := f.manager.Exists(ctx, domain.SlotLast)
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = f.manager.Load(ctx, domain.SlotBest, f.state)
	assert.True(t, apperrors.IsCheckpointNotFound(err))
}
