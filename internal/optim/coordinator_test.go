package optim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ksteimel/fast-coref/internal/domain"
	"github.com/ksteimel/fast-coref/internal/model"
	"github.com/ksteimel/fast-coref/internal/testutil"
)

func names(params []model.Parameter) []string {
	out := make([]string, len(params))
	for i, p := range params {
		out[i] = p.Name()
	}
	return out
}

func TestSplitWeightDecay(t *testing.T) {
	sets := SplitWeightDecay(testutil.EncoderParams, 1e-5, DefaultWeightDecay)
	require.Len(t, sets, 2)

	assert.Equal(t, []string{"encoder.layer.0.weight"}, names(sets[0].Params))
	assert.Equal(t, DefaultWeightDecay, sets[0].WeightDecay)

	assert.Equal(t, []string{"encoder.layer.0.bias", "encoder.LayerNorm.weight"}, names(sets[1].Params))
	assert.Equal(t, 0.0, sets[1].WeightDecay)
	assert.Equal(t, 1e-5, sets[1].LR)
}

func TestCoordinator_Groups(t *testing.T) {
	tests := []struct {
		name     string
		fineTune bool
		want     []domain.ParamGroup
	}{
		{"frozen encoder", false, []domain.ParamGroup{domain.ParamGroupMem}},
		{"fine-tuning", true, []domain.ParamGroup{domain.ParamGroupMem, domain.ParamGroupDoc}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := testutil.NewFakeBackend()
			c, err := NewCoordinator(backend, testutil.EncoderParams, testutil.TaskParams, Config{
				InitLR: 2e-4, FineTuneLR: 1e-5, TotalSteps: 100, FineTune: tt.fineTune,
			})
			require.NoError(t, err)
			assert.Equal(t, tt.want, c.Groups())
			assert.Len(t, backend.Optimizers, len(tt.want))

			mem := backend.Optimizers[0]
			assert.Equal(t, model.OptimizerAdam, mem.Spec.Kind)
			assert.Equal(t, 1e-6, mem.Spec.Eps)
			assert.Equal(t, 1.0, mem.LRScale)
		})
	}
}

func TestCoordinator_DocWarmup(t *testing.T) {
	backend := testutil.NewFakeBackend()
	c, err := NewCoordinator(backend, testutil.EncoderParams, testutil.TaskParams, Config{
		InitLR: 2e-4, FineTuneLR: 1e-5, TotalSteps: 100, FineTune: true,
	})
	require.NoError(t, err)

	doc := backend.Optimizers[1]
	assert.Equal(t, model.OptimizerAdamW, doc.Spec.Kind)
	assert.Equal(t, 10, c.Schedule(domain.ParamGroupDoc).State().WarmupSteps)
	assert.Equal(t, 0.0, doc.LRScale)

	scaler := &testutil.FakeScaler{}
	for i := 0; i < 5; i++ {
		c.ZeroGrad()
		require.NoError(t, c.Unscale(scaler))
		require.NoError(t, c.Step(scaler))
	}
	assert.InDelta(t, 0.5, doc.LRScale, 1e-12)
	assert.InDelta(t, 0.95, backend.Optimizers[0].LRScale, 1e-12)
	assert.Equal(t, 5, doc.Steps)
	assert.Equal(t, 5, doc.ZeroGrads)
	assert.Equal(t, 10, scaler.Unscaled)
}

func TestCoordinator_StateRestore(t *testing.T) {
	cfg := Config{InitLR: 2e-4, FineTuneLR: 1e-5, TotalSteps: 100, FineTune: true}
	c, err := NewCoordinator(testutil.NewFakeBackend(), testutil.EncoderParams, testutil.TaskParams, cfg)
	require.NoError(t, err)

	scaler := &testutil.FakeScaler{}
	for i := 0; i < 7; i++ {
		require.NoError(t, c.Step(scaler))
	}
	opts, scheds, err := c.State()
	require.NoError(t, err)
	assert.Len(t, opts, 2)
	assert.Equal(t, 7, scheds[domain.ParamGroupDoc].Step)

	backend := testutil.NewFakeBackend()
	restored, err := NewCoordinator(backend, testutil.EncoderParams, testutil.TaskParams, cfg)
	require.NoError(t, err)
	require.NoError(t, restored.Restore(opts, scheds))

	assert.Equal(t, 7, backend.Optimizers[1].Steps)
	assert.Equal(t, c.Schedule(domain.ParamGroupDoc).Multiplier(), backend.Optimizers[1].LRScale)
}

func TestCoordinator_RestoreMissingGroup(t *testing.T) {
	c, err := NewCoordinator(testutil.NewFakeBackend(), testutil.EncoderParams, testutil.TaskParams, Config{
		InitLR: 2e-4, FineTuneLR: 1e-5, TotalSteps: 100, FineTune: true,
	})
	require.NoError(t, err)

	err = c.Restore(
		map[domain.ParamGroup][]byte{domain.ParamGroupMem: []byte(`{"steps":1}`)},
		map[domain.ParamGroup]domain.ScheduleState{domain.ParamGroupMem: {Step: 1}},
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "doc")
}
