package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTrainInfo_RecordEval(t *testing.T) {
	var info TrainInfo

	assert.True(t, info.RecordEval(40))
	assert.False(t, info.RecordEval(40))
	assert.False(t, info.RecordEval(35))
	assert.Equal(t, 2, info.NumStuckEvals)
	assert.Equal(t, 40.0, info.ValPerf)

	assert.True(t, info.RecordEval(40.1))
	assert.Equal(t, 0, info.NumStuckEvals)
	assert.Equal(t, 40.1, info.ValPerf)
}

func TestTrainInfo_Done(t *testing.T) {
	tests := []struct {
		name string
		info TrainInfo
		want bool
	}{
		{name: "running", info: TrainInfo{GlobalSteps: 5, NumStuckEvals: 1}, want: false},
		{name: "patience reached", info: TrainInfo{GlobalSteps: 5, NumStuckEvals: 2}, want: true},
		{name: "budget reached", info: TrainInfo{GlobalSteps: 9}, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.info.Done(2, 9))
		})
	}
}
