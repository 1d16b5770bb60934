package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordStep(t *testing.T) {
	before := testutil.ToFloat64(skippedSteps)
	steps := testutil.ToFloat64(trainSteps)

	RecordStep(true)
	RecordStep(false)

	assert.Equal(t, before+1, testutil.ToFloat64(skippedSteps))
	assert.Equal(t, steps+2, testutil.ToFloat64(trainSteps))
}

func TestRecordEval(t *testing.T) {
	RecordEval("litbank", "dev", 71.3, 2*time.Second)
	assert.Equal(t, 71.3, testutil.ToFloat64(evalFScore.WithLabelValues("litbank", "dev")))
}

func TestRecordCheckpoint(t *testing.T) {
	RecordCheckpoint("best", "save", 4096, time.Millisecond)
	RecordCheckpoint("best", "load", 0, time.Millisecond)
	assert.Equal(t, 4096.0, testutil.ToFloat64(checkpointBytes.WithLabelValues("best")))
}
