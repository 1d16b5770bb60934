package domain

// TrainInfo tracks training progress. It is mutated only by the experiment
// controller and persisted with every checkpoint.
type TrainInfo struct {
	ValPerf       float64 `json:"val_perf"`
	GlobalSteps   int     `json:"global_steps"`
	NumStuckEvals int     `json:"num_stuck_evals"`
}

// RecordEval applies a new validation score. The stuck counter resets
// only on a strict improvement.
func (t *TrainInfo) RecordEval(fscore float64) (improved bool) {
	if fscore > t.ValPerf {
		t.ValPerf = fscore
		t.NumStuckEvals = 0
		return true
	}
	t.NumStuckEvals++
	return false
}

// Done reports whether training must stop under the given patience and
// step budget.
func (t TrainInfo) Done(patience, totalSteps int) bool {
	return t.NumStuckEvals >= patience || t.GlobalSteps >= totalSteps
}
