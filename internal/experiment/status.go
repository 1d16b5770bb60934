package experiment

import (
	"context"
	"sync"
	"time"

	"github.com/ksteimel/fast-coref/internal/domain"
)

// State is the lifecycle phase of an experiment
type State string

const (
	StateInitializing State = "initializing"
	StateTraining     State = "training"
	StateEvaluating   State = "evaluating"
	StateStopped      State = "stopped"
	StateFailed       State = "failed"
)

// Status is a point-in-time view of a running experiment. It is safe to
// read from other goroutines.
type Status struct {
	RunID      string           `json:"run_id"`
	State      State            `json:"state"`
	TrainInfo  domain.TrainInfo `json:"train_info"`
	TotalSteps int              `json:"total_steps"`
	// LastEval holds the dev F-score of each dataset from the most recent
	// periodic evaluation.
	LastEval  map[string]float64 `json:"last_eval,omitempty"`
	Error     string             `json:"error,omitempty"`
	StartedAt time.Time          `json:"started_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}

type tracker struct {
	mu     sync.RWMutex
	status Status
}

func (t *tracker) update(fn func(s *Status)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fn(&t.status)
	t.status.UpdatedAt = time.Now().UTC()
}

func (t *tracker) snapshot() Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s := t.status
	if s.LastEval != nil {
		s.LastEval = make(map[string]float64, len(t.status.LastEval))
		for k, v := range t.status.LastEval {
			s.LastEval[k] = v
		}
	}
	return s
}

// ResultSink receives every final performance report
type ResultSink interface {
	Record(ctx context.Context, report *domain.PerformanceReport) error
}
