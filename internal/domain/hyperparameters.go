package domain

import "math"

// Hyperparameters is the free-form record used to rebuild a model. It is
// persisted with every checkpoint and copied into performance reports.
//
// Checkpoints store it as JSON, so numbers read back from a checkpoint are
// float64.
type Hyperparameters map[string]any

// Merge returns a copy of h with every key of over applied on top. A whole
// float64 from over that replaces an integer of h is converted to h's
// integer type, so values restored from a checkpoint keep their configured
// types.
func (h Hyperparameters) Merge(over Hyperparameters) Hyperparameters {
	merged := make(Hyperparameters, len(h)+len(over))
	for k, v := range h {
		merged[k] = v
	}
	for k, v := range over {
		merged[k] = matchInteger(h[k], v)
	}
	return merged
}

// Clone returns a shallow copy
func (h Hyperparameters) Clone() Hyperparameters {
	return h.Merge(nil)
}

func matchInteger(base, v any) any {
	f, ok := v.(float64)
	if !ok || f != math.Trunc(f) || math.IsInf(f, 0) {
		return v
	}
	switch base.(type) {
	case int:
		return int(f)
	case int32:
		return int32(f)
	case int64:
		return int64(f)
	case uint64:
		if f >= 0 {
			return uint64(f)
		}
	}
	return v
}
