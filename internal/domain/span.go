package domain

import (
	"encoding/json"
	"fmt"
)

// Span is a mention given as inclusive subtoken offsets.
type Span struct {
	Start int
	End   int
}

// MarshalJSON encodes a span as a two-element array.
func (s Span) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]int{s.Start, s.End})
}

// UnmarshalJSON decodes a span from a two-element array.
func (s *Span) UnmarshalJSON(data []byte) error {
	var pair []int
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("failed to decode span: %w", err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("span must have 2 offsets, got %d", len(pair))
	}
	s.Start, s.End = pair[0], pair[1]
	return nil
}

// String returns the span as "(start, end)".
func (s Span) String() string {
	return fmt.Sprintf("(%d, %d)", s.Start, s.End)
}

// Cluster is a set of mentions believed to co-refer. Order is not
// significant for scoring.
type Cluster []Span

// Contains reports whether the cluster holds the given mention.
func (c Cluster) Contains(m Span) bool {
	for _, s := range c {
		if s == m {
			return true
		}
	}
	return false
}
