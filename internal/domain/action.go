package domain

import (
	"encoding/json"
	"fmt"
)

// ActionKind is the per-mention clustering decision
type ActionKind string

const (
	// ActionAttach adds the mention to the cluster held by memory slot Target
	ActionAttach ActionKind = "c"
	// ActionOpen starts a new cluster in memory slot Target. A cluster
	// previously held by that slot is closed and kept.
	ActionOpen ActionKind = "o"
	// ActionNew emits a singleton cluster that is not tracked in memory
	ActionNew ActionKind = "n"
	// ActionIgnore marks an invalid mention; it joins no cluster
	ActionIgnore ActionKind = "i"
)

// IsValid checks if the action kind is valid
func (k ActionKind) IsValid() bool {
	switch k {
	case ActionAttach, ActionOpen, ActionNew, ActionIgnore:
		return true
	}
	return false
}

// Action is an instruction attached to one predicted mention
type Action struct {
	Target int
	Kind   ActionKind
}

// MarshalJSON encodes an action as [target, "kind"].
func (a Action) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{a.Target, string(a.Kind)})
}

// UnmarshalJSON decodes an action from [target, "kind"].
func (a *Action) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to decode action: %w", err)
	}
	if len(raw) != 2 {
		return fmt.Errorf("action must have 2 elements, got %d", len(raw))
	}
	if err := json.Unmarshal(raw[0], &a.Target); err != nil {
		return fmt.Errorf("failed to decode action target: %w", err)
	}
	var kind string
	if err := json.Unmarshal(raw[1], &kind); err != nil {
		return fmt.Errorf("failed to decode action kind: %w", err)
	}
	a.Kind = ActionKind(kind)
	return nil
}
