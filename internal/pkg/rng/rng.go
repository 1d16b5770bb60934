// Package rng provides the explicit random-number handle owned by the
// experiment controller.
//
// Two independent PCG streams are kept: Global feeds the model (dropout,
// sampling) and Numeric drives data shuffling. Both are snapshotted into
// every checkpoint so that a resumed run draws the same numbers as an
// uninterrupted one.
package rng

import (
	"fmt"
	"math/rand/v2"
)

// numericSalt separates the numeric stream from the global one for the same seed.
const numericSalt = 0x9e3779b97f4a7c15

// Handle owns the global and numeric random streams
type Handle struct {
	globalSrc  *rand.PCG
	numericSrc *rand.PCG

	Global  *rand.Rand
	Numeric *rand.Rand
}

// New creates a handle seeded deterministically from seed
func New(seed uint64) *Handle {
	g := rand.NewPCG(seed, 0)
	n := rand.NewPCG(seed, numericSalt)
	return &Handle{
		globalSrc:  g,
		numericSrc: n,
		Global:     rand.New(g),
		Numeric:    rand.New(n),
	}
}

// Snapshot returns the serialized state of both streams
func (h *Handle) Snapshot() (global, numeric []byte, err error) {
	global, err = h.globalSrc.MarshalBinary()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to snapshot global rng: %w", err)
	}
	numeric, err = h.numericSrc.MarshalBinary()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to snapshot numeric rng: %w", err)
	}
	return global, numeric, nil
}

// Restore rewinds both streams to a previous snapshot
func (h *Handle) Restore(global, numeric []byte) error {
	if err := h.globalSrc.UnmarshalBinary(global); err != nil {
		return fmt.Errorf("failed to restore global rng: %w", err)
	}
	if err := h.numericSrc.UnmarshalBinary(numeric); err != nil {
		return fmt.Errorf("failed to restore numeric rng: %w", err)
	}
	return nil
}

// Shuffle permutes a slice in place using the numeric stream
func Shuffle[T any](h *Handle, items []T) {
	h.Numeric.Shuffle(len(items), func(i, j int) {
		items[i], items[j] = items[j], items[i]
	})
}
