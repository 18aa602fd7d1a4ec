package runtime

import "sync/atomic"

// fuelTracker enforces an optional execution budget. Every evaluation step
// burns one unit; exhaustion aborts the render with kind OutOfFuel.
type fuelTracker struct {
	remaining atomic.Int64
}

func newFuelTracker(budget int64) *fuelTracker {
	t := &fuelTracker{}
	t.remaining.Store(budget)
	return t
}

func (t *fuelTracker) consume() error {
	if t == nil {
		return nil
	}
	if t.remaining.Add(-1) < 0 {
		return NewError(OutOfFuel, "execution fuel exhausted")
	}
	return nil
}
