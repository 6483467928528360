// Package observer holds the output registry bound to the live engine and the
// Snapshot output that backs host queries.
package observer

import "vodrive/internal/engine"

// Registry is an ordered set of engine outputs. Outputs are compared by
// identity, so they should be pointers. Registry is not safe for concurrent
// use; the session guards it with its lock.
type Registry struct {
	outputs []engine.Output
}

// Add appends out unless it is already registered. It reports whether the
// registry changed.
func (r *Registry) Add(out engine.Output) bool {
	if out == nil || r.index(out) >= 0 {
		return false
	}
	r.outputs = append(r.outputs, out)
	return true
}

// Remove drops out. It reports whether the registry changed.
func (r *Registry) Remove(out engine.Output) bool {
	idx := r.index(out)
	if idx < 0 {
		return false
	}
	r.outputs = append(r.outputs[:idx:idx], r.outputs[idx+1:]...)
	return true
}

func (r *Registry) index(out engine.Output) int {
	for i, existing := range r.outputs {
		if existing == out {
			return i
		}
	}
	return -1
}

// List returns a copy of the registered outputs in registration order.
func (r *Registry) List() []engine.Output {
	return append([]engine.Output(nil), r.outputs...)
}

// Len returns the number of registered outputs.
func (r *Registry) Len() int { return len(r.outputs) }

// ResetAll calls Reset on every output, in registration order.
func (r *Registry) ResetAll() {
	for _, out := range r.outputs {
		out.Reset()
	}
}

// NotifyLost calls TrackingLost on every output implementing
// engine.LossObserver.
func (r *Registry) NotifyLost(frameID int) {
	for _, out := range r.outputs {
		if lo, ok := out.(engine.LossObserver); ok {
			lo.TrackingLost(frameID)
		}
	}
}
