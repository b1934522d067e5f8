// Package alert implements the edge-triggered capacity state machine.
//
// The machine is NORMAL or OVER_CAPACITY. It moves NORMAL -> OVER_CAPACITY
// when the total reaches the limit (total >= limit) and OVER_CAPACITY ->
// NORMAL when the total falls back to the limit or below (total <= limit).
// Both bounds are inclusive. A change is reported only when the state flips.
package alert

import (
	"github.com/potooio/pvcwatch/internal/quantity"
	"github.com/potooio/pvcwatch/internal/types"
)

// Machine tracks the capacity state for one limit. It is not safe for
// concurrent use; the aggregator serializes access.
type Machine struct {
	limit quantity.Quantity
	state types.AlertState
}

// New returns a machine whose initial state is derived from initialTotal.
func New(initialTotal, limit quantity.Quantity) *Machine {
	state := types.StateNormal
	if initialTotal.Cmp(limit) >= 0 {
		state = types.StateOverCapacity
	}
	return &Machine{limit: limit, state: state}
}

// State returns the current state.
func (m *Machine) State() types.AlertState { return m.state }

// Limit returns the configured capacity limit.
func (m *Machine) Limit() quantity.Quantity { return m.limit }

// Reset re-derives the state from total without reporting a change.
func (m *Machine) Reset(total quantity.Quantity) {
	m.state = New(total, m.limit).state
}

// Evaluate compares total against the limit and returns the previous state
// and true when the state flipped.
func (m *Machine) Evaluate(total quantity.Quantity) (types.AlertState, bool) {
	from := m.state
	switch m.state {
	case types.StateNormal:
		if total.Cmp(m.limit) >= 0 {
			m.state = types.StateOverCapacity
		}
	case types.StateOverCapacity:
		if total.Cmp(m.limit) <= 0 {
			m.state = types.StateNormal
		}
	}
	return from, from != m.state
}
