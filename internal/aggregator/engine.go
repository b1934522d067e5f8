// Package aggregator owns the claim table and the running total of
// requested storage, and derives capacity state transitions from them.
package aggregator

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/potooio/pvcwatch/internal/alert"
	"github.com/potooio/pvcwatch/internal/claims"
	"github.com/potooio/pvcwatch/internal/quantity"
	"github.com/potooio/pvcwatch/internal/types"
)

// Result describes the effect of one applied event.
type Result struct {
	Event types.ChangeEvent

	// Previous is the record the table held for the claim before the event,
	// nil when the claim was unknown.
	Previous *types.ClaimRecord

	Total quantity.Quantity
	Delta quantity.Quantity
	State types.AlertState

	// Transition is set only when the event moved the total across the limit.
	Transition *types.Transition

	// Inconsistent describes an event that did not match the table
	// (duplicate add, modify of an unknown claim, delete of an unknown
	// claim). The event was still applied on a best-effort basis.
	Inconsistent string
}

// Engine applies change events to the claim table. Apply is expected to be
// called from a single goroutine; readers may call the accessors concurrently.
type Engine struct {
	logger *zap.Logger

	mu      sync.RWMutex
	table   *claims.Table
	total   quantity.Quantity
	machine *alert.Machine
	seeded  bool

	now func() time.Time
}

// NewEngine creates an engine for the given capacity limit.
func NewEngine(logger *zap.Logger, limit quantity.Quantity) *Engine {
	return &Engine{
		logger:  logger.Named("aggregator"),
		table:   claims.New(nil),
		total:   quantity.Zero(),
		machine: alert.New(quantity.Zero(), limit),
		now:     time.Now,
	}
}

// Seed replaces the table with a snapshot and derives the total and the
// initial alert state from it. No transition is reported.
func (e *Engine) Seed(records []types.ClaimRecord) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.table.Reset(records)
	e.total = e.table.Sum()
	e.machine.Reset(e.total)
	e.seeded = true

	e.logger.Info("Seeded claim table",
		zap.Int("claims", e.table.Count()),
		zap.String("total", e.total.String()),
		zap.String("limit", e.machine.Limit().String()),
		zap.String("state", string(e.machine.State())),
	)
}

// Apply applies one change event and evaluates the alert state.
func (e *Engine) Apply(ev types.ChangeEvent) Result {
	e.mu.Lock()
	defer e.mu.Unlock()

	res := Result{Event: ev}
	before := e.total
	key := ev.Claim.Key()

	switch ev.Type {
	case types.EventAdded:
		res.Previous = e.upsertLocked(ev.Claim)
		if res.Previous != nil {
			res.Inconsistent = fmt.Sprintf("PVC %s added twice, treating as update", key)
		}
	case types.EventModified:
		res.Previous = e.upsertLocked(ev.Claim)
		if res.Previous == nil {
			res.Inconsistent = fmt.Sprintf("PVC %s modified before it was seen, treating as added", key)
		}
	case types.EventDeleted:
		removed := e.table.Delete(key)
		if removed == nil {
			res.Inconsistent = fmt.Sprintf("PVC %s deleted but was not tracked, ignoring", key)
			break
		}
		res.Previous = removed
		e.total = e.total.Sub(removed.Size)
	default:
		res.Inconsistent = fmt.Sprintf("PVC %s: unknown event type %q, ignoring", key, ev.Type)
	}

	res.Total = e.total
	res.Delta = e.total.Sub(before)

	// Only a change of the total can cross the limit; status-only updates
	// leave the state alone even when the total sits exactly on the limit.
	if !res.Delta.IsZero() {
		if from, changed := e.machine.Evaluate(e.total); changed {
			res.Transition = &types.Transition{
				From:  from,
				To:    e.machine.State(),
				Total: e.total,
				Limit: e.machine.Limit(),
				Claim: key,
				Time:  e.now(),
			}
		}
	}
	res.State = e.machine.State()

	if res.Inconsistent != "" {
		e.logger.Warn("Inconsistent claim event",
			zap.String("type", string(ev.Type)),
			zap.String("claim", key.String()),
			zap.String("detail", res.Inconsistent),
		)
	}
	return res
}

// upsertLocked stores c and moves the total by the difference to the
// previously stored size. Caller must hold e.mu.
func (e *Engine) upsertLocked(c types.ClaimRecord) *types.ClaimRecord {
	prev := e.table.Upsert(c)
	if prev != nil {
		e.total = e.total.Sub(prev.Size)
	}
	e.total = e.total.Add(c.Size)
	return prev
}

// Total returns the running total.
func (e *Engine) Total() quantity.Quantity {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.total
}

// Limit returns the capacity limit.
func (e *Engine) Limit() quantity.Quantity {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.machine.Limit()
}

// State returns the current alert state.
func (e *Engine) State() types.AlertState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.machine.State()
}

// Claims returns the tracked claims sorted by namespace and name.
func (e *Engine) Claims() []types.ClaimRecord {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.table.All()
}

// Count returns the number of tracked claims.
func (e *Engine) Count() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.table.Count()
}

// Recompute sums the table from scratch. It always equals Total.
func (e *Engine) Recompute() quantity.Quantity {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.table.Sum()
}

// Seeded reports whether Seed has been called.
func (e *Engine) Seeded() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.seeded
}
