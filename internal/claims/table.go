package claims

import (
	"sort"
	"sync"

	k8stypes "k8s.io/apimachinery/pkg/types"

	"github.com/potooio/pvcwatch/internal/quantity"
	"github.com/potooio/pvcwatch/internal/types"
)

// ChangeEvent represents a change to the claim table.
type ChangeEvent struct {
	Type     string // "upsert" or "delete"
	Claim    types.ClaimRecord
	Previous *types.ClaimRecord
}

// OnChangeFunc is called when the table changes.
type OnChangeFunc func(event ChangeEvent)

// Table is a concurrent-safe in-memory store of ClaimRecords keyed by
// namespace/name.
type Table struct {
	mu       sync.RWMutex
	byKey    map[k8stypes.NamespacedName]types.ClaimRecord
	onChange OnChangeFunc
}

// New creates a new Table with an optional change callback.
func New(onChange OnChangeFunc) *Table {
	return &Table{
		byKey:    make(map[k8stypes.NamespacedName]types.ClaimRecord),
		onChange: onChange,
	}
}

// Upsert adds the claim or replaces an existing one with the same key.
// It returns the replaced record, or nil when the key was new.
func (t *Table) Upsert(c types.ClaimRecord) *types.ClaimRecord {
	t.mu.Lock()
	var prev *types.ClaimRecord
	if old, exists := t.byKey[c.Key()]; exists {
		prev = &old
	}
	t.byKey[c.Key()] = c
	t.mu.Unlock()

	if t.onChange != nil {
		t.onChange(ChangeEvent{Type: "upsert", Claim: c, Previous: prev})
	}
	return prev
}

// Delete removes the claim with the given key and returns it.
// No-op returning nil if not found.
func (t *Table) Delete(key k8stypes.NamespacedName) *types.ClaimRecord {
	t.mu.Lock()
	c, exists := t.byKey[key]
	if exists {
		delete(t.byKey, key)
	}
	t.mu.Unlock()

	if !exists {
		return nil
	}
	if t.onChange != nil {
		t.onChange(ChangeEvent{Type: "delete", Claim: c})
	}
	return &c
}

// Get returns the claim stored under key.
func (t *Table) Get(key k8stypes.NamespacedName) (types.ClaimRecord, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	c, ok := t.byKey[key]
	return c, ok
}

// Reset replaces the whole content of the table. Later duplicates of the
// same key win. The change callback is not invoked.
func (t *Table) Reset(records []types.ClaimRecord) {
	byKey := make(map[k8stypes.NamespacedName]types.ClaimRecord, len(records))
	for _, c := range records {
		byKey[c.Key()] = c
	}
	t.mu.Lock()
	t.byKey = byKey
	t.mu.Unlock()
}

// All returns all stored claims sorted by namespace and name.
func (t *Table) All() []types.ClaimRecord {
	t.mu.RLock()
	result := make([]types.ClaimRecord, 0, len(t.byKey))
	for _, c := range t.byKey {
		result = append(result, c)
	}
	t.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		if result[i].Namespace != result[j].Namespace {
			return result[i].Namespace < result[j].Namespace
		}
		return result[i].Name < result[j].Name
	})
	return result
}

// ByNamespace returns the claims stored for ns.
func (t *Table) ByNamespace(ns string) []types.ClaimRecord {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var result []types.ClaimRecord
	for key, c := range t.byKey {
		if key.Namespace == ns {
			result = append(result, c)
		}
	}
	return result
}

// Sum returns the total requested size of all stored claims.
func (t *Table) Sum() quantity.Quantity {
	t.mu.RLock()
	defer t.mu.RUnlock()

	total := quantity.Zero()
	for _, c := range t.byKey {
		total = total.Add(c.Size)
	}
	return total
}

// Count returns the number of stored claims.
func (t *Table) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.byKey)
}
