package dataplane

import (
	"sync"

	"NetShaper/internal/core/model"
)

// FlowTable maps FlowIDs to their contexts. Writes from the shaping pipeline
// and reads from stats snapshotting may overlap, so every access goes through
// the table's lock.
type FlowTable struct {
	mu    sync.RWMutex
	flows map[model.FlowID]*model.FlowContext
}

// NewFlowTable creates an empty table.
func NewFlowTable() *FlowTable {
	return &FlowTable{flows: make(map[model.FlowID]*model.FlowContext)}
}

// insert publishes a freshly created context. The caller (the classifier)
// guarantees the id is unique.
func (t *FlowTable) insert(fc *model.FlowContext) {
	t.mu.Lock()
	t.flows[fc.FlowID] = fc
	t.mu.Unlock()
}

// Update applies the mutator to the identified context under the write lock.
// It reports whether the flow exists.
func (t *FlowTable) Update(id model.FlowID, fn func(fc *model.FlowContext)) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	fc, ok := t.flows[id]
	if !ok {
		return false
	}
	fn(fc)
	return true
}

// Get returns a copy of the identified context.
func (t *FlowTable) Get(id model.FlowID) (model.FlowContext, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	fc, ok := t.flows[id]
	if !ok {
		return model.FlowContext{}, false
	}
	return *fc, true
}

// Snapshot returns a deep copy of all contexts, consistent at the moment of
// the call.
func (t *FlowTable) Snapshot() []model.FlowContext {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]model.FlowContext, 0, len(t.flows))
	for _, fc := range t.flows {
		out = append(out, *fc)
	}
	return out
}

// Len returns the number of tracked flows.
func (t *FlowTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.flows)
}
