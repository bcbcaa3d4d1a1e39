package dataplane

import (
	"NetShaper/internal/core/model"
	"sync"
)

// FlowClassifier interns 5-tuples into FlowIDs and installs a FlowContext
// bound to the configured default policy the first time a tuple is seen.
// It is the one data-plane component that may be called concurrently from
// multiple receive threads; exactly one FlowID is allocated per unique tuple
// even under races.
type FlowClassifier struct {
	mu        sync.Mutex
	keyToFlow map[string]model.FlowID
	nextID    model.FlowID

	table           *FlowTable
	defaultPolicyID model.PolicyID
	defaultQueueID  model.QueueID
}

// NewFlowClassifier creates a classifier publishing contexts into the given
// table. New flows are bound to defaultPolicyID with the default queue and
// tail-drop policy.
func NewFlowClassifier(table *FlowTable, defaultPolicyID model.PolicyID) *FlowClassifier {
	return &FlowClassifier{
		keyToFlow:       make(map[string]model.FlowID),
		nextID:          1,
		table:           table,
		defaultPolicyID: defaultPolicyID,
	}
}

// GetOrCreate returns the FlowID for the tuple, allocating one on first
// sight. Repeated calls with an equal tuple return the same id.
func (c *FlowClassifier) GetOrCreate(ft model.FiveTuple) model.FlowID {
	key := ft.Key()

	c.mu.Lock()
	defer c.mu.Unlock()

	if id, ok := c.keyToFlow[key]; ok {
		return id
	}

	id := c.nextID
	c.nextID++
	c.keyToFlow[key] = id

	fc := model.NewFlowContext(id, c.defaultPolicyID, c.defaultQueueID, model.DropPolicyTailDrop)
	c.table.insert(fc)
	return id
}

// Table returns the flow table the classifier publishes into.
func (c *FlowClassifier) Table() *FlowTable { return c.table }

// Len returns the number of interned tuples.
func (c *FlowClassifier) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.keyToFlow)
}
