package shaping

import (
	"fmt"
	"sort"
	"time"

	"NetShaper/internal/core/model"
)

// PolicyTree stores shaping policies indexed four ways: by unique id, by
// parent id, by priority level, and by name. Mutation of indexed fields must
// go through Modify so the auxiliary views stay consistent; Lookup hands out
// read-only access.
type PolicyTree struct {
	byID       map[model.PolicyID]*ShapingPolicy
	byParent   map[model.PolicyID][]model.PolicyID
	byPriority map[uint8][]model.PolicyID
	byName     map[string][]model.PolicyID
}

// NewPolicyTree creates an empty tree.
func NewPolicyTree() *PolicyTree {
	return &PolicyTree{
		byID:       make(map[model.PolicyID]*ShapingPolicy),
		byParent:   make(map[model.PolicyID][]model.PolicyID),
		byPriority: make(map[uint8][]model.PolicyID),
		byName:     make(map[string][]model.PolicyID),
	}
}

// Insert adds a policy. Duplicate ids are rejected, as is a non-root policy
// whose parent is not already present.
func (t *PolicyTree) Insert(p *ShapingPolicy) error {
	if p == nil {
		return fmt.Errorf("policy tree: nil policy")
	}
	if _, exists := t.byID[p.ID]; exists {
		return fmt.Errorf("policy tree: duplicate policy id %d", p.ID)
	}
	if p.ParentID != model.NoParentPolicyID {
		if p.ParentID == p.ID {
			return fmt.Errorf("policy tree: policy %d cannot be its own parent", p.ID)
		}
		if _, ok := t.byID[p.ParentID]; !ok {
			return fmt.Errorf("policy tree: policy %d references unknown parent %d", p.ID, p.ParentID)
		}
	}

	t.byID[p.ID] = p
	t.indexInsert(p)
	return nil
}

// Erase removes a policy by id. Erasing a policy that still has children is
// rejected so the parent invariant cannot be broken.
func (t *PolicyTree) Erase(id model.PolicyID) error {
	p, ok := t.byID[id]
	if !ok {
		return fmt.Errorf("policy tree: policy %d not found", id)
	}
	if len(t.byParent[id]) > 0 {
		return fmt.Errorf("policy tree: policy %d still has %d children", id, len(t.byParent[id]))
	}
	t.indexErase(p)
	delete(t.byID, id)
	return nil
}

// Lookup returns the policy with the given id. The returned policy is
// read-only; use Modify to mutate it.
func (t *PolicyTree) Lookup(id model.PolicyID) (*ShapingPolicy, bool) {
	p, ok := t.byID[id]
	return p, ok
}

// Modify applies the mutator to the identified policy and re-indexes the
// views afterwards. Callers must not retain references obtained inside the
// mutator beyond its return.
func (t *PolicyTree) Modify(id model.PolicyID, fn func(p *ShapingPolicy) error) error {
	p, ok := t.byID[id]
	if !ok {
		return fmt.Errorf("policy tree: policy %d not found", id)
	}

	before := indexedFields{parent: p.ParentID, priority: p.PriorityLevel, name: p.Name}
	if err := fn(p); err != nil {
		return err
	}
	if p.ID != id {
		// The primary key is immutable through Modify.
		p.ID = id
		return fmt.Errorf("policy tree: mutator changed policy id %d", id)
	}
	if p.ParentID != before.parent && p.ParentID != model.NoParentPolicyID {
		if _, ok := t.byID[p.ParentID]; !ok {
			p.ParentID = before.parent
			return fmt.Errorf("policy tree: mutator set unknown parent for policy %d", id)
		}
	}
	after := indexedFields{parent: p.ParentID, priority: p.PriorityLevel, name: p.Name}
	if before != after {
		t.reindex(p, before)
	}
	p.LastUpdated = time.Now()
	return nil
}

// ChildrenOf returns the ids of all policies under the given parent, in id
// order.
func (t *PolicyTree) ChildrenOf(parent model.PolicyID) []model.PolicyID {
	ids := t.byParent[parent]
	out := make([]model.PolicyID, len(ids))
	copy(out, ids)
	return out
}

// ByPriority returns the ids of all policies at the given priority level, in
// id order.
func (t *PolicyTree) ByPriority(level uint8) []model.PolicyID {
	ids := t.byPriority[level]
	out := make([]model.PolicyID, len(ids))
	copy(out, ids)
	return out
}

// FindByName returns the ids of all policies carrying the given name, in id
// order. Names are not unique.
func (t *PolicyTree) FindByName(name string) []model.PolicyID {
	ids := t.byName[name]
	out := make([]model.PolicyID, len(ids))
	copy(out, ids)
	return out
}

// Roots returns the ids of all root policies.
func (t *PolicyTree) Roots() []model.PolicyID {
	return t.ChildrenOf(model.NoParentPolicyID)
}

// Len returns the number of stored policies.
func (t *PolicyTree) Len() int { return len(t.byID) }

// Range calls fn for every policy in ascending id order. The policies are
// read-only; use Modify to mutate.
func (t *PolicyTree) Range(fn func(p *ShapingPolicy)) {
	ids := make([]model.PolicyID, 0, len(t.byID))
	for id := range t.byID {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		fn(t.byID[id])
	}
}

type indexedFields struct {
	parent   model.PolicyID
	priority uint8
	name     string
}

func (t *PolicyTree) indexInsert(p *ShapingPolicy) {
	t.byParent[p.ParentID] = insertSorted(t.byParent[p.ParentID], p.ID)
	t.byPriority[p.PriorityLevel] = insertSorted(t.byPriority[p.PriorityLevel], p.ID)
	t.byName[p.Name] = insertSorted(t.byName[p.Name], p.ID)
}

func (t *PolicyTree) indexErase(p *ShapingPolicy) {
	t.byParent[p.ParentID] = removeID(t.byParent[p.ParentID], p.ID)
	if len(t.byParent[p.ParentID]) == 0 {
		delete(t.byParent, p.ParentID)
	}
	t.byPriority[p.PriorityLevel] = removeID(t.byPriority[p.PriorityLevel], p.ID)
	if len(t.byPriority[p.PriorityLevel]) == 0 {
		delete(t.byPriority, p.PriorityLevel)
	}
	t.byName[p.Name] = removeID(t.byName[p.Name], p.ID)
	if len(t.byName[p.Name]) == 0 {
		delete(t.byName, p.Name)
	}
}

func (t *PolicyTree) reindex(p *ShapingPolicy, before indexedFields) {
	if before.parent != p.ParentID {
		t.byParent[before.parent] = removeID(t.byParent[before.parent], p.ID)
		if len(t.byParent[before.parent]) == 0 {
			delete(t.byParent, before.parent)
		}
		t.byParent[p.ParentID] = insertSorted(t.byParent[p.ParentID], p.ID)
	}
	if before.priority != p.PriorityLevel {
		t.byPriority[before.priority] = removeID(t.byPriority[before.priority], p.ID)
		if len(t.byPriority[before.priority]) == 0 {
			delete(t.byPriority, before.priority)
		}
		t.byPriority[p.PriorityLevel] = insertSorted(t.byPriority[p.PriorityLevel], p.ID)
	}
	if before.name != p.Name {
		t.byName[before.name] = removeID(t.byName[before.name], p.ID)
		if len(t.byName[before.name]) == 0 {
			delete(t.byName, before.name)
		}
		t.byName[p.Name] = insertSorted(t.byName[p.Name], p.ID)
	}
}

func insertSorted(ids []model.PolicyID, id model.PolicyID) []model.PolicyID {
	i := sort.Search(len(ids), func(i int) bool { return ids[i] >= id })
	ids = append(ids, 0)
	copy(ids[i+1:], ids[i:])
	ids[i] = id
	return ids
}

func removeID(ids []model.PolicyID, id model.PolicyID) []model.PolicyID {
	i := sort.Search(len(ids), func(i int) bool { return ids[i] >= id })
	if i < len(ids) && ids[i] == id {
		return append(ids[:i], ids[i+1:]...)
	}
	return ids
}
