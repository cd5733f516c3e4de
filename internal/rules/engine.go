// Package rules evaluates flat conditional rules against context
// snapshots, compiling them into a cost-aware decision tree so cheap
// features are consulted first.
package rules

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/danielpatrickdp/context-core/internal/tray"
)

// #region engine

// Engine owns the rule set and its compiled tree. The tree is rebuilt
// atomically under the lock on every mutation and is read-only between
// compilations.
type Engine struct {
	mu    sync.Mutex
	rules []Rule
	tree  []TreeNode
}

// NewEngine creates an empty rule engine.
func NewEngine() *Engine {
	return &Engine{}
}

// #endregion engine

// #region mutation

// AddRule appends a rule and recompiles. Every rule must carry at least
// one condition.
func (e *Engine) AddRule(r Rule) error {
	if r.ID == "" {
		return fmt.Errorf("addRule: empty rule id")
	}
	if len(r.Conditions) == 0 {
		return fmt.Errorf("addRule %q: rule has no conditions", r.ID)
	}
	for _, c := range r.Conditions {
		switch c.Op {
		case "eq", "neq", "gt", "gte", "lt", "lte":
		default:
			return fmt.Errorf("addRule %q: unsupported op %q", r.ID, c.Op)
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules = append(e.rules, r)
	e.tree = compileTree(e.rules)
	return nil
}

// RemoveRule deletes a rule by id, reporting whether it existed.
func (e *Engine) RemoveRule(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i, r := range e.rules {
		if r.ID == id {
			e.rules = append(e.rules[:i], e.rules[i+1:]...)
			e.tree = compileTree(e.rules)
			return true
		}
	}
	return false
}

// SetEnabled toggles a rule, reporting whether it existed.
func (e *Engine) SetEnabled(id string, enabled bool) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i := range e.rules {
		if e.rules[i].ID == id {
			e.rules[i].Enabled = enabled
			e.tree = compileTree(e.rules)
			return true
		}
	}
	return false
}

// Rules returns a copy of the rule set.
func (e *Engine) Rules() []Rule {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Rule(nil), e.rules...)
}

// #endregion mutation

// #region condition-eval

// matchCondition evaluates one predicate against a snapshot. Ordering ops
// compare numerically when both sides parse as floats, lexically
// otherwise.
func matchCondition(cond Condition, snap tray.ContextSnapshot) bool {
	value, ok := snap.Get(cond.Key)
	if !ok {
		return false
	}

	switch cond.Op {
	case "eq":
		return value == cond.Value
	case "neq":
		return value != cond.Value
	}

	lhs, lerr := strconv.ParseFloat(value, 64)
	rhs, rerr := strconv.ParseFloat(cond.Value, 64)
	if lerr == nil && rerr == nil {
		switch cond.Op {
		case "gt":
			return lhs > rhs
		case "gte":
			return lhs >= rhs
		case "lt":
			return lhs < rhs
		case "lte":
			return lhs <= rhs
		}
		return false
	}

	switch cond.Op {
	case "gt":
		return value > cond.Value
	case "gte":
		return value >= cond.Value
	case "lt":
		return value < cond.Value
	case "lte":
		return value <= cond.Value
	}
	return false
}

// matchRule checks every condition of a rule.
func matchRule(r Rule, snap tray.ContextSnapshot) bool {
	for _, cond := range r.Conditions {
		if !matchCondition(cond, snap) {
			return false
		}
	}
	return true
}

// #endregion condition-eval

// #region evaluate

// Evaluate walks the compiled tree and returns the matched rules in
// rule-set order; the result equals EvaluateFlat for every snapshot.
func (e *Engine) Evaluate(snap tray.ContextSnapshot) []Rule {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.tree) == 0 {
		return nil
	}

	idx := 0
	for e.tree[idx].SplitKey != "" {
		node := e.tree[idx]
		value, _ := snap.Get(node.SplitKey)

		next := node.DefaultChild
		for _, br := range node.Branches {
			if br.Value == value {
				next = br.Child
				break
			}
		}
		if next < 0 {
			return nil
		}
		idx = next
	}

	var matched []Rule
	for _, ri := range e.tree[idx].RuleIndices {
		r := e.rules[ri]
		if r.Enabled && matchRule(r, snap) {
			matched = append(matched, r)
		}
	}
	return matched
}

// EvaluateFlat runs the reference flat pass over all enabled rules.
func (e *Engine) EvaluateFlat(snap tray.ContextSnapshot) []Rule {
	e.mu.Lock()
	defer e.mu.Unlock()

	var matched []Rule
	for _, r := range e.rules {
		if r.Enabled && matchRule(r, snap) {
			matched = append(matched, r)
		}
	}
	return matched
}

// Tree returns a copy of the compiled arena for inspection.
func (e *Engine) Tree() []TreeNode {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]TreeNode(nil), e.tree...)
}

// #endregion evaluate
