package rules

import "sort"

// #region feature-cost

// featureCost orders split candidates by acquisition cost: time features
// are free, device state cheap, motion sensors dearer, location dearest.
func featureCost(key string) int {
	switch key {
	case "timeOfDay", "dayOfWeek", "isWeekend", "hour", "minute":
		return 0
	case "batteryLevel", "isCharging", "networkType":
		return 1
	case "motionState", "stepCount":
		return 2
	case "geofence", "location", "latitude", "longitude":
		return 3
	default:
		return 2
	}
}

// #endregion feature-cost

// #region split-key

// pickSplitKey scores every unused key appearing in the remaining rules by
// coverage/(1+cost) and returns the winner. First-seen order breaks ties
// so compiled trees are deterministic.
func pickSplitKey(ruleSet []Rule, indices []int, usedKeys map[string]bool) string {
	keyCount := make(map[string]int)
	var keyOrder []string

	for _, idx := range indices {
		for _, cond := range ruleSet[idx].Conditions {
			if usedKeys[cond.Key] {
				continue
			}
			if _, seen := keyCount[cond.Key]; !seen {
				keyOrder = append(keyOrder, cond.Key)
			}
			keyCount[cond.Key]++
		}
	}

	bestKey := ""
	bestScore := -1.0
	for _, key := range keyOrder {
		score := float64(keyCount[key]) / (1.0 + float64(featureCost(key)))
		if score > bestScore {
			bestScore = score
			bestKey = key
		}
	}
	return bestKey
}

// #endregion split-key

// #region compile

// Leaf conditions for the recursive builder.
const (
	leafMaxRules = 2
	leafMaxDepth = 5
)

// treeBuilder accumulates nodes into the arena during compilation.
type treeBuilder struct {
	ruleSet []Rule
	tree    []TreeNode
}

// build recursively constructs the subtree for the given rule indices and
// returns its node index. The parent slot is reserved before recursing so
// indices stay stable while the arena grows.
func (b *treeBuilder) build(indices []int, usedKeys map[string]bool) int {
	nodeIdx := len(b.tree)
	b.tree = append(b.tree, TreeNode{DefaultChild: -1})

	splitKey := pickSplitKey(b.ruleSet, indices, usedKeys)

	if splitKey == "" || len(indices) <= leafMaxRules || len(usedKeys) >= leafMaxDepth {
		// Leaves keep rule-set order so evaluation lists matches in the
		// same order as the flat pass.
		leaf := append([]int(nil), indices...)
		sort.Ints(leaf)
		b.tree[nodeIdx].RuleIndices = leaf
		return nodeIdx
	}

	b.tree[nodeIdx].SplitKey = splitKey

	// Group rules by their first eq condition on splitKey; rules without
	// one match every branch.
	groups := make(map[string][]int)
	var groupOrder []string
	var noCondition []int

	for _, idx := range indices {
		found := false
		for _, cond := range b.ruleSet[idx].Conditions {
			if cond.Key == splitKey && cond.Op == "eq" {
				if _, seen := groups[cond.Value]; !seen {
					groupOrder = append(groupOrder, cond.Value)
				}
				groups[cond.Value] = append(groups[cond.Value], idx)
				found = true
				break
			}
		}
		if !found {
			noCondition = append(noCondition, idx)
		}
	}

	childUsedKeys := make(map[string]bool, len(usedKeys)+1)
	for k := range usedKeys {
		childUsedKeys[k] = true
	}
	childUsedKeys[splitKey] = true

	for _, value := range groupOrder {
		bucket := append(append([]int(nil), groups[value]...), noCondition...)
		childIdx := b.build(bucket, childUsedKeys)
		b.tree[nodeIdx].Branches = append(b.tree[nodeIdx].Branches, Branch{Value: value, Child: childIdx})
	}

	if len(noCondition) > 0 {
		b.tree[nodeIdx].DefaultChild = b.build(noCondition, childUsedKeys)
	}

	return nodeIdx
}

// compileTree builds a fresh arena for the enabled rules. An empty rule
// set compiles to an empty tree.
func compileTree(ruleSet []Rule) []TreeNode {
	var enabled []int
	for i, r := range ruleSet {
		if r.Enabled {
			enabled = append(enabled, i)
		}
	}
	if len(enabled) == 0 {
		return nil
	}

	b := &treeBuilder{ruleSet: ruleSet}
	b.build(enabled, map[string]bool{})
	return b.tree
}

// #endregion compile
