package resource

import "sort"

// TriState is the coverage state of one node in a selection tree.
type TriState uint8

// Tri-state values, ordered so that zero means untouched.
const (
	StateUnchecked TriState = iota
	StateIndeterminate
	StateChecked
)

// ExpandedKeys returns the ids a selection UI should pre-open: every node
// of the forest that still has at least one child. Leaves have nothing to
// expand and never appear. Result is ascending for stable responses.
func ExpandedKeys(forest []*Node) []int64 {
	keys := make([]int64, 0, len(forest))
	for _, node := range flatten(forest) {
		if len(node.Children) > 0 {
			keys = append(keys, node.ID)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// CheckedStates computes the tri-state coverage of every node given the
// leaf ids a role holds. A leaf is checked iff granted; an internal node is
// checked iff all children are checked, indeterminate when coverage is
// partial. Grant ids that no longer exist in the forest are ignored; grant
// data and tree snapshots are only eventually consistent.
func CheckedStates(forest []*Node, granted map[int64]struct{}) map[int64]TriState {
	order := flatten(forest)
	states := make(map[int64]TriState, len(order))
	for i := len(order) - 1; i >= 0; i-- {
		node := order[i]
		if len(node.Children) == 0 {
			if _, ok := granted[node.ID]; ok {
				states[node.ID] = StateChecked
			} else {
				states[node.ID] = StateUnchecked
			}
			continue
		}
		all, any := true, false
		for _, child := range node.Children {
			switch states[child.ID] {
			case StateChecked:
				any = true
			case StateIndeterminate:
				any = true
				all = false
			default:
				all = false
			}
		}
		switch {
		case all:
			states[node.ID] = StateChecked
		case any:
			states[node.ID] = StateIndeterminate
		default:
			states[node.ID] = StateUnchecked
		}
	}
	return states
}

// CheckedKeys returns the ids whose subtree is fully covered by the grant.
// Indeterminate nodes are excluded; a partially covered branch renders as a
// dash, not a check.
func CheckedKeys(forest []*Node, granted map[int64]struct{}) []int64 {
	states := CheckedStates(forest, granted)
	keys := make([]int64, 0, len(granted))
	for id, state := range states {
		if state == StateChecked {
			keys = append(keys, id)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// LeafIDs collects the assignable ids of the forest.
func LeafIDs(forest []*Node) map[int64]struct{} {
	leaves := make(map[int64]struct{})
	for _, node := range flatten(forest) {
		if node.Leaf {
			leaves[node.ID] = struct{}{}
		}
	}
	return leaves
}
