package resource

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/cases"
)

// TreeOptions narrows the assembled forest. RootID zero builds the whole
// forest; Name is a case-insensitive substring filter; Status keeps only
// nodes in that state. Ancestors of a match always survive so the result
// stays connected.
type TreeOptions struct {
	RootID int64
	Name   string
	Status *Status
}

// BuildTree assembles the flat records of one kind into an ordered forest
// and applies the filters in opts bottom-up. Siblings are ordered by
// (SortOrder, ID) ascending. A cyclic parent chain or an orphaned parent
// reference fails with ErrIntegrity before any result is produced.
func BuildTree(records []Record, opts TreeOptions) ([]*Node, error) {
	index := make(map[int64]*Record, len(records))
	for i := range records {
		rec := &records[i]
		if rec.ID == 0 {
			return nil, fmt.Errorf("%w: node id must be non-zero", ErrIntegrity)
		}
		if _, ok := index[rec.ID]; ok {
			return nil, fmt.Errorf("%w: duplicate node id %d", ErrIntegrity, rec.ID)
		}
		index[rec.ID] = rec
	}

	if opts.RootID != 0 {
		if _, ok := index[opts.RootID]; !ok {
			return nil, fmt.Errorf("%w: node %d", ErrNotFound, opts.RootID)
		}
	}

	if err := checkIntegrity(records, index); err != nil {
		return nil, err
	}

	nodes := make(map[int64]*Node, len(records))
	for _, rec := range records {
		nodes[rec.ID] = &Node{
			ID:        rec.ID,
			ParentID:  rec.ParentID,
			Name:      rec.Name,
			Status:    rec.Status,
			SortOrder: rec.SortOrder,
		}
	}

	var roots []*Node
	for _, rec := range records {
		node := nodes[rec.ID]
		if node.ParentID == 0 {
			roots = append(roots, node)
			continue
		}
		parent := nodes[node.ParentID]
		parent.Children = append(parent.Children, node)
	}
	sortSiblings(roots)
	for _, node := range nodes {
		sortSiblings(node.Children)
		// Leaf reflects the raw hierarchy; filtering never turns a
		// container into an assignable leaf.
		node.Leaf = len(node.Children) == 0
	}

	roots = filterForest(roots, opts.matcher())

	if opts.RootID == 0 {
		return roots, nil
	}
	root := nodes[opts.RootID]
	for _, survivor := range flatten(roots) {
		if survivor == root {
			return []*Node{root}, nil
		}
	}
	// The root exists but every node under it was filtered away.
	return []*Node{}, nil
}

// checkIntegrity rejects orphaned parent references and cyclic parent
// chains. The walk is bounded by the record count so corrupted data fails
// fast instead of looping.
func checkIntegrity(records []Record, index map[int64]*Record) error {
	for _, rec := range records {
		if rec.ParentID == 0 {
			continue
		}
		if rec.ParentID == rec.ID {
			return fmt.Errorf("%w: node %d is its own parent", ErrIntegrity, rec.ID)
		}
		if _, ok := index[rec.ParentID]; !ok {
			return fmt.Errorf("%w: node %d references missing parent %d", ErrIntegrity, rec.ID, rec.ParentID)
		}
	}

	limit := len(records)
	acyclic := make(map[int64]bool, limit)
	chain := make([]int64, 0, 16)
	for _, rec := range records {
		chain = chain[:0]
		id := rec.ID
		for id != 0 && !acyclic[id] {
			if len(chain) > limit {
				return fmt.Errorf("%w: cyclic parent chain at node %d", ErrIntegrity, rec.ID)
			}
			chain = append(chain, id)
			id = index[id].ParentID
		}
		for _, seen := range chain {
			acyclic[seen] = true
		}
	}
	return nil
}

func sortSiblings(nodes []*Node) {
	sort.Slice(nodes, func(i, j int) bool {
		if nodes[i].SortOrder != nodes[j].SortOrder {
			return nodes[i].SortOrder < nodes[j].SortOrder
		}
		return nodes[i].ID < nodes[j].ID
	})
}

// matcher compiles the per-node filter predicate. Name comparison uses
// unicode case folding rather than plain ASCII lowering.
func (o TreeOptions) matcher() func(*Node) bool {
	name := strings.TrimSpace(o.Name)
	fold := cases.Fold()
	needle := ""
	if name != "" {
		needle = fold.String(name)
	}
	return func(n *Node) bool {
		if o.Status != nil && n.Status != *o.Status {
			return false
		}
		if needle != "" && !strings.Contains(fold.String(n.Name), needle) {
			return false
		}
		return true
	}
}

// filterForest prunes nodes that neither match nor retain a surviving
// descendant. The pass runs over a breadth-first ordering in reverse, so
// children are decided before their parents without recursion.
func filterForest(roots []*Node, match func(*Node) bool) []*Node {
	order := flatten(roots)
	survives := make(map[*Node]bool, len(order))
	for i := len(order) - 1; i >= 0; i-- {
		node := order[i]
		kept := node.Children[:0]
		for _, child := range node.Children {
			if survives[child] {
				kept = append(kept, child)
			}
		}
		node.Children = kept
		survives[node] = len(kept) > 0 || match(node)
	}

	filtered := roots[:0]
	for _, root := range roots {
		if survives[root] {
			filtered = append(filtered, root)
		}
	}
	return filtered
}

// flatten returns the forest in breadth-first order, parents before
// children. Iterative on purpose: tree depth is attacker-controlled.
func flatten(roots []*Node) []*Node {
	order := make([]*Node, 0, len(roots))
	order = append(order, roots...)
	for i := 0; i < len(order); i++ {
		order = append(order, order[i].Children...)
	}
	return order
}
