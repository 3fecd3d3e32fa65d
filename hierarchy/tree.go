package hierarchy

import "github.com/schemabounce/waterfall-bridge/types"

// flattenFrame is one pending node of the explicit traversal stack.
type flattenFrame struct {
	node     types.Record
	parentID string
}

// Flatten converts a nested collection into a flat one. Every node is copied
// without its children list and with parentField set to the identity of the
// node it was nested under (nil for roots). Output is in pre-order: a node is
// immediately followed by its own subtree.
func Flatten(nested types.Collection, parentField string) types.Collection {
	if parentField == "" {
		parentField = types.FieldParentID
	}

	flat := make(types.Collection, 0, len(nested))
	stack := make([]flattenFrame, 0, len(nested))
	for i := len(nested) - 1; i >= 0; i-- {
		stack = append(stack, flattenFrame{node: nested[i]})
	}

	for len(stack) > 0 {
		frame := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		node := frame.node.Without(types.FieldChildren)
		if frame.parentID == "" {
			node[parentField] = nil
		} else {
			node[parentField] = frame.parentID
		}
		flat = append(flat, node)

		// Push in reverse so the first child is visited next.
		children := childrenOf(frame.node)
		nodeID := frame.node.Identity()
		for i := len(children) - 1; i >= 0; i-- {
			stack = append(stack, flattenFrame{node: children[i], parentID: nodeID})
		}
	}

	return flat
}

// BuildTree converts a flat collection into root records that carry nested
// children lists. A record whose parent reference matches another record's
// identity is appended to that record's children; any other record becomes a
// root. A reference to an identity that is not in the collection therefore
// makes the record a root rather than an error, and so does a record that
// names itself as parent. Records on a longer parent cycle hang off each other
// and are reachable from no root, so callers check DetectCycle first.
func BuildTree(flat types.Collection, parentField string) types.Collection {
	if parentField == "" {
		parentField = types.FieldParentID
	}

	nodes := make([]types.Record, len(flat))
	byID := make(map[string]types.Record, len(flat))
	for i, record := range flat {
		node := record.Clone()
		node[types.FieldChildren] = types.Collection{}
		nodes[i] = node

		// The first record claiming an identity owns it.
		if id := record.Identity(); id != "" {
			if _, exists := byID[id]; !exists {
				byID[id] = node
			}
		}
	}

	roots := types.Collection{}
	for _, node := range nodes {
		parentID := node.Ref(parentField)
		parent, ok := byID[parentID]
		if parentID == "" || !ok || parentID == node.Identity() {
			roots = append(roots, node)
			continue
		}
		parent[types.FieldChildren] = append(parent[types.FieldChildren].(types.Collection), node)
	}

	return roots
}

// childrenOf returns the nested children of a node regardless of whether
// they came from BuildTree or from a decoded document.
func childrenOf(node types.Record) types.Collection {
	raw, ok := node[types.FieldChildren]
	if !ok || raw == nil {
		return nil
	}
	children, err := types.AsCollection(raw)
	if err != nil {
		return nil
	}
	return children
}
