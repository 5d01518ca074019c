package toc

// BuildHierarchy nests a flat, leveled heading list. Each heading becomes a
// child of the nearest preceding heading with a strictly smaller level, or a
// root when there is none. Input order is preserved among siblings.
func BuildHierarchy(items []Heading) []*Node {
	type stackEntry struct {
		node  *Node
		level int
	}
	var roots []*Node
	var stack []stackEntry

	for _, item := range items {
		node := &Node{Heading: item}

		for len(stack) > 0 && stack[len(stack)-1].level >= item.Level {
			stack = stack[:len(stack)-1]
		}
		if len(stack) == 0 {
			roots = append(roots, node)
		} else {
			parent := stack[len(stack)-1].node
			parent.Children = append(parent.Children, node)
		}
		stack = append(stack, stackEntry{node: node, level: item.Level})
	}
	return roots
}

// Flatten walks the forest depth-first, each node before its children.
func Flatten(forest []*Node) []Heading {
	var out []Heading
	var walk func([]*Node)
	walk = func(nodes []*Node) {
		for _, n := range nodes {
			out = append(out, n.Heading)
			walk(n.Children)
		}
	}
	walk(forest)
	return out
}

// FlatEntry is a heading in pre-order position with a reference to its
// parent's position (-1 for roots). This is the storage shape of an outline.
type FlatEntry struct {
	Heading
	Position       int `json:"position"`
	ParentPosition int `json:"parent_position"`
}

// FlattenWithParents is Flatten with parent references.
func FlattenWithParents(forest []*Node) []FlatEntry {
	var out []FlatEntry
	var walk func(nodes []*Node, parent int)
	walk = func(nodes []*Node, parent int) {
		for _, n := range nodes {
			pos := len(out)
			out = append(out, FlatEntry{Heading: n.Heading, Position: pos, ParentPosition: parent})
			walk(n.Children, pos)
		}
	}
	walk(forest, -1)
	return out
}

// FromParents rebuilds a forest from entries carrying parent references.
// Entries must be ordered so that parents precede their children; an entry
// whose parent is unknown becomes a root.
func FromParents(entries []FlatEntry) []*Node {
	byPos := make(map[int]*Node, len(entries))
	var roots []*Node
	for _, e := range entries {
		node := &Node{Heading: e.Heading}
		byPos[e.Position] = node
		if parent, ok := byPos[e.ParentPosition]; ok && e.ParentPosition != e.Position {
			parent.Children = append(parent.Children, node)
		} else {
			roots = append(roots, node)
		}
	}
	return roots
}
