package document

import "fmt"

type frame struct {
	node  *Node
	index int // child of node the position falls in front of (or inside)
	start int // absolute position where node's content starts
}

// ResolvedPos is a position decoded into the path of nodes that contain it.
type ResolvedPos struct {
	Pos  int
	path []frame
	// TextOffset is non-zero when Pos falls strictly inside the text run at
	// Index(); it is the rune offset into that run.
	TextOffset int
}

// Resolve decodes pos against the content of doc.
func Resolve(doc *Node, pos int) (*ResolvedPos, error) {
	if pos < 0 || pos > doc.ContentSize() {
		return nil, fmt.Errorf("position %d outside [0,%d]", pos, doc.ContentSize())
	}
	rp := &ResolvedPos{Pos: pos}
	node, start, rem := doc, 0, pos
	for {
		index, offset := childAt(node, rem)
		inner := rem - offset
		rp.path = append(rp.path, frame{node: node, index: index, start: start})
		if inner == 0 {
			break
		}
		child := node.Content[index]
		if child.IsLeaf() {
			rp.TextOffset = inner
			break
		}
		node = child
		start += offset + 1
		rem = inner - 1
	}
	return rp, nil
}

// childAt finds the child whose span contains pos, returning its index and
// the offset it starts at. A pos equal to the content size yields
// len(children).
func childAt(n *Node, pos int) (int, int) {
	offset := 0
	for i, c := range n.Content {
		end := offset + c.Size()
		if pos < end {
			return i, offset
		}
		offset = end
	}
	return len(n.Content), offset
}

// Depth is the number of ancestors between the document root and the
// position's parent.
func (r *ResolvedPos) Depth() int { return len(r.path) - 1 }

// Parent is the innermost node whose content holds the position.
func (r *ResolvedPos) Parent() *Node { return r.path[len(r.path)-1].node }

// Node returns the ancestor at depth d.
func (r *ResolvedPos) Node(d int) *Node { return r.path[d].node }

// Index is the child index of the position inside its parent.
func (r *ResolvedPos) Index() int { return r.path[len(r.path)-1].index }

// Start is the absolute position where the parent's content begins.
func (r *ResolvedPos) Start() int { return r.path[len(r.path)-1].start }

// ParentOffset is the offset of the position inside its parent's content.
func (r *ResolvedPos) ParentOffset() int { return r.Pos - r.Start() }

// SameParent reports whether both positions sit directly inside the same
// node.
func (r *ResolvedPos) SameParent(other *ResolvedPos) bool {
	return r.Depth() == other.Depth() && r.Start() == other.Start() && r.Parent() == other.Parent()
}
