package document

import (
	"errors"
	"unicode/utf8"
)

// Step removes the content spanning [From, To) and inserts Replacement at
// From. Replacement holds whole nodes; a step never opens or closes a node
// half way.
type Step struct {
	From        int
	To          int
	Replacement []*Node
}

// Replace builds a step replacing [from, to) with nodes.
func Replace(from, to int, nodes ...*Node) Step {
	return Step{From: from, To: to, Replacement: nodes}
}

// Insert builds a zero-width step inserting nodes at pos.
func Insert(pos int, nodes ...*Node) Step {
	return Step{From: pos, To: pos, Replacement: nodes}
}

// Delete builds a step removing [from, to).
func Delete(from, to int) Step {
	return Step{From: from, To: to}
}

// InsertedSize is the number of positions the replacement occupies.
func (s Step) InsertedSize() int {
	return fragmentSize(s.Replacement)
}

// Delta is how much the document grows (or shrinks) when s is applied.
func (s Step) Delta() int {
	return s.InsertedSize() - (s.To - s.From)
}

// MapPos moves a position from the document before s to the document after
// it. Positions inside the replaced range collapse to its start, or to its
// end when assoc > 0.
func (s Step) MapPos(pos, assoc int) int {
	switch {
	case pos < s.From:
		return pos
	case pos > s.To || (pos == s.To && (assoc > 0 || s.From != s.To)):
		return pos + s.Delta()
	case assoc > 0:
		return s.From + s.InsertedSize()
	default:
		return s.From
	}
}

// Equal compares two steps structurally.
func (s Step) Equal(other Step) bool {
	return s.From == other.From && s.To == other.To && EqualFragments(s.Replacement, other.Replacement)
}

// Apply runs s against doc. It either returns a new schema-valid document or
// a *StepFailure; doc itself is never modified.
func (s Step) Apply(doc *Node) (*Node, error) {
	if s.From < 0 || s.From > s.To {
		return nil, fail(FailureInvalidRange, s, "from must be in [0,to]")
	}
	if doc == nil || doc.Type != TypeDoc {
		return nil, fail(FailureInvalidContent, s, "steps apply to documents only")
	}
	if size := doc.ContentSize(); s.To > size {
		return nil, fail(FailureOutOfRange, s, "document size is %d", size)
	}
	for i, n := range s.Replacement {
		if err := Check(n); err != nil {
			return nil, fail(FailureInvalidContent, s, "replacement node %d: %v", i, err)
		}
	}

	rFrom, err := Resolve(doc, s.From)
	if err != nil {
		return nil, fail(FailureOutOfRange, s, "%v", err)
	}
	rTo, err := Resolve(doc, s.To)
	if err != nil {
		return nil, fail(FailureOutOfRange, s, "%v", err)
	}
	if !rFrom.SameParent(rTo) {
		return nil, fail(FailureBoundaryMismatch, s, "from and to are in different nodes")
	}

	parent := rFrom.Parent()
	children := parent.Content
	fi, ti := rFrom.Index(), rTo.Index()

	content := make([]*Node, 0, len(children)+len(s.Replacement)+1)
	content = append(content, children[:fi]...)
	if rFrom.TextOffset > 0 {
		content = append(content, children[fi].cutText(0, rFrom.TextOffset))
	}
	content = append(content, s.Replacement...)
	rest := ti
	if rTo.TextOffset > 0 {
		t := children[ti]
		content = append(content, t.cutText(rTo.TextOffset, utf8.RuneCountInString(t.Text)))
		rest = ti + 1
	}
	content = append(content, children[rest:]...)
	content = JoinText(content)

	if err := validContent(parent.Type, content); err != nil {
		return nil, fail(FailureInvalidContent, s, "%v", err)
	}

	node := parent.withContent(content)
	for d := rFrom.Depth() - 1; d >= 0; d-- {
		f := rFrom.path[d]
		node = f.node.withChild(f.index, node)
	}
	return node, nil
}

// Apply is the free-function form of Step.Apply.
func Apply(doc *Node, s Step) (*Node, error) {
	return s.Apply(doc)
}

// ComposeSequential applies steps in order, stopping at the first failure.
// The returned *StepFailure has Index set to the failing step.
func ComposeSequential(doc *Node, steps []Step) (*Node, error) {
	cur := doc
	for i, s := range steps {
		next, err := s.Apply(cur)
		if err != nil {
			var f *StepFailure
			if errors.As(err, &f) {
				f.Index = i
			}
			return nil, err
		}
		cur = next
	}
	return cur, nil
}
