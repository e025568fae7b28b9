package document

import (
	"sort"
	"strings"
	"unicode/utf8"
)

// Doc builds a document root.
func Doc(blocks ...*Node) *Node {
	return &Node{Type: TypeDoc, Content: blocks}
}

// Paragraph builds a paragraph holding inline content.
func Paragraph(inline ...*Node) *Node {
	return &Node{Type: TypeParagraph, Content: inline}
}

// Heading builds a heading of the given level.
func Heading(level int, inline ...*Node) *Node {
	return &Node{Type: TypeHeading, Attrs: HeadingAttrs{Level: level}, Content: inline}
}

// BulletList builds an unordered list.
func BulletList(items ...*Node) *Node {
	return &Node{Type: TypeBulletList, Content: items}
}

// OrderedList builds a numbered list starting at start.
func OrderedList(start int, items ...*Node) *Node {
	return &Node{Type: TypeOrderedList, Attrs: OrderedListAttrs{Start: start}, Content: items}
}

// ListItem builds a list item. Its first child must be a paragraph.
func ListItem(blocks ...*Node) *Node {
	return &Node{Type: TypeListItem, Content: blocks}
}

// Text builds a text run. Marks are normalized into canonical order.
func Text(text string, marks ...Mark) *Node {
	return &Node{Type: TypeText, Text: text, Marks: normalizeMarks(marks)}
}

// Location builds an inline location annotation.
func Location(attrs LocationAttrs) *Node {
	return &Node{Type: TypeLocation, Attrs: attrs}
}

// EmptyDoc is the canonical empty document: one empty paragraph.
func EmptyDoc() *Node {
	return Doc(Paragraph())
}

// IsEmptyDoc reports whether n is structurally the canonical empty document.
func IsEmptyDoc(n *Node) bool {
	return n != nil && n.Type == TypeDoc && len(n.Content) == 1 &&
		n.Content[0].Type == TypeParagraph && len(n.Content[0].Content) == 0
}

// IsText reports whether n is a text run.
func (n *Node) IsText() bool { return n.Type == TypeText }

// IsLeaf reports whether n can never hold child nodes.
func (n *Node) IsLeaf() bool {
	return n.Type == TypeText || n.Type == TypeLocation
}

// IsInline reports whether n lives inside textblocks.
func (n *Node) IsInline() bool {
	return n.Type == TypeText || n.Type == TypeLocation
}

// IsTextblock reports whether n holds inline content directly.
func (n *Node) IsTextblock() bool {
	return n.Type == TypeParagraph || n.Type == TypeHeading
}

// Size is the number of positions n occupies in its parent. Every position
// computation in this package goes through it.
func (n *Node) Size() int {
	switch n.Type {
	case TypeText:
		return utf8.RuneCountInString(n.Text)
	case TypeLocation:
		return 1
	}
	return n.ContentSize() + 2
}

// ContentSize is the number of positions taken by n's children.
func (n *Node) ContentSize() int {
	return fragmentSize(n.Content)
}

func fragmentSize(nodes []*Node) int {
	size := 0
	for _, c := range nodes {
		size += c.Size()
	}
	return size
}

// ChildCount returns the number of direct children.
func (n *Node) ChildCount() int { return len(n.Content) }

// Child returns the i-th child.
func (n *Node) Child(i int) *Node { return n.Content[i] }

// TextContent concatenates the text of every descendant text run. Locations
// contribute their display name.
func (n *Node) TextContent() string {
	var sb strings.Builder
	n.writeText(&sb)
	return sb.String()
}

func (n *Node) writeText(sb *strings.Builder) {
	switch n.Type {
	case TypeText:
		sb.WriteString(n.Text)
	case TypeLocation:
		if a, ok := n.Attrs.(LocationAttrs); ok {
			sb.WriteString(a.Name)
		}
	default:
		for _, c := range n.Content {
			c.writeText(sb)
		}
	}
}

// Equal compares two trees structurally.
func (n *Node) Equal(other *Node) bool {
	if n == other {
		return true
	}
	if n == nil || other == nil {
		return false
	}
	if n.Type != other.Type || n.Attrs != other.Attrs || n.Text != other.Text {
		return false
	}
	if !sameMarks(n.Marks, other.Marks) || len(n.Content) != len(other.Content) {
		return false
	}
	for i := range n.Content {
		if !n.Content[i].Equal(other.Content[i]) {
			return false
		}
	}
	return true
}

// EqualFragments compares two node lists structurally.
func EqualFragments(a, b []*Node) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

// withContent returns a shallow copy of n carrying new children.
func (n *Node) withContent(content []*Node) *Node {
	cp := *n
	cp.Content = content
	return &cp
}

// withChild returns a shallow copy of n with child i replaced.
func (n *Node) withChild(i int, child *Node) *Node {
	content := make([]*Node, len(n.Content))
	copy(content, n.Content)
	content[i] = child
	return n.withContent(content)
}

// cutText returns the part of a text run between rune offsets from and to.
func (n *Node) cutText(from, to int) *Node {
	runes := []rune(n.Text)
	return &Node{Type: TypeText, Text: string(runes[from:to]), Marks: n.Marks}
}

// JoinText merges adjacent text runs with identical marks. Steps apply it to
// the content they touch, so equal documents always have equal shapes.
func JoinText(nodes []*Node) []*Node {
	out := make([]*Node, 0, len(nodes))
	for _, c := range nodes {
		if last := len(out) - 1; last >= 0 && c.IsText() && out[last].IsText() && sameMarks(out[last].Marks, c.Marks) {
			out[last] = &Node{Type: TypeText, Text: out[last].Text + c.Text, Marks: c.Marks}
			continue
		}
		out = append(out, c)
	}
	return out
}

func normalizeMarks(marks []Mark) []Mark {
	if len(marks) == 0 {
		return nil
	}
	out := make([]Mark, 0, len(marks))
	for _, m := range marks {
		if !hasMark(out, m.Type) {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return markRank[out[i].Type] < markRank[out[j].Type]
	})
	return out
}

func hasMark(marks []Mark, t MarkType) bool {
	for _, m := range marks {
		if m.Type == t {
			return true
		}
	}
	return false
}

func sameMarks(a, b []Mark) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
