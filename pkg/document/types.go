// Package document is the itinerary document model: a typed tree of block and
// inline nodes addressed by flat integer positions, plus the replace steps
// that edit it.
package document

// NodeType tags every node in the tree. The set is closed; decoding rejects
// anything not listed here.
type NodeType string

const (
	TypeDoc         NodeType = "doc"
	TypeHeading     NodeType = "heading"
	TypeParagraph   NodeType = "paragraph"
	TypeBulletList  NodeType = "bulletList"
	TypeOrderedList NodeType = "orderedList"
	TypeListItem    NodeType = "listItem"
	TypeText        NodeType = "text"
	TypeLocation    NodeType = "location"
)

// MarkType tags inline formatting carried by text runs.
type MarkType string

const (
	MarkBold    MarkType = "bold"
	MarkItalic  MarkType = "italic"
	MarkLink    MarkType = "link"
	MarkComment MarkType = "comment"
)

// markRank fixes the order marks are kept in, so two equal mark sets always
// compare equal element by element.
var markRank = map[MarkType]int{
	MarkBold:    0,
	MarkItalic:  1,
	MarkLink:    2,
	MarkComment: 3,
}

// TransportMode is how a traveller got to a location from the previous one.
type TransportMode string

const (
	TransportNone    TransportMode = ""
	TransportWalking TransportMode = "walking"
	TransportDriving TransportMode = "driving"
	TransportTransit TransportMode = "transit"
	TransportCycling TransportMode = "cycling"
	TransportFlight  TransportMode = "flight"
	TransportFerry   TransportMode = "ferry"
)

func (m TransportMode) valid() bool {
	switch m {
	case TransportNone, TransportWalking, TransportDriving, TransportTransit,
		TransportCycling, TransportFlight, TransportFerry:
		return true
	}
	return false
}

// Attrs is the per-kind attribute record of a node. Only the types in this
// package implement it.
type Attrs interface {
	nodeAttrs()
}

// HeadingAttrs belongs to TypeHeading.
type HeadingAttrs struct {
	Level int
}

// OrderedListAttrs belongs to TypeOrderedList.
type OrderedListAttrs struct {
	Start int
}

// LocationAttrs belongs to TypeLocation. ArrivedFrom is the place id of the
// previous stop, empty when absent.
type LocationAttrs struct {
	PlaceID       string
	Name          string
	Lat           float64
	Lng           float64
	ColorIndex    int
	ArrivedFrom   string
	TransportMode TransportMode
}

func (HeadingAttrs) nodeAttrs()     {}
func (OrderedListAttrs) nodeAttrs() {}
func (LocationAttrs) nodeAttrs()    {}

// MarkAttrs is the per-kind attribute record of a mark.
type MarkAttrs interface {
	markAttrs()
}

// LinkAttrs belongs to MarkLink.
type LinkAttrs struct {
	Href string
}

// CommentAttrs belongs to MarkComment. Timestamp is unix milliseconds.
type CommentAttrs struct {
	Author    string
	Timestamp int64
	Content   string
}

func (LinkAttrs) markAttrs()    {}
func (CommentAttrs) markAttrs() {}

// Mark is a piece of inline formatting. Attrs is nil for bold and italic.
type Mark struct {
	Type  MarkType
	Attrs MarkAttrs
}

// Node is one element of the document tree. Nodes are values: once built
// they are never mutated, edits produce new trees that share untouched
// subtrees with the old one.
type Node struct {
	Type    NodeType
	Attrs   Attrs
	Content []*Node

	// Text runs only.
	Text  string
	Marks []Mark
}
