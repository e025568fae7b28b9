package document

import (
	"fmt"
	"math"
)

// contentRule describes what a node type may hold.
type contentRule struct {
	first   func(NodeType) bool // constraint on the first child, nil when none
	allowed func(NodeType) bool
	min     int
}

func isBlock(t NodeType) bool {
	switch t {
	case TypeHeading, TypeParagraph, TypeBulletList, TypeOrderedList:
		return true
	}
	return false
}

func isInline(t NodeType) bool {
	return t == TypeText || t == TypeLocation
}

func isListItem(t NodeType) bool { return t == TypeListItem }

func isParagraph(t NodeType) bool { return t == TypeParagraph }

func isListItemChild(t NodeType) bool {
	return t == TypeParagraph || t == TypeBulletList || t == TypeOrderedList
}

func noChildren(NodeType) bool { return false }

var rules = map[NodeType]contentRule{
	TypeDoc:         {allowed: isBlock, min: 1},
	TypeHeading:     {allowed: isInline},
	TypeParagraph:   {allowed: isInline},
	TypeBulletList:  {allowed: isListItem, min: 1},
	TypeOrderedList: {allowed: isListItem, min: 1},
	TypeListItem:    {first: isParagraph, allowed: isListItemChild, min: 1},
	TypeText:        {allowed: noChildren},
	TypeLocation:    {allowed: noChildren},
}

// validContent checks a child list against the grammar of parent type t.
func validContent(t NodeType, content []*Node) error {
	rule, ok := rules[t]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownNodeType, t)
	}
	if len(content) < rule.min {
		return fmt.Errorf("%s needs at least %d child node(s), got %d", t, rule.min, len(content))
	}
	for i, c := range content {
		if i == 0 && rule.first != nil && !rule.first(c.Type) {
			return fmt.Errorf("%s cannot start with %s", t, c.Type)
		}
		if !rule.allowed(c.Type) {
			return fmt.Errorf("%s cannot contain %s", t, c.Type)
		}
	}
	return nil
}

// Check validates a whole subtree: attributes, marks and grammar.
func Check(n *Node) error {
	if n == nil {
		return fmt.Errorf("%w: nil node", ErrMalformedNode)
	}
	if err := checkAttrs(n); err != nil {
		return err
	}
	if err := checkMarks(n); err != nil {
		return err
	}
	if n.Type == TypeText && n.Text == "" {
		return fmt.Errorf("%w: empty text node", ErrMalformedNode)
	}
	if err := validContent(n.Type, n.Content); err != nil {
		return err
	}
	for _, c := range n.Content {
		if err := Check(c); err != nil {
			return err
		}
	}
	return nil
}

func checkAttrs(n *Node) error {
	switch n.Type {
	case TypeHeading:
		a, ok := n.Attrs.(HeadingAttrs)
		if !ok {
			return fmt.Errorf("%w: heading without heading attrs", ErrMalformedNode)
		}
		if a.Level < 1 || a.Level > 6 {
			return fmt.Errorf("%w: heading level %d", ErrMalformedNode, a.Level)
		}
	case TypeOrderedList:
		a, ok := n.Attrs.(OrderedListAttrs)
		if !ok {
			return fmt.Errorf("%w: ordered list without list attrs", ErrMalformedNode)
		}
		if a.Start < 1 {
			return fmt.Errorf("%w: ordered list start %d", ErrMalformedNode, a.Start)
		}
	case TypeLocation:
		a, ok := n.Attrs.(LocationAttrs)
		if !ok {
			return fmt.Errorf("%w: location without location attrs", ErrMalformedNode)
		}
		return checkLocation(a)
	default:
		if n.Attrs != nil {
			return fmt.Errorf("%w: %s takes no attrs", ErrMalformedNode, n.Type)
		}
	}
	return nil
}

func checkLocation(a LocationAttrs) error {
	switch {
	case a.PlaceID == "":
		return fmt.Errorf("%w: location without place id", ErrMalformedNode)
	case a.Name == "":
		return fmt.Errorf("%w: location %s without name", ErrMalformedNode, a.PlaceID)
	case math.IsNaN(a.Lat) || a.Lat < -90 || a.Lat > 90:
		return fmt.Errorf("%w: latitude %v", ErrMalformedNode, a.Lat)
	case math.IsNaN(a.Lng) || a.Lng < -180 || a.Lng > 180:
		return fmt.Errorf("%w: longitude %v", ErrMalformedNode, a.Lng)
	case a.ColorIndex < 0:
		return fmt.Errorf("%w: color index %d", ErrMalformedNode, a.ColorIndex)
	case !a.TransportMode.valid():
		return fmt.Errorf("%w: transport mode %q", ErrMalformedNode, a.TransportMode)
	case a.TransportMode != TransportNone && a.ArrivedFrom == "":
		return fmt.Errorf("%w: transport mode without arrived-from", ErrMalformedNode)
	}
	return nil
}

func checkMarks(n *Node) error {
	if len(n.Marks) == 0 {
		return nil
	}
	if n.Type != TypeText {
		return fmt.Errorf("%w: %s cannot carry marks", ErrMalformedNode, n.Type)
	}
	for i, m := range n.Marks {
		if i > 0 && markRank[n.Marks[i-1].Type] >= markRank[m.Type] {
			return fmt.Errorf("%w: marks not in canonical order", ErrMalformedNode)
		}
		switch m.Type {
		case MarkBold, MarkItalic:
			if m.Attrs != nil {
				return fmt.Errorf("%w: %s mark takes no attrs", ErrMalformedNode, m.Type)
			}
		case MarkLink:
			a, ok := m.Attrs.(LinkAttrs)
			if !ok || a.Href == "" {
				return fmt.Errorf("%w: link mark without href", ErrMalformedNode)
			}
		case MarkComment:
			a, ok := m.Attrs.(CommentAttrs)
			if !ok || a.Author == "" {
				return fmt.Errorf("%w: comment mark without author", ErrMalformedNode)
			}
		default:
			return fmt.Errorf("%w: %q", ErrUnknownMarkType, m.Type)
		}
	}
	return nil
}
