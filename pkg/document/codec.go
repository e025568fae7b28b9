package document

import (
	"bytes"
	"encoding/json"
	"fmt"
)

type headingWire struct {
	Level int `json:"level"`
}

type orderedListWire struct {
	Start *int `json:"start,omitempty"`
}

type locationWire struct {
	PlaceID       string  `json:"placeId"`
	Name          string  `json:"name"`
	Lat           float64 `json:"lat"`
	Lng           float64 `json:"lng"`
	ColorIndex    int     `json:"colorIndex"`
	ArrivedFrom   *string `json:"arrivedFrom"`
	TransportMode *string `json:"transportMode"`
}

type linkWire struct {
	Href string `json:"href"`
}

type commentWire struct {
	Author    string `json:"author"`
	Timestamp int64  `json:"timestamp"`
	Content   string `json:"content"`
}

type elementOut struct {
	Type    NodeType    `json:"type"`
	Attrs   interface{} `json:"attrs"`
	Content []*Node     `json:"content"`
}

type textOut struct {
	Type  NodeType `json:"type"`
	Text  string   `json:"text"`
	Marks []Mark   `json:"marks"`
}

type nodeIn struct {
	Type    NodeType        `json:"type"`
	Attrs   json.RawMessage `json:"attrs"`
	Content []*Node         `json:"content"`
	Text    *string         `json:"text"`
	Marks   []Mark          `json:"marks"`
}

type markWire struct {
	Type  MarkType        `json:"type"`
	Attrs json.RawMessage `json:"attrs,omitempty"`
}

// MarshalJSON writes {type, attrs, content} for elements and
// {type:"text", text, marks} for text runs.
func (n *Node) MarshalJSON() ([]byte, error) {
	if n.Type == TypeText {
		marks := n.Marks
		if marks == nil {
			marks = []Mark{}
		}
		return json.Marshal(textOut{Type: TypeText, Text: n.Text, Marks: marks})
	}
	content := n.Content
	if content == nil {
		content = []*Node{}
	}
	return json.Marshal(elementOut{Type: n.Type, Attrs: encodeAttrs(n.Attrs), Content: content})
}

func encodeAttrs(a Attrs) interface{} {
	switch v := a.(type) {
	case HeadingAttrs:
		return headingWire{Level: v.Level}
	case OrderedListAttrs:
		start := v.Start
		return orderedListWire{Start: &start}
	case LocationAttrs:
		out := locationWire{
			PlaceID:    v.PlaceID,
			Name:       v.Name,
			Lat:        v.Lat,
			Lng:        v.Lng,
			ColorIndex: v.ColorIndex,
		}
		if v.ArrivedFrom != "" {
			from := v.ArrivedFrom
			out.ArrivedFrom = &from
		}
		if v.TransportMode != TransportNone {
			mode := string(v.TransportMode)
			out.TransportMode = &mode
		}
		return out
	}
	return struct{}{}
}

// UnmarshalJSON decodes one node, matching the type tag exhaustively. It
// checks shape only; use DecodeNode to also enforce the grammar.
func (n *Node) UnmarshalJSON(data []byte) error {
	var in nodeIn
	if err := json.Unmarshal(data, &in); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedNode, err)
	}
	for i, c := range in.Content {
		if c == nil {
			return fmt.Errorf("%w: %s child %d is null", ErrMalformedNode, in.Type, i)
		}
	}

	switch in.Type {
	case TypeText:
		if in.Text == nil {
			return fmt.Errorf("%w: text node without text", ErrMalformedNode)
		}
		if len(in.Content) > 0 || !emptyAttrs(in.Attrs) {
			return fmt.Errorf("%w: text node with attrs or content", ErrMalformedNode)
		}
		*n = Node{Type: TypeText, Text: *in.Text, Marks: normalizeMarks(in.Marks)}
		return nil
	case TypeDoc, TypeParagraph, TypeBulletList, TypeListItem, TypeHeading, TypeOrderedList, TypeLocation:
	case "":
		return fmt.Errorf("%w: missing type", ErrMalformedNode)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownNodeType, in.Type)
	}

	if in.Text != nil || len(in.Marks) > 0 {
		return fmt.Errorf("%w: %s cannot carry text or marks", ErrMalformedNode, in.Type)
	}
	attrs, err := decodeAttrs(in.Type, in.Attrs)
	if err != nil {
		return err
	}
	*n = Node{Type: in.Type, Attrs: attrs, Content: in.Content}
	return nil
}

func emptyAttrs(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) || bytes.Equal(trimmed, []byte("{}"))
}

func decodeAttrs(t NodeType, raw json.RawMessage) (Attrs, error) {
	switch t {
	case TypeHeading:
		var w headingWire
		if err := unmarshalAttrs(raw, &w); err != nil {
			return nil, err
		}
		return HeadingAttrs{Level: w.Level}, nil
	case TypeOrderedList:
		var w orderedListWire
		if err := unmarshalAttrs(raw, &w); err != nil {
			return nil, err
		}
		start := 1
		if w.Start != nil {
			start = *w.Start
		}
		return OrderedListAttrs{Start: start}, nil
	case TypeLocation:
		var w locationWire
		if err := unmarshalAttrs(raw, &w); err != nil {
			return nil, err
		}
		a := LocationAttrs{
			PlaceID:    w.PlaceID,
			Name:       w.Name,
			Lat:        w.Lat,
			Lng:        w.Lng,
			ColorIndex: w.ColorIndex,
		}
		if w.ArrivedFrom != nil {
			a.ArrivedFrom = *w.ArrivedFrom
		}
		if w.TransportMode != nil {
			a.TransportMode = TransportMode(*w.TransportMode)
		}
		return a, nil
	}
	return nil, nil
}

func unmarshalAttrs(raw json.RawMessage, v interface{}) error {
	if emptyAttrs(raw) {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: attrs: %v", ErrMalformedNode, err)
	}
	return nil
}

// MarshalJSON writes {type, attrs}.
func (m Mark) MarshalJSON() ([]byte, error) {
	var attrs interface{} = struct{}{}
	switch v := m.Attrs.(type) {
	case LinkAttrs:
		attrs = linkWire{Href: v.Href}
	case CommentAttrs:
		attrs = commentWire{Author: v.Author, Timestamp: v.Timestamp, Content: v.Content}
	}
	return json.Marshal(struct {
		Type  MarkType    `json:"type"`
		Attrs interface{} `json:"attrs"`
	}{m.Type, attrs})
}

// UnmarshalJSON decodes a mark, rejecting unknown mark types.
func (m *Mark) UnmarshalJSON(data []byte) error {
	var w markWire
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("%w: mark: %v", ErrMalformedNode, err)
	}
	switch w.Type {
	case MarkBold, MarkItalic:
		*m = Mark{Type: w.Type}
	case MarkLink:
		var a linkWire
		if err := unmarshalAttrs(w.Attrs, &a); err != nil {
			return err
		}
		*m = Mark{Type: MarkLink, Attrs: LinkAttrs{Href: a.Href}}
	case MarkComment:
		var a commentWire
		if err := unmarshalAttrs(w.Attrs, &a); err != nil {
			return err
		}
		*m = Mark{Type: MarkComment, Attrs: CommentAttrs{Author: a.Author, Timestamp: a.Timestamp, Content: a.Content}}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownMarkType, w.Type)
	}
	return nil
}

type stepWire struct {
	From        int     `json:"from"`
	To          int     `json:"to"`
	Replacement []*Node `json:"replacement"`
}

// MarshalJSON writes {from, to, replacement}.
func (s Step) MarshalJSON() ([]byte, error) {
	replacement := s.Replacement
	if replacement == nil {
		replacement = []*Node{}
	}
	return json.Marshal(stepWire{From: s.From, To: s.To, Replacement: replacement})
}

// UnmarshalJSON decodes a step and validates its structure before it can be
// applied: range shape, node types and the grammar of every replacement
// node.
func (s *Step) UnmarshalJSON(data []byte) error {
	var w stepWire
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedStep, err)
	}
	if w.From < 0 || w.To < w.From {
		return fmt.Errorf("%w: range [%d,%d)", ErrMalformedStep, w.From, w.To)
	}
	for i, n := range w.Replacement {
		if err := Check(n); err != nil {
			return fmt.Errorf("%w: replacement %d: %w", ErrMalformedStep, i, err)
		}
	}
	*s = Step{From: w.From, To: w.To, Replacement: w.Replacement}
	return nil
}

// DecodeNode parses and fully validates a node tree.
func DecodeNode(data []byte) (*Node, error) {
	var n Node
	if err := json.Unmarshal(data, &n); err != nil {
		return nil, err
	}
	if err := Check(&n); err != nil {
		return nil, err
	}
	return &n, nil
}

// DecodeDoc parses a node tree and requires it to be a document root.
func DecodeDoc(data []byte) (*Node, error) {
	n, err := DecodeNode(data)
	if err != nil {
		return nil, err
	}
	if n.Type != TypeDoc {
		return nil, fmt.Errorf("%w: root is %s, want doc", ErrMalformedNode, n.Type)
	}
	return n, nil
}

// DecodeSteps parses a JSON array of steps.
func DecodeSteps(data []byte) ([]Step, error) {
	var steps []Step
	if err := json.Unmarshal(data, &steps); err != nil {
		return nil, err
	}
	return steps, nil
}
