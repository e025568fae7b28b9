package compiler

import (
	"bytes"
	"fmt"
	"strconv"

	"itinerary-collab-be/pkg/document"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Render serializes a document (or any subtree) to the markup ParseBlocks
// reads. Text without repeated or edge whitespace survives the round trip
// exactly.
func Render(n *document.Node) (string, error) {
	var buf bytes.Buffer
	var roots []*html.Node
	if n.Type == document.TypeDoc {
		for _, c := range n.Content {
			roots = append(roots, renderNode(c)...)
		}
	} else {
		roots = renderNode(n)
	}
	for _, r := range roots {
		if err := html.Render(&buf, r); err != nil {
			return "", fmt.Errorf("render %s: %w", n.Type, err)
		}
	}
	return buf.String(), nil
}

func element(a atom.Atom, attrs ...html.Attribute) *html.Node {
	return &html.Node{Type: html.ElementNode, DataAtom: a, Data: a.String(), Attr: attrs}
}

func appendAll(parent *html.Node, children []*html.Node) *html.Node {
	for _, c := range children {
		parent.AppendChild(c)
	}
	return parent
}

func renderNode(n *document.Node) []*html.Node {
	switch n.Type {
	case document.TypeHeading:
		a, _ := n.Attrs.(document.HeadingAttrs)
		tag := atom.Lookup([]byte("h" + strconv.Itoa(a.Level)))
		return []*html.Node{appendAll(element(tag), renderChildren(n))}
	case document.TypeParagraph:
		return []*html.Node{appendAll(element(atom.P), renderChildren(n))}
	case document.TypeBulletList:
		return []*html.Node{appendAll(element(atom.Ul), renderChildren(n))}
	case document.TypeOrderedList:
		ol := element(atom.Ol)
		if a, _ := n.Attrs.(document.OrderedListAttrs); a.Start != 1 {
			ol.Attr = append(ol.Attr, html.Attribute{Key: "start", Val: strconv.Itoa(a.Start)})
		}
		return []*html.Node{appendAll(ol, renderChildren(n))}
	case document.TypeListItem:
		return []*html.Node{appendAll(element(atom.Li), renderChildren(n))}
	case document.TypeLocation:
		return []*html.Node{renderLocation(n)}
	case document.TypeText:
		return []*html.Node{renderText(n)}
	}
	return renderChildren(n)
}

func renderChildren(n *document.Node) []*html.Node {
	var out []*html.Node
	for _, c := range n.Content {
		out = append(out, renderNode(c)...)
	}
	return out
}

// renderText nests marks outermost first, in canonical order.
func renderText(n *document.Node) *html.Node {
	node := &html.Node{Type: html.TextNode, Data: n.Text}
	for i := len(n.Marks) - 1; i >= 0; i-- {
		var wrap *html.Node
		m := n.Marks[i]
		switch m.Type {
		case document.MarkBold:
			wrap = element(atom.Strong)
		case document.MarkItalic:
			wrap = element(atom.Em)
		case document.MarkLink:
			a, _ := m.Attrs.(document.LinkAttrs)
			wrap = element(atom.A, html.Attribute{Key: "href", Val: a.Href})
		case document.MarkComment:
			a, _ := m.Attrs.(document.CommentAttrs)
			wrap = element(atom.Span,
				html.Attribute{Key: "data-comment-author", Val: a.Author},
				html.Attribute{Key: "data-comment-timestamp", Val: strconv.FormatInt(a.Timestamp, 10)},
				html.Attribute{Key: "data-comment-content", Val: a.Content},
			)
		default:
			continue
		}
		wrap.AppendChild(node)
		node = wrap
	}
	return node
}

func renderLocation(n *document.Node) *html.Node {
	a, _ := n.Attrs.(document.LocationAttrs)
	attrs := []html.Attribute{
		{Key: "place-id", Val: a.PlaceID},
		{Key: "name", Val: a.Name},
		{Key: "lat", Val: strconv.FormatFloat(a.Lat, 'f', -1, 64)},
		{Key: "lng", Val: strconv.FormatFloat(a.Lng, 'f', -1, 64)},
		{Key: "color-index", Val: strconv.Itoa(a.ColorIndex)},
	}
	if a.ArrivedFrom != "" {
		attrs = append(attrs, html.Attribute{Key: "arrived-from", Val: a.ArrivedFrom})
	}
	if a.TransportMode != document.TransportNone {
		attrs = append(attrs, html.Attribute{Key: "transport-mode", Val: string(a.TransportMode)})
	}
	return &html.Node{Type: html.ElementNode, Data: "location", Attr: attrs}
}
