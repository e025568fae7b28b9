package compiler

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"itinerary-collab-be/pkg/document"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ParseBlocks turns block-level markup into document blocks. Every element
// must map onto the document grammar; anything else is an error rather than
// being dropped or guessed at.
//
// Supported: <h1>-<h6>, <p>, <ul>, <ol start>, <li>, <strong>/<b>, <em>/<i>,
// <a href>, <span data-comment-author ...> and
// <location place-id name lat lng color-index arrived-from transport-mode>.
//
// A location is written with an explicit end tag. Its name comes from the
// name attribute, in which case the element must be empty, or from its body,
// which must then be plain text only. The self-closing form <location .../>
// is not supported: HTML parsing ignores the slash on unknown elements, so
// the rest of the paragraph would nest inside it, and that is rejected.
func ParseBlocks(markup string) ([]*document.Node, error) {
	body := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	roots, err := html.ParseFragment(strings.NewReader(markup), body)
	if err != nil {
		return nil, fmt.Errorf("parse markup: %w", err)
	}

	var blocks []*document.Node
	for _, n := range roots {
		switch n.Type {
		case html.CommentNode, html.DoctypeNode:
			continue
		case html.TextNode:
			if strings.TrimSpace(n.Data) != "" {
				return nil, fmt.Errorf("text %q outside a block element", clip(n.Data))
			}
			continue
		case html.ElementNode:
			b, err := parseBlock(n)
			if err != nil {
				return nil, err
			}
			if err := document.Check(b); err != nil {
				return nil, fmt.Errorf("<%s>: %w", n.Data, err)
			}
			blocks = append(blocks, b)
		}
	}
	return blocks, nil
}

func headingLevel(a atom.Atom) int {
	switch a {
	case atom.H1:
		return 1
	case atom.H2:
		return 2
	case atom.H3:
		return 3
	case atom.H4:
		return 4
	case atom.H5:
		return 5
	case atom.H6:
		return 6
	}
	return 0
}

func isBlockElement(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	switch n.DataAtom {
	case atom.P, atom.Ul, atom.Ol, atom.Li:
		return true
	}
	return headingLevel(n.DataAtom) > 0
}

func parseBlock(n *html.Node) (*document.Node, error) {
	if level := headingLevel(n.DataAtom); level > 0 {
		inline, err := parseInlineChildren(n)
		if err != nil {
			return nil, err
		}
		return document.Heading(level, inline...), nil
	}

	switch n.DataAtom {
	case atom.P:
		inline, err := parseInlineChildren(n)
		if err != nil {
			return nil, err
		}
		return document.Paragraph(inline...), nil
	case atom.Ul, atom.Ol:
		items, err := parseListItems(n)
		if err != nil {
			return nil, err
		}
		if n.DataAtom == atom.Ul {
			return document.BulletList(items...), nil
		}
		start := 1
		if v, ok := attr(n, "start"); ok {
			if start, err = strconv.Atoi(v); err != nil {
				return nil, fmt.Errorf("<ol start=%q>: %w", v, err)
			}
		}
		return document.OrderedList(start, items...), nil
	}
	return nil, fmt.Errorf("unsupported block element <%s>", n.Data)
}

func parseListItems(list *html.Node) ([]*document.Node, error) {
	var items []*document.Node
	for c := list.FirstChild; c != nil; c = c.NextSibling {
		switch {
		case c.Type == html.CommentNode:
		case c.Type == html.TextNode && strings.TrimSpace(c.Data) == "":
		case c.Type == html.ElementNode && c.DataAtom == atom.Li:
			item, err := parseListItem(c)
			if err != nil {
				return nil, err
			}
			items = append(items, item)
		default:
			return nil, fmt.Errorf("<%s> may only contain <li>", list.Data)
		}
	}
	return items, nil
}

// parseListItem wraps a leading run of inline content into a paragraph; that
// is the one shape list items accept inline content in.
func parseListItem(li *html.Node) (*document.Node, error) {
	var blocks []*document.Node
	var pending []*document.Node
	flush := func() error {
		inline := finishInline(pending)
		pending = nil
		if len(inline) == 0 {
			return nil
		}
		if len(blocks) > 0 {
			return fmt.Errorf("<li> has inline content after a block")
		}
		blocks = append(blocks, document.Paragraph(inline...))
		return nil
	}

	for c := li.FirstChild; c != nil; c = c.NextSibling {
		if isBlockElement(c) {
			if err := flush(); err != nil {
				return nil, err
			}
			b, err := parseBlock(c)
			if err != nil {
				return nil, err
			}
			blocks = append(blocks, b)
			continue
		}
		var err error
		if pending, err = parseInline(c, nil, pending); err != nil {
			return nil, err
		}
	}
	if err := flush(); err != nil {
		return nil, err
	}
	if len(blocks) == 0 {
		blocks = append(blocks, document.Paragraph())
	}
	return document.ListItem(blocks...), nil
}

func parseInlineChildren(n *html.Node) ([]*document.Node, error) {
	var out []*document.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		var err error
		if out, err = parseInline(c, nil, out); err != nil {
			return nil, err
		}
	}
	return finishInline(out), nil
}

func parseInline(n *html.Node, marks []document.Mark, out []*document.Node) ([]*document.Node, error) {
	switch n.Type {
	case html.CommentNode:
		return out, nil
	case html.TextNode:
		return append(out, document.Text(collapseSpace(n.Data), marks...)), nil
	case html.ElementNode:
	default:
		return nil, fmt.Errorf("unexpected markup node")
	}

	switch n.DataAtom {
	case atom.Strong, atom.B:
		return parseInlineMarked(n, append(marks, document.Mark{Type: document.MarkBold}), out)
	case atom.Em, atom.I:
		return parseInlineMarked(n, append(marks, document.Mark{Type: document.MarkItalic}), out)
	case atom.A:
		href, ok := attr(n, "href")
		if !ok || href == "" {
			return nil, fmt.Errorf("<a> without href")
		}
		link := document.Mark{Type: document.MarkLink, Attrs: document.LinkAttrs{Href: href}}
		return parseInlineMarked(n, append(marks, link), out)
	case atom.Span:
		comment, err := parseComment(n)
		if err != nil {
			return nil, err
		}
		return parseInlineMarked(n, append(marks, comment), out)
	}
	if n.Data == "location" {
		loc, err := parseLocation(n)
		if err != nil {
			return nil, err
		}
		return append(out, loc), nil
	}
	if isBlockElement(n) {
		return nil, fmt.Errorf("block element <%s> inside inline content", n.Data)
	}
	return nil, fmt.Errorf("unsupported element <%s>", n.Data)
}

func parseInlineMarked(n *html.Node, marks []document.Mark, out []*document.Node) ([]*document.Node, error) {
	// copy so sibling branches do not share a backing array
	own := make([]document.Mark, len(marks))
	copy(own, marks)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		var err error
		if out, err = parseInline(c, own, out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func parseComment(n *html.Node) (document.Mark, error) {
	author, ok := attr(n, "data-comment-author")
	if !ok {
		return document.Mark{}, fmt.Errorf("<span> is only supported as a comment (data-comment-author)")
	}
	a := document.CommentAttrs{Author: author}
	a.Content, _ = attr(n, "data-comment-content")
	if v, ok := attr(n, "data-comment-timestamp"); ok {
		ts, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return document.Mark{}, fmt.Errorf("comment timestamp %q: %w", v, err)
		}
		a.Timestamp = ts
	}
	return document.Mark{Type: document.MarkComment, Attrs: a}, nil
}

func parseLocation(n *html.Node) (*document.Node, error) {
	a := document.LocationAttrs{}
	a.PlaceID, _ = attr(n, "place-id")
	body, err := locationBody(n)
	if err != nil {
		return nil, err
	}
	if name, ok := attr(n, "name"); ok {
		if body != "" {
			return nil, fmt.Errorf("<location name=%q> must be empty, found %q", name, clip(body))
		}
		a.Name = name
	} else {
		a.Name = body
	}
	if a.Name == "" {
		return nil, fmt.Errorf("<location> without a name")
	}
	a.ArrivedFrom, _ = attr(n, "arrived-from")
	if v, ok := attr(n, "transport-mode"); ok {
		a.TransportMode = document.TransportMode(v)
	}

	if a.Lat, err = floatAttr(n, "lat"); err != nil {
		return nil, err
	}
	if a.Lng, err = floatAttr(n, "lng"); err != nil {
		return nil, err
	}
	if v, ok := attr(n, "color-index"); ok {
		if a.ColorIndex, err = strconv.Atoi(v); err != nil {
			return nil, fmt.Errorf("<location color-index=%q>: %w", v, err)
		}
	}
	return document.Location(a), nil
}

func floatAttr(n *html.Node, key string) (float64, error) {
	v, ok := attr(n, key)
	if !ok {
		return 0, fmt.Errorf("<location> without %s", key)
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("<location %s=%q>: %w", key, v, err)
	}
	return f, nil
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

// locationBody returns the collapsed text inside a location. Any element or
// comment in there is an error.
func locationBody(n *html.Node) (string, error) {
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.TextNode {
			what := "comment"
			if c.Type == html.ElementNode {
				what = "<" + c.Data + ">"
			}
			return "", fmt.Errorf("<location> may only contain text, found %s", what)
		}
		sb.WriteString(c.Data)
	}
	return strings.TrimSpace(collapseSpace(sb.String())), nil
}

// collapseSpace folds every whitespace run into one space, as HTML renders
// it.
func collapseSpace(s string) string {
	var sb strings.Builder
	space := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			if !space {
				sb.WriteByte(' ')
			}
			space = true
			continue
		}
		space = false
		sb.WriteRune(r)
	}
	return sb.String()
}

// finishInline trims whitespace at the block edges and between runs, drops
// empty runs and merges neighbours with equal marks.
func finishInline(nodes []*document.Node) []*document.Node {
	out := make([]*document.Node, 0, len(nodes))
	trailingSpace := true // block start behaves like preceding whitespace
	for _, n := range nodes {
		if !n.IsText() {
			out = append(out, n)
			trailingSpace = false
			continue
		}
		text := n.Text
		if trailingSpace {
			text = strings.TrimLeft(text, " ")
		}
		if text == "" {
			continue
		}
		trailingSpace = strings.HasSuffix(text, " ")
		out = append(out, &document.Node{Type: document.TypeText, Text: text, Marks: n.Marks})
	}
	// trim the block end
	for len(out) > 0 {
		last := out[len(out)-1]
		if !last.IsText() {
			break
		}
		text := strings.TrimRight(last.Text, " ")
		if text != "" {
			out[len(out)-1] = &document.Node{Type: document.TypeText, Text: text, Marks: last.Marks}
			break
		}
		out = out[:len(out)-1]
	}
	return document.JoinText(out)
}

func clip(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 40 {
		return s[:40] + "..."
	}
	return s
}
