package compiler

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// voidElements never get an end tag.
var voidElements = map[atom.Atom]bool{
	atom.Area: true, atom.Base: true, atom.Br: true, atom.Col: true,
	atom.Embed: true, atom.Hr: true, atom.Img: true, atom.Input: true,
	atom.Link: true, atom.Meta: true, atom.Source: true, atom.Track: true,
	atom.Wbr: true,
}

// SplitBlocks cuts the complete top-level elements off the front of a
// partially received markup stream. rest is the unfinished tail to prepend to
// the next chunk. Text between top-level elements (whitespace, code fences)
// is dropped.
func SplitBlocks(markup string) (blocks []string, rest string) {
	z := html.NewTokenizer(strings.NewReader(markup))
	depth, start, offset := 0, 0, 0

	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			break
		}
		end := offset + len(z.Raw())
		if tt == html.StartTagToken {
			name, _ := z.TagName()
			if voidElements[atom.Lookup(name)] {
				tt = html.SelfClosingTagToken
			}
		}
		switch tt {
		case html.StartTagToken:
			if depth == 0 {
				start = offset
			}
			depth++
		case html.EndTagToken:
			depth--
			switch {
			case depth < 0: // stray end tag
				depth = 0
				start = end
			case depth == 0:
				blocks = append(blocks, markup[start:end])
				start = end
			}
		case html.SelfClosingTagToken:
			if depth == 0 {
				blocks = append(blocks, markup[offset:end])
				start = end
			}
		case html.TextToken, html.CommentToken, html.DoctypeToken:
			if depth == 0 {
				start = end
			}
		}
		offset = end
	}
	return blocks, markup[start:]
}
