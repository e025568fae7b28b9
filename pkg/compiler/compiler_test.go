package compiler

import (
	"errors"
	"testing"

	"itinerary-collab-be/pkg/document"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireFailure(t *testing.T, err error, kind FailureKind) *CompileFailure {
	t.Helper()
	var f *CompileFailure
	require.True(t, errors.As(err, &f), "want *CompileFailure, got %v", err)
	assert.Equal(t, kind, f.Kind)
	return f
}

func TestCompileReplaceEmpty(t *testing.T) {
	baseline := document.EmptyDoc()
	res, err := CompileDocument("<h1>Trip</h1><p>Hello</p>", baseline, ModeReplaceEmpty, AppendAtEnd)
	require.NoError(t, err)

	heading := document.Heading(1, document.Text("Trip"))
	para := document.Paragraph(document.Text("Hello"))
	require.Len(t, res.Steps, 2)
	assert.True(t, res.Steps[0].Equal(document.Replace(0, 2, heading)), "first step %+v", res.Steps[0])
	assert.True(t, res.Steps[1].Equal(document.Insert(heading.Size(), para)), "second step %+v", res.Steps[1])
	assert.Equal(t, 6, res.Steps[1].From)

	assert.True(t, document.Doc(heading, para).Equal(res.Document))
	assert.True(t, document.IsEmptyDoc(baseline), "baseline must not change")
}

func TestCompileAppend(t *testing.T) {
	baseline := document.Doc(document.Paragraph(document.Text("Day one")))

	steps, err := Compile("<ul><li>Temple</li></ul><p>Dinner</p>", baseline, ModeAppend, AppendAtEnd)
	require.NoError(t, err)
	require.Len(t, steps, 2)
	assert.Equal(t, 9, steps[0].From)
	assert.Equal(t, 9, steps[0].To)
	assert.Equal(t, 9+steps[0].InsertedSize(), steps[1].From)

	got, err := document.ComposeSequential(baseline, steps)
	require.NoError(t, err)
	want := document.Doc(
		document.Paragraph(document.Text("Day one")),
		document.BulletList(document.ListItem(document.Paragraph(document.Text("Temple")))),
		document.Paragraph(document.Text("Dinner")),
	)
	if diff := cmp.Diff(want, got, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("document mismatch (-want +got):\n%s", diff)
	}
}

func TestCompileAppendAtExplicitPosition(t *testing.T) {
	baseline := document.Doc(document.Paragraph(document.Text("a")), document.Paragraph(document.Text("b")))

	steps, err := Compile("<h2>Middle</h2>", baseline, ModeAppend, 3)
	require.NoError(t, err)
	got, err := document.ComposeSequential(baseline, steps)
	require.NoError(t, err)
	assert.Equal(t, "Middle", got.Child(1).TextContent())
}

func TestCompileIsIdempotent(t *testing.T) {
	baseline := document.EmptyDoc()
	markup := `<h1>Kyoto</h1><ol><li>Fushimi <b>Inari</b></li><li>Gion</li></ol>`

	first, err := CompileDocument(markup, baseline, ModeReplaceEmpty, AppendAtEnd)
	require.NoError(t, err)
	second, err := CompileDocument(markup, baseline, ModeReplaceEmpty, AppendAtEnd)
	require.NoError(t, err)

	if diff := cmp.Diff(first.Document, second.Document, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("second compile differs (-first +second):\n%s", diff)
	}
}

func TestCompileFailures(t *testing.T) {
	full := document.Doc(document.Paragraph(document.Text("Hello")))
	tests := []struct {
		name     string
		markup   string
		baseline *document.Node
		mode     Mode
		pos      int
		want     FailureKind
	}{
		{name: "unknown element", markup: "<table><tr><td>x</td></tr></table>", baseline: full, mode: ModeAppend, pos: AppendAtEnd, want: FailureInvalidMarkup},
		{name: "div is not part of the grammar", markup: "<p>x</p><div>y</div>", baseline: full, mode: ModeAppend, pos: AppendAtEnd, want: FailureInvalidMarkup},
		{name: "bare text", markup: "just text", baseline: full, mode: ModeAppend, pos: AppendAtEnd, want: FailureInvalidMarkup},
		{name: "link without href", markup: "<p><a>x</a></p>", baseline: full, mode: ModeAppend, pos: AppendAtEnd, want: FailureInvalidMarkup},
		{name: "plain span", markup: "<p><span>x</span></p>", baseline: full, mode: ModeAppend, pos: AppendAtEnd, want: FailureInvalidMarkup},
		{name: "location without coordinates", markup: `<p><location place-id="x" name="X"></location></p>`, baseline: full, mode: ModeAppend, pos: AppendAtEnd, want: FailureInvalidMarkup},
		{name: "self-closing location swallows the rest", markup: `<p>Visit <location place-id="p" name="Paris" lat="1" lng="2"/> today</p>`, baseline: full, mode: ModeAppend, pos: AppendAtEnd, want: FailureInvalidMarkup},
		{name: "element inside location", markup: `<p>Visit <location place-id="p" lat="1" lng="2"><b>Louvre</b> tour</location></p>`, baseline: full, mode: ModeAppend, pos: AppendAtEnd, want: FailureInvalidMarkup},
		{name: "location with name and body", markup: `<p><location place-id="p" name="Paris" lat="1" lng="2">Louvre</location></p>`, baseline: full, mode: ModeAppend, pos: AppendAtEnd, want: FailureInvalidMarkup},
		{name: "location without a name", markup: `<p><location place-id="p" lat="1" lng="2"> </location></p>`, baseline: full, mode: ModeAppend, pos: AppendAtEnd, want: FailureInvalidMarkup},
		{name: "inline after block in list item", markup: "<ul><li><p>a</p>b</li></ul>", baseline: full, mode: ModeAppend, pos: AppendAtEnd, want: FailureInvalidMarkup},
		{name: "empty list", markup: "<ul></ul>", baseline: full, mode: ModeAppend, pos: AppendAtEnd, want: FailureInvalidMarkup},
		{name: "no blocks", markup: "  <!-- nothing -->  ", baseline: full, mode: ModeAppend, pos: AppendAtEnd, want: FailureEmptyContent},
		{name: "replace on non-empty baseline", markup: "<p>x</p>", baseline: full, mode: ModeReplaceEmpty, pos: AppendAtEnd, want: FailureBaselineNotEmpty},
		{name: "unknown mode", markup: "<p>x</p>", baseline: full, mode: "prepend", pos: AppendAtEnd, want: FailureInvalidMode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			steps, err := Compile(tt.markup, tt.baseline, tt.mode, tt.pos)
			assert.Nil(t, steps)
			requireFailure(t, err, tt.want)
		})
	}
}

func TestCompileDryRunReportsFailingStep(t *testing.T) {
	baseline := document.Doc(document.Paragraph(document.Text("Hello")))

	// position 3 is inside the paragraph, where blocks cannot go
	steps, err := Compile("<p>a</p><p>b</p>", baseline, ModeAppend, 3)
	assert.Nil(t, steps)
	f := requireFailure(t, err, FailureValidation)
	assert.Equal(t, 0, f.StepIndex)

	var sf *document.StepFailure
	require.True(t, errors.As(err, &sf))
	assert.Equal(t, document.FailureInvalidContent, sf.Kind)

	_, err = DryRun(baseline, []document.Step{
		document.Insert(7, document.Paragraph()),
		document.Delete(0, 50),
	})
	f = requireFailure(t, err, FailureValidation)
	assert.Equal(t, 1, f.StepIndex)
}

func TestParseBlocks(t *testing.T) {
	comment := document.Mark{Type: document.MarkComment, Attrs: document.CommentAttrs{Author: "ana", Timestamp: 1700000000000, Content: "cash only"}}
	tests := []struct {
		name   string
		markup string
		want   []*document.Node
	}{
		{
			name:   "whitespace collapses and trims at block edges",
			markup: "<p>  Hello\n   <strong>big</strong>  world </p>",
			want: []*document.Node{document.Paragraph(
				document.Text("Hello "),
				document.Text("big", document.Mark{Type: document.MarkBold}),
				document.Text(" world"),
			)},
		},
		{
			name:   "nested marks",
			markup: `<h3><em><b>Both</b></em> <a href="https://example.com">link</a></h3>`,
			want: []*document.Node{document.Heading(3,
				document.Text("Both", document.Mark{Type: document.MarkBold}, document.Mark{Type: document.MarkItalic}),
				document.Text(" "),
				document.Text("link", document.Mark{Type: document.MarkLink, Attrs: document.LinkAttrs{Href: "https://example.com"}}),
			)},
		},
		{
			name:   "comment span",
			markup: `<p><span data-comment-author="ana" data-comment-timestamp="1700000000000" data-comment-content="cash only">Ramen</span></p>`,
			want:   []*document.Node{document.Paragraph(document.Text("Ramen", comment))},
		},
		{
			name:   "location with inner text as name",
			markup: `<p>Lunch at <location place-id="nishiki" lat="35.005" lng="135.764" color-index="1" arrived-from="kyoto-station" transport-mode="walking">Nishiki Market</location></p>`,
			want: []*document.Node{document.Paragraph(
				document.Text("Lunch at "),
				document.Location(document.LocationAttrs{
					PlaceID:       "nishiki",
					Name:          "Nishiki Market",
					Lat:           35.005,
					Lng:           135.764,
					ColorIndex:    1,
					ArrivedFrom:   "kyoto-station",
					TransportMode: document.TransportWalking,
				}),
			)},
		},
		{
			name:   "list item inline content is wrapped in a paragraph",
			markup: "<ol start=\"3\">\n<li>Temple <em>visit</em><ul><li>Shrine</li></ul></li>\n</ol>",
			want: []*document.Node{document.OrderedList(3, document.ListItem(
				document.Paragraph(document.Text("Temple "), document.Text("visit", document.Mark{Type: document.MarkItalic})),
				document.BulletList(document.ListItem(document.Paragraph(document.Text("Shrine")))),
			))},
		},
		{
			name:   "empty paragraph",
			markup: "<p> </p>",
			want:   []*document.Node{document.Paragraph()},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseBlocks(tt.markup)
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, got, cmpopts.EquateEmpty()); diff != "" {
				t.Errorf("blocks mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRenderParsesBack(t *testing.T) {
	doc := document.Doc(
		document.Heading(2, document.Text("Day 2")),
		document.Paragraph(
			document.Text("Walk to "),
			document.Text("Gion", document.Mark{Type: document.MarkBold}, document.Mark{Type: document.MarkLink, Attrs: document.LinkAttrs{Href: "https://example.com/gion?a=1&b=2"}}),
			document.Location(document.LocationAttrs{PlaceID: "gion", Name: "Gion <East>", Lat: 35.0037, Lng: 135.7788, ColorIndex: 4}),
		),
		document.OrderedList(2, document.ListItem(document.Paragraph(document.Text("Tea & sweets")))),
	)

	markup, err := Render(doc)
	require.NoError(t, err)
	assert.Contains(t, markup, `<ol start="2">`)

	blocks, err := ParseBlocks(markup)
	require.NoError(t, err)
	if diff := cmp.Diff(doc.Content, blocks, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s\nmarkup: %s", diff, markup)
	}
}
