package document

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assertDocEqual(t *testing.T, want, got *Node) {
	t.Helper()
	if diff := cmp.Diff(want, got, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("document mismatch (-want +got):\n%s", diff)
	}
	assert.True(t, want.Equal(got), "Equal disagrees with cmp")
}

func TestNodeJSONShape(t *testing.T) {
	loc := kyoto()
	loc.ArrivedFrom = "osaka"
	loc.TransportMode = TransportTransit
	doc := Doc(Paragraph(
		Text("Lunch", Mark{Type: MarkComment, Attrs: CommentAttrs{Author: "ana", Timestamp: 1700000000000, Content: "book ahead"}}),
		Location(loc),
	))

	data, err := json.Marshal(doc)
	require.NoError(t, err)

	want := `{"type":"doc","attrs":{},"content":[{"type":"paragraph","attrs":{},"content":[` +
		`{"type":"text","text":"Lunch","marks":[{"type":"comment","attrs":{"author":"ana","timestamp":1700000000000,"content":"book ahead"}}]},` +
		`{"type":"location","attrs":{"placeId":"kyoto-station","name":"Kyoto Station","lat":34.9858,"lng":135.7588,"colorIndex":2,"arrivedFrom":"osaka","transportMode":"transit"},"content":[]}]}]}`
	assert.JSONEq(t, want, string(data))
}

func TestNodeRoundTrip(t *testing.T) {
	doc := Doc(
		Heading(2, Text("Kyoto", Mark{Type: MarkBold}, Mark{Type: MarkLink, Attrs: LinkAttrs{Href: "https://example.com"}})),
		OrderedList(3, ListItem(Paragraph(Text("Temple")), BulletList(ListItem(Paragraph(Location(kyoto())))))),
	)
	data, err := json.Marshal(doc)
	require.NoError(t, err)

	got, err := DecodeDoc(data)
	require.NoError(t, err)
	assertDocEqual(t, doc, got)
}

func TestStepRoundTripBehavesIdentically(t *testing.T) {
	steps := []Step{
		Insert(3, Text("ay ", Mark{Type: MarkItalic})),
		Replace(5, 13, Paragraph(Text("Hi"), Location(kyoto()))),
		Delete(7, 9),
		Delete(0, 99),
	}
	for _, s := range steps {
		data, err := json.Marshal(s)
		require.NoError(t, err)

		var decoded Step
		require.NoError(t, json.Unmarshal(data, &decoded))
		assert.True(t, s.Equal(decoded))

		want, wantErr := s.Apply(sampleDoc())
		got, gotErr := decoded.Apply(sampleDoc())
		if wantErr != nil {
			require.Error(t, gotErr)
			assert.Equal(t, wantErr.Error(), gotErr.Error())
			continue
		}
		require.NoError(t, gotErr)
		assertDocEqual(t, want, got)
	}
}

func TestDecodeRejectsUnknownTypes(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		wantErr error
	}{
		{
			name:    "unknown node type",
			payload: `{"from":0,"to":0,"replacement":[{"type":"table","attrs":{},"content":[]}]}`,
			wantErr: ErrUnknownNodeType,
		},
		{
			name:    "unknown nested node type",
			payload: `{"from":0,"to":0,"replacement":[{"type":"paragraph","content":[{"type":"image"}]}]}`,
			wantErr: ErrUnknownNodeType,
		},
		{
			name:    "unknown mark type",
			payload: `{"from":1,"to":1,"replacement":[{"type":"text","text":"x","marks":[{"type":"blink"}]}]}`,
			wantErr: ErrUnknownMarkType,
		},
		{
			name:    "negative position",
			payload: `{"from":-2,"to":0,"replacement":[]}`,
			wantErr: ErrMalformedStep,
		},
		{
			name:    "text with content",
			payload: `{"from":0,"to":0,"replacement":[{"type":"text","text":"x","content":[{"type":"paragraph"}]}]}`,
			wantErr: ErrMalformedNode,
		},
		{
			name:    "location without place id",
			payload: `{"from":0,"to":0,"replacement":[{"type":"location","attrs":{"name":"Somewhere"}}]}`,
			wantErr: ErrMalformedNode,
		},
		{
			name:    "null child",
			payload: `{"from":0,"to":0,"replacement":[{"type":"paragraph","content":[null]}]}`,
			wantErr: ErrMalformedNode,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var s Step
			err := json.Unmarshal([]byte(tt.payload), &s)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestDecodeNormalizesMarkOrder(t *testing.T) {
	n, err := DecodeNode([]byte(`{"type":"text","text":"x","marks":[{"type":"italic"},{"type":"bold"},{"type":"italic"}]}`))
	require.NoError(t, err)
	assert.Equal(t, []Mark{{Type: MarkBold}, {Type: MarkItalic}}, n.Marks)
}

func TestDecodeDocRequiresRoot(t *testing.T) {
	_, err := DecodeDoc([]byte(`{"type":"paragraph","content":[]}`))
	assert.ErrorIs(t, err, ErrMalformedNode)

	_, err = DecodeDoc([]byte(`{"type":"doc","content":[]}`))
	assert.Error(t, err)
}
