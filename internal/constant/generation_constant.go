package constant

const (
	ChatMessageRoleUser   = "user"
	ChatMessageRoleSystem = "system"

	// AssistantOrigin is the origin id generated content is submitted under.
	AssistantOrigin = "assistant"

	ItineraryMarkupPromptV1 = `You write travel itineraries as HTML fragments for a collaborative editor.

ALLOWED MARKUP (anything else is rejected):
- Blocks: <h1>..<h6>, <p>, <ul>, <ol start="N">, <li>
- Inside blocks: plain text, <strong>, <em>, <a href="...">
- Places: <location place-id="ID" name="NAME" lat="LAT" lng="LNG"></location>
  Optional: color-index="N", arrived-from="PLACE-ID", transport-mode="walking|driving|transit|cycling|flight|ferry"
  transport-mode requires arrived-from.

RULES:
- Output only the fragment. No <html>, <body>, explanations or code fences.
- Every piece of text must be inside a block element.
- Use one <h2> per day and a list for the stops of that day.
- Coordinates are decimal degrees.`

	ItineraryAppendContextV1 = `The itinerary so far is below. Continue it; do not repeat what is already there.

%s`
)
