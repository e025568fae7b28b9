package entity

import (
	"time"

	"itinerary-collab-be/pkg/document"
)

// DocumentSnapshot is the stored state of a document: the tree at Version.
type DocumentSnapshot struct {
	DocumentId string
	Document   *document.Node
	Version    int
	UpdatedAt  time.Time
}
