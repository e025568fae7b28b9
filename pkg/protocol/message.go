// Package protocol defines the JSON messages exchanged between editors and
// the collaboration server. Every message is an object with a "type"
// discriminator; Decode dispatches on it and validates the payload before
// anything downstream sees it.
package protocol

import (
	"itinerary-collab-be/pkg/document"
)

// Type is the wire discriminator.
type Type string

const (
	// client -> server
	TypeJoin      Type = "join"
	TypeSubmit    Type = "submit"
	TypeSelection Type = "selection"

	// server -> client
	TypeInit     Type = "init"
	TypeAccepted Type = "accepted"
	TypeRejected Type = "rejected"
	TypeSteps    Type = "steps"
	TypePresence Type = "presence"
	TypeUserLeft Type = "userLeft"
	TypeError    Type = "error"
)

// Message is implemented by every wire message.
type Message interface {
	MessageType() Type
}

// Join opens a session on a document. KnownVersion lets a reconnecting
// editor ask for the missed steps instead of a full snapshot.
type Join struct {
	DocumentID   string `json:"documentId" validate:"required,max=128"`
	DisplayName  string `json:"displayName" validate:"required,max=64"`
	KnownVersion *int   `json:"knownVersion,omitempty" validate:"omitempty,gte=0"`
}

// Submit proposes steps against BaseVersion.
type Submit struct {
	BaseVersion int             `json:"baseVersion" validate:"gte=0"`
	Steps       []document.Step `json:"steps" validate:"required,min=1,max=500"`
}

// Selection is the sender's cursor or selection. Nil bounds clear it.
type Selection struct {
	From *int `json:"from" validate:"omitempty,gte=0"`
	To   *int `json:"to" validate:"omitempty,gte=0"`
}

// Empty reports whether the selection clears the sender's overlay.
func (s Selection) Empty() bool { return s.From == nil || s.To == nil }

// PresentUser describes one connected editor in an init message.
type PresentUser struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	Color       string `json:"color"`
	From        *int   `json:"from"`
	To          *int   `json:"to"`
}

// Init is the first message a joining editor receives. A reconnecting editor
// whose known version is still in history gets the missed Batches and a null
// Document instead of a full snapshot.
type Init struct {
	Version      int            `json:"version"`
	Document     *document.Node `json:"document"`
	Batches      []Steps        `json:"batches,omitempty"`
	PresentUsers []PresentUser  `json:"presentUsers"`
	// ClientID identifies this connection in later steps messages.
	ClientID string `json:"clientId"`
}

// Accepted acknowledges a submission.
type Accepted struct {
	NewVersion int `json:"newVersion"`
}

// RejectReason tells a rejected editor whether to rebase or drop.
type RejectReason string

const (
	RejectVersionConflict RejectReason = "version_conflict"
	RejectStepFailure     RejectReason = "step_failure"
)

// Rejected refuses a whole submission. FailedIndex and FailureKind are only
// set for step failures.
type Rejected struct {
	CurrentVersion int                  `json:"currentVersion"`
	Reason         RejectReason         `json:"reason"`
	FailedIndex    *int                 `json:"failedIndex,omitempty"`
	FailureKind    document.FailureKind `json:"failureKind,omitempty"`
}

// Steps broadcasts an accepted batch. NewVersion is the version after the
// batch.
type Steps struct {
	Steps          []document.Step `json:"steps"`
	NewVersion     int             `json:"newVersion"`
	OriginClientID string          `json:"originClientId"`
}

// Presence fans a selection out to the other editors.
type Presence struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	Color       string `json:"color"`
	From        *int   `json:"from"`
	To          *int   `json:"to"`
}

// UserLeft tells editors to drop a user's overlay.
type UserLeft struct {
	UserID string `json:"userId"`
}

// Error reports a message the server could not handle.
type Error struct {
	Message string `json:"message"`
}

func (Join) MessageType() Type      { return TypeJoin }
func (Submit) MessageType() Type    { return TypeSubmit }
func (Selection) MessageType() Type { return TypeSelection }
func (Init) MessageType() Type      { return TypeInit }
func (Accepted) MessageType() Type  { return TypeAccepted }
func (Rejected) MessageType() Type  { return TypeRejected }
func (Steps) MessageType() Type     { return TypeSteps }
func (Presence) MessageType() Type  { return TypePresence }
func (UserLeft) MessageType() Type  { return TypeUserLeft }
func (Error) MessageType() Type     { return TypeError }
