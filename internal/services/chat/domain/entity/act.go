package entity

import (
	"encoding/json"
	"time"

	"github.com/critterchat/critterchat/internal/services/chat/domain/action"
	"github.com/critterchat/critterchat/internal/services/chat/domain/ident"
)

// Action is one immutable entry in a room's event log. Ids within a room are
// strictly increasing in creation order and never reused; the id doubles as
// the order key.
type Action struct {
	ID        ident.ActionID
	RoomID    ident.RoomID
	Timestamp time.Time
	// Occupant is the acting occupant. Nil only for change_info actions
	// recorded without occupant context (administrative edits).
	Occupant *Occupant
	Category action.Category
	Details  json.RawMessage
	// Attachments is only ever populated for message actions.
	Attachments []Attachment
}

// ActionPayload is the wire form of a log entry. Order repeats the numeric
// id so clients can sort without decoding the opaque token.
type ActionPayload struct {
	ID          string              `json:"id"`
	Order       int64               `json:"order"`
	Timestamp   int64               `json:"timestamp"`
	Occupant    *OccupantPayload    `json:"occupant"`
	Action      string              `json:"action"`
	Details     json.RawMessage     `json:"details"`
	Attachments []AttachmentPayload `json:"attachments"`
}

// Payload returns the wire form of the action.
func (a Action) Payload() ActionPayload {
	payload := ActionPayload{
		ID:          a.ID.Token(),
		Order:       int64(a.ID),
		Timestamp:   a.Timestamp.UTC().UnixMilli(),
		Action:      string(a.Category),
		Details:     a.Details,
		Attachments: make([]AttachmentPayload, 0, len(a.Attachments)),
	}
	if len(payload.Details) == 0 {
		payload.Details = json.RawMessage("{}")
	}
	if a.Occupant != nil {
		occupant := a.Occupant.Payload()
		payload.Occupant = &occupant
	}
	for _, attachment := range a.Attachments {
		payload.Attachments = append(payload.Attachments, attachment.Payload())
	}
	return payload
}
