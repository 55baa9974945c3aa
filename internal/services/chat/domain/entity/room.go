package entity

import (
	"time"

	"github.com/critterchat/critterchat/internal/services/chat/domain/ident"
)

// Purpose describes what a room is for. Only open rooms are public.
type Purpose string

const (
	// PurposeRoom is an open, publicly discoverable room.
	PurposeRoom Purpose = "room"
	// PurposeChat is a private group chat.
	PurposeChat Purpose = "chat"
	// PurposeDirectMessage is a one-on-one conversation.
	PurposeDirectMessage Purpose = "dm"
)

// IsValid reports whether the purpose is a known value.
func (p Purpose) IsValid() bool {
	switch p {
	case PurposeRoom, PurposeChat, PurposeDirectMessage:
		return true
	}
	return false
}

// Room is a conversation scope with its event-log pointers.
//
// OldestAction and NewestAction track the first and most recent log entries;
// both hold the ident.NewActionID sentinel until the first append. The
// occupant roster is a lookup-populated view and deliberately not a field
// here.
type Room struct {
	ID            ident.RoomID
	Name          string
	Topic         string
	Purpose       Purpose
	Moderated     bool
	IconID        ident.AttachmentID
	DefaultIconID ident.AttachmentID
	OldestAction  ident.ActionID
	NewestAction  ident.ActionID
	LastActionAt  time.Time
}

// Public reports whether the room is publicly discoverable. Derived from the
// purpose, never stored.
func (r Room) Public() bool {
	return r.Purpose == PurposeRoom
}

// RoomPayload is the wire form of a room.
type RoomPayload struct {
	ID           string `json:"id"`
	Type         string `json:"type"`
	Name         string `json:"name"`
	Topic        string `json:"topic"`
	Public       bool   `json:"public"`
	Moderated    bool   `json:"moderated"`
	OldestAction string `json:"oldest_action,omitempty"`
	NewestAction string `json:"newest_action,omitempty"`
	LastActionAt int64  `json:"last_action_timestamp"`
	Icon         string `json:"icon,omitempty"`
	DefaultIcon  string `json:"deficon,omitempty"`
}

// Payload returns the wire form of the room. icon and defaultIcon are the
// resolved URIs from the attachment collaborator. Action pointers are
// omitted until the first append.
func (r Room) Payload(icon, defaultIcon string) RoomPayload {
	payload := RoomPayload{
		ID:          r.ID.Token(),
		Type:        string(r.Purpose),
		Name:        r.Name,
		Topic:       r.Topic,
		Public:      r.Public(),
		Moderated:   r.Moderated,
		Icon:        icon,
		DefaultIcon: defaultIcon,
	}
	if r.OldestAction.Assigned() {
		payload.OldestAction = r.OldestAction.Token()
	}
	if r.NewestAction.Assigned() {
		payload.NewestAction = r.NewestAction.Token()
	}
	if !r.LastActionAt.IsZero() {
		payload.LastActionAt = r.LastActionAt.UTC().UnixMilli()
	}
	return payload
}
