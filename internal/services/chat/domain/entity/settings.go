package entity

import "github.com/critterchat/critterchat/internal/services/chat/domain/ident"

// Presence modes for the settings panel. Hidden is the default when a user
// never chose one.
const (
	PresenceVisible = "visible"
	PresenceAway    = "away"
	PresenceHidden  = "hidden"
)

// UserSettings is per-user session state: the last open room and the
// presence visibility mode.
type UserSettings struct {
	UserID   ident.UserID
	RoomID   ident.RoomID
	Presence string
}

// UserSettingsPayload is the wire form of user settings.
type UserSettingsPayload struct {
	RoomID   string `json:"roomid,omitempty"`
	Presence string `json:"presence"`
}

// Payload returns the wire form of the settings. An unset presence reads as
// hidden.
func (s UserSettings) Payload() UserSettingsPayload {
	payload := UserSettingsPayload{Presence: s.Presence}
	if payload.Presence == "" {
		payload.Presence = PresenceHidden
	}
	if s.RoomID.Assigned() {
		payload.RoomID = s.RoomID.Token()
	}
	return payload
}
