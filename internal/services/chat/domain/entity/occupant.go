package entity

import "github.com/critterchat/critterchat/internal/services/chat/domain/ident"

// Occupant is one user's membership instance in one room. The same user has
// a different occupant per room. Inactive occupants are historical members
// kept resolvable so past actions can still render their author.
type Occupant struct {
	ID     ident.OccupantID
	RoomID ident.RoomID
	UserID ident.UserID
	// Username and Nickname are denormalized snapshots taken at join time
	// and refreshed on profile changes.
	Username  string
	Nickname  string
	IconID    ident.AttachmentID
	Inactive  bool
	Moderator bool
	Muted     bool
	// Icon is the resolved icon URI, populated before serialization.
	Icon string
}

// OccupantPayload is the wire form of an occupant.
type OccupantPayload struct {
	ID        string `json:"id"`
	UserID    string `json:"userid"`
	Username  string `json:"username"`
	Nickname  string `json:"nickname"`
	Inactive  bool   `json:"inactive"`
	Moderator bool   `json:"moderator"`
	Muted     bool   `json:"muted"`
	Icon      string `json:"icon,omitempty"`
}

// Payload returns the wire form of the occupant.
func (o Occupant) Payload() OccupantPayload {
	return OccupantPayload{
		ID:        o.ID.Token(),
		UserID:    o.UserID.Token(),
		Username:  o.Username,
		Nickname:  o.Nickname,
		Inactive:  o.Inactive,
		Moderator: o.Moderator,
		Muted:     o.Muted,
		Icon:      o.Icon,
	}
}
