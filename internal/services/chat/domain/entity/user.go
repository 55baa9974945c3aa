package entity

import (
	"fmt"

	"github.com/critterchat/critterchat/internal/services/chat/domain/ident"
)

// Permission is a bitmask of account capabilities.
type Permission uint32

const (
	// PermissionActivated marks an account that finished activation.
	PermissionActivated Permission = 0x1
	// PermissionWelcomed marks an account that completed the welcome flow.
	PermissionWelcomed Permission = 0x2
	// PermissionAdministrator grants administrative controls.
	PermissionAdministrator Permission = 0x4
)

// Has reports whether all bits of flag are set.
func (p Permission) Has(flag Permission) bool {
	return p&flag == flag
}

// Names returns the symbolic names of the set permission bits.
func (p Permission) Names() []string {
	names := make([]string, 0, 3)
	if p.Has(PermissionActivated) {
		names = append(names, "ACTIVATED")
	}
	if p.Has(PermissionWelcomed) {
		names = append(names, "WELCOMED")
	}
	if p.Has(PermissionAdministrator) {
		names = append(names, "ADMINISTRATOR")
	}
	return names
}

// User is a global account identity. It carries no room-scoped state; see
// UserInRoom for the composite resolved in a room context.
type User struct {
	ID          ident.UserID
	Username    string
	Permissions Permission
	Nickname    string
	About       string
	IconID      ident.AttachmentID
	// Icon is the resolved icon URI, populated by the attachment
	// collaborator before serialization.
	Icon string
}

// UserPayload is the wire form of a user.
type UserPayload struct {
	ID           string   `json:"id"`
	Username     string   `json:"username"`
	Nickname     string   `json:"nickname"`
	About        string   `json:"about"`
	Icon         string   `json:"icon,omitempty"`
	FullUsername string   `json:"full_username,omitempty"`
	Permissions  []string `json:"permissions,omitempty"`
}

// Payload returns the wire form of the user. accountBase, when non-empty,
// produces the federated @user@host handle. Permission names are only
// included for administrative consumers.
func (u User) Payload(accountBase string, admin bool) UserPayload {
	payload := UserPayload{
		ID:       u.ID.Token(),
		Username: u.Username,
		Nickname: u.Nickname,
		About:    u.About,
		Icon:     u.Icon,
	}
	if accountBase != "" {
		payload.FullUsername = fmt.Sprintf("@%s@%s", u.Username, accountBase)
	}
	if admin {
		payload.Permissions = u.Permissions.Names()
	}
	return payload
}

// UserInRoom is a user resolved in the context of one room. The occupant
// decorations live here instead of as optional fields on User.
type UserInRoom struct {
	User
	OccupantID ident.OccupantID
	Moderator  bool
	Muted      bool
}

// UserInRoomPayload is the wire form of a user resolved within a room.
type UserInRoomPayload struct {
	UserPayload
	OccupantID string `json:"occupantid"`
	Moderator  bool   `json:"moderator"`
	Muted      bool   `json:"muted"`
}

// Payload returns the wire form of the room-scoped user view.
func (u UserInRoom) Payload(accountBase string, admin bool) UserInRoomPayload {
	return UserInRoomPayload{
		UserPayload: u.User.Payload(accountBase, admin),
		OccupantID:  u.OccupantID.Token(),
		Moderator:   u.Moderator,
		Muted:       u.Muted,
	}
}
