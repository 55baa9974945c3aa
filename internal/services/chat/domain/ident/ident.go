// Package ident defines the typed numeric identities used across the chat
// domain and the opaque token codec that exposes them at boundaries.
//
// Internal ids are integers assigned by storage. Everything that leaves the
// core (JSON payloads, URLs, client frames) carries the prefixed token form
// instead, and every inbound token is decoded through this package. A failed
// decode is recoverable: callers treat it as "not found", never as a crash.
package ident

import (
	"strconv"

	apperrors "github.com/critterchat/critterchat/internal/platform/errors"
)

// Distinct identity types per entity kind. All are integers underneath but
// never interchangeable.
type (
	// UserID identifies a global user account.
	UserID int64
	// RoomID identifies a room.
	RoomID int64
	// OccupantID identifies one user's membership instance in one room.
	OccupantID int64
	// ActionID identifies an entry in a room's event log. The id doubles as
	// the order key within the room.
	ActionID int64
	// AttachmentID identifies stored attachment metadata.
	AttachmentID int64
)

// Shared "not yet created" sentinel per kind. Storage assigns real ids on
// create; the sentinel compares below every real id.
const (
	NewUserID       UserID       = -1
	NewRoomID       RoomID       = -1
	NewOccupantID   OccupantID   = -1
	NewActionID     ActionID     = -1
	NewAttachmentID AttachmentID = -1
)

// Built-in attachment sentinels. These assets ship with the server and never
// go through persistence.
const (
	DefaultAvatarID   AttachmentID = -100
	DefaultRoomIconID AttachmentID = -200
	FaviconID         AttachmentID = -300
)

// Literal tokens for the built-in attachment sentinels. They deliberately do
// not follow the prefix+digits shape.
const (
	defaultAvatarToken   = "defavi"
	defaultRoomIconToken = "defroom"
	faviconToken         = "deficon"
)

// ErrInvalid reports a token that does not decode to any identity.
var ErrInvalid = apperrors.New(apperrors.CodeInvalidIdentifier, "invalid identifier")

// Token returns the opaque string form of a user id.
func (id UserID) Token() string { return encode('u', int64(id)) }

// Token returns the opaque string form of a room id.
func (id RoomID) Token() string { return encode('r', int64(id)) }

// Token returns the opaque string form of an occupant id.
func (id OccupantID) Token() string { return encode('o', int64(id)) }

// Token returns the opaque string form of an action id.
func (id ActionID) Token() string { return encode('a', int64(id)) }

// Token returns the opaque string form of an attachment id. The built-in
// sentinels map to their fixed literal tokens.
func (id AttachmentID) Token() string {
	switch id {
	case DefaultAvatarID:
		return defaultAvatarToken
	case DefaultRoomIconID:
		return defaultRoomIconToken
	case FaviconID:
		return faviconToken
	}
	return encode('d', int64(id))
}

// Assigned reports whether the id has been assigned by storage.
func (id UserID) Assigned() bool     { return id > 0 }
func (id RoomID) Assigned() bool     { return id > 0 }
func (id OccupantID) Assigned() bool { return id > 0 }
func (id ActionID) Assigned() bool   { return id > 0 }
func (id AttachmentID) Assigned() bool {
	return id > 0 || id == DefaultAvatarID || id == DefaultRoomIconID || id == FaviconID
}

// ParseUserID decodes a user token.
func ParseUserID(token string) (UserID, error) {
	value, err := decode('u', token)
	return UserID(value), err
}

// ParseRoomID decodes a room token.
func ParseRoomID(token string) (RoomID, error) {
	value, err := decode('r', token)
	return RoomID(value), err
}

// ParseOccupantID decodes an occupant token.
func ParseOccupantID(token string) (OccupantID, error) {
	value, err := decode('o', token)
	return OccupantID(value), err
}

// ParseActionID decodes an action token.
func ParseActionID(token string) (ActionID, error) {
	value, err := decode('a', token)
	return ActionID(value), err
}

// ParseAttachmentID decodes an attachment token. The sentinel literals are
// checked before the general prefix+digits rule.
func ParseAttachmentID(token string) (AttachmentID, error) {
	switch token {
	case defaultAvatarToken:
		return DefaultAvatarID, nil
	case defaultRoomIconToken:
		return DefaultRoomIconID, nil
	case faviconToken:
		return FaviconID, nil
	}
	value, err := decode('d', token)
	return AttachmentID(value), err
}

func encode(prefix byte, value int64) string {
	return string(prefix) + strconv.FormatInt(value, 10)
}

func decode(prefix byte, token string) (int64, error) {
	if len(token) < 2 || token[0] != prefix {
		return 0, ErrInvalid
	}
	value, err := strconv.ParseInt(token[1:], 10, 64)
	if err != nil {
		return 0, ErrInvalid
	}
	return value, nil
}
