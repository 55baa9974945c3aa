// Package storage defines the persistence boundary of the chat service.
package storage

import (
	"context"
	"encoding/json"
	"time"

	apperrors "github.com/critterchat/critterchat/internal/platform/errors"
	"github.com/critterchat/critterchat/internal/services/chat/domain/action"
	"github.com/critterchat/critterchat/internal/services/chat/domain/entity"
	"github.com/critterchat/critterchat/internal/services/chat/domain/ident"
)

// ErrNotFound indicates a requested persistence record is missing. Callers
// use this to differentiate legitimate "no such entity" states from transport
// or data corruption failures.
var ErrNotFound = apperrors.New(apperrors.CodeNotFound, "record not found")

// ErrAlreadyExists indicates a uniqueness rule rejected a write, such as a
// duplicate username.
var ErrAlreadyExists = apperrors.New(apperrors.CodeAlreadyExists, "record already exists")

// JoinOccupant describes the occupant to create or reactivate when appending
// a join entry for a user without an occupant in the room yet.
type JoinOccupant struct {
	UserID   ident.UserID
	Username string
	Nickname string
	IconID   ident.AttachmentID
}

// AppendActionParams describes one entry to append to a room's log. Storage
// assigns the id and applies the category's side effects in the same
// transaction as the insert.
type AppendActionParams struct {
	RoomID ident.RoomID
	// OccupantID is the acting occupant. The ident.NewOccupantID sentinel
	// records the entry without occupant context; the log layer only permits
	// that for room info changes.
	OccupantID ident.OccupantID
	// Join, set only for join entries, creates or reactivates the user's
	// occupant in the same transaction. When set, OccupantID is ignored.
	Join        *JoinOccupant
	Category    action.Category
	Details     json.RawMessage
	Attachments []entity.Attachment
	// Timestamp defaults to the current time when zero.
	Timestamp time.Time
}

// ListActionsRequest describes a bounded slice of a room's log.
type ListActionsRequest struct {
	// Before returns entries with id strictly below it, newest first.
	// Unassigned means "from the newest entry".
	Before ident.ActionID
	// After returns entries with id strictly above it, oldest first. Only one
	// of Before/After may be assigned.
	After ident.ActionID
	// Limit caps the page size. Zero means the store default.
	Limit int
}

// RoomPage describes a page of rooms.
type RoomPage struct {
	Rooms []entity.Room
	// NextAfter is the cursor for the following page, unassigned when the
	// listing is exhausted.
	NextAfter ident.RoomID
}

// RoomStore owns room metadata and its event-log pointers. The pointers are
// maintained by AppendAction, never written directly by callers.
type RoomStore interface {
	CreateRoom(ctx context.Context, room entity.Room) (entity.Room, error)
	GetRoom(ctx context.Context, id ident.RoomID) (entity.Room, error)
	// UpdateRoomInfo rewrites the mutable info fields: name, topic, icon,
	// moderated flag.
	UpdateRoomInfo(ctx context.Context, room entity.Room) error
	// ListPublicRooms returns a page of publicly discoverable rooms ordered
	// by id ascending, starting after the cursor.
	ListPublicRooms(ctx context.Context, pageSize int, after ident.RoomID) (RoomPage, error)
	// ListRoomsForUser returns the rooms where the user has an active
	// occupant, most recently active first.
	ListRoomsForUser(ctx context.Context, userID ident.UserID) ([]entity.Room, error)
}

// UserStore owns account identity records. The password hash never rides on
// the entity; it only crosses this boundary.
type UserStore interface {
	CreateUser(ctx context.Context, user entity.User, passwordHash string) (entity.User, error)
	GetUser(ctx context.Context, id ident.UserID) (entity.User, error)
	GetUserByUsername(ctx context.Context, username string) (entity.User, error)
	// GetCredentials returns the stored password hash for a username.
	GetCredentials(ctx context.Context, username string) (entity.User, string, error)
	UpdateUserProfile(ctx context.Context, user entity.User) error
	SetUserPermissions(ctx context.Context, id ident.UserID, permissions entity.Permission) error
}

// OccupantStore owns membership instances. Occupants are created and
// deactivated as side effects of join/leave appends; this interface is the
// read and management side.
type OccupantStore interface {
	GetOccupant(ctx context.Context, id ident.OccupantID) (entity.Occupant, error)
	// GetOccupantByUser returns the user's occupant in a room regardless of
	// active state.
	GetOccupantByUser(ctx context.Context, roomID ident.RoomID, userID ident.UserID) (entity.Occupant, error)
	// ListOccupants returns a room's occupants: active members first in
	// join order, then inactive ones when requested.
	ListOccupants(ctx context.Context, roomID ident.RoomID, includeInactive bool) ([]entity.Occupant, error)
	UpdateOccupant(ctx context.Context, occupant entity.Occupant) error
}

// ActionStore owns the append-only room event log; this is the source of
// truth for what happened in a room.
type ActionStore interface {
	// AppendAction atomically inserts the entry, assigns its id, updates the
	// room's newest/oldest pointers and last-action timestamp, and applies
	// the category's occupant side effects (join activates, leave
	// deactivates). Returns the stored entry with id and timestamp set.
	AppendAction(ctx context.Context, params AppendActionParams) (entity.Action, error)
	GetAction(ctx context.Context, roomID ident.RoomID, id ident.ActionID) (entity.Action, error)
	// ListActions returns a slice of the room's log per the request bounds.
	// Entries come back oldest first regardless of scan direction.
	ListActions(ctx context.Context, roomID ident.RoomID, req ListActionsRequest) ([]entity.Action, error)
	// CountActionsAfter counts entries with id above the cursor whose
	// category is in the given set.
	CountActionsAfter(ctx context.Context, roomID ident.RoomID, after ident.ActionID, categories []action.Category) (int, error)
	// HasActionsAfter reports whether any such entry exists, stopping at the
	// first hit instead of counting.
	HasActionsAfter(ctx context.Context, roomID ident.RoomID, after ident.ActionID, categories []action.Category) (bool, error)
	// LatestActionID returns the newest entry id in the room, or the
	// ident.NewActionID sentinel for an empty log.
	LatestActionID(ctx context.Context, roomID ident.RoomID) (ident.ActionID, error)
}

// WatermarkStore owns per-occupant read positions. A watermark only moves
// forward; stale acknowledgements are absorbed, not errors.
type WatermarkStore interface {
	// GetWatermark returns the occupant's last acknowledged action id in the
	// room, or the ident.NewActionID sentinel when nothing was acknowledged.
	GetWatermark(ctx context.Context, occupantID ident.OccupantID, roomID ident.RoomID) (ident.ActionID, error)
	// AdvanceWatermark moves the watermark to id if that is forward progress.
	// The boolean reports whether the stored value changed.
	AdvanceWatermark(ctx context.Context, occupantID ident.OccupantID, roomID ident.RoomID, id ident.ActionID) (bool, error)
}

// AttachmentStore owns attachment metadata records. Binary content lives
// outside the database.
type AttachmentStore interface {
	CreateAttachment(ctx context.Context, attachment entity.Attachment) (entity.Attachment, error)
	GetAttachment(ctx context.Context, id ident.AttachmentID) (entity.Attachment, error)
}

// SettingsStore owns per-user session state.
type SettingsStore interface {
	// GetSettings returns ErrNotFound when the user never saved settings.
	GetSettings(ctx context.Context, userID ident.UserID) (entity.UserSettings, error)
	PutSettings(ctx context.Context, settings entity.UserSettings) error
}

// PreferencesStore owns per-user UI and notification configuration.
type PreferencesStore interface {
	// GetPreferences returns ErrNotFound when the user never saved
	// preferences; callers fall back to entity.DefaultPreferences.
	GetPreferences(ctx context.Context, userID ident.UserID) (entity.UserPreferences, error)
	PutPreferences(ctx context.Context, prefs entity.UserPreferences) error
}

// Store is a composite interface for all chat persistence concerns.
type Store interface {
	RoomStore
	UserStore
	OccupantStore
	ActionStore
	WatermarkStore
	AttachmentStore
	SettingsStore
	PreferencesStore
	Close() error
}
