// Package roomlog enforces the append policy for room event logs and serves
// bounded reads over them.
package roomlog

import (
	"context"
	"encoding/json"
	"time"

	apperrors "github.com/critterchat/critterchat/internal/platform/errors"
	"github.com/critterchat/critterchat/internal/services/chat/domain/action"
	"github.com/critterchat/critterchat/internal/services/chat/domain/entity"
	"github.com/critterchat/critterchat/internal/services/chat/domain/ident"
	"github.com/critterchat/critterchat/internal/services/chat/storage"
)

// Store is the persistence surface the log needs.
type Store interface {
	GetRoom(ctx context.Context, id ident.RoomID) (entity.Room, error)
	AppendAction(ctx context.Context, params storage.AppendActionParams) (entity.Action, error)
	ListActions(ctx context.Context, roomID ident.RoomID, req storage.ListActionsRequest) ([]entity.Action, error)
	GetOccupant(ctx context.Context, id ident.OccupantID) (entity.Occupant, error)
	ListOccupants(ctx context.Context, roomID ident.RoomID, includeInactive bool) ([]entity.Occupant, error)
}

// Log validates entries against the category policy before handing them to
// storage, which applies the side effects atomically with the insert.
type Log struct {
	store Store
}

// New creates a room event log over the given store.
func New(store Store) *Log {
	return &Log{store: store}
}

// AppendRequest describes one entry to append.
type AppendRequest struct {
	RoomID ident.RoomID
	// OccupantID is the acting occupant. Unassigned is only permitted for
	// room info changes.
	OccupantID ident.OccupantID
	// Join carries the joining user for join entries when the user has no
	// occupant in the room yet.
	Join        *storage.JoinOccupant
	Category    action.Category
	Details     json.RawMessage
	Attachments []entity.Attachment
	Timestamp   time.Time
}

// Append validates and appends one entry to the room's log.
func (l *Log) Append(ctx context.Context, req AppendRequest) (entity.Action, error) {
	if !req.Category.IsValid() {
		return entity.Action{}, apperrors.New(apperrors.CodeInvalidActionCategory, "unknown action category")
	}
	if len(req.Attachments) > 0 && !req.Category.AllowsAttachments() {
		return entity.Action{}, apperrors.New(apperrors.CodeAttachmentsNotAllowed, "category does not carry attachments")
	}
	if err := action.ValidateDetails(req.Category, req.Details, len(req.Attachments) > 0); err != nil {
		return entity.Action{}, err
	}

	if _, err := l.store.GetRoom(ctx, req.RoomID); err != nil {
		return entity.Action{}, err
	}

	hasActor := req.OccupantID.Assigned() || req.Join != nil
	if !hasActor && !req.Category.AllowsNilOccupant() {
		return entity.Action{}, apperrors.New(apperrors.CodeOccupantRequired, "category requires an acting occupant")
	}
	if req.Join != nil && req.Category != action.CategoryJoin {
		return entity.Action{}, apperrors.New(apperrors.CodeOccupantRequired, "join occupant only applies to join entries")
	}

	if req.OccupantID.Assigned() {
		occupant, err := l.store.GetOccupant(ctx, req.OccupantID)
		if err != nil {
			return entity.Action{}, err
		}
		if occupant.RoomID != req.RoomID {
			return entity.Action{}, apperrors.New(apperrors.CodeNotRoomMember, "occupant is not a member of the room")
		}
		// Inactive occupants may rejoin; anything else needs membership.
		if occupant.Inactive && req.Category != action.CategoryJoin {
			return entity.Action{}, apperrors.New(apperrors.CodeNotRoomMember, "occupant has left the room")
		}
	}

	return l.store.AppendAction(ctx, storage.AppendActionParams{
		RoomID:      req.RoomID,
		OccupantID:  req.OccupantID,
		Join:        req.Join,
		Category:    req.Category,
		Details:     req.Details,
		Attachments: req.Attachments,
		Timestamp:   req.Timestamp,
	})
}

// Range returns a bounded slice of the room's log, oldest first.
func (l *Log) Range(ctx context.Context, roomID ident.RoomID, req storage.ListActionsRequest) ([]entity.Action, error) {
	if _, err := l.store.GetRoom(ctx, roomID); err != nil {
		return nil, err
	}
	return l.store.ListActions(ctx, roomID, req)
}

// Roster returns the room's occupants. Inactive members are included on
// request so past entries can still resolve their author.
func (l *Log) Roster(ctx context.Context, roomID ident.RoomID, includeInactive bool) ([]entity.Occupant, error) {
	if _, err := l.store.GetRoom(ctx, roomID); err != nil {
		return nil, err
	}
	return l.store.ListOccupants(ctx, roomID, includeInactive)
}
