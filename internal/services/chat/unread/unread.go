// Package unread derives unread counts and update flags from room event logs
// and per-occupant watermarks.
package unread

import (
	"context"
	"errors"

	"github.com/critterchat/critterchat/internal/services/chat/domain/action"
	"github.com/critterchat/critterchat/internal/services/chat/domain/entity"
	"github.com/critterchat/critterchat/internal/services/chat/domain/ident"
	"github.com/critterchat/critterchat/internal/services/chat/storage"
)

// Store is the persistence surface the aggregator needs.
type Store interface {
	GetRoom(ctx context.Context, id ident.RoomID) (entity.Room, error)
	ListRoomsForUser(ctx context.Context, userID ident.UserID) ([]entity.Room, error)
	GetOccupantByUser(ctx context.Context, roomID ident.RoomID, userID ident.UserID) (entity.Occupant, error)
	CountActionsAfter(ctx context.Context, roomID ident.RoomID, after ident.ActionID, categories []action.Category) (int, error)
	HasActionsAfter(ctx context.Context, roomID ident.RoomID, after ident.ActionID, categories []action.Category) (bool, error)
	GetWatermark(ctx context.Context, occupantID ident.OccupantID, roomID ident.RoomID) (ident.ActionID, error)
	AdvanceWatermark(ctx context.Context, occupantID ident.OccupantID, roomID ident.RoomID, id ident.ActionID) (bool, error)
}

// Aggregator computes unread state lazily from the log instead of keeping
// counters. Counts never drift because the log and the watermark are the only
// inputs.
type Aggregator struct {
	store Store
}

// New creates an aggregator over the given store.
func New(store Store) *Aggregator {
	return &Aggregator{store: store}
}

// Count returns the occupant's unread count in the room. Direct-message
// rooms use the narrower category set, so membership churn never shows up as
// unread there.
func (a *Aggregator) Count(ctx context.Context, occupantID ident.OccupantID, roomID ident.RoomID) (int, error) {
	room, err := a.store.GetRoom(ctx, roomID)
	if err != nil {
		return 0, err
	}
	watermark, err := a.store.GetWatermark(ctx, occupantID, roomID)
	if err != nil {
		return 0, err
	}
	return a.store.CountActionsAfter(ctx, roomID, watermark, unreadCategories(room))
}

// HasUpdate reports whether anything notification-worthy happened in the room
// past the occupant's watermark. This is an existence check, not a count.
func (a *Aggregator) HasUpdate(ctx context.Context, occupantID ident.OccupantID, roomID ident.RoomID) (bool, error) {
	watermark, err := a.store.GetWatermark(ctx, occupantID, roomID)
	if err != nil {
		return false, err
	}
	return a.store.HasActionsAfter(ctx, roomID, watermark, action.UpdateCategories())
}

func unreadCategories(room entity.Room) []action.Category {
	if room.Purpose == entity.PurposeDirectMessage {
		return action.DMUnreadCategories()
	}
	return action.UnreadCategories()
}

// Acknowledge moves the occupant's watermark to id. Stale acknowledgements
// arriving out of order are absorbed; the boolean reports whether the stored
// position changed.
func (a *Aggregator) Acknowledge(ctx context.Context, occupantID ident.OccupantID, roomID ident.RoomID, id ident.ActionID) (bool, error) {
	return a.store.AdvanceWatermark(ctx, occupantID, roomID, id)
}

// RoomBadge is the unread state of one room for badge rendering.
type RoomBadge struct {
	Room      entity.Room
	Unread    int
	HasUpdate bool
}

// Badges returns the unread state of every room the user is an active member
// of, in the room listing order. The listing already carries each room, so
// the watermark is fetched once and shared between the count and the update
// check.
func (a *Aggregator) Badges(ctx context.Context, userID ident.UserID) ([]RoomBadge, error) {
	rooms, err := a.store.ListRoomsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	badges := make([]RoomBadge, 0, len(rooms))
	for _, room := range rooms {
		occupant, err := a.store.GetOccupantByUser(ctx, room.ID, userID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			return nil, err
		}
		watermark, err := a.store.GetWatermark(ctx, occupant.ID, room.ID)
		if err != nil {
			return nil, err
		}
		count, err := a.store.CountActionsAfter(ctx, room.ID, watermark, unreadCategories(room))
		if err != nil {
			return nil, err
		}
		update, err := a.store.HasActionsAfter(ctx, room.ID, watermark, action.UpdateCategories())
		if err != nil {
			return nil, err
		}
		badges = append(badges, RoomBadge{Room: room, Unread: count, HasUpdate: update})
	}
	return badges, nil
}
