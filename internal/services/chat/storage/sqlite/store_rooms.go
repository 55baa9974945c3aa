package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/critterchat/critterchat/internal/platform/errors"
	"github.com/critterchat/critterchat/internal/services/chat/domain/entity"
	"github.com/critterchat/critterchat/internal/services/chat/domain/ident"
	"github.com/critterchat/critterchat/internal/services/chat/storage"
)

const roomColumns = `id, name, topic, purpose, moderated, icon_id, default_icon_id,
        oldest_action_id, newest_action_id, last_action_at`

// CreateRoom inserts one room and returns it with the assigned id.
func (s *Store) CreateRoom(ctx context.Context, room entity.Room) (entity.Room, error) {
	if err := ctx.Err(); err != nil {
		return entity.Room{}, err
	}
	if s == nil || s.sqlDB == nil {
		return entity.Room{}, fmt.Errorf("storage is not configured")
	}
	room.Name = strings.TrimSpace(room.Name)
	if room.Name == "" {
		return entity.Room{}, apperrors.New(apperrors.CodeRoomNameEmpty, "room name is required")
	}
	if !room.Purpose.IsValid() {
		return entity.Room{}, apperrors.WithMetadata(apperrors.CodeInvalidRoomPurpose, "room purpose is not valid", map[string]string{
			"purpose": string(room.Purpose),
		})
	}
	if !room.DefaultIconID.Assigned() {
		room.DefaultIconID = ident.DefaultRoomIconID
	}
	now := toMillis(time.Now())

	result, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO rooms (
		   name, topic, purpose, moderated, icon_id, default_icon_id,
		   oldest_action_id, newest_action_id, last_action_at,
		   created_at, updated_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		room.Name,
		room.Topic,
		string(room.Purpose),
		room.Moderated,
		int64(room.IconID),
		int64(room.DefaultIconID),
		int64(ident.NewActionID),
		int64(ident.NewActionID),
		now,
		now,
	)
	if err != nil {
		return entity.Room{}, fmt.Errorf("create room: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return entity.Room{}, fmt.Errorf("create room id: %w", err)
	}
	room.ID = ident.RoomID(id)
	room.OldestAction = ident.NewActionID
	room.NewestAction = ident.NewActionID
	room.LastActionAt = time.Time{}
	return room, nil
}

// GetRoom returns one room by id.
func (s *Store) GetRoom(ctx context.Context, id ident.RoomID) (entity.Room, error) {
	if err := ctx.Err(); err != nil {
		return entity.Room{}, err
	}
	if s == nil || s.sqlDB == nil {
		return entity.Room{}, fmt.Errorf("storage is not configured")
	}
	if !id.Assigned() {
		return entity.Room{}, storage.ErrNotFound
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT `+roomColumns+` FROM rooms WHERE id = ?`,
		int64(id),
	)
	room, err := scanRoom(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return entity.Room{}, storage.ErrNotFound
		}
		return entity.Room{}, fmt.Errorf("get room: %w", err)
	}
	return room, nil
}

// UpdateRoomInfo rewrites the mutable info fields of a room.
func (s *Store) UpdateRoomInfo(ctx context.Context, room entity.Room) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	room.Name = strings.TrimSpace(room.Name)
	if room.Name == "" {
		return fmt.Errorf("room name is required")
	}

	result, err := s.sqlDB.ExecContext(
		ctx,
		`UPDATE rooms
		    SET name = ?, topic = ?, moderated = ?, icon_id = ?, updated_at = ?
		  WHERE id = ?`,
		room.Name,
		room.Topic,
		room.Moderated,
		int64(room.IconID),
		toMillis(time.Now()),
		int64(room.ID),
	)
	if err != nil {
		return fmt.Errorf("update room info: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update room info: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ListPublicRooms returns one page of publicly discoverable rooms.
func (s *Store) ListPublicRooms(ctx context.Context, pageSize int, after ident.RoomID) (storage.RoomPage, error) {
	if err := ctx.Err(); err != nil {
		return storage.RoomPage{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.RoomPage{}, fmt.Errorf("storage is not configured")
	}
	if pageSize <= 0 {
		return storage.RoomPage{}, fmt.Errorf("page size must be greater than zero")
	}

	cursor := int64(0)
	if after.Assigned() {
		cursor = int64(after)
	}
	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT `+roomColumns+`
		   FROM rooms
		  WHERE purpose = ? AND id > ?
		  ORDER BY id ASC
		  LIMIT ?`,
		string(entity.PurposeRoom),
		cursor,
		pageSize+1,
	)
	if err != nil {
		return storage.RoomPage{}, fmt.Errorf("list public rooms: %w", err)
	}
	defer rows.Close()

	page := storage.RoomPage{
		Rooms:     make([]entity.Room, 0, pageSize),
		NextAfter: ident.NewRoomID,
	}
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return storage.RoomPage{}, fmt.Errorf("list public rooms: %w", err)
		}
		page.Rooms = append(page.Rooms, room)
	}
	if err := rows.Err(); err != nil {
		return storage.RoomPage{}, fmt.Errorf("list public rooms: %w", err)
	}
	if len(page.Rooms) > pageSize {
		page.NextAfter = page.Rooms[pageSize-1].ID
		page.Rooms = page.Rooms[:pageSize]
	}
	return page, nil
}

// ListRoomsForUser returns the rooms where the user has an active occupant,
// most recently active room first.
func (s *Store) ListRoomsForUser(ctx context.Context, userID ident.UserID) ([]entity.Room, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if !userID.Assigned() {
		return nil, fmt.Errorf("user id is required")
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT r.id, r.name, r.topic, r.purpose, r.moderated, r.icon_id, r.default_icon_id,
		        r.oldest_action_id, r.newest_action_id, r.last_action_at
		   FROM rooms r
		   JOIN occupants o ON o.room_id = r.id
		  WHERE o.user_id = ? AND o.inactive = 0
		  ORDER BY r.last_action_at DESC, r.id ASC`,
		int64(userID),
	)
	if err != nil {
		return nil, fmt.Errorf("list rooms for user: %w", err)
	}
	defer rows.Close()

	var list []entity.Room
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, fmt.Errorf("list rooms for user: %w", err)
		}
		list = append(list, room)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list rooms for user: %w", err)
	}
	return list, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRoom(row rowScanner) (entity.Room, error) {
	var room entity.Room
	var purpose string
	var iconID, defaultIconID int64
	var oldest, newest int64
	var lastActionAt int64
	if err := row.Scan(
		&room.ID,
		&room.Name,
		&room.Topic,
		&purpose,
		&room.Moderated,
		&iconID,
		&defaultIconID,
		&oldest,
		&newest,
		&lastActionAt,
	); err != nil {
		return entity.Room{}, err
	}
	room.Purpose = entity.Purpose(purpose)
	room.IconID = ident.AttachmentID(iconID)
	room.DefaultIconID = ident.AttachmentID(defaultIconID)
	room.OldestAction = ident.ActionID(oldest)
	room.NewestAction = ident.ActionID(newest)
	if lastActionAt > 0 {
		room.LastActionAt = fromMillis(lastActionAt)
	}
	return room, nil
}

var _ storage.RoomStore = (*Store)(nil)
