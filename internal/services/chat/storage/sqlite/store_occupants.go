package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/critterchat/critterchat/internal/services/chat/domain/entity"
	"github.com/critterchat/critterchat/internal/services/chat/domain/ident"
	"github.com/critterchat/critterchat/internal/services/chat/storage"
)

const occupantColumns = `id, room_id, user_id, username, nickname, icon_id, inactive, moderator, muted`

// GetOccupant returns one occupant by id.
func (s *Store) GetOccupant(ctx context.Context, id ident.OccupantID) (entity.Occupant, error) {
	if err := ctx.Err(); err != nil {
		return entity.Occupant{}, err
	}
	if s == nil || s.sqlDB == nil {
		return entity.Occupant{}, fmt.Errorf("storage is not configured")
	}
	if !id.Assigned() {
		return entity.Occupant{}, storage.ErrNotFound
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT `+occupantColumns+` FROM occupants WHERE id = ?`,
		int64(id),
	)
	occupant, err := scanOccupant(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return entity.Occupant{}, storage.ErrNotFound
		}
		return entity.Occupant{}, fmt.Errorf("get occupant: %w", err)
	}
	return occupant, nil
}

// GetOccupantByUser returns the user's occupant in a room regardless of
// active state.
func (s *Store) GetOccupantByUser(ctx context.Context, roomID ident.RoomID, userID ident.UserID) (entity.Occupant, error) {
	if err := ctx.Err(); err != nil {
		return entity.Occupant{}, err
	}
	if s == nil || s.sqlDB == nil {
		return entity.Occupant{}, fmt.Errorf("storage is not configured")
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT `+occupantColumns+` FROM occupants WHERE room_id = ? AND user_id = ?`,
		int64(roomID),
		int64(userID),
	)
	occupant, err := scanOccupant(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return entity.Occupant{}, storage.ErrNotFound
		}
		return entity.Occupant{}, fmt.Errorf("get occupant by user: %w", err)
	}
	return occupant, nil
}

// ListOccupants returns a room's occupants: active members first in join
// order, then inactive ones when requested.
func (s *Store) ListOccupants(ctx context.Context, roomID ident.RoomID, includeInactive bool) ([]entity.Occupant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if !roomID.Assigned() {
		return nil, fmt.Errorf("room id is required")
	}

	query := `SELECT ` + occupantColumns + ` FROM occupants WHERE room_id = ?`
	if !includeInactive {
		query += ` AND inactive = 0`
	}
	query += ` ORDER BY inactive ASC, id ASC`

	rows, err := s.sqlDB.QueryContext(ctx, query, int64(roomID))
	if err != nil {
		return nil, fmt.Errorf("list occupants: %w", err)
	}
	defer rows.Close()

	var list []entity.Occupant
	for rows.Next() {
		occupant, err := scanOccupant(rows)
		if err != nil {
			return nil, fmt.Errorf("list occupants: %w", err)
		}
		list = append(list, occupant)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list occupants: %w", err)
	}
	return list, nil
}

// UpdateOccupant rewrites the mutable fields of an occupant.
func (s *Store) UpdateOccupant(ctx context.Context, occupant entity.Occupant) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}

	result, err := s.sqlDB.ExecContext(
		ctx,
		`UPDATE occupants
		    SET nickname = ?, icon_id = ?, inactive = ?, moderator = ?, muted = ?, updated_at = ?
		  WHERE id = ?`,
		occupant.Nickname,
		int64(occupant.IconID),
		occupant.Inactive,
		occupant.Moderator,
		occupant.Muted,
		toMillis(time.Now()),
		int64(occupant.ID),
	)
	if err != nil {
		return fmt.Errorf("update occupant: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update occupant: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func scanOccupant(row rowScanner) (entity.Occupant, error) {
	var occupant entity.Occupant
	var iconID int64
	if err := row.Scan(
		&occupant.ID,
		&occupant.RoomID,
		&occupant.UserID,
		&occupant.Username,
		&occupant.Nickname,
		&iconID,
		&occupant.Inactive,
		&occupant.Moderator,
		&occupant.Muted,
	); err != nil {
		return entity.Occupant{}, err
	}
	occupant.IconID = ident.AttachmentID(iconID)
	return occupant, nil
}

var _ storage.OccupantStore = (*Store)(nil)
