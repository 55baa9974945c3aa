package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	apperrors "github.com/critterchat/critterchat/internal/platform/errors"
	"github.com/critterchat/critterchat/internal/services/chat/domain/ident"
	"github.com/critterchat/critterchat/internal/services/chat/storage"
)

// GetWatermark returns the occupant's last acknowledged action id in a room,
// or the sentinel when nothing was acknowledged yet.
func (s *Store) GetWatermark(ctx context.Context, occupantID ident.OccupantID, roomID ident.RoomID) (ident.ActionID, error) {
	if err := ctx.Err(); err != nil {
		return ident.NewActionID, err
	}
	if s == nil || s.sqlDB == nil {
		return ident.NewActionID, fmt.Errorf("storage is not configured")
	}

	var lastActionID int64
	err := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT last_action_id FROM watermarks WHERE occupant_id = ? AND room_id = ?`,
		int64(occupantID),
		int64(roomID),
	).Scan(&lastActionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ident.NewActionID, nil
		}
		return ident.NewActionID, fmt.Errorf("get watermark: %w", err)
	}
	return ident.ActionID(lastActionID), nil
}

// AdvanceWatermark moves the watermark forward to id. Backward moves are
// absorbed: the row keeps its value and the call reports no change.
func (s *Store) AdvanceWatermark(ctx context.Context, occupantID ident.OccupantID, roomID ident.RoomID, id ident.ActionID) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if s == nil || s.sqlDB == nil {
		return false, fmt.Errorf("storage is not configured")
	}
	if !occupantID.Assigned() {
		return false, fmt.Errorf("occupant id is required")
	}
	if !id.Assigned() {
		return false, nil
	}
	now := toMillis(time.Now())

	result, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT OR IGNORE INTO watermarks (occupant_id, room_id, last_action_id, updated_at)
		 VALUES (?, ?, ?, ?)`,
		int64(occupantID),
		int64(roomID),
		int64(id),
		now,
	)
	if err != nil {
		if isSQLiteBusyError(err) {
			return false, apperrors.Wrap(apperrors.CodeConflict, "watermark contention", err)
		}
		return false, fmt.Errorf("insert watermark: %w", err)
	}
	inserted, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert watermark: %w", err)
	}
	if inserted > 0 {
		return true, nil
	}

	// Row already exists; advance only when id is forward progress.
	result, err = s.sqlDB.ExecContext(
		ctx,
		`UPDATE watermarks
		    SET last_action_id = ?, updated_at = ?
		  WHERE occupant_id = ? AND room_id = ? AND last_action_id < ?`,
		int64(id),
		now,
		int64(occupantID),
		int64(roomID),
		int64(id),
	)
	if err != nil {
		if isSQLiteBusyError(err) {
			return false, apperrors.Wrap(apperrors.CodeConflict, "watermark contention", err)
		}
		return false, fmt.Errorf("advance watermark: %w", err)
	}
	advanced, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("advance watermark: %w", err)
	}
	return advanced > 0, nil
}

var _ storage.WatermarkStore = (*Store)(nil)
