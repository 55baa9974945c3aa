package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/critterchat/critterchat/internal/platform/errors"
	"github.com/critterchat/critterchat/internal/services/chat/domain/action"
	"github.com/critterchat/critterchat/internal/services/chat/domain/entity"
	"github.com/critterchat/critterchat/internal/services/chat/domain/ident"
	"github.com/critterchat/critterchat/internal/services/chat/storage"
)

// AppendAction atomically appends one entry to a room's log. The insert, the
// room pointer updates, and the occupant side effects commit together or not
// at all.
func (s *Store) AppendAction(ctx context.Context, params storage.AppendActionParams) (entity.Action, error) {
	if err := ctx.Err(); err != nil {
		return entity.Action{}, err
	}
	if s == nil || s.sqlDB == nil {
		return entity.Action{}, fmt.Errorf("storage is not configured")
	}
	if !params.Category.IsValid() {
		return entity.Action{}, fmt.Errorf("action category %q is not valid", params.Category)
	}

	if params.Timestamp.IsZero() {
		params.Timestamp = time.Now()
	}
	params.Timestamp = params.Timestamp.UTC().Truncate(time.Millisecond)
	if len(params.Details) == 0 {
		params.Details = json.RawMessage("{}")
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return entity.Action{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var roomExists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM rooms WHERE id = ?`, int64(params.RoomID)).Scan(&roomExists)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return entity.Action{}, storage.ErrNotFound
		}
		return entity.Action{}, fmt.Errorf("check room: %w", err)
	}

	occupantID := params.OccupantID
	if params.Join != nil {
		occupantID, err = upsertJoinOccupant(ctx, tx, params.RoomID, *params.Join, toMillis(params.Timestamp))
		if err != nil {
			return entity.Action{}, err
		}
	} else if occupantID.Assigned() {
		var occupantRoom int64
		var inactive bool
		err = tx.QueryRowContext(ctx, `SELECT room_id, inactive FROM occupants WHERE id = ?`, int64(occupantID)).Scan(&occupantRoom, &inactive)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return entity.Action{}, storage.ErrNotFound
			}
			return entity.Action{}, fmt.Errorf("check occupant: %w", err)
		}
		if occupantRoom != int64(params.RoomID) {
			return entity.Action{}, fmt.Errorf("occupant %d does not belong to room %d", occupantID, params.RoomID)
		}
		// Membership is re-read inside the transaction so a leave committing
		// after the caller's check cannot slip a later entry in behind it.
		if inactive && params.Category != action.CategoryJoin {
			return entity.Action{}, apperrors.New(apperrors.CodeNotRoomMember, "occupant has left the room")
		}
	}

	switch params.Category {
	case action.CategoryJoin:
		if occupantID.Assigned() && params.Join == nil {
			if _, err := tx.ExecContext(
				ctx,
				`UPDATE occupants SET inactive = 0, updated_at = ? WHERE id = ?`,
				toMillis(params.Timestamp),
				int64(occupantID),
			); err != nil {
				return entity.Action{}, fmt.Errorf("activate occupant: %w", err)
			}
		}
	case action.CategoryLeave:
		if occupantID.Assigned() {
			if _, err := tx.ExecContext(
				ctx,
				`UPDATE occupants SET inactive = 1, updated_at = ? WHERE id = ?`,
				toMillis(params.Timestamp),
				int64(occupantID),
			); err != nil {
				return entity.Action{}, fmt.Errorf("deactivate occupant: %w", err)
			}
		}
	}

	var occupantValue any
	if occupantID.Assigned() {
		occupantValue = int64(occupantID)
	}
	result, err := tx.ExecContext(
		ctx,
		`INSERT INTO actions (room_id, occupant_id, category, details, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		int64(params.RoomID),
		occupantValue,
		string(params.Category),
		string(params.Details),
		toMillis(params.Timestamp),
	)
	if err != nil {
		if isSQLiteBusyError(err) {
			return entity.Action{}, apperrors.Wrap(apperrors.CodeConflict, "append contention", err)
		}
		return entity.Action{}, fmt.Errorf("append action: %w", err)
	}
	actionID, err := result.LastInsertId()
	if err != nil {
		return entity.Action{}, fmt.Errorf("append action id: %w", err)
	}

	stored := entity.Action{
		ID:        ident.ActionID(actionID),
		RoomID:    params.RoomID,
		Timestamp: params.Timestamp,
		Category:  params.Category,
		Details:   params.Details,
	}

	for i, attachment := range params.Attachments {
		attachment, err = insertAttachment(ctx, tx, attachment, toMillis(params.Timestamp))
		if err != nil {
			return entity.Action{}, err
		}
		if _, err := tx.ExecContext(
			ctx,
			`INSERT INTO action_attachments (action_id, attachment_id, position) VALUES (?, ?, ?)`,
			actionID,
			int64(attachment.ID),
			i,
		); err != nil {
			return entity.Action{}, fmt.Errorf("link attachment: %w", err)
		}
		stored.Attachments = append(stored.Attachments, attachment)
	}

	if _, err := tx.ExecContext(
		ctx,
		`UPDATE rooms
		    SET newest_action_id = ?,
		        oldest_action_id = CASE WHEN oldest_action_id < 0 THEN ? ELSE oldest_action_id END,
		        last_action_at = ?,
		        updated_at = ?
		  WHERE id = ?`,
		actionID,
		actionID,
		toMillis(params.Timestamp),
		toMillis(params.Timestamp),
		int64(params.RoomID),
	); err != nil {
		return entity.Action{}, fmt.Errorf("update room pointers: %w", err)
	}

	if occupantID.Assigned() {
		row := tx.QueryRowContext(
			ctx,
			`SELECT `+occupantColumns+` FROM occupants WHERE id = ?`,
			int64(occupantID),
		)
		occupant, err := scanOccupant(row)
		if err != nil {
			return entity.Action{}, fmt.Errorf("load occupant: %w", err)
		}
		stored.Occupant = &occupant
	}

	if err := tx.Commit(); err != nil {
		if isSQLiteBusyError(err) {
			return entity.Action{}, apperrors.Wrap(apperrors.CodeConflict, "append contention", err)
		}
		return entity.Action{}, fmt.Errorf("commit: %w", err)
	}
	return stored, nil
}

func upsertJoinOccupant(ctx context.Context, tx *sql.Tx, roomID ident.RoomID, join storage.JoinOccupant, now int64) (ident.OccupantID, error) {
	join.Username = strings.TrimSpace(join.Username)
	if !join.UserID.Assigned() {
		return ident.NewOccupantID, fmt.Errorf("join user id is required")
	}
	if join.Username == "" {
		return ident.NewOccupantID, fmt.Errorf("join username is required")
	}

	var id int64
	err := tx.QueryRowContext(
		ctx,
		`SELECT id FROM occupants WHERE room_id = ? AND user_id = ?`,
		int64(roomID),
		int64(join.UserID),
	).Scan(&id)
	switch {
	case err == nil:
		if _, err := tx.ExecContext(
			ctx,
			`UPDATE occupants SET inactive = 0, username = ?, nickname = ?, icon_id = ?, updated_at = ? WHERE id = ?`,
			join.Username,
			join.Nickname,
			int64(join.IconID),
			now,
			id,
		); err != nil {
			return ident.NewOccupantID, fmt.Errorf("reactivate occupant: %w", err)
		}
		return ident.OccupantID(id), nil
	case errors.Is(err, sql.ErrNoRows):
		result, err := tx.ExecContext(
			ctx,
			`INSERT INTO occupants (room_id, user_id, username, nickname, icon_id, inactive, moderator, muted, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, 0, 0, 0, ?, ?)`,
			int64(roomID),
			int64(join.UserID),
			join.Username,
			join.Nickname,
			int64(join.IconID),
			now,
			now,
		)
		if err != nil {
			return ident.NewOccupantID, fmt.Errorf("create occupant: %w", err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return ident.NewOccupantID, fmt.Errorf("create occupant id: %w", err)
		}
		return ident.OccupantID(id), nil
	default:
		return ident.NewOccupantID, fmt.Errorf("find occupant: %w", err)
	}
}

func insertAttachment(ctx context.Context, tx *sql.Tx, attachment entity.Attachment, now int64) (entity.Attachment, error) {
	if attachment.ID.Assigned() {
		return attachment, nil
	}
	result, err := tx.ExecContext(
		ctx,
		`INSERT INTO attachments (uri, mime_type, width, height, alt_text, sensitive, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		attachment.URI,
		attachment.MimeType,
		attachment.Metadata.Width,
		attachment.Metadata.Height,
		attachment.Metadata.AltText,
		attachment.Metadata.Sensitive,
		now,
	)
	if err != nil {
		return entity.Attachment{}, fmt.Errorf("create attachment: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return entity.Attachment{}, fmt.Errorf("create attachment id: %w", err)
	}
	attachment.ID = ident.AttachmentID(id)
	return attachment, nil
}

// GetAction returns one log entry by room and id.
func (s *Store) GetAction(ctx context.Context, roomID ident.RoomID, id ident.ActionID) (entity.Action, error) {
	if err := ctx.Err(); err != nil {
		return entity.Action{}, err
	}
	if s == nil || s.sqlDB == nil {
		return entity.Action{}, fmt.Errorf("storage is not configured")
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT a.id, a.room_id, a.occupant_id, a.category, a.details, a.created_at
		   FROM actions a
		  WHERE a.room_id = ? AND a.id = ?`,
		int64(roomID),
		int64(id),
	)
	act, occupantID, err := scanAction(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return entity.Action{}, storage.ErrNotFound
		}
		return entity.Action{}, fmt.Errorf("get action: %w", err)
	}
	if err := s.hydrateActions(ctx, []entity.Action{act}, []int64{occupantID}, func(i int, hydrated entity.Action) {
		act = hydrated
	}); err != nil {
		return entity.Action{}, err
	}
	return act, nil
}

// ListActions returns a bounded slice of the room's log, oldest first.
func (s *Store) ListActions(ctx context.Context, roomID ident.RoomID, req storage.ListActionsRequest) ([]entity.Action, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if req.Before.Assigned() && req.After.Assigned() {
		return nil, fmt.Errorf("before and after bounds are mutually exclusive")
	}
	limit := req.Limit
	if limit <= 0 {
		limit = 50
	}

	var (
		rows *sql.Rows
		err  error
	)
	const selectActions = `SELECT a.id, a.room_id, a.occupant_id, a.category, a.details, a.created_at FROM actions a`
	switch {
	case req.Before.Assigned():
		rows, err = s.sqlDB.QueryContext(
			ctx,
			selectActions+` WHERE a.room_id = ? AND a.id < ? ORDER BY a.id DESC LIMIT ?`,
			int64(roomID), int64(req.Before), limit,
		)
	case req.After.Assigned():
		rows, err = s.sqlDB.QueryContext(
			ctx,
			selectActions+` WHERE a.room_id = ? AND a.id > ? ORDER BY a.id ASC LIMIT ?`,
			int64(roomID), int64(req.After), limit,
		)
	default:
		rows, err = s.sqlDB.QueryContext(
			ctx,
			selectActions+` WHERE a.room_id = ? ORDER BY a.id DESC LIMIT ?`,
			int64(roomID), limit,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("list actions: %w", err)
	}
	defer rows.Close()

	actions := make([]entity.Action, 0, limit)
	occupantIDs := make([]int64, 0, limit)
	for rows.Next() {
		act, occupantID, err := scanAction(rows)
		if err != nil {
			return nil, fmt.Errorf("list actions: %w", err)
		}
		actions = append(actions, act)
		occupantIDs = append(occupantIDs, occupantID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list actions: %w", err)
	}

	// Backward scans come back newest first; normalize to oldest first.
	if !req.After.Assigned() {
		for i, j := 0, len(actions)-1; i < j; i, j = i+1, j-1 {
			actions[i], actions[j] = actions[j], actions[i]
			occupantIDs[i], occupantIDs[j] = occupantIDs[j], occupantIDs[i]
		}
	}

	if err := s.hydrateActions(ctx, actions, occupantIDs, func(i int, hydrated entity.Action) {
		actions[i] = hydrated
	}); err != nil {
		return nil, err
	}
	return actions, nil
}

// CountActionsAfter counts entries above the cursor in the given category set.
func (s *Store) CountActionsAfter(ctx context.Context, roomID ident.RoomID, after ident.ActionID, categories []action.Category) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s == nil || s.sqlDB == nil {
		return 0, fmt.Errorf("storage is not configured")
	}
	if len(categories) == 0 {
		return 0, nil
	}

	cursor := int64(0)
	if after.Assigned() {
		cursor = int64(after)
	}
	placeholders := make([]string, len(categories))
	args := make([]any, 0, len(categories)+2)
	args = append(args, int64(roomID), cursor)
	for i, category := range categories {
		placeholders[i] = "?"
		args = append(args, string(category))
	}

	var count int
	err := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT COUNT(*) FROM actions
		  WHERE room_id = ? AND id > ? AND category IN (`+strings.Join(placeholders, ", ")+`)`,
		args...,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count actions: %w", err)
	}
	return count, nil
}

// HasActionsAfter reports whether any entry above the cursor falls in the
// given category set. Unlike CountActionsAfter this stops at the first hit.
func (s *Store) HasActionsAfter(ctx context.Context, roomID ident.RoomID, after ident.ActionID, categories []action.Category) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if s == nil || s.sqlDB == nil {
		return false, fmt.Errorf("storage is not configured")
	}
	if len(categories) == 0 {
		return false, nil
	}

	cursor := int64(0)
	if after.Assigned() {
		cursor = int64(after)
	}
	placeholders := make([]string, len(categories))
	args := make([]any, 0, len(categories)+2)
	args = append(args, int64(roomID), cursor)
	for i, category := range categories {
		placeholders[i] = "?"
		args = append(args, string(category))
	}

	var one int
	err := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT 1 FROM actions
		  WHERE room_id = ? AND id > ? AND category IN (`+strings.Join(placeholders, ", ")+`)
		  LIMIT 1`,
		args...,
	).Scan(&one)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("has actions after: %w", err)
	}
	return true, nil
}

// LatestActionID returns the newest entry id in the room, or the sentinel for
// an empty log.
func (s *Store) LatestActionID(ctx context.Context, roomID ident.RoomID) (ident.ActionID, error) {
	if err := ctx.Err(); err != nil {
		return ident.NewActionID, err
	}
	if s == nil || s.sqlDB == nil {
		return ident.NewActionID, fmt.Errorf("storage is not configured")
	}

	var id sql.NullInt64
	err := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT MAX(id) FROM actions WHERE room_id = ?`,
		int64(roomID),
	).Scan(&id)
	if err != nil {
		return ident.NewActionID, fmt.Errorf("latest action id: %w", err)
	}
	if !id.Valid {
		return ident.NewActionID, nil
	}
	return ident.ActionID(id.Int64), nil
}

func scanAction(row rowScanner) (entity.Action, int64, error) {
	var act entity.Action
	var occupantID sql.NullInt64
	var category string
	var details string
	var createdAt int64
	if err := row.Scan(
		&act.ID,
		&act.RoomID,
		&occupantID,
		&category,
		&details,
		&createdAt,
	); err != nil {
		return entity.Action{}, 0, err
	}
	act.Category = action.Category(category)
	act.Details = json.RawMessage(details)
	act.Timestamp = fromMillis(createdAt)
	if occupantID.Valid {
		return act, occupantID.Int64, nil
	}
	return act, 0, nil
}

// hydrateActions loads occupants and attachments for the scanned entries.
func (s *Store) hydrateActions(ctx context.Context, actions []entity.Action, occupantIDs []int64, assign func(int, entity.Action)) error {
	occupants := make(map[int64]*entity.Occupant)
	for i, act := range actions {
		occupantID := occupantIDs[i]
		if occupantID > 0 {
			occupant, ok := occupants[occupantID]
			if !ok {
				loaded, err := s.GetOccupant(ctx, ident.OccupantID(occupantID))
				if err != nil && !errors.Is(err, storage.ErrNotFound) {
					return err
				}
				if err == nil {
					occupant = &loaded
				}
				occupants[occupantID] = occupant
			}
			act.Occupant = occupant
		}

		attachments, err := s.listActionAttachments(ctx, act.ID)
		if err != nil {
			return err
		}
		act.Attachments = attachments
		assign(i, act)
	}
	return nil
}

func (s *Store) listActionAttachments(ctx context.Context, actionID ident.ActionID) ([]entity.Attachment, error) {
	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT t.id, t.uri, t.mime_type, t.width, t.height, t.alt_text, t.sensitive
		   FROM attachments t
		   JOIN action_attachments l ON l.attachment_id = t.id
		  WHERE l.action_id = ?
		  ORDER BY l.position ASC`,
		int64(actionID),
	)
	if err != nil {
		return nil, fmt.Errorf("list action attachments: %w", err)
	}
	defer rows.Close()

	var list []entity.Attachment
	for rows.Next() {
		attachment, err := scanAttachment(rows)
		if err != nil {
			return nil, fmt.Errorf("list action attachments: %w", err)
		}
		list = append(list, attachment)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list action attachments: %w", err)
	}
	return list, nil
}

var _ storage.ActionStore = (*Store)(nil)
