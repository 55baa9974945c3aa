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

// GetSettings returns one user's settings record.
func (s *Store) GetSettings(ctx context.Context, userID ident.UserID) (entity.UserSettings, error) {
	if err := ctx.Err(); err != nil {
		return entity.UserSettings{}, err
	}
	if s == nil || s.sqlDB == nil {
		return entity.UserSettings{}, fmt.Errorf("storage is not configured")
	}

	var settings entity.UserSettings
	var roomID int64
	err := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT user_id, room_id, presence FROM user_settings WHERE user_id = ?`,
		int64(userID),
	).Scan(&settings.UserID, &roomID, &settings.Presence)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return entity.UserSettings{}, storage.ErrNotFound
		}
		return entity.UserSettings{}, fmt.Errorf("get settings: %w", err)
	}
	settings.RoomID = ident.RoomID(roomID)
	return settings, nil
}

// PutSettings stores one user's settings record, replacing any prior value.
func (s *Store) PutSettings(ctx context.Context, settings entity.UserSettings) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if !settings.UserID.Assigned() {
		return fmt.Errorf("user id is required")
	}
	if settings.Presence == "" {
		settings.Presence = entity.PresenceHidden
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO user_settings (user_id, room_id, presence, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (user_id) DO UPDATE SET
		   room_id = excluded.room_id,
		   presence = excluded.presence,
		   updated_at = excluded.updated_at`,
		int64(settings.UserID),
		int64(settings.RoomID),
		settings.Presence,
		toMillis(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("put settings: %w", err)
	}
	return nil
}

// GetPreferences returns one user's preferences record.
func (s *Store) GetPreferences(ctx context.Context, userID ident.UserID) (entity.UserPreferences, error) {
	if err := ctx.Err(); err != nil {
		return entity.UserPreferences{}, err
	}
	if s == nil || s.sqlDB == nil {
		return entity.UserPreferences{}, fmt.Errorf("storage is not configured")
	}

	var prefs entity.UserPreferences
	var audioNotifs uint32
	err := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT user_id, rooms_on_top, combined_messages, color_scheme,
		        desktop_size, mobile_size, admin_controls,
		        title_notifs, mobile_audio_notifs, audio_notifs
		   FROM user_preferences WHERE user_id = ?`,
		int64(userID),
	).Scan(
		&prefs.UserID,
		&prefs.RoomsOnTop,
		&prefs.CombinedMessages,
		&prefs.ColorScheme,
		&prefs.DesktopSize,
		&prefs.MobileSize,
		&prefs.AdminControls,
		&prefs.TitleNotifs,
		&prefs.MobileAudioNotifs,
		&audioNotifs,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return entity.UserPreferences{}, storage.ErrNotFound
		}
		return entity.UserPreferences{}, fmt.Errorf("get preferences: %w", err)
	}
	prefs.AudioNotifs = entity.Notification(audioNotifs)
	return prefs, nil
}

// PutPreferences stores one user's preferences record, replacing any prior
// value.
func (s *Store) PutPreferences(ctx context.Context, prefs entity.UserPreferences) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if !prefs.UserID.Assigned() {
		return fmt.Errorf("user id is required")
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO user_preferences (
		   user_id, rooms_on_top, combined_messages, color_scheme,
		   desktop_size, mobile_size, admin_controls,
		   title_notifs, mobile_audio_notifs, audio_notifs, updated_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (user_id) DO UPDATE SET
		   rooms_on_top = excluded.rooms_on_top,
		   combined_messages = excluded.combined_messages,
		   color_scheme = excluded.color_scheme,
		   desktop_size = excluded.desktop_size,
		   mobile_size = excluded.mobile_size,
		   admin_controls = excluded.admin_controls,
		   title_notifs = excluded.title_notifs,
		   mobile_audio_notifs = excluded.mobile_audio_notifs,
		   audio_notifs = excluded.audio_notifs,
		   updated_at = excluded.updated_at`,
		int64(prefs.UserID),
		prefs.RoomsOnTop,
		prefs.CombinedMessages,
		prefs.ColorScheme,
		prefs.DesktopSize,
		prefs.MobileSize,
		prefs.AdminControls,
		prefs.TitleNotifs,
		prefs.MobileAudioNotifs,
		uint32(prefs.AudioNotifs),
		toMillis(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("put preferences: %w", err)
	}
	return nil
}

var _ storage.SettingsStore = (*Store)(nil)
var _ storage.PreferencesStore = (*Store)(nil)
