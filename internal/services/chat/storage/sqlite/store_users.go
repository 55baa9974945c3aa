package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/critterchat/critterchat/internal/services/chat/domain/entity"
	"github.com/critterchat/critterchat/internal/services/chat/domain/ident"
	"github.com/critterchat/critterchat/internal/services/chat/storage"
)

const userColumns = `id, username, permissions, nickname, about, icon_id`

// CreateUser inserts one account record with its password hash.
func (s *Store) CreateUser(ctx context.Context, user entity.User, passwordHash string) (entity.User, error) {
	if err := ctx.Err(); err != nil {
		return entity.User{}, err
	}
	if s == nil || s.sqlDB == nil {
		return entity.User{}, fmt.Errorf("storage is not configured")
	}
	user.Username = strings.TrimSpace(user.Username)
	if user.Username == "" {
		return entity.User{}, fmt.Errorf("username is required")
	}
	if passwordHash == "" {
		return entity.User{}, fmt.Errorf("password hash is required")
	}
	now := toMillis(time.Now())

	result, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO users (
		   username, password_hash, permissions, nickname, about, icon_id,
		   created_at, updated_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		user.Username,
		passwordHash,
		uint32(user.Permissions),
		user.Nickname,
		user.About,
		int64(user.IconID),
		now,
		now,
	)
	if err != nil {
		if isConstraintError(err) {
			return entity.User{}, storage.ErrAlreadyExists
		}
		return entity.User{}, fmt.Errorf("create user: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return entity.User{}, fmt.Errorf("create user id: %w", err)
	}
	user.ID = ident.UserID(id)
	return user, nil
}

// GetUser returns one user by id.
func (s *Store) GetUser(ctx context.Context, id ident.UserID) (entity.User, error) {
	if err := ctx.Err(); err != nil {
		return entity.User{}, err
	}
	if s == nil || s.sqlDB == nil {
		return entity.User{}, fmt.Errorf("storage is not configured")
	}
	if !id.Assigned() {
		return entity.User{}, storage.ErrNotFound
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`,
		int64(id),
	)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return entity.User{}, storage.ErrNotFound
		}
		return entity.User{}, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

// GetUserByUsername returns one user by username.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (entity.User, error) {
	if err := ctx.Err(); err != nil {
		return entity.User{}, err
	}
	if s == nil || s.sqlDB == nil {
		return entity.User{}, fmt.Errorf("storage is not configured")
	}
	username = strings.TrimSpace(username)
	if username == "" {
		return entity.User{}, fmt.Errorf("username is required")
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT `+userColumns+` FROM users WHERE username = ?`,
		username,
	)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return entity.User{}, storage.ErrNotFound
		}
		return entity.User{}, fmt.Errorf("get user by username: %w", err)
	}
	return user, nil
}

// GetCredentials returns the user and stored password hash for a username.
func (s *Store) GetCredentials(ctx context.Context, username string) (entity.User, string, error) {
	if err := ctx.Err(); err != nil {
		return entity.User{}, "", err
	}
	if s == nil || s.sqlDB == nil {
		return entity.User{}, "", fmt.Errorf("storage is not configured")
	}
	username = strings.TrimSpace(username)
	if username == "" {
		return entity.User{}, "", fmt.Errorf("username is required")
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT id, username, permissions, nickname, about, icon_id, password_hash
		   FROM users WHERE username = ?`,
		username,
	)
	var user entity.User
	var permissions uint32
	var iconID int64
	var passwordHash string
	err := row.Scan(
		&user.ID,
		&user.Username,
		&permissions,
		&user.Nickname,
		&user.About,
		&iconID,
		&passwordHash,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return entity.User{}, "", storage.ErrNotFound
		}
		return entity.User{}, "", fmt.Errorf("get credentials: %w", err)
	}
	user.Permissions = entity.Permission(permissions)
	user.IconID = ident.AttachmentID(iconID)
	return user, passwordHash, nil
}

// UpdateUserProfile rewrites the profile fields of a user and refreshes the
// denormalized snapshots on their occupants.
func (s *Store) UpdateUserProfile(ctx context.Context, user entity.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if !user.ID.Assigned() {
		return storage.ErrNotFound
	}
	now := toMillis(time.Now())

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(
		ctx,
		`UPDATE users
		    SET nickname = ?, about = ?, icon_id = ?, updated_at = ?
		  WHERE id = ?`,
		user.Nickname,
		user.About,
		int64(user.IconID),
		now,
		int64(user.ID),
	)
	if err != nil {
		return fmt.Errorf("update user profile: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update user profile: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}

	if _, err := tx.ExecContext(
		ctx,
		`UPDATE occupants
		    SET nickname = ?, icon_id = ?, updated_at = ?
		  WHERE user_id = ?`,
		user.Nickname,
		int64(user.IconID),
		now,
		int64(user.ID),
	); err != nil {
		return fmt.Errorf("refresh occupant snapshots: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// SetUserPermissions replaces the permission bits of a user.
func (s *Store) SetUserPermissions(ctx context.Context, id ident.UserID, permissions entity.Permission) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}

	result, err := s.sqlDB.ExecContext(
		ctx,
		`UPDATE users SET permissions = ?, updated_at = ? WHERE id = ?`,
		uint32(permissions),
		toMillis(time.Now()),
		int64(id),
	)
	if err != nil {
		return fmt.Errorf("set user permissions: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("set user permissions: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func scanUser(row rowScanner) (entity.User, error) {
	var user entity.User
	var permissions uint32
	var iconID int64
	if err := row.Scan(
		&user.ID,
		&user.Username,
		&permissions,
		&user.Nickname,
		&user.About,
		&iconID,
	); err != nil {
		return entity.User{}, err
	}
	user.Permissions = entity.Permission(permissions)
	user.IconID = ident.AttachmentID(iconID)
	return user, nil
}

var _ storage.UserStore = (*Store)(nil)
