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

// CreateAttachment inserts one attachment metadata record.
func (s *Store) CreateAttachment(ctx context.Context, attachment entity.Attachment) (entity.Attachment, error) {
	if err := ctx.Err(); err != nil {
		return entity.Attachment{}, err
	}
	if s == nil || s.sqlDB == nil {
		return entity.Attachment{}, fmt.Errorf("storage is not configured")
	}
	attachment.URI = strings.TrimSpace(attachment.URI)
	if attachment.URI == "" {
		return entity.Attachment{}, fmt.Errorf("attachment uri is required")
	}
	if strings.TrimSpace(attachment.MimeType) == "" {
		return entity.Attachment{}, fmt.Errorf("attachment mime type is required")
	}

	result, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO attachments (uri, mime_type, width, height, alt_text, sensitive, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		attachment.URI,
		attachment.MimeType,
		attachment.Metadata.Width,
		attachment.Metadata.Height,
		attachment.Metadata.AltText,
		attachment.Metadata.Sensitive,
		toMillis(time.Now()),
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

// GetAttachment returns one attachment metadata record by id.
func (s *Store) GetAttachment(ctx context.Context, id ident.AttachmentID) (entity.Attachment, error) {
	if err := ctx.Err(); err != nil {
		return entity.Attachment{}, err
	}
	if s == nil || s.sqlDB == nil {
		return entity.Attachment{}, fmt.Errorf("storage is not configured")
	}
	if id <= 0 {
		return entity.Attachment{}, storage.ErrNotFound
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT id, uri, mime_type, width, height, alt_text, sensitive
		   FROM attachments WHERE id = ?`,
		int64(id),
	)
	attachment, err := scanAttachment(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return entity.Attachment{}, storage.ErrNotFound
		}
		return entity.Attachment{}, fmt.Errorf("get attachment: %w", err)
	}
	return attachment, nil
}

func scanAttachment(row rowScanner) (entity.Attachment, error) {
	var attachment entity.Attachment
	if err := row.Scan(
		&attachment.ID,
		&attachment.URI,
		&attachment.MimeType,
		&attachment.Metadata.Width,
		&attachment.Metadata.Height,
		&attachment.Metadata.AltText,
		&attachment.Metadata.Sensitive,
	); err != nil {
		return entity.Attachment{}, err
	}
	return attachment, nil
}

var _ storage.AttachmentStore = (*Store)(nil)
