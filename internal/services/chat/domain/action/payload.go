package action

import (
	"encoding/json"
	"strings"

	apperrors "github.com/critterchat/critterchat/internal/platform/errors"
)

// Typed details payloads per category. Details are stored as JSON alongside
// the action row; the open-ended field maps are kept only where the content
// is genuinely free-form.

// MessageDetails captures the details for message actions.
type MessageDetails struct {
	Body string `json:"body"`
}

// JoinDetails captures the details for join actions.
type JoinDetails struct {
	Nickname string `json:"nickname,omitempty"`
}

// LeaveDetails captures the details for leave actions.
type LeaveDetails struct {
	Reason string `json:"reason,omitempty"`
}

// ChangeInfoDetails captures the details for room info change actions.
type ChangeInfoDetails struct {
	Fields map[string]any `json:"fields"`
}

// ChangeProfileDetails captures the details for occupant profile change
// actions.
type ChangeProfileDetails struct {
	Fields map[string]any `json:"fields"`
}

// ChangeUsersDetails captures the details for membership management actions.
type ChangeUsersDetails struct {
	OccupantToken string `json:"occupant"`
	Moderator     *bool  `json:"moderator,omitempty"`
	Muted         *bool  `json:"muted,omitempty"`
}

// ErrMalformedDetails reports a details payload that does not satisfy its
// category's shape.
var ErrMalformedDetails = apperrors.New(apperrors.CodeActionDetailsMalformed, "action details are malformed")

// MarshalDetails serializes a typed details payload for storage.
func MarshalDetails(details any) (json.RawMessage, error) {
	if details == nil {
		return json.RawMessage("{}"), nil
	}
	raw, err := json.Marshal(details)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeActionDetailsMalformed, "marshal action details", err)
	}
	return raw, nil
}

// ValidateDetails checks that raw satisfies the required shape for the
// category. Messages need a non-blank body unless the action carries
// attachments; the change categories need a well-formed object.
func ValidateDetails(category Category, raw json.RawMessage, hasAttachments bool) error {
	if !category.IsValid() {
		return apperrors.New(apperrors.CodeInvalidActionCategory, "unknown action category")
	}
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}

	switch category {
	case CategoryMessage:
		var details MessageDetails
		if err := json.Unmarshal(raw, &details); err != nil {
			return apperrors.Wrap(apperrors.CodeActionDetailsMalformed, "decode message details", err)
		}
		if strings.TrimSpace(details.Body) == "" && !hasAttachments {
			return apperrors.New(apperrors.CodeActionDetailsMalformed, "message body is required")
		}
	case CategoryChangeUsers:
		var details ChangeUsersDetails
		if err := json.Unmarshal(raw, &details); err != nil {
			return apperrors.Wrap(apperrors.CodeActionDetailsMalformed, "decode change_users details", err)
		}
		if strings.TrimSpace(details.OccupantToken) == "" {
			return apperrors.New(apperrors.CodeActionDetailsMalformed, "change_users target occupant is required")
		}
	default:
		var details map[string]any
		if err := json.Unmarshal(raw, &details); err != nil {
			return apperrors.Wrap(apperrors.CodeActionDetailsMalformed, "decode action details", err)
		}
	}
	return nil
}
