// Package action defines the event categories of a room's log and the fixed
// classification policy derived from them.
package action

// Category identifies the kind of a room log action.
type Category string

const (
	// CategoryMessage records a chat message posted to the room.
	CategoryMessage Category = "message"
	// CategoryJoin records an occupant joining the room.
	CategoryJoin Category = "join"
	// CategoryLeave records an occupant leaving the room.
	CategoryLeave Category = "leave"
	// CategoryChangeInfo records a change to the room's own info (name,
	// topic, icon). It is the only category that may be recorded without an
	// acting occupant, so rooms can be edited from administrative tooling.
	CategoryChangeInfo Category = "change_info"
	// CategoryChangeProfile records an occupant profile change.
	CategoryChangeProfile Category = "change_profile"
	// CategoryChangeUsers records a room membership management change.
	CategoryChangeUsers Category = "change_users"
)

// IsValid reports whether the category is one of the known kinds.
func (c Category) IsValid() bool {
	switch c {
	case CategoryMessage, CategoryJoin, CategoryLeave,
		CategoryChangeInfo, CategoryChangeProfile, CategoryChangeUsers:
		return true
	}
	return false
}

// The classification sets below are fixed policy, not configuration. The
// unread aggregator and notification dispatch must consult these instead of
// re-deriving membership.

// UnreadCategories returns the categories that bump a room's unread count.
func UnreadCategories() []Category {
	return []Category{CategoryMessage, CategoryJoin, CategoryLeave, CategoryChangeInfo}
}

// DMUnreadCategories returns the categories that bump a direct-message
// room's unread count. Membership churn is excluded there.
func DMUnreadCategories() []Category {
	return []Category{CategoryMessage, CategoryChangeInfo}
}

// UpdateCategories returns the categories that trigger client update
// notifications.
func UpdateCategories() []Category {
	return []Category{
		CategoryMessage, CategoryJoin, CategoryLeave,
		CategoryChangeInfo, CategoryChangeProfile, CategoryChangeUsers,
	}
}

// CountsUnread reports whether the category affects unread counts, using the
// narrower direct-message set when directMessage is true.
func (c Category) CountsUnread(directMessage bool) bool {
	if directMessage {
		return c == CategoryMessage || c == CategoryChangeInfo
	}
	switch c {
	case CategoryMessage, CategoryJoin, CategoryLeave, CategoryChangeInfo:
		return true
	}
	return false
}

// SignalsUpdate reports whether the category triggers an update notification.
func (c Category) SignalsUpdate() bool {
	return c.IsValid()
}

// AllowsNilOccupant reports whether the category may be recorded without an
// acting occupant.
func (c Category) AllowsNilOccupant() bool {
	return c == CategoryChangeInfo
}

// AllowsAttachments reports whether the category carries attachments.
func (c Category) AllowsAttachments() bool {
	return c == CategoryMessage
}
