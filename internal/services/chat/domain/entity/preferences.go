package entity

import "github.com/critterchat/critterchat/internal/services/chat/domain/ident"

// Notification is a bitmask of audio notification categories.
type Notification uint32

const (
	NotificationChatSent        Notification = 0x1
	NotificationChatReceived    Notification = 0x2
	NotificationMessageSent     Notification = 0x4
	NotificationMessageReceived Notification = 0x8
	NotificationMentioned       Notification = 0x10
	NotificationUserJoined      Notification = 0x20
	NotificationUserLeft        Notification = 0x40
)

var notificationNames = []struct {
	flag Notification
	name string
}{
	{NotificationChatSent, "CHAT_SENT"},
	{NotificationChatReceived, "CHAT_RECEIVED"},
	{NotificationMessageSent, "MESSAGE_SENT"},
	{NotificationMessageReceived, "MESSAGE_RECEIVED"},
	{NotificationMentioned, "MENTIONED"},
	{NotificationUserJoined, "USER_JOINED"},
	{NotificationUserLeft, "USER_LEFT"},
}

// Has reports whether the notification category is enabled.
func (n Notification) Has(flag Notification) bool {
	return n&flag == flag
}

// Names returns the symbolic names of the enabled categories.
func (n Notification) Names() []string {
	names := make([]string, 0, len(notificationNames))
	for _, entry := range notificationNames {
		if n.Has(entry.flag) {
			names = append(names, entry.name)
		}
	}
	return names
}

// NotificationsFromNames folds symbolic category names back into the bitmask.
// Unknown names are ignored so older clients can keep sending them.
func NotificationsFromNames(names []string) Notification {
	var flags Notification
	for _, name := range names {
		for _, entry := range notificationNames {
			if entry.name == name {
				flags |= entry.flag
			}
		}
	}
	return flags
}

// UserPreferences is per-user UI and notification configuration.
type UserPreferences struct {
	UserID            ident.UserID
	RoomsOnTop        bool
	CombinedMessages  bool
	ColorScheme       string
	DesktopSize       string
	MobileSize        string
	AdminControls     string
	TitleNotifs       bool
	MobileAudioNotifs bool
	AudioNotifs       Notification
}

// DefaultPreferences returns the baseline applied when nothing is persisted.
func DefaultPreferences(userID ident.UserID) UserPreferences {
	return UserPreferences{
		UserID:        userID,
		ColorScheme:   "system",
		DesktopSize:   "normal",
		MobileSize:    "normal",
		AdminControls: "visible",
		TitleNotifs:   true,
	}
}

// UserPreferencesPayload is the wire form of user preferences.
type UserPreferencesPayload struct {
	RoomsOnTop        bool     `json:"rooms_on_top"`
	CombinedMessages  bool     `json:"combined_messages"`
	ColorScheme       string   `json:"color_scheme"`
	DesktopSize       string   `json:"desktop_size"`
	MobileSize        string   `json:"mobile_size"`
	AdminControls     string   `json:"admin_controls"`
	TitleNotifs       bool     `json:"title_notifs"`
	MobileAudioNotifs bool     `json:"mobile_audio_notifs"`
	AudioNotifs       []string `json:"audio_notifs"`
}

// Payload returns the wire form of the preferences.
func (p UserPreferences) Payload() UserPreferencesPayload {
	return UserPreferencesPayload{
		RoomsOnTop:        p.RoomsOnTop,
		CombinedMessages:  p.CombinedMessages,
		ColorScheme:       p.ColorScheme,
		DesktopSize:       p.DesktopSize,
		MobileSize:        p.MobileSize,
		AdminControls:     p.AdminControls,
		TitleNotifs:       p.TitleNotifs,
		MobileAudioNotifs: p.MobileAudioNotifs,
		AudioNotifs:       p.AudioNotifs.Names(),
	}
}
