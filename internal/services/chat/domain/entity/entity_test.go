package entity

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/critterchat/critterchat/internal/services/chat/domain/action"
	"github.com/critterchat/critterchat/internal/services/chat/domain/ident"
)

func TestAttachmentPayloadOmitsID(t *testing.T) {
	attachment := Attachment{
		ID:       ident.AttachmentID(42),
		URI:      "/media/ab/cdef.png",
		MimeType: "image/png",
		Metadata: AttachmentMetadata{Width: 64, Height: 64},
	}

	raw, err := json.Marshal(attachment.Payload())
	if err != nil {
		t.Fatalf("marshal attachment payload: %v", err)
	}

	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		t.Fatalf("unmarshal attachment payload: %v", err)
	}
	if _, ok := fields["id"]; ok {
		t.Fatalf("attachment payload contains id field: %s", raw)
	}
	if fields["uri"] != "/media/ab/cdef.png" {
		t.Fatalf("uri = %v, want /media/ab/cdef.png", fields["uri"])
	}
}

func TestRoomPayload(t *testing.T) {
	room := Room{
		ID:           ident.RoomID(7),
		Name:         "lobby",
		Topic:        "general chatter",
		Purpose:      PurposeRoom,
		OldestAction: ident.ActionID(1),
		NewestAction: ident.ActionID(9),
		LastActionAt: time.UnixMilli(1700000000000),
	}

	payload := room.Payload("/media/icon.png", "/static/deficon.png")
	if payload.ID != "r7" {
		t.Fatalf("payload.ID = %q, want r7", payload.ID)
	}
	if !payload.Public {
		t.Fatal("room purpose should be public")
	}
	if payload.OldestAction != "a1" || payload.NewestAction != "a9" {
		t.Fatalf("action pointers = %q/%q, want a1/a9", payload.OldestAction, payload.NewestAction)
	}
	if payload.LastActionAt != 1700000000000 {
		t.Fatalf("payload.LastActionAt = %d, want 1700000000000", payload.LastActionAt)
	}
}

func TestRoomPayloadOmitsUnsetPointers(t *testing.T) {
	room := Room{
		ID:           ident.RoomID(3),
		Name:         "fresh",
		Purpose:      PurposeChat,
		OldestAction: ident.NewActionID,
		NewestAction: ident.NewActionID,
	}

	payload := room.Payload("", "")
	if payload.Public {
		t.Fatal("chat purpose should not be public")
	}
	if payload.OldestAction != "" || payload.NewestAction != "" {
		t.Fatalf("action pointers = %q/%q, want empty", payload.OldestAction, payload.NewestAction)
	}
	if payload.LastActionAt != 0 {
		t.Fatalf("payload.LastActionAt = %d, want 0", payload.LastActionAt)
	}
}

func TestPurposeIsValid(t *testing.T) {
	for _, purpose := range []Purpose{PurposeRoom, PurposeChat, PurposeDirectMessage} {
		if !purpose.IsValid() {
			t.Fatalf("purpose %q should be valid", purpose)
		}
	}
	if Purpose("broadcast").IsValid() {
		t.Fatal("unknown purpose should be invalid")
	}
}

func TestUserPayload(t *testing.T) {
	user := User{
		ID:          ident.UserID(5),
		Username:    "fox",
		Nickname:    "Fox",
		Permissions: PermissionActivated | PermissionAdministrator,
	}

	payload := user.Payload("critter.example", true)
	if payload.FullUsername != "@fox@critter.example" {
		t.Fatalf("payload.FullUsername = %q, want @fox@critter.example", payload.FullUsername)
	}
	if len(payload.Permissions) != 2 {
		t.Fatalf("payload.Permissions = %v, want two entries", payload.Permissions)
	}
	if strings.Join(payload.Permissions, ",") != "ACTIVATED,ADMINISTRATOR" {
		t.Fatalf("payload.Permissions = %v", payload.Permissions)
	}
}

func TestUserPayloadHidesPermissionsForNonAdmins(t *testing.T) {
	user := User{ID: ident.UserID(5), Username: "fox", Permissions: PermissionActivated}

	payload := user.Payload("", false)
	if payload.FullUsername != "" {
		t.Fatalf("payload.FullUsername = %q, want empty", payload.FullUsername)
	}
	if payload.Permissions != nil {
		t.Fatalf("payload.Permissions = %v, want nil", payload.Permissions)
	}
}

func TestUserInRoomPayload(t *testing.T) {
	member := UserInRoom{
		User:       User{ID: ident.UserID(5), Username: "fox"},
		OccupantID: ident.OccupantID(12),
		Moderator:  true,
	}

	payload := member.Payload("", false)
	if payload.OccupantID != "o12" {
		t.Fatalf("payload.OccupantID = %q, want o12", payload.OccupantID)
	}
	if !payload.Moderator || payload.Muted {
		t.Fatalf("moderator/muted = %v/%v, want true/false", payload.Moderator, payload.Muted)
	}
}

func TestActionPayload(t *testing.T) {
	occupant := &Occupant{ID: ident.OccupantID(12), UserID: ident.UserID(5), Username: "fox"}
	act := Action{
		ID:        ident.ActionID(33),
		RoomID:    ident.RoomID(7),
		Timestamp: time.UnixMilli(1700000000000),
		Occupant:  occupant,
		Category:  action.CategoryMessage,
		Details:   json.RawMessage(`{"body":"hi"}`),
	}

	payload := act.Payload()
	if payload.ID != "a33" {
		t.Fatalf("payload.ID = %q, want a33", payload.ID)
	}
	if payload.Order != 33 {
		t.Fatalf("payload.Order = %d, want 33", payload.Order)
	}
	if payload.Timestamp != 1700000000000 {
		t.Fatalf("payload.Timestamp = %d, want 1700000000000", payload.Timestamp)
	}
	if payload.Occupant == nil || payload.Occupant.ID != "o12" {
		t.Fatalf("payload.Occupant = %+v, want occupant o12", payload.Occupant)
	}
	if payload.Attachments == nil || len(payload.Attachments) != 0 {
		t.Fatalf("payload.Attachments = %v, want empty slice", payload.Attachments)
	}
}

func TestActionPayloadDefaultsDetails(t *testing.T) {
	act := Action{
		ID:       ident.ActionID(1),
		RoomID:   ident.RoomID(7),
		Category: action.CategoryChangeInfo,
	}

	payload := act.Payload()
	if string(payload.Details) != "{}" {
		t.Fatalf("payload.Details = %s, want {}", payload.Details)
	}
	if payload.Occupant != nil {
		t.Fatalf("payload.Occupant = %+v, want nil", payload.Occupant)
	}
}

func TestUserSettingsPayloadDefaults(t *testing.T) {
	payload := UserSettings{UserID: ident.UserID(5), RoomID: ident.NewRoomID}.Payload()
	if payload.Presence != PresenceHidden {
		t.Fatalf("payload.Presence = %q, want %q", payload.Presence, PresenceHidden)
	}
	if payload.RoomID != "" {
		t.Fatalf("payload.RoomID = %q, want empty", payload.RoomID)
	}

	payload = UserSettings{UserID: ident.UserID(5), RoomID: ident.RoomID(7), Presence: PresenceAway}.Payload()
	if payload.Presence != PresenceAway {
		t.Fatalf("payload.Presence = %q, want %q", payload.Presence, PresenceAway)
	}
	if payload.RoomID != "r7" {
		t.Fatalf("payload.RoomID = %q, want r7", payload.RoomID)
	}
}

func TestDefaultPreferences(t *testing.T) {
	prefs := DefaultPreferences(ident.UserID(5))
	if prefs.ColorScheme != "system" {
		t.Fatalf("prefs.ColorScheme = %q, want system", prefs.ColorScheme)
	}
	if prefs.DesktopSize != "normal" || prefs.MobileSize != "normal" {
		t.Fatalf("sizes = %q/%q, want normal/normal", prefs.DesktopSize, prefs.MobileSize)
	}
	if prefs.AdminControls != "visible" {
		t.Fatalf("prefs.AdminControls = %q, want visible", prefs.AdminControls)
	}
	if !prefs.TitleNotifs {
		t.Fatal("title notifications should default on")
	}
	if prefs.MobileAudioNotifs || prefs.RoomsOnTop || prefs.CombinedMessages {
		t.Fatal("boolean preferences should default off")
	}
	if prefs.AudioNotifs != 0 {
		t.Fatalf("prefs.AudioNotifs = %v, want empty", prefs.AudioNotifs)
	}
}

func TestNotificationNames(t *testing.T) {
	set := NotificationMessageReceived | NotificationMentioned
	names := set.Names()
	if strings.Join(names, ",") != "MESSAGE_RECEIVED,MENTIONED" {
		t.Fatalf("names = %v", names)
	}
	if len(Notification(0).Names()) != 0 {
		t.Fatal("empty set should yield no names")
	}
}
