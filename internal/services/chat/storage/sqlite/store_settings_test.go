package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/critterchat/critterchat/internal/services/chat/domain/entity"
	"github.com/critterchat/critterchat/internal/services/chat/storage"
)

func TestSettingsRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	user := seedUser(t, store, "fox")
	room := seedRoom(t, store, "lobby", entity.PurposeRoom)

	_, err := store.GetSettings(ctx, user.ID)
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := store.PutSettings(ctx, entity.UserSettings{
		UserID:   user.ID,
		RoomID:   room.ID,
		Presence: entity.PresenceAway,
	}); err != nil {
		t.Fatalf("put settings: %v", err)
	}

	got, err := store.GetSettings(ctx, user.ID)
	if err != nil {
		t.Fatalf("get settings: %v", err)
	}
	if got.RoomID != room.ID || got.Presence != entity.PresenceAway {
		t.Fatalf("settings = %+v, want room %v away", got, room.ID)
	}

	// Upsert replaces the prior value.
	if err := store.PutSettings(ctx, entity.UserSettings{
		UserID:   user.ID,
		Presence: entity.PresenceVisible,
	}); err != nil {
		t.Fatalf("upsert settings: %v", err)
	}
	got, err = store.GetSettings(ctx, user.ID)
	if err != nil {
		t.Fatalf("get settings: %v", err)
	}
	if got.Presence != entity.PresenceVisible {
		t.Fatalf("presence = %q, want visible", got.Presence)
	}
}

func TestPreferencesRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	user := seedUser(t, store, "fox")

	_, err := store.GetPreferences(ctx, user.ID)
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	prefs := entity.DefaultPreferences(user.ID)
	prefs.RoomsOnTop = true
	prefs.ColorScheme = "dark"
	prefs.AudioNotifs = entity.NotificationMessageReceived | entity.NotificationMentioned
	if err := store.PutPreferences(ctx, prefs); err != nil {
		t.Fatalf("put preferences: %v", err)
	}

	got, err := store.GetPreferences(ctx, user.ID)
	if err != nil {
		t.Fatalf("get preferences: %v", err)
	}
	if !got.RoomsOnTop || got.ColorScheme != "dark" {
		t.Fatalf("preferences = %+v, want rooms on top + dark", got)
	}
	if !got.AudioNotifs.Has(entity.NotificationMentioned) {
		t.Fatalf("audio notifs = %v, want mentioned bit", got.AudioNotifs)
	}
	if !got.TitleNotifs {
		t.Fatal("title notifs should survive round trip")
	}
}
