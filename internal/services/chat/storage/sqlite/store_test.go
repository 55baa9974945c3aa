package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	apperrors "github.com/critterchat/critterchat/internal/platform/errors"
	"github.com/critterchat/critterchat/internal/services/chat/domain/action"
	"github.com/critterchat/critterchat/internal/services/chat/domain/entity"
	"github.com/critterchat/critterchat/internal/services/chat/domain/ident"
	"github.com/critterchat/critterchat/internal/services/chat/storage"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chat.sqlite")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("open chat store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close chat store: %v", err)
		}
	})
	return store
}

func seedUser(t *testing.T, store *Store, username string) entity.User {
	t.Helper()
	user, err := store.CreateUser(context.Background(), entity.User{Username: username}, "hash")
	if err != nil {
		t.Fatalf("seed user %s: %v", username, err)
	}
	return user
}

func seedRoom(t *testing.T, store *Store, name string, purpose entity.Purpose) entity.Room {
	t.Helper()
	room, err := store.CreateRoom(context.Background(), entity.Room{Name: name, Purpose: purpose})
	if err != nil {
		t.Fatalf("seed room %s: %v", name, err)
	}
	return room
}

func seedOccupant(t *testing.T, store *Store, room entity.Room, user entity.User) entity.Occupant {
	t.Helper()
	act, err := store.AppendAction(context.Background(), storage.AppendActionParams{
		RoomID:   room.ID,
		Category: action.CategoryJoin,
		Join:     &storage.JoinOccupant{UserID: user.ID, Username: user.Username},
	})
	if err != nil {
		t.Fatalf("seed occupant for %s: %v", user.Username, err)
	}
	if act.Occupant == nil {
		t.Fatalf("join append returned no occupant")
	}
	return *act.Occupant
}

func TestCreateAndGetRoom(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	room, err := store.CreateRoom(ctx, entity.Room{
		Name:    "lobby",
		Topic:   "general",
		Purpose: entity.PurposeRoom,
	})
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	if !room.ID.Assigned() {
		t.Fatalf("room id = %v, want assigned", room.ID)
	}

	got, err := store.GetRoom(ctx, room.ID)
	if err != nil {
		t.Fatalf("get room: %v", err)
	}
	if got.Name != "lobby" || got.Topic != "general" {
		t.Fatalf("room = %+v, want lobby/general", got)
	}
	if got.Purpose != entity.PurposeRoom {
		t.Fatalf("purpose = %q, want %q", got.Purpose, entity.PurposeRoom)
	}
	if got.OldestAction.Assigned() || got.NewestAction.Assigned() {
		t.Fatalf("action pointers = %v/%v, want unassigned", got.OldestAction, got.NewestAction)
	}
	if got.DefaultIconID != ident.DefaultRoomIconID {
		t.Fatalf("default icon = %v, want %v", got.DefaultIconID, ident.DefaultRoomIconID)
	}
}

func TestGetRoom_NotFound(t *testing.T) {
	store := openTestStore(t)

	_, err := store.GetRoom(context.Background(), ident.RoomID(999))
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCreateRoom_RejectsInvalidPurpose(t *testing.T) {
	store := openTestStore(t)

	_, err := store.CreateRoom(context.Background(), entity.Room{Name: "x", Purpose: "broadcast"})
	if apperrors.CodeOf(err) != apperrors.CodeInvalidRoomPurpose {
		t.Fatalf("code = %v, want %v", apperrors.CodeOf(err), apperrors.CodeInvalidRoomPurpose)
	}

	_, err = store.CreateRoom(context.Background(), entity.Room{Name: "  ", Purpose: entity.PurposeRoom})
	if apperrors.CodeOf(err) != apperrors.CodeRoomNameEmpty {
		t.Fatalf("code = %v, want %v", apperrors.CodeOf(err), apperrors.CodeRoomNameEmpty)
	}
}

func TestUpdateRoomInfo(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	room := seedRoom(t, store, "before", entity.PurposeRoom)

	room.Name = "after"
	room.Topic = "new topic"
	room.Moderated = true
	if err := store.UpdateRoomInfo(ctx, room); err != nil {
		t.Fatalf("update room info: %v", err)
	}

	got, err := store.GetRoom(ctx, room.ID)
	if err != nil {
		t.Fatalf("get room: %v", err)
	}
	if got.Name != "after" || got.Topic != "new topic" || !got.Moderated {
		t.Fatalf("room = %+v, want updated fields", got)
	}
}

func TestListPublicRooms_Paging(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	seedRoom(t, store, "one", entity.PurposeRoom)
	seedRoom(t, store, "private", entity.PurposeChat)
	seedRoom(t, store, "two", entity.PurposeRoom)
	seedRoom(t, store, "three", entity.PurposeRoom)

	page, err := store.ListPublicRooms(ctx, 2, ident.NewRoomID)
	if err != nil {
		t.Fatalf("list public rooms: %v", err)
	}
	if len(page.Rooms) != 2 {
		t.Fatalf("len(rooms) = %d, want 2", len(page.Rooms))
	}
	if !page.NextAfter.Assigned() {
		t.Fatal("expected next page cursor")
	}
	for _, room := range page.Rooms {
		if room.Purpose != entity.PurposeRoom {
			t.Fatalf("listed non-public room %+v", room)
		}
	}

	rest, err := store.ListPublicRooms(ctx, 2, page.NextAfter)
	if err != nil {
		t.Fatalf("list public rooms page 2: %v", err)
	}
	if len(rest.Rooms) != 1 {
		t.Fatalf("len(rooms) = %d, want 1", len(rest.Rooms))
	}
	if rest.NextAfter.Assigned() {
		t.Fatalf("next cursor = %v, want unassigned", rest.NextAfter)
	}
}

func TestListRoomsForUser(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	user := seedUser(t, store, "fox")
	roomA := seedRoom(t, store, "a", entity.PurposeRoom)
	roomB := seedRoom(t, store, "b", entity.PurposeChat)
	seedRoom(t, store, "c", entity.PurposeRoom)
	occA := seedOccupant(t, store, roomA, user)
	seedOccupant(t, store, roomB, user)

	rooms, err := store.ListRoomsForUser(ctx, user.ID)
	if err != nil {
		t.Fatalf("list rooms for user: %v", err)
	}
	if len(rooms) != 2 {
		t.Fatalf("len(rooms) = %d, want 2", len(rooms))
	}

	// Leaving a room drops it from the listing.
	if _, err := store.AppendAction(ctx, storage.AppendActionParams{
		RoomID:     roomA.ID,
		OccupantID: occA.ID,
		Category:   action.CategoryLeave,
	}); err != nil {
		t.Fatalf("append leave: %v", err)
	}
	rooms, err = store.ListRoomsForUser(ctx, user.ID)
	if err != nil {
		t.Fatalf("list rooms for user: %v", err)
	}
	if len(rooms) != 1 || rooms[0].ID != roomB.ID {
		t.Fatalf("rooms = %+v, want only room b", rooms)
	}
}

func TestCreateUser_DuplicateUsername(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	seedUser(t, store, "fox")

	_, err := store.CreateUser(ctx, entity.User{Username: "fox"}, "hash")
	if !errors.Is(err, storage.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestGetCredentials(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	user := seedUser(t, store, "fox")

	got, hash, err := store.GetCredentials(ctx, "fox")
	if err != nil {
		t.Fatalf("get credentials: %v", err)
	}
	if got.ID != user.ID {
		t.Fatalf("user id = %v, want %v", got.ID, user.ID)
	}
	if hash != "hash" {
		t.Fatalf("hash = %q, want hash", hash)
	}

	_, _, err = store.GetCredentials(ctx, "nobody")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateUserProfile_RefreshesOccupantSnapshots(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	user := seedUser(t, store, "fox")
	room := seedRoom(t, store, "lobby", entity.PurposeRoom)
	occupant := seedOccupant(t, store, room, user)

	user.Nickname = "Foxglove"
	if err := store.UpdateUserProfile(ctx, user); err != nil {
		t.Fatalf("update user profile: %v", err)
	}

	got, err := store.GetOccupant(ctx, occupant.ID)
	if err != nil {
		t.Fatalf("get occupant: %v", err)
	}
	if got.Nickname != "Foxglove" {
		t.Fatalf("occupant nickname = %q, want Foxglove", got.Nickname)
	}
}

func TestSetUserPermissions(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	user := seedUser(t, store, "fox")

	perms := entity.PermissionActivated | entity.PermissionAdministrator
	if err := store.SetUserPermissions(ctx, user.ID, perms); err != nil {
		t.Fatalf("set user permissions: %v", err)
	}

	got, err := store.GetUser(ctx, user.ID)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if got.Permissions != perms {
		t.Fatalf("permissions = %v, want %v", got.Permissions, perms)
	}
}
