package unread

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/critterchat/critterchat/internal/services/chat/domain/action"
	"github.com/critterchat/critterchat/internal/services/chat/domain/entity"
	"github.com/critterchat/critterchat/internal/services/chat/domain/ident"
	"github.com/critterchat/critterchat/internal/services/chat/storage"
	"github.com/critterchat/critterchat/internal/services/chat/storage/sqlite"
)

type fixture struct {
	store      *sqlite.Store
	aggregator *Aggregator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "chat.sqlite"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close store: %v", err)
		}
	})
	return &fixture{store: store, aggregator: New(store)}
}

func (f *fixture) seedMember(t *testing.T, roomName string, purpose entity.Purpose, username string) (entity.Room, entity.Occupant) {
	t.Helper()
	ctx := context.Background()
	user, err := f.store.CreateUser(ctx, entity.User{Username: username}, "hash")
	if err != nil {
		t.Fatalf("create user %s: %v", username, err)
	}
	room, err := f.store.CreateRoom(ctx, entity.Room{Name: roomName, Purpose: purpose})
	if err != nil {
		t.Fatalf("create room %s: %v", roomName, err)
	}
	return room, f.join(t, room, user)
}

func (f *fixture) join(t *testing.T, room entity.Room, user entity.User) entity.Occupant {
	t.Helper()
	act, err := f.store.AppendAction(context.Background(), storage.AppendActionParams{
		RoomID:   room.ID,
		Category: action.CategoryJoin,
		Join:     &storage.JoinOccupant{UserID: user.ID, Username: user.Username},
	})
	if err != nil {
		t.Fatalf("join %s: %v", user.Username, err)
	}
	return *act.Occupant
}

func (f *fixture) message(t *testing.T, room entity.Room, occupant entity.Occupant, body string) entity.Action {
	t.Helper()
	act, err := f.store.AppendAction(context.Background(), storage.AppendActionParams{
		RoomID:     room.ID,
		OccupantID: occupant.ID,
		Category:   action.CategoryMessage,
		Details:    json.RawMessage(`{"body":"` + body + `"}`),
	})
	if err != nil {
		t.Fatalf("message %q: %v", body, err)
	}
	return act
}

func TestCount_FromLogStart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room, occupant := f.seedMember(t, "lobby", entity.PurposeRoom, "fox")

	f.message(t, room, occupant, "one")
	f.message(t, room, occupant, "two")

	// No watermark yet: the whole log counts, join included.
	count, err := f.aggregator.Count(ctx, occupant.ID, room.ID)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 3 {
		t.Fatalf("count = %d, want 3", count)
	}
}

func TestCount_AfterAcknowledge(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room, occupant := f.seedMember(t, "lobby", entity.PurposeRoom, "fox")

	first := f.message(t, room, occupant, "one")
	f.message(t, room, occupant, "two")

	if _, err := f.aggregator.Acknowledge(ctx, occupant.ID, room.ID, first.ID); err != nil {
		t.Fatalf("acknowledge: %v", err)
	}

	count, err := f.aggregator.Count(ctx, occupant.ID, room.ID)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("count = %d, want 1", count)
	}
}

func TestCount_DirectMessageIgnoresMembershipChurn(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dm, fox := f.seedMember(t, "fox-owl", entity.PurposeDirectMessage, "fox")
	owlUser, err := f.store.CreateUser(ctx, entity.User{Username: "owl"}, "hash")
	if err != nil {
		t.Fatalf("create owl: %v", err)
	}
	owl := f.join(t, dm, owlUser)
	f.message(t, dm, owl, "hi fox")

	latest, err := f.store.LatestActionID(ctx, dm.ID)
	if err != nil {
		t.Fatalf("latest action id: %v", err)
	}
	if _, err := f.aggregator.Acknowledge(ctx, fox.ID, dm.ID, latest); err != nil {
		t.Fatalf("acknowledge: %v", err)
	}

	// Owl leaves and rejoins; churn must not show up as unread in a DM.
	if _, err := f.store.AppendAction(ctx, storage.AppendActionParams{
		RoomID:     dm.ID,
		OccupantID: owl.ID,
		Category:   action.CategoryLeave,
	}); err != nil {
		t.Fatalf("owl leave: %v", err)
	}
	f.join(t, dm, owlUser)

	count, err := f.aggregator.Count(ctx, fox.ID, dm.ID)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("dm count = %d, want 0", count)
	}

	// The same churn still counts in an open room.
	room, roomFox := f.seedMember(t, "open", entity.PurposeRoom, "fern")
	latest, err = f.store.LatestActionID(ctx, room.ID)
	if err != nil {
		t.Fatalf("latest action id: %v", err)
	}
	if _, err := f.aggregator.Acknowledge(ctx, roomFox.ID, room.ID, latest); err != nil {
		t.Fatalf("acknowledge: %v", err)
	}
	if _, err := f.store.AppendAction(ctx, storage.AppendActionParams{
		RoomID:     room.ID,
		OccupantID: roomFox.ID,
		Category:   action.CategoryLeave,
	}); err != nil {
		t.Fatalf("leave: %v", err)
	}
	count, err = f.aggregator.Count(ctx, roomFox.ID, room.ID)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("room count = %d, want 1", count)
	}
}

func TestHasUpdate_ProfileChangesSignalWithoutUnread(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room, occupant := f.seedMember(t, "lobby", entity.PurposeRoom, "fox")

	latest, err := f.store.LatestActionID(ctx, room.ID)
	if err != nil {
		t.Fatalf("latest action id: %v", err)
	}
	if _, err := f.aggregator.Acknowledge(ctx, occupant.ID, room.ID, latest); err != nil {
		t.Fatalf("acknowledge: %v", err)
	}

	if _, err := f.store.AppendAction(ctx, storage.AppendActionParams{
		RoomID:     room.ID,
		OccupantID: occupant.ID,
		Category:   action.CategoryChangeProfile,
		Details:    json.RawMessage(`{"fields":{"nickname":"Foxglove"}}`),
	}); err != nil {
		t.Fatalf("append change_profile: %v", err)
	}

	count, err := f.aggregator.Count(ctx, occupant.ID, room.ID)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("count = %d, want 0", count)
	}

	update, err := f.aggregator.HasUpdate(ctx, occupant.ID, room.ID)
	if err != nil {
		t.Fatalf("has update: %v", err)
	}
	if !update {
		t.Fatal("profile change should signal an update")
	}
}

func TestAcknowledge_BackwardIsNoOp(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room, occupant := f.seedMember(t, "lobby", entity.PurposeRoom, "fox")

	first := f.message(t, room, occupant, "one")
	second := f.message(t, room, occupant, "two")

	if _, err := f.aggregator.Acknowledge(ctx, occupant.ID, room.ID, second.ID); err != nil {
		t.Fatalf("acknowledge: %v", err)
	}
	changed, err := f.aggregator.Acknowledge(ctx, occupant.ID, room.ID, first.ID)
	if err != nil {
		t.Fatalf("stale acknowledge: %v", err)
	}
	if changed {
		t.Fatal("stale acknowledge should not move the watermark")
	}

	count, err := f.aggregator.Count(ctx, occupant.ID, room.ID)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("count = %d, want 0", count)
	}
}

func TestBadges(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	roomA, fox := f.seedMember(t, "a", entity.PurposeRoom, "fox")
	user, err := f.store.GetUser(ctx, fox.UserID)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	roomB, err := f.store.CreateRoom(ctx, entity.Room{Name: "b", Purpose: entity.PurposeRoom})
	if err != nil {
		t.Fatalf("create room b: %v", err)
	}
	foxInB := f.join(t, roomB, user)

	f.message(t, roomA, fox, "unseen")
	latest, err := f.store.LatestActionID(ctx, roomB.ID)
	if err != nil {
		t.Fatalf("latest action id: %v", err)
	}
	if _, err := f.aggregator.Acknowledge(ctx, foxInB.ID, roomB.ID, latest); err != nil {
		t.Fatalf("acknowledge: %v", err)
	}

	badges, err := f.aggregator.Badges(ctx, fox.UserID)
	if err != nil {
		t.Fatalf("badges: %v", err)
	}
	if len(badges) != 2 {
		t.Fatalf("len(badges) = %d, want 2", len(badges))
	}
	byRoom := make(map[ident.RoomID]RoomBadge, len(badges))
	for _, badge := range badges {
		byRoom[badge.Room.ID] = badge
	}
	if byRoom[roomA.ID].Unread == 0 || !byRoom[roomA.ID].HasUpdate {
		t.Fatalf("room a badge = %+v, want unread + update", byRoom[roomA.ID])
	}
	if byRoom[roomB.ID].Unread != 0 || byRoom[roomB.ID].HasUpdate {
		t.Fatalf("room b badge = %+v, want clean", byRoom[roomB.ID])
	}
}
