package app

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	apperrors "github.com/critterchat/critterchat/internal/platform/errors"
	"github.com/critterchat/critterchat/internal/services/chat/domain/action"
	"github.com/critterchat/critterchat/internal/services/chat/domain/entity"
	"github.com/critterchat/critterchat/internal/services/chat/domain/ident"
	"github.com/critterchat/critterchat/internal/services/chat/roomlog"
	"github.com/critterchat/critterchat/internal/services/chat/storage"
	"google.golang.org/grpc/codes"
)

// Built-in asset URIs for the attachment id sentinels.
const (
	defaultAvatarURI   = "/static/default-avatar.png"
	defaultRoomIconURI = "/static/default-room.png"
	faviconURI         = "/static/favicon.png"
)

const defaultDirectoryPageSize = 50

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("chat: write json response: %v", err)
	}
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, err error) {
	code := apperrors.CodeOf(err)
	message := "internal error"
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		message = appErr.Message
	} else {
		log.Printf("chat: request failed: %v", err)
	}
	writeJSON(w, httpStatusOf(code), struct {
		Error apiError `json:"error"`
	}{Error: apiError{Code: string(code), Message: message}})
}

func httpStatusOf(code apperrors.Code) int {
	switch code.GRPCCode() {
	case codes.InvalidArgument:
		return http.StatusBadRequest
	case codes.NotFound:
		return http.StatusNotFound
	case codes.AlreadyExists, codes.Aborted, codes.FailedPrecondition:
		return http.StatusConflict
	case codes.Unauthenticated:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type sessionResponse struct {
	User  entity.UserPayload `json:"user"`
	Token string             `json:"token"`
}

func (d Deps) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.Wrap(apperrors.CodeUnknown, "malformed request body", err))
		return
	}

	user, err := d.Accounts.Register(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	_, token, err := d.Accounts.Login(r.Context(), user.Username, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	d.setSessionCookie(w, token)
	writeJSON(w, http.StatusCreated, sessionResponse{
		User:  user.Payload(d.AccountBase, user.Permissions.Has(entity.PermissionAdministrator)),
		Token: token,
	})
}

func (d Deps) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.Wrap(apperrors.CodeUnknown, "malformed request body", err))
		return
	}

	user, token, err := d.Accounts.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	d.setSessionCookie(w, token)
	writeJSON(w, http.StatusOK, sessionResponse{
		User:  user.Payload(d.AccountBase, user.Permissions.Has(entity.PermissionAdministrator)),
		Token: token,
	})
}

func (d Deps) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     tokenCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

type roomBadgePayload struct {
	Room      entity.RoomPayload `json:"room"`
	Unread    int                `json:"unread"`
	HasUpdate bool               `json:"has_update"`
}

func (d Deps) handleRooms(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		d.handleListRooms(w, r)
	case http.MethodPost:
		d.handleCreateRoom(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

type createRoomRequest struct {
	Name    string `json:"name"`
	Topic   string `json:"topic,omitempty"`
	Purpose string `json:"type,omitempty"`
}

func (d Deps) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromRequest(r)
	if !ok {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}
	var req createRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.Wrap(apperrors.CodeUnknown, "malformed request body", err))
		return
	}
	purpose := entity.Purpose(req.Purpose)
	if req.Purpose == "" {
		purpose = entity.PurposeRoom
	}

	room, err := d.Store.CreateRoom(r.Context(), entity.Room{
		Name:    strings.TrimSpace(req.Name),
		Topic:   strings.TrimSpace(req.Topic),
		Purpose: purpose,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	// The creator joins as the first occupant; the join entry seeds the log.
	nickname := user.Nickname
	if nickname == "" {
		nickname = user.Username
	}
	if _, err := d.Log.Append(r.Context(), roomlog.AppendRequest{
		RoomID:   room.ID,
		Category: action.CategoryJoin,
		Join: &storage.JoinOccupant{
			UserID:   user.ID,
			Username: user.Username,
			Nickname: nickname,
			IconID:   user.IconID,
		},
	}); err != nil {
		writeError(w, err)
		return
	}
	room, err = d.Store.GetRoom(r.Context(), room.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, d.roomPayload(r.Context(), room))
}

type publicRoomsResponse struct {
	Rooms []entity.RoomPayload `json:"rooms"`
	After string               `json:"after,omitempty"`
}

func (d Deps) handlePublicRooms(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	after := ident.NewRoomID
	if cursor := strings.TrimSpace(r.URL.Query().Get("after")); cursor != "" {
		parsed, err := ident.ParseRoomID(cursor)
		if err != nil {
			writeError(w, err)
			return
		}
		after = parsed
	}
	pageSize := defaultDirectoryPageSize
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, apperrors.New(apperrors.CodeUnknown, "limit must be a positive integer"))
			return
		}
		pageSize = parsed
	}

	page, err := d.Store.ListPublicRooms(r.Context(), pageSize, after)
	if err != nil {
		writeError(w, err)
		return
	}
	response := publicRoomsResponse{Rooms: make([]entity.RoomPayload, 0, len(page.Rooms))}
	for _, room := range page.Rooms {
		response.Rooms = append(response.Rooms, d.roomPayload(r.Context(), room))
	}
	if page.NextAfter.Assigned() {
		response.After = page.NextAfter.Token()
	}
	writeJSON(w, http.StatusOK, response)
}

func (d Deps) handleListRooms(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromRequest(r)
	if !ok {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}

	badges, err := d.Unread.Badges(r.Context(), user.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	payloads := make([]roomBadgePayload, 0, len(badges))
	for _, badge := range badges {
		payloads = append(payloads, roomBadgePayload{
			Room:      d.roomPayload(r.Context(), badge.Room),
			Unread:    badge.Unread,
			HasUpdate: badge.HasUpdate,
		})
	}
	writeJSON(w, http.StatusOK, struct {
		Rooms []roomBadgePayload `json:"rooms"`
	}{Rooms: payloads})
}

func (d Deps) handleSettings(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromRequest(r)
	if !ok {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}

	switch r.Method {
	case http.MethodGet:
		settings, err := d.Store.GetSettings(r.Context(), user.ID)
		if err != nil {
			if !errors.Is(err, storage.ErrNotFound) {
				writeError(w, err)
				return
			}
			settings = entity.UserSettings{UserID: user.ID}
		}
		writeJSON(w, http.StatusOK, settings.Payload())

	case http.MethodPut:
		var payload entity.UserSettingsPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			writeError(w, apperrors.Wrap(apperrors.CodeUnknown, "malformed request body", err))
			return
		}
		settings := entity.UserSettings{UserID: user.ID, RoomID: ident.NewRoomID, Presence: payload.Presence}
		if strings.TrimSpace(payload.RoomID) != "" {
			roomID, err := ident.ParseRoomID(payload.RoomID)
			if err != nil {
				writeError(w, err)
				return
			}
			settings.RoomID = roomID
		}
		if err := d.Store.PutSettings(r.Context(), settings); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, settings.Payload())

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (d Deps) handlePreferences(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromRequest(r)
	if !ok {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}

	switch r.Method {
	case http.MethodGet:
		prefs, err := d.Store.GetPreferences(r.Context(), user.ID)
		if err != nil {
			if !errors.Is(err, storage.ErrNotFound) {
				writeError(w, err)
				return
			}
			prefs = entity.DefaultPreferences(user.ID)
		}
		writeJSON(w, http.StatusOK, prefs.Payload())

	case http.MethodPut:
		var payload entity.UserPreferencesPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			writeError(w, apperrors.Wrap(apperrors.CodeUnknown, "malformed request body", err))
			return
		}
		prefs := entity.UserPreferences{
			UserID:            user.ID,
			RoomsOnTop:        payload.RoomsOnTop,
			CombinedMessages:  payload.CombinedMessages,
			ColorScheme:       payload.ColorScheme,
			DesktopSize:       payload.DesktopSize,
			MobileSize:        payload.MobileSize,
			AdminControls:     payload.AdminControls,
			TitleNotifs:       payload.TitleNotifs,
			MobileAudioNotifs: payload.MobileAudioNotifs,
			AudioNotifs:       entity.NotificationsFromNames(payload.AudioNotifs),
		}
		if err := d.Store.PutPreferences(r.Context(), prefs); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, prefs.Payload())

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// roomPayload resolves the room's icon URIs before serialization.
func (d Deps) roomPayload(ctx context.Context, room entity.Room) entity.RoomPayload {
	return room.Payload(
		d.attachmentURI(ctx, room.IconID),
		d.attachmentURI(ctx, room.DefaultIconID),
	)
}

func (d Deps) attachmentURI(ctx context.Context, id ident.AttachmentID) string {
	switch id {
	case ident.DefaultAvatarID:
		return defaultAvatarURI
	case ident.DefaultRoomIconID:
		return defaultRoomIconURI
	case ident.FaviconID:
		return faviconURI
	}
	if !id.Assigned() {
		return ""
	}
	attachment, err := d.Store.GetAttachment(ctx, id)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			log.Printf("chat: resolve attachment %s: %v", id.Token(), err)
		}
		return ""
	}
	return attachment.URI
}
