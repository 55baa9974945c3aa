package app

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	apperrors "github.com/critterchat/critterchat/internal/platform/errors"
	"github.com/critterchat/critterchat/internal/services/chat/domain/action"
	"github.com/critterchat/critterchat/internal/services/chat/domain/entity"
	"github.com/critterchat/critterchat/internal/services/chat/domain/ident"
	"github.com/critterchat/critterchat/internal/services/chat/roomlog"
	"github.com/critterchat/critterchat/internal/services/chat/storage"
	"golang.org/x/net/websocket"
	"google.golang.org/grpc/codes"
)

// Frame types the realtime transport speaks. Client-to-server frames carry a
// request id that the matching reply echoes; chat.action pushes carry none.
const (
	frameJoin    = "chat.join"
	frameSend    = "chat.send"
	frameHistory = "chat.history.before"
	frameRoster  = "chat.roster"
	frameAck     = "chat.ack"

	frameJoined      = "chat.joined"
	frameSent        = "chat.sent"
	frameHistoryPage = "chat.history"
	frameRosterPage  = "chat.roster.list"
	frameAcked       = "chat.acked"
	frameAction      = "chat.action"
	frameError       = "chat.error"
)

type wsFrame struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

type wsReply struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

type wsErrorPayload struct {
	Code      string `json:"code"`
	GRPCCode  string `json:"grpc_code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// wsPeer serializes writes to one connection. Broadcasts and replies share
// the encoder, so every write goes through the mutex.
type wsPeer struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func (p *wsPeer) send(frame wsReply) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.enc.Encode(frame)
}

// hub fans frames out to the peers subscribed to each room.
type hub struct {
	mu    sync.Mutex
	rooms map[ident.RoomID]map[*wsPeer]struct{}
}

func newHub() *hub {
	return &hub{rooms: make(map[ident.RoomID]map[*wsPeer]struct{})}
}

func (h *hub) subscribe(roomID ident.RoomID, peer *wsPeer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	peers, ok := h.rooms[roomID]
	if !ok {
		peers = make(map[*wsPeer]struct{})
		h.rooms[roomID] = peers
	}
	peers[peer] = struct{}{}
}

func (h *hub) drop(peer *wsPeer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for roomID, peers := range h.rooms {
		delete(peers, peer)
		if len(peers) == 0 {
			delete(h.rooms, roomID)
		}
	}
}

func (h *hub) broadcast(roomID ident.RoomID, frame wsReply) {
	h.mu.Lock()
	peers := make([]*wsPeer, 0, len(h.rooms[roomID]))
	for peer := range h.rooms[roomID] {
		peers = append(peers, peer)
	}
	h.mu.Unlock()

	for _, peer := range peers {
		if err := peer.send(frame); err != nil {
			log.Printf("chat: broadcast to peer failed: %v", err)
		}
	}
}

// wsSession is the per-connection state: the authenticated user and the
// occupants resolved so far, keyed by room.
type wsSession struct {
	user      entity.User
	occupants map[ident.RoomID]entity.Occupant
}

func (d Deps) serveWS(conn *websocket.Conn, h *hub) {
	defer conn.Close()
	conn.MaxPayloadBytes = maxFramePayloadBytes

	user, ok := userFromRequest(conn.Request())
	if !ok {
		return
	}
	session := &wsSession{
		user:      user,
		occupants: make(map[ident.RoomID]entity.Occupant),
	}
	peer := &wsPeer{enc: json.NewEncoder(conn)}
	defer h.drop(peer)

	decoder := json.NewDecoder(conn)
	decodeErrors := 0
	windowStart := time.Now()
	windowFrames := 0

	for {
		var frame wsFrame
		if err := decoder.Decode(&frame); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return
			}
			decodeErrors++
			if decodeErrors > maxDecodeErrorsPerConn {
				log.Printf("chat: dropping connection for user %s after repeated malformed frames", user.Username)
				return
			}
			// Decoder state is unreliable after a syntax error.
			decoder = json.NewDecoder(conn)
			d.sendError(peer, "", apperrors.Wrap(apperrors.CodeUnknown, "malformed frame", err))
			continue
		}

		now := time.Now()
		if now.Sub(windowStart) >= time.Second {
			windowStart = now
			windowFrames = 0
		}
		windowFrames++
		if windowFrames > maxFramesPerSecond {
			log.Printf("chat: dropping connection for user %s, frame rate exceeded", user.Username)
			return
		}

		d.dispatchFrame(conn, h, peer, session, frame)
	}
}

func (d Deps) dispatchFrame(conn *websocket.Conn, h *hub, peer *wsPeer, session *wsSession, frame wsFrame) {
	var err error
	switch frame.Type {
	case frameJoin:
		err = d.handleJoin(conn, h, peer, session, frame)
	case frameSend:
		err = d.handleSend(conn, h, peer, session, frame)
	case frameHistory:
		err = d.handleHistory(conn, peer, frame)
	case frameRoster:
		err = d.handleRoster(conn, peer, frame)
	case frameAck:
		err = d.handleAck(conn, peer, session, frame)
	default:
		err = apperrors.WithMetadata(apperrors.CodeUnknown, "unsupported frame type", map[string]string{
			"type": frame.Type,
		})
	}
	if err != nil {
		d.sendError(peer, frame.RequestID, err)
	}
}

func (d Deps) sendError(peer *wsPeer, requestID string, err error) {
	code := apperrors.CodeOf(err)
	grpcCode := code.GRPCCode()
	message := "internal error"
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		message = appErr.Message
	}
	sendErr := peer.send(wsReply{
		Type:      frameError,
		RequestID: requestID,
		Payload: wsErrorPayload{
			Code:      string(code),
			GRPCCode:  grpcCode.String(),
			Message:   message,
			Retryable: grpcCode == codes.Aborted || grpcCode == codes.Unavailable,
		},
	})
	if sendErr != nil {
		log.Printf("chat: write error frame: %v", sendErr)
	}
}

type joinRequest struct {
	RoomID string `json:"room_id"`
}

type joinedPayload struct {
	Room     entity.RoomPayload       `json:"room"`
	Occupant entity.OccupantPayload   `json:"occupant"`
	Roster   []entity.OccupantPayload `json:"roster"`
}

func (d Deps) handleJoin(conn *websocket.Conn, h *hub, peer *wsPeer, session *wsSession, frame wsFrame) error {
	ctx := conn.Request().Context()
	var req joinRequest
	if err := json.Unmarshal(frame.Payload, &req); err != nil {
		return apperrors.Wrap(apperrors.CodeUnknown, "malformed join payload", err)
	}
	roomID, err := ident.ParseRoomID(req.RoomID)
	if err != nil {
		return err
	}

	nickname := session.user.Nickname
	if nickname == "" {
		nickname = session.user.Username
	}
	act, err := d.Log.Append(ctx, roomlog.AppendRequest{
		RoomID:   roomID,
		Category: action.CategoryJoin,
		Join: &storage.JoinOccupant{
			UserID:   session.user.ID,
			Username: session.user.Username,
			Nickname: nickname,
			IconID:   session.user.IconID,
		},
	})
	if err != nil {
		return err
	}
	session.occupants[roomID] = *act.Occupant
	h.subscribe(roomID, peer)

	room, err := d.Store.GetRoom(ctx, roomID)
	if err != nil {
		return err
	}
	occupants, err := d.Log.Roster(ctx, roomID, false)
	if err != nil {
		return err
	}
	roster := make([]entity.OccupantPayload, 0, len(occupants))
	for _, occupant := range occupants {
		roster = append(roster, occupant.Payload())
	}

	h.broadcast(roomID, wsReply{Type: frameAction, Payload: act.Payload()})
	return peer.send(wsReply{
		Type:      frameJoined,
		RequestID: frame.RequestID,
		Payload: joinedPayload{
			Room:     d.roomPayload(ctx, room),
			Occupant: act.Occupant.Payload(),
			Roster:   roster,
		},
	})
}

type sendRequest struct {
	RoomID string `json:"room_id"`
	Body   string `json:"body"`
}

func (d Deps) handleSend(conn *websocket.Conn, h *hub, peer *wsPeer, session *wsSession, frame wsFrame) error {
	ctx := conn.Request().Context()
	var req sendRequest
	if err := json.Unmarshal(frame.Payload, &req); err != nil {
		return apperrors.Wrap(apperrors.CodeUnknown, "malformed send payload", err)
	}
	roomID, err := ident.ParseRoomID(req.RoomID)
	if err != nil {
		return err
	}
	occupant, err := d.sessionOccupant(conn, session, roomID)
	if err != nil {
		return err
	}
	if utf8.RuneCountInString(req.Body) > maxMessageBodyRunes {
		return apperrors.New(apperrors.CodeActionDetailsMalformed, "message body is too long")
	}

	details, err := json.Marshal(struct {
		Body string `json:"body"`
	}{Body: req.Body})
	if err != nil {
		return apperrors.Wrap(apperrors.CodeUnknown, "encode message details", err)
	}
	act, err := d.Log.Append(ctx, roomlog.AppendRequest{
		RoomID:     roomID,
		OccupantID: occupant.ID,
		Category:   action.CategoryMessage,
		Details:    details,
	})
	if err != nil {
		return err
	}

	h.broadcast(roomID, wsReply{Type: frameAction, Payload: act.Payload()})
	return peer.send(wsReply{
		Type:      frameSent,
		RequestID: frame.RequestID,
		Payload:   act.Payload(),
	})
}

type historyRequest struct {
	RoomID string `json:"room_id"`
	Before string `json:"before,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

type historyPayload struct {
	RoomID  string                 `json:"room_id"`
	Actions []entity.ActionPayload `json:"actions"`
}

func (d Deps) handleHistory(conn *websocket.Conn, peer *wsPeer, frame wsFrame) error {
	ctx := conn.Request().Context()
	var req historyRequest
	if err := json.Unmarshal(frame.Payload, &req); err != nil {
		return apperrors.Wrap(apperrors.CodeUnknown, "malformed history payload", err)
	}
	roomID, err := ident.ParseRoomID(req.RoomID)
	if err != nil {
		return err
	}
	listReq := storage.ListActionsRequest{Limit: req.Limit}
	if listReq.Limit <= 0 || listReq.Limit > maxHistoryLimit {
		listReq.Limit = maxHistoryLimit
	}
	if strings.TrimSpace(req.Before) != "" {
		before, err := ident.ParseActionID(req.Before)
		if err != nil {
			return err
		}
		listReq.Before = before
	}

	actions, err := d.Log.Range(ctx, roomID, listReq)
	if err != nil {
		return err
	}
	payloads := make([]entity.ActionPayload, 0, len(actions))
	for _, act := range actions {
		payloads = append(payloads, act.Payload())
	}
	return peer.send(wsReply{
		Type:      frameHistoryPage,
		RequestID: frame.RequestID,
		Payload:   historyPayload{RoomID: roomID.Token(), Actions: payloads},
	})
}

type rosterRequest struct {
	RoomID          string `json:"room_id"`
	IncludeInactive bool   `json:"include_inactive,omitempty"`
}

type rosterPayload struct {
	RoomID    string                     `json:"room_id"`
	Occupants []entity.UserInRoomPayload `json:"occupants"`
}

func (d Deps) handleRoster(conn *websocket.Conn, peer *wsPeer, frame wsFrame) error {
	ctx := conn.Request().Context()
	var req rosterRequest
	if err := json.Unmarshal(frame.Payload, &req); err != nil {
		return apperrors.Wrap(apperrors.CodeUnknown, "malformed roster payload", err)
	}
	roomID, err := ident.ParseRoomID(req.RoomID)
	if err != nil {
		return err
	}
	occupants, err := d.Log.Roster(ctx, roomID, req.IncludeInactive)
	if err != nil {
		return err
	}
	payloads := make([]entity.UserInRoomPayload, 0, len(occupants))
	for _, occupant := range occupants {
		member, err := d.roomUser(ctx, occupant)
		if err != nil {
			return err
		}
		payloads = append(payloads, member.Payload(d.AccountBase, false))
	}
	return peer.send(wsReply{
		Type:      frameRosterPage,
		RequestID: frame.RequestID,
		Payload:   rosterPayload{RoomID: roomID.Token(), Occupants: payloads},
	})
}

// roomUser resolves an occupant to the room-scoped view of its user. The
// occupant snapshot wins for the nickname and icon, so per-room overrides
// survive later profile edits.
func (d Deps) roomUser(ctx context.Context, occupant entity.Occupant) (entity.UserInRoom, error) {
	user, err := d.Store.GetUser(ctx, occupant.UserID)
	if err != nil {
		return entity.UserInRoom{}, err
	}
	if occupant.Nickname != "" {
		user.Nickname = occupant.Nickname
	}
	if occupant.IconID.Assigned() {
		user.IconID = occupant.IconID
	}
	user.Icon = d.attachmentURI(ctx, user.IconID)
	return entity.UserInRoom{
		User:       user,
		OccupantID: occupant.ID,
		Moderator:  occupant.Moderator,
		Muted:      occupant.Muted,
	}, nil
}

type ackRequest struct {
	RoomID   string `json:"room_id"`
	ActionID string `json:"action_id"`
}

type ackedPayload struct {
	RoomID  string `json:"room_id"`
	Changed bool   `json:"changed"`
	Unread  int    `json:"unread"`
}

func (d Deps) handleAck(conn *websocket.Conn, peer *wsPeer, session *wsSession, frame wsFrame) error {
	ctx := conn.Request().Context()
	var req ackRequest
	if err := json.Unmarshal(frame.Payload, &req); err != nil {
		return apperrors.Wrap(apperrors.CodeUnknown, "malformed ack payload", err)
	}
	roomID, err := ident.ParseRoomID(req.RoomID)
	if err != nil {
		return err
	}
	actionID, err := ident.ParseActionID(req.ActionID)
	if err != nil {
		return err
	}
	occupant, err := d.sessionOccupant(conn, session, roomID)
	if err != nil {
		return err
	}

	changed, err := d.Unread.Acknowledge(ctx, occupant.ID, roomID, actionID)
	if err != nil {
		return err
	}
	unreadCount, err := d.Unread.Count(ctx, occupant.ID, roomID)
	if err != nil {
		return err
	}
	return peer.send(wsReply{
		Type:      frameAcked,
		RequestID: frame.RequestID,
		Payload:   ackedPayload{RoomID: roomID.Token(), Changed: changed, Unread: unreadCount},
	})
}

// sessionOccupant resolves the caller's occupant in the room, falling back to
// storage for memberships created on earlier connections.
func (d Deps) sessionOccupant(conn *websocket.Conn, session *wsSession, roomID ident.RoomID) (entity.Occupant, error) {
	if occupant, ok := session.occupants[roomID]; ok {
		return occupant, nil
	}
	occupant, err := d.Store.GetOccupantByUser(conn.Request().Context(), roomID, session.user.ID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return entity.Occupant{}, apperrors.New(apperrors.CodeNotRoomMember, "join the room first")
		}
		return entity.Occupant{}, err
	}
	if occupant.Inactive {
		return entity.Occupant{}, apperrors.New(apperrors.CodeNotRoomMember, "join the room first")
	}
	session.occupants[roomID] = occupant
	return occupant, nil
}
