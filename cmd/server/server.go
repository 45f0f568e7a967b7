package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"zing-server/internal/auth"
	"zing-server/internal/config"
	"zing-server/internal/invite"
	"zing-server/internal/logger"
	"zing-server/internal/matchmaking"
	"zing-server/internal/room"
	"zing-server/internal/store"
	"zing-server/internal/ws"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // origin policy is the reverse proxy's job
	},
}

// Server owns the realtime core: one hub of sessions, the room registry,
// the matchmaker, and the invite store, all behind a single websocket
// endpoint.
type Server struct {
	cfg        *config.Config
	st         store.Store
	hub        *ws.Hub
	rooms      *room.Registry
	matchmaker *matchmaking.Matchmaker
	invites    *invite.Store
	resolver   *auth.Resolver
	log        *zap.Logger
}

// NewServer wires the core together and starts the background loops.
func NewServer(cfg *config.Config, st store.Store, validator auth.TokenValidator) *Server {
	s := &Server{
		cfg:      cfg,
		st:       st,
		hub:      ws.NewHub(),
		rooms:    room.NewRegistry(cfg, st),
		invites:  invite.NewStore(cfg.InviteTTL),
		resolver: auth.NewResolver(validator),
		log:      logger.Get(),
	}
	s.matchmaker = matchmaking.New(s.rooms)
	s.rooms.SetOnDestroyed(s.onRoomDestroyed)
	go s.hub.Run()
	return s
}

// Shutdown stops the background loops and tears down live rooms.
func (s *Server) Shutdown() {
	s.matchmaker.Stop()
	s.invites.Stop()
	s.rooms.Teardown()
	s.hub.Stop()
}

// onRoomDestroyed cancels pending invites into the vanished room and
// tells the recipients why.
func (s *Server) onRoomDestroyed(roomID string) {
	for _, inv := range s.invites.CancelForRoom(roomID) {
		if target := s.hub.FindByPlayer(inv.ToID); target != nil {
			s.send(target, ws.MsgInviteCancelled, map[string]string{
				"inviteId": inv.ID,
				"reason":   "room_deleted",
			})
		}
	}
}

// ServeWS upgrades the connection and runs the session pumps.
func (s *Server) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := ws.NewClient(s.hub, conn, uuid.NewString())
	client.SetOnDisconnect(s.handleDisconnect)
	s.hub.Register(client)

	go client.WritePump()
	go client.ReadPump(s.handleMessage)
}

func (s *Server) handleDisconnect(c *ws.Client) {
	s.matchmaker.HandleDisconnect(c)
	if roomID := c.RoomID(); roomID != "" {
		if r := s.rooms.Get(roomID); r != nil {
			r.HandleDisconnect(c)
		}
	}
}

// handleMessage routes one inbound message. Messages invalid for the
// session's lifecycle state are rejected before any handler runs.
func (s *Server) handleMessage(c *ws.Client, msg *ws.Message) {
	if !ws.AllowedInState(c.State(), msg.Type) {
		s.sendError(c, ws.MsgError, "invalid_state",
			"message "+string(msg.Type)+" not allowed in state "+string(c.State()))
		return
	}

	switch msg.Type {
	case ws.MsgAuth:
		s.handleAuth(c, msg)
	case ws.MsgCreatePrivate:
		s.handleCreatePrivate(c, msg)
	case ws.MsgJoinRoom:
		s.handleJoinRoom(c, msg)
	case ws.MsgRejoinRoom:
		s.handleRejoinRoom(c, msg)
	case ws.MsgLeaveRoom:
		s.handleLeaveRoom(c)
	case ws.MsgKickMember:
		s.handleKickMember(c, msg)
	case ws.MsgSetMemberRole:
		s.handleSetMemberRole(c, msg)
	case ws.MsgToggleTimer:
		s.handleToggleTimer(c, msg)
	case ws.MsgSetTeams:
		s.handleSetTeams(c, msg)
	case ws.MsgStart1v1:
		s.handleStartGame(c, room.Mode1v1)
	case ws.MsgStart2v2Random:
		s.handleStartGame(c, room.Mode2v2Random)
	case ws.MsgStart2v2Party:
		s.handleStartGame(c, room.Mode2v2Party)
	case ws.MsgPlayCard:
		s.handlePlayCard(c, msg)
	case ws.MsgPlayCardAs:
		s.handlePlayCardAs(c, msg)
	case ws.MsgVoteSurrender:
		s.handleVoteSurrender(c)
	case ws.MsgVoteRematch:
		s.handleVoteRematch(c)
	case ws.MsgExitGame:
		s.handleExitGame(c)
	case ws.MsgFindGame:
		s.handleFindGame(c, msg)
	case ws.MsgCancelFindGame:
		s.handleCancelFindGame(c)
	case ws.MsgSendInvite:
		s.handleSendInvite(c, msg)
	case ws.MsgAcceptInvite:
		s.handleAcceptInvite(c, msg)
	case ws.MsgDeclineInvite:
		s.handleDeclineInvite(c, msg)
	case ws.MsgGetPendingInvite:
		s.handleGetPendingInvites(c)
	default:
		s.sendError(c, ws.MsgError, "unknown_message", "unknown message type: "+string(msg.Type))
	}
}

// ---- auth ----

func (s *Server) handleAuth(c *ws.Client, msg *ws.Message) {
	var payload ws.AuthPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		s.sendError(c, ws.MsgAuthInvalid, "bad_payload", "malformed auth payload")
		return
	}

	// Identity is stamped once; a repeat auth just echoes it back.
	if c.PlayerID() != "" {
		s.send(c, ws.MsgAuthOK, ws.AuthOKPayload{ID: c.PlayerID(), Name: c.Name(), Role: c.Role()})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	identity, err := s.resolver.Resolve(ctx, payload.Token, payload.GuestID, payload.Name, payload.Role)
	if err != nil {
		s.sendError(c, ws.MsgAuthInvalid, "auth_invalid", err.Error())
		return
	}

	c.Stamp(identity.ID, identity.Name, identity.Role)
	s.send(c, ws.MsgAuthOK, ws.AuthOKPayload{ID: identity.ID, Name: identity.Name, Role: identity.Role})
}

// ---- rooms ----

func (s *Server) handleCreatePrivate(c *ws.Client, msg *ws.Message) {
	var payload ws.CreatePrivateRoomPayload
	if len(msg.Payload) > 0 {
		json.Unmarshal(msg.Payload, &payload)
	}
	name := auth.NormalizeName(payload.Name)
	if name == "" {
		name = c.Name()
	}

	s.detachFromCurrentRoom(c)

	r := s.rooms.Create(room.VisibilityPrivate)
	if err := r.Join(c, name, room.RolePlayer); err != nil {
		r.Destroy()
		s.sendRoomError(c, ws.MsgJoinError, err)
		return
	}
	s.send(c, ws.MsgRoomCreated, ws.RoomCreatedPayload{
		RoomID:      r.ID,
		Code:        r.Code,
		InviteToken: r.InviteToken,
	})
}

func (s *Server) handleJoinRoom(c *ws.Client, msg *ws.Message) {
	var payload ws.JoinRoomPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		s.sendError(c, ws.MsgJoinError, "bad_payload", "malformed join payload")
		return
	}

	r := s.resolveRoom(payload)
	if r == nil {
		s.sendError(c, ws.MsgJoinError, "room_not_found", "no such room")
		return
	}
	// Re-joining the current room is a reattach, not a room switch.
	if c.RoomID() != r.ID {
		s.detachFromCurrentRoom(c)
	}

	name := auth.NormalizeName(payload.Name)
	if name == "" {
		name = c.Name()
	}
	role := payload.Role
	if role == "" {
		role = c.Role()
	}
	if err := r.Join(c, name, role); err != nil {
		s.sendRoomError(c, ws.MsgJoinError, err)
	}
}

func (s *Server) resolveRoom(payload ws.JoinRoomPayload) *room.Room {
	switch {
	case payload.RoomID != "":
		return s.rooms.Get(payload.RoomID)
	case payload.Code != "":
		return s.rooms.GetByCode(payload.Code)
	case payload.InviteToken != "":
		return s.rooms.GetByInviteToken(payload.InviteToken)
	default:
		return nil
	}
}

func (s *Server) handleRejoinRoom(c *ws.Client, msg *ws.Message) {
	var payload ws.RejoinRoomPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		s.sendError(c, ws.MsgRejoinError, "bad_payload", "malformed rejoin payload")
		return
	}

	r := s.rooms.Get(payload.RoomID)
	if r == nil {
		s.sendError(c, ws.MsgRejoinError, "room_not_found", "no such room")
		return
	}
	if err := r.Rejoin(c, payload.PlayerID, payload.ReconnectToken, payload.LastSeq); err != nil {
		s.sendRoomError(c, ws.MsgRejoinError, err)
	}
}

func (s *Server) handleLeaveRoom(c *ws.Client) {
	r := s.currentRoom(c)
	if r == nil {
		s.sendError(c, ws.MsgRoomError, "not_in_room", "session is not in a room")
		return
	}
	if err := r.Leave(c.PlayerID()); err != nil {
		s.sendRoomError(c, ws.MsgRoomError, err)
		return
	}
	s.send(c, ws.MsgRoomLeft, ws.RoomRefPayload{RoomID: r.ID})
}

func (s *Server) handleKickMember(c *ws.Client, msg *ws.Message) {
	var payload ws.KickMemberPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		s.sendError(c, ws.MsgRoomError, "bad_payload", "malformed kick payload")
		return
	}
	r := s.currentRoom(c)
	if r == nil {
		s.sendError(c, ws.MsgRoomError, "not_in_room", "session is not in a room")
		return
	}
	if err := r.Kick(c.PlayerID(), payload.TargetUserID); err != nil {
		s.sendRoomError(c, ws.MsgRoomError, err)
	}
}

func (s *Server) handleSetMemberRole(c *ws.Client, msg *ws.Message) {
	var payload ws.SetMemberRolePayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		s.sendError(c, ws.MsgRoomError, "bad_payload", "malformed role payload")
		return
	}
	r := s.currentRoom(c)
	if r == nil {
		s.sendError(c, ws.MsgRoomError, "not_in_room", "session is not in a room")
		return
	}
	if err := r.SetRole(c.PlayerID(), payload.TargetUserID, payload.Role); err != nil {
		s.sendRoomError(c, ws.MsgRoomError, err)
	}
}

func (s *Server) handleToggleTimer(c *ws.Client, msg *ws.Message) {
	var payload ws.ToggleTimerPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		s.sendError(c, ws.MsgRoomError, "bad_payload", "malformed timer payload")
		return
	}
	r := s.currentRoom(c)
	if r == nil {
		s.sendError(c, ws.MsgRoomError, "not_in_room", "session is not in a room")
		return
	}
	if err := r.ToggleTimer(c.PlayerID(), payload.Enabled); err != nil {
		s.sendRoomError(c, ws.MsgRoomError, err)
	}
}

func (s *Server) handleSetTeams(c *ws.Client, msg *ws.Message) {
	var payload ws.SetTeamAssignmentPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		s.sendError(c, ws.MsgTeamError, "bad_payload", "malformed team payload")
		return
	}
	r := s.currentRoom(c)
	if r == nil {
		s.sendError(c, ws.MsgTeamError, "not_in_room", "session is not in a room")
		return
	}
	if err := r.SetTeams(c.PlayerID(), payload.Team0, payload.Team1); err != nil {
		s.sendRoomError(c, ws.MsgTeamError, err)
	}
}

// ---- gameplay ----

func (s *Server) handleStartGame(c *ws.Client, mode string) {
	r := s.currentRoom(c)
	if r == nil {
		s.sendError(c, ws.MsgStartError, "not_in_room", "session is not in a room")
		return
	}
	if err := r.StartGame(c.PlayerID(), mode); err != nil {
		s.sendRoomError(c, ws.MsgStartError, err)
	}
}

func (s *Server) handlePlayCard(c *ws.Client, msg *ws.Message) {
	var payload ws.PlayCardPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		s.sendError(c, ws.MsgRoomError, "bad_payload", "malformed play payload")
		return
	}
	r := s.currentRoom(c)
	if r == nil {
		s.sendError(c, ws.MsgRoomError, "not_in_room", "session is not in a room")
		return
	}
	if err := r.PlayCard(c, payload.CardID); err != nil {
		s.sendRoomError(c, ws.MsgRoomError, err)
	}
}

func (s *Server) handlePlayCardAs(c *ws.Client, msg *ws.Message) {
	var payload ws.PlayCardAsPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		s.sendError(c, ws.MsgRoomError, "bad_payload", "malformed play payload")
		return
	}
	r := s.currentRoom(c)
	if r == nil {
		s.sendError(c, ws.MsgRoomError, "not_in_room", "session is not in a room")
		return
	}
	if err := r.PlayCardAs(payload.AsPlayerID, payload.CardID); err != nil {
		s.sendRoomError(c, ws.MsgRoomError, err)
	}
}

func (s *Server) handleVoteSurrender(c *ws.Client) {
	r := s.currentRoom(c)
	if r == nil {
		s.sendError(c, ws.MsgRoomError, "not_in_room", "session is not in a room")
		return
	}
	if err := r.VoteSurrender(c.PlayerID()); err != nil {
		s.sendRoomError(c, ws.MsgRoomError, err)
	}
}

func (s *Server) handleVoteRematch(c *ws.Client) {
	r := s.currentRoom(c)
	if r == nil {
		s.sendError(c, ws.MsgRoomError, "not_in_room", "session is not in a room")
		return
	}
	if err := r.VoteRematch(c.PlayerID()); err != nil {
		s.sendRoomError(c, ws.MsgRoomError, err)
	}
}

func (s *Server) handleExitGame(c *ws.Client) {
	r := s.currentRoom(c)
	if r == nil {
		s.sendError(c, ws.MsgRoomError, "not_in_room", "session is not in a room")
		return
	}
	if err := r.ExitGame(c.PlayerID()); err != nil {
		s.sendRoomError(c, ws.MsgRoomError, err)
	}
}

// ---- matchmaking ----

func (s *Server) handleFindGame(c *ws.Client, msg *ws.Message) {
	var payload ws.FindGamePayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		s.sendError(c, ws.MsgMatchmakingError, "bad_payload", "malformed find_game payload")
		return
	}

	s.detachFromCurrentRoom(c)

	position, err := s.matchmaker.Enqueue(c, payload.Mode)
	if err != nil {
		s.sendError(c, ws.MsgMatchmakingError, "enqueue_failed", err.Error())
		return
	}
	// An enqueue that immediately filled a match moves the session into
	// the room; only a still-queued session gets queue_joined.
	if c.State() == ws.StateQueued {
		s.send(c, ws.MsgQueueJoined, ws.QueueJoinedPayload{Mode: payload.Mode, Position: position})
	}
}

func (s *Server) handleCancelFindGame(c *ws.Client) {
	mode, err := s.matchmaker.Cancel(c)
	if err != nil {
		s.sendError(c, ws.MsgMatchmakingError, "not_queued", err.Error())
		return
	}
	s.send(c, ws.MsgQueueLeft, ws.QueueLeftPayload{Mode: mode, Reason: "user_cancelled"})
}

// ---- invites ----

func (s *Server) handleSendInvite(c *ws.Client, msg *ws.Message) {
	var payload ws.SendInvitePayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		s.sendError(c, ws.MsgInviteError, "bad_payload", "malformed invite payload")
		return
	}
	roomID := c.RoomID()
	if roomID == "" {
		s.sendError(c, ws.MsgInviteError, "not_in_room", "join a room before inviting")
		return
	}

	inv, err := s.invites.Create(c.PlayerID(), c.Name(), payload.FriendID, roomID)
	if err != nil {
		s.sendError(c, ws.MsgInviteError, "invite_rejected", err.Error())
		return
	}

	s.send(c, ws.MsgInviteSent, inv)
	if target := s.hub.FindByPlayer(inv.ToID); target != nil {
		s.send(target, ws.MsgInviteReceived, inv)
	}
}

func (s *Server) handleAcceptInvite(c *ws.Client, msg *ws.Message) {
	var payload ws.InviteRefPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		s.sendError(c, ws.MsgInviteError, "bad_payload", "malformed invite payload")
		return
	}

	inv, err := s.invites.Accept(payload.InviteID, c.PlayerID())
	if err != nil {
		s.sendError(c, ws.MsgInviteError, "invite_rejected", err.Error())
		return
	}
	if sender := s.hub.FindByPlayer(inv.FromID); sender != nil {
		s.send(sender, ws.MsgInviteAccepted, inv)
	}

	r := s.rooms.Get(inv.RoomID)
	if r == nil {
		s.sendError(c, ws.MsgJoinError, "room_not_found", "the invite's room no longer exists")
		return
	}
	s.detachFromCurrentRoom(c)
	if err := r.Join(c, c.Name(), room.RolePlayer); err != nil {
		s.sendRoomError(c, ws.MsgJoinError, err)
	}
}

func (s *Server) handleDeclineInvite(c *ws.Client, msg *ws.Message) {
	var payload ws.InviteRefPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		s.sendError(c, ws.MsgInviteError, "bad_payload", "malformed invite payload")
		return
	}

	inv, err := s.invites.Decline(payload.InviteID, c.PlayerID())
	if err != nil {
		s.sendError(c, ws.MsgInviteError, "invite_rejected", err.Error())
		return
	}
	if sender := s.hub.FindByPlayer(inv.FromID); sender != nil {
		s.send(sender, ws.MsgInviteDeclined, inv)
	}
}

func (s *Server) handleGetPendingInvites(c *ws.Client) {
	pending := s.invites.PendingFor(c.PlayerID())
	s.send(c, ws.MsgPendingInvites, map[string]interface{}{"invites": pending})
}

// ---- helpers ----

func (s *Server) currentRoom(c *ws.Client) *room.Room {
	roomID := c.RoomID()
	if roomID == "" {
		return nil
	}
	return s.rooms.Get(roomID)
}

// detachFromCurrentRoom releases the session's current room before it
// moves elsewhere; a session is attached to at most one room.
func (s *Server) detachFromCurrentRoom(c *ws.Client) {
	if r := s.currentRoom(c); r != nil {
		r.Detach(c)
	}
}

func (s *Server) send(c *ws.Client, msgType ws.MessageType, payload interface{}) {
	msg, err := ws.NewMessage(msgType, payload)
	if err != nil {
		s.log.Warn("failed to encode message", zap.Error(err))
		return
	}
	c.SendMessage(msg)
}

func (s *Server) sendError(c *ws.Client, msgType ws.MessageType, reason, message string) {
	msg, err := ws.NewErrorMessage(msgType, reason, message)
	if err != nil {
		return
	}
	c.SendMessage(msg)
}

func (s *Server) sendRoomError(c *ws.Client, msgType ws.MessageType, err error) {
	if roomErr, ok := err.(*room.Error); ok {
		s.sendError(c, msgType, roomErr.Reason, roomErr.Message)
		return
	}
	s.sendError(c, msgType, "internal", err.Error())
}
