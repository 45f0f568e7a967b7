package ws

import "encoding/json"

// MessageType defines the type of WebSocket message
type MessageType string

const (
	// Client -> Server messages
	MsgAuth             MessageType = "auth"
	MsgCreatePrivate    MessageType = "create_private_room"
	MsgJoinRoom         MessageType = "join_room"
	MsgRejoinRoom       MessageType = "rejoin_room"
	MsgLeaveRoom        MessageType = "leave_room_member"
	MsgKickMember       MessageType = "kick_member"
	MsgSetMemberRole    MessageType = "set_member_role"
	MsgToggleTimer      MessageType = "toggle_timer"
	MsgSetTeams         MessageType = "set_team_assignment"
	MsgStart1v1         MessageType = "start_1v1"
	MsgStart2v2Random   MessageType = "start_2v2_random"
	MsgStart2v2Party    MessageType = "start_2v2_party"
	MsgPlayCard         MessageType = "intent_play_card"
	MsgPlayCardAs       MessageType = "intent_play_card_as"
	MsgVoteSurrender    MessageType = "vote_surrender"
	MsgVoteRematch      MessageType = "vote_rematch"
	MsgExitGame         MessageType = "exit_game"
	MsgFindGame         MessageType = "find_game"
	MsgCancelFindGame   MessageType = "cancel_find_game"
	MsgSendInvite       MessageType = "send_invite"
	MsgAcceptInvite     MessageType = "accept_invite"
	MsgDeclineInvite    MessageType = "decline_invite"
	MsgGetPendingInvite MessageType = "get_pending_invites"

	// Server -> Client messages
	MsgError              MessageType = "server_error"
	MsgAuthOK             MessageType = "auth_ok"
	MsgAuthInvalid        MessageType = "auth_invalid"
	MsgRoomCreated        MessageType = "room_created"
	MsgRoomUpdate         MessageType = "room_update"
	MsgRoomLeft           MessageType = "room_left"
	MsgYouWereKicked      MessageType = "you_were_kicked"
	MsgHostChanged        MessageType = "host_changed"
	MsgRoleChanged        MessageType = "role_changed"
	MsgMemberKicked       MessageType = "member_kicked"
	MsgMemberLeft         MessageType = "member_left"
	MsgTeamsUpdated       MessageType = "teams_updated"
	MsgQueueJoined        MessageType = "queue_joined"
	MsgQueueLeft          MessageType = "queue_left"
	MsgMatchFound         MessageType = "match_found"
	MsgInviteSent         MessageType = "invite_sent"
	MsgInviteReceived     MessageType = "invite_received"
	MsgInviteAccepted     MessageType = "invite_accepted"
	MsgInviteDeclined     MessageType = "invite_declined"
	MsgInviteCancelled    MessageType = "invite_cancelled"
	MsgPendingInvites     MessageType = "pending_invites"
	MsgReconnectToken     MessageType = "reconnect_token"
	MsgRejoinError        MessageType = "rejoin_error"
	MsgJoinError          MessageType = "join_error"
	MsgRoomError          MessageType = "room_error"
	MsgInviteError        MessageType = "invite_error"
	MsgTeamError          MessageType = "team_error"
	MsgStartError         MessageType = "start_error"
	MsgMatchmakingError   MessageType = "matchmaking_error"
	MsgGameState          MessageType = "game_state"
	MsgGameEvent          MessageType = "game_event"
	MsgGameExited         MessageType = "game_exited"
	MsgSurrenderVoteAdded MessageType = "surrender_vote_added"
	MsgTeamSurrendered    MessageType = "team_surrendered"
	MsgRematchVoteAdded   MessageType = "rematch_vote_added"
	MsgRematchStarted     MessageType = "rematch_started"
	MsgReturnedToRoom     MessageType = "returned_to_room"
	MsgStayedInRoom       MessageType = "stayed_in_room"
	MsgUserOnline         MessageType = "user_online"
	MsgUserOffline        MessageType = "user_offline"
)

// Message is the base WebSocket message structure
type Message struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// AuthPayload authenticates a session as a registered user (bearer token)
// or a guest (client-generated id).
type AuthPayload struct {
	Token   string `json:"token,omitempty"`
	GuestID string `json:"guestId,omitempty"`
	Name    string `json:"name"`
	Role    string `json:"role,omitempty"`
}

// AuthOKPayload confirms the stamped identity.
type AuthOKPayload struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
}

// CreatePrivateRoomPayload for opening a private room.
type CreatePrivateRoomPayload struct {
	Name string `json:"name"`
}

// JoinRoomPayload admits a player by room id, 6-char code, or long-lived
// invite token; exactly one selector is expected.
type JoinRoomPayload struct {
	RoomID      string `json:"roomId,omitempty"`
	Code        string `json:"code,omitempty"`
	InviteToken string `json:"inviteToken,omitempty"`
	GuestID     string `json:"guestId,omitempty"`
	Name        string `json:"name,omitempty"`
	Role        string `json:"role,omitempty"`
}

// RejoinRoomPayload carries a one-shot reconnect token.
type RejoinRoomPayload struct {
	RoomID         string `json:"roomId"`
	PlayerID       string `json:"playerId"`
	ReconnectToken string `json:"reconnectToken"`
	LastSeq        int    `json:"lastSeq,omitempty"`
}

// RoomRefPayload names a room for membership operations.
type RoomRefPayload struct {
	RoomID string `json:"roomId"`
}

// KickMemberPayload for host kicks.
type KickMemberPayload struct {
	RoomID       string `json:"roomId"`
	TargetUserID string `json:"targetUserId"`
}

// SetMemberRolePayload for host role changes.
type SetMemberRolePayload struct {
	RoomID       string `json:"roomId"`
	TargetUserID string `json:"targetUserId"`
	Role         string `json:"role"`
}

// ToggleTimerPayload enables or disables the turn timer.
type ToggleTimerPayload struct {
	RoomID  string `json:"roomId"`
	Enabled bool   `json:"enabled"`
}

// SetTeamAssignmentPayload fixes 2v2 party teams.
type SetTeamAssignmentPayload struct {
	RoomID string   `json:"roomId"`
	Team0  []string `json:"team0"`
	Team1  []string `json:"team1"`
}

// PlayCardPayload is the only gameplay intent.
type PlayCardPayload struct {
	RoomID string `json:"roomId"`
	CardID string `json:"cardId"`
}

// PlayCardAsPayload impersonates a player; dev mode only.
type PlayCardAsPayload struct {
	RoomID     string `json:"roomId"`
	CardID     string `json:"cardId"`
	AsPlayerID string `json:"asPlayerId"`
}

// FindGamePayload enqueues for matchmaking.
type FindGamePayload struct {
	Mode string `json:"mode"` // 1v1 | 2v2
}

// SendInvitePayload invites a friend to the sender's room.
type SendInvitePayload struct {
	FriendID string `json:"friendId"`
}

// InviteRefPayload names an invite for accept/decline.
type InviteRefPayload struct {
	InviteID string `json:"inviteId"`
}

// ErrorPayload is the machine-readable error shape sent to clients.
type ErrorPayload struct {
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

// MemberInfo is one entry in a room_update membership list.
type MemberInfo struct {
	PlayerID string `json:"playerId"`
	Name     string `json:"name"`
	Role     string `json:"role"`
	JoinedAt int64  `json:"joinedAt"`
	Online   bool   `json:"online"`
}

// RoomUpdatePayload is the membership snapshot broadcast on any change.
type RoomUpdatePayload struct {
	RoomID       string       `json:"roomId"`
	Code         string       `json:"code,omitempty"`
	InviteToken  string       `json:"inviteToken,omitempty"`
	Visibility   string       `json:"visibility"`
	HostID       string       `json:"hostId,omitempty"`
	TimerEnabled bool         `json:"timerEnabled"`
	Phase        string       `json:"phase"`
	Members      []MemberInfo `json:"members"`
	Team0        []string     `json:"team0,omitempty"`
	Team1        []string     `json:"team1,omitempty"`
}

// RoomCreatedPayload returns the identifiers for a fresh room.
type RoomCreatedPayload struct {
	RoomID      string `json:"roomId"`
	Code        string `json:"code"`
	InviteToken string `json:"inviteToken"`
}

// QueueJoinedPayload confirms a matchmaking enqueue.
type QueueJoinedPayload struct {
	Mode     string `json:"mode"`
	Position int    `json:"position"`
}

// QueueLeftPayload confirms a dequeue, with a reason when involuntary.
type QueueLeftPayload struct {
	Mode   string `json:"mode"`
	Reason string `json:"reason,omitempty"` // user_cancelled | partner_disconnected
}

// MatchFoundPayload announces a matchmaking room.
type MatchFoundPayload struct {
	RoomID  string   `json:"roomId"`
	Mode    string   `json:"mode"`
	Players []string `json:"players"`
}

// ReconnectTokenPayload delivers a fresh one-shot rejoin credential.
type ReconnectTokenPayload struct {
	RoomID string `json:"roomId"`
	Token  string `json:"token"`
}

// PresencePayload for user_online / user_offline.
type PresencePayload struct {
	PlayerID string `json:"playerId"`
}

// VotePayload reports surrender/rematch vote progress.
type VotePayload struct {
	PlayerID string `json:"playerId"`
	Team     int    `json:"team,omitempty"`
	Votes    int    `json:"votes"`
	Needed   int    `json:"needed"`
}

// Helper functions for creating messages

func NewMessage(msgType MessageType, payload interface{}) (*Message, error) {
	var payloadBytes json.RawMessage
	if payload != nil {
		bytes, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		payloadBytes = bytes
	}
	return &Message{
		Type:    msgType,
		Payload: payloadBytes,
	}, nil
}

func NewErrorMessage(msgType MessageType, reason, message string) (*Message, error) {
	return NewMessage(msgType, ErrorPayload{
		Reason:  reason,
		Message: message,
	})
}

// SessionState gates which messages a session may send.
type SessionState string

const (
	StateUnauthenticated SessionState = "unauthenticated"
	StateLobby           SessionState = "lobby"
	StateQueued          SessionState = "queued"
	StateInRoom          SessionState = "in_room"
)

var validMessagesByState = map[SessionState][]MessageType{
	// A reconnect token is its own credential, so rejoin_room does not
	// require a prior auth on the new socket.
	StateUnauthenticated: {MsgAuth, MsgRejoinRoom},
	StateLobby: {
		MsgAuth, MsgCreatePrivate, MsgJoinRoom, MsgRejoinRoom,
		MsgFindGame, MsgAcceptInvite, MsgDeclineInvite, MsgGetPendingInvite,
	},
	StateQueued: {
		MsgCancelFindGame, MsgGetPendingInvite,
	},
	StateInRoom: {
		MsgJoinRoom, MsgRejoinRoom, MsgLeaveRoom, MsgKickMember,
		MsgSetMemberRole, MsgToggleTimer, MsgSetTeams,
		MsgStart1v1, MsgStart2v2Random, MsgStart2v2Party,
		MsgPlayCard, MsgPlayCardAs,
		MsgVoteSurrender, MsgVoteRematch, MsgExitGame,
		MsgSendInvite, MsgAcceptInvite, MsgDeclineInvite, MsgGetPendingInvite,
		MsgFindGame, MsgCancelFindGame,
	},
}

// AllowedInState reports whether a message type may be sent from the
// given session state.
func AllowedInState(state SessionState, msgType MessageType) bool {
	for _, allowed := range validMessagesByState[state] {
		if allowed == msgType {
			return true
		}
	}
	return false
}
