package ws

import (
	"trigon_server/internal/game"
	"trigon_server/internal/room"
)

// Client-facing error codes. Each failing precondition has its own code so
// clients can react specifically.
const (
	CodeRoomFull         = "ROOM_FULL"
	CodeWrongPassword    = "WRONG_PASSWORD"
	CodeMaxRooms         = "MAX_ROOMS_REACHED"
	CodeRateRoomCooldown = "RATE_LIMIT_ROOM_COOLDOWN"
	CodeRateConnections  = "RATE_LIMIT_CONNECTIONS"
	CodeNotInRoom        = "NOT_IN_ROOM"
	CodeGameOver         = "GAME_OVER"
	CodeNotYourTurn      = "NOT_YOUR_TURN"
	CodeNotYourPiece     = "NOT_YOUR_PIECE"
	CodeInvalidMove      = "INVALID_MOVE"
	CodeMoveBlocked      = "MOVE_BLOCKED"
	CodeRateMoves        = "RATE_LIMIT_MOVES"
	CodeNotHost          = "NOT_HOST"
	CodeRateEvents       = "RATE_LIMIT_EVENTS"
	CodeBadRequest       = "BAD_REQUEST"
)

// Server-to-client message types.
const (
	TypeRoom               = "room"
	TypeState              = "state"
	TypeTick               = "tick"
	TypeError              = "error"
	TypePasswordRequired   = "password_required"
	TypeSettings           = "settings"
	TypePlayerJoined       = "player_joined"
	TypePlayerReconnected  = "player_reconnected"
	TypePlayerLeft         = "player_left"
	TypePlayerDisconnected = "player_disconnected"
)

// Command is the transport envelope for every client request.
type Command struct {
	Type     string         `json:"type"`
	RoomID   string         `json:"room_id,omitempty"`
	PlayerID string         `json:"player_id,omitempty"`
	Password string         `json:"password,omitempty"`
	From     game.Position  `json:"from,omitempty"`
	To       game.Position  `json:"to,omitempty"`
	Settings *room.Settings `json:"settings,omitempty"`
}

// Message is the transport envelope for every server reply and broadcast.
type Message struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

type ErrorPayload struct {
	Code              string `json:"code"`
	Message           string `json:"message"`
	RetryAfterSeconds int    `json:"retry_after_seconds,omitempty"`
}

// StatePayload is broadcast to the whole room after every accepted mutation.
// TimeLeft is present only while a blitz countdown is (re)armed.
type StatePayload struct {
	GameState *game.GameState `json:"game_state"`
	TimeLeft  *int            `json:"time_left,omitempty"`
}

type TickPayload struct {
	TimeLeft int `json:"time_left"`
}

// PlayerEventPayload accompanies joined/reconnected/left/disconnected events.
type PlayerEventPayload struct {
	PlayerID string      `json:"player_id"`
	Color    game.Player `json:"color"`
}
