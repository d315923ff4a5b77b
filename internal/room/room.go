package room

import (
	"time"

	"trigon_server/internal/game"
)

// Settings are owned by the room and changed only by the host.
type Settings struct {
	Rules        game.RuleSet `json:"rules"`
	BlitzEnabled bool         `json:"blitz_enabled"`
	BlitzSeconds int          `json:"blitz_seconds"`
}

// DefaultRules enables the full repetition rule set.
func DefaultRules() game.RuleSet {
	return game.RuleSet{Warning: true, Forfeit: true, Block: true}
}

// Player is a seat in a room. ID is the client-chosen stable identifier that
// survives reconnects; it is not a transport identifier. Color never changes
// for the lifetime of the membership.
type Player struct {
	ID             string      `json:"id"`
	Color          game.Player `json:"color"`
	Connected      bool        `json:"connected"`
	DisconnectedAt *time.Time  `json:"disconnected_at,omitempty"`

	graceTimer *time.Timer
}

// Room is the unit of broadcast and of exclusive game-state mutation. All
// mutation goes through the Manager.
type Room struct {
	ID        string
	HostID    string
	Password  string
	Players   []*Player
	State     *game.GameState
	Settings  Settings
	CreatedAt time.Time
}

func (r *Room) seat(playerID string) *Player {
	for _, p := range r.Players {
		if p.ID == playerID {
			return p
		}
	}
	return nil
}

func (r *Room) seatByColor(color game.Player) *Player {
	for _, p := range r.Players {
		if p.Color == color {
			return p
		}
	}
	return nil
}

// occupiedOrInGrace reports whether the seat still has a claim on its color:
// either connected, or disconnected less than grace ago.
func (p *Player) occupiedOrInGrace(grace time.Duration, now time.Time) bool {
	if p.Connected {
		return true
	}
	if p.DisconnectedAt == nil {
		return true
	}
	return now.Sub(*p.DisconnectedAt) < grace
}

// hasActivePlayers reports whether anyone is connected or within grace.
func (r *Room) hasActivePlayers(grace time.Duration, now time.Time) bool {
	for _, p := range r.Players {
		if p.occupiedOrInGrace(grace, now) {
			return true
		}
	}
	return false
}

// PlayerInfo is the wire representation of a seat.
type PlayerInfo struct {
	ID        string      `json:"id"`
	Color     game.Player `json:"color"`
	Connected bool        `json:"connected"`
}

// Snapshot is what a joining connection receives about its room.
type Snapshot struct {
	RoomID      string          `json:"room_id"`
	HostID      string          `json:"host_id"`
	HasPassword bool            `json:"has_password"`
	Players     []PlayerInfo    `json:"players"`
	GameState   *game.GameState `json:"game_state"`
	Settings    Settings        `json:"settings"`
	YourColor   game.Player     `json:"your_color"`
	IsHost      bool            `json:"is_host"`
}
