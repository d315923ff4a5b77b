package room

import (
	"errors"
	"sync"
	"time"

	"trigon_server/internal/game"
	"trigon_server/internal/logger"
)

var (
	ErrRoomFull         = errors.New("room is full")
	ErrWrongPassword    = errors.New("wrong password")
	ErrPasswordRequired = errors.New("password required")
	ErrMaxRooms         = errors.New("maximum room count reached")
	ErrNotHost          = errors.New("player is not the host")
	ErrNoRoom           = errors.New("room not found")
	ErrNotInRoom        = errors.New("player not in a room")
)

// JoinOutcome distinguishes the three successful CreateOrJoin paths.
type JoinOutcome int

const (
	OutcomeCreated JoinOutcome = iota
	OutcomeJoined
	OutcomeReconnected
)

// JoinResult reports the seat the player ended up with.
type JoinResult struct {
	Outcome JoinOutcome
	Color   game.Player
	IsHost  bool
}

// GraceExpiry describes a seat that was vacated because its reconnect grace
// window elapsed. Delivered to the callback passed to MarkDisconnected.
type GraceExpiry struct {
	RoomID        string
	PlayerID      string
	Color         game.Player
	RoomDestroyed bool
}

// Config carries the manager's tunables.
type Config struct {
	MaxRooms        int
	GracePeriod     time.Duration
	DefaultSettings Settings
}

// Manager exclusively owns all room records and the player-to-room index.
// One mutex guards both tables so no caller can observe a half-updated
// mapping. The Manager performs no rules checking: the gateway validates
// transitions and the Manager commits them.
type Manager struct {
	mu         sync.Mutex
	cfg        Config
	rooms      map[string]*Room
	playerRoom map[string]string
	now        func() time.Time
}

func NewManager(cfg Config) *Manager {
	return &Manager{
		cfg:        cfg,
		rooms:      make(map[string]*Room),
		playerRoom: make(map[string]string),
		now:        time.Now,
	}
}

// CreateOrJoin creates the room if it does not exist, reconnects a returning
// seat holder, repossesses a seat whose grace window fully elapsed, or
// assigns the free color. Typed errors distinguish every rejection.
func (m *Manager) CreateOrJoin(roomID, playerID, password string) (JoinResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rooms[roomID]
	if !ok {
		if len(m.rooms) >= m.cfg.MaxRooms {
			return JoinResult{}, ErrMaxRooms
		}
		r = &Room{
			ID:        roomID,
			HostID:    playerID,
			Password:  password,
			State:     game.NewGame(),
			Settings:  m.cfg.DefaultSettings,
			CreatedAt: m.now(),
		}
		r.Players = append(r.Players, &Player{ID: playerID, Color: game.PlayerBlue, Connected: true})
		m.rooms[roomID] = r
		m.playerRoom[playerID] = roomID
		logger.Info("room created", "room_id", roomID, "host_id", playerID)
		return JoinResult{Outcome: OutcomeCreated, Color: game.PlayerBlue, IsHost: true}, nil
	}

	if r.Password != "" && password != r.Password {
		if password == "" {
			return JoinResult{}, ErrPasswordRequired
		}
		return JoinResult{}, ErrWrongPassword
	}

	// Returning seat holder: reconnect regardless of grace progress.
	if p := r.seat(playerID); p != nil {
		if p.graceTimer != nil {
			p.graceTimer.Stop()
			p.graceTimer = nil
		}
		p.Connected = true
		p.DisconnectedAt = nil
		m.playerRoom[playerID] = roomID
		logger.Info("player reconnected", "room_id", roomID, "player_id", playerID)
		return JoinResult{Outcome: OutcomeReconnected, Color: p.Color, IsHost: r.HostID == playerID}, nil
	}

	now := m.now()

	// Repossess a seat whose grace window fully elapsed before its finalize
	// timer fired: the old identity loses its claim.
	for _, p := range r.Players {
		if p.occupiedOrInGrace(m.cfg.GracePeriod, now) {
			continue
		}
		if p.graceTimer != nil {
			p.graceTimer.Stop()
			p.graceTimer = nil
		}
		delete(m.playerRoom, p.ID)
		wasHost := r.HostID == p.ID
		logger.Info("seat repossessed", "room_id", roomID, "old_player_id", p.ID, "new_player_id", playerID)
		p.ID = playerID
		p.Connected = true
		p.DisconnectedAt = nil
		m.playerRoom[playerID] = roomID
		if wasHost {
			m.migrateHost(r, playerID)
		}
		return JoinResult{Outcome: OutcomeJoined, Color: p.Color, IsHost: r.HostID == playerID}, nil
	}

	if len(r.Players) >= 2 {
		return JoinResult{}, ErrRoomFull
	}

	color := game.PlayerRed
	if r.seatByColor(game.PlayerBlue) == nil {
		color = game.PlayerBlue
	}
	r.Players = append(r.Players, &Player{ID: playerID, Color: color, Connected: true})
	m.playerRoom[playerID] = roomID
	logger.Info("player joined", "room_id", roomID, "player_id", playerID, "color", string(color))
	return JoinResult{Outcome: OutcomeJoined, Color: color, IsHost: false}, nil
}

// MarkDisconnected flags the player's seat as disconnected and arms the
// grace timer. If the timer fires before a reconnect or explicit leave, the
// seat is vacated for good and onExpired is invoked (outside the lock) so the
// gateway can notify the survivor.
func (m *Manager) MarkDisconnected(playerID string, onExpired func(GraceExpiry)) {
	m.mu.Lock()
	defer m.mu.Unlock()

	roomID, ok := m.playerRoom[playerID]
	if !ok {
		return
	}
	r, ok := m.rooms[roomID]
	if !ok {
		return
	}
	p := r.seat(playerID)
	if p == nil {
		return
	}

	now := m.now()
	p.Connected = false
	p.DisconnectedAt = &now
	if p.graceTimer != nil {
		p.graceTimer.Stop()
	}
	p.graceTimer = time.AfterFunc(m.cfg.GracePeriod, func() {
		m.finalizeDisconnect(roomID, playerID, onExpired)
	})
	logger.Info("player disconnected, grace timer armed",
		"room_id", roomID, "player_id", playerID, "grace", m.cfg.GracePeriod)
}

// finalizeDisconnect runs when a grace timer fires. The room may have changed
// since scheduling, so everything is re-checked under the lock; only the room
// and player identifiers are trusted from capture time.
func (m *Manager) finalizeDisconnect(roomID, playerID string, onExpired func(GraceExpiry)) {
	m.mu.Lock()

	r, ok := m.rooms[roomID]
	if !ok {
		m.mu.Unlock()
		return
	}
	p := r.seat(playerID)
	if p == nil || p.Connected {
		m.mu.Unlock()
		return
	}

	expiry := GraceExpiry{RoomID: roomID, PlayerID: playerID, Color: p.Color}
	m.vacateSeat(r, playerID)
	expiry.RoomDestroyed = m.destroyIfEmpty(r)
	m.mu.Unlock()

	logger.Info("grace period expired, seat vacated", "room_id", roomID, "player_id", playerID)
	if onExpired != nil {
		onExpired(expiry)
	}
}

// Leave vacates the seat immediately, skipping the grace period, with host
// migration to the remaining player.
func (m *Manager) Leave(playerID string) (roomID string, color game.Player, destroyed bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	roomID, ok := m.playerRoom[playerID]
	if !ok {
		return "", "", false, ErrNotInRoom
	}
	r, ok := m.rooms[roomID]
	if !ok {
		delete(m.playerRoom, playerID)
		return "", "", false, ErrNotInRoom
	}
	p := r.seat(playerID)
	if p == nil {
		delete(m.playerRoom, playerID)
		return "", "", false, ErrNotInRoom
	}

	color = p.Color
	m.vacateSeat(r, playerID)
	destroyed = m.destroyIfEmpty(r)
	logger.Info("player left", "room_id", roomID, "player_id", playerID, "room_destroyed", destroyed)
	return roomID, color, destroyed, nil
}

// UpdateGameState overwrites the room's state unconditionally. The caller is
// trusted to have validated the transition through the rules engine.
func (m *Manager) UpdateGameState(roomID string, st *game.GameState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.rooms[roomID]; ok {
		r.State = st
	}
}

// UpdateSettings succeeds only for the room's current host.
func (m *Manager) UpdateSettings(roomID, playerID string, s Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[roomID]
	if !ok {
		return ErrNoRoom
	}
	if r.HostID != playerID {
		return ErrNotHost
	}
	r.Settings = s
	return nil
}

// ResetGame replaces the game state with a fresh one, preserving settings,
// players and host. Host only.
func (m *Manager) ResetGame(roomID, playerID string) (*game.GameState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[roomID]
	if !ok {
		return nil, ErrNoRoom
	}
	if r.HostID != playerID {
		return nil, ErrNotHost
	}
	r.State = game.NewGame()
	logger.Info("game reset", "room_id", roomID, "by", playerID)
	return r.State, nil
}

// CleanupStaleRooms destroys rooms past maxAge with nobody connected or in
// grace, returning the count removed.
func (m *Manager) CleanupStaleRooms(maxAge time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	removed := 0
	for id, r := range m.rooms {
		if now.Sub(r.CreatedAt) <= maxAge {
			continue
		}
		if r.hasActivePlayers(m.cfg.GracePeriod, now) {
			continue
		}
		for _, p := range r.Players {
			if p.graceTimer != nil {
				p.graceTimer.Stop()
			}
			delete(m.playerRoom, p.ID)
		}
		delete(m.rooms, id)
		removed++
		logger.Info("stale room removed", "room_id", id)
	}
	return removed
}

// Exists reports whether the room is currently known.
func (m *Manager) Exists(roomID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.rooms[roomID]
	return ok
}

// RoomCount returns the number of live rooms.
func (m *Manager) RoomCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rooms)
}

// MaxRooms returns the configured global cap.
func (m *Manager) MaxRooms() int {
	return m.cfg.MaxRooms
}

// GameState returns the room's current state. The state value is immutable;
// callers derive successors through the rules engine and commit them with
// UpdateGameState.
func (m *Manager) GameState(roomID string) (*game.GameState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[roomID]
	if !ok {
		return nil, false
	}
	return r.State, true
}

// SettingsOf returns the room's settings.
func (m *Manager) SettingsOf(roomID string) (Settings, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[roomID]
	if !ok {
		return Settings{}, false
	}
	return r.Settings, true
}

// ConnectedPlayers returns how many seats are currently connected.
func (m *Manager) ConnectedPlayers(roomID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[roomID]
	if !ok {
		return 0
	}
	n := 0
	for _, p := range r.Players {
		if p.Connected {
			n++
		}
	}
	return n
}

// SnapshotFor builds the join snapshot from the viewer's perspective.
func (m *Manager) SnapshotFor(roomID, playerID string) (Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[roomID]
	if !ok {
		return Snapshot{}, false
	}
	snap := Snapshot{
		RoomID:      r.ID,
		HostID:      r.HostID,
		HasPassword: r.Password != "",
		GameState:   r.State,
		Settings:    r.Settings,
		IsHost:      r.HostID == playerID,
	}
	for _, p := range r.Players {
		snap.Players = append(snap.Players, PlayerInfo{ID: p.ID, Color: p.Color, Connected: p.Connected})
		if p.ID == playerID {
			snap.YourColor = p.Color
		}
	}
	return snap, true
}

// vacateSeat removes the seat and migrates host if needed. Lock held.
func (m *Manager) vacateSeat(r *Room, playerID string) {
	for i, p := range r.Players {
		if p.ID != playerID {
			continue
		}
		if p.graceTimer != nil {
			p.graceTimer.Stop()
			p.graceTimer = nil
		}
		r.Players = append(r.Players[:i], r.Players[i+1:]...)
		break
	}
	delete(m.playerRoom, playerID)
	if r.HostID == playerID {
		m.migrateHost(r, "")
	}
}

// migrateHost hands the host role to a remaining connected seat, preferring
// anyone over the fallback id. Lock held.
func (m *Manager) migrateHost(r *Room, fallback string) {
	for _, p := range r.Players {
		if p.Connected && p.ID != fallback {
			r.HostID = p.ID
			logger.Info("host migrated", "room_id", r.ID, "new_host", p.ID)
			return
		}
	}
	if fallback != "" {
		r.HostID = fallback
		return
	}
	if len(r.Players) > 0 {
		r.HostID = r.Players[0].ID
	}
}

// destroyIfEmpty removes the room when no seats remain. Lock held.
func (m *Manager) destroyIfEmpty(r *Room) bool {
	if len(r.Players) > 0 {
		return false
	}
	delete(m.rooms, r.ID)
	logger.Info("room destroyed", "room_id", r.ID)
	return true
}
