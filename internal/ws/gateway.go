package ws

import (
	"encoding/json"
	"sync"

	"trigon_server/internal/game"
	"trigon_server/internal/limiter"
	"trigon_server/internal/logger"
	"trigon_server/internal/metrics"
	"trigon_server/internal/room"
)

// session binds a connection to a player identity and, once joined, to a
// room seat.
type session struct {
	client   *Client
	playerID string
	roomID   string
	color    game.Player
}

// Gateway bridges transport events to the room manager and the rules engine.
// One mutex serializes every command handler and timer callback, giving each
// event run-to-completion semantics: two "simultaneous" moves for the same
// room are processed in arrival order and the second one sees the already
// flipped turn.
type Gateway struct {
	mu sync.Mutex

	manager *room.Manager
	limits  *limiter.Limiter

	sessions   map[string]*session  // conn id -> session
	byPlayer   map[string]string    // player id -> conn id
	roomConns  map[string]map[string]*Client
	countdowns map[string]*countdown
}

func NewGateway(manager *room.Manager, limits *limiter.Limiter) *Gateway {
	return &Gateway{
		manager:    manager,
		limits:     limits,
		sessions:   make(map[string]*session),
		byPlayer:   make(map[string]string),
		roomConns:  make(map[string]map[string]*Client),
		countdowns: make(map[string]*countdown),
	}
}

// Register adds a freshly upgraded connection.
func (g *Gateway) Register(c *Client) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sessions[c.ID] = &session{client: c}
	metrics.OpenConnections.Inc()
}

// HandleCommand dispatches one raw client message.
func (g *Gateway) HandleCommand(c *Client, raw []byte) {
	var cmd Command
	if err := json.Unmarshal(raw, &cmd); err != nil {
		g.replyError(c, CodeBadRequest, "malformed command")
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	sess, ok := g.sessions[c.ID]
	if !ok {
		// Connection already torn down; nothing to do.
		return
	}

	switch cmd.Type {
	case "join":
		g.handleJoin(sess, cmd)
	case "move":
		g.handleMove(sess, cmd)
	case "settings":
		g.handleSettings(sess, cmd)
	case "reset":
		g.handleReset(sess)
	case "leave":
		g.handleLeave(sess)
	default:
		g.replyErrorLocked(sess.client, CodeBadRequest, "unknown command type")
	}
}

// HandleClose runs on transport close. A dropped transport always takes the
// grace-period path; only an explicit leave vacates immediately.
func (g *Gateway) HandleClose(c *Client) {
	g.mu.Lock()

	g.limits.ReleaseConnection(c.Origin)
	sess, ok := g.sessions[c.ID]
	if !ok {
		g.mu.Unlock()
		c.close()
		return
	}
	delete(g.sessions, c.ID)
	metrics.OpenConnections.Dec()

	if sess.playerID != "" && g.byPlayer[sess.playerID] == c.ID {
		delete(g.byPlayer, sess.playerID)
	}

	if sess.roomID != "" {
		g.detachFromRoom(sess.roomID, c.ID)
		g.broadcastLocked(sess.roomID, Message{
			Type:    TypePlayerDisconnected,
			Payload: PlayerEventPayload{PlayerID: sess.playerID, Color: sess.color},
		})
		g.mu.Unlock()
		// Outside the gateway lock: the manager arms its own timer and the
		// expiry callback re-enters the gateway.
		g.manager.MarkDisconnected(sess.playerID, g.onGraceExpired)
	} else {
		g.mu.Unlock()
	}
	c.close()
}

func (g *Gateway) handleJoin(sess *session, cmd Command) {
	if cmd.RoomID == "" || cmd.PlayerID == "" {
		g.replyErrorLocked(sess.client, CodeBadRequest, "room_id and player_id required")
		return
	}

	// Joining a different room from an already seated connection is an
	// implicit leave of the old one.
	if sess.roomID != "" && sess.roomID != cmd.RoomID {
		g.handleLeave(sess)
	}

	// A player reappearing on a new connection detaches the old one from
	// membership tracking; the room seat itself is handled by the manager's
	// reconnect logic.
	if oldConn, ok := g.byPlayer[cmd.PlayerID]; ok && oldConn != sess.client.ID {
		if old, ok := g.sessions[oldConn]; ok && old.roomID != "" {
			g.detachFromRoom(old.roomID, oldConn)
			old.roomID = ""
			old.color = ""
		}
	}

	creating := !g.manager.Exists(cmd.RoomID)
	if creating {
		if wait := g.limits.RoomCreateWait(sess.client.Origin); wait > 0 {
			g.rejectLocked(sess.client, ErrorPayload{
				Code:              CodeRateRoomCooldown,
				Message:           "room creation cooldown active",
				RetryAfterSeconds: int(wait.Seconds() + 1),
			})
			return
		}
	}

	res, err := g.manager.CreateOrJoin(cmd.RoomID, cmd.PlayerID, cmd.Password)
	if err != nil {
		switch err {
		case room.ErrPasswordRequired:
			g.sendLocked(sess.client, Message{
				Type:    TypePasswordRequired,
				Payload: ErrorPayload{Code: CodeWrongPassword, Message: "password required"},
			})
			metrics.CommandRejects.WithLabelValues(CodeWrongPassword).Inc()
		case room.ErrWrongPassword:
			g.replyErrorLocked(sess.client, CodeWrongPassword, "wrong password")
		case room.ErrRoomFull:
			g.replyErrorLocked(sess.client, CodeRoomFull, "room is full")
		case room.ErrMaxRooms:
			g.replyErrorLocked(sess.client, CodeMaxRooms, "server room limit reached")
		default:
			g.replyErrorLocked(sess.client, CodeBadRequest, err.Error())
		}
		return
	}

	if res.Outcome == room.OutcomeCreated {
		g.limits.NoteRoomCreated(sess.client.Origin)
		metrics.ActiveRooms.Set(float64(g.manager.RoomCount()))
	}

	sess.playerID = cmd.PlayerID
	sess.roomID = cmd.RoomID
	sess.color = res.Color
	g.byPlayer[cmd.PlayerID] = sess.client.ID
	g.attachToRoom(cmd.RoomID, sess.client)

	snap, _ := g.manager.SnapshotFor(cmd.RoomID, cmd.PlayerID)
	g.sendLocked(sess.client, Message{Type: TypeRoom, Payload: snap})

	eventType := TypePlayerJoined
	if res.Outcome == room.OutcomeReconnected {
		eventType = TypePlayerReconnected
	}
	g.broadcastExceptLocked(cmd.RoomID, sess.client.ID, Message{
		Type:    eventType,
		Payload: PlayerEventPayload{PlayerID: cmd.PlayerID, Color: res.Color},
	})

	// A pairing that completes a playable blitz room arms the clock.
	g.ensureCountdownLocked(cmd.RoomID)
}

func (g *Gateway) handleMove(sess *session, cmd Command) {
	if sess.roomID == "" {
		g.replyErrorLocked(sess.client, CodeNotInRoom, "join a room first")
		return
	}
	if !g.limits.AllowMove(sess.client.Origin) {
		g.replyErrorLocked(sess.client, CodeRateMoves, "move rate limit exceeded")
		return
	}

	st, ok := g.manager.GameState(sess.roomID)
	if !ok {
		g.replyErrorLocked(sess.client, CodeNotInRoom, "room no longer exists")
		return
	}
	if st.Status.Terminal() {
		g.replyErrorLocked(sess.client, CodeGameOver, "game is over")
		return
	}
	if st.CurrentPlayer != sess.color {
		g.replyErrorLocked(sess.client, CodeNotYourTurn, "not your turn")
		return
	}
	owner, occupied := st.PieceOwner(cmd.From)
	if !occupied || owner != sess.color {
		g.replyErrorLocked(sess.client, CodeNotYourPiece, "no piece of yours at origin")
		return
	}
	if !containsPosition(game.ValidDestinations(cmd.From, st), cmd.To) {
		g.replyErrorLocked(sess.client, CodeInvalidMove, "destination not reachable")
		return
	}

	settings, _ := g.manager.SettingsOf(sess.roomID)
	rep := game.CheckRepetition(cmd.From, cmd.To, st, settings.Rules)

	// Fixed precedence: forfeit beats block beats warn beats plain apply.
	switch {
	case rep.ShouldForfeit:
		next := game.Forfeit(st, sess.color)
		g.manager.UpdateGameState(sess.roomID, next)
		metrics.MovesTotal.WithLabelValues("forfeit").Inc()
		logger.Info("repetition forfeit", "room_id", sess.roomID, "player_id", sess.playerID)
		g.stopCountdownLocked(sess.roomID)
		g.broadcastLocked(sess.roomID, Message{Type: TypeState, Payload: StatePayload{GameState: next}})
		return

	case rep.ShouldBlock:
		metrics.MovesTotal.WithLabelValues("blocked").Inc()
		g.replyErrorLocked(sess.client, CodeMoveBlocked, "repetitive move blocked")
		return
	}

	next, applied := game.ApplyMoveWithWarning(cmd.From, cmd.To, st, rep.ShouldWarn)
	if !applied {
		g.replyErrorLocked(sess.client, CodeInvalidMove, "move rejected")
		return
	}
	g.manager.UpdateGameState(sess.roomID, next)
	if rep.ShouldWarn {
		metrics.MovesTotal.WithLabelValues("warned").Inc()
	} else {
		metrics.MovesTotal.WithLabelValues("applied").Inc()
	}

	g.finishMutationLocked(sess.roomID, next, settings)
}

func (g *Gateway) handleSettings(sess *session, cmd Command) {
	if sess.roomID == "" {
		g.replyErrorLocked(sess.client, CodeNotInRoom, "join a room first")
		return
	}
	if cmd.Settings == nil {
		g.replyErrorLocked(sess.client, CodeBadRequest, "settings payload required")
		return
	}
	if cmd.Settings.BlitzEnabled && cmd.Settings.BlitzSeconds <= 0 {
		g.replyErrorLocked(sess.client, CodeBadRequest, "blitz_seconds must be positive")
		return
	}
	if !g.limits.AllowEvent(sess.client.Origin) {
		g.replyErrorLocked(sess.client, CodeRateEvents, "event rate limit exceeded")
		return
	}

	if err := g.manager.UpdateSettings(sess.roomID, sess.playerID, *cmd.Settings); err != nil {
		switch err {
		case room.ErrNotHost:
			g.replyErrorLocked(sess.client, CodeNotHost, "only the host can change settings")
		default:
			g.replyErrorLocked(sess.client, CodeNotInRoom, "room no longer exists")
		}
		return
	}

	g.broadcastLocked(sess.roomID, Message{Type: TypeSettings, Payload: *cmd.Settings})

	if !cmd.Settings.BlitzEnabled {
		g.stopCountdownLocked(sess.roomID)
	} else {
		g.restartCountdownIfPlayableLocked(sess.roomID)
	}
}

func (g *Gateway) handleReset(sess *session) {
	if sess.roomID == "" {
		g.replyErrorLocked(sess.client, CodeNotInRoom, "join a room first")
		return
	}
	if !g.limits.AllowEvent(sess.client.Origin) {
		g.replyErrorLocked(sess.client, CodeRateEvents, "event rate limit exceeded")
		return
	}

	st, err := g.manager.ResetGame(sess.roomID, sess.playerID)
	if err != nil {
		switch err {
		case room.ErrNotHost:
			g.replyErrorLocked(sess.client, CodeNotHost, "only the host can reset")
		default:
			g.replyErrorLocked(sess.client, CodeNotInRoom, "room no longer exists")
		}
		return
	}

	settings, _ := g.manager.SettingsOf(sess.roomID)
	g.finishMutationLocked(sess.roomID, st, settings)
}

func (g *Gateway) handleLeave(sess *session) {
	if sess.roomID == "" {
		return
	}

	roomID, color, destroyed, err := g.manager.Leave(sess.playerID)
	if err != nil {
		sess.roomID = ""
		sess.color = ""
		return
	}

	g.detachFromRoom(roomID, sess.client.ID)
	sess.roomID = ""
	sess.color = ""

	if destroyed {
		g.stopCountdownLocked(roomID)
	} else {
		g.broadcastLocked(roomID, Message{
			Type:    TypePlayerLeft,
			Payload: PlayerEventPayload{PlayerID: sess.playerID, Color: color},
		})
	}
	metrics.ActiveRooms.Set(float64(g.manager.RoomCount()))
}

// onGraceExpired fires from the manager's grace timer after the seat has
// already been vacated.
func (g *Gateway) onGraceExpired(e room.GraceExpiry) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if e.RoomDestroyed {
		g.stopCountdownLocked(e.RoomID)
		delete(g.roomConns, e.RoomID)
	} else {
		g.broadcastLocked(e.RoomID, Message{
			Type:    TypePlayerLeft,
			Payload: PlayerEventPayload{PlayerID: e.PlayerID, Color: e.Color},
		})
	}
	metrics.ActiveRooms.Set(float64(g.manager.RoomCount()))
}

// finishMutationLocked broadcasts the committed state and reconciles the
// countdown with it. The clock runs only for a live game with both seats
// connected; a lone player never gets auto-played against.
func (g *Gateway) finishMutationLocked(roomID string, st *game.GameState, settings room.Settings) {
	payload := StatePayload{GameState: st}
	if settings.BlitzEnabled && !st.Status.Terminal() && g.manager.ConnectedPlayers(roomID) >= 2 {
		t := settings.BlitzSeconds
		payload.TimeLeft = &t
		g.startCountdownLocked(roomID, settings.BlitzSeconds)
	} else {
		g.stopCountdownLocked(roomID)
	}
	g.broadcastLocked(roomID, Message{Type: TypeState, Payload: payload})
}

// restartCountdownIfPlayableLocked arms the clock when the room is a playing,
// two player, blitz enabled game.
func (g *Gateway) restartCountdownIfPlayableLocked(roomID string) {
	st, ok := g.manager.GameState(roomID)
	if !ok || st.Status.Terminal() {
		return
	}
	settings, _ := g.manager.SettingsOf(roomID)
	if !settings.BlitzEnabled || g.manager.ConnectedPlayers(roomID) < 2 {
		return
	}
	g.startCountdownLocked(roomID, settings.BlitzSeconds)
}

// ensureCountdownLocked is the non-restarting variant used on join, so a
// reconnect does not reset a running clock.
func (g *Gateway) ensureCountdownLocked(roomID string) {
	if _, running := g.countdowns[roomID]; running {
		return
	}
	g.restartCountdownIfPlayableLocked(roomID)
}

func (g *Gateway) attachToRoom(roomID string, c *Client) {
	conns, ok := g.roomConns[roomID]
	if !ok {
		conns = make(map[string]*Client)
		g.roomConns[roomID] = conns
	}
	conns[c.ID] = c
}

func (g *Gateway) detachFromRoom(roomID, connID string) {
	if conns, ok := g.roomConns[roomID]; ok {
		delete(conns, connID)
		if len(conns) == 0 {
			delete(g.roomConns, roomID)
		}
	}
}

func (g *Gateway) broadcastLocked(roomID string, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		logger.Error("broadcast marshal failed", "error", err)
		return
	}
	for _, c := range g.roomConns[roomID] {
		c.enqueue(data)
	}
}

func (g *Gateway) broadcastExceptLocked(roomID, exceptConn string, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		logger.Error("broadcast marshal failed", "error", err)
		return
	}
	for id, c := range g.roomConns[roomID] {
		if id != exceptConn {
			c.enqueue(data)
		}
	}
}

func (g *Gateway) sendLocked(c *Client, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		logger.Error("send marshal failed", "error", err)
		return
	}
	c.enqueue(data)
}

func (g *Gateway) replyErrorLocked(c *Client, code, message string) {
	metrics.CommandRejects.WithLabelValues(code).Inc()
	g.sendLocked(c, Message{Type: TypeError, Payload: ErrorPayload{Code: code, Message: message}})
}

func (g *Gateway) rejectLocked(c *Client, payload ErrorPayload) {
	metrics.CommandRejects.WithLabelValues(payload.Code).Inc()
	g.sendLocked(c, Message{Type: TypeError, Payload: payload})
}

// replyError is the unlocked variant for the parse failure path.
func (g *Gateway) replyError(c *Client, code, message string) {
	metrics.CommandRejects.WithLabelValues(code).Inc()
	data, err := json.Marshal(Message{Type: TypeError, Payload: ErrorPayload{Code: code, Message: message}})
	if err != nil {
		return
	}
	c.enqueue(data)
}

func containsPosition(list []game.Position, p game.Position) bool {
	for _, v := range list {
		if v == p {
			return true
		}
	}
	return false
}
