package ws

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trigon_server/internal/game"
	"trigon_server/internal/limiter"
	"trigon_server/internal/metrics"
	"trigon_server/internal/room"
)

// Test clients have no transport: commands are injected through
// HandleCommand and replies read straight off the Send buffer.

func testGateway(settings room.Settings) *Gateway {
	manager := room.NewManager(room.Config{
		MaxRooms:        10,
		GracePeriod:     time.Minute,
		DefaultSettings: settings,
	})
	limits := limiter.New(limiter.Config{
		MaxConnections:  100,
		RoomCooldown:    0,
		MovesPerMinute:  100,
		EventsPerMinute: 100,
	})
	return NewGateway(manager, limits)
}

func defaultSettings() room.Settings {
	return room.Settings{Rules: room.DefaultRules(), BlitzSeconds: 30}
}

func connect(gw *Gateway) *Client {
	c := NewClient(nil, "test-origin", gw)
	gw.Register(c)
	return c
}

func send(gw *Gateway, c *Client, cmd Command) {
	raw, _ := json.Marshal(cmd)
	gw.HandleCommand(c, raw)
}

type received struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func recv(t *testing.T, c *Client) received {
	t.Helper()
	select {
	case raw := <-c.Send:
		var msg received
		require.NoError(t, json.Unmarshal(raw, &msg))
		return msg
	case <-time.After(time.Second):
		t.Fatal("no message received")
		return received{}
	}
}

// recvSkippingTicks returns the next non-tick message, so countdown
// broadcasts cannot race the assertion.
func recvSkippingTicks(t *testing.T, c *Client) received {
	t.Helper()
	for {
		msg := recv(t, c)
		if msg.Type != TypeTick {
			return msg
		}
	}
}

func recvError(t *testing.T, c *Client) ErrorPayload {
	t.Helper()
	msg := recvSkippingTicks(t, c)
	require.Equal(t, TypeError, msg.Type)
	var p ErrorPayload
	require.NoError(t, json.Unmarshal(msg.Payload, &p))
	return p
}

func drain(c *Client) {
	for {
		select {
		case <-c.Send:
		default:
			return
		}
	}
}

func join(t *testing.T, gw *Gateway, c *Client, roomID, playerID string) room.Snapshot {
	t.Helper()
	send(gw, c, Command{Type: "join", RoomID: roomID, PlayerID: playerID})
	msg := recv(t, c)
	require.Equal(t, TypeRoom, msg.Type)
	var snap room.Snapshot
	require.NoError(t, json.Unmarshal(msg.Payload, &snap))
	return snap
}

func TestJoinCreatesRoom(t *testing.T) {
	gw := testGateway(defaultSettings())
	c := connect(gw)

	snap := join(t, gw, c, "r1", "alice")
	assert.Equal(t, "r1", snap.RoomID)
	assert.Equal(t, game.PlayerBlue, snap.YourColor)
	assert.True(t, snap.IsHost)
	assert.False(t, snap.HasPassword)
	require.NotNil(t, snap.GameState)
	assert.Equal(t, game.StatusPlaying, snap.GameState.Status)
}

func TestSecondJoinNotifiesFirst(t *testing.T) {
	gw := testGateway(defaultSettings())
	c1 := connect(gw)
	c2 := connect(gw)

	join(t, gw, c1, "r1", "alice")
	snap := join(t, gw, c2, "r1", "bob")
	assert.Equal(t, game.PlayerRed, snap.YourColor)
	assert.False(t, snap.IsHost)

	msg := recv(t, c1)
	assert.Equal(t, TypePlayerJoined, msg.Type)
	var ev PlayerEventPayload
	require.NoError(t, json.Unmarshal(msg.Payload, &ev))
	assert.Equal(t, "bob", ev.PlayerID)
	assert.Equal(t, game.PlayerRed, ev.Color)
}

func TestMalformedCommand(t *testing.T) {
	gw := testGateway(defaultSettings())
	c := connect(gw)

	gw.HandleCommand(c, []byte("{not json"))
	assert.Equal(t, CodeBadRequest, recvError(t, c).Code)
}

func TestMoveRequiresRoom(t *testing.T) {
	gw := testGateway(defaultSettings())
	c := connect(gw)

	send(gw, c, Command{Type: "move", From: game.L2, To: game.CL})
	assert.Equal(t, CodeNotInRoom, recvError(t, c).Code)
}

func TestMoveOutOfTurn(t *testing.T) {
	gw := testGateway(defaultSettings())
	c1 := connect(gw)
	c2 := connect(gw)
	join(t, gw, c1, "r1", "alice")
	join(t, gw, c2, "r1", "bob")
	drain(c1)

	send(gw, c2, Command{Type: "move", From: game.R2, To: game.CR})
	assert.Equal(t, CodeNotYourTurn, recvError(t, c2).Code)
}

func TestMoveWrongPiece(t *testing.T) {
	gw := testGateway(defaultSettings())
	c1 := connect(gw)
	join(t, gw, c1, "r1", "alice")

	send(gw, c1, Command{Type: "move", From: game.R2, To: game.CR})
	assert.Equal(t, CodeNotYourPiece, recvError(t, c1).Code)
}

func TestMoveInvalidDestination(t *testing.T) {
	gw := testGateway(defaultSettings())
	c1 := connect(gw)
	join(t, gw, c1, "r1", "alice")

	send(gw, c1, Command{Type: "move", From: game.L2, To: game.CC})
	assert.Equal(t, CodeInvalidMove, recvError(t, c1).Code)
}

func TestValidMoveBroadcastsState(t *testing.T) {
	gw := testGateway(defaultSettings())
	c1 := connect(gw)
	c2 := connect(gw)
	join(t, gw, c1, "r1", "alice")
	join(t, gw, c2, "r1", "bob")
	drain(c1)

	send(gw, c1, Command{Type: "move", From: game.L2, To: game.CL})

	for _, c := range []*Client{c1, c2} {
		msg := recv(t, c)
		require.Equal(t, TypeState, msg.Type)
		var p StatePayload
		require.NoError(t, json.Unmarshal(msg.Payload, &p))
		assert.Equal(t, game.PlayerRed, p.GameState.CurrentPlayer)
		assert.Nil(t, p.TimeLeft, "no countdown without blitz")
	}
}

func TestRepeatedMoveBlocked(t *testing.T) {
	gw := testGateway(defaultSettings())
	c1 := connect(gw)
	c2 := connect(gw)
	join(t, gw, c1, "r1", "alice")
	join(t, gw, c2, "r1", "bob")
	drain(c1)

	send(gw, c1, Command{Type: "move", From: game.L2, To: game.CL})
	send(gw, c2, Command{Type: "move", From: game.R2, To: game.CR})
	drain(c1)
	drain(c2)

	// Blue undoing its own last move is a piece bounce; with blocking on it
	// is rejected, the position stays put and the block is counted.
	blockedBefore := testutil.ToFloat64(metrics.MovesTotal.WithLabelValues("blocked"))
	send(gw, c1, Command{Type: "move", From: game.CL, To: game.L2})
	assert.Equal(t, CodeMoveBlocked, recvError(t, c1).Code)
	assert.Equal(t, blockedBefore+1, testutil.ToFloat64(metrics.MovesTotal.WithLabelValues("blocked")))

	st, ok := gw.manager.GameState("r1")
	require.True(t, ok)
	assert.Equal(t, game.PlayerBlue, st.CurrentPlayer)
	assert.Len(t, st.MoveHistory, 2)
}

func TestRepeatedMoveWarnsWhenBlockingOff(t *testing.T) {
	settings := defaultSettings()
	settings.Rules = game.RuleSet{Warning: true}
	gw := testGateway(settings)
	c1 := connect(gw)
	c2 := connect(gw)
	join(t, gw, c1, "r1", "alice")
	join(t, gw, c2, "r1", "bob")
	drain(c1)

	send(gw, c1, Command{Type: "move", From: game.L2, To: game.CL})
	send(gw, c2, Command{Type: "move", From: game.R2, To: game.CR})
	drain(c1)
	drain(c2)

	send(gw, c1, Command{Type: "move", From: game.CL, To: game.L2})
	msg := recv(t, c1)
	require.Equal(t, TypeState, msg.Type)

	st, ok := gw.manager.GameState("r1")
	require.True(t, ok)
	assert.Equal(t, 1, st.RepetitionWarnings[game.PlayerBlue])
}

func TestResetRequiresHost(t *testing.T) {
	gw := testGateway(defaultSettings())
	c1 := connect(gw)
	c2 := connect(gw)
	join(t, gw, c1, "r1", "alice")
	join(t, gw, c2, "r1", "bob")
	drain(c1)

	send(gw, c2, Command{Type: "reset"})
	assert.Equal(t, CodeNotHost, recvError(t, c2).Code)

	send(gw, c1, Command{Type: "move", From: game.L2, To: game.CL})
	drain(c1)
	drain(c2)

	send(gw, c1, Command{Type: "reset"})
	for _, c := range []*Client{c1, c2} {
		msg := recv(t, c)
		require.Equal(t, TypeState, msg.Type)
		var p StatePayload
		require.NoError(t, json.Unmarshal(msg.Payload, &p))
		assert.Empty(t, p.GameState.MoveHistory)
	}
}

func TestSettingsRequireHost(t *testing.T) {
	gw := testGateway(defaultSettings())
	c1 := connect(gw)
	c2 := connect(gw)
	join(t, gw, c1, "r1", "alice")
	join(t, gw, c2, "r1", "bob")
	drain(c1)

	s := defaultSettings()
	s.BlitzSeconds = 15
	send(gw, c2, Command{Type: "settings", Settings: &s})
	assert.Equal(t, CodeNotHost, recvError(t, c2).Code)

	send(gw, c1, Command{Type: "settings", Settings: &s})
	msg := recv(t, c1)
	assert.Equal(t, TypeSettings, msg.Type)
	drain(c2)

	got, ok := gw.manager.SettingsOf("r1")
	require.True(t, ok)
	assert.Equal(t, 15, got.BlitzSeconds)
}

func TestLeaveNotifiesRemaining(t *testing.T) {
	gw := testGateway(defaultSettings())
	c1 := connect(gw)
	c2 := connect(gw)
	join(t, gw, c1, "r1", "alice")
	join(t, gw, c2, "r1", "bob")
	drain(c1)

	send(gw, c2, Command{Type: "leave"})

	msg := recv(t, c1)
	require.Equal(t, TypePlayerLeft, msg.Type)
	var ev PlayerEventPayload
	require.NoError(t, json.Unmarshal(msg.Payload, &ev))
	assert.Equal(t, "bob", ev.PlayerID)

	// A move from the departed player is no longer accepted.
	send(gw, c2, Command{Type: "move", From: game.R2, To: game.CR})
	assert.Equal(t, CodeNotInRoom, recvError(t, c2).Code)
}

func TestDisconnectKeepsSeatDuringGrace(t *testing.T) {
	gw := testGateway(defaultSettings())
	c1 := connect(gw)
	c2 := connect(gw)
	join(t, gw, c1, "r1", "alice")
	join(t, gw, c2, "r1", "bob")
	drain(c1)

	gw.HandleClose(c2)

	msg := recv(t, c1)
	require.Equal(t, TypePlayerDisconnected, msg.Type)
	var ev PlayerEventPayload
	require.NoError(t, json.Unmarshal(msg.Payload, &ev))
	assert.Equal(t, "bob", ev.PlayerID)

	// The seat survives: a fresh connection with the same identity takes it
	// back.
	c3 := connect(gw)
	snap := join(t, gw, c3, "r1", "bob")
	assert.Equal(t, game.PlayerRed, snap.YourColor)

	msg = recv(t, c1)
	assert.Equal(t, TypePlayerReconnected, msg.Type)
}

func TestRoomFull(t *testing.T) {
	gw := testGateway(defaultSettings())
	c1 := connect(gw)
	c2 := connect(gw)
	c3 := connect(gw)
	join(t, gw, c1, "r1", "alice")
	join(t, gw, c2, "r1", "bob")

	send(gw, c3, Command{Type: "join", RoomID: "r1", PlayerID: "carol"})
	assert.Equal(t, CodeRoomFull, recvError(t, c3).Code)
}

func TestPasswordRequiredPrompt(t *testing.T) {
	gw := testGateway(defaultSettings())
	c1 := connect(gw)
	c2 := connect(gw)

	send(gw, c1, Command{Type: "join", RoomID: "r1", PlayerID: "alice", Password: "secret"})
	msg := recv(t, c1)
	require.Equal(t, TypeRoom, msg.Type)

	// Missing password prompts instead of hard-failing; a wrong one fails.
	send(gw, c2, Command{Type: "join", RoomID: "r1", PlayerID: "bob"})
	assert.Equal(t, TypePasswordRequired, recv(t, c2).Type)

	send(gw, c2, Command{Type: "join", RoomID: "r1", PlayerID: "bob", Password: "nope"})
	assert.Equal(t, CodeWrongPassword, recvError(t, c2).Code)

	send(gw, c2, Command{Type: "join", RoomID: "r1", PlayerID: "bob", Password: "secret"})
	assert.Equal(t, TypeRoom, recv(t, c2).Type)
}

func TestBlitzAutoMove(t *testing.T) {
	settings := defaultSettings()
	settings.BlitzEnabled = true
	settings.BlitzSeconds = 1
	gw := testGateway(settings)
	c1 := connect(gw)
	c2 := connect(gw)
	join(t, gw, c1, "r1", "alice")
	join(t, gw, c2, "r1", "bob")

	// The pairing armed the one second clock; expiry plays a legal move for
	// Blue automatically.
	require.Eventually(t, func() bool {
		st, ok := gw.manager.GameState("r1")
		return ok && len(st.MoveHistory) >= 1
	}, 3*time.Second, 50*time.Millisecond)

	st, ok := gw.manager.GameState("r1")
	require.True(t, ok)
	assert.Equal(t, game.PlayerBlue, st.MoveHistory[0].Player)
}

func TestMoveRestartsCountdown(t *testing.T) {
	settings := defaultSettings()
	settings.BlitzEnabled = true
	settings.BlitzSeconds = 30
	gw := testGateway(settings)
	c1 := connect(gw)
	c2 := connect(gw)
	join(t, gw, c1, "r1", "alice")
	join(t, gw, c2, "r1", "bob")
	drain(c1)

	gw.mu.Lock()
	before := gw.countdowns["r1"]
	gw.mu.Unlock()
	require.NotNil(t, before)

	send(gw, c1, Command{Type: "move", From: game.L2, To: game.CL})

	msg := recvSkippingTicks(t, c1)
	require.Equal(t, TypeState, msg.Type)
	var p StatePayload
	require.NoError(t, json.Unmarshal(msg.Payload, &p))
	require.NotNil(t, p.TimeLeft)
	assert.Equal(t, 30, *p.TimeLeft)

	gw.mu.Lock()
	after := gw.countdowns["r1"]
	gw.mu.Unlock()
	require.NotNil(t, after)
	assert.NotSame(t, before, after)
}

func TestResetInSoloRoomDoesNotArmCountdown(t *testing.T) {
	settings := defaultSettings()
	settings.BlitzEnabled = true
	settings.BlitzSeconds = 30
	gw := testGateway(settings)
	c1 := connect(gw)
	join(t, gw, c1, "r1", "alice")

	gw.mu.Lock()
	_, running := gw.countdowns["r1"]
	gw.mu.Unlock()
	require.False(t, running)

	send(gw, c1, Command{Type: "reset"})
	msg := recv(t, c1)
	require.Equal(t, TypeState, msg.Type)
	var p StatePayload
	require.NoError(t, json.Unmarshal(msg.Payload, &p))
	assert.Nil(t, p.TimeLeft)

	// The host alone must never be put on the clock.
	gw.mu.Lock()
	_, running = gw.countdowns["r1"]
	gw.mu.Unlock()
	assert.False(t, running)
}

func TestSettingsRejectNonPositiveBlitzSeconds(t *testing.T) {
	settings := defaultSettings()
	settings.BlitzEnabled = true
	settings.BlitzSeconds = 30
	gw := testGateway(settings)
	c1 := connect(gw)
	c2 := connect(gw)
	join(t, gw, c1, "r1", "alice")
	join(t, gw, c2, "r1", "bob")
	drain(c1)

	gw.mu.Lock()
	before := gw.countdowns["r1"]
	gw.mu.Unlock()
	require.NotNil(t, before)

	s := settings
	s.BlitzSeconds = 0
	send(gw, c1, Command{Type: "settings", Settings: &s})
	assert.Equal(t, CodeBadRequest, recvError(t, c1).Code)

	// The rejected change leaves the running clock untouched.
	gw.mu.Lock()
	after := gw.countdowns["r1"]
	gw.mu.Unlock()
	assert.Same(t, before, after)

	got, ok := gw.manager.SettingsOf("r1")
	require.True(t, ok)
	assert.Equal(t, 30, got.BlitzSeconds)
}

func TestDisablingBlitzStopsCountdown(t *testing.T) {
	settings := defaultSettings()
	settings.BlitzEnabled = true
	settings.BlitzSeconds = 30
	gw := testGateway(settings)
	c1 := connect(gw)
	c2 := connect(gw)
	join(t, gw, c1, "r1", "alice")
	join(t, gw, c2, "r1", "bob")
	drain(c1)

	s := settings
	s.BlitzEnabled = false
	send(gw, c1, Command{Type: "settings", Settings: &s})

	gw.mu.Lock()
	_, running := gw.countdowns["r1"]
	gw.mu.Unlock()
	assert.False(t, running)
}
