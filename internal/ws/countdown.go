package ws

import (
	"math/rand"
	"time"

	"trigon_server/internal/game"
	"trigon_server/internal/logger"
	"trigon_server/internal/metrics"
)

// countdown is one room's blitz clock. It ticks once a second off its own
// goroutine and, at zero, submits an automatic move for the player on turn.
type countdown struct {
	roomID  string
	seconds int
	stop    chan struct{}
}

// startCountdownLocked replaces any running clock for the room with a fresh
// one at the full duration. A non-positive duration only cancels. Caller
// holds g.mu.
func (g *Gateway) startCountdownLocked(roomID string, seconds int) {
	if old, ok := g.countdowns[roomID]; ok {
		close(old.stop)
		delete(g.countdowns, roomID)
	}
	if seconds <= 0 {
		return
	}
	cd := &countdown{roomID: roomID, seconds: seconds, stop: make(chan struct{})}
	g.countdowns[roomID] = cd
	go g.runCountdown(cd)
}

// stopCountdownLocked cancels the room's clock if one is running. Caller
// holds g.mu.
func (g *Gateway) stopCountdownLocked(roomID string) {
	if cd, ok := g.countdowns[roomID]; ok {
		close(cd.stop)
		delete(g.countdowns, roomID)
	}
}

func (g *Gateway) runCountdown(cd *countdown) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	remaining := cd.seconds
	for {
		select {
		case <-cd.stop:
			return
		case <-ticker.C:
			remaining--
			if remaining > 0 {
				g.broadcastTick(cd, remaining)
				continue
			}
			g.countdownExpired(cd)
			return
		}
	}
}

func (g *Gateway) broadcastTick(cd *countdown, remaining int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.countdowns[cd.roomID] != cd {
		return
	}
	g.broadcastLocked(cd.roomID, Message{Type: TypeTick, Payload: TickPayload{TimeLeft: remaining}})
}

// countdownExpired picks a uniformly random legal move for the player on turn
// and applies it. The stale check guards against a clock that was replaced
// between the tick firing and the lock being taken.
func (g *Gateway) countdownExpired(cd *countdown) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.countdowns[cd.roomID] != cd {
		return
	}
	delete(g.countdowns, cd.roomID)

	st, ok := g.manager.GameState(cd.roomID)
	if !ok || st.Status.Terminal() {
		return
	}
	settings, ok := g.manager.SettingsOf(cd.roomID)
	if !ok || !settings.BlitzEnabled {
		return
	}

	moves := game.EnumerateMoves(st, st.CurrentPlayer)
	if len(moves) == 0 {
		// A stalemated side has already lost; WinStatus settles it on the
		// next state broadcast, so leave the position untouched.
		return
	}
	pick := moves[rand.Intn(len(moves))]

	next, applied := game.ApplyMove(pick.From, pick.To, st)
	if !applied {
		logger.Error("auto move rejected", "room_id", cd.roomID, "from", string(pick.From), "to", string(pick.To))
		return
	}
	g.manager.UpdateGameState(cd.roomID, next)
	metrics.MovesTotal.WithLabelValues("auto").Inc()
	logger.Info("blitz timeout, auto move applied",
		"room_id", cd.roomID, "player", string(pick.Player), "from", string(pick.From), "to", string(pick.To))

	g.finishMutationLocked(cd.roomID, next, settings)
}
