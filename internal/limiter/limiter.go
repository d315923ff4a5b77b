package limiter

import (
	"sync"
	"time"

	"trigon_server/internal/logger"
)

// window is the trailing period over which move and event rates are counted.
const window = 60 * time.Second

// Config carries the per-origin limits.
type Config struct {
	MaxConnections  int
	RoomCooldown    time.Duration
	MovesPerMinute  int
	EventsPerMinute int
}

type origin struct {
	connections int
	lastRoom    time.Time
	moves       []time.Time
	events      []time.Time
}

// Limiter tracks per-origin connection counts and action frequency,
// independent of room identity. Entries are created on first reference and
// removed by Sweep once the origin returns to a fully idle baseline, so
// memory stays bounded to active origins.
type Limiter struct {
	mu      sync.Mutex
	cfg     Config
	origins map[string]*origin
	now     func() time.Time
}

func New(cfg Config) *Limiter {
	return &Limiter{
		cfg:     cfg,
		origins: make(map[string]*origin),
		now:     time.Now,
	}
}

func (l *Limiter) get(key string) *origin {
	o, ok := l.origins[key]
	if !ok {
		o = &origin{}
		l.origins[key] = o
	}
	return o
}

// AllowConnection admits a new connection unless the origin is already at the
// concurrent cap. An admitted connection must be paired with a
// ReleaseConnection when it closes.
func (l *Limiter) AllowConnection(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	o := l.get(key)
	if o.connections >= l.cfg.MaxConnections {
		logger.Warn("connection rejected, origin at cap", "origin", key, "connections", o.connections)
		return false
	}
	o.connections++
	return true
}

func (l *Limiter) ReleaseConnection(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if o, ok := l.origins[key]; ok && o.connections > 0 {
		o.connections--
	}
}

// RoomCreateWait returns how long the origin must still wait before creating
// another room. Zero means creation is allowed now. Joins to existing rooms
// are never subject to the cooldown.
func (l *Limiter) RoomCreateWait(key string) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	o, ok := l.origins[key]
	if !ok || o.lastRoom.IsZero() {
		return 0
	}
	elapsed := l.now().Sub(o.lastRoom)
	if elapsed >= l.cfg.RoomCooldown {
		return 0
	}
	return l.cfg.RoomCooldown - elapsed
}

// NoteRoomCreated stamps the origin's creation cooldown. Called only after a
// room was actually created.
func (l *Limiter) NoteRoomCreated(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.get(key).lastRoom = l.now()
}

// AllowMove admits a move if the origin is under the per-minute cap; each
// accepted move timestamps itself into the window.
func (l *Limiter) AllowMove(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	o := l.get(key)
	o.moves = prune(o.moves, l.now())
	if len(o.moves) >= l.cfg.MovesPerMinute {
		return false
	}
	o.moves = append(o.moves, l.now())
	return true
}

// AllowEvent is the generic-event counterpart of AllowMove.
func (l *Limiter) AllowEvent(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	o := l.get(key)
	o.events = prune(o.events, l.now())
	if len(o.events) >= l.cfg.EventsPerMinute {
		return false
	}
	o.events = append(o.events, l.now())
	return true
}

// Sweep prunes expired window entries and drops origins that are fully idle:
// no connections, cooled-down room creation, empty windows. Returns the
// number of origins removed.
func (l *Limiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for key, o := range l.origins {
		o.moves = prune(o.moves, now)
		o.events = prune(o.events, now)
		idle := o.connections == 0 &&
			len(o.moves) == 0 && len(o.events) == 0 &&
			(o.lastRoom.IsZero() || now.Sub(o.lastRoom) >= l.cfg.RoomCooldown)
		if idle {
			delete(l.origins, key)
			removed++
		}
	}
	return removed
}

func prune(stamps []time.Time, now time.Time) []time.Time {
	cut := 0
	for cut < len(stamps) && now.Sub(stamps[cut]) >= window {
		cut++
	}
	return stamps[cut:]
}
