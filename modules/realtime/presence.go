package realtime

import (
	"sync"
	"time"

	domain "github.com/example/chat-realtime/domain/chat"
)

// PresenceRecord is the derived status of a user.
type PresenceRecord struct {
	UserID string    `json:"user_id"`
	Status string    `json:"status"`
	Since  time.Time `json:"since"`
}

// presenceNotifier receives each transition together with the rooms the user
// was last seen in (only known for offline transitions).
type presenceNotifier func(rec PresenceRecord, lastRooms []string)

type presenceEntry struct {
	rec       PresenceRecord
	pending   *time.Timer
	gen       uint64
	lastRooms []string
}

// Presence derives online/offline per user from registry transitions. The
// offline transition waits out a grace window so that a quick reconnect
// produces no broadcast at all. Only online or pending users hold an entry.
type Presence struct {
	mu       sync.Mutex
	grace    time.Duration
	seq      uint64
	entries  map[string]*presenceEntry
	isOnline func(userID string) bool
	notify   presenceNotifier
	now      func() time.Time
}

// NewPresence creates a tracker. isOnline is consulted when a pending offline
// transition fires, so interleaved open/close reports cannot leave a live user
// marked offline.
func NewPresence(grace time.Duration, isOnline func(string) bool, notify presenceNotifier) *Presence {
	if notify == nil {
		notify = func(PresenceRecord, []string) {}
	}
	return &Presence{
		grace:    grace,
		entries:  make(map[string]*presenceEntry),
		isOnline: isOnline,
		notify:   notify,
		now:      time.Now,
	}
}

func (p *Presence) entry(userID string) *presenceEntry {
	e, ok := p.entries[userID]
	if !ok {
		e = &presenceEntry{rec: PresenceRecord{UserID: userID, Status: domain.StatusOffline}}
		p.entries[userID] = e
	}
	return e
}

// ConnectionOpened handles the user's first live connection.
func (p *Presence) ConnectionOpened(userID string) {
	p.mu.Lock()
	e := p.entry(userID)
	if e.pending != nil {
		// Reconnected inside the grace window: the user never went offline.
		e.pending.Stop()
		e.pending = nil
		e.gen = p.nextGen()
		e.lastRooms = nil
	}
	if e.rec.Status == domain.StatusOnline {
		p.mu.Unlock()
		return
	}
	e.rec.Status = domain.StatusOnline
	e.rec.Since = p.now()
	rec := e.rec
	p.mu.Unlock()

	p.notify(rec, nil)
}

// ConnectionClosed handles the loss of the user's last live connection.
// lastRooms are the rooms that connection had joined.
func (p *Presence) ConnectionClosed(userID string, lastRooms []string) {
	p.mu.Lock()
	e, ok := p.entries[userID]
	if !ok || e.rec.Status != domain.StatusOnline || e.pending != nil {
		p.mu.Unlock()
		return
	}
	if p.grace <= 0 {
		rec := p.goOfflineLocked(userID, e)
		p.mu.Unlock()
		p.notify(rec, lastRooms)
		return
	}
	e.lastRooms = lastRooms
	e.gen = p.nextGen()
	gen := e.gen
	e.pending = time.AfterFunc(p.grace, func() { p.expire(userID, gen) })
	p.mu.Unlock()
}

func (p *Presence) expire(userID string, gen uint64) {
	p.mu.Lock()
	e, ok := p.entries[userID]
	if !ok || e.gen != gen || e.pending == nil {
		p.mu.Unlock()
		return
	}
	e.pending = nil
	if p.isOnline != nil && p.isOnline(userID) {
		e.lastRooms = nil
		p.mu.Unlock()
		return
	}
	rooms := e.lastRooms
	rec := p.goOfflineLocked(userID, e)
	p.mu.Unlock()

	p.notify(rec, rooms)
}

// goOfflineLocked records the offline transition and drops the entry; an
// absent user already reads as offline.
func (p *Presence) goOfflineLocked(userID string, e *presenceEntry) PresenceRecord {
	e.rec.Status = domain.StatusOffline
	e.rec.Since = p.now()
	delete(p.entries, userID)
	return e.rec
}

// nextGen is tracker-wide so a timer from a dropped entry never matches a
// later entry for the same user.
func (p *Presence) nextGen() uint64 {
	p.seq++
	return p.seq
}

// Status returns the user's current record. Unknown users are offline.
func (p *Presence) Status(userID string) PresenceRecord {
	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok := p.entries[userID]; ok {
		return e.rec
	}
	return PresenceRecord{UserID: userID, Status: domain.StatusOffline}
}

// Stop cancels pending offline transitions without emitting them.
func (p *Presence) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range p.entries {
		if e.pending != nil {
			e.pending.Stop()
			e.pending = nil
			e.gen = p.nextGen()
		}
	}
}
