package realtime

import (
	"sync"
	"time"
)

type typingFunc func(roomID, userID string)

// Typing holds per-room ephemeral typing state. Entries expire after the
// timeout unless refreshed; a sweeper removes expired entries and reports
// each one through onStop.
//
// onStart and onStop run with the mutex held so broadcasts follow the order
// of the state changes. They must not block or call back into Typing.
type Typing struct {
	mu      sync.Mutex
	timeout time.Duration
	sweep   time.Duration
	entries map[string]map[string]time.Time // roomID -> userID -> expiry
	onStart typingFunc
	onStop  typingFunc
	now     func() time.Time

	stopCh chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

// NewTyping creates a coordinator. Call Start to run the sweeper.
func NewTyping(timeout, sweep time.Duration, onStart, onStop typingFunc) *Typing {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	if sweep <= 0 {
		sweep = time.Second
	}
	if onStart == nil {
		onStart = func(string, string) {}
	}
	if onStop == nil {
		onStop = func(string, string) {}
	}
	return &Typing{
		timeout: timeout,
		sweep:   sweep,
		entries: make(map[string]map[string]time.Time),
		onStart: onStart,
		onStop:  onStop,
		now:     time.Now,
		stopCh:  make(chan struct{}),
	}
}

// SetTyping inserts or refreshes the entry. onStart fires only when the user
// was not already typing in the room.
func (t *Typing) SetTyping(roomID, userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	users, ok := t.entries[roomID]
	if !ok {
		users = make(map[string]time.Time)
		t.entries[roomID] = users
	}
	expiry, existed := users[userID]
	started := !existed || !now.Before(expiry)
	users[userID] = now.Add(t.timeout)

	if started {
		t.onStart(roomID, userID)
	}
	return started
}

// ClearTyping removes the entry. onStop fires only if an entry was removed,
// so repeated clears broadcast once.
func (t *Typing) ClearTyping(roomID, userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	cleared := t.removeLocked(roomID, userID)
	if cleared {
		t.onStop(roomID, userID)
	}
	return cleared
}

// ClearUser removes the user's entries in every room and returns those rooms.
func (t *Typing) ClearUser(userID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var rooms []string
	for roomID, users := range t.entries {
		if _, ok := users[userID]; ok {
			rooms = append(rooms, roomID)
		}
	}
	for _, roomID := range rooms {
		t.removeLocked(roomID, userID)
		t.onStop(roomID, userID)
	}
	return rooms
}

func (t *Typing) removeLocked(roomID, userID string) bool {
	users, ok := t.entries[roomID]
	if !ok {
		return false
	}
	if _, ok := users[userID]; !ok {
		return false
	}
	delete(users, userID)
	if len(users) == 0 {
		delete(t.entries, roomID)
	}
	return true
}

// IsTyping reports whether userID has an unexpired entry in roomID.
func (t *Typing) IsTyping(roomID, userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	expiry, ok := t.entries[roomID][userID]
	return ok && t.now().Before(expiry)
}

// TypingIn returns the users with unexpired entries in roomID.
func (t *Typing) TypingIn(roomID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	var out []string
	for userID, expiry := range t.entries[roomID] {
		if now.Before(expiry) {
			out = append(out, userID)
		}
	}
	return out
}

// Start runs the expiry sweeper until Stop.
func (t *Typing) Start() {
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		ticker := time.NewTicker(t.sweep)
		defer ticker.Stop()
		for {
			select {
			case <-t.stopCh:
				return
			case <-ticker.C:
				t.Sweep()
			}
		}
	}()
}

// Stop halts the sweeper and waits for it to exit.
func (t *Typing) Stop() {
	t.once.Do(func() { close(t.stopCh) })
	t.wg.Wait()
}

// Sweep removes every expired entry and reports it through onStop.
func (t *Typing) Sweep() int {
	type expired struct{ roomID, userID string }

	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	var gone []expired
	for roomID, users := range t.entries {
		for userID, expiry := range users {
			if !now.Before(expiry) {
				gone = append(gone, expired{roomID, userID})
			}
		}
	}
	for _, e := range gone {
		t.removeLocked(e.roomID, e.userID)
		t.onStop(e.roomID, e.userID)
	}
	return len(gone)
}
