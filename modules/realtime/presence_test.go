package realtime

import (
	"sync"
	"testing"
	"time"

	domain "github.com/example/chat-realtime/domain/chat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type notifications struct {
	mu    sync.Mutex
	recs  []PresenceRecord
	rooms [][]string
}

func (n *notifications) notify(rec PresenceRecord, rooms []string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.recs = append(n.recs, rec)
	n.rooms = append(n.rooms, rooms)
}

func (n *notifications) len() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.recs)
}

func (n *notifications) statuses() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.recs))
	for i, rec := range n.recs {
		out[i] = rec.Status
	}
	return out
}

type onlineSet struct {
	mu    sync.Mutex
	users map[string]bool
}

func (o *onlineSet) set(userID string, online bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.users[userID] = online
}

func (o *onlineSet) isOnline(userID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.users[userID]
}

func TestPresence_ImmediateWithoutGrace(t *testing.T) {
	n := &notifications{}
	p := NewPresence(0, nil, n.notify)

	p.ConnectionOpened("alice")
	p.ConnectionOpened("alice")
	assert.Equal(t, domain.StatusOnline, p.Status("alice").Status)

	p.ConnectionClosed("alice", []string{"r1"})
	p.ConnectionClosed("alice", []string{"r1"})

	assert.Equal(t, []string{domain.StatusOnline, domain.StatusOffline}, n.statuses())
	assert.Equal(t, []string{"r1"}, n.rooms[1])
	assert.Equal(t, domain.StatusOffline, p.Status("alice").Status)
}

func TestPresence_UnknownUserIsOffline(t *testing.T) {
	p := NewPresence(0, nil, nil)
	rec := p.Status("ghost")
	assert.Equal(t, "ghost", rec.UserID)
	assert.Equal(t, domain.StatusOffline, rec.Status)
}

func TestPresence_ReconnectInsideGrace(t *testing.T) {
	const grace = 100 * time.Millisecond
	n := &notifications{}
	online := &onlineSet{users: map[string]bool{}}
	p := NewPresence(grace, online.isOnline, n.notify)
	defer p.Stop()

	online.set("alice", true)
	p.ConnectionOpened("alice")

	online.set("alice", false)
	p.ConnectionClosed("alice", nil)
	time.Sleep(grace / 4)
	online.set("alice", true)
	p.ConnectionOpened("alice")

	assert.Never(t, func() bool { return n.len() > 1 }, 3*grace, 10*time.Millisecond)
	assert.Equal(t, domain.StatusOnline, p.Status("alice").Status)
}

func TestPresence_OfflineAfterGrace(t *testing.T) {
	const grace = 50 * time.Millisecond
	n := &notifications{}
	online := &onlineSet{users: map[string]bool{}}
	p := NewPresence(grace, online.isOnline, n.notify)
	defer p.Stop()

	online.set("alice", true)
	p.ConnectionOpened("alice")
	online.set("alice", false)
	p.ConnectionClosed("alice", []string{"r1", "r2"})

	assert.Equal(t, domain.StatusOnline, p.Status("alice").Status)
	require.Eventually(t, func() bool { return n.len() == 2 }, waitFor, 5*time.Millisecond)
	assert.Equal(t, []string{domain.StatusOnline, domain.StatusOffline}, n.statuses())
	assert.ElementsMatch(t, []string{"r1", "r2"}, n.rooms[1])
	assert.Never(t, func() bool { return n.len() > 2 }, 3*grace, 10*time.Millisecond)
}

func TestPresence_ExpiryRechecksLiveness(t *testing.T) {
	const grace = 30 * time.Millisecond
	n := &notifications{}
	online := &onlineSet{users: map[string]bool{}}
	p := NewPresence(grace, online.isOnline, n.notify)
	defer p.Stop()

	online.set("alice", true)
	p.ConnectionOpened("alice")
	// The close report arrives while another connection is still registered.
	p.ConnectionClosed("alice", nil)

	assert.Never(t, func() bool { return n.len() > 1 }, 4*grace, 10*time.Millisecond)
	assert.Equal(t, domain.StatusOnline, p.Status("alice").Status)
}

func TestPresence_StopCancelsPending(t *testing.T) {
	const grace = 30 * time.Millisecond
	n := &notifications{}
	p := NewPresence(grace, func(string) bool { return false }, n.notify)

	p.ConnectionOpened("alice")
	p.ConnectionClosed("alice", nil)
	p.Stop()

	assert.Never(t, func() bool { return n.len() > 1 }, 4*grace, 10*time.Millisecond)
}

func TestPresence_OfflineUsersAreForgotten(t *testing.T) {
	n := &notifications{}
	p := NewPresence(0, nil, n.notify)

	for _, user := range []string{"alice", "bob", "carol"} {
		p.ConnectionOpened(user)
		p.ConnectionClosed(user, nil)
	}
	p.ConnectionClosed("dave", nil)

	p.mu.Lock()
	assert.Empty(t, p.entries)
	p.mu.Unlock()
	assert.Equal(t, 6, n.len())
	assert.Equal(t, domain.StatusOffline, p.Status("alice").Status)

	p.ConnectionOpened("alice")
	assert.Equal(t, domain.StatusOnline, p.Status("alice").Status)
	assert.Equal(t, 7, n.len())
}

func TestPresence_GraceExpiryForgetsUser(t *testing.T) {
	const grace = 20 * time.Millisecond
	n := &notifications{}
	p := NewPresence(grace, func(string) bool { return false }, n.notify)
	defer p.Stop()

	p.ConnectionOpened("alice")
	p.ConnectionClosed("alice", nil)
	require.Eventually(t, func() bool { return n.len() == 2 }, waitFor, 5*time.Millisecond)

	p.mu.Lock()
	defer p.mu.Unlock()
	assert.NotContains(t, p.entries, "alice")
}
