package realtime

import "sync"

// Membership indexes which connections are joined to which rooms. Joins are
// tracked per connection; reads resolve to users.
type Membership struct {
	mu    sync.RWMutex
	rooms map[string]map[string]string   // roomID -> connID -> userID
	conns map[string]map[string]struct{} // connID -> roomIDs
	users map[string]map[string]int      // userID -> roomID -> joined conns
}

// NewMembership creates an empty index.
func NewMembership() *Membership {
	return &Membership{
		rooms: make(map[string]map[string]string),
		conns: make(map[string]map[string]struct{}),
		users: make(map[string]map[string]int),
	}
}

// Join records that connID (owned by userID) is active in roomID. It reports
// true when userID was not in the room through any connection before.
func (m *Membership) Join(userID, connID, roomID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	members, ok := m.rooms[roomID]
	if !ok {
		members = make(map[string]string)
		m.rooms[roomID] = members
	}
	if _, ok := members[connID]; ok {
		return false
	}
	members[connID] = userID

	rooms, ok := m.conns[connID]
	if !ok {
		rooms = make(map[string]struct{})
		m.conns[connID] = rooms
	}
	rooms[roomID] = struct{}{}

	counts, ok := m.users[userID]
	if !ok {
		counts = make(map[string]int)
		m.users[userID] = counts
	}
	counts[roomID]++
	return counts[roomID] == 1
}

// Leave removes connID from roomID. It reports whether anything changed.
func (m *Membership) Leave(connID, roomID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.leaveLocked(connID, roomID)
}

// LeaveAll removes connID from every room and returns the rooms it had joined.
func (m *Membership) LeaveAll(connID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	rooms := m.conns[connID]
	out := make([]string, 0, len(rooms))
	for roomID := range rooms {
		out = append(out, roomID)
	}
	for _, roomID := range out {
		m.leaveLocked(connID, roomID)
	}
	return out
}

func (m *Membership) leaveLocked(connID, roomID string) bool {
	members, ok := m.rooms[roomID]
	if !ok {
		return false
	}
	userID, ok := members[connID]
	if !ok {
		return false
	}

	delete(members, connID)
	if len(members) == 0 {
		delete(m.rooms, roomID)
	}

	if rooms := m.conns[connID]; rooms != nil {
		delete(rooms, roomID)
		if len(rooms) == 0 {
			delete(m.conns, connID)
		}
	}

	if counts := m.users[userID]; counts != nil {
		counts[roomID]--
		if counts[roomID] <= 0 {
			delete(counts, roomID)
		}
		if len(counts) == 0 {
			delete(m.users, userID)
		}
	}
	return true
}

// MembersOf returns the distinct users joined to roomID.
func (m *Membership) MembersOf(roomID string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	members := m.rooms[roomID]
	seen := make(map[string]struct{}, len(members))
	out := make([]string, 0, len(members))
	for _, userID := range members {
		if _, ok := seen[userID]; ok {
			continue
		}
		seen[userID] = struct{}{}
		out = append(out, userID)
	}
	return out
}

// RoomsOf returns the rooms connID has joined.
func (m *Membership) RoomsOf(connID string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rooms := m.conns[connID]
	out := make([]string, 0, len(rooms))
	for roomID := range rooms {
		out = append(out, roomID)
	}
	return out
}

// RoomsOfUser returns the rooms any of the user's connections has joined.
func (m *Membership) RoomsOfUser(userID string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counts := m.users[userID]
	out := make([]string, 0, len(counts))
	for roomID := range counts {
		out = append(out, roomID)
	}
	return out
}

// IsJoined reports whether connID has joined roomID.
func (m *Membership) IsJoined(connID, roomID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.conns[connID][roomID]
	return ok
}

// RoomCount returns the number of non-empty rooms.
func (m *Membership) RoomCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rooms)
}
