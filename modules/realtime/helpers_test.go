package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	domain "github.com/example/chat-realtime/domain/chat"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/stretchr/testify/require"
)

const waitFor = 2 * time.Second

type mockLogger struct{}

func (m *mockLogger) Debug(_ string, _ ...any)         {}
func (m *mockLogger) Info(_ string, _ ...any)          {}
func (m *mockLogger) Warn(_ string, _ ...any)          {}
func (m *mockLogger) Error(_ string, _ ...any)         {}
func (m *mockLogger) With(_ ...any) types.Logger       { return m }
func (m *mockLogger) WithModule(_ string) types.Logger { return m }
func (m *mockLogger) WithError(_ error) types.Logger   { return m }

// fakeTransport records every frame the writer delivers.
type fakeTransport struct {
	mu     sync.Mutex
	frames [][]byte
	closed bool
	fail   error
	block  chan struct{}
}

func (f *fakeTransport) WriteMessage(data []byte) error {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	f.frames = append(f.frames, append([]byte(nil), data...))
	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeTransport) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeTransport) envelopes() []Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Envelope, 0, len(f.frames))
	for _, data := range f.frames {
		var env Envelope
		if err := json.Unmarshal(data, &env); err == nil {
			out = append(out, env)
		}
	}
	return out
}

func (f *fakeTransport) ofType(typ string) []Envelope {
	var out []Envelope
	for _, env := range f.envelopes() {
		if env.Type == typ {
			out = append(out, env)
		}
	}
	return out
}

func (f *fakeTransport) count(typ string) int {
	return len(f.ofType(typ))
}

// fakeAuth accepts tokens of the form "token-<user>".
type fakeAuth struct{}

var errBadToken = errors.New("bad token")

func (fakeAuth) Validate(_ context.Context, token string) (string, error) {
	userID, ok := strings.CutPrefix(token, "token-")
	if !ok {
		return "", errBadToken
	}
	return userID, nil
}

// fakeStore is an in-memory participant, contact and message store.
type fakeStore struct {
	mu    sync.Mutex
	rooms map[string][]string
	seq   int
}

func newFakeStore(rooms map[string][]string) *fakeStore {
	return &fakeStore{rooms: rooms}
}

func (s *fakeStore) IsParticipant(_ context.Context, userID, roomID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Contains(s.rooms[roomID], userID), nil
}

func (s *fakeStore) ContactsOf(_ context.Context, userID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, users := range s.rooms {
		if !slices.Contains(users, userID) {
			continue
		}
		for _, u := range users {
			if u != userID && !slices.Contains(out, u) {
				out = append(out, u)
			}
		}
	}
	return out, nil
}

func (s *fakeStore) ParticipantsOf(_ context.Context, roomID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	users, ok := s.rooms[roomID]
	if !ok {
		return nil, errors.New("chat not found")
	}
	return slices.Clone(users), nil
}

func (s *fakeStore) PersistMessage(_ context.Context, senderID, roomID, content string) (*domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !slices.Contains(s.rooms[roomID], senderID) {
		return nil, errors.New("not a participant")
	}
	s.seq++
	return &domain.Message{
		ID:        fmt.Sprintf("m%03d", s.seq),
		RoomID:    roomID,
		SenderID:  senderID,
		Content:   content,
		ReadBy:    []string{senderID},
		CreatedAt: time.Now().UTC(),
	}, nil
}

// presenceLog records OnPresence callbacks.
type presenceLog struct {
	mu      sync.Mutex
	records []PresenceRecord
}

func (p *presenceLog) add(rec PresenceRecord) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.records = append(p.records, rec)
}

func (p *presenceLog) statuses(userID string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, rec := range p.records {
		if rec.UserID == userID {
			out = append(out, rec.Status)
		}
	}
	return out
}

func newTestHub(t *testing.T, cfg Config, store *fakeStore) (*Hub, *presenceLog) {
	t.Helper()

	log := &presenceLog{}
	deps := Dependencies{
		Auth:       fakeAuth{},
		OnPresence: log.add,
	}
	if store != nil {
		deps.Participants = store
		deps.Contacts = store
		deps.Roster = store
		deps.Messages = store
	}
	h := NewHub(cfg, deps, &mockLogger{})
	h.Start()
	t.Cleanup(h.Stop)
	return h, log
}

func connect(t *testing.T, h *Hub, userID string) (*Conn, *fakeTransport) {
	t.Helper()

	tr := &fakeTransport{}
	c := h.Accept(tr)
	require.NoError(t, h.HandleEvent(context.Background(), c, SetupEvent{Token: "token-" + userID}))
	require.Eventually(t, func() bool { return tr.count(TypeConnected) == 1 }, waitFor, 5*time.Millisecond)
	return c, tr
}

func join(t *testing.T, h *Hub, c *Conn, tr *fakeTransport, roomID string) {
	t.Helper()

	before := tr.count(TypeJoined)
	require.NoError(t, h.HandleEvent(context.Background(), c, JoinRoomEvent{RoomID: roomID}))
	require.Eventually(t, func() bool { return tr.count(TypeJoined) == before+1 }, waitFor, 5*time.Millisecond)
}

func statusesFor(tr *fakeTransport, userID string) []string {
	var out []string
	for _, env := range tr.ofType(TypeUserStatus) {
		if env.UserID == userID {
			out = append(out, env.Status)
		}
	}
	return out
}
