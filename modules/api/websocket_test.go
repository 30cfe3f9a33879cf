package api

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/example/chat-realtime/config"
	domain "github.com/example/chat-realtime/domain/chat"
	"github.com/example/chat-realtime/modules/realtime"
	gws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startServer(t *testing.T, cfg config.Config, chats *memoryChats) *Module {
	t.Helper()

	m := newTestModule(t, cfg, chats)
	require.NoError(t, m.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = m.Stop(ctx)
	})
	return m
}

func dial(t *testing.T, m *Module) *gws.Conn {
	t.Helper()

	_, port, err := net.SplitHostPort(m.Addr())
	require.NoError(t, err)

	ws, _, err := gws.DefaultDialer.Dial("ws://127.0.0.1:"+port+"/ws", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func send(t *testing.T, ws *gws.Conn, frame map[string]any) {
	t.Helper()
	require.NoError(t, ws.WriteJSON(frame))
}

// readUntil reads envelopes until one of type typ arrives.
func readUntil(t *testing.T, ws *gws.Conn, typ string) realtime.Envelope {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for {
		require.NoError(t, ws.SetReadDeadline(deadline))
		var env realtime.Envelope
		require.NoError(t, ws.ReadJSON(&env), "waiting for %q", typ)
		if env.Type == typ {
			return env
		}
	}
}

func setup(t *testing.T, ws *gws.Conn, user string) realtime.Envelope {
	t.Helper()
	send(t, ws, map[string]any{"type": "setup", "token": "token-" + user})
	return readUntil(t, ws, realtime.TypeConnected)
}

func TestWebSocket_ChatRoundTrip(t *testing.T) {
	m := startServer(t, testConfig(), newMemoryChats(map[string][]string{"r1": {"alice", "bob"}}))

	alice := dial(t, m)
	bob := dial(t, m)

	connected := setup(t, alice, "alice")
	assert.Equal(t, "alice", connected.UserID)
	assert.NotEmpty(t, connected.ConnectionID)
	setup(t, bob, "bob")

	send(t, alice, map[string]any{"type": "join_chat", "room_id": "r1"})
	readUntil(t, alice, realtime.TypeJoined)
	send(t, bob, map[string]any{"type": "join chat", "room_id": "r1"})
	joined := readUntil(t, bob, realtime.TypeJoined)
	assert.Equal(t, []string{"alice"}, joined.Online)

	send(t, alice, map[string]any{"type": "typing", "room_id": "r1"})
	typing := readUntil(t, bob, realtime.TypeTyping)
	assert.Equal(t, "alice", typing.UserID)

	send(t, alice, map[string]any{"type": "new message", "room_id": "r1", "content": "hi bob"})
	sent := readUntil(t, alice, realtime.TypeSent)
	require.NotNil(t, sent.Message)

	stopped := readUntil(t, bob, realtime.TypeStopTyping)
	assert.Equal(t, "alice", stopped.UserID)
	msg := readUntil(t, bob, realtime.TypeNewMessage)
	require.NotNil(t, msg.Message)
	assert.Equal(t, "hi bob", msg.Message.Content)
	assert.Equal(t, sent.Message.ID, msg.Message.ID)
}

func TestWebSocket_BadTokenClosesConnection(t *testing.T) {
	m := startServer(t, testConfig(), newMemoryChats(map[string][]string{}))
	ws := dial(t, m)

	send(t, ws, map[string]any{"type": "setup", "token": "garbage"})
	env := readUntil(t, ws, realtime.TypeError)
	assert.Equal(t, "unauthorized", env.Code)

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := ws.ReadMessage()
	assert.Error(t, err)
	assert.Equal(t, 0, m.hub.Stats().Connections)
}

func TestWebSocket_InvalidFrameKeepsConnection(t *testing.T) {
	m := startServer(t, testConfig(), newMemoryChats(map[string][]string{}))
	ws := dial(t, m)

	require.NoError(t, ws.WriteMessage(gws.TextMessage, []byte("not json")))
	env := readUntil(t, ws, realtime.TypeError)
	assert.Equal(t, "invalid_event", env.Code)

	connected := setup(t, ws, "alice")
	assert.Equal(t, "alice", connected.UserID)
}

func TestWebSocket_RateLimited(t *testing.T) {
	cfg := testConfig()
	cfg.MessagesPerSecond = 1
	cfg.MessageBurst = 2
	m := startServer(t, cfg, newMemoryChats(map[string][]string{"r1": {"alice"}}))
	ws := dial(t, m)

	setup(t, ws, "alice")
	send(t, ws, map[string]any{"type": "join_chat", "room_id": "r1"})
	readUntil(t, ws, realtime.TypeJoined)
	for i := 0; i < 5; i++ {
		send(t, ws, map[string]any{"type": "typing", "room_id": "r1"})
	}

	env := readUntil(t, ws, realtime.TypeError)
	assert.Equal(t, "rate_limited", env.Code)
}

func TestWebSocket_DisconnectCleansUp(t *testing.T) {
	m := startServer(t, testConfig(), newMemoryChats(map[string][]string{"r1": {"alice", "bob"}}))

	alice := dial(t, m)
	bob := dial(t, m)
	setup(t, alice, "alice")
	setup(t, bob, "bob")
	send(t, alice, map[string]any{"type": "join_chat", "room_id": "r1"})
	readUntil(t, alice, realtime.TypeJoined)
	send(t, bob, map[string]any{"type": "join_chat", "room_id": "r1"})
	readUntil(t, bob, realtime.TypeJoined)

	require.NoError(t, alice.Close())

	status := readUntil(t, bob, realtime.TypeUserStatus)
	for status.Status != domain.StatusOffline {
		status = readUntil(t, bob, realtime.TypeUserStatus)
	}
	assert.Equal(t, "alice", status.UserID)
	require.Eventually(t, func() bool { return !m.hub.IsOnline("alice") }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"bob"}, m.hub.MembersOf("r1"))
}

type countingPinger struct {
	mu    sync.Mutex
	pings int
	err   error
}

func (p *countingPinger) WriteControl(messageType int, _ []byte, _ time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if messageType == gws.PingMessage {
		p.pings++
	}
	return p.err
}

func (p *countingPinger) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pings
}

func TestKeepAlive_ExitsOnStop(t *testing.T) {
	pinger := &countingPinger{}
	stop := make(chan struct{})
	done := make(chan struct{})
	go keepAlive(pinger, 5*time.Millisecond, stop, done)

	require.Eventually(t, func() bool { return pinger.count() >= 2 }, 2*time.Second, 5*time.Millisecond)
	close(stop)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("keepAlive did not exit after stop")
	}
	pings := pinger.count()
	assert.Never(t, func() bool { return pinger.count() != pings }, 30*time.Millisecond, 5*time.Millisecond)
}

func TestKeepAlive_ExitsOnPingFailure(t *testing.T) {
	pinger := &countingPinger{err: errors.New("broken pipe")}
	stop := make(chan struct{})
	defer close(stop)
	done := make(chan struct{})
	go keepAlive(pinger, 5*time.Millisecond, stop, done)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("keepAlive did not exit after a failed ping")
	}
	assert.Equal(t, 1, pinger.count())
}
