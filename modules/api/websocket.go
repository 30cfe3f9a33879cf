package api

import (
	"context"
	"time"

	"github.com/example/chat-realtime/modules/realtime"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"golang.org/x/time/rate"
)

// Websocket keepalive settings.
const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = (pongWait * 9) / 10
	maxFrameSize = 32 * 1024
)

// wsTransport adapts a websocket connection to realtime.Transport. Only the
// connection's writer goroutine calls WriteMessage.
type wsTransport struct {
	conn *websocket.Conn
}

func (t *wsTransport) WriteMessage(data []byte) error {
	if err := t.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

func (t *wsTransport) Close() error {
	return t.conn.Close()
}

func (m *Module) websocketHandler() fiber.Handler {
	return websocket.New(m.serveWebSocket, websocket.Config{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
	})
}

// serveWebSocket runs the read loop of one websocket session. Frames are
// decoded at this boundary and routed through the hub.
func (m *Module) serveWebSocket(c *websocket.Conn) {
	conn := m.hub.Accept(&wsTransport{conn: c})
	limiter := newLimiter(m.cfg.MessagesPerSecond, m.cfg.MessageBurst)

	stop := make(chan struct{})
	pingDone := make(chan struct{})
	defer func() {
		close(stop)
		<-pingDone
		// Let a pending close-after-flush deliver its error frame first.
		if conn.State() == realtime.StateClosed {
			select {
			case <-conn.Done():
			case <-time.After(writeWait):
			}
		}
		m.hub.OnDisconnect(conn)
		<-conn.Done()
	}()

	c.SetReadLimit(maxFrameSize)
	_ = c.SetReadDeadline(time.Now().Add(pongWait))
	c.SetPongHandler(func(string) error {
		return c.SetReadDeadline(time.Now().Add(pongWait))
	})
	go keepAlive(c, pingPeriod, stop, pingDone)

	ctx := context.Background()
	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				m.logger.Debug("WebSocket read failed", "connID", conn.ID(), "error", err)
			}
			return
		}
		_ = c.SetReadDeadline(time.Now().Add(pongWait))

		if !limiter.Allow() {
			m.hub.Reject(conn, realtime.ErrRateLimited)
			continue
		}

		ev, err := realtime.DecodeEvent(data)
		if err != nil {
			m.hub.Reject(conn, err)
			continue
		}
		_ = m.hub.HandleEvent(ctx, conn, ev)

		if conn.State() == realtime.StateClosed {
			return
		}
	}
}

// newLimiter returns the per-connection inbound frame limiter. A
// non-positive rate disables limiting.
func newLimiter(perSecond float64, burst int) *rate.Limiter {
	if perSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}

// controlWriter is the part of a websocket connection keepAlive uses.
type controlWriter interface {
	WriteControl(messageType int, data []byte, deadline time.Time) error
}

// keepAlive pings the peer until stop is closed or a ping fails, then closes
// done. The session must not release the connection before done is closed.
func keepAlive(c controlWriter, period time.Duration, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := c.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
