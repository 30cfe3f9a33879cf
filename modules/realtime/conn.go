package realtime

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-monolith/mono/pkg/types"
	"github.com/google/uuid"
)

// State is the lifecycle state of a connection.
type State int32

const (
	StateConnecting State = iota
	StateAuthenticated
	StateActive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Transport is the send primitive of one live session. WriteMessage may
// block; it is only ever called from the connection's writer goroutine.
type Transport interface {
	WriteMessage(data []byte) error
	Close() error
}

// Conn is one live transport session. Outbound frames go through a bounded
// queue drained by a dedicated writer, so senders never block on the network.
// When the queue is full the oldest frame is dropped.
type Conn struct {
	id        string
	createdAt time.Time
	transport Transport
	logger    types.Logger

	mu     sync.Mutex
	userID string
	state  State

	queue     chan []byte
	drain     chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	drainOnce sync.Once
	exited    chan struct{}

	dropped atomic.Uint64
	failed  atomic.Uint64
}

func newConn(transport Transport, queueSize int, logger types.Logger) *Conn {
	if queueSize <= 0 {
		queueSize = 256
	}
	c := &Conn{
		id:        uuid.New().String(),
		createdAt: time.Now(),
		transport: transport,
		logger:    logger,
		state:     StateConnecting,
		queue:     make(chan []byte, queueSize),
		drain:     make(chan struct{}),
		done:      make(chan struct{}),
		exited:    make(chan struct{}),
	}
	go c.writeLoop()
	return c
}

// ID returns the connection ID.
func (c *Conn) ID() string { return c.id }

// CreatedAt returns when the transport was accepted.
func (c *Conn) CreatedAt() time.Time { return c.createdAt }

// UserID returns the bound user, or "" before setup.
func (c *Conn) UserID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID
}

// State returns the current lifecycle state.
func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Dropped returns how many queued frames were discarded to make room.
func (c *Conn) Dropped() uint64 { return c.dropped.Load() }

// bind moves Connecting -> Authenticated. The user binding never changes.
func (c *Conn) bind(userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case StateConnecting:
		c.userID = userID
		c.state = StateAuthenticated
		return nil
	case StateClosed:
		return ErrConnClosed
	default:
		return ErrAlreadyAuthenticated
	}
}

// activate moves Authenticated -> Active after the first join.
func (c *Conn) activate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateAuthenticated {
		c.state = StateActive
	}
}

// authenticated reports whether the connection may act on rooms.
func (c *Conn) authenticated() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID, c.state == StateAuthenticated || c.state == StateActive
}

// markClosed moves the connection to Closed and returns the previous state.
func (c *Conn) markClosed() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev := c.state
	c.state = StateClosed
	return prev
}

// Enqueue schedules data for delivery without blocking.
func (c *Conn) Enqueue(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateClosed {
		return ErrConnClosed
	}
	for {
		select {
		case c.queue <- data:
			return nil
		default:
		}
		select {
		case <-c.queue:
			c.dropped.Add(1)
		default:
		}
	}
}

// CloseAfterFlush rejects further frames, lets the writer deliver what is
// already queued, then closes the transport.
func (c *Conn) CloseAfterFlush() {
	c.markClosed()
	c.drainOnce.Do(func() { close(c.drain) })
}

// Close stops the writer immediately and closes the transport, aborting any
// in-flight write.
func (c *Conn) Close() error {
	c.markClosed()
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.transport.Close()
	})
	return err
}

// Done is closed once the writer goroutine has exited.
func (c *Conn) Done() <-chan struct{} { return c.exited }

func (c *Conn) writeLoop() {
	defer close(c.exited)
	for {
		select {
		case <-c.done:
			return
		case data := <-c.queue:
			if !c.write(data) {
				return
			}
		case <-c.drain:
			for {
				select {
				case data := <-c.queue:
					if !c.write(data) {
						return
					}
				default:
					_ = c.Close()
					return
				}
			}
		}
	}
}

func (c *Conn) write(data []byte) bool {
	if err := c.transport.WriteMessage(data); err != nil {
		c.failed.Add(1)
		c.logger.Debug("Connection write failed", "connID", c.id, "error", err)
		_ = c.Close()
		return false
	}
	return true
}
