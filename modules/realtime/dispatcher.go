package realtime

import (
	"fmt"
	"hash/fnv"
	"sync"

	domain "github.com/example/chat-realtime/domain/chat"
	"github.com/go-monolith/mono/pkg/types"
)

const roomStripes = 64

// DispatchResult counts the outcome of one fan-out.
type DispatchResult struct {
	Delivered int `json:"delivered"`
	Failed    int `json:"failed"`
}

// Dispatcher resolves rooms and users to live connections and enqueues
// frames on them. Frames for one room are enqueued under that room's stripe
// lock, so every recipient sees a room's events in dispatch order.
type Dispatcher struct {
	registry   *Registry
	membership *Membership
	logger     types.Logger
	stripes    [roomStripes]sync.Mutex
}

// NewDispatcher creates a dispatcher over the given indexes.
func NewDispatcher(registry *Registry, membership *Membership, logger types.Logger) *Dispatcher {
	return &Dispatcher{
		registry:   registry,
		membership: membership,
		logger:     logger,
	}
}

func (d *Dispatcher) stripe(roomID string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(roomID))
	return &d.stripes[h.Sum32()%roomStripes]
}

// Dispatch delivers an already persisted message to every live connection of
// every member of roomID except senderConnID.
func (d *Dispatcher) Dispatch(msg domain.Message, roomID, senderConnID string) (DispatchResult, error) {
	data, err := encodeEnvelope(Envelope{
		Type:      TypeNewMessage,
		RoomID:    roomID,
		UserID:    msg.SenderID,
		Message:   &msg,
		Timestamp: msg.CreatedAt,
	})
	if err != nil {
		return DispatchResult{}, fmt.Errorf("failed to encode message: %w", err)
	}
	return d.toRoom(roomID, data, func(c *Conn) bool { return c.ID() == senderConnID }), nil
}

// BroadcastRoom delivers env to the room's members, skipping every connection
// of exceptUserID.
func (d *Dispatcher) BroadcastRoom(roomID string, env Envelope, exceptUserID string) DispatchResult {
	data, err := encodeEnvelope(env)
	if err != nil {
		d.logger.Error("Failed to encode broadcast", "type", env.Type, "error", err)
		return DispatchResult{}
	}
	return d.toRoom(roomID, data, func(c *Conn) bool { return c.UserID() == exceptUserID })
}

// SendToUsers delivers env to every live connection of the given users.
func (d *Dispatcher) SendToUsers(userIDs []string, env Envelope) DispatchResult {
	data, err := encodeEnvelope(env)
	if err != nil {
		d.logger.Error("Failed to encode broadcast", "type", env.Type, "error", err)
		return DispatchResult{}
	}

	var targets []*Conn
	seen := make(map[string]struct{})
	for _, userID := range userIDs {
		for _, c := range d.registry.ConnectionsFor(userID) {
			if _, ok := seen[c.ID()]; ok {
				continue
			}
			seen[c.ID()] = struct{}{}
			targets = append(targets, c)
		}
	}
	return d.deliver(targets, data)
}

// SendOutsideRoom delivers env to every live connection of the given users
// who have no connection joined to roomID, except senderConnID.
func (d *Dispatcher) SendOutsideRoom(roomID string, userIDs []string, env Envelope, senderConnID string) DispatchResult {
	joined := make(map[string]struct{})
	for _, userID := range d.membership.MembersOf(roomID) {
		joined[userID] = struct{}{}
	}

	var targets []*Conn
	seen := make(map[string]struct{})
	for _, userID := range userIDs {
		if _, ok := joined[userID]; ok {
			continue
		}
		for _, c := range d.registry.ConnectionsFor(userID) {
			if _, ok := seen[c.ID()]; ok || c.ID() == senderConnID {
				continue
			}
			seen[c.ID()] = struct{}{}
			targets = append(targets, c)
		}
	}
	if len(targets) == 0 {
		return DispatchResult{}
	}

	data, err := encodeEnvelope(env)
	if err != nil {
		d.logger.Error("Failed to encode broadcast", "type", env.Type, "error", err)
		return DispatchResult{}
	}
	return d.deliver(targets, data)
}

// SendTo delivers env to a single connection.
func (d *Dispatcher) SendTo(c *Conn, env Envelope) error {
	data, err := encodeEnvelope(env)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", env.Type, err)
	}
	return c.Enqueue(data)
}

func (d *Dispatcher) toRoom(roomID string, data []byte, skip func(*Conn) bool) DispatchResult {
	mu := d.stripe(roomID)
	mu.Lock()
	defer mu.Unlock()

	var targets []*Conn
	seen := make(map[string]struct{})
	for _, userID := range d.membership.MembersOf(roomID) {
		for _, c := range d.registry.ConnectionsFor(userID) {
			if _, ok := seen[c.ID()]; ok {
				continue
			}
			seen[c.ID()] = struct{}{}
			if skip(c) {
				continue
			}
			targets = append(targets, c)
		}
	}
	return d.deliver(targets, data)
}

func (d *Dispatcher) deliver(targets []*Conn, data []byte) DispatchResult {
	var res DispatchResult
	for _, c := range targets {
		if err := c.Enqueue(data); err != nil {
			res.Failed++
			d.logger.Debug("Delivery failed", "connID", c.ID(), "error", err)
			continue
		}
		res.Delivered++
	}
	return res
}
