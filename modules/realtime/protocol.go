package realtime

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	domain "github.com/example/chat-realtime/domain/chat"
)

// Outbound event types.
const (
	TypeConnected  = "connected"
	TypeJoined     = "joined"
	TypeLeft       = "left"
	TypeNewMessage = "new_message"
	TypeSent       = "message_sent"
	TypeTyping     = "typing"
	TypeStopTyping = "stop_typing"
	TypeUserStatus = "user_status"
	TypeChatUpdate = "chat_updated"
	TypeError      = "error"
)

// Inbound event types.
const (
	InSetup       = "setup"
	InJoinChat    = "join_chat"
	InLeaveChat   = "leave_chat"
	InTyping      = "typing"
	InStopTyping  = "stop_typing"
	InSendMessage = "send_message"
	InLogout      = "logout"
)

// inboundAliases accepts the event names older socket clients emit.
var inboundAliases = map[string]string{
	"join chat":   InJoinChat,
	"leave chat":  InLeaveChat,
	"stop typing": InStopTyping,
	"new message": InSendMessage,
}

// Envelope is the JSON frame sent to clients.
type Envelope struct {
	Type         string          `json:"type"`
	RoomID       string          `json:"room_id,omitempty"`
	UserID       string          `json:"user_id,omitempty"`
	ConnectionID string          `json:"connection_id,omitempty"`
	Status       string          `json:"status,omitempty"`
	Message      *domain.Message `json:"message,omitempty"`
	MessageID    string          `json:"message_id,omitempty"`
	Online       []string        `json:"online,omitempty"`
	Code         string          `json:"code,omitempty"`
	Error        string          `json:"error,omitempty"`
	Timestamp    time.Time       `json:"timestamp"`
}

// Event is a validated inbound client event.
type Event interface {
	Type() string
}

// SetupEvent binds the connection to the user behind Token.
type SetupEvent struct{ Token string }

// JoinRoomEvent makes the connection active in a room.
type JoinRoomEvent struct{ RoomID string }

// LeaveRoomEvent removes the connection from a room.
type LeaveRoomEvent struct{ RoomID string }

// TypingEvent marks the user as typing in a room.
type TypingEvent struct{ RoomID string }

// StopTypingEvent clears the user's typing state in a room.
type StopTypingEvent struct{ RoomID string }

// SendMessageEvent persists a message and fans it out.
type SendMessageEvent struct {
	RoomID  string
	Content string
}

// LogoutEvent closes the connection.
type LogoutEvent struct{}

func (SetupEvent) Type() string       { return InSetup }
func (JoinRoomEvent) Type() string    { return InJoinChat }
func (LeaveRoomEvent) Type() string   { return InLeaveChat }
func (TypingEvent) Type() string      { return InTyping }
func (StopTypingEvent) Type() string  { return InStopTyping }
func (SendMessageEvent) Type() string { return InSendMessage }
func (LogoutEvent) Type() string      { return InLogout }

type inboundFrame struct {
	Type    string `json:"type"`
	Token   string `json:"token"`
	RoomID  string `json:"room_id"`
	Content string `json:"content"`
}

// DecodeEvent parses and validates one inbound frame.
func DecodeEvent(data []byte) (Event, error) {
	var f inboundFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: malformed frame", ErrInvalidEvent)
	}

	typ := strings.TrimSpace(f.Type)
	if alias, ok := inboundAliases[typ]; ok {
		typ = alias
	}
	roomID := strings.TrimSpace(f.RoomID)

	needRoom := func() error {
		if roomID == "" {
			return fmt.Errorf("%w: room_id is required for %s", ErrInvalidEvent, typ)
		}
		return nil
	}

	switch typ {
	case InSetup:
		if f.Token == "" {
			return nil, fmt.Errorf("%w: token is required for setup", ErrInvalidEvent)
		}
		return SetupEvent{Token: f.Token}, nil
	case InJoinChat:
		if err := needRoom(); err != nil {
			return nil, err
		}
		return JoinRoomEvent{RoomID: roomID}, nil
	case InLeaveChat:
		if err := needRoom(); err != nil {
			return nil, err
		}
		return LeaveRoomEvent{RoomID: roomID}, nil
	case InTyping:
		if err := needRoom(); err != nil {
			return nil, err
		}
		return TypingEvent{RoomID: roomID}, nil
	case InStopTyping:
		if err := needRoom(); err != nil {
			return nil, err
		}
		return StopTypingEvent{RoomID: roomID}, nil
	case InSendMessage:
		if err := needRoom(); err != nil {
			return nil, err
		}
		return SendMessageEvent{RoomID: roomID, Content: f.Content}, nil
	case InLogout:
		return LogoutEvent{}, nil
	case "":
		return nil, fmt.Errorf("%w: type is required", ErrInvalidEvent)
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidEvent, f.Type)
	}
}

func encodeEnvelope(env Envelope) ([]byte, error) {
	if env.Timestamp.IsZero() {
		env.Timestamp = time.Now().UTC()
	}
	return json.Marshal(env)
}

func errorEnvelope(err error) Envelope {
	return Envelope{
		Type:  TypeError,
		Code:  errorCode(err),
		Error: err.Error(),
	}
}
