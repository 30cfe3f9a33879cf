package realtime

// Service names registered by the realtime module.
const (
	ServicePresenceOf = "presence-of"
	ServiceRoomState  = "room-state"
)

// PresenceOfRequest asks for a user's presence.
type PresenceOfRequest struct {
	UserID string `json:"user_id"`
}

// PresenceOfResponse carries a user's presence.
type PresenceOfResponse struct {
	Record      PresenceRecord `json:"record"`
	Connections int            `json:"connections"`
}

// RoomStateRequest asks for the live state of a room.
type RoomStateRequest struct {
	RoomID string `json:"room_id"`
}

// RoomStateResponse carries the users joined to and typing in a room.
type RoomStateResponse struct {
	RoomID  string   `json:"room_id"`
	Members []string `json:"members"`
	Typing  []string `json:"typing"`
}
