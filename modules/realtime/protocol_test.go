package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeEvent(t *testing.T) {
	tests := []struct {
		name  string
		frame string
		want  Event
	}{
		{"setup", `{"type":"setup","token":"abc"}`, SetupEvent{Token: "abc"}},
		{"join", `{"type":"join_chat","room_id":"r1"}`, JoinRoomEvent{RoomID: "r1"}},
		{"join alias", `{"type":"join chat","room_id":" r1 "}`, JoinRoomEvent{RoomID: "r1"}},
		{"leave", `{"type":"leave_chat","room_id":"r1"}`, LeaveRoomEvent{RoomID: "r1"}},
		{"leave alias", `{"type":"leave chat","room_id":"r1"}`, LeaveRoomEvent{RoomID: "r1"}},
		{"typing", `{"type":"typing","room_id":"r1"}`, TypingEvent{RoomID: "r1"}},
		{"stop typing", `{"type":"stop_typing","room_id":"r1"}`, StopTypingEvent{RoomID: "r1"}},
		{"stop typing alias", `{"type":"stop typing","room_id":"r1"}`, StopTypingEvent{RoomID: "r1"}},
		{"send", `{"type":"send_message","room_id":"r1","content":"hi"}`, SendMessageEvent{RoomID: "r1", Content: "hi"}},
		{"send alias", `{"type":"new message","room_id":"r1","content":"hi"}`, SendMessageEvent{RoomID: "r1", Content: "hi"}},
		{"logout", `{"type":"logout"}`, LogoutEvent{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeEvent([]byte(tt.frame))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeEvent_Invalid(t *testing.T) {
	frames := []string{
		`not json`,
		`{}`,
		`{"type":"dance"}`,
		`{"type":"setup"}`,
		`{"type":"join_chat"}`,
		`{"type":"typing","room_id":"   "}`,
		`{"type":"send_message","content":"hi"}`,
	}

	for _, frame := range frames {
		t.Run(frame, func(t *testing.T) {
			_, err := DecodeEvent([]byte(frame))
			assert.ErrorIs(t, err, ErrInvalidEvent)
		})
	}
}

func TestErrorEnvelope(t *testing.T) {
	tests := []struct {
		err  error
		code string
	}{
		{ErrUnauthorized, "unauthorized"},
		{fmt.Errorf("%w: nope", ErrForbidden), "forbidden"},
		{ErrNotAuthenticated, "not_authenticated"},
		{ErrAlreadyAuthenticated, "already_authenticated"},
		{ErrInvalidEvent, "invalid_event"},
		{ErrUnavailable, "unavailable"},
		{ErrRateLimited, "rate_limited"},
		{errors.New("boom"), "internal"},
	}

	for _, tt := range tests {
		env := errorEnvelope(tt.err)
		assert.Equal(t, TypeError, env.Type)
		assert.Equal(t, tt.code, env.Code)
		assert.Equal(t, tt.err.Error(), env.Error)
	}
}

func TestEncodeEnvelopeStampsTime(t *testing.T) {
	data, err := encodeEnvelope(Envelope{Type: TypeTyping, RoomID: "r1", UserID: "alice"})
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "typing", raw["type"])
	assert.NotEmpty(t, raw["timestamp"])
	assert.NotContains(t, raw, "message")
	assert.NotContains(t, raw, "error")
}
