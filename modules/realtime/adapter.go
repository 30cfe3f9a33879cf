package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
)

// StatePort exposes read-only live state to other modules.
type StatePort interface {
	PresenceOf(ctx context.Context, userID string) (*PresenceOfResponse, error)
	RoomState(ctx context.Context, roomID string) (*RoomStateResponse, error)
}

// Adapter implements StatePort over the realtime module's services.
type Adapter struct {
	container mono.ServiceContainer
}

// NewAdapter creates an Adapter.
func NewAdapter(container mono.ServiceContainer) StatePort {
	if container == nil {
		panic("realtime: ServiceContainer is nil")
	}
	return &Adapter{container: container}
}

// PresenceOf returns the presence record of userID.
func (a *Adapter) PresenceOf(ctx context.Context, userID string) (*PresenceOfResponse, error) {
	req := PresenceOfRequest{UserID: userID}
	var resp PresenceOfResponse
	if err := helper.CallRequestReplyService(
		ctx,
		a.container,
		ServicePresenceOf,
		json.Marshal,
		json.Unmarshal,
		&req,
		&resp,
	); err != nil {
		return nil, fmt.Errorf("failed to get presence: %w", err)
	}
	return &resp, nil
}

// RoomState returns the users joined to and typing in roomID.
func (a *Adapter) RoomState(ctx context.Context, roomID string) (*RoomStateResponse, error) {
	req := RoomStateRequest{RoomID: roomID}
	var resp RoomStateResponse
	if err := helper.CallRequestReplyService(
		ctx,
		a.container,
		ServiceRoomState,
		json.Marshal,
		json.Unmarshal,
		&req,
		&resp,
	); err != nil {
		return nil, fmt.Errorf("failed to get room state: %w", err)
	}
	return &resp, nil
}
