package livekit

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/medsim-inc/medsim-engine/pkg/config"
)

// maxVisitParticipants caps room membership at the rep and the doctor
// agent. Join tokens beyond the cap are rejected by the server.
const maxVisitParticipants = 2

// RoomClient manages media rooms for visits.
type RoomClient interface {
	// EnsureRoom creates the room if it does not exist. Creation is
	// idempotent on the server side, so calling it for an existing room
	// succeeds without side effects.
	EnsureRoom(ctx context.Context, name string) (*Room, error)
	DeleteRoom(ctx context.Context, name string) error
}

// Room is the subset of the server's room descriptor the engine uses.
type Room struct {
	SID             string `json:"sid"`
	Name            string `json:"name"`
	EmptyTimeout    uint32 `json:"empty_timeout"`
	MaxParticipants uint32 `json:"max_participants"`
	NumParticipants uint32 `json:"num_participants"`
	CreationTime    string `json:"creation_time"`
}

type roomClient struct {
	*client
	emptyTimeout uint32
}

// NewRoomClient creates a room service client.
func NewRoomClient(cfg *config.LiveKitConfig, logger *zap.Logger) RoomClient {
	return &roomClient{
		client:       newClient(cfg, logger),
		emptyTimeout: uint32(cfg.RoomEmptyTimeout.Seconds()),
	}
}

type createRoomRequest struct {
	Name            string `json:"name"`
	EmptyTimeout    uint32 `json:"empty_timeout,omitempty"`
	MaxParticipants uint32 `json:"max_participants,omitempty"`
}

type deleteRoomRequest struct {
	Room string `json:"room"`
}

var roomServiceGrant = &VideoGrant{RoomCreate: true, RoomList: true, RoomAdmin: true}

func (rc *roomClient) EnsureRoom(ctx context.Context, name string) (*Room, error) {
	req := createRoomRequest{
		Name:            name,
		EmptyTimeout:    rc.emptyTimeout,
		MaxParticipants: maxVisitParticipants,
	}

	var room Room
	if err := rc.call(ctx, "RoomService", "CreateRoom", roomServiceGrant, req, &room); err != nil {
		return nil, fmt.Errorf("failed to ensure room %s: %w", name, err)
	}

	rc.logger.Debug("Room ensured",
		zap.String("room", room.Name),
		zap.String("sid", room.SID))

	return &room, nil
}

func (rc *roomClient) DeleteRoom(ctx context.Context, name string) error {
	if err := rc.call(ctx, "RoomService", "DeleteRoom", roomServiceGrant, deleteRoomRequest{Room: name}, nil); err != nil {
		if IsNotFound(err) {
			return nil
		}
		return fmt.Errorf("failed to delete room %s: %w", name, err)
	}
	return nil
}

var _ RoomClient = (*roomClient)(nil)
