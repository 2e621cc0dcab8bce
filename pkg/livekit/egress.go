package livekit

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/medsim-inc/medsim-engine/pkg/config"
)

// Egress status values reported by the media server.
const (
	EgressStarting = "EGRESS_STARTING"
	EgressActive   = "EGRESS_ACTIVE"
	EgressEnding   = "EGRESS_ENDING"
	EgressComplete = "EGRESS_COMPLETE"
	EgressFailed   = "EGRESS_FAILED"
	EgressAborted  = "EGRESS_ABORTED"
)

// EgressClient manages room recordings.
type EgressClient interface {
	// StartRoomRecording begins a composite recording of the room,
	// writing to filepath, and returns the egress descriptor.
	StartRoomRecording(ctx context.Context, roomName, filepath string, audioOnly bool) (*EgressInfo, error)
	// StopEgress requests a stop for an active egress. Stopping an
	// already-finished egress is not an error.
	StopEgress(ctx context.Context, egressID string) (*EgressInfo, error)
	// GetEgress fetches the current state of one egress by id.
	GetEgress(ctx context.Context, egressID string) (*EgressInfo, error)
	// ListEgress lists egresses, optionally filtered by room name.
	ListEgress(ctx context.Context, roomName string) ([]*EgressInfo, error)
}

// EgressInfo is the subset of the server's egress descriptor the engine
// tracks.
type EgressInfo struct {
	EgressID  string       `json:"egress_id"`
	RoomName  string       `json:"room_name"`
	Status    string       `json:"status"`
	StartedAt int64        `json:"started_at,string,omitempty"`
	EndedAt   int64        `json:"ended_at,string,omitempty"`
	Error     string       `json:"error,omitempty"`
	Files     []EgressFile `json:"file_results,omitempty"`
}

// EgressFile describes one produced recording artifact.
type EgressFile struct {
	Filename string `json:"filename"`
	Location string `json:"location,omitempty"`
	Size     int64  `json:"size,string,omitempty"`
	Duration int64  `json:"duration,string,omitempty"`
}

// Finished reports whether the egress has reached a terminal status.
func (e *EgressInfo) Finished() bool {
	switch e.Status {
	case EgressComplete, EgressFailed, EgressAborted:
		return true
	}
	return false
}

type egressClient struct {
	*client
}

// NewEgressClient creates an egress service client.
func NewEgressClient(cfg *config.LiveKitConfig, logger *zap.Logger) EgressClient {
	return &egressClient{client: newClient(cfg, logger)}
}

var egressGrant = &VideoGrant{RoomRecord: true, RoomAdmin: true, RoomList: true}

type roomCompositeRequest struct {
	RoomName  string       `json:"room_name"`
	AudioOnly bool         `json:"audio_only"`
	File      *encodedFile `json:"file,omitempty"`
}

type encodedFile struct {
	Filepath string `json:"filepath"`
}

type stopEgressRequest struct {
	EgressID string `json:"egress_id"`
}

type listEgressRequest struct {
	RoomName string `json:"room_name,omitempty"`
	EgressID string `json:"egress_id,omitempty"`
}

type listEgressResponse struct {
	Items []*EgressInfo `json:"items"`
}

func (ec *egressClient) StartRoomRecording(ctx context.Context, roomName, filepath string, audioOnly bool) (*EgressInfo, error) {
	req := roomCompositeRequest{
		RoomName:  roomName,
		AudioOnly: audioOnly,
		File:      &encodedFile{Filepath: filepath},
	}

	var info EgressInfo
	if err := ec.call(ctx, "Egress", "StartRoomCompositeEgress", egressGrant, req, &info); err != nil {
		return nil, fmt.Errorf("failed to start recording for room %s: %w", roomName, err)
	}

	ec.logger.Info("Recording started",
		zap.String("room", roomName),
		zap.String("egress_id", info.EgressID))

	return &info, nil
}

func (ec *egressClient) StopEgress(ctx context.Context, egressID string) (*EgressInfo, error) {
	var info EgressInfo
	if err := ec.call(ctx, "Egress", "StopEgress", egressGrant, stopEgressRequest{EgressID: egressID}, &info); err != nil {
		// The server rejects stops for egresses that already finished;
		// treat that as success and return the terminal state.
		if IsNotFound(err) {
			return nil, fmt.Errorf("egress %s not found: %w", egressID, err)
		}
		current, getErr := ec.GetEgress(ctx, egressID)
		if getErr == nil && current.Finished() {
			return current, nil
		}
		return nil, fmt.Errorf("failed to stop egress %s: %w", egressID, err)
	}

	ec.logger.Info("Recording stopped",
		zap.String("egress_id", info.EgressID),
		zap.String("status", info.Status))

	return &info, nil
}

func (ec *egressClient) GetEgress(ctx context.Context, egressID string) (*EgressInfo, error) {
	var resp listEgressResponse
	if err := ec.call(ctx, "Egress", "ListEgress", egressGrant, listEgressRequest{EgressID: egressID}, &resp); err != nil {
		return nil, fmt.Errorf("failed to get egress %s: %w", egressID, err)
	}
	if len(resp.Items) == 0 {
		return nil, &APIError{Status: 404, Code: "not_found", Message: fmt.Sprintf("egress %s not found", egressID)}
	}
	return resp.Items[0], nil
}

func (ec *egressClient) ListEgress(ctx context.Context, roomName string) ([]*EgressInfo, error) {
	var resp listEgressResponse
	if err := ec.call(ctx, "Egress", "ListEgress", egressGrant, listEgressRequest{RoomName: roomName}, &resp); err != nil {
		return nil, fmt.Errorf("failed to list egresses: %w", err)
	}
	return resp.Items, nil
}

var _ EgressClient = (*egressClient)(nil)
