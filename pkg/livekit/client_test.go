package livekit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/medsim-inc/medsim-engine/pkg/config"
)

func testLiveKitConfig(serverURL string) *config.LiveKitConfig {
	return &config.LiveKitConfig{
		URL:              serverURL,
		APIKey:           "testkey",
		APISecret:        "testsecret",
		RoomEmptyTimeout: 10 * time.Minute,
		RequestTimeout:   5 * time.Second,
		JoinTokenTTL:     time.Hour,
	}
}

func TestRoomClient_EnsureRoom(t *testing.T) {
	var gotPath string
	var gotReq createRoomRequest
	var gotAuth string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		json.NewEncoder(w).Encode(Room{SID: "RM_abc", Name: gotReq.Name, MaxParticipants: gotReq.MaxParticipants})
	}))
	defer server.Close()

	rc := NewRoomClient(testLiveKitConfig(server.URL), zap.NewNop())

	room, err := rc.EnsureRoom(context.Background(), "visit-u1-123")
	require.NoError(t, err)

	assert.Equal(t, "/twirp/livekit.RoomService/CreateRoom", gotPath)
	assert.True(t, strings.HasPrefix(gotAuth, "Bearer "))
	assert.Equal(t, "visit-u1-123", gotReq.Name)
	assert.Equal(t, uint32(2), gotReq.MaxParticipants)
	assert.Equal(t, uint32(600), gotReq.EmptyTimeout)
	assert.Equal(t, "RM_abc", room.SID)
}

func TestRoomClient_DeleteRoom_NotFoundTolerated(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(twirpError{Code: "not_found", Msg: "room does not exist"})
	}))
	defer server.Close()

	rc := NewRoomClient(testLiveKitConfig(server.URL), zap.NewNop())

	err := rc.DeleteRoom(context.Background(), "gone-room")
	assert.NoError(t, err)
}

func TestEgressClient_StartRoomRecording(t *testing.T) {
	var gotPath string
	var gotReq roomCompositeRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		json.NewEncoder(w).Encode(EgressInfo{EgressID: "EG_123", RoomName: gotReq.RoomName, Status: EgressStarting})
	}))
	defer server.Close()

	ec := NewEgressClient(testLiveKitConfig(server.URL), zap.NewNop())

	info, err := ec.StartRoomRecording(context.Background(), "visit-room", "recordings/visit-room.mp4", true)
	require.NoError(t, err)

	assert.Equal(t, "/twirp/livekit.Egress/StartRoomCompositeEgress", gotPath)
	assert.True(t, gotReq.AudioOnly)
	assert.Equal(t, "visit-room", gotReq.RoomName)
	require.NotNil(t, gotReq.File)
	assert.Equal(t, "recordings/visit-room.mp4", gotReq.File.Filepath)
	assert.Equal(t, "EG_123", info.EgressID)
	assert.False(t, info.Finished())
}

func TestEgressClient_StopEgress_AlreadyFinished(t *testing.T) {
	// StopEgress fails server-side, but ListEgress shows the egress
	// already reached a terminal status: treated as a successful stop.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/StopEgress"):
			w.WriteHeader(http.StatusInternalServerError)
			json.NewEncoder(w).Encode(twirpError{Code: "failed_precondition", Msg: "egress is not active"})
		case strings.HasSuffix(r.URL.Path, "/ListEgress"):
			json.NewEncoder(w).Encode(listEgressResponse{Items: []*EgressInfo{
				{EgressID: "EG_done", Status: EgressComplete},
			}})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	ec := NewEgressClient(testLiveKitConfig(server.URL), zap.NewNop())

	info, err := ec.StopEgress(context.Background(), "EG_done")
	require.NoError(t, err)
	assert.Equal(t, EgressComplete, info.Status)
	assert.True(t, info.Finished())
}

func TestEgressClient_GetEgress_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(listEgressResponse{})
	}))
	defer server.Close()

	ec := NewEgressClient(testLiveKitConfig(server.URL), zap.NewNop())

	_, err := ec.GetEgress(context.Background(), "EG_missing")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestEgressClient_ListEgress_ByRoom(t *testing.T) {
	var gotReq listEgressRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		json.NewEncoder(w).Encode(listEgressResponse{Items: []*EgressInfo{
			{EgressID: "EG_1", RoomName: gotReq.RoomName, Status: EgressActive},
			{EgressID: "EG_2", RoomName: gotReq.RoomName, Status: EgressComplete},
		}})
	}))
	defer server.Close()

	ec := NewEgressClient(testLiveKitConfig(server.URL), zap.NewNop())

	items, err := ec.ListEgress(context.Background(), "visit-room")
	require.NoError(t, err)
	assert.Equal(t, "visit-room", gotReq.RoomName)
	assert.Len(t, items, 2)
}

func TestRoomClient_EnsureRoom_RetriesTransientFailures(t *testing.T) {
	var attempts int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(twirpError{Code: "unavailable", Msg: "room service overloaded"})
			return
		}
		json.NewEncoder(w).Encode(Room{SID: "RM_retry", Name: "visit-room"})
	}))
	defer server.Close()

	rc := NewRoomClient(testLiveKitConfig(server.URL), zap.NewNop())

	room, err := rc.EnsureRoom(context.Background(), "visit-room")
	require.NoError(t, err)
	assert.Equal(t, "RM_retry", room.SID)
	assert.Equal(t, 3, attempts)
}

func TestRoomClient_EnsureRoom_NoRetryOnClientError(t *testing.T) {
	var attempts int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(twirpError{Code: "invalid_argument", Msg: "bad room name"})
	}))
	defer server.Close()

	rc := NewRoomClient(testLiveKitConfig(server.URL), zap.NewNop())

	_, err := rc.EnsureRoom(context.Background(), "")
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.False(t, apiErr.IsRetryable())
	assert.Equal(t, 1, attempts)
}
