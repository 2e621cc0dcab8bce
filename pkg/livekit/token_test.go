package livekit

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenIssuer_JoinToken(t *testing.T) {
	issuer := NewTokenIssuer("APIkey123", "secretsecret", 2*time.Hour)

	signed, err := issuer.JoinToken("visit-room-1", "user-42", `{"role":"representative"}`)
	require.NoError(t, err)

	var parsed claims
	token, err := jwt.ParseWithClaims(signed, &parsed, func(t *jwt.Token) (any, error) {
		return []byte("secretsecret"), nil
	})
	require.NoError(t, err)
	require.True(t, token.Valid)

	assert.Equal(t, "APIkey123", parsed.Issuer)
	assert.Equal(t, "user-42", parsed.Subject)
	assert.Equal(t, `{"role":"representative"}`, parsed.Metadata)

	require.NotNil(t, parsed.Video)
	assert.True(t, parsed.Video.RoomJoin)
	assert.Equal(t, "visit-room-1", parsed.Video.Room)
	assert.False(t, parsed.Video.RoomAdmin)
	require.NotNil(t, parsed.Video.CanPublish)
	assert.True(t, *parsed.Video.CanPublish)
	require.NotNil(t, parsed.Video.CanSubscribe)
	assert.True(t, *parsed.Video.CanSubscribe)

	require.NotNil(t, parsed.ExpiresAt)
	ttl := time.Until(parsed.ExpiresAt.Time)
	assert.InDelta(t, (2 * time.Hour).Seconds(), ttl.Seconds(), 60)
}

func TestTokenIssuer_JoinToken_Validation(t *testing.T) {
	issuer := NewTokenIssuer("key", "secret", time.Hour)

	_, err := issuer.JoinToken("", "user-1", "")
	assert.Error(t, err)

	_, err = issuer.JoinToken("room", "", "")
	assert.Error(t, err)
}

func TestMintToken_RequiresCredentials(t *testing.T) {
	_, err := mintToken("", "", "id", "", nil, time.Minute)
	assert.Error(t, err)
}

func TestHTTPBaseURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"ws://localhost:7880", "http://localhost:7880"},
		{"wss://media.example.com", "https://media.example.com"},
		{"http://localhost:7880/", "http://localhost:7880"},
		{"https://media.example.com", "https://media.example.com"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, httpBaseURL(tt.in), tt.in)
	}
}
