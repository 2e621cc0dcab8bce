package livekit

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// adminIdentity is the identity used on server-to-server API tokens.
const adminIdentity = "medsim-engine"

// VideoGrant is the LiveKit video permission claim.
type VideoGrant struct {
	RoomCreate   bool   `json:"roomCreate,omitempty"`
	RoomList     bool   `json:"roomList,omitempty"`
	RoomAdmin    bool   `json:"roomAdmin,omitempty"`
	RoomRecord   bool   `json:"roomRecord,omitempty"`
	RoomJoin     bool   `json:"roomJoin,omitempty"`
	Room         string `json:"room,omitempty"`
	CanPublish   *bool  `json:"canPublish,omitempty"`
	CanSubscribe *bool  `json:"canSubscribe,omitempty"`
}

// claims is the JWT payload the media server expects: standard claims
// plus the video grant and optional participant metadata.
type claims struct {
	jwt.RegisteredClaims
	Video    *VideoGrant `json:"video,omitempty"`
	Metadata string      `json:"metadata,omitempty"`
}

// mintToken signs a server token: issuer is the API key, subject the
// participant identity.
func mintToken(apiKey, apiSecret, identity, metadata string, grant *VideoGrant, ttl time.Duration) (string, error) {
	if apiKey == "" || apiSecret == "" {
		return "", fmt.Errorf("livekit api key and secret are required")
	}

	now := time.Now()
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    apiKey,
			Subject:   identity,
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Video:    grant,
		Metadata: metadata,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString([]byte(apiSecret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return signed, nil
}

// TokenIssuer mints room join tokens for visit participants.
type TokenIssuer struct {
	apiKey    string
	apiSecret string
	ttl       time.Duration
}

// NewTokenIssuer creates a token issuer from the media server credentials.
func NewTokenIssuer(apiKey, apiSecret string, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{apiKey: apiKey, apiSecret: apiSecret, ttl: ttl}
}

// JoinToken mints a join credential for one participant in one room. The
// metadata string is surfaced to other participants, used to carry the
// participant's role (representative or doctor).
func (ti *TokenIssuer) JoinToken(room, identity, metadata string) (string, error) {
	if room == "" {
		return "", fmt.Errorf("room name is required")
	}
	if identity == "" {
		return "", fmt.Errorf("participant identity is required")
	}

	// Publish and subscribe are granted explicitly rather than left to
	// server defaults; both visit participants speak and listen.
	canMedia := true
	grant := &VideoGrant{
		RoomJoin:     true,
		Room:         room,
		CanPublish:   &canMedia,
		CanSubscribe: &canMedia,
	}
	return mintToken(ti.apiKey, ti.apiSecret, identity, metadata, grant, ti.ttl)
}
