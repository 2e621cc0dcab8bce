package auth

import (
	"context"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrincipalFromContext(t *testing.T) {
	userID := uuid.New()

	tests := []struct {
		name     string
		claims   *Claims
		wantRole string
		wantErr  bool
	}{
		{
			name: "rep with explicit role",
			claims: &Claims{
				RegisteredClaims: jwt.RegisteredClaims{Subject: userID.String()},
				Role:             RoleRep,
			},
			wantRole: RoleRep,
		},
		{
			name: "missing role defaults to rep",
			claims: &Claims{
				RegisteredClaims: jwt.RegisteredClaims{Subject: userID.String()},
			},
			wantRole: RoleRep,
		},
		{
			name: "trainer",
			claims: &Claims{
				RegisteredClaims: jwt.RegisteredClaims{Subject: userID.String()},
				Role:             RoleTrainer,
			},
			wantRole: RoleTrainer,
		},
		{
			name:    "missing subject",
			claims:  &Claims{Role: RoleRep},
			wantErr: true,
		},
		{
			name: "non-uuid subject",
			claims: &Claims{
				RegisteredClaims: jwt.RegisteredClaims{Subject: "bob"},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.WithValue(context.Background(), ClaimsKey, tt.claims)
			p, err := PrincipalFromContext(ctx)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, userID, p.UserID)
			assert.Equal(t, tt.wantRole, p.Role)
		})
	}
}

func TestPrincipalFromContext_NoClaims(t *testing.T) {
	_, err := PrincipalFromContext(context.Background())
	assert.Error(t, err)
}

func TestPrincipal_Elevated(t *testing.T) {
	assert.True(t, Principal{Role: RoleAdmin}.Elevated())
	assert.True(t, Principal{Role: RoleTrainer}.Elevated())
	assert.True(t, Principal{Role: RoleManager}.Elevated())
	assert.False(t, Principal{Role: RoleRep}.Elevated())
	assert.False(t, Principal{Role: ""}.Elevated())
}
