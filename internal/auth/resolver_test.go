package auth

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubValidator struct {
	identity *Identity
	err      error
}

func (v *stubValidator) Validate(ctx context.Context, token string) (*Identity, error) {
	return v.identity, v.err
}

func TestResolveGuest(t *testing.T) {
	r := NewResolver(nil)

	identity, err := r.Resolve(context.Background(), "", "guest-123", "  Ana  ", "")
	require.NoError(t, err)
	assert.Equal(t, "guest-123", identity.ID)
	assert.Equal(t, "Ana", identity.Name, "names are trimmed")
	assert.Equal(t, RolePlayer, identity.Role, "the default role is player")
}

func TestResolveGuestMintsMissingID(t *testing.T) {
	r := NewResolver(nil)

	a, err := r.Resolve(context.Background(), "", "", "Ana", "")
	require.NoError(t, err)
	b, err := r.Resolve(context.Background(), "", "", "Ana", "")
	require.NoError(t, err)

	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestResolveRejectsEmptyName(t *testing.T) {
	r := NewResolver(nil)

	_, err := r.Resolve(context.Background(), "", "guest-123", "   ", "")
	assert.ErrorIs(t, err, ErrBadName)
}

func TestResolveRoleCoercion(t *testing.T) {
	r := NewResolver(nil)

	tests := []struct {
		requested string
		want      string
	}{
		{"", RolePlayer},
		{"player", RolePlayer},
		{"spectator", RoleSpectator},
		{"referee", RolePlayer},
	}
	for _, tt := range tests {
		identity, err := r.Resolve(context.Background(), "", "guest-123", "Ana", tt.requested)
		require.NoError(t, err)
		assert.Equal(t, tt.want, identity.Role, "requested %q", tt.requested)
	}
}

func TestResolveToken(t *testing.T) {
	r := NewResolver(&stubValidator{identity: &Identity{ID: "user-9", Name: "Registered"}})

	identity, err := r.Resolve(context.Background(), "bearer-token", "", "ignored", RoleSpectator)
	require.NoError(t, err)
	assert.Equal(t, "user-9", identity.ID)
	assert.Equal(t, "Registered", identity.Name)
	assert.Equal(t, RoleSpectator, identity.Role, "the requested role survives the token path")
}

func TestResolveTokenFallsBackToPayloadName(t *testing.T) {
	r := NewResolver(&stubValidator{identity: &Identity{ID: "user-9"}})

	identity, err := r.Resolve(context.Background(), "bearer-token", "", "Ana", "")
	require.NoError(t, err)
	assert.Equal(t, "Ana", identity.Name)
}

func TestResolveBadToken(t *testing.T) {
	r := NewResolver(&stubValidator{err: errors.New("boom")})

	_, err := r.Resolve(context.Background(), "bearer-token", "", "Ana", "")
	assert.ErrorIs(t, err, ErrBadToken)
}

func TestResolveTokenWithoutValidatorIsGuest(t *testing.T) {
	r := NewResolver(nil)

	identity, err := r.Resolve(context.Background(), "bearer-token", "guest-1", "Ana", "")
	require.NoError(t, err)
	assert.Equal(t, "guest-1", identity.ID, "no validator means the guest path")
}

func TestNormalizeName(t *testing.T) {
	assert.Equal(t, "Ana", NormalizeName("  Ana "))
	assert.Equal(t, "", NormalizeName("   "))

	long := strings.Repeat("x", 30)
	assert.Len(t, []rune(NormalizeName(long)), 20)

	// Rune cap, not byte cap.
	emoji := strings.Repeat("é", 25)
	assert.Len(t, []rune(NormalizeName(emoji)), 20)
}
