package auth

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

const maxNameRunes = 20

// Identity is the stamped result of a successful auth.
type Identity struct {
	ID   string
	Name string
	Role string // player | spectator
}

const (
	RolePlayer    = "player"
	RoleSpectator = "spectator"
)

// TokenValidator verifies a bearer token against an account backend.
type TokenValidator interface {
	Validate(ctx context.Context, token string) (*Identity, error)
}

// AuthError is a sentinel error type for the auth package.
type AuthError string

func (e AuthError) Error() string { return string(e) }

const (
	ErrBadToken AuthError = "token validation failed"
	ErrBadName  AuthError = "display name is empty"
)

// Resolver turns an auth payload into a stamped identity. A bearer token
// goes through the validator; otherwise the session is a guest under a
// client-supplied (or freshly minted) id.
type Resolver struct {
	validator TokenValidator
}

// NewResolver creates a resolver. A nil validator disables the token
// path, making every session a guest.
func NewResolver(validator TokenValidator) *Resolver {
	return &Resolver{validator: validator}
}

// Resolve authenticates one session. The requested role is coerced to
// player unless spectator was asked for.
func (r *Resolver) Resolve(ctx context.Context, token, guestID, name, role string) (*Identity, error) {
	name = NormalizeName(name)
	role = CoerceRole(role)

	if token != "" && r.validator != nil {
		identity, err := r.validator.Validate(ctx, token)
		if err != nil {
			return nil, ErrBadToken
		}
		out := *identity
		out.Role = role
		if out.Name == "" {
			out.Name = name
		}
		if out.Name == "" {
			return nil, ErrBadName
		}
		return &out, nil
	}

	if name == "" {
		return nil, ErrBadName
	}
	if guestID == "" {
		guestID = uuid.NewString()
	}
	return &Identity{ID: guestID, Name: name, Role: role}, nil
}

// CoerceRole maps any requested role other than spectator to player.
func CoerceRole(role string) string {
	if role == RoleSpectator {
		return RoleSpectator
	}
	return RolePlayer
}

// NormalizeName trims whitespace and caps the display name at 20 runes.
func NormalizeName(name string) string {
	name = strings.TrimSpace(name)
	runes := []rune(name)
	if len(runes) > maxNameRunes {
		runes = runes[:maxNameRunes]
	}
	return string(runes)
}
