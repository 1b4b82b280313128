package api

import (
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"github.com/shelfmark/shelfmark-server/internal/relay"
)

// AuthInput is the shared input for operations that take nothing but a
// session token.
type AuthInput struct {
	Authorization string `header:"Authorization"`
}

// MessageResponse is a minimal acknowledgement body.
type MessageResponse struct {
	Message string `json:"message"`
}

// MessageOutput wraps an acknowledgement for huma.
type MessageOutput struct {
	Body MessageResponse
}

// authenticate validates the Authorization header and returns the session's
// owner identity.
func (s *Server) authenticate(authHeader string) (string, error) {
	if authHeader == "" {
		return "", huma.Error401Unauthorized("Missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", huma.Error401Unauthorized("Invalid authorization header format")
	}

	claims, err := s.tokens.VerifyToken(parts[1])
	if err != nil {
		return "", huma.Error401Unauthorized("Invalid or expired token")
	}

	return claims.Identity, nil
}

// resolveOwner authenticates the request and picks the partition to read:
// the caller's own identity unless an explicit owner was requested.
func (s *Server) resolveOwner(authHeader, owner string) (string, error) {
	identity, err := s.authenticate(authHeader)
	if err != nil {
		return "", err
	}
	if owner == "" {
		return identity, nil
	}
	if err := relay.ValidatePublicKey(owner); err != nil {
		return "", huma.Error400BadRequest("Invalid owner identity")
	}
	return owner, nil
}
