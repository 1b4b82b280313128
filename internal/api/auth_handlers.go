package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
)

func (s *Server) registerAuthRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "setup",
		Method:      http.MethodPost,
		Path:        "/api/v1/auth/setup",
		Summary:     "Initial device setup",
		Description: "Sets the device password. Can only be called before a password exists.",
		Tags:        []string{"Authentication"},
	}, s.handleSetup)

	huma.Register(s.api, huma.Operation{
		OperationID: "login",
		Method:      http.MethodPost,
		Path:        "/api/v1/auth/login",
		Summary:     "Login",
		Description: "Verifies the device password and returns a session token.",
		Tags:        []string{"Authentication"},
	}, s.handleLogin)

	huma.Register(s.api, huma.Operation{
		OperationID: "change-password",
		Method:      http.MethodPost,
		Path:        "/api/v1/auth/password",
		Summary:     "Change device password",
		Tags:        []string{"Authentication"},
	}, s.handleChangePassword)

	huma.Register(s.api, huma.Operation{
		OperationID: "whoami",
		Method:      http.MethodGet,
		Path:        "/api/v1/auth/whoami",
		Summary:     "Current identity",
		Description: "Returns the public identity this server publishes as.",
		Tags:        []string{"Authentication"},
	}, s.handleWhoami)
}

// === DTOs ===

// SetupRequest is the request body for initial device setup.
type SetupRequest struct {
	Password string `json:"password" validate:"required,min=8,max=1024" doc:"Device password"`
}

// SetupInput wraps the setup request for huma.
type SetupInput struct {
	Body SetupRequest
}

// LoginRequest is the request body for login.
type LoginRequest struct {
	Password string `json:"password" validate:"required,max=1024" doc:"Device password"`
}

// LoginInput wraps the login request for huma.
type LoginInput struct {
	Body     LoginRequest
	RemoteIP string `header:"X-Real-IP"`
}

// TokenResponse carries a freshly issued session token.
type TokenResponse struct {
	Token     string `json:"token" doc:"PASETO session token"`
	ExpiresIn int64  `json:"expires_in" doc:"Token lifetime in seconds"`
	Identity  string `json:"identity" doc:"Owner public identity"`
}

// TokenOutput wraps the token response for huma.
type TokenOutput struct {
	Body TokenResponse
}

// ChangePasswordRequest is the request body for a password change.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required,max=1024" doc:"Current device password"`
	NewPassword     string `json:"new_password" validate:"required,min=8,max=1024" doc:"New device password"`
}

// ChangePasswordInput wraps the change request for huma.
type ChangePasswordInput struct {
	Authorization string `header:"Authorization"`
	Body          ChangePasswordRequest
}

// WhoamiInput wraps the whoami request for huma.
type WhoamiInput struct {
	Authorization string `header:"Authorization"`
}

// WhoamiResponse reports the owner identity and setup state.
type WhoamiResponse struct {
	Identity      string `json:"identity" doc:"Owner public identity"`
	SetupRequired bool   `json:"setup_required" doc:"True until a device password is set"`
}

// WhoamiOutput wraps the whoami response for huma.
type WhoamiOutput struct {
	Body WhoamiResponse
}

// === Handlers ===

func (s *Server) handleSetup(_ context.Context, input *SetupInput) (*TokenOutput, error) {
	if err := s.validator.Validate(input.Body); err != nil {
		return nil, err
	}
	if s.password.IsSet() {
		return nil, huma.Error409Conflict("Device password is already configured")
	}

	if err := s.password.SetPassword("", input.Body.Password); err != nil {
		return nil, err
	}

	s.logger.Info("device password configured")
	return s.issueToken()
}

func (s *Server) handleLogin(_ context.Context, input *LoginInput) (*TokenOutput, error) {
	if err := s.validator.Validate(input.Body); err != nil {
		return nil, err
	}

	if !s.limiter.Allow("login:" + input.RemoteIP) {
		return nil, huma.Error429TooManyRequests("Too many login attempts, slow down")
	}

	ok, err := s.password.Verify(input.Body.Password)
	if err != nil {
		return nil, err
	}
	if !ok {
		s.logger.Warn("failed login attempt", "remote_ip", input.RemoteIP)
		return nil, huma.Error401Unauthorized("Incorrect password")
	}

	return s.issueToken()
}

func (s *Server) handleChangePassword(_ context.Context, input *ChangePasswordInput) (*TokenOutput, error) {
	if _, err := s.authenticate(input.Authorization); err != nil {
		return nil, err
	}
	if err := s.validator.Validate(input.Body); err != nil {
		return nil, err
	}

	if err := s.password.SetPassword(input.Body.CurrentPassword, input.Body.NewPassword); err != nil {
		return nil, err
	}

	s.logger.Info("device password changed")
	return s.issueToken()
}

func (s *Server) handleWhoami(_ context.Context, _ *WhoamiInput) (*WhoamiOutput, error) {
	// Unauthenticated on purpose: the client needs to know whether setup
	// is required before it can log in at all.
	return &WhoamiOutput{Body: WhoamiResponse{
		Identity:      s.services.Identity.PublicKey(),
		SetupRequired: !s.password.IsSet(),
	}}, nil
}

func (s *Server) issueToken() (*TokenOutput, error) {
	identity := s.services.Identity.PublicKey()
	token, err := s.tokens.GenerateToken(identity)
	if err != nil {
		return nil, err
	}
	return &TokenOutput{Body: TokenResponse{
		Token:     token,
		ExpiresIn: int64(s.tokens.TokenDuration().Seconds()),
		Identity:  identity,
	}}, nil
}
