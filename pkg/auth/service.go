package auth

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// Common authentication errors.
var (
	ErrMissingAuthorization = errors.New("missing authorization")
	ErrInvalidAuthFormat    = errors.New("invalid authorization header format")
	ErrInvalidServiceToken  = errors.New("invalid service token")
)

// ServiceTokenHeader carries the doctor-agent worker's credential on
// calls to the engine's internal endpoints.
const ServiceTokenHeader = "X-Service-Token"

// AuthService defines the interface for authentication operations.
// This abstraction enables clean separation between HTTP handling and
// authentication logic, making both easier to test.
type AuthService interface {
	// ValidateRequest extracts and validates a Bearer JWT from the
	// request's Authorization header. Returns the validated claims and
	// the raw token string, or an error.
	ValidateRequest(r *http.Request) (*Claims, string, error)

	// ValidateServiceToken checks the worker service-token header.
	ValidateServiceToken(r *http.Request) error
}

// authService implements AuthService.
type authService struct {
	jwksClient   JWKSClientInterface
	serviceToken string
	logger       *zap.Logger
}

// NewAuthService creates a new AuthService. serviceToken may be empty in
// local development, which disables the service-token check.
func NewAuthService(jwksClient JWKSClientInterface, serviceToken string, logger *zap.Logger) AuthService {
	return &authService{
		jwksClient:   jwksClient,
		serviceToken: serviceToken,
		logger:       logger,
	}
}

// ValidateRequest extracts and validates a JWT from the request.
func (s *authService) ValidateRequest(r *http.Request) (*Claims, string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		s.logger.Debug("No JWT found in request",
			zap.String("path", r.URL.Path),
			zap.String("method", r.Method))
		return nil, "", ErrMissingAuthorization
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		s.logger.Debug("Invalid Authorization header format",
			zap.String("path", r.URL.Path))
		return nil, "", ErrInvalidAuthFormat
	}
	tokenString := parts[1]

	claims, err := s.jwksClient.ValidateToken(tokenString)
	if err != nil {
		s.logger.Debug("JWT validation failed",
			zap.Error(err),
			zap.String("path", r.URL.Path))
		return nil, "", err
	}

	return claims, tokenString, nil
}

// ValidateServiceToken checks the worker service-token header.
func (s *authService) ValidateServiceToken(r *http.Request) error {
	if s.serviceToken == "" {
		s.logger.Warn("Service token check disabled (no token configured)",
			zap.String("path", r.URL.Path))
		return nil
	}

	provided := r.Header.Get(ServiceTokenHeader)
	if subtle.ConstantTimeCompare([]byte(provided), []byte(s.serviceToken)) != 1 {
		return ErrInvalidServiceToken
	}
	return nil
}

// Ensure authService implements AuthService at compile time.
var _ AuthService = (*authService)(nil)
