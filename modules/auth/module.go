package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
	"github.com/go-monolith/mono/pkg/types"
)

// Module validates bearer tokens for the rest of the application.
type Module struct {
	jwt    *JWTManager
	logger types.Logger
}

// Compile-time interface checks.
var (
	_ mono.Module                = (*Module)(nil)
	_ mono.ServiceProviderModule = (*Module)(nil)
	_ mono.HealthCheckableModule = (*Module)(nil)
)

// NewModule creates an auth module.
func NewModule(config JWTConfig, logger types.Logger) *Module {
	return &Module{
		jwt:    NewJWTManager(config),
		logger: logger,
	}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "auth"
}

// RegisterServices registers request-reply services in the service container.
func (m *Module) RegisterServices(container mono.ServiceContainer) error {
	if err := helper.RegisterTypedRequestReplyService(
		container,
		ServiceValidateToken,
		json.Unmarshal,
		json.Marshal,
		m.validateToken,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceValidateToken, err)
	}

	m.logger.Info("Registered auth services", "services", []string{ServiceValidateToken})
	return nil
}

func (m *Module) validateToken(_ context.Context, req ValidateTokenRequest, _ *mono.Msg) (ValidateTokenResponse, error) {
	claims, err := m.jwt.ValidateToken(req.Token)
	if err != nil {
		reason := ReasonInvalid
		if errors.Is(err, ErrExpiredToken) {
			reason = ReasonExpired
		}
		return ValidateTokenResponse{Valid: false, Reason: reason}, nil
	}
	return ValidateTokenResponse{Valid: true, UserID: claims.UserID}, nil
}

// Manager exposes the JWT manager.
func (m *Module) Manager() *JWTManager {
	return m.jwt
}

// Start starts the module.
func (m *Module) Start(_ context.Context) error {
	m.logger.Info("Auth module started", "issuer", m.jwt.config.Issuer)
	return nil
}

// Stop stops the module.
func (m *Module) Stop(_ context.Context) error {
	m.logger.Info("Auth module stopped")
	return nil
}

// Health returns the health status.
func (m *Module) Health(_ context.Context) mono.HealthStatus {
	return mono.HealthStatus{
		Healthy: m.jwt.config.SecretKey != "",
		Message: "operational",
	}
}
