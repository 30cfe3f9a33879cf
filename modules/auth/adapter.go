package auth

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
)

// Validator resolves a bearer token to a user ID.
type Validator interface {
	Validate(ctx context.Context, token string) (string, error)
}

// Adapter implements Validator over the auth module's services.
type Adapter struct {
	container mono.ServiceContainer
}

// NewAdapter creates an Adapter.
func NewAdapter(container mono.ServiceContainer) *Adapter {
	if container == nil {
		panic("auth: ServiceContainer is nil")
	}
	return &Adapter{container: container}
}

// Validate returns the user ID behind token, or ErrInvalidToken /
// ErrExpiredToken.
func (a *Adapter) Validate(ctx context.Context, token string) (string, error) {
	req := ValidateTokenRequest{Token: token}
	var resp ValidateTokenResponse
	if err := helper.CallRequestReplyService(
		ctx,
		a.container,
		ServiceValidateToken,
		json.Marshal,
		json.Unmarshal,
		&req,
		&resp,
	); err != nil {
		return "", fmt.Errorf("failed to validate token: %w", err)
	}
	return resultFromResponse(resp)
}

func resultFromResponse(resp ValidateTokenResponse) (string, error) {
	if resp.Valid {
		return resp.UserID, nil
	}
	if resp.Reason == ReasonExpired {
		return "", ErrExpiredToken
	}
	return "", ErrInvalidToken
}

// LocalValidator validates tokens in-process with a JWTManager.
type LocalValidator struct {
	jwt *JWTManager
}

// NewLocalValidator creates a LocalValidator.
func NewLocalValidator(jwt *JWTManager) *LocalValidator {
	return &LocalValidator{jwt: jwt}
}

// Validate returns the user ID behind token.
func (v *LocalValidator) Validate(_ context.Context, token string) (string, error) {
	claims, err := v.jwt.ValidateToken(token)
	if err != nil {
		return "", err
	}
	return claims.UserID, nil
}
