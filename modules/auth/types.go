package auth

// ServiceValidateToken is the request-reply service that validates tokens.
const ServiceValidateToken = "validate-token"

// Rejection reasons carried in ValidateTokenResponse.
const (
	ReasonInvalid = "invalid"
	ReasonExpired = "expired"
)

// ValidateTokenRequest carries a bearer token.
type ValidateTokenRequest struct {
	Token string `json:"token"`
}

// ValidateTokenResponse carries the token's user or why it was rejected.
type ValidateTokenResponse struct {
	Valid  bool   `json:"valid"`
	UserID string `json:"user_id,omitempty"`
	Reason string `json:"reason,omitempty"`
}
