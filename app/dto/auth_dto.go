package dto

// TokenRequest exchanges a tenant API key for JWT tokens
type TokenRequest struct {
	TenantUUID string `json:"tenant_uuid" validate:"required,uuid4"`
	APIKey     string `json:"api_key" validate:"required,min=16"`
}

// RefreshTokenRequest represents the request to rotate tokens
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// TokenResponse carries issued tokens
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
}
