package businessflow

import (
	"context"
	"log"

	"github.com/google/uuid"
	"github.com/postlane/postlane/app/dto"
	"github.com/postlane/postlane/app/services"
	"github.com/postlane/postlane/repository"
	"github.com/postlane/postlane/utils"
	"golang.org/x/crypto/bcrypt"
)

// AuthFlow exchanges tenant API keys for JWT tokens used by the API surface.
type AuthFlow interface {
	ExchangeAPIKey(ctx context.Context, req *dto.TokenRequest, metadata *ClientMetadata) (*dto.TokenResponse, error)
	RefreshToken(ctx context.Context, req *dto.RefreshTokenRequest, metadata *ClientMetadata) (*dto.TokenResponse, error)
}

type AuthFlowImpl struct {
	tenantRepo   repository.TenantRepository
	tokenService services.TokenService
	logger       *log.Logger
}

func NewAuthFlow(tenantRepo repository.TenantRepository, tokenService services.TokenService, logger *log.Logger) AuthFlow {
	if logger == nil {
		logger = log.Default()
	}
	return &AuthFlowImpl{
		tenantRepo:   tenantRepo,
		tokenService: tokenService,
		logger:       logger,
	}
}

// ExchangeAPIKey verifies the API key against the stored bcrypt hash and
// issues access/refresh tokens. Lookup failures and bad keys produce the
// same error so the endpoint does not leak tenant existence.
func (f *AuthFlowImpl) ExchangeAPIKey(ctx context.Context, req *dto.TokenRequest, metadata *ClientMetadata) (*dto.TokenResponse, error) {
	id, err := uuid.Parse(req.TenantUUID)
	if err != nil {
		return nil, NewBusinessError("INVALID_CREDENTIALS", "Invalid tenant credentials", ErrTenantNotFound)
	}
	tenant, err := f.tenantRepo.ByUUID(ctx, id)
	if err != nil {
		return nil, NewBusinessError("TENANT_LOOKUP_FAILED", "Failed to look up tenant", err)
	}
	if tenant == nil || !tenant.IsActive {
		return nil, NewBusinessError("INVALID_CREDENTIALS", "Invalid tenant credentials", ErrTenantNotFound)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(tenant.APIKeyHash), []byte(req.APIKey)); err != nil {
		f.logger.Printf("auth: api key mismatch for tenant %d from %s", tenant.ID, metadata.IPAddress)
		return nil, NewBusinessError("INVALID_CREDENTIALS", "Invalid tenant credentials", ErrTenantNotFound)
	}

	access, refresh, err := f.tokenService.GenerateTokens(tenant.ID)
	if err != nil {
		return nil, NewBusinessError("TOKEN_GENERATION_FAILED", "Failed to generate tokens", err)
	}
	return &dto.TokenResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int(utils.AccessTokenTTL.Seconds()),
	}, nil
}

// RefreshToken rotates the token pair using a valid refresh token.
func (f *AuthFlowImpl) RefreshToken(ctx context.Context, req *dto.RefreshTokenRequest, metadata *ClientMetadata) (*dto.TokenResponse, error) {
	access, refresh, err := f.tokenService.RefreshToken(req.RefreshToken)
	if err != nil {
		return nil, NewBusinessError("INVALID_REFRESH_TOKEN", "Refresh token is invalid or expired", err)
	}
	return &dto.TokenResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int(utils.AccessTokenTTL.Seconds()),
	}, nil
}
