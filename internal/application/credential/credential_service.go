package credential

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/promptlab/backend/internal/domain/provider"
	"github.com/promptlab/backend/internal/domain/shared"
	"github.com/promptlab/backend/internal/infrastructure/logger"
	"go.uber.org/zap"
)

// ErrCredentialUnreadable is returned when a stored key cannot be unsealed
var ErrCredentialUnreadable = shared.NewDomainError("CREDENTIAL_UNREADABLE", "stored credential cannot be read")

// Sealer encrypts secrets at rest
type Sealer interface {
	Seal(plaintext []byte) ([]byte, error)
	Open(sealed []byte) ([]byte, error)
}

// SaveCredentialRequest stores the tenant's API key for a provider
type SaveCredentialRequest struct {
	Provider string `json:"provider" binding:"required,provider"`
	APIKey   string `json:"api_key" binding:"required,min=8,max=512"`
	Label    string `json:"label" binding:"max=100"`
}

// CredentialResponse describes a stored credential without its secret
type CredentialResponse struct {
	Provider  provider.Name `json:"provider"`
	Label     string        `json:"label"`
	Hint      string        `json:"hint"`
	UpdatedAt time.Time     `json:"updated_at"`
}

func toResponse(c *provider.Credential) CredentialResponse {
	return CredentialResponse{Provider: c.Provider, Label: c.Label, Hint: c.Hint, UpdatedAt: c.UpdatedAt}
}

// CredentialService stores provider API keys sealed, one per provider per tenant
type CredentialService struct {
	repo   provider.CredentialRepository
	sealer Sealer
	logger *zap.Logger
}

// NewCredentialService creates a new CredentialService
func NewCredentialService(repo provider.CredentialRepository, sealer Sealer, log *zap.Logger) *CredentialService {
	return &CredentialService{repo: repo, sealer: sealer, logger: log}
}

// Save seals the key and replaces any previous key for the provider
func (s *CredentialService) Save(ctx context.Context, req SaveCredentialRequest) (*CredentialResponse, error) {
	caps, err := provider.Lookup(req.Provider)
	if err != nil {
		return nil, err
	}
	key := strings.TrimSpace(req.APIKey)
	if key == "" {
		return nil, shared.NewDomainError(shared.ErrInvalidInput.Code, "api key is required")
	}

	sealed, err := s.sealer.Seal([]byte(key))
	if err != nil {
		return nil, err
	}
	c := &provider.Credential{
		Provider: caps.Name(),
		Label:    req.Label,
		Sealed:   sealed,
		Hint:     provider.KeyHint(key),
	}
	if err := s.repo.Upsert(ctx, c); err != nil {
		return nil, err
	}

	logger.WithLogger(ctx, s.logger).Info("Provider credential saved",
		zap.String("provider", string(c.Provider)),
		zap.String("hint", c.Hint),
	)
	resp := toResponse(c)
	return &resp, nil
}

// Reveal returns the plaintext key for the provider. Only the executor calls it.
func (s *CredentialService) Reveal(ctx context.Context, name provider.Name) (string, error) {
	c, err := s.repo.FindByProvider(ctx, name)
	if err != nil {
		return "", err
	}
	plain, err := s.sealer.Open(c.Sealed)
	if err != nil {
		logger.WithLogger(ctx, s.logger).Error("Failed to unseal provider credential",
			zap.String("provider", string(name)),
			zap.Error(err),
		)
		return "", fmt.Errorf("%w: %w", ErrCredentialUnreadable, err)
	}
	return string(plain), nil
}

// List returns the stored credentials without secrets
func (s *CredentialService) List(ctx context.Context) ([]CredentialResponse, error) {
	cs, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]CredentialResponse, 0, len(cs))
	for i := range cs {
		out = append(out, toResponse(&cs[i]))
	}
	return out, nil
}
