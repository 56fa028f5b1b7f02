package identity

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/promptlab/backend/internal/domain/billing"
	"github.com/promptlab/backend/internal/domain/identity"
	"github.com/promptlab/backend/internal/domain/prompt"
	"github.com/promptlab/backend/internal/domain/shared"
	"github.com/promptlab/backend/internal/infrastructure/auth"
	"github.com/promptlab/backend/internal/infrastructure/logger"
	"go.uber.org/zap"
)

// maxSlugAttempts bounds the numbered suffixes tried before giving up on a tenant slug
const maxSlugAttempts = 50

var (
	ErrInvalidCredentials = shared.NewDomainError("INVALID_CREDENTIALS", "Invalid email or password")
	ErrNoMembership       = shared.NewDomainError(shared.ErrForbidden.Code, "user is not a member of this tenant")
	ErrEmailTaken         = shared.NewDomainError(shared.ErrAlreadyExists.Code, "email is already registered")
)

// AuthService signs users up, in and out
type AuthService struct {
	tx          shared.Transactor
	tenants     identity.TenantRepository
	users       identity.UserRepository
	memberships identity.MembershipRepository
	projects    prompt.ProjectRepository
	jwt         *auth.JWTService
	revoker     auth.TokenRevoker
	logger      *zap.Logger
}

// NewAuthService creates a new AuthService
func NewAuthService(
	tx shared.Transactor,
	tenants identity.TenantRepository,
	users identity.UserRepository,
	memberships identity.MembershipRepository,
	projects prompt.ProjectRepository,
	jwt *auth.JWTService,
	revoker auth.TokenRevoker,
	log *zap.Logger,
) *AuthService {
	return &AuthService{
		tx:          tx,
		tenants:     tenants,
		users:       users,
		memberships: memberships,
		projects:    projects,
		jwt:         jwt,
		revoker:     revoker,
		logger:      log,
	}
}

// Signup creates the user, a tenant on the free plan, the owner membership and the
// tenant's default project in one transaction, then issues a session for the new tenant.
// The session-less request has no tenant in context, so tenant-owned rows are written
// with the new tenant's id set explicitly.
func (s *AuthService) Signup(ctx context.Context, req SignupRequest) (*SessionResponse, error) {
	user, err := identity.NewUser(req.Email, req.Name, req.Password)
	if err != nil {
		return nil, err
	}
	tn, err := identity.NewTenant(req.TenantName, billing.PlanFree)
	if err != nil {
		return nil, err
	}

	var membership *identity.Membership
	err = s.tx.Transaction(ctx, func(ctx context.Context) error {
		if _, err := s.users.FindByEmail(ctx, user.Email); err == nil {
			return ErrEmailTaken
		} else if !errors.Is(err, shared.ErrNotFound) {
			return err
		}
		if err := s.users.Create(ctx, user); err != nil {
			return err
		}

		slug, err := s.uniqueSlug(ctx, tn.Slug)
		if err != nil {
			return err
		}
		tn.Slug = slug
		if err := s.tenants.Create(ctx, tn); err != nil {
			return err
		}

		membership, err = identity.NewMembership(tn.ID, user.ID, identity.RoleOwner)
		if err != nil {
			return err
		}
		if err := s.memberships.Create(ctx, membership); err != nil {
			return err
		}

		project, err := prompt.NewProject(prompt.DefaultProjectName, "")
		if err != nil {
			return err
		}
		project.TenantID = tn.ID
		return s.projects.Create(ctx, project)
	})
	if err != nil {
		return nil, err
	}

	logger.WithLogger(ctx, s.logger).Info("Tenant signed up",
		zap.Uint64("new_tenant_id", tn.ID),
		zap.String("slug", tn.Slug),
		zap.Uint64("owner_id", user.ID),
	)
	return s.session(user, tn, membership.Role)
}

// uniqueSlug returns base, or base with the lowest free numeric suffix
func (s *AuthService) uniqueSlug(ctx context.Context, base string) (string, error) {
	if base == "" {
		base = "tenant"
	}
	candidate := base
	for i := 2; i <= maxSlugAttempts+1; i++ {
		exists, err := s.tenants.ExistsBySlug(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !exists {
			return candidate, nil
		}
		candidate = base + "-" + strconv.Itoa(i)
	}
	return "", shared.NewDomainError(shared.ErrAlreadyExists.Code, fmt.Sprintf("no free slug for %q", base))
}

// Login verifies the password and the membership in the requested tenant
func (s *AuthService) Login(ctx context.Context, req LoginRequest) (*SessionResponse, error) {
	log := logger.WithLogger(ctx, s.logger)

	user, err := s.users.FindByEmail(ctx, identity.NormalizeEmail(req.Email))
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			log.Warn("Login for unknown email")
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !user.VerifyPassword(req.Password) {
		log.Warn("Invalid password attempt", zap.Uint64("login_user_id", user.ID))
		return nil, ErrInvalidCredentials
	}

	membership, err := s.membership(ctx, user.ID, req.TenantID)
	if err != nil {
		return nil, err
	}

	tn, err := s.tenants.FindByID(ctx, membership.TenantID)
	if err != nil {
		return nil, err
	}
	if !tn.IsActive() {
		log.Warn("Login to suspended tenant", zap.Uint64("login_tenant_id", tn.ID))
		return nil, shared.NewDomainError("TENANT_INACTIVE", "tenant is suspended")
	}

	log.Info("User logged in", zap.Uint64("login_user_id", user.ID), zap.Uint64("login_tenant_id", tn.ID))
	return s.session(user, tn, membership.Role)
}

func (s *AuthService) membership(ctx context.Context, userID, tenantID uint64) (*identity.Membership, error) {
	if tenantID != 0 {
		m, err := s.memberships.FindForUser(ctx, tenantID, userID)
		if errors.Is(err, shared.ErrNotFound) {
			return nil, ErrNoMembership
		}
		return m, err
	}

	ms, err := s.memberships.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(ms) == 0 {
		return nil, ErrNoMembership
	}
	return &ms[0], nil
}

// Logout revokes the session token until it would have expired
func (s *AuthService) Logout(ctx context.Context, claims *auth.Claims) error {
	if claims == nil || claims.ID == "" {
		return auth.ErrInvalidToken
	}
	return s.revoker.Revoke(ctx, claims.ID, claims.RemainingTTL())
}

func (s *AuthService) session(user *identity.User, tn *identity.Tenant, role identity.Role) (*SessionResponse, error) {
	token, err := s.jwt.Issue(auth.IssueInput{
		TenantID: tn.ID,
		UserID:   user.ID,
		Email:    user.Email,
		Role:     string(role),
	})
	if err != nil {
		return nil, err
	}
	return &SessionResponse{
		Token:  token,
		User:   ToUserResponse(user),
		Tenant: ToTenantResponse(tn),
		Role:   role,
	}, nil
}
