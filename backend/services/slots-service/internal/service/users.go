package service

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"chargegrid/backend/services/slots-service/internal/models"
	"chargegrid/backend/services/slots-service/internal/password"
	"chargegrid/backend/services/slots-service/internal/repository"
)

// Dashboard paths returned to clients after login.
const (
	ProviderDashboardPath = "/energy-provider-dashboard"
	OwnerDashboardPath    = "/ev-owner-dashboard"
)

// UserRepository defines storage contract used by the service.
type UserRepository interface {
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	UpdatePasswordHash(ctx context.Context, userID, hash string) error
}

// Session is the result of a successful login.
type Session struct {
	Token     string       `json:"token"`
	TokenType string       `json:"token_type"`
	Dashboard string       `json:"dashboard"`
	User      *models.User `json:"user"`
}

// UserService contains lookup and login logic.
type UserService struct {
	repo      UserRepository
	hasher    password.Hasher
	tokenizer *TokenService
	logger    *zap.Logger
}

// NewUserService builds UserService.
func NewUserService(repo UserRepository, hasher password.Hasher, tokenizer *TokenService, logger *zap.Logger) *UserService {
	return &UserService{
		repo:      repo,
		hasher:    hasher,
		tokenizer: tokenizer,
		logger:    logger.Named("users"),
	}
}

// GetByEmail returns the user registered with email.
func (s *UserService) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, invalid("email is required")
	}

	user, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, classify(ErrNotFound, "get user", err)
		}
		s.logger.Error("failed to fetch user", zap.Error(err))
		return nil, classify(ErrStore, "get user", err)
	}
	return user, nil
}

// Login verifies credentials and issues a JWT.
func (s *UserService) Login(ctx context.Context, email, password string) (*Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	user, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		s.logger.Error("failed to fetch user for login", zap.Error(err))
		return nil, classify(ErrStore, "login", err)
	}

	if err := s.hasher.Compare(user.PasswordHash, password); err != nil {
		return nil, ErrInvalidCredentials
	}
	if s.hasher.NeedsRehash(user.PasswordHash) {
		s.rehash(ctx, user, password)
	}

	token, err := s.tokenizer.GenerateToken(user.ID, user.Role)
	if err != nil {
		return nil, err
	}

	s.logger.Info("user logged in", zap.String("user_id", user.ID), zap.String("role", user.Role))
	return &Session{
		Token:     token,
		TokenType: "Bearer",
		Dashboard: DashboardFor(user.Role),
		User:      user,
	}, nil
}

// rehash stores a hash at the configured cost. Failure leaves the old hash in place.
func (s *UserService) rehash(ctx context.Context, user *models.User, password string) {
	hash, err := s.hasher.Hash(password)
	if err == nil {
		err = s.repo.UpdatePasswordHash(ctx, user.ID, hash)
	}
	if err != nil {
		s.logger.Warn("failed to upgrade password hash", zap.String("user_id", user.ID), zap.Error(err))
		return
	}
	user.PasswordHash = hash
}

// DashboardFor maps a role to its landing page. Unknown roles get none.
func DashboardFor(role string) string {
	switch role {
	case models.RoleEnergyProvider:
		return ProviderDashboardPath
	case models.RoleEVOwner:
		return OwnerDashboardPath
	default:
		return ""
	}
}
