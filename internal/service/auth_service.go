package service

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/token-manager/internal/auth"
	"github.com/spec-kit/token-manager/internal/config"
	"github.com/spec-kit/token-manager/internal/domain"
	"github.com/spec-kit/token-manager/internal/repository"
	apperrors "github.com/spec-kit/token-manager/pkg/util/errorutil"
)

// AuthService coordinates operator login, logout and account management.
type AuthService struct {
	users       repository.UserRepository
	tokenMgr    *auth.TokenManager
	attempts    auth.AttemptStore
	revocations auth.RevocationStore
	logger      *zap.Logger
	bcryptCost  int
	maxAttempts int
	lockout     time.Duration
	now         func() time.Time
}

// AuthDependencies encapsulates collaborators for the auth service.
type AuthDependencies struct {
	UserRepo     repository.UserRepository
	TokenManager *auth.TokenManager
	Attempts     auth.AttemptStore
	Revocations  auth.RevocationStore
	Logger       *zap.Logger
}

// CreateUserInput describes a new operator account.
type CreateUserInput struct {
	Username    string
	Email       *string
	Password    string
	IsSuperuser bool
}

// NewAuthService builds the service.
func NewAuthService(cfg config.AuthConfig, deps AuthDependencies) *AuthService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	tokenMgr := deps.TokenManager
	if tokenMgr == nil {
		tokenMgr = auth.NewTokenManager(cfg.JWTSecret, cfg.AccessTokenTTLMinutes)
	}
	maxAttempts := cfg.MaxLoginAttempts
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &AuthService{
		users:       deps.UserRepo,
		tokenMgr:    tokenMgr,
		attempts:    deps.Attempts,
		revocations: deps.Revocations,
		logger:      logger,
		bcryptCost:  cfg.BcryptCost,
		maxAttempts: maxAttempts,
		lockout:     cfg.LockoutDuration(),
		now:         time.Now,
	}
}

// Login verifies credentials and issues a session. Usernames with too many
// recent failures are rejected until the lockout window passes.
func (s *AuthService) Login(ctx context.Context, username, password string) (*domain.Session, *domain.User, error) {
	username = strings.TrimSpace(username)
	if err := s.checkLockout(ctx, username); err != nil {
		return nil, nil, err
	}

	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if apperrors.IsNotFound(err) {
			s.recordFailure(ctx, username)
			return nil, nil, apperrors.NewUnauthorized("invalid username or password")
		}
		return nil, nil, err
	}
	if err := auth.ComparePassword(user.PasswordHash, password); err != nil {
		s.recordFailure(ctx, username)
		return nil, nil, apperrors.NewUnauthorized("invalid username or password")
	}
	if !user.IsActive {
		return nil, nil, apperrors.NewForbidden("user is inactive")
	}

	s.resetFailures(ctx, username)
	session, err := s.tokenMgr.Issue(user)
	if err != nil {
		return nil, nil, err
	}
	s.logger.Info("operator logged in", zap.String("user_id", user.ID), zap.String("session_id", session.ID))
	return session, user, nil
}

// Logout revokes the session until its natural expiry.
func (s *AuthService) Logout(ctx context.Context, session *domain.Session) error {
	if session == nil || s.revocations == nil {
		return nil
	}
	ttl := session.ExpiresAt.Sub(s.now())
	if err := s.revocations.Revoke(ctx, session.ID, ttl); err != nil {
		return apperrors.NewInternalError(err)
	}
	s.logger.Info("operator logged out", zap.String("user_id", session.UserID), zap.String("session_id", session.ID))
	return nil
}

// CreateUser adds an operator account.
func (s *AuthService) CreateUser(ctx context.Context, input CreateUserInput) (*domain.User, error) {
	username := strings.TrimSpace(input.Username)
	if username == "" || input.Password == "" {
		return nil, apperrors.NewValidationError("username and password are required", nil)
	}

	if _, err := s.users.GetByUsername(ctx, username); err == nil {
		return nil, apperrors.NewConflict("username already registered", map[string]any{"username": username})
	} else if !apperrors.IsNotFound(err) {
		return nil, err
	}

	hash, err := auth.HashPassword(input.Password, s.bcryptCost)
	if err != nil {
		return nil, err
	}
	user := &domain.User{
		Username:     username,
		Email:        input.Email,
		PasswordHash: hash,
		IsActive:     true,
		IsSuperuser:  input.IsSuperuser,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if apperrors.IsUniqueViolation(err) {
			return nil, apperrors.NewConflict("username or email already registered", nil)
		}
		return nil, err
	}
	return user, nil
}

// SeedAdmin creates the configured superuser when it does not exist yet.
func (s *AuthService) SeedAdmin(ctx context.Context, admin config.AdminConfig) error {
	if strings.TrimSpace(admin.Username) == "" || admin.Password == "" {
		s.logger.Warn("ADMIN_PASSWORD not provided; skipping admin seed")
		return nil
	}
	if _, err := s.users.GetByUsername(ctx, admin.Username); err == nil {
		return nil
	} else if !apperrors.IsNotFound(err) {
		return err
	}

	var email *string
	if admin.Email != "" {
		email = &admin.Email
	}
	user, err := s.CreateUser(ctx, CreateUserInput{
		Username:    admin.Username,
		Email:       email,
		Password:    admin.Password,
		IsSuperuser: true,
	})
	if err != nil {
		return err
	}
	s.logger.Info("admin account created", zap.String("user_id", user.ID), zap.String("username", user.Username))
	return nil
}

// TokenManager exposes the underlying token manager for middleware usage.
func (s *AuthService) TokenManager() *auth.TokenManager {
	return s.tokenMgr
}

func (s *AuthService) checkLockout(ctx context.Context, username string) error {
	if s.attempts == nil {
		return nil
	}
	failures, remaining, err := s.attempts.Failures(ctx, username)
	if err != nil {
		s.logger.Warn("login attempt store unavailable", zap.Error(err))
		return nil
	}
	if failures < s.maxAttempts {
		return nil
	}
	if remaining <= 0 {
		remaining = s.lockout
	}
	return apperrors.NewTooManyRequests("too many failed login attempts", map[string]any{
		"retry_after_seconds": int(remaining.Seconds()),
	})
}

func (s *AuthService) recordFailure(ctx context.Context, username string) {
	if s.attempts == nil {
		return
	}
	count, err := s.attempts.RecordFailure(ctx, username, s.lockout)
	if err != nil {
		s.logger.Warn("login attempt store unavailable", zap.Error(err))
		return
	}
	if count >= s.maxAttempts {
		s.logger.Warn("username locked out", zap.String("username", username), zap.Duration("lockout", s.lockout))
	}
}

func (s *AuthService) resetFailures(ctx context.Context, username string) {
	if s.attempts == nil {
		return
	}
	if err := s.attempts.Reset(ctx, username); err != nil {
		s.logger.Warn("login attempt store unavailable", zap.Error(err))
	}
}
