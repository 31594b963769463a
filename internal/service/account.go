package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/gymrank/internal/config"
	"github.com/gymrank/internal/domain"
	"github.com/gymrank/internal/ranking"
)

// AccountRepo is the persistence surface the account service needs
type AccountRepo interface {
	CreateUser(ctx context.Context, req *domain.RegisterRequest, passwordHash string) (*domain.User, error)
	GetUser(ctx context.Context, username string) (*domain.User, error)
	GetCredentials(ctx context.Context, username string) (*domain.User, string, error)
	TouchLastLogin(ctx context.Context, username string) error
	UpdateProfile(ctx context.Context, req *domain.UpdateProfileRequest) (*domain.User, error)
	FindUserForReset(ctx context.Context, identifier string) (string, string, error)
	UpsertResetToken(ctx context.Context, username, tokenHash string, expiresAt time.Time) error
	ConsumeResetToken(ctx context.Context, tokenHash string) (string, error)
	UpdatePassword(ctx context.Context, username, passwordHash string) error
}

// AccountService handles registration, login, profile updates and password
// resets. Passwords are stored as bcrypt hashes; reset tokens are stored as
// SHA-256 digests so a leaked table cannot be replayed.
type AccountService struct {
	repo    AccountRepo
	engine  *ranking.Engine
	mailer  Mailer // optional
	auth    *config.AuthConfig
	baseURL string
	logger  *slog.Logger
}

// NewAccountService creates an AccountService. mailer may be nil; reset
// requests are then recorded but no email leaves the process.
func NewAccountService(repo AccountRepo, engine *ranking.Engine, mailer Mailer, auth *config.AuthConfig, baseURL string, logger *slog.Logger) *AccountService {
	return &AccountService{
		repo:    repo,
		engine:  engine,
		mailer:  mailer,
		auth:    auth,
		baseURL: baseURL,
		logger:  logger,
	}
}

// Register creates a new account
func (s *AccountService) Register(ctx context.Context, req *domain.RegisterRequest) (*domain.User, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if len(req.Password) < s.auth.MinPasswordLength {
		return nil, domain.Validationf("password must be at least %d characters", s.auth.MinPasswordLength)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.auth.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	user, err := s.repo.CreateUser(ctx, req, string(hash))
	if err != nil {
		return nil, err
	}

	// Seed the baseline ELO into the mirror.
	if _, err := s.engine.RecomputeElo(ctx, user.Username); err != nil {
		s.logger.Warn("initial elo compute failed", "username", user.Username, "error", err)
	}

	s.logger.Info("user registered", "username", user.Username)
	return user, nil
}

// Login verifies credentials. Unknown usernames and wrong passwords are
// indistinguishable to the caller.
func (s *AccountService) Login(ctx context.Context, username, password string) (*domain.User, error) {
	if username == "" || password == "" {
		return nil, domain.Validationf("username and password are required")
	}

	user, hash, err := s.repo.GetCredentials(ctx, username)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrBadCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return nil, domain.ErrBadCredentials
	}

	if err := s.repo.TouchLastLogin(ctx, username); err != nil {
		s.logger.Warn("failed to record login time", "username", username, "error", err)
	}
	return user, nil
}

// UpdateProfile applies profile changes and, on a rename, carries the
// mirrored ELO score over to the new username.
func (s *AccountService) UpdateProfile(ctx context.Context, req *domain.UpdateProfileRequest) (*domain.User, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	user, err := s.repo.UpdateProfile(ctx, req)
	if err != nil {
		return nil, err
	}

	if req.Username != req.NewUsername {
		s.engine.OnUserRenamed(ctx, req.Username, req.NewUsername)
		// The recompute re-anchors the stored score and the mirror under the
		// new name even if the member rename raced a rebuild.
		if _, err := s.engine.RecomputeElo(ctx, req.NewUsername); err != nil {
			s.logger.Warn("post-rename elo recompute failed", "username", req.NewUsername, "error", err)
		}
		s.logger.Info("user renamed", "old", req.Username, "new", req.NewUsername)
	}
	return user, nil
}

// RequestPasswordReset issues a reset token for the account matching the
// identifier (username or email). The response never discloses whether the
// account exists.
func (s *AccountService) RequestPasswordReset(ctx context.Context, identifier string) error {
	if identifier == "" {
		return domain.Validationf("username or email is required")
	}

	username, email, err := s.repo.FindUserForReset(ctx, identifier)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil
		}
		return err
	}
	if email == "" {
		s.logger.Info("reset requested for account without email", "username", username)
		return nil
	}

	token, err := newResetToken()
	if err != nil {
		return err
	}

	expiresAt := time.Now().Add(s.auth.ResetTokenTTL)
	if err := s.repo.UpsertResetToken(ctx, username, hashToken(token), expiresAt); err != nil {
		return err
	}

	if s.mailer == nil {
		s.logger.Info("reset token issued, email disabled", "username", username)
		return nil
	}

	resetURL := fmt.Sprintf("%s/reset-password?token=%s", s.baseURL, token)
	if err := s.mailer.SendPasswordReset(ctx, email, username, resetURL); err != nil {
		// The token stays valid; the user can retry the request.
		s.logger.Error("reset email failed", "username", username, "error", err)
		return domain.ErrInternal
	}
	return nil
}

// ResetPassword consumes a reset token and sets a new password
func (s *AccountService) ResetPassword(ctx context.Context, token, newPassword string) error {
	if token == "" {
		return domain.Validationf("reset token is required")
	}
	if len(newPassword) < s.auth.MinPasswordLength {
		return domain.Validationf("password must be at least %d characters", s.auth.MinPasswordLength)
	}

	username, err := s.repo.ConsumeResetToken(ctx, hashToken(token))
	if err != nil {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), s.auth.BcryptCost)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}
	if err := s.repo.UpdatePassword(ctx, username, string(hash)); err != nil {
		return err
	}

	s.logger.Info("password reset", "username", username)
	return nil
}

func newResetToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating reset token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
