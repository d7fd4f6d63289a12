package service

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/slidesmith/slidesmith/internal/config"
	"github.com/slidesmith/slidesmith/internal/domain"
	"github.com/slidesmith/slidesmith/internal/observability"
	"github.com/slidesmith/slidesmith/internal/repository"
	"github.com/slidesmith/slidesmith/internal/security"
)

var (
	// neverExpireAt is the sentinel expiry used when the configured session
	// lifetime is 0 minutes.
	neverExpireAt = time.Date(2099, time.December, 31, 23, 59, 59, 0, time.UTC)
	// sentinelCutoff is the lower bound of the never-expire range; cleanup
	// leaves everything at or beyond it alone.
	sentinelCutoff = time.Date(2099, time.January, 1, 0, 0, 0, 0, time.UTC)
)

const (
	defaultAdminUsername = "admin"
	defaultAdminPassword = "admin123"
)

// AuthService owns credential and session business logic. It is constructed
// once at startup and passed explicitly to handlers; there is no ambient
// singleton.
type AuthService struct {
	cfg      *config.Config
	users    repository.UserRepository
	sessions repository.SessionRepository
	logger   *slog.Logger
	now      func() time.Time
}

func NewAuthService(cfg *config.Config, users repository.UserRepository, sessions repository.SessionRepository, logger *slog.Logger) *AuthService {
	return &AuthService{
		cfg:      cfg,
		users:    users,
		sessions: sessions,
		logger:   logger,
		now:      time.Now,
	}
}

// CreateUser creates an account with explicit flags. Used by registration
// and by administrative bootstrap.
func (s *AuthService) CreateUser(username, password, email string, isAdmin bool) (*domain.User, error) {
	hash, err := security.HashPassword(password, s.cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	user := &domain.User{
		Username:     username,
		PasswordHash: hash,
		IsActive:     true,
		IsAdmin:      isAdmin,
	}
	if email != "" {
		user.Email = &email
	}
	if err := s.users.CreateVerified(user); err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicateUsername):
			return nil, ErrUsernameTaken
		case errors.Is(err, repository.ErrDuplicateEmail):
			return nil, ErrEmailTaken
		case errors.Is(err, repository.ErrVerificationFailed):
			s.logger.Error("user write verification failed", "username", username)
			return nil, ErrRegistrationVerification
		default:
			s.logger.Error("user create failed", "username", username, "error", err)
			return nil, fmt.Errorf("create user: %w", err)
		}
	}
	return user, nil
}

// RegisterUser registers a regular account. The store re-reads the
// just-written row before commit and fails the whole transaction when the
// row is missing or carries a different ID, so a silent write failure never
// reports success.
func (s *AuthService) RegisterUser(username, password, email string) (*domain.User, error) {
	user, err := s.CreateUser(username, password, email, false)
	if err != nil {
		observability.RecordAuthRegister("failure")
		return nil, err
	}
	observability.RecordAuthRegister("success")
	s.logger.Info("user registered", "username", username, "user_id", user.ID)
	return user, nil
}

// AuthenticateUser verifies the credentials of an active account and
// updates its last-login timestamp. It does not issue a session; callers
// that need one call CreateSession separately.
func (s *AuthService) AuthenticateUser(username, password string) (*domain.User, error) {
	user, err := s.users.FindActiveByUsername(username)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			observability.RecordAuthLogin("invalid_credentials")
			return nil, ErrInvalidCredentials
		}
		observability.RecordAuthLogin("error")
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if !security.VerifyPassword(password, user.PasswordHash) {
		observability.RecordAuthLogin("invalid_credentials")
		return nil, ErrInvalidCredentials
	}
	loginAt := s.now().UTC()
	if err := s.users.UpdateLastLogin(user.ID, loginAt); err != nil {
		observability.RecordAuthLogin("error")
		return nil, fmt.Errorf("update last login: %w", err)
	}
	user.LastLoginAt = &loginAt
	observability.RecordAuthLogin("success")
	return user, nil
}

// CreateSession issues a new opaque session for the user. The configured
// lifetime is read at call time so runtime config changes apply to the next
// session without a restart; 0 minutes means never expire, realized as the
// far-future sentinel expiry.
func (s *AuthService) CreateSession(user *domain.User) (*domain.Session, error) {
	token, err := security.NewSessionToken()
	if err != nil {
		return nil, err
	}
	minutes := s.cfg.SessionExpireMinutes()
	expiresAt := neverExpireAt
	if minutes > 0 {
		expiresAt = s.now().Add(time.Duration(minutes) * time.Minute)
	}
	session := &domain.Session{
		Token:     token,
		UserID:    user.ID,
		ExpiresAt: expiresAt,
		IsActive:  true,
	}
	if err := s.sessions.Create(session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return session, nil
}

// SessionTTL returns the cookie lifetime matching the current session
// configuration; 0 means a session cookie without Max-Age.
func (s *AuthService) SessionTTL() time.Duration {
	return time.Duration(s.cfg.SessionExpireMinutes()) * time.Minute
}

// GetUserBySession resolves a session token to its owning active user.
// An expired session is marked inactive as a side effect of the lookup, so
// correctness never depends on the periodic sweep.
func (s *AuthService) GetUserBySession(token string) (*domain.User, error) {
	if token == "" {
		return nil, ErrSessionNotFound
	}
	session, err := s.sessions.FindActiveByToken(token)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			observability.RecordSessionLookup("not_found")
			return nil, ErrSessionNotFound
		}
		observability.RecordSessionLookup("error")
		return nil, fmt.Errorf("lookup session: %w", err)
	}
	if session.Expired(s.now()) {
		if _, err := s.sessions.Deactivate(token); err != nil {
			s.logger.Warn("deactivate expired session failed", "error", err)
		}
		observability.RecordSessionLookup("expired")
		return nil, ErrSessionExpired
	}
	user, err := s.users.FindActiveByID(session.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			observability.RecordSessionLookup("owner_inactive")
			return nil, ErrSessionNotFound
		}
		observability.RecordSessionLookup("error")
		return nil, fmt.Errorf("lookup session owner: %w", err)
	}
	observability.RecordSessionLookup("success")
	return user, nil
}

// Logout deactivates the session. Logging out twice, or with an unknown
// token, is not an error.
func (s *AuthService) Logout(token string) error {
	if token == "" {
		observability.RecordAuthLogout("no_session")
		return nil
	}
	changed, err := s.sessions.Deactivate(token)
	if err != nil {
		observability.RecordAuthLogout("error")
		return fmt.Errorf("deactivate session: %w", err)
	}
	if changed {
		observability.RecordAuthLogout("success")
	} else {
		observability.RecordAuthLogout("already_inactive")
	}
	return nil
}

// CleanupExpiredSessions bulk-deactivates sessions whose expiry has passed,
// excluding the never-expire sentinel range, and returns the count. Lazy
// expiry keeps lookups correct without it; this exists for storage hygiene.
func (s *AuthService) CleanupExpiredSessions() (int64, error) {
	count, err := s.sessions.DeactivateExpired(s.now(), sentinelCutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup expired sessions: %w", err)
	}
	observability.RecordSessionCleanup(count)
	if count > 0 {
		s.logger.Info("expired sessions deactivated", "count", count)
	}
	return count, nil
}

// DeactivateUser disables the account and revokes all of its sessions in
// one transaction. Deactivation is the terminal state; users are not hard
// deleted in normal operation.
func (s *AuthService) DeactivateUser(userID uint) error {
	if err := s.users.DeactivateCascade(userID); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return repository.ErrUserNotFound
		}
		return fmt.Errorf("deactivate user: %w", err)
	}
	return nil
}

// UpdatePassword replaces the stored hash for the user.
func (s *AuthService) UpdatePassword(userID uint, newPassword string) error {
	hash, err := security.HashPassword(newPassword, s.cfg.BcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.users.UpdatePasswordHash(userID, hash); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

func (s *AuthService) GetUserByID(id uint) (*domain.User, error) {
	user, err := s.users.FindActiveByID(id)
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (s *AuthService) GetUserByUsername(username string) (*domain.User, error) {
	user, err := s.users.FindActiveByUsername(username)
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (s *AuthService) ListUsers(offset, limit int) ([]domain.User, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.users.List(offset, limit)
}

func (s *AuthService) GetUserSessions(userID uint) ([]domain.Session, error) {
	return s.sessions.ListActiveByUserID(userID)
}

// EnsureDefaultAdmin creates the bootstrap admin account when the user
// store is empty.
func (s *AuthService) EnsureDefaultAdmin() error {
	count, err := s.users.Count()
	if err != nil {
		return fmt.Errorf("count users: %w", err)
	}
	if count > 0 {
		return nil
	}
	if _, err := s.CreateUser(defaultAdminUsername, defaultAdminPassword, "", true); err != nil {
		return fmt.Errorf("create default admin: %w", err)
	}
	s.logger.Warn("default admin account created, change the password",
		"username", defaultAdminUsername)
	return nil
}
