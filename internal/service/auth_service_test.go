package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/slidesmith/slidesmith/internal/config"
	"github.com/slidesmith/slidesmith/internal/domain"
	"github.com/slidesmith/slidesmith/internal/repository"
	"github.com/slidesmith/slidesmith/internal/security"
)

func TestRegisterUserRoundTrip(t *testing.T) {
	svc, users, _ := newAuthServiceForTest(t, 30)

	user, err := svc.RegisterUser("alice", "pw123456", "alice@example.com")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if user.ID == 0 {
		t.Fatal("expected assigned user ID")
	}
	if user.IsAdmin {
		t.Fatal("registered users must not be admins")
	}
	if !user.IsActive {
		t.Fatal("registered users must be active")
	}

	found, err := users.FindActiveByUsername("alice")
	if err != nil {
		t.Fatalf("lookup registered user: %v", err)
	}
	if found.ID != user.ID {
		t.Fatalf("expected lookup ID %d to match registration ID %d", found.ID, user.ID)
	}
	if !security.VerifyPassword("pw123456", found.PasswordHash) {
		t.Fatal("expected stored hash to verify against the original plaintext")
	}
	if found.PasswordHash == "pw123456" {
		t.Fatal("password must not be stored in plaintext")
	}
}

func TestRegisterUserDuplicateUsernameLeavesStoreUnchanged(t *testing.T) {
	svc, users, _ := newAuthServiceForTest(t, 30)

	if _, err := svc.RegisterUser("alice", "pw123456", ""); err != nil {
		t.Fatalf("first register: %v", err)
	}
	_, err := svc.RegisterUser("alice", "other-password", "")
	if !errors.Is(err, ErrUsernameTaken) {
		t.Fatalf("expected ErrUsernameTaken, got %v", err)
	}

	count, err := users.Count()
	if err != nil {
		t.Fatalf("count users: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected user count unchanged at 1, got %d", count)
	}
}

func TestRegisterUserDuplicateEmail(t *testing.T) {
	svc, _, _ := newAuthServiceForTest(t, 30)

	if _, err := svc.RegisterUser("alice", "pw123456", "shared@example.com"); err != nil {
		t.Fatalf("first register: %v", err)
	}
	_, err := svc.RegisterUser("bob", "pw123456", "shared@example.com")
	if !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
}

func TestRegisterUserEmptyEmailsNeverCollide(t *testing.T) {
	svc, _, _ := newAuthServiceForTest(t, 30)

	if _, err := svc.RegisterUser("alice", "pw123456", ""); err != nil {
		t.Fatalf("register alice: %v", err)
	}
	if _, err := svc.RegisterUser("bob", "pw123456", ""); err != nil {
		t.Fatalf("register bob without email: %v", err)
	}
}

func TestAuthenticateUserInvalidCredentials(t *testing.T) {
	svc, _, _ := newAuthServiceForTest(t, 30)

	if _, err := svc.RegisterUser("alice", "pw123456", ""); err != nil {
		t.Fatalf("register: %v", err)
	}

	if _, err := svc.AuthenticateUser("alice", "wrong-password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for wrong password, got %v", err)
	}
	// Unknown usernames fail the same way, without panicking.
	if _, err := svc.AuthenticateUser("bob", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown user, got %v", err)
	}
}

func TestAuthenticateUserUpdatesLastLogin(t *testing.T) {
	svc, users, _ := newAuthServiceForTest(t, 30)

	if _, err := svc.RegisterUser("alice", "pw123456", ""); err != nil {
		t.Fatalf("register: %v", err)
	}

	first, err := svc.AuthenticateUser("alice", "pw123456")
	if err != nil {
		t.Fatalf("first authenticate: %v", err)
	}
	if first.LastLoginAt == nil {
		t.Fatal("expected last login set after authenticate")
	}

	svc.now = func() time.Time { return time.Now().Add(time.Minute) }
	second, err := svc.AuthenticateUser("alice", "pw123456")
	if err != nil {
		t.Fatalf("second authenticate: %v", err)
	}
	if second.LastLoginAt.Before(*first.LastLoginAt) {
		t.Fatalf("expected last login to be monotonic, got %s then %s", first.LastLoginAt, second.LastLoginAt)
	}

	stored, err := users.FindActiveByUsername("alice")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if stored.LastLoginAt == nil {
		t.Fatal("expected persisted last login")
	}
}

func TestAuthenticateInactiveUserFails(t *testing.T) {
	svc, _, _ := newAuthServiceForTest(t, 30)

	user, err := svc.RegisterUser("alice", "pw123456", "")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := svc.DeactivateUser(user.ID); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if _, err := svc.AuthenticateUser("alice", "pw123456"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for deactivated user, got %v", err)
	}
}

func TestNeverExpireSessionSurvivesLookupAndCleanup(t *testing.T) {
	svc, _, sessions := newAuthServiceForTest(t, 0)

	user, err := svc.RegisterUser("alice", "pw123456", "")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	session, err := svc.CreateSession(user)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if !session.ExpiresAt.Equal(time.Date(2099, time.December, 31, 23, 59, 59, 0, time.UTC)) {
		t.Fatalf("expected sentinel expiry, got %s", session.ExpiresAt)
	}

	// Far beyond any normal expiry window.
	svc.now = func() time.Time { return time.Now().AddDate(10, 0, 0) }

	resolved, err := svc.GetUserBySession(session.Token)
	if err != nil {
		t.Fatalf("resolve never-expire session: %v", err)
	}
	if resolved.ID != user.ID {
		t.Fatalf("expected user %d, got %d", user.ID, resolved.ID)
	}

	count, err := svc.CleanupExpiredSessions()
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if count != 0 {
		t.Fatalf("cleanup must not touch never-expire sessions, deactivated %d", count)
	}
	if _, err := sessions.FindActiveByToken(session.Token); err != nil {
		t.Fatalf("expected session still active after cleanup: %v", err)
	}
}

func TestTimedSessionExpiresLazily(t *testing.T) {
	svc, _, sessions := newAuthServiceForTest(t, 30)

	user, err := svc.RegisterUser("alice", "pw123456", "")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	session, err := svc.CreateSession(user)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	if _, err := svc.GetUserBySession(session.Token); err != nil {
		t.Fatalf("expected session valid before expiry: %v", err)
	}

	svc.now = func() time.Time { return time.Now().Add(31 * time.Minute) }
	if _, err := svc.GetUserBySession(session.Token); !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired after expiry, got %v", err)
	}
	// Lazy expiry marks the session inactive as a side effect of the read.
	if _, err := sessions.FindActiveByToken(session.Token); !errors.Is(err, repository.ErrSessionNotFound) {
		t.Fatalf("expected session deactivated by lazy expiry, got %v", err)
	}
}

func TestCleanupSweepsOnlyExpiredSessions(t *testing.T) {
	svc, _, _ := newAuthServiceForTest(t, 30)

	user, err := svc.RegisterUser("alice", "pw123456", "")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	expired, err := svc.CreateSession(user)
	if err != nil {
		t.Fatalf("create expired session: %v", err)
	}
	svc.now = func() time.Time { return time.Now().Add(31 * time.Minute) }
	live, err := svc.CreateSession(user)
	if err != nil {
		t.Fatalf("create live session: %v", err)
	}

	count, err := svc.CleanupExpiredSessions()
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 session swept, got %d", count)
	}
	if _, err := svc.GetUserBySession(expired.Token); err == nil {
		t.Fatal("expected expired session to be invalid")
	}
	if _, err := svc.GetUserBySession(live.Token); err != nil {
		t.Fatalf("expected live session to survive cleanup: %v", err)
	}
}

func TestLogoutIsIdempotent(t *testing.T) {
	svc, _, _ := newAuthServiceForTest(t, 30)

	user, err := svc.RegisterUser("alice", "pw123456", "")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	session, err := svc.CreateSession(user)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	if err := svc.Logout(session.Token); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, err := svc.GetUserBySession(session.Token); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound after logout, got %v", err)
	}
	if err := svc.Logout(session.Token); err != nil {
		t.Fatalf("second logout must not fail: %v", err)
	}
	if err := svc.Logout("unknown-token"); err != nil {
		t.Fatalf("logout of unknown token must not fail: %v", err)
	}
}

func TestCreateSessionReadsExpiryConfigFreshly(t *testing.T) {
	svc, _, _ := newAuthServiceForTest(t, 30)

	user, err := svc.RegisterUser("alice", "pw123456", "")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	timed, err := svc.CreateSession(user)
	if err != nil {
		t.Fatalf("create timed session: %v", err)
	}
	if timed.ExpiresAt.Year() >= 2099 {
		t.Fatalf("expected timed expiry, got %s", timed.ExpiresAt)
	}

	// Runtime config change applies to the next session without a restart.
	svc.cfg.SetSessionExpireMinutes(0)
	forever, err := svc.CreateSession(user)
	if err != nil {
		t.Fatalf("create never-expire session: %v", err)
	}
	if forever.ExpiresAt.Year() != 2099 {
		t.Fatalf("expected sentinel expiry after config change, got %s", forever.ExpiresAt)
	}
}

func TestDeactivateUserRevokesSessions(t *testing.T) {
	svc, _, _ := newAuthServiceForTest(t, 30)

	user, err := svc.RegisterUser("alice", "pw123456", "")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	session, err := svc.CreateSession(user)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	if err := svc.DeactivateUser(user.ID); err != nil {
		t.Fatalf("deactivate user: %v", err)
	}
	if _, err := svc.GetUserBySession(session.Token); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected session invalid after user deactivation, got %v", err)
	}
	if err := svc.DeactivateUser(9999); !errors.Is(err, repository.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound for unknown user, got %v", err)
	}
}

func TestUpdatePasswordRotatesHash(t *testing.T) {
	svc, _, _ := newAuthServiceForTest(t, 30)

	user, err := svc.RegisterUser("alice", "pw123456", "")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := svc.UpdatePassword(user.ID, "new-password-1"); err != nil {
		t.Fatalf("update password: %v", err)
	}
	if _, err := svc.AuthenticateUser("alice", "pw123456"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected old password rejected, got %v", err)
	}
	if _, err := svc.AuthenticateUser("alice", "new-password-1"); err != nil {
		t.Fatalf("expected new password accepted: %v", err)
	}
}

func TestRegisterThenResolveScenario(t *testing.T) {
	svc, users, _ := newAuthServiceForTest(t, 30)

	user, err := svc.RegisterUser("alice", "pw123456", "")
	if err != nil {
		t.Fatalf("register alice: %v", err)
	}
	session, err := svc.CreateSession(user)
	if err != nil {
		t.Fatalf("issue session: %v", err)
	}

	current, err := svc.GetUserBySession(session.Token)
	if err != nil {
		t.Fatalf("resolve session: %v", err)
	}
	view := current.View()
	if view.Username != "alice" || view.IsAdmin {
		t.Fatalf("unexpected serialized user: %+v", view)
	}

	_, err = svc.RegisterUser("alice", "other", "")
	if !errors.Is(err, ErrUsernameTaken) {
		t.Fatalf("expected username-exists failure, got %v", err)
	}
	count, err := users.Count()
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected user count unchanged at 1, got %d", count)
	}
}

func TestEnsureDefaultAdmin(t *testing.T) {
	svc, users, _ := newAuthServiceForTest(t, 30)

	if err := svc.EnsureDefaultAdmin(); err != nil {
		t.Fatalf("bootstrap admin: %v", err)
	}
	admin, err := users.FindActiveByUsername("admin")
	if err != nil {
		t.Fatalf("lookup admin: %v", err)
	}
	if !admin.IsAdmin {
		t.Fatal("expected bootstrap account to be admin")
	}

	// A second call on a non-empty store is a no-op.
	if err := svc.EnsureDefaultAdmin(); err != nil {
		t.Fatalf("second bootstrap: %v", err)
	}
	count, err := users.Count()
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected single admin, got %d users", count)
	}
}

func TestSessionSweeperDeactivatesExpired(t *testing.T) {
	svc, _, sessions := newAuthServiceForTest(t, 30)

	user, err := svc.RegisterUser("alice", "pw123456", "")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	session, err := svc.CreateSession(user)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	svc.now = func() time.Time { return time.Now().Add(31 * time.Minute) }

	sweeper := NewSessionSweeper(svc, 10*time.Millisecond, discardLogger())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sweeper.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for {
		if _, err := sessions.FindActiveByToken(session.Token); errors.Is(err, repository.ErrSessionNotFound) {
			break
		}
		select {
		case <-deadline:
			t.Fatal("sweeper did not deactivate the expired session in time")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("sweeper run: %v", err)
	}
}

func newAuthServiceForTest(t *testing.T, expireMinutes int) (*AuthService, repository.UserRepository, repository.SessionRepository) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&domain.User{}, &domain.Session{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	cfg := &config.Config{BcryptCost: 4}
	cfg.SetSessionExpireMinutes(expireMinutes)
	users := repository.NewUserRepository(db)
	sessions := repository.NewSessionRepository(db)
	return NewAuthService(cfg, users, sessions, discardLogger()), users, sessions
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
