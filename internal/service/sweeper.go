package service

import (
	"context"
	"log/slog"
	"time"
)

// SessionSweeper periodically deactivates expired sessions. It is an
// optional hygiene task; lazy expiry on lookup keeps results correct even
// when the sweeper never runs.
type SessionSweeper struct {
	auth     *AuthService
	interval time.Duration
	logger   *slog.Logger
}

func NewSessionSweeper(auth *AuthService, interval time.Duration, logger *slog.Logger) *SessionSweeper {
	if interval <= 0 {
		interval = time.Hour
	}
	return &SessionSweeper{auth: auth, interval: interval, logger: logger}
}

// Run blocks until ctx is cancelled, sweeping once per interval. Sweep
// failures are logged and the loop continues.
func (w *SessionSweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := w.auth.CleanupExpiredSessions(); err != nil {
				w.logger.Error("session sweep failed", "error", err)
			}
		}
	}
}
