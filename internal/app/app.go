package app

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/slidesmith/slidesmith/internal/config"
	"github.com/slidesmith/slidesmith/internal/observability"
)

// App carries the assembled process dependencies from startup to shutdown.
type App struct {
	Config          *config.Config
	Logger          *slog.Logger
	Server          *http.Server
	Observability   *observability.Runtime
	ShutdownTimeout time.Duration

	stopBackground func()
}

func New(cfg *config.Config, logger *slog.Logger, server *http.Server, runtime *observability.Runtime, stopBackground func()) *App {
	return &App{
		Config:          cfg,
		Logger:          logger,
		Server:          server,
		Observability:   runtime,
		ShutdownTimeout: cfg.ShutdownTimeout,
		stopBackground:  stopBackground,
	}
}

// StopBackgroundTasks cancels the session sweeper and any other background
// loops. Safe to call when none were started.
func (a *App) StopBackgroundTasks() {
	if a.stopBackground != nil {
		a.stopBackground()
	}
}
