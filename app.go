package main

import (
	"context"
	"fmt"
	"os"

	"github.com/wailsapp/wails/v2/pkg/runtime"

	"wattson/internal/services"
)

// App is the Wails application shell. The frontend calls the bound services
// directly; App only carries lifecycle state and a few cross-service
// conveniences.
type App struct {
	ctx     context.Context
	svc     *services.Services
	dbClose func() error
}

func NewApp(svc *services.Services) *App {
	return &App{svc: svc}
}

// startup is called when the app starts. The context is saved so we can
// call the runtime methods.
func (a *App) startup(ctx context.Context) {
	a.ctx = ctx
	a.svc.Startup(ctx)
}

// shutdown is called when the app is closing. Clean up resources here.
func (a *App) shutdown(ctx context.Context) {
	active := a.svc.Session.ActiveSessionID()
	if active != "" {
		a.svc.Turn.CancelTurn(active)
	}
	if a.dbClose != nil {
		if err := a.dbClose(); err != nil {
			runtime.LogError(ctx, fmt.Sprintf("failed to close database: %v", err))
		}
	}
}

// BackendURL reports the configured assistant endpoint so the frontend can
// show it in settings.
func (a *App) BackendURL() string {
	return backendURL()
}

// SignedIn reports whether a backend credential is stored.
func (a *App) SignedIn() bool {
	return a.svc.Keyring.HasAPIToken()
}

func backendURL() string {
	if v := os.Getenv("WATTSON_BACKEND_URL"); v != "" {
		return v
	}
	return "http://localhost:8811"
}
