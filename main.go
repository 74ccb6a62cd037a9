package main

import (
	"embed"
	"fmt"

	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"
	"github.com/wailsapp/wails/v2/pkg/options/linux"

	"wattson/internal/assistant"
	"wattson/internal/database"
	"wattson/internal/events"
	"wattson/internal/services"
	"wattson/internal/utils"
)

//go:embed all:frontend/dist
var assets embed.FS

func main() {
	// Best effort: a missing .env just means defaults apply.
	_ = utils.LoadEnv()

	db, err := database.Init(database.Config{})
	if err != nil {
		fmt.Println("Error opening database:", err)
		return
	}

	keyringService := services.NewKeyringService()
	backend, err := assistant.New(assistant.Config{
		BaseURL:    backendURL(),
		Credential: keyringService.GetAPIToken,
	})
	if err != nil {
		fmt.Println("Error configuring backend client:", err)
		return
	}

	svc := services.New(db, backend)
	svc.Keyring = keyringService
	app := NewApp(svc)
	if sqlDB, err := db.DB(); err == nil {
		app.dbClose = sqlDB.Close
	}

	events.EnableRuntimeEmitter()

	err = wails.Run(&options.App{
		Title:  "Wattson",
		Width:  1024,
		Height: 768,
		AssetServer: &assetserver.Options{
			Assets: assets,
		},
		Linux: &linux.Options{
			WindowIsTranslucent: false,
			WebviewGpuPolicy:    linux.WebviewGpuPolicyAlways,
			ProgramName:         "Wattson",
		},
		BackgroundColour: &options.RGBA{R: 24, G: 28, B: 38, A: 1},
		OnStartup:        app.startup,
		OnShutdown:       app.shutdown,
		Bind: []interface{}{
			app,
			svc.Session,
			svc.Turn,
			svc.Document,
			svc.Preferences,
			svc.User,
			svc.Keyring,
		},
	})

	if err != nil {
		println("Error:", err.Error())
	}
}
