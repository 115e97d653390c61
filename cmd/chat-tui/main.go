package main

import (
	"context"
	"fmt"
	"os"

	"github.com/evallife/polychat/internal/api"
	"github.com/evallife/polychat/internal/chat"
	"github.com/evallife/polychat/internal/config"
	"github.com/evallife/polychat/internal/logger"
	"github.com/evallife/polychat/internal/settings"
	"github.com/evallife/polychat/internal/storage"
	"github.com/evallife/polychat/internal/ui"
)

func main() {
	cfgPath := config.GetConfigPath()
	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		fmt.Printf("Error loading config %s: %v\n", cfgPath, err)
		os.Exit(1)
	}

	logFile, err := logger.OpenFile(cfg.LogFile)
	if err != nil {
		fmt.Printf("Error opening log file: %v\n", err)
		os.Exit(1)
	}
	defer logFile.Close()
	log, err := logger.New(cfg.LogLevel, cfg.LogFormat, logFile)
	if err != nil {
		fmt.Printf("Error configuring logger: %v\n", err)
		os.Exit(1)
	}

	backend, err := storage.OpenSQLite(cfg.DBPath)
	if err != nil {
		fmt.Printf("Error initializing storage: %v\n", err)
		os.Exit(1)
	}
	store := storage.NewStore(backend, log)
	defer store.Close()

	client := api.NewClient(api.NewRestClient(), api.Options{
		Timeout:     cfg.RequestTimeout(),
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
	}, log)

	settingsSvc, err := settings.New(store, client, cfg, log)
	if err != nil {
		fmt.Printf("Error loading settings: %v\n", err)
		os.Exit(1)
	}
	chatSvc, err := chat.New(store, client, settingsSvc, chat.Options{AbortOnSwitch: cfg.AbortOnSwitch}, log)
	if err != nil {
		fmt.Printf("Error loading conversations: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log.Info().Str("config", cfgPath).Str("db", cfg.DBPath).Msg("starting")
	app := ui.NewTViewUI(ctx, chatSvc, settingsSvc, log)
	if err := app.Run(); err != nil {
		cancel()
		fmt.Printf("Error running program: %v\n", err)
		os.Exit(1)
	}
}
