package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jutclasses/enrollbot/internal/config"
	"github.com/jutclasses/enrollbot/internal/database"
	"github.com/jutclasses/enrollbot/internal/ledger"
	"github.com/jutclasses/enrollbot/internal/logger"
	"github.com/jutclasses/enrollbot/internal/session"
	"github.com/jutclasses/enrollbot/internal/store"
	"github.com/jutclasses/enrollbot/internal/telegram"
	"github.com/jutclasses/enrollbot/internal/workflow"
)

const defaultConfigPath = "configs/config.yaml"

func main() {
	if err := run(); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

func run() error {
	startedAt := time.Now()

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = defaultConfigPath
	}
	log.Printf("loading config: %s", cfgPath)

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	if err := logger.InitLogger(cfg); err != nil {
		return err
	}
	defer func() {
		if err := logger.Shutdown(); err != nil {
			log.Printf("logger shutdown error: %v", err)
		}
	}()

	if err := database.RunMigrations(cfg.Database); err != nil {
		return err
	}
	db, err := database.Connect(cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	st := store.NewPostgres(db)
	led := ledger.NewService(st)
	wf := workflow.NewService(st, led, cfg.Program)

	bot, err := telegram.New(cfg, telegram.Deps{
		Store:    st,
		Ledger:   led,
		Workflow: wf,
		Sessions: session.NewMemoryManager(),
	})
	if err != nil {
		return err
	}

	logger.L.With("component", "app").Info("app ready",
		slog.String("event", "ready"),
		slog.Duration("startup_duration", logger.RoundMS(time.Since(startedAt))),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	err = bot.Run(ctx)
	logger.L.With("component", "app").Info("shutting down...",
		slog.String("event", "shutdown"),
	)
	return err
}
