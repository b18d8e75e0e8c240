package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ahmadsysdev/wabot/internal/command"
	"github.com/ahmadsysdev/wabot/internal/config"
	"github.com/ahmadsysdev/wabot/internal/entitlement"
	"github.com/ahmadsysdev/wabot/internal/features"
	. "github.com/ahmadsysdev/wabot/internal/logging"
	"github.com/ahmadsysdev/wabot/internal/paths"
	"github.com/ahmadsysdev/wabot/internal/reply"
	"github.com/ahmadsysdev/wabot/internal/store"
	"github.com/ahmadsysdev/wabot/internal/whatsapp"
)

const version = "0.1.0"

func main() {
	cmd := "run"
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}

	switch cmd {
	case "run":
		if err := run(); err != nil {
			fmt.Fprintf(os.Stderr, "wabot: %v\n", err)
			os.Exit(1)
		}
	case "link":
		if err := whatsapp.LinkDevice(); err != nil {
			fmt.Fprintf(os.Stderr, "wabot: %v\n", err)
			os.Exit(1)
		}
	case "unlink":
		if err := whatsapp.UnlinkDevice(); err != nil {
			fmt.Fprintf(os.Stderr, "wabot: %v\n", err)
			os.Exit(1)
		}
	case "version":
		fmt.Printf("wabot %s\n", version)
	default:
		fmt.Fprintf(os.Stderr, "usage: wabot [run|link|unlink|version]\n")
		os.Exit(2)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	Init(&Config{
		Level:      logLevel(cfg.Log.Level),
		ShowCaller: cfg.Log.ShowCaller,
	})
	L_info("wabot %s starting", version)

	dbDir, err := paths.DatabaseDir()
	if err != nil {
		return err
	}
	db, err := store.New(dbDir)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	ent := entitlement.New(db)
	ent.StartSweeper()
	defer ent.Stop()

	repliesPath, err := paths.DataPath("replies.json")
	if err != nil {
		return err
	}
	replies := reply.NewManager(repliesPath)
	go func() {
		if err := replies.Watch(); err != nil {
			L_warn("reply table hot reload unavailable", "error", err)
		}
	}()

	registry := command.NewRegistry()
	bot, err := whatsapp.New(cfg, registry, db, ent, replies)
	if err != nil {
		return err
	}
	features.RegisterAll(registry, bot)

	if err := bot.Start(); err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	L_info("wabot ready", "commands", len(registry.List()), "prefix", cfg.DefaultPrefix)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	L_info("shutting down")
	SetShuttingDown()
	bot.Stop()
	return nil
}

func logLevel(name string) int {
	switch name {
	case "debug":
		return LevelDebug
	case "warn":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}
