package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/harunnryd/stella/pkg/errorsx"
	"github.com/harunnryd/stella/pkg/logging"
	"github.com/harunnryd/stella/pkg/stella"
	"github.com/joho/godotenv"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (optional)")
	envFile := flag.String("env", ".env", "dotenv file loaded before the config")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load %s: %v\n", *envFile, err)
	}

	cfg, err := stella.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "stella: %v\n", err)
		os.Exit(1)
	}

	log := logging.InitLogger(logging.LogConfig{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	})

	app, err := stella.NewEngine(stella.EngineOptions{Config: cfg, Logger: log})
	if err != nil {
		log.Error("engine_init_failed", "reason_code", string(errorsx.Reason(err)), "error", err.Error())
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx); err != nil {
		slog.Error("engine_stopped", "reason_code", string(errorsx.Reason(err)), "error", err.Error())
		stop()
		os.Exit(1)
	}
}
