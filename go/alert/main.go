package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/KevinXing/ilive-tracker/go/app"
	"github.com/KevinXing/ilive-tracker/go/config"
	"github.com/KevinXing/ilive-tracker/go/logging"
	"github.com/KevinXing/ilive-tracker/go/statusserver"
	"github.com/KevinXing/ilive-tracker/go/tracker"
)

func main() {
	once := flag.Bool("once", false, "run a single check and exit")
	envFile := flag.String("env", ".env", "dotenv file to load before the environment")
	flag.Parse()
	os.Exit(run(*once, *envFile))
}

func run(once bool, envFile string) int {
	cfg, err := config.Load(envFile)
	if err != nil {
		log.Fatalf("load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	logger, closeLog, err := logging.New(logging.Config{
		Level:      logging.ParseLevel(cfg.LogLevel),
		Color:      cfg.LogColor,
		FluentHost: cfg.FluentHost,
		FluentPort: cfg.FluentPort,
	})
	if err != nil {
		log.Fatalf("create logger: %v", err)
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		return 1
	}
	defer a.Close()

	mode := "continuous"
	if once {
		mode = "once"
	}
	logger.Info("ilive tracker starting",
		"target", cfg.TargetURL,
		"recipients", strings.Join(cfg.EmailTo, ", "),
		"notifiers", strings.Join(a.NotifierNames(), ", "),
		"state", a.StoreLocation(cfg),
		"interval", cfg.CheckEvery,
		"mode", mode)

	if once {
		if _, err := a.Tracker.Check(ctx); err != nil {
			return 1
		}
		return 0
	}

	if cfg.StatusAddr != "" {
		srv := statusserver.New(cfg.StatusAddr, a.Tracker, a.Store, logger)
		go func() {
			if err := srv.Start(); err != nil {
				logger.Error("status server failed", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Stop(shutdownCtx)
		}()
	}

	tracker.NewScheduler(a.Tracker, tracker.SchedulerConfig{Interval: cfg.CheckEvery}, logger).Run(ctx)
	logger.Info("ilive tracker stopped")
	return 0
}
