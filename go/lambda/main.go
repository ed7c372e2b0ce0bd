package main

import (
	"context"
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/KevinXing/ilive-tracker/go/app"
	"github.com/KevinXing/ilive-tracker/go/config"
	"github.com/KevinXing/ilive-tracker/go/logging"
	"github.com/KevinXing/ilive-tracker/go/tracker"
)

func main() {
	lambda.Start(HandleRequest)
}

// HandleRequest runs one check per invocation, typically from a scheduled
// EventBridge rule. State should live in S3 since the filesystem is not kept.
func HandleRequest(ctx context.Context) (*tracker.Report, error) {
	cfg, err := config.Load("")
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, closeLog, err := logging.New(logging.Config{
		Writer:     os.Stdout,
		Level:      logging.ParseLevel(cfg.LogLevel),
		FluentHost: cfg.FluentHost,
		FluentPort: cfg.FluentPort,
	})
	if err != nil {
		return nil, err
	}
	defer closeLog()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	defer a.Close()

	report, err := a.Tracker.Check(ctx)
	if err != nil {
		return report, err
	}
	logger.Info("check done",
		"cycle", report.CycleID,
		"apartments", report.Total,
		"newly_available", len(report.NewlyAvailable))
	return report, nil
}
