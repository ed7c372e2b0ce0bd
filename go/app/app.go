// Package app wires the tracker together from config.
package app

import (
	"context"
	"log/slog"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/samsarahq/go/oops"

	"github.com/KevinXing/ilive-tracker/go/config"
	"github.com/KevinXing/ilive-tracker/go/crawler"
	"github.com/KevinXing/ilive-tracker/go/notify"
	"github.com/KevinXing/ilive-tracker/go/stats"
	"github.com/KevinXing/ilive-tracker/go/store"
	"github.com/KevinXing/ilive-tracker/go/tracker"
)

// App is a fully wired tracker. Close releases broker and database
// connections.
type App struct {
	Tracker   *tracker.Tracker
	Store     tracker.SnapshotStore
	Notifiers []tracker.Notifier
	Recorders []tracker.Recorder

	closers []func()
}

func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	a := &App{}

	var sess *session.Session
	awsSession := func() (*session.Session, error) {
		if sess != nil {
			return sess, nil
		}
		var err error
		sess, err = session.NewSession(&aws.Config{Region: aws.String(cfg.AWSRegion)})
		if err != nil {
			return nil, oops.Wrapf(err, "create aws session")
		}
		return sess, nil
	}

	if cfg.StateBucket != "" {
		s, err := awsSession()
		if err != nil {
			return nil, err
		}
		a.Store = store.NewS3Store(s, cfg.StateBucket, cfg.StateKey)
	} else {
		a.Store = store.NewFileStore(cfg.StateFile)
	}

	switch cfg.Notifier {
	case config.NotifierSMTP:
		a.Notifiers = append(a.Notifiers, notify.NewSMTPNotifier(notify.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			From:     cfg.EmailFrom,
			Password: cfg.EmailPassword,
			To:       cfg.EmailTo,
			SiteURL:  cfg.TargetURL,
		}))
	case config.NotifierSES:
		s, err := awsSession()
		if err != nil {
			return nil, err
		}
		a.Notifiers = append(a.Notifiers, notify.NewSESNotifier(s, cfg.EmailFrom, cfg.EmailTo, cfg.TargetURL))
	}

	if cfg.RabbitMQURL != "" {
		n, err := notify.DialAMQP(cfg.RabbitMQURL, cfg.RabbitMQQueue)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, func() { n.Close() })
		a.Notifiers = append(a.Notifiers, n)
	}

	if cfg.DynamoHistoryTable != "" {
		s, err := awsSession()
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Recorders = append(a.Recorders, stats.NewDynamoRecorder(s, cfg.DynamoHistoryTable))
	}
	if cfg.DatabaseURL != "" {
		r, err := stats.NewPostgresRecorder(ctx, cfg.DatabaseURL)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, r.Close)
		a.Recorders = append(a.Recorders, r)
	}

	fetcher := crawler.NewFetcher(crawler.FetcherConfig{
		URL:      cfg.TargetURL,
		Timeout:  cfg.FetchTimeout,
		Attempts: cfg.FetchTries,
	}, logger)

	a.Tracker = tracker.New(fetcher, a.Store,
		tracker.WithNotifiers(a.Notifiers...),
		tracker.WithRecorders(a.Recorders...),
		tracker.WithLogger(logger),
	)
	return a, nil
}

// StoreLocation describes where state is kept, for the startup banner.
func (a *App) StoreLocation(cfg *config.Config) string {
	if cfg.StateBucket != "" {
		key := cfg.StateKey
		if key == "" {
			key = store.DefaultS3Key
		}
		return "s3://" + cfg.StateBucket + "/" + key
	}
	return cfg.StateFile
}

// NotifierNames lists the wired notifiers, for the startup banner.
func (a *App) NotifierNames() []string {
	names := make([]string, 0, len(a.Notifiers))
	for _, n := range a.Notifiers {
		names = append(names, n.Name())
	}
	return names
}

func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
