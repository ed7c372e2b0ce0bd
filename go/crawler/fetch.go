package crawler

import (
	"context"
	"log/slog"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/samsarahq/go/oops"
)

const (
	DefaultURL            = "https://www.campus-living-darmstadt.de/mieten"
	defaultUserAgent      = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	defaultAcceptLanguage = "de-DE,de;q=0.9,en;q=0.8"
)

type FetcherConfig struct {
	URL string
	// Timeout bounds a single request. Default: 30s.
	Timeout time.Duration
	// Attempts is the number of tries before giving up. Default: 1.
	Attempts int
	// RetryDelay is the wait after the first failure; it doubles each time.
	RetryDelay     time.Duration
	UserAgent      string
	AcceptLanguage string
}

func (c *FetcherConfig) defaults() {
	if c.URL == "" {
		c.URL = DefaultURL
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.Attempts <= 0 {
		c.Attempts = 1
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 2 * time.Second
	}
	if c.UserAgent == "" {
		c.UserAgent = defaultUserAgent
	}
	if c.AcceptLanguage == "" {
		c.AcceptLanguage = defaultAcceptLanguage
	}
}

// Fetcher downloads the rental page with a colly collector.
type Fetcher struct {
	config FetcherConfig
	logger *slog.Logger
}

func NewFetcher(cfg FetcherConfig, logger *slog.Logger) *Fetcher {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{config: cfg, logger: logger}
}

func (f *Fetcher) URL() string { return f.config.URL }

// Fetch returns the page markup, retrying with exponential back-off.
func (f *Fetcher) Fetch(ctx context.Context) (string, error) {
	var lastErr error
	delay := f.config.RetryDelay

	for attempt := 1; attempt <= f.config.Attempts; attempt++ {
		body, err := f.fetchOnce(ctx)
		if err == nil {
			return body, nil
		}
		lastErr = err

		if attempt == f.config.Attempts {
			break
		}
		f.logger.Warn("fetch failed, retrying",
			"url", f.config.URL, "attempt", attempt, "attempts", f.config.Attempts, "delay", delay, "error", err)

		select {
		case <-ctx.Done():
			return "", oops.Wrapf(ctx.Err(), "fetch %s cancelled", f.config.URL)
		case <-time.After(delay):
		}
		delay *= 2
	}

	return "", oops.Wrapf(lastErr, "fetch %s failed after %d attempts", f.config.URL, f.config.Attempts)
}

func (f *Fetcher) fetchOnce(ctx context.Context) (string, error) {
	c := colly.NewCollector(
		colly.UserAgent(f.config.UserAgent),
		colly.StdlibContext(ctx),
	)
	c.SetRequestTimeout(f.config.Timeout)

	var body []byte
	var responseErr error

	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept-Language", f.config.AcceptLanguage)
	})
	c.OnResponse(func(r *colly.Response) {
		body = r.Body
	})
	c.OnError(func(r *colly.Response, err error) {
		responseErr = oops.Wrapf(err, "request to %s failed with status %d", r.Request.URL, r.StatusCode)
	})

	err := c.Visit(f.config.URL)
	c.Wait()
	if responseErr != nil {
		return "", responseErr
	}
	if err != nil {
		return "", oops.Wrapf(err, "visit %s", f.config.URL)
	}
	return string(body), nil
}
