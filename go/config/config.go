// Package config loads tracker settings from the environment, with an
// optional .env file underneath.
package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/samsarahq/go/oops"

	"github.com/KevinXing/ilive-tracker/go/crawler"
)

const (
	NotifierSMTP = "smtp"
	NotifierSES  = "ses"
	NotifierNone = "none"
)

type Config struct {
	TargetURL string

	StateFile    string
	StateBucket  string
	StateKey     string
	AWSRegion    string
	CheckEvery   time.Duration
	FetchTimeout time.Duration
	FetchTries   int

	Notifier      string
	SMTPHost      string
	SMTPPort      int
	EmailFrom     string
	EmailPassword string
	EmailTo       []string

	RabbitMQURL   string
	RabbitMQQueue string

	DynamoHistoryTable string
	DatabaseURL        string

	StatusAddr string

	LogLevel   string
	LogColor   bool
	FluentHost string
	FluentPort int
}

// Load reads envFile (if it exists) and then the process environment.
// Variables already set in the environment win over the file. A missing file
// is fine; a malformed one is an error.
func Load(envFile string) (*Config, error) {
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, oops.Wrapf(err, "load env file %s", envFile)
	}

	return &Config{
		TargetURL: getEnv("TARGET_URL", crawler.DefaultURL),

		StateFile:    getEnv("STATE_FILE", "state.json"),
		StateBucket:  getEnv("STATE_S3_BUCKET", ""),
		StateKey:     getEnv("STATE_S3_KEY", ""),
		AWSRegion:    getEnv("AWS_REGION", "us-west-2"),
		CheckEvery:   time.Duration(getEnvInt("CHECK_INTERVAL_MINUTES", 10)) * time.Minute,
		FetchTimeout: time.Duration(getEnvInt("FETCH_TIMEOUT_SECONDS", 30)) * time.Second,
		FetchTries:   getEnvInt("FETCH_ATTEMPTS", 3),

		Notifier:      strings.ToLower(getEnv("NOTIFIER", NotifierSMTP)),
		SMTPHost:      getEnv("SMTP_HOST", ""),
		SMTPPort:      getEnvInt("SMTP_PORT", 587),
		EmailFrom:     getEnv("EMAIL_FROM", ""),
		EmailPassword: getEnv("EMAIL_PASSWORD", ""),
		EmailTo:       splitList(getEnv("EMAIL_TO", "")),

		RabbitMQURL:   getEnv("RABBITMQ_URL", ""),
		RabbitMQQueue: getEnv("RABBITMQ_QUEUE", "ilive.available"),

		DynamoHistoryTable: getEnv("DYNAMO_HISTORY_TABLE", ""),
		DatabaseURL:        getEnv("DATABASE_URL", ""),

		StatusAddr: getEnv("STATUS_ADDR", ""),

		LogLevel:   getEnv("LOG_LEVEL", "info"),
		LogColor:   getEnvBool("LOG_COLOR", true),
		FluentHost: getEnv("FLUENTBIT_HOST", ""),
		FluentPort: getEnvInt("FLUENTBIT_PORT", 24224),
	}, nil
}

// Validate reports every missing setting at once.
func (c *Config) Validate() error {
	var missing []string
	require := func(name, value string) {
		if value == "" {
			missing = append(missing, name)
		}
	}

	switch c.Notifier {
	case NotifierSMTP:
		require("SMTP_HOST", c.SMTPHost)
		require("EMAIL_FROM", c.EmailFrom)
		require("EMAIL_PASSWORD", c.EmailPassword)
		require("EMAIL_TO", strings.Join(c.EmailTo, ","))
	case NotifierSES:
		require("EMAIL_FROM", c.EmailFrom)
		require("EMAIL_TO", strings.Join(c.EmailTo, ","))
	case NotifierNone:
	default:
		return oops.Errorf("unknown NOTIFIER %q, want smtp, ses or none", c.Notifier)
	}

	if c.CheckEvery <= 0 {
		return oops.Errorf("CHECK_INTERVAL_MINUTES must be positive")
	}
	if len(missing) > 0 {
		return oops.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}
	return nil
}

func getEnv(key, fallback string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(strings.TrimSpace(val))
		if err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		b, err := strconv.ParseBool(strings.TrimSpace(val))
		if err == nil {
			return b
		}
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
