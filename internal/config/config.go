package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// DB holds Postgres connection settings.
type DB struct {
	User string
	Pass string
	Host string
	Port string
	Name string
}

// NSQ holds queue addressing. NsqdTCPAddr is used by producers and as a
// direct consumer connection; LookupHTTPAddr, when set, lets consumers
// discover additional nsqd nodes.
type NSQ struct {
	NsqdTCPAddr    string
	LookupHTTPAddr string
	Topic          string
	WorkerChannel  string
}

// Engine holds the delivery engine's tuning knobs: retry policy, outbound
// timeouts, retention and sweep cadence, and ingestion limits.
type Engine struct {
	MaxRetries        int
	InitialRetryDelay time.Duration
	MaxRetryBackoff   time.Duration
	BackoffJitterPct  float64
	DeliveryTimeout   time.Duration
	ResponseBodyLimit int64

	AttemptRetentionWindow time.Duration
	ProcessingStaleAfter   time.Duration
	PendingStaleAfter      time.Duration
	CleanupInterval        time.Duration
	RecoveryInterval       time.Duration

	CacheTTL     time.Duration
	MaxBodyBytes int64
}

// Worker holds consumer-side settings.
type Worker struct {
	HTTPPort    string
	Concurrency int
	MaxInFlight int
}

// Auth configures optional JWT validation on the status surface. When
// PublicKeyPEM is empty the status endpoints are open.
type Auth struct {
	PublicKeyPEM string
	Issuer       string
	Audience     string
}

// FakeReceiver configures the test endpoint binary.
type FakeReceiver struct {
	FailFirstN           int
	Secret               string
	SigningLeewaySeconds int
	ResponseDelayMS      int
	Port                 string
	ReadTimeout          time.Duration
	WriteTimeout         time.Duration
	IdleTimeout          time.Duration
}

type Config struct {
	AppName     string
	HTTPPort    string
	SweeperPort string

	DB           DB
	NSQ          NSQ
	Engine       Engine
	Worker       Worker
	Auth         Auth
	FakeReceiver FakeReceiver
}

// FromEnv builds a Config from environment variables, falling back to
// defaults suitable for local docker-compose development.
func FromEnv() Config {
	return Config{
		AppName:     getenv("APP_NAME", "hookline"),
		HTTPPort:    getenv("HTTP_PORT", ":8080"),
		SweeperPort: getenv("SWEEPER_HTTP_PORT", ":8084"),
		DB: DB{
			User: getenv("DB_USER", "postgres"),
			Pass: getenv("DB_PASS", "postgres"),
			Host: getenv("DB_HOST", "localhost"),
			Port: getenv("DB_PORT", "5432"),
			Name: getenv("DB_NAME", "hookline"),
		},
		NSQ: NSQ{
			NsqdTCPAddr:    getenv("NSQD_TCP_ADDR", "nsqd:4150"),
			LookupHTTPAddr: getenv("NSQ_LOOKUP_HTTP_ADDR", ""),
			Topic:          getenv("NSQ_DELIVERIES_TOPIC", "deliveries"),
			WorkerChannel:  getenv("NSQ_WORKER_CHANNEL", "workers"),
		},
		Engine: Engine{
			MaxRetries:        getenvInt("MAX_RETRIES", 5),
			InitialRetryDelay: getenvDuration("INITIAL_RETRY_DELAY", 10*time.Second),
			MaxRetryBackoff:   getenvDuration("MAX_RETRY_BACKOFF", 900*time.Second),
			BackoffJitterPct:  getenvFloat("BACKOFF_JITTER_PCT", 0.25),
			DeliveryTimeout:   getenvDuration("DELIVERY_TIMEOUT", 10*time.Second),
			ResponseBodyLimit: getenvInt64("RESPONSE_BODY_LIMIT", 4096),

			AttemptRetentionWindow: getenvDuration("ATTEMPT_RETENTION_WINDOW", 72*time.Hour),
			ProcessingStaleAfter:   getenvDuration("PROCESSING_STALE_AFTER", 5*time.Minute),
			PendingStaleAfter:      getenvDuration("PENDING_STALE_AFTER", 2*time.Minute),
			CleanupInterval:        getenvDuration("CLEANUP_INTERVAL", time.Hour),
			RecoveryInterval:       getenvDuration("RECOVERY_INTERVAL", time.Minute),

			CacheTTL:     getenvDuration("SUBSCRIPTION_CACHE_TTL", 5*time.Minute),
			MaxBodyBytes: getenvInt64("MAX_BODY_BYTES", 1<<20),
		},
		Worker: Worker{
			HTTPPort:    ":" + getenv("WORKER_HTTP_PORT", "8083"),
			Concurrency: getenvInt("WORKER_CONCURRENCY", 8),
			MaxInFlight: getenvInt("WORKER_MAX_IN_FLIGHT", 1000),
		},
		Auth: Auth{
			PublicKeyPEM: getenv("STATUS_API_PUBLIC_KEY", ""),
			Issuer:       getenv("STATUS_API_JWT_ISSUER", "hookline"),
			Audience:     getenv("STATUS_API_JWT_AUDIENCE", "hookline-api"),
		},
		FakeReceiver: FakeReceiver{
			FailFirstN:           getenvInt("FAIL_FIRST_N", 0),
			Secret:               getenv("ENDPOINT_SECRET", ""),
			SigningLeewaySeconds: getenvInt("SIGNING_LEEWAY_SECONDS", 300),
			ResponseDelayMS:      getenvInt("RESPONSE_DELAY_MS", 0),
			Port:                 getenv("FAKE_RECEIVER_PORT", ":8081"),
			ReadTimeout:          getenvDuration("FAKE_RECEIVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:         getenvDuration("FAKE_RECEIVER_WRITE_TIMEOUT", 10*time.Second),
			IdleTimeout:          getenvDuration("FAKE_RECEIVER_IDLE_TIMEOUT", 60*time.Second),
		},
	}
}

// DSN returns the Postgres connection URL for this config.
func (c Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.DB.User, c.DB.Pass, c.DB.Host, c.DB.Port, c.DB.Name)
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getenvInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func getenvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
