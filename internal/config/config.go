// Package config provides configuration management for the Karaoke Bar client.
// Configuration is loaded from environment variables (optionally seeded from a
// .env file) with sensible defaults.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	// Default values
	DefaultPort     = 8787
	DefaultLogLevel = "info"
	DefaultAPIURL   = "https://2a0a-188-141-96-109.ngrok-free.app"
	DefaultBlobDSN  = "file::memory:"

	DefaultRequestTimeout = 300  // seconds, video generation is slow
	DefaultSessionTTL     = 1800 // 30 minutes
	DefaultChartLimit     = 50
	DefaultMaxVideoBytes  = 500 * 1024 * 1024

	// Environment variable names
	EnvPort           = "KARAOKE_PORT"
	EnvLogLevel       = "KARAOKE_LOG_LEVEL"
	EnvAPIURL         = "KARAOKE_API_URL"
	EnvRequestTimeout = "KARAOKE_REQUEST_TIMEOUT_S"
	EnvMaxVideoBytes  = "KARAOKE_MAX_VIDEO_BYTES"
	EnvChartLimit     = "KARAOKE_CHART_LIMIT"
	EnvSessionTTL     = "KARAOKE_SESSION_TTL_S"
	EnvBlobDSN        = "KARAOKE_BLOB_DSN"
	EnvHeadless       = "KARAOKE_HEADLESS"

	// EnvFile is loaded from the working directory when present.
	EnvFile = ".env"
)

// Config defines the application configuration interface
type Config interface {
	Port() int
	LogLevel() string
	APIURL() string
	RequestTimeout() time.Duration
	MaxVideoBytes() int64
	ChartLimit() int
	SessionTTL() time.Duration
	BlobDSN() string
	Headless() bool
}

// EnvConfig reads configuration from environment variables
type EnvConfig struct {
	port           int
	logLevel       string
	apiURL         string
	requestTimeout time.Duration
	maxVideoBytes  int64
	chartLimit     int
	sessionTTL     time.Duration
	blobDSN        string
	headless       bool
}

// New creates a new EnvConfig with defaults and environment variable overrides.
// Values from a .env file never override variables already set in the process.
func New() (*EnvConfig, error) {
	if err := godotenv.Load(EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", EnvFile, err)
	}

	cfg := &EnvConfig{
		port:           DefaultPort,
		logLevel:       DefaultLogLevel,
		apiURL:         DefaultAPIURL,
		requestTimeout: time.Duration(DefaultRequestTimeout) * time.Second,
		maxVideoBytes:  DefaultMaxVideoBytes,
		chartLimit:     DefaultChartLimit,
		sessionTTL:     time.Duration(DefaultSessionTTL) * time.Second,
		blobDSN:        DefaultBlobDSN,
	}

	// Override port from environment
	if p := os.Getenv(EnvPort); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvPort, err)
		}
		if port < 1 || port > 65535 {
			return nil, fmt.Errorf("invalid %s: port must be between 1 and 65535", EnvPort)
		}
		cfg.port = port
	}

	if ll := os.Getenv(EnvLogLevel); ll != "" {
		cfg.logLevel = ll
	}

	if u := os.Getenv(EnvAPIURL); u != "" {
		if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
			return nil, fmt.Errorf("invalid %s: must be an http(s) URL", EnvAPIURL)
		}
		cfg.apiURL = strings.TrimRight(u, "/")
	}

	if v := os.Getenv(EnvRequestTimeout); v != "" {
		secs, err := positiveInt(EnvRequestTimeout, v)
		if err != nil {
			return nil, err
		}
		cfg.requestTimeout = time.Duration(secs) * time.Second
	}

	if v := os.Getenv(EnvMaxVideoBytes); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvMaxVideoBytes, err)
		}
		if n <= 0 {
			return nil, fmt.Errorf("invalid %s: must be positive", EnvMaxVideoBytes)
		}
		cfg.maxVideoBytes = n
	}

	if v := os.Getenv(EnvChartLimit); v != "" {
		n, err := positiveInt(EnvChartLimit, v)
		if err != nil {
			return nil, err
		}
		cfg.chartLimit = n
	}

	if v := os.Getenv(EnvSessionTTL); v != "" {
		secs, err := positiveInt(EnvSessionTTL, v)
		if err != nil {
			return nil, err
		}
		cfg.sessionTTL = time.Duration(secs) * time.Second
	}

	if dsn := os.Getenv(EnvBlobDSN); dsn != "" {
		cfg.blobDSN = dsn
	}

	if h := os.Getenv(EnvHeadless); h != "" {
		headless, err := strconv.ParseBool(h)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvHeadless, err)
		}
		cfg.headless = headless
	}

	return cfg, nil
}

func positiveInt(name, value string) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", name)
	}
	return n, nil
}

// Port returns the HTTP server port
func (c *EnvConfig) Port() int {
	return c.port
}

// LogLevel returns the log level (debug, info, warn, error)
func (c *EnvConfig) LogLevel() string {
	return c.logLevel
}

// APIURL returns the base URL of the remote video generation service
func (c *EnvConfig) APIURL() string {
	return c.apiURL
}

func (c *EnvConfig) RequestTimeout() time.Duration {
	return c.requestTimeout
}

// MaxVideoBytes caps the size of a single generated video held in memory
func (c *EnvConfig) MaxVideoBytes() int64 {
	return c.maxVideoBytes
}

func (c *EnvConfig) ChartLimit() int {
	return c.chartLimit
}

// SessionTTL is how long an idle page session keeps its result
func (c *EnvConfig) SessionTTL() time.Duration {
	return c.sessionTTL
}

func (c *EnvConfig) BlobDSN() string {
	return c.blobDSN
}

func (c *EnvConfig) Headless() bool {
	return c.headless
}

// Version information (set at build time via ldflags)
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)
