// Package config loads server settings from MSGBUS_* environment variables,
// optionally layered over a TOML file named by MSGBUS_CONFIG.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	StoreDriver string // MSGBUS_STORE_DRIVER ("sqlite" or "postgres", default "sqlite")
	DatabaseURL string // MSGBUS_DATABASE_URL (sqlite path or postgres URL, default "msgbus.db")
	HTTPAddr    string // MSGBUS_HTTP_ADDR (default ":5999")
	GRPCAddr    string // MSGBUS_GRPC_ADDR (optional, empty = no gRPC listener)
	AuthToken   string // MSGBUS_AUTH_TOKEN (optional, empty = auth disabled)

	NATSURL       string // MSGBUS_NATS_URL (optional, empty = no mirroring)
	SubjectPrefix string // MSGBUS_NATS_SUBJECT_PREFIX (default "msgbus.events")

	DeliveryTimeout time.Duration // MSGBUS_DELIVERY_TIMEOUT (default 5s)
	MaxInFlight     int64         // MSGBUS_MAX_IN_FLIGHT (default 0 = unbounded)
	DrainTimeout    time.Duration // MSGBUS_DRAIN_TIMEOUT (default 0 = abandon on shutdown)

	// Archive settings
	ArchiveInterval   time.Duration // MSGBUS_ARCHIVE_INTERVAL (default 0 = disabled)
	ArchiveS3Bucket   string        // MSGBUS_ARCHIVE_S3_BUCKET (enables S3 when set)
	ArchiveS3Endpoint string        // MSGBUS_ARCHIVE_S3_ENDPOINT (custom endpoint for MinIO)
	ArchiveS3Region   string        // MSGBUS_ARCHIVE_S3_REGION (default "us-east-1")
	ArchiveS3Key      string        // MSGBUS_ARCHIVE_S3_KEY (default "msgbus/events.jsonl")
	ArchiveFile       string        // MSGBUS_ARCHIVE_FILE (enables the local file destination when set)

	EndpointIdle time.Duration // MSGBUS_ENDPOINT_IDLE (default 1h)

	LogLevel  slog.Level // MSGBUS_LOG_LEVEL (debug, info, warn, error; default info)
	LogFormat string     // MSGBUS_LOG_FORMAT ("text" or "json", default "text")
}

// fileConfig mirrors Config for the TOML overlay. Durations are strings so
// the file uses the same syntax as the environment.
type fileConfig struct {
	StoreDriver       string `toml:"store_driver"`
	DatabaseURL       string `toml:"database_url"`
	HTTPAddr          string `toml:"http_addr"`
	GRPCAddr          string `toml:"grpc_addr"`
	AuthToken         string `toml:"auth_token"`
	NATSURL           string `toml:"nats_url"`
	SubjectPrefix     string `toml:"nats_subject_prefix"`
	DeliveryTimeout   string `toml:"delivery_timeout"`
	MaxInFlight       string `toml:"max_in_flight"`
	DrainTimeout      string `toml:"drain_timeout"`
	ArchiveInterval   string `toml:"archive_interval"`
	ArchiveS3Bucket   string `toml:"archive_s3_bucket"`
	ArchiveS3Endpoint string `toml:"archive_s3_endpoint"`
	ArchiveS3Region   string `toml:"archive_s3_region"`
	ArchiveS3Key      string `toml:"archive_s3_key"`
	ArchiveFile       string `toml:"archive_file"`
	EndpointIdle      string `toml:"endpoint_idle"`
	LogLevel          string `toml:"log_level"`
	LogFormat         string `toml:"log_format"`
}

// Load builds a Config. Values come from, in increasing precedence: built-in
// defaults, the TOML file at MSGBUS_CONFIG, and MSGBUS_* environment variables.
func Load() (*Config, error) {
	var fc fileConfig
	if path := os.Getenv("MSGBUS_CONFIG"); path != "" {
		md, err := toml.DecodeFile(path, &fc)
		if err != nil {
			return nil, fmt.Errorf("MSGBUS_CONFIG: %w", err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("MSGBUS_CONFIG: unknown key %q", undecoded[0].String())
		}
	}

	get := func(key, fromFile, fallback string) string {
		return envOrDefault(key, orDefault(fromFile, fallback))
	}

	c := &Config{
		StoreDriver:       get("MSGBUS_STORE_DRIVER", fc.StoreDriver, "sqlite"),
		DatabaseURL:       get("MSGBUS_DATABASE_URL", fc.DatabaseURL, "msgbus.db"),
		HTTPAddr:          get("MSGBUS_HTTP_ADDR", fc.HTTPAddr, ":5999"),
		GRPCAddr:          get("MSGBUS_GRPC_ADDR", fc.GRPCAddr, ""),
		AuthToken:         get("MSGBUS_AUTH_TOKEN", fc.AuthToken, ""),
		NATSURL:           get("MSGBUS_NATS_URL", fc.NATSURL, ""),
		SubjectPrefix:     get("MSGBUS_NATS_SUBJECT_PREFIX", fc.SubjectPrefix, "msgbus.events"),
		ArchiveS3Bucket:   get("MSGBUS_ARCHIVE_S3_BUCKET", fc.ArchiveS3Bucket, ""),
		ArchiveS3Endpoint: get("MSGBUS_ARCHIVE_S3_ENDPOINT", fc.ArchiveS3Endpoint, ""),
		ArchiveS3Region:   get("MSGBUS_ARCHIVE_S3_REGION", fc.ArchiveS3Region, "us-east-1"),
		ArchiveS3Key:      get("MSGBUS_ARCHIVE_S3_KEY", fc.ArchiveS3Key, "msgbus/events.jsonl"),
		ArchiveFile:       get("MSGBUS_ARCHIVE_FILE", fc.ArchiveFile, ""),
		LogFormat:         strings.ToLower(get("MSGBUS_LOG_FORMAT", fc.LogFormat, "text")),
	}

	switch c.StoreDriver {
	case "sqlite", "postgres":
	default:
		return nil, fmt.Errorf("MSGBUS_STORE_DRIVER: unknown driver %q (must be sqlite or postgres)", c.StoreDriver)
	}
	if c.StoreDriver == "postgres" && os.Getenv("MSGBUS_DATABASE_URL") == "" && fc.DatabaseURL == "" {
		return nil, fmt.Errorf("MSGBUS_DATABASE_URL is required when MSGBUS_STORE_DRIVER=postgres")
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return nil, fmt.Errorf("MSGBUS_LOG_FORMAT: unknown format %q (must be text or json)", c.LogFormat)
	}

	var err error
	if c.DeliveryTimeout, err = parseDuration("MSGBUS_DELIVERY_TIMEOUT", get("MSGBUS_DELIVERY_TIMEOUT", fc.DeliveryTimeout, "5s")); err != nil {
		return nil, err
	}
	if c.DeliveryTimeout <= 0 {
		return nil, fmt.Errorf("MSGBUS_DELIVERY_TIMEOUT: must be positive, got %s", c.DeliveryTimeout)
	}
	if c.DrainTimeout, err = parseDuration("MSGBUS_DRAIN_TIMEOUT", get("MSGBUS_DRAIN_TIMEOUT", fc.DrainTimeout, "0s")); err != nil {
		return nil, err
	}
	if c.ArchiveInterval, err = parseDuration("MSGBUS_ARCHIVE_INTERVAL", get("MSGBUS_ARCHIVE_INTERVAL", fc.ArchiveInterval, "0s")); err != nil {
		return nil, err
	}
	if c.EndpointIdle, err = parseDuration("MSGBUS_ENDPOINT_IDLE", get("MSGBUS_ENDPOINT_IDLE", fc.EndpointIdle, "1h")); err != nil {
		return nil, err
	}

	maxStr := get("MSGBUS_MAX_IN_FLIGHT", fc.MaxInFlight, "0")
	c.MaxInFlight, err = strconv.ParseInt(maxStr, 10, 64)
	if err != nil || c.MaxInFlight < 0 {
		return nil, fmt.Errorf("MSGBUS_MAX_IN_FLIGHT: invalid value %q (must be a non-negative integer)", maxStr)
	}

	levelStr := get("MSGBUS_LOG_LEVEL", fc.LogLevel, "info")
	if err := c.LogLevel.UnmarshalText([]byte(levelStr)); err != nil {
		return nil, fmt.Errorf("MSGBUS_LOG_LEVEL: %w", err)
	}

	return c, nil
}

// ArchiveEnabled reports whether any archive destination is configured.
func (c *Config) ArchiveEnabled() bool {
	return c.ArchiveInterval > 0 && (c.ArchiveS3Bucket != "" || c.ArchiveFile != "")
}

func parseDuration(key, s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: must not be negative, got %s", key, d)
	}
	return d, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func orDefault(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}
