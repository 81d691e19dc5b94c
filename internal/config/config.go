// Package config reads process environment configuration for the
// planner service.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures environment-driven configuration values.
type Config struct {
	HTTPPort         int
	DBPath           string
	LogLevel         string
	VAPIDPublicKey   string
	VAPIDPrivateKey  string
	PushSubscriber   string
	DispatchInterval time.Duration

	// Backup is optional; it stays disabled until a bucket is set.
	BackupEndpoint   string
	BackupBucket     string
	BackupRegion     string
	BackupAccessKey  string
	BackupSecretKey  string
	BackupPassphrase string
	BackupInterval   time.Duration
}

// BackupEnabled reports whether snapshot uploads are configured.
func (c Config) BackupEnabled() bool {
	return c.BackupBucket != ""
}

// Load parses configuration from the current process environment,
// applying defaults for optional fields and accumulating invalid
// values into one error.
func Load() (Config, error) {
	cfg := Config{
		HTTPPort:         8080,
		DBPath:           "planner.db",
		LogLevel:         "info",
		PushSubscriber:   "mailto:noreply@localhost",
		DispatchInterval: 30 * time.Second,
		BackupInterval:   24 * time.Hour,
	}

	var invalid []string

	if portValue := strings.TrimSpace(os.Getenv("PLANNER_HTTP_PORT")); portValue != "" {
		port, err := strconv.Atoi(portValue)
		if err != nil || port <= 0 {
			invalid = append(invalid, "PLANNER_HTTP_PORT")
		} else {
			cfg.HTTPPort = port
		}
	}

	if path := strings.TrimSpace(os.Getenv("PLANNER_DB_PATH")); path != "" {
		cfg.DBPath = path
	}

	if level := strings.TrimSpace(os.Getenv("PLANNER_LOG_LEVEL")); level != "" {
		cfg.LogLevel = level
	}

	cfg.VAPIDPublicKey = strings.TrimSpace(os.Getenv("PLANNER_VAPID_PUBLIC_KEY"))
	cfg.VAPIDPrivateKey = strings.TrimSpace(os.Getenv("PLANNER_VAPID_PRIVATE_KEY"))

	if sub := strings.TrimSpace(os.Getenv("PLANNER_PUSH_SUBSCRIBER")); sub != "" {
		cfg.PushSubscriber = sub
	}

	if intervalValue := strings.TrimSpace(os.Getenv("PLANNER_DISPATCH_INTERVAL")); intervalValue != "" {
		interval, err := time.ParseDuration(intervalValue)
		if err != nil || interval <= 0 {
			invalid = append(invalid, "PLANNER_DISPATCH_INTERVAL")
		} else {
			cfg.DispatchInterval = interval
		}
	}

	cfg.BackupEndpoint = strings.TrimSpace(os.Getenv("PLANNER_BACKUP_S3_ENDPOINT"))
	cfg.BackupBucket = strings.TrimSpace(os.Getenv("PLANNER_BACKUP_S3_BUCKET"))
	cfg.BackupRegion = strings.TrimSpace(os.Getenv("PLANNER_BACKUP_S3_REGION"))
	cfg.BackupAccessKey = strings.TrimSpace(os.Getenv("PLANNER_BACKUP_S3_ACCESS_KEY"))
	cfg.BackupSecretKey = strings.TrimSpace(os.Getenv("PLANNER_BACKUP_S3_SECRET_KEY"))
	cfg.BackupPassphrase = strings.TrimSpace(os.Getenv("PLANNER_BACKUP_PASSPHRASE"))
	if cfg.BackupEnabled() && (cfg.BackupAccessKey == "" || cfg.BackupSecretKey == "" || cfg.BackupPassphrase == "") {
		invalid = append(invalid, "PLANNER_BACKUP_S3_ACCESS_KEY", "PLANNER_BACKUP_S3_SECRET_KEY", "PLANNER_BACKUP_PASSPHRASE")
	}

	if intervalValue := strings.TrimSpace(os.Getenv("PLANNER_BACKUP_INTERVAL")); intervalValue != "" {
		interval, err := time.ParseDuration(intervalValue)
		if err != nil || interval <= 0 {
			invalid = append(invalid, "PLANNER_BACKUP_INTERVAL")
		} else {
			cfg.BackupInterval = interval
		}
	}

	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("invalid environment values: %s", strings.Join(invalid, ", "))
	}

	return cfg, nil
}
